package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mainResult struct {
	status int
	err    error
	stdout string
	stderr string
}

// runMain runs `mainImplementation()` with `input` as its stdin and
// files standing in for its stdout and stderr.
func runMain(t *testing.T, input string, args ...string) mainResult {
	t.Helper()

	dir := t.TempDir()
	open := func(name string) *os.File {
		f, err := os.Create(filepath.Join(dir, name))
		require.NoError(t, err)
		t.Cleanup(func() { f.Close() })
		return f
	}

	stdin := open("stdin")
	_, err := stdin.WriteString(input)
	require.NoError(t, err)
	_, err = stdin.Seek(0, 0)
	require.NoError(t, err)

	stdout := open("stdout")
	stderr := open("stderr")

	// Don't let the developer's own settings affect the results:
	configPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("color: false\n"), 0o644))
	args = append([]string{"--config", configPath}, args...)

	status, err := mainImplementation(stdin, stdout, stderr, args)

	read := func(name string) string {
		contents, rErr := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, rErr)
		return string(contents)
	}

	return mainResult{
		status: status,
		err:    err,
		stdout: read("stdout"),
		stderr: read("stderr"),
	}
}

func TestCommandFlag(t *testing.T) {
	t.Parallel()

	for _, p := range []struct {
		name           string
		line           string
		expectedStatus int
		expectedStdout string
		expectedStderr string
	}{
		{
			name:           "pipeline",
			line:           "echo hello | tr a-z A-Z",
			expectedStdout: "HELLO\n",
		},
		{
			name:           "not-found",
			line:           "psh-no-such-command-here",
			expectedStatus: 127,
			expectedStderr: "psh-no-such-command-here: command not found\n",
		},
		{
			name:           "exit-status",
			line:           "sh -c 'exit 3'",
			expectedStatus: 3,
		},
		{
			name: "exit",
			line: "exit",
		},
	} {
		p := p
		t.Run(p.name, func(t *testing.T) {
			t.Parallel()

			r := runMain(t, "", "--no-job-control", "-c", p.line)
			require.NoError(t, r.err)
			assert.Equal(t, p.expectedStatus, r.status)
			assert.Equal(t, p.expectedStdout, r.stdout)
			assert.Equal(t, p.expectedStderr, r.stderr)
		})
	}
}

func TestReadsStdin(t *testing.T) {
	t.Parallel()

	r := runMain(t, "echo one\nfalse\necho two\n")
	require.NoError(t, r.err)
	assert.Equal(t, 0, r.status)
	assert.Equal(t, "one\ntwo\n", r.stdout)
	assert.Empty(t, r.stderr)
}

func TestScript(t *testing.T) {
	t.Parallel()

	script := filepath.Join(t.TempDir(), "script.psh")
	require.NoError(t, os.WriteFile(script, []byte("echo from script\nexit\necho unreachable\n"), 0o644))

	r := runMain(t, "echo from stdin\n", script)
	require.NoError(t, r.err)
	assert.Equal(t, 0, r.status)
	assert.Equal(t, "from script\n", r.stdout)
}

func TestUsageErrors(t *testing.T) {
	t.Parallel()

	for _, args := range [][]string{
		{"--log-level", "loud", "-c", "true"},
		{"-c", "true", "script.psh"},
		{"one.psh", "two.psh"},
		{filepath.Join(t.TempDir(), "missing.psh")},
	} {
		args := args
		t.Run(args[0], func(t *testing.T) {
			t.Parallel()

			r := runMain(t, "", args...)
			assert.Error(t, r.err)
			assert.Equal(t, 1, r.status)
		})
	}
}

func TestNegatedBoolValue(t *testing.T) {
	t.Parallel()

	b := true
	v := NegatedBoolValue{&b}
	assert.Equal(t, "false", v.String())
	assert.Equal(t, "bool", v.Type())

	require.NoError(t, v.Set("true"))
	assert.False(t, b)
	assert.Equal(t, true, v.Get())

	require.NoError(t, v.Set("false"))
	assert.True(t, b)

	assert.Error(t, v.Set("maybe"))
	assert.True(t, b)
}
