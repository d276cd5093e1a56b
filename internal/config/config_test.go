package config_test

import (
	"bytes"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunnytower/psh/internal/config"
)

func TestParse(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		name     string
		input    string
		expected *config.Config
		err      string
	}{
		{
			name:     "empty",
			input:    "",
			expected: config.Default(),
		},
		{
			name:  "all-fields",
			input: "prompt: 'psh> '\njob_control: false\ncolor: false\nlog_level: debug\nlog_format: json\n",
			expected: &config.Config{
				Prompt:     "psh> ",
				JobControl: false,
				Color:      false,
				LogLevel:   "debug",
				LogFormat:  "json",
			},
		},
		{
			name:  "partial",
			input: "log_level: info\n",
			expected: &config.Config{
				Prompt:     "%d: ",
				JobControl: true,
				Color:      true,
				LogLevel:   "info",
				LogFormat:  "text",
			},
		},
		{
			name:  "unknown-field",
			input: "histfile: ~/.psh_history\n",
			err:   "field histfile not found",
		},
		{
			name:  "bad-level",
			input: "log_level: loud\n",
			err:   "log_level",
		},
		{
			name:  "bad-format",
			input: "log_format: xml\n",
			err:   "log_format",
		},
		{
			name:  "bad-prompt",
			input: "prompt: '%s> '\n",
			err:   "at most one %d verb",
		},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg, err := config.Parse(strings.NewReader(tc.input))
			if tc.err != "" {
				if assert.Error(t, err) {
					assert.Contains(t, err.Error(), tc.err)
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, cfg)
		})
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/psh.yaml", []byte("color: false\n"), 0o644))

	cfg, err := config.Load(fs, "/etc/psh.yaml")
	require.NoError(t, err)
	assert.False(t, cfg.Color)

	_, err = config.Load(fs, "/etc/missing.yaml")
	assert.Error(t, err, "an explicitly requested file must exist")
}

func TestLoadDefaultPath(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	assert.Equal(t, filepath.Join(dir, "psh", "config.yaml"), config.DefaultPath())

	fs := afero.NewMemMapFs()
	cfg, err := config.Load(fs, "")
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)

	require.NoError(t, afero.WriteFile(fs, config.DefaultPath(), []byte("prompt: '$ '\n"), 0o644))
	cfg, err = config.Load(fs, "")
	require.NoError(t, err)
	assert.Equal(t, "$ ", cfg.Prompt)
}

func TestNewLogger(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	assert.Equal(t, slog.LevelWarn, cfg.Level())

	var buf bytes.Buffer
	logger := cfg.NewLogger(&buf)
	logger.Info("hidden")
	logger.Warn("shown", "stage", "cat")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "msg=shown stage=cat")

	buf.Reset()
	cfg.LogFormat = "json"
	cfg.LogLevel = "debug"
	cfg.NewLogger(&buf).Debug("launched", "pid", 42)
	assert.Contains(t, buf.String(), `"pid":42`)
}
