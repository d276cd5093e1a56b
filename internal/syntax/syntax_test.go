package syntax_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunnytower/psh/internal/syntax"
)

func TestTokenize(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		name     string
		line     string
		expected syntax.Words
	}{
		{"empty", "", syntax.Words{}},
		{"blank", "   \t ", syntax.Words{}},
		{"simple", "echo hello world", syntax.Words{"echo", "hello", "world"}},
		{"pipe", "echo A | cat", syntax.Words{"echo", "A", "|", "cat"}},
		{"quoted", `printf "a b" 'c d'`, syntax.Words{"printf", "a b", "c d"}},
		{"glued-operator", "echo a|cat", syntax.Words{"echo", "a|cat"}},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			words, err := syntax.Tokenize(tc.line)
			require.NoError(t, err)
			if len(tc.expected) == 0 {
				assert.Empty(t, words)
			} else {
				assert.Equal(t, tc.expected, words)
			}
			assert.Equal(t, len(tc.expected), words.Len())
		})
	}
}

func TestTokenizeUnterminatedQuote(t *testing.T) {
	t.Parallel()

	_, err := syntax.Tokenize(`echo "oops`)
	var synErr *syntax.SyntaxError
	assert.ErrorAs(t, err, &synErr)
}

func TestSplit(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		name     string
		words    syntax.Words
		expected []syntax.Stage
	}{
		{
			name:     "empty-line",
			words:    syntax.Words{},
			expected: []syntax.Stage{{Start: 0, End: 0}},
		},
		{
			name:     "single-stage",
			words:    syntax.Words{"ls", "-l"},
			expected: []syntax.Stage{{Start: 0, End: 2}},
		},
		{
			name:  "two-stages",
			words: syntax.Words{"echo", "A", "|", "cat"},
			expected: []syntax.Stage{
				{Start: 0, End: 2},
				{Start: 3, End: 4},
			},
		},
		{
			name:  "three-stages",
			words: syntax.Words{"a", "|", "b", "x", "|", "c"},
			expected: []syntax.Stage{
				{Start: 0, End: 1},
				{Start: 2, End: 4},
				{Start: 5, End: 6},
			},
		},
		{
			name:  "leading-pipe",
			words: syntax.Words{"|", "cat"},
			expected: []syntax.Stage{
				{Start: 0, End: 0},
				{Start: 1, End: 2},
			},
		},
		{
			name:  "trailing-pipe",
			words: syntax.Words{"cat", "|"},
			expected: []syntax.Stage{
				{Start: 0, End: 1},
				{Start: 2, End: 2},
			},
		},
		{
			name:  "adjacent-pipes",
			words: syntax.Words{"a", "|", "|", "b"},
			expected: []syntax.Stage{
				{Start: 0, End: 1},
				{Start: 2, End: 2},
				{Start: 3, End: 4},
			},
		},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			stages := syntax.Split(tc.words)
			assert.Equal(t, tc.expected, stages)

			pipes := 0
			for _, w := range tc.words {
				if w == syntax.PipeOperator {
					pipes++
				}
			}
			assert.Len(t, stages, pipes+1)
		})
	}
}

func TestStageArgs(t *testing.T) {
	t.Parallel()

	words := syntax.Words{"echo", "A", "|", "cat"}
	stages := syntax.Split(words)
	require.Len(t, stages, 2)

	args := stages[0].Args(words)
	assert.Equal(t, []string{"echo", "A"}, args)

	// The view is a copy; changing it must not change the tokens:
	args[0] = "changed"
	assert.Equal(t, "echo", words.At(0))

	assert.True(t, syntax.Stage{Start: 2, End: 2}.Empty())
	assert.Nil(t, syntax.Stage{Start: 2, End: 2}.Args(words))
}

func TestParseRedirections(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		name           string
		args           []string
		expectedArgv   []string
		expectedRedirs []syntax.Redirection
	}{
		{
			name:         "none",
			args:         []string{"ls", "-l"},
			expectedArgv: []string{"ls", "-l"},
		},
		{
			name:         "output",
			args:         []string{"printf", "X", ">", "/tmp/f"},
			expectedArgv: []string{"printf", "X"},
			expectedRedirs: []syntax.Redirection{
				{Dir: syntax.Output, Target: "/tmp/f", HasTarget: true},
			},
		},
		{
			name:         "input",
			args:         []string{"cat", "<", "in.txt"},
			expectedArgv: []string{"cat"},
			expectedRedirs: []syntax.Redirection{
				{Dir: syntax.Input, Target: "in.txt", HasTarget: true},
			},
		},
		{
			name:         "trailing-words-dropped",
			args:         []string{"sort", "<", "in.txt", "-r", ">", "out.txt"},
			expectedArgv: []string{"sort"},
			expectedRedirs: []syntax.Redirection{
				{Dir: syntax.Input, Target: "in.txt", HasTarget: true},
			},
		},
		{
			name:         "first-match-wins",
			args:         []string{"cat", ">", "a", ">", "b"},
			expectedArgv: []string{"cat"},
			expectedRedirs: []syntax.Redirection{
				{Dir: syntax.Output, Target: "a", HasTarget: true},
			},
		},
		{
			name:         "missing-target",
			args:         []string{"cat", ">"},
			expectedArgv: []string{"cat"},
			expectedRedirs: []syntax.Redirection{
				{Dir: syntax.Output},
			},
		},
		{
			name: "operator-only",
			args: []string{"<", "file"},
			expectedRedirs: []syntax.Redirection{
				{Dir: syntax.Input, Target: "file", HasTarget: true},
			},
		},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			argv, redirs := syntax.ParseRedirections(tc.args)
			assert.Equal(t, tc.expectedArgv, argv)
			assert.Equal(t, tc.expectedRedirs, redirs)
		})
	}
}

func TestRedirectionValidate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, syntax.Redirection{Dir: syntax.Input, Target: "f", HasTarget: true}.Validate())

	err := syntax.Redirection{Dir: syntax.Output}.Validate()
	assert.EqualError(t, err, "syntax error near '>': missing file name")
}
