package syntax

import (
	"github.com/anmitsu/go-shlex"
)

// Tokens is a read-only, indexable sequence of words as produced by a
// tokenizer. Stage boundaries are expressed as indices into it.
type Tokens interface {
	// Len returns the number of tokens.
	Len() int

	// At returns the token at index `i`, which must be in `[0,
	// Len())`.
	At(i int) string
}

// Words is the simplest `Tokens` implementation: a slice of strings.
type Words []string

func (w Words) Len() int {
	return len(w)
}

func (w Words) At(i int) string {
	return w[i]
}

// Tokenize splits `line` into words using POSIX shell quoting rules.
// Operators (`|`, `<`, `>`) are only recognized later, and only when
// they stand alone as a word; `a|b` is a single word.
func Tokenize(line string) (Words, error) {
	words, err := shlex.Split(line, true)
	if err != nil {
		return nil, &SyntaxError{Msg: err.Error()}
	}
	return Words(words), nil
}
