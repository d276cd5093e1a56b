package syntax

// PipeOperator separates the stages of a pipeline.
const PipeOperator = "|"

// Stage is the half-open range `[Start, End)` of token indices that
// makes up one segment of a pipeline. It refers to the token sequence
// rather than copying it; the words are only materialized by `Args()`.
type Stage struct {
	Start int
	End   int
}

// Len returns the number of tokens in the stage.
func (s Stage) Len() int {
	return s.End - s.Start
}

// Empty reports whether the stage contains no tokens at all. This
// happens for an empty line, or for a `|` at either end of a line or
// next to another `|`.
func (s Stage) Empty() bool {
	return s.Len() <= 0
}

// Args returns a fresh copy of the stage's words.
func (s Stage) Args(toks Tokens) []string {
	if s.Empty() {
		return nil
	}
	args := make([]string, 0, s.Len())
	for i := s.Start; i < s.End; i++ {
		args = append(args, toks.At(i))
	}
	return args
}

// Split divides `toks` into the stages of a pipeline. Each `|` token
// closes the current stage and opens a new one; the final stage runs to
// the end of the sequence. The result always has one more stage than
// there are `|` tokens, so it is never empty. Degenerate input yields
// empty stages rather than an error; it is up to the launcher to reject
// them.
func Split(toks Tokens) []Stage {
	var stages []Stage
	start := 0
	for i := 0; i < toks.Len(); i++ {
		if toks.At(i) == PipeOperator {
			stages = append(stages, Stage{Start: start, End: i})
			start = i + 1
		}
	}
	return append(stages, Stage{Start: start, End: toks.Len()})
}
