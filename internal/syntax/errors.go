package syntax

import "fmt"

// SyntaxError reports a malformed command line.
type SyntaxError struct {
	// Near is the token that the problem was detected at, if any.
	Near string
	Msg  string
}

func (e *SyntaxError) Error() string {
	if e.Near != "" {
		return fmt.Sprintf("syntax error near '%s': %s", e.Near, e.Msg)
	}
	return fmt.Sprintf("syntax error: %s", e.Msg)
}
