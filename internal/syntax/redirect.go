package syntax

// Direction says which standard stream a redirection replaces.
type Direction int

const (
	// Input replaces standard input with a file opened read-only.
	Input Direction = iota

	// Output replaces standard output with a file that is created
	// if necessary and truncated.
	Output
)

// String returns the operator that introduces the redirection.
func (d Direction) String() string {
	switch d {
	case Input:
		return "<"
	case Output:
		return ">"
	default:
		return "?"
	}
}

// Redirection is a request to connect one standard stream of a stage
// to a named file. The file is not opened here; that happens only when
// the stage is launched.
type Redirection struct {
	Dir    Direction
	Target string

	// HasTarget is false if the operator was the last word of the
	// stage, in which case `Target` is meaningless.
	HasTarget bool
}

// Validate returns a `*SyntaxError` if the redirection has no target.
func (r Redirection) Validate() error {
	if !r.HasTarget {
		return &SyntaxError{Near: r.Dir.String(), Msg: "missing file name"}
	}
	return nil
}

func operatorDirection(word string) (Direction, bool) {
	switch word {
	case "<":
		return Input, true
	case ">":
		return Output, true
	default:
		return 0, false
	}
}

// ParseRedirections splits a stage's words into the argument vector
// and its redirections. Only the first `<` or `>` is recognized: the
// words before it become `argv`, the word after it (if any) becomes
// the target, and anything after that pair is dropped.
func ParseRedirections(args []string) (argv []string, redirs []Redirection) {
	for i, word := range args {
		dir, ok := operatorDirection(word)
		if !ok {
			continue
		}

		r := Redirection{Dir: dir}
		if i+1 < len(args) {
			r.Target = args[i+1]
			r.HasTarget = true
		}
		return append([]string(nil), args[:i]...), []Redirection{r}
	}

	return append([]string(nil), args...), nil
}
