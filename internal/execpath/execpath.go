// Package execpath resolves command names to executables.
package execpath

import (
	"errors"
	"io/fs"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/cli/safeexec"
)

var (
	// ErrNotFound means that no executable with the requested name
	// exists in any directory of the search path.
	ErrNotFound = errors.New("command not found")

	// ErrPermission means that a file was found but it cannot be
	// executed.
	ErrPermission = errors.New("permission denied")
)

// Error records the name that could not be resolved and why.
type Error struct {
	Name string
	Err  error
}

func (e *Error) Error() string {
	if e.Name == "" {
		return e.Err.Error()
	}
	return e.Name + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// LookPath finds the executable that should be run for `name`.
//
// A name containing a slash is used as given (relative names are
// interpreted relative to the current directory), after checking that
// it refers to an executable file. Any other name is looked up in the
// directories listed in `PATH`, in order, and the first executable
// match is returned as an absolute path. The current directory is only
// searched if `PATH` says so. We use `safeexec` for the search so that
// this holds on every platform; the process environment is only read,
// never modified.
func LookPath(name string) (string, error) {
	if name == "" {
		return "", &Error{Name: name, Err: ErrNotFound}
	}

	p, err := safeexec.LookPath(name)
	if errors.Is(err, exec.ErrDot) {
		// `.` (or an empty entry) was listed in `PATH` explicitly,
		// so honor it:
		err = nil
	}
	if err != nil {
		return "", classify(name, err)
	}

	if strings.Contains(name, "/") {
		return p, nil
	}

	p, err = filepath.Abs(p)
	if err != nil {
		return "", &Error{Name: name, Err: err}
	}

	return p, nil
}

func classify(name string, err error) error {
	switch {
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		return &Error{Name: name, Err: ErrNotFound}
	case errors.Is(err, fs.ErrPermission):
		return &Error{Name: name, Err: ErrPermission}
	default:
		return &Error{Name: name, Err: err}
	}
}
