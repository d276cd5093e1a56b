package pipe

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os/exec"
	"strconv"
	"syscall"
)

// FailureKind classifies the ways in which a stage can fail before
// its program gets to run.
type FailureKind int

const (
	// CommandNotFound means that the command name could not be
	// resolved to an executable (or that the stage had no command
	// at all).
	CommandNotFound FailureKind = iota

	// ExecFailed means that an executable was found but could not be
	// run.
	ExecFailed

	// RedirectionOpenFailed means that a redirection target could
	// not be opened.
	RedirectionOpenFailed

	// RedirectionSyntax means that a redirection operator had no
	// target.
	RedirectionSyntax
)

// Conventional statuses for stages that fail before running.
const (
	StatusRedirectionFailed = 1
	StatusSyntaxError       = 2
	StatusExecFailed        = 126
	StatusNotFound          = 127
)

// StageError is the result of a stage that failed before its program
// could run. It is scoped to that one stage: the other stages of the
// pipeline are unaffected, except that they see their pipe to this
// stage closed.
type StageError struct {
	Kind FailureKind

	// Name is the command name, or the file name for redirection
	// failures.
	Name string

	// Status is the exit status that the stage reports.
	Status int

	Err error
}

func (e *StageError) Error() string {
	switch e.Kind {
	case CommandNotFound:
		if e.Name == "" {
			return "command not found"
		}
		return e.Name + ": command not found"
	case RedirectionSyntax:
		return e.Err.Error()
	}

	// Don't repeat the file name that `*fs.PathError` includes:
	var pathErr *fs.PathError
	if errors.As(e.Err, &pathErr) {
		return fmt.Sprintf("%s: %v", e.Name, pathErr.Err)
	}
	return fmt.Sprintf("%s: %v", e.Name, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// LaunchError reports a failure of the shell's own resources while
// setting up a pipeline (creating a pipe or a process). Unlike a
// `StageError`, it aborts the whole pipeline.
type LaunchError struct {
	// Op is "pipe" or "fork".
	Op  string
	Err error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// ExitCode is an error that carries nothing but an exit status. It is
// what in-process stages return to report a non-zero status.
type ExitCode int

func (c ExitCode) Error() string {
	return "exit status " + strconv.Itoa(int(c))
}

// ExitStatus converts the error returned by `Stage.Wait()` into a
// conventional exit status: 0 for success, the program's exit code, or
// 128 plus the signal number if it was killed by a signal.
func ExitStatus(err error) int {
	if err == nil {
		return 0
	}

	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr.Status
	}

	var code ExitCode
	if errors.As(err, &code) {
		return int(code)
	}

	var eErr *exec.ExitError
	if errors.As(err, &eErr) {
		if ws, ok := eErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return 128 + int(ws.Signal())
		}
		return eErr.ExitCode()
	}

	return 1
}

// isPipeError reports whether `err` is one of the errors that a stage
// typically gets when a later stage has stopped reading its stdin: it
// was killed by SIGPIPE, or a write failed with EPIPE or
// `io.ErrClosedPipe`.
func isPipeError(err error) bool {
	if errors.Is(err, syscall.EPIPE) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}

	var eErr *exec.ExitError
	if !errors.As(err, &eErr) {
		return false
	}
	ws, ok := eErr.Sys().(syscall.WaitStatus)
	return ok && ws.Signaled() && ws.Signal() == syscall.SIGPIPE
}

// isForkFailure reports whether `err`, returned by `exec.Cmd.Start()`,
// means that no process could be created at all (as opposed to the
// process failing to exec its program).
func isForkFailure(err error) bool {
	return errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.ENOMEM)
}
