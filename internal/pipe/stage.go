package pipe

import (
	"context"
	"io"
)

// Stage is an element of a `Pipeline`.
type Stage interface {
	// Name returns the name of the stage.
	Name() string

	// Start starts the stage in the background, in the environment
	// described by `env`. `stdin` is the read end of the pipe from
	// the previous stage and `stdout` the write end of the pipe to
	// the next one; either is nil if the stage should use the
	// corresponding stream from `env` instead (which is the case for
	// the first and last stages of a pipeline).
	//
	// The stage takes ownership of `stdin` and `stdout`, whether or
	// not `Start()` succeeds. It must close its copies as soon as it
	// no longer needs them: for an external command, that is right
	// after the child process has been created, because the child
	// holds its own duplicates. A write end that is left open in the
	// shell keeps the next stage from ever seeing EOF.
	//
	// A failure that only concerns this stage (e.g., the command
	// isn't found) is not reported by `Start()` but by `Wait()`.
	// `Start()` only returns an error if the pipeline as a whole
	// can't go on.
	//
	// If `Start()` returns without an error, `Wait()` must also be
	// called, to allow all resources to be freed.
	Start(ctx context.Context, env Env, stdin io.ReadCloser, stdout io.WriteCloser) error

	// Wait waits for the stage to be done, either because it has
	// finished or because it has been killed due to the expiration of
	// the context passed to `Start()`.
	Wait() error
}

// processStage is implemented by stages that run an OS process.
type processStage interface {
	// Pid returns the process ID of the stage's process, or 0 if no
	// process was started.
	Pid() int
}

// stagePid returns the PID of the process behind `s`, or 0 if there
// is none.
func stagePid(s Stage) int {
	if ps, ok := s.(processStage); ok {
		return ps.Pid()
	}
	return 0
}
