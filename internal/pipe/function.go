package pipe

import (
	"context"
	"fmt"
	"io"

	"github.com/sunnytower/psh/internal/syntax"
)

// StageFunc is a function that can be used to power a `goStage`. It
// should read its input from `stdin` and write its output to
// `stdout`. `stdin` and `stdout` will be closed automatically (if
// necessary) once the function returns.
//
// Neither `stdin` nor `stdout` are necessarily buffered. If the
// `StageFunc` requires buffering, it needs to arrange that itself.
//
// A `StageFunc` is run in a separate goroutine, so it must be careful
// to synchronize any data access aside from reading and writing.
type StageFunc func(ctx context.Context, env Env, stdin io.Reader, stdout io.Writer) error

// Function returns a pipeline `Stage` that will run a `StageFunc` in
// a separate goroutine to process the data, with its stdin and stdout
// redirected as `redirs` say. See `StageFunc` for more information.
func Function(name string, f StageFunc, redirs ...syntax.Redirection) Stage {
	return &goStage{
		name:   name,
		f:      f,
		redirs: redirs,
		done:   make(chan struct{}),
	}
}

// goStage is a `Stage` that does its work by running an arbitrary
// `stageFunc` in a goroutine.
type goStage struct {
	name   string
	f      StageFunc
	redirs []syntax.Redirection
	done   chan struct{}
	err    error
}

func (s *goStage) Name() string {
	return s.name
}

func (s *goStage) Start(
	ctx context.Context, env Env, stdin io.ReadCloser, stdout io.WriteCloser,
) error {
	if err := validateRedirections(s.redirs); err != nil {
		s.fail(env, err, stdin, stdout)
		return nil
	}
	files, err := openRedirections(env, s.redirs)
	if err != nil {
		s.fail(env, err, stdin, stdout)
		return nil
	}

	// A redirection supersedes the pipe for its direction, in which
	// case the pipe end is closed right away.
	var in io.Reader = env.stdin()
	var inCloser io.Closer
	switch {
	case files.stdin != nil:
		in, inCloser = files.stdin, files.stdin
		closeQuietly(stdin)
	case stdin != nil:
		in, inCloser = stdin, stdin
	}

	var out io.Writer = env.stdout()
	var outCloser io.Closer
	switch {
	case files.stdout != nil:
		out, outCloser = files.stdout, files.stdout
		closeQuietly(stdout)
	case stdout != nil:
		out, outCloser = stdout, stdout
	}

	go func() {
		s.err = s.f(ctx, env, in, out)
		if outCloser != nil {
			if err := outCloser.Close(); err != nil && s.err == nil {
				s.err = fmt.Errorf("error closing output for stage %q: %w", s.Name(), err)
			}
		}
		if inCloser != nil {
			if err := inCloser.Close(); err != nil && s.err == nil {
				s.err = fmt.Errorf("error closing stdin for stage %q: %w", s.Name(), err)
			}
		}
		close(s.done)
	}()

	return nil
}

// fail records a failure that happened before the function could
// run.
func (s *goStage) fail(env Env, err error, stdin io.ReadCloser, stdout io.WriteCloser) {
	closeQuietly(stdin)
	closeQuietly(stdout)
	env.report(err)
	s.err = err
	close(s.done)
}

func (s *goStage) Wait() error {
	<-s.done
	return s.err
}

func closeQuietly(c io.Closer) {
	if c != nil {
		_ = c.Close()
	}
}
