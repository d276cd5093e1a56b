package pipe

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"sync/atomic"
	"syscall"

	"github.com/sunnytower/psh/internal/execpath"
	"github.com/sunnytower/psh/internal/syntax"
)

// commandStage is a pipeline `Stage` based on running an external
// command and piping the data through its stdin and stdout.
type commandStage struct {
	name   string
	argv   []string
	redirs []syntax.Redirection
	cmd    *exec.Cmd
	done   chan struct{}

	// pgid is the process group that the command was started in, if
	// it got one of its own. It is 0 otherwise.
	pgid int

	// Things that the child reads from or writes to through a copying
	// goroutine of `exec.Cmd`, and that therefore can only be closed
	// once the child has been waited for.
	closeAfterWait []io.Closer

	// failure is set if the stage failed before the command could be
	// started. It is the stage's result.
	failure error

	// If the context expired and we attempted to kill the command,
	// `ctx.Err()` is stored here.
	ctxErr atomic.Value
}

// Program returns a pipeline `Stage` that runs the program named by
// `argv[0]` with the arguments `argv` and the given redirections.
//
// Everything that can go wrong before the program runs (a missing
// redirection target, a file that can't be opened, a command that
// can't be found or executed) only affects this stage: a diagnostic
// is written to the stage's stderr (or held back, see
// `WithHeldDiagnostics()`), no process is created, and
// `Wait()` returns a `*StageError`. An empty `argv` is reported as a
// command that can't be found.
func Program(argv []string, redirs ...syntax.Redirection) Stage {
	name := ""
	if len(argv) > 0 {
		name = argv[0]
	}
	return &commandStage{
		name:   name,
		argv:   argv,
		redirs: redirs,
		done:   make(chan struct{}),
	}
}

func (s *commandStage) Name() string {
	return s.name
}

// Pid returns the process ID of the command, or 0 if it wasn't
// started.
func (s *commandStage) Pid() int {
	if s.cmd == nil || s.cmd.Process == nil || s.failure != nil {
		return 0
	}
	return s.cmd.Process.Pid
}

// prepare resolves the command and opens its redirections. Any error
// that it returns is scoped to this stage.
func (s *commandStage) prepare(env Env) (redirectedFiles, error) {
	if err := validateRedirections(s.redirs); err != nil {
		return redirectedFiles{}, err
	}

	files, err := openRedirections(env, s.redirs)
	if err != nil {
		return redirectedFiles{}, err
	}

	if len(s.argv) == 0 {
		files.close()
		return redirectedFiles{}, &StageError{
			Kind:   CommandNotFound,
			Status: StatusNotFound,
			Err:    execpath.ErrNotFound,
		}
	}

	path, err := env.lookPath(s.argv[0])
	if err != nil {
		files.close()
		return redirectedFiles{}, lookupError(s.argv[0], err)
	}

	s.cmd = &exec.Cmd{
		Path: path,
		Args: append([]string(nil), s.argv...),
	}
	return files, nil
}

func lookupError(name string, err error) error {
	// Don't repeat the name that the lookup errors include:
	var lpErr *execpath.Error
	if errors.As(err, &lpErr) {
		err = lpErr.Err
	}
	var eErr *exec.Error
	if errors.As(err, &eErr) {
		err = eErr.Err
	}

	if errors.Is(err, execpath.ErrNotFound) {
		return &StageError{
			Kind: CommandNotFound, Name: name, Status: StatusNotFound, Err: err,
		}
	}
	return &StageError{
		Kind: ExecFailed, Name: name, Status: StatusExecFailed, Err: err,
	}
}

// fail records `err` as the stage's result and reports it.
func (s *commandStage) fail(env Env, err error) {
	s.failure = err
	env.report(err)
}

func (s *commandStage) Start(
	ctx context.Context, env Env, stdin io.ReadCloser, stdout io.WriteCloser,
) error {
	// Whatever happens, the shell must not keep its copies of the
	// descriptors that it was handed. `closeNow` collects the ones
	// that can be closed as soon as the child has been created.
	var closeNow []io.Closer
	defer func() {
		for _, c := range closeNow {
			_ = c.Close()
		}
	}()

	// release disposes of `c`, which the child uses iff `used`.
	release := func(c io.Closer, used bool) {
		if c == nil {
			return
		}
		if _, ok := c.(*os.File); ok || !used {
			closeNow = append(closeNow, c)
			return
		}
		// An `exec.Cmd` goroutine copies to or from it until the
		// child exits:
		s.closeAfterWait = append(s.closeAfterWait, c)
	}

	files, err := s.prepare(env)
	if err != nil {
		release(stdin, false)
		release(stdout, false)
		s.fail(env, err)
		return nil
	}

	s.cmd.Dir = env.Dir

	// A redirection supersedes the pipe for its direction, in which
	// case the pipe end just gets closed.
	switch {
	case files.stdin != nil:
		s.cmd.Stdin = files.stdin
	case stdin != nil:
		s.cmd.Stdin = stdin
	default:
		s.cmd.Stdin = env.stdin()
	}
	release(files.stdin, true)
	release(stdin, files.stdin == nil)

	switch {
	case files.stdout != nil:
		s.cmd.Stdout = files.stdout
	case stdout != nil:
		s.cmd.Stdout = stdout
	default:
		s.cmd.Stdout = env.stdout()
	}
	release(files.stdout, true)
	release(stdout, files.stdout == nil)

	s.cmd.Stderr = env.stderr()

	s.configureProcessGroup(env.job)

	if err := s.cmd.Start(); err != nil {
		closeNow = append(closeNow, s.closeAfterWait...)
		s.closeAfterWait = nil

		if isForkFailure(err) {
			return &LaunchError{Op: "fork", Err: err}
		}
		s.fail(env, execError(s.name, err))
		return nil
	}

	if env.job != nil {
		if env.job.pgid == 0 {
			env.job.pgid = s.cmd.Process.Pid
		}
		s.pgid = env.job.pgid
	}

	// Arrange for the process to be killed (gently) if the context
	// expires before the command exits normally:
	go func() {
		select {
		case <-ctx.Done():
			s.kill(ctx.Err())
		case <-s.done:
			// Process already done; no need to kill it again.
		}
	}()

	return nil
}

func execError(name string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return &StageError{
			Kind: CommandNotFound, Name: name, Status: StatusNotFound, Err: err,
		}
	}
	return &StageError{
		Kind: ExecFailed, Name: name, Status: StatusExecFailed, Err: err,
	}
}

// filterCmdError interprets `err`, which was returned by `Cmd.Wait()`
// (possibly `nil`), possibly modifying it or ignoring it. It returns
// the error that should actually be returned to the caller (possibly
// `nil`).
func (s *commandStage) filterCmdError(err error) error {
	if err == nil {
		return nil
	}

	eErr, ok := err.(*exec.ExitError)
	if !ok {
		return err
	}

	ctxErr, ok := s.ctxErr.Load().(error)
	if ok {
		// If the process looks like it was killed by us, substitute
		// `ctxErr` for the process's own exit error.
		ps, ok := eErr.ProcessState.Sys().(syscall.WaitStatus)
		if ok && ps.Signaled() &&
			(ps.Signal() == syscall.SIGTERM || ps.Signal() == syscall.SIGKILL) {
			return ctxErr
		}
	}

	return eErr
}

func (s *commandStage) Wait() error {
	defer close(s.done)

	if s.failure != nil {
		return s.failure
	}

	err := s.filterCmdError(s.cmd.Wait())

	for _, c := range s.closeAfterWait {
		if cErr := c.Close(); cErr != nil && err == nil {
			err = cErr
		}
	}

	return err
}
