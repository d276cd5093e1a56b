package pipe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/sunnytower/psh/internal/execpath"
)

// Env represents the environment that a pipeline stage should run in.
// It is passed to `Stage.Start()`.
type Env struct {
	// The directory in which external commands should be executed by
	// default.
	Dir string

	// The streams that the first stage reads from, the last stage
	// writes to, and every stage reports errors to. If they are
	// `*os.File`s, child processes inherit them directly.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// Fs is used to open redirection targets.
	Fs afero.Fs

	// LookPath resolves command names to executables.
	LookPath func(name string) (string, error)

	Logger *slog.Logger

	// job is set if the pipeline's processes are run as a job with
	// their own process group.
	job *jobGroup

	// held collects stage diagnostics while the terminal may belong
	// to the job, if set.
	held *heldDiagnostics
}

func (env Env) fs() afero.Fs {
	if env.Fs == nil {
		return afero.NewOsFs()
	}
	return env.Fs
}

func (env Env) lookPath(name string) (string, error) {
	if env.LookPath == nil {
		return execpath.LookPath(name)
	}
	return env.LookPath(name)
}

func (env Env) logger() *slog.Logger {
	if env.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return env.Logger
}

func (env Env) stdin() io.Reader {
	if env.Stdin == nil {
		return os.Stdin
	}
	return env.Stdin
}

func (env Env) stdout() io.Writer {
	if env.Stdout == nil {
		return os.Stdout
	}
	return env.Stdout
}

func (env Env) stderr() io.Writer {
	if env.Stderr == nil {
		return os.Stderr
	}
	return env.Stderr
}

// report writes the diagnostic for a stage-scoped failure, or holds
// it back until `Pipeline.FlushDiagnostics()`.
func (env Env) report(err error) {
	if env.held != nil {
		env.held.add(err)
		return
	}
	fmt.Fprintln(env.stderr(), err)
}

type heldDiagnostics struct {
	mu   sync.Mutex
	errs []error
}

func (h *heldDiagnostics) add(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errs = append(h.errs, err)
}

func (h *heldDiagnostics) take() []error {
	h.mu.Lock()
	defer h.mu.Unlock()
	errs := h.errs
	h.errs = nil
	return errs
}

// jobGroup describes the process group that the processes of a
// pipeline share when job control is on.
type jobGroup struct {
	// ctty is the descriptor of the controlling terminal.
	ctty int

	// pgid is the ID of the group, which is the PID of its first
	// process, or 0 before any process has been started.
	pgid int
}

// Stats describes what a pipeline did. It is meant to be inspected
// after `Wait()` has returned.
type Stats struct {
	// Stages is the number of stages that were started.
	Stages int

	// Processes is the number of OS processes that were created.
	Processes int

	// Waited is the number of stages that were waited for.
	Waited int

	// Pipes is the number of pipes that were created.
	Pipes int

	// LeakedPipeEnds is the number of pipe ends that were still open
	// in this process after all stages finished (and which were then
	// closed by the pipeline itself).
	LeakedPipeEnds int

	// OpenPipeEnds is the number of pipe ends that could not be
	// closed at all. It is zero unless the OS misbehaves.
	OpenPipeEnds int
}

// Pipeline represents a Unix-like pipe that can include multiple
// stages, including external processes but also stages written in
// Go. The pipeline owns the pipes between its stages.
type Pipeline struct {
	env Env

	stages []Stage
	cancel func()

	// pipeEnds holds every pipe end that the pipeline created, so
	// that it can verify that none is left open.
	pipeEnds []*os.File
	statuses []int
	stats    Stats

	// Atomically written and read value, nonzero if the pipeline has
	// been started. This is only used for lifecycle sanity checks but
	// does not guarantee that clients are using the class correctly.
	started uint32
}

// New returns a Pipeline struct with all of the `options` applied.
func New(options ...Option) *Pipeline {
	p := &Pipeline{}

	for _, option := range options {
		option(p)
	}

	return p
}

// Option is a type alias for Pipeline functional options.
type Option func(*Pipeline)

// WithDir sets the default directory for running external commands.
func WithDir(dir string) Option {
	return func(p *Pipeline) {
		p.env.Dir = dir
	}
}

// WithStdin assigns stdin to the first command in the pipeline.
func WithStdin(stdin io.Reader) Option {
	return func(p *Pipeline) {
		p.env.Stdin = stdin
	}
}

// WithStdout assigns stdout to the last command in the pipeline.
func WithStdout(stdout io.Writer) Option {
	return func(p *Pipeline) {
		p.env.Stdout = stdout
	}
}

// WithStderr sets the stream that all stages report errors to.
func WithStderr(stderr io.Writer) Option {
	return func(p *Pipeline) {
		p.env.Stderr = stderr
	}
}

// WithFs sets the filesystem that redirection targets are opened in.
func WithFs(fs afero.Fs) Option {
	return func(p *Pipeline) {
		p.env.Fs = fs
	}
}

// WithLookPath replaces the function used to resolve command names.
func WithLookPath(lookPath func(string) (string, error)) Option {
	return func(p *Pipeline) {
		p.env.LookPath = lookPath
	}
}

// WithLogger sets the logger that launches and reaps are reported to.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.env.Logger = logger
	}
}

// WithJobControl runs the pipeline's processes as a job: they get a
// process group of their own, which is made the foreground process
// group of the terminal open on descriptor `ctty`. The caller is
// responsible for taking the terminal back after `Wait()` and then
// calling `FlushDiagnostics()`, since the diagnostics of failed
// stages are held back (see `WithHeldDiagnostics()`).
func WithJobControl(ctty int) Option {
	return func(p *Pipeline) {
		p.env.job = &jobGroup{ctty: ctty}
		p.env.held = &heldDiagnostics{}
	}
}

// WithHeldDiagnostics holds back the diagnostics of stages that fail
// before their program runs, instead of writing them to stderr right
// away. A shell that is not in the terminal's foreground must not
// write to it, so they are only written by `FlushDiagnostics()`.
func WithHeldDiagnostics() Option {
	return func(p *Pipeline) {
		p.env.held = &heldDiagnostics{}
	}
}

func (p *Pipeline) hasStarted() bool {
	return atomic.LoadUint32(&p.started) != 0
}

// Add appends one or more stages to the pipeline.
func (p *Pipeline) Add(stages ...Stage) {
	if p.hasStarted() {
		panic("attempt to modify a pipeline that has already started")
	}

	p.stages = append(p.stages, stages...)
}

// Len returns the number of stages in the pipeline.
func (p *Pipeline) Len() int {
	return len(p.stages)
}

// Start starts the commands in the pipeline. If `Start()` exits
// without an error, `Wait()` must also be called, to allow all
// resources to be freed.
//
// The pipe between stages `i` and `i+1` is created immediately before
// stage `i` is started, so `n-1` pipes are created for `n` stages.
// Each pipe end is handed to exactly one stage, which closes the
// shell's copy once its process holds its own.
func (p *Pipeline) Start(ctx context.Context) error {
	if p.hasStarted() {
		panic("attempt to start a pipeline that has already started")
	}

	atomic.StoreUint32(&p.started, 1)
	ctx, p.cancel = context.WithCancel(ctx)

	env := p.env
	env.Stderr = env.stderr()
	if _, ok := env.Stderr.(*os.File); !ok {
		// Several stages may write to it at the same time:
		env.Stderr = &syncWriter{w: env.Stderr}
	}
	logger := env.logger()

	var nextStdin io.ReadCloser
	for i, s := range p.stages {
		var stdout io.WriteCloser
		var r *os.File
		if i < len(p.stages)-1 {
			var w *os.File
			var err error
			r, w, err = os.Pipe()
			if err != nil {
				if nextStdin != nil {
					_ = nextStdin.Close()
				}
				p.abort(i)
				return &LaunchError{Op: "pipe", Err: err}
			}
			p.pipeEnds = append(p.pipeEnds, r, w)
			p.stats.Pipes++
			logger.Debug("created pipe", "after", s.Name(), "index", i)
			stdout = w
		}

		// `s` now owns `nextStdin` and `stdout`, even if it fails to
		// start.
		if err := s.Start(ctx, env, nextStdin, stdout); err != nil {
			// Close the pipe that the next stage would have read from.
			// Closing the read end that this stage inherited is this
			// stage's job. Together, that should cause the previous
			// stage to exit even if it's not minding its context.
			if r != nil {
				_ = r.Close()
			}

			p.abort(i)
			return fmt.Errorf("starting pipeline stage %q: %w", s.Name(), err)
		}
		p.stats.Stages++

		if pid := stagePid(s); pid != 0 {
			p.stats.Processes++
			logger.Debug("launched stage", "stage", s.Name(), "index", i, "pid", pid)
		}

		nextStdin = r
	}

	return nil
}

// abort kills and waits for the first `n` stages, which have already
// been started, after a failure to start stage `n`.
func (p *Pipeline) abort(n int) {
	p.cancel()
	for _, s := range p.stages[:n] {
		_ = s.Wait()
		p.stats.Waited++
	}
	p.closeLeakedPipes()
}

// Wait waits for each stage in the pipeline to exit. Every stage is
// waited for, so no child process is left unreaped even if some of
// them fail; the stages are reaped in whatever order they finish.
//
// The error returned is the most informative one among the stages'
// errors; `Statuses()` and `ExitStatus()` report each stage's status.
func (p *Pipeline) Wait() error {
	if !p.hasStarted() {
		panic("unable to wait on a pipeline that has not started")
	}

	// Make sure that all of the cleanup eventually happens:
	defer p.cancel()

	logger := p.env.logger()
	errs := make([]error, len(p.stages))

	var g errgroup.Group
	for i, s := range p.stages {
		i, s := i, s
		g.Go(func() error {
			errs[i] = s.Wait()
			return nil
		})
	}
	_ = g.Wait()
	p.stats.Waited += len(p.stages)

	p.statuses = make([]int, len(p.stages))
	for i, err := range errs {
		p.statuses[i] = ExitStatus(err)
		logger.Debug(
			"reaped stage",
			"stage", p.stages[i].Name(), "index", i, "status", p.statuses[i],
		)
	}

	p.closeLeakedPipes()

	// The earliest stage that failed for a reason of its own is the
	// most informative. A pipe error usually just means that a later
	// stage stopped reading, so it only counts if no stage failed
	// otherwise; among pipe errors, the last one wins.
	failed := -1
	for i := len(p.stages) - 1; i >= 0; i-- {
		err := errs[i]
		switch {
		case err == nil:
		case isPipeError(err):
			if failed == -1 {
				failed = i
			}
		default:
			failed = i
		}
	}

	if failed == -1 {
		return nil
	}
	return fmt.Errorf("%s: %w", p.stages[failed].Name(), errs[failed])
}

// closeLeakedPipes closes any pipe end that is still open in this
// process. Normally every stage closes its own ends, so this finds
// nothing.
func (p *Pipeline) closeLeakedPipes() {
	for _, f := range p.pipeEnds {
		// `Close()` fails with `os.ErrClosed` for an end that has
		// already been closed.
		switch err := f.Close(); {
		case err == nil:
			p.stats.LeakedPipeEnds++
			p.env.logger().Warn("closed leaked pipe end", "pipe", f.Name())
		case !errors.Is(err, os.ErrClosed):
			p.stats.OpenPipeEnds++
			p.env.logger().Error("closing pipe end", "pipe", f.Name(), "err", err)
		}
	}
	p.pipeEnds = nil
}

// Run starts and waits for the commands in the pipeline.
func (p *Pipeline) Run(ctx context.Context) error {
	if err := p.Start(ctx); err != nil {
		return err
	}

	return p.Wait()
}

// FlushDiagnostics writes the diagnostics that were held back (see
// `WithHeldDiagnostics()`) to stderr, in the order in which the
// stages failed.
func (p *Pipeline) FlushDiagnostics() error {
	if p.env.held == nil {
		return nil
	}
	w := p.env.stderr()
	for _, err := range p.env.held.take() {
		if _, wErr := fmt.Fprintln(w, err); wErr != nil {
			return wErr
		}
	}
	return nil
}

// Statuses returns the exit status of each stage, in pipeline order.
// It is only meaningful after `Wait()` has returned.
func (p *Pipeline) Statuses() []int {
	return p.statuses
}

// ExitStatus returns the status of the pipeline as a whole, which is
// the status of its last stage.
func (p *Pipeline) ExitStatus() int {
	if len(p.statuses) == 0 {
		return 0
	}
	return p.statuses[len(p.statuses)-1]
}

// Stats returns counters describing the pipeline's execution.
func (p *Pipeline) Stats() Stats {
	return p.stats
}

// Pgid returns the process group of the pipeline's job, or 0 if job
// control is off or no process has been started.
func (p *Pipeline) Pgid() int {
	if p.env.job == nil {
		return 0
	}
	return p.env.job.pgid
}

// syncWriter serializes writes to a shared writer.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (w *syncWriter) Write(b []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.w.Write(b)
}
