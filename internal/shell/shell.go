// Package shell reads command lines and runs them as pipelines.
package shell

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/sunnytower/psh/internal/pipe"
	"github.com/sunnytower/psh/internal/syntax"
)

// ErrExit is returned by `RunLine()` when the line asked the shell to
// exit.
var ErrExit = errors.New("exit requested")

// Shell runs command lines within a `Session`.
type Shell struct {
	session  *Session
	builtins []builtin

	// lineNum is the number shown in the prompt.
	lineNum int

	// dir is the logical working directory, as set by `cd`, or "" if
	// `cd` hasn't been used yet.
	dir string

	// exiting is set by the `exit` builtin.
	exiting bool

	promptColor *color.Color
	errorColor  *color.Color
}

// New returns a shell that runs in `session`.
func New(session *Session) *Shell {
	sh := &Shell{
		session:     session,
		builtins:    builtins(),
		promptColor: color.New(color.FgGreen, color.Bold),
		errorColor:  color.New(color.FgRed),
	}

	if session.config().Color && session.Interactive {
		sh.promptColor.EnableColor()
		sh.errorColor.EnableColor()
	} else {
		sh.promptColor.DisableColor()
		sh.errorColor.DisableColor()
	}

	return sh
}

// diagnose writes a message from the shell itself to `w`.
func (sh *Shell) diagnose(w io.Writer, format string, args ...interface{}) {
	sh.errorColor.Fprintf(w, format, args...)
	fmt.Fprintln(w)
}

func (sh *Shell) prompt() {
	if !sh.session.Interactive {
		return
	}

	prompt := sh.session.config().Prompt
	if strings.Contains(prompt, "%d") {
		prompt = fmt.Sprintf(prompt, sh.lineNum)
	}
	sh.promptColor.Fprint(sh.session.Stdout, prompt)
}

// Run reads lines from `r` and runs each of them, until the input
// ends or a line runs `exit`. Failing commands don't stop it. It
// returns the shell's exit status, which is always 0.
func (sh *Shell) Run(ctx context.Context, r io.Reader) int {
	logger := sh.session.logger()

	scanner := bufio.NewScanner(r)
	sh.prompt()
	for scanner.Scan() {
		_, err := sh.RunLine(ctx, scanner.Text())
		if errors.Is(err, ErrExit) {
			return 0
		}
		if err := ctx.Err(); err != nil {
			logger.Warn("stopped reading commands", "err", err)
			return 0
		}

		sh.lineNum++
		sh.prompt()
	}

	if err := scanner.Err(); err != nil {
		sh.diagnose(sh.session.Stderr, "psh: reading input: %v", err)
	}
	return 0
}

// RunLine runs the pipeline on one command line and returns its
// status, which is the status of its last stage. The error is only
// non-nil if the line ran `exit` (`ErrExit`); everything else is
// reported on the session's stderr.
func (sh *Shell) RunLine(ctx context.Context, line string) (int, error) {
	words, err := syntax.Tokenize(line)
	if err != nil {
		sh.diagnose(sh.session.Stderr, "psh: %v", err)
		return pipe.StatusSyntaxError, nil
	}
	if len(words) == 0 {
		return 0, nil
	}

	p := pipe.New(sh.pipelineOptions()...)

	stages := syntax.Split(words)
	for _, stage := range stages {
		argv, redirs := syntax.ParseRedirections(stage.Args(words))
		if len(stages) == 1 && len(argv) > 0 {
			if b, ok := sh.lookupBuiltin(argv[0]); ok {
				p.Add(sh.builtinStage(b, argv, redirs))
				continue
			}
		}
		p.Add(pipe.Program(argv, redirs...))
	}

	status := sh.run(ctx, p)
	if sh.exiting {
		return status, ErrExit
	}
	return status, nil
}

func (sh *Shell) pipelineOptions() []pipe.Option {
	s := sh.session
	options := []pipe.Option{
		pipe.WithStdin(s.Stdin),
		pipe.WithStdout(s.Stdout),
		pipe.WithStderr(s.Stderr),
		pipe.WithFs(s.fs()),
		pipe.WithLogger(s.logger()),
	}
	if sh.dir != "" {
		options = append(options, pipe.WithDir(sh.dir))
	}
	if s.Terminal != nil {
		options = append(options, pipe.WithJobControl(s.Terminal.Fd()))
	}
	return options
}

// run runs `p` to completion and returns its status. If the job took
// the terminal, the shell takes it back afterwards.
func (sh *Shell) run(ctx context.Context, p *pipe.Pipeline) int {
	logger := sh.session.logger()

	startErr := p.Start(ctx)
	err := startErr
	if startErr == nil {
		err = p.Wait()
	}

	if t := sh.session.Terminal; t != nil && p.Pgid() != 0 {
		if rErr := t.Reclaim(); rErr != nil {
			logger.Error("reclaiming the terminal", "err", rErr)
		}
	}

	// Only now that the terminal is the shell's again:
	if fErr := p.FlushDiagnostics(); fErr != nil {
		logger.Warn("writing diagnostics", "err", fErr)
	}
	if startErr != nil {
		// Nothing of the pipeline is left running, but it couldn't
		// be set up as a whole.
		sh.diagnose(sh.session.Stderr, "psh: %v", startErr)
	}

	stats := p.Stats()
	logger.Debug(
		"pipeline finished",
		"stages", stats.Stages, "processes", stats.Processes, "pipes", stats.Pipes,
		"statuses", p.Statuses(), "err", err,
	)

	var launchErr *pipe.LaunchError
	if errors.As(err, &launchErr) {
		return 1
	}
	return p.ExitStatus()
}

// builtinStage returns a stage that runs builtin `b` in the shell
// process, with `redirs` applied.
func (sh *Shell) builtinStage(b builtin, argv []string, redirs []syntax.Redirection) pipe.Stage {
	return pipe.Function(
		b.name,
		func(_ context.Context, env pipe.Env, _ io.Reader, stdout io.Writer) error {
			status := b.fn(sh, builtinIO{stdout: stdout, stderr: env.Stderr}, argv)
			if status != 0 {
				return pipe.ExitCode(status)
			}
			return nil
		},
		redirs...,
	)
}
