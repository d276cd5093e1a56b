package shell

import (
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/afero"

	"github.com/sunnytower/psh/internal/config"
	"github.com/sunnytower/psh/internal/terminal"
)

// Session is the state that the shell shares with everything it
// runs: its streams, whether it is interactive, and, if it does job
// control, the terminal and the signal policy. It is built once at
// startup.
type Session struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// Interactive is true if commands are read from a terminal. The
	// prompt is only shown in that case.
	Interactive bool

	// Terminal is set if the shell does job control.
	Terminal *terminal.Terminal

	// Policy is set if the shell disregards job-control signals.
	Policy *terminal.SignalPolicy

	Config *config.Config
	Fs     afero.Fs
	Logger *slog.Logger
}

// Open sets up a session on the given standard streams. If `stdin`
// is a terminal, the shell becomes interactive: it makes sure that it
// owns the terminal (if job control is configured) and starts
// disregarding job-control signals. `Close()` undoes that.
func Open(cfg *config.Config, stdin, stdout, stderr *os.File, logger *slog.Logger) *Session {
	s := &Session{
		Stdin:  stdin,
		Stdout: stdout,
		Stderr: stderr,
		Config: cfg,
		Fs:     afero.NewOsFs(),
		Logger: logger,
	}

	if !isatty.IsTerminal(stdin.Fd()) {
		return s
	}
	s.Interactive = true

	policy := terminal.NewSignalPolicy()
	if cfg.JobControl {
		term, err := terminal.Acquire(int(stdin.Fd()), policy)
		if err != nil {
			logger.Warn("job control is off", "err", err)
		} else {
			s.Terminal = term
			logger.Debug("acquired terminal", "fd", term.Fd(), "pgid", term.Pgid())
		}
	}
	policy.Apply()
	s.Policy = policy

	return s
}

// Close restores the signal dispositions and the terminal modes that
// were in effect before `Open()`.
func (s *Session) Close() error {
	if s.Policy != nil {
		s.Policy.Release()
	}
	if s.Terminal != nil {
		return s.Terminal.Restore()
	}
	return nil
}

func (s *Session) fs() afero.Fs {
	if s.Fs == nil {
		return afero.NewOsFs()
	}
	return s.Fs
}

func (s *Session) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.Logger
}

func (s *Session) config() *config.Config {
	if s.Config == nil {
		return config.Default()
	}
	return s.Config
}
