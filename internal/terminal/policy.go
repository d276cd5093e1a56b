// Package terminal implements the job-control discipline of an
// interactive shell: which signals the shell disregards, and which
// process group owns the controlling terminal.
package terminal

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// JobControlSignals returns the signals that an interactive shell
// must not be interrupted, stopped or killed by: interrupt, quit,
// terminal stop, continue, background read and background write.
func JobControlSignals() []os.Signal {
	return []os.Signal{
		syscall.SIGINT,
		syscall.SIGQUIT,
		syscall.SIGTSTP,
		syscall.SIGCONT,
		syscall.SIGTTIN,
		syscall.SIGTTOU,
	}
}

// SignalPolicy makes the shell disregard a set of signals while it
// is applied, while the programs that the shell runs get the default
// disposition for them.
//
// The signals are caught (and dropped) rather than ignored. A caught
// signal is reset to its default disposition when a child execs its
// program, whereas an ignored one would stay ignored in the child,
// and a `Ctrl-C` would no longer interrupt the programs that the shell
// runs.
type SignalPolicy struct {
	mu      sync.Mutex
	signals []os.Signal

	// ch receives the caught signals. Nobody reads from it; once its
	// buffer is full, further signals are dropped.
	ch chan os.Signal
}

// NewSignalPolicy returns a policy for `signals`, or for
// `JobControlSignals()` if none are given. It is not applied yet.
func NewSignalPolicy(signals ...os.Signal) *SignalPolicy {
	if len(signals) == 0 {
		signals = JobControlSignals()
	}
	return &SignalPolicy{signals: signals}
}

// Signals returns the signals that the policy covers.
func (p *SignalPolicy) Signals() []os.Signal {
	return append([]os.Signal(nil), p.signals...)
}

// Apply makes the shell disregard the policy's signals. It is
// idempotent.
func (p *SignalPolicy) Apply() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch != nil {
		return
	}
	p.ch = make(chan os.Signal, 1)
	signal.Notify(p.ch, p.signals...)
}

// Release returns the policy's signals to their default disposition.
func (p *SignalPolicy) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch == nil {
		return
	}
	signal.Stop(p.ch)
	signal.Reset(p.signals...)
	p.ch = nil
}

// Active reports whether the policy is applied.
func (p *SignalPolicy) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.ch != nil
}

// ignoring runs `f` with `sig` ignored, then puts back whatever
// disposition the policy prescribes for it. This is needed around
// operations that the kernel would otherwise answer with `sig`, like
// a background process group taking the terminal (SIGTTOU).
func (p *SignalPolicy) ignoring(sig os.Signal, f func() error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	signal.Ignore(sig)
	defer func() {
		if p.ch != nil && p.covers(sig) {
			signal.Notify(p.ch, sig)
		} else {
			signal.Reset(sig)
		}
	}()

	return f()
}

func (p *SignalPolicy) covers(sig os.Signal) bool {
	for _, s := range p.signals {
		if s == sig {
			return true
		}
	}
	return false
}
