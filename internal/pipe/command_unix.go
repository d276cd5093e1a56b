//go:build !windows
// +build !windows

package pipe

import (
	"syscall"
	"time"
)

// configureProcessGroup arranges for the command to be run as part of
// `job`, if it is not nil. The first process of a job starts a new
// process group, which is put in the terminal's foreground by the
// child itself before it execs; later processes join that group.
// Without a job, the command stays in the shell's process group.
func (s *commandStage) configureProcessGroup(job *jobGroup) {
	if job == nil {
		return
	}

	if s.cmd.SysProcAttr == nil {
		s.cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	attr := s.cmd.SysProcAttr
	attr.Setpgid = true
	if job.pgid == 0 {
		attr.Pgid = 0
		attr.Foreground = true
		attr.Ctty = job.ctty
	} else {
		// The group leader can't have been reaped yet, since nothing
		// is waited for until every stage has been started, so the
		// group still exists.
		attr.Pgid = job.pgid
	}
}

// signal sends `sig` to the command's process group, if it has one of
// its own, or else to the command's process.
func (s *commandStage) signal(sig syscall.Signal) {
	if s.pgid != 0 {
		_ = syscall.Kill(-s.pgid, sig)
		return
	}
	_ = s.cmd.Process.Signal(sig)
}

// kill is called to kill the process if the context expires. `err` is
// the corresponding value of `Context.Err()`.
func (s *commandStage) kill(err error) {
	// Signalling a process group is racy: the group might have gone
	// away by the time the signal is sent. That is harmless, since
	// the signal then just fails.
	select {
	case <-s.done:
		// Process has ended; no need to kill it again.
		return
	default:
	}

	// Record the `ctx.Err()`, which will be used as the error result
	// for this stage.
	s.ctxErr.Store(err)

	// First try to kill using a relatively gentle signal so that
	// the processes have a chance to clean up after themselves:
	s.signal(syscall.SIGTERM)

	// Well-behaved processes should commit suicide after the above,
	// but if they don't exit within 2s, murder the whole lot of them:
	go func() {
		// Use an explicit `time.Timer` rather than `time.After()` so
		// that we can stop it (freeing resources) promptly if the
		// command exits before the timer triggers.
		timer := time.NewTimer(2 * time.Second)
		defer timer.Stop()

		select {
		case <-s.done:
			// Process has ended; no need to kill it again.
		case <-timer.C:
			s.signal(syscall.SIGKILL)
		}
	}()
}
