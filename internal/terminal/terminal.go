//go:build linux || darwin || dragonfly || freebsd || netbsd || openbsd
// +build linux darwin dragonfly freebsd netbsd openbsd

package terminal

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// Terminal is the controlling terminal of an interactive shell,
// together with the shell's process group and the terminal modes
// that were in effect when the shell took it over.
type Terminal struct {
	fd     int
	pgid   int
	saved  *unix.Termios
	policy *SignalPolicy
}

// Acquire takes control of the terminal open on `fd` for the calling
// process. If the process is in a background process group, it stops
// itself until it is brought to the foreground. It then moves into a
// process group of its own, makes that the terminal's foreground
// group and records the terminal modes.
//
// `Acquire` must be called before `policy` is applied, since the
// shell has to be stoppable while it waits for the foreground.
// `policy` is used to hand the terminal back and forth later.
func Acquire(fd int, policy *SignalPolicy) (*Terminal, error) {
	if policy == nil {
		policy = NewSignalPolicy()
	}

	for {
		owner, err := unix.IoctlGetInt(fd, unix.TIOCGPGRP)
		if err != nil {
			return nil, fmt.Errorf("getting foreground process group: %w", err)
		}
		pgrp := unix.Getpgrp()
		if owner == pgrp {
			break
		}
		// This stops us until we get continued in the foreground:
		if err := unix.Kill(-pgrp, unix.SIGTTIN); err != nil {
			return nil, fmt.Errorf("waiting for the foreground: %w", err)
		}
	}

	pid := unix.Getpid()
	if err := unix.Setpgid(pid, pid); err != nil && !errors.Is(err, unix.EPERM) {
		// EPERM means that we are a session leader, which is already
		// the leader of its process group.
		return nil, fmt.Errorf("creating process group: %w", err)
	}

	t := &Terminal{
		fd:     fd,
		pgid:   unix.Getpgrp(),
		policy: policy,
	}
	if err := t.takeForeground(); err != nil {
		return nil, err
	}

	saved, err := unix.IoctlGetTermios(fd, ioctlReadTermios)
	if err != nil {
		return nil, fmt.Errorf("reading terminal modes: %w", err)
	}
	t.saved = saved

	return t, nil
}

// Fd returns the descriptor of the terminal.
func (t *Terminal) Fd() int {
	return t.fd
}

// Pgid returns the shell's process group.
func (t *Terminal) Pgid() int {
	return t.pgid
}

// takeForeground makes the shell's process group the foreground
// group of the terminal. It is done with SIGTTOU ignored, since the
// shell might be in the background when it asks.
func (t *Terminal) takeForeground() error {
	err := t.policy.ignoring(unix.SIGTTOU, func() error {
		return unix.IoctlSetPointerInt(t.fd, unix.TIOCSPGRP, t.pgid)
	})
	if err != nil {
		return fmt.Errorf("taking the terminal: %w", err)
	}
	return nil
}

// Reclaim gives the terminal back to the shell after a foreground
// job has finished, and restores the terminal modes that the job
// might have changed.
func (t *Terminal) Reclaim() error {
	if err := t.takeForeground(); err != nil {
		return err
	}
	return t.Restore()
}

// Restore sets the terminal modes that were recorded by `Acquire()`.
func (t *Terminal) Restore() error {
	if t.saved == nil {
		return nil
	}
	if err := unix.IoctlSetTermios(t.fd, ioctlWriteTermios, t.saved); err != nil {
		return fmt.Errorf("restoring terminal modes: %w", err)
	}
	return nil
}
