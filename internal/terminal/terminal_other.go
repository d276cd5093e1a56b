//go:build !linux && !darwin && !dragonfly && !freebsd && !netbsd && !openbsd
// +build !linux,!darwin,!dragonfly,!freebsd,!netbsd,!openbsd

package terminal

import "errors"

// Terminal is not supported on this platform.
type Terminal struct{}

// Acquire always fails on this platform.
func Acquire(fd int, policy *SignalPolicy) (*Terminal, error) {
	return nil, errors.New("job control is not supported on this platform")
}

func (t *Terminal) Fd() int        { return -1 }
func (t *Terminal) Pgid() int      { return 0 }
func (t *Terminal) Reclaim() error { return nil }
func (t *Terminal) Restore() error { return nil }
