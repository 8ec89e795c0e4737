package core

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// =============================================================================
// Nudger: a cross-thread doorbell registered with the Poller
// =============================================================================

// Nudger is a self-pipe that other OS threads write to in order to force an
// in-progress Poll call to return early. Only Nudge is cross-thread safe.
type Nudger struct {
	r, w   int
	logger Logger
}

// NewNudger creates the self-pipe with both ends non-blocking.
func NewNudger(logger Logger) (*Nudger, error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return nil, fmt.Errorf("pipe2: %w", err)
	}
	if logger == nil {
		logger = NewNoOpLogger()
	}
	return &Nudger{r: fds[0], w: fds[1], logger: logger}, nil
}

// RegisterTo watches the read end with the poller. The kernel skips
// unregistering it on close since the Nudger is closed with the kernel.
func (n *Nudger) RegisterTo(poller Poller) error {
	return poller.Register(n.r, PollRead)
}

// Nudge wakes a blocked Poll call. Safe to call from any thread. A full
// pipe already guarantees a pending wakeup, so EAGAIN is ignored.
func (n *Nudger) Nudge() {
	_, err := unix.Write(n.w, []byte{0})
	switch err {
	case nil, unix.EAGAIN:
	case unix.EBADF:
		// The kernel closed the nudger but another thread still tries to
		// nudge it; this usually happens during program exit.
		n.logger.Warn("nudger was closed")
	default:
		panic(fmt.Sprintf("nudge: %v", err))
	}
}

// IsNudged reports whether fd is the doorbell's own descriptor, so the
// kernel does not mistake it for application I/O.
func (n *Nudger) IsNudged(fd int) bool {
	return fd == n.r
}

// Ack drains pending nudges without blocking.
func (n *Nudger) Ack() {
	buf := make([]byte, 4096)
	for {
		count, err := unix.Read(n.r, buf)
		if err != nil || count == 0 {
			return
		}
	}
}

// Close releases both pipe ends.
func (n *Nudger) Close() error {
	err1 := unix.Close(n.r)
	err2 := unix.Close(n.w)
	if err1 != nil {
		return err1
	}
	return err2
}
