package core

import "time"

// =============================================================================
// Poller: OS readiness-notification abstraction
// =============================================================================

// Poller multiplexes readiness notifications for file descriptors. The
// kernel owns exactly one Poller; alternate backends (kqueue, IOCP) can be
// provided without changing kernel logic.
//
// Readiness is advisory: a Poller may report spurious or extra descriptors,
// for instance when error or hangup conditions are folded into read/write
// readiness. Callers must retry the operation rather than assume it will not
// block. Tightening this contract could deadlock callers that rely on a
// spurious wake to notice EOF.
type Poller interface {
	// Register starts watching fd for event. Registering an fd/event pair
	// that is already watched is a no-op.
	Register(fd int, event PollEvent) error

	// Unregister stops watching fd for all events. Unregistering an fd
	// that is already gone is benign (close races).
	Unregister(fd int)

	// NotifyClose records fd as forcibly ready so the next Poll reports it
	// immediately. Unlike every other method it may be called from any
	// thread; it handles the race where one thread closes a socket while
	// another is mid-poll on it.
	NotifyClose(fd int)

	// Poll blocks up to timeout (forever when timeout is negative,
	// not at all when zero) and returns the readable and writable
	// descriptors.
	Poll(timeout time.Duration) (readable, writable []int, err error)

	Close() error
}
