//go:build linux

package core

import (
	"fmt"
	"sync"
	"time"

	"fortio.org/safecast"
	"golang.org/x/sys/unix"
)

// =============================================================================
// Epoll: the Linux Poller backend
// =============================================================================

const epollMaxEvents = 128

// Epoll is a level-triggered epoll-backed Poller. Error and hangup
// conditions (EPOLLERR, EPOLLHUP, EPOLLRDHUP) are folded into both read and
// write readiness so that blocked callers wake up and observe EOF or the
// error from the operation itself.
type Epoll struct {
	epfd int

	// fd -> currently watched epoll event mask. Owner-thread only.
	registered map[int]uint32

	// Descriptors force-marked ready by NotifyClose; guarded by mu because
	// NotifyClose may run on any thread.
	mu     sync.Mutex
	closed []int

	events []unix.EpollEvent
}

var _ Poller = (*Epoll)(nil)

// NewEpoll creates an epoll instance.
func NewEpoll() (*Epoll, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll_create1: %w", err)
	}
	return &Epoll{
		epfd:       epfd,
		registered: make(map[int]uint32),
		events:     make([]unix.EpollEvent, epollMaxEvents),
	}, nil
}

func eventMask(event PollEvent) uint32 {
	if event == PollWrite {
		return unix.EPOLLOUT
	}
	return unix.EPOLLIN | unix.EPOLLRDHUP
}

// Register starts watching fd for event, merging with any existing
// registration. Watching an already-watched fd/event pair is a no-op.
func (p *Epoll) Register(fd int, event PollEvent) error {
	mask := eventMask(event)
	old, ok := p.registered[fd]
	if ok && old&mask == mask {
		return nil
	}

	next := old | mask
	ev := unix.EpollEvent{
		Events: next,
		Fd:     int32(fd), //nolint:gosec // fds fit in int32
	}
	op := unix.EPOLL_CTL_ADD
	if ok {
		op = unix.EPOLL_CTL_MOD
	}
	if err := unix.EpollCtl(p.epfd, op, fd, &ev); err != nil {
		return fmt.Errorf("epoll_ctl fd=%d: %w", fd, err)
	}
	p.registered[fd] = next
	return nil
}

// Unregister stops watching fd. EBADF/ENOENT are benign: the fd may have
// been closed underneath us.
func (p *Epoll) Unregister(fd int) {
	if _, ok := p.registered[fd]; !ok {
		return
	}
	delete(p.registered, fd)
	err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	if err != nil && err != unix.EBADF && err != unix.ENOENT {
		// Nothing actionable; the registration is gone either way.
		_ = err
	}
}

// NotifyClose records fd as forcibly ready. Safe to call from any thread.
func (p *Epoll) NotifyClose(fd int) {
	p.mu.Lock()
	p.closed = append(p.closed, fd)
	p.mu.Unlock()
}

// Poll waits for readiness up to timeout. Descriptors recorded by
// NotifyClose are reported as both readable and writable without waiting.
func (p *Epoll) Poll(timeout time.Duration) (readable, writable []int, err error) {
	p.mu.Lock()
	closed := p.closed
	p.closed = nil
	p.mu.Unlock()

	if len(closed) > 0 {
		for _, fd := range closed {
			p.Unregister(fd)
			readable = append(readable, fd)
			writable = append(writable, fd)
		}
		return readable, writable, nil
	}

	msec := -1
	if timeout >= 0 {
		ms64 := int64(timeout / time.Millisecond)
		if timeout%time.Millisecond > 0 {
			ms64++ // round up so we never wake before the deadline
		}
		ms, convErr := safecast.Conv[int](ms64)
		if convErr != nil {
			ms = int(^uint(0) >> 1)
		}
		msec = ms
	}

	n, err := unix.EpollWait(p.epfd, p.events, msec)
	if err != nil {
		if err == unix.EINTR {
			// Spurious wake; the kernel loop re-derives its timeout.
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("epoll_wait: %w", err)
	}

	for i := 0; i < n; i++ {
		ev := p.events[i]
		fd := int(ev.Fd)
		abnormal := ev.Events&(unix.EPOLLERR|unix.EPOLLHUP|unix.EPOLLRDHUP) != 0
		if abnormal || ev.Events&unix.EPOLLIN != 0 {
			readable = append(readable, fd)
		}
		if abnormal || ev.Events&unix.EPOLLOUT != 0 {
			writable = append(writable, fd)
		}
	}
	return readable, writable, nil
}

// Close releases the epoll instance.
func (p *Epoll) Close() error {
	return unix.Close(p.epfd)
}

// newDefaultPoller picks the platform poller backend.
func newDefaultPoller() (Poller, error) {
	return NewEpoll()
}
