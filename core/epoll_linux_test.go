//go:build linux

package core

import (
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

func newTestPipe(t *testing.T) (r, w int) {
	t.Helper()
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		t.Fatalf("pipe2 failed: %v", err)
	}
	t.Cleanup(func() {
		unix.Close(fds[0])
		unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

// TestEpoll_ReadReadiness verifies basic read readiness reporting
// Given: A pipe registered for read readiness
// When: A byte is written to the pipe
// Then: Poll reports the read end readable
func TestEpoll_ReadReadiness(t *testing.T) {
	// Arrange
	poller, err := NewEpoll()
	if err != nil {
		t.Fatalf("NewEpoll failed: %v", err)
	}
	defer poller.Close()
	r, w := newTestPipe(t)
	if err := poller.Register(r, PollRead); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	// No readiness yet.
	readable, writable, err := poller.Poll(0)
	if err != nil || len(readable) != 0 || len(writable) != 0 {
		t.Fatalf("Poll(0) = (%v, %v, %v), want empty", readable, writable, err)
	}

	// Act
	if _, err := unix.Write(w, []byte{1}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	readable, _, err = poller.Poll(time.Second)

	// Assert
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if len(readable) != 1 || readable[0] != r {
		t.Fatalf("readable = %v, want [%d]", readable, r)
	}
}

// TestEpoll_WriteReadiness verifies write readiness on an empty pipe
func TestEpoll_WriteReadiness(t *testing.T) {
	poller, err := NewEpoll()
	if err != nil {
		t.Fatalf("NewEpoll failed: %v", err)
	}
	defer poller.Close()
	_, w := newTestPipe(t)
	if err := poller.Register(w, PollWrite); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	_, writable, err := poller.Poll(time.Second)
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if len(writable) != 1 || writable[0] != w {
		t.Fatalf("writable = %v, want [%d]", writable, w)
	}
}

// TestEpoll_HangupReportsBothWays verifies that peer close folds into both
// readable and writable readiness
func TestEpoll_HangupReportsBothWays(t *testing.T) {
	poller, err := NewEpoll()
	if err != nil {
		t.Fatalf("NewEpoll failed: %v", err)
	}
	defer poller.Close()

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		t.Fatalf("socketpair failed: %v", err)
	}
	defer unix.Close(fds[0])
	if err := poller.Register(fds[0], PollRead); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	unix.Close(fds[1]) // hang up the peer

	readable, writable, err := poller.Poll(time.Second)
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if len(readable) != 1 || len(writable) != 1 {
		t.Fatalf("readiness = (%v, %v), want fd in both", readable, writable)
	}
}

// TestEpoll_Unregister verifies that unregistered fds stop reporting
func TestEpoll_Unregister(t *testing.T) {
	poller, err := NewEpoll()
	if err != nil {
		t.Fatalf("NewEpoll failed: %v", err)
	}
	defer poller.Close()
	r, w := newTestPipe(t)
	if err := poller.Register(r, PollRead); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	poller.Unregister(r)
	poller.Unregister(r) // idempotent

	if _, err := unix.Write(w, []byte{1}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	readable, _, err := poller.Poll(10 * time.Millisecond)
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if len(readable) != 0 {
		t.Fatalf("readable = %v, want empty after Unregister", readable)
	}
}

// TestEpoll_NotifyClose verifies the forced-ready path
// Given: An fd recorded via NotifyClose
// When: Poll is called
// Then: It returns immediately with the fd in both readiness lists
func TestEpoll_NotifyClose(t *testing.T) {
	poller, err := NewEpoll()
	if err != nil {
		t.Fatalf("NewEpoll failed: %v", err)
	}
	defer poller.Close()
	r, _ := newTestPipe(t)
	if err := poller.Register(r, PollRead); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	poller.NotifyClose(r)

	start := time.Now()
	readable, writable, err := poller.Poll(time.Second)
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Fatal("Poll should not have waited for the timeout")
	}
	if len(readable) != 1 || readable[0] != r || len(writable) != 1 {
		t.Fatalf("readiness = (%v, %v), want [%d] in both", readable, writable, r)
	}
}

// TestNudger_WakesPoll verifies the self-pipe doorbell
func TestNudger_WakesPoll(t *testing.T) {
	poller, err := NewEpoll()
	if err != nil {
		t.Fatalf("NewEpoll failed: %v", err)
	}
	defer poller.Close()

	nudger, err := NewNudger(NewNoOpLogger())
	if err != nil {
		t.Fatalf("NewNudger failed: %v", err)
	}
	defer nudger.Close()
	if err := nudger.RegisterTo(poller); err != nil {
		t.Fatalf("RegisterTo failed: %v", err)
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		nudger.Nudge()
	}()

	start := time.Now()
	readable, _, err := poller.Poll(5 * time.Second)
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatal("nudge should have woken the poll promptly")
	}
	if len(readable) != 1 || !nudger.IsNudged(readable[0]) {
		t.Fatalf("readable = %v, want the nudger fd", readable)
	}

	// Drain so the next poll does not wake spuriously.
	nudger.Ack()
	readable, _, err = poller.Poll(0)
	if err != nil || len(readable) != 0 {
		t.Fatalf("Poll after Ack = (%v, %v), want empty", readable, err)
	}
}

// TestNudger_ManyNudgesCoalesce verifies that a full pipe never blocks
// Nudge callers
func TestNudger_ManyNudgesCoalesce(t *testing.T) {
	nudger, err := NewNudger(NewNoOpLogger())
	if err != nil {
		t.Fatalf("NewNudger failed: %v", err)
	}
	defer nudger.Close()

	// Far more writes than the pipe buffer holds; EAGAIN must be ignored.
	for i := 0; i < 100000; i++ {
		nudger.Nudge()
	}
	nudger.Ack()
}
