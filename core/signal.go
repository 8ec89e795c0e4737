package core

import (
	"errors"
	"os"
	"os/signal"
	"sync"
)

// ErrSignalBridgeStopped is returned by Wait after Stop, once the pending
// queue is drained.
var ErrSignalBridgeStopped = errors.New("signal bridge is stopped")

// SignalBridge delivers OS signals to kernel tasks. The Go runtime delivers
// signals on its own threads; the bridge queues them and wakes waiting
// tasks through the kernel's cross-thread surface.
type SignalBridge struct {
	kernel *Kernel
	ch     chan os.Signal

	mu      sync.Mutex
	pending []os.Signal
	stopped bool
}

// NewSignalBridge subscribes to the given signals and starts forwarding
// them. Stop must be called to release the subscription.
func NewSignalBridge(kernel *Kernel, signals ...os.Signal) *SignalBridge {
	b := &SignalBridge{
		kernel: kernel,
		ch:     make(chan os.Signal, 8),
	}
	signal.Notify(b.ch, signals...)
	go b.forward()
	return b
}

// forward runs on its own goroutine for the bridge's lifetime.
func (b *SignalBridge) forward() {
	for sig := range b.ch {
		b.mu.Lock()
		b.pending = append(b.pending, sig)
		b.mu.Unlock()
		b.kernel.Unblock(b)
	}
	// Channel closed by Stop; wake waiters so they observe the stop.
	b.kernel.Unblock(b)
}

// Wait suspends the calling task until a signal arrives and returns it.
// Signals are delivered in arrival order. The post-block recheck closes the
// race with a signal arriving between the queue check and the suspension.
func (b *SignalBridge) Wait(tc *TaskContext) (os.Signal, error) {
	for {
		b.mu.Lock()
		if len(b.pending) > 0 {
			sig := b.pending[0]
			b.pending = b.pending[1:]
			b.mu.Unlock()
			return sig, nil
		}
		stopped := b.stopped
		b.mu.Unlock()
		if stopped {
			return nil, ErrSignalBridgeStopped
		}

		err := tc.Block(b, func() {
			b.mu.Lock()
			ready := len(b.pending) > 0 || b.stopped
			b.mu.Unlock()
			if ready {
				b.kernel.Unblock(b)
			}
		})
		if err != nil {
			return nil, err
		}
	}
}

// Stop unsubscribes from the signals and wakes waiting tasks. Pending
// signals already queued can still be drained with Wait.
func (b *SignalBridge) Stop() {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	b.stopped = true
	b.mu.Unlock()

	signal.Stop(b.ch)
	close(b.ch)
}
