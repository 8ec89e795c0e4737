package core

import "fmt"

// =============================================================================
// Synchronization primitives built on the generic block/unblock protocol
// =============================================================================

// Lock is a non-reentrant mutex for tasks of one kernel. It has no owner
// check: any task may release a held lock.
type Lock struct {
	kernel *Kernel
	locked bool
}

// NewLock creates a lock bound to kernel.
func NewLock(kernel *Kernel) *Lock {
	return &Lock{kernel: kernel}
}

// Acquire blocks the calling task until the lock is acquired. Competing
// acquirers are woken together on release and race for the lock again, so
// acquisition order is not FIFO.
func (l *Lock) Acquire(tc *TaskContext) error {
	for l.locked {
		if err := tc.Block(l, nil); err != nil {
			return err
		}
	}
	l.locked = true
	return nil
}

// TryAcquire acquires the lock without blocking, reporting success.
func (l *Lock) TryAcquire() bool {
	if l.locked {
		return false
	}
	l.locked = true
	return true
}

// Release releases the lock and wakes all blocked acquirers. Releasing an
// unheld lock is a programming error.
func (l *Lock) Release() {
	if !l.locked {
		panic("release of unheld lock")
	}
	l.locked = false
	l.kernel.Unblock(l)
}

// IsLocked reports whether the lock is currently held.
func (l *Lock) IsLocked() bool {
	return l.locked
}

// Condition is a condition variable associated with a Lock. The lock must be
// held around Wait, Notify and NotifyAll.
//
// Each waiter parks on a private pre-locked Lock, so Notify wakes exactly the
// requested number of waiters in FIFO order even though Lock itself wakes
// competitively.
type Condition struct {
	kernel  *Kernel
	lock    *Lock
	waiters []*Lock
}

// NewCondition creates a condition using lock; a nil lock allocates a fresh
// one.
func NewCondition(kernel *Kernel, lock *Lock) *Condition {
	if lock == nil {
		lock = NewLock(kernel)
	}
	return &Condition{kernel: kernel, lock: lock}
}

// Lock returns the underlying lock.
func (c *Condition) Lock() *Lock {
	return c.lock
}

// Acquire acquires the underlying lock.
func (c *Condition) Acquire(tc *TaskContext) error {
	return c.lock.Acquire(tc)
}

// Release releases the underlying lock.
func (c *Condition) Release() {
	c.lock.Release()
}

// Wait atomically releases the lock and suspends until notified, then
// reacquires the lock before returning. The lock is reacquired even when the
// wait fails with an injected error.
func (c *Condition) Wait(tc *TaskContext) error {
	if !c.lock.locked {
		panic("condition wait without holding the lock")
	}

	waiter := NewLock(c.kernel)
	if !waiter.TryAcquire() {
		panic("fresh waiter lock was already held")
	}
	c.waiters = append(c.waiters, waiter)

	c.lock.Release()
	waitErr := waiter.Acquire(tc)
	if waitErr != nil {
		c.discard(waiter)
	}

	// Reacquire regardless of how the wait ended; an error here (a second
	// disruption) supersedes the original one.
	if err := c.reacquire(tc); err != nil {
		return err
	}
	return waitErr
}

// discard removes a disrupted waiter from the queue. When the waiter is
// already gone, a notification raced with the disruption and landed on a
// waiter that no longer listens; it is handed to the next waiter in line.
func (c *Condition) discard(waiter *Lock) {
	for i, w := range c.waiters {
		if w == waiter {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			return
		}
	}
	if len(c.waiters) > 0 {
		next := c.waiters[0]
		c.waiters = c.waiters[1:]
		next.Release()
	}
}

// reacquire takes the outer lock back, surviving one pending disruption per
// attempt at most.
func (c *Condition) reacquire(tc *TaskContext) error {
	return c.lock.Acquire(tc)
}

// Notify wakes up to n waiters in FIFO order. The lock must be held.
func (c *Condition) Notify(n int) {
	if !c.lock.locked {
		panic("condition notify without holding the lock")
	}
	for n > 0 && len(c.waiters) > 0 {
		waiter := c.waiters[0]
		c.waiters = c.waiters[1:]
		waiter.Release()
		n--
	}
}

// NotifyAll wakes every waiter. The lock must be held.
func (c *Condition) NotifyAll() {
	c.Notify(len(c.waiters))
}

// Event is a one-way boolean flag tasks can wait on.
type Event struct {
	kernel *Kernel
	flag   bool
}

// NewEvent creates an unset event.
func NewEvent(kernel *Kernel) *Event {
	return &Event{kernel: kernel}
}

// IsSet reports whether the event is set.
func (e *Event) IsSet() bool {
	return e.flag
}

// Set sets the flag and wakes all waiters.
func (e *Event) Set() {
	if e.flag {
		return
	}
	e.flag = true
	e.kernel.Unblock(e)
}

// Clear resets the flag. Tasks that were already woken by Set stay woken.
func (e *Event) Clear() {
	e.flag = false
}

// Wait suspends until the event is set. Returns immediately when already
// set.
func (e *Event) Wait(tc *TaskContext) error {
	for !e.flag {
		if err := tc.Block(e, nil); err != nil {
			return err
		}
	}
	return nil
}

// Gate wakes all current waiters on every Unblock call, with no memory: a
// waiter arriving after an Unblock waits for the next one. It is the
// building block for condition-style polling loops such as the task
// completion queue.
type Gate struct {
	kernel *Kernel
}

// NewGate creates a gate bound to kernel.
func NewGate(kernel *Kernel) *Gate {
	return &Gate{kernel: kernel}
}

// Unblock wakes every task currently waiting on the gate. Safe to call from
// any thread.
func (g *Gate) Unblock() {
	g.kernel.Unblock(g)
}

// Wait suspends until the next Unblock call.
func (g *Gate) Wait(tc *TaskContext) error {
	return tc.Block(g, nil)
}

// WaitFor repeatedly waits on the gate until predicate reports true. The
// predicate is evaluated before the first wait.
func (g *Gate) WaitFor(tc *TaskContext, predicate func() bool) error {
	for !predicate() {
		if err := g.Wait(tc); err != nil {
			return fmt.Errorf("gate wait: %w", err)
		}
	}
	return nil
}
