package core

import (
	"fmt"
	"sync"
)

// =============================================================================
// Future: thread-safe promise bridging foreign threads and kernel tasks
// =============================================================================

// Future carries one result produced on any goroutine to consumers on any
// goroutine, including kernel tasks via Await. A future resolves exactly
// once.
type Future struct {
	mu        sync.Mutex
	done      bool
	value     any
	err       error
	callbacks []func(*Future)
}

// NewFuture creates an unresolved future.
func NewFuture() *Future {
	return &Future{}
}

// SetResult resolves the future with value. Resolving twice is a
// programming error.
func (f *Future) SetResult(value any) {
	f.resolve(value, nil)
}

// SetError resolves the future with err.
func (f *Future) SetError(err error) {
	f.resolve(nil, err)
}

func (f *Future) resolve(value any, err error) {
	f.mu.Lock()
	if f.done {
		f.mu.Unlock()
		panic("future resolved twice")
	}
	f.done = true
	f.value = value
	f.err = err
	callbacks := f.callbacks
	f.callbacks = nil
	f.mu.Unlock()

	// Fire outside the lock, on the resolving goroutine.
	for _, callback := range callbacks {
		callback(f)
	}
}

// IsCompleted reports whether the future has resolved.
func (f *Future) IsCompleted() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.done
}

// ResultNonblocking returns the resolved value and error; it panics if the
// future is still pending.
func (f *Future) ResultNonblocking() (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.done {
		panic("future has not resolved")
	}
	return f.value, f.err
}

// AddCallback registers fn to run once the future resolves. If already
// resolved, fn runs immediately on the calling goroutine; otherwise it runs
// on the resolving goroutine.
func (f *Future) AddCallback(fn func(*Future)) {
	f.mu.Lock()
	if f.done {
		f.mu.Unlock()
		fn(f)
		return
	}
	f.callbacks = append(f.callbacks, fn)
	f.mu.Unlock()
}

// Await suspends the calling task until the future resolves, then returns
// its value and error. The wakeup callback is installed only after the task
// is registered as blocked, so a resolution racing with the suspension is
// never lost.
func (f *Future) Await(tc *TaskContext) (any, error) {
	kernel := tc.Kernel()
	for {
		f.mu.Lock()
		if f.done {
			value, err := f.value, f.err
			f.mu.Unlock()
			return value, err
		}
		f.mu.Unlock()

		blockErr := tc.Block(f, func() {
			f.AddCallback(func(*Future) { kernel.Unblock(f) })
		})
		if blockErr != nil {
			return nil, fmt.Errorf("await future: %w", blockErr)
		}
	}
}

// CompleteFromTask resolves the future from task's completion. Must be
// called on the kernel goroutine (callback registration is not
// thread-safe).
func (f *Future) CompleteFromTask(task *Task) {
	task.AddCallback(func(t *Task) {
		value, err := t.ResultNonblocking()
		if err != nil {
			f.SetError(err)
			return
		}
		f.SetResult(value)
	})
}
