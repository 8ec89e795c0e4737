package core

import (
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/petermattis/goid"
)

// =============================================================================
// Task: one unit of sequential computation multiplexed onto the kernel
// =============================================================================

// TaskBody is the computation wrapped by a Task. It runs cooperatively: it
// only gives up control at the suspension points offered by the TaskContext.
type TaskBody func(tc *TaskContext) (any, error)

// resumption is what the kernel hands back to a suspended task body: exactly
// one of a value or an injected error.
type resumption struct {
	value any
	err   error
}

// Task wraps one TaskBody and drives it forward one suspension-step at a
// time. A Task is created by Kernel.Spawn and mutated only by the kernel's
// scheduling loop (via tick) and by callback registration.
//
// The body runs on its own goroutine, but strictly one at a time: the kernel
// blocks inside tick until the body either yields a Trap or finishes, so task
// execution never interleaves except at suspension points.
type Task struct {
	kernel *Kernel
	name   string
	body   TaskBody

	// Channel handoff between the kernel goroutine and the body goroutine.
	// yieldCh is closed by the body goroutine when the body returns.
	resumeCh chan resumption
	yieldCh  chan *Trap

	started   bool
	completed bool
	result    any
	exc       error
	observed  bool

	callbacks []func(*Task)

	numTicks  int
	spawnedAt time.Time

	// Goroutine id of the body, recorded when it starts; lets the kernel
	// accept owner-surface calls made from inside the running task body.
	gid int64
}

func newTask(kernel *Kernel, name string, body TaskBody) *Task {
	t := &Task{
		kernel:    kernel,
		name:      name,
		body:      body,
		resumeCh:  make(chan resumption),
		yieldCh:   make(chan *Trap),
		spawnedAt: time.Now(),
	}
	logger := kernel.logger
	runtime.SetFinalizer(t, func(t *Task) {
		// Best-effort leak detection: a task whose completion nobody ever
		// looked at is usually a dropped error.
		if t.completed && !t.observed {
			logger.Warn("task garbage-collected unjoined",
				F("task", t.name), F("err", t.exc))
		}
	})
	return t
}

// Name returns the task's name.
func (t *Task) Name() string {
	return t.name
}

// IsCompleted reports whether the task has finished, normally or not.
func (t *Task) IsCompleted() bool {
	return t.completed
}

// ResultNonblocking returns the task's result and completion error.
// It panics if the task has not completed yet.
func (t *Task) ResultNonblocking() (any, error) {
	if !t.completed {
		panic(fmt.Sprintf("task %q has not completed", t.name))
	}
	t.observed = true
	return t.result, t.exc
}

// ExceptionNonblocking returns the task's completion error (nil on normal
// completion). It panics if the task has not completed yet.
func (t *Task) ExceptionNonblocking() error {
	if !t.completed {
		panic(fmt.Sprintf("task %q has not completed", t.name))
	}
	t.observed = true
	return t.exc
}

// AddCallback registers a completion callback. Callbacks fire exactly once,
// in registration order, on the kernel goroutine. If the task has already
// completed the callback fires immediately.
func (t *Task) AddCallback(callback func(*Task)) {
	if t.completed {
		callback(t)
		return
	}
	t.callbacks = append(t.callbacks, callback)
}

// NumTicks returns how many times the kernel has resumed this task.
func (t *Task) NumTicks() int {
	return t.numTicks
}

// tick resumes the task with exactly one of a value or an injected error and
// runs it until it suspends again or completes.
//
// It returns the Trap the body suspended on, or nil if the task completed;
// on completion the task's callbacks have already run. Calling tick on a
// completed task is a programming error.
func (t *Task) tick(value any, err error) *Trap {
	if t.completed {
		panic(fmt.Sprintf("tick called on completed task %q", t.name))
	}
	t.numTicks++
	if !t.started {
		t.started = true
		go t.run()
	}

	t.resumeCh <- resumption{value: value, err: err}
	trap, ok := <-t.yieldCh
	if ok {
		return trap
	}

	// The body returned; run set result/exc before closing yieldCh.
	t.complete()
	return nil
}

// complete flips the task to its terminal state and fires callbacks. Runs on
// the kernel goroutine.
func (t *Task) complete() {
	t.completed = true
	callbacks := t.callbacks
	t.callbacks = nil
	for _, callback := range callbacks {
		callback(t)
	}
}

// run executes the body on its own goroutine. It waits for the first
// resumption before touching the body so that a task disrupted before ever
// running still completes with the injected error.
func (t *Task) run() {
	t.gid = goid.Get()

	var result any
	var err error
	defer func() {
		if rec := recover(); rec != nil {
			if _, ok := rec.(cancellationUnwind); ok {
				result, err = nil, ErrCancelled
			} else {
				result, err = nil, &TaskPanicError{Value: rec, Stack: debug.Stack()}
			}
		}
		if err != nil {
			result = nil
		}
		t.result, t.exc = result, err
		close(t.yieldCh)
	}()

	first := <-t.resumeCh
	if first.err != nil {
		err = first.err
		if errors.Is(err, ErrTaskCancellation) {
			err = ErrCancelled
		}
		return
	}

	result, err = t.body(&TaskContext{task: t})
	if err != nil && errors.Is(err, ErrTaskCancellation) {
		err = ErrCancelled
	}
}

// abort cancels the task from outside the scheduling loop (kernel close
// path). The body is resumed with ErrTaskCancellation until it unwinds.
func (t *Task) abort() {
	if t.completed {
		return
	}
	if !t.started {
		t.started = true
		go t.run()
	}
	for {
		t.resumeCh <- resumption{err: ErrTaskCancellation}
		_, ok := <-t.yieldCh
		if !ok {
			t.complete()
			return
		}
		// The body trapped again while unwinding (e.g. from deferred
		// cleanup); keep cancelling.
	}
}

// =============================================================================
// TaskContext: the trap vocabulary available to a task body
// =============================================================================

// TaskContext is handed to a TaskBody and is the only way for the body to
// request suspension. It is owned by the body goroutine and must not be
// shared with other goroutines.
type TaskContext struct {
	task *Task
}

// Task returns the task this context belongs to.
func (tc *TaskContext) Task() *Task {
	return tc.task
}

// Kernel returns the kernel scheduling this task.
func (tc *TaskContext) Kernel() *Kernel {
	return tc.task.kernel
}

// trap yields tr to the kernel and blocks until the kernel resumes the task.
// An injected ErrTaskCancellation unwinds the body via panic; any other
// injected error is returned so the body may handle it.
func (tc *TaskContext) trap(tr *Trap) (any, error) {
	t := tc.task
	t.yieldCh <- tr
	r := <-t.resumeCh
	if r.err != nil && errors.Is(r.err, ErrTaskCancellation) {
		panic(cancellationUnwind{err: r.err})
	}
	return r.value, r.err
}

// Block suspends until Kernel.Unblock(source) is called. postBlock, if not
// nil, runs on the kernel goroutine right after the task has been registered
// as blocked; adapters use it to install wakeup callbacks without racing the
// registration.
func (tc *TaskContext) Block(source any, postBlock func()) error {
	_, err := tc.trap(blockTrap(source, postBlock))
	return err
}

// Join suspends until target completes. Joining an already-completed task
// does not suspend. Joining yourself is a programming error.
func (tc *TaskContext) Join(target *Task) error {
	_, err := tc.trap(joinTrap(target))
	return err
}

// JoinResult joins target and then returns its result, re-raising the
// target's completion error to the caller.
func (tc *TaskContext) JoinResult(target *Task) (any, error) {
	if err := tc.Join(target); err != nil {
		return nil, err
	}
	return target.ResultNonblocking()
}

// PollRead suspends until fd is readable. Readiness is advisory: callers
// must retry the operation and be prepared for it to still block.
func (tc *TaskContext) PollRead(fd int) error {
	_, err := tc.trap(pollTrap(fd, PollRead))
	return err
}

// PollWrite suspends until fd is writable.
func (tc *TaskContext) PollWrite(fd int) error {
	_, err := tc.trap(pollTrap(fd, PollWrite))
	return err
}

// Sleep suspends for at least d. A non-positive d re-readies the task
// immediately (still a suspension point).
func (tc *TaskContext) Sleep(d time.Duration) error {
	_, err := tc.trap(sleepTrap(d))
	return err
}

// SleepForever suspends with no deadline; only Cancel, TimeoutAfter or
// kernel close wakes the task again.
func (tc *TaskContext) SleepForever() error {
	_, err := tc.trap(sleepForeverTrap())
	return err
}

// Yield is a cooperative scheduling point: it re-readies the task behind
// everything already in the ready queue.
func (tc *TaskContext) Yield() error {
	return tc.Sleep(0)
}
