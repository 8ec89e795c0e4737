package core

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/petermattis/goid"
)

// =============================================================================
// Kernel: the cooperative single-threaded scheduling loop
// =============================================================================

// NoTimeout disables a deadline when passed as a timeout argument.
const NoTimeout time.Duration = -1

const defaultSanityCheckFrequency = 100

// KernelConfig configures a Kernel. The zero value selects the platform
// poller, a no-op metrics sink and the default logger.
type KernelConfig struct {
	// SanityCheckFrequency is how many ticks pass between bookkeeping
	// sanity checks. Defaults to 100.
	SanityCheckFrequency int

	// Poller overrides the platform readiness poller.
	Poller Poller

	// Logger receives kernel warnings. Defaults to DefaultLogger.
	Logger Logger

	// Metrics receives task lifecycle metrics. Optional.
	Metrics Metrics
}

// taskReady is one ready-queue entry: a task plus the value or error to
// resume it with.
type taskReady struct {
	task  *Task
	value any
	err   error
}

// Kernel multiplexes tasks onto the goroutine that calls Run. It owns one
// Poller, one Nudger and all blockers.
//
// Except for Nudge, Unblock, PostCallback and NotifyClose, every method must
// be called from the owner goroutine or from a task body the kernel is
// currently ticking; violations panic.
type Kernel struct {
	ownerGID int64
	closed   bool

	numTicks             int
	sanityCheckFrequency int

	// Tasks are juggled among the ready queue and the blockers below.
	numTasks int
	current  *Task
	ready    []taskReady

	completionBlocker *TaskCompletionBlocker
	readBlocker       *DictBlocker
	writeBlocker      *DictBlocker
	sleepBlocker      *TimeoutBlocker
	genericBlocker    *DictBlocker
	foreverBlocker    *ForeverBlocker

	// Disrupters: tasks that will receive an injected error at their next
	// resumption (cancel, timeout-after). The timeout-after blocker is
	// bookkeeping only; it never holds a task's residency.
	toRaise             map[*Task]error
	timeoutAfterBlocker *TimeoutBlocker

	poller Poller
	nudger *Nudger

	// Callbacks posted by other threads, fired at the top of each pass.
	callbacksMu sync.Mutex
	callbacks   []func()

	// genericMu guards genericBlocker so Unblock works from any thread.
	genericMu sync.Mutex

	logger  Logger
	metrics Metrics

	// Last published stats snapshot, readable from any thread.
	statsSnapshot atomic.Pointer[KernelStats]

	nextTaskNum int
}

// NewKernel creates a kernel owned by the calling goroutine.
func NewKernel(config *KernelConfig) (*Kernel, error) {
	if config == nil {
		config = &KernelConfig{}
	}

	logger := config.Logger
	if logger == nil {
		logger = NewDefaultLogger()
	}

	poller := config.Poller
	if poller == nil {
		var err error
		poller, err = newDefaultPoller()
		if err != nil {
			return nil, err
		}
	}

	nudger, err := NewNudger(logger)
	if err != nil {
		poller.Close()
		return nil, err
	}
	if err := nudger.RegisterTo(poller); err != nil {
		nudger.Close()
		poller.Close()
		return nil, err
	}

	frequency := config.SanityCheckFrequency
	if frequency <= 0 {
		frequency = defaultSanityCheckFrequency
	}

	k := &Kernel{
		ownerGID:             goid.Get(),
		sanityCheckFrequency: frequency,
		completionBlocker:    NewTaskCompletionBlocker(),
		readBlocker:          NewDictBlocker(),
		writeBlocker:         NewDictBlocker(),
		sleepBlocker:         NewTimeoutBlocker(),
		genericBlocker:       NewDictBlocker(),
		foreverBlocker:       NewForeverBlocker(),
		toRaise:              make(map[*Task]error),
		timeoutAfterBlocker:  NewTimeoutBlocker(),
		poller:               poller,
		nudger:               nudger,
		logger:               logger,
		metrics:              config.Metrics,
	}
	k.publishStats()
	return k, nil
}

func (k *Kernel) isOwner() bool {
	gid := goid.Get()
	if gid == k.ownerGID {
		return true
	}
	// A running task body counts as the owner: the kernel goroutine is
	// blocked inside tick while the body executes, so there is no
	// concurrency between them.
	return k.current != nil && gid == k.current.gid
}

func (k *Kernel) assertOwner() {
	if !k.isOwner() {
		panic("kernel method called from a non-owner goroutine")
	}
}

func (k *Kernel) assertOpen() {
	if k.closed {
		panic("kernel has been closed")
	}
}

// =============================================================================
// Run loop
// =============================================================================

// runTimer tracks the overall Run deadline.
type runTimer struct {
	forever  bool
	deadline time.Time
}

func newRunTimer(timeout time.Duration) runTimer {
	if timeout < 0 {
		return runTimer{forever: true}
	}
	return runTimer{deadline: time.Now().Add(timeout)}
}

// remaining returns the time left until the deadline, or NoTimeout when
// there is none.
func (t runTimer) remaining(now time.Time) time.Duration {
	if t.forever {
		return NoTimeout
	}
	d := t.deadline.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

func (t runTimer) expired(now time.Time) bool {
	return !t.forever && !now.Before(t.deadline)
}

// minPollTimeout combines two poll timeouts where a negative value means
// "no bound".
func minPollTimeout(a, b time.Duration) time.Duration {
	if a < 0 {
		return b
	}
	if b < 0 {
		return a
	}
	if b < a {
		return b
	}
	return a
}

// Run drives spawned tasks through completion.
//
// If body is not nil, a task is spawned for it and Run returns that task's
// result as soon as it completes, leaving any remaining tasks spawned in the
// meantime runnable; call Run again with a nil body to drain them.
//
// A negative timeout (NoTimeout) runs without a deadline. A timeout of zero
// is guaranteed to iterate exactly once before failing with
// ErrKernelTimeout if tasks remain.
func (k *Kernel) Run(body TaskBody, timeout time.Duration) (any, error) {
	k.assertOpen()
	k.assertOwner()
	if k.current != nil {
		panic("recursive Run call")
	}

	var mainTask *Task
	if body != nil {
		mainTask = k.Spawn(body)
	}
	timer := newRunTimer(timeout)

	for k.numTasks > 0 {

		// Do the sanity check every sanityCheckFrequency ticks.
		if k.numTicks%k.sanityCheckFrequency == 0 {
			k.sanityCheck()
			k.publishStats()
		}
		k.numTicks++

		// Fire callbacks posted by other threads.
		k.callbacksMu.Lock()
		callbacks := k.callbacks
		k.callbacks = nil
		k.callbacksMu.Unlock()
		for _, callback := range callbacks {
			callback()
		}

		// Run all ready tasks. Tasks readied mid-drain are appended and
		// run later in the same drain.
		for len(k.ready) > 0 {
			completedTask := k.runOneReadyTask()
			if completedTask != nil && completedTask == mainTask {
				// Return the result eagerly. To run the remaining tasks
				// through completion, call Run again with no body.
				return completedTask.ResultNonblocking()
			}
		}

		if k.numTasks > 0 {
			// Poll I/O, bounded by the soonest deadline of the overall
			// run timer, the sleepers and the per-task timeouts.
			now := time.Now()
			pollTimeout := timer.remaining(now)
			if d, ok := k.sleepBlocker.GetMinTimeout(now); ok {
				pollTimeout = minPollTimeout(pollTimeout, d)
			}
			if d, ok := k.timeoutAfterBlocker.GetMinTimeout(now); ok {
				pollTimeout = minPollTimeout(pollTimeout, d)
			}

			readable, writable, err := k.poller.Poll(pollTimeout)
			if err != nil {
				panic(fmt.Sprintf("poll failed: %v", err))
			}
			if k.metrics != nil {
				k.metrics.RecordPollWake(len(readable) + len(writable))
			}
			for _, fd := range readable {
				if k.nudger.IsNudged(fd) {
					k.nudger.Ack()
					continue
				}
				k.poller.Unregister(fd)
				k.readyAll(k.readBlocker.Unblock(fd))
			}
			for _, fd := range writable {
				if k.nudger.IsNudged(fd) {
					continue
				}
				k.poller.Unregister(fd)
				k.readyAll(k.writeBlocker.Unblock(fd))
			}

			// Handle elapsed sleep and per-task timeout deadlines.
			now = time.Now()
			k.readyAll(k.sleepBlocker.Unblock(now))
			for _, task := range k.timeoutAfterBlocker.Unblock(now) {
				k.disrupt(task, ErrTimeout)
			}
		}

		if k.numTasks > 0 && timer.expired(time.Now()) {
			return nil, ErrKernelTimeout
		}
	}
	return nil, nil
}

// runOneReadyTask pops and ticks one ready entry, returning the task if it
// completed.
func (k *Kernel) runOneReadyTask() *Task {
	entry := k.ready[0]
	k.ready = k.ready[1:]
	if len(k.ready) == 0 {
		k.ready = nil
	}

	task, value, err := entry.task, entry.value, entry.err
	if override, ok := k.toRaise[task]; ok {
		delete(k.toRaise, task)
		value, err = nil, override
	}

	k.current = task
	trap := func() *Trap {
		defer func() { k.current = nil }()
		return task.tick(value, err)
	}()

	if trap == nil {
		// Completed: wake joiners and clear disrupter bookkeeping.
		k.readyAll(k.completionBlocker.Unblock(task))
		delete(k.toRaise, task)
		k.timeoutAfterBlocker.Cancel(task)
		k.numTasks--
		if k.metrics != nil {
			k.metrics.RecordTaskCompleted(
				task.name, taskStatusOf(task.exc), time.Since(task.spawnedAt))
		}
		return task
	}

	if override, ok := k.toRaise[task]; ok {
		// Disrupted while running; skip the blocking trap entirely.
		delete(k.toRaise, task)
		k.ready = append(k.ready, taskReady{task: task, err: override})
		return nil
	}

	if trapErr := k.handleTrap(task, trap); trapErr != nil {
		k.ready = append(k.ready, taskReady{task: task, err: trapErr})
	}
	return nil
}

// =============================================================================
// Blocking trap handlers
// =============================================================================

// handleTrap registers the suspended task with the blocker selected by the
// trap's tag. A returned error is delivered to the task at its next
// resumption instead of blocking it.
func (k *Kernel) handleTrap(task *Task, trap *Trap) error {
	switch trap.Kind {
	case TrapBlock:
		k.genericMu.Lock()
		k.genericBlocker.Block(trap.Source, task)
		k.genericMu.Unlock()
		if trap.PostBlock != nil {
			trap.PostBlock()
		}
		return nil

	case TrapJoin:
		target := trap.Target
		if target == nil || target.kernel != k {
			return fmt.Errorf("join target does not belong to this kernel")
		}
		if target == task {
			return fmt.Errorf("task %q cannot join itself", task.name)
		}
		if target.IsCompleted() {
			k.ready = append(k.ready, taskReady{task: task})
		} else {
			k.completionBlocker.Block(target, task)
		}
		return nil

	case TrapPoll:
		if err := k.poller.Register(trap.FD, trap.Event); err != nil {
			return err
		}
		if trap.Event == PollWrite {
			k.writeBlocker.Block(trap.FD, task)
		} else {
			k.readBlocker.Block(trap.FD, task)
		}
		return nil

	case TrapSleep:
		switch {
		case trap.Forever:
			k.foreverBlocker.Block(nil, task)
		case trap.Duration <= 0:
			k.ready = append(k.ready, taskReady{task: task})
		default:
			k.sleepBlocker.Block(time.Now().Add(trap.Duration), task)
		}
		return nil

	default:
		panic(fmt.Sprintf("unknown trap kind: %d", trap.Kind))
	}
}

// =============================================================================
// Non-blocking operations
// =============================================================================

// Spawn schedules a new task onto the kernel.
func (k *Kernel) Spawn(body TaskBody) *Task {
	return k.SpawnNamed("", body)
}

// SpawnNamed schedules a new task with an explicit name (used in logs,
// metrics and debug listings).
func (k *Kernel) SpawnNamed(name string, body TaskBody) *Task {
	k.assertOpen()
	k.assertOwner()
	if name == "" {
		name = fmt.Sprintf("task-%d", k.nextTaskNum)
	}
	k.nextTaskNum++
	task := newTask(k, name, body)
	k.ready = append(k.ready, taskReady{task: task})
	k.numTasks++
	if k.metrics != nil {
		k.metrics.RecordSpawn(name)
	}
	return task
}

// CurrentTask returns the task being ticked, or nil between ticks.
func (k *Kernel) CurrentTask() *Task {
	return k.current
}

// AllTasks returns every live task (useful for debugging). Not thread-safe.
func (k *Kernel) AllTasks() []*Task {
	k.assertOwner()
	var all []*Task
	if k.current != nil {
		all = append(all, k.current)
	}
	for _, entry := range k.ready {
		all = append(all, entry.task)
	}
	all = append(all, k.completionBlocker.Tasks()...)
	all = append(all, k.readBlocker.Tasks()...)
	all = append(all, k.writeBlocker.Tasks()...)
	all = append(all, k.sleepBlocker.Tasks()...)
	k.genericMu.Lock()
	all = append(all, k.genericBlocker.Tasks()...)
	k.genericMu.Unlock()
	all = append(all, k.foreverBlocker.Tasks()...)
	if len(all) != k.numTasks {
		panic(fmt.Sprintf("task bookkeeping mismatch: %d != %d", len(all), k.numTasks))
	}
	return all
}

// Cancel cancels the task. This is a no-op if the task has completed.
func (k *Kernel) Cancel(task *Task) {
	k.assertOpen()
	k.assertOwner()
	if task.kernel != k {
		panic("task does not belong to this kernel")
	}
	if !task.IsCompleted() {
		k.disrupt(task, ErrTaskCancellation)
	}
}

// TimeoutAfter arranges for task to receive ErrTimeout once duration has
// elapsed, delivered at the task's next suspension point. It returns a
// function that cancels the pending timeout. A negative duration installs
// nothing.
func (k *Kernel) TimeoutAfter(task *Task, duration time.Duration) func() {
	k.assertOpen()
	k.assertOwner()
	if task.kernel != k {
		panic("task does not belong to this kernel")
	}
	if duration < 0 {
		return func() {}
	}
	// Even when duration is zero the timeout fires at the next blocking
	// trap, for consistency; nothing is raised here.
	k.timeoutAfterBlocker.Block(time.Now().Add(duration), task)
	return func() { k.timeoutAfterBlocker.Cancel(task) }
}

// Unblock moves every task blocked on source back to the ready queue.
// Safe to call from any thread. After Close it is a no-op apart from a
// warning logged by the closed nudger; stop cross-thread wakers before
// closing the kernel.
func (k *Kernel) Unblock(source any) {
	if k.isOwner() {
		k.genericMu.Lock()
		tasks := k.genericBlocker.Unblock(source)
		k.genericMu.Unlock()
		k.readyAll(tasks)
		return
	}
	// Both the blocker and the ready queue are owner-side state, so the
	// whole move happens in a posted callback. Removing the waiters here
	// would leave them untracked until the loop wakes up.
	k.PostCallback(func() {
		k.genericMu.Lock()
		tasks := k.genericBlocker.Unblock(source)
		k.genericMu.Unlock()
		k.readyAll(tasks)
	})
}

// PostCallback schedules fn to run on the owner goroutine at the top of the
// next scheduling pass and nudges the poller. Safe to call from any thread.
// A post after Close is queued but never run; the closed nudger logs a
// warning instead of waking the loop.
func (k *Kernel) PostCallback(fn func()) {
	k.callbacksMu.Lock()
	k.callbacks = append(k.callbacks, fn)
	k.callbacksMu.Unlock()
	k.nudger.Nudge()
}

// Nudge forces a blocked poll call to return promptly. Safe to call from
// any thread.
func (k *Kernel) Nudge() {
	k.nudger.Nudge()
}

// NotifyClose marks fd forcibly ready so poll waiters wake up and observe
// the close. Safe to call from any thread.
func (k *Kernel) NotifyClose(fd int) {
	k.poller.NotifyClose(fd)
	if !k.isOwner() {
		k.nudger.Nudge()
	}
}

// CloseFD detaches fd from the kernel before it is closed: the registration
// is dropped and any poll waiters are re-readied so they retry the
// operation and observe the close. Owner-side counterpart of NotifyClose.
func (k *Kernel) CloseFD(fd int) {
	k.assertOpen()
	k.assertOwner()
	k.poller.Unregister(fd)
	k.readyAll(k.readBlocker.Unblock(fd))
	k.readyAll(k.writeBlocker.Unblock(fd))
}

// Stats returns internal stats. Owner only; see StatsSnapshot for a
// cross-thread view.
func (k *Kernel) Stats() KernelStats {
	k.assertOwner()
	return k.buildStats()
}

// StatsSnapshot returns the last published stats snapshot. Safe to call
// from any thread; the snapshot is refreshed at every sanity check.
func (k *Kernel) StatsSnapshot() KernelStats {
	return *k.statsSnapshot.Load()
}

func (k *Kernel) buildStats() KernelStats {
	k.genericMu.Lock()
	numGeneric := k.genericBlocker.Len()
	k.genericMu.Unlock()
	return KernelStats{
		NumTicks:   k.numTicks,
		NumTasks:   k.numTasks,
		NumReady:   len(k.ready),
		NumJoin:    k.completionBlocker.Len(),
		NumPoll:    k.readBlocker.Len() + k.writeBlocker.Len(),
		NumSleep:   k.sleepBlocker.Len(),
		NumBlocked: numGeneric + k.foreverBlocker.Len(),
		NumToRaise: len(k.toRaise),
		NumTimeout: k.timeoutAfterBlocker.Len(),
	}
}

func (k *Kernel) publishStats() {
	stats := k.buildStats()
	k.statsSnapshot.Store(&stats)
}

// Close shuts the kernel down: uncompleted tasks are aborted with a warning
// and the poller and nudger are released. Not safe to call concurrently
// with other kernel operations.
func (k *Kernel) Close() {
	k.assertOwner()
	if k.closed {
		return
	}

	if k.numTasks > 0 {
		k.logger.Warn("close: kernel still has uncompleted tasks",
			F("numTasks", k.numTasks))
	}
	for _, task := range k.AllTasks() {
		if !task.IsCompleted() {
			task.abort()
		}
	}

	k.poller.Close()
	k.nudger.Close()
	k.closed = true
	k.publishStats()
}

// =============================================================================
// Internal helpers
// =============================================================================

// disrupt arms exc for task and, if the task is currently suspended, pulls
// it out of whichever blocker holds it and re-readies it. A task that is
// running or already ready simply receives exc at its next resumption.
//
// Every blocker has to be searched here.
func (k *Kernel) disrupt(task *Task, exc error) {
	k.toRaise[task] = exc

	if source, ok := k.readBlocker.Cancel(task); ok {
		k.releaseFD(source.(int))
		k.ready = append(k.ready, taskReady{task: task})
		return
	}
	if source, ok := k.writeBlocker.Cancel(task); ok {
		k.releaseFD(source.(int))
		k.ready = append(k.ready, taskReady{task: task})
		return
	}
	if _, ok := k.completionBlocker.Cancel(task); ok {
		k.ready = append(k.ready, taskReady{task: task})
		return
	}
	if k.sleepBlocker.Cancel(task) {
		k.ready = append(k.ready, taskReady{task: task})
		return
	}
	k.genericMu.Lock()
	_, unblocked := k.genericBlocker.Cancel(task)
	k.genericMu.Unlock()
	if unblocked {
		k.ready = append(k.ready, taskReady{task: task})
		return
	}
	if k.foreverBlocker.Cancel(task) {
		k.ready = append(k.ready, taskReady{task: task})
	}
}

// releaseFD drops the poller registration once no task waits on fd anymore.
func (k *Kernel) releaseFD(fd int) {
	if !k.readBlocker.HasSource(fd) && !k.writeBlocker.HasSource(fd) {
		k.poller.Unregister(fd)
	}
}

func (k *Kernel) readyAll(tasks []*Task) {
	for _, task := range tasks {
		k.ready = append(k.ready, taskReady{task: task})
	}
}

// sanityCheck verifies the task-count invariant: every live task sits in
// the ready queue or in exactly one residency blocker.
func (k *Kernel) sanityCheck() {
	k.genericMu.Lock()
	numGeneric := k.genericBlocker.Len()
	k.genericMu.Unlock()
	actual := len(k.ready) +
		k.completionBlocker.Len() +
		k.readBlocker.Len() +
		k.writeBlocker.Len() +
		k.sleepBlocker.Len() +
		numGeneric +
		k.foreverBlocker.Len()
	if k.current != nil {
		actual++
	}
	if k.numTasks < 0 || k.numTasks != actual {
		panic(fmt.Sprintf("sanity check fail: tracked=%d actual=%d", k.numTasks, actual))
	}
}
