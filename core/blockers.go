package core

import (
	"container/heap"
	"fmt"
	"time"
)

// =============================================================================
// Blockers: registries mapping a wait condition ("source") to waiting tasks
// =============================================================================

// Common contract:
//   - Block registers a wait; registering a task that is already waiting in
//     the same blocker is a programming error.
//   - Unblock atomically removes and returns every task waiting on a source.
//   - Cancel removes a specific task if present and reports whether it was
//     found.
//
// The kernel maintains the invariant that a task is blocked in at most one
// residency blocker (or sits in the ready queue) at any instant.

// DictBlocker blocks each task on exactly one source and keeps a reverse
// index so Unblock is O(waiters).
type DictBlocker struct {
	taskToSource  map[*Task]any
	sourceToTasks map[any][]*Task
}

func NewDictBlocker() *DictBlocker {
	return &DictBlocker{
		taskToSource:  make(map[*Task]any),
		sourceToTasks: make(map[any][]*Task),
	}
}

// Block registers task as waiting on source.
func (b *DictBlocker) Block(source any, task *Task) {
	if _, ok := b.taskToSource[task]; ok {
		panic(fmt.Sprintf("task %q is already blocked here", task.name))
	}
	b.taskToSource[task] = source
	b.sourceToTasks[source] = append(b.sourceToTasks[source], task)
}

// Unblock removes and returns all tasks waiting on source.
func (b *DictBlocker) Unblock(source any) []*Task {
	tasks := b.sourceToTasks[source]
	if len(tasks) == 0 {
		return nil
	}
	delete(b.sourceToTasks, source)
	for _, task := range tasks {
		delete(b.taskToSource, task)
	}
	return tasks
}

// Cancel removes task if present, returning the source it was blocked on.
func (b *DictBlocker) Cancel(task *Task) (any, bool) {
	source, ok := b.taskToSource[task]
	if !ok {
		return nil, false
	}
	delete(b.taskToSource, task)
	waiters := b.sourceToTasks[source]
	for i, waiter := range waiters {
		if waiter == task {
			waiters = append(waiters[:i], waiters[i+1:]...)
			break
		}
	}
	if len(waiters) == 0 {
		delete(b.sourceToTasks, source)
	} else {
		b.sourceToTasks[source] = waiters
	}
	return source, true
}

// HasSource reports whether any task is waiting on source.
func (b *DictBlocker) HasSource(source any) bool {
	return len(b.sourceToTasks[source]) > 0
}

// Len returns the number of blocked tasks.
func (b *DictBlocker) Len() int {
	return len(b.taskToSource)
}

// Tasks returns all blocked tasks (debug only).
func (b *DictBlocker) Tasks() []*Task {
	tasks := make([]*Task, 0, len(b.taskToSource))
	for task := range b.taskToSource {
		tasks = append(tasks, task)
	}
	return tasks
}

// =============================================================================
// ForeverBlocker
// =============================================================================

// ForeverBlocker holds tasks that never unblock via Unblock; only Cancel
// removes them. It backs SleepForever.
type ForeverBlocker struct {
	tasks map[*Task]struct{}
}

func NewForeverBlocker() *ForeverBlocker {
	return &ForeverBlocker{tasks: make(map[*Task]struct{})}
}

// Block registers task; the source is ignored.
func (b *ForeverBlocker) Block(_ any, task *Task) {
	b.tasks[task] = struct{}{}
}

// Unblock never returns tasks.
func (b *ForeverBlocker) Unblock(_ any) []*Task {
	return nil
}

// Cancel removes task if present.
func (b *ForeverBlocker) Cancel(task *Task) bool {
	if _, ok := b.tasks[task]; !ok {
		return false
	}
	delete(b.tasks, task)
	return true
}

func (b *ForeverBlocker) Len() int {
	return len(b.tasks)
}

func (b *ForeverBlocker) Tasks() []*Task {
	tasks := make([]*Task, 0, len(b.tasks))
	for task := range b.tasks {
		tasks = append(tasks, task)
	}
	return tasks
}

// =============================================================================
// TaskCompletionBlocker
// =============================================================================

// TaskCompletionBlocker is a DictBlocker whose sources are themselves tasks:
// the waiters are joiners of the source task.
type TaskCompletionBlocker struct {
	DictBlocker
}

func NewTaskCompletionBlocker() *TaskCompletionBlocker {
	return &TaskCompletionBlocker{DictBlocker: *NewDictBlocker()}
}

// Block registers task as joining target. The target must be a live task
// distinct from the joiner.
func (b *TaskCompletionBlocker) Block(target *Task, task *Task) {
	if target.IsCompleted() {
		panic(fmt.Sprintf("join target %q has already completed", target.name))
	}
	if target == task {
		panic(fmt.Sprintf("task %q cannot join itself", task.name))
	}
	b.DictBlocker.Block(target, task)
}

// NumBlockedOn returns how many tasks are joining target.
func (b *TaskCompletionBlocker) NumBlockedOn(target *Task) int {
	return len(b.sourceToTasks[target])
}

// =============================================================================
// TimeoutBlocker
// =============================================================================

// timeoutEntry pairs a deadline with a waiting task. Entries are ordered by
// deadline only; insertion order across equal deadlines is not stable.
type timeoutEntry struct {
	deadline time.Time
	task     *Task
}

type timeoutHeap []timeoutEntry

func (h timeoutHeap) Len() int           { return len(h) }
func (h timeoutHeap) Less(i, j int) bool { return h[i].deadline.Before(h[j].deadline) }
func (h timeoutHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *timeoutHeap) Push(x any) {
	*h = append(*h, x.(timeoutEntry))
}

func (h *timeoutHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = timeoutEntry{}
	*h = old[:n-1]
	return item
}

// TimeoutBlocker orders waiting tasks by deadline in a minimum heap. Cancel
// uses lazy deletion: the task leaves the blocker immediately but its heap
// entry stays queued until Unblock pops it, so GetMinTimeout may report a
// deadline that belongs to a cancelled entry.
type TimeoutBlocker struct {
	queue timeoutHeap
	tasks map[*Task]struct{}
}

func NewTimeoutBlocker() *TimeoutBlocker {
	b := &TimeoutBlocker{tasks: make(map[*Task]struct{})}
	heap.Init(&b.queue)
	return b
}

// Block registers task to be unblocked once now reaches deadline.
func (b *TimeoutBlocker) Block(deadline time.Time, task *Task) {
	if _, ok := b.tasks[task]; ok {
		panic(fmt.Sprintf("task %q is already blocked here", task.name))
	}
	b.tasks[task] = struct{}{}
	heap.Push(&b.queue, timeoutEntry{deadline: deadline, task: task})
}

// Unblock pops and returns every task whose deadline is at or before now.
func (b *TimeoutBlocker) Unblock(now time.Time) []*Task {
	var tasks []*Task
	for len(b.queue) > 0 && !b.queue[0].deadline.After(now) {
		entry := heap.Pop(&b.queue).(timeoutEntry)
		if _, ok := b.tasks[entry.task]; !ok {
			continue // cancelled, lazily dropped
		}
		delete(b.tasks, entry.task)
		tasks = append(tasks, entry.task)
	}
	return tasks
}

// Cancel removes task if present. Its heap entry is dropped lazily.
func (b *TimeoutBlocker) Cancel(task *Task) bool {
	if _, ok := b.tasks[task]; !ok {
		return false
	}
	delete(b.tasks, task)
	return true
}

// GetMinTimeout returns the time remaining until the soonest queued
// deadline, or false if the queue is empty. The result may be negative when
// the deadline has already passed.
func (b *TimeoutBlocker) GetMinTimeout(now time.Time) (time.Duration, bool) {
	if len(b.queue) == 0 {
		return 0, false
	}
	return b.queue[0].deadline.Sub(now), true
}

func (b *TimeoutBlocker) Len() int {
	return len(b.tasks)
}

// QueueLen returns the number of heap entries, including lazily-deleted
// ones (debug only).
func (b *TimeoutBlocker) QueueLen() int {
	return len(b.queue)
}

func (b *TimeoutBlocker) Tasks() []*Task {
	tasks := make([]*Task, 0, len(b.tasks))
	for task := range b.tasks {
		tasks = append(tasks, task)
	}
	return tasks
}
