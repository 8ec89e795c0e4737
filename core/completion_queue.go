package core

import "errors"

// ErrQueueClosed is returned by queue operations after Close, once nothing
// is left to drain.
var ErrQueueClosed = errors.New("task completion queue is closed")

// TaskCompletionQueue collects tasks and hands them back in completion
// order, so a supervisor can reap many children without polling each one.
// Kernel goroutine only.
type TaskCompletionQueue struct {
	kernel      *Kernel
	gate        *Gate
	completed   []*Task
	uncompleted map[*Task]struct{}
	closed      bool
}

// NewTaskCompletionQueue creates an empty open queue.
func NewTaskCompletionQueue(kernel *Kernel) *TaskCompletionQueue {
	return &TaskCompletionQueue{
		kernel:      kernel,
		gate:        NewGate(kernel),
		uncompleted: make(map[*Task]struct{}),
	}
}

// Put adds task to the queue. An already-completed task becomes available to
// Get immediately.
func (q *TaskCompletionQueue) Put(task *Task) error {
	if q.closed {
		return ErrQueueClosed
	}
	q.uncompleted[task] = struct{}{}
	task.AddCallback(q.onCompletion)
	return nil
}

// Spawn spawns body onto the kernel and puts the new task on the queue.
func (q *TaskCompletionQueue) Spawn(body TaskBody) (*Task, error) {
	if q.closed {
		return nil, ErrQueueClosed
	}
	task := q.kernel.Spawn(body)
	if err := q.Put(task); err != nil {
		return nil, err
	}
	return task, nil
}

func (q *TaskCompletionQueue) onCompletion(task *Task) {
	delete(q.uncompleted, task)
	q.completed = append(q.completed, task)
	q.gate.Unblock()
}

// Get suspends until a queued task completes and returns it. Once the queue
// is closed and fully drained, Get fails with ErrQueueClosed.
func (q *TaskCompletionQueue) Get(tc *TaskContext) (*Task, error) {
	for {
		if len(q.completed) > 0 {
			task := q.completed[0]
			q.completed = q.completed[1:]
			return task, nil
		}
		if q.closed && len(q.uncompleted) == 0 {
			return nil, ErrQueueClosed
		}
		if err := q.gate.Wait(tc); err != nil {
			return nil, err
		}
	}
}

// Close stops accepting new tasks and wakes waiters. When graceful,
// already-queued tasks may still be reaped by Get; otherwise the
// still-running tasks are returned so the caller can cancel them.
func (q *TaskCompletionQueue) Close(graceful bool) []*Task {
	if q.closed {
		return nil
	}
	q.closed = true
	q.gate.Unblock()
	if graceful {
		return nil
	}
	remaining := make([]*Task, 0, len(q.uncompleted))
	for task := range q.uncompleted {
		remaining = append(remaining, task)
	}
	return remaining
}

// Len returns how many completed tasks await Get.
func (q *TaskCompletionQueue) Len() int {
	return len(q.completed)
}

// NumUncompleted returns how many queued tasks are still running.
func (q *TaskCompletionQueue) NumUncompleted() int {
	return len(q.uncompleted)
}

// IsClosed reports whether Close was called.
func (q *TaskCompletionQueue) IsClosed() bool {
	return q.closed
}
