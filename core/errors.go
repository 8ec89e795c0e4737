package core

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error taxonomy
// =============================================================================

var (
	// ErrTaskCancellation is injected into a task by Cancel. Task bodies
	// never observe it directly: the trap helpers unwind on it and the task
	// completes with ErrCancelled instead.
	ErrTaskCancellation = errors.New("task cancellation")

	// ErrCancelled is the completion error of a cancelled task, as seen by
	// joiners.
	ErrCancelled = errors.New("task cancelled")

	// ErrTimeout is injected into a task when its TimeoutAfter deadline
	// elapses. Unlike cancellation it is an ordinary error the task may
	// handle.
	ErrTimeout = errors.New("task timeout")

	// ErrKernelTimeout is returned by Run when its overall deadline elapses
	// with tasks still live.
	ErrKernelTimeout = errors.New("kernel run timeout")
)

// TaskPanicError is the completion error of a task whose body panicked.
type TaskPanicError struct {
	// Value is the recovered panic value.
	Value any

	// Stack is the body goroutine's stack at the time of the panic.
	Stack []byte
}

func (e *TaskPanicError) Error() string {
	return fmt.Sprintf("task panicked: %v", e.Value)
}

// cancellationUnwind is the panic payload used to unwind a task body on
// cancellation. Only the trap helpers throw it and only the task's run
// wrapper recovers it.
type cancellationUnwind struct {
	err error
}
