package core

import (
	"errors"
	"time"
)

// =============================================================================
// Observability: stats snapshots and the metrics hook
// =============================================================================

// KernelStats is a snapshot of the kernel's internal bookkeeping.
type KernelStats struct {
	// NumTicks counts scheduling loop iterations so far.
	NumTicks int

	// NumTasks is the number of live (not yet completed) tasks.
	NumTasks int

	// NumReady is the current ready-queue length.
	NumReady int

	// Blocking trap stats.
	NumJoin  int
	NumPoll  int
	NumSleep int

	// NumBlocked counts tasks in the generic and forever blockers.
	NumBlocked int

	// Disrupter stats.
	NumToRaise int
	NumTimeout int
}

// TaskStatus labels how a task completed, for metrics.
type TaskStatus string

const (
	TaskStatusOK        TaskStatus = "ok"
	TaskStatusError     TaskStatus = "error"
	TaskStatusCancelled TaskStatus = "cancelled"
	TaskStatusTimeout   TaskStatus = "timeout"
	TaskStatusPanic     TaskStatus = "panic"
)

// Metrics defines the interface for collecting kernel execution metrics.
// Implementations can send metrics to monitoring systems (Prometheus, StatsD, etc.).
//
// All methods are optional; implementations should handle nil receivers gracefully.
// Methods are called on the kernel goroutine and must be non-blocking and fast.
type Metrics interface {
	// RecordSpawn records that a task was spawned.
	RecordSpawn(taskName string)

	// RecordTaskCompleted records a task completion.
	//
	// Parameters:
	// - taskName: The name of the completed task
	// - status: How the task completed
	// - duration: Wall time from spawn to completion
	RecordTaskCompleted(taskName string, status TaskStatus, duration time.Duration)

	// RecordPollWake records how many descriptors one poll call reported.
	RecordPollWake(numReady int)
}

// taskStatusOf maps a completion error to its metrics label.
func taskStatusOf(err error) TaskStatus {
	var panicErr *TaskPanicError
	switch {
	case err == nil:
		return TaskStatusOK
	case errors.Is(err, ErrCancelled):
		return TaskStatusCancelled
	case errors.Is(err, ErrTimeout):
		return TaskStatusTimeout
	case errors.As(err, &panicErr):
		return TaskStatusPanic
	default:
		return TaskStatusError
	}
}
