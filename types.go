package taskkernel

import "github.com/Swind/go-task-kernel/core"

// Re-export commonly used types from core package for convenience.
// This allows users to import only the taskkernel package for most use cases.

// Kernel is the cooperative scheduling loop
type Kernel = core.Kernel

// KernelConfig configures a Kernel
type KernelConfig = core.KernelConfig

// Task is one unit of sequential computation
type Task = core.Task

// TaskBody is the computation wrapped by a Task
type TaskBody = core.TaskBody

// TaskContext is the suspension vocabulary handed to a running task body
type TaskContext = core.TaskContext

// KernelStats is a snapshot of the kernel's internal bookkeeping
type KernelStats = core.KernelStats

// TaskStatus labels how a task completed, for metrics
type TaskStatus = core.TaskStatus

// Metrics receives task lifecycle metrics
type Metrics = core.Metrics

// Logger is the structured logging interface
type Logger = core.Logger

// Field is one structured logging key-value pair
type Field = core.Field

// Synchronization primitives
type Lock = core.Lock
type Condition = core.Condition
type Event = core.Event
type Gate = core.Gate

// Cross-thread and utility types
type Future = core.Future
type TaskCompletionQueue = core.TaskCompletionQueue
type BytesStream = core.BytesStream
type SignalBridge = core.SignalBridge

// I/O adapters
type FileAdapter = core.FileAdapter
type SocketAdapter = core.SocketAdapter

// Poller is the I/O readiness backend interface
type Poller = core.Poller

// NoTimeout disables a deadline when passed as a timeout argument.
const NoTimeout = core.NoTimeout

// Task completion status constants
const (
	TaskStatusOK        = core.TaskStatusOK
	TaskStatusError     = core.TaskStatusError
	TaskStatusCancelled = core.TaskStatusCancelled
	TaskStatusTimeout   = core.TaskStatusTimeout
	TaskStatusPanic     = core.TaskStatusPanic
)

// Sentinel errors
var (
	ErrCancelled           = core.ErrCancelled
	ErrTimeout             = core.ErrTimeout
	ErrKernelTimeout       = core.ErrKernelTimeout
	ErrQueueClosed         = core.ErrQueueClosed
	ErrStreamClosed        = core.ErrStreamClosed
	ErrSignalBridgeStopped = core.ErrSignalBridgeStopped
)

// Constructors re-exported for users who manage kernels explicitly
var (
	NewKernel              = core.NewKernel
	NewLock                = core.NewLock
	NewCondition           = core.NewCondition
	NewEvent               = core.NewEvent
	NewGate                = core.NewGate
	NewFuture              = core.NewFuture
	NewTaskCompletionQueue = core.NewTaskCompletionQueue
	NewBytesStream         = core.NewBytesStream
	NewSignalBridge        = core.NewSignalBridge
	NewFileAdapter         = core.NewFileAdapter
	NewSocketAdapter       = core.NewSocketAdapter
	NewDefaultLogger       = core.NewDefaultLogger
	NewNoOpLogger          = core.NewNoOpLogger
)

// F creates a structured logging Field
var F = core.F
