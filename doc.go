// Package taskkernel provides a cooperative, single-threaded task scheduling
// kernel for Go.
//
// This library implements an event-loop threading model where many tasks are
// multiplexed onto one owner goroutine. Tasks run strictly one at a time and
// give up control only at explicit suspension points (join, sleep, I/O poll,
// generic block), so resources owned by the kernel need no locks.
//
// # Quick Start
//
// Initialize the global kernel at application startup:
//
//	taskkernel.Init(nil)
//	defer taskkernel.Shutdown()
//
// Spawn tasks and run them through completion:
//
//	result, err := taskkernel.Run(func(tc *taskkernel.TaskContext) (any, error) {
//		child := tc.Kernel().Spawn(func(tc *taskkernel.TaskContext) (any, error) {
//			return 42, tc.Sleep(time.Second)
//		})
//		return tc.JoinResult(child)
//	}, taskkernel.NoTimeout)
//
// # Key Concepts
//
// Kernel: The scheduling loop. It owns a ready queue, an I/O readiness
// poller, and the blockers holding suspended tasks. All kernel methods are
// owner-only except Nudge, Unblock, PostCallback and NotifyClose, which any
// goroutine may call.
//
// Task: One unit of sequential computation. A task suspends through its
// TaskContext and is resumed by the kernel with either a value or an
// injected error (cancellation, timeout).
//
// Cancellation: Kernel.Cancel injects a cancellation into the task at its
// next suspension point; the task unwinds (deferred cleanup still runs) and
// completes with ErrCancelled. TimeoutAfter injects ErrTimeout the same way,
// but as an ordinary error the task may handle.
//
// # Thread Safety
//
// The kernel is deliberately not thread-safe: it asserts that its methods
// run on the owner goroutine or inside a task body it is currently ticking.
// Foreign threads interact through Unblock, PostCallback, Future and
// SignalBridge, all of which wake the loop through a self-pipe nudger.
//
// # Example
//
//	import (
//		taskkernel "github.com/Swind/go-task-kernel"
//	)
//
//	func main() {
//		taskkernel.Init(nil)
//		defer taskkernel.Shutdown()
//
//		taskkernel.Run(func(tc *taskkernel.TaskContext) (any, error) {
//			queue := taskkernel.NewTaskCompletionQueue(tc.Kernel())
//			for i := 0; i < 4; i++ {
//				queue.Spawn(worker)
//			}
//			queue.Close(true)
//			for {
//				task, err := queue.Get(tc)
//				if err != nil {
//					return nil, nil // queue drained
//				}
//				_, _ = task.ResultNonblocking()
//			}
//		}, taskkernel.NoTimeout)
//	}
//
// For more details, see https://github.com/Swind/go-task-kernel
package taskkernel
