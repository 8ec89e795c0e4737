package taskkernel

import (
	"sync"
	"time"

	"github.com/Swind/go-task-kernel/core"
)

// =============================================================================
// Global Kernel Helper (Singleton)
// =============================================================================

var (
	globalKernel *core.Kernel
	globalMu     sync.Mutex
)

// Init initializes the global kernel. The calling goroutine becomes the
// kernel owner: Run, Spawn and the other owner-only operations must be used
// from it. Calling Init twice is a no-op.
func Init(config *KernelConfig) error {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalKernel != nil {
		return nil // Already initialized
	}

	kernel, err := core.NewKernel(config)
	if err != nil {
		return err
	}
	globalKernel = kernel
	return nil
}

// GetGlobalKernel returns the global kernel instance.
// It panics if Init has not been called.
func GetGlobalKernel() *Kernel {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalKernel == nil {
		panic("global kernel not initialized. Call Init() first.")
	}
	return globalKernel
}

// Shutdown closes the global kernel, aborting uncompleted tasks. Must be
// called from the owner goroutine.
func Shutdown() {
	globalMu.Lock()
	kernel := globalKernel
	globalKernel = nil
	globalMu.Unlock()

	if kernel != nil {
		kernel.Close()
	}
}

// Run drives the global kernel; see Kernel.Run.
func Run(body TaskBody, timeout time.Duration) (any, error) {
	return GetGlobalKernel().Run(body, timeout)
}

// Spawn schedules a task onto the global kernel.
func Spawn(body TaskBody) *Task {
	return GetGlobalKernel().Spawn(body)
}

// RunWithKernel creates a private kernel, runs body through completion and
// closes the kernel afterwards, aborting stragglers. Convenient for tests
// and one-shot programs that do not want a global kernel.
func RunWithKernel(config *KernelConfig, body TaskBody, timeout time.Duration) (any, error) {
	kernel, err := core.NewKernel(config)
	if err != nil {
		return nil, err
	}
	defer kernel.Close()
	return kernel.Run(body, timeout)
}
