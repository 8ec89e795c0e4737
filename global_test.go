package taskkernel_test

import (
	"testing"
	"time"

	taskkernel "github.com/Swind/go-task-kernel"
)

// TestRunWithKernel verifies the one-shot private-kernel helper
func TestRunWithKernel(t *testing.T) {
	result, err := taskkernel.RunWithKernel(nil, func(tc *taskkernel.TaskContext) (any, error) {
		if err := tc.Sleep(time.Millisecond); err != nil {
			return nil, err
		}
		return "ok", nil
	}, time.Second)

	if err != nil || result != "ok" {
		t.Fatalf("RunWithKernel = (%v, %v), want (ok, nil)", result, err)
	}
}

// TestGlobalKernelLifecycle verifies Init/Shutdown idempotence
func TestGlobalKernelLifecycle(t *testing.T) {
	if err := taskkernel.Init(nil); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if err := taskkernel.Init(nil); err != nil {
		t.Fatalf("second Init failed: %v", err)
	}

	task := taskkernel.Spawn(func(tc *taskkernel.TaskContext) (any, error) {
		return 1, nil
	})
	if _, err := taskkernel.Run(nil, time.Second); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if v, err := task.ResultNonblocking(); err != nil || v != 1 {
		t.Fatalf("task = (%v, %v), want (1, nil)", v, err)
	}

	taskkernel.Shutdown()
	taskkernel.Shutdown() // no-op

	defer func() {
		if recover() == nil {
			t.Fatal("GetGlobalKernel after Shutdown should panic")
		}
	}()
	taskkernel.GetGlobalKernel()
}
