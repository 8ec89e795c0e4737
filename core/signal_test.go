//go:build linux

package core

import (
	"errors"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

// TestSignalBridge_DeliversSignal verifies end-to-end signal delivery
// Given: A task waiting on the bridge for SIGUSR1
// When: The process signals itself
// Then: The task wakes with the signal
func TestSignalBridge_DeliversSignal(t *testing.T) {
	kernel := newTestKernel(t)
	bridge := NewSignalBridge(kernel, unix.SIGUSR1)
	defer bridge.Stop()

	go func() {
		time.Sleep(20 * time.Millisecond)
		unix.Kill(unix.Getpid(), unix.SIGUSR1)
	}()

	result, err := kernel.Run(func(tc *TaskContext) (any, error) {
		return bridge.Wait(tc)
	}, 5*time.Second)

	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result != unix.SIGUSR1 {
		t.Fatalf("signal = %v, want SIGUSR1", result)
	}
}

// TestSignalBridge_StopWakesWaiter verifies shutdown behavior
func TestSignalBridge_StopWakesWaiter(t *testing.T) {
	kernel := newTestKernel(t)
	bridge := NewSignalBridge(kernel, unix.SIGUSR2)

	go func() {
		time.Sleep(20 * time.Millisecond)
		bridge.Stop()
	}()

	_, err := kernel.Run(func(tc *TaskContext) (any, error) {
		return bridge.Wait(tc)
	}, 5*time.Second)

	if !errors.Is(err, ErrSignalBridgeStopped) {
		t.Fatalf("Wait err = %v, want ErrSignalBridgeStopped", err)
	}
	bridge.Stop() // idempotent
}
