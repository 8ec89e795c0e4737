package prometheus

import (
	"context"
	"testing"
	"time"

	"github.com/Swind/go-task-kernel/core"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// TestMetricsExporter_RecordsCounters verifies that the core.Metrics hooks
// land in the registered collectors
// Given: An exporter on a private registry
// When: Spawn, completion and poll-wake events are recorded
// Then: The counters and histograms reflect them
func TestMetricsExporter_RecordsCounters(t *testing.T) {
	// Arrange
	reg := prom.NewRegistry()
	exporter, err := NewMetricsExporter("test", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("NewMetricsExporter failed: %v", err)
	}

	// Act
	exporter.RecordSpawn("worker")
	exporter.RecordSpawn("worker")
	exporter.RecordTaskCompleted("worker", core.TaskStatusOK, 5*time.Millisecond)
	exporter.RecordTaskCompleted("worker", core.TaskStatusCancelled, time.Millisecond)
	exporter.RecordPollWake(3)

	// Assert
	if got := testutil.ToFloat64(exporter.taskSpawnedTotal.WithLabelValues("worker")); got != 2 {
		t.Errorf("task_spawned_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(exporter.taskCompletedTotal.WithLabelValues("worker", "ok")); got != 1 {
		t.Errorf("task_completed_total{ok} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(exporter.taskCompletedTotal.WithLabelValues("worker", "cancelled")); got != 1 {
		t.Errorf("task_completed_total{cancelled} = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(exporter.taskDurationSeconds); got != 1 {
		t.Errorf("task_duration_seconds series = %d, want 1", got)
	}
}

// TestMetricsExporter_ReregisterReusesCollectors verifies the
// AlreadyRegisteredError path
func TestMetricsExporter_ReregisterReusesCollectors(t *testing.T) {
	reg := prom.NewRegistry()
	first, err := NewMetricsExporter("test", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("first NewMetricsExporter failed: %v", err)
	}
	second, err := NewMetricsExporter("test", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("second NewMetricsExporter failed: %v", err)
	}

	first.RecordSpawn("w")
	second.RecordSpawn("w")
	if got := testutil.ToFloat64(second.taskSpawnedTotal.WithLabelValues("w")); got != 2 {
		t.Errorf("shared counter = %v, want 2", got)
	}
}

// TestMetricsExporter_NilReceiver verifies the optional-metrics contract
func TestMetricsExporter_NilReceiver(t *testing.T) {
	var exporter *MetricsExporter
	exporter.RecordSpawn("w")
	exporter.RecordTaskCompleted("w", core.TaskStatusOK, 0)
	exporter.RecordPollWake(0)
}

type fakeProvider struct {
	stats core.KernelStats
}

func (f *fakeProvider) StatsSnapshot() core.KernelStats {
	return f.stats
}

// TestSnapshotPoller_ExportsGauges verifies stats-to-gauge mapping
func TestSnapshotPoller_ExportsGauges(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller(reg, time.Second)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}
	poller.AddKernel("main", &fakeProvider{stats: core.KernelStats{
		NumTicks: 7,
		NumTasks: 3,
		NumReady: 1,
		NumSleep: 2,
	}})

	poller.collectOnce()

	if got := testutil.ToFloat64(poller.ticks.WithLabelValues("main")); got != 7 {
		t.Errorf("kernel_ticks = %v, want 7", got)
	}
	if got := testutil.ToFloat64(poller.tasks.WithLabelValues("main")); got != 3 {
		t.Errorf("kernel_tasks = %v, want 3", got)
	}
	if got := testutil.ToFloat64(poller.sleep.WithLabelValues("main")); got != 2 {
		t.Errorf("kernel_blocked_sleep = %v, want 2", got)
	}
}

// TestSnapshotPoller_StartStop verifies lifecycle idempotence
func TestSnapshotPoller_StartStop(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller(reg, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}
	poller.AddKernel("k", &fakeProvider{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	poller.Start(ctx)
	poller.Start(ctx) // no-op
	time.Sleep(30 * time.Millisecond)
	poller.Stop()
	poller.Stop() // no-op
}
