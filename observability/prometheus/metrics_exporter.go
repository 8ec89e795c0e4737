package prometheus

import (
	"errors"
	"fmt"
	"time"

	"github.com/Swind/go-task-kernel/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// ExporterOptions controls collector configuration.
type ExporterOptions struct {
	DurationBuckets []float64
}

// MetricsExporter adapts core.Metrics to Prometheus collectors.
type MetricsExporter struct {
	taskSpawnedTotal    *prom.CounterVec
	taskCompletedTotal  *prom.CounterVec
	taskDurationSeconds *prom.HistogramVec
	pollWakeFDs         prom.Histogram
}

var _ core.Metrics = (*MetricsExporter)(nil)

// NewMetricsExporter creates and registers Prometheus collectors for core.Metrics.
func NewMetricsExporter(namespace string, reg prom.Registerer, opts ExporterOptions) (*MetricsExporter, error) {
	if namespace == "" {
		namespace = "taskkernel"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	buckets := opts.DurationBuckets
	if len(buckets) == 0 {
		buckets = prom.DefBuckets
	}

	spawnedVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "task_spawned_total",
		Help:      "Total number of spawned tasks.",
	}, []string{"task"})
	completedVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "task_completed_total",
		Help:      "Total number of completed tasks by completion status.",
	}, []string{"task", "status"})
	durationVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "task_duration_seconds",
		Help:      "Task wall time from spawn to completion in seconds.",
		Buckets:   buckets,
	}, []string{"task"})
	pollWake := prom.NewHistogram(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "poll_wake_fds",
		Help:      "Descriptors reported ready per poll wakeup.",
		Buckets:   []float64{0, 1, 2, 4, 8, 16, 32, 64, 128},
	})

	var err error
	if spawnedVec, err = registerCollector(reg, spawnedVec); err != nil {
		return nil, err
	}
	if completedVec, err = registerCollector(reg, completedVec); err != nil {
		return nil, err
	}
	if durationVec, err = registerCollector(reg, durationVec); err != nil {
		return nil, err
	}
	if pollWake, err = registerCollector(reg, pollWake); err != nil {
		return nil, err
	}

	return &MetricsExporter{
		taskSpawnedTotal:    spawnedVec,
		taskCompletedTotal:  completedVec,
		taskDurationSeconds: durationVec,
		pollWakeFDs:         pollWake,
	}, nil
}

// RecordSpawn records a task spawn.
func (m *MetricsExporter) RecordSpawn(taskName string) {
	if m == nil {
		return
	}
	m.taskSpawnedTotal.WithLabelValues(normalizeLabel(taskName, "unknown")).Inc()
}

// RecordTaskCompleted records a task completion with its status and wall time.
func (m *MetricsExporter) RecordTaskCompleted(taskName string, status core.TaskStatus, duration time.Duration) {
	if m == nil {
		return
	}
	name := normalizeLabel(taskName, "unknown")
	m.taskCompletedTotal.WithLabelValues(name, statusLabel(status)).Inc()
	m.taskDurationSeconds.WithLabelValues(name).Observe(duration.Seconds())
}

// RecordPollWake records how many descriptors one poll call reported.
func (m *MetricsExporter) RecordPollWake(numReady int) {
	if m == nil {
		return
	}
	m.pollWakeFDs.Observe(float64(numReady))
}

func normalizeLabel(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func statusLabel(status core.TaskStatus) string {
	switch status {
	case core.TaskStatusOK, core.TaskStatusError, core.TaskStatusCancelled,
		core.TaskStatusTimeout, core.TaskStatusPanic:
		return string(status)
	default:
		return "unknown"
	}
}

func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegisteredErr prom.AlreadyRegisteredError
	if errors.As(err, &alreadyRegisteredErr) {
		existing, ok := alreadyRegisteredErr.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}

	return collector, err
}
