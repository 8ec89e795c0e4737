package prometheus

import (
	"context"
	"sync"
	"time"

	"github.com/Swind/go-task-kernel/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// KernelSnapshotProvider provides current kernel stats snapshots. The
// kernel's StatsSnapshot satisfies this from any thread.
type KernelSnapshotProvider interface {
	StatsSnapshot() core.KernelStats
}

// SnapshotPoller periodically exports kernel StatsSnapshot() values into
// Prometheus gauges. It runs on its own goroutine and never touches the
// kernel's owner-only surface.
type SnapshotPoller struct {
	interval time.Duration

	kernelsMu sync.RWMutex
	kernels   map[string]KernelSnapshotProvider

	ticks   *prom.GaugeVec
	tasks   *prom.GaugeVec
	ready   *prom.GaugeVec
	join    *prom.GaugeVec
	poll    *prom.GaugeVec
	sleep   *prom.GaugeVec
	blocked *prom.GaugeVec
	toRaise *prom.GaugeVec
	timeout *prom.GaugeVec

	stateMu sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSnapshotPoller creates a snapshot poller and registers its collectors.
func NewSnapshotPoller(reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	gauge := func(name, help string) *prom.GaugeVec {
		return prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: "taskkernel",
			Name:      name,
			Help:      help,
		}, []string{"kernel"})
	}

	ticks := gauge("kernel_ticks", "Scheduling loop iterations so far.")
	tasks := gauge("kernel_tasks", "Live tasks per kernel.")
	ready := gauge("kernel_ready", "Ready-queue length per kernel.")
	join := gauge("kernel_blocked_join", "Tasks blocked joining another task.")
	poll := gauge("kernel_blocked_poll", "Tasks blocked on I/O readiness.")
	sleep := gauge("kernel_blocked_sleep", "Tasks blocked on sleep deadlines.")
	blocked := gauge("kernel_blocked_generic", "Tasks blocked on generic or forever sources.")
	toRaise := gauge("kernel_to_raise", "Tasks with a pending injected error.")
	timeout := gauge("kernel_timeouts", "Tasks with an armed per-task timeout.")

	var err error
	if ticks, err = registerCollector(reg, ticks); err != nil {
		return nil, err
	}
	if tasks, err = registerCollector(reg, tasks); err != nil {
		return nil, err
	}
	if ready, err = registerCollector(reg, ready); err != nil {
		return nil, err
	}
	if join, err = registerCollector(reg, join); err != nil {
		return nil, err
	}
	if poll, err = registerCollector(reg, poll); err != nil {
		return nil, err
	}
	if sleep, err = registerCollector(reg, sleep); err != nil {
		return nil, err
	}
	if blocked, err = registerCollector(reg, blocked); err != nil {
		return nil, err
	}
	if toRaise, err = registerCollector(reg, toRaise); err != nil {
		return nil, err
	}
	if timeout, err = registerCollector(reg, timeout); err != nil {
		return nil, err
	}

	return &SnapshotPoller{
		interval: interval,
		kernels:  make(map[string]KernelSnapshotProvider),
		ticks:    ticks,
		tasks:    tasks,
		ready:    ready,
		join:     join,
		poll:     poll,
		sleep:    sleep,
		blocked:  blocked,
		toRaise:  toRaise,
		timeout:  timeout,
	}, nil
}

// AddKernel adds or replaces a kernel snapshot provider by name.
func (p *SnapshotPoller) AddKernel(name string, provider KernelSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "kernel")
	p.kernelsMu.Lock()
	p.kernels[name] = provider
	p.kernelsMu.Unlock()
}

// Start begins periodic polling; repeated calls are no-ops.
func (p *SnapshotPoller) Start(ctx context.Context) {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if p.running {
		p.stateMu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	p.stateMu.Unlock()

	go p.loop(pollCtx)
}

// Stop stops periodic polling; repeated calls are safe.
func (p *SnapshotPoller) Stop() {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if !p.running {
		p.stateMu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.stateMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	p.stateMu.Lock()
	p.running = false
	p.cancel = nil
	p.done = nil
	p.stateMu.Unlock()
}

func (p *SnapshotPoller) loop(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.collectOnce()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.collectOnce()
		}
	}
}

func (p *SnapshotPoller) collectOnce() {
	p.kernelsMu.RLock()
	defer p.kernelsMu.RUnlock()
	for name, provider := range p.kernels {
		stats := provider.StatsSnapshot()
		p.ticks.WithLabelValues(name).Set(float64(stats.NumTicks))
		p.tasks.WithLabelValues(name).Set(float64(stats.NumTasks))
		p.ready.WithLabelValues(name).Set(float64(stats.NumReady))
		p.join.WithLabelValues(name).Set(float64(stats.NumJoin))
		p.poll.WithLabelValues(name).Set(float64(stats.NumPoll))
		p.sleep.WithLabelValues(name).Set(float64(stats.NumSleep))
		p.blocked.WithLabelValues(name).Set(float64(stats.NumBlocked))
		p.toRaise.WithLabelValues(name).Set(float64(stats.NumToRaise))
		p.timeout.WithLabelValues(name).Set(float64(stats.NumTimeout))
	}
}
