package scheduler

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/RoboSDK/flow/logging"
	"github.com/RoboSDK/flow/metric"
)

// Pool launches long-lived routines as tracked goroutines and offers the
// scheduling surface the drivers consume: Yield between invocations,
// AfterFunc for the cancellation timer, and Wait as the join.
//
// The Go runtime supplies the work stealing; the pool records the advertised
// worker count for observability but never queues a routine behind it, since
// routines block at channel suspension points for their whole lifetime.
type Pool struct {
	workers int
	logger  *slog.Logger

	wg sync.WaitGroup

	timersMu sync.Mutex
	timers   []*time.Timer

	// Statistics (atomic)
	submitted atomic.Int64
	active    atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64

	metrics *poolMetrics
}

type poolMetrics struct {
	active    prometheus.Gauge
	submitted prometheus.Counter
	completed prometheus.Counter
	failed    prometheus.Counter
}

// Option represents a configuration option for the pool
type Option func(*Pool)

// WithWorkers records the advertised worker count. Defaults to GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithLogger sets the pool's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pool) {
		p.logger = logger
	}
}

// WithMetrics registers task gauges and counters with the metrics registry.
func WithMetrics(registry *metric.MetricsRegistry, prefix string) Option {
	return func(p *Pool) {
		if registry == nil || prefix == "" {
			return
		}

		active := prometheus.NewGauge(prometheus.GaugeOpts{
			Name: prefix + "_tasks_active",
			Help: "Routines currently running on the pool",
		})
		submitted := prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "_tasks_submitted_total",
			Help: "Total routines submitted",
		})
		completed := prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "_tasks_completed_total",
			Help: "Total routines that returned without error",
		})
		failed := prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "_tasks_failed_total",
			Help: "Total routines that returned an error",
		})

		const component = "scheduler"
		registry.RegisterGauge(component, prefix+"_tasks_active", active)
		registry.RegisterCounter(component, prefix+"_tasks_submitted_total", submitted)
		registry.RegisterCounter(component, prefix+"_tasks_completed_total", completed)
		registry.RegisterCounter(component, prefix+"_tasks_failed_total", failed)

		p.metrics = &poolMetrics{
			active:    active,
			submitted: submitted,
			completed: completed,
			failed:    failed,
		}
	}
}

// NewPool creates a pool with optional configuration.
func NewPool(opts ...Option) *Pool {
	p := &Pool{
		workers: runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = logging.Default(p.logger)
	return p
}

// Workers returns the advertised worker count.
func (p *Pool) Workers() int { return p.workers }

// Submit launches task as one tracked goroutine. The task's error is
// recorded in the statistics and logged; Spin-level error propagation is the
// caller's concern.
func (p *Pool) Submit(ctx context.Context, name string, task func(context.Context) error) {
	p.submitted.Add(1)
	p.active.Add(1)
	if p.metrics != nil {
		p.metrics.submitted.Inc()
		p.metrics.active.Inc()
	}

	p.wg.Add(1)
	go func() {
		defer func() {
			p.active.Add(-1)
			if p.metrics != nil {
				p.metrics.active.Dec()
			}
			p.wg.Done()
		}()

		if err := task(ctx); err != nil {
			p.failed.Add(1)
			if p.metrics != nil {
				p.metrics.failed.Inc()
			}
			p.logger.Error("routine failed", slog.String("routine", name), slog.Any("error", err))
			return
		}

		p.completed.Add(1)
		if p.metrics != nil {
			p.metrics.completed.Inc()
		}
		p.logger.Debug("routine completed", slog.String("routine", name))
	}()
}

// AfterFunc arms a one-shot timer on the pool. Timers are stopped by Stop.
func (p *Pool) AfterFunc(d time.Duration, fn func()) *time.Timer {
	timer := time.AfterFunc(d, fn)
	p.timersMu.Lock()
	p.timers = append(p.timers, timer)
	p.timersMu.Unlock()
	return timer
}

// Yield gives up the worker so other routines can make progress.
func (p *Pool) Yield() {
	runtime.Gosched()
}

// Wait blocks until every submitted task has returned.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Stop cancels outstanding timers. Running routines are not interrupted;
// cancellation is cooperative and flows through tokens.
func (p *Pool) Stop() {
	p.timersMu.Lock()
	timers := p.timers
	p.timers = nil
	p.timersMu.Unlock()
	for _, timer := range timers {
		timer.Stop()
	}
}

// Stats is a point-in-time copy of pool statistics.
type Stats struct {
	Submitted int64
	Active    int64
	Completed int64
	Failed    int64
}

// Stats returns a snapshot of the pool statistics.
func (p *Pool) Stats() Stats {
	return Stats{
		Submitted: p.submitted.Load(),
		Active:    p.active.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
	}
}
