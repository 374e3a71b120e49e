package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	cerrors "github.com/usc-rasc/kinect-bridge2/errors"
	"github.com/usc-rasc/kinect-bridge2/metric"
)

// StepFunc performs one unit of work.
type StepFunc func(ctx context.Context) error

// Pool runs a step function on a fixed number of goroutines.
type Pool struct {
	name    string
	workers int
	step    StepFunc

	onError func(error)
	metrics *metric.Metrics

	lifecycleMu sync.Mutex
	started     bool
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	done        chan struct{}

	stopping atomic.Bool
	running  atomic.Int64
	steps    atomic.Int64
	failed   atomic.Int64
}

// Option represents a configuration option for the worker pool
type Option func(*Pool)

// WithErrorHandler registers fn to receive every failed step's error.
// It runs on the worker goroutine.
func WithErrorHandler(fn func(error)) Option {
	return func(p *Pool) {
		p.onError = fn
	}
}

// WithMetrics reports worker counts and step errors under the pool's name.
func WithMetrics(m *metric.Metrics) Option {
	return func(p *Pool) {
		p.metrics = m
	}
}

// NewPool creates a pool named name (used as the stage label).
// A non-positive workers defaults to one.
func NewPool(name string, workers int, step StepFunc, opts ...Option) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if step == nil {
		panic(ErrNilStep)
	}

	pool := &Pool{
		name:    name,
		workers: workers,
		step:    step,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(pool)
	}
	return pool
}

// Name returns the stage name
func (p *Pool) Name() string {
	return p.name
}

// Start launches the workers. Steps receive a context derived from ctx
// that is also cancelled by Stop.
func (p *Pool) Start(ctx context.Context) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if p.started {
		return ErrPoolAlreadyStarted
	}
	p.started = true

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(runCtx)
	}

	go func() {
		p.wg.Wait()
		cancel()
		close(p.done)
	}()

	return nil
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()

	p.running.Add(1)
	if p.metrics != nil {
		p.metrics.StageWorkers.WithLabelValues(p.name).Inc()
	}
	defer func() {
		p.running.Add(-1)
		if p.metrics != nil {
			p.metrics.StageWorkers.WithLabelValues(p.name).Dec()
		}
	}()

	for !p.stopping.Load() {
		err := p.step(ctx)
		p.steps.Add(1)
		if err == nil {
			continue
		}
		if errors.Is(err, ErrDone) {
			return
		}
		if p.stopping.Load() && errors.Is(err, context.Canceled) {
			return
		}

		p.failed.Add(1)
		if p.metrics != nil {
			p.metrics.StageErrors.WithLabelValues(p.name, cerrors.Classify(err).String()).Inc()
		}
		if p.onError != nil {
			p.onError(err)
		}
	}
}

// Stop sets the stop flag, cancels running steps and waits up to timeout
// for every worker to exit. Stopping a pool that never started is a no-op.
func (p *Pool) Stop(timeout time.Duration) error {
	p.lifecycleMu.Lock()
	started := p.started
	cancel := p.cancel
	p.lifecycleMu.Unlock()

	if !started {
		return nil
	}
	p.stopping.Store(true)
	cancel()
	return p.join(timeout)
}

// Wait joins the workers without flagging them. The caller is expected to
// have arranged for every step to eventually return ErrDone.
func (p *Pool) Wait(timeout time.Duration) error {
	p.lifecycleMu.Lock()
	started := p.started
	p.lifecycleMu.Unlock()

	if !started {
		return nil
	}
	return p.join(timeout)
}

func (p *Pool) join(timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-p.done:
		return nil
	case <-timer.C:
		return ErrStopTimeout
	}
}

// Done is closed once every worker has exited.
func (p *Pool) Done() <-chan struct{} {
	return p.done
}

// Stats returns current pool statistics
func (p *Pool) Stats() PoolStats {
	return PoolStats{
		Name:    p.name,
		Workers: p.workers,
		Running: int(p.running.Load()),
		Steps:   p.steps.Load(),
		Failed:  p.failed.Load(),
	}
}

// PoolStats represents worker pool statistics
type PoolStats struct {
	Name    string `json:"name"`
	Workers int    `json:"workers"`
	Running int    `json:"running"`
	Steps   int64  `json:"steps"`
	Failed  int64  `json:"failed"`
}
