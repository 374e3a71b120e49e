package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/usc-rasc/kinect-bridge2/codec"
	"github.com/usc-rasc/kinect-bridge2/errors"
	"github.com/usc-rasc/kinect-bridge2/health"
	"github.com/usc-rasc/kinect-bridge2/message"
	"github.com/usc-rasc/kinect-bridge2/metric"
	"github.com/usc-rasc/kinect-bridge2/pkg/queue"
	"github.com/usc-rasc/kinect-bridge2/pkg/worker"
	"github.com/usc-rasc/kinect-bridge2/protocol"
)

// AcquireFunc pulls one raw message from the device. It must not block
// for long; a device with nothing to deliver returns ErrDeviceNotReady.
type AcquireFunc func(ctx context.Context) (message.Message, error)

// Modality is one acquisition source and its compression stage.
type Modality struct {
	Name    string
	Acquire AcquireFunc
	Coder   *codec.Coder
	// Workers is the size of the compression pool.
	Workers int
	// HighWater overrides Config.ModalityHighWater when positive.
	HighWater int
}

type stage struct {
	Modality
	queue    *queue.Queue[message.Message]
	acquire  *worker.Pool
	compress *worker.Pool

	acquired atomic.Int64
	encoded  atomic.Int64
	dropped  atomic.Int64
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithMetrics exports stage, queue and writer metrics to registry.
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(p *Pipeline) {
		p.registry = registry
	}
}

// WithRegistry names payload types in statistics from r instead of
// message.Default().
func WithRegistry(r *message.Registry) Option {
	return func(p *Pipeline) {
		if r != nil {
			p.types = r
		}
	}
}

// WithSession sets the session ID; the default is a random UUID.
func WithSession(id string) Option {
	return func(p *Pipeline) {
		if id != "" {
			p.session = id
		}
	}
}

// Pipeline is the acquisition → compression → writer engine.
type Pipeline struct {
	cfg    Config
	sink   protocol.Sink
	stages []*stage
	output *queue.Queue[*message.Coded]
	writer *worker.Pool

	logger   *slog.Logger
	registry *metric.MetricsRegistry
	metrics  *metric.Metrics
	types    *message.Registry
	session  string

	stats *writerStats

	lifecycleMu  sync.Mutex
	started      bool
	stopped      bool
	startTime    time.Time
	statusCancel context.CancelFunc
	statusDone   chan struct{}
}

// New assembles a pipeline writing to sink. Modality names must be unique.
func New(cfg Config, sink protocol.Sink, modalities []Modality, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if sink == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Pipeline", "New", "sink is required")
	}
	if len(modalities) == 0 {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Pipeline", "New", "at least one modality is required")
	}

	p := &Pipeline{
		cfg:    cfg,
		sink:   sink,
		logger: slog.Default(),
		types:  message.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.session == "" {
		p.session = uuid.NewString()
	}
	p.logger = p.logger.With("component", "pipeline", "session", p.session)
	if p.registry != nil {
		p.metrics = p.registry.CoreMetrics()
	}
	poolOpts := []worker.Option{}
	if p.metrics != nil {
		poolOpts = append(poolOpts, worker.WithMetrics(p.metrics))
	}

	seen := make(map[string]bool, len(modalities))
	for _, m := range modalities {
		switch {
		case m.Name == "":
			return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Pipeline", "New", "modality without a name")
		case seen[m.Name]:
			return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Pipeline", "New",
				fmt.Sprintf("duplicate modality %q", m.Name))
		case m.Acquire == nil || m.Coder == nil:
			return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Pipeline", "New",
				fmt.Sprintf("modality %q needs an acquirer and a coder", m.Name))
		}
		seen[m.Name] = true

		if m.HighWater <= 0 {
			m.HighWater = cfg.ModalityHighWater
		}
		q, err := queue.New(m.HighWater, queue.WithMetrics[message.Message](p.registry, m.Name))
		if err != nil {
			return nil, errors.Wrap(err, "Pipeline", "New", "create "+m.Name+" queue")
		}
		s := &stage{Modality: m, queue: q}
		s.acquire = worker.NewPool("acquire_"+m.Name, 1, p.acquireStep(s),
			append(poolOpts, worker.WithErrorHandler(p.stageError("acquire_"+m.Name)))...)
		s.compress = worker.NewPool("compress_"+m.Name, m.Workers, p.compressStep(s),
			append(poolOpts, worker.WithErrorHandler(p.stageError("compress_"+m.Name)))...)
		p.stages = append(p.stages, s)
	}

	out, err := queue.New(cfg.OutputHighWater, queue.WithMetrics[*message.Coded](p.registry, "output"))
	if err != nil {
		return nil, errors.Wrap(err, "Pipeline", "New", "create output queue")
	}
	p.output = out
	p.writer = worker.NewPool("writer", 1, p.writeStep,
		append(poolOpts, worker.WithErrorHandler(p.stageError("writer")))...)
	return p, nil
}

// Session returns the session ID carried in statistics and logs.
func (p *Pipeline) Session() string {
	return p.session
}

// Start launches the writer, then the compression pools, then acquisition.
// Stages run on a context detached from ctx's cancellation; use Stop or
// Run to shut down.
func (p *Pipeline) Start(ctx context.Context) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if p.started {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Pipeline", "Start", "start pipeline")
	}
	p.started = true
	p.startTime = time.Now()
	p.stats = newWriterStats(p.session, p.startTime)

	runCtx := context.WithoutCancel(ctx)
	if err := p.writer.Start(runCtx); err != nil {
		return errors.WrapFatal(err, "Pipeline", "Start", "start writer")
	}
	for _, s := range p.stages {
		if err := s.compress.Start(runCtx); err != nil {
			return errors.WrapFatal(err, "Pipeline", "Start", "start compression "+s.Name)
		}
	}
	for _, s := range p.stages {
		if err := s.acquire.Start(runCtx); err != nil {
			return errors.WrapFatal(err, "Pipeline", "Start", "start acquisition "+s.Name)
		}
	}

	if p.cfg.StatusInterval > 0 {
		statusCtx, cancel := context.WithCancel(runCtx)
		p.statusCancel = cancel
		p.statusDone = make(chan struct{})
		go p.statusLoop(statusCtx, p.statusDone)
	}
	if p.metrics != nil {
		p.metrics.PipelineRunning.Set(1)
	}

	attrs := make([]any, 0, 2*len(p.stages))
	for _, s := range p.stages {
		attrs = append(attrs, s.Name, s.compress.Stats().Workers)
	}
	p.logger.Info("Pipeline started", slog.Group("compression_workers", attrs...))
	return nil
}

// Run starts the pipeline, waits for ctx to end and stops it.
func (p *Pipeline) Run(ctx context.Context) error {
	if err := p.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	p.logger.Info("Shutting down pipeline", "reason", context.Cause(ctx))
	return p.Stop(p.cfg.JoinTimeout)
}

// Stop shuts the stages down in order. The pools of a phase are joined
// together, each waiting at most timeout to drain before it is flagged; a
// non-positive timeout uses Config.JoinTimeout. Stopping twice is a no-op.
func (p *Pipeline) Stop(timeout time.Duration) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if !p.started || p.stopped {
		return nil
	}
	p.stopped = true
	if timeout <= 0 {
		timeout = p.cfg.JoinTimeout
	}

	var errs []error

	// Acquisition loops never block, so the flag is enough.
	acquire := make([]*worker.Pool, len(p.stages))
	for i, s := range p.stages {
		acquire[i] = s.acquire
	}
	errs = append(errs, joinAll(acquire, func(pool *worker.Pool) error {
		if err := pool.Stop(timeout); err != nil {
			return errors.Wrap(err, "Pipeline", "Stop", "join "+pool.Name())
		}
		return nil
	})...)

	// Closed queues only shrink; compression exits once its queue is drained.
	compress := make([]*worker.Pool, len(p.stages))
	for i, s := range p.stages {
		s.queue.Close()
		compress[i] = s.compress
	}
	errs = append(errs, joinAll(compress, func(pool *worker.Pool) error {
		return p.join(pool, timeout)
	})...)
	for _, s := range p.stages {
		if n := drain(s.queue); n > 0 {
			s.dropped.Add(n)
			p.drop("compress_"+s.Name, n)
		}
	}

	p.output.Close()
	if err := p.join(p.writer, timeout); err != nil {
		errs = append(errs, err)
	}
	if n := drain(p.output); n > 0 {
		p.drop("writer", n)
	}

	if err := p.sink.Flush(); err != nil {
		errs = append(errs, errors.Wrap(err, "Pipeline", "Stop", "flush sink"))
	}
	if err := p.sink.Close(); err != nil {
		errs = append(errs, errors.Wrap(err, "Pipeline", "Stop", "close sink"))
	}

	if p.statusCancel != nil {
		p.statusCancel()
		<-p.statusDone
	}
	if p.metrics != nil {
		p.metrics.PipelineRunning.Set(0)
	}

	st := p.stats.snapshot()
	p.logger.Info("Pipeline stopped",
		"messages", st.Messages,
		"mbytes", fmt.Sprintf("%.2f", st.MBytes()),
		"dropped", st.Dropped,
		"elapsed", time.Since(p.startTime).Round(time.Millisecond))
	return errors.Join(errs...)
}

// join waits for pool to finish on its own, then falls back to flagging
// and cancelling it.
func (p *Pipeline) join(pool *worker.Pool, timeout time.Duration) error {
	if err := pool.Wait(timeout); err == nil {
		return nil
	}
	p.logger.Warn("Stage did not drain in time, stopping it", "stage", pool.Name(), "timeout", timeout)
	if err := pool.Stop(timeout); err != nil {
		return errors.Wrap(err, "Pipeline", "Stop", "join "+pool.Name())
	}
	return nil
}

// joinAll runs join for every pool concurrently and returns the failures.
func joinAll(pools []*worker.Pool, join func(*worker.Pool) error) []error {
	errs := make([]error, len(pools))
	var g errgroup.Group
	for i, pool := range pools {
		g.Go(func() error {
			errs[i] = join(pool)
			return nil
		})
	}
	_ = g.Wait()
	return slices.DeleteFunc(errs, func(err error) bool { return err == nil })
}

func drain[T any](q *queue.Queue[T]) int64 {
	var n int64
	for {
		if _, ok := q.TryPop(); !ok {
			return n
		}
		n++
	}
}

// Stats returns a snapshot of the writer statistics.
func (p *Pipeline) Stats() Stats {
	p.lifecycleMu.Lock()
	ws := p.stats
	p.lifecycleMu.Unlock()
	if ws == nil {
		return Stats{Session: p.session, PerType: map[string]int64{}}
	}
	return ws.snapshot()
}

// Health reports the pipeline state with one sub-status per queue.
func (p *Pipeline) Health() health.Status {
	p.lifecycleMu.Lock()
	started, stopped, since := p.started, p.stopped, p.startTime
	p.lifecycleMu.Unlock()

	if !started || stopped {
		return health.NewUnhealthy("pipeline", "not running")
	}

	subs := make([]health.Status, 0, len(p.stages)+1)
	for _, s := range p.stages {
		subs = append(subs, health.Queue(s.Name, s.queue.Len(), s.queue.HighWater()))
	}
	subs = append(subs, health.Queue("output", p.output.Len(), p.output.HighWater()))

	st := p.Stats()
	status := health.Aggregate("pipeline", subs)
	return status.WithMetrics(&health.Metrics{
		Uptime:            time.Since(since),
		ErrorCount:        st.Dropped,
		MessagesProcessed: st.Messages,
		QueueLength:       p.output.Len(),
		HighWater:         p.output.HighWater(),
	})
}

func (p *Pipeline) stageError(stage string) func(error) {
	return func(err error) {
		p.logger.Warn("Stage error", "stage", stage, "class", errors.Classify(err).String(), "error", err)
	}
}

func (p *Pipeline) drop(stage string, n int64) {
	if p.stats != nil {
		p.stats.dropped(n)
	}
	if p.metrics != nil {
		p.metrics.MessagesDropped.WithLabelValues(stage).Add(float64(n))
	}
}
