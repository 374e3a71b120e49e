package nats

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/usc-rasc/kinect-bridge2/errors"
	"github.com/usc-rasc/kinect-bridge2/message"
	"github.com/usc-rasc/kinect-bridge2/metric"
	"github.com/usc-rasc/kinect-bridge2/natsclient"
	"github.com/usc-rasc/kinect-bridge2/protocol"
)

const transportLabel = "nats"

// Config holds configuration for the JetStream source
type Config struct {
	// Session selects the capture session to replay; empty means the latest.
	Session       string        `json:"session"        yaml:"session"`
	SessionBucket string        `json:"session_bucket" yaml:"session_bucket"`
	FetchBatch    int           `json:"fetch_batch"    yaml:"fetch_batch"`
	FetchWait     time.Duration `json:"fetch_wait"     yaml:"fetch_wait"`
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.FetchBatch < 0 || c.FetchWait < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"fetch batch and wait cannot be negative")
	}
	return nil
}

// DefaultConfig returns default configuration for the JetStream source
func DefaultConfig() Config {
	return Config{
		SessionBucket: natsclient.DefaultSessionBucket,
		FetchBatch:    64,
		FetchWait:     500 * time.Millisecond,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.SessionBucket == "" {
		c.SessionBucket = d.SessionBucket
	}
	if c.FetchBatch == 0 {
		c.FetchBatch = d.FetchBatch
	}
	if c.FetchWait == 0 {
		c.FetchWait = d.FetchWait
	}
	return c
}

// Option configures an Input.
type Option func(*Input)

// WithLogger sets the logger. A nil logger keeps slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Input) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// WithMetrics reports consumed frames under the "nats" transport label.
func WithMetrics(m *metric.Metrics) Option {
	return func(i *Input) { i.metrics = m }
}

// Input replays one capture session from its stream with an ordered
// consumer. Pull returns io.EOF once the publisher closed the session and
// every frame it recorded has been consumed.
type Input struct {
	cfg     Config
	client  *natsclient.Client
	logger  *slog.Logger
	metrics *metric.Metrics

	mu       sync.Mutex
	sessions *natsclient.SessionStore
	record   *natsclient.SessionRecord
	consumer jetstream.Consumer
	pending  []jetstream.Msg
	closed   bool

	frames  atomic.Int64
	invalid atomic.Int64
}

// New creates a JetStream source consuming through client.
func New(client *natsclient.Client, cfg Config, opts ...Option) (*Input, error) {
	if client == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Input", "New", "nats client is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	i := &Input{
		cfg:    cfg.withDefaults(),
		client: client,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// Open resolves the session and creates the ordered consumer.
func (i *Input) Open(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.openLocked(ctx)
}

func (i *Input) openLocked(ctx context.Context) error {
	if i.closed {
		return errors.WrapTransient(errors.ErrShuttingDown, "Input", "Open", "open session")
	}
	if i.consumer != nil {
		return nil
	}

	sessions, err := i.client.Sessions(ctx, i.cfg.SessionBucket)
	if err != nil {
		return errors.Transport(err, "Input", "Open", "open session store")
	}
	var rec *natsclient.SessionRecord
	if i.cfg.Session == "" {
		rec, err = sessions.Latest(ctx)
	} else {
		rec, err = sessions.Lookup(ctx, i.cfg.Session)
	}
	if err != nil {
		return errors.Transport(errors.Join(errors.ErrNoConnection, err), "Input", "Open", "resolve session")
	}

	consumer, err := i.client.OrderedConsumer(ctx, rec.Stream, rec.Subject)
	if err != nil {
		return errors.Transport(err, "Input", "Open", "create consumer")
	}

	i.sessions = sessions
	i.record = rec
	i.consumer = consumer
	i.logger.Info("NATS input opened",
		"component", "nats-input",
		"stream", rec.Stream,
		"subject", rec.Subject,
		"session", rec.ID)
	return nil
}

// Session returns the record of the session being replayed, or nil before Open.
func (i *Input) Session() *natsclient.SessionRecord {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.record
}

// Pull returns the next frame of the session.
func (i *Input) Pull(ctx context.Context) (*message.Coded, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.closed {
		return nil, io.EOF
	}
	if err := i.openLocked(ctx); err != nil {
		return nil, err
	}

	for len(i.pending) == 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if i.finished() {
			return nil, io.EOF
		}
		if err := i.fetch(ctx); err != nil {
			return nil, err
		}
	}

	msg := i.pending[0]
	i.pending[0] = nil
	i.pending = i.pending[1:]
	i.frames.Add(1)

	c, err := protocol.ParseFrame(msg.Data())
	if err != nil {
		i.invalid.Add(1)
		return nil, err
	}
	if i.metrics != nil {
		i.metrics.FramesRead.WithLabelValues(transportLabel).Inc()
	}
	return c, nil
}

func (i *Input) fetch(ctx context.Context) error {
	batch, err := i.consumer.Fetch(i.cfg.FetchBatch, jetstream.FetchMaxWait(i.cfg.FetchWait))
	if err != nil {
		if i.metrics != nil {
			i.metrics.TransportError.WithLabelValues(transportLabel, "fetch").Inc()
		}
		return errors.Transport(err, "Input", "Pull", "fetch frames")
	}
	for msg := range batch.Messages() {
		i.pending = append(i.pending, msg)
	}
	if len(i.pending) > 0 {
		return nil
	}
	if err := batch.Error(); err != nil && !errors.Is(err, jetstream.ErrNoMessages) && !errors.Is(err, context.DeadlineExceeded) {
		return errors.Transport(err, "Input", "Pull", "fetch frames")
	}

	// Nothing arrived within the wait; refresh the record to see whether
	// the publisher has closed the session.
	rec, err := i.sessions.Lookup(ctx, i.record.ID)
	if err == nil {
		i.record = rec
	}
	return nil
}

// finished reports whether the session is closed and fully consumed.
func (i *Input) finished() bool {
	return i.record.Closed() && i.frames.Load() >= i.record.Frames
}

// Close stops consuming. The ordered consumer is ephemeral and is removed by
// the server.
func (i *Input) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.closed = true
	i.pending = nil
	i.consumer = nil
	return nil
}

// Stats holds consumer counters
type Stats struct {
	Frames  int64
	Invalid int64
}

// Stats returns a snapshot of the consumer counters.
func (i *Input) Stats() Stats {
	return Stats{Frames: i.frames.Load(), Invalid: i.invalid.Load()}
}
