package nats

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/usc-rasc/kinect-bridge2/errors"
	"github.com/usc-rasc/kinect-bridge2/message"
	"github.com/usc-rasc/kinect-bridge2/metric"
	"github.com/usc-rasc/kinect-bridge2/natsclient"
	"github.com/usc-rasc/kinect-bridge2/pkg/retry"
	"github.com/usc-rasc/kinect-bridge2/protocol"
)

const transportLabel = "nats"

// Config holds configuration for the JetStream sink
type Config struct {
	Stream          string        `json:"stream"           yaml:"stream"`
	Subject         string        `json:"subject"          yaml:"subject"`
	SessionBucket   string        `json:"session_bucket"   yaml:"session_bucket"`
	MaxAge          time.Duration `json:"max_age"          yaml:"max_age"`
	PublishTimeout  time.Duration `json:"publish_timeout"  yaml:"publish_timeout"`
	PublishAttempts int           `json:"publish_attempts" yaml:"publish_attempts"`
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Stream == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "stream is required")
	}
	if c.Subject == "" || strings.ContainsAny(c.Subject, "*> ") {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("subject %q must be a literal subject", c.Subject))
	}
	if c.MaxAge < 0 || c.PublishTimeout < 0 || c.PublishAttempts < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"durations and attempts cannot be negative")
	}
	return nil
}

// DefaultConfig returns default configuration for the JetStream sink
func DefaultConfig() Config {
	return Config{
		Stream:          "KINECT",
		Subject:         "kinect.frames",
		SessionBucket:   natsclient.DefaultSessionBucket,
		MaxAge:          24 * time.Hour,
		PublishTimeout:  5 * time.Second,
		PublishAttempts: 3,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.SessionBucket == "" {
		c.SessionBucket = d.SessionBucket
	}
	if c.PublishTimeout == 0 {
		c.PublishTimeout = d.PublishTimeout
	}
	if c.PublishAttempts == 0 {
		c.PublishAttempts = d.PublishAttempts
	}
	return c
}

// SessionSubject is the subject frames of session id are published on.
func SessionSubject(subject, id string) string {
	return subject + "." + id
}

// Option configures an Output.
type Option func(*Output)

// WithLogger sets the logger. A nil logger keeps slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Output) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics reports published frames under the "nats" transport label.
func WithMetrics(m *metric.Metrics) Option {
	return func(o *Output) { o.metrics = m }
}

// WithSessionID replaces the generated session ID.
func WithSessionID(id string) Option {
	return func(o *Output) { o.session = id }
}

// Output publishes every frame as one JetStream message on the session
// subject. Each message carries a unique message ID so a retried publish is
// stored at most once.
type Output struct {
	cfg     Config
	client  *natsclient.Client
	logger  *slog.Logger
	metrics *metric.Metrics

	session  string
	subject  string
	sessions *natsclient.SessionStore

	mu     sync.Mutex
	opened bool
	closed bool
	seq    uint64
	frame  []byte

	framesWritten atomic.Int64
	bytesWritten  atomic.Int64
	duplicates    atomic.Int64
	errors        atomic.Int64
}

// New creates a JetStream sink publishing through client.
func New(client *natsclient.Client, cfg Config, opts ...Option) (*Output, error) {
	if client == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Output", "New", "nats client is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &Output{
		cfg:    cfg.withDefaults(),
		client: client,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.session == "" {
		o.session = uuid.NewString()
	}
	o.subject = SessionSubject(o.cfg.Subject, o.session)
	return o, nil
}

// Session returns the session ID frames are published under.
func (o *Output) Session() string {
	return o.session
}

// Open creates the stream when needed and records the session start.
func (o *Output) Open(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return errors.WrapTransient(errors.ErrShuttingDown, "Output", "Open", "open session")
	}
	if o.opened {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Output", "Open", "open session")
	}

	_, err := o.client.EnsureStream(ctx, jetstream.StreamConfig{
		Name:        o.cfg.Stream,
		Description: "kinect coded message frames",
		Subjects:    []string{o.cfg.Subject + ".>"},
		Storage:     jetstream.FileStorage,
		MaxAge:      o.cfg.MaxAge,
		Duplicates:  2 * time.Minute,
	})
	if err != nil {
		return errors.Transport(err, "Output", "Open", "ensure stream")
	}

	sessions, err := o.client.Sessions(ctx, o.cfg.SessionBucket)
	if err != nil {
		return errors.Transport(err, "Output", "Open", "open session store")
	}
	host, _ := os.Hostname()
	err = sessions.Begin(ctx, natsclient.SessionRecord{
		ID:        o.session,
		Stream:    o.cfg.Stream,
		Subject:   o.subject,
		Host:      host,
		StartedAt: time.Now().UTC(),
	})
	if err != nil {
		return errors.Transport(err, "Output", "Open", "begin session")
	}

	o.sessions = sessions
	o.opened = true
	o.logger.Info("NATS output opened",
		"component", "nats-output",
		"stream", o.cfg.Stream,
		"subject", o.subject,
		"session", o.session)
	return nil
}

// Push publishes c and waits for the stream acknowledgement. Transient
// failures are retried with the same message ID.
func (o *Output) Push(ctx context.Context, c *message.Coded) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return errors.Transport(errors.ErrShuttingDown, "Output", "Push", "publish frame")
	}
	if !o.opened {
		return errors.Transport(errors.ErrNotStarted, "Output", "Push", "publish frame")
	}

	o.seq++
	msgID := fmt.Sprintf("%s-%d", o.session, o.seq)
	o.frame = protocol.AppendFrame(o.frame[:0], c)

	cfg := retry.Fixed(50*time.Millisecond, o.cfg.PublishAttempts)
	cfg.Retryable = func(err error) bool {
		return !errors.Is(err, natsclient.ErrCircuitOpen) && ctx.Err() == nil
	}
	ack, err := retry.DoWithResult(ctx, cfg, func() (*jetstream.PubAck, error) {
		pubCtx, cancel := context.WithTimeout(ctx, o.cfg.PublishTimeout)
		defer cancel()
		return o.client.PublishMsg(pubCtx, o.subject, o.frame, msgID)
	})
	if err != nil {
		o.errors.Add(1)
		if o.metrics != nil {
			o.metrics.TransportError.WithLabelValues(transportLabel, "publish").Inc()
		}
		return errors.Transport(err, "Output", "Push", "publish frame")
	}

	if ack.Duplicate {
		o.duplicates.Add(1)
	}
	o.framesWritten.Add(1)
	o.bytesWritten.Add(int64(len(o.frame)))
	return nil
}

// Flush is a no-op: every Push waits for its acknowledgement.
func (o *Output) Flush() error {
	return nil
}

// Close records the final session counters. The client stays open; its
// owner closes it.
func (o *Output) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return nil
	}
	o.closed = true
	if !o.opened {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.PublishTimeout)
	defer cancel()
	frames, bytes := o.framesWritten.Load(), o.bytesWritten.Load()
	if err := o.sessions.Finish(ctx, o.session, frames, bytes); err != nil {
		o.logger.Warn("Failed to finish session record",
			"component", "nats-output", "session", o.session, "error", err)
		return err
	}

	o.logger.Info("NATS output closed",
		"component", "nats-output",
		"session", o.session,
		"frames", frames,
		"bytes", bytes)
	return nil
}

// Stats holds publish counters
type Stats struct {
	Session       string
	FramesWritten int64
	BytesWritten  int64
	Duplicates    int64
	Errors        int64
}

// Stats returns a snapshot of the publish counters.
func (o *Output) Stats() Stats {
	return Stats{
		Session:       o.session,
		FramesWritten: o.framesWritten.Load(),
		BytesWritten:  o.bytesWritten.Load(),
		Duplicates:    o.duplicates.Load(),
		Errors:        o.errors.Load(),
	}
}
