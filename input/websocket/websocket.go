package websocket

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/usc-rasc/kinect-bridge2/errors"
	"github.com/usc-rasc/kinect-bridge2/message"
	"github.com/usc-rasc/kinect-bridge2/metric"
	"github.com/usc-rasc/kinect-bridge2/pkg/retry"
	"github.com/usc-rasc/kinect-bridge2/protocol"
)

const transportLabel = "websocket"

// Config holds configuration for the WebSocket source
type Config struct {
	URL          string        `json:"url"            yaml:"url"`
	DialTimeout  time.Duration `json:"dial_timeout"   yaml:"dial_timeout"`
	RetryDelay   time.Duration `json:"retry_delay"    yaml:"retry_delay"`
	DialAttempts int           `json:"dial_attempts"  yaml:"dial_attempts"`
	MaxFrameSize int64         `json:"max_frame_size" yaml:"max_frame_size"`
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.URL == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "url is required")
	}
	u, err := url.Parse(c.URL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("url %q must be a ws:// or wss:// URL", c.URL))
	}
	if c.DialTimeout < 0 || c.RetryDelay < 0 || c.MaxFrameSize < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"timeouts and sizes cannot be negative")
	}
	if c.DialAttempts < retry.Forever {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"attempts must be positive, or -1 to retry forever")
	}
	return nil
}

// DefaultConfig returns default configuration for the WebSocket source
func DefaultConfig() Config {
	return Config{
		URL:          "ws://localhost:9001/stream",
		DialTimeout:  5 * time.Second,
		RetryDelay:   100 * time.Millisecond,
		DialAttempts: retry.Forever,
		MaxFrameSize: protocol.DefaultMaxFrameSize + protocol.PrefixSize,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.DialTimeout == 0 {
		c.DialTimeout = d.DialTimeout
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = d.RetryDelay
	}
	if c.DialAttempts == 0 {
		c.DialAttempts = d.DialAttempts
	}
	if c.MaxFrameSize == 0 {
		c.MaxFrameSize = d.MaxFrameSize
	}
	return c
}

// Option configures an Input
type Option func(*Input)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(in *Input) {
		if logger != nil {
			in.logger = logger
		}
	}
}

// WithMetrics reports frames and connection state under the "websocket" label.
func WithMetrics(m *metric.Metrics) Option {
	return func(in *Input) { in.metrics = m }
}

// Input is a protocol.Source reading from a WebSocket endpoint.
type Input struct {
	cfg     Config
	logger  *slog.Logger
	metrics *metric.Metrics
	dialer  *websocket.Dialer

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool

	frames  atomic.Int64
	invalid atomic.Int64
	ignored atomic.Int64
}

// New creates an input that is not yet connected.
func New(cfg Config, opts ...Option) (*Input, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	in := &Input{
		cfg:    cfg,
		logger: slog.Default(),
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.DialTimeout,
			ReadBufferSize:   64 * 1024,
		},
	}
	for _, opt := range opts {
		opt(in)
	}
	return in, nil
}

// Open dials the endpoint, retrying every RetryDelay up to DialAttempts.
func (in *Input) Open(ctx context.Context) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.openLocked(ctx)
}

func (in *Input) openLocked(ctx context.Context) error {
	if in.closed {
		return errors.Transport(errors.ErrShuttingDown, "Input", "Open", "dial")
	}
	if in.conn != nil {
		return nil
	}

	cfg := retry.Fixed(in.cfg.RetryDelay, in.cfg.DialAttempts)
	cfg.OnRetry = func(attempt int, err error, _ time.Duration) {
		in.logger.Debug("no connection yet", "component", "websocket-input",
			"url", in.cfg.URL, "attempt", attempt, "error", err)
	}
	conn, err := retry.DoWithResult(ctx, cfg, func() (*websocket.Conn, error) {
		c, resp, err := in.dialer.DialContext(ctx, in.cfg.URL, nil)
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		return c, err
	})
	if err != nil {
		if in.metrics != nil {
			in.metrics.TransportError.WithLabelValues(transportLabel, "dial").Inc()
		}
		return errors.Transport(errors.Join(errors.ErrNoConnection, err), "Input", "Open", "dial "+in.cfg.URL)
	}

	conn.SetReadLimit(in.cfg.MaxFrameSize)
	in.conn = conn
	if in.metrics != nil {
		in.metrics.PeerAccepts.WithLabelValues(transportLabel).Inc()
		in.metrics.PeerConnected.WithLabelValues(transportLabel).Set(1)
	}
	in.logger.Info("connected", "component", "websocket-input", "url", in.cfg.URL)
	return nil
}

// Pull returns the coded message held by the next binary message.
func (in *Input) Pull(ctx context.Context) (*message.Coded, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if err := in.openLocked(ctx); err != nil {
		return nil, err
	}

	conn := in.conn
	release := protocol.InterruptRead(ctx, conn)
	defer release()

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				in.teardownLocked("cancelled")
				return nil, ctx.Err()
			}
			in.teardownLocked("read failed")
			return nil, errors.Transport(err, "Input", "Pull", "read message")
		}
		if kind != websocket.BinaryMessage {
			in.ignored.Add(1)
			continue
		}

		c, err := protocol.ParseFrame(data)
		if err != nil {
			in.invalid.Add(1)
			return nil, err
		}
		in.frames.Add(1)
		if in.metrics != nil {
			in.metrics.FramesRead.WithLabelValues(transportLabel).Inc()
		}
		return c, nil
	}
}

func (in *Input) teardownLocked(reason string) {
	if in.conn == nil {
		return
	}
	_ = in.conn.Close()
	in.conn = nil
	if in.metrics != nil {
		in.metrics.PeerConnected.WithLabelValues(transportLabel).Set(0)
	}
	in.logger.Info("disconnected", "component", "websocket-input", "reason", reason)
}

// Connected reports whether a connection is open.
func (in *Input) Connected() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.conn != nil
}

// Stats reports what the input has read.
type Stats struct {
	Frames  int64 `json:"frames"`
	Invalid int64 `json:"invalid"`
	Ignored int64 `json:"ignored"`
}

// Stats returns a snapshot of the input counters.
func (in *Input) Stats() Stats {
	return Stats{
		Frames:  in.frames.Load(),
		Invalid: in.invalid.Load(),
		Ignored: in.ignored.Load(),
	}
}

// Close sends a normal-closure frame and closes the connection. A blocked
// Pull holds the connection; cancel its context before calling Close.
func (in *Input) Close() error {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.closed {
		return nil
	}
	in.closed = true
	if in.conn == nil {
		return nil
	}

	_ = in.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	in.teardownLocked("closed")
	return nil
}

var _ protocol.Source = (*Input)(nil)
