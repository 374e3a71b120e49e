package tcp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/usc-rasc/kinect-bridge2/errors"
	"github.com/usc-rasc/kinect-bridge2/message"
	"github.com/usc-rasc/kinect-bridge2/metric"
	"github.com/usc-rasc/kinect-bridge2/pkg/retry"
	"github.com/usc-rasc/kinect-bridge2/protocol"
)

const transportLabel = "tcp"

// Config holds configuration for the TCP source
type Config struct {
	Address      string        `json:"address"        yaml:"address"`
	DialTimeout  time.Duration `json:"dial_timeout"   yaml:"dial_timeout"`
	RetryDelay   time.Duration `json:"retry_delay"    yaml:"retry_delay"`
	DialAttempts int           `json:"dial_attempts"  yaml:"dial_attempts"`
	DrainTimeout time.Duration `json:"drain_timeout"  yaml:"drain_timeout"`
	MaxFrameSize int           `json:"max_frame_size" yaml:"max_frame_size"`
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Address == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "address is required")
	}
	if _, _, err := net.SplitHostPort(c.Address); err != nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("address %q: %v", c.Address, err))
	}
	if c.DialTimeout < 0 || c.RetryDelay < 0 || c.DrainTimeout < 0 || c.MaxFrameSize < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"timeouts and sizes cannot be negative")
	}
	if c.DialAttempts < retry.Forever {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"attempts must be positive, or -1 to retry forever")
	}
	return nil
}

// DefaultConfig returns default configuration for the TCP source
func DefaultConfig() Config {
	return Config{
		Address:      "localhost:9000",
		DialTimeout:  2 * time.Second,
		RetryDelay:   100 * time.Millisecond,
		DialAttempts: retry.Forever,
		DrainTimeout: time.Second,
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
	if c.DrainTimeout == 0 {
		c.DrainTimeout = d.DrainTimeout
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

// WithMetrics reports frames, resyncs and connection state under the "tcp"
// transport label.
func WithMetrics(m *metric.Metrics) Option {
	return func(in *Input) { in.metrics = m }
}

// Input is a protocol.Source reading from a TCP server.
type Input struct {
	cfg     Config
	logger  *slog.Logger
	metrics *metric.Metrics

	mu     sync.Mutex
	conn   *net.TCPConn
	reader *protocol.Reader
	closed bool
}

// New creates an input that is not yet connected.
func New(cfg Config, opts ...Option) (*Input, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	in := &Input{cfg: cfg.withDefaults(), logger: slog.Default()}
	for _, opt := range opts {
		opt(in)
	}

	readerOpts := []protocol.ReaderOption{}
	if in.cfg.MaxFrameSize > 0 {
		readerOpts = append(readerOpts, protocol.WithMaxFrameSize(in.cfg.MaxFrameSize))
	}
	if in.metrics != nil {
		readerOpts = append(readerOpts, protocol.WithReaderMetrics(in.metrics, transportLabel))
	}
	in.reader = protocol.NewReader(nil, readerOpts...)
	return in, nil
}

// Open dials the server, retrying every RetryDelay up to DialAttempts.
func (in *Input) Open(ctx context.Context) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.openLocked(ctx, in.cfg.DialAttempts)
}

func (in *Input) openLocked(ctx context.Context, attempts int) error {
	if in.closed {
		return errors.Transport(errors.ErrShuttingDown, "Input", "Open", "dial")
	}
	if in.conn != nil {
		return nil
	}

	cfg := retry.Fixed(in.cfg.RetryDelay, attempts)
	cfg.OnRetry = func(attempt int, err error, _ time.Duration) {
		in.logger.Debug("no connection yet", "component", "tcp-input",
			"address", in.cfg.Address, "attempt", attempt, "error", err)
	}
	conn, err := retry.DoWithResult(ctx, cfg, func() (*net.TCPConn, error) {
		d := net.Dialer{Timeout: in.cfg.DialTimeout}
		c, err := d.DialContext(ctx, "tcp", in.cfg.Address)
		if err != nil {
			return nil, err
		}
		return c.(*net.TCPConn), nil
	})
	if err != nil {
		if in.metrics != nil {
			in.metrics.TransportError.WithLabelValues(transportLabel, "dial").Inc()
		}
		return errors.Transport(errors.Join(errors.ErrNoConnection, err), "Input", "Open", "dial "+in.cfg.Address)
	}

	in.conn = conn
	in.reader.Reset(conn)
	if in.metrics != nil {
		in.metrics.PeerAccepts.WithLabelValues(transportLabel).Inc()
		in.metrics.PeerConnected.WithLabelValues(transportLabel).Set(1)
	}
	in.logger.Info("connected", "component", "tcp-input", "remote", conn.RemoteAddr().String())
	return nil
}

// Pull returns the next coded message, dialing first when not connected.
func (in *Input) Pull(ctx context.Context) (*message.Coded, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if err := in.openLocked(ctx, in.cfg.DialAttempts); err != nil {
		return nil, err
	}

	conn := in.conn
	release := protocol.InterruptRead(ctx, conn)
	defer release()

	c, err := in.reader.Next()
	switch {
	case err == nil:
		return c, nil
	case errors.Is(err, errors.ErrProtocol):
		return nil, err
	case ctx.Err() != nil:
		in.teardownLocked("cancelled")
		return nil, ctx.Err()
	case err == io.EOF:
		in.teardownLocked("server closed the stream")
		return nil, errors.Transport(err, "Input", "Pull", "read frame")
	default:
		in.teardownLocked("read failed")
		if in.metrics != nil {
			in.metrics.TransportError.WithLabelValues(transportLabel, "read").Inc()
		}
		return nil, err
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
	in.logger.Info("disconnected", "component", "tcp-input", "reason", reason)
}

// Connected reports whether a connection is open.
func (in *Input) Connected() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.conn != nil
}

// Stats returns the reader counters accumulated across connections.
func (in *Input) Stats() protocol.ReaderStats {
	return in.reader.Stats()
}

// Close shuts down the write side, drains what the server still sends
// until it hangs up or DrainTimeout passes, then closes the socket. A
// blocked Pull holds the connection; cancel its context before calling Close.
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

	conn := in.conn
	in.conn = nil
	if in.metrics != nil {
		in.metrics.PeerConnected.WithLabelValues(transportLabel).Set(0)
	}

	if err := conn.CloseWrite(); err != nil {
		_ = conn.Close()
		return errors.Transport(err, "Input", "Close", "shut down write side")
	}
	_ = conn.SetReadDeadline(time.Now().Add(in.cfg.DrainTimeout))
	drained, _ := io.Copy(io.Discard, conn)

	in.logger.Debug("half-close complete", "component", "tcp-input", "drained_bytes", drained)
	if err := conn.Close(); err != nil {
		return errors.Transport(err, "Input", "Close", "close socket")
	}
	return nil
}

var _ protocol.Source = (*Input)(nil)
