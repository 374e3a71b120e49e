package tcp

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/usc-rasc/kinect-bridge2/errors"
	"github.com/usc-rasc/kinect-bridge2/message"
	"github.com/usc-rasc/kinect-bridge2/metric"
	"github.com/usc-rasc/kinect-bridge2/pkg/guard"
	"github.com/usc-rasc/kinect-bridge2/pkg/retry"
	"github.com/usc-rasc/kinect-bridge2/protocol"
)

const transportLabel = "tcp"

// Config holds configuration for the TCP sink
type Config struct {
	Address          string        `json:"address"           yaml:"address"`
	AcceptPoll       time.Duration `json:"accept_poll"       yaml:"accept_poll"`
	LivenessInterval time.Duration `json:"liveness_interval" yaml:"liveness_interval"`
	LockTimeout      time.Duration `json:"lock_timeout"      yaml:"lock_timeout"`
	WriteTimeout     time.Duration `json:"write_timeout"     yaml:"write_timeout"`
	BindAttempts     int           `json:"bind_attempts"     yaml:"bind_attempts"`
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
	if c.AcceptPoll < 0 || c.LivenessInterval < 0 || c.LockTimeout < 0 || c.WriteTimeout < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"durations cannot be negative")
	}
	if c.BindAttempts < retry.Forever {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"attempts must be positive, or -1 to retry forever")
	}
	return nil
}

// DefaultConfig returns default configuration for the TCP sink
func DefaultConfig() Config {
	return Config{
		Address:          ":9000",
		AcceptPoll:       200 * time.Millisecond,
		LivenessInterval: time.Second,
		LockTimeout:      50 * time.Millisecond,
		BindAttempts:     10,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.AcceptPoll == 0 {
		c.AcceptPoll = d.AcceptPoll
	}
	if c.LivenessInterval == 0 {
		c.LivenessInterval = d.LivenessInterval
	}
	if c.LockTimeout == 0 {
		c.LockTimeout = d.LockTimeout
	}
	if c.BindAttempts == 0 {
		c.BindAttempts = d.BindAttempts
	}
	return c
}

// Option configures an Output
type Option func(*Output)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Output) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics reports peer state and write errors under the "tcp" label.
func WithMetrics(m *metric.Metrics) Option {
	return func(o *Output) { o.metrics = m }
}

type peer struct {
	conn   net.Conn
	remote string
}

// Output is a protocol.Sink serving frames to a single TCP peer.
type Output struct {
	cfg     Config
	logger  *slog.Logger
	metrics *metric.Metrics

	ln    *net.TCPListener
	state *guard.Guard[peer]
	frame []byte

	shutdown  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once

	framesWritten atomic.Int64
	bytesWritten  atomic.Int64
	accepts       atomic.Int64
	disconnects   atomic.Int64
}

// New creates an unbound output.
func New(cfg Config, opts ...Option) (*Output, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := &Output{
		cfg:      cfg.withDefaults(),
		logger:   slog.Default(),
		state:    guard.New(peer{}),
		shutdown: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Listen binds the configured address, retrying while it is unavailable,
// and starts the liveness check.
func (o *Output) Listen(ctx context.Context) error {
	if o.ln != nil {
		return errors.WrapFatal(errors.ErrAlreadyStarted, "Output", "Listen", "check listener")
	}

	cfg := retry.Fixed(o.cfg.AcceptPoll, o.cfg.BindAttempts)
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		o.logger.Warn("bind failed, retrying",
			"component", "tcp-output",
			"address", o.cfg.Address,
			"attempt", attempt,
			"delay", delay,
			"error", err)
	}

	ln, err := retry.DoWithResult(ctx, cfg, func() (*net.TCPListener, error) {
		var lc net.ListenConfig
		l, err := lc.Listen(ctx, "tcp", o.cfg.Address)
		if err != nil {
			return nil, err
		}
		return l.(*net.TCPListener), nil
	})
	if err != nil {
		return errors.Transport(err, "Output", "Listen", "bind "+o.cfg.Address)
	}
	o.ln = ln

	o.wg.Add(1)
	go o.livenessLoop()

	o.logger.Info("TCP output listening", "component", "tcp-output", "address", o.Addr().String())
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (o *Output) Addr() net.Addr {
	if o.ln == nil {
		return nil
	}
	return o.ln.Addr()
}

// Connected reports whether a peer is attached.
func (o *Output) Connected() bool {
	h := o.state.Handle(guard.NotifyNone)
	defer h.Release()
	return h.Get().conn != nil
}

// Push sends c to the current peer, accepting one first if needed.
func (o *Output) Push(ctx context.Context, c *message.Coded) error {
	if o.ln == nil {
		return errors.Transport(errors.ErrNotStarted, "Output", "Push", "check listener")
	}

	h := o.state.Handle(guard.NotifyNone)
	p := h.GetExclusive()
	if p.conn == nil {
		h.Release()
		conn, err := o.accept(ctx)
		if err != nil {
			return err
		}
		p = h.GetExclusive()
		select {
		case <-o.shutdown:
			h.Release()
			_ = conn.Close()
			return errors.Transport(errors.ErrShuttingDown, "Output", "Push", "attach peer")
		default:
		}
		p.conn = conn
		p.remote = conn.RemoteAddr().String()
		o.onConnect(p.remote)
	}
	defer h.Release()

	o.frame = protocol.AppendFrame(o.frame[:0], c)
	if o.cfg.WriteTimeout > 0 {
		_ = p.conn.SetWriteDeadline(time.Now().Add(o.cfg.WriteTimeout))
	}
	n, err := p.conn.Write(o.frame)
	if err != nil {
		o.disconnectLocked(p, "write failed", err)
		if o.metrics != nil {
			o.metrics.TransportError.WithLabelValues(transportLabel, "write").Inc()
		}
		return errors.Transport(err, "Output", "Push", "write frame")
	}

	o.framesWritten.Add(1)
	o.bytesWritten.Add(int64(n))
	return nil
}

// accept waits for a peer until ctx is done or the output is closed.
func (o *Output) accept(ctx context.Context) (net.Conn, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, errors.Transport(ctx.Err(), "Output", "accept", "wait for peer")
		case <-o.shutdown:
			return nil, errors.Transport(errors.ErrShuttingDown, "Output", "accept", "wait for peer")
		default:
		}

		_ = o.ln.SetDeadline(time.Now().Add(o.cfg.AcceptPoll))
		conn, err := o.ln.AcceptTCP()
		if err == nil {
			_ = conn.SetNoDelay(true)
			return conn, nil
		}

		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			continue
		}
		if o.metrics != nil {
			o.metrics.TransportError.WithLabelValues(transportLabel, "accept").Inc()
		}
		return nil, errors.Transport(err, "Output", "accept", "accept peer")
	}
}

func (o *Output) onConnect(remote string) {
	o.accepts.Add(1)
	if o.metrics != nil {
		o.metrics.PeerAccepts.WithLabelValues(transportLabel).Inc()
		o.metrics.PeerConnected.WithLabelValues(transportLabel).Set(1)
	}
	o.logger.Info("peer connected", "component", "tcp-output", "remote", remote)
}

// disconnectLocked closes the peer. The caller holds the state lock.
func (o *Output) disconnectLocked(p *peer, reason string, err error) {
	if p.conn == nil {
		return
	}
	_ = p.conn.Close()
	o.disconnects.Add(1)
	if o.metrics != nil {
		o.metrics.PeerConnected.WithLabelValues(transportLabel).Set(0)
	}
	o.logger.Info("peer gone", "component", "tcp-output", "remote", p.remote, "reason", reason, "error", err)
	p.conn = nil
	p.remote = ""
}

// livenessLoop closes the peer once it has hung up so the next Push
// re-accepts instead of writing into a dead socket.
func (o *Output) livenessLoop() {
	defer o.wg.Done()

	ticker := time.NewTicker(o.cfg.LivenessInterval)
	defer ticker.Stop()

	for {
		select {
		case <-o.shutdown:
			return
		case <-ticker.C:
			o.checkLiveness()
		}
	}
}

func (o *Output) checkLiveness() {
	h := o.state.Handle(guard.NotifyNone)
	defer h.Release()

	p, err := h.TryGetExclusiveFor(o.cfg.LockTimeout)
	if err != nil {
		// A write is in progress; it will notice a dead peer itself
		return
	}
	if p.conn == nil {
		return
	}
	if err := peek(p.conn); err != nil {
		o.disconnectLocked(p, "liveness check", err)
	}
}

// Flush is a no-op; every Push is a single socket write.
func (o *Output) Flush() error { return nil }

// Close disconnects the peer and closes the listener. Calling it again is a
// no-op.
func (o *Output) Close() error {
	var err error
	o.closeOnce.Do(func() {
		close(o.shutdown)
		o.wg.Wait()

		_ = o.state.With(guard.NotifyNone, func(h *guard.Handle[peer]) error {
			o.disconnectLocked(h.GetExclusive(), "closing", nil)
			return nil
		})

		if o.ln != nil {
			if cerr := o.ln.Close(); cerr != nil {
				err = errors.Transport(cerr, "Output", "Close", "close listener")
			}
		}
	})
	return err
}

// Stats reports delivery counters.
type Stats struct {
	Connected     bool  `json:"connected"`
	FramesWritten int64 `json:"frames_written"`
	BytesWritten  int64 `json:"bytes_written"`
	Accepts       int64 `json:"accepts"`
	Disconnects   int64 `json:"disconnects"`
}

// Stats returns a snapshot of the output counters.
func (o *Output) Stats() Stats {
	return Stats{
		Connected:     o.Connected(),
		FramesWritten: o.framesWritten.Load(),
		BytesWritten:  o.bytesWritten.Load(),
		Accepts:       o.accepts.Load(),
		Disconnects:   o.disconnects.Load(),
	}
}

var _ protocol.Sink = (*Output)(nil)
