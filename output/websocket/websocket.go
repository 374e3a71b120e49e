package websocket

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/usc-rasc/kinect-bridge2/errors"
	"github.com/usc-rasc/kinect-bridge2/message"
	"github.com/usc-rasc/kinect-bridge2/metric"
	"github.com/usc-rasc/kinect-bridge2/pkg/guard"
	"github.com/usc-rasc/kinect-bridge2/protocol"
)

const transportLabel = "websocket"

// Config holds configuration for the WebSocket sink
type Config struct {
	Address         string        `json:"address"           yaml:"address"`
	Path            string        `json:"path"              yaml:"path"`
	WriteTimeout    time.Duration `json:"write_timeout"     yaml:"write_timeout"`
	PingInterval    time.Duration `json:"ping_interval"     yaml:"ping_interval"`
	PeerPoll        time.Duration `json:"peer_poll"         yaml:"peer_poll"`
	ReadBufferSize  int           `json:"read_buffer_size"  yaml:"read_buffer_size"`
	WriteBufferSize int           `json:"write_buffer_size" yaml:"write_buffer_size"`
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Address == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "address is required")
	}
	if c.Path != "" && c.Path[0] != '/' {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("path %q must start with /", c.Path))
	}
	if c.WriteTimeout < 0 || c.PingInterval < 0 || c.PeerPoll < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"durations cannot be negative")
	}
	if c.ReadBufferSize < 0 || c.WriteBufferSize < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"buffer sizes cannot be negative")
	}
	return nil
}

// DefaultConfig returns default configuration for the WebSocket sink
func DefaultConfig() Config {
	return Config{
		Address:         ":9001",
		Path:            "/stream",
		WriteTimeout:    10 * time.Second,
		PingInterval:    30 * time.Second,
		PeerPoll:        200 * time.Millisecond,
		ReadBufferSize:  1024,
		WriteBufferSize: 64 * 1024,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Path == "" {
		c.Path = d.Path
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.PingInterval == 0 {
		c.PingInterval = d.PingInterval
	}
	if c.PeerPoll == 0 {
		c.PeerPoll = d.PeerPoll
	}
	if c.ReadBufferSize == 0 {
		c.ReadBufferSize = d.ReadBufferSize
	}
	if c.WriteBufferSize == 0 {
		c.WriteBufferSize = d.WriteBufferSize
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

// WithMetrics reports peer state and write errors under the "websocket" label.
func WithMetrics(m *metric.Metrics) Option {
	return func(o *Output) { o.metrics = m }
}

type peer struct {
	conn   *websocket.Conn
	remote string
}

// Output is a protocol.Sink serving frames over WebSocket.
type Output struct {
	cfg      Config
	logger   *slog.Logger
	metrics  *metric.Metrics
	upgrader websocket.Upgrader

	ln     net.Listener
	server *http.Server
	state  *guard.Guard[peer]
	frame  []byte

	shutdown  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once

	framesWritten atomic.Int64
	bytesWritten  atomic.Int64
	accepts       atomic.Int64
	rejected      atomic.Int64
}

// New creates an output that is not yet serving.
func New(cfg Config, opts ...Option) (*Output, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	o := &Output{
		cfg:    cfg,
		logger: slog.Default(),
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(_ *http.Request) bool { return true },
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
		},
		state:    guard.New(peer{}),
		shutdown: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Start binds the HTTP endpoint and begins accepting a peer.
func (o *Output) Start(ctx context.Context) error {
	if o.server != nil {
		return errors.WrapFatal(errors.ErrAlreadyStarted, "Output", "Start", "check server")
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", o.cfg.Address)
	if err != nil {
		return errors.Transport(err, "Output", "Start", "bind "+o.cfg.Address)
	}
	o.ln = ln

	mux := http.NewServeMux()
	mux.HandleFunc(o.cfg.Path, o.handleWebSocket)
	o.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	o.wg.Add(2)
	go o.runServer()
	go o.pingLoop()

	o.logger.Info("WebSocket output listening",
		"component", "websocket-output",
		"address", ln.Addr().String(),
		"path", o.cfg.Path)
	return nil
}

// URL returns the ws:// address of the endpoint, or "" before Start.
func (o *Output) URL() string {
	if o.ln == nil {
		return ""
	}
	return "ws://" + o.ln.Addr().String() + o.cfg.Path
}

func (o *Output) runServer() {
	defer o.wg.Done()
	if err := o.server.Serve(o.ln); err != nil && err != http.ErrServerClosed {
		o.logger.Error("HTTP server failed", "component", "websocket-output", "error", err)
	}
}

// handleWebSocket attaches a new peer unless one is already connected.
func (o *Output) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if o.Connected() {
		o.rejected.Add(1)
		http.Error(w, "a peer is already connected", http.StatusConflict)
		return
	}

	conn, err := o.upgrader.Upgrade(w, r, nil)
	if err != nil {
		if o.metrics != nil {
			o.metrics.TransportError.WithLabelValues(transportLabel, "upgrade").Inc()
		}
		return
	}

	h := o.state.Handle(guard.NotifyAll)
	p := h.GetExclusive()
	if p.conn != nil {
		// Lost the race against another upgrade
		h.Release()
		o.rejected.Add(1)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "peer already connected"),
			time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}
	p.conn = conn
	p.remote = conn.RemoteAddr().String()
	h.Release()

	o.accepts.Add(1)
	if o.metrics != nil {
		o.metrics.PeerAccepts.WithLabelValues(transportLabel).Inc()
		o.metrics.PeerConnected.WithLabelValues(transportLabel).Set(1)
	}
	o.logger.Info("peer connected", "component", "websocket-output", "remote", conn.RemoteAddr().String())

	o.wg.Add(1)
	go o.readLoop(conn)
}

// readLoop consumes inbound control frames until the peer goes away.
func (o *Output) readLoop(conn *websocket.Conn) {
	defer o.wg.Done()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			o.detach(conn, "peer closed", err)
			return
		}
	}
}

// detach drops conn if it is still the attached peer.
func (o *Output) detach(conn *websocket.Conn, reason string, err error) {
	_ = o.state.With(guard.NotifyNone, func(h *guard.Handle[peer]) error {
		p := h.GetExclusive()
		if p.conn == conn {
			o.disconnectLocked(p, reason, err)
		}
		return nil
	})
}

func (o *Output) disconnectLocked(p *peer, reason string, err error) {
	if p.conn == nil {
		return
	}
	_ = p.conn.Close()
	if o.metrics != nil {
		o.metrics.PeerConnected.WithLabelValues(transportLabel).Set(0)
	}
	o.logger.Info("peer gone", "component", "websocket-output", "remote", p.remote, "reason", reason, "error", err)
	p.conn = nil
	p.remote = ""
}

// Connected reports whether a peer is attached.
func (o *Output) Connected() bool {
	h := o.state.Handle(guard.NotifyNone)
	defer h.Release()
	return h.Get().conn != nil
}

// Push sends c as one binary message, waiting for a peer if none is attached.
func (o *Output) Push(ctx context.Context, c *message.Coded) error {
	if o.server == nil {
		return errors.Transport(errors.ErrNotStarted, "Output", "Push", "check server")
	}

	h := o.state.Handle(guard.NotifyNone)
	defer h.Release()

	p := h.GetExclusive()
	for p.conn == nil {
		select {
		case <-ctx.Done():
			return errors.Transport(ctx.Err(), "Output", "Push", "wait for peer")
		case <-o.shutdown:
			return errors.Transport(errors.ErrShuttingDown, "Output", "Push", "wait for peer")
		default:
		}
		// Timeouts are expected; the loop re-checks the peer
		_ = h.WaitOnFor(o.cfg.PeerPoll)
	}

	o.frame = protocol.AppendFrame(o.frame[:0], c)
	_ = p.conn.SetWriteDeadline(time.Now().Add(o.cfg.WriteTimeout))
	if err := p.conn.WriteMessage(websocket.BinaryMessage, o.frame); err != nil {
		o.disconnectLocked(p, "write failed", err)
		if o.metrics != nil {
			o.metrics.TransportError.WithLabelValues(transportLabel, "write").Inc()
		}
		return errors.Transport(err, "Output", "Push", "write frame")
	}

	o.framesWritten.Add(1)
	o.bytesWritten.Add(int64(len(o.frame)))
	return nil
}

// pingLoop keeps an idle peer connection open.
func (o *Output) pingLoop() {
	defer o.wg.Done()

	ticker := time.NewTicker(o.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-o.shutdown:
			return
		case <-ticker.C:
			h := o.state.Handle(guard.NotifyNone)
			conn := h.Get().conn
			h.Release()
			if conn == nil {
				continue
			}
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(o.cfg.WriteTimeout)); err != nil {
				o.detach(conn, "ping failed", err)
			}
		}
	}
}

// Flush is a no-op; every Push is one WebSocket message.
func (o *Output) Flush() error { return nil }

// Close sends a close frame to the peer, stops the HTTP server and waits for
// the background goroutines. Calling it again is a no-op.
func (o *Output) Close() error {
	var err error
	o.closeOnce.Do(func() {
		close(o.shutdown)
		o.state.NotifyAll()

		_ = o.state.With(guard.NotifyNone, func(h *guard.Handle[peer]) error {
			p := h.GetExclusive()
			if p.conn != nil {
				_ = p.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "server shutting down"),
					time.Now().Add(time.Second))
			}
			o.disconnectLocked(p, "closing", nil)
			return nil
		})

		if o.server != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if serr := o.server.Shutdown(ctx); serr != nil {
				err = errors.Transport(serr, "Output", "Close", "shut down HTTP server")
			}
		}
		o.wg.Wait()
	})
	return err
}

// Stats reports delivery counters.
type Stats struct {
	Connected     bool  `json:"connected"`
	FramesWritten int64 `json:"frames_written"`
	BytesWritten  int64 `json:"bytes_written"`
	Accepts       int64 `json:"accepts"`
	Rejected      int64 `json:"rejected"`
}

// Stats returns a snapshot of the output counters.
func (o *Output) Stats() Stats {
	return Stats{
		Connected:     o.Connected(),
		FramesWritten: o.framesWritten.Load(),
		BytesWritten:  o.bytesWritten.Load(),
		Accepts:       o.accepts.Load(),
		Rejected:      o.rejected.Load(),
	}
}

var _ protocol.Sink = (*Output)(nil)
