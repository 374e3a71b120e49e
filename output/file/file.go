package file

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/usc-rasc/kinect-bridge2/errors"
	"github.com/usc-rasc/kinect-bridge2/message"
	"github.com/usc-rasc/kinect-bridge2/metric"
	"github.com/usc-rasc/kinect-bridge2/protocol"
)

// Config holds configuration for the file sink
type Config struct {
	Path          string        `json:"path"           yaml:"path"`
	Append        bool          `json:"append"         yaml:"append"`
	BufferSize    int           `json:"buffer_size"    yaml:"buffer_size"`
	FlushInterval time.Duration `json:"flush_interval" yaml:"flush_interval"`
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Path == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "path is required")
	}
	if c.BufferSize < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"buffer_size cannot be negative")
	}
	if c.FlushInterval < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"flush_interval cannot be negative")
	}
	return nil
}

// DefaultConfig returns default configuration for the file sink
func DefaultConfig() Config {
	return Config{
		Path:          "kinect.stream",
		Append:        false,
		BufferSize:    1 << 20,
		FlushInterval: time.Second,
	}
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

// WithMetrics reports written frames under the "file" transport label.
func WithMetrics(m *metric.Metrics) Option {
	return func(o *Output) { o.metrics = m }
}

// Output writes frames to a file through a buffered writer. A persisted
// stream is a plain sequence of frames with no file header.
type Output struct {
	cfg     Config
	logger  *slog.Logger
	metrics *metric.Metrics

	mu     sync.Mutex
	file   *os.File
	w      *bufio.Writer
	frame  []byte
	closed bool

	shutdown  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once

	framesWritten int64
	bytesWritten  int64
	errors        int64
}

// New opens the file named by cfg, creating its directory when missing.
func New(cfg Config, opts ...Option) (*Output, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.BufferSize == 0 {
		cfg.BufferSize = DefaultConfig().BufferSize
	}

	o := &Output{
		cfg:      cfg,
		logger:   slog.Default(),
		shutdown: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}

	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.WrapFatal(err, "Output", "New", "create output directory")
		}
	}

	flags := os.O_CREATE | os.O_WRONLY
	if cfg.Append {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(cfg.Path, flags, 0o644)
	if err != nil {
		return nil, errors.WrapFatal(err, "Output", "New", "open output file")
	}
	o.file = f
	o.w = bufio.NewWriterSize(f, cfg.BufferSize)

	if cfg.FlushInterval > 0 {
		o.wg.Add(1)
		go o.flushLoop()
	}

	o.logger.Info("File output opened",
		"component", "file-output",
		"path", cfg.Path,
		"append", cfg.Append,
		"buffer_size", cfg.BufferSize)
	return o, nil
}

// Push appends c as one frame.
func (o *Output) Push(_ context.Context, c *message.Coded) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return errors.Transport(errors.ErrShuttingDown, "Output", "Push", "write frame")
	}

	o.frame = protocol.AppendFrame(o.frame[:0], c)
	n, err := o.w.Write(o.frame)
	if err != nil {
		atomic.AddInt64(&o.errors, 1)
		if o.metrics != nil {
			o.metrics.TransportError.WithLabelValues("file", "write").Inc()
		}
		return errors.Transport(err, "Output", "Push", "write frame")
	}

	atomic.AddInt64(&o.framesWritten, 1)
	atomic.AddInt64(&o.bytesWritten, int64(n))
	return nil
}

// Flush writes buffered frames through to the file.
func (o *Output) Flush() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.flushLocked()
}

func (o *Output) flushLocked() error {
	if o.closed {
		return nil
	}
	if err := o.w.Flush(); err != nil {
		atomic.AddInt64(&o.errors, 1)
		return errors.Transport(err, "Output", "Flush", "flush buffer")
	}
	return nil
}

// Close flushes and closes the file. Calling it again is a no-op.
func (o *Output) Close() error {
	var err error
	o.closeOnce.Do(func() {
		close(o.shutdown)
		o.wg.Wait()

		o.mu.Lock()
		defer o.mu.Unlock()

		err = o.flushLocked()
		if cerr := o.file.Close(); cerr != nil && err == nil {
			err = errors.Transport(cerr, "Output", "Close", "close file")
		}
		o.closed = true

		o.logger.Info("File output closed",
			"component", "file-output",
			"path", o.cfg.Path,
			"frames_written", atomic.LoadInt64(&o.framesWritten),
			"bytes_written", atomic.LoadInt64(&o.bytesWritten))
	})
	return err
}

// flushLoop periodically flushes the buffer
func (o *Output) flushLoop() {
	defer o.wg.Done()

	ticker := time.NewTicker(o.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-o.shutdown:
			return
		case <-ticker.C:
			if err := o.Flush(); err != nil {
				o.logger.Warn("periodic flush failed", "component", "file-output", "error", err)
			}
		}
	}
}

// Stats reports what has been written so far.
type Stats struct {
	Path          string `json:"path"`
	FramesWritten int64  `json:"frames_written"`
	BytesWritten  int64  `json:"bytes_written"`
	Errors        int64  `json:"errors"`
}

// Stats returns a snapshot of the output counters.
func (o *Output) Stats() Stats {
	return Stats{
		Path:          o.cfg.Path,
		FramesWritten: atomic.LoadInt64(&o.framesWritten),
		BytesWritten:  atomic.LoadInt64(&o.bytesWritten),
		Errors:        atomic.LoadInt64(&o.errors),
	}
}

func (o *Output) String() string {
	return fmt.Sprintf("file(%s)", o.cfg.Path)
}

var _ protocol.Sink = (*Output)(nil)
