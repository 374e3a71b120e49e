package file

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/usc-rasc/kinect-bridge2/errors"
	"github.com/usc-rasc/kinect-bridge2/message"
	"github.com/usc-rasc/kinect-bridge2/metric"
	"github.com/usc-rasc/kinect-bridge2/protocol"
)

// Config holds configuration for the file source
type Config struct {
	Path         string `json:"path"           yaml:"path"`
	MaxFrameSize int    `json:"max_frame_size" yaml:"max_frame_size"`
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Path == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "path is required")
	}
	if c.MaxFrameSize < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"max_frame_size cannot be negative")
	}
	return nil
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

// WithMetrics reports frames and resyncs under the "file" transport label.
func WithMetrics(m *metric.Metrics) Option {
	return func(in *Input) { in.metrics = m }
}

// Input reads frames from a file.
type Input struct {
	cfg     Config
	logger  *slog.Logger
	metrics *metric.Metrics

	mu     sync.Mutex
	file   *os.File
	reader *protocol.Reader
	closed bool
}

// Open opens the file named by cfg.
func Open(cfg Config, opts ...Option) (*Input, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	in := &Input{cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(in)
	}

	f, err := os.Open(cfg.Path)
	if err != nil {
		return nil, errors.WrapFatal(err, "Input", "Open", "open stream file")
	}
	in.file = f

	readerOpts := []protocol.ReaderOption{}
	if cfg.MaxFrameSize > 0 {
		readerOpts = append(readerOpts, protocol.WithMaxFrameSize(cfg.MaxFrameSize))
	}
	if in.metrics != nil {
		readerOpts = append(readerOpts, protocol.WithReaderMetrics(in.metrics, "file"))
	}
	in.reader = protocol.NewReader(f, readerOpts...)

	in.logger.Debug("File input opened", "component", "file-input", "path", cfg.Path)
	return in, nil
}

// Pull returns the next message in the file, or io.EOF at its end.
func (in *Input) Pull(ctx context.Context) (*message.Coded, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	in.mu.Lock()
	defer in.mu.Unlock()

	if in.closed {
		return nil, io.EOF
	}
	return in.reader.Next()
}

// Stats returns the reader counters.
func (in *Input) Stats() protocol.ReaderStats {
	return in.reader.Stats()
}

// Close closes the file. Later pulls return io.EOF.
func (in *Input) Close() error {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.closed {
		return nil
	}
	in.closed = true
	if err := in.file.Close(); err != nil {
		return errors.Wrap(err, "Input", "Close", "close stream file")
	}
	return nil
}

var _ protocol.Source = (*Input)(nil)
