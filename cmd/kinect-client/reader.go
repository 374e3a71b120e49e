package main

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/usc-rasc/kinect-bridge2/codec"
	"github.com/usc-rasc/kinect-bridge2/errors"
	"github.com/usc-rasc/kinect-bridge2/message"
	"github.com/usc-rasc/kinect-bridge2/message/kinect"
	"github.com/usc-rasc/kinect-bridge2/pipeline"
	"github.com/usc-rasc/kinect-bridge2/protocol"
)

type readOptions struct {
	// Limit stops after this many decoded messages; 0 reads to the end.
	Limit          int64
	StatusInterval time.Duration
	// Redial keeps reading after a lost connection; the source dials
	// again on the next Pull.
	Redial bool
}

// reader decodes a stream and tallies it by payload type.
type reader struct {
	src    protocol.Source
	coder  *codec.Coder
	types  *message.Registry
	logger *slog.Logger
	opts   readOptions

	stats   pipeline.Stats
	invalid int64
}

func newReader(src protocol.Source, logger *slog.Logger, opts readOptions) *reader {
	return &reader{
		src:    src,
		coder:  codec.NewCoder(nil, nil, nil),
		types:  message.Default(),
		logger: logger,
		opts:   opts,
		stats:  pipeline.Stats{Started: time.Now(), PerType: map[string]int64{}},
	}
}

// run reads until the stream ends, the limit is hit or ctx is cancelled.
// A cancelled ctx is a normal stop, not an error.
func (r *reader) run(ctx context.Context) error {
	lastReport := time.Now()
	lastBytes := int64(0)

	for r.opts.Limit == 0 || r.stats.Messages < r.opts.Limit {
		c, err := r.src.Pull(ctx)
		if err != nil {
			switch {
			case err == io.EOF:
				return nil
			case ctx.Err() != nil:
				return nil
			case errors.Is(err, errors.ErrProtocol):
				r.invalid++
				r.logger.Warn("Skipping malformed frame", "error", err)
				continue
			case errors.Is(err, errors.ErrTransport) && r.opts.Redial && !errors.Is(err, errors.ErrNoConnection):
				r.logger.Warn("Connection lost, reconnecting", "error", err)
				continue
			default:
				return errors.Wrap(err, "reader", "run", "pull message")
			}
		}

		r.handle(c)

		if r.opts.StatusInterval > 0 {
			if now := time.Now(); now.Sub(lastReport) >= r.opts.StatusInterval {
				rate := float64(r.stats.Bytes-lastBytes) / (1 << 20) / now.Sub(lastReport).Seconds()
				r.logger.Info(pipeline.StatusLine(r.stats, rate), "messages", r.stats.Messages, "invalid", r.invalid)
				lastReport, lastBytes = now, r.stats.Bytes
			}
		}
	}
	return nil
}

func (r *reader) handle(c *message.Coded) {
	m, err := r.coder.DecodeAny(c)
	if err != nil {
		r.invalid++
		r.logger.Warn("Dropping undecodable message",
			"payload_type", r.types.Name(c.PayloadType),
			"error", err)
		return
	}

	name := r.types.Name(m.Type())
	r.stats.Messages++
	r.stats.Bytes += int64(protocol.FrameSize(c))
	r.stats.PerType[name]++

	switch v := m.(type) {
	case *kinect.Speech:
		for _, phrase := range v.Phrases.Elements {
			r.logger.Info("Speech recognized",
				"phrase", phrase.Tag,
				"confidence", phrase.Confidence,
				"stamp_us", v.Stamp.Micros)
		}
	case *kinect.Bodies:
		tracked := 0
		for _, b := range v.Bodies.Elements {
			if b.IsTracked {
				tracked++
			}
		}
		r.logger.Debug("Bodies", "tracked", tracked, "stamp_us", v.Stamp.Micros)
	}
}

// Stats returns the tally so far.
func (r *reader) Stats() (pipeline.Stats, int64) {
	return r.stats, r.invalid
}
