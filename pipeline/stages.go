package pipeline

import (
	"context"
	"time"

	"github.com/usc-rasc/kinect-bridge2/errors"
	"github.com/usc-rasc/kinect-bridge2/pkg/worker"
	"github.com/usc-rasc/kinect-bridge2/protocol"
)

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (p *Pipeline) acquireStep(s *stage) worker.StepFunc {
	return func(ctx context.Context) error {
		if s.queue.Full() {
			sleep(ctx, p.cfg.Pause)
			if s.queue.Full() {
				return nil
			}
		}

		msg, err := s.Acquire(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if p.metrics != nil && errors.Is(err, errors.ErrDeviceNotReady) {
				p.metrics.AcquisitionRetries.WithLabelValues(s.Name).Inc()
			}
			sleep(ctx, p.cfg.RetryDelay)
			if errors.Is(err, errors.ErrDeviceNotReady) {
				return nil
			}
			return errors.Wrap(err, "Pipeline", "acquire", "pull "+s.Name)
		}
		if msg == nil {
			return nil
		}

		if err := s.queue.Push(msg); err != nil {
			p.drop("acquire_"+s.Name, 1)
			return worker.ErrDone
		}
		s.acquired.Add(1)
		if p.metrics != nil {
			p.metrics.MessagesAcquired.WithLabelValues(s.Name).Inc()
		}
		return nil
	}
}

func (p *Pipeline) compressStep(s *stage) worker.StepFunc {
	return func(ctx context.Context) error {
		if p.output.Full() {
			sleep(ctx, p.cfg.Pause)
			return nil
		}

		msg, err := s.queue.PopWait(p.cfg.Pause)
		if err != nil {
			if errors.Is(err, errors.ErrShuttingDown) {
				return worker.ErrDone
			}
			return nil
		}

		start := time.Now()
		coded, err := s.Coder.Encode(msg)
		if err != nil {
			s.dropped.Add(1)
			p.drop("compress_"+s.Name, 1)
			return errors.Wrap(err, "Pipeline", "compress", "encode "+s.Name)
		}
		if p.metrics != nil {
			codecName := s.Coder.Codec().Name()
			p.metrics.EncodeDuration.WithLabelValues(s.Name, codecName).Observe(time.Since(start).Seconds())
			if coded.DecodedSize > 0 {
				ratio := float64(len(coded.Data)) / float64(coded.DecodedSize)
				p.metrics.CompressionRatio.WithLabelValues(s.Name).Set(ratio)
			}
			p.metrics.MessagesEncoded.WithLabelValues(s.Name).Inc()
		}
		s.encoded.Add(1)

		if err := p.output.Push(coded); err != nil {
			s.dropped.Add(1)
			p.drop("compress_"+s.Name, 1)
			return worker.ErrDone
		}
		return nil
	}
}

func (p *Pipeline) writeStep(ctx context.Context) error {
	coded, err := p.output.PopWait(p.cfg.Pause)
	if err != nil {
		if errors.Is(err, errors.ErrShuttingDown) {
			return worker.ErrDone
		}
		return nil
	}

	size := protocol.FrameSize(coded)
	if err := p.sink.Push(ctx, coded); err != nil {
		p.drop("writer", 1)
		if errors.Is(err, errors.ErrTransport) {
			return errors.Wrap(err, "Pipeline", "write", "deliver to peer (peer gone)")
		}
		return errors.Wrap(err, "Pipeline", "write", "push to sink")
	}

	name := p.types.Name(coded.PayloadType)
	p.stats.written(name, size)
	if p.metrics != nil {
		p.metrics.MessagesWritten.WithLabelValues(name).Inc()
		p.metrics.BytesWritten.Add(float64(size))
	}
	return nil
}
