package capture

import (
	"context"
	"fmt"
	"time"

	"github.com/usc-rasc/kinect-bridge2/device"
	"github.com/usc-rasc/kinect-bridge2/errors"
	"github.com/usc-rasc/kinect-bridge2/message"
	"github.com/usc-rasc/kinect-bridge2/message/kinect"
)

// AudioAggregator merges device audio blocks into messages of at least
// MinSamples samples. The header and timestamp come from the first block;
// beam angle and confidence are averaged over the merged blocks.
type AudioAggregator struct {
	src        device.Source[*kinect.Audio]
	minSamples int
	wait       time.Duration
}

// NewAudioAggregator wraps src. wait is the pause between pulls while a
// message is partially assembled.
func NewAudioAggregator(src device.Source[*kinect.Audio], minSamples int, wait time.Duration) *AudioAggregator {
	if minSamples <= 0 {
		minSamples = DefaultAudioMinSamples
	}
	return &AudioAggregator{src: src, minSamples: minSamples, wait: wait}
}

// Acquire returns one merged block. With nothing buffered a not-ready
// device is reported to the caller; once a block has started, Acquire
// waits for the rest until ctx ends.
func (a *AudioAggregator) Acquire(ctx context.Context) (message.Message, error) {
	var (
		out     *kinect.Audio
		data    []byte
		samples int
		frames  int
		beam    float32
		conf    float32
	)

	for samples < a.minSamples {
		var f kinect.Audio
		if err := a.src.Pull(ctx, &f); err != nil {
			if !device.IsNotReady(err) || out == nil {
				return nil, err
			}
			if err := wait(ctx, a.wait); err != nil {
				return nil, err
			}
			continue
		}

		if out == nil {
			out = &kinect.Audio{Audio: f.Audio, Stamp: f.Stamp}
		} else if !sameFormat(&out.Audio, &f.Audio) {
			return nil, errors.WrapInvalid(
				fmt.Errorf("%w: audio format changed mid-block", errors.ErrInvalidData),
				"AudioAggregator", "Acquire", "merge block")
		}
		if f.Audio.Data != nil {
			data = append(data, f.Audio.Data.Bytes()...)
		}
		samples += int(f.Audio.NumSamples)
		beam += f.Info.BeamAngle
		conf += f.Info.Confidence
		frames++
	}

	out.Audio.NumSamples = uint32(samples)
	out.Audio.Data = message.Own(data)
	out.Info = kinect.AudioInfo{
		BeamAngle:  beam / float32(frames),
		Confidence: conf / float32(frames),
	}
	return out, nil
}

func sameFormat(a, b *message.Audio) bool {
	return a.Channels == b.Channels && a.SampleDepth == b.SampleDepth &&
		a.SampleRate == b.SampleRate && a.Encoding == b.Encoding
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
