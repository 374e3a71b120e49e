package capture

import (
	"context"
	"fmt"
	"time"

	"github.com/usc-rasc/kinect-bridge2/codec"
	"github.com/usc-rasc/kinect-bridge2/device"
	"github.com/usc-rasc/kinect-bridge2/errors"
	"github.com/usc-rasc/kinect-bridge2/message"
	"github.com/usc-rasc/kinect-bridge2/message/kinect"
	"github.com/usc-rasc/kinect-bridge2/pipeline"
	"github.com/usc-rasc/kinect-bridge2/protocol"
)

// Modality names.
const (
	Color    = "color"
	Depth    = "depth"
	Infrared = "infrared"
	Audio    = "audio"
	Bodies   = "bodies"
	Speech   = "speech"
)

// Defaults for audio aggregation.
const (
	DefaultAudioMinSamples = 2048
	DefaultAudioWait       = 33 * time.Millisecond
)

// ModalityConfig selects whether a modality is captured and how it is
// compressed.
type ModalityConfig struct {
	Enabled bool   `json:"enabled"              yaml:"enabled"`
	Workers int    `json:"workers"              yaml:"workers"`
	Codec   string `json:"codec"                yaml:"codec"`
	Level   int    `json:"level,omitempty"      yaml:"level,omitempty"`
	// HighWater overrides the pipeline's modality mark when positive.
	HighWater int `json:"high_water,omitempty" yaml:"high_water,omitempty"`
}

// Config is the per-modality capture setup.
type Config struct {
	Color    ModalityConfig `json:"color"    yaml:"color"`
	Depth    ModalityConfig `json:"depth"    yaml:"depth"`
	Infrared ModalityConfig `json:"infrared" yaml:"infrared"`
	Audio    ModalityConfig `json:"audio"    yaml:"audio"`
	Bodies   ModalityConfig `json:"bodies"   yaml:"bodies"`
	Speech   ModalityConfig `json:"speech"   yaml:"speech"`

	CropColor       bool          `json:"crop_color"        yaml:"crop_color"`
	AudioMinSamples int           `json:"audio_min_samples" yaml:"audio_min_samples"`
	AudioWait       time.Duration `json:"audio_wait"        yaml:"audio_wait"`
}

// DefaultConfig captures every modality, with compression workers sized by
// cost and gzip only for audio.
func DefaultConfig() Config {
	return Config{
		Color:           ModalityConfig{Enabled: true, Workers: 8, Codec: "binary"},
		Depth:           ModalityConfig{Enabled: true, Workers: 2, Codec: "binary"},
		Infrared:        ModalityConfig{Enabled: true, Workers: 2, Codec: "binary"},
		Audio:           ModalityConfig{Enabled: true, Workers: 1, Codec: "gzip", Level: 1},
		Bodies:          ModalityConfig{Enabled: true, Workers: 1, Codec: "binary"},
		Speech:          ModalityConfig{Enabled: true, Workers: 1, Codec: "binary"},
		CropColor:       true,
		AudioMinSamples: DefaultAudioMinSamples,
		AudioWait:       DefaultAudioWait,
	}
}

// entries lists the modalities in table order.
func (c *Config) entries() []struct {
	name string
	mc   ModalityConfig
} {
	return []struct {
		name string
		mc   ModalityConfig
	}{
		{Color, c.Color}, {Depth, c.Depth}, {Infrared, c.Infrared},
		{Audio, c.Audio}, {Bodies, c.Bodies}, {Speech, c.Speech},
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	enabled := 0
	for _, e := range c.entries() {
		if !e.mc.Enabled {
			continue
		}
		enabled++
		if e.mc.Workers < 0 || e.mc.HighWater < 0 {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "capture.Config", "Validate",
				fmt.Sprintf("%s: negative workers or high_water", e.name))
		}
		if _, err := codec.New(e.mc.Codec, e.mc.Level); err != nil {
			return errors.WrapInvalid(err, "capture.Config", "Validate", e.name+" codec")
		}
	}
	if enabled == 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "capture.Config", "Validate", "no modality enabled")
	}
	if c.AudioMinSamples < 0 || c.AudioWait < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "capture.Config", "Validate", "negative audio settings")
	}
	return nil
}

// pull adapts a device source that fills a fresh message per call.
func pull[M message.Message](src device.Source[M], newFn func() M) pipeline.AcquireFunc {
	return func(ctx context.Context) (message.Message, error) {
		m := newFn()
		if err := src.Pull(ctx, m); err != nil {
			return nil, err
		}
		return m, nil
	}
}

// Modalities builds the pipeline's modality table for dev. Codecs share
// set for decoding; a nil set means codec.DefaultSet().
func Modalities(cfg Config, dev device.Device, set *codec.Set) ([]pipeline.Modality, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if set == nil {
		set = codec.DefaultSet()
	}

	acquirers := map[string]pipeline.AcquireFunc{
		Color:    NewColorAcquirer(dev.Color(), cfg.CropColor).Acquire,
		Depth:    pull(dev.Depth(), func() *kinect.DepthImage { return &kinect.DepthImage{} }),
		Infrared: pull(dev.Infrared(), func() *kinect.InfraredImage { return &kinect.InfraredImage{} }),
		Audio:    NewAudioAggregator(dev.Audio(), cfg.AudioMinSamples, cfg.AudioWait).Acquire,
		Bodies:   pull(dev.Bodies(), kinect.NewBodies),
		Speech:   pull(dev.Speech(), kinect.NewSpeech),
	}

	var out []pipeline.Modality
	for _, e := range cfg.entries() {
		if !e.mc.Enabled {
			continue
		}
		enc, err := codec.New(e.mc.Codec, e.mc.Level)
		if err != nil {
			return nil, errors.WrapInvalid(err, "capture", "Modalities", e.name+" codec")
		}
		out = append(out, pipeline.Modality{
			Name:      e.name,
			Acquire:   acquirers[e.name],
			Coder:     codec.NewCoder(enc, set, nil),
			Workers:   e.mc.Workers,
			HighWater: e.mc.HighWater,
		})
	}
	return out, nil
}

// NewPipeline assembles a capture pipeline reading dev and writing to sink.
func NewPipeline(pcfg pipeline.Config, cfg Config, dev device.Device, sink protocol.Sink, opts ...pipeline.Option) (*pipeline.Pipeline, error) {
	modalities, err := Modalities(cfg, dev, nil)
	if err != nil {
		return nil, err
	}
	return pipeline.New(pcfg, sink, modalities, opts...)
}
