package sim

import (
	"context"
	"encoding/binary"
	"math"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/usc-rasc/kinect-bridge2/device"
	"github.com/usc-rasc/kinect-bridge2/errors"
	"github.com/usc-rasc/kinect-bridge2/message"
	"github.com/usc-rasc/kinect-bridge2/message/kinect"
	"github.com/usc-rasc/kinect-bridge2/pkg/timestamp"
)

// Config describes the synthetic sensor.
type Config struct {
	ColorWidth      int           `json:"color_width"       yaml:"color_width"`
	ColorHeight     int           `json:"color_height"      yaml:"color_height"`
	DepthWidth      int           `json:"depth_width"       yaml:"depth_width"`
	DepthHeight     int           `json:"depth_height"      yaml:"depth_height"`
	FrameRate       float64       `json:"frame_rate"        yaml:"frame_rate"`
	AudioSamples    int           `json:"audio_samples"     yaml:"audio_samples"`
	AudioSampleRate int           `json:"audio_sample_rate" yaml:"audio_sample_rate"`
	Bodies          int           `json:"bodies"            yaml:"bodies"`
	SpeechInterval  time.Duration `json:"speech_interval"   yaml:"speech_interval"`
	Phrases         []string      `json:"phrases"           yaml:"phrases"`
	// ReadyAfter is how many Open calls report not ready before one succeeds.
	ReadyAfter int    `json:"ready_after" yaml:"ready_after"`
	Seed       uint64 `json:"seed"        yaml:"seed"`
}

// DefaultConfig mirrors a Kinect v2 sensor.
func DefaultConfig() Config {
	return Config{
		ColorWidth:      1920,
		ColorHeight:     1080,
		DepthWidth:      512,
		DepthHeight:     424,
		FrameRate:       30,
		AudioSamples:    256,
		AudioSampleRate: 16000,
		Bodies:          2,
		SpeechInterval:  5 * time.Second,
		Phrases:         []string{"hello", "yes", "no", "stop"},
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.ColorWidth <= 0 || c.ColorHeight <= 0 || c.DepthWidth <= 0 || c.DepthHeight <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "frame sizes must be positive")
	}
	if c.ColorWidth > math.MaxUint16 || c.ColorHeight > math.MaxUint16 ||
		c.DepthWidth > math.MaxUint16 || c.DepthHeight > math.MaxUint16 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "frame sizes exceed 65535")
	}
	if c.FrameRate <= 0 || c.AudioSamples <= 0 || c.AudioSampleRate <= 0 || c.AudioSampleRate > math.MaxUint16 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "rates must be positive")
	}
	if c.Bodies < 0 || c.SpeechInterval < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "bodies and speech interval cannot be negative")
	}
	return nil
}

// stream paces one modality with a burst-1 limiter, so a consumer that
// falls behind gets the next frame at once but never a backlog.
type stream struct {
	interval time.Duration
	lim      atomic.Pointer[rate.Limiter]
	count    atomic.Uint64
}

// reset restarts pacing at now. An unprimed stream has its first frame one
// interval later.
func (s *stream) reset(now time.Time, primed bool) {
	if s.interval <= 0 {
		s.lim.Store(nil)
		return
	}
	lim := rate.NewLimiter(rate.Every(s.interval), 1)
	if !primed {
		lim.AllowN(now, 1)
	}
	s.lim.Store(lim)
}

func (s *stream) take(now time.Time) (uint64, bool) {
	lim := s.lim.Load()
	if lim == nil || !lim.AllowN(now, 1) {
		return 0, false
	}
	return s.count.Add(1), true
}

// Device is a synthetic device.Device.
type Device struct {
	cfg   Config
	clock func() time.Time

	opens  atomic.Int64
	opened atomic.Bool

	color, depth, infrared, audio, bodies, speech stream

	rngMu sync.Mutex
	rng   *rand.Rand
}

// Option configures a Device.
type Option func(*Device)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(d *Device) { d.clock = now }
}

// New creates a synthetic device.
func New(cfg Config, opts ...Option) (*Device, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	frame := time.Duration(float64(time.Second) / cfg.FrameRate)
	d := &Device{
		cfg:   cfg,
		clock: time.Now,
		rng:   rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
	}
	d.color.interval = frame
	d.depth.interval = frame
	d.infrared.interval = frame
	d.bodies.interval = frame
	d.audio.interval = time.Duration(cfg.AudioSamples) * time.Second / time.Duration(cfg.AudioSampleRate)
	d.speech.interval = cfg.SpeechInterval
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Open reports not ready for the first ReadyAfter calls.
func (d *Device) Open(context.Context) error {
	if d.opens.Add(1) <= int64(d.cfg.ReadyAfter) {
		return device.NotReady("sim", "Open", "sensor warming up")
	}
	now := d.clock()
	for _, s := range []*stream{&d.color, &d.depth, &d.infrared, &d.audio, &d.bodies} {
		s.reset(now, true)
	}
	d.speech.reset(now, false)
	d.opened.Store(true)
	return nil
}

// Close marks the device closed; further pulls report not ready.
func (d *Device) Close() error {
	d.opened.Store(false)
	return nil
}

func (d *Device) take(s *stream, method string) (uint64, error) {
	if !d.opened.Load() {
		return 0, device.NotReady("sim", method, "device not open")
	}
	n, ok := s.take(d.clock())
	if !ok {
		return 0, device.NotReady("sim", method, "no new frame")
	}
	return n, nil
}

func (d *Device) float32() float32 {
	d.rngMu.Lock()
	defer d.rngMu.Unlock()
	return d.rng.Float32()
}

// Color returns RGBA frames with a moving gradient.
func (d *Device) Color() device.Source[*kinect.ColorImage] {
	return device.SourceFunc[*kinect.ColorImage](func(_ context.Context, into *kinect.ColorImage) error {
		n, err := d.take(&d.color, "Color")
		if err != nil {
			return err
		}
		w, h := d.cfg.ColorWidth, d.cfg.ColorHeight
		data := make([]byte, w*h*4)
		for y := 0; y < h; y++ {
			row := data[y*w*4 : (y+1)*w*4]
			for x := 0; x < w; x++ {
				px := row[x*4 : x*4+4]
				px[0] = byte(x + int(n))
				px[1] = byte(y + int(n))
				px[2] = byte(x + y)
				px[3] = 0xff
			}
		}
		into.Image = message.Image{
			Width: uint16(w), Height: uint16(h), Channels: 4, Depth: 8,
			Encoding: "rgba", Data: message.Own(data),
		}
		into.Stamp.Micros = timestamp.FromTime(d.clock())
		return nil
	})
}

func (d *Device) gray16(n uint64) message.Image {
	w, h := d.cfg.DepthWidth, d.cfg.DepthHeight
	data := make([]byte, w*h*2)
	for i := 0; i < w*h; i++ {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(500+(i+int(n))%4000))
	}
	return message.Image{
		Width: uint16(w), Height: uint16(h), Channels: 1, Depth: 16,
		Encoding: "gray", Data: message.Own(data),
	}
}

// Depth returns 16-bit depth frames in millimetres.
func (d *Device) Depth() device.Source[*kinect.DepthImage] {
	return device.SourceFunc[*kinect.DepthImage](func(_ context.Context, into *kinect.DepthImage) error {
		n, err := d.take(&d.depth, "Depth")
		if err != nil {
			return err
		}
		into.Image = d.gray16(n)
		into.Info = kinect.DepthInfo{MinReliable: 500, MaxReliable: 4500}
		into.Stamp.Micros = timestamp.FromTime(d.clock())
		return nil
	})
}

// Infrared returns 16-bit intensity frames.
func (d *Device) Infrared() device.Source[*kinect.InfraredImage] {
	return device.SourceFunc[*kinect.InfraredImage](func(_ context.Context, into *kinect.InfraredImage) error {
		n, err := d.take(&d.infrared, "Infrared")
		if err != nil {
			return err
		}
		into.Image = d.gray16(n)
		into.Stamp.Micros = timestamp.FromTime(d.clock())
		return nil
	})
}

// Audio returns mono 32-bit float blocks of AudioSamples samples.
func (d *Device) Audio() device.Source[*kinect.Audio] {
	return device.SourceFunc[*kinect.Audio](func(_ context.Context, into *kinect.Audio) error {
		n, err := d.take(&d.audio, "Audio")
		if err != nil {
			return err
		}
		samples := d.cfg.AudioSamples
		data := make([]byte, samples*4)
		base := float64(n) * float64(samples)
		for i := 0; i < samples; i++ {
			v := float32(math.Sin(2 * math.Pi * 440 * (base + float64(i)) / float64(d.cfg.AudioSampleRate)))
			binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(v))
		}
		into.Audio = message.Audio{
			NumSamples: uint32(samples), Channels: 1, SampleDepth: 32,
			SampleRate: uint16(d.cfg.AudioSampleRate), Encoding: "PCM_FLOAT", Data: message.Own(data),
		}
		into.Info = kinect.AudioInfo{BeamAngle: d.float32() - 0.5, Confidence: d.float32()}
		into.Stamp.Micros = timestamp.FromTime(d.clock())
		return nil
	})
}

// Bodies returns Bodies tracked skeletons swaying in front of the sensor.
func (d *Device) Bodies() device.Source[*kinect.Bodies] {
	return device.SourceFunc[*kinect.Bodies](func(_ context.Context, into *kinect.Bodies) error {
		n, err := d.take(&d.bodies, "Bodies")
		if err != nil {
			return err
		}
		into.Bodies = message.NewVector(kinect.NewBody)
		phase := float64(n) / d.cfg.FrameRate
		for b := 0; b < d.cfg.Bodies; b++ {
			body := kinect.NewBody()
			body.IsTracked = true
			body.TrackingID = uint64(1000 + b)
			body.HandLeft = kinect.HandOpen
			body.HandRight = kinect.HandClosed
			for i, j := range body.Joints.Elements {
				j.State = kinect.Tracked
				j.Position = [3]float32{
					float32(b) - 0.5 + 0.1*float32(math.Sin(phase)),
					float32(i) * 0.05,
					2.0,
				}
				j.Orientation = [4]float32{0, 0, 0, 1}
			}
			into.Bodies.Append(body)
		}
		into.Stamp.Micros = timestamp.FromTime(d.clock())
		return nil
	})
}

// Speech returns one recognized phrase every SpeechInterval.
func (d *Device) Speech() device.Source[*kinect.Speech] {
	return device.SourceFunc[*kinect.Speech](func(_ context.Context, into *kinect.Speech) error {
		n, err := d.take(&d.speech, "Speech")
		if err != nil {
			return err
		}
		into.Phrases = message.NewVector(func() *kinect.SpeechPhrase { return &kinect.SpeechPhrase{} })
		if len(d.cfg.Phrases) > 0 {
			tag := d.cfg.Phrases[int(n-1)%len(d.cfg.Phrases)]
			into.Phrases.Append(&kinect.SpeechPhrase{Tag: tag, Confidence: 0.5 + d.float32()/2})
		}
		into.Stamp.Micros = timestamp.FromTime(d.clock())
		return nil
	})
}

var _ device.Device = (*Device)(nil)
