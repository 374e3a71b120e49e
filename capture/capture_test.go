package capture

import (
	"context"
	"encoding/binary"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usc-rasc/kinect-bridge2/codec"
	"github.com/usc-rasc/kinect-bridge2/device"
	"github.com/usc-rasc/kinect-bridge2/device/sim"
	"github.com/usc-rasc/kinect-bridge2/errors"
	"github.com/usc-rasc/kinect-bridge2/input/file"
	"github.com/usc-rasc/kinect-bridge2/message"
	"github.com/usc-rasc/kinect-bridge2/message/kinect"
	outfile "github.com/usc-rasc/kinect-bridge2/output/file"
	"github.com/usc-rasc/kinect-bridge2/pipeline"
)

func TestColorCrop(t *testing.T) {
	assert.Equal(t, Rect{X: 768, Y: 270, W: 384, H: 594}, ColorCrop(1920, 1080))
	assert.Equal(t, Rect{X: 4, Y: 2, W: 2, H: 4}, ColorCrop(10, 8))
	// 108 - 1.8*27 = 59.4 truncates to 59.
	assert.Equal(t, Rect{X: 76, Y: 27, W: 40, H: 59}, ColorCrop(192, 108))
	assert.Equal(t, Rect{X: 16, Y: 5, W: 8, H: 11}, ColorCrop(40, 20))
}

func TestCropRGBA(t *testing.T) {
	// 4x2 frame, pixel (x, y) = {x, y, 9, 255}
	src := make([]byte, 4*2*4)
	for y := 0; y < 2; y++ {
		for x := 0; x < 4; x++ {
			copy(src[(y*4+x)*4:], []byte{byte(x), byte(y), 9, 255})
		}
	}

	dst, err := CropRGBA(src, 4, 2, Rect{X: 1, Y: 0, W: 2, H: 2})
	require.NoError(t, err)
	assert.Equal(t, []byte{
		1, 0, 9, 2, 0, 9,
		1, 1, 9, 2, 1, 9,
	}, dst)

	_, err = CropRGBA(src, 4, 2, Rect{X: 3, Y: 0, W: 2, H: 1})
	assert.True(t, errors.IsInvalid(err))

	_, err = CropRGBA(src[:8], 4, 2, Rect{W: 1, H: 1})
	assert.True(t, errors.IsInvalid(err))
}

func rgbaSource(w, h int) device.Source[*kinect.ColorImage] {
	return device.SourceFunc[*kinect.ColorImage](func(_ context.Context, into *kinect.ColorImage) error {
		into.Image = message.Image{
			Width: uint16(w), Height: uint16(h), Channels: 4, Depth: 8,
			Encoding: "rgba", Data: message.Own(make([]byte, w*h*4)),
		}
		into.Stamp.Micros = 42
		return nil
	})
}

func TestColorAcquirer(t *testing.T) {
	a := NewColorAcquirer(rgbaSource(10, 8), true)

	first, err := a.Acquire(context.Background())
	require.NoError(t, err)
	second, err := a.Acquire(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, first, second, "each frame is a new message")

	img := first.(*kinect.ColorImage)
	assert.Equal(t, "rgb", img.Image.Encoding)
	assert.Equal(t, uint16(2), img.Image.Width)
	assert.Equal(t, uint16(4), img.Image.Height)
	assert.Equal(t, 2*4*3, img.Image.Data.Len())
	assert.Equal(t, uint64(42), img.Stamp.Micros)
	assert.NoError(t, message.Validate(img))

	full, err := NewColorAcquirer(rgbaSource(10, 8), false).Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10*8*3, full.(*kinect.ColorImage).Image.Data.Len())
}

func TestColorAcquirerRejectsNonRGBA(t *testing.T) {
	src := device.SourceFunc[*kinect.ColorImage](func(_ context.Context, into *kinect.ColorImage) error {
		into.Image = message.Image{Width: 2, Height: 2, Channels: 1, Depth: 8, Encoding: "gray",
			Data: message.Own(make([]byte, 4))}
		return nil
	})
	_, err := NewColorAcquirer(src, true).Acquire(context.Background())
	assert.True(t, errors.IsInvalid(err))
}

// scriptedAudio yields 256-sample blocks, reporting not ready before every
// other block.
type scriptedAudio struct {
	calls  int
	blocks int
}

func (s *scriptedAudio) Pull(_ context.Context, into *kinect.Audio) error {
	s.calls++
	if s.calls%2 == 0 {
		return device.NotReady("test", "Pull", "between blocks")
	}
	data := make([]byte, 256*4)
	binary.LittleEndian.PutUint32(data, uint32(s.blocks))
	into.Audio = message.Audio{NumSamples: 256, Channels: 1, SampleDepth: 32, SampleRate: 16000,
		Encoding: "PCM_FLOAT", Data: message.Own(data)}
	into.Info = kinect.AudioInfo{BeamAngle: float32(s.blocks), Confidence: 0.5}
	into.Stamp.Micros = uint64(1000 + s.blocks)
	s.blocks++
	return nil
}

func TestAudioAggregator(t *testing.T) {
	src := &scriptedAudio{}
	a := NewAudioAggregator(src, 2048, time.Millisecond)

	m, err := a.Acquire(context.Background())
	require.NoError(t, err)
	out := m.(*kinect.Audio)

	assert.Equal(t, 8, src.blocks)
	assert.Equal(t, uint32(2048), out.Audio.NumSamples)
	assert.Equal(t, 2048*4, out.Audio.Data.Len())
	assert.Equal(t, uint64(1000), out.Stamp.Micros, "timestamp of the first block")
	assert.InDelta(t, 3.5, out.Info.BeamAngle, 1e-6, "mean of 0..7")
	assert.InDelta(t, 0.5, out.Info.Confidence, 1e-6)
	assert.NoError(t, message.Validate(out))

	// Block k starts at byte k*1024 and carries k in its first sample.
	assert.Equal(t, uint32(7), binary.LittleEndian.Uint32(out.Audio.Data.Bytes()[7*1024:]))
}

func TestAudioAggregatorNotReadyWhenEmpty(t *testing.T) {
	src := &scriptedAudio{calls: 1}
	_, err := NewAudioAggregator(src, 2048, time.Millisecond).Acquire(context.Background())
	assert.True(t, device.IsNotReady(err))
	assert.Zero(t, src.blocks)
}

func TestAudioAggregatorHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	pulls := 0
	src := device.SourceFunc[*kinect.Audio](func(_ context.Context, into *kinect.Audio) error {
		pulls++
		if pulls > 1 {
			cancel()
			return device.NotReady("test", "Pull", "starved")
		}
		into.Audio = message.Audio{NumSamples: 16, Channels: 1, SampleDepth: 8, Encoding: "PCM",
			Data: message.Own(make([]byte, 16))}
		return nil
	})

	_, err := NewAudioAggregator(src, 2048, time.Hour).Acquire(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func newSim(t *testing.T) *sim.Device {
	t.Helper()
	cfg := sim.DefaultConfig()
	cfg.ColorWidth, cfg.ColorHeight = 40, 20
	cfg.DepthWidth, cfg.DepthHeight = 16, 8
	cfg.SpeechInterval = 50 * time.Millisecond
	dev, err := sim.New(cfg)
	require.NoError(t, err)
	require.NoError(t, dev.Open(context.Background()))
	return dev
}

func TestModalitiesDefault(t *testing.T) {
	mods, err := Modalities(DefaultConfig(), newSim(t), nil)
	require.NoError(t, err)

	var names []string
	var workers []int
	for _, m := range mods {
		names = append(names, m.Name)
		workers = append(workers, m.Workers)
		require.NotNil(t, m.Acquire)
	}
	assert.Equal(t, []string{Color, Depth, Infrared, Audio, Bodies, Speech}, names)
	assert.Equal(t, []int{8, 2, 2, 1, 1, 1}, workers)
	assert.Equal(t, codec.IDGzip, mods[3].Coder.Codec().ID())
	assert.Equal(t, codec.IDBinary, mods[0].Coder.Codec().ID())
}

func TestModalitiesConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Infrared.Enabled = false
	cfg.Speech.Enabled = false
	mods, err := Modalities(cfg, newSim(t), nil)
	require.NoError(t, err)
	assert.Len(t, mods, 4)

	cfg = DefaultConfig()
	cfg.Depth.Codec = "lz4"
	_, err = Modalities(cfg, newSim(t), nil)
	assert.True(t, errors.IsInvalid(err))

	cfg = Config{}
	assert.Error(t, cfg.Validate(), "nothing enabled")
}

func TestCaptureToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.stream")
	sink, err := outfile.New(outfile.Config{Path: path, BufferSize: 1 << 16})
	require.NoError(t, err)

	pcfg := pipeline.DefaultConfig()
	pcfg.StatusInterval = 0
	p, err := NewPipeline(pcfg, DefaultConfig(), newSim(t), sink)
	require.NoError(t, err)

	require.NoError(t, p.Start(context.Background()))
	time.Sleep(600 * time.Millisecond)
	require.NoError(t, p.Stop(5*time.Second))

	in, err := file.Open(file.Config{Path: path})
	require.NoError(t, err)
	defer in.Close()

	coder := codec.NewCoder(nil, nil, nil)
	seen := map[message.TypeID]int{}
	for {
		c, err := in.Pull(context.Background())
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		m, err := coder.DecodeAny(c)
		require.NoError(t, err)
		seen[m.Type()]++

		switch v := m.(type) {
		case *kinect.ColorImage:
			assert.Equal(t, "rgb", v.Image.Encoding)
			assert.Equal(t, ColorCrop(40, 20).W, int(v.Image.Width))
		case *kinect.Audio:
			assert.GreaterOrEqual(t, v.Audio.NumSamples, uint32(DefaultAudioMinSamples))
		case *kinect.Bodies:
			assert.Equal(t, 2, v.Bodies.Len())
		}
	}

	for _, id := range []message.TypeID{
		message.TypeKinectColorImage, message.TypeKinectDepthImage, message.TypeKinectInfraredImage,
		message.TypeKinectAudio, message.TypeKinectBodies, message.TypeKinectSpeech,
	} {
		assert.Positive(t, seen[id], message.Default().Name(id))
	}
	assert.Equal(t, p.Stats().Messages, int64(sumCounts(seen)))
}

func sumCounts(m map[message.TypeID]int) int {
	n := 0
	for _, v := range m {
		n += v
	}
	return n
}
