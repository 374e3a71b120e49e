package capture

import (
	"context"
	"fmt"

	"github.com/usc-rasc/kinect-bridge2/device"
	"github.com/usc-rasc/kinect-bridge2/errors"
	"github.com/usc-rasc/kinect-bridge2/message"
	"github.com/usc-rasc/kinect-bridge2/message/kinect"
)

// Rect is a pixel window.
type Rect struct {
	X, Y, W, H int
}

// ColorCrop returns the window kept from a w×h color frame: the middle
// fifth horizontally, and vertically from a quarter down to just past the
// middle, where a seated subject's upper body sits.
// The height is computed in float32 and truncated once.
func ColorCrop(w, h int) Rect {
	x := int(0.4 * float32(w))
	y := int(0.25 * float32(h))
	fy := float32(y)
	return Rect{
		X: x,
		Y: y,
		W: w - 2*x,
		H: int(float32(h) - (fy + float32(0.8*fy))),
	}
}

// CropRGBA copies r out of a packed RGBA frame of width w as packed RGB.
func CropRGBA(src []byte, w, h int, r Rect) ([]byte, error) {
	if r.X < 0 || r.Y < 0 || r.W <= 0 || r.H <= 0 || r.X+r.W > w || r.Y+r.H > h {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: window %+v outside %dx%d", errors.ErrInvalidData, r, w, h),
			"capture", "CropRGBA", "check window")
	}
	if len(src) < w*h*4 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %d bytes for %dx%d RGBA", errors.ErrInvalidData, len(src), w, h),
			"capture", "CropRGBA", "check frame size")
	}

	dst := make([]byte, r.W*r.H*3)
	d := 0
	for y := r.Y; y < r.Y+r.H; y++ {
		row := src[(y*w+r.X)*4 : (y*w+r.X+r.W)*4]
		for i := 0; i < len(row); i += 4 {
			copy(dst[d:d+3], row[i:i+3])
			d += 3
		}
	}
	return dst, nil
}

// ColorAcquirer pulls RGBA frames and emits RGB frames, cropped when Crop
// is set. Every call returns a new message.
type ColorAcquirer struct {
	src  device.Source[*kinect.ColorImage]
	crop bool
}

// NewColorAcquirer wraps src.
func NewColorAcquirer(src device.Source[*kinect.ColorImage], crop bool) *ColorAcquirer {
	return &ColorAcquirer{src: src, crop: crop}
}

// Acquire pulls and converts one frame.
func (a *ColorAcquirer) Acquire(ctx context.Context) (message.Message, error) {
	var raw kinect.ColorImage
	if err := a.src.Pull(ctx, &raw); err != nil {
		return nil, err
	}
	img := &raw.Image
	if img.Encoding != "rgba" || img.Channels != 4 || img.Depth != 8 || img.Data == nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: color frame %q %dch %dbit", errors.ErrInvalidData, img.Encoding, img.Channels, img.Depth),
			"ColorAcquirer", "Acquire", "check frame format")
	}

	w, h := int(img.Width), int(img.Height)
	r := Rect{W: w, H: h}
	if a.crop {
		r = ColorCrop(w, h)
	}
	rgb, err := CropRGBA(img.Data.Bytes(), w, h, r)
	if err != nil {
		return nil, err
	}
	_ = img.Data.Release()

	return &kinect.ColorImage{
		Image: message.Image{
			Width:    uint16(r.W),
			Height:   uint16(r.H),
			Channels: 3,
			Depth:    8,
			Encoding: "rgb",
			Data:     message.Own(rgb),
		},
		Stamp: raw.Stamp,
	}, nil
}
