package message

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/usc-rasc/kinect-bridge2/errors"
	"github.com/usc-rasc/kinect-bridge2/pkg/timestamp"
)

// TimeStamp carries microseconds since the epoch in its payload.
type TimeStamp struct {
	Micros uint64
}

// Now returns a TimeStamp for the current time.
func Now() *TimeStamp { return &TimeStamp{Micros: timestamp.Now()} }

func (t *TimeStamp) Type() TypeID                  { return TypeTimeStamp }
func (t *TimeStamp) PackHeader(*Writer)            {}
func (t *TimeStamp) PackPayload(w *Writer)         { w.Uint64(t.Micros) }
func (t *TimeStamp) UnpackHeader(*Reader) error    { return nil }
func (t *TimeStamp) UnpackPayload(r *Reader) error { t.Micros = r.Uint64(); return r.Err() }

// Sequence is a u32 counter.
type Sequence struct {
	Value uint32
}

// Next increments the counter and returns the new value.
func (s *Sequence) Next() uint32 {
	s.Value++
	return s.Value
}

func (s *Sequence) Type() TypeID                  { return TypeSequence }
func (s *Sequence) PackHeader(*Writer)            {}
func (s *Sequence) PackPayload(w *Writer)         { w.Uint32(s.Value) }
func (s *Sequence) UnpackHeader(*Reader) error    { return nil }
func (s *Sequence) UnpackPayload(r *Reader) error { s.Value = r.Uint32(); return r.Err() }

// Checksum carries a binary payload with the hex digest of it in the header.
type Checksum struct {
	Engine string
	Sum    string
	Data   *Binary
}

// NewChecksum wraps data with its MD5 digest.
func NewChecksum(data []byte) *Checksum {
	sum := md5.Sum(data)
	return &Checksum{Engine: "md5", Sum: hex.EncodeToString(sum[:]), Data: Borrow(data)}
}

// Verify recomputes the digest and fails with ErrChecksumFailed on mismatch.
func (c *Checksum) Verify() error {
	if c.Engine != "md5" {
		return errors.WrapInvalid(fmt.Errorf("unsupported checksum engine %q", c.Engine), "Checksum", "Verify", "select engine")
	}
	var data []byte
	if c.Data != nil {
		data = c.Data.Bytes()
	}
	sum := md5.Sum(data)
	if !strings.EqualFold(hex.EncodeToString(sum[:]), c.Sum) {
		return errors.WrapInvalid(errors.ErrChecksumFailed, "Checksum", "Verify", "compare digest")
	}
	return nil
}

// Validate implements Validator.
func (c *Checksum) Validate() error { return c.Verify() }

func (c *Checksum) Type() TypeID { return TypeChecksum }

func (c *Checksum) PackHeader(w *Writer) {
	w.String(c.Engine)
	w.String(c.Sum)
}

func (c *Checksum) PackPayload(w *Writer) {
	data := c.Data
	if data == nil {
		data = Borrow(nil)
	}
	data.PackHeader(w)
	data.PackPayload(w)
}

func (c *Checksum) UnpackHeader(r *Reader) error {
	c.Engine = r.String()
	c.Sum = r.String()
	return r.Err()
}

func (c *Checksum) UnpackPayload(r *Reader) error {
	c.Data = &Binary{}
	return Unpack(r, c.Data)
}

// rawImageEncodings have a payload size fixed by the header.
var rawImageEncodings = map[string]bool{
	"rgb": true, "bgr": true, "rgba": true, "bgra": true, "gray": true,
}

// Image is a 2D frame. Depth is bits per channel.
type Image struct {
	Width    uint16
	Height   uint16
	Channels uint8
	Depth    uint8
	Encoding string
	Data     *Binary
}

// FrameSize returns the byte size of an uncompressed frame with this header.
func (m *Image) FrameSize() int {
	return int(m.Width) * int(m.Height) * int(m.Channels) * int(m.Depth) / 8
}

// Validate checks raw frames against their header.
func (m *Image) Validate() error {
	if rawImageEncodings[m.Encoding] && m.Data != nil && m.Data.Len() != m.FrameSize() {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %s frame %dx%dx%d has %d bytes, want %d", errors.ErrInvalidData,
				m.Encoding, m.Width, m.Height, m.Channels, m.Data.Len(), m.FrameSize()),
			"Image", "Validate", "check frame size")
	}
	return nil
}

func (m *Image) Type() TypeID { return TypeImage }

func (m *Image) PackHeader(w *Writer) {
	w.Uint16(m.Width)
	w.Uint16(m.Height)
	w.Uint8(m.Channels)
	w.Uint8(m.Depth)
	w.String(m.Encoding)
}

func (m *Image) PackPayload(w *Writer) { packBinary(w, m.Data) }

func (m *Image) UnpackHeader(r *Reader) error {
	m.Width = r.Uint16()
	m.Height = r.Uint16()
	m.Channels = r.Uint8()
	m.Depth = r.Uint8()
	m.Encoding = r.String()
	return r.Err()
}

func (m *Image) UnpackPayload(r *Reader) error {
	m.Data = &Binary{}
	return Unpack(r, m.Data)
}

// Audio is a block of samples. SampleDepth is bits per sample.
type Audio struct {
	NumSamples  uint32
	Channels    uint8
	SampleDepth uint8
	SampleRate  uint16
	Encoding    string
	Data        *Binary
}

// FrameSize returns the byte size of the samples described by the header.
func (m *Audio) FrameSize() int {
	return int(m.NumSamples) * int(m.Channels) * int(m.SampleDepth) / 8
}

// Validate checks PCM blocks against their header.
func (m *Audio) Validate() error {
	if strings.HasPrefix(m.Encoding, "PCM") && m.Data != nil && m.Data.Len() != m.FrameSize() {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %d samples need %d bytes, have %d", errors.ErrInvalidData,
				m.NumSamples, m.FrameSize(), m.Data.Len()),
			"Audio", "Validate", "check block size")
	}
	return nil
}

func (m *Audio) Type() TypeID { return TypeAudio }

func (m *Audio) PackHeader(w *Writer) {
	w.Uint32(m.NumSamples)
	w.Uint8(m.Channels)
	w.Uint8(m.SampleDepth)
	w.Uint16(m.SampleRate)
	w.String(m.Encoding)
}

func (m *Audio) PackPayload(w *Writer) { packBinary(w, m.Data) }

func (m *Audio) UnpackHeader(r *Reader) error {
	m.NumSamples = r.Uint32()
	m.Channels = r.Uint8()
	m.SampleDepth = r.Uint8()
	m.SampleRate = r.Uint16()
	m.Encoding = r.String()
	return r.Err()
}

func (m *Audio) UnpackPayload(r *Reader) error {
	m.Data = &Binary{}
	return Unpack(r, m.Data)
}

func packBinary(w *Writer, b *Binary) {
	if b == nil {
		b = Borrow(nil)
	}
	b.PackHeader(w)
	b.PackPayload(w)
}

func init() {
	defaultRegistry.MustRegister(Kind{ID: TypeTimeStamp, Name: "timestamp", Legacy: "TimeStampMessage",
		New: func() Message { return &TimeStamp{} }})
	defaultRegistry.MustRegister(Kind{ID: TypeSequence, Name: "sequence", Legacy: "SequenceMessage",
		New: func() Message { return &Sequence{} }})
	defaultRegistry.MustRegister(Kind{ID: TypeChecksum, Name: "checksum", Legacy: "ChecksumMessage",
		New: func() Message { return &Checksum{} }})
	defaultRegistry.MustRegister(Kind{ID: TypeBinary, Name: "binary", Legacy: "BinaryMessage",
		New: func() Message { return &Binary{} }})
	defaultRegistry.MustRegister(Kind{ID: TypeImage, Name: "image", Legacy: "ImageMessage",
		New: func() Message { return &Image{} }})
	defaultRegistry.MustRegister(Kind{ID: TypeAudio, Name: "audio", Legacy: "AudioMessage",
		New: func() Message { return &Audio{} }})
	defaultRegistry.MustRegister(Kind{ID: TypeEnvelope, Name: "envelope", Legacy: "RecursiveMessage",
		New: func() Message { return &Envelope{} }})
	defaultRegistry.MustRegister(Kind{ID: TypeCoded, Name: "coded", Legacy: "CodedMessage",
		New: func() Message { return &Coded{} }})
}
