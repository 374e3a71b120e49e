package kinect

import (
	"github.com/usc-rasc/kinect-bridge2/message"
)

// ColorImage is a color frame.
type ColorImage struct {
	Image message.Image
	Stamp message.TimeStamp
}

func (m *ColorImage) Type() message.TypeID { return message.TypeKinectColorImage }

// Components returns the packed parts in wire order.
func (m *ColorImage) Components() message.Composite {
	return message.Composite{&m.Image, &m.Stamp}
}

func (m *ColorImage) Validate() error                       { return m.Components().Validate() }
func (m *ColorImage) PackHeader(*message.Writer)            {}
func (m *ColorImage) PackPayload(w *message.Writer)         { m.Components().PackPayload(w) }
func (m *ColorImage) UnpackHeader(*message.Reader) error    { return nil }
func (m *ColorImage) UnpackPayload(r *message.Reader) error { return m.Components().UnpackPayload(r) }

// DepthInfo is the reliable depth range of a depth frame, in millimetres.
type DepthInfo struct {
	MinReliable uint16
	MaxReliable uint16
}

func (m *DepthInfo) Type() message.TypeID               { return message.TypeKinectDepthInfo }
func (m *DepthInfo) PackHeader(*message.Writer)         {}
func (m *DepthInfo) UnpackHeader(*message.Reader) error { return nil }

func (m *DepthInfo) PackPayload(w *message.Writer) {
	w.Uint16(m.MinReliable)
	w.Uint16(m.MaxReliable)
}

func (m *DepthInfo) UnpackPayload(r *message.Reader) error {
	m.MinReliable = r.Uint16()
	m.MaxReliable = r.Uint16()
	return r.Err()
}

// DepthImage is a 16-bit depth frame with its reliable range.
type DepthImage struct {
	Image message.Image
	Info  DepthInfo
	Stamp message.TimeStamp
}

func (m *DepthImage) Type() message.TypeID { return message.TypeKinectDepthImage }

// Components returns the packed parts in wire order.
func (m *DepthImage) Components() message.Composite {
	return message.Composite{&m.Image, &m.Info, &m.Stamp}
}

func (m *DepthImage) Validate() error                       { return m.Components().Validate() }
func (m *DepthImage) PackHeader(*message.Writer)            {}
func (m *DepthImage) PackPayload(w *message.Writer)         { m.Components().PackPayload(w) }
func (m *DepthImage) UnpackHeader(*message.Reader) error    { return nil }
func (m *DepthImage) UnpackPayload(r *message.Reader) error { return m.Components().UnpackPayload(r) }

// InfraredImage is a 16-bit infrared frame.
type InfraredImage struct {
	Image message.Image
	Stamp message.TimeStamp
}

func (m *InfraredImage) Type() message.TypeID { return message.TypeKinectInfraredImage }

// Components returns the packed parts in wire order.
func (m *InfraredImage) Components() message.Composite {
	return message.Composite{&m.Image, &m.Stamp}
}

func (m *InfraredImage) Validate() error                       { return m.Components().Validate() }
func (m *InfraredImage) PackHeader(*message.Writer)            {}
func (m *InfraredImage) PackPayload(w *message.Writer)         { m.Components().PackPayload(w) }
func (m *InfraredImage) UnpackHeader(*message.Reader) error    { return nil }
func (m *InfraredImage) UnpackPayload(r *message.Reader) error { return m.Components().UnpackPayload(r) }
