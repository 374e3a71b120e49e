package kinect

import (
	"github.com/usc-rasc/kinect-bridge2/message"
)

// AudioInfo is the beam direction of an audio block, in radians, and the
// device's confidence in it.
type AudioInfo struct {
	BeamAngle  float32
	Confidence float32
}

func (m *AudioInfo) Type() message.TypeID               { return message.TypeKinectAudioInfo }
func (m *AudioInfo) PackHeader(*message.Writer)         {}
func (m *AudioInfo) UnpackHeader(*message.Reader) error { return nil }

func (m *AudioInfo) PackPayload(w *message.Writer) {
	w.Float32(m.BeamAngle)
	w.Float32(m.Confidence)
}

func (m *AudioInfo) UnpackPayload(r *message.Reader) error {
	m.BeamAngle = r.Float32()
	m.Confidence = r.Float32()
	return r.Err()
}

// Audio is a block of beam-formed samples.
type Audio struct {
	Audio message.Audio
	Info  AudioInfo
	Stamp message.TimeStamp
}

func (m *Audio) Type() message.TypeID { return message.TypeKinectAudio }

// Components returns the packed parts in wire order.
func (m *Audio) Components() message.Composite {
	return message.Composite{&m.Audio, &m.Info, &m.Stamp}
}

func (m *Audio) Validate() error                       { return m.Components().Validate() }
func (m *Audio) PackHeader(*message.Writer)            {}
func (m *Audio) PackPayload(w *message.Writer)         { m.Components().PackPayload(w) }
func (m *Audio) UnpackHeader(*message.Reader) error    { return nil }
func (m *Audio) UnpackPayload(r *message.Reader) error { return m.Components().UnpackPayload(r) }
