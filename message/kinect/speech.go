package kinect

import (
	"github.com/usc-rasc/kinect-bridge2/message"
)

// SpeechPhrase is one recognized grammar tag.
type SpeechPhrase struct {
	Tag        string
	Confidence float32
}

func (m *SpeechPhrase) Type() message.TypeID               { return message.TypeKinectSpeechPhrase }
func (m *SpeechPhrase) PackHeader(*message.Writer)         {}
func (m *SpeechPhrase) UnpackHeader(*message.Reader) error { return nil }

func (m *SpeechPhrase) PackPayload(w *message.Writer) {
	w.String(m.Tag)
	w.Float32(m.Confidence)
}

func (m *SpeechPhrase) UnpackPayload(r *message.Reader) error {
	m.Tag = r.String()
	m.Confidence = r.Float32()
	return r.Err()
}

// Speech is the set of phrases recognized in one utterance.
type Speech struct {
	Phrases *message.Vector[*SpeechPhrase]
	Stamp   message.TimeStamp
}

func newPhrase() *SpeechPhrase { return &SpeechPhrase{} }

// NewSpeech returns an empty utterance.
func NewSpeech() *Speech {
	return &Speech{Phrases: message.NewVector(newPhrase)}
}

func (m *Speech) Type() message.TypeID { return message.TypeKinectSpeech }

// Components returns the packed parts in wire order.
func (m *Speech) Components() message.Composite {
	if m.Phrases == nil {
		m.Phrases = message.NewVector(newPhrase)
	}
	return message.Composite{m.Phrases, &m.Stamp}
}

func (m *Speech) Validate() error                       { return m.Components().Validate() }
func (m *Speech) PackHeader(*message.Writer)            {}
func (m *Speech) PackPayload(w *message.Writer)         { m.Components().PackPayload(w) }
func (m *Speech) UnpackHeader(*message.Reader) error    { return nil }
func (m *Speech) UnpackPayload(r *message.Reader) error { return m.Components().UnpackPayload(r) }
