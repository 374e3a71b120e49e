package message

import (
	"fmt"

	"github.com/usc-rasc/kinect-bridge2/errors"
)

// Message is a self-describing unit of data made of a header and a payload
// that pack and unpack independently.
type Message interface {
	Type() TypeID
	PackHeader(w *Writer)
	PackPayload(w *Writer)
	UnpackHeader(r *Reader) error
	UnpackPayload(r *Reader) error
}

// Validator is implemented by messages whose invariants must hold before
// they are packed.
type Validator interface {
	Validate() error
}

// Validate runs m's Validate if it has one.
func Validate(m Message) error {
	if v, ok := m.(Validator); ok {
		return v.Validate()
	}
	return nil
}

// Pack validates m, then writes its header followed by its payload.
func Pack(w *Writer, m Message) error {
	if err := Validate(m); err != nil {
		return err
	}
	m.PackHeader(w)
	m.PackPayload(w)
	return nil
}

// Unpack reads a header followed by a payload into m.
func Unpack(r *Reader, m Message) error {
	if err := m.UnpackHeader(r); err != nil {
		return err
	}
	return m.UnpackPayload(r)
}

// Marshal packs m into a new byte slice.
func Marshal(m Message) ([]byte, error) {
	w := NewWriter(64)
	if err := Pack(w, m); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// Unmarshal unpacks data into m. Trailing bytes are an error.
func Unmarshal(data []byte, m Message) error {
	r := NewReader(data)
	if err := Unpack(r, m); err != nil {
		return err
	}
	if r.Remaining() != 0 {
		return errors.WrapInvalid(errors.ErrInvalidData, "message", "Unmarshal",
			fmt.Sprintf("%d trailing bytes after %s", r.Remaining(), m.Type()))
	}
	return nil
}
