package message

import (
	"bytes"
	"fmt"

	"github.com/usc-rasc/kinect-bridge2/errors"
)

// Composite is an ordered list of component messages. It packs as an empty
// header followed by each component's header and payload in order.
//
// Kinds built from components return a Composite over their fields and
// delegate to it.
type Composite []Message

// PackHeader writes nothing; components carry their own headers.
func (c Composite) PackHeader(*Writer) {}

// PackPayload writes every component in order.
func (c Composite) PackPayload(w *Writer) {
	for _, m := range c {
		m.PackHeader(w)
		m.PackPayload(w)
	}
}

// UnpackHeader reads nothing.
func (c Composite) UnpackHeader(*Reader) error { return nil }

// UnpackPayload reads every component in order.
func (c Composite) UnpackPayload(r *Reader) error {
	for _, m := range c {
		if err := Unpack(r, m); err != nil {
			return err
		}
	}
	return nil
}

// Validate validates every component.
func (c Composite) Validate() error {
	for _, m := range c {
		if err := Validate(m); err != nil {
			return err
		}
	}
	return nil
}

// Find returns the first component of the given type.
func (c Composite) Find(id TypeID) (Message, bool) {
	for _, m := range c {
		if m.Type() == id {
			return m, true
		}
	}
	return nil, false
}

// Vector is a variable-length sequence. Header: element count (u32).
// Payload: each element's header and payload.
type Vector[T Message] struct {
	Elements []T
	New      func() T
}

// NewVector creates an empty vector whose elements are made by newFn.
func NewVector[T Message](newFn func() T) *Vector[T] {
	return &Vector[T]{New: newFn}
}

// Append adds elements.
func (v *Vector[T]) Append(elems ...T) { v.Elements = append(v.Elements, elems...) }

// Len returns the element count.
func (v *Vector[T]) Len() int { return len(v.Elements) }

func (v *Vector[T]) Type() TypeID { return TypeVector }

func (v *Vector[T]) PackHeader(w *Writer) { w.Uint32(uint32(len(v.Elements))) }

func (v *Vector[T]) PackPayload(w *Writer) {
	for _, e := range v.Elements {
		e.PackHeader(w)
		e.PackPayload(w)
	}
}

func (v *Vector[T]) UnpackHeader(r *Reader) error {
	n := r.Uint32()
	if err := r.Err(); err != nil {
		return err
	}
	// Every element packs at least one byte
	if int64(n) > int64(r.Remaining()) {
		return errors.WrapInvalid(
			fmt.Errorf("%w: vector count %d exceeds %d remaining bytes", errors.ErrInvalidData, n, r.Remaining()),
			"Vector", "UnpackHeader", "check element count")
	}
	v.Elements = make([]T, 0, n)
	for i := uint32(0); i < n; i++ {
		v.Elements = append(v.Elements, v.New())
	}
	return nil
}

func (v *Vector[T]) UnpackPayload(r *Reader) error {
	for _, e := range v.Elements {
		if err := Unpack(r, e); err != nil {
			return err
		}
	}
	return nil
}

// Validate validates every element.
func (v *Vector[T]) Validate() error {
	for _, e := range v.Elements {
		if err := Validate(e); err != nil {
			return err
		}
	}
	return nil
}

// Array is a fixed-length sequence of elements with identical headers. Only
// the first element's header is packed; unpacking replays it into every
// element.
type Array[T Message] struct {
	Elements []T
	New      func() T

	header []byte // first header, captured by UnpackHeader
}

// NewArray creates an array of n elements made by newFn.
func NewArray[T Message](n int, newFn func() T) *Array[T] {
	a := &Array[T]{New: newFn, Elements: make([]T, n)}
	for i := range a.Elements {
		a.Elements[i] = newFn()
	}
	return a
}

// Len returns the fixed element count.
func (a *Array[T]) Len() int { return len(a.Elements) }

func (a *Array[T]) Type() TypeID { return TypeArray }

// Validate fails with ErrInvalidData if element headers differ.
func (a *Array[T]) Validate() error {
	if len(a.Elements) == 0 {
		return nil
	}
	first := NewWriter(16)
	a.Elements[0].PackHeader(first)

	other := NewWriter(16)
	for i, e := range a.Elements[1:] {
		other.Reset()
		e.PackHeader(other)
		if !bytes.Equal(first.Bytes(), other.Bytes()) {
			return errors.WrapInvalid(
				fmt.Errorf("%w: element %d header differs from element 0", errors.ErrInvalidData, i+1),
				"Array", "Validate", "check header homogeneity")
		}
	}
	for _, e := range a.Elements {
		if err := Validate(e); err != nil {
			return err
		}
	}
	return nil
}

func (a *Array[T]) PackHeader(w *Writer) {
	if len(a.Elements) > 0 {
		a.Elements[0].PackHeader(w)
	}
}

func (a *Array[T]) PackPayload(w *Writer) {
	for _, e := range a.Elements {
		e.PackPayload(w)
	}
}

func (a *Array[T]) UnpackHeader(r *Reader) error {
	if len(a.Elements) == 0 {
		return nil
	}
	start := r.Offset()
	if err := a.Elements[0].UnpackHeader(r); err != nil {
		return err
	}
	a.header = append(a.header[:0], r.data[start:r.Offset()]...)
	return nil
}

func (a *Array[T]) UnpackPayload(r *Reader) error {
	for i, e := range a.Elements {
		if i > 0 {
			if err := e.UnpackHeader(NewReader(a.header)); err != nil {
				return err
			}
		}
		if err := e.UnpackPayload(r); err != nil {
			return err
		}
	}
	return nil
}

// Envelope carries a payload of any registered kind behind its type ID.
type Envelope struct {
	PayloadID TypeID
	Payload   Message
	// Registry resolves PayloadID on unpack. Nil means Default().
	Registry *Registry
}

// Enclose wraps m in an envelope.
func Enclose(m Message) *Envelope {
	return &Envelope{PayloadID: m.Type(), Payload: m}
}

func (e *Envelope) registry() *Registry {
	if e.Registry != nil {
		return e.Registry
	}
	return defaultRegistry
}

// Validate checks that PayloadID names the payload's kind.
func (e *Envelope) Validate() error {
	if e.Payload == nil {
		return errors.WrapInvalid(fmt.Errorf("%w: envelope without payload", errors.ErrInvalidData),
			"Envelope", "Validate", "check payload")
	}
	if e.registry().Canonical(e.PayloadID) != e.Payload.Type() {
		return errors.WrapInvalid(
			fmt.Errorf("%w: payload id %s does not match payload %s", errors.ErrInvalidData, e.PayloadID, e.Payload.Type()),
			"Envelope", "Validate", "check payload id")
	}
	return Validate(e.Payload)
}

func (e *Envelope) Type() TypeID { return TypeEnvelope }

func (e *Envelope) PackHeader(w *Writer) { w.Uint32(uint32(e.PayloadID)) }

func (e *Envelope) PackPayload(w *Writer) {
	e.Payload.PackHeader(w)
	e.Payload.PackPayload(w)
}

func (e *Envelope) UnpackHeader(r *Reader) error {
	e.PayloadID = TypeID(r.Uint32())
	return r.Err()
}

func (e *Envelope) UnpackPayload(r *Reader) error {
	payload, err := e.registry().New(e.PayloadID)
	if err != nil {
		return err
	}
	e.PayloadID = payload.Type()
	e.Payload = payload
	return Unpack(r, payload)
}
