package codec

import (
	"fmt"
	"sync"

	"github.com/usc-rasc/kinect-bridge2/errors"
	"github.com/usc-rasc/kinect-bridge2/message"
)

// Coder packs and encodes messages with one codec and decodes coded
// messages with any codec of its set.
type Coder struct {
	encoder  Codec
	codecs   *Set
	registry *message.Registry
	writers  sync.Pool
}

// NewCoder creates a coder. A nil set means DefaultSet; enc is added to the
// set when its ID is missing. A nil registry means message.Default().
func NewCoder(enc Codec, codecs *Set, registry *message.Registry) *Coder {
	if codecs == nil {
		codecs = DefaultSet()
	}
	if enc != nil {
		if _, ok := codecs.Get(enc.ID()); !ok {
			_ = codecs.Add(enc)
		}
	}
	if registry == nil {
		registry = message.Default()
	}
	return &Coder{
		encoder:  enc,
		codecs:   codecs,
		registry: registry,
		writers: sync.Pool{New: func() any {
			return message.NewWriter(4096)
		}},
	}
}

// Codec returns the encoding codec.
func (c *Coder) Codec() Codec { return c.encoder }

// Codecs returns the decoding set.
func (c *Coder) Codecs() *Set { return c.codecs }

// Encode packs m and encodes it under m's type ID. A message that fails
// validation returns an invalid-class error.
func (c *Coder) Encode(m message.Message) (*message.Coded, error) {
	if c.encoder == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Coder", "Encode", "no encoding codec")
	}

	w := c.writers.Get().(*message.Writer)
	w.Reset()
	defer c.writers.Put(w)

	if err := message.Pack(w, m); err != nil {
		return nil, err
	}
	return c.encoder.Encode(m.Type(), w.Bytes())
}

// Decode decodes coded into into. The payload type must match into's type.
func (c *Coder) Decode(coded *message.Coded, into message.Message) error {
	if got := c.registry.Canonical(coded.PayloadType); got != into.Type() {
		return errors.Decode(fmt.Errorf("payload %s, want %s", c.registry.Name(got), c.registry.Name(into.Type())),
			"Coder", "Decode", "check payload type")
	}
	data, err := c.codecs.Decode(coded)
	if err != nil {
		return err
	}
	if err := message.Unmarshal(data, into); err != nil {
		return errors.Decode(err, "Coder", "Decode", "unpack "+c.registry.Name(into.Type()))
	}
	return nil
}

// DecodeAny decodes coded into a new message of the registered kind.
func (c *Coder) DecodeAny(coded *message.Coded) (message.Message, error) {
	m, err := c.registry.New(coded.PayloadType)
	if err != nil {
		return nil, errors.Decode(err, "Coder", "DecodeAny", "resolve payload type")
	}
	if err := c.Decode(coded, m); err != nil {
		return nil, err
	}
	return m, nil
}
