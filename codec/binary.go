package codec

import (
	"fmt"

	"github.com/usc-rasc/kinect-bridge2/errors"
	"github.com/usc-rasc/kinect-bridge2/message"
)

var bom = [2]byte{0xFE, 0xFF}

// Binary stores the packed bytes behind a big-endian byte-order mark.
type Binary struct{}

func (Binary) ID() uint32         { return IDBinary }
func (Binary) Name() string       { return "binary" }
func (Binary) LegacyName() string { return "BinaryCodecMessage" }

// Encode prefixes data with the byte-order mark.
func (Binary) Encode(payloadType message.TypeID, data []byte) (*message.Coded, error) {
	out := make([]byte, len(bom)+len(data))
	copy(out, bom[:])
	copy(out[len(bom):], data)
	return &message.Coded{
		Encoding:    IDBinary,
		PayloadType: payloadType,
		DecodedSize: uint32(len(data)),
		Data:        out,
	}, nil
}

// Decode checks the mark and the size. The result aliases c.Data.
func (Binary) Decode(c *message.Coded) ([]byte, error) {
	if len(c.Data) < len(bom) {
		return nil, errors.Decode(fmt.Errorf("payload of %d bytes has no byte-order mark", len(c.Data)),
			"Binary", "Decode", "read byte-order mark")
	}
	if c.Data[0] != bom[0] || c.Data[1] != bom[1] {
		return nil, errors.Decode(fmt.Errorf("byte-order mark %#02x%02x", c.Data[0], c.Data[1]),
			"Binary", "Decode", "check byte-order mark")
	}
	data := c.Data[len(bom):]
	if uint32(len(data)) != c.DecodedSize {
		return nil, errors.Decode(fmt.Errorf("have %d bytes, header says %d", len(data), c.DecodedSize),
			"Binary", "Decode", "check decoded size")
	}
	return data, nil
}
