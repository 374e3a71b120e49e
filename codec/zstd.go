package codec

import (
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/usc-rasc/kinect-bridge2/errors"
	"github.com/usc-rasc/kinect-bridge2/message"
)

// Zstd compresses with zstandard.
type Zstd struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// NewZstd creates a zstd codec. Level uses the zstd command-line scale;
// zero selects the library default.
func NewZstd(level int) (*Zstd, error) {
	opts := []zstd.EOption{zstd.WithEncoderConcurrency(1)}
	if level != 0 {
		opts = append(opts, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	}
	enc, err := zstd.NewWriter(nil, opts...)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Zstd", "NewZstd", "create encoder")
	}
	dec, err := zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(0),
		zstd.WithDecoderMaxMemory(MaxDecodedSize))
	if err != nil {
		return nil, errors.WrapInvalid(err, "Zstd", "NewZstd", "create decoder")
	}
	return &Zstd{enc: enc, dec: dec}, nil
}

func (z *Zstd) ID() uint32   { return IDZstd }
func (z *Zstd) Name() string { return "zstd" }

// Encode compresses data into a single zstd frame.
func (z *Zstd) Encode(payloadType message.TypeID, data []byte) (*message.Coded, error) {
	return &message.Coded{
		Encoding:    IDZstd,
		PayloadType: payloadType,
		DecodedSize: uint32(len(data)),
		Data:        z.enc.EncodeAll(data, make([]byte, 0, len(data)/2+64)),
	}, nil
}

// Decode decompresses and checks the size against the header.
func (z *Zstd) Decode(c *message.Coded) ([]byte, error) {
	if err := checkDecodedSize(c, "Zstd"); err != nil {
		return nil, err
	}
	out, err := z.dec.DecodeAll(c.Data, make([]byte, 0, c.DecodedSize))
	if err != nil {
		return nil, errors.Decode(err, "Zstd", "Decode", "decompress")
	}
	if uint32(len(out)) != c.DecodedSize {
		return nil, errors.Decode(fmt.Errorf("have %d bytes, header says %d", len(out), c.DecodedSize),
			"Zstd", "Decode", "check decoded size")
	}
	return out, nil
}

// Close releases the encoder and decoder goroutines.
func (z *Zstd) Close() {
	_ = z.enc.Close()
	z.dec.Close()
}
