package codec

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/gzip"

	"github.com/usc-rasc/kinect-bridge2/errors"
	"github.com/usc-rasc/kinect-bridge2/message"
)

// DefaultGzipLevel is the level used when none is configured.
const DefaultGzipLevel = 2

// Gzip compresses with gzip at a fixed level.
type Gzip struct {
	level   int
	writers sync.Pool
}

// NewGzip creates a gzip codec. Valid levels are gzip.HuffmanOnly through
// gzip.BestCompression.
func NewGzip(level int) (*Gzip, error) {
	if _, err := gzip.NewWriterLevel(io.Discard, level); err != nil {
		return nil, errors.WrapInvalid(err, "Gzip", "NewGzip", fmt.Sprintf("validate level %d", level))
	}
	return &Gzip{level: level}, nil
}

func (g *Gzip) ID() uint32         { return IDGzip }
func (g *Gzip) Name() string       { return "gzip" }
func (g *Gzip) LegacyName() string { return "GZipCodecMessage" }

// Level returns the compression level.
func (g *Gzip) Level() int { return g.level }

// Encode compresses data into a single gzip member.
func (g *Gzip) Encode(payloadType message.TypeID, data []byte) (*message.Coded, error) {
	var buf bytes.Buffer
	buf.Grow(len(data)/2 + 64)

	zw, _ := g.writers.Get().(*gzip.Writer)
	if zw == nil {
		var err error
		if zw, err = gzip.NewWriterLevel(&buf, g.level); err != nil {
			return nil, errors.WrapFatal(errors.ErrEncode, "Gzip", "Encode", err.Error())
		}
	} else {
		zw.Reset(&buf)
	}
	defer g.writers.Put(zw)

	if _, err := zw.Write(data); err != nil {
		return nil, errors.WrapFatal(fmt.Errorf("%w: %w", errors.ErrEncode, err), "Gzip", "Encode", "compress")
	}
	if err := zw.Close(); err != nil {
		return nil, errors.WrapFatal(fmt.Errorf("%w: %w", errors.ErrEncode, err), "Gzip", "Encode", "finish stream")
	}

	return &message.Coded{
		Encoding:    IDGzip,
		PayloadType: payloadType,
		DecodedSize: uint32(len(data)),
		Data:        buf.Bytes(),
	}, nil
}

// Decode inflates exactly DecodedSize bytes and rejects truncated,
// corrupted or over-long streams.
func (g *Gzip) Decode(c *message.Coded) ([]byte, error) {
	if err := checkDecodedSize(c, "Gzip"); err != nil {
		return nil, err
	}

	zr, err := gzip.NewReader(bytes.NewReader(c.Data))
	if err != nil {
		return nil, errors.Decode(err, "Gzip", "Decode", "open stream")
	}
	defer zr.Close()
	zr.Multistream(false)

	out := make([]byte, c.DecodedSize)
	if _, err := io.ReadFull(zr, out); err != nil {
		return nil, errors.Decode(err, "Gzip", "Decode", fmt.Sprintf("inflate %d bytes", c.DecodedSize))
	}

	// Reading to EOF verifies the trailer checksum
	var extra [1]byte
	switch n, err := io.ReadFull(zr, extra[:]); {
	case n > 0:
		return nil, errors.Decode(fmt.Errorf("stream longer than %d bytes", c.DecodedSize),
			"Gzip", "Decode", "check trailing data")
	case err != io.EOF:
		return nil, errors.Decode(err, "Gzip", "Decode", "verify trailer")
	}
	return out, nil
}
