package codec

import (
	"fmt"
	"strings"

	"github.com/usc-rasc/kinect-bridge2/errors"
	"github.com/usc-rasc/kinect-bridge2/message"
)

// Encoding IDs.
const (
	IDBinary uint32 = 0x0101
	IDGzip   uint32 = 0x0102
	IDZstd   uint32 = 0x0103
)

// MaxDecodedSize bounds the buffer a decoder will allocate from a header.
const MaxDecodedSize = 64 << 20

// Codec encodes packed message bytes into a Coded message and back.
type Codec interface {
	ID() uint32
	Name() string
	// Encode fails only when the encoder cannot produce output.
	Encode(payloadType message.TypeID, data []byte) (*message.Coded, error)
	// Decode fails with ErrDecode on any corruption.
	Decode(c *message.Coded) ([]byte, error)
}

// legacyNamer is implemented by codecs whose IDs older peers derived from a name.
type legacyNamer interface {
	LegacyName() string
}

// New builds a codec from its name. Level applies to compressing codecs;
// zero selects the codec's default.
func New(name string, level int) (Codec, error) {
	switch strings.ToLower(name) {
	case "binary", "":
		return Binary{}, nil
	case "gzip":
		if level == 0 {
			level = DefaultGzipLevel
		}
		return NewGzip(level)
	case "zstd":
		return NewZstd(level)
	default:
		return nil, errors.WrapInvalid(fmt.Errorf("unknown codec %q", name), "codec", "New", "select codec")
	}
}

func checkDecodedSize(c *message.Coded, component string) error {
	if c.DecodedSize > MaxDecodedSize {
		return errors.Decode(fmt.Errorf("decoded size %d exceeds limit %d", c.DecodedSize, MaxDecodedSize),
			component, "Decode", "check decoded size")
	}
	return nil
}
