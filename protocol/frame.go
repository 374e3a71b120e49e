package protocol

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/usc-rasc/kinect-bridge2/errors"
	"github.com/usc-rasc/kinect-bridge2/message"
)

// Frame markers and sizes.
const (
	StartMarker byte = '<'
	EndMarker   byte = '>'

	// PrefixSize is the marker, length, marker prefix.
	PrefixSize = 6

	// DefaultMaxFrameSize is the largest body a reader accepts by default.
	DefaultMaxFrameSize = 64 << 20

	// DefaultResyncWindow is how much a reader pulls per read while scanning.
	DefaultResyncWindow = 4096
)

// FrameSize returns the framed size of c.
func FrameSize(c *message.Coded) int {
	return PrefixSize + c.Size()
}

// AppendPrefix appends a frame prefix for a body of n bytes.
func AppendPrefix(dst []byte, n int) []byte {
	dst = append(dst, StartMarker)
	dst = binary.LittleEndian.AppendUint32(dst, uint32(n))
	return append(dst, EndMarker)
}

// AppendFrame appends the framed form of c to dst.
func AppendFrame(dst []byte, c *message.Coded) []byte {
	dst = AppendPrefix(dst, c.Size())
	return message.AppendCoded(dst, c)
}

// WriteFrame writes c as one frame with a single Write call.
func WriteFrame(w io.Writer, c *message.Coded) (int, error) {
	return w.Write(AppendFrame(make([]byte, 0, FrameSize(c)), c))
}

// ParseFrame parses a buffer holding exactly one frame.
func ParseFrame(b []byte) (*message.Coded, error) {
	if len(b) < PrefixSize {
		return nil, errors.Protocol(fmt.Errorf("frame of %d bytes is shorter than its prefix", len(b)),
			"protocol", "ParseFrame", "read prefix")
	}
	if b[0] != StartMarker || b[5] != EndMarker {
		return nil, errors.Protocol(fmt.Errorf("bad markers %q %q", b[0], b[5]),
			"protocol", "ParseFrame", "check markers")
	}
	n := binary.LittleEndian.Uint32(b[1:5])
	if uint64(n) != uint64(len(b)-PrefixSize) {
		return nil, errors.Protocol(fmt.Errorf("length %d, body has %d bytes", n, len(b)-PrefixSize),
			"protocol", "ParseFrame", "check length")
	}
	c, err := message.ParseCoded(b[PrefixSize:])
	if err != nil {
		return nil, errors.Protocol(err, "protocol", "ParseFrame", "parse coded message")
	}
	return c, nil
}
