package message

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/usc-rasc/kinect-bridge2/errors"
)

// Writer appends fields in network byte order.
type Writer struct {
	buf []byte
}

// NewWriter returns a writer with room for capacity bytes.
func NewWriter(capacity int) *Writer {
	return &Writer{buf: make([]byte, 0, capacity)}
}

// Uint8 appends v.
func (w *Writer) Uint8(v uint8) { w.buf = append(w.buf, v) }

// Uint16 appends v big-endian.
func (w *Writer) Uint16(v uint16) { w.buf = binary.BigEndian.AppendUint16(w.buf, v) }

// Uint32 appends v big-endian.
func (w *Writer) Uint32(v uint32) { w.buf = binary.BigEndian.AppendUint32(w.buf, v) }

// Uint64 appends v big-endian.
func (w *Writer) Uint64(v uint64) { w.buf = binary.BigEndian.AppendUint64(w.buf, v) }

// Float32 appends the IEEE-754 bits of v big-endian.
func (w *Writer) Float32(v float32) { w.Uint32(math.Float32bits(v)) }

// String appends a 7-bit varint length followed by the bytes of s.
func (w *Writer) String(s string) {
	w.buf = binary.AppendUvarint(w.buf, uint64(len(s)))
	w.buf = append(w.buf, s...)
}

// Raw appends b unchanged.
func (w *Writer) Raw(b []byte) { w.buf = append(w.buf, b...) }

// Len returns the number of bytes written.
func (w *Writer) Len() int { return len(w.buf) }

// Bytes returns the written bytes. The slice aliases the writer's buffer.
func (w *Writer) Bytes() []byte { return w.buf }

// Reset empties the writer, keeping its buffer.
func (w *Writer) Reset() { w.buf = w.buf[:0] }

// Reader consumes fields in network byte order. The first failure is sticky:
// later reads return zero values and Err reports the original error.
type Reader struct {
	data []byte
	off  int
	err  error
}

// NewReader reads from data.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

func (r *Reader) take(n int, what string) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || len(r.data)-r.off < n {
		r.err = errors.WrapInvalid(errors.ErrInvalidData, "Reader", "read",
			fmt.Sprintf("read %s: need %d bytes at offset %d, have %d", what, n, r.off, len(r.data)-r.off))
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

// Uint8 reads one byte.
func (r *Reader) Uint8() uint8 {
	if b := r.take(1, "uint8"); b != nil {
		return b[0]
	}
	return 0
}

// Uint16 reads a big-endian uint16.
func (r *Reader) Uint16() uint16 {
	if b := r.take(2, "uint16"); b != nil {
		return binary.BigEndian.Uint16(b)
	}
	return 0
}

// Uint32 reads a big-endian uint32.
func (r *Reader) Uint32() uint32 {
	if b := r.take(4, "uint32"); b != nil {
		return binary.BigEndian.Uint32(b)
	}
	return 0
}

// Uint64 reads a big-endian uint64.
func (r *Reader) Uint64() uint64 {
	if b := r.take(8, "uint64"); b != nil {
		return binary.BigEndian.Uint64(b)
	}
	return 0
}

// Float32 reads a big-endian IEEE-754 float.
func (r *Reader) Float32() float32 {
	return math.Float32frombits(r.Uint32())
}

// String reads a varint-prefixed string.
func (r *Reader) String() string {
	if r.err != nil {
		return ""
	}
	n, used := binary.Uvarint(r.data[r.off:])
	if used <= 0 {
		r.err = errors.WrapInvalid(errors.ErrInvalidData, "Reader", "String", "read string length")
		return ""
	}
	r.off += used
	if n > uint64(len(r.data)-r.off) {
		r.err = errors.WrapInvalid(errors.ErrInvalidData, "Reader", "String",
			fmt.Sprintf("string length %d exceeds remaining %d bytes", n, len(r.data)-r.off))
		return ""
	}
	return string(r.take(int(n), "string"))
}

// Bytes returns the next n bytes. The slice aliases the reader's input.
func (r *Reader) Bytes(n int) []byte {
	return r.take(n, "bytes")
}

// Offset returns the number of bytes consumed.
func (r *Reader) Offset() int { return r.off }

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.data) - r.off }

// Err returns the first read failure.
func (r *Reader) Err() error { return r.err }
