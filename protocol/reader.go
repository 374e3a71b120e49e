package protocol

import (
	"bytes"
	"encoding/binary"
	"io"
	"sync/atomic"

	"github.com/usc-rasc/kinect-bridge2/errors"
	"github.com/usc-rasc/kinect-bridge2/message"
	"github.com/usc-rasc/kinect-bridge2/metric"
)

const maxEmptyReads = 100

// ReaderOption configures a Reader
type ReaderOption func(*Reader)

// WithMaxFrameSize sets the largest body length treated as plausible.
func WithMaxFrameSize(n int) ReaderOption {
	return func(r *Reader) {
		if n > 0 {
			r.maxFrame = n
		}
	}
}

// WithResyncWindow sets how many bytes each read pulls while scanning.
func WithResyncWindow(n int) ReaderOption {
	return func(r *Reader) {
		if n >= PrefixSize {
			r.window = n
		}
	}
}

// WithReaderMetrics reports frames, resyncs and skipped bytes under the
// given transport label.
func WithReaderMetrics(m *metric.Metrics, transport string) ReaderOption {
	return func(r *Reader) {
		r.metrics = m
		r.label = transport
	}
}

// Reader extracts frames from a byte stream, resynchronizing on garbage.
// It is not safe for concurrent use.
type Reader struct {
	src      io.Reader
	buf      []byte
	off, end int

	maxFrame int
	window   int

	frames  atomic.Int64
	skipped atomic.Int64
	resyncs atomic.Int64

	metrics *metric.Metrics
	label   string
}

// NewReader reads frames from src.
func NewReader(src io.Reader, opts ...ReaderOption) *Reader {
	r := &Reader{
		src:      src,
		maxFrame: DefaultMaxFrameSize,
		window:   DefaultResyncWindow,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.buf = make([]byte, 2*r.window)
	return r
}

// Reset discards buffered bytes and reads from src from now on. Counters
// are kept.
func (r *Reader) Reset(src io.Reader) {
	r.src = src
	r.off, r.end = 0, 0
}

// Next returns the next coded message.
//
// io.EOF is returned at a clean end of stream. A read failure, or EOF in the
// middle of a frame, matches errors.ErrTransport. A frame whose body does
// not parse matches errors.ErrProtocol; the frame is consumed and the next
// call continues with the following one.
func (r *Reader) Next() (*message.Coded, error) {
	body, err := r.NextFrame()
	if err != nil {
		return nil, err
	}
	c, err := message.ParseCoded(body)
	if err != nil {
		return nil, errors.Protocol(err, "Reader", "Next", "parse coded message")
	}
	return c, nil
}

// NextFrame returns the body of the next frame. The slice is owned by the
// caller.
func (r *Reader) NextFrame() ([]byte, error) {
	for {
		if err := r.fill(PrefixSize); err != nil {
			return nil, r.endOfStream(err)
		}

		p := r.pending()
		if n, ok := r.prefix(p); ok {
			total := PrefixSize + n
			if err := r.fill(total); err != nil {
				if err == io.EOF {
					err = io.ErrUnexpectedEOF
				}
				return nil, errors.Transport(err, "Reader", "NextFrame", "read frame body")
			}
			body := make([]byte, n)
			copy(body, r.pending()[PrefixSize:total])
			r.consume(total)
			r.frames.Add(1)
			if r.metrics != nil {
				r.metrics.FramesRead.WithLabelValues(r.label).Inc()
			}
			return body, nil
		}

		r.resyncs.Add(1)
		if r.metrics != nil {
			r.metrics.Resyncs.WithLabelValues(r.label).Inc()
		}
		if err := r.resync(); err != nil {
			if err == io.EOF {
				// Nothing left can start a frame
				r.skip(r.end - r.off)
				return nil, io.EOF
			}
			return nil, errors.Transport(err, "Reader", "NextFrame", "resync")
		}
	}
}

// prefix reports the body length if p starts with a plausible prefix.
func (r *Reader) prefix(p []byte) (int, bool) {
	if len(p) < PrefixSize || p[0] != StartMarker || p[5] != EndMarker {
		return 0, false
	}
	n := binary.LittleEndian.Uint32(p[1:5])
	if uint64(n) > uint64(r.maxFrame) {
		return 0, false
	}
	return int(n), true
}

// resync drops bytes until the pending buffer starts with a plausible
// prefix. The byte at the current position is known to be bad.
func (r *Reader) resync() error {
	from := 1
	for {
		p := r.pending()
		for i := from; i+PrefixSize <= len(p); i++ {
			if _, ok := r.prefix(p[i:]); ok {
				r.skip(i)
				return nil
			}
		}

		// Keep only a tail that could still grow into a prefix
		drop := len(p) - (PrefixSize - 1)
		if drop < from {
			drop = from
		}
		if drop > len(p) {
			drop = len(p)
		}
		if i := bytes.IndexByte(p[drop:], StartMarker); i >= 0 {
			drop += i
		} else {
			drop = len(p)
		}
		r.skip(drop)
		from = 0

		if err := r.readMore(r.window); err != nil {
			return err
		}
	}
}

// endOfStream turns a read failure while looking for a frame into the
// caller-visible error. Leftover bytes that cannot start a frame are
// counted as skipped.
func (r *Reader) endOfStream(err error) error {
	if err != io.EOF {
		return errors.Transport(err, "Reader", "NextFrame", "read prefix")
	}
	p := r.pending()
	if len(p) == 0 {
		return io.EOF
	}
	if p[0] == StartMarker && len(p) < PrefixSize {
		return errors.Transport(io.ErrUnexpectedEOF, "Reader", "NextFrame", "read prefix")
	}
	r.skip(len(p))
	return io.EOF
}

func (r *Reader) pending() []byte { return r.buf[r.off:r.end] }

func (r *Reader) consume(n int) {
	r.off += n
	if r.off == r.end {
		r.off, r.end = 0, 0
	}
}

func (r *Reader) skip(n int) {
	if n == 0 {
		return
	}
	r.consume(n)
	r.skipped.Add(int64(n))
	if r.metrics != nil {
		r.metrics.BytesSkipped.WithLabelValues(r.label).Add(float64(n))
	}
}

func (r *Reader) fill(n int) error {
	for r.end-r.off < n {
		if err := r.readMore(n - (r.end - r.off)); err != nil {
			return err
		}
	}
	return nil
}

// readMore performs one successful read of at least one byte, making room
// for want bytes first.
func (r *Reader) readMore(want int) error {
	if len(r.buf)-r.end < want {
		copy(r.buf, r.buf[r.off:r.end])
		r.end -= r.off
		r.off = 0
		if len(r.buf)-r.end < want {
			grown := make([]byte, max(2*len(r.buf), r.end+want))
			copy(grown, r.buf[:r.end])
			r.buf = grown
		}
	}

	for i := 0; i < maxEmptyReads; i++ {
		n, err := r.src.Read(r.buf[r.end:])
		r.end += n
		if n > 0 {
			return nil
		}
		if err != nil {
			return err
		}
	}
	return io.ErrNoProgress
}

// ReaderStats counts what a reader has seen.
type ReaderStats struct {
	Frames       int64 `json:"frames"`
	BytesSkipped int64 `json:"bytes_skipped"`
	Resyncs      int64 `json:"resyncs"`
}

// Stats returns the reader counters.
func (r *Reader) Stats() ReaderStats {
	return ReaderStats{
		Frames:       r.frames.Load(),
		BytesSkipped: r.skipped.Load(),
		Resyncs:      r.resyncs.Load(),
	}
}
