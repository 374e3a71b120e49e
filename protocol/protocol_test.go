package protocol

import (
	"bytes"
	"context"
	"io"
	"math/rand"
	"net"
	"os"
	"testing"
	"testing/iotest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usc-rasc/kinect-bridge2/errors"
	"github.com/usc-rasc/kinect-bridge2/message"
)

func coded(n int, seed int64) *message.Coded {
	data := make([]byte, n)
	rand.New(rand.NewSource(seed)).Read(data)
	return &message.Coded{
		Encoding:    0x0101,
		PayloadType: message.TypeBinary,
		DecodedSize: uint32(n),
		Data:        data,
	}
}

func TestAppendFrame_Layout(t *testing.T) {
	c := &message.Coded{Encoding: 1, PayloadType: 2, DecodedSize: 3, Data: []byte{0xAA, 0xBB}}
	frame := AppendFrame(nil, c)

	require.Len(t, frame, FrameSize(c))
	assert.Equal(t, []byte{'<', 18, 0, 0, 0, '>'}, frame[:PrefixSize])
	assert.Equal(t, []byte{
		0, 0, 0, 1,
		0, 0, 0, 2,
		0, 0, 0, 3,
		0, 0, 0, 2,
		0xAA, 0xBB,
	}, frame[PrefixSize:])

	parsed, err := ParseFrame(frame)
	require.NoError(t, err)
	assert.Equal(t, c, parsed)
}

func TestParseFrame_Rejects(t *testing.T) {
	good := AppendFrame(nil, coded(4, 1))

	tests := []struct {
		name  string
		frame []byte
	}{
		{"short", good[:3]},
		{"bad start", append([]byte{'['}, good[1:]...)},
		{"bad end", append(append(append([]byte{}, good[:5]...), ']'), good[6:]...)},
		{"length mismatch", good[:len(good)-1]},
		{"body too short", AppendPrefix(nil, 3)[:PrefixSize:PrefixSize]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseFrame(tt.frame)
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrProtocol)
			assert.True(t, errors.IsInvalid(err))
		})
	}
}

func TestReader_FrameIntegrity(t *testing.T) {
	var stream bytes.Buffer
	var want []*message.Coded
	for n := 0; n <= 300; n++ {
		c := coded(n, int64(n))
		want = append(want, c)
		_, err := WriteFrame(&stream, c)
		require.NoError(t, err)
	}

	// One byte per read exercises the read loop on every field
	r := NewReader(iotest.OneByteReader(bytes.NewReader(stream.Bytes())))
	for i, expected := range want {
		got, err := r.Next()
		require.NoError(t, err, "frame %d", i)
		assert.Equal(t, expected.PayloadType, got.PayloadType)
		assert.Equal(t, expected.DecodedSize, got.DecodedSize)
		assert.True(t, bytes.Equal(expected.Data, got.Data), "frame %d payload", i)
	}

	_, err := r.Next()
	assert.Equal(t, io.EOF, err)

	stats := r.Stats()
	assert.Equal(t, int64(len(want)), stats.Frames)
	assert.Zero(t, stats.Resyncs)
	assert.Zero(t, stats.BytesSkipped)
}

func TestReader_ResyncAfterGarbage(t *testing.T) {
	first := coded(40, 1)
	second := coded(5000, 2)

	for _, k := range []int{1, 5, 6, 7, 100, 4095, 4096, 4097, 10000} {
		garbage := make([]byte, k)
		rand.New(rand.NewSource(int64(k))).Read(garbage)
		// Keep the garbage free of markers so the skip count is exact
		for i := range garbage {
			if garbage[i] == StartMarker {
				garbage[i] = 0
			}
		}

		var stream []byte
		stream = append(stream, garbage...)
		stream = AppendFrame(stream, first)
		stream = append(stream, garbage...)
		stream = AppendFrame(stream, second)

		r := NewReader(bytes.NewReader(stream))

		got, err := r.Next()
		require.NoError(t, err, "k=%d", k)
		assert.Equal(t, first.Data, got.Data)

		got, err = r.Next()
		require.NoError(t, err, "k=%d", k)
		assert.Equal(t, second.Data, got.Data)

		_, err = r.Next()
		assert.Equal(t, io.EOF, err)

		stats := r.Stats()
		assert.Equal(t, int64(2), stats.Frames)
		assert.Equal(t, int64(2*k), stats.BytesSkipped, "k=%d", k)
		assert.Equal(t, int64(2), stats.Resyncs)
	}
}

func TestReader_ResyncOverFalseMarkers(t *testing.T) {
	c := coded(16, 3)

	var stream []byte
	// A start marker whose length is implausible
	stream = append(stream, '<', 0xFF, 0xFF, 0xFF, 0xFF, '>')
	// A lone start marker and a truncated prefix
	stream = append(stream, 'x', '<', 'y', '<', 1, 0)
	stream = AppendFrame(stream, c)

	r := NewReader(bytes.NewReader(stream), WithMaxFrameSize(1024))
	got, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, c.Data, got.Data)
	assert.Equal(t, int64(12), r.Stats().BytesSkipped)
}

func TestReader_TrailingGarbageIsEOF(t *testing.T) {
	stream := AppendFrame(nil, coded(8, 4))
	stream = append(stream, 1, 2, 3, 4, 5, 6, 7, 8, 9)

	r := NewReader(bytes.NewReader(stream))
	_, err := r.Next()
	require.NoError(t, err)

	_, err = r.Next()
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, int64(9), r.Stats().BytesSkipped)
}

func TestReader_EOFMidFrame(t *testing.T) {
	frame := AppendFrame(nil, coded(32, 5))

	for _, cut := range []int{1, 3, PrefixSize, PrefixSize + 10, len(frame) - 1} {
		r := NewReader(bytes.NewReader(frame[:cut]))
		_, err := r.Next()
		require.Error(t, err, "cut=%d", cut)
		assert.NotEqual(t, io.EOF, err)
		assert.ErrorIs(t, err, errors.ErrTransport)
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	}
}

func TestReader_EmptyStream(t *testing.T) {
	r := NewReader(bytes.NewReader(nil))
	_, err := r.Next()
	assert.Equal(t, io.EOF, err)
}

func TestReader_ReadError(t *testing.T) {
	boom := errors.New("connection reset")
	r := NewReader(iotest.ErrReader(boom))

	_, err := r.Next()
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrTransport)
	assert.ErrorIs(t, err, boom)
	assert.True(t, errors.IsTransient(err))
}

func TestReader_BadBodyStaysAligned(t *testing.T) {
	good := coded(10, 6)

	var stream []byte
	// Well-formed frame whose body is not a coded message
	stream = AppendPrefix(stream, 3)
	stream = append(stream, 1, 2, 3)
	stream = AppendFrame(stream, good)

	r := NewReader(bytes.NewReader(stream))

	_, err := r.Next()
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrProtocol)

	got, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, good.Data, got.Data)
	assert.Equal(t, int64(2), r.Stats().Frames)
}

func TestReader_Reset(t *testing.T) {
	c := coded(4, 7)
	frame := AppendFrame(nil, c)

	r := NewReader(bytes.NewReader(frame[:PrefixSize+2]))
	_, err := r.Next()
	require.Error(t, err)

	r.Reset(bytes.NewReader(frame))
	got, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, c.Data, got.Data)
}

func TestInterruptRead_UnblocksRead(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	release := InterruptRead(ctx, client)
	defer release()

	time.AfterFunc(10*time.Millisecond, cancel)
	_, err := client.Read(make([]byte, 1))
	assert.ErrorIs(t, err, os.ErrDeadlineExceeded)
}

func TestInterruptRead_ReleaseAfterLateCancelClearsDeadline(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	// ctx ends once the read it guarded is over.
	ctx, cancel := context.WithCancel(context.Background())
	release := InterruptRead(ctx, client)
	cancel()
	release()

	go func() { _, _ = server.Write([]byte{7}) }()
	buf := make([]byte, 1)
	n, err := client.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, byte(7), buf[0])
}

func TestInterruptRead_ReleaseWithoutCancel(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	release := InterruptRead(context.Background(), client)
	release()

	go func() { _, _ = server.Write([]byte{1}) }()
	_, err := client.Read(make([]byte, 1))
	assert.NoError(t, err)
}
