package file_test

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usc-rasc/kinect-bridge2/errors"
	infile "github.com/usc-rasc/kinect-bridge2/input/file"
	"github.com/usc-rasc/kinect-bridge2/message"
	outfile "github.com/usc-rasc/kinect-bridge2/output/file"
	"github.com/usc-rasc/kinect-bridge2/protocol"
)

func testCoded(n int) *message.Coded {
	return &message.Coded{
		Encoding:    0x0102,
		PayloadType: message.TypeImage,
		DecodedSize: uint32(n * 3),
		Data:        bytes.Repeat([]byte{byte(n)}, n),
	}
}

func TestInput_ReplaysOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.stream")
	out, err := outfile.New(outfile.Config{Path: path, BufferSize: 64})
	require.NoError(t, err)

	var want []*message.Coded
	for n := 0; n < 50; n++ {
		c := testCoded(n)
		want = append(want, c)
		require.NoError(t, out.Push(context.Background(), c))
	}
	require.NoError(t, out.Close())

	in, err := infile.Open(infile.Config{Path: path})
	require.NoError(t, err)
	defer in.Close()

	for i, w := range want {
		got, err := in.Pull(context.Background())
		require.NoError(t, err, "frame %d", i)
		assert.Equal(t, w.Encoding, got.Encoding)
		assert.Equal(t, w.PayloadType, got.PayloadType)
		assert.Equal(t, w.DecodedSize, got.DecodedSize)
		assert.True(t, bytes.Equal(w.Data, got.Data), "frame %d", i)
	}

	_, err = in.Pull(context.Background())
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, int64(len(want)), in.Stats().Frames)
}

func TestInput_SkipsDamagedRegion(t *testing.T) {
	var data []byte
	data = protocol.AppendFrame(data, testCoded(4))
	data = append(data, 0xDE, 0xAD, 0xBE, 0xEF, 0x00)
	data = protocol.AppendFrame(data, testCoded(5))

	path := filepath.Join(t.TempDir(), "damaged.stream")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	in, err := infile.Open(infile.Config{Path: path})
	require.NoError(t, err)
	defer in.Close()

	first, err := in.Pull(context.Background())
	require.NoError(t, err)
	assert.Len(t, first.Data, 4)

	second, err := in.Pull(context.Background())
	require.NoError(t, err)
	assert.Len(t, second.Data, 5)

	stats := in.Stats()
	assert.Equal(t, int64(5), stats.BytesSkipped)
	assert.Equal(t, int64(1), stats.Resyncs)
}

func TestInput_TruncatedTail(t *testing.T) {
	frame := protocol.AppendFrame(nil, testCoded(20))
	path := filepath.Join(t.TempDir(), "truncated.stream")
	require.NoError(t, os.WriteFile(path, frame[:len(frame)-3], 0o644))

	in, err := infile.Open(infile.Config{Path: path})
	require.NoError(t, err)
	defer in.Close()

	_, err = in.Pull(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrTransport)
}

func TestInput_OpenAndClose(t *testing.T) {
	_, err := infile.Open(infile.Config{})
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)

	_, err = infile.Open(infile.Config{Path: filepath.Join(t.TempDir(), "missing")})
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "empty.stream")
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	in, err := infile.Open(infile.Config{Path: path})
	require.NoError(t, err)

	require.NoError(t, in.Close())
	require.NoError(t, in.Close())
	_, err = in.Pull(context.Background())
	assert.Equal(t, io.EOF, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = in.Pull(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
