package tcp

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usc-rasc/kinect-bridge2/errors"
	"github.com/usc-rasc/kinect-bridge2/message"
	"github.com/usc-rasc/kinect-bridge2/protocol"
)

func frameOf(b ...byte) []byte {
	return protocol.AppendFrame(nil, &message.Coded{
		Encoding:    0x0101,
		PayloadType: message.TypeBinary,
		DecodedSize: uint32(len(b)),
		Data:        b,
	})
}

func testInput(t *testing.T, addr string) *Input {
	t.Helper()
	in, err := New(Config{
		Address:      addr,
		RetryDelay:   10 * time.Millisecond,
		DrainTimeout: 500 * time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = in.Close() })
	return in
}

// serve accepts one connection per script entry and writes the entry to it.
func serve(t *testing.T, scripts ...[]byte) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for _, script := range scripts {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			_, _ = conn.Write(script)
			_ = conn.Close()
		}
	}()
	return ln
}

func TestInput_PullResyncsAndRedials(t *testing.T) {
	var first []byte
	first = append(first, 0xFF, 0x00, 0x13)
	first = append(first, frameOf(1, 1)...)
	first = append(first, frameOf(2, 2)...)
	second := frameOf(3, 3)

	ln := serve(t, first, second)
	in := testInput(t, ln.Addr().String())
	ctx := context.Background()

	got, err := in.Pull(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 1}, got.Data)

	got, err = in.Pull(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte{2, 2}, got.Data)

	// Server hung up: the connection is torn down
	_, err = in.Pull(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrTransport)
	assert.False(t, in.Connected())

	got, err = in.Pull(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte{3, 3}, got.Data)

	stats := in.Stats()
	assert.Equal(t, int64(3), stats.Frames)
	assert.Equal(t, int64(3), stats.BytesSkipped)
}

func TestInput_BadBodyIsProtocolError(t *testing.T) {
	var script []byte
	script = protocol.AppendPrefix(script, 2)
	script = append(script, 0xAB, 0xCD)
	script = append(script, frameOf(7)...)

	ln := serve(t, script)
	in := testInput(t, ln.Addr().String())

	_, err := in.Pull(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrProtocol)
	assert.True(t, in.Connected())

	got, err := in.Pull(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte{7}, got.Data)
}

func TestInput_PullWaitsForServer(t *testing.T) {
	// Reserve a port, release it, then start the server late
	spare, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := spare.Addr().String()
	require.NoError(t, spare.Close())

	in := testInput(t, addr)
	go func() {
		time.Sleep(100 * time.Millisecond)
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return
		}
		defer ln.Close()
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		_, _ = conn.Write(frameOf(9))
		_ = conn.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	got, err := in.Pull(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte{9}, got.Data)
}

func TestInput_PullCancelled(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			// Hold the connection open without sending anything
			time.Sleep(time.Second)
			_ = conn.Close()
		}
	}()

	in := testInput(t, ln.Addr().String())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = in.Pull(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, in.Connected())
}

func TestInput_CloseHalfCloses(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	sawEOF := make(chan struct{})
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_, _ = conn.Write(frameOf(5))
		// The client shuts down its write side; the server reads EOF,
		// sends a few trailing bytes and hangs up.
		if _, err := io.Copy(io.Discard, conn); err == nil {
			close(sawEOF)
		}
		_, _ = conn.Write([]byte("trailing"))
	}()

	in := testInput(t, ln.Addr().String())
	_, err = in.Pull(context.Background())
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, in.Close())
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	select {
	case <-sawEOF:
	case <-time.After(time.Second):
		t.Fatal("server never saw the half-close")
	}

	require.NoError(t, in.Close())
	_, err = in.Pull(context.Background())
	assert.ErrorIs(t, err, errors.ErrShuttingDown)
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())

	bad := Config{Address: "nope"}
	assert.ErrorIs(t, bad.Validate(), errors.ErrInvalidConfig)

	bad = Config{Address: "127.0.0.1:1", DialAttempts: -2}
	assert.ErrorIs(t, bad.Validate(), errors.ErrInvalidConfig)
}
