package tcp

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usc-rasc/kinect-bridge2/errors"
	"github.com/usc-rasc/kinect-bridge2/message"
	"github.com/usc-rasc/kinect-bridge2/protocol"
)

func testConfig() Config {
	return Config{
		Address:          "127.0.0.1:0",
		AcceptPoll:       20 * time.Millisecond,
		LivenessInterval: 10 * time.Millisecond,
		LockTimeout:      5 * time.Millisecond,
		BindAttempts:     1,
	}
}

func newListening(t *testing.T) *Output {
	t.Helper()
	out, err := New(testConfig())
	require.NoError(t, err)
	require.NoError(t, out.Listen(context.Background()))
	t.Cleanup(func() { _ = out.Close() })
	return out
}

func frameOf(b ...byte) *message.Coded {
	return &message.Coded{Encoding: 0x0101, PayloadType: message.TypeBinary, DecodedSize: uint32(len(b)), Data: b}
}

func pushAsync(out *Output, c *message.Coded) <-chan error {
	done := make(chan error, 1)
	go func() { done <- out.Push(context.Background(), c) }()
	return done
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, func() error { c := DefaultConfig(); return c.Validate() }())

	for name, cfg := range map[string]Config{
		"empty":    {},
		"no port":  {Address: "localhost"},
		"negative": {Address: ":1", LockTimeout: -1},
		"attempts": {Address: ":1", BindAttempts: -2},
	} {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, cfg.Validate(), errors.ErrInvalidConfig)
		})
	}
}

func TestOutput_FirstPushWaitsForPeer(t *testing.T) {
	out := newListening(t)
	done := pushAsync(out, frameOf(1, 2, 3))

	select {
	case err := <-done:
		t.Fatalf("push returned before a peer connected: %v", err)
	case <-time.After(100 * time.Millisecond):
	}

	conn, err := net.Dial("tcp", out.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("push did not complete after peer connected")
	}

	got, err := protocol.NewReader(conn).Next()
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, got.Data)
	assert.True(t, out.Connected())
}

func TestOutput_PeerDisconnectMidPush(t *testing.T) {
	out := newListening(t)

	first := pushAsync(out, frameOf(1))
	conn1, err := net.Dial("tcp", out.Addr().String())
	require.NoError(t, err)
	require.NoError(t, <-first)

	got, err := protocol.NewReader(conn1).Next()
	require.NoError(t, err)
	assert.Equal(t, []byte{1}, got.Data)

	require.NoError(t, conn1.Close())
	require.Eventually(t, func() bool { return !out.Connected() }, 2*time.Second, 5*time.Millisecond)

	second := pushAsync(out, frameOf(2))
	select {
	case err := <-second:
		t.Fatalf("push returned without a peer: %v", err)
	case <-time.After(100 * time.Millisecond):
	}

	conn2, err := net.Dial("tcp", out.Addr().String())
	require.NoError(t, err)
	defer conn2.Close()

	select {
	case err := <-second:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("push did not complete after a new peer connected")
	}

	got, err = protocol.NewReader(conn2).Next()
	require.NoError(t, err)
	assert.Equal(t, []byte{2}, got.Data)

	stats := out.Stats()
	assert.Equal(t, int64(2), stats.Accepts)
	assert.Equal(t, int64(1), stats.Disconnects)
	assert.Equal(t, int64(2), stats.FramesWritten)
}

func TestOutput_PushCancelledWithoutPeer(t *testing.T) {
	out := newListening(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := out.Push(ctx, frameOf(1))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrTransport)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestOutput_PushBeforeListen(t *testing.T) {
	out, err := New(testConfig())
	require.NoError(t, err)

	err = out.Push(context.Background(), frameOf(1))
	assert.ErrorIs(t, err, errors.ErrNotStarted)
}

func TestOutput_ListenTwice(t *testing.T) {
	out := newListening(t)
	assert.Error(t, out.Listen(context.Background()))
}

func TestOutput_CloseUnblocksPush(t *testing.T) {
	out, err := New(testConfig())
	require.NoError(t, err)
	require.NoError(t, out.Listen(context.Background()))

	done := pushAsync(out, frameOf(1))
	time.Sleep(30 * time.Millisecond)
	require.NoError(t, out.Close())
	require.NoError(t, out.Close())

	select {
	case err := <-done:
		assert.ErrorIs(t, err, errors.ErrTransport)
	case <-time.After(2 * time.Second):
		t.Fatal("push still blocked after close")
	}
}
