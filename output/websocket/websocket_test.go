package websocket_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usc-rasc/kinect-bridge2/errors"
	inws "github.com/usc-rasc/kinect-bridge2/input/websocket"
	"github.com/usc-rasc/kinect-bridge2/message"
	outws "github.com/usc-rasc/kinect-bridge2/output/websocket"
)

func coded(b ...byte) *message.Coded {
	return &message.Coded{Encoding: 0x0102, PayloadType: message.TypeAudio, DecodedSize: 99, Data: b}
}

func startOutput(t *testing.T) *outws.Output {
	t.Helper()
	out, err := outws.New(outws.Config{
		Address:  "127.0.0.1:0",
		PeerPoll: 10 * time.Millisecond,
	})
	require.NoError(t, err)
	require.NoError(t, out.Start(context.Background()))
	t.Cleanup(func() { _ = out.Close() })
	return out
}

func connect(t *testing.T, out *outws.Output) *inws.Input {
	t.Helper()
	in, err := inws.New(inws.Config{URL: out.URL(), RetryDelay: 10 * time.Millisecond})
	require.NoError(t, err)
	require.NoError(t, in.Open(context.Background()))
	require.Eventually(t, out.Connected, 2*time.Second, 5*time.Millisecond)
	return in
}

func TestOutput_DeliversFramesInOrder(t *testing.T) {
	out := startOutput(t)

	done := make(chan error, 1)
	go func() {
		for i := 0; i < 20; i++ {
			if err := out.Push(context.Background(), coded(byte(i), byte(i))); err != nil {
				done <- err
				return
			}
		}
		done <- nil
	}()

	in := connect(t, out)
	defer in.Close()

	for i := 0; i < 20; i++ {
		got, err := in.Pull(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []byte{byte(i), byte(i)}, got.Data)
		assert.Equal(t, message.TypeAudio, got.PayloadType)
		assert.Equal(t, uint32(99), got.DecodedSize)
	}
	require.NoError(t, <-done)

	assert.Equal(t, int64(20), out.Stats().FramesWritten)
	assert.Equal(t, int64(20), in.Stats().Frames)
}

func TestOutput_RejectsSecondPeer(t *testing.T) {
	out := startOutput(t)
	in := connect(t, out)
	defer in.Close()

	_, resp, err := gws.DefaultDialer.Dial(out.URL(), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, int64(1), out.Stats().Rejected)
}

func TestOutput_PeerLossWaitsForNextPeer(t *testing.T) {
	out := startOutput(t)

	first := connect(t, out)
	require.NoError(t, out.Push(context.Background(), coded(1)))
	got, err := first.Pull(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte{1}, got.Data)

	require.NoError(t, first.Close())
	require.Eventually(t, func() bool { return !out.Connected() }, 2*time.Second, 5*time.Millisecond)

	done := make(chan error, 1)
	go func() { done <- out.Push(context.Background(), coded(2)) }()

	select {
	case err := <-done:
		t.Fatalf("push returned without a peer: %v", err)
	case <-time.After(100 * time.Millisecond):
	}

	second := connect(t, out)
	defer second.Close()
	require.NoError(t, <-done)

	got, err = second.Pull(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte{2}, got.Data)
	assert.Equal(t, int64(2), out.Stats().Accepts)
}

func TestOutput_PushCancelledWithoutPeer(t *testing.T) {
	out := startOutput(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := out.Push(ctx, coded(1))
	assert.ErrorIs(t, err, errors.ErrTransport)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestOutput_CloseUnblocksPush(t *testing.T) {
	out, err := outws.New(outws.Config{Address: "127.0.0.1:0", PeerPoll: 10 * time.Millisecond})
	require.NoError(t, err)
	require.NoError(t, out.Start(context.Background()))

	done := make(chan error, 1)
	go func() { done <- out.Push(context.Background(), coded(1)) }()
	time.Sleep(30 * time.Millisecond)
	require.NoError(t, out.Close())

	select {
	case err := <-done:
		assert.ErrorIs(t, err, errors.ErrShuttingDown)
	case <-time.After(2 * time.Second):
		t.Fatal("push still blocked after close")
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := outws.DefaultConfig()
	assert.NoError(t, cfg.Validate())

	bad := outws.Config{Address: ":1", Path: "stream"}
	assert.ErrorIs(t, bad.Validate(), errors.ErrInvalidConfig)
}
