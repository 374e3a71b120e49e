package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usc-rasc/kinect-bridge2/errors"
	"github.com/usc-rasc/kinect-bridge2/message"
	"github.com/usc-rasc/kinect-bridge2/protocol"
)

// scriptServer upgrades each request and sends the scripted messages.
func scriptServer(t *testing.T, script func(conn *gws.Conn)) string {
	t.Helper()
	upgrader := gws.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		script(conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func frame(b ...byte) []byte {
	return protocol.AppendFrame(nil, &message.Coded{
		Encoding:    0x0101,
		PayloadType: message.TypeBinary,
		DecodedSize: uint32(len(b)),
		Data:        b,
	})
}

func TestInput_SkipsTextAndReportsBadFrames(t *testing.T) {
	url := scriptServer(t, func(conn *gws.Conn) {
		_ = conn.WriteMessage(gws.TextMessage, []byte("hello"))
		_ = conn.WriteMessage(gws.BinaryMessage, []byte("not a frame"))
		_ = conn.WriteMessage(gws.BinaryMessage, frame(4, 2))
		// Wait for the client to hang up
		_, _, _ = conn.ReadMessage()
	})

	in, err := New(Config{URL: url})
	require.NoError(t, err)
	defer in.Close()

	_, err = in.Pull(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrProtocol)
	assert.True(t, in.Connected())

	got, err := in.Pull(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte{4, 2}, got.Data)

	stats := in.Stats()
	assert.Equal(t, int64(1), stats.Frames)
	assert.Equal(t, int64(1), stats.Invalid)
	assert.Equal(t, int64(1), stats.Ignored)
}

func TestInput_ServerHangupIsTransport(t *testing.T) {
	url := scriptServer(t, func(conn *gws.Conn) {
		_ = conn.WriteMessage(gws.BinaryMessage, frame(1))
	})

	in, err := New(Config{URL: url, RetryDelay: 10 * time.Millisecond})
	require.NoError(t, err)
	defer in.Close()

	_, err = in.Pull(context.Background())
	require.NoError(t, err)

	_, err = in.Pull(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrTransport)
	assert.False(t, in.Connected())

	// The next pull dials a fresh connection
	got, err := in.Pull(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte{1}, got.Data)
}

func TestInput_PullCancelled(t *testing.T) {
	url := scriptServer(t, func(conn *gws.Conn) {
		_, _, _ = conn.ReadMessage()
	})

	in, err := New(Config{URL: url})
	require.NoError(t, err)
	defer in.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = in.Pull(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestInput_DialFailure(t *testing.T) {
	in, err := New(Config{URL: "ws://127.0.0.1:1/stream", DialAttempts: 2, RetryDelay: time.Millisecond})
	require.NoError(t, err)

	err = in.Open(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrTransport)
	assert.ErrorIs(t, err, errors.ErrNoConnection)
}

func TestConfig_Validate(t *testing.T) {
	for _, bad := range []Config{{}, {URL: "http://x/stream"}, {URL: "ws://x", RetryDelay: -1}, {URL: "ws://x", DialAttempts: -2}} {
		assert.ErrorIs(t, bad.Validate(), errors.ErrInvalidConfig)
	}
	good := DefaultConfig()
	assert.NoError(t, good.Validate())
}
