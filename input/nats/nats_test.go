package nats_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usc-rasc/kinect-bridge2/errors"
	innats "github.com/usc-rasc/kinect-bridge2/input/nats"
	"github.com/usc-rasc/kinect-bridge2/message"
	"github.com/usc-rasc/kinect-bridge2/natsclient"
	outnats "github.com/usc-rasc/kinect-bridge2/output/nats"
)

func TestConfig_Validate(t *testing.T) {
	cfg := innats.DefaultConfig()
	assert.NoError(t, cfg.Validate())

	cfg.FetchBatch = -1
	assert.True(t, errors.IsInvalid(cfg.Validate()))
}

func TestNew_RequiresClient(t *testing.T) {
	_, err := innats.New(nil, innats.DefaultConfig())
	assert.ErrorIs(t, err, errors.ErrMissingConfig)
}

func TestPull_AfterClose(t *testing.T) {
	client, err := natsclient.NewClient("nats://127.0.0.1:1")
	require.NoError(t, err)
	in, err := innats.New(client, innats.DefaultConfig())
	require.NoError(t, err)

	require.NoError(t, in.Close())
	_, err = in.Pull(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestIntegration_ReplayLatestSession(t *testing.T) {
	tc := natsclient.NewTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	// An older session that must not leak into the replay
	older, err := outnats.New(tc.Client, outnats.DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, older.Open(ctx))
	require.NoError(t, older.Push(ctx, &message.Coded{PayloadType: message.TypeAudio, Data: []byte("old")}))
	require.NoError(t, older.Close())

	out, err := outnats.New(tc.Client, outnats.DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, out.Open(ctx))

	var sent []*message.Coded
	for i := range 20 {
		c := &message.Coded{
			Encoding:    1,
			PayloadType: message.TypeImage,
			DecodedSize: uint32(i),
			Data:        make([]byte, i*10),
		}
		require.NoError(t, out.Push(ctx, c))
		sent = append(sent, c)
	}
	require.NoError(t, out.Close())

	in, err := innats.New(tc.Client, innats.Config{FetchWait: 200 * time.Millisecond})
	require.NoError(t, err)
	defer in.Close()

	for i, want := range sent {
		got, err := in.Pull(ctx)
		require.NoError(t, err, "frame %d", i)
		assert.Equal(t, want.PayloadType, got.PayloadType)
		assert.Equal(t, want.DecodedSize, got.DecodedSize)
		assert.Len(t, got.Data, len(want.Data))
	}

	_, err = in.Pull(ctx)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, out.Session(), in.Session().ID)
	assert.Equal(t, int64(20), in.Stats().Frames)
}
