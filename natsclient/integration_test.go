package natsclient

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntegration_StreamPublishConsume(t *testing.T) {
	tc := NewTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg := jetstream.StreamConfig{Name: "KINECT_TEST", Subjects: []string{"kinect.test.>"}}
	_, err := tc.Client.EnsureStream(ctx, cfg)
	require.NoError(t, err)
	_, err = tc.Client.EnsureStream(ctx, cfg)
	require.NoError(t, err, "existing stream is reused")

	for i := range 5 {
		_, err := tc.Client.PublishMsg(ctx, "kinect.test.frames", []byte{byte(i)}, fmt.Sprintf("m-%d", i))
		require.NoError(t, err)
	}
	ack, err := tc.Client.PublishMsg(ctx, "kinect.test.frames", []byte{0}, "m-0")
	require.NoError(t, err)
	assert.True(t, ack.Duplicate)

	consumer, err := tc.Client.OrderedConsumer(ctx, "KINECT_TEST", "kinect.test.frames")
	require.NoError(t, err)

	batch, err := consumer.Fetch(5, jetstream.FetchMaxWait(5*time.Second))
	require.NoError(t, err)
	var got []byte
	for msg := range batch.Messages() {
		got = append(got, msg.Data()...)
	}
	assert.Equal(t, []byte{0, 1, 2, 3, 4}, got)
}

func TestIntegration_KVUpdateJSON(t *testing.T) {
	tc := NewTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	bucket, err := tc.Client.EnsureKeyValueBucket(ctx, jetstream.KeyValueConfig{Bucket: "KINECT_SESSIONS_TEST"})
	require.NoError(t, err)
	kv := tc.Client.NewKVStore(bucket)

	_, err = kv.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrKVKeyNotFound)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, kv.UpdateJSON(ctx, "counter", func(cur map[string]any) error {
				n, _ := cur["n"].(float64)
				cur["n"] = n + 1
				return nil
			}))
		}()
	}
	wg.Wait()

	var out struct {
		N int `json:"n"`
	}
	require.NoError(t, kv.GetJSON(ctx, "counter", &out))
	assert.Equal(t, 8, out.N)

	require.NoError(t, kv.Delete(ctx, "counter"))
}
