package natsclient

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usc-rasc/kinect-bridge2/errors"
	"github.com/usc-rasc/kinect-bridge2/metric"
)

func TestConnectionStatus_String(t *testing.T) {
	tests := map[ConnectionStatus]string{
		StatusDisconnected:   "disconnected",
		StatusConnecting:     "connecting",
		StatusConnected:      "connected",
		StatusReconnecting:   "reconnecting",
		StatusCircuitOpen:    "circuit_open",
		ConnectionStatus(42): "unknown",
	}
	for status, want := range tests {
		assert.Equal(t, want, status.String())
	}
}

func TestNewClient_Defaults(t *testing.T) {
	c, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	assert.Equal(t, "nats://localhost:4222", c.URL())
	assert.Equal(t, StatusDisconnected, c.Status())
	assert.False(t, c.IsHealthy())
	assert.Nil(t, c.Conn())
	assert.Equal(t, time.Second, c.Backoff())

	_, err = c.JetStream()
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestNewClient_Options(t *testing.T) {
	c, err := NewClient("nats://localhost:4222",
		WithMaxReconnects(3),
		WithReconnectWait(time.Second),
		WithCircuitBreakerThreshold(0),
		WithMaxBackoff(time.Millisecond),
		WithName("kinect-test"),
		WithDrainTimeout(time.Second),
	)
	require.NoError(t, err)

	assert.Equal(t, 3, c.maxReconnects)
	assert.Equal(t, int32(5), c.circuitThreshold)
	assert.Equal(t, time.Minute, c.maxBackoff)
	assert.Equal(t, "kinect-test", c.clientName)
}

func TestWithMetrics_RegistersOnce(t *testing.T) {
	registry := metric.NewMetricsRegistry()

	_, err := NewClient("nats://localhost:4222", WithMetrics(registry, time.Second))
	require.NoError(t, err)

	_, err = NewClient("nats://localhost:4222", WithMetrics(registry, time.Second))
	assert.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestConnect_CircuitOpensAfterThreshold(t *testing.T) {
	c, err := NewClient("nats://127.0.0.1:1",
		WithCircuitBreakerThreshold(2),
		WithTimeout(200*time.Millisecond),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for range 2 {
		err := c.Connect(ctx)
		require.Error(t, err)
		assert.True(t, errors.IsTransient(err))
	}
	assert.Equal(t, StatusCircuitOpen, c.Status())
	assert.Equal(t, int32(2), c.GetStatus().FailureCount)

	assert.ErrorIs(t, c.Connect(ctx), ErrCircuitOpen)

	_, err = c.PublishMsg(ctx, "kinect.test", []byte("x"), "")
	assert.ErrorIs(t, err, ErrCircuitOpen)

	// The circuit half-opens after the initial one second backoff
	assert.Eventually(t, func() bool {
		return c.Status() == StatusDisconnected
	}, 3*time.Second, 20*time.Millisecond)
}

func TestClose_Idempotent(t *testing.T) {
	c, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	assert.NoError(t, c.Close(context.Background()))
	assert.NoError(t, c.Close(context.Background()))
	assert.Equal(t, StatusDisconnected, c.Status())
}

func TestKVErrorDetection(t *testing.T) {
	assert.True(t, IsKVNotFoundError(ErrKVKeyNotFound))
	assert.True(t, IsKVNotFoundError(errors.New("nats: key not found")))
	assert.False(t, IsKVNotFoundError(nil))

	assert.True(t, IsKVConflictError(ErrKVRevisionMismatch))
	assert.True(t, IsKVConflictError(errors.New("wrong last sequence: 4")))
	assert.False(t, IsKVConflictError(errors.New("timeout")))
}
