package health

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusConstructors(t *testing.T) {
	h := NewHealthy("writer", "ok")
	assert.True(t, h.Healthy)
	assert.True(t, h.IsHealthy())
	assert.False(t, h.Timestamp.IsZero())

	d := NewDegraded("writer", "slow")
	assert.False(t, d.Healthy)
	assert.True(t, d.IsDegraded())

	u := NewUnhealthy("writer", "gone")
	assert.True(t, u.IsUnhealthy())
}

func TestQueue(t *testing.T) {
	tests := []struct {
		length, mark int
		want         string
	}{
		{0, 32, StateHealthy},
		{31, 32, StateHealthy},
		{32, 32, StateDegraded},
		{63, 32, StateDegraded},
		{64, 32, StateUnhealthy},
		{500, 0, StateHealthy},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d_of_%d", tt.length, tt.mark), func(t *testing.T) {
			s := Queue("color", tt.length, tt.mark)
			assert.Equal(t, tt.want, s.Status)
			require.NotNil(t, s.Metrics)
			assert.Equal(t, tt.length, s.Metrics.QueueLength)
		})
	}
}

func TestAggregate(t *testing.T) {
	assert.True(t, Aggregate("sys", nil).IsHealthy())

	healthy := NewHealthy("a", "")
	degraded := NewDegraded("b", "")
	unhealthy := NewUnhealthy("c", "")

	assert.True(t, Aggregate("sys", []Status{healthy, healthy}).IsHealthy())
	assert.True(t, Aggregate("sys", []Status{healthy, degraded}).IsDegraded())
	agg := Aggregate("sys", []Status{degraded, unhealthy, healthy})
	assert.True(t, agg.IsUnhealthy())
	assert.Len(t, agg.SubStatuses, 3)
}

func TestWithSubStatus_DoesNotShareSlice(t *testing.T) {
	base := NewHealthy("p", "").WithSubStatus(NewHealthy("a", ""))
	base.SubStatuses = base.SubStatuses[:1:1]

	x := base.WithSubStatus(NewHealthy("x", ""))
	y := base.WithSubStatus(NewHealthy("y", ""))

	assert.Equal(t, "x", x.SubStatuses[1].Component)
	assert.Equal(t, "y", y.SubStatuses[1].Component)
	assert.Len(t, base.SubStatuses, 1)
}

func TestFromError_Sanitizes(t *testing.T) {
	assert.True(t, FromError("sink", nil).IsHealthy())

	tests := []struct {
		input, want string
	}{
		{"dial tcp://10.0.0.5:5903 refused", "dial [URL] refused"},
		{"open /data/kinect/session.stream: no space", "open [PATH]: no space"},
		{"peer 192.168.1.20 gone", "peer [IP] gone"},
		{"nats auth token=abc123 rejected", "nats auth [REDACTED] rejected"},
	}
	for _, tt := range tests {
		s := FromError("sink", fmt.Errorf("%s", tt.input))
		assert.True(t, s.IsUnhealthy())
		assert.Equal(t, tt.want, s.Message)
	}
}

func TestMonitor_AggregateAndHandler(t *testing.T) {
	m := NewMonitor()
	m.Update("sink", NewHealthy("ignored", "connected"))
	m.Update("pipeline", NewDegraded("pipeline", "color queue full"))

	s, ok := m.Get("sink")
	require.True(t, ok)
	assert.Equal(t, "sink", s.Component)

	agg := m.AggregateHealth("kinect-logger")
	assert.True(t, agg.IsDegraded())
	require.Len(t, agg.SubStatuses, 2)
	assert.Equal(t, "pipeline", agg.SubStatuses[0].Component)

	rec := httptest.NewRecorder()
	m.Handler("kinect-logger").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	var got Status
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, StateDegraded, got.Status)

	m.Update("sink", NewUnhealthy("sink", "peer gone"))
	rec = httptest.NewRecorder()
	m.Handler("kinect-logger").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	m.Remove("sink")
	_, ok = m.Get("sink")
	assert.False(t, ok)
}

func TestMonitor_ConcurrentAccess(t *testing.T) {
	m := NewMonitor()
	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			name := fmt.Sprintf("stage-%d", i)
			for range 100 {
				m.Update(name, NewHealthy(name, ""))
				_ = m.AggregateHealth("sys")
			}
		}()
	}
	wg.Wait()
	assert.Len(t, m.AggregateHealth("sys").SubStatuses, 10)
}
