package metric

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usc-rasc/kinect-bridge2/errors"
)

func gatherFamily(t *testing.T, r *MetricsRegistry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := r.PrometheusRegistry().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func TestMetricsRegistry_RegisterCounter(t *testing.T) {
	registry := NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_counter",
		Help: "A test counter",
	})
	require.NoError(t, registry.RegisterCounter("color", "test_counter", counter))
	counter.Add(3)

	mf := gatherFamily(t, registry, "test_counter")
	require.NotNil(t, mf)
	assert.Equal(t, 3.0, mf.GetMetric()[0].GetCounter().GetValue())
}

func TestMetricsRegistry_PreventDuplicateRegistration(t *testing.T) {
	registry := NewMetricsRegistry()

	g1 := prometheus.NewGauge(prometheus.GaugeOpts{Name: "dup_gauge", Help: "x"})
	g2 := prometheus.NewGauge(prometheus.GaugeOpts{Name: "dup_gauge", Help: "x"})

	require.NoError(t, registry.RegisterGauge("depth", "dup_gauge", g1))

	err := registry.RegisterGauge("depth", "dup_gauge", g1)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	// Same collector name under another service key still conflicts in prometheus
	err = registry.RegisterGauge("audio", "dup_gauge", g2)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestMetricsRegistry_Unregister(t *testing.T) {
	registry := NewMetricsRegistry()

	h := prometheus.NewHistogram(prometheus.HistogramOpts{Name: "test_histogram", Help: "x"})
	require.NoError(t, registry.RegisterHistogram("writer", "latency", h))

	assert.True(t, registry.Unregister("writer", "latency"))
	assert.False(t, registry.Unregister("writer", "latency"))

	// Can register again after removal
	assert.NoError(t, registry.RegisterHistogram("writer", "latency", h))
}

func TestMetricsRegistry_ConcurrentRegistration(t *testing.T) {
	registry := NewMetricsRegistry()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			vec := prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: fmt.Sprintf("concurrent_%d", i),
				Help: "x",
			}, []string{"modality"})
			errs <- registry.RegisterCounterVec("svc", fmt.Sprintf("m%d", i), vec)
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestMetricsRegistry_CoreMetricsRegistered(t *testing.T) {
	registry := NewMetricsRegistry()
	m := registry.CoreMetrics()
	require.NotNil(t, m)

	m.MessagesWritten.WithLabelValues("kinect_color").Inc()
	m.BytesWritten.Add(128)
	m.Resyncs.WithLabelValues("tcp").Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.MessagesWritten.WithLabelValues("kinect_color")))
	assert.NotNil(t, gatherFamily(t, registry, "kinect_bridge_pipeline_written_total"))
	assert.NotNil(t, gatherFamily(t, registry, "kinect_bridge_pipeline_bytes_written_total"))
	assert.NotNil(t, gatherFamily(t, registry, "kinect_bridge_transport_resyncs_total"))
	assert.NotNil(t, gatherFamily(t, registry, "go_goroutines"))
}

func TestMetricsRegistrar_Interface(_ *testing.T) {
	var _ MetricsRegistrar = (*MetricsRegistry)(nil)
}

func TestServer_ServesMetricsAndHealth(t *testing.T) {
	registry := NewMetricsRegistry()
	registry.CoreMetrics().PipelineRunning.Set(1)

	health := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"healthy":false}`))
	})

	server := NewServer("127.0.0.1:0", "", registry, WithHealthHandler(health))
	require.NoError(t, server.Start())
	defer server.Stop(time.Second)

	// Second start is rejected
	assert.Error(t, server.Start())

	resp, err := http.Get(server.Address())
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(strings.NewReader(string(body)))
	require.NoError(t, err)
	running, ok := families["kinect_bridge_pipeline_running"]
	require.True(t, ok, "pipeline gauge exported")
	require.Len(t, running.GetMetric(), 1)
	assert.Equal(t, 1.0, running.GetMetric()[0].GetGauge().GetValue())
	assert.Contains(t, families, "go_goroutines")

	healthURL := strings.TrimSuffix(server.Address(), "/metrics") + "/health"
	resp, err = http.Get(healthURL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	require.NoError(t, server.Stop(time.Second))
	assert.NoError(t, server.Stop(time.Second))
}
