package natsclient

import (
	"context"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/usc-rasc/kinect-bridge2/metric"
)

// jetstreamMetrics reports the state of the streams and consumers this
// client touches. A nil *jetstreamMetrics is valid and records nothing.
type jetstreamMetrics struct {
	streamMessages  *prometheus.GaugeVec
	streamBytes     *prometheus.GaugeVec
	consumerPending *prometheus.GaugeVec
	errors          *prometheus.CounterVec

	mu        sync.RWMutex
	streams   map[string]jetstream.Stream
	consumers map[string]jetstream.Consumer
}

func newJetStreamMetrics(registry *metric.MetricsRegistry) (*jetstreamMetrics, error) {
	m := &jetstreamMetrics{
		streamMessages: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "kinect_bridge",
			Subsystem: "jetstream",
			Name:      "stream_messages",
			Help:      "Current number of messages in stream",
		}, []string{"stream"}),
		streamBytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "kinect_bridge",
			Subsystem: "jetstream",
			Name:      "stream_bytes",
			Help:      "Storage bytes used by stream",
		}, []string{"stream"}),
		consumerPending: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "kinect_bridge",
			Subsystem: "jetstream",
			Name:      "consumer_pending_messages",
			Help:      "Messages not yet delivered to the consumer",
		}, []string{"stream"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kinect_bridge",
			Subsystem: "jetstream",
			Name:      "operation_errors_total",
			Help:      "Total number of JetStream operation errors",
		}, []string{"operation"}),
		streams:   make(map[string]jetstream.Stream),
		consumers: make(map[string]jetstream.Consumer),
	}

	if err := registry.RegisterGaugeVec("jetstream", "stream_messages", m.streamMessages); err != nil {
		return nil, err
	}
	if err := registry.RegisterGaugeVec("jetstream", "stream_bytes", m.streamBytes); err != nil {
		return nil, err
	}
	if err := registry.RegisterGaugeVec("jetstream", "consumer_pending", m.consumerPending); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("jetstream", "errors", m.errors); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *jetstreamMetrics) trackStream(name string, stream jetstream.Stream) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.streams[name] = stream
	m.mu.Unlock()
}

func (m *jetstreamMetrics) trackConsumer(stream string, consumer jetstream.Consumer) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.consumers[stream] = consumer
	m.mu.Unlock()
}

func (m *jetstreamMetrics) recordError(operation string) {
	if m != nil {
		m.errors.WithLabelValues(operation).Inc()
	}
}

// updateStats refreshes the gauges. Unavailable streams are skipped.
func (m *jetstreamMetrics) updateStats(ctx context.Context) {
	if m == nil {
		return
	}

	m.mu.RLock()
	streams := make(map[string]jetstream.Stream, len(m.streams))
	for k, v := range m.streams {
		streams[k] = v
	}
	consumers := make(map[string]jetstream.Consumer, len(m.consumers))
	for k, v := range m.consumers {
		consumers[k] = v
	}
	m.mu.RUnlock()

	for name, stream := range streams {
		info, err := stream.Info(ctx)
		if err != nil {
			continue
		}
		m.streamMessages.WithLabelValues(name).Set(float64(info.State.Msgs))
		m.streamBytes.WithLabelValues(name).Set(float64(info.State.Bytes))
	}
	for name, consumer := range consumers {
		info := consumer.CachedInfo()
		if info == nil {
			continue
		}
		m.consumerPending.WithLabelValues(name).Set(float64(info.NumPending))
	}
}

// startPoller polls stats every interval until the returned cancel is called.
func (m *jetstreamMetrics) startPoller(ctx context.Context, interval time.Duration) context.CancelFunc {
	if m == nil {
		return func() {}
	}

	ctx, cancel := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.updateStats(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
	return cancel
}
