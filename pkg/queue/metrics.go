package queue

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/usc-rasc/kinect-bridge2/metric"
)

type queueMetrics struct {
	pushes prometheus.Counter
	pops   prometheus.Counter
	length prometheus.Gauge
}

func newQueueMetrics(registry *metric.MetricsRegistry, name string) (*queueMetrics, error) {
	labels := prometheus.Labels{"queue": name}
	m := &queueMetrics{
		pushes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "queue",
			Name:        "pushes_total",
			ConstLabels: labels,
			Help:        "Items pushed onto the queue",
		}),
		pops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "queue",
			Name:        "pops_total",
			ConstLabels: labels,
			Help:        "Items popped from the queue",
		}),
		length: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "queue",
			Name:        "length",
			ConstLabels: labels,
			Help:        "Current number of queued items",
		}),
	}

	if err := registry.RegisterCounter(name, "queue_pushes", m.pushes); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(name, "queue_pops", m.pops); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(name, "queue_length", m.length); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *queueMetrics) recordPush(length int) {
	m.pushes.Inc()
	m.length.Set(float64(length))
}

func (m *queueMetrics) recordPop(length int) {
	m.pops.Inc()
	m.length.Set(float64(length))
}
