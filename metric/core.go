package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every metric exported by kinect-bridge2.
const Namespace = "kinect_bridge"

// Metrics contains the capture-wide metrics shared by every stage
type Metrics struct {
	// Pipeline
	MessagesAcquired   *prometheus.CounterVec
	MessagesEncoded    *prometheus.CounterVec
	MessagesWritten    *prometheus.CounterVec
	MessagesDropped    *prometheus.CounterVec
	BytesWritten       prometheus.Counter
	EncodeDuration     *prometheus.HistogramVec
	CompressionRatio   *prometheus.GaugeVec
	StageErrors        *prometheus.CounterVec
	StageWorkers       *prometheus.GaugeVec
	PipelineRunning    prometheus.Gauge
	AcquisitionRetries *prometheus.CounterVec

	// Transport
	PeerConnected  *prometheus.GaugeVec
	PeerAccepts    *prometheus.CounterVec
	FramesRead     *prometheus.CounterVec
	Resyncs        *prometheus.CounterVec
	BytesSkipped   *prometheus.CounterVec
	TransportError *prometheus.CounterVec
}

// NewMetrics creates the capture metrics. They are registered by NewMetricsRegistry.
func NewMetrics() *Metrics {
	return &Metrics{
		MessagesAcquired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "pipeline",
			Name:      "acquired_total",
			Help:      "Raw messages pulled from the device, per modality",
		}, []string{"modality"}),

		MessagesEncoded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "pipeline",
			Name:      "encoded_total",
			Help:      "Messages turned into coded messages, per modality",
		}, []string{"modality"}),

		MessagesWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "pipeline",
			Name:      "written_total",
			Help:      "Coded messages pushed to the sink, per payload type",
		}, []string{"payload_type"}),

		MessagesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "pipeline",
			Name:      "dropped_total",
			Help:      "Messages dropped, per stage",
		}, []string{"stage"}),

		BytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "pipeline",
			Name:      "bytes_written_total",
			Help:      "Framed bytes pushed to the sink",
		}),

		EncodeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "pipeline",
			Name:      "encode_duration_seconds",
			Help:      "Time spent packing and encoding one message",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25},
		}, []string{"modality", "codec"}),

		CompressionRatio: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "pipeline",
			Name:      "compression_ratio",
			Help:      "Encoded size over decoded size of the last message, per modality",
		}, []string{"modality"}),

		StageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "pipeline",
			Name:      "errors_total",
			Help:      "Errors caught by stage loops",
		}, []string{"stage", "class"}),

		StageWorkers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "pipeline",
			Name:      "workers",
			Help:      "Running workers per stage",
		}, []string{"stage"}),

		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "pipeline",
			Name:      "running",
			Help:      "1 while the pipeline is started",
		}),

		AcquisitionRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "pipeline",
			Name:      "device_not_ready_total",
			Help:      "Acquisition attempts that found the device not ready",
		}, []string{"modality"}),

		PeerConnected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "transport",
			Name:      "peer_connected",
			Help:      "1 while a peer is attached",
		}, []string{"transport"}),

		PeerAccepts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "transport",
			Name:      "peer_accepts_total",
			Help:      "Peers accepted or dialed",
		}, []string{"transport"}),

		FramesRead: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "transport",
			Name:      "frames_read_total",
			Help:      "Frames parsed by a source",
		}, []string{"transport"}),

		Resyncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "transport",
			Name:      "resyncs_total",
			Help:      "Times a reader had to scan for the next frame marker",
		}, []string{"transport"}),

		BytesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "transport",
			Name:      "bytes_skipped_total",
			Help:      "Bytes discarded while resynchronizing",
		}, []string{"transport"}),

		TransportError: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "transport",
			Name:      "errors_total",
			Help:      "Transport failures, per transport and operation",
		}, []string{"transport", "op"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.MessagesAcquired,
		m.MessagesEncoded,
		m.MessagesWritten,
		m.MessagesDropped,
		m.BytesWritten,
		m.EncodeDuration,
		m.CompressionRatio,
		m.StageErrors,
		m.StageWorkers,
		m.PipelineRunning,
		m.AcquisitionRetries,
		m.PeerConnected,
		m.PeerAccepts,
		m.FramesRead,
		m.Resyncs,
		m.BytesSkipped,
		m.TransportError,
	}
}
