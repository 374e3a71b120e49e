// Package metric provides the Prometheus registry and HTTP endpoint for
// kinect-bridge2.
//
// NewMetricsRegistry registers the capture-wide metrics (Metrics) plus the Go
// runtime collectors. Components that own extra collectors, such as the
// pipeline queues, register them under a service name:
//
//	registry := metric.NewMetricsRegistry()
//	err := registry.RegisterGauge("color", "queue_depth", gauge)
//
// Registering the same service/metric pair twice returns an invalid-class
// error rather than panicking.
//
// Server exposes the registry on /metrics and a health handler on /health:
//
//	server := metric.NewServer(":9090", "/metrics", registry,
//		metric.WithHealthHandler(health.Handler(p.Health)))
//	if err := server.Start(); err != nil { ... }
//	defer server.Stop(5 * time.Second)
package metric
