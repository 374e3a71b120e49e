// Package health models the health of the capture pipeline and its
// transports.
//
// A Status is healthy, degraded or unhealthy and may carry sub-statuses and
// metrics. Queue derives a status from a queue's occupancy against its
// high-water mark; Aggregate folds sub-statuses into one. A Monitor keeps
// the latest status per component and serves the aggregate over HTTP:
//
//	mon := health.NewMonitor()
//	mon.Update("pipeline", p.Health())
//	srv := metric.NewServer(addr, "/metrics", registry,
//	    metric.WithHealthHandler(mon.Handler("kinect-logger")))
//
// Messages built from errors are sanitized: URLs, paths, addresses and
// credentials are replaced by placeholders.
package health
