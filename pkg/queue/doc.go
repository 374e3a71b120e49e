// Package queue provides the unbounded FIFO that connects pipeline stages.
//
// A Queue never blocks its producer. It carries a high-water mark that
// producers consult through Full to apply their own backpressure, so the
// bound is logical rather than enforced by the container:
//
//	q, _ := queue.New[*message.Coded](64)
//	for q.Full() {
//		time.Sleep(pause)
//	}
//	_ = q.Push(msg)
//
// Consumers use TryPop to poll or PopWait to block for a bounded time.
// Close wakes every blocked consumer; items already queued can still be
// popped, after which PopWait returns ErrShuttingDown immediately. This lets a
// stage drain its input and exit without a separate "until empty" signal.
//
// Statistics are always collected. Prometheus export is enabled with
// WithMetrics.
package queue
