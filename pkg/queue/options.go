package queue

import (
	"github.com/usc-rasc/kinect-bridge2/metric"
)

// Option configures a Queue
type Option[T any] func(*queueOptions[T])

type queueOptions[T any] struct {
	metricsReg  *metric.MetricsRegistry
	metricsName string
	initialCap  int
}

// WithMetrics exports the queue statistics under the given queue label.
// A nil registry or empty name leaves metrics disabled.
func WithMetrics[T any](registry *metric.MetricsRegistry, name string) Option[T] {
	return func(opts *queueOptions[T]) {
		if registry != nil && name != "" {
			opts.metricsReg = registry
			opts.metricsName = name
		}
	}
}

// WithInitialCapacity preallocates room for n items.
func WithInitialCapacity[T any](n int) Option[T] {
	return func(opts *queueOptions[T]) {
		if n > 0 {
			opts.initialCap = n
		}
	}
}

func applyOptions[T any](options ...Option[T]) *queueOptions[T] {
	opts := &queueOptions[T]{initialCap: 16}
	for _, opt := range options {
		if opt != nil {
			opt(opts)
		}
	}
	return opts
}
