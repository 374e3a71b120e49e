package queue

import (
	"fmt"
	"time"

	"github.com/usc-rasc/kinect-bridge2/errors"
	"github.com/usc-rasc/kinect-bridge2/pkg/guard"
)

// ring is a growable circular FIFO. It is only touched under the guard.
type ring[T any] struct {
	items  []T
	head   int
	size   int
	closed bool
}

func (r *ring[T]) push(item T) {
	if r.size == len(r.items) {
		r.grow()
	}
	r.items[(r.head+r.size)%len(r.items)] = item
	r.size++
}

func (r *ring[T]) pop() T {
	var zero T
	item := r.items[r.head]
	r.items[r.head] = zero
	r.head = (r.head + 1) % len(r.items)
	r.size--
	return item
}

func (r *ring[T]) grow() {
	n := len(r.items) * 2
	if n == 0 {
		n = 16
	}
	items := make([]T, n)
	for i := 0; i < r.size; i++ {
		items[i] = r.items[(r.head+i)%len(r.items)]
	}
	r.items = items
	r.head = 0
}

// Queue is an unbounded, multi-producer multi-consumer FIFO with a
// high-water mark.
type Queue[T any] struct {
	g         *guard.Guard[ring[T]]
	highWater int
	stats     *Statistics
	metrics   *queueMetrics
}

// New creates a queue whose Full reports true once it holds highWater items.
// A non-positive highWater disables the mark.
func New[T any](highWater int, options ...Option[T]) (*Queue[T], error) {
	opts := applyOptions(options...)

	var metrics *queueMetrics
	if opts.metricsReg != nil {
		var err error
		metrics, err = newQueueMetrics(opts.metricsReg, opts.metricsName)
		if err != nil {
			return nil, errors.WrapTransient(err, "Queue", "New", "metrics registration")
		}
	}

	return &Queue[T]{
		g:         guard.New(ring[T]{items: make([]T, opts.initialCap)}),
		highWater: highWater,
		stats:     newStatistics(),
		metrics:   metrics,
	}, nil
}

// Push appends item and wakes one waiting consumer. It never blocks on
// capacity. Pushing onto a closed queue returns ErrShuttingDown.
func (q *Queue[T]) Push(item T) error {
	var length int
	err := q.g.With(guard.NotifyOne, func(h *guard.Handle[ring[T]]) error {
		r := h.Get()
		if r.closed {
			return errors.WrapInvalid(errors.ErrShuttingDown, "Queue", "Push", "queue closed")
		}
		r = h.GetExclusive()
		r.push(item)
		length = r.size
		return nil
	})
	if err != nil {
		return err
	}

	q.stats.push(length, q.highWater > 0 && length >= q.highWater)
	if q.metrics != nil {
		q.metrics.recordPush(length)
	}
	return nil
}

// TryPop removes the head item without waiting.
func (q *Queue[T]) TryPop() (T, bool) {
	h := q.g.Handle(guard.NotifyNone)
	defer h.Release()

	r := h.Get()
	if r.size == 0 {
		var zero T
		return zero, false
	}
	return q.take(r), true
}

// PopWait removes the head item, waiting up to d for one to arrive. A
// non-positive d waits until an item arrives or the queue is closed.
//
// On timeout it returns ErrLockUnavailable. Once the queue is closed and
// empty it returns ErrShuttingDown without waiting.
func (q *Queue[T]) PopWait(d time.Duration) (T, error) {
	var zero T

	h := q.g.Handle(guard.NotifyNone)
	defer h.Release()

	var deadline time.Time
	if d > 0 {
		deadline = time.Now().Add(d)
	}

	r := h.Get()
	for {
		if r.size > 0 {
			return q.take(r), nil
		}
		if r.closed {
			return zero, errors.WrapInvalid(errors.ErrShuttingDown, "Queue", "PopWait", "queue closed and drained")
		}

		if d <= 0 {
			h.WaitOn()
			continue
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return zero, errors.WrapTransient(errors.ErrLockUnavailable, "Queue", "PopWait",
				fmt.Sprintf("wait for item within %v", d))
		}
		// A timed-out wait still rechecks the ring before giving up
		_ = h.WaitOnFor(remaining)
	}
}

func (q *Queue[T]) take(r *ring[T]) T {
	item := r.pop()
	q.stats.pop()
	if q.metrics != nil {
		q.metrics.recordPop(r.size)
	}
	return item
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	h := q.g.Handle(guard.NotifyNone)
	defer h.Release()
	return h.Get().size
}

// Empty reports whether the queue holds no items.
func (q *Queue[T]) Empty() bool {
	return q.Len() == 0
}

// Full reports whether the queue is at or above its high-water mark.
func (q *Queue[T]) Full() bool {
	return q.highWater > 0 && q.Len() >= q.highWater
}

// HighWater returns the queue's high-water mark.
func (q *Queue[T]) HighWater() int {
	return q.highWater
}

// Close stops further pushes and wakes every waiting consumer.
// Closing twice is a no-op.
func (q *Queue[T]) Close() {
	_ = q.g.With(guard.NotifyAll, func(h *guard.Handle[ring[T]]) error {
		h.GetExclusive().closed = true
		return nil
	})
}

// Closed reports whether Close has been called.
func (q *Queue[T]) Closed() bool {
	h := q.g.Handle(guard.NotifyNone)
	defer h.Release()
	return h.Get().closed
}

// Stats returns the queue statistics.
func (q *Queue[T]) Stats() *Statistics {
	return q.stats
}
