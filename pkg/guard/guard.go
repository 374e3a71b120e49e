// Package guard wraps a value with a lock and a condition and hands out
// scoped access handles that signal waiters only after the lock is dropped.
package guard

import (
	"fmt"
	"sync"
	"time"

	"github.com/usc-rasc/kinect-bridge2/errors"
)

// Policy selects the notification a handle performs on Release after it has
// been used for exclusive access.
type Policy uint8

const (
	// NotifyNone releases the lock without signalling.
	NotifyNone Policy = iota
	// NotifyOne wakes a single waiter.
	NotifyOne
	// NotifyAll wakes every waiter.
	NotifyAll
)

// String returns the policy name
func (p Policy) String() string {
	switch p {
	case NotifyNone:
		return "none"
	case NotifyOne:
		return "one"
	case NotifyAll:
		return "all"
	default:
		return "unknown"
	}
}

// Guard holds a value of type V. All access goes through a Handle.
//
// The lock is a one-slot channel so that try-lock can be bounded by a
// timeout; the condition is a FIFO of waiter channels for the same reason.
type Guard[V any] struct {
	sem   chan struct{}
	value V

	wmu     sync.Mutex
	waiters []chan struct{}
}

// New creates a guard around v
func New[V any](v V) *Guard[V] {
	return &Guard[V]{
		sem:   make(chan struct{}, 1),
		value: v,
	}
}

func (g *Guard[V]) lock() {
	g.sem <- struct{}{}
}

func (g *Guard[V]) tryLock() bool {
	select {
	case g.sem <- struct{}{}:
		return true
	default:
		return false
	}
}

func (g *Guard[V]) tryLockFor(d time.Duration) bool {
	if g.tryLock() {
		return true
	}
	if d <= 0 {
		return false
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case g.sem <- struct{}{}:
		return true
	case <-timer.C:
		return false
	}
}

func (g *Guard[V]) unlock() {
	<-g.sem
}

func (g *Guard[V]) addWaiter() chan struct{} {
	ch := make(chan struct{})
	g.wmu.Lock()
	g.waiters = append(g.waiters, ch)
	g.wmu.Unlock()
	return ch
}

// removeWaiter reports whether ch was still queued, i.e. not yet notified.
func (g *Guard[V]) removeWaiter(ch chan struct{}) bool {
	g.wmu.Lock()
	defer g.wmu.Unlock()
	for i, w := range g.waiters {
		if w == ch {
			g.waiters = append(g.waiters[:i], g.waiters[i+1:]...)
			return true
		}
	}
	return false
}

// NotifyOne wakes the longest-waiting waiter, if any.
func (g *Guard[V]) NotifyOne() {
	g.wmu.Lock()
	if len(g.waiters) > 0 {
		close(g.waiters[0])
		g.waiters = g.waiters[1:]
	}
	g.wmu.Unlock()
}

// NotifyAll wakes every waiter.
func (g *Guard[V]) NotifyAll() {
	g.wmu.Lock()
	for _, w := range g.waiters {
		close(w)
	}
	g.waiters = nil
	g.wmu.Unlock()
}

// Waiters returns the number of goroutines blocked in WaitOn.
func (g *Guard[V]) Waiters() int {
	g.wmu.Lock()
	defer g.wmu.Unlock()
	return len(g.waiters)
}

// Handle returns an unlocked handle with the given notify policy.
// A handle belongs to one goroutine; it locks lazily on first access.
func (g *Guard[V]) Handle(policy Policy) *Handle[V] {
	return &Handle[V]{g: g, policy: policy}
}

// With runs fn with a fresh handle and always releases it afterwards.
func (g *Guard[V]) With(policy Policy, fn func(h *Handle[V]) error) error {
	h := g.Handle(policy)
	defer h.Release()
	return fn(h)
}

// Handle is scoped access to a guarded value.
type Handle[V any] struct {
	g      *Guard[V]
	policy Policy
	locked bool
	armed  bool
}

// Locked reports whether the handle currently holds the lock.
func (h *Handle[V]) Locked() bool {
	return h.locked
}

func (h *Handle[V]) ensureLocked() {
	if !h.locked {
		h.g.lock()
		h.locked = true
	}
}

func (h *Handle[V]) arm() *V {
	if h.policy != NotifyNone {
		h.armed = true
	}
	return &h.g.value
}

// Get returns the value for reading. It takes the lock if the handle does
// not hold it yet but does not arm the release notification.
func (h *Handle[V]) Get() *V {
	h.ensureLocked()
	return &h.g.value
}

// GetExclusive locks (once) and returns the value for mutation. Release will
// notify according to the handle's policy.
func (h *Handle[V]) GetExclusive() *V {
	h.ensureLocked()
	return h.arm()
}

// TryGetExclusive is GetExclusive without blocking. It fails with
// ErrLockUnavailable when another handle holds the lock; a handle that
// already holds it always succeeds.
func (h *Handle[V]) TryGetExclusive() (*V, error) {
	if !h.locked {
		if !h.g.tryLock() {
			return nil, errors.WrapTransient(errors.ErrLockUnavailable, "Handle", "TryGetExclusive", "acquire lock")
		}
		h.locked = true
	}
	return h.arm(), nil
}

// TryGetExclusiveFor waits at most d for the lock.
func (h *Handle[V]) TryGetExclusiveFor(d time.Duration) (*V, error) {
	if !h.locked {
		if !h.g.tryLockFor(d) {
			return nil, errors.WrapTransient(errors.ErrLockUnavailable, "Handle", "TryGetExclusiveFor",
				fmt.Sprintf("acquire lock within %v", d))
		}
		h.locked = true
	}
	return h.arm(), nil
}

// WaitOn blocks until another goroutine notifies the guard. The lock is
// taken if needed, released while blocked and held again on return.
func (h *Handle[V]) WaitOn() *Handle[V] {
	h.ensureLocked()
	ch := h.g.addWaiter()
	h.g.unlock()
	<-ch
	h.g.lock()
	return h
}

// WaitOnFor is WaitOn bounded by d. On timeout it returns ErrLockUnavailable
// with the lock held again.
func (h *Handle[V]) WaitOnFor(d time.Duration) error {
	h.ensureLocked()
	ch := h.g.addWaiter()
	h.g.unlock()

	timer := time.NewTimer(d)
	defer timer.Stop()

	var timedOut bool
	select {
	case <-ch:
	case <-timer.C:
		// A notification racing the timer counts as a wake-up
		timedOut = h.g.removeWaiter(ch)
	}

	h.g.lock()
	if timedOut {
		return errors.WrapTransient(errors.ErrLockUnavailable, "Handle", "WaitOnFor",
			fmt.Sprintf("wait for notification within %v", d))
	}
	return nil
}

// Release drops the lock and then performs the armed notification, so a
// woken waiter never finds the lock still held by the notifier. Calling
// Release more than once is harmless.
func (h *Handle[V]) Release() {
	if h.locked {
		h.locked = false
		h.g.unlock()
	}
	if !h.armed {
		return
	}
	h.armed = false
	switch h.policy {
	case NotifyOne:
		h.g.NotifyOne()
	case NotifyAll:
		h.g.NotifyAll()
	}
}
