package guard

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usc-rasc/kinect-bridge2/errors"
)

func TestHandle_GetExclusiveMutates(t *testing.T) {
	g := New(0)

	err := g.With(NotifyNone, func(h *Handle[int]) error {
		*h.GetExclusive() = 7
		return nil
	})
	require.NoError(t, err)

	h := g.Handle(NotifyNone)
	defer h.Release()
	assert.Equal(t, 7, *h.Get())
}

func TestHandle_RelockIsIdempotent(t *testing.T) {
	g := New("x")
	h := g.Handle(NotifyOne)
	defer h.Release()

	h.GetExclusive()
	h.GetExclusive()
	v, err := h.TryGetExclusive()
	require.NoError(t, err)
	assert.Equal(t, "x", *v)

	_, err = h.TryGetExclusiveFor(time.Millisecond)
	require.NoError(t, err)
	assert.True(t, h.Locked())
}

func TestHandle_TryGetExclusiveFailsWhileHeld(t *testing.T) {
	g := New(1)
	holder := g.Handle(NotifyNone)
	holder.GetExclusive()

	other := g.Handle(NotifyNone)
	_, err := other.TryGetExclusive()
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrLockUnavailable)
	assert.True(t, errors.IsTransient(err))

	start := time.Now()
	_, err = other.TryGetExclusiveFor(20 * time.Millisecond)
	assert.ErrorIs(t, err, errors.ErrLockUnavailable)
	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)

	holder.Release()
	_, err = other.TryGetExclusive()
	assert.NoError(t, err)
	other.Release()
}

func TestHandle_TryGetExclusiveForAcquiresWhenReleased(t *testing.T) {
	g := New(1)
	holder := g.Handle(NotifyNone)
	holder.GetExclusive()

	go func() {
		time.Sleep(10 * time.Millisecond)
		holder.Release()
	}()

	other := g.Handle(NotifyNone)
	defer other.Release()
	_, err := other.TryGetExclusiveFor(time.Second)
	assert.NoError(t, err)
}

func TestHandle_WaitOnWakesAfterNotifierReleases(t *testing.T) {
	g := New([]int(nil))
	got := make(chan []int, 1)
	ready := make(chan struct{})

	go func() {
		h := g.Handle(NotifyNone)
		defer h.Release()
		v := h.Get()
		close(ready)
		for len(*v) == 0 {
			h.WaitOn()
		}
		// The lock is held again here; the notifier must have released it
		got <- append([]int(nil), *v...)
	}()

	<-ready
	require.Eventually(t, func() bool { return g.Waiters() == 1 }, time.Second, time.Millisecond)

	g.With(NotifyOne, func(h *Handle[[]int]) error {
		v := h.GetExclusive()
		*v = append(*v, 42)
		return nil
	})

	select {
	case v := <-got:
		assert.Equal(t, []int{42}, v)
	case <-time.After(time.Second):
		t.Fatal("waiter was not woken")
	}
}

func TestHandle_GetDoesNotArmNotification(t *testing.T) {
	g := New(0)
	woken := make(chan struct{})
	go func() {
		h := g.Handle(NotifyNone)
		defer h.Release()
		_ = h.WaitOnFor(100 * time.Millisecond)
		close(woken)
	}()
	require.Eventually(t, func() bool { return g.Waiters() == 1 }, time.Second, time.Millisecond)

	h := g.Handle(NotifyAll)
	h.Get()
	h.Release()

	// Only the timeout ends the wait
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, g.Waiters())
	<-woken
}

func TestHandle_WaitOnForTimeout(t *testing.T) {
	g := New(0)
	h := g.Handle(NotifyNone)
	defer h.Release()

	err := h.WaitOnFor(10 * time.Millisecond)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrLockUnavailable)
	assert.True(t, h.Locked())
	assert.Equal(t, 0, g.Waiters())
}

func TestGuard_NotifyAllWakesEveryWaiter(t *testing.T) {
	g := New(false)
	const n = 5
	var woke atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h := g.Handle(NotifyNone)
			defer h.Release()
			for !*h.Get() {
				h.WaitOn()
			}
			woke.Add(1)
		}()
	}

	require.Eventually(t, func() bool { return g.Waiters() == n }, time.Second, time.Millisecond)

	g.With(NotifyAll, func(h *Handle[bool]) error {
		*h.GetExclusive() = true
		return nil
	})

	wg.Wait()
	assert.Equal(t, int32(n), woke.Load())
}

func TestGuard_NotifyOneWakesSingleWaiter(t *testing.T) {
	g := New(0)
	var woke atomic.Int32

	for i := 0; i < 3; i++ {
		go func() {
			h := g.Handle(NotifyNone)
			defer h.Release()
			if err := h.WaitOnFor(300 * time.Millisecond); err == nil {
				woke.Add(1)
			}
		}()
	}
	require.Eventually(t, func() bool { return g.Waiters() == 3 }, time.Second, time.Millisecond)

	g.NotifyOne()
	require.Eventually(t, func() bool { return woke.Load() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, 2, g.Waiters())
	g.NotifyAll()
}

func TestHandle_ReleaseTwice(t *testing.T) {
	g := New(0)
	h := g.Handle(NotifyOne)
	h.GetExclusive()
	h.Release()
	h.Release()

	other := g.Handle(NotifyNone)
	_, err := other.TryGetExclusive()
	assert.NoError(t, err)
	other.Release()
}

func TestPolicy_String(t *testing.T) {
	assert.Equal(t, "none", NotifyNone.String())
	assert.Equal(t, "one", NotifyOne.String())
	assert.Equal(t, "all", NotifyAll.String())
	assert.Equal(t, "unknown", Policy(9).String())
}
