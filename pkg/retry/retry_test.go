package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetry_Success(t *testing.T) {
	cfg := Config{
		MaxAttempts:  3,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     100 * time.Millisecond,
		Multiplier:   2.0,
	}

	attempts := 0
	err := Do(context.Background(), cfg, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("device not ready")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetry_AllAttemptsFail(t *testing.T) {
	cfg := Fixed(5*time.Millisecond, 3)
	sentinel := errors.New("refused")

	attempts := 0
	err := Do(context.Background(), cfg, func() error {
		attempts++
		return sentinel
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 3, attempts)
	assert.Contains(t, err.Error(), "after 3 attempts")
}

func TestRetry_NonRetryable(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), Quick(), func() error {
		attempts++
		return NonRetryable(errors.New("bad address"))
	})

	assert.True(t, IsNonRetryable(err))
	assert.Equal(t, 1, attempts)
}

func TestRetry_RetryableFilter(t *testing.T) {
	permanent := errors.New("permanent")
	cfg := Fixed(time.Millisecond, 5)
	cfg.Retryable = func(err error) bool { return !errors.Is(err, permanent) }

	attempts := 0
	err := Do(context.Background(), cfg, func() error {
		attempts++
		if attempts == 2 {
			return permanent
		}
		return errors.New("again")
	})

	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 2, attempts)
}

func TestRetry_ForeverStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	attempts := 0
	err := Do(ctx, Fixed(5*time.Millisecond, Forever), func() error {
		attempts++
		return errors.New("not yet")
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Greater(t, attempts, 2)
}

func TestRetry_OnRetryAndBackoffCap(t *testing.T) {
	cfg := Config{
		MaxAttempts:  4,
		InitialDelay: 2 * time.Millisecond,
		MaxDelay:     4 * time.Millisecond,
		Multiplier:   10,
	}
	var delays []time.Duration
	cfg.OnRetry = func(_ int, _ error, d time.Duration) { delays = append(delays, d) }

	_ = Do(context.Background(), cfg, func() error { return errors.New("x") })

	assert.Equal(t, []time.Duration{2 * time.Millisecond, 4 * time.Millisecond, 4 * time.Millisecond}, delays)
}

func TestRetry_InvalidConfig(t *testing.T) {
	err := Do(context.Background(), Config{InitialDelay: -1}, func() error { return nil })
	assert.Error(t, err)

	err = Do(context.Background(), Config{InitialDelay: time.Second, MaxDelay: time.Millisecond}, func() error { return nil })
	assert.Error(t, err)
}

func TestDoWithResult(t *testing.T) {
	attempts := 0
	v, err := DoWithResult(context.Background(), Fixed(time.Millisecond, 3), func() (int, error) {
		attempts++
		if attempts < 2 {
			return 0, errors.New("later")
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}
