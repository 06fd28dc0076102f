package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTransient = errors.New("transient error")
var errPermanent = errors.New("permanent error")

func isTransient(err error) bool {
	return errors.Is(err, errTransient)
}

func fastConfig(maxRetries int) Config {
	return Config{
		MaxRetries:     maxRetries,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		BackoffFactor:  2.0,
	}
}

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	result, err := Do(context.Background(), DefaultConfig(), isTransient, nil, func() (int, error) {
		calls++
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, result)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesOnTransientError(t *testing.T) {
	calls := 0
	result, err := Do(context.Background(), fastConfig(3), isTransient, nil, func() (int, error) {
		calls++
		if calls < 3 {
			return 0, errTransient
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, result)
	assert.Equal(t, 3, calls)
}

func TestDo_StopsOnPermanentError(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), fastConfig(3), isTransient, nil, func() (int, error) {
		calls++
		return 0, errPermanent
	})

	require.ErrorIs(t, err, errPermanent)
	assert.Equal(t, 1, calls)
}

func TestDo_ExhaustsRetries(t *testing.T) {
	calls := 0
	var retried []int
	onRetry := func(attempt int, _ error, _ time.Duration) {
		retried = append(retried, attempt)
	}

	_, err := Do(context.Background(), fastConfig(2), isTransient, onRetry, func() (int, error) {
		calls++
		return 0, errTransient
	})

	require.ErrorIs(t, err, errTransient)
	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.Equal(t, "gave up after 3 attempts: transient error", err.Error())
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestDo_NonRetryableIsNotExhausted(t *testing.T) {
	_, err := Do(context.Background(), fastConfig(3), isTransient, nil, func() (int, error) {
		return 0, errPermanent
	})

	var exhausted *ExhaustedError
	assert.False(t, errors.As(err, &exhausted))
}

func TestDo_NoRetriesConfigured(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), Config{MaxRetries: 0}, isTransient, nil, func() (int, error) {
		calls++
		return 0, errTransient
	})

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 1, exhausted.Attempts)
	assert.Equal(t, 1, calls)
}

func TestDo_BackoffGrowsAndCaps(t *testing.T) {
	cfg := Config{MaxRetries: 4, InitialBackoff: time.Millisecond, MaxBackoff: 3 * time.Millisecond, BackoffFactor: 2}

	var waits []time.Duration
	_, _ = Do(context.Background(), cfg, isTransient, func(_ int, _ error, wait time.Duration) {
		waits = append(waits, wait)
	}, func() (int, error) {
		return 0, errTransient
	})

	assert.Equal(t, []time.Duration{
		time.Millisecond,
		2 * time.Millisecond,
		3 * time.Millisecond,
		3 * time.Millisecond,
	}, waits)
}

func TestDo_JitterStaysWithinDoubleBackoff(t *testing.T) {
	cfg := Config{MaxRetries: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, Jitter: true}

	_, _ = Do(context.Background(), cfg, isTransient, func(_ int, _ error, wait time.Duration) {
		assert.GreaterOrEqual(t, wait, time.Millisecond)
		assert.Less(t, wait, 2*time.Millisecond)
	}, func() (int, error) {
		return 0, errTransient
	})
}

func TestDo_HonoursRequestedDelay(t *testing.T) {
	var waits []time.Duration
	calls := 0
	result, err := Do(context.Background(), fastConfig(3), isTransient, func(_ int, _ error, wait time.Duration) {
		waits = append(waits, wait)
	}, func() (int, error) {
		calls++
		switch calls {
		case 1:
			return 0, After(errTransient, 20*time.Millisecond)
		case 2:
			// shorter than the backoff, so the backoff applies
			return 0, After(errTransient, time.Microsecond)
		}
		return 7, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 7, result)
	assert.Equal(t, []time.Duration{20 * time.Millisecond, 2 * time.Millisecond}, waits)
}

func TestAfter(t *testing.T) {
	assert.NoError(t, After(nil, time.Second))
	assert.Same(t, errTransient, After(errTransient, 0))

	delayed := After(errTransient, time.Second)
	assert.ErrorIs(t, delayed, errTransient)
	assert.True(t, IsRetryable(delayed))
	assert.False(t, IsRetryable(Permanent(delayed)))
	assert.Equal(t, errTransient.Error(), delayed.Error())
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := Config{MaxRetries: 3, InitialBackoff: time.Hour, MaxBackoff: time.Hour}

	calls := 0
	_, err := Do(ctx, cfg, isTransient, func(int, error, time.Duration) { cancel() }, func() (int, error) {
		calls++
		return 0, errTransient
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestDo_NilPredicateHonoursPermanent(t *testing.T) {
	calls := 0
	err := DoVoid(context.Background(), fastConfig(3), nil, nil, func() error {
		calls++
		if calls == 1 {
			return errTransient
		}
		return Permanent(errPermanent)
	})

	require.ErrorIs(t, err, errPermanent)
	assert.Equal(t, 2, calls)
}

func TestPermanent(t *testing.T) {
	assert.NoError(t, Permanent(nil))

	wrapped := Permanent(errPermanent)
	assert.False(t, IsRetryable(wrapped))
	assert.False(t, IsRetryable(errors.Join(errTransient, wrapped)))
	assert.True(t, IsRetryable(errTransient))
	assert.Equal(t, errPermanent.Error(), wrapped.Error())
}
