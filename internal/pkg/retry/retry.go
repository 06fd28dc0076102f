// Package retry repeats an operation that failed transiently, sleeping with
// exponential backoff in between. A remote side can stretch a wait with
// After, and callers learn that attempts ran out through ExhaustedError.
//
// The JSON-RPC client does not use it: RPC failover is a single immediate
// switch to the fallback endpoint.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// Config controls how often and how patiently Do retries.
type Config struct {
	// MaxRetries is the number of attempts after the first one.
	MaxRetries int

	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// BackoffFactor grows the backoff after each retry. Zero means 2.
	BackoffFactor float64

	// Jitter stretches each wait by up to the same amount again.
	Jitter bool
}

// DefaultConfig returns the defaults used by outbound HTTP adapters.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     3,
		InitialBackoff: 10 * time.Millisecond,
		MaxBackoff:     100 * time.Millisecond,
		BackoffFactor:  2.0,
		Jitter:         true,
	}
}

func (c Config) withDefaults() Config {
	if c.BackoffFactor <= 0 {
		c.BackoffFactor = 2.0
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 10 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 100 * time.Millisecond
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	return c
}

func (c Config) next(backoff time.Duration) time.Duration {
	return min(time.Duration(float64(backoff)*c.BackoffFactor), c.MaxBackoff)
}

// wait is the pause before the next attempt. A delay requested through
// After wins when it is longer.
func (c Config) wait(backoff time.Duration, err error) time.Duration {
	w := backoff
	if c.Jitter && backoff > 0 {
		w += time.Duration(rand.Int63n(int64(backoff)))
	}
	var d *delayedError
	if errors.As(err, &d) && d.delay > w {
		w = d.delay
	}
	return w
}

// IsRetryableFunc decides whether err should trigger another attempt.
type IsRetryableFunc func(error) bool

// OnRetryFunc is called before each retry. attempt is 1-indexed.
type OnRetryFunc func(attempt int, err error, wait time.Duration)

// ExhaustedError is returned by Do when every attempt failed with a
// retryable error. Err is the last failure.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Do calls fn until it succeeds, returns an error isRetryable rejects, or
// cfg.MaxRetries retries are spent. A nil isRetryable retries everything
// not marked with Permanent.
func Do[T any](
	ctx context.Context,
	cfg Config,
	isRetryable IsRetryableFunc,
	onRetry OnRetryFunc,
	fn func() (T, error),
) (T, error) {
	var zero T
	cfg = cfg.withDefaults()
	if isRetryable == nil {
		isRetryable = IsRetryable
	}

	backoff := cfg.InitialBackoff
	for attempt := 1; ; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		if !isRetryable(err) {
			return zero, err
		}
		if attempt > cfg.MaxRetries {
			return zero, &ExhaustedError{Attempts: attempt, Err: err}
		}

		wait := cfg.wait(backoff, err)
		if onRetry != nil {
			onRetry(attempt, err, wait)
		}
		if err := sleep(ctx, wait); err != nil {
			return zero, fmt.Errorf("context cancelled while retrying: %w", err)
		}
		backoff = cfg.next(backoff)
	}
}

// DoVoid is like Do for functions without a result.
func DoVoid(
	ctx context.Context,
	cfg Config,
	isRetryable IsRetryableFunc,
	onRetry OnRetryFunc,
	fn func() error,
) error {
	_, err := Do(ctx, cfg, isRetryable, onRetry, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// NonRetryableError marks an error that must not be retried.
type NonRetryableError struct {
	err error
}

func (e *NonRetryableError) Error() string {
	return e.err.Error()
}

func (e *NonRetryableError) Unwrap() error {
	return e.err
}

// Permanent wraps err so Do gives up on it immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &NonRetryableError{err: err}
}

// IsRetryable reports whether err is not marked with Permanent.
func IsRetryable(err error) bool {
	var nonRetryable *NonRetryableError
	return !errors.As(err, &nonRetryable)
}

type delayedError struct {
	err   error
	delay time.Duration
}

func (e *delayedError) Error() string {
	return e.err.Error()
}

func (e *delayedError) Unwrap() error {
	return e.err
}

// After marks err as retryable no sooner than delay from now, as a server's
// Retry-After asks. A non-positive delay returns err unchanged.
func After(err error, delay time.Duration) error {
	if err == nil || delay <= 0 {
		return err
	}
	return &delayedError{err: err, delay: delay}
}
