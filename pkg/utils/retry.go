package utils

import (
	"context"
	"math"
	"time"

	"github.com/benbjohnson/clock"

	"tradedesk/internal/errors"
)

// RetryConfig holds retry configuration.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	// AttemptTimeout bounds each call. Zero disables the per-attempt deadline.
	AttemptTimeout time.Duration
	// DefaultRetryAfter is used for rate-limited responses without a Retry-After value.
	DefaultRetryAfter time.Duration
	// Retryable decides whether an error is worth another attempt. Nil retries everything.
	Retryable func(error) bool
	// Clock drives the waits between attempts. Nil uses the wall clock.
	Clock clock.Clock
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialDelay:      time.Second,
		MaxDelay:          10 * time.Second,
		BackoffFactor:     2.0,
		AttemptTimeout:    10 * time.Second,
		DefaultRetryAfter: 60 * time.Second,
	}
}

// Retry executes a function with exponential backoff retry.
func Retry(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	_, err := RetryWithResult(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// RetryWithResult executes a function with exponential backoff retry and returns a result.
// A rate-limited ProviderError waits for its RetryAfter instead of the backoff.
func RetryWithResult[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		result, err := callWithTimeout(ctx, cfg.AttemptTimeout, fn)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if cfg.Retryable != nil && !cfg.Retryable(err) {
			return zero, err
		}

		// Don't sleep after the last attempt
		if attempt == attempts-1 {
			break
		}

		if err := Sleep(ctx, clk, RetryDelay(cfg, attempt, err)); err != nil {
			return zero, err
		}
	}

	return zero, lastErr
}

func callWithTimeout[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(attemptCtx)
}

// RetryDelay returns how long to wait after the failed attempt (zero-based).
func RetryDelay(cfg RetryConfig, attempt int, err error) time.Duration {
	var perr *errors.ProviderError
	if errors.As(err, &perr) && perr.IsRateLimited() {
		if perr.RetryAfter > 0 {
			return perr.RetryAfter
		}
		return cfg.DefaultRetryAfter
	}
	return CalculateBackoff(attempt, cfg.InitialDelay, cfg.MaxDelay, cfg.BackoffFactor)
}

// CalculateBackoff calculates the backoff duration for a given attempt.
func CalculateBackoff(attempt int, initialDelay, maxDelay time.Duration, factor float64) time.Duration {
	delay := float64(initialDelay) * math.Pow(factor, float64(attempt))
	if delay > float64(maxDelay) {
		delay = float64(maxDelay)
	}
	return time.Duration(delay)
}

// Sleep waits for d on clk or until ctx is done.
func Sleep(ctx context.Context, clk clock.Clock, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := clk.Timer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
