// Marquee - Multi-Source Recommendation Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package resilience

import (
	"context"
	"errors"
	"time"
)

// RetryPolicy controls how often a primary call is attempted before the
// breaker records a failure.
type RetryPolicy struct {
	// MaxAttempts includes the first attempt. Values below 1 mean 1.
	MaxAttempts int

	// Backoff returns the wait before attempt n+1, given n >= 1. Nil means no wait.
	Backoff func(attempt int) time.Duration

	// Retryable reports whether err is worth another attempt. Nil uses DefaultRetryable.
	Retryable func(err error) bool
}

// NoRetry is a policy with a single attempt.
func NoRetry() RetryPolicy {
	return RetryPolicy{MaxAttempts: 1}
}

// DefaultRetryPolicy makes two attempts with a short exponential backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 2,
		Backoff:     ExponentialBackoff(200*time.Millisecond, 2*time.Second),
		Retryable:   DefaultRetryable,
	}
}

// ExponentialBackoff returns base, 2*base, 4*base, ... capped at maxDelay.
func ExponentialBackoff(base, maxDelay time.Duration) func(attempt int) time.Duration {
	return func(attempt int) time.Duration {
		if attempt < 1 {
			attempt = 1
		}
		delay := base
		for i := 1; i < attempt; i++ {
			delay *= 2
			if delay >= maxDelay || delay <= 0 {
				return maxDelay
			}
		}
		if delay > maxDelay {
			return maxDelay
		}
		return delay
	}
}

// DefaultRetryable retries everything except malformed responses, open
// circuits and context cancellation.
func DefaultRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrSourceMalformedResponse),
		errors.Is(err, ErrCircuitOpen),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	default:
		return true
	}
}

// retry runs fn according to p. It returns the last error and the number of
// attempts made. Waits between attempts stop early if ctx is canceled.
func retry[T any](ctx context.Context, p RetryPolicy, fn func(context.Context) (T, error)) (T, int, error) {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = DefaultRetryable
	}

	var (
		value T
		err   error
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return value, attempt - 1, ctxErr
		}

		value, err = fn(ctx)
		if err == nil {
			return value, attempt, nil
		}
		if attempt == attempts || !retryable(err) {
			return value, attempt, err
		}

		if p.Backoff != nil {
			timer := time.NewTimer(p.Backoff(attempt))
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return value, attempt, ctx.Err()
			}
		}
	}
	return value, attempts, err
}
