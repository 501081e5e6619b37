// Marquee - Multi-Source Recommendation Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/marquee/internal/metrics"
)

// ServedByPrimary is Result.Served when the primary produced the value.
const ServedByPrimary = "primary"

// Fallback is one step of a fallback chain.
type Fallback[T any] struct {
	Name string
	Fn   func(ctx context.Context) (T, error)
}

// Call describes one resilience-wrapped invocation.
type Call[T any] struct {
	// Name selects the breaker, e.g. "source.ai".
	Name string

	Primary   func(ctx context.Context) (T, error)
	Fallbacks []Fallback[T]

	// Retry applies to the primary only. The zero value makes one attempt.
	Retry RetryPolicy

	// SoftTimeout bounds how long the caller waits for each primary attempt.
	// The attempt keeps running detached from ctx after the caller gives up.
	// Zero disables it.
	SoftTimeout time.Duration
}

// Result reports which step produced the value.
type Result[T any] struct {
	Value T

	// Served is ServedByPrimary or the name of the fallback that succeeded.
	Served string

	// Degraded is true when a fallback produced the value.
	Degraded bool

	// Attempts counts primary attempts; 0 when the breaker was open.
	Attempts int

	// PrimaryErr is why the primary did not serve, if it did not.
	PrimaryErr error
}

// Execute runs call.Primary through the named breaker and falls back in order
// when the breaker is open or the primary fails. The first successful step
// wins. When every step fails the error wraps ErrAllFallbacksExhausted and
// each individual failure.
func Execute[T any](ctx context.Context, reg *Registry, call Call[T]) (Result[T], error) {
	var res Result[T]

	if call.Primary != nil {
		out, err := reg.run(call.Name, func() (any, error) {
			v, attempts, err := retry(ctx, call.Retry, func(ctx context.Context) (T, error) {
				return softCall(ctx, call.SoftTimeout, call.Primary)
			})
			res.Attempts = attempts
			return v, err
		})
		if err == nil {
			if v, ok := out.(T); ok {
				res.Value = v
			}
			res.Served = ServedByPrimary
			return res, nil
		}
		if errors.Is(err, context.Canceled) {
			return res, err
		}
		res.PrimaryErr = err

		event := reg.logger.Debug()
		if !errors.Is(err, ErrCircuitOpen) {
			event = reg.logger.Warn()
		}
		event.Err(err).Str("operation", call.Name).Int("attempts", res.Attempts).Msg("primary failed, trying fallbacks")
	} else {
		res.PrimaryErr = fmt.Errorf("%s: no primary configured", call.Name)
	}

	errs := make([]error, 0, len(call.Fallbacks)+1)
	errs = append(errs, fmt.Errorf("primary: %w", res.PrimaryErr))

	for _, fb := range call.Fallbacks {
		v, err := fb.Fn(ctx)
		if err == nil {
			metrics.FallbackInvocations.WithLabelValues(call.Name, fb.Name, "success").Inc()
			res.Value = v
			res.Served = fb.Name
			res.Degraded = true
			return res, nil
		}
		metrics.FallbackInvocations.WithLabelValues(call.Name, fb.Name, "failure").Inc()
		errs = append(errs, fmt.Errorf("fallback %s: %w", fb.Name, err))
	}

	reg.logger.Error().Str("operation", call.Name).Int("fallbacks", len(call.Fallbacks)).Msg("all fallbacks exhausted")
	return res, fmt.Errorf("%w: %s: %w", ErrAllFallbacksExhausted, call.Name, errors.Join(errs...))
}

// ExecuteWithFallback is the short form of Execute: no retries, no soft
// timeout, fallbacks named by position.
//
//	v, err := resilience.ExecuteWithFallback(ctx, reg, "catalog.discover", discover, fromPool)
func ExecuteWithFallback[T any](ctx context.Context, reg *Registry, name string, primary func(context.Context) (T, error), fallbacks ...func(context.Context) (T, error)) (T, error) {
	call := Call[T]{Name: name, Primary: primary, Retry: NoRetry()}
	for i, fn := range fallbacks {
		call.Fallbacks = append(call.Fallbacks, Fallback[T]{Name: fmt.Sprintf("fallback-%d", i+1), Fn: fn})
	}
	res, err := Execute(ctx, reg, call)
	return res.Value, err
}

// softCall runs fn detached from ctx's cancellation and stops waiting after
// timeout. The detached work is allowed to finish on its own.
func softCall[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}

	type outcome struct {
		value T
		err   error
	}
	done := make(chan outcome, 1) // buffered so an abandoned call never blocks

	go func() {
		var o outcome
		defer func() {
			if p := recover(); p != nil {
				o.err = fmt.Errorf("%w: panic: %v", ErrSourceUnavailable, p)
			}
			done <- o
		}()
		o.value, o.err = fn(context.WithoutCancel(ctx))
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var zero T
	select {
	case o := <-done:
		return o.value, o.err
	case <-timer.C:
		return zero, fmt.Errorf("%w: no response within %s", ErrSourceUnavailable, timeout)
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
