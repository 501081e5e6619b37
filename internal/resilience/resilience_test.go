// Marquee - Multi-Source Recommendation Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/tomtom215/marquee/internal/metrics"
)

var errBoom = errors.New("boom")

func newTestRegistry(cooldown time.Duration) *Registry {
	return NewRegistry(Settings{FailureThreshold: 5, Cooldown: cooldown}, zerolog.Nop())
}

func failing(calls *atomic.Int32) func(context.Context) (int, error) {
	return func(context.Context) (int, error) {
		if calls != nil {
			calls.Add(1)
		}
		return 0, fmt.Errorf("%w: %w", ErrSourceUnavailable, errBoom)
	}
}

func succeeding(v int) func(context.Context) (int, error) {
	return func(context.Context) (int, error) { return v, nil }
}

func TestBreakerTransitions(t *testing.T) {
	t.Parallel()

	cooldown := 50 * time.Millisecond
	reg := newTestRegistry(cooldown)
	ctx := context.Background()
	name := "transitions"

	for i := 0; i < 4; i++ {
		_, _ = ExecuteWithFallback(ctx, reg, name, failing(nil))
		if reg.IsCircuitOpen(name) {
			t.Fatalf("breaker opened after %d failures, want 5", i+1)
		}
	}

	_, _ = ExecuteWithFallback(ctx, reg, name, failing(nil))
	if !reg.IsCircuitOpen(name) {
		t.Fatal("breaker should be open after 5 consecutive failures")
	}
	if st := reg.Status(name); st.FailureCount != 5 || st.LastFailure == nil {
		t.Errorf("status = %+v, want FailureCount 5 and LastFailure set", st)
	}

	time.Sleep(cooldown + 20*time.Millisecond)
	if got := reg.State(name); got != StateHalfOpen {
		t.Fatalf("state after cooldown = %q, want half-open", got)
	}

	v, err := ExecuteWithFallback(ctx, reg, name, succeeding(7))
	if err != nil || v != 7 {
		t.Fatalf("half-open trial = %v, %v; want 7, nil", v, err)
	}
	if got := reg.State(name); got != StateClosed {
		t.Errorf("state after successful trial = %q, want closed", got)
	}
	if st := reg.Status(name); st.FailureCount != 0 {
		t.Errorf("FailureCount = %d after half-open closed, want 0", st.FailureCount)
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	t.Parallel()

	cooldown := 40 * time.Millisecond
	reg := newTestRegistry(cooldown)
	ctx := context.Background()
	name := "reopen"

	for i := 0; i < 5; i++ {
		_, _ = ExecuteWithFallback(ctx, reg, name, failing(nil))
	}
	time.Sleep(cooldown + 20*time.Millisecond)

	_, _ = ExecuteWithFallback(ctx, reg, name, failing(nil))
	if !reg.IsCircuitOpen(name) {
		t.Fatal("failure while half-open should reopen the breaker")
	}
	if st := reg.Status(name); st.FailureCount != 6 {
		t.Errorf("FailureCount = %d, want 6 (monotonic until a half-open success)", st.FailureCount)
	}
}

func TestSuccessResetsConsecutiveFailures(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry(time.Minute)
	ctx := context.Background()
	name := "interleaved"

	for round := 0; round < 3; round++ {
		for i := 0; i < 4; i++ {
			_, _ = ExecuteWithFallback(ctx, reg, name, failing(nil))
		}
		_, _ = ExecuteWithFallback(ctx, reg, name, succeeding(1))
	}
	if reg.IsCircuitOpen(name) {
		t.Error("non-consecutive failures should not open the breaker")
	}
	if st := reg.Status(name); st.FailureCount != 12 {
		t.Errorf("FailureCount = %d, want 12", st.FailureCount)
	}
}

func TestOpenBreakerSkipsPrimary(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry(time.Minute)
	ctx := context.Background()
	name := "skip"

	var calls atomic.Int32
	for i := 0; i < 5; i++ {
		_, _ = ExecuteWithFallback(ctx, reg, name, failing(&calls))
	}
	calls.Store(0)

	res, err := Execute(ctx, reg, Call[int]{
		Name:    name,
		Primary: failing(&calls),
		Fallbacks: []Fallback[int]{
			{Name: "broken", Fn: failing(nil)},
			{Name: "static", Fn: succeeding(42)},
			{Name: "unused", Fn: succeeding(99)},
		},
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if calls.Load() != 0 {
		t.Errorf("primary was called %d times while open", calls.Load())
	}
	if res.Value != 42 || res.Served != "static" || !res.Degraded {
		t.Errorf("result = %+v, want value 42 served by static", res)
	}
	if res.Attempts != 0 {
		t.Errorf("Attempts = %d, want 0", res.Attempts)
	}
	if !errors.Is(res.PrimaryErr, ErrCircuitOpen) {
		t.Errorf("PrimaryErr = %v, want ErrCircuitOpen", res.PrimaryErr)
	}
}

func TestFallbackExhaustion(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry(time.Minute)
	malformed := func(context.Context) (int, error) {
		return 0, fmt.Errorf("%w: bad json", ErrSourceMalformedResponse)
	}

	_, err := ExecuteWithFallback(context.Background(), reg, "exhausted", failing(nil), malformed, failing(nil))
	if !errors.Is(err, ErrAllFallbacksExhausted) {
		t.Fatalf("error = %v, want ErrAllFallbacksExhausted", err)
	}
	if !errors.Is(err, ErrSourceMalformedResponse) {
		t.Error("exhaustion error should wrap the underlying fallback errors")
	}
	if !errors.Is(err, errBoom) {
		t.Error("exhaustion error should wrap the primary error")
	}
}

func TestPrimarySuccess(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry(time.Minute)
	res, err := Execute(context.Background(), reg, Call[[]string]{
		Name:    "primary-ok",
		Primary: func(context.Context) ([]string, error) { return []string{"a"}, nil },
		Fallbacks: []Fallback[[]string]{
			{Name: "never", Fn: func(context.Context) ([]string, error) {
				t.Error("fallback should not run")
				return nil, nil
			}},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Served != ServedByPrimary || res.Degraded || len(res.Value) != 1 || res.Attempts != 1 {
		t.Errorf("result = %+v", res)
	}
}

func TestRetryPolicy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		policy       RetryPolicy
		err          error
		wantAttempts int32
	}{
		{"no retry", NoRetry(), errBoom, 1},
		{"retries transient errors", RetryPolicy{MaxAttempts: 3}, errBoom, 3},
		{"skips malformed responses", RetryPolicy{MaxAttempts: 3}, ErrSourceMalformedResponse, 1},
		{"custom predicate", RetryPolicy{MaxAttempts: 4, Retryable: func(error) bool { return false }}, errBoom, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			reg := newTestRegistry(time.Minute)
			var calls atomic.Int32
			res, err := Execute(context.Background(), reg, Call[int]{
				Name:  "retry",
				Retry: tt.policy,
				Primary: func(context.Context) (int, error) {
					calls.Add(1)
					return 0, tt.err
				},
			})
			if !errors.Is(err, ErrAllFallbacksExhausted) {
				t.Fatalf("error = %v", err)
			}
			if calls.Load() != tt.wantAttempts || int32(res.Attempts) != tt.wantAttempts {
				t.Errorf("attempts = %d (reported %d), want %d", calls.Load(), res.Attempts, tt.wantAttempts)
			}
			// Retries inside one invocation count as a single breaker failure.
			if st := reg.Status("retry"); st.FailureCount != 1 {
				t.Errorf("FailureCount = %d, want 1", st.FailureCount)
			}
		})
	}
}

func TestRetryEventuallySucceeds(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry(time.Minute)
	var calls atomic.Int32
	res, err := Execute(context.Background(), reg, Call[int]{
		Name:  "flaky",
		Retry: RetryPolicy{MaxAttempts: 3, Backoff: ExponentialBackoff(time.Millisecond, 5*time.Millisecond)},
		Primary: func(context.Context) (int, error) {
			if calls.Add(1) < 3 {
				return 0, errBoom
			}
			return 3, nil
		},
	})
	if err != nil || res.Value != 3 || res.Attempts != 3 {
		t.Errorf("result = %+v, err = %v", res, err)
	}
	if reg.Status("flaky").FailureCount != 0 {
		t.Error("a successful retry should not record a breaker failure")
	}
}

func TestExponentialBackoff(t *testing.T) {
	t.Parallel()

	backoff := ExponentialBackoff(100*time.Millisecond, time.Second)
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond, 800 * time.Millisecond, time.Second, time.Second}
	for i, w := range want {
		if got := backoff(i + 1); got != w {
			t.Errorf("backoff(%d) = %v, want %v", i+1, got, w)
		}
	}
}

func TestSoftTimeout(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry(time.Minute)
	finished := make(chan struct{})

	start := time.Now()
	res, err := Execute(context.Background(), reg, Call[int]{
		Name:        "slow",
		SoftTimeout: 20 * time.Millisecond,
		Primary: func(ctx context.Context) (int, error) {
			defer close(finished)
			time.Sleep(100 * time.Millisecond)
			// The detached context is never canceled by the caller giving up.
			return 1, ctx.Err()
		},
		Fallbacks: []Fallback[int]{{Name: "fast", Fn: succeeding(2)}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed >= 100*time.Millisecond {
		t.Errorf("caller waited %v, soft timeout should cut it short", elapsed)
	}
	if res.Value != 2 || !errors.Is(res.PrimaryErr, ErrSourceUnavailable) {
		t.Errorf("result = %+v", res)
	}
	if reg.Status("slow").FailureCount != 1 {
		t.Error("soft timeout should count as a breaker failure")
	}

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("background work did not run to completion")
	}
}

func TestCallerCancellationIsNotAFailure(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry(time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Execute(ctx, reg, Call[int]{
		Name:    "canceled",
		Primary: func(ctx context.Context) (int, error) { return 0, ctx.Err() },
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if reg.Status("canceled").FailureCount != 0 {
		t.Error("cancellation should not count against the breaker")
	}
}

func TestResetAndSnapshot(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry(time.Minute)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, _ = ExecuteWithFallback(ctx, reg, "b-open", failing(nil))
	}
	_, _ = ExecuteWithFallback(ctx, reg, "a-closed", succeeding(1))

	snap := reg.Snapshot()
	if len(snap) != 2 || snap[0].Name != "a-closed" || snap[1].State != StateOpen {
		t.Fatalf("snapshot = %+v", snap)
	}

	if !reg.Reset("b-open") {
		t.Fatal("Reset() should report an existing breaker")
	}
	if reg.IsCircuitOpen("b-open") {
		t.Error("breaker should be closed after Reset")
	}
	if reg.Reset("missing") {
		t.Error("Reset() of an unknown breaker should return false")
	}
	if got := testutil.ToFloat64(metrics.CircuitBreakerState.WithLabelValues("b-open")); got != 0 {
		t.Errorf("state gauge = %v after reset, want 0", got)
	}
}

func TestUnknownBreakerIsClosed(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry(time.Minute)
	if reg.IsCircuitOpen("never-used") || reg.State("never-used") != StateClosed {
		t.Error("unknown breakers should report closed")
	}
}

func TestRegisterListsIdleBreakers(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry(time.Minute)
	reg.Register("source.catalog", "source.ai", "source.ai")

	snap := reg.Snapshot()
	if len(snap) != 2 || snap[0].Name != "source.ai" || snap[1].Name != "source.catalog" {
		t.Fatalf("snapshot = %+v", snap)
	}
	for _, s := range snap {
		if s.State != StateClosed {
			t.Errorf("%s state = %s, want closed", s.Name, s.State)
		}
	}
}
