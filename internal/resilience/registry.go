// Marquee - Multi-Source Recommendation Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package resilience wraps provider calls in per-operation circuit breakers
// and ordered fallback chains.
//
// A Registry owns one sony/gobreaker breaker per operation name, created on
// first use. Execute runs the primary through that breaker (with retry and a
// soft timeout) and walks the fallbacks when the primary is skipped or fails:
//
//	reg := resilience.NewRegistry(resilience.DefaultSettings(), logger)
//	res, err := resilience.Execute(ctx, reg, resilience.Call[[]Candidate]{
//	    Name:      "source.ai",
//	    Primary:   scorer.Score,
//	    Fallbacks: []resilience.Fallback[[]Candidate]{{Name: "heuristic", Fn: heuristic}},
//	})
//
// Breaker transitions:
//   - closed -> open after FailureThreshold consecutive failures
//   - open -> half-open once Cooldown has elapsed
//   - half-open -> closed on the next success, back to open on failure
package resilience

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/marquee/internal/metrics"
)

// Breaker states as reported by State and Status.
const (
	StateClosed   = "closed"
	StateHalfOpen = "half-open"
	StateOpen     = "open"
)

// Settings configures every breaker in a Registry.
type Settings struct {
	// FailureThreshold is the number of consecutive failures that opens the
	// breaker. Default: 5
	FailureThreshold uint32

	// Cooldown is how long an open breaker rejects calls before allowing a
	// half-open trial. Default: 60s
	Cooldown time.Duration

	// HalfOpenMaxRequests is the number of trial calls admitted while
	// half-open. Default: 1
	HalfOpenMaxRequests uint32
}

// DefaultSettings returns the production breaker settings.
func DefaultSettings() Settings {
	return Settings{
		FailureThreshold:    5,
		Cooldown:            60 * time.Second,
		HalfOpenMaxRequests: 1,
	}
}

// BreakerStatus is a point-in-time view of one breaker.
type BreakerStatus struct {
	Name                string     `json:"name"`
	State               string     `json:"state"`
	ConsecutiveFailures uint32     `json:"consecutive_failures"`
	FailureCount        int64      `json:"failure_count"`
	LastFailure         *time.Time `json:"last_failure,omitempty"`
}

type breaker struct {
	cb *gobreaker.CircuitBreaker[any]

	// failures is monotonic until a half-open breaker closes.
	failures    atomic.Int64
	lastFailure atomic.Int64 // unix nanoseconds, 0 = never
}

// Registry holds the breakers for a service instance. Inject one Registry
// per Orchestrator; tests create their own.
type Registry struct {
	mu       sync.Mutex
	settings Settings
	breakers map[string]*breaker
	logger   zerolog.Logger
}

// NewRegistry creates an empty registry. Zero settings fields take defaults.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewRegistry(settings Settings, logger zerolog.Logger) *Registry {
	defaults := DefaultSettings()
	if settings.FailureThreshold == 0 {
		settings.FailureThreshold = defaults.FailureThreshold
	}
	if settings.Cooldown <= 0 {
		settings.Cooldown = defaults.Cooldown
	}
	if settings.HalfOpenMaxRequests == 0 {
		settings.HalfOpenMaxRequests = defaults.HalfOpenMaxRequests
	}

	return &Registry{
		settings: settings,
		breakers: make(map[string]*breaker),
		logger:   logger.With().Str("component", "resilience").Logger(),
	}
}

// get returns the breaker for name, creating it on first use.
func (r *Registry) get(name string) *breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.breakers[name]; ok {
		return b
	}
	b := r.newBreaker(name)
	r.breakers[name] = b
	return b
}

// Register creates closed breakers for names that do not exist yet, so they
// show up in Snapshot before their first call.
func (r *Registry) Register(names ...string) {
	for _, name := range names {
		r.get(name)
	}
}

func (r *Registry) lookup(name string) (*breaker, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[name]
	return b, ok
}

func (r *Registry) newBreaker(name string) *breaker {
	b := &breaker{}
	threshold := r.settings.FailureThreshold

	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)
	metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(name).Set(0)

	b.cb = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: r.settings.HalfOpenMaxRequests,
		Interval:    0, // never clear counts while closed; only consecutive failures matter
		Timeout:     r.settings.Cooldown,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},

		// A caller that went away says nothing about provider health.
		IsExcluded: func(err error) bool {
			return errors.Is(err, context.Canceled)
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr, toStr := from.String(), to.String()

			event := r.logger.Info()
			if to == gobreaker.StateOpen {
				event = r.logger.Warn()
			}
			event.Str("breaker", name).Str("from", fromStr).Str("to", toStr).Msg("circuit breaker state transition")

			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()

			if to == gobreaker.StateClosed {
				metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(name).Set(0)
				if from == gobreaker.StateHalfOpen {
					b.failures.Store(0)
				}
			}
		},
	})
	return b
}

// run executes fn through the named breaker and keeps the failure bookkeeping
// in step with gobreaker's view of the outcome.
func (r *Registry) run(name string, fn func() (any, error)) (any, error) {
	b := r.get(name)

	result, err := b.cb.Execute(fn)
	switch {
	case err == nil:
		metrics.CircuitBreakerRequests.WithLabelValues(name, "success").Inc()
		metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(name).Set(0)
		return result, nil

	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.CircuitBreakerRequests.WithLabelValues(name, "rejected").Inc()
		return nil, ErrCircuitOpen

	case errors.Is(err, context.Canceled):
		return nil, err

	default:
		b.failures.Add(1)
		b.lastFailure.Store(time.Now().UnixNano())
		metrics.CircuitBreakerRequests.WithLabelValues(name, "failure").Inc()
		metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(name).Set(float64(b.cb.Counts().ConsecutiveFailures))
		return nil, err
	}
}

// IsCircuitOpen reports whether calls to name are currently being rejected.
// Unknown names are closed.
func (r *Registry) IsCircuitOpen(name string) bool {
	return r.State(name) == StateOpen
}

// State returns "closed", "open" or "half-open" for name.
func (r *Registry) State(name string) string {
	b, ok := r.lookup(name)
	if !ok {
		return StateClosed
	}
	return b.cb.State().String()
}

// Status returns the full status of one breaker.
func (r *Registry) Status(name string) BreakerStatus {
	b, ok := r.lookup(name)
	if !ok {
		return BreakerStatus{Name: name, State: StateClosed}
	}
	return b.status(name)
}

// Snapshot returns every known breaker sorted by name.
func (r *Registry) Snapshot() []BreakerStatus {
	r.mu.Lock()
	names := make([]string, 0, len(r.breakers))
	all := make(map[string]*breaker, len(r.breakers))
	for name, b := range r.breakers {
		names = append(names, name)
		all[name] = b
	}
	r.mu.Unlock()

	sort.Strings(names)
	out := make([]BreakerStatus, 0, len(names))
	for _, name := range names {
		out = append(out, all[name].status(name))
	}
	return out
}

// Reset discards the breaker for name so the next call starts closed with
// clean counters. It reports whether a breaker existed.
func (r *Registry) Reset(name string) bool {
	r.mu.Lock()
	_, ok := r.breakers[name]
	delete(r.breakers, name)
	r.mu.Unlock()

	if ok {
		metrics.CircuitBreakerState.WithLabelValues(name).Set(0)
		metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(name).Set(0)
		r.logger.Info().Str("breaker", name).Msg("circuit breaker reset")
	}
	return ok
}

func (b *breaker) status(name string) BreakerStatus {
	st := BreakerStatus{
		Name:                name,
		State:               b.cb.State().String(),
		ConsecutiveFailures: b.cb.Counts().ConsecutiveFailures,
		FailureCount:        b.failures.Load(),
	}
	if ns := b.lastFailure.Load(); ns != 0 {
		t := time.Unix(0, ns)
		st.LastFailure = &t
	}
	return st
}

// stateToFloat converts circuit breaker state to numeric value for metrics
func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
