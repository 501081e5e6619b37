// Marquee - Multi-Source Recommendation Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package resilience

import "errors"

// Provider failure taxonomy. Adapters wrap these with fmt.Errorf("...: %w")
// and callers test with errors.Is.
var (
	// ErrSourceUnavailable covers network failures, upstream 5xx responses and
	// soft timeouts.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrSourceMalformedResponse means the provider answered with something
	// that could not be parsed. Retrying does not help.
	ErrSourceMalformedResponse = errors.New("source returned a malformed response")

	// ErrAllFallbacksExhausted is returned when the primary and every
	// fallback failed. The returned error also wraps each underlying failure.
	ErrAllFallbacksExhausted = errors.New("all fallbacks exhausted")

	// ErrCircuitOpen marks a primary call skipped by an open breaker. It is
	// expected control flow rather than a fault.
	ErrCircuitOpen = errors.New("circuit open")
)
