// Marquee - Multi-Source Recommendation Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package api

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/tomtom215/marquee/internal/quality"
	"github.com/tomtom215/marquee/internal/recommend"
	"github.com/tomtom215/marquee/internal/resilience"
)

// Recommender is the orchestrator surface the API uses.
type Recommender interface {
	Recommend(ctx context.Context, req recommend.Request) (*recommend.Response, error)
	Stats() recommend.Stats
	Breakers() []resilience.BreakerStatus
	ResetBreaker(name string) bool
	InvalidateCache(userID string) int
}

// ActionRecorder records user reactions to served recommendations.
type ActionRecorder interface {
	RecordAction(ctx context.Context, a quality.UserAction) (*quality.UserAction, error)
	Stats() quality.RecorderStats
}

// QualityAnalyzer computes quality snapshots and A/B comparisons.
type QualityAnalyzer interface {
	Snapshot(ctx context.Context, q quality.Query) (quality.QualitySnapshot, error)
	CompareVariants(ctx context.Context, variantA, variantB string, window time.Duration) (quality.VariantComparison, error)
}

// ReadinessCheck reports whether a dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

// Handler serves the HTTP API.
type Handler struct {
	recommender    Recommender
	recorder       ActionRecorder
	analyzer       QualityAnalyzer
	checks         map[string]ReadinessCheck
	requestTimeout time.Duration
	startTime      time.Time

	// draining is set once shutdown begins.
	draining atomic.Bool
}

// HandlerConfig wires the handler's dependencies. Recorder and Analyzer
// may be nil, in which case their endpoints answer 503.
type HandlerConfig struct {
	Recommender Recommender
	Recorder    ActionRecorder
	Analyzer    QualityAnalyzer

	// Checks are run by the readiness probe.
	Checks map[string]ReadinessCheck

	// RequestTimeout bounds one recommendation request. Default: 15s
	RequestTimeout time.Duration
}

// NewHandler creates a handler.
func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 15 * time.Second
	}
	return &Handler{
		recommender:    cfg.Recommender,
		recorder:       cfg.Recorder,
		analyzer:       cfg.Analyzer,
		checks:         cfg.Checks,
		requestTimeout: cfg.RequestTimeout,
		startTime:      time.Now(),
	}
}

// BeginDrain makes the readiness probe answer 503 so load balancers stop
// routing new requests while in-flight ones finish.
func (h *Handler) BeginDrain() {
	h.draining.Store(true)
}
