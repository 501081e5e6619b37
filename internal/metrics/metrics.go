// Marquee - Multi-Source Recommendation Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marquee_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "marquee_api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "marquee_api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	// Orchestrator Metrics
	RecommendRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marquee_recommend_requests_total",
			Help: "Total number of recommendation requests",
		},
		[]string{"variant", "outcome"}, // outcome: "ok", "degraded", "emergency", "invalid"
	)

	RecommendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "marquee_recommend_duration_seconds",
			Help:    "End-to-end recommendation latency",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"variant"},
	)

	RecommendResults = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "marquee_recommend_results",
			Help:    "Number of recommendations returned per request",
			Buckets: []float64{0, 1, 5, 10, 20, 30, 50},
		},
	)

	// Source Metrics
	SourceDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "marquee_source_duration_seconds",
			Help:    "Latency of a recommendation source including fallbacks",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"source"},
	)

	SourceOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marquee_source_outcomes_total",
			Help: "Recommendation source outcomes",
		},
		[]string{"source", "outcome"}, // outcome: "primary", "cached", "fallback", "failed"
	)

	// Cache Metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marquee_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marquee_cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	CacheSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "marquee_cache_entries",
			Help: "Current number of cached entries",
		},
		[]string{"cache_type"},
	)

	CacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marquee_cache_evictions_total",
			Help: "Total number of cache evictions",
		},
		[]string{"cache_type", "reason"}, // reason: "expired", "capacity"
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "marquee_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marquee_circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerConsecutiveFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "marquee_circuit_breaker_consecutive_failures",
			Help: "Current number of consecutive failures",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marquee_circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	FallbackInvocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marquee_fallback_invocations_total",
			Help: "Fallback chain steps attempted",
		},
		[]string{"name", "step", "result"},
	)

	// Event Pipeline Metrics
	EventQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "marquee_event_queue_depth",
			Help: "Events waiting in the recorder queue",
		},
	)

	EventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marquee_events_dropped_total",
			Help: "Events discarded by queue back-pressure",
		},
		[]string{"policy"},
	)

	EventsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marquee_events_written_total",
			Help: "Events persisted by the recorder",
		},
		[]string{"kind"}, // "impression", "action"
	)

	EventWriteErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "marquee_event_write_errors_total",
			Help: "Failed batch writes to the event sink",
		},
	)

	EventFlushDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "marquee_event_flush_duration_seconds",
			Help:    "Duration of event batch flushes",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
	)

	// Quality Metrics
	QualityScore = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "marquee_quality_score",
			Help: "Most recently computed quality score",
		},
		[]string{"source", "variant"},
	)

	// AI Provider Metrics
	AICompletions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marquee_ai_completions_total",
			Help: "AI completion calls",
		},
		[]string{"model", "status"},
	)

	AICompletionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "marquee_ai_completion_duration_seconds",
			Help:    "AI completion latency",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30},
		},
	)
)

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks active API requests
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordRecommendation records one orchestrator run.
func RecordRecommendation(variant, outcome string, results int, duration time.Duration) {
	if variant == "" {
		variant = "default"
	}
	RecommendRequests.WithLabelValues(variant, outcome).Inc()
	RecommendDuration.WithLabelValues(variant).Observe(duration.Seconds())
	RecommendResults.Observe(float64(results))
}

// RecordSource records the latency and outcome of one source invocation.
func RecordSource(source, outcome string, duration time.Duration) {
	SourceDuration.WithLabelValues(source).Observe(duration.Seconds())
	SourceOutcomes.WithLabelValues(source, outcome).Inc()
}

// RecordAICompletion records a completion round trip.
func RecordAICompletion(model string, err error, duration time.Duration) {
	status := "success"
	if err != nil {
		status = "error"
	}
	AICompletions.WithLabelValues(model, status).Inc()
	AICompletionDuration.Observe(duration.Seconds())
}

// SetQualityScore publishes a snapshot's quality score.
func SetQualityScore(source, variant string, score float64) {
	if source == "" {
		source = "all"
	}
	if variant == "" {
		variant = "all"
	}
	QualityScore.WithLabelValues(source, variant).Set(score)
}
