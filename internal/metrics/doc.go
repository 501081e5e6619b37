// Marquee - Multi-Source Recommendation Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

/*
Package metrics provides the Prometheus instruments exported at /metrics.

All collectors are registered with the default registry through promauto at
package init, so callers only import the package and record:

	metrics.RecordSource("ai", "primary", elapsed)
	metrics.CacheHits.WithLabelValues("sources").Inc()

# Available Metrics

API:
  - marquee_api_requests_total{method,endpoint,status}
  - marquee_api_request_duration_seconds{method,endpoint}
  - marquee_api_active_requests

Orchestrator and sources:
  - marquee_recommend_requests_total{variant,outcome}
  - marquee_recommend_duration_seconds{variant}
  - marquee_recommend_results
  - marquee_source_duration_seconds{source}
  - marquee_source_outcomes_total{source,outcome}

Resilience:
  - marquee_circuit_breaker_state{name} (0=closed, 1=half-open, 2=open)
  - marquee_circuit_breaker_requests_total{name,result}
  - marquee_circuit_breaker_consecutive_failures{name}
  - marquee_circuit_breaker_state_transitions_total{name,from_state,to_state}
  - marquee_fallback_invocations_total{name,step,result}

Cache:
  - marquee_cache_hits_total{cache_type}
  - marquee_cache_misses_total{cache_type}
  - marquee_cache_entries{cache_type}
  - marquee_cache_evictions_total{cache_type,reason}

Event pipeline and quality:
  - marquee_event_queue_depth
  - marquee_events_dropped_total{policy}
  - marquee_events_written_total{kind}
  - marquee_event_write_errors_total
  - marquee_event_flush_duration_seconds
  - marquee_quality_score{source,variant}

AI provider:
  - marquee_ai_completions_total{model,status}
  - marquee_ai_completion_duration_seconds

Label values must come from closed sets (source kinds, breaker names, fixed
outcome strings). Never label with user or content identifiers.
*/
package metrics
