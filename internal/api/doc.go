// Marquee - Multi-Source Recommendation Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

/*
Package api exposes the recommendation orchestrator over HTTP using chi.

# Endpoints

	POST   /api/v1/recommendations                              recommend
	POST   /api/v1/recommendations/{recommendationID}/actions   record a user action
	GET    /api/v1/quality?source=&variant=&window=             quality snapshot
	GET    /api/v1/quality/compare?a=&b=&window=                A/B comparison (b is the baseline)
	GET    /api/v1/stats                                        orchestrator and event counters
	GET    /api/v1/resilience/breakers                          circuit breaker states
	POST   /api/v1/resilience/breakers/{name}/reset             force a breaker closed
	DELETE /api/v1/cache?user=                                  drop cached provider answers
	GET    /api/v1/health/live                                  liveness probe
	GET    /api/v1/health/ready                                 readiness probe
	GET    /metrics                                             Prometheus

The recommendation id used by the actions endpoint is the requestId of the
recommendation response. window accepts whole hours ("48") or a Go
duration ("36h").

# Response Format

Every endpoint except /metrics returns the same envelope:

	{
	  "status": "success",
	  "data": {...},
	  "metadata": {"timestamp": "2026-06-01T12:00:00Z", "query_time_ms": 42, "cached": false},
	  "error": {"code": "VALIDATION_ERROR", "message": "...", "details": {...}}
	}

Validation failures answer 400 VALIDATION_ERROR, actions for a
recommendation that was never served answer 404 NOT_FOUND, and provider
outages never surface as errors: the orchestrator degrades instead.

# Middleware

Request ids (X-Request-ID) and correlation ids are attached to the logging
context, panics are recovered, CORS is handled by go-chi/cors and rate
limits by go-chi/httprate, keyed by client IP.
*/
package api
