// Marquee - Multi-Source Recommendation Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package api

import (
	"context"
	"net/http"
	"sort"
	"time"
)

// readinessTimeout bounds all readiness checks together.
const readinessTimeout = 2 * time.Second

// HealthLive handles GET /api/v1/health/live. It only proves the process
// is serving HTTP.
func (h *Handler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, &APIResponse{
		Status: StatusSuccess,
		Data: map[string]interface{}{
			"alive":  true,
			"uptime": time.Since(h.startTime).Seconds(),
		},
		Metadata: Metadata{Timestamp: time.Now()},
	})
}

// HealthReady handles GET /api/v1/health/ready. It answers 503 when any
// readiness check fails or the server is draining. Provider outages do not make the service unready;
// the emergency list still answers.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	ready := true
	checks := make(map[string]string, len(names))
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			ready = false
			checks[name] = err.Error()
			continue
		}
		checks[name] = "ok"
	}

	statusCode := http.StatusOK
	status := "ready"
	switch {
	case h.draining.Load():
		ready = false
		statusCode = http.StatusServiceUnavailable
		status = "draining"
	case !ready:
		statusCode = http.StatusServiceUnavailable
		status = "not_ready"
	}

	respondJSON(w, statusCode, &APIResponse{
		Status: status,
		Data: map[string]interface{}{
			"ready_to_serve": ready,
			"checks":         checks,
			"breakers":       h.recommender.Breakers(),
			"uptime":         time.Since(h.startTime).Seconds(),
		},
		Metadata: Metadata{Timestamp: time.Now()},
	})
}
