// Marquee - Multi-Source Recommendation Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/marquee/internal/logging"
	"github.com/tomtom215/marquee/internal/quality"
	"github.com/tomtom215/marquee/internal/recommend"
)

// ListBreakers handles GET /api/v1/resilience/breakers.
func (h *Handler) ListBreakers(w http.ResponseWriter, _ *http.Request) {
	respondData(w, http.StatusOK, map[string]interface{}{
		"breakers": h.recommender.Breakers(),
	}, time.Now(), false)
}

// ResetBreaker handles POST /api/v1/resilience/breakers/{name}/reset.
// name may be a breaker name ("source.ai") or a provider name ("ai").
func (h *Handler) ResetBreaker(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !h.recommender.ResetBreaker(name) {
		respondError(w, http.StatusNotFound, CodeNotFound, "Unknown circuit breaker", nil)
		return
	}

	logging.Ctx(r.Context()).Info().Str("breaker", sanitizeLogValue(name)).Msg("circuit breaker reset via API")
	respondData(w, http.StatusOK, map[string]interface{}{
		"breaker": name,
		"reset":   true,
	}, time.Now(), false)
}

// InvalidateCache handles DELETE /api/v1/cache with an optional ?user=.
func (h *Handler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	user := r.URL.Query().Get("user")
	if len(user) > 128 {
		respondError(w, http.StatusBadRequest, CodeValidation, "user must be at most 128 characters", nil)
		return
	}

	removed := h.recommender.InvalidateCache(user)
	respondData(w, http.StatusOK, map[string]interface{}{
		"user":    user,
		"removed": removed,
	}, time.Now(), false)
}

// statsResponse combines orchestrator and event pipeline counters.
type statsResponse struct {
	Orchestrator recommend.Stats        `json:"orchestrator"`
	Events       *quality.RecorderStats `json:"events,omitempty"`
	Uptime       float64                `json:"uptime_seconds"`
}

// Stats handles GET /api/v1/stats.
func (h *Handler) Stats(w http.ResponseWriter, _ *http.Request) {
	out := statsResponse{
		Orchestrator: h.recommender.Stats(),
		Uptime:       time.Since(h.startTime).Seconds(),
	}
	if h.recorder != nil {
		st := h.recorder.Stats()
		out.Events = &st
	}
	respondData(w, http.StatusOK, out, time.Now(), false)
}
