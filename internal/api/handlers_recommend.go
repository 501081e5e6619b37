// Marquee - Multi-Source Recommendation Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/marquee/internal/logging"
	"github.com/tomtom215/marquee/internal/quality"
	"github.com/tomtom215/marquee/internal/recommend"
)

// Recommend handles POST /api/v1/recommendations.
func (h *Handler) Recommend(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req recommend.Request
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, CodeInvalidJSON, "Invalid request body: "+err.Error(), nil)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondErrorDetails(w, http.StatusBadRequest, apiErr, nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	resp, err := h.recommender.Recommend(ctx, req)
	switch {
	case errors.Is(err, recommend.ErrInvalidRequest):
		respondError(w, http.StatusBadRequest, CodeValidation, err.Error(), nil)
		return
	case errors.Is(err, context.DeadlineExceeded):
		respondError(w, http.StatusGatewayTimeout, CodeTimeout, "Recommendation request timed out", err)
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, CodeRecommendation, "Failed to generate recommendations", err)
		return
	}

	logging.Ctx(r.Context()).Debug().
		Str("recommendation_id", resp.RequestID).
		Str("variant", resp.Variant).
		Int("results", resp.TotalRecommendations).
		Bool("emergency", resp.PerformanceMetrics.Emergency).
		Msg("recommendations served")

	respondData(w, http.StatusOK, resp, start, resp.PerformanceMetrics.CacheHit)
}

// actionRequest is the body of POST /recommendations/{recommendationID}/actions.
// The recommendation id comes from the path.
type actionRequest struct {
	UserID         string             `json:"userId" validate:"omitempty,max=128"`
	ContentID      int64              `json:"contentId" validate:"required,gt=0"`
	ActionType     quality.ActionType `json:"actionType" validate:"required,actiontype"`
	ActionValue    *float64           `json:"actionValue,omitempty" validate:"omitempty,gte=0,lte=10"`
	TimeToActionMs *int64             `json:"timeToActionMs,omitempty" validate:"omitempty,gte=0"`
}

// RecordAction handles POST /api/v1/recommendations/{recommendationID}/actions.
func (h *Handler) RecordAction(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if h.recorder == nil {
		respondError(w, http.StatusServiceUnavailable, CodeServiceNotReady, "Event recording is disabled", nil)
		return
	}

	recommendationID := chi.URLParam(r, "recommendationID")
	if recommendationID == "" || len(recommendationID) > 64 {
		respondError(w, http.StatusBadRequest, CodeValidation, "Invalid recommendation id", nil)
		return
	}

	var body actionRequest
	if err := decodeJSON(w, r, &body); err != nil {
		respondError(w, http.StatusBadRequest, CodeInvalidJSON, "Invalid request body: "+err.Error(), nil)
		return
	}
	if apiErr := validateRequest(&body); apiErr != nil {
		respondErrorDetails(w, http.StatusBadRequest, apiErr, nil)
		return
	}

	action, err := h.recorder.RecordAction(r.Context(), quality.UserAction{
		UserID:           body.UserID,
		RecommendationID: recommendationID,
		ContentID:        body.ContentID,
		ActionType:       body.ActionType,
		ActionValue:      body.ActionValue,
		TimeToActionMs:   body.TimeToActionMs,
	})
	switch {
	case errors.Is(err, quality.ErrUnknownRecommendation):
		respondError(w, http.StatusNotFound, CodeNotFound, "No such recommendation was served", nil)
		return
	case errors.Is(err, quality.ErrInvalidAction):
		respondError(w, http.StatusBadRequest, CodeValidation, err.Error(), nil)
		return
	case err != nil:
		respondError(w, http.StatusServiceUnavailable, CodeEventRejected, "Action could not be recorded", err)
		return
	}

	respondData(w, http.StatusAccepted, action, start, false)
}
