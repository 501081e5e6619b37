// Marquee - Multi-Source Recommendation Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/tomtom215/marquee/internal/quality"
)

type snapshotQuery struct {
	Source  string `json:"source" validate:"omitempty,sourcekind"`
	Variant string `json:"variant" validate:"omitempty,max=64"`
}

type compareQuery struct {
	A string `json:"a" validate:"required,max=64"`
	B string `json:"b" validate:"required,max=64,nefield=A"`
}

// QualitySnapshot handles GET /api/v1/quality?source=&variant=&window=.
func (h *Handler) QualitySnapshot(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if h.analyzer == nil {
		respondError(w, http.StatusServiceUnavailable, CodeServiceNotReady, "Quality analysis is disabled", nil)
		return
	}

	q := r.URL.Query()
	params := snapshotQuery{Source: q.Get("source"), Variant: q.Get("variant")}
	if apiErr := validateRequest(&params); apiErr != nil {
		respondErrorDetails(w, http.StatusBadRequest, apiErr, nil)
		return
	}
	window, err := parseWindow(q.Get("window"))
	if err != nil {
		respondError(w, http.StatusBadRequest, CodeValidation, err.Error(), nil)
		return
	}

	snap, err := h.analyzer.Snapshot(r.Context(), quality.Query{Source: params.Source, Variant: params.Variant, Window: window})
	if err != nil {
		if errors.Is(err, quality.ErrInvalidQuery) {
			respondError(w, http.StatusBadRequest, CodeValidation, err.Error(), nil)
			return
		}
		respondError(w, http.StatusInternalServerError, CodeQuality, "Failed to compute quality snapshot", err)
		return
	}

	respondData(w, http.StatusOK, snap, start, false)
}

// QualityCompare handles GET /api/v1/quality/compare?a=&b=&window=. B is
// the baseline.
func (h *Handler) QualityCompare(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if h.analyzer == nil {
		respondError(w, http.StatusServiceUnavailable, CodeServiceNotReady, "Quality analysis is disabled", nil)
		return
	}

	q := r.URL.Query()
	params := compareQuery{A: q.Get("a"), B: q.Get("b")}
	if apiErr := validateRequest(&params); apiErr != nil {
		respondErrorDetails(w, http.StatusBadRequest, apiErr, nil)
		return
	}
	window, err := parseWindow(q.Get("window"))
	if err != nil {
		respondError(w, http.StatusBadRequest, CodeValidation, err.Error(), nil)
		return
	}

	cmp, err := h.analyzer.CompareVariants(r.Context(), params.A, params.B, window)
	if err != nil {
		respondError(w, http.StatusInternalServerError, CodeQuality, "Failed to compare variants", err)
		return
	}

	respondData(w, http.StatusOK, cmp, start, false)
}
