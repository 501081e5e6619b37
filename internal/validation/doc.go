// Marquee - Multi-Source Recommendation Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package validation provides struct validation using go-playground/validator v10.
//
// A single validator instance is shared by all callers; it caches struct
// metadata and is safe for concurrent use. Field errors are reported with
// their JSON names and converted to the API's VALIDATION_ERROR format.
//
// # Custom Tags
//
//   - sourcekind: one of ai, catalog, collaborative, trending
//   - actiontype: one of view, add_watchlist, watch, rate, dismiss, ignore
//
// # Usage
//
//	type qualityQuery struct {
//	    Source string `validate:"omitempty,sourcekind"`
//	}
//
//	if verr := validation.ValidateStruct(&q); verr != nil {
//	    apiErr := verr.ToAPIError()
//	    respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
//	    return
//	}
//
// Messages are rendered per tag (required, oneof, nefield, gte, lte, min,
// max and the custom tags above). Any other tag reads
// "<field> failed <tag> validation".
package validation
