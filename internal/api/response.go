// Marquee - Multi-Source Recommendation Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package api

import "time"

// Response status values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Error codes returned in APIError.Code.
const (
	CodeValidation      = "VALIDATION_ERROR"
	CodeInvalidJSON     = "INVALID_JSON"
	CodeNotFound        = "NOT_FOUND"
	CodeRecommendation  = "RECOMMENDATION_ERROR"
	CodeTimeout         = "TIMEOUT"
	CodeQuality         = "QUALITY_ERROR"
	CodeEventRejected   = "EVENT_REJECTED"
	CodeServiceNotReady = "SERVICE_NOT_READY"
	CodeRateLimited     = "RATE_LIMIT_EXCEEDED"
	CodeInternal        = "INTERNAL_ERROR"
)

// APIResponse is the envelope every endpoint returns.
//
// Success:
//
//	{"status": "success", "data": {...}, "metadata": {"timestamp": "...", "query_time_ms": 12}}
//
// Error:
//
//	{"status": "error", "data": null, "metadata": {...}, "error": {"code": "VALIDATION_ERROR", "message": "..."}}
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata describes how the response was produced. QueryTimeMS is omitted
// for trivial endpoints; Cached is set when every provider answer came from
// the result cache.
type Metadata struct {
	Timestamp   time.Time `json:"timestamp"`
	QueryTimeMS int64     `json:"query_time_ms,omitempty"`
	Cached      bool      `json:"cached,omitempty"`
}

// APIError is the error member of the envelope.
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}
