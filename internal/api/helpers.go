// Marquee - Multi-Source Recommendation Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/marquee/internal/logging"
	"github.com/tomtom215/marquee/internal/validation"
)

// maxBodyBytes bounds request bodies. A recommendation request carries the
// whole available pool, so this is generous.
const maxBodyBytes = 4 << 20

// maxWindow bounds the quality window query parameter.
const maxWindow = 90 * 24 * time.Hour

// sanitizeLogValue removes control characters from strings to prevent log injection attacks.
func sanitizeLogValue(s string) string {
	var result strings.Builder
	result.Grow(len(s))
	for _, r := range s {
		if r < 0x20 || r == 0x7F {
			result.WriteString(fmt.Sprintf("\\x%02x", r))
		} else {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// respondJSON sends a JSON response with proper headers
func respondJSON(w http.ResponseWriter, status int, response *APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")

	data, err := json.Marshal(response)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Error().Err(err).Msg("Failed to write JSON response")
	}
}

// respondData sends a success envelope.
func respondData(w http.ResponseWriter, status int, data interface{}, start time.Time, cached bool) {
	respondJSON(w, status, &APIResponse{
		Status: StatusSuccess,
		Data:   data,
		Metadata: Metadata{
			Timestamp:   time.Now(),
			QueryTimeMS: time.Since(start).Milliseconds(),
			Cached:      cached,
		},
	})
}

// respondError sends an error response. err is logged, never returned to
// the client.
func respondError(w http.ResponseWriter, status int, code, message string, err error) {
	respondErrorDetails(w, status, &APIError{Code: code, Message: message}, err)
}

func respondErrorDetails(w http.ResponseWriter, status int, apiErr *APIError, err error) {
	if err != nil {
		logging.Error().Str("code", sanitizeLogValue(apiErr.Code)).Str("error", sanitizeLogValue(err.Error())).Msg("API Error")
	}

	respondJSON(w, status, &APIResponse{
		Status:   StatusError,
		Data:     nil,
		Metadata: Metadata{Timestamp: time.Now()},
		Error:    apiErr,
	})
}

// validateRequest validates a struct using go-playground/validator.
// Returns nil if validation passes.
func validateRequest(v interface{}) *APIError {
	validationErr := validation.ValidateStruct(v)
	if validationErr == nil {
		return nil
	}

	apiErr := validationErr.ToAPIError()
	return &APIError{
		Code:    apiErr.Code,
		Message: apiErr.Message,
		Details: apiErr.Details,
	}
}

// decodeJSON reads a bounded JSON body into dst. Unknown fields are
// rejected so typos in filter names do not pass silently.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return err
	}
	return nil
}

// parseWindow parses a window query parameter. Plain integers are hours;
// anything else must be a Go duration ("36h", "90m"). Empty returns zero.
func parseWindow(value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	var d time.Duration
	if hours, err := strconv.Atoi(value); err == nil {
		d = time.Duration(hours) * time.Hour
	} else {
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("window %q is neither hours nor a duration", value)
		}
		d = parsed
	}
	if d <= 0 || d > maxWindow {
		return 0, fmt.Errorf("window must be positive and at most %s", maxWindow)
	}
	return d, nil
}
