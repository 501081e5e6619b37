// Marquee - Multi-Source Recommendation Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/tomtom215/marquee/internal/quality"
	"github.com/tomtom215/marquee/internal/recommend"
)

// CodeValidation is the API error code for rejected input.
const CodeValidation = "VALIDATION_ERROR"

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// FieldError describes one rejected field. Field is the JSON name.
type FieldError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Param   string `json:"param,omitempty"`
	Value   any    `json:"value,omitempty"`
	Message string `json:"message"`
}

func (e FieldError) Error() string { return e.Message }

// RequestValidationError collects every FieldError of one struct.
type RequestValidationError struct {
	Fields []FieldError
}

func (ve *RequestValidationError) Error() string {
	if len(ve.Fields) == 0 {
		return "validation failed"
	}
	msgs := make([]string, len(ve.Fields))
	for i := range ve.Fields {
		msgs[i] = ve.Fields[i].Message
	}
	return strings.Join(msgs, "; ")
}

// APIError is the envelope error shape; api.APIError is built from it.
type APIError struct {
	Code    string
	Message string
	Details map[string]any
}

// ToAPIError shapes the errors for the response envelope. One error carries
// its field and tag in Details; several are listed under Details["fields"].
func (ve *RequestValidationError) ToAPIError() *APIError {
	switch len(ve.Fields) {
	case 0:
		return &APIError{Code: CodeValidation, Message: "Validation failed"}
	case 1:
		fe := ve.Fields[0]
		return &APIError{
			Code:    CodeValidation,
			Message: fe.Message,
			Details: map[string]any{"field": fe.Field, "tag": fe.Tag, "value": fe.Value},
		}
	}

	fields := make([]map[string]any, len(ve.Fields))
	msgs := make([]string, len(ve.Fields))
	for i, fe := range ve.Fields {
		fields[i] = map[string]any{"field": fe.Field, "tag": fe.Tag, "message": fe.Message}
		msgs[i] = fe.Field + ": " + fe.Message
	}
	return &APIError{
		Code:    CodeValidation,
		Message: strings.Join(msgs, "; "),
		Details: map[string]any{"fields": fields},
	}
}

// GetValidator returns the shared validator with the Marquee tags
// registered:
//
//	sourcekind  ai, catalog, collaborative or trending
//	actiontype  one of quality.ActionTypes
func GetValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(jsonFieldName)

		// Registration only fails for an empty tag or nil func.
		_ = validate.RegisterValidation("sourcekind", func(fl validator.FieldLevel) bool {
			_, err := recommend.ParseSourceKind(fl.Field().String())
			return err == nil
		})
		_ = validate.RegisterValidation("actiontype", func(fl validator.FieldLevel) bool {
			return quality.ActionType(fl.Field().String()).Valid()
		})
	})
	return validate
}

func jsonFieldName(fld reflect.StructField) string {
	name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	return name
}

// ValidateStruct validates s. It returns nil when s is valid.
func ValidateStruct(s any) *RequestValidationError {
	err := GetValidator().Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &RequestValidationError{Fields: []FieldError{{Field: "unknown", Tag: "unknown", Message: err.Error()}}}
	}

	out := &RequestValidationError{Fields: make([]FieldError, len(fieldErrs))}
	for i, fe := range fieldErrs {
		out.Fields[i] = FieldError{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Param:   fe.Param(),
			Value:   fe.Value(),
			Message: message(fe),
		}
	}
	return out
}

var (
	sourceKindList = func() string {
		kinds := recommend.AllSourceKinds()
		names := make([]string, len(kinds))
		for i, k := range kinds {
			names[i] = k.String()
		}
		return strings.Join(names, ", ")
	}()

	actionTypeList = func() string {
		types := quality.ActionTypes()
		names := make([]string, len(types))
		for i, t := range types {
			names[i] = string(t)
		}
		return strings.Join(names, ", ")
	}()
)

// message renders fe for API clients.
func message(fe validator.FieldError) string {
	field, param := fe.Field(), fe.Param()
	text := fe.Kind() == reflect.String

	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "uuid":
		return field + " must be a valid UUID"
	case "sourcekind":
		return field + " must be one of: " + sourceKindList
	case "actiontype":
		return field + " must be one of: " + actionTypeList
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, param)
	case "nefield":
		return fmt.Sprintf("%s must differ from %s", field, param)
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, param)
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, param)
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, param)
	case "lt":
		return fmt.Sprintf("%s must be less than %s", field, param)
	case "min":
		if text {
			return fmt.Sprintf("%s must be at least %s characters", field, param)
		}
		return fmt.Sprintf("%s must be at least %s", field, param)
	case "max":
		if text {
			return fmt.Sprintf("%s must be at most %s characters", field, param)
		}
		return fmt.Sprintf("%s must be at most %s", field, param)
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
