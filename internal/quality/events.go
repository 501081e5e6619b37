// Marquee - Multi-Source Recommendation Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package quality

import (
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/marquee/internal/recommend"
)

// ActionType is a user's reaction to a recommendation.
type ActionType string

// Action types.
const (
	ActionView         ActionType = "view"
	ActionAddWatchlist ActionType = "add_watchlist"
	ActionWatch        ActionType = "watch"
	ActionRate         ActionType = "rate"
	ActionDismiss      ActionType = "dismiss"
	ActionIgnore       ActionType = "ignore"
)

var actionTypes = []ActionType{ActionView, ActionAddWatchlist, ActionWatch, ActionRate, ActionDismiss, ActionIgnore}

// ActionTypes lists every valid action type.
func ActionTypes() []ActionType {
	return append([]ActionType(nil), actionTypes...)
}

// Valid reports whether a is a known action type.
func (a ActionType) Valid() bool {
	for _, t := range actionTypes {
		if a == t {
			return true
		}
	}
	return false
}

// Positive reports whether a counts towards session success.
func (a ActionType) Positive() bool {
	return a == ActionAddWatchlist || a == ActionWatch || a == ActionRate
}

// Engaged reports whether a counts as a click-through.
func (a ActionType) Engaged() bool {
	return a == ActionView || a.Positive()
}

// Errors returned by the event pipeline.
var (
	ErrUnknownRecommendation = errors.New("quality: unknown recommendation")
	ErrInvalidAction         = errors.New("quality: invalid action")
	ErrRecorderClosed        = errors.New("quality: recorder closed")
)

// RecommendationEvent records one recommendation shown to a user. Events
// are immutable once logged.
type RecommendationEvent struct {
	ID               string               `json:"id"`
	UserID           string               `json:"userId"`
	RecommendationID string               `json:"recommendationId"`
	ContentID        int64                `json:"contentId"`
	Source           recommend.SourceKind `json:"source"`
	Sources          recommend.SourceSet  `json:"sources"`
	Variant          string               `json:"variant,omitempty"`
	AIModel          string               `json:"aiModel,omitempty"`
	Score            float64              `json:"score"`
	Rank             int                  `json:"rank"`
	Emergency        bool                 `json:"emergency,omitempty"`
	Timestamp        time.Time            `json:"timestamp"`
}

// UserAction records a reaction to exactly one prior RecommendationEvent,
// identified by RecommendationID and ContentID.
type UserAction struct {
	ID               string     `json:"id"`
	UserID           string     `json:"userId" validate:"omitempty,max=128"`
	RecommendationID string     `json:"recommendationId" validate:"required,max=64"`
	ContentID        int64      `json:"contentId" validate:"required,gt=0"`
	ActionType       ActionType `json:"actionType" validate:"required,actiontype"`
	ActionValue      *float64   `json:"actionValue,omitempty" validate:"omitempty,gte=0,lte=10"`
	TimeToActionMs   *int64     `json:"timeToActionMs,omitempty" validate:"omitempty,gte=0"`
	Timestamp        time.Time  `json:"timestamp"`
}

// Validate checks the invariants the HTTP layer cannot express with tags.
func (a *UserAction) Validate() error {
	if !a.ActionType.Valid() {
		return fmt.Errorf("%w: unknown action type %q", ErrInvalidAction, a.ActionType)
	}
	if a.ActionType == ActionRate && a.ActionValue == nil {
		return fmt.Errorf("%w: rate requires actionValue", ErrInvalidAction)
	}
	if a.ActionValue != nil && (*a.ActionValue < 0 || *a.ActionValue > 10) {
		return fmt.Errorf("%w: actionValue %v outside 0..10", ErrInvalidAction, *a.ActionValue)
	}
	if a.RecommendationID == "" || a.ContentID == 0 {
		return fmt.Errorf("%w: recommendationId and contentId are required", ErrInvalidAction)
	}
	return nil
}

// EventKind tells the two logs apart.
type EventKind string

// Event kinds.
const (
	KindRecommendation EventKind = "recommendation"
	KindAction         EventKind = "action"
)

// Event is one entry of either log.
type Event struct {
	Kind           EventKind            `json:"kind"`
	Recommendation *RecommendationEvent `json:"recommendation,omitempty"`
	Action         *UserAction          `json:"action,omitempty"`
}

// ID returns the wrapped event's id.
func (e *Event) ID() string {
	switch {
	case e.Recommendation != nil:
		return e.Recommendation.ID
	case e.Action != nil:
		return e.Action.ID
	}
	return ""
}

// Time returns the wrapped event's timestamp.
func (e *Event) Time() time.Time {
	switch {
	case e.Recommendation != nil:
		return e.Recommendation.Timestamp
	case e.Action != nil:
		return e.Action.Timestamp
	}
	return time.Time{}
}

// UserID returns the user the event belongs to.
func (e *Event) UserID() string {
	switch {
	case e.Recommendation != nil:
		return e.Recommendation.UserID
	case e.Action != nil:
		return e.Action.UserID
	}
	return ""
}

// impressionKey identifies one shown recommendation.
func impressionKey(recommendationID string, contentID int64) string {
	return fmt.Sprintf("%s/%d", recommendationID, contentID)
}
