// Marquee - Multi-Source Recommendation Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package quality

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/marquee/internal/recommend"
)

var recordedAt = time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

func testBatch(requestID, user string, ids ...int64) recommend.ImpressionBatch {
	recs := make([]recommend.MergedRecommendation, 0, len(ids))
	for i, id := range ids {
		recs = append(recs, recommend.MergedRecommendation{
			ContentID:  id,
			FinalScore: 0.9 - float64(i)*0.1,
			Primary:    recommend.SourceAI,
			Sources:    recommend.NewSourceSet(recommend.SourceAI, recommend.SourceCatalog),
			Rank:       i + 1,
		})
	}
	return recommend.ImpressionBatch{
		RequestID:       requestID,
		UserID:          user,
		Variant:         "a",
		Model:           "gpt-4o-mini",
		Recommendations: recs,
		Timestamp:       recordedAt,
	}
}

func newTestRecorder(cfg RecorderConfig, sink Sink, reader Reader) *Recorder {
	r := NewRecorder(cfg, sink, reader, zerolog.Nop())
	r.now = func() time.Time { return recordedAt.Add(3 * time.Second) }
	return r
}

func queuedContent(r *Recorder) []int64 {
	var ids []int64
	for {
		select {
		case e := <-r.queue:
			if e.Recommendation != nil {
				ids = append(ids, e.Recommendation.ContentID)
			}
		default:
			return ids
		}
	}
}

func TestRecorderDropOldest(t *testing.T) {
	t.Parallel()

	r := newTestRecorder(RecorderConfig{QueueSize: 2}, NewMemoryStore(), nil)
	r.RecordImpressions(context.Background(), testBatch("req-1", "u1", 1, 2, 3))

	stats := r.Stats()
	if stats.Enqueued != 3 || stats.Dropped != 1 {
		t.Errorf("stats = %+v, want 3 enqueued and 1 dropped", stats)
	}
	got := queuedContent(r)
	if len(got) != 2 || got[0] != 2 || got[1] != 3 {
		t.Errorf("queued = %v, want [2 3]", got)
	}
}

func TestRecorderBlockTimesOut(t *testing.T) {
	t.Parallel()

	r := newTestRecorder(RecorderConfig{QueueSize: 1, Policy: PolicyBlock, BlockTimeout: 20 * time.Millisecond}, NewMemoryStore(), nil)

	start := time.Now()
	r.RecordImpressions(context.Background(), testBatch("req-1", "u1", 1, 2))
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("returned after %v, want at least the block timeout", elapsed)
	}

	stats := r.Stats()
	if stats.Enqueued != 1 || stats.Dropped != 1 {
		t.Errorf("stats = %+v, want 1 enqueued and 1 dropped", stats)
	}
	if got := queuedContent(r); len(got) != 1 || got[0] != 1 {
		t.Errorf("queued = %v, want [1]", got)
	}
}

func TestRecorderBlockBoundsWholeBatch(t *testing.T) {
	t.Parallel()

	const timeout = 50 * time.Millisecond
	r := newTestRecorder(RecorderConfig{QueueSize: 1, Policy: PolicyBlock, BlockTimeout: timeout}, NewMemoryStore(), nil)

	ids := make([]int64, 21)
	for i := range ids {
		ids[i] = int64(i + 1)
	}
	start := time.Now()
	r.RecordImpressions(context.Background(), testBatch("req-1", "u1", ids...))
	elapsed := time.Since(start)

	if elapsed > 4*timeout {
		t.Errorf("RecordImpressions took %v for 21 recommendations, want about one block timeout (%v)", elapsed, timeout)
	}
	if s := r.Stats(); s.Enqueued != 1 || s.Dropped != 20 {
		t.Errorf("stats = %+v, want 1 enqueued and 20 dropped", s)
	}
}

func TestRecorderImpressionFields(t *testing.T) {
	t.Parallel()

	r := newTestRecorder(RecorderConfig{}, NewMemoryStore(), nil)
	r.RecordImpressions(context.Background(), testBatch("req-1", "u1", 42))

	e := <-r.queue
	rec := e.Recommendation
	if e.Kind != KindRecommendation || rec == nil {
		t.Fatalf("event = %+v", e)
	}
	if rec.ID == "" || rec.RecommendationID != "req-1" || rec.UserID != "u1" || rec.ContentID != 42 {
		t.Errorf("impression = %+v", rec)
	}
	if rec.AIModel != "gpt-4o-mini" || rec.Variant != "a" || rec.Rank != 1 || !rec.Timestamp.Equal(recordedAt) {
		t.Errorf("impression = %+v", rec)
	}
}

func TestRecorderRecordAction(t *testing.T) {
	t.Parallel()

	r := newTestRecorder(RecorderConfig{}, NewMemoryStore(), nil)
	ctx := context.Background()
	r.RecordImpressions(ctx, testBatch("req-1", "u1", 1, 2))

	got, err := r.RecordAction(ctx, UserAction{RecommendationID: "req-1", ContentID: 2, ActionType: ActionRate, ActionValue: fptr(9)})
	if err != nil {
		t.Fatal(err)
	}
	if got.ID == "" || got.UserID != "u1" {
		t.Errorf("action = %+v, want id assigned and user filled in", got)
	}
	if got.TimeToActionMs == nil || *got.TimeToActionMs != 3000 {
		t.Errorf("TimeToActionMs = %v, want 3000", got.TimeToActionMs)
	}
	if s := r.Stats(); s.Enqueued != 3 {
		t.Errorf("Enqueued = %d, want 3", s.Enqueued)
	}
}

func TestRecorderRecordActionErrors(t *testing.T) {
	t.Parallel()

	r := newTestRecorder(RecorderConfig{}, NewMemoryStore(), nil)
	ctx := context.Background()
	r.RecordImpressions(ctx, testBatch("req-1", "u1", 1))

	tests := []struct {
		name   string
		action UserAction
		want   error
	}{
		{"unknown recommendation", UserAction{RecommendationID: "req-9", ContentID: 1, ActionType: ActionView}, ErrUnknownRecommendation},
		{"content not in response", UserAction{RecommendationID: "req-1", ContentID: 7, ActionType: ActionView}, ErrUnknownRecommendation},
		{"other user", UserAction{UserID: "u2", RecommendationID: "req-1", ContentID: 1, ActionType: ActionWatch}, ErrUnknownRecommendation},
		{"rate without value", UserAction{RecommendationID: "req-1", ContentID: 1, ActionType: ActionRate}, ErrInvalidAction},
		{"rating out of range", UserAction{RecommendationID: "req-1", ContentID: 1, ActionType: ActionRate, ActionValue: fptr(11)}, ErrInvalidAction},
		{"unknown type", UserAction{RecommendationID: "req-1", ContentID: 1, ActionType: "share"}, ErrInvalidAction},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := r.RecordAction(ctx, tt.action); !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRecorderValidatesAgainstStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.WriteBatch(ctx, []Event{impression("req-1", "u1", "", 5, recommend.SourceCatalog, recordedAt)}); err != nil {
		t.Fatal(err)
	}

	r := newTestRecorder(RecorderConfig{}, store, store)
	got, err := r.RecordAction(ctx, UserAction{RecommendationID: "req-1", ContentID: 5, ActionType: ActionAddWatchlist})
	if err != nil {
		t.Fatal(err)
	}
	if got.UserID != "u1" {
		t.Errorf("UserID = %q, want u1", got.UserID)
	}
}

func TestRecorderServeDrainsOnCancel(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	r := newTestRecorder(RecorderConfig{FlushInterval: time.Hour}, store, store)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Serve(ctx) }()

	r.RecordImpressions(ctx, testBatch("req-1", "u1", 1, 2))
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}

	if store.Len() != 2 {
		t.Errorf("stored %d events, want 2", store.Len())
	}
	if s := r.Stats(); s.Written != 2 || s.Queued != 0 {
		t.Errorf("stats = %+v", s)
	}
}

type failingSink struct{}

func (failingSink) WriteBatch(context.Context, []Event) error { return errors.New("disk full") }
func (failingSink) Close() error                              { return nil }

func TestRecorderCountsWriteErrors(t *testing.T) {
	t.Parallel()

	r := newTestRecorder(RecorderConfig{BatchSize: 1, FlushInterval: time.Hour}, failingSink{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	r.RecordImpressions(ctx, testBatch("req-1", "u1", 1))
	cancel()
	_ = r.Serve(ctx)

	if s := r.Stats(); s.WriteErrors != 1 || s.Written != 0 {
		t.Errorf("stats = %+v, want one write error", s)
	}
}
