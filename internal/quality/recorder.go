// Marquee - Multi-Source Recommendation Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package quality

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tomtom215/marquee/internal/cache"
	"github.com/tomtom215/marquee/internal/metrics"
	"github.com/tomtom215/marquee/internal/recommend"
)

// Policy decides what happens when the recorder queue is full.
type Policy string

// Back-pressure policies.
const (
	// PolicyDropOldest discards the oldest queued event to make room.
	PolicyDropOldest Policy = "drop_oldest"

	// PolicyBlock waits up to BlockTimeout for room, then discards the
	// incoming event.
	PolicyBlock Policy = "block"
)

// RecorderConfig tunes the Recorder.
type RecorderConfig struct {
	QueueSize     int
	Policy        Policy
	BlockTimeout  time.Duration
	BatchSize     int
	FlushInterval time.Duration

	// PendingTTL is how long a queued impression can be acted on before it
	// reaches the store.
	PendingTTL time.Duration
}

// DefaultRecorderConfig returns production defaults.
func DefaultRecorderConfig() RecorderConfig {
	return RecorderConfig{
		QueueSize:     10000,
		Policy:        PolicyDropOldest,
		BlockTimeout:  50 * time.Millisecond,
		BatchSize:     100,
		FlushInterval: time.Second,
		PendingTTL:    10 * time.Minute,
	}
}

// RecorderStats is a point-in-time view of the recorder.
type RecorderStats struct {
	Queued      int   `json:"queued"`
	Enqueued    int64 `json:"enqueued"`
	Dropped     int64 `json:"dropped"`
	Written     int64 `json:"written"`
	WriteErrors int64 `json:"write_errors"`
}

// Recorder logs impressions and actions without blocking the response path.
// Events go through a bounded queue to an async writer; Serve runs the
// writer under the supervisor.
type Recorder struct {
	cfg    RecorderConfig
	sink   Sink
	reader Reader
	queue  chan Event
	logger zerolog.Logger
	now    func() time.Time

	// pending remembers impressions that may not have reached the store yet,
	// so an action arriving right after a response still validates.
	pending *cache.Store

	enqueued    atomic.Int64
	dropped     atomic.Int64
	written     atomic.Int64
	writeErrors atomic.Int64
}

// NewRecorder creates a recorder writing to sink. reader validates actions
// and may be nil, in which case only impressions seen by this recorder are
// accepted.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewRecorder(cfg RecorderConfig, sink Sink, reader Reader, logger zerolog.Logger) *Recorder {
	def := DefaultRecorderConfig()
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.Policy == "" {
		cfg.Policy = def.Policy
	}
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = def.BlockTimeout
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if cfg.PendingTTL <= 0 {
		cfg.PendingTTL = def.PendingTTL
	}

	return &Recorder{
		cfg:    cfg,
		sink:   sink,
		reader: reader,
		queue:  make(chan Event, cfg.QueueSize),
		logger: logger.With().Str("component", "quality.recorder").Logger(),
		now:    time.Now,
		pending: cache.New(cache.Options{
			Name:       "pending_impressions",
			MaxEntries: cfg.QueueSize * 4,
			DefaultTTL: cfg.PendingTTL,
		}),
	}
}

// RecordImpressions implements recommend.ImpressionSink. One
// RecommendationEvent is logged per recommendation. Under PolicyBlock the
// whole batch shares one BlockTimeout, so a response waits at most that long
// however many recommendations it carries.
func (r *Recorder) RecordImpressions(ctx context.Context, batch recommend.ImpressionBatch) {
	ts := batch.Timestamp
	if ts.IsZero() {
		ts = r.now()
	}
	deadline := time.Now().Add(r.cfg.BlockTimeout)
	for i := range batch.Recommendations {
		rec := &batch.Recommendations[i]
		ev := &RecommendationEvent{
			ID:               uuid.NewString(),
			UserID:           batch.UserID,
			RecommendationID: batch.RequestID,
			ContentID:        rec.ContentID,
			Source:           rec.Primary,
			Sources:          rec.Sources,
			Variant:          batch.Variant,
			Score:            rec.FinalScore,
			Rank:             rec.Rank,
			Emergency:        batch.Emergency,
			Timestamp:        ts,
		}
		if rec.Sources.Has(recommend.SourceAI) {
			ev.AIModel = batch.Model
		}
		r.pending.Put(impressionKey(ev.RecommendationID, ev.ContentID), ev, 0)
		r.enqueue(ctx, Event{Kind: KindRecommendation, Recommendation: ev}, deadline)
	}
}

// RecordAction validates a against the impression it refers to and queues
// it. The returned copy carries the assigned id and timestamp.
// ErrUnknownRecommendation means no such impression was logged.
func (r *Recorder) RecordAction(ctx context.Context, a UserAction) (*UserAction, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}

	rec, err := r.lookup(ctx, a.RecommendationID, a.ContentID)
	if err != nil {
		return nil, err
	}
	if a.UserID == "" {
		a.UserID = rec.UserID
	} else if rec.UserID != "" && a.UserID != rec.UserID {
		return nil, fmt.Errorf("%w: recommendation %s was not shown to user %s", ErrUnknownRecommendation, a.RecommendationID, a.UserID)
	}

	a.ID = uuid.NewString()
	if a.Timestamp.IsZero() {
		a.Timestamp = r.now()
	}
	if a.TimeToActionMs == nil && !rec.Timestamp.IsZero() {
		ms := a.Timestamp.Sub(rec.Timestamp).Milliseconds()
		if ms >= 0 {
			a.TimeToActionMs = &ms
		}
	}

	if !r.enqueue(ctx, Event{Kind: KindAction, Action: &a}, time.Now().Add(r.cfg.BlockTimeout)) {
		return nil, fmt.Errorf("quality: action dropped by back-pressure")
	}
	out := a
	return &out, nil
}

func (r *Recorder) lookup(ctx context.Context, recommendationID string, contentID int64) (*RecommendationEvent, error) {
	if v, ok := r.pending.Get(impressionKey(recommendationID, contentID)); ok {
		if rec, ok := v.(*RecommendationEvent); ok {
			return rec, nil
		}
	}
	if r.reader == nil {
		return nil, ErrUnknownRecommendation
	}
	rec, err := r.reader.Recommendation(ctx, recommendationID, contentID)
	if err != nil {
		if errors.Is(err, ErrUnknownRecommendation) {
			return nil, err
		}
		return nil, fmt.Errorf("look up recommendation: %w", err)
	}
	return rec, nil
}

// enqueue applies the back-pressure policy. Under PolicyBlock it waits no
// later than deadline. It reports whether e was queued.
func (r *Recorder) enqueue(ctx context.Context, e Event, deadline time.Time) bool {
	defer func() { metrics.EventQueueDepth.Set(float64(len(r.queue))) }()

	select {
	case r.queue <- e:
		r.enqueued.Add(1)
		return true
	default:
	}

	switch r.cfg.Policy {
	case PolicyBlock:
		wait := time.Until(deadline)
		if wait <= 0 {
			r.drop()
			return false
		}
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case r.queue <- e:
			r.enqueued.Add(1)
			return true
		case <-timer.C:
		case <-ctx.Done():
		}
		r.drop()
		return false

	default:
		for {
			select {
			case r.queue <- e:
				r.enqueued.Add(1)
				return true
			default:
			}
			select {
			case <-r.queue:
				r.drop()
			default:
			}
		}
	}
}

func (r *Recorder) drop() {
	r.dropped.Add(1)
	metrics.EventsDropped.WithLabelValues(string(r.cfg.Policy)).Inc()
}

// Serve writes queued events in batches of BatchSize or every FlushInterval,
// whichever comes first. On cancellation it drains the queue before
// returning. It implements suture.Service.
func (r *Recorder) Serve(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]Event, 0, r.cfg.BatchSize)
	for {
		select {
		case <-ctx.Done():
			r.drain(batch)
			return ctx.Err()

		case e := <-r.queue:
			batch = append(batch, e)
			if len(batch) >= r.cfg.BatchSize {
				r.flush(ctx, batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				r.flush(ctx, batch)
				batch = batch[:0]
			}
		}
	}
}

// drain flushes batch and whatever is still queued, detached from the
// canceled serve context.
func (r *Recorder) drain(batch []Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for {
		select {
		case e := <-r.queue:
			batch = append(batch, e)
			if len(batch) >= r.cfg.BatchSize {
				r.flush(ctx, batch)
				batch = batch[:0]
			}
		default:
			if len(batch) > 0 {
				r.flush(ctx, batch)
			}
			return
		}
	}
}

func (r *Recorder) flush(ctx context.Context, batch []Event) {
	start := time.Now()
	err := r.sink.WriteBatch(ctx, batch)
	metrics.EventFlushDuration.Observe(time.Since(start).Seconds())
	metrics.EventQueueDepth.Set(float64(len(r.queue)))

	if err != nil {
		r.writeErrors.Add(1)
		metrics.EventWriteErrors.Inc()
		r.logger.Error().Err(err).Int("events", len(batch)).Msg("failed to write event batch")
		return
	}

	r.written.Add(int64(len(batch)))
	for i := range batch {
		metrics.EventsWritten.WithLabelValues(string(batch[i].Kind)).Inc()
	}
}

// Stats returns recorder counters.
func (r *Recorder) Stats() RecorderStats {
	return RecorderStats{
		Queued:      len(r.queue),
		Enqueued:    r.enqueued.Load(),
		Dropped:     r.dropped.Load(),
		Written:     r.written.Load(),
		WriteErrors: r.writeErrors.Load(),
	}
}

// String implements fmt.Stringer for suture logging.
func (r *Recorder) String() string { return "quality-recorder" }
