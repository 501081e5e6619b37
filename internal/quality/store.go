// Marquee - Multi-Source Recommendation Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package quality

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// Sink receives batches of events from the Recorder.
type Sink interface {
	WriteBatch(ctx context.Context, events []Event) error
	Close() error
}

// Reader reads the event logs back.
type Reader interface {
	// Recommendation returns the impression an action may refer to.
	Recommendation(ctx context.Context, recommendationID string, contentID int64) (*RecommendationEvent, error)

	// Scan calls fn for every event at or after since, oldest first.
	// Returning an error from fn stops the scan and returns that error.
	Scan(ctx context.Context, since time.Time, fn func(*Event) error) error
}

// Store is a Sink that can be read back.
type Store interface {
	Sink
	Reader
}

// Bounds applied by NewMemoryStore.
const (
	DefaultMemoryMaxEvents = 100000
	DefaultMemoryRetention = 7 * 24 * time.Hour
)

// MemoryStore keeps events in memory, oldest first. It holds at most
// maxEvents events, and on every write drops events more than retention older
// than the newest event. Safe for concurrent use.
type MemoryStore struct {
	mu          sync.RWMutex
	events      []Event
	impressions map[string]*RecommendationEvent
	maxEvents   int
	retention   time.Duration
	evicted     int64
}

// NewMemoryStore creates an in-memory store with the default bounds.
func NewMemoryStore() *MemoryStore {
	return NewBoundedMemoryStore(DefaultMemoryMaxEvents, DefaultMemoryRetention)
}

// NewBoundedMemoryStore creates an in-memory store keeping at most maxEvents
// events no older than retention. A non-positive maxEvents uses
// DefaultMemoryMaxEvents; a non-positive retention disables age eviction.
func NewBoundedMemoryStore(maxEvents int, retention time.Duration) *MemoryStore {
	if maxEvents <= 0 {
		maxEvents = DefaultMemoryMaxEvents
	}
	return &MemoryStore{
		impressions: make(map[string]*RecommendationEvent),
		maxEvents:   maxEvents,
		retention:   retention,
	}
}

// WriteBatch implements Sink.
func (m *MemoryStore) WriteBatch(_ context.Context, events []Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sorted := true
	for i := range events {
		e := events[i]
		if n := len(m.events); n > 0 && e.Time().Before(m.events[n-1].Time()) {
			sorted = false
		}
		if e.Recommendation != nil {
			m.impressions[impressionKey(e.Recommendation.RecommendationID, e.Recommendation.ContentID)] = e.Recommendation
		}
		m.events = append(m.events, e)
	}
	if !sorted {
		sort.SliceStable(m.events, func(i, j int) bool { return m.events[i].Time().Before(m.events[j].Time()) })
	}
	m.evict()
	return nil
}

// evict drops events beyond the retention window and the size bound.
// Called with mu held.
func (m *MemoryStore) evict() {
	drop := 0
	if m.retention > 0 && len(m.events) > 0 {
		cutoff := m.events[len(m.events)-1].Time().Add(-m.retention)
		drop = sort.Search(len(m.events), func(i int) bool { return !m.events[i].Time().Before(cutoff) })
	}
	if over := len(m.events) - m.maxEvents; over > drop {
		drop = over
	}
	if drop == 0 {
		return
	}

	for i := range m.events[:drop] {
		rec := m.events[i].Recommendation
		if rec == nil {
			continue
		}
		key := impressionKey(rec.RecommendationID, rec.ContentID)
		if m.impressions[key] == rec {
			delete(m.impressions, key)
		}
	}
	// Copy the survivors so the dropped prefix can be collected.
	m.events = append(make([]Event, 0, len(m.events)-drop), m.events[drop:]...)
	m.evicted += int64(drop)
}

// Recommendation implements Reader.
func (m *MemoryStore) Recommendation(_ context.Context, recommendationID string, contentID int64) (*RecommendationEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.impressions[impressionKey(recommendationID, contentID)]
	if !ok {
		return nil, ErrUnknownRecommendation
	}
	rec := *r
	return &rec, nil
}

// Scan implements Reader. Only events at or after since are copied out of
// the store.
func (m *MemoryStore) Scan(ctx context.Context, since time.Time, fn func(*Event) error) error {
	m.mu.RLock()
	from := sort.Search(len(m.events), func(i int) bool { return !m.events[i].Time().Before(since) })
	events := append([]Event(nil), m.events[from:]...)
	m.mu.RUnlock()

	for i := range events {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(&events[i]); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of stored events.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.events)
}

// Evicted returns how many events the bounds have removed.
func (m *MemoryStore) Evicted() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.evicted
}

// Close implements Sink.
func (m *MemoryStore) Close() error { return nil }

// MultiSink fans a batch out to several sinks. Every sink sees every batch;
// errors are joined.
type MultiSink []Sink

// WriteBatch implements Sink.
func (ms MultiSink) WriteBatch(ctx context.Context, events []Event) error {
	var errs []error
	for _, s := range ms {
		if err := s.WriteBatch(ctx, events); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close implements Sink.
func (ms MultiSink) Close() error {
	var errs []error
	for _, s := range ms {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
