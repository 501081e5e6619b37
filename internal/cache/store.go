// Marquee - Multi-Source Recommendation Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package cache memoizes expensive provider results.
//
// Store is a TTL map with lazy eviction and an LRU capacity bound. Expired
// entries are removed when read or by the periodic sweep that Serve runs under
// the supervisor:
//
//	store := cache.New(cache.Options{Name: "sources", MaxEntries: 10000})
//	store.Put(key, candidates, 10*time.Minute)
//	if v, ok := store.Get(key); ok {
//	    // use v
//	}
package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/tomtom215/marquee/internal/metrics"
)

// Defaults applied by New for zero Options fields.
const (
	DefaultMaxEntries    = 10000
	DefaultSweepInterval = 5 * time.Minute
	DefaultTTL           = 5 * time.Minute
)

// Options configures a Store.
type Options struct {
	// Name labels the Prometheus instruments (cache_type).
	Name string

	// MaxEntries bounds the store; the least recently used entry is evicted
	// when a Put would exceed it.
	MaxEntries int

	// SweepInterval is how often Serve removes expired entries.
	SweepInterval time.Duration

	// DefaultTTL applies when Put is called with ttl <= 0.
	DefaultTTL time.Duration

	// Clock overrides time.Now, for tests.
	Clock func() time.Time
}

// Stats is a point-in-time view of cache performance.
type Stats struct {
	Hits              int64     `json:"hits"`
	Misses            int64     `json:"misses"`
	Expirations       int64     `json:"expirations"`
	CapacityEvictions int64     `json:"capacity_evictions"`
	Entries           int       `json:"entries"`
	LastSweep         time.Time `json:"last_sweep"`
}

// HitRate returns hits as a percentage of lookups.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}

type entry struct {
	key       string
	value     any
	expiresAt time.Time
	prev      *entry
	next      *entry
}

// Store is a thread-safe TTL cache with an LRU bound. The zero value is not
// usable; construct with New.
type Store struct {
	mu    sync.Mutex
	opts  Options
	items map[string]*entry

	// head.next is the most recently used entry, tail.prev the least.
	head *entry
	tail *entry

	stats Stats
}

// New creates a Store. It does not start any goroutine; run Serve to enable
// the periodic sweep.
func New(opts Options) *Store {
	if opts.Name == "" {
		opts.Name = "default"
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultMaxEntries
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = DefaultSweepInterval
	}
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = DefaultTTL
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	s := &Store{
		opts:  opts,
		items: make(map[string]*entry),
		head:  &entry{},
		tail:  &entry{},
	}
	s.head.next = s.tail
	s.tail.prev = s.head
	return s
}

// Get returns the value for key if present and unexpired. An expired entry is
// removed and reported as a miss.
func (s *Store) Get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.items[key]
	if !ok {
		s.miss()
		return nil, false
	}
	if s.opts.Clock().After(e.expiresAt) {
		s.unlink(e)
		s.stats.Expirations++
		metrics.CacheEvictions.WithLabelValues(s.opts.Name, "expired").Inc()
		s.miss()
		s.publishSize()
		return nil, false
	}

	s.moveToFront(e)
	s.stats.Hits++
	metrics.CacheHits.WithLabelValues(s.opts.Name).Inc()
	return e.value, true
}

// Put stores value under key for ttl, replacing any existing entry.
func (s *Store) Put(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = s.opts.DefaultTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	expiresAt := s.opts.Clock().Add(ttl)
	if e, ok := s.items[key]; ok {
		e.value = value
		e.expiresAt = expiresAt
		s.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value, expiresAt: expiresAt}
	s.pushFront(e)
	s.items[key] = e

	for len(s.items) > s.opts.MaxEntries {
		oldest := s.tail.prev
		s.unlink(oldest)
		s.stats.CapacityEvictions++
		metrics.CacheEvictions.WithLabelValues(s.opts.Name, "capacity").Inc()
	}
	s.publishSize()
}

// Range calls fn for every unexpired entry, most recently used first, until
// fn returns false. Recency and statistics are left untouched. fn must not
// call back into the store.
func (s *Store) Range(fn func(key string, value any) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.opts.Clock()
	for e := s.head.next; e != s.tail; e = e.next {
		if now.After(e.expiresAt) {
			continue
		}
		if !fn(e.key, e.value) {
			return
		}
	}
}

// Invalidate removes keys and returns how many were present.
func (s *Store) Invalidate(keys ...string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for _, key := range keys {
		if e, ok := s.items[key]; ok {
			s.unlink(e)
			removed++
		}
	}
	s.publishSize()
	return removed
}

// InvalidatePrefix removes every key starting with prefix.
func (s *Store) InvalidatePrefix(prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, e := range s.items {
		if strings.HasPrefix(key, prefix) {
			s.unlink(e)
			removed++
		}
	}
	s.publishSize()
	return removed
}

// Clear removes all entries.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = make(map[string]*entry)
	s.head.next = s.tail
	s.tail.prev = s.head
	s.publishSize()
}

// Sweep removes every expired entry and returns the count.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.opts.Clock()
	removed := 0
	for e := s.tail.prev; e != s.head; {
		prev := e.prev
		if now.After(e.expiresAt) {
			s.unlink(e)
			removed++
		}
		e = prev
	}

	s.stats.Expirations += int64(removed)
	s.stats.LastSweep = now
	if removed > 0 {
		metrics.CacheEvictions.WithLabelValues(s.opts.Name, "expired").Add(float64(removed))
	}
	s.publishSize()
	return removed
}

// Len returns the number of entries, including expired ones not yet swept.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Stats returns a copy of the current statistics.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.stats
	st.Entries = len(s.items)
	return st
}

// Serve runs the periodic sweep until ctx is canceled. Implements suture.Service.
func (s *Store) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// String implements fmt.Stringer for suture logging.
func (s *Store) String() string {
	return "cache-sweeper:" + s.opts.Name
}

// The helpers below must be called with mu held.

func (s *Store) miss() {
	s.stats.Misses++
	metrics.CacheMisses.WithLabelValues(s.opts.Name).Inc()
}

func (s *Store) publishSize() {
	metrics.CacheSize.WithLabelValues(s.opts.Name).Set(float64(len(s.items)))
}

func (s *Store) pushFront(e *entry) {
	e.prev = s.head
	e.next = s.head.next
	s.head.next.prev = e
	s.head.next = e
}

func (s *Store) moveToFront(e *entry) {
	e.prev.next = e.next
	e.next.prev = e.prev
	s.pushFront(e)
}

func (s *Store) unlink(e *entry) {
	e.prev.next = e.next
	e.next.prev = e.prev
	delete(s.items, e.key)
}
