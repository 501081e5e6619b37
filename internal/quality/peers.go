// Marquee - Multi-Source Recommendation Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package quality

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/tomtom215/marquee/internal/cache"
	"github.com/tomtom215/marquee/internal/recommend"
)

// Bounds applied by NewPeerIndex for non-positive arguments.
const (
	DefaultPeerMaxUsers = 50000
	DefaultPeerWindow   = 30 * 24 * time.Hour
)

// PeerIndex keeps every user's latest rating per show, built from rate
// actions. It is a Sink so the recorder keeps it current, and it serves the
// collaborative provider's peer lookups.
//
// At most maxUsers users are held; the least recently active is evicted
// first. A user whose newest rating falls out of the window is dropped.
// Rating maps are replaced on write, never modified, so Peers hands them out
// without copying.
type PeerIndex struct {
	mu     sync.Mutex
	users  *cache.Store
	window time.Duration
	now    func() time.Time
}

// NewPeerIndex creates an empty index holding up to maxUsers raters active
// within window.
func NewPeerIndex(maxUsers int, window time.Duration) *PeerIndex {
	if maxUsers <= 0 {
		maxUsers = DefaultPeerMaxUsers
	}
	if window <= 0 {
		window = DefaultPeerWindow
	}
	p := &PeerIndex{window: window, now: time.Now}
	p.users = cache.New(cache.Options{
		Name:          "peer_ratings",
		MaxEntries:    maxUsers,
		DefaultTTL:    window,
		SweepInterval: time.Hour,
		Clock:         func() time.Time { return p.now() },
	})
	return p
}

// Warm loads rate actions at or after since from r.
func (p *PeerIndex) Warm(ctx context.Context, r Reader, since time.Time) error {
	var batch []Event
	err := r.Scan(ctx, since, func(e *Event) error {
		if e.Action != nil && e.Action.ActionType == ActionRate {
			batch = append(batch, *e)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return p.WriteBatch(ctx, batch)
}

// WriteBatch implements Sink.
func (p *PeerIndex) WriteBatch(_ context.Context, events []Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	for i := range events {
		a := events[i].Action
		if a == nil || a.ActionType != ActionRate || a.ActionValue == nil || a.UserID == "" {
			continue
		}
		ttl := p.window
		if !a.Timestamp.IsZero() {
			ttl -= now.Sub(a.Timestamp)
		}
		if ttl <= 0 {
			continue
		}

		var ratings map[int64]float64
		if v, ok := p.users.Get(a.UserID); ok {
			ratings = maps.Clone(v.(map[int64]float64))
		} else {
			ratings = make(map[int64]float64, 1)
		}
		ratings[a.ContentID] = *a.ActionValue
		p.users.Put(a.UserID, ratings, ttl)
	}
	return nil
}

// Peers implements sources.PeerSource. The requesting user is omitted and
// peers are ordered by user id. Callers must not modify the returned
// ratings.
func (p *PeerIndex) Peers(_ context.Context, userID string) ([]recommend.PeerRatings, error) {
	var out []recommend.PeerRatings
	p.users.Range(func(id string, v any) bool {
		if id != userID {
			out = append(out, recommend.PeerRatings{UserID: id, Ratings: v.(map[int64]float64)})
		}
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// Users returns how many users with live ratings are held.
func (p *PeerIndex) Users() int {
	n := 0
	p.users.Range(func(string, any) bool {
		n++
		return true
	})
	return n
}

// Serve sweeps expired raters until ctx is canceled. Implements
// suture.Service.
func (p *PeerIndex) Serve(ctx context.Context) error {
	return p.users.Serve(ctx)
}

// String implements fmt.Stringer for suture logging.
func (p *PeerIndex) String() string { return "peer-index" }

// Close implements Sink.
func (p *PeerIndex) Close() error { return nil }
