// Marquee - Multi-Source Recommendation Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package quality

import (
	"context"
	"testing"
	"time"

	"github.com/tomtom215/marquee/internal/recommend"
)

func TestPeerIndex(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Now()
	p := NewPeerIndex(0, 0)

	err := p.WriteBatch(ctx, []Event{
		action("r1", "u1", 10, ActionRate, fptr(8), now),
		action("r1", "u1", 10, ActionRate, fptr(6), now),
		action("r2", "u2", 11, ActionRate, fptr(9), now),
		action("r2", "u2", 12, ActionWatch, nil, now),
		action("r3", "u3", 12, ActionRate, nil, now),
		impression("r4", "u4", "", 13, recommend.SourceAI, now),
	})
	if err != nil {
		t.Fatal(err)
	}

	if p.Users() != 2 {
		t.Fatalf("Users() = %d, want 2", p.Users())
	}

	peers, err := p.Peers(ctx, "u2")
	if err != nil {
		t.Fatal(err)
	}
	if len(peers) != 1 || peers[0].UserID != "u1" {
		t.Fatalf("Peers(u2) = %+v, want only u1", peers)
	}
	if got := peers[0].Ratings[10]; got != 6 {
		t.Errorf("u1 rating for 10 = %v, want latest 6", got)
	}

	if err := p.WriteBatch(ctx, []Event{action("r5", "u1", 10, ActionRate, fptr(2), now)}); err != nil {
		t.Fatal(err)
	}
	if peers[0].Ratings[10] != 6 {
		t.Error("a later rating must not change ratings already handed out")
	}
	again, _ := p.Peers(ctx, "u2")
	if again[0].Ratings[10] != 2 {
		t.Errorf("u1 rating for 10 = %v, want 2", again[0].Ratings[10])
	}

	all, _ := p.Peers(ctx, "")
	if len(all) != 2 || all[0].UserID != "u1" || all[1].UserID != "u2" {
		t.Errorf("Peers(anonymous) = %+v, want u1 then u2", all)
	}
}

func TestPeerIndexWarm(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Now()
	store := NewMemoryStore()
	if err := store.WriteBatch(ctx, []Event{
		action("old", "u0", 1, ActionRate, fptr(5), now.Add(-48*time.Hour)),
		action("r1", "u1", 2, ActionRate, fptr(7), now.Add(-time.Hour)),
		action("r2", "u2", 3, ActionView, nil, now.Add(-time.Hour)),
	}); err != nil {
		t.Fatal(err)
	}

	p := NewPeerIndex(0, 0)
	if err := p.Warm(ctx, store, now.Add(-24*time.Hour)); err != nil {
		t.Fatal(err)
	}
	if p.Users() != 1 {
		t.Errorf("Users() = %d, want 1", p.Users())
	}
}

func TestPeerIndexEvictsLeastRecentUser(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Now()
	p := NewPeerIndex(2, 0)

	for i, user := range []string{"u1", "u2", "u1", "u3"} {
		if err := p.WriteBatch(ctx, []Event{action("r", user, int64(i), ActionRate, fptr(7), now)}); err != nil {
			t.Fatal(err)
		}
	}

	peers, _ := p.Peers(ctx, "")
	if len(peers) != 2 || peers[0].UserID != "u1" || peers[1].UserID != "u3" {
		t.Fatalf("Peers = %+v, want u1 and u3 after u2 is evicted", peers)
	}
	if len(peers[0].Ratings) != 2 {
		t.Errorf("u1 ratings = %v, want both kept", peers[0].Ratings)
	}
}

func TestPeerIndexWindow(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	start := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	now := start
	p := NewPeerIndex(10, 24*time.Hour)
	p.now = func() time.Time { return now }

	err := p.WriteBatch(ctx, []Event{
		action("r1", "stale", 1, ActionRate, fptr(5), start.Add(-25*time.Hour)),
		action("r2", "recent", 2, ActionRate, fptr(8), start.Add(-time.Hour)),
		action("r3", "fresh", 3, ActionRate, fptr(9), start),
	})
	if err != nil {
		t.Fatal(err)
	}
	if p.Users() != 2 {
		t.Fatalf("Users() = %d, want 2 (stale rating outside window)", p.Users())
	}

	now = start.Add(23*time.Hour + 30*time.Minute)
	peers, _ := p.Peers(ctx, "")
	if len(peers) != 1 || peers[0].UserID != "fresh" {
		t.Errorf("Peers = %+v, want only fresh once recent ages out", peers)
	}
}
