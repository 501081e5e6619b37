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

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestFollowerFeedsPeerIndex(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pub, ch := NewGoChannelPublisher("", 16, watermill.NopLogger{})
	defer pub.Close()

	peers := NewPeerIndex(0, 0)
	f, err := NewFollower(ctx, ch, pub.Topic(), peers, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	done := make(chan error, 1)
	go func() { done <- f.Serve(ctx) }()

	now := time.Now()
	err = pub.WriteBatch(ctx, []Event{
		action("r1", "u1", 10, ActionRate, fptr(8), now),
		action("r2", "u2", 11, ActionRate, fptr(6), now),
		action("r2", "u2", 12, ActionWatch, nil, now),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := ch.Publish(pub.Topic(), message.NewMessage(watermill.NewUUID(), []byte("{not json"))); err != nil {
		t.Fatal(err)
	}

	waitFor(t, "all messages", func() bool {
		s := f.Stats()
		return s.Applied+s.Malformed == 4
	})
	if s := f.Stats(); s.Applied != 3 || s.Malformed != 1 || s.Failed != 0 {
		t.Errorf("Stats = %+v, want 3 applied and 1 malformed", s)
	}
	if peers.Users() != 2 {
		t.Errorf("Users() = %d, want 2", peers.Users())
	}

	cancel()
	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}
}

func TestFollowerCountsSinkFailures(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pub, ch := NewGoChannelPublisher("", 4, watermill.NopLogger{})
	defer pub.Close()

	f, err := NewFollower(ctx, ch, pub.Topic(), failingSink{}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	go func() { _ = f.Serve(ctx) }()

	if err := pub.WriteBatch(ctx, []Event{action("r1", "u1", 1, ActionView, nil, time.Now())}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "the failed write", func() bool { return f.Stats().Failed == 1 })
}
