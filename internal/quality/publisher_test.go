// Marquee - Multi-Source Recommendation Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package quality

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/tomtom215/marquee/internal/recommend"
)

func TestPublisherWriteBatch(t *testing.T) {
	t.Parallel()

	pub, ch := NewGoChannelPublisher("", 16, watermill.NopLogger{})
	defer pub.Close()

	if pub.Topic() != DefaultTopic {
		t.Fatalf("Topic() = %q, want %q", pub.Topic(), DefaultTopic)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	messages, err := ch.Subscribe(ctx, pub.Topic())
	if err != nil {
		t.Fatal(err)
	}

	ts := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	events := []Event{
		impression("req-1", "u1", "a", 4, recommend.SourceCatalog, ts),
		action("req-1", "u1", 4, ActionWatch, nil, ts.Add(time.Minute)),
	}
	if err := pub.WriteBatch(ctx, events); err != nil {
		t.Fatal(err)
	}

	want := make(map[string]Event, len(events))
	for _, e := range events {
		want[e.ID()] = e
	}

	// Delivery order across messages is not guaranteed.
	for range events {
		select {
		case msg := <-messages:
			e, ok := want[msg.UUID]
			if !ok {
				t.Fatalf("unexpected message %s", msg.UUID)
			}
			delete(want, msg.UUID)
			if msg.Metadata.Get(MetadataKind) != string(e.Kind) || msg.Metadata.Get(MetadataUserID) != "u1" {
				t.Errorf("message %s metadata = %v", msg.UUID, msg.Metadata)
			}
			got, err := DecodeMessage(msg)
			if err != nil {
				t.Fatal(err)
			}
			if got.Kind != e.Kind || got.ID() != e.ID() || !got.Time().Equal(e.Time()) {
				t.Errorf("decoded %s = %+v", msg.UUID, got)
			}
			msg.Ack()
		case <-ctx.Done():
			t.Fatalf("timed out, %d messages missing", len(want))
		}
	}
}

func TestPublisherClosed(t *testing.T) {
	t.Parallel()

	pub, _ := NewGoChannelPublisher("custom.topic", 0, watermill.NopLogger{})
	if pub.Topic() != "custom.topic" {
		t.Errorf("Topic() = %q", pub.Topic())
	}
	if err := pub.Close(); err != nil {
		t.Fatal(err)
	}
	if err := pub.Close(); err != nil {
		t.Errorf("second Close = %v", err)
	}
	if err := pub.WriteBatch(context.Background(), []Event{impression("r", "u", "", 1, recommend.SourceAI, time.Now())}); err == nil {
		t.Error("WriteBatch after Close should fail")
	}
}
