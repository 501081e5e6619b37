// Marquee - Multi-Source Recommendation Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package quality

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"
)

// FollowerStats counts what a Follower has consumed.
type FollowerStats struct {
	Applied   int64 `json:"applied"`
	Malformed int64 `json:"malformed"`
	Failed    int64 `json:"failed"`
}

// Follower consumes published events and applies them to a Sink, so a
// component such as the PeerIndex can be fed from the topic rather than from
// the recorder directly.
type Follower struct {
	messages <-chan *message.Message
	sink     Sink
	topic    string
	logger   zerolog.Logger

	applied   atomic.Int64
	malformed atomic.Int64
	failed    atomic.Int64
}

// NewFollower subscribes to topic right away so no event published after it
// returns is missed. The subscription lives until ctx is canceled; Serve
// consumes it and can be restarted.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewFollower(ctx context.Context, sub message.Subscriber, topic string, sink Sink, logger zerolog.Logger) (*Follower, error) {
	if topic == "" {
		topic = DefaultTopic
	}
	messages, err := sub.Subscribe(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", topic, err)
	}
	return &Follower{
		messages: messages,
		sink:     sink,
		topic:    topic,
		logger:   logger.With().Str("component", "quality.follower").Str("topic", topic).Logger(),
	}, nil
}

// Serve applies messages until ctx is canceled or the subscription closes.
// Every message is acked: malformed payloads and sink failures are counted
// and logged rather than redelivered. It implements suture.Service.
func (f *Follower) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-f.messages:
			if !ok {
				return nil
			}
			f.apply(ctx, msg)
			msg.Ack()
		}
	}
}

func (f *Follower) apply(ctx context.Context, msg *message.Message) {
	e, err := DecodeMessage(msg)
	if err != nil {
		f.malformed.Add(1)
		f.logger.Warn().Err(err).Str("message_uuid", msg.UUID).Msg("Dropping malformed event message")
		return
	}
	if err := f.sink.WriteBatch(ctx, []Event{e}); err != nil {
		f.failed.Add(1)
		f.logger.Warn().Err(err).Str("message_uuid", msg.UUID).Msg("Failed to apply event message")
		return
	}
	f.applied.Add(1)
}

// Stats returns consumption counters.
func (f *Follower) Stats() FollowerStats {
	return FollowerStats{
		Applied:   f.applied.Load(),
		Malformed: f.malformed.Load(),
		Failed:    f.failed.Load(),
	}
}

// String implements fmt.Stringer for suture logging.
func (f *Follower) String() string { return "event-follower:" + f.topic }
