// Marquee - Multi-Source Recommendation Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package quality

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	natsgo "github.com/nats-io/nats.go"
)

// DefaultTopic is the topic events are published to.
const DefaultTopic = "marquee.quality.events"

// Message metadata keys.
const (
	MetadataKind   = "kind"
	MetadataUserID = "user_id"
)

// Publisher forwards event batches to a watermill message publisher so other
// services can follow the logs.
type Publisher struct {
	publisher message.Publisher
	topic     string

	mu     sync.RWMutex
	closed bool
}

// NewPublisher wraps an existing watermill publisher.
func NewPublisher(pub message.Publisher, topic string) *Publisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Publisher{publisher: pub, topic: topic}
}

// NewGoChannelPublisher creates an in-process publisher. The returned
// GoChannel can be used to subscribe to the topic.
func NewGoChannelPublisher(topic string, buffer int64, logger watermill.LoggerAdapter) (*Publisher, *gochannel.GoChannel) {
	ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: buffer}, logger)
	return NewPublisher(ch, topic), ch
}

// NewNATSPublisher connects to a NATS server with core publishing (no
// JetStream).
func NewNATSPublisher(url, topic string, logger watermill.LoggerAdapter) (*Publisher, error) {
	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2 * time.Second),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{"url": nc.ConnectedUrl()})
		}),
	}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         url,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream:   wmNats.JetStreamConfig{Disabled: true},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill publisher: %w", err)
	}
	return NewPublisher(pub, topic), nil
}

// Topic returns the topic events are published to.
func (p *Publisher) Topic() string { return p.topic }

// WriteBatch implements Sink. Each event becomes one message whose UUID is
// the event id.
func (p *Publisher) WriteBatch(_ context.Context, events []Event) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return fmt.Errorf("publisher is closed")
	}

	msgs := make([]*message.Message, 0, len(events))
	for i := range events {
		e := &events[i]
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		id := e.ID()
		if id == "" {
			id = watermill.NewUUID()
		}
		msg := message.NewMessage(id, data)
		msg.Metadata.Set(MetadataKind, string(e.Kind))
		msg.Metadata.Set(MetadataUserID, e.UserID())
		msgs = append(msgs, msg)
	}

	if err := p.publisher.Publish(p.topic, msgs...); err != nil {
		return fmt.Errorf("publish %d events: %w", len(msgs), err)
	}
	return nil
}

// DecodeMessage turns a published message back into an Event.
func DecodeMessage(msg *message.Message) (Event, error) {
	var e Event
	if err := json.Unmarshal(msg.Payload, &e); err != nil {
		return Event{}, fmt.Errorf("decode event message %s: %w", msg.UUID, err)
	}
	return e, nil
}

// Close implements Sink.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.publisher.Close()
}
