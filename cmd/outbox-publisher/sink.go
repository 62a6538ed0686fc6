package main

import (
	"context"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/orderportal/pkg/db/models"
	"github.com/angelmondragon/orderportal/pkg/outbox/registry"
)

// pendingPublish is satisfied by *pubsub.PublishResult.
type pendingPublish interface {
	Get(ctx context.Context) (serverID string, err error)
}

// sink starts an asynchronous publish to a topic.
type sink interface {
	Publish(ctx context.Context, topic string, msg *gcppubsub.Message) pendingPublish
}

type publisherSource interface {
	Publisher(name string) *gcppubsub.Publisher
}

type pubsubSink struct {
	source publisherSource
}

func (s pubsubSink) Publish(ctx context.Context, topic string, msg *gcppubsub.Message) pendingPublish {
	pub := s.source.Publisher(topic)
	if pub == nil {
		return settledPublish{registry.NewNonRetryableError(fmt.Errorf("no publisher for topic %s", topic))}
	}
	return pub.Publish(ctx, msg)
}

// settledPublish is a publish whose outcome is already known.
type settledPublish struct {
	err error
}

func (f settledPublish) Get(context.Context) (string, error) {
	return "", f.err
}

// message forwards the stored envelope byte-for-byte. Subscribers dedupe on
// the event_id attribute, which equals the outbox row id.
func message(event models.OutboxEvent) *gcppubsub.Message {
	return &gcppubsub.Message{
		Data: event.Payload,
		Attributes: map[string]string{
			"event_id":       event.ID.String(),
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID.String(),
			"created_at":     event.CreatedAt.UTC().Format(time.RFC3339Nano),
		},
	}
}
