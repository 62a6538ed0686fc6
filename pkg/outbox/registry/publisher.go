package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/angelmondragon/orderportal/pkg/config"
	"github.com/angelmondragon/orderportal/pkg/db/models"
	"github.com/angelmondragon/orderportal/pkg/enums"
	"github.com/angelmondragon/orderportal/pkg/outbox"
	"github.com/angelmondragon/orderportal/pkg/outbox/payloads"
)

// Route says where an event type is published and which aggregate owns it.
type Route struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
	decode        func(json.RawMessage) (any, error)
}

type ResolvedEvent struct {
	Route    Route
	Envelope outbox.PayloadEnvelope
	Payload  any
}

type EventRegistry struct {
	routes map[enums.OutboxEventType]Route
}

// NonRetryableError marks a row that will never publish no matter how often
// it is retried.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error {
	return e.Err
}

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func route[T any](eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType, topic string) Route {
	return Route{
		EventType:     eventType,
		AggregateType: aggregate,
		Topic:         topic,
		decode: func(raw json.RawMessage) (any, error) {
			payload := new(T)
			if err := json.Unmarshal(raw, payload); err != nil {
				return nil, err
			}
			return payload, nil
		},
	}
}

// NewEventRegistry routes every domain event to the domain topic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	topic := cfg.DomainTopic
	if topic == "" {
		return nil, errors.New("domain topic is required")
	}
	routes := []Route{
		route[payloads.OrderCreatedEvent](enums.EventOrderCreated, enums.AggregateOrder, topic),
		route[payloads.OrderStatusChangedEvent](enums.EventOrderStatusChanged, enums.AggregateOrder, topic),
		route[payloads.OrderCancelledEvent](enums.EventOrderCancelled, enums.AggregateOrder, topic),
		route[payloads.BalanceChangedEvent](enums.EventBalanceChanged, enums.AggregateUser, topic),
		route[payloads.BalanceAdjustedEvent](enums.EventBalanceAdjusted, enums.AggregateUser, topic),
		route[payloads.BalanceRequestCreatedEvent](enums.EventBalanceRequestCreated, enums.AggregateBalanceRequest, topic),
		route[payloads.BalanceRequestResolvedEvent](enums.EventBalanceRequestResolved, enums.AggregateBalanceRequest, topic),
	}
	reg := &EventRegistry{routes: make(map[enums.OutboxEventType]Route, len(routes))}
	for _, r := range routes {
		reg.routes[r.EventType] = r
	}
	return reg, nil
}

// Topics returns the sorted set of topics the registry publishes to.
func (r *EventRegistry) Topics() []string {
	topics := make([]string, 0, 1)
	for _, rt := range r.routes {
		topics = append(topics, rt.Topic)
	}
	slices.Sort(topics)
	return slices.Compact(topics)
}

// Resolve checks a stored row against its route and decodes the typed
// payload. Every failure is non-retryable.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	resolved, err := r.resolve(event)
	if err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("%s %s: %w", event.EventType, event.ID, err))
	}
	return resolved, nil
}

func (r *EventRegistry) resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	rt, ok := r.routes[event.EventType]
	switch {
	case !ok:
		return nil, errors.New("no route for event type")
	case rt.AggregateType != event.AggregateType:
		return nil, fmt.Errorf("aggregate type %s, want %s", event.AggregateType, rt.AggregateType)
	case event.AggregateID == uuid.Nil:
		return nil, errors.New("missing aggregate id")
	}

	envelope, _, err := outbox.DecodeEnvelope(event.Payload)
	if err != nil {
		return nil, err
	}
	if envelope.EventType != "" && envelope.EventType != event.EventType {
		return nil, fmt.Errorf("envelope carries event type %s", envelope.EventType)
	}
	data := bytes.TrimSpace(envelope.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, errors.New("envelope has no data")
	}
	payload, err := rt.decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode data: %w", err)
	}
	return &ResolvedEvent{Route: rt, Envelope: envelope, Payload: payload}, nil
}
