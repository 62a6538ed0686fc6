package registry

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/orderportal/pkg/config"
	"github.com/angelmondragon/orderportal/pkg/db/models"
	"github.com/angelmondragon/orderportal/pkg/enums"
	"github.com/angelmondragon/orderportal/pkg/outbox"
	"github.com/angelmondragon/orderportal/pkg/outbox/payloads"
)

func testRegistry(t *testing.T) *EventRegistry {
	t.Helper()
	reg, err := NewEventRegistry(config.PubSubConfig{DomainTopic: "portal-domain"})
	require.NoError(t, err)
	return reg
}

func row(t *testing.T, eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType, envelopeType enums.OutboxEventType, data string) models.OutboxEvent {
	t.Helper()
	id := uuid.New()
	body, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    id.String(),
		EventType:  envelopeType,
		OccurredAt: time.Date(2026, 1, 5, 9, 30, 0, 0, time.UTC),
		Data:       json.RawMessage(data),
	})
	require.NoError(t, err)
	return models.OutboxEvent{
		ID:            id,
		EventType:     eventType,
		AggregateType: aggregate,
		AggregateID:   uuid.New(),
		Payload:       body,
	}
}

func TestResolveDecodesTypedPayload(t *testing.T) {
	reg := testRegistry(t)
	orderID := uuid.New()
	data, err := json.Marshal(payloads.OrderCreatedEvent{
		OrderID:       orderID,
		OrderNumber:   "ORD-20260105-QX7P",
		UserID:        uuid.New(),
		TotalAmount:   decimal.RequireFromString("42.50"),
		PaymentMethod: enums.PaymentMethodBalance,
		ItemCount:     3,
	})
	require.NoError(t, err)

	event := row(t, enums.EventOrderCreated, enums.AggregateOrder, enums.EventOrderCreated, string(data))
	resolved, err := reg.Resolve(event)
	require.NoError(t, err)

	assert.Equal(t, "portal-domain", resolved.Route.Topic)
	assert.Equal(t, event.ID.String(), resolved.Envelope.EventID)
	payload, ok := resolved.Payload.(*payloads.OrderCreatedEvent)
	require.True(t, ok, "payload type %T", resolved.Payload)
	assert.Equal(t, orderID, payload.OrderID)
	assert.True(t, payload.TotalAmount.Equal(decimal.RequireFromString("42.5")))
	assert.Equal(t, 3, payload.ItemCount)
}

func TestResolveAcceptsEnvelopeWithoutEventType(t *testing.T) {
	event := row(t, enums.EventBalanceChanged, enums.AggregateUser, "", `{}`)
	_, err := testRegistry(t).Resolve(event)
	assert.NoError(t, err)
}

func TestResolveRejectsUnpublishableRows(t *testing.T) {
	nilAggregate := row(t, enums.EventBalanceChanged, enums.AggregateUser, "", `{}`)
	nilAggregate.AggregateID = uuid.Nil
	badEnvelope := row(t, enums.EventOrderCancelled, enums.AggregateOrder, "", `{}`)
	badEnvelope.Payload = json.RawMessage(`{"version":1,"eventId":"nope","data":{}}`)

	cases := map[string]models.OutboxEvent{
		"unknown event type":  row(t, "user_deleted", enums.AggregateUser, "", `{}`),
		"aggregate mismatch":  row(t, enums.EventBalanceRequestResolved, enums.AggregateOrder, "", `{}`),
		"missing aggregate":   nilAggregate,
		"malformed envelope":  badEnvelope,
		"envelope type drift": row(t, enums.EventOrderCreated, enums.AggregateOrder, enums.EventOrderCancelled, `{}`),
		"null data":           row(t, enums.EventOrderCancelled, enums.AggregateOrder, "", `null`),
		"data of wrong shape": row(t, enums.EventOrderCreated, enums.AggregateOrder, "", `{"itemCount":"three"}`),
	}

	reg := testRegistry(t)
	for name, event := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := reg.Resolve(event)
			var permanent NonRetryableError
			require.ErrorAs(t, err, &permanent)
			assert.Contains(t, err.Error(), event.ID.String())
		})
	}
}

func TestNewEventRegistryRequiresTopic(t *testing.T) {
	_, err := NewEventRegistry(config.PubSubConfig{})
	require.EqualError(t, err, "domain topic is required")

	assert.Equal(t, []string{"portal-domain"}, testRegistry(t).Topics())
}
