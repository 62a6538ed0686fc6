package notifications

import (
	"context"
	"errors"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/angelmondragon/orderportal/pkg/db/models"
	"github.com/angelmondragon/orderportal/pkg/enums"
	"github.com/angelmondragon/orderportal/pkg/logger"
	"github.com/angelmondragon/orderportal/pkg/outbox"
	"github.com/angelmondragon/orderportal/pkg/outbox/idempotency"
	"github.com/angelmondragon/orderportal/pkg/outbox/payloads"
	"github.com/angelmondragon/orderportal/pkg/outbox/registry"
	"github.com/google/uuid"
)

const adminAlertConsumer = "admin-alerts"

type notificationWriter interface {
	CreateMany(ctx context.Context, notifications []models.Notification) error
}

type adminLister interface {
	ListActiveAdmins(ctx context.Context) ([]models.User, error)
}

type processedMarker interface {
	Begin(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Complete(ctx context.Context, consumer string, eventID uuid.UUID) error
	Release(ctx context.Context, consumer string, eventID uuid.UUID) error
}

// Consumer watches domain events and raises in-app alerts for administrators.
type Consumer struct {
	repo         notificationWriter
	admins       adminLister
	subscription *pubsub.Subscriber
	idempotency  processedMarker
	decoders     *registry.DecoderRegistry
	logg         *logger.Logger
}

// NewConsumer builds the admin alert consumer.
func NewConsumer(repo notificationWriter, admins adminLister, subscription *pubsub.Subscriber, manager *idempotency.Manager, logg *logger.Logger) (*Consumer, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if admins == nil {
		return nil, fmt.Errorf("admin lister required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("domain subscription required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		repo:         repo,
		admins:       admins,
		subscription: subscription,
		idempotency:  manager,
		decoders:     alertDecoders(),
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

type adminAlert struct {
	title   string
	message string
	link    string
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	eventType := enums.OutboxEventType(msg.Attributes["event_type"])
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": eventType,
	})

	if !c.decoders.Handles(eventType) {
		return processResult{ack: true}
	}

	envelope, eventID, err := outbox.DecodeEnvelope(msg.Data)
	if err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return processResult{ack: true}
	}

	started, err := c.idempotency.Begin(ctx, adminAlertConsumer, eventID)
	switch {
	case errors.Is(err, idempotency.ErrInFlight):
		c.logg.Info(logCtx, "event in flight on another delivery")
		return processResult{nack: true}
	case err != nil:
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	case !started:
		c.logg.Info(logCtx, "event already processed")
		return processResult{ack: true}
	}

	decoded, err := c.decoders.Decode(eventType, envelope.Version, envelope.Data)
	if err != nil {
		c.logg.Error(logCtx, "failed to parse payload", err)
		_ = c.idempotency.Complete(ctx, adminAlertConsumer, eventID)
		return processResult{ack: true}
	}

	if err := c.fanOut(ctx, decoded.(adminAlert)); err != nil {
		c.logg.Error(logCtx, "admin alert failed", err)
		_ = c.idempotency.Release(ctx, adminAlertConsumer, eventID)
		return processResult{nack: true}
	}
	if err := c.idempotency.Complete(ctx, adminAlertConsumer, eventID); err != nil {
		c.logg.Warn(c.logg.WithField(logCtx, "error", err.Error()), "idempotency complete failed")
	}
	c.logg.Info(logCtx, "admins alerted")
	return processResult{ack: true}
}

func alertDecoders() *registry.DecoderRegistry {
	decoders := registry.NewDecoderRegistry()
	registry.RegisterJSON(decoders, enums.EventBalanceRequestCreated, 1, func(p payloads.BalanceRequestCreatedEvent) any {
		return adminAlert{
			title:   "Deposit request pending",
			message: fmt.Sprintf("A deposit request of %s is waiting for review.", p.Amount.StringFixed(2)),
			link:    "/admin/balance/requests",
		}
	})
	registry.RegisterJSON(decoders, enums.EventOrderCreated, 1, func(p payloads.OrderCreatedEvent) any {
		return adminAlert{
			title:   "New order",
			message: fmt.Sprintf("Order %s was placed (%s, %s).", p.OrderNumber, p.TotalAmount.StringFixed(2), p.PaymentMethod),
			link:    "/admin/orders/" + p.OrderID.String(),
		}
	})
	return decoders
}

func (c *Consumer) fanOut(ctx context.Context, alert adminAlert) error {
	admins, err := c.admins.ListActiveAdmins(ctx)
	if err != nil {
		return err
	}
	rows := make([]models.Notification, 0, len(admins))
	for _, admin := range admins {
		link := alert.link
		rows = append(rows, models.Notification{
			UserID:  admin.ID,
			Type:    enums.NotificationTypeSystem,
			Title:   alert.title,
			Message: alert.message,
			Link:    &link,
		})
	}
	return c.repo.CreateMany(ctx, rows)
}
