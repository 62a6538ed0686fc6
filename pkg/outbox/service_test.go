package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderportal/pkg/db/dbtest"
	"github.com/angelmondragon/orderportal/pkg/db/models"
	"github.com/angelmondragon/orderportal/pkg/enums"
)

type orderPlaced struct {
	OrderNumber string `json:"orderNumber"`
}

func TestEmitWritesEnvelopeInsideTransaction(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	svc := NewService(repo, nil)
	orderID := uuid.New()
	actor := uuid.New()

	err := conn.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Actor:         &ActorRef{UserID: actor, Role: "user"},
			Data:          orderPlaced{OrderNumber: "ORD-20260101-ZZ99"},
		})
	})
	require.NoError(t, err)

	var rows []models.OutboxEvent
	require.NoError(t, conn.Find(&rows).Error)
	require.Len(t, rows, 1)
	require.Equal(t, orderID, rows[0].AggregateID)

	envelope, eventID, err := DecodeEnvelope(rows[0].Payload)
	require.NoError(t, err)
	require.Equal(t, 1, envelope.Version)
	require.Equal(t, rows[0].ID, eventID, "event id doubles as the outbox row id")
	require.Equal(t, enums.EventOrderCreated, envelope.EventType)
	require.Equal(t, actor, envelope.Actor.UserID)

	var data orderPlaced
	require.NoError(t, json.Unmarshal(envelope.Data, &data))
	require.Equal(t, "ORD-20260101-ZZ99", data.OrderNumber)
}

func TestEmitRollsBackWithTransaction(t *testing.T) {
	conn := dbtest.Open(t)
	svc := NewService(NewRepository(conn), nil)

	boom := errors.New("order insert failed")
	err := conn.Transaction(func(tx *gorm.DB) error {
		if err := svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventBalanceChanged,
			AggregateType: enums.AggregateUser,
			AggregateID:   uuid.New(),
			Data:          map[string]string{"type": "purchase"},
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var count int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestEmitRejectsUnknownEventAndMissingTx(t *testing.T) {
	conn := dbtest.Open(t)
	svc := NewService(NewRepository(conn), nil)

	require.Error(t, svc.Emit(context.Background(), nil, DomainEvent{EventType: enums.EventOrderCreated}))
	require.Error(t, svc.Emit(context.Background(), conn, DomainEvent{EventType: "store_created", AggregateID: uuid.New()}))
	require.Error(t, svc.Emit(context.Background(), conn, DomainEvent{EventType: enums.EventOrderCreated, AggregateType: enums.AggregateOrder}))
}

func TestDecodeEnvelopeRejectsMalformedBodies(t *testing.T) {
	for name, body := range map[string]string{
		"not json":     `{`,
		"bad event id": `{"version":1,"eventId":"nope","data":{}}`,
		"zero version": `{"version":0,"eventId":"` + uuid.NewString() + `","data":{}}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, _, err := DecodeEnvelope([]byte(body))
			require.ErrorIs(t, err, ErrMalformedEnvelope)
		})
	}
}

func TestRepositoryPublishLifecycle(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	first := models.OutboxEvent{EventType: enums.EventOrderCreated, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`)}
	second := models.OutboxEvent{EventType: enums.EventOrderCancelled, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`)}
	require.NoError(t, repo.Insert(ctx, conn, first))
	require.NoError(t, repo.Insert(ctx, conn, second))

	var claimed []models.OutboxEvent
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		var err error
		claimed, err = repo.FetchUnpublishedForPublish(ctx, tx, 10, 3)
		if err != nil {
			return err
		}
		if err := repo.MarkPublishedTx(ctx, tx, claimed[0].ID); err != nil {
			return err
		}
		return repo.MarkTerminalTx(ctx, tx, claimed[1].ID, errors.New("bad payload"), 3)
	}))
	require.Len(t, claimed, 2)

	pending, err := repo.CountPending(ctx, 3)
	require.NoError(t, err)
	require.Zero(t, pending)

	deleted, err := repo.DeletePublishedBefore(ctx, time.Now().UTC().Add(time.Minute))
	require.NoError(t, err)
	require.EqualValues(t, 1, deleted)
}

func deadLetter(eventID uuid.UUID, reason enums.OutboxDLQErrorReason, msg string) models.OutboxDLQ {
	return models.OutboxDLQ{
		EventID:       eventID,
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{"event_id":"` + eventID.String() + `"}`),
		ErrorReason:   reason,
		ErrorMessage:  &msg,
	}
}

func TestDLQRepositoryTruncatesMessage(t *testing.T) {
	conn := dbtest.Open(t)
	dlq := NewDLQRepository(conn)
	ctx := context.Background()

	eventID := uuid.New()
	require.NoError(t, dlq.InsertTx(ctx, conn, deadLetter(eventID, enums.OutboxDLQReasonNonRetryable, strings.Repeat("x", maxDLQErrorLen+200))))
	require.NoError(t, dlq.InsertTx(ctx, conn, deadLetter(uuid.New(), enums.OutboxDLQReasonMaxAttempts, "timeout")))

	found, err := dlq.FindByEventID(ctx, eventID)
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Len(t, *found.ErrorMessage, maxDLQErrorLen)

	missing, err := dlq.FindByEventID(ctx, uuid.New())
	require.NoError(t, err)
	require.Nil(t, missing)

	rows, err := dlq.List(ctx, DLQFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	rows, err = dlq.List(ctx, DLQFilter{Reason: enums.OutboxDLQReasonMaxAttempts})
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestDLQRequeueResetsOrRecreatesEvent(t *testing.T) {
	conn := dbtest.Open(t)
	dlq := NewDLQRepository(conn)
	ctx := context.Background()

	kept := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{}`),
		AttemptCount:  10,
	}
	require.NoError(t, conn.Create(&kept).Error)
	require.NoError(t, dlq.InsertTx(ctx, conn, deadLetter(kept.ID, enums.OutboxDLQReasonMaxAttempts, "timeout")))

	purgedID := uuid.New()
	require.NoError(t, dlq.InsertTx(ctx, conn, deadLetter(purgedID, enums.OutboxDLQReasonNonRetryable, "bad topic")))

	require.NoError(t, dlq.Requeue(ctx, kept.ID))
	require.NoError(t, dlq.Requeue(ctx, purgedID))

	var reset models.OutboxEvent
	require.NoError(t, conn.First(&reset, "id = ?", kept.ID).Error)
	require.Zero(t, reset.AttemptCount)
	require.Nil(t, reset.LastError)

	var recreated models.OutboxEvent
	require.NoError(t, conn.First(&recreated, "id = ?", purgedID).Error)
	require.Equal(t, enums.EventOrderCreated, recreated.EventType)

	rows, err := dlq.List(ctx, DLQFilter{})
	require.NoError(t, err)
	require.Empty(t, rows)

	require.ErrorIs(t, dlq.Requeue(ctx, uuid.New()), ErrDLQEntryNotFound)
}
