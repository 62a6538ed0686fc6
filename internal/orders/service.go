package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/orderportal/internal/ledger"
	"github.com/angelmondragon/orderportal/pkg/db"
	"github.com/angelmondragon/orderportal/pkg/db/models"
	"github.com/angelmondragon/orderportal/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderportal/pkg/errors"
	"github.com/angelmondragon/orderportal/pkg/logger"
	"github.com/angelmondragon/orderportal/pkg/outbox"
	"github.com/angelmondragon/orderportal/pkg/outbox/payloads"
	"github.com/angelmondragon/orderportal/pkg/pagination"
	"github.com/angelmondragon/orderportal/pkg/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Service defines order lifecycle operations after checkout.
type Service interface {
	CancelOrder(ctx context.Context, actor types.Actor, orderID uuid.UUID, reason string) (*CancelResult, error)
	UpdateStatus(ctx context.Context, actor types.Actor, orderID uuid.UUID, status enums.OrderStatus, adminNotes string) (*StatusResult, error)
	Get(ctx context.Context, actor types.Actor, orderID uuid.UUID) (*models.Order, error)
	List(ctx context.Context, actor types.Actor, params ListParams) (*ListResult, error)
}

type ServiceParams struct {
	Repository Repository
	TxRunner   db.TxRunner
	Ledger     ledger.Service
	Outbox     outbox.Emitter
	Notifier   Notifier
	Logger     *logger.Logger
}

type service struct {
	repo     Repository
	tx       db.TxRunner
	ledger   ledger.Service
	outbox   outbox.Emitter
	notifier Notifier
	logg     *logger.Logger
}

// NewService builds the order lifecycle service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.TxRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{
		repo:     params.Repository,
		tx:       params.TxRunner,
		ledger:   params.Ledger,
		outbox:   params.Outbox,
		notifier: params.Notifier,
		logg:     params.Logger,
	}, nil
}

// cancellation carries what the post-commit side effects need.
type cancellation struct {
	order   models.Order
	from    enums.OrderStatus
	refund  decimal.Decimal
	applied *ledger.Result
}

func (s *service) CancelOrder(ctx context.Context, actor types.Actor, orderID uuid.UUID, reason string) (*CancelResult, error) {
	if actor.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	var done *cancellation
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		done, err = s.cancelInTx(ctx, tx, actor, orderID, strings.TrimSpace(reason), "")
		return err
	})
	if err != nil {
		return nil, db.MapError(err, "cancel order")
	}

	s.afterCancel(ctx, actor, done)

	result := &CancelResult{
		OrderID:      done.order.ID,
		OrderNumber:  done.order.OrderNumber,
		Status:       enums.OrderStatusCancelled,
		RefundAmount: done.refund,
	}
	if done.applied != nil {
		balance := done.applied.BalanceAfter
		result.NewBalance = &balance
	}
	return result, nil
}

func (s *service) cancelInTx(ctx context.Context, tx *gorm.DB, actor types.Actor, orderID uuid.UUID, reason, adminNotes string) (*cancellation, error) {
	repo := s.repo.WithTx(tx)
	order, err := repo.LockByID(ctx, orderID)
	if err != nil {
		return nil, db.MapError(err, "order not found")
	}
	if !actor.CanAccessUser(order.UserID) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	from := order.Status
	if err := ValidateTransition(from, enums.OrderStatusCancelled); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	updates := map[string]any{
		"status":       enums.OrderStatusCancelled,
		"cancelled_by": actor.UserID,
		"cancelled_at": now,
	}
	cancelReason := firstNonEmpty(reason, adminNotes)
	if cancelReason != "" {
		updates["cancel_reason"] = cancelReason
	}
	if adminNotes != "" {
		updates["admin_notes"] = adminNotes
	}
	if err := repo.Update(ctx, order.ID, updates); err != nil {
		return nil, db.MapError(err, "update order status")
	}

	done := &cancellation{order: *order, from: from, refund: decimal.Zero}
	done.order.Status = enums.OrderStatusCancelled
	done.order.CancelledAt = &now
	done.order.CancelledBy = &actor.UserID
	if cancelReason != "" {
		done.order.CancelReason = &cancelReason
	}

	if order.PaymentMethod.SettlesThroughLedger() && order.TotalAmount.IsPositive() {
		refType := enums.ReferenceTypeOrder
		applied, err := s.ledger.Apply(ctx, tx, ledger.ApplyInput{
			UserID:        order.UserID,
			Amount:        order.TotalAmount,
			Type:          enums.TransactionTypeRefund,
			Description:   fmt.Sprintf("Refund for order %s", order.OrderNumber),
			ReferenceID:   &order.ID,
			ReferenceType: &refType,
			CreatedBy:     &actor.UserID,
		})
		if err != nil {
			return nil, err
		}
		done.refund = order.TotalAmount
		done.applied = applied
	}

	event := outbox.DomainEvent{
		EventType:     enums.EventOrderCancelled,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         actorRef(actor),
		Data: payloads.OrderCancelledEvent{
			OrderID:      order.ID,
			OrderNumber:  order.OrderNumber,
			UserID:       order.UserID,
			From:         from,
			RefundAmount: done.refund,
			CancelledBy:  actor.UserID,
			Reason:       cancelReason,
			CancelledAt:  now,
		},
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return nil, err
	}
	return done, nil
}

func (s *service) afterCancel(ctx context.Context, actor types.Actor, done *cancellation) {
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"order_id":      done.order.ID.String(),
			"order_number":  done.order.OrderNumber,
			"from_status":   done.from,
			"refund_amount": done.refund.StringFixed(2),
			"actor_id":      actor.UserID.String(),
			"actor_admin":   actor.IsAdmin,
		})
		s.logg.Info(logCtx, "order.cancelled")
	}
	if done.applied != nil {
		s.ledger.AfterCommit(ctx, done.applied)
	}
	if s.notifier == nil {
		return
	}
	message := cancelMessage(done.order, done.refund)
	s.notifier.Notify(ctx, done.order.UserID, enums.NotificationTypeOrder, "Order cancelled", message, orderLink(done.order.ID))
	s.notifier.EmailUser(ctx, done.order.UserID, fmt.Sprintf("Order %s cancelled", done.order.OrderNumber), message)
}

func (s *service) UpdateStatus(ctx context.Context, actor types.Actor, orderID uuid.UUID, status enums.OrderStatus, adminNotes string) (*StatusResult, error) {
	if !actor.IsAdmin {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status")
	}
	adminNotes = strings.TrimSpace(adminNotes)

	if status == enums.OrderStatusCancelled {
		var done *cancellation
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			var err error
			done, err = s.cancelInTx(ctx, tx, actor, orderID, "", adminNotes)
			return err
		})
		if err != nil {
			return nil, db.MapError(err, "cancel order")
		}
		s.afterCancel(ctx, actor, done)
		refund := done.refund
		return &StatusResult{
			OrderID:        done.order.ID,
			OrderNumber:    done.order.OrderNumber,
			PreviousStatus: done.from,
			Status:         enums.OrderStatusCancelled,
			RefundAmount:   &refund,
		}, nil
	}

	var (
		order models.Order
		from  enums.OrderStatus
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		locked, err := repo.LockByID(ctx, orderID)
		if err != nil {
			return db.MapError(err, "order not found")
		}
		from = locked.Status
		if err := ValidateTransition(from, status); err != nil {
			return err
		}

		updates := map[string]any{"status": status}
		if adminNotes != "" {
			updates["admin_notes"] = adminNotes
		}
		if err := repo.Update(ctx, locked.ID, updates); err != nil {
			return db.MapError(err, "update order status")
		}
		order = *locked
		order.Status = status

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderStatusChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   locked.ID,
			Actor:         actorRef(actor),
			Data: payloads.OrderStatusChangedEvent{
				OrderID:     locked.ID,
				OrderNumber: locked.OrderNumber,
				UserID:      locked.UserID,
				From:        from,
				To:          status,
				AdminNotes:  adminNotes,
			},
		})
	})
	if err != nil {
		return nil, db.MapError(err, "update order status")
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"order_id":    order.ID.String(),
			"from_status": from,
			"to_status":   status,
			"actor_id":    actor.UserID.String(),
		})
		s.logg.Info(logCtx, "order.status_changed")
	}
	if s.notifier != nil {
		message := statusMessage(status)
		s.notifier.Notify(ctx, order.UserID, enums.NotificationTypeOrder, "Order status updated", message, orderLink(order.ID))
		s.notifier.EmailUser(ctx, order.UserID, fmt.Sprintf("Order %s: %s", order.OrderNumber, status), message)
	}

	return &StatusResult{
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		PreviousStatus: from,
		Status:         status,
	}, nil
}

func (s *service) Get(ctx context.Context, actor types.Actor, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, db.MapError(err, "order not found")
	}
	if !actor.CanAccessUser(order.UserID) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

func (s *service) List(ctx context.Context, actor types.Actor, params ListParams) (*ListResult, error) {
	if params.Status != nil && !params.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	query := listOrdersParams{Status: params.Status, Limit: params.Limit, Cursor: cursor}
	switch {
	case !actor.IsAdmin:
		owner := actor.UserID
		query.UserID = &owner
	case params.UserID != nil:
		query.UserID = params.UserID
	}

	rows, next, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, db.MapError(err, "list orders")
	}
	result := &ListResult{Orders: rows}
	if next != nil {
		result.NextCursor = pagination.EncodeCursor(*next)
	}
	return result, nil
}

func actorRef(actor types.Actor) *outbox.ActorRef {
	role := enums.UserRoleUser
	if actor.IsAdmin {
		role = enums.UserRoleAdmin
	}
	return &outbox.ActorRef{UserID: actor.UserID, Role: string(role)}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
