package balancerequests

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/orderportal/internal/ledger"
	"github.com/angelmondragon/orderportal/pkg/config"
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

const (
	maxReceiptLength = 500
	requestWindow    = time.Hour
)

// Service covers both ways money enters a balance: the reviewed request queue and direct admin adjustment.
type Service interface {
	Request(ctx context.Context, actor types.Actor, input RequestInput) (*models.BalanceRequest, error)
	Resolve(ctx context.Context, actor types.Actor, requestID uuid.UUID, decision Decision, adminNotes string) (*ResolveResult, error)
	AdjustDirect(ctx context.Context, actor types.Actor, input AdjustInput) (*AdjustResult, error)
	ListMine(ctx context.Context, actor types.Actor, params ListParams) (*ListResult, error)
	ListPending(ctx context.Context, actor types.Actor, params ListParams) (*ListResult, error)
}

// Notifier delivers post-commit messages. Failures are handled by the implementation.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, kind enums.NotificationType, title, message, link string)
	EmailUser(ctx context.Context, userID uuid.UUID, subject, body string)
	EmailAdmin(ctx context.Context, subject, body string)
}

// RateLimiter is satisfied by the redis client.
type RateLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

type ServiceParams struct {
	Repository Repository
	TxRunner   db.TxRunner
	Ledger     ledger.Service
	Outbox     outbox.Emitter
	Config     config.LedgerConfig
	Limiter    RateLimiter
	Notifier   Notifier
	Logger     *logger.Logger
}

type service struct {
	repo     Repository
	tx       db.TxRunner
	ledger   ledger.Service
	outbox   outbox.Emitter
	cfg      config.LedgerConfig
	limiter  RateLimiter
	notifier Notifier
	logg     *logger.Logger
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("balance request repository required")
	}
	if params.TxRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if !params.Config.MaxDepositRequest.IsPositive() {
		return nil, fmt.Errorf("max deposit request must be positive")
	}
	return &service{
		repo:     params.Repository,
		tx:       params.TxRunner,
		ledger:   params.Ledger,
		outbox:   params.Outbox,
		cfg:      params.Config,
		limiter:  params.Limiter,
		notifier: params.Notifier,
		logg:     params.Logger,
	}, nil
}

func (s *service) Request(ctx context.Context, actor types.Actor, input RequestInput) (*models.BalanceRequest, error) {
	if actor.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	amount := input.Amount.Round(2)
	if !amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be greater than zero")
	}
	if amount.GreaterThan(s.cfg.MaxDepositRequest) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("amount must not exceed %s", s.cfg.MaxDepositRequest.StringFixed(2)))
	}
	receipt := strings.TrimSpace(input.ReceiptReference)
	if receipt == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "receipt reference is required")
	}
	if len(receipt) > maxReceiptLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "receipt reference is too long")
	}
	if err := s.checkRate(ctx, actor.UserID); err != nil {
		return nil, err
	}

	request := &models.BalanceRequest{
		UserID:           actor.UserID,
		Amount:           amount,
		ReceiptReference: receipt,
		Status:           enums.BalanceRequestStatusPending,
	}
	if description := strings.TrimSpace(input.Description); description != "" {
		request.Description = &description
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, request); err != nil {
			return db.MapError(err, "create balance request")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventBalanceRequestCreated,
			AggregateType: enums.AggregateBalanceRequest,
			AggregateID:   request.ID,
			Actor:         &outbox.ActorRef{UserID: actor.UserID, Role: string(enums.UserRoleUser)},
			Data: payloads.BalanceRequestCreatedEvent{
				RequestID:        request.ID,
				UserID:           actor.UserID,
				Amount:           amount,
				ReceiptReference: receipt,
			},
		})
	})
	if err != nil {
		return nil, db.MapError(err, "create balance request")
	}

	if s.logg != nil {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"request_id": request.ID.String(),
			"user_id":    actor.UserID.String(),
			"amount":     amount.StringFixed(2),
		}), "balance_request.created")
	}
	if s.notifier != nil {
		s.notifier.Notify(ctx, actor.UserID, enums.NotificationTypeBalance, "Deposit request received",
			fmt.Sprintf("Your deposit request of %s is awaiting review.", amount.StringFixed(2)), "/balance")
		s.notifier.EmailAdmin(ctx, "New deposit request",
			fmt.Sprintf("A deposit request of %s (receipt %s) is waiting for review.", amount.StringFixed(2), receipt))
	}
	return request, nil
}

func (s *service) checkRate(ctx context.Context, userID uuid.UUID) error {
	if s.limiter == nil || s.cfg.DepositRequestLimit <= 0 {
		return nil
	}
	allowed, _, err := s.limiter.FixedWindowAllow(ctx, "deposit_request:"+userID.String(), int64(s.cfg.DepositRequestLimit), requestWindow)
	if err != nil {
		if s.logg != nil {
			s.logg.Warn(s.logg.WithField(ctx, "user_id", userID.String()), "deposit request rate limit unavailable")
		}
		return nil
	}
	if !allowed {
		return pkgerrors.New(pkgerrors.CodeRateLimit, "too many deposit requests, try again later")
	}
	return nil
}

type resolution struct {
	request models.BalanceRequest
	applied *ledger.Result
}

func (s *service) Resolve(ctx context.Context, actor types.Actor, requestID uuid.UUID, decision Decision, adminNotes string) (*ResolveResult, error) {
	if !actor.IsAdmin {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	if requestID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "request id required")
	}
	if !decision.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "decision must be approve or reject")
	}
	adminNotes = strings.TrimSpace(adminNotes)

	var done resolution
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		request, err := repo.LockByID(ctx, requestID)
		if err != nil {
			return db.MapError(err, "balance request not found")
		}
		if request.Status != enums.BalanceRequestStatusPending {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "request is not pending").
				WithDetails(map[string]any{"status": request.Status})
		}

		if decision == DecisionApprove {
			refType := enums.ReferenceTypeBalanceRequest
			done.applied, err = s.ledger.Apply(ctx, tx, ledger.ApplyInput{
				UserID:        request.UserID,
				Amount:        request.Amount,
				Type:          enums.TransactionTypeDeposit,
				Description:   "Deposit request approved",
				ReferenceID:   &request.ID,
				ReferenceType: &refType,
				CreatedBy:     &actor.UserID,
			})
			if err != nil {
				return err
			}
		}

		now := time.Now().UTC()
		status := decision.ResultingStatus()
		updates := map[string]any{
			"status":       status,
			"processed_by": actor.UserID,
			"processed_at": now,
		}
		if adminNotes != "" {
			updates["admin_notes"] = adminNotes
		}
		if err := repo.Update(ctx, request.ID, updates); err != nil {
			return db.MapError(err, "update balance request")
		}
		request.Status = status
		request.ProcessedBy = &actor.UserID
		request.ProcessedAt = &now
		done.request = *request

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventBalanceRequestResolved,
			AggregateType: enums.AggregateBalanceRequest,
			AggregateID:   request.ID,
			Actor:         &outbox.ActorRef{UserID: actor.UserID, Role: string(enums.UserRoleAdmin)},
			Data: payloads.BalanceRequestResolvedEvent{
				RequestID:   request.ID,
				UserID:      request.UserID,
				Amount:      request.Amount,
				Status:      status,
				ProcessedBy: actor.UserID,
				AdminNotes:  adminNotes,
			},
		})
	})
	if err != nil {
		return nil, db.MapError(err, "resolve balance request")
	}

	s.afterResolve(ctx, actor, done, adminNotes)

	result := &ResolveResult{RequestID: done.request.ID, Status: done.request.Status}
	if done.applied != nil {
		balance := done.applied.BalanceAfter
		result.NewBalance = &balance
	}
	return result, nil
}

func (s *service) afterResolve(ctx context.Context, actor types.Actor, done resolution, adminNotes string) {
	request := done.request
	if s.logg != nil {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"request_id": request.ID.String(),
			"user_id":    request.UserID.String(),
			"status":     request.Status,
			"amount":     request.Amount.StringFixed(2),
			"admin_id":   actor.UserID.String(),
		}), "balance_request.resolved")
	}
	if done.applied != nil {
		s.ledger.AfterCommit(ctx, done.applied)
	}
	if s.notifier == nil {
		return
	}
	var title, message string
	if request.Status == enums.BalanceRequestStatusApproved {
		title = "Deposit approved"
		message = fmt.Sprintf("Your deposit of %s has been added to your balance.", request.Amount.StringFixed(2))
	} else {
		title = "Deposit rejected"
		message = fmt.Sprintf("Your deposit request of %s was rejected.", request.Amount.StringFixed(2))
	}
	if adminNotes != "" {
		message += " Note: " + adminNotes
	}
	s.notifier.Notify(ctx, request.UserID, enums.NotificationTypeBalance, title, message, "/balance")
	s.notifier.EmailUser(ctx, request.UserID, title, message)
}

// AdjustDirect credits or debits a balance without a request. It is audited separately from the request queue.
func (s *service) AdjustDirect(ctx context.Context, actor types.Actor, input AdjustInput) (*AdjustResult, error) {
	if !actor.IsAdmin {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	amount := input.Amount.Round(2)
	if amount.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must not be zero")
	}
	txType := enums.TransactionTypeDeposit
	if amount.IsNegative() {
		txType = enums.TransactionTypePurchase
	}
	description := strings.TrimSpace(input.Description)
	if description == "" {
		description = "Balance adjustment by administrator"
	}

	var applied *ledger.Result
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		refType := enums.ReferenceTypeAdminAdjustment
		var err error
		applied, err = s.ledger.Apply(ctx, tx, ledger.ApplyInput{
			UserID:        input.UserID,
			Amount:        amount,
			Type:          txType,
			Description:   description,
			ReferenceID:   &actor.UserID,
			ReferenceType: &refType,
			CreatedBy:     &actor.UserID,
		})
		if err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventBalanceAdjusted,
			AggregateType: enums.AggregateUser,
			AggregateID:   input.UserID,
			Actor:         &outbox.ActorRef{UserID: actor.UserID, Role: string(enums.UserRoleAdmin)},
			Data: payloads.BalanceAdjustedEvent{
				TransactionID: applied.Transaction.ID,
				UserID:        input.UserID,
				AdminID:       actor.UserID,
				Amount:        amount,
				BalanceAfter:  applied.BalanceAfter,
				Description:   description,
			},
		})
	})
	if err != nil {
		return nil, db.MapError(err, "adjust balance")
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"user_id":        input.UserID.String(),
			"admin_id":       actor.UserID.String(),
			"transaction_id": applied.Transaction.ID.String(),
		})
		logCtx = s.logg.WithAmount(logCtx, "amount", amount)
		s.logg.Warn(s.logg.WithAmount(logCtx, "balance_after", applied.BalanceAfter), "balance.adjusted_directly")
	}
	s.ledger.AfterCommit(ctx, applied)
	if s.notifier != nil {
		message := fmt.Sprintf("Your balance was adjusted by %s. New balance: %s.", signed(amount), applied.BalanceAfter.StringFixed(2))
		s.notifier.Notify(ctx, input.UserID, enums.NotificationTypeBalance, "Balance adjusted", message, "/balance")
	}

	return &AdjustResult{TransactionID: applied.Transaction.ID, NewBalance: applied.BalanceAfter}, nil
}

func (s *service) ListMine(ctx context.Context, actor types.Actor, params ListParams) (*ListResult, error) {
	owner := actor.UserID
	return s.list(ctx, listParams{UserID: &owner, Limit: params.Limit}, params.Cursor)
}

func (s *service) ListPending(ctx context.Context, actor types.Actor, params ListParams) (*ListResult, error) {
	if !actor.IsAdmin {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	pending := enums.BalanceRequestStatusPending
	return s.list(ctx, listParams{Status: &pending, Limit: params.Limit}, params.Cursor)
}

func (s *service) list(ctx context.Context, query listParams, rawCursor string) (*ListResult, error) {
	cursor, err := pagination.ParseCursor(rawCursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	query.Cursor = cursor
	rows, next, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, db.MapError(err, "list balance requests")
	}
	result := &ListResult{Requests: rows}
	if next != nil {
		result.NextCursor = pagination.EncodeCursor(*next)
	}
	return result, nil
}

func signed(amount decimal.Decimal) string {
	if amount.IsPositive() {
		return "+" + amount.StringFixed(2)
	}
	return amount.StringFixed(2)
}
