package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/orderportal/pkg/config"
	"github.com/angelmondragon/orderportal/pkg/db"
	"github.com/angelmondragon/orderportal/pkg/db/models"
	"github.com/angelmondragon/orderportal/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderportal/pkg/errors"
	"github.com/angelmondragon/orderportal/pkg/logger"
	"github.com/angelmondragon/orderportal/pkg/metrics"
	"github.com/angelmondragon/orderportal/pkg/outbox"
	"github.com/angelmondragon/orderportal/pkg/outbox/payloads"
	"github.com/angelmondragon/orderportal/pkg/pagination"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Service is the single writer of user balances and balance transactions.
type Service interface {
	// Apply mutates a balance inside the caller's transaction. The caller owns commit and
	// is responsible for acting on Result.LowBalance once the unit commits.
	Apply(ctx context.Context, tx *gorm.DB, input ApplyInput) (*Result, error)
	// ApplyStandalone runs Apply in its own transaction and notifies on low balance after commit.
	ApplyStandalone(ctx context.Context, input ApplyInput) (*Result, error)
	// AfterCommit runs the post-commit side effects of a mutation, including the applied
	// metric, so attempts rolled back by a retried unit are not counted. It never fails.
	AfterCommit(ctx context.Context, result *Result)
	Balance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error)
	ListTransactions(ctx context.Context, params ListParams) (*ListResult, error)
	Summary(ctx context.Context, userID uuid.UUID) (*Summary, error)
	FindDrift(ctx context.Context, limit int) ([]Drift, error)
}

// LowBalanceNotifier is told about balances that dropped under the warning threshold.
type LowBalanceNotifier interface {
	NotifyLowBalance(ctx context.Context, userID uuid.UUID, balance decimal.Decimal)
}

// ApplyInput describes one signed ledger mutation.
type ApplyInput struct {
	UserID        uuid.UUID
	Amount        decimal.Decimal
	Type          enums.TransactionType
	Description   string
	ReferenceID   *uuid.UUID
	ReferenceType *enums.TransactionReferenceType
	CreatedBy     *uuid.UUID
}

// Result is the outcome of a committed (or about to be committed) mutation.
type Result struct {
	Transaction   models.BalanceTransaction
	BalanceBefore decimal.Decimal
	BalanceAfter  decimal.Decimal
	LowBalance    bool
}

// ListParams configures transaction history pagination.
type ListParams struct {
	UserID uuid.UUID
	Type   *enums.TransactionType
	Limit  int
	Cursor string
}

// ListResult wraps one page of history and the cursor for the next page.
type ListResult struct {
	Items  []models.BalanceTransaction `json:"items"`
	Cursor string                      `json:"next_cursor,omitempty"`
}

// Summary aggregates a user's ledger. TotalSpent is reported as a positive magnitude.
type Summary struct {
	Balance          decimal.Decimal `json:"balance"`
	TotalDeposited   decimal.Decimal `json:"total_deposited"`
	TotalSpent       decimal.Decimal `json:"total_spent"`
	TotalRefunded    decimal.Decimal `json:"total_refunded"`
	TransactionCount int64           `json:"transaction_count"`
}

type ServiceParams struct {
	Repository Repository
	TxRunner   db.TxRunner
	Outbox     outbox.Emitter
	Config     config.LedgerConfig
	Metrics    *metrics.LedgerMetrics
	Notifier   LowBalanceNotifier
	Logger     *logger.Logger
}

type service struct {
	repo     Repository
	tx       db.TxRunner
	outbox   outbox.Emitter
	cfg      config.LedgerConfig
	metrics  *metrics.LedgerMetrics
	notifier LowBalanceNotifier
	logg     *logger.Logger
}

// NewService wires the ledger with its storage, event and notification dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if params.TxRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Config.MinBalance.GreaterThan(decimal.Zero) {
		return nil, fmt.Errorf("minimum balance must not be positive")
	}
	return &service{
		repo:     params.Repository,
		tx:       params.TxRunner,
		outbox:   params.Outbox,
		cfg:      params.Config,
		metrics:  params.Metrics,
		notifier: params.Notifier,
		logg:     params.Logger,
	}, nil
}

func (s *service) Apply(ctx context.Context, tx *gorm.DB, input ApplyInput) (*Result, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "ledger mutation requires a transaction")
	}
	amount := input.Amount.Round(2)
	if err := validateInput(input, amount); err != nil {
		s.metrics.Observe(string(input.Type), metrics.OutcomeRejected, amount)
		return nil, err
	}

	repo := s.repo.WithTx(tx)
	user, err := repo.LockUser(ctx, input.UserID)
	if err != nil {
		s.metrics.Observe(string(input.Type), metrics.OutcomeError, amount)
		return nil, db.MapError(err, "user not found")
	}

	before := user.Balance.Round(2)
	after := before.Add(amount)
	if after.LessThan(s.cfg.MinBalance) {
		s.metrics.Observe(string(input.Type), metrics.OutcomeInsufficient, amount)
		return nil, pkgerrors.New(pkgerrors.CodeInsufficient, "insufficient balance").WithDetails(map[string]any{
			"balance":  before.StringFixed(2),
			"required": amount.Abs().StringFixed(2),
		})
	}

	description := strings.TrimSpace(input.Description)
	if description == "" {
		description = defaultDescription(input.Type)
	}
	entry := models.BalanceTransaction{
		UserID:        input.UserID,
		Type:          input.Type,
		Amount:        amount,
		BalanceBefore: before,
		BalanceAfter:  after,
		Description:   description,
		ReferenceID:   input.ReferenceID,
		ReferenceType: input.ReferenceType,
		CreatedBy:     input.CreatedBy,
	}

	if err := repo.UpdateBalance(ctx, input.UserID, after); err != nil {
		s.metrics.Observe(string(input.Type), metrics.OutcomeError, amount)
		return nil, db.MapError(err, "update balance")
	}
	if err := repo.InsertTransaction(ctx, &entry); err != nil {
		s.metrics.Observe(string(input.Type), metrics.OutcomeError, amount)
		return nil, db.MapError(err, "record balance transaction")
	}

	event := outbox.DomainEvent{
		EventType:     enums.EventBalanceChanged,
		AggregateType: enums.AggregateUser,
		AggregateID:   input.UserID,
		Data: payloads.BalanceChangedEvent{
			TransactionID: entry.ID,
			UserID:        input.UserID,
			Type:          input.Type,
			Amount:        amount,
			BalanceBefore: before,
			BalanceAfter:  after,
			ReferenceID:   input.ReferenceID,
			ReferenceType: input.ReferenceType,
		},
	}
	if input.CreatedBy != nil {
		event.Actor = &outbox.ActorRef{UserID: *input.CreatedBy}
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		s.metrics.Observe(string(input.Type), metrics.OutcomeError, amount)
		return nil, db.MapError(err, "emit balance event")
	}

	result := &Result{
		Transaction:   entry,
		BalanceBefore: before,
		BalanceAfter:  after,
		LowBalance:    s.isLow(after),
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"user_id":        input.UserID.String(),
			"transaction_id": entry.ID.String(),
			"type":           input.Type,
			"amount":         amount.StringFixed(2),
			"balance_after":  after.StringFixed(2),
		})
		s.logg.Info(logCtx, "ledger.applied")
	}
	return result, nil
}

func (s *service) ApplyStandalone(ctx context.Context, input ApplyInput) (*Result, error) {
	var result *Result
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		applied, err := s.Apply(ctx, tx, input)
		if err != nil {
			return err
		}
		result = applied
		return nil
	})
	if err != nil {
		return nil, db.MapError(err, "apply ledger entry")
	}
	s.AfterCommit(ctx, result)
	return result, nil
}

func (s *service) AfterCommit(ctx context.Context, result *Result) {
	if result == nil {
		return
	}
	s.metrics.Observe(string(result.Transaction.Type), metrics.OutcomeApplied, result.Transaction.Amount)
	if !result.LowBalance {
		return
	}
	s.metrics.IncLowBalance()
	if s.notifier != nil {
		s.notifier.NotifyLowBalance(ctx, result.Transaction.UserID, result.BalanceAfter)
	}
}

func (s *service) Balance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	user, err := s.repo.FindUser(ctx, userID)
	if err != nil {
		return decimal.Zero, db.MapError(err, "user not found")
	}
	return user.Balance.Round(2), nil
}

func (s *service) ListTransactions(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if params.Type != nil && !params.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid transaction type")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	rows, next, err := s.repo.ListTransactions(ctx, listTransactionsParams{
		UserID: params.UserID,
		Type:   params.Type,
		Limit:  params.Limit,
		Cursor: cursor,
	})
	if err != nil {
		return nil, db.MapError(err, "list transactions")
	}

	result := &ListResult{Items: rows}
	if next != nil {
		result.Cursor = pagination.EncodeCursor(*next)
	}
	return result, nil
}

func (s *service) Summary(ctx context.Context, userID uuid.UUID) (*Summary, error) {
	balance, err := s.Balance(ctx, userID)
	if err != nil {
		return nil, err
	}
	totals, err := s.repo.TotalsByType(ctx, userID)
	if err != nil {
		return nil, db.MapError(err, "summarize transactions")
	}

	summary := &Summary{
		Balance:        balance,
		TotalDeposited: decimal.Zero,
		TotalSpent:     decimal.Zero,
		TotalRefunded:  decimal.Zero,
	}
	for _, total := range totals {
		amount := total.Total.Round(2)
		switch total.Type {
		case enums.TransactionTypeDeposit:
			summary.TotalDeposited = amount
		case enums.TransactionTypePurchase:
			summary.TotalSpent = amount.Abs()
		case enums.TransactionTypeRefund:
			summary.TotalRefunded = amount
		}
		summary.TransactionCount += total.Count
	}
	return summary, nil
}

func (s *service) FindDrift(ctx context.Context, limit int) ([]Drift, error) {
	drift, err := s.repo.FindDrift(ctx, limit)
	if err != nil {
		return nil, db.MapError(err, "find balance drift")
	}
	return drift, nil
}

func (s *service) isLow(balance decimal.Decimal) bool {
	return !balance.LessThan(s.cfg.MinBalance) && balance.LessThan(s.cfg.LowBalanceThreshold)
}

func validateInput(input ApplyInput, amount decimal.Decimal) error {
	if input.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if !input.Type.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid transaction type")
	}
	if amount.IsZero() {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must not be zero")
	}
	if input.Type.IsCredit() != amount.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount sign does not match transaction type").
			WithDetails(map[string]any{"type": input.Type, "amount": amount.StringFixed(2)})
	}
	if input.ReferenceType != nil && !input.ReferenceType.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid reference type")
	}
	if (input.ReferenceID == nil) != (input.ReferenceType == nil) {
		return pkgerrors.New(pkgerrors.CodeValidation, "reference id and type must be set together")
	}
	return nil
}

func defaultDescription(txType enums.TransactionType) string {
	switch txType {
	case enums.TransactionTypeDeposit:
		return "Balance deposit"
	case enums.TransactionTypeRefund:
		return "Order refund"
	default:
		return "Order payment"
	}
}
