package ledger

import (
	"context"
	"time"

	"github.com/angelmondragon/orderportal/pkg/db/models"
	"github.com/angelmondragon/orderportal/pkg/enums"
	"github.com/angelmondragon/orderportal/pkg/pagination"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository manages persistence for user balances and the transaction log.
// Ledger rows are append-only: there is no update or delete.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	LockUser(ctx context.Context, userID uuid.UUID) (*models.User, error)
	FindUser(ctx context.Context, userID uuid.UUID) (*models.User, error)
	UpdateBalance(ctx context.Context, userID uuid.UUID, balance decimal.Decimal) error
	InsertTransaction(ctx context.Context, entry *models.BalanceTransaction) error
	ListTransactions(ctx context.Context, params listTransactionsParams) ([]models.BalanceTransaction, *pagination.Cursor, error)
	TotalsByType(ctx context.Context, userID uuid.UUID) ([]typeTotal, error)
	FindDrift(ctx context.Context, limit int) ([]Drift, error)
}

type repository struct {
	db *gorm.DB
}

type listTransactionsParams struct {
	UserID uuid.UUID
	Type   *enums.TransactionType
	Limit  int
	Cursor *pagination.Cursor
}

type typeTotal struct {
	Type  enums.TransactionType `gorm:"column:type"`
	Total decimal.Decimal       `gorm:"column:total"`
	Count int64                 `gorm:"column:count"`
}

// Drift describes a user whose stored balance disagrees with the sum of their ledger.
type Drift struct {
	UserID      uuid.UUID       `gorm:"column:user_id" json:"user_id"`
	Balance     decimal.Decimal `gorm:"column:balance" json:"balance"`
	LedgerTotal decimal.Decimal `gorm:"column:ledger_total" json:"ledger_total"`
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) LockUser(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", userID).
		First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *repository) FindUser(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("id = ?", userID).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *repository) UpdateBalance(ctx context.Context, userID uuid.UUID, balance decimal.Decimal) error {
	result := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Update("balance", balance)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) InsertTransaction(ctx context.Context, entry *models.BalanceTransaction) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) ListTransactions(ctx context.Context, params listTransactionsParams) ([]models.BalanceTransaction, *pagination.Cursor, error) {
	query := r.db.WithContext(ctx).Model(&models.BalanceTransaction{}).Where("user_id = ?", params.UserID)
	if params.Type != nil {
		query = query.Where("type = ?", *params.Type)
	}

	var rows []models.BalanceTransaction
	if err := query.Scopes(pagination.Scope(params.Cursor, params.Limit)).Find(&rows).Error; err != nil {
		return nil, nil, err
	}
	page, next := pagination.Page(rows, params.Limit, func(tx models.BalanceTransaction) (time.Time, uuid.UUID) {
		return tx.CreatedAt, tx.ID
	})
	return page, next, nil
}

func (r *repository) TotalsByType(ctx context.Context, userID uuid.UUID) ([]typeTotal, error) {
	var totals []typeTotal
	if err := r.db.WithContext(ctx).
		Model(&models.BalanceTransaction{}).
		Select("type, COALESCE(SUM(amount), 0) AS total, COUNT(*) AS count").
		Where("user_id = ?", userID).
		Group("type").
		Scan(&totals).Error; err != nil {
		return nil, err
	}
	return totals, nil
}

func (r *repository) FindDrift(ctx context.Context, limit int) ([]Drift, error) {
	var drift []Drift
	query := r.db.WithContext(ctx).
		Table("users AS u").
		Select("u.id AS user_id, u.balance AS balance, ROUND(COALESCE(SUM(t.amount), 0), 2) AS ledger_total").
		Joins("LEFT JOIN balance_transactions AS t ON t.user_id = u.id").
		Group("u.id, u.balance").
		Having("u.balance <> ROUND(COALESCE(SUM(t.amount), 0), 2)").
		Order("u.id")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Scan(&drift).Error; err != nil {
		return nil, err
	}
	return drift, nil
}
