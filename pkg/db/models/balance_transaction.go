package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/orderportal/pkg/enums"
)

// BalanceTransaction is an append-only ledger entry. Amount is signed:
// purchases are negative, deposits and refunds positive.
type BalanceTransaction struct {
	ID            uuid.UUID                       `gorm:"column:id;type:uuid;primaryKey"`
	UserID        uuid.UUID                       `gorm:"column:user_id;type:uuid;not null;index:idx_balance_transactions_user_created,priority:1"`
	Type          enums.TransactionType           `gorm:"column:type;type:text;not null"`
	Amount        decimal.Decimal                 `gorm:"column:amount;type:numeric(12,2);not null"`
	BalanceBefore decimal.Decimal                 `gorm:"column:balance_before;type:numeric(12,2);not null"`
	BalanceAfter  decimal.Decimal                 `gorm:"column:balance_after;type:numeric(12,2);not null"`
	Description   string                          `gorm:"column:description;type:text;not null"`
	ReferenceID   *uuid.UUID                      `gorm:"column:reference_id;type:uuid"`
	ReferenceType *enums.TransactionReferenceType `gorm:"column:reference_type;type:text"`
	CreatedBy     *uuid.UUID                      `gorm:"column:created_by;type:uuid"`
	CreatedAt     time.Time                       `gorm:"column:created_at;autoCreateTime;index:idx_balance_transactions_user_created,priority:2"`
}
