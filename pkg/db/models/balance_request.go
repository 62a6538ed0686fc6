package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/orderportal/pkg/enums"
)

// BalanceRequest is a user-submitted deposit awaiting admin review.
type BalanceRequest struct {
	ID               uuid.UUID                  `gorm:"column:id;type:uuid;primaryKey"`
	UserID           uuid.UUID                  `gorm:"column:user_id;type:uuid;not null;index"`
	Amount           decimal.Decimal            `gorm:"column:amount;type:numeric(12,2);not null"`
	ReceiptReference string                     `gorm:"column:receipt_reference;type:text;not null"`
	Description      *string                    `gorm:"column:description;type:text"`
	Status           enums.BalanceRequestStatus `gorm:"column:status;type:text;not null;default:'pending';index"`
	AdminNotes       *string                    `gorm:"column:admin_notes;type:text"`
	ProcessedBy      *uuid.UUID                 `gorm:"column:processed_by;type:uuid"`
	ProcessedAt      *time.Time                 `gorm:"column:processed_at"`
	CreatedAt        time.Time                  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time                  `gorm:"column:updated_at;autoUpdateTime"`
}
