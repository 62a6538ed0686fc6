package models

import (
	"time"

	"github.com/google/uuid"
)

// CartItem is a pending line in a user's cart.
type CartItem struct {
	ID        uuid.UUID   `gorm:"column:id;type:uuid;primaryKey"`
	UserID    uuid.UUID   `gorm:"column:user_id;type:uuid;not null;index"`
	ProductID uuid.UUID   `gorm:"column:product_id;type:uuid;not null"`
	Quantity  int         `gorm:"column:quantity;not null"`
	OptionIDs []uuid.UUID `gorm:"column:option_ids;type:jsonb;serializer:json"`
	Notes     *string     `gorm:"column:notes;type:text"`
	CreatedAt time.Time   `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time   `gorm:"column:updated_at;autoUpdateTime"`
}
