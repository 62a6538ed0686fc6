package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/orderportal/pkg/enums"
	"github.com/angelmondragon/orderportal/pkg/types"
)

// Order is a settled purchase. TotalAmount never changes after creation.
type Order struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	OrderNumber   string              `gorm:"column:order_number;type:text;not null;uniqueIndex"`
	UserID        uuid.UUID           `gorm:"column:user_id;type:uuid;not null;index:idx_orders_user_created,priority:1"`
	TotalAmount   decimal.Decimal     `gorm:"column:total_amount;type:numeric(12,2);not null"`
	Status        enums.OrderStatus   `gorm:"column:status;type:text;not null;default:'pending';index"`
	PaymentMethod enums.PaymentMethod `gorm:"column:payment_method;type:text;not null;default:'balance'"`
	Notes         *string             `gorm:"column:notes;type:text"`
	AdminNotes    *string             `gorm:"column:admin_notes;type:text"`
	CancelReason  *string             `gorm:"column:cancel_reason;type:text"`
	CancelledBy   *uuid.UUID          `gorm:"column:cancelled_by;type:uuid"`
	CancelledAt   *time.Time          `gorm:"column:cancelled_at"`
	Items         []OrderItem         `gorm:"foreignKey:OrderID"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime;index:idx_orders_user_created,priority:2"`
	UpdatedAt     time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// OrderItem snapshots product name and price at checkout.
type OrderItem struct {
	ID          uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	OrderID     uuid.UUID              `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID   uuid.UUID              `gorm:"column:product_id;type:uuid;not null"`
	ProductName string                 `gorm:"column:product_name;type:text;not null"`
	Quantity    int                    `gorm:"column:quantity;not null"`
	UnitPrice   decimal.Decimal        `gorm:"column:unit_price;type:numeric(12,2);not null"`
	Options     types.OrderItemOptions `gorm:"column:options;type:jsonb;serializer:json"`
	LineTotal   decimal.Decimal        `gorm:"column:line_total;type:numeric(12,2);not null"`
	Notes       *string                `gorm:"column:notes;type:text"`
	CreatedAt   time.Time              `gorm:"column:created_at;autoCreateTime"`
}
