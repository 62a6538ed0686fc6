package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product is a catalog entry that can be ordered.
type Product struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	Name        string          `gorm:"column:name;type:text;not null"`
	Description *string         `gorm:"column:description;type:text"`
	Category    string          `gorm:"column:category;type:text;not null;default:''"`
	Price       decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null"`
	IsActive    bool            `gorm:"column:is_active;not null;default:true"`
	IsAvailable bool            `gorm:"column:is_available;not null;default:true"`
	OrderCount  int             `gorm:"column:order_count;not null;default:0"`
	Options     []ProductOption `gorm:"foreignKey:ProductID"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// Orderable reports whether the product may be added to a new order.
func (p Product) Orderable() bool {
	return p.IsActive && p.IsAvailable
}

// ProductOption is an add-on whose surcharge is added to the unit price.
type ProductOption struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	ProductID   uuid.UUID       `gorm:"column:product_id;type:uuid;not null;index"`
	Name        string          `gorm:"column:name;type:text;not null"`
	Surcharge   decimal.Decimal `gorm:"column:surcharge;type:numeric(12,2);not null;default:0"`
	IsAvailable bool            `gorm:"column:is_available;not null;default:true"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
}
