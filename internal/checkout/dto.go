package checkout

import (
	"github.com/angelmondragon/orderportal/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CreateOrderInput captures the caller supplied part of a checkout. Items always come from the cart.
type CreateOrderInput struct {
	PaymentMethod enums.PaymentMethod
	Notes         string
}

// CreateOrderResult reports the committed order. NewBalance is set only when the ledger was debited.
type CreateOrderResult struct {
	OrderID       uuid.UUID           `json:"order_id"`
	OrderNumber   string              `json:"order_number"`
	Status        enums.OrderStatus   `json:"status"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	Total         decimal.Decimal     `json:"total"`
	ItemCount     int                 `json:"item_count"`
	NewBalance    *decimal.Decimal    `json:"new_balance,omitempty"`
}
