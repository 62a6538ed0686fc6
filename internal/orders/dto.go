package orders

import (
	"github.com/angelmondragon/orderportal/pkg/db/models"
	"github.com/angelmondragon/orderportal/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ListParams describes the filters supported by the order lists. UserID is ignored
// for non-admin actors, who always see their own orders.
type ListParams struct {
	Status *enums.OrderStatus
	UserID *uuid.UUID
	Limit  int
	Cursor string
}

// ListResult wraps one page of orders plus the next page cursor.
type ListResult struct {
	Orders     []models.Order `json:"orders"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// CancelResult reports the outcome of a cancellation.
type CancelResult struct {
	OrderID      uuid.UUID         `json:"order_id"`
	OrderNumber  string            `json:"order_number"`
	Status       enums.OrderStatus `json:"status"`
	RefundAmount decimal.Decimal   `json:"refund_amount"`
	NewBalance   *decimal.Decimal  `json:"new_balance,omitempty"`
}

// StatusResult reports the outcome of an admin status change.
type StatusResult struct {
	OrderID        uuid.UUID         `json:"order_id"`
	OrderNumber    string            `json:"order_number"`
	PreviousStatus enums.OrderStatus `json:"previous_status"`
	Status         enums.OrderStatus `json:"status"`
	RefundAmount   *decimal.Decimal  `json:"refund_amount,omitempty"`
}
