package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/orderportal/pkg/enums"
)

// OrderCreatedEvent is emitted when checkout commits a new order.
type OrderCreatedEvent struct {
	OrderID       uuid.UUID           `json:"orderId"`
	OrderNumber   string              `json:"orderNumber"`
	UserID        uuid.UUID           `json:"userId"`
	TotalAmount   decimal.Decimal     `json:"totalAmount"`
	PaymentMethod enums.PaymentMethod `json:"paymentMethod"`
	ItemCount     int                 `json:"itemCount"`
}

// OrderStatusChangedEvent is emitted on every forward transition.
type OrderStatusChangedEvent struct {
	OrderID     uuid.UUID         `json:"orderId"`
	OrderNumber string            `json:"orderNumber"`
	UserID      uuid.UUID         `json:"userId"`
	From        enums.OrderStatus `json:"from"`
	To          enums.OrderStatus `json:"to"`
	AdminNotes  string            `json:"adminNotes,omitempty"`
}

// OrderCancelledEvent is emitted when an order is cancelled by its owner or an admin.
type OrderCancelledEvent struct {
	OrderID      uuid.UUID         `json:"orderId"`
	OrderNumber  string            `json:"orderNumber"`
	UserID       uuid.UUID         `json:"userId"`
	From         enums.OrderStatus `json:"from"`
	RefundAmount decimal.Decimal   `json:"refundAmount"`
	CancelledBy  uuid.UUID         `json:"cancelledBy"`
	Reason       string            `json:"reason,omitempty"`
	CancelledAt  time.Time         `json:"cancelledAt"`
}

// BalanceChangedEvent mirrors one ledger entry.
type BalanceChangedEvent struct {
	TransactionID uuid.UUID                       `json:"transactionId"`
	UserID        uuid.UUID                       `json:"userId"`
	Type          enums.TransactionType           `json:"type"`
	Amount        decimal.Decimal                 `json:"amount"`
	BalanceBefore decimal.Decimal                 `json:"balanceBefore"`
	BalanceAfter  decimal.Decimal                 `json:"balanceAfter"`
	ReferenceID   *uuid.UUID                      `json:"referenceId,omitempty"`
	ReferenceType *enums.TransactionReferenceType `json:"referenceType,omitempty"`
}

// BalanceAdjustedEvent records a direct admin adjustment outside the request queue.
type BalanceAdjustedEvent struct {
	TransactionID uuid.UUID       `json:"transactionId"`
	UserID        uuid.UUID       `json:"userId"`
	AdminID       uuid.UUID       `json:"adminId"`
	Amount        decimal.Decimal `json:"amount"`
	BalanceAfter  decimal.Decimal `json:"balanceAfter"`
	Description   string          `json:"description"`
}

// BalanceRequestCreatedEvent is emitted when a user submits a deposit request.
type BalanceRequestCreatedEvent struct {
	RequestID        uuid.UUID       `json:"requestId"`
	UserID           uuid.UUID       `json:"userId"`
	Amount           decimal.Decimal `json:"amount"`
	ReceiptReference string          `json:"receiptReference"`
}

// BalanceRequestResolvedEvent is emitted when an admin approves or rejects a request.
type BalanceRequestResolvedEvent struct {
	RequestID   uuid.UUID                  `json:"requestId"`
	UserID      uuid.UUID                  `json:"userId"`
	Amount      decimal.Decimal            `json:"amount"`
	Status      enums.BalanceRequestStatus `json:"status"`
	ProcessedBy uuid.UUID                  `json:"processedBy"`
	AdminNotes  string                     `json:"adminNotes,omitempty"`
}
