package controllers

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/orderportal/pkg/db/models"
	"github.com/angelmondragon/orderportal/pkg/enums"
	"github.com/angelmondragon/orderportal/pkg/types"
)

type orderItemResponse struct {
	ID          uuid.UUID              `json:"id"`
	ProductID   uuid.UUID              `json:"product_id"`
	ProductName string                 `json:"product_name"`
	Quantity    int                    `json:"quantity"`
	UnitPrice   decimal.Decimal        `json:"unit_price"`
	LineTotal   decimal.Decimal        `json:"line_total"`
	Options     types.OrderItemOptions `json:"options"`
	Notes       *string                `json:"notes,omitempty"`
}

type orderResponse struct {
	ID            uuid.UUID           `json:"id"`
	OrderNumber   string              `json:"order_number"`
	UserID        uuid.UUID           `json:"user_id"`
	Status        enums.OrderStatus   `json:"status"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	TotalAmount   decimal.Decimal     `json:"total_amount"`
	Notes         *string             `json:"notes,omitempty"`
	AdminNotes    *string             `json:"admin_notes,omitempty"`
	CancelReason  *string             `json:"cancel_reason,omitempty"`
	CancelledAt   *time.Time          `json:"cancelled_at,omitempty"`
	Items         []orderItemResponse `json:"items,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

type orderPage struct {
	Orders     []orderResponse `json:"orders"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

func presentOrder(order models.Order) orderResponse {
	resp := orderResponse{
		ID:            order.ID,
		OrderNumber:   order.OrderNumber,
		UserID:        order.UserID,
		Status:        order.Status,
		PaymentMethod: order.PaymentMethod,
		TotalAmount:   order.TotalAmount,
		Notes:         order.Notes,
		AdminNotes:    order.AdminNotes,
		CancelReason:  order.CancelReason,
		CancelledAt:   order.CancelledAt,
		CreatedAt:     order.CreatedAt,
		UpdatedAt:     order.UpdatedAt,
	}
	for _, item := range order.Items {
		resp.Items = append(resp.Items, orderItemResponse{
			ID:          item.ID,
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			LineTotal:   item.LineTotal,
			Options:     item.Options,
			Notes:       item.Notes,
		})
	}
	return resp
}

func presentOrders(orders []models.Order, cursor string) orderPage {
	page := orderPage{Orders: make([]orderResponse, 0, len(orders)), NextCursor: cursor}
	for _, order := range orders {
		page.Orders = append(page.Orders, presentOrder(order))
	}
	return page
}

type transactionResponse struct {
	ID            uuid.UUID                       `json:"id"`
	Type          enums.TransactionType           `json:"type"`
	Amount        decimal.Decimal                 `json:"amount"`
	BalanceBefore decimal.Decimal                 `json:"balance_before"`
	BalanceAfter  decimal.Decimal                 `json:"balance_after"`
	Description   string                          `json:"description"`
	ReferenceID   *uuid.UUID                      `json:"reference_id,omitempty"`
	ReferenceType *enums.TransactionReferenceType `json:"reference_type,omitempty"`
	CreatedAt     time.Time                       `json:"created_at"`
}

type transactionPage struct {
	Transactions []transactionResponse `json:"transactions"`
	NextCursor   string                `json:"next_cursor,omitempty"`
}

func presentTransactions(rows []models.BalanceTransaction, cursor string) transactionPage {
	page := transactionPage{Transactions: make([]transactionResponse, 0, len(rows)), NextCursor: cursor}
	for _, tx := range rows {
		page.Transactions = append(page.Transactions, transactionResponse{
			ID:            tx.ID,
			Type:          tx.Type,
			Amount:        tx.Amount,
			BalanceBefore: tx.BalanceBefore,
			BalanceAfter:  tx.BalanceAfter,
			Description:   tx.Description,
			ReferenceID:   tx.ReferenceID,
			ReferenceType: tx.ReferenceType,
			CreatedAt:     tx.CreatedAt,
		})
	}
	return page
}

type balanceRequestResponse struct {
	ID               uuid.UUID                  `json:"id"`
	UserID           uuid.UUID                  `json:"user_id"`
	Amount           decimal.Decimal            `json:"amount"`
	ReceiptReference string                     `json:"receipt_reference"`
	Description      *string                    `json:"description,omitempty"`
	Status           enums.BalanceRequestStatus `json:"status"`
	AdminNotes       *string                    `json:"admin_notes,omitempty"`
	ProcessedBy      *uuid.UUID                 `json:"processed_by,omitempty"`
	ProcessedAt      *time.Time                 `json:"processed_at,omitempty"`
	CreatedAt        time.Time                  `json:"created_at"`
}

type balanceRequestPage struct {
	Requests   []balanceRequestResponse `json:"requests"`
	NextCursor string                   `json:"next_cursor,omitempty"`
}

func presentBalanceRequest(req models.BalanceRequest) balanceRequestResponse {
	return balanceRequestResponse{
		ID:               req.ID,
		UserID:           req.UserID,
		Amount:           req.Amount,
		ReceiptReference: req.ReceiptReference,
		Description:      req.Description,
		Status:           req.Status,
		AdminNotes:       req.AdminNotes,
		ProcessedBy:      req.ProcessedBy,
		ProcessedAt:      req.ProcessedAt,
		CreatedAt:        req.CreatedAt,
	}
}

func presentBalanceRequests(rows []models.BalanceRequest, cursor string) balanceRequestPage {
	page := balanceRequestPage{Requests: make([]balanceRequestResponse, 0, len(rows)), NextCursor: cursor}
	for _, row := range rows {
		page.Requests = append(page.Requests, presentBalanceRequest(row))
	}
	return page
}

type notificationResponse struct {
	ID        uuid.UUID              `json:"id"`
	Type      enums.NotificationType `json:"type"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Link      *string                `json:"link,omitempty"`
	Read      bool                   `json:"read"`
	ReadAt    *time.Time             `json:"read_at,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

type notificationPage struct {
	Notifications []notificationResponse `json:"notifications"`
	UnreadCount   int64                  `json:"unread_count"`
	NextCursor    string                 `json:"next_cursor,omitempty"`
}

func presentNotifications(rows []models.Notification, unread int64, cursor string) notificationPage {
	page := notificationPage{Notifications: make([]notificationResponse, 0, len(rows)), UnreadCount: unread, NextCursor: cursor}
	for _, n := range rows {
		page.Notifications = append(page.Notifications, notificationResponse{
			ID:        n.ID,
			Type:      n.Type,
			Title:     n.Title,
			Message:   n.Message,
			Link:      n.Link,
			Read:      n.ReadAt != nil,
			ReadAt:    n.ReadAt,
			CreatedAt: n.CreatedAt,
		})
	}
	return page
}
