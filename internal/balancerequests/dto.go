package balancerequests

import (
	"github.com/angelmondragon/orderportal/pkg/db/models"
	"github.com/angelmondragon/orderportal/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Decision is the admin verdict passed to Resolve.
type Decision = enums.RequestDecision

const (
	DecisionApprove = enums.RequestDecisionApprove
	DecisionReject  = enums.RequestDecisionReject
)

type RequestInput struct {
	Amount           decimal.Decimal
	ReceiptReference string
	Description      string
}

type ResolveResult struct {
	RequestID  uuid.UUID                  `json:"request_id"`
	Status     enums.BalanceRequestStatus `json:"status"`
	NewBalance *decimal.Decimal           `json:"new_balance,omitempty"`
}

type AdjustInput struct {
	UserID      uuid.UUID
	Amount      decimal.Decimal
	Description string
}

type AdjustResult struct {
	TransactionID uuid.UUID       `json:"transaction_id"`
	NewBalance    decimal.Decimal `json:"new_balance"`
}

type ListParams struct {
	Limit  int
	Cursor string
}

type ListResult struct {
	Requests   []models.BalanceRequest `json:"requests"`
	NextCursor string                  `json:"next_cursor,omitempty"`
}
