package orders

import (
	"github.com/angelmondragon/orderportal/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderportal/pkg/errors"
)

// forward lists the single allowed step out of each non-terminal status.
var forward = map[enums.OrderStatus]enums.OrderStatus{
	enums.OrderStatusPending:   enums.OrderStatusPreparing,
	enums.OrderStatusPreparing: enums.OrderStatusReady,
	enums.OrderStatusReady:     enums.OrderStatusDelivered,
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to enums.OrderStatus) bool {
	return ValidateTransition(from, to) == nil
}

// ValidateTransition returns a STATE_CONFLICT error describing why a transition is refused.
func ValidateTransition(from, to enums.OrderStatus) error {
	if !from.IsValid() || !to.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid order status")
	}
	switch {
	case from == enums.OrderStatusCancelled:
		return stateConflict("order already cancelled", from, to)
	case from == enums.OrderStatusDelivered && to == enums.OrderStatusCancelled:
		return stateConflict("cannot cancel a delivered order", from, to)
	case to == enums.OrderStatusCancelled:
		return nil
	case forward[from] == to:
		return nil
	default:
		return stateConflict("invalid status transition", from, to)
	}
}

// NextStatus returns the forward step from status, if any.
func NextStatus(status enums.OrderStatus) (enums.OrderStatus, bool) {
	next, ok := forward[status]
	return next, ok
}

func stateConflict(message string, from, to enums.OrderStatus) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, message).WithDetails(map[string]any{
		"from": from,
		"to":   to,
	})
}
