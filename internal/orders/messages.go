package orders

import (
	"fmt"

	"github.com/angelmondragon/orderportal/pkg/db/models"
	"github.com/angelmondragon/orderportal/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func statusMessage(status enums.OrderStatus) string {
	switch status {
	case enums.OrderStatusPreparing:
		return "Your order is being prepared."
	case enums.OrderStatusReady:
		return "Your order is ready for pickup."
	case enums.OrderStatusDelivered:
		return "Your order has been delivered. Enjoy!"
	default:
		return fmt.Sprintf("Your order is now %s.", status)
	}
}

func cancelMessage(order models.Order, refund decimal.Decimal) string {
	message := fmt.Sprintf("Order %s was cancelled.", order.OrderNumber)
	if order.CancelReason != nil && *order.CancelReason != "" {
		message += " Reason: " + *order.CancelReason
	}
	if refund.IsPositive() {
		message += fmt.Sprintf(" %s was refunded to your balance.", refund.StringFixed(2))
	}
	return message
}

func orderLink(orderID uuid.UUID) string {
	return "/orders/" + orderID.String()
}
