package types

import "github.com/shopspring/decimal"

// OrderItemOption is the snapshot of a product option chosen at checkout.
type OrderItemOption struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Surcharge decimal.Decimal `json:"surcharge"`
}

// OrderItemOptions is persisted as a JSON array on order_items.options.
type OrderItemOptions []OrderItemOption

// TotalSurcharge sums the surcharge of every chosen option.
func (o OrderItemOptions) TotalSurcharge() decimal.Decimal {
	total := decimal.Zero
	for _, opt := range o {
		total = total.Add(opt.Surcharge)
	}
	return total
}
