package stats

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/orderportal/internal/ledger"
	"github.com/angelmondragon/orderportal/pkg/enums"
)

const (
	BandNegative = "negative"
	BandZero     = "zero"
	BandUnder50  = "under_50"
	Band50To200  = "50_to_200"
	BandOver200  = "200_plus"
)

var bandOrder = []string{BandNegative, BandZero, BandUnder50, Band50To200, BandOver200}

// Range is a half-open reporting window [Start, End).
type Range struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// DayPoint is one local calendar day of order activity. Revenue excludes cancelled orders.
type DayPoint struct {
	Date    string          `json:"date"`
	Orders  int64           `json:"orders"`
	Revenue decimal.Decimal `json:"revenue"`
}

// MonthPoint is one calendar month, formatted YYYY-MM.
type MonthPoint struct {
	Month  string          `json:"month"`
	Orders int64           `json:"orders"`
	Spent  decimal.Decimal `json:"spent"`
}

type StatusCount struct {
	Status enums.OrderStatus `gorm:"column:status" json:"status"`
	Orders int64             `gorm:"column:orders" json:"orders"`
}

type PaymentMethodTotal struct {
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	Orders        int64               `json:"orders"`
	Revenue       decimal.Decimal     `json:"revenue"`
}

type ProductTotal struct {
	ProductID   uuid.UUID       `gorm:"column:product_id" json:"product_id"`
	ProductName string          `gorm:"column:product_name" json:"product_name"`
	Quantity    int64           `gorm:"column:quantity" json:"quantity"`
	Revenue     decimal.Decimal `gorm:"column:revenue" json:"revenue"`
}

type CategoryTotal struct {
	Category string          `gorm:"column:category" json:"category"`
	Quantity int64           `gorm:"column:quantity" json:"quantity"`
	Revenue  decimal.Decimal `gorm:"column:revenue" json:"revenue"`
}

type SpenderTotal struct {
	UserID uuid.UUID       `gorm:"column:user_id" json:"user_id"`
	Name   string          `gorm:"column:name" json:"name"`
	Email  string          `gorm:"column:email" json:"email"`
	Orders int64           `gorm:"column:orders" json:"orders"`
	Spent  decimal.Decimal `gorm:"column:spent" json:"spent"`
}

type BalanceBand struct {
	Band  string          `gorm:"column:band" json:"band"`
	Users int64           `gorm:"column:users" json:"users"`
	Total decimal.Decimal `gorm:"column:total" json:"total"`
}

// Overview is the admin dashboard headline.
type Overview struct {
	ActiveUsers            int64           `json:"active_users"`
	ActiveProducts         int64           `json:"active_products"`
	PendingOrders          int64           `json:"pending_orders"`
	PendingBalanceRequests int64           `json:"pending_balance_requests"`
	TodayOrders            int64           `json:"today_orders"`
	TodayRevenue           decimal.Decimal `json:"today_revenue"`
	MonthlyRevenue         decimal.Decimal `json:"monthly_revenue"`
	Trend                  []DayPoint      `json:"trend"`
	StatusBreakdown        []StatusCount   `json:"status_breakdown"`
	TopProducts            []ProductTotal  `json:"top_products"`
}

// SalesReport covers order volume and revenue over a range.
type SalesReport struct {
	Range           Range                `json:"range"`
	Orders          int64                `json:"orders"`
	CancelledOrders int64                `json:"cancelled_orders"`
	Revenue         decimal.Decimal      `json:"revenue"`
	AverageOrder    decimal.Decimal      `json:"average_order"`
	Daily           []DayPoint           `json:"daily"`
	ByPaymentMethod []PaymentMethodTotal `json:"by_payment_method"`
	ByCategory      []CategoryTotal      `json:"by_category"`
}

type ProductReport struct {
	Range       Range          `json:"range"`
	TopProducts []ProductTotal `json:"top_products"`
}

type UserReport struct {
	Range              Range           `json:"range"`
	TopSpenders        []SpenderTotal  `json:"top_spenders"`
	BalanceBands       []BalanceBand   `json:"balance_bands"`
	BalanceOutstanding decimal.Decimal `json:"balance_outstanding"`
}

// LastOrder is the most recent order of a user, whatever its status.
type LastOrder struct {
	ID          uuid.UUID         `json:"id"`
	OrderNumber string            `json:"order_number"`
	Status      enums.OrderStatus `json:"status"`
	TotalAmount decimal.Decimal   `json:"total_amount"`
	CreatedAt   time.Time         `json:"created_at"`
}

// UserOverview is a single user's spending profile. Ledger is the same summary the
// balance endpoint returns.
type UserOverview struct {
	UserID           uuid.UUID       `json:"user_id"`
	Ledger           *ledger.Summary `json:"ledger"`
	TotalOrders      int64           `json:"total_orders"`
	MonthlyOrders    int64           `json:"monthly_orders"`
	TotalSpent       decimal.Decimal `json:"total_spent"`
	LastOrder        *LastOrder      `json:"last_order,omitempty"`
	FavoriteProducts []ProductTotal  `json:"favorite_products"`
	MonthlySpend     []MonthPoint    `json:"monthly_spend"`
}
