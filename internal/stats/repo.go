package stats

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderportal/pkg/db/models"
	"github.com/angelmondragon/orderportal/pkg/enums"
)

// Repository runs read-only aggregates over orders, order items, users and
// balance requests. Nothing here writes.
type Repository interface {
	Counts(ctx context.Context) (*counts, error)
	OrderPoints(ctx context.Context, filter orderFilter) ([]orderPoint, error)
	StatusCounts(ctx context.Context, filter orderFilter) ([]StatusCount, error)
	TopProducts(ctx context.Context, filter orderFilter, limit int) ([]ProductTotal, error)
	CategoryTotals(ctx context.Context, filter orderFilter) ([]CategoryTotal, error)
	TopSpenders(ctx context.Context, filter orderFilter, limit int) ([]SpenderTotal, error)
	BalanceBands(ctx context.Context) ([]BalanceBand, error)
	LastOrder(ctx context.Context, userID uuid.UUID) (*models.Order, error)
}

type repository struct {
	db *gorm.DB
}

// orderFilter narrows order-based aggregates. Zero times leave that bound open.
type orderFilter struct {
	Start  time.Time
	End    time.Time
	UserID *uuid.UUID
}

type counts struct {
	ActiveUsers            int64
	ActiveProducts         int64
	PendingOrders          int64
	PendingBalanceRequests int64
}

type orderPoint struct {
	CreatedAt     time.Time           `gorm:"column:created_at"`
	TotalAmount   decimal.Decimal     `gorm:"column:total_amount"`
	Status        enums.OrderStatus   `gorm:"column:status"`
	PaymentMethod enums.PaymentMethod `gorm:"column:payment_method"`
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Counts(ctx context.Context) (*counts, error) {
	var out counts
	conn := r.db.WithContext(ctx)
	if err := conn.Model(&models.User{}).Where("is_active = ?", true).Count(&out.ActiveUsers).Error; err != nil {
		return nil, err
	}
	if err := conn.Model(&models.Product{}).Where("is_active = ?", true).Count(&out.ActiveProducts).Error; err != nil {
		return nil, err
	}
	if err := conn.Model(&models.Order{}).Where("status = ?", enums.OrderStatusPending).Count(&out.PendingOrders).Error; err != nil {
		return nil, err
	}
	if err := conn.Model(&models.BalanceRequest{}).Where("status = ?", enums.BalanceRequestStatusPending).Count(&out.PendingBalanceRequests).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

// OrderPoints returns one light row per order so callers can bucket by local day.
func (r *repository) OrderPoints(ctx context.Context, filter orderFilter) ([]orderPoint, error) {
	var rows []orderPoint
	err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Select("created_at, total_amount, status, payment_method").
		Scopes(filter.scope("")).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) StatusCounts(ctx context.Context, filter orderFilter) ([]StatusCount, error) {
	var rows []StatusCount
	err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Select("status, COUNT(*) AS orders").
		Scopes(filter.scope("")).
		Group("status").
		Order("status ASC").
		Scan(&rows).Error
	return rows, err
}

// TopProducts ranks products by quantity sold on orders that were not cancelled.
// Names come from the order item snapshot, so renamed products keep their old label.
func (r *repository) TopProducts(ctx context.Context, filter orderFilter, limit int) ([]ProductTotal, error) {
	var rows []ProductTotal
	query := r.db.WithContext(ctx).
		Table("order_items AS oi").
		Select("oi.product_id AS product_id, oi.product_name AS product_name, SUM(oi.quantity) AS quantity, COALESCE(SUM(oi.line_total), 0) AS revenue").
		Joins("JOIN orders AS o ON o.id = oi.order_id").
		Where("o.status <> ?", enums.OrderStatusCancelled).
		Scopes(filter.scope("o.")).
		Group("oi.product_id, oi.product_name").
		Order("quantity DESC, revenue DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Scan(&rows).Error
	return rows, err
}

func (r *repository) CategoryTotals(ctx context.Context, filter orderFilter) ([]CategoryTotal, error) {
	var rows []CategoryTotal
	err := r.db.WithContext(ctx).
		Table("order_items AS oi").
		Select("p.category AS category, SUM(oi.quantity) AS quantity, COALESCE(SUM(oi.line_total), 0) AS revenue").
		Joins("JOIN orders AS o ON o.id = oi.order_id").
		Joins("JOIN products AS p ON p.id = oi.product_id").
		Where("o.status <> ?", enums.OrderStatusCancelled).
		Scopes(filter.scope("o.")).
		Group("p.category").
		Order("revenue DESC").
		Scan(&rows).Error
	return rows, err
}

func (r *repository) TopSpenders(ctx context.Context, filter orderFilter, limit int) ([]SpenderTotal, error) {
	var rows []SpenderTotal
	query := r.db.WithContext(ctx).
		Table("orders AS o").
		Select("u.id AS user_id, u.name AS name, u.email AS email, COUNT(o.id) AS orders, COALESCE(SUM(o.total_amount), 0) AS spent").
		Joins("JOIN users AS u ON u.id = o.user_id").
		Where("o.status <> ?", enums.OrderStatusCancelled).
		Scopes(filter.scope("o.")).
		Group("u.id, u.name, u.email").
		Order("spent DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Scan(&rows).Error
	return rows, err
}

// BalanceBands groups active users by how much prepaid balance they hold.
func (r *repository) BalanceBands(ctx context.Context) ([]BalanceBand, error) {
	var rows []BalanceBand
	err := r.db.WithContext(ctx).
		Model(&models.User{}).
		Select(`CASE
			WHEN balance < 0 THEN '` + BandNegative + `'
			WHEN balance = 0 THEN '` + BandZero + `'
			WHEN balance < 50 THEN '` + BandUnder50 + `'
			WHEN balance < 200 THEN '` + Band50To200 + `'
			ELSE '` + BandOver200 + `'
		END AS band, COUNT(*) AS users, COALESCE(SUM(balance), 0) AS total`).
		Where("is_active = ?", true).
		Group("band").
		Order("band ASC").
		Scan(&rows).Error
	return rows, err
}

func (r *repository) LastOrder(ctx context.Context, userID uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// scope applies the filter to an orders table referenced with the given column prefix.
func (f orderFilter) scope(prefix string) func(*gorm.DB) *gorm.DB {
	return func(tx *gorm.DB) *gorm.DB {
		if !f.Start.IsZero() {
			tx = tx.Where(prefix+"created_at >= ?", f.Start.UTC())
		}
		if !f.End.IsZero() {
			tx = tx.Where(prefix+"created_at < ?", f.End.UTC())
		}
		if f.UserID != nil {
			tx = tx.Where(prefix+"user_id = ?", *f.UserID)
		}
		return tx
	}
}
