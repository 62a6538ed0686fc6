package orders

import (
	"context"

	"github.com/angelmondragon/orderportal/pkg/db/models"
	"github.com/angelmondragon/orderportal/pkg/enums"
	"github.com/angelmondragon/orderportal/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository defines persistence operations for orders and their items.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	NumberExists(ctx context.Context, orderNumber string) (bool, error)
	LockByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	Update(ctx context.Context, orderID uuid.UUID, updates map[string]any) error
	List(ctx context.Context, params listOrdersParams) ([]models.Order, *pagination.Cursor, error)
}

// Notifier delivers post-commit side effects. Implementations log failures instead of returning them.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, kind enums.NotificationType, title, message, link string)
	EmailUser(ctx context.Context, userID uuid.UUID, subject, body string)
}

type listOrdersParams struct {
	UserID *uuid.UUID
	Status *enums.OrderStatus
	Limit  int
	Cursor *pagination.Cursor
}
