package orderhours

import (
	"context"

	"github.com/angelmondragon/orderportal/pkg/db/models"
	"gorm.io/gorm"
)

// Repository reads the configured ordering windows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CountActive(ctx context.Context) (int64, error)
	ListActiveForDay(ctx context.Context, dayOfWeek int) ([]models.OrderHour, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CountActive(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.OrderHour{}).
		Where("is_active = ?", true).
		Count(&count).Error
	return count, err
}

// ListActiveForDay returns windows for an ISO weekday, 1 = Monday through 7 = Sunday.
func (r *repository) ListActiveForDay(ctx context.Context, dayOfWeek int) ([]models.OrderHour, error) {
	var rows []models.OrderHour
	if err := r.db.WithContext(ctx).
		Where("is_active = ? AND day_of_week = ?", true, dayOfWeek).
		Order("start_time ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
