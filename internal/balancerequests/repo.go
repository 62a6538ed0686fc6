package balancerequests

import (
	"context"
	"time"

	"github.com/angelmondragon/orderportal/pkg/db/models"
	"github.com/angelmondragon/orderportal/pkg/enums"
	"github.com/angelmondragon/orderportal/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository persists deposit requests.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, request *models.BalanceRequest) error
	LockByID(ctx context.Context, id uuid.UUID) (*models.BalanceRequest, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
	List(ctx context.Context, params listParams) ([]models.BalanceRequest, *pagination.Cursor, error)
}

type listParams struct {
	UserID *uuid.UUID
	Status *enums.BalanceRequestStatus
	Limit  int
	Cursor *pagination.Cursor
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

func (r *repository) Create(ctx context.Context, request *models.BalanceRequest) error {
	return r.db.WithContext(ctx).Create(request).Error
}

// LockByID loads the request FOR UPDATE so only one resolver can observe it as pending.
func (r *repository) LockByID(ctx context.Context, id uuid.UUID) (*models.BalanceRequest, error) {
	var request models.BalanceRequest
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&request).Error; err != nil {
		return nil, err
	}
	return &request, nil
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	result := r.db.WithContext(ctx).
		Model(&models.BalanceRequest{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) List(ctx context.Context, params listParams) ([]models.BalanceRequest, *pagination.Cursor, error) {
	query := r.db.WithContext(ctx).Model(&models.BalanceRequest{})
	if params.UserID != nil {
		query = query.Where("user_id = ?", *params.UserID)
	}
	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}

	var rows []models.BalanceRequest
	if err := query.Scopes(pagination.Scope(params.Cursor, params.Limit)).Find(&rows).Error; err != nil {
		return nil, nil, err
	}
	page, next := pagination.Page(rows, params.Limit, func(m models.BalanceRequest) (time.Time, uuid.UUID) {
		return m.CreatedAt, m.ID
	})
	return page, next, nil
}
