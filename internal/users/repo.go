package users

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderportal/pkg/db/models"
	"github.com/angelmondragon/orderportal/pkg/enums"
)

var ErrNotFound = errors.New("user not found")

// Recipient is the slice of a user needed to address mail.
type Recipient struct {
	ID     uuid.UUID
	Email  string
	Name   string
	Active bool
}

// Repository reads portal accounts. Accounts are provisioned by the identity
// provider, so nothing here writes.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Take(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// FindRecipient loads only the addressing columns.
func (r *Repository) FindRecipient(ctx context.Context, id uuid.UUID) (Recipient, error) {
	var rec Recipient
	res := r.db.WithContext(ctx).Model(&models.User{}).
		Select("id", "email", "name", "is_active AS active").
		Where("id = ?", id).
		Limit(1).
		Scan(&rec)
	switch {
	case res.Error != nil:
		return Recipient{}, res.Error
	case res.RowsAffected == 0:
		return Recipient{}, ErrNotFound
	}
	return rec, nil
}

func (r *Repository) ListActiveAdmins(ctx context.Context) ([]models.User, error) {
	var admins []models.User
	err := r.db.WithContext(ctx).
		Where("role = ? AND is_active = ?", enums.UserRoleAdmin, true).
		Order("created_at ASC").
		Find(&admins).Error
	return admins, err
}
