package orderhours

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/orderportal/pkg/config"
	"github.com/angelmondragon/orderportal/pkg/db"
	"github.com/angelmondragon/orderportal/pkg/db/models"
	pkgerrors "github.com/angelmondragon/orderportal/pkg/errors"
	"gorm.io/gorm"
)

const clockLayout = "15:04"

// Service answers whether new orders are accepted at a given instant.
type Service interface {
	IsOpen(ctx context.Context, now time.Time) (bool, error)
	EnsureOpen(ctx context.Context, tx *gorm.DB, now time.Time) error
}

type service struct {
	repo Repository
	cfg  config.OrdersConfig
}

func NewService(repo Repository, cfg config.OrdersConfig) (Service, error) {
	if repo == nil {
		return nil, errors.New("order hours repository required")
	}
	return &service{repo: repo, cfg: cfg}, nil
}

// IsOpen is always true when enforcement is off or no active window is configured.
func (s *service) IsOpen(ctx context.Context, now time.Time) (bool, error) {
	return s.isOpen(ctx, s.repo, now)
}

// EnsureOpen returns a validation error when ordering is closed at now.
func (s *service) EnsureOpen(ctx context.Context, tx *gorm.DB, now time.Time) error {
	open, err := s.isOpen(ctx, s.repo.WithTx(tx), now)
	if err != nil {
		return err
	}
	if !open {
		return pkgerrors.New(pkgerrors.CodeValidation, "ordering is currently closed")
	}
	return nil
}

func (s *service) isOpen(ctx context.Context, repo Repository, now time.Time) (bool, error) {
	if !s.cfg.EnforceOrderHours {
		return true, nil
	}
	configured, err := repo.CountActive(ctx)
	if err != nil {
		return false, db.MapError(err, "load order hours")
	}
	if configured == 0 {
		return true, nil
	}

	local := now.In(s.cfg.Location())
	windows, err := repo.ListActiveForDay(ctx, isoWeekday(local))
	if err != nil {
		return false, db.MapError(err, "load order hours")
	}
	clock := local.Hour()*60 + local.Minute()
	for _, window := range windows {
		inside, err := withinWindow(window, clock)
		if err != nil {
			return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "invalid order hours")
		}
		if inside {
			return true, nil
		}
	}
	return false, nil
}

func isoWeekday(t time.Time) int {
	if t.Weekday() == time.Sunday {
		return 7
	}
	return int(t.Weekday())
}

// withinWindow treats the start as inclusive and the end as exclusive.
func withinWindow(window models.OrderHour, clock int) (bool, error) {
	start, err := minutesOf(window.StartTime)
	if err != nil {
		return false, err
	}
	end, err := minutesOf(window.EndTime)
	if err != nil {
		return false, err
	}
	return clock >= start && clock < end, nil
}

func minutesOf(value string) (int, error) {
	if len(value) > len(clockLayout) {
		value = value[:len(clockLayout)]
	}
	parsed, err := time.Parse(clockLayout, value)
	if err != nil {
		return 0, fmt.Errorf("parse clock %q: %w", value, err)
	}
	return parsed.Hour()*60 + parsed.Minute(), nil
}
