package models

import "github.com/google/uuid"

// OrderHour is a weekly ordering window. DayOfWeek runs 1 (Monday) through 7 (Sunday);
// times are "HH:MM" in the configured ordering timezone.
type OrderHour struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	DayOfWeek int       `gorm:"column:day_of_week;not null;index"`
	StartTime string    `gorm:"column:start_time;type:text;not null"`
	EndTime   string    `gorm:"column:end_time;type:text;not null"`
	IsActive  bool      `gorm:"column:is_active;not null;default:true"`
}
