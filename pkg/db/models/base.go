package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func assignID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

// All lists every persisted model in dependency order.
func All() []any {
	return []any{
		&User{},
		&BalanceTransaction{},
		&BalanceRequest{},
		&Product{},
		&ProductOption{},
		&Order{},
		&OrderItem{},
		&CartItem{},
		&Notification{},
		&OrderHour{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}

func (m *User) BeforeCreate(*gorm.DB) error               { assignID(&m.ID); return nil }
func (m *BalanceTransaction) BeforeCreate(*gorm.DB) error { assignID(&m.ID); return nil }
func (m *BalanceRequest) BeforeCreate(*gorm.DB) error     { assignID(&m.ID); return nil }
func (m *Product) BeforeCreate(*gorm.DB) error            { assignID(&m.ID); return nil }
func (m *ProductOption) BeforeCreate(*gorm.DB) error      { assignID(&m.ID); return nil }
func (m *Order) BeforeCreate(*gorm.DB) error              { assignID(&m.ID); return nil }
func (m *OrderItem) BeforeCreate(*gorm.DB) error          { assignID(&m.ID); return nil }
func (m *CartItem) BeforeCreate(*gorm.DB) error           { assignID(&m.ID); return nil }
func (m *Notification) BeforeCreate(*gorm.DB) error       { assignID(&m.ID); return nil }
func (m *OrderHour) BeforeCreate(*gorm.DB) error          { assignID(&m.ID); return nil }
func (m *OutboxEvent) BeforeCreate(*gorm.DB) error        { assignID(&m.ID); return nil }
func (m *OutboxDLQ) BeforeCreate(*gorm.DB) error          { assignID(&m.ID); return nil }
