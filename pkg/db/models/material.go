package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Material is a catalog entry for anything the warehouse stores or produces.
// Administrative edits aside, rows are immutable once referenced by orders.
type Material struct {
	ID           uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	Code         string          `gorm:"column:code;not null;uniqueIndex"`
	Name         string          `gorm:"column:name;not null"`
	Unit         string          `gorm:"column:unit;not null;default:'un'"`
	MinStock     decimal.Decimal `gorm:"column:min_stock;type:numeric(14,3);not null;default:0"`
	ReorderPoint decimal.Decimal `gorm:"column:reorder_point;type:numeric(14,3);not null;default:0"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// BeforeCreate assigns the row identity when the caller did not.
func (m *Material) BeforeCreate(*gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
