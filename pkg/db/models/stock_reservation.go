package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// StockReservation is a time-boxed claim of physical stock for one order.
// At most one row exists per (order, material); renewals overwrite qty and
// expiry instead of inserting a second row.
type StockReservation struct {
	ID         uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	OrderID    uuid.UUID       `gorm:"column:order_id;type:uuid;not null;uniqueIndex:idx_stock_res_order_material"`
	MaterialID uuid.UUID       `gorm:"column:material_id;type:uuid;not null;uniqueIndex:idx_stock_res_order_material"`
	Qty        decimal.Decimal `gorm:"column:qty;type:numeric(14,3);not null"`
	ExpiresAt  time.Time       `gorm:"column:expires_at;not null"`
	CreatedAt  time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// BeforeCreate assigns the row identity when the caller did not.
func (r *StockReservation) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
