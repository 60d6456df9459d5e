package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ProductionReservation mirrors StockReservation but claims quantity promised
// by an in-flight production task rather than stock on hand. It never counts
// toward on_hand, only against available, so produced quantity is not double
// counted between the task and the pool.
type ProductionReservation struct {
	ID         uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	OrderID    uuid.UUID       `gorm:"column:order_id;type:uuid;not null;uniqueIndex:idx_prod_res_order_material"`
	MaterialID uuid.UUID       `gorm:"column:material_id;type:uuid;not null;uniqueIndex:idx_prod_res_order_material"`
	Qty        decimal.Decimal `gorm:"column:qty;type:numeric(14,3);not null"`
	CreatedAt  time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// BeforeCreate assigns the row identity when the caller did not.
func (r *ProductionReservation) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
