package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/andrebarreto/stockflow-backend/pkg/enums"
)

// ProductionTask is the PENDING -> IN_PROGRESS -> DONE state machine keyed by
// (order, material). At most one row exists per key; upserts replace the
// pending quantity. DONE is terminal for the completed run: when a new
// shortfall appears for the same key, the upsert starts a fresh PENDING run
// on the row, clearing the previous run's timestamps.
type ProductionTask struct {
	ID           uuid.UUID                  `gorm:"column:id;type:uuid;primaryKey"`
	OrderID      uuid.UUID                  `gorm:"column:order_id;type:uuid;not null;uniqueIndex:idx_prod_task_order_material"`
	MaterialID   uuid.UUID                  `gorm:"column:material_id;type:uuid;not null;uniqueIndex:idx_prod_task_order_material"`
	QtyToProduce decimal.Decimal            `gorm:"column:qty_to_produce;type:numeric(14,3);not null"`
	Status       enums.ProductionTaskStatus `gorm:"column:status;type:production_task_status;not null;default:'PENDING'"`
	StartedAt    *time.Time                 `gorm:"column:started_at"`
	CompletedAt  *time.Time                 `gorm:"column:completed_at"`
	CreatedAt    time.Time                  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time                  `gorm:"column:updated_at;autoUpdateTime"`
}

// BeforeCreate assigns the row identity when the caller did not.
func (t *ProductionTask) BeforeCreate(*gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
