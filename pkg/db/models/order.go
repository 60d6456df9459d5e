package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/andrebarreto/stockflow-backend/pkg/enums"
)

// Order aggregates the line items, readiness rollup and lifecycle status of
// one warehouse outbound order.
type Order struct {
	ID          uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	OrderNumber string            `gorm:"column:order_number;not null;uniqueIndex"`
	Status      enums.OrderStatus `gorm:"column:status;type:order_status;not null;default:'RASCUNHO'"`
	Readiness   enums.Readiness   `gorm:"column:readiness;type:order_readiness;not null;default:'NOT_READY'"`
	Customer    *string           `gorm:"column:customer"`
	Notes       *string           `gorm:"column:notes"`
	// Replenishment marks MRP-sourced orders, which use the MRP-<id> numbering
	// scheme instead of the day-scoped counter.
	Replenishment bool       `gorm:"column:replenishment;not null;default:false"`
	CreatedBy     uuid.UUID  `gorm:"column:created_by;type:uuid;not null"`
	SubmittedAt   *time.Time `gorm:"column:submitted_at"`
	CanceledAt    *time.Time `gorm:"column:canceled_at"`
	TrashedAt     *time.Time `gorm:"column:trashed_at"`
	Items         []OrderItem `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt     time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// BeforeCreate assigns the row identity when the caller did not.
func (o *Order) BeforeCreate(*gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}
