package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/andrebarreto/stockflow-backend/pkg/enums"
)

// OrderItem is one demand line of an order. Whenever the shortage action is
// PRODUCE the identity qty_reserved_from_stock + qty_to_produce ==
// qty_requested holds; under BUY, qty_to_produce is always zero.
type OrderItem struct {
	ID                   uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	OrderID              uuid.UUID            `gorm:"column:order_id;type:uuid;not null;uniqueIndex:idx_order_item_material"`
	MaterialID           uuid.UUID            `gorm:"column:material_id;type:uuid;not null;uniqueIndex:idx_order_item_material"`
	QtyRequested         decimal.Decimal      `gorm:"column:qty_requested;type:numeric(14,3);not null"`
	QtyReservedFromStock decimal.Decimal      `gorm:"column:qty_reserved_from_stock;type:numeric(14,3);not null;default:0"`
	QtyToProduce         decimal.Decimal      `gorm:"column:qty_to_produce;type:numeric(14,3);not null;default:0"`
	QtySeparated         decimal.Decimal      `gorm:"column:qty_separated;type:numeric(14,3);not null;default:0"`
	ShortageAction       enums.ShortageAction `gorm:"column:shortage_action;type:shortage_action;not null;default:'PRODUCE'"`
	Conditions           []OrderItemCondition `gorm:"foreignKey:OrderItemID;constraint:OnDelete:CASCADE"`
	CreatedAt            time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

// BeforeCreate assigns the row identity when the caller did not.
func (i *OrderItem) BeforeCreate(*gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

// OrderItemCondition is one (key, value) pair of the item's free-form
// attribute bag, e.g. color or fiber variant. The pairs are opaque tags kept
// in insertion order; nothing in the engine interprets them.
type OrderItemCondition struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	OrderItemID uuid.UUID `gorm:"column:order_item_id;type:uuid;not null;index"`
	Position    int       `gorm:"column:position;not null"`
	Key         string    `gorm:"column:key;not null"`
	Value       string    `gorm:"column:value;not null"`
}

// BeforeCreate assigns the row identity when the caller did not.
func (c *OrderItemCondition) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
