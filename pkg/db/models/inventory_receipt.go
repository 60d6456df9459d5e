package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/andrebarreto/stockflow-backend/pkg/enums"
)

// InventoryReceipt records inbound stock that only takes effect once posted.
// Posting is a one-way transition; a posted receipt can never be re-posted.
type InventoryReceipt struct {
	ID            uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	Type          enums.ReceiptType      `gorm:"column:type;type:receipt_type;not null"`
	Status        enums.ReceiptStatus    `gorm:"column:status;type:receipt_status;not null;default:'DRAFT'"`
	SourceOrderID *uuid.UUID             `gorm:"column:source_order_id;type:uuid"`
	Notes         *string                `gorm:"column:notes"`
	AutoAllocated bool                   `gorm:"column:auto_allocated;not null;default:false"`
	PostedAt      *time.Time             `gorm:"column:posted_at"`
	PostedBy      *uuid.UUID             `gorm:"column:posted_by;type:uuid"`
	CreatedBy     uuid.UUID              `gorm:"column:created_by;type:uuid;not null"`
	Items         []InventoryReceiptItem `gorm:"foreignKey:ReceiptID;constraint:OnDelete:CASCADE"`
	CreatedAt     time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}

// BeforeCreate assigns the row identity when the caller did not.
func (r *InventoryReceipt) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// InventoryReceiptItem is one material line of a receipt.
type InventoryReceiptItem struct {
	ID         uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	ReceiptID  uuid.UUID       `gorm:"column:receipt_id;type:uuid;not null;index"`
	MaterialID uuid.UUID       `gorm:"column:material_id;type:uuid;not null"`
	Qty        decimal.Decimal `gorm:"column:qty;type:numeric(14,3);not null"`
	CreatedAt  time.Time       `gorm:"column:created_at;autoCreateTime"`
}

// BeforeCreate assigns the row identity when the caller did not.
func (i *InventoryReceiptItem) BeforeCreate(*gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}
