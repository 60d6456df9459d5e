package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StockBalance tracks the physical and claimed quantity per material. It is
// the single most contended row in the system; every mutation goes through a
// transaction that locks it first.
type StockBalance struct {
	MaterialID         uuid.UUID       `gorm:"column:material_id;type:uuid;primaryKey"`
	OnHand             decimal.Decimal `gorm:"column:on_hand;type:numeric(14,3);not null;default:0"`
	ReservedTotal      decimal.Decimal `gorm:"column:reserved_total;type:numeric(14,3);not null;default:0"`
	ProductionReserved decimal.Decimal `gorm:"column:production_reserved;type:numeric(14,3);not null;default:0"`
	UpdatedAt          time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// Available is the quantity open to new claims: physical stock minus every
// reservation and every quantity already promised by in-flight production.
func (b StockBalance) Available() decimal.Decimal {
	return b.OnHand.Sub(b.ReservedTotal).Sub(b.ProductionReserved)
}
