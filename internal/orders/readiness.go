package orders

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/andrebarreto/stockflow-backend/pkg/db/models"
	"github.com/andrebarreto/stockflow-backend/pkg/enums"
)

// RecomputeReadinessTx rolls the order's readiness up from its items inside
// the caller's transaction. Terminal orders keep whatever readiness they
// ended with. The signature matches reservations.ReadinessFunc so the
// reservation, allocation and production layers can call back into it.
func RecomputeReadinessTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error {
	var order models.Order
	err := tx.WithContext(ctx).First(&order, "id = ?", orderID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if order.Status.IsTerminal() {
		return nil
	}

	var items []models.OrderItem
	if err := tx.WithContext(ctx).Where("order_id = ?", orderID).Find(&items).Error; err != nil {
		return err
	}

	readiness := computeReadiness(items)
	if readiness == order.Readiness {
		return nil
	}
	return tx.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", orderID).
		Update("readiness", readiness).Error
}

func computeReadiness(items []models.OrderItem) enums.Readiness {
	totalRequested := decimal.Zero
	totalReserved := decimal.Zero
	for _, item := range items {
		totalRequested = totalRequested.Add(item.QtyRequested)
		totalReserved = totalReserved.Add(item.QtyReservedFromStock)
	}

	switch {
	case !totalRequested.IsPositive() || !totalReserved.IsPositive():
		return enums.ReadinessNotReady
	case totalReserved.GreaterThanOrEqual(totalRequested):
		return enums.ReadinessFull
	default:
		return enums.ReadinessPartial
	}
}
