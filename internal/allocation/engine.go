package allocation

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/andrebarreto/stockflow-backend/internal/notifications"
	"github.com/andrebarreto/stockflow-backend/internal/reservations"
	"github.com/andrebarreto/stockflow-backend/internal/shortage"
	"github.com/andrebarreto/stockflow-backend/pkg/db/models"
	"github.com/andrebarreto/stockflow-backend/pkg/enums"
	pkgerrors "github.com/andrebarreto/stockflow-backend/pkg/errors"
	"github.com/andrebarreto/stockflow-backend/pkg/metrics"
)

// Engine distributes freshly received stock across waiting orders, oldest
// order first. It runs inside the caller's transaction, after the caller has
// locked the material's balance and credited on_hand.
type Engine struct {
	reservations *reservations.Engine
	syncTask     reservations.TaskSyncFunc
	readiness    reservations.ReadinessFunc
	emitter      *notifications.Emitter
	metrics      *metrics.EngineMetrics
}

// NewEngine wires the allocator. syncTask, readiness and emitter may be nil
// when the caller does not carry those concerns.
func NewEngine(reservationEngine *reservations.Engine, syncTask reservations.TaskSyncFunc, readiness reservations.ReadinessFunc, emitter *notifications.Emitter, engineMetrics *metrics.EngineMetrics) (*Engine, error) {
	if reservationEngine == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "reservation engine required")
	}
	return &Engine{
		reservations: reservationEngine,
		syncTask:     syncTask,
		readiness:    readiness,
		emitter:      emitter,
		metrics:      engineMetrics,
	}, nil
}

// Allocation is one order's share of a distributed quantity.
type Allocation struct {
	OrderID       uuid.UUID       `json:"order_id"`
	OrderNumber   string          `json:"order_number"`
	MaterialID    uuid.UUID       `json:"material_id"`
	Qty           decimal.Decimal `json:"qty"`
	RemainingNeed decimal.Decimal `json:"remaining_need"`
}

// Result summarizes one allocation round.
type Result struct {
	Allocations []Allocation    `json:"allocations"`
	Remaining   decimal.Decimal `json:"remaining"`
}

type candidateRow struct {
	ItemID               uuid.UUID            `gorm:"column:id"`
	OrderID              uuid.UUID            `gorm:"column:order_id"`
	MaterialID           uuid.UUID            `gorm:"column:material_id"`
	QtyRequested         decimal.Decimal      `gorm:"column:qty_requested"`
	QtyReservedFromStock decimal.Decimal      `gorm:"column:qty_reserved_from_stock"`
	ShortageAction       enums.ShortageAction `gorm:"column:shortage_action"`
	OrderNumber          string               `gorm:"column:order_number"`
}

// AllocateTx hands qty of a material to waiting orders in order-creation
// order. preferredOrder, when set, jumps the queue; production completion
// uses it so the order that asked for the run is served first.
func (e *Engine) AllocateTx(ctx context.Context, tx *gorm.DB, materialID uuid.UUID, qty decimal.Decimal, preferredOrder *uuid.UUID) (*Result, error) {
	result := &Result{Remaining: qty}
	if !qty.IsPositive() {
		return result, nil
	}

	var rows []candidateRow
	err := tx.WithContext(ctx).
		Table("order_items").
		Joins("JOIN orders ON orders.id = order_items.order_id").
		Where("order_items.material_id = ?", materialID).
		Where("orders.status IN ?", enums.ActiveOrderStatuses()).
		Where("orders.trashed_at IS NULL").
		Where("order_items.qty_requested > order_items.qty_reserved_from_stock").
		Select("order_items.id, order_items.order_id, order_items.material_id, order_items.qty_requested, order_items.qty_reserved_from_stock, order_items.shortage_action, orders.order_number AS order_number").
		Order("orders.created_at ASC, orders.id ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if preferredOrder != nil {
		rows = moveOrderFirst(rows, *preferredOrder)
	}

	touchedOrders := make(map[uuid.UUID]struct{})
	for i := range rows {
		if !result.Remaining.IsPositive() {
			break
		}
		row := &rows[i]

		need := row.QtyRequested.Sub(row.QtyReservedFromStock)
		if !need.IsPositive() {
			continue
		}
		granted := decimal.Min(need, result.Remaining)

		newReserved := row.QtyReservedFromStock.Add(granted)
		newProduce := shortage.Resolve(row.QtyRequested, newReserved, row.ShortageAction)
		err := tx.WithContext(ctx).
			Model(&models.OrderItem{}).
			Where("id = ?", row.ItemID).
			Updates(map[string]any{
				"qty_reserved_from_stock": newReserved,
				"qty_to_produce":          newProduce,
			}).Error
		if err != nil {
			return nil, err
		}

		if err := e.reservations.ClaimMoreTx(ctx, tx, row.OrderID, materialID, granted); err != nil {
			return nil, err
		}
		if e.syncTask != nil && row.ShortageAction == enums.ShortageActionProduce {
			if err := e.syncTask(ctx, tx, row.OrderID, materialID, newProduce); err != nil {
				return nil, err
			}
		}

		remainingNeed := row.QtyRequested.Sub(newReserved)
		if err := e.notifyAllocation(ctx, tx, row, granted, remainingNeed); err != nil {
			return nil, err
		}

		result.Remaining = result.Remaining.Sub(granted)
		result.Allocations = append(result.Allocations, Allocation{
			OrderID:       row.OrderID,
			OrderNumber:   row.OrderNumber,
			MaterialID:    materialID,
			Qty:           granted,
			RemainingNeed: remainingNeed,
		})
		touchedOrders[row.OrderID] = struct{}{}
		e.metrics.IncAllocation()
	}

	if e.readiness != nil {
		for orderID := range touchedOrders {
			if err := e.readiness(ctx, tx, orderID); err != nil {
				return nil, err
			}
		}
	}
	return result, nil
}

func (e *Engine) notifyAllocation(ctx context.Context, tx *gorm.DB, row *candidateRow, granted, remainingNeed decimal.Decimal) error {
	if e.emitter == nil {
		return nil
	}
	coverage := "partially"
	if !remainingNeed.IsPositive() {
		coverage = "fully"
	}
	key := notifications.DedupeKey("allocation", row.OrderID, row.MaterialID)
	_, err := e.emitter.EmitTx(ctx, tx, notifications.EmitInput{
		Type:       enums.NotificationTypeAllocation,
		TargetRole: enums.TargetRoleSales,
		Title:      fmt.Sprintf("Stock allocated to order %s", row.OrderNumber),
		Message:    fmt.Sprintf("%s units were allocated; the line is now %s covered", granted.String(), coverage),
		DedupeKey:  &key,
		OrderID:    &row.OrderID,
		MaterialID: &row.MaterialID,
	})
	return err
}

func moveOrderFirst(rows []candidateRow, orderID uuid.UUID) []candidateRow {
	out := make([]candidateRow, 0, len(rows))
	for i := range rows {
		if rows[i].OrderID == orderID {
			out = append(out, rows[i])
		}
	}
	for i := range rows {
		if rows[i].OrderID != orderID {
			out = append(out, rows[i])
		}
	}
	return out
}
