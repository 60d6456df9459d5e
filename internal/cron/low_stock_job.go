package cron

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/andrebarreto/stockflow-backend/internal/materials"
	"github.com/andrebarreto/stockflow-backend/internal/notifications"
	"github.com/andrebarreto/stockflow-backend/internal/orders"
	"github.com/andrebarreto/stockflow-backend/pkg/db/models"
	"github.com/andrebarreto/stockflow-backend/pkg/enums"
	"github.com/andrebarreto/stockflow-backend/pkg/logger"
)

// LowStockJobParams configure the replenishment scanner.
type LowStockJobParams struct {
	Logger    *logger.Logger
	DB        txRunner
	Materials lowStockReader
	Emitter   lowStockEmitter
	// Orders, when set, lets the job open draft replenishment orders for
	// materials that fell below their minimum stock.
	Orders  replenishmentCreator
	ActorID uuid.UUID
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type lowStockReader interface {
	ListBelowReorderPoint(ctx context.Context) ([]materials.LowStockRow, error)
}

type lowStockEmitter interface {
	EmitTx(ctx context.Context, tx *gorm.DB, input notifications.EmitInput) (bool, error)
}

type replenishmentCreator interface {
	CreateReplenishment(ctx context.Context, input orders.ReplenishmentInput) (*models.Order, error)
}

// NewLowStockJob builds the cron job that warns about materials at or below
// their reorder point and drafts MRP orders for the ones under minimum
// stock.
func NewLowStockJob(params LowStockJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Materials == nil {
		return nil, fmt.Errorf("materials reader required")
	}
	if params.Emitter == nil {
		return nil, fmt.Errorf("notification emitter required")
	}
	return &lowStockJob{
		logg:      params.Logger,
		db:        params.DB,
		materials: params.Materials,
		emitter:   params.Emitter,
		orders:    params.Orders,
		actorID:   params.ActorID,
	}, nil
}

type lowStockJob struct {
	logg      *logger.Logger
	db        txRunner
	materials lowStockReader
	emitter   lowStockEmitter
	orders    replenishmentCreator
	actorID   uuid.UUID
}

func (j *lowStockJob) Name() string { return "low-stock-scan" }

func (j *lowStockJob) Run(ctx context.Context) error {
	rows, err := j.materials.ListBelowReorderPoint(ctx)
	if err != nil {
		return fmt.Errorf("low stock scan: %w", err)
	}
	if len(rows) == 0 {
		return nil
	}

	var errs error
	for _, row := range rows {
		if err := j.notify(ctx, row); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("material %s: %w", row.Material.Code, err))
			continue
		}
		if j.orders != nil && row.Balance.OnHand.LessThanOrEqual(row.Material.MinStock) {
			if err := j.draftReplenishment(ctx, row); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("replenish %s: %w", row.Material.Code, err))
			}
		}
	}
	return errs
}

func (j *lowStockJob) notify(ctx context.Context, row materials.LowStockRow) error {
	return j.db.WithTx(ctx, func(tx *gorm.DB) error {
		key := "low_stock:" + row.Material.ID.String()
		_, err := j.emitter.EmitTx(ctx, tx, notifications.EmitInput{
			Type:       enums.NotificationTypeLowStock,
			TargetRole: enums.TargetRoleWarehouse,
			Title:      fmt.Sprintf("Material %s is running low", row.Material.Code),
			Message:    fmt.Sprintf("%s on hand, reorder point is %s", row.Balance.OnHand.String(), row.Material.ReorderPoint.String()),
			DedupeKey:  &key,
			MaterialID: &row.Material.ID,
		})
		return err
	})
}

func (j *lowStockJob) draftReplenishment(ctx context.Context, row materials.LowStockRow) error {
	target := row.Material.ReorderPoint
	if target.LessThan(row.Material.MinStock) {
		target = row.Material.MinStock
	}
	need := target.Sub(row.Balance.OnHand)
	if !need.IsPositive() {
		return nil
	}

	// One open replenishment order per material at a time.
	var pending int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.WithContext(ctx).
			Model(&models.Order{}).
			Joins("JOIN order_items ON order_items.order_id = orders.id").
			Where("orders.replenishment = ?", true).
			Where("orders.status NOT IN ?", []enums.OrderStatus{enums.OrderStatusFinished, enums.OrderStatusCanceled}).
			Where("orders.trashed_at IS NULL").
			Where("order_items.material_id = ?", row.Material.ID).
			Count(&pending).Error
	})
	if err != nil {
		return err
	}
	if pending > 0 {
		return nil
	}

	notes := fmt.Sprintf("auto replenishment for %s", row.Material.Code)
	_, err = j.orders.CreateReplenishment(ctx, orders.ReplenishmentInput{
		Notes: &notes,
		Items: []orders.ItemInput{{
			MaterialID:     row.Material.ID,
			Qty:            need,
			ShortageAction: enums.ShortageActionProduce,
		}},
		ActorID: j.actorID,
	})
	return err
}
