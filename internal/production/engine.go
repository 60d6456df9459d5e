package production

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/andrebarreto/stockflow-backend/internal/reservations"
	"github.com/andrebarreto/stockflow-backend/pkg/db/models"
	"github.com/andrebarreto/stockflow-backend/pkg/enums"
	pkgerrors "github.com/andrebarreto/stockflow-backend/pkg/errors"
)

// Engine holds the transaction-scoped task primitives shared by order
// submission, reservation sweeps and stock allocation.
type Engine struct {
	repo         Repository
	reservations *reservations.Engine
}

// NewEngine wires the production task primitives.
func NewEngine(repo Repository, reservationEngine *reservations.Engine) (*Engine, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "production repository required")
	}
	if reservationEngine == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "reservation engine required")
	}
	return &Engine{repo: repo, reservations: reservationEngine}, nil
}

// SyncTaskTx sizes the (order, material) task to qty and keeps the matching
// production promise in step. Zero or negative qty removes the pending task;
// a DONE row survives as history in that case. When qty is positive and the
// row is DONE, the row restarts as a fresh PENDING run.
func (e *Engine) SyncTaskTx(ctx context.Context, tx *gorm.DB, orderID, materialID uuid.UUID, qty decimal.Decimal) error {
	repo := e.repo.WithTx(tx)

	task, err := repo.GetByKey(ctx, orderID, materialID)
	if err != nil {
		return err
	}

	if !qty.IsPositive() {
		if task != nil && task.Status != enums.ProductionTaskStatusDone {
			if err := repo.Delete(ctx, task.ID); err != nil {
				return err
			}
		}
		return e.reservations.ClearPromiseTx(ctx, tx, orderID, materialID)
	}

	if task == nil {
		task = &models.ProductionTask{OrderID: orderID, MaterialID: materialID}
	}
	task.QtyToProduce = qty
	task.Status = enums.ProductionTaskStatusPending
	task.StartedAt = nil
	task.CompletedAt = nil
	if err := repo.Save(ctx, task); err != nil {
		return err
	}
	return e.reservations.SetPromiseTx(ctx, tx, orderID, materialID, qty)
}

// DropOrderTasksTx removes the order's pending work and promises, keeping
// DONE rows as history. Used when an order leaves the competing pool.
func (e *Engine) DropOrderTasksTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error {
	repo := e.repo.WithTx(tx)
	unfinished, err := repo.ListUnfinishedByOrder(ctx, orderID)
	if err != nil {
		return err
	}
	for _, task := range unfinished {
		if err := repo.Delete(ctx, task.ID); err != nil {
			return err
		}
		if err := e.reservations.ClearPromiseTx(ctx, tx, orderID, task.MaterialID); err != nil {
			return err
		}
	}
	return nil
}
