package production

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/andrebarreto/stockflow-backend/internal/notifications"
	"github.com/andrebarreto/stockflow-backend/internal/receipts"
	"github.com/andrebarreto/stockflow-backend/internal/reservations"
	"github.com/andrebarreto/stockflow-backend/pkg/db"
	"github.com/andrebarreto/stockflow-backend/pkg/db/models"
	"github.com/andrebarreto/stockflow-backend/pkg/enums"
	pkgerrors "github.com/andrebarreto/stockflow-backend/pkg/errors"
	"github.com/andrebarreto/stockflow-backend/pkg/logger"
	"github.com/andrebarreto/stockflow-backend/pkg/metrics"
)

// Service runs the production task lifecycle. Completion is the critical
// path: in one transaction the task is finished, its output is credited
// through a receipt, and the resulting stock is handed back to waiting
// orders starting with the one that asked for the run.
type Service interface {
	List(ctx context.Context, filter ListFilter) ([]models.ProductionTask, error)
	Get(ctx context.Context, taskID uuid.UUID) (*models.ProductionTask, error)
	Start(ctx context.Context, taskID, actorID uuid.UUID) (*models.ProductionTask, error)
	Complete(ctx context.Context, taskID, actorID uuid.UUID) (*CompleteResult, error)
}

// CompleteResult reports what one completed run produced and where it went.
type CompleteResult struct {
	Task        *models.ProductionTask   `json:"task"`
	ProducedQty decimal.Decimal          `json:"produced_qty"`
	Receipt     *models.InventoryReceipt `json:"receipt,omitempty"`
	PostResult  *receipts.PostResult     `json:"-"`
}

type service struct {
	client    *db.Client
	repo      Repository
	engine    *Engine
	receipts  receipts.Service
	resEngine *reservations.Engine
	emitter   *notifications.Emitter
	readiness reservations.ReadinessFunc
	metrics   *metrics.EngineMetrics
	logg      *logger.Logger
	now       func() time.Time
}

// NewService wires the production lifecycle. emitter and readiness may be
// nil.
func NewService(client *db.Client, repo Repository, engine *Engine, receiptSvc receipts.Service, resEngine *reservations.Engine, emitter *notifications.Emitter, readiness reservations.ReadinessFunc, engineMetrics *metrics.EngineMetrics, logg *logger.Logger) (Service, error) {
	if client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "db client required")
	}
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "production repository required")
	}
	if engine == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "production engine required")
	}
	if receiptSvc == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "receipts service required")
	}
	if resEngine == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "reservation engine required")
	}
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	return &service{
		client:    client,
		repo:      repo,
		engine:    engine,
		receipts:  receiptSvc,
		resEngine: resEngine,
		emitter:   emitter,
		readiness: readiness,
		metrics:   engineMetrics,
		logg:      logg,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) List(ctx context.Context, filter ListFilter) ([]models.ProductionTask, error) {
	rows, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list production tasks")
	}
	return rows, nil
}

func (s *service) Get(ctx context.Context, taskID uuid.UUID) (*models.ProductionTask, error) {
	if taskID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "task id required")
	}
	task, err := s.repo.GetByID(ctx, taskID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "production task not found")
		}
		return nil, err
	}
	return task, nil
}

func (s *service) Start(ctx context.Context, taskID, actorID uuid.UUID) (*models.ProductionTask, error) {
	if taskID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "task id required")
	}
	if actorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "actor id required")
	}

	var task *models.ProductionTask
	err := s.client.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		task, err = repo.GetByID(ctx, taskID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "production task not found")
			}
			return err
		}
		// Starting twice, or starting a finished task, changes nothing.
		if task.Status != enums.ProductionTaskStatusPending {
			return nil
		}
		now := s.now()
		task.Status = enums.ProductionTaskStatusInProgress
		task.StartedAt = &now
		return repo.Save(ctx, task)
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

func (s *service) Complete(ctx context.Context, taskID, actorID uuid.UUID) (*CompleteResult, error) {
	if taskID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "task id required")
	}
	if actorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "actor id required")
	}

	var result *CompleteResult
	err := s.client.WithTxRetry(ctx, func(tx *gorm.DB) error {
		var err error
		result, err = s.completeTx(ctx, tx, taskID, actorID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncTaskCompleted()
	return result, nil
}

func (s *service) completeTx(ctx context.Context, tx *gorm.DB, taskID, actorID uuid.UUID) (*CompleteResult, error) {
	repo := s.repo.WithTx(tx)
	task, err := repo.GetByID(ctx, taskID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "production task not found")
		}
		return nil, err
	}
	if task.Status == enums.ProductionTaskStatusDone {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "production task already completed")
	}

	// Capture before zeroing; the receipt line carries this quantity.
	produced := task.QtyToProduce
	now := s.now()
	task.QtyToProduce = decimal.Zero
	task.Status = enums.ProductionTaskStatusDone
	task.CompletedAt = &now
	if task.StartedAt == nil {
		task.StartedAt = &now
	}
	if err := repo.Save(ctx, task); err != nil {
		return nil, err
	}

	result := &CompleteResult{Task: task, ProducedQty: produced}
	if !produced.IsPositive() {
		if err := s.resEngine.ClearPromiseTx(ctx, tx, task.OrderID, task.MaterialID); err != nil {
			return nil, err
		}
		return result, nil
	}

	notes := fmt.Sprintf("production run for task %s", task.ID)
	receipt, err := s.receipts.CreateTx(ctx, tx, receipts.CreateInput{
		Type:          enums.ReceiptTypeProduction,
		SourceOrderID: &task.OrderID,
		Notes:         &notes,
		Items: []receipts.CreateItemInput{
			{MaterialID: task.MaterialID, Qty: produced},
		},
		ActorID: actorID,
	})
	if err != nil {
		return nil, err
	}

	// Posting clears the promise and, via auto-allocation, routes the
	// produced quantity to the triggering order before anyone else.
	postResult, err := s.receipts.PostTx(ctx, tx, receipt.ID, receipts.PostOptions{
		AutoAllocate:   true,
		PreferredOrder: &task.OrderID,
		ActorID:        actorID,
	})
	if err != nil {
		return nil, err
	}
	result.Receipt = postResult.Receipt
	result.PostResult = postResult

	// The triggering order keeps a fresh claim window on what it just got.
	if err := s.resEngine.RefreshClaimTx(ctx, tx, task.OrderID, task.MaterialID); err != nil {
		return nil, err
	}

	if err := s.notifyCompletion(ctx, tx, task, produced); err != nil {
		return nil, err
	}
	if s.readiness != nil {
		if err := s.readiness(ctx, tx, task.OrderID); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (s *service) notifyCompletion(ctx context.Context, tx *gorm.DB, task *models.ProductionTask, produced decimal.Decimal) error {
	if s.emitter == nil {
		return nil
	}
	key := notifications.DedupeKey("production_done", task.OrderID, task.MaterialID)
	_, err := s.emitter.EmitTx(ctx, tx, notifications.EmitInput{
		Type:       enums.NotificationTypeProductionDone,
		TargetRole: enums.TargetRoleWarehouse,
		Title:      "Production run completed",
		Message:    fmt.Sprintf("%s units finished production and were credited to stock", produced.String()),
		DedupeKey:  &key,
		OrderID:    &task.OrderID,
		MaterialID: &task.MaterialID,
	})
	return err
}
