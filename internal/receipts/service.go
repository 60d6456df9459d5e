package receipts

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/andrebarreto/stockflow-backend/internal/allocation"
	"github.com/andrebarreto/stockflow-backend/internal/inventory"
	"github.com/andrebarreto/stockflow-backend/internal/reservations"
	"github.com/andrebarreto/stockflow-backend/pkg/db"
	"github.com/andrebarreto/stockflow-backend/pkg/db/models"
	"github.com/andrebarreto/stockflow-backend/pkg/enums"
	pkgerrors "github.com/andrebarreto/stockflow-backend/pkg/errors"
	"github.com/andrebarreto/stockflow-backend/pkg/logger"
	"github.com/andrebarreto/stockflow-backend/pkg/metrics"
)

// Service manages the receipt lifecycle: draft creation and the one-way
// DRAFT -> POSTED transition that credits stock.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.InventoryReceipt, error)
	CreateTx(ctx context.Context, tx *gorm.DB, input CreateInput) (*models.InventoryReceipt, error)
	Post(ctx context.Context, receiptID uuid.UUID, opts PostOptions) (*PostResult, error)
	PostTx(ctx context.Context, tx *gorm.DB, receiptID uuid.UUID, opts PostOptions) (*PostResult, error)
	Get(ctx context.Context, receiptID uuid.UUID) (*models.InventoryReceipt, error)
	List(ctx context.Context, filter ListFilter) ([]models.InventoryReceipt, error)
}

// CreateInput describes a draft receipt.
type CreateInput struct {
	Type          enums.ReceiptType `json:"type" validate:"required"`
	SourceOrderID *uuid.UUID        `json:"source_order_id"`
	Notes         *string           `json:"notes"`
	Items         []CreateItemInput `json:"items" validate:"required,min=1,dive"`
	ActorID       uuid.UUID         `json:"-"`
}

// CreateItemInput is one line of a draft receipt.
type CreateItemInput struct {
	MaterialID uuid.UUID       `json:"material_id" validate:"required"`
	Qty        decimal.Decimal `json:"qty" validate:"required"`
}

// PostOptions tunes the posting transaction.
type PostOptions struct {
	AutoAllocate   bool
	PreferredOrder *uuid.UUID
	ActorID        uuid.UUID
}

// PostResult reports credited stock and any allocations made on the way.
type PostResult struct {
	Receipt     *models.InventoryReceipt `json:"receipt"`
	Allocations []allocation.Allocation  `json:"allocations,omitempty"`
}

type service struct {
	client    *db.Client
	repo      Repository
	balances  inventory.BalanceRepository
	resEngine *reservations.Engine
	allocator *allocation.Engine
	metrics   *metrics.EngineMetrics
	logg      *logger.Logger
	now       func() time.Time
}

// NewService wires the receipt lifecycle.
func NewService(client *db.Client, repo Repository, balances inventory.BalanceRepository, resEngine *reservations.Engine, allocator *allocation.Engine, engineMetrics *metrics.EngineMetrics, logg *logger.Logger) (Service, error) {
	if client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "db client required")
	}
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "receipts repository required")
	}
	if balances == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "balance repository required")
	}
	if resEngine == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "reservation engine required")
	}
	if allocator == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "allocation engine required")
	}
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	return &service{
		client:    client,
		repo:      repo,
		balances:  balances,
		resEngine: resEngine,
		allocator: allocator,
		metrics:   engineMetrics,
		logg:      logg,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.InventoryReceipt, error) {
	if !input.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid receipt type")
	}
	if len(input.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "receipt needs at least one item")
	}
	if input.ActorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "actor id required")
	}

	var receipt *models.InventoryReceipt
	err := s.client.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		receipt, err = s.CreateTx(ctx, tx, input)
		return err
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// CreateTx builds a draft receipt inside the caller's transaction.
func (s *service) CreateTx(ctx context.Context, tx *gorm.DB, input CreateInput) (*models.InventoryReceipt, error) {
	receipt := &models.InventoryReceipt{
		Type:          input.Type,
		Status:        enums.ReceiptStatusDraft,
		SourceOrderID: input.SourceOrderID,
		Notes:         input.Notes,
		CreatedBy:     input.ActorID,
	}
	for _, line := range input.Items {
		if !line.Qty.IsPositive() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "receipt quantities must be positive")
		}
		var material models.Material
		if err := tx.WithContext(ctx).First(&material, "id = ?", line.MaterialID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, pkgerrors.New(pkgerrors.CodeNotFound, "material not found").
					WithDetails(map[string]any{"material_id": line.MaterialID})
			}
			return nil, err
		}
		receipt.Items = append(receipt.Items, models.InventoryReceiptItem{
			MaterialID: line.MaterialID,
			Qty:        line.Qty,
		})
	}
	if err := s.repo.WithTx(tx).Create(ctx, receipt); err != nil {
		return nil, err
	}
	return receipt, nil
}

func (s *service) Post(ctx context.Context, receiptID uuid.UUID, opts PostOptions) (*PostResult, error) {
	var result *PostResult
	err := s.client.WithTxRetry(ctx, func(tx *gorm.DB) error {
		var err error
		result, err = s.PostTx(ctx, tx, receiptID, opts)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// PostTx credits every line to on-hand stock inside the caller's
// transaction. Posting an already posted receipt fails with a state
// conflict; the credit can never be applied twice.
func (s *service) PostTx(ctx context.Context, tx *gorm.DB, receiptID uuid.UUID, opts PostOptions) (*PostResult, error) {
	if receiptID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "receipt id required")
	}
	if opts.ActorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "actor id required")
	}

	repo := s.repo.WithTx(tx)
	receipt, err := repo.GetByIDForUpdate(ctx, receiptID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "receipt not found")
		}
		return nil, err
	}
	if receipt.Status != enums.ReceiptStatusDraft {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "receipt already posted")
	}

	balances := s.balances.WithTx(tx)
	result := &PostResult{}
	for _, line := range receipt.Items {
		if _, err := balances.LockForUpdate(ctx, line.MaterialID); err != nil {
			return nil, err
		}
		if err := balances.AddOnHand(ctx, line.MaterialID, line.Qty); err != nil {
			return nil, err
		}

		// A production run's promise is fulfilled the moment its output is
		// credited; the claim the allocator hands out replaces it.
		if receipt.Type == enums.ReceiptTypeProduction && receipt.SourceOrderID != nil {
			if err := s.resEngine.ClearPromiseTx(ctx, tx, *receipt.SourceOrderID, line.MaterialID); err != nil {
				return nil, err
			}
		}

		if opts.AutoAllocate {
			allocated, err := s.allocator.AllocateTx(ctx, tx, line.MaterialID, line.Qty, opts.PreferredOrder)
			if err != nil {
				return nil, err
			}
			result.Allocations = append(result.Allocations, allocated.Allocations...)
		}
	}

	now := s.now()
	receipt.Status = enums.ReceiptStatusPosted
	receipt.PostedAt = &now
	receipt.PostedBy = &opts.ActorID
	receipt.AutoAllocated = opts.AutoAllocate
	if err := repo.Save(ctx, receipt); err != nil {
		return nil, err
	}

	s.metrics.IncReceiptPosted()
	result.Receipt = receipt
	return result, nil
}

func (s *service) Get(ctx context.Context, receiptID uuid.UUID) (*models.InventoryReceipt, error) {
	if receiptID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "receipt id required")
	}
	receipt, err := s.repo.GetByID(ctx, receiptID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "receipt not found")
		}
		return nil, err
	}
	return receipt, nil
}

func (s *service) List(ctx context.Context, filter ListFilter) ([]models.InventoryReceipt, error) {
	rows, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list receipts")
	}
	return rows, nil
}
