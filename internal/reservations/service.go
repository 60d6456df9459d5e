package reservations

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/andrebarreto/stockflow-backend/internal/shortage"
	"github.com/andrebarreto/stockflow-backend/pkg/db"
	"github.com/andrebarreto/stockflow-backend/pkg/db/models"
	pkgerrors "github.com/andrebarreto/stockflow-backend/pkg/errors"
	"github.com/andrebarreto/stockflow-backend/pkg/logger"
	"github.com/andrebarreto/stockflow-backend/pkg/metrics"
)

// ReadinessFunc recomputes an order's readiness inside the caller's
// transaction.
type ReadinessFunc func(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error

// TaskSyncFunc resizes the production task backing an order item's
// qty_to_produce inside the caller's transaction.
type TaskSyncFunc func(ctx context.Context, tx *gorm.DB, orderID, materialID uuid.UUID, qty decimal.Decimal) error

// Service exposes the reservation lifecycle: claiming stock for an order,
// keeping claims alive while the order is edited, and sweeping claims whose
// editor went away.
type Service interface {
	Reserve(ctx context.Context, input ReserveInput) (*ReserveResult, error)
	Heartbeat(ctx context.Context, orderID uuid.UUID) (int64, error)
	SweepExpired(ctx context.Context) (*SweepResult, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) (*OrderReservations, error)
}

// OrderReservations is everything an order currently holds: live stock
// claims and outstanding production promises.
type OrderReservations struct {
	Claims   []models.StockReservation      `json:"claims"`
	Promises []models.ProductionReservation `json:"promises"`
}

// ReserveInput identifies the claim to size.
type ReserveInput struct {
	OrderID    uuid.UUID
	MaterialID uuid.UUID
	Qty        decimal.Decimal
	ActorID    uuid.UUID
}

// ReserveResult reports how the requested quantity was covered.
type ReserveResult struct {
	ReservedQty  decimal.Decimal `json:"reserved_qty"`
	QtyToProduce decimal.Decimal `json:"qty_to_produce"`
	ExpiresAt    *time.Time      `json:"expires_at,omitempty"`
}

// SweepResult summarizes one expiry sweep.
type SweepResult struct {
	Released      int         `json:"released"`
	OrdersTouched []uuid.UUID `json:"orders_touched"`
}

type service struct {
	client    *db.Client
	engine    *Engine
	repo      Repository
	syncTask  TaskSyncFunc
	readiness ReadinessFunc
	metrics   *metrics.EngineMetrics
	logg      *logger.Logger
	now       func() time.Time
}

// NewService wires the reservation lifecycle. syncTask and readiness may be
// nil when the caller handles those concerns itself.
func NewService(client *db.Client, engine *Engine, repo Repository, syncTask TaskSyncFunc, readiness ReadinessFunc, engineMetrics *metrics.EngineMetrics, logg *logger.Logger) (Service, error) {
	if client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "db client required")
	}
	if engine == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "reservation engine required")
	}
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "reservations repository required")
	}
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	return &service{
		client:    client,
		engine:    engine,
		repo:      repo,
		syncTask:  syncTask,
		readiness: readiness,
		metrics:   engineMetrics,
		logg:      logg,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) Reserve(ctx context.Context, input ReserveInput) (*ReserveResult, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.MaterialID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "material id required")
	}
	if input.Qty.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must not be negative")
	}

	var result ReserveResult
	err := s.client.WithTxRetry(ctx, func(tx *gorm.DB) error {
		reserved, err := s.engine.ReserveTx(ctx, tx, input.OrderID, input.MaterialID, input.Qty)
		if err != nil {
			return err
		}
		result.ReservedQty = reserved

		var item models.OrderItem
		err = tx.WithContext(ctx).
			First(&item, "order_id = ? AND material_id = ?", input.OrderID, input.MaterialID).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err == nil {
			item.QtyReservedFromStock = reserved
			item.QtyToProduce = shortage.Resolve(item.QtyRequested, reserved, item.ShortageAction)
			if err := tx.WithContext(ctx).Save(&item).Error; err != nil {
				return err
			}
			result.QtyToProduce = item.QtyToProduce

			var order models.Order
			if err := tx.WithContext(ctx).First(&order, "id = ?", input.OrderID).Error; err != nil {
				return err
			}
			if order.Status.CompetesForStock() && s.syncTask != nil {
				if err := s.syncTask(ctx, tx, input.OrderID, input.MaterialID, item.QtyToProduce); err != nil {
					return err
				}
			}
		}

		if reserved.IsPositive() {
			claim, err := s.repo.WithTx(tx).GetClaim(ctx, input.OrderID, input.MaterialID)
			if err != nil {
				return err
			}
			if claim != nil {
				expires := claim.ExpiresAt
				result.ExpiresAt = &expires
			}
		}

		if s.readiness != nil {
			return s.readiness(ctx, tx, input.OrderID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveReservation(reserveOutcome(input.Qty, result.ReservedQty))
	return &result, nil
}

func (s *service) Heartbeat(ctx context.Context, orderID uuid.UUID) (int64, error) {
	if orderID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	var touched int64
	err := s.client.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		touched, err = s.repo.WithTx(tx).ExtendClaimsByOrder(ctx, orderID, s.now().Add(s.engine.TTL()))
		return err
	})
	return touched, err
}

func (s *service) ListByOrder(ctx context.Context, orderID uuid.UUID) (*OrderReservations, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	claims, err := s.repo.ListClaimsByOrder(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list claims")
	}
	promises, err := s.repo.ListPromisesByOrder(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list promises")
	}
	return &OrderReservations{Claims: claims, Promises: promises}, nil
}

func (s *service) SweepExpired(ctx context.Context) (*SweepResult, error) {
	result := &SweepResult{}
	err := s.client.WithTxRetry(ctx, func(tx *gorm.DB) error {
		result.Released = 0
		result.OrdersTouched = nil

		repo := s.repo.WithTx(tx)
		expired, err := repo.ListExpiredClaims(ctx, s.now())
		if err != nil {
			return err
		}
		if len(expired) == 0 {
			return nil
		}

		orders := map[uuid.UUID]struct{}{}
		lockedMaterials := map[uuid.UUID]struct{}{}
		for _, claim := range expired {
			if _, done := lockedMaterials[claim.MaterialID]; !done {
				if _, err := s.engine.balances.WithTx(tx).LockForUpdate(ctx, claim.MaterialID); err != nil {
					return err
				}
				lockedMaterials[claim.MaterialID] = struct{}{}
			}

			// Reload under the lock; the claim may have been renewed
			// between the scan and here.
			current, err := repo.GetClaim(ctx, claim.OrderID, claim.MaterialID)
			if err != nil {
				return err
			}
			if current == nil || current.ExpiresAt.After(s.now()) {
				continue
			}

			if err := repo.DeleteClaim(ctx, claim.OrderID, claim.MaterialID); err != nil {
				return err
			}
			if err := s.engine.balances.WithTx(tx).AddReservedTotal(ctx, claim.MaterialID, current.Qty.Neg()); err != nil {
				return err
			}
			if err := s.resetItemAfterExpiry(ctx, tx, claim.OrderID, claim.MaterialID); err != nil {
				return err
			}

			orders[claim.OrderID] = struct{}{}
			result.Released++
		}

		for orderID := range orders {
			result.OrdersTouched = append(result.OrdersTouched, orderID)
			if s.readiness != nil {
				if err := s.readiness(ctx, tx, orderID); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Released > 0 {
		s.metrics.AddExpired(result.Released)
		s.logg.Info(ctx, "expired stock reservations released")
	}
	return result, nil
}

// resetItemAfterExpiry pushes the item back through shortage resolution as
// if nothing had ever been reserved for it.
func (s *service) resetItemAfterExpiry(ctx context.Context, tx *gorm.DB, orderID, materialID uuid.UUID) error {
	var item models.OrderItem
	err := tx.WithContext(ctx).
		First(&item, "order_id = ? AND material_id = ?", orderID, materialID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	item.QtyReservedFromStock = decimal.Zero
	item.QtyToProduce = shortage.Resolve(item.QtyRequested, decimal.Zero, item.ShortageAction)
	if err := tx.WithContext(ctx).Save(&item).Error; err != nil {
		return err
	}

	if s.syncTask == nil {
		return nil
	}
	var order models.Order
	if err := tx.WithContext(ctx).First(&order, "id = ?", orderID).Error; err != nil {
		return err
	}
	if !order.Status.CompetesForStock() {
		return nil
	}
	return s.syncTask(ctx, tx, orderID, materialID, item.QtyToProduce)
}

func reserveOutcome(requested, reserved decimal.Decimal) string {
	switch {
	case !requested.IsPositive():
		return "released"
	case reserved.GreaterThanOrEqual(requested):
		return "full"
	case reserved.IsPositive():
		return "partial"
	default:
		return "none"
	}
}
