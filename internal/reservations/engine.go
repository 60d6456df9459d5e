package reservations

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/andrebarreto/stockflow-backend/internal/inventory"
	"github.com/andrebarreto/stockflow-backend/pkg/db/models"
	pkgerrors "github.com/andrebarreto/stockflow-backend/pkg/errors"
)

// Engine holds the transaction-scoped reservation primitives. Every method
// expects the caller to have locked the material's balance row through the
// same tx; the engine keeps reserved_total equal to the sum of claims and
// production_reserved equal to the sum of promises.
type Engine struct {
	repo     Repository
	balances inventory.BalanceRepository
	ttl      time.Duration
	now      func() time.Time
}

// NewEngine wires the reservation primitives. ttl is the claim lifetime.
func NewEngine(repo Repository, balances inventory.BalanceRepository, ttl time.Duration) (*Engine, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "reservations repository required")
	}
	if balances == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "balance repository required")
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Engine{
		repo:     repo,
		balances: balances,
		ttl:      ttl,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// TTL exposes the configured claim lifetime.
func (e *Engine) TTL() time.Duration {
	return e.ttl
}

// WithNow overrides the clock, for tests.
func (e *Engine) WithNow(now func() time.Time) *Engine {
	clone := *e
	clone.now = now
	return &clone
}

// ReserveTx sizes the order's claim on a material to min(requested,
// available), where available is on-hand stock minus every other order's
// live claim. The existing claim, if any, is resized rather than stacked;
// requesting zero releases it. Returns the resulting claimed quantity.
func (e *Engine) ReserveTx(ctx context.Context, tx *gorm.DB, orderID, materialID uuid.UUID, requested decimal.Decimal) (decimal.Decimal, error) {
	if requested.IsNegative() {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "requested quantity must not be negative")
	}
	repo := e.repo.WithTx(tx)
	balances := e.balances.WithTx(tx)

	balance, err := balances.LockForUpdate(ctx, materialID)
	if err != nil {
		return decimal.Zero, err
	}

	othersClaimed, err := repo.SumClaimsExcludingOrder(ctx, materialID, orderID)
	if err != nil {
		return decimal.Zero, err
	}

	available := balance.OnHand.Sub(othersClaimed)
	if available.IsNegative() {
		available = decimal.Zero
	}
	reserved := decimal.Min(requested, available)

	if reserved.IsPositive() {
		claim, err := repo.GetClaim(ctx, orderID, materialID)
		if err != nil {
			return decimal.Zero, err
		}
		if claim == nil {
			claim = &models.StockReservation{OrderID: orderID, MaterialID: materialID}
		}
		claim.Qty = reserved
		claim.ExpiresAt = e.now().Add(e.ttl)
		if err := repo.SaveClaim(ctx, claim); err != nil {
			return decimal.Zero, err
		}
	} else {
		if err := repo.DeleteClaim(ctx, orderID, materialID); err != nil {
			return decimal.Zero, err
		}
	}

	// Recomputing the total from the parts keeps the ledger honest even if
	// an earlier crash left it skewed.
	if err := balances.SetReservedTotal(ctx, materialID, othersClaimed.Add(reserved)); err != nil {
		return decimal.Zero, err
	}
	return reserved, nil
}

// ClaimMoreTx grows the order's claim by addQty with a fresh expiry. Unlike
// ReserveTx it never shrinks the claim; allocation uses it to hand freshly
// received stock to a waiting order.
func (e *Engine) ClaimMoreTx(ctx context.Context, tx *gorm.DB, orderID, materialID uuid.UUID, addQty decimal.Decimal) error {
	if !addQty.IsPositive() {
		return nil
	}
	repo := e.repo.WithTx(tx)

	claim, err := repo.GetClaim(ctx, orderID, materialID)
	if err != nil {
		return err
	}
	if claim == nil {
		claim = &models.StockReservation{OrderID: orderID, MaterialID: materialID, Qty: decimal.Zero}
	}
	claim.Qty = claim.Qty.Add(addQty)
	claim.ExpiresAt = e.now().Add(e.ttl)
	if err := repo.SaveClaim(ctx, claim); err != nil {
		return err
	}
	return e.balances.WithTx(tx).AddReservedTotal(ctx, materialID, addQty)
}

// RefreshClaimTx renews the expiry of a single claim without touching its
// quantity. Missing claims are ignored.
func (e *Engine) RefreshClaimTx(ctx context.Context, tx *gorm.DB, orderID, materialID uuid.UUID) error {
	repo := e.repo.WithTx(tx)
	claim, err := repo.GetClaim(ctx, orderID, materialID)
	if err != nil || claim == nil {
		return err
	}
	claim.ExpiresAt = e.now().Add(e.ttl)
	return repo.SaveClaim(ctx, claim)
}

// ReleaseOrderTx drops every claim the order holds and returns what was
// released per material. Balances must not yet be locked by the caller; the
// engine locks each affected material itself.
func (e *Engine) ReleaseOrderTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (map[uuid.UUID]decimal.Decimal, error) {
	repo := e.repo.WithTx(tx)
	balances := e.balances.WithTx(tx)

	claims, err := repo.ListClaimsByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	released := make(map[uuid.UUID]decimal.Decimal, len(claims))
	for _, claim := range claims {
		if _, err := balances.LockForUpdate(ctx, claim.MaterialID); err != nil {
			return nil, err
		}
		if err := repo.DeleteClaim(ctx, claim.OrderID, claim.MaterialID); err != nil {
			return nil, err
		}
		if err := balances.AddReservedTotal(ctx, claim.MaterialID, claim.Qty.Neg()); err != nil {
			return nil, err
		}
		released[claim.MaterialID] = released[claim.MaterialID].Add(claim.Qty)
	}
	return released, nil
}

// SetPromiseTx sizes the order's production promise for a material and keeps
// production_reserved in step. qty of zero or less clears the promise.
func (e *Engine) SetPromiseTx(ctx context.Context, tx *gorm.DB, orderID, materialID uuid.UUID, qty decimal.Decimal) error {
	repo := e.repo.WithTx(tx)
	balances := e.balances.WithTx(tx)

	// Re-locking inside the same tx is a no-op, so callers that already
	// hold the balance lock lose nothing.
	if _, err := balances.LockForUpdate(ctx, materialID); err != nil {
		return err
	}

	promise, err := repo.GetPromise(ctx, orderID, materialID)
	if err != nil {
		return err
	}

	previous := decimal.Zero
	if promise != nil {
		previous = promise.Qty
	}

	if !qty.IsPositive() {
		if promise == nil {
			return nil
		}
		if err := repo.DeletePromise(ctx, orderID, materialID); err != nil {
			return err
		}
		return balances.AddProductionReserved(ctx, materialID, previous.Neg())
	}

	if promise == nil {
		promise = &models.ProductionReservation{OrderID: orderID, MaterialID: materialID}
	}
	promise.Qty = qty
	if err := repo.SavePromise(ctx, promise); err != nil {
		return err
	}
	return balances.AddProductionReserved(ctx, materialID, qty.Sub(previous))
}

// ClearPromiseTx removes the order's production promise for a material.
func (e *Engine) ClearPromiseTx(ctx context.Context, tx *gorm.DB, orderID, materialID uuid.UUID) error {
	return e.SetPromiseTx(ctx, tx, orderID, materialID, decimal.Zero)
}
