package inventory

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/andrebarreto/stockflow-backend/pkg/db"
	"github.com/andrebarreto/stockflow-backend/pkg/db/models"
)

// BalanceRepository owns the stock balance ledger. Mutating callers must run
// inside a transaction and take the row lock before reading any dependent
// state (reservations, demand, tasks) for the same material.
type BalanceRepository interface {
	WithTx(tx *gorm.DB) BalanceRepository

	// LockForUpdate loads the balance row under a write lock, creating a
	// zero row first when the material has never moved.
	LockForUpdate(ctx context.Context, materialID uuid.UUID) (*models.StockBalance, error)

	Get(ctx context.Context, materialID uuid.UUID) (*models.StockBalance, error)
	List(ctx context.Context) ([]models.StockBalance, error)

	AddOnHand(ctx context.Context, materialID uuid.UUID, delta decimal.Decimal) error
	SetReservedTotal(ctx context.Context, materialID uuid.UUID, total decimal.Decimal) error
	AddReservedTotal(ctx context.Context, materialID uuid.UUID, delta decimal.Decimal) error
	AddProductionReserved(ctx context.Context, materialID uuid.UUID, delta decimal.Decimal) error
}

type balanceRepository struct {
	db *gorm.DB
}

func NewBalanceRepository(conn *gorm.DB) BalanceRepository {
	return &balanceRepository{db: conn}
}

func (r *balanceRepository) WithTx(tx *gorm.DB) BalanceRepository {
	return &balanceRepository{db: tx}
}

func (r *balanceRepository) LockForUpdate(ctx context.Context, materialID uuid.UUID) (*models.StockBalance, error) {
	var balance models.StockBalance
	err := db.ForUpdate(r.db.WithContext(ctx)).
		First(&balance, "material_id = ?", materialID).Error
	if err == nil {
		return &balance, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	balance = models.StockBalance{MaterialID: materialID}
	if err := r.db.WithContext(ctx).Create(&balance).Error; err != nil {
		return nil, err
	}
	err = db.ForUpdate(r.db.WithContext(ctx)).
		First(&balance, "material_id = ?", materialID).Error
	if err != nil {
		return nil, err
	}
	return &balance, nil
}

func (r *balanceRepository) Get(ctx context.Context, materialID uuid.UUID) (*models.StockBalance, error) {
	var balance models.StockBalance
	if err := r.db.WithContext(ctx).First(&balance, "material_id = ?", materialID).Error; err != nil {
		return nil, err
	}
	return &balance, nil
}

func (r *balanceRepository) List(ctx context.Context) ([]models.StockBalance, error) {
	var out []models.StockBalance
	if err := r.db.WithContext(ctx).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *balanceRepository) AddOnHand(ctx context.Context, materialID uuid.UUID, delta decimal.Decimal) error {
	return r.addColumn(ctx, materialID, "on_hand", delta)
}

func (r *balanceRepository) SetReservedTotal(ctx context.Context, materialID uuid.UUID, total decimal.Decimal) error {
	return r.db.WithContext(ctx).
		Model(&models.StockBalance{}).
		Where("material_id = ?", materialID).
		Update("reserved_total", total).Error
}

func (r *balanceRepository) AddReservedTotal(ctx context.Context, materialID uuid.UUID, delta decimal.Decimal) error {
	return r.addColumn(ctx, materialID, "reserved_total", delta)
}

func (r *balanceRepository) AddProductionReserved(ctx context.Context, materialID uuid.UUID, delta decimal.Decimal) error {
	return r.addColumn(ctx, materialID, "production_reserved", delta)
}

func (r *balanceRepository) addColumn(ctx context.Context, materialID uuid.UUID, column string, delta decimal.Decimal) error {
	if delta.IsZero() {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.StockBalance{}).
		Where("material_id = ?", materialID).
		Update(column, gorm.Expr(column+" + ?", delta)).Error
}
