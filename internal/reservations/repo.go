package reservations

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/andrebarreto/stockflow-backend/pkg/db/models"
)

// Repository persists stock reservations (time-boxed claims of on-hand
// stock) and production reservations (claims on quantity still being
// produced).
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	GetClaim(ctx context.Context, orderID, materialID uuid.UUID) (*models.StockReservation, error)
	SaveClaim(ctx context.Context, claim *models.StockReservation) error
	DeleteClaim(ctx context.Context, orderID, materialID uuid.UUID) error
	ListClaimsByOrder(ctx context.Context, orderID uuid.UUID) ([]models.StockReservation, error)
	ListExpiredClaims(ctx context.Context, cutoff time.Time) ([]models.StockReservation, error)
	DeleteClaimsByID(ctx context.Context, ids []uuid.UUID) error
	ExtendClaimsByOrder(ctx context.Context, orderID uuid.UUID, expiresAt time.Time) (int64, error)
	SumClaimsExcludingOrder(ctx context.Context, materialID, excludeOrder uuid.UUID) (decimal.Decimal, error)

	GetPromise(ctx context.Context, orderID, materialID uuid.UUID) (*models.ProductionReservation, error)
	SavePromise(ctx context.Context, promise *models.ProductionReservation) error
	DeletePromise(ctx context.Context, orderID, materialID uuid.UUID) error
	ListPromisesByOrder(ctx context.Context, orderID uuid.UUID) ([]models.ProductionReservation, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

func NewRepository(conn *gorm.DB) Repository {
	return &repositoryImpl{db: conn}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) GetClaim(ctx context.Context, orderID, materialID uuid.UUID) (*models.StockReservation, error) {
	var claim models.StockReservation
	err := r.db.WithContext(ctx).
		First(&claim, "order_id = ? AND material_id = ?", orderID, materialID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &claim, nil
}

func (r *repositoryImpl) SaveClaim(ctx context.Context, claim *models.StockReservation) error {
	return r.db.WithContext(ctx).Save(claim).Error
}

func (r *repositoryImpl) DeleteClaim(ctx context.Context, orderID, materialID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("order_id = ? AND material_id = ?", orderID, materialID).
		Delete(&models.StockReservation{}).Error
}

func (r *repositoryImpl) ListClaimsByOrder(ctx context.Context, orderID uuid.UUID) ([]models.StockReservation, error) {
	var out []models.StockReservation
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}

func (r *repositoryImpl) ListExpiredClaims(ctx context.Context, cutoff time.Time) ([]models.StockReservation, error) {
	var out []models.StockReservation
	err := r.db.WithContext(ctx).
		Where("expires_at <= ?", cutoff).
		Order("material_id ASC, created_at ASC").
		Find(&out).Error
	return out, err
}

func (r *repositoryImpl) DeleteClaimsByID(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Delete(&models.StockReservation{}).Error
}

func (r *repositoryImpl) ExtendClaimsByOrder(ctx context.Context, orderID uuid.UUID, expiresAt time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.StockReservation{}).
		Where("order_id = ?", orderID).
		Update("expires_at", expiresAt)
	return result.RowsAffected, result.Error
}

func (r *repositoryImpl) SumClaimsExcludingOrder(ctx context.Context, materialID, excludeOrder uuid.UUID) (decimal.Decimal, error) {
	var raw *string
	err := r.db.WithContext(ctx).
		Model(&models.StockReservation{}).
		Where("material_id = ? AND order_id <> ?", materialID, excludeOrder).
		Select("CAST(SUM(qty) AS TEXT)").
		Scan(&raw).Error
	if err != nil {
		return decimal.Zero, err
	}
	if raw == nil || *raw == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(*raw)
}

func (r *repositoryImpl) GetPromise(ctx context.Context, orderID, materialID uuid.UUID) (*models.ProductionReservation, error) {
	var promise models.ProductionReservation
	err := r.db.WithContext(ctx).
		First(&promise, "order_id = ? AND material_id = ?", orderID, materialID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &promise, nil
}

func (r *repositoryImpl) SavePromise(ctx context.Context, promise *models.ProductionReservation) error {
	return r.db.WithContext(ctx).Save(promise).Error
}

func (r *repositoryImpl) DeletePromise(ctx context.Context, orderID, materialID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("order_id = ? AND material_id = ?", orderID, materialID).
		Delete(&models.ProductionReservation{}).Error
}

func (r *repositoryImpl) ListPromisesByOrder(ctx context.Context, orderID uuid.UUID) ([]models.ProductionReservation, error) {
	var out []models.ProductionReservation
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Find(&out).Error
	return out, err
}
