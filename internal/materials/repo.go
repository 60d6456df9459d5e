package materials

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/andrebarreto/stockflow-backend/pkg/db/models"
)

// Repository persists the material catalog.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	Create(ctx context.Context, material *models.Material) error
	Update(ctx context.Context, material *models.Material) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Material, error)
	GetByCode(ctx context.Context, code string) (*models.Material, error)
	List(ctx context.Context) ([]models.Material, error)

	// ListBelowReorderPoint returns materials whose on-hand quantity has
	// fallen to or below their reorder point. Materials without a stock
	// balance row count as zero on hand.
	ListBelowReorderPoint(ctx context.Context) ([]LowStockRow, error)
}

// LowStockRow pairs a material with its current balance for replenishment
// scans.
type LowStockRow struct {
	Material models.Material
	Balance  models.StockBalance
}

type repositoryImpl struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) Create(ctx context.Context, material *models.Material) error {
	return r.db.WithContext(ctx).Create(material).Error
}

func (r *repositoryImpl) Update(ctx context.Context, material *models.Material) error {
	return r.db.WithContext(ctx).Save(material).Error
}

func (r *repositoryImpl) GetByID(ctx context.Context, id uuid.UUID) (*models.Material, error) {
	var material models.Material
	if err := r.db.WithContext(ctx).First(&material, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &material, nil
}

func (r *repositoryImpl) GetByCode(ctx context.Context, code string) (*models.Material, error) {
	var material models.Material
	if err := r.db.WithContext(ctx).First(&material, "code = ?", code).Error; err != nil {
		return nil, err
	}
	return &material, nil
}

func (r *repositoryImpl) List(ctx context.Context) ([]models.Material, error) {
	var out []models.Material
	if err := r.db.WithContext(ctx).Order("code ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repositoryImpl) ListBelowReorderPoint(ctx context.Context) ([]LowStockRow, error) {
	var mats []models.Material
	if err := r.db.WithContext(ctx).
		Where("reorder_point > 0").
		Order("code ASC").
		Find(&mats).Error; err != nil {
		return nil, err
	}

	out := make([]LowStockRow, 0, len(mats))
	for i := range mats {
		var bal models.StockBalance
		err := r.db.WithContext(ctx).
			First(&bal, "material_id = ?", mats[i].ID).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			bal = models.StockBalance{MaterialID: mats[i].ID}
		case err != nil:
			return nil, err
		}
		if bal.OnHand.GreaterThan(mats[i].ReorderPoint) {
			continue
		}
		out = append(out, LowStockRow{Material: mats[i], Balance: bal})
	}
	return out, nil
}
