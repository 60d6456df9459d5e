package receipts

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/andrebarreto/stockflow-backend/pkg/db"
	"github.com/andrebarreto/stockflow-backend/pkg/db/models"
	"github.com/andrebarreto/stockflow-backend/pkg/enums"
)

// Repository persists inventory receipts.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	Create(ctx context.Context, receipt *models.InventoryReceipt) error
	Save(ctx context.Context, receipt *models.InventoryReceipt) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.InventoryReceipt, error)
	// GetByIDForUpdate loads the receipt under a write lock so concurrent
	// posts serialize on the row.
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.InventoryReceipt, error)
	List(ctx context.Context, filter ListFilter) ([]models.InventoryReceipt, error)
}

// ListFilter narrows receipt listings.
type ListFilter struct {
	Status        *enums.ReceiptStatus
	Type          *enums.ReceiptType
	SourceOrderID *uuid.UUID
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

func (r *repositoryImpl) Create(ctx context.Context, receipt *models.InventoryReceipt) error {
	return r.db.WithContext(ctx).Create(receipt).Error
}

func (r *repositoryImpl) Save(ctx context.Context, receipt *models.InventoryReceipt) error {
	return r.db.WithContext(ctx).Omit("Items").Save(receipt).Error
}

func (r *repositoryImpl) GetByID(ctx context.Context, id uuid.UUID) (*models.InventoryReceipt, error) {
	var receipt models.InventoryReceipt
	err := r.db.WithContext(ctx).
		Preload("Items").
		First(&receipt, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &receipt, nil
}

func (r *repositoryImpl) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.InventoryReceipt, error) {
	var receipt models.InventoryReceipt
	err := db.ForUpdate(r.db.WithContext(ctx)).
		First(&receipt, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).
		Where("receipt_id = ?", id).
		Order("created_at ASC").
		Find(&receipt.Items).Error; err != nil {
		return nil, err
	}
	return &receipt, nil
}

func (r *repositoryImpl) List(ctx context.Context, filter ListFilter) ([]models.InventoryReceipt, error) {
	query := r.db.WithContext(ctx).Model(&models.InventoryReceipt{}).Preload("Items")
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.Type != nil {
		query = query.Where("type = ?", *filter.Type)
	}
	if filter.SourceOrderID != nil {
		query = query.Where("source_order_id = ?", *filter.SourceOrderID)
	}

	var out []models.InventoryReceipt
	err := query.Order("created_at DESC").Find(&out).Error
	return out, err
}
