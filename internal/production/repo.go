package production

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/andrebarreto/stockflow-backend/pkg/db/models"
	"github.com/andrebarreto/stockflow-backend/pkg/enums"
)

// Repository persists production tasks.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	GetByID(ctx context.Context, id uuid.UUID) (*models.ProductionTask, error)
	GetByKey(ctx context.Context, orderID, materialID uuid.UUID) (*models.ProductionTask, error)
	Save(ctx context.Context, task *models.ProductionTask) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, filter ListFilter) ([]models.ProductionTask, error)
	DeleteUnfinishedByOrder(ctx context.Context, orderID uuid.UUID) error
	ListUnfinishedByOrder(ctx context.Context, orderID uuid.UUID) ([]models.ProductionTask, error)
}

// ListFilter narrows task listings.
type ListFilter struct {
	OrderID    *uuid.UUID
	MaterialID *uuid.UUID
	Status     *enums.ProductionTaskStatus
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

func (r *repositoryImpl) GetByID(ctx context.Context, id uuid.UUID) (*models.ProductionTask, error) {
	var task models.ProductionTask
	if err := r.db.WithContext(ctx).First(&task, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

func (r *repositoryImpl) GetByKey(ctx context.Context, orderID, materialID uuid.UUID) (*models.ProductionTask, error) {
	var task models.ProductionTask
	err := r.db.WithContext(ctx).
		First(&task, "order_id = ? AND material_id = ?", orderID, materialID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (r *repositoryImpl) Save(ctx context.Context, task *models.ProductionTask) error {
	return r.db.WithContext(ctx).Save(task).Error
}

func (r *repositoryImpl) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.ProductionTask{}, "id = ?", id).Error
}

func (r *repositoryImpl) List(ctx context.Context, filter ListFilter) ([]models.ProductionTask, error) {
	query := r.db.WithContext(ctx).Model(&models.ProductionTask{})
	if filter.OrderID != nil {
		query = query.Where("order_id = ?", *filter.OrderID)
	}
	if filter.MaterialID != nil {
		query = query.Where("material_id = ?", *filter.MaterialID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}

	var out []models.ProductionTask
	err := query.Order("created_at ASC").Find(&out).Error
	return out, err
}

func (r *repositoryImpl) DeleteUnfinishedByOrder(ctx context.Context, orderID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("order_id = ? AND status <> ?", orderID, enums.ProductionTaskStatusDone).
		Delete(&models.ProductionTask{}).Error
}

func (r *repositoryImpl) ListUnfinishedByOrder(ctx context.Context, orderID uuid.UUID) ([]models.ProductionTask, error) {
	var out []models.ProductionTask
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND status <> ?", orderID, enums.ProductionTaskStatusDone).
		Find(&out).Error
	return out, err
}
