package orders

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/andrebarreto/stockflow-backend/pkg/db"
	"github.com/andrebarreto/stockflow-backend/pkg/db/models"
	"github.com/andrebarreto/stockflow-backend/pkg/enums"
	"github.com/andrebarreto/stockflow-backend/pkg/pagination"
)

// Repository persists orders, their items and item conditions.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	Create(ctx context.Context, order *models.Order) error
	Save(ctx context.Context, order *models.Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	// GetByIDForUpdate locks the order row for the rest of the transaction.
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error)
	GetDetail(ctx context.Context, id uuid.UUID) (*models.Order, error)
	List(ctx context.Context, params listOrdersParams) ([]models.Order, *pagination.Cursor, error)

	GetItem(ctx context.Context, orderID, materialID uuid.UUID) (*models.OrderItem, error)
	SaveItem(ctx context.Context, item *models.OrderItem) error
	DeleteItem(ctx context.Context, itemID uuid.UUID) error
	ListItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error)
	ReplaceItemConditions(ctx context.Context, itemID uuid.UUID, conditions []models.OrderItemCondition) error
}

type listOrdersParams struct {
	Status        *enums.OrderStatus
	Replenishment *bool
	IncludeTrash  bool
	Limit         int
	Cursor        *pagination.Cursor
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

func (r *repositoryImpl) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repositoryImpl) Save(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Omit("Items").Save(order).Error
}

func (r *repositoryImpl) GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).First(&order, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repositoryImpl) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := db.ForUpdate(r.db.WithContext(ctx)).
		First(&order, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repositoryImpl) GetDetail(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("order_items.created_at ASC")
		}).
		Preload("Items.Conditions", func(db *gorm.DB) *gorm.DB {
			return db.Order("order_item_conditions.position ASC")
		}).
		First(&order, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repositoryImpl) List(ctx context.Context, params listOrdersParams) ([]models.Order, *pagination.Cursor, error) {
	limit := pagination.LimitWithBuffer(params.Limit)
	normalized := pagination.NormalizeLimit(params.Limit)

	query := r.db.WithContext(ctx).Model(&models.Order{})
	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}
	if params.Replenishment != nil {
		query = query.Where("replenishment = ?", *params.Replenishment)
	}
	if !params.IncludeTrash {
		query = query.Where("trashed_at IS NULL")
	}
	if params.Cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", params.Cursor.CreatedAt, params.Cursor.ID)
	}

	var orders []models.Order
	if err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&orders).Error; err != nil {
		return nil, nil, err
	}

	if len(orders) > normalized {
		next := orders[normalized]
		orders = orders[:normalized]
		return orders, &pagination.Cursor{CreatedAt: next.CreatedAt, ID: next.ID}, nil
	}
	return orders, nil, nil
}

func (r *repositoryImpl) GetItem(ctx context.Context, orderID, materialID uuid.UUID) (*models.OrderItem, error) {
	var item models.OrderItem
	err := r.db.WithContext(ctx).
		First(&item, "order_id = ? AND material_id = ?", orderID, materialID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repositoryImpl) SaveItem(ctx context.Context, item *models.OrderItem) error {
	return r.db.WithContext(ctx).Omit("Conditions").Save(item).Error
}

func (r *repositoryImpl) DeleteItem(ctx context.Context, itemID uuid.UUID) error {
	if err := r.db.WithContext(ctx).
		Where("order_item_id = ?", itemID).
		Delete(&models.OrderItemCondition{}).Error; err != nil {
		return err
	}
	return r.db.WithContext(ctx).Delete(&models.OrderItem{}, "id = ?", itemID).Error
}

func (r *repositoryImpl) ListItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error) {
	var out []models.OrderItem
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}

func (r *repositoryImpl) ReplaceItemConditions(ctx context.Context, itemID uuid.UUID, conditions []models.OrderItemCondition) error {
	if err := r.db.WithContext(ctx).
		Where("order_item_id = ?", itemID).
		Delete(&models.OrderItemCondition{}).Error; err != nil {
		return err
	}
	if len(conditions) == 0 {
		return nil
	}
	for i := range conditions {
		conditions[i].OrderItemID = itemID
		conditions[i].Position = i
	}
	return r.db.WithContext(ctx).Create(&conditions).Error
}
