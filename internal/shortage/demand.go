package shortage

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/andrebarreto/stockflow-backend/pkg/enums"
)

// DemandRepository measures the demand competing orders hold on a material.
type DemandRepository interface {
	WithTx(tx *gorm.DB) DemandRepository

	// OthersDemand sums the requested quantity of every active order except
	// excludeOrder, minus whatever those orders already route through
	// outstanding production tasks. The result is the share of on-hand
	// stock that must be left untouched for them.
	OthersDemand(ctx context.Context, materialID, excludeOrder uuid.UUID) (decimal.Decimal, error)
}

type demandRepository struct {
	db *gorm.DB
}

func NewDemandRepository(conn *gorm.DB) DemandRepository {
	return &demandRepository{db: conn}
}

func (r *demandRepository) WithTx(tx *gorm.DB) DemandRepository {
	return &demandRepository{db: tx}
}

func (r *demandRepository) OthersDemand(ctx context.Context, materialID, excludeOrder uuid.UUID) (decimal.Decimal, error) {
	requested, err := r.sumRequested(ctx, materialID, excludeOrder)
	if err != nil {
		return decimal.Zero, err
	}
	producing, err := r.sumOutstandingProduction(ctx, materialID, excludeOrder)
	if err != nil {
		return decimal.Zero, err
	}

	demand := requested.Sub(producing)
	if demand.IsNegative() {
		demand = decimal.Zero
	}
	return demand, nil
}

func (r *demandRepository) sumRequested(ctx context.Context, materialID, excludeOrder uuid.UUID) (decimal.Decimal, error) {
	var raw *string
	err := r.db.WithContext(ctx).
		Table("order_items").
		Joins("JOIN orders ON orders.id = order_items.order_id").
		Where("order_items.material_id = ?", materialID).
		Where("orders.id <> ?", excludeOrder).
		Where("orders.status IN ?", enums.ActiveOrderStatuses()).
		Where("orders.trashed_at IS NULL").
		Select("CAST(SUM(order_items.qty_requested) AS TEXT)").
		Scan(&raw).Error
	if err != nil {
		return decimal.Zero, err
	}
	return parseSum(raw)
}

func (r *demandRepository) sumOutstandingProduction(ctx context.Context, materialID, excludeOrder uuid.UUID) (decimal.Decimal, error) {
	var raw *string
	err := r.db.WithContext(ctx).
		Table("production_tasks").
		Joins("JOIN orders ON orders.id = production_tasks.order_id").
		Where("production_tasks.material_id = ?", materialID).
		Where("production_tasks.status <> ?", enums.ProductionTaskStatusDone).
		Where("orders.id <> ?", excludeOrder).
		Where("orders.status IN ?", enums.ActiveOrderStatuses()).
		Where("orders.trashed_at IS NULL").
		Select("CAST(SUM(production_tasks.qty_to_produce) AS TEXT)").
		Scan(&raw).Error
	if err != nil {
		return decimal.Zero, err
	}
	return parseSum(raw)
}

func parseSum(raw *string) (decimal.Decimal, error) {
	if raw == nil || *raw == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(*raw)
}
