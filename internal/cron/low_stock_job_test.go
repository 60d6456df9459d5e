package cron

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/andrebarreto/stockflow-backend/internal/materials"
	"github.com/andrebarreto/stockflow-backend/internal/notifications"
	"github.com/andrebarreto/stockflow-backend/internal/orders"
	"github.com/andrebarreto/stockflow-backend/pkg/db"
	"github.com/andrebarreto/stockflow-backend/pkg/db/models"
	"github.com/andrebarreto/stockflow-backend/pkg/enums"
	"github.com/andrebarreto/stockflow-backend/pkg/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:cron_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	err = conn.AutoMigrate(
		&models.Material{},
		&models.StockBalance{},
		&models.Order{},
		&models.OrderItem{},
		&models.Notification{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

type fakeReplenisher struct {
	inputs []orders.ReplenishmentInput
}

func (f *fakeReplenisher) CreateReplenishment(_ context.Context, input orders.ReplenishmentInput) (*models.Order, error) {
	f.inputs = append(f.inputs, input)
	return &models.Order{ID: uuid.New()}, nil
}

func seedLowMaterial(t *testing.T, conn *gorm.DB, code, onHand, minStock, reorderPoint string) uuid.UUID {
	t.Helper()
	material := &models.Material{
		ID:           uuid.New(),
		Code:         code,
		Name:         code,
		Unit:         "un",
		MinStock:     dec(minStock),
		ReorderPoint: dec(reorderPoint),
	}
	if err := conn.Create(material).Error; err != nil {
		t.Fatalf("seed material: %v", err)
	}
	if err := conn.Create(&models.StockBalance{MaterialID: material.ID, OnHand: dec(onHand)}).Error; err != nil {
		t.Fatalf("seed balance: %v", err)
	}
	return material.ID
}

func newLowStockJob(t *testing.T, conn *gorm.DB, replenisher *fakeReplenisher) Job {
	t.Helper()
	emitter, err := notifications.NewEmitter(notifications.NewRepository(conn))
	if err != nil {
		t.Fatalf("new emitter: %v", err)
	}
	params := LowStockJobParams{
		Logger:    logger.New(logger.Options{ServiceName: "test"}),
		DB:        db.NewFromGorm(conn),
		Materials: materials.NewRepository(conn),
		Emitter:   emitter,
		ActorID:   uuid.New(),
	}
	if replenisher != nil {
		params.Orders = replenisher
	}
	job, err := NewLowStockJob(params)
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	return job
}

func TestLowStockJobNotifiesOnce(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	ctx := context.Background()
	material := seedLowMaterial(t, conn, "LOW", "4", "0", "10")
	job := newLowStockJob(t, conn, nil)

	if err := job.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	// The unread warning suppresses a duplicate on the next tick.
	if err := job.Run(ctx); err != nil {
		t.Fatalf("second run: %v", err)
	}

	var count int64
	err := conn.Model(&models.Notification{}).
		Where("type = ? AND material_id = ?", enums.NotificationTypeLowStock, material).
		Count(&count).Error
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one low stock warning, got %d", count)
	}
}

func TestLowStockJobDraftsReplenishmentBelowMinimum(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	ctx := context.Background()
	underMin := seedLowMaterial(t, conn, "UNDER", "1", "5", "10")
	seedLowMaterial(t, conn, "WARN", "4", "2", "10")
	replenisher := &fakeReplenisher{}
	job := newLowStockJob(t, conn, replenisher)

	if err := job.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}

	// Only the material under its minimum gets an order, topped up to the
	// reorder point.
	if len(replenisher.inputs) != 1 {
		t.Fatalf("expected one replenishment, got %d", len(replenisher.inputs))
	}
	input := replenisher.inputs[0]
	if len(input.Items) != 1 || input.Items[0].MaterialID != underMin {
		t.Fatalf("unexpected replenishment input: %+v", input)
	}
	if !input.Items[0].Qty.Equal(dec("9")) {
		t.Fatalf("expected qty 9 (10 - 1 on hand), got %s", input.Items[0].Qty)
	}
}

func TestLowStockJobSkipsMaterialsWithPendingReplenishment(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	ctx := context.Background()
	material := seedLowMaterial(t, conn, "UNDER", "1", "5", "10")

	pending := &models.Order{
		ID:            uuid.New(),
		OrderNumber:   "MRP-TEST",
		Status:        enums.OrderStatusDraft,
		Readiness:     enums.ReadinessNotReady,
		Replenishment: true,
		CreatedBy:     uuid.New(),
	}
	if err := conn.Create(pending).Error; err != nil {
		t.Fatalf("seed pending order: %v", err)
	}
	if err := conn.Create(&models.OrderItem{
		OrderID:        pending.ID,
		MaterialID:     material,
		QtyRequested:   dec("9"),
		ShortageAction: enums.ShortageActionProduce,
	}).Error; err != nil {
		t.Fatalf("seed pending item: %v", err)
	}

	replenisher := &fakeReplenisher{}
	job := newLowStockJob(t, conn, replenisher)
	if err := job.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(replenisher.inputs) != 0 {
		t.Fatalf("expected no replenishment while one is pending, got %d", len(replenisher.inputs))
	}
}
