package shortage

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/andrebarreto/stockflow-backend/pkg/db/models"
	"github.com/andrebarreto/stockflow-backend/pkg/enums"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:shortage_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := conn.AutoMigrate(&models.Order{}, &models.OrderItem{}, &models.ProductionTask{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn
}

func seedOrder(t *testing.T, conn *gorm.DB, status enums.OrderStatus) *models.Order {
	t.Helper()
	order := &models.Order{
		ID:          uuid.New(),
		OrderNumber: "T" + uuid.NewString()[:8],
		Status:      status,
		Readiness:   enums.ReadinessNotReady,
		CreatedBy:   uuid.New(),
	}
	if err := conn.Create(order).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return order
}

func TestOthersDemandNetsOutProduction(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	ctx := context.Background()
	material := uuid.New()

	competitor := seedOrder(t, conn, enums.OrderStatusOpen)
	me := seedOrder(t, conn, enums.OrderStatusOpen)

	if err := conn.Create(&models.OrderItem{
		OrderID:      competitor.ID,
		MaterialID:   material,
		QtyRequested: dec("50"),
	}).Error; err != nil {
		t.Fatalf("seed item: %v", err)
	}
	if err := conn.Create(&models.ProductionTask{
		OrderID:      competitor.ID,
		MaterialID:   material,
		QtyToProduce: dec("30"),
		Status:       enums.ProductionTaskStatusPending,
	}).Error; err != nil {
		t.Fatalf("seed task: %v", err)
	}

	demand, err := NewDemandRepository(conn).OthersDemand(ctx, material, me.ID)
	if err != nil {
		t.Fatalf("others demand: %v", err)
	}
	if !demand.Equal(dec("20")) {
		t.Fatalf("expected 20, got %s", demand)
	}
}

func TestOthersDemandIgnoresDraftsAndDoneTasks(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	ctx := context.Background()
	material := uuid.New()

	draft := seedOrder(t, conn, enums.OrderStatusDraft)
	open := seedOrder(t, conn, enums.OrderStatusOpen)
	me := seedOrder(t, conn, enums.OrderStatusOpen)

	for _, item := range []models.OrderItem{
		{OrderID: draft.ID, MaterialID: material, QtyRequested: dec("100")},
		{OrderID: open.ID, MaterialID: material, QtyRequested: dec("40")},
	} {
		if err := conn.Create(&item).Error; err != nil {
			t.Fatalf("seed item: %v", err)
		}
	}
	// A finished run no longer offsets demand.
	if err := conn.Create(&models.ProductionTask{
		OrderID:      open.ID,
		MaterialID:   material,
		QtyToProduce: dec("0"),
		Status:       enums.ProductionTaskStatusDone,
	}).Error; err != nil {
		t.Fatalf("seed task: %v", err)
	}

	demand, err := NewDemandRepository(conn).OthersDemand(ctx, material, me.ID)
	if err != nil {
		t.Fatalf("others demand: %v", err)
	}
	if !demand.Equal(dec("40")) {
		t.Fatalf("expected 40, got %s", demand)
	}
}

func TestOthersDemandClampsNegative(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	ctx := context.Background()
	material := uuid.New()

	open := seedOrder(t, conn, enums.OrderStatusOpen)
	me := seedOrder(t, conn, enums.OrderStatusOpen)

	if err := conn.Create(&models.OrderItem{
		OrderID:      open.ID,
		MaterialID:   material,
		QtyRequested: dec("10"),
	}).Error; err != nil {
		t.Fatalf("seed item: %v", err)
	}
	if err := conn.Create(&models.ProductionTask{
		OrderID:      open.ID,
		MaterialID:   material,
		QtyToProduce: dec("25"),
		Status:       enums.ProductionTaskStatusPending,
	}).Error; err != nil {
		t.Fatalf("seed task: %v", err)
	}

	demand, err := NewDemandRepository(conn).OthersDemand(ctx, material, me.ID)
	if err != nil {
		t.Fatalf("others demand: %v", err)
	}
	if !demand.IsZero() {
		t.Fatalf("expected zero, got %s", demand)
	}
}
