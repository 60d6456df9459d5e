package allocation

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/andrebarreto/stockflow-backend/internal/inventory"
	"github.com/andrebarreto/stockflow-backend/internal/notifications"
	"github.com/andrebarreto/stockflow-backend/internal/reservations"
	"github.com/andrebarreto/stockflow-backend/pkg/db/models"
	"github.com/andrebarreto/stockflow-backend/pkg/enums"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:allocation_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	err = conn.AutoMigrate(
		&models.StockBalance{},
		&models.StockReservation{},
		&models.ProductionReservation{},
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

func newTestAllocator(t *testing.T, conn *gorm.DB, syncTask reservations.TaskSyncFunc) *Engine {
	t.Helper()
	resEngine, err := reservations.NewEngine(reservations.NewRepository(conn), inventory.NewBalanceRepository(conn), 5*time.Minute)
	if err != nil {
		t.Fatalf("new reservation engine: %v", err)
	}
	emitter, err := notifications.NewEmitter(notifications.NewRepository(conn))
	if err != nil {
		t.Fatalf("new emitter: %v", err)
	}
	engine, err := NewEngine(resEngine, syncTask, nil, emitter, nil)
	if err != nil {
		t.Fatalf("new allocator: %v", err)
	}
	return engine
}

func seedWaitingOrder(t *testing.T, conn *gorm.DB, number string, createdAt time.Time, materialID uuid.UUID, requested, reserved string) *models.Order {
	t.Helper()
	order := &models.Order{
		ID:          uuid.New(),
		OrderNumber: number,
		Status:      enums.OrderStatusOpen,
		Readiness:   enums.ReadinessNotReady,
		CreatedBy:   uuid.New(),
		CreatedAt:   createdAt,
	}
	if err := conn.Create(order).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}
	if err := conn.Create(&models.OrderItem{
		OrderID:              order.ID,
		MaterialID:           materialID,
		QtyRequested:         dec(requested),
		QtyReservedFromStock: dec(reserved),
		ShortageAction:       enums.ShortageActionProduce,
	}).Error; err != nil {
		t.Fatalf("seed item: %v", err)
	}
	return order
}

func TestAllocateTxServesOldestFirst(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	ctx := context.Background()
	material := uuid.New()
	if err := conn.Create(&models.StockBalance{MaterialID: material, OnHand: dec("30")}).Error; err != nil {
		t.Fatalf("seed balance: %v", err)
	}

	base := time.Now().UTC().Add(-time.Hour)
	older := seedWaitingOrder(t, conn, "2026083101", base, material, "25", "0")
	newer := seedWaitingOrder(t, conn, "2026083102", base.Add(time.Minute), material, "20", "0")

	engine := newTestAllocator(t, conn, nil)
	result, err := engine.AllocateTx(ctx, conn, material, dec("30"), nil)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}

	if len(result.Allocations) != 2 {
		t.Fatalf("expected 2 allocations, got %d", len(result.Allocations))
	}
	if result.Allocations[0].OrderID != older.ID || !result.Allocations[0].Qty.Equal(dec("25")) {
		t.Fatalf("expected the older order served 25 first, got %+v", result.Allocations[0])
	}
	if result.Allocations[1].OrderID != newer.ID || !result.Allocations[1].Qty.Equal(dec("5")) {
		t.Fatalf("expected the newer order to get the remaining 5, got %+v", result.Allocations[1])
	}
	if !result.Remaining.IsZero() {
		t.Fatalf("expected nothing left over, got %s", result.Remaining)
	}

	var balance models.StockBalance
	if err := conn.First(&balance, "material_id = ?", material).Error; err != nil {
		t.Fatalf("load balance: %v", err)
	}
	if !balance.ReservedTotal.Equal(dec("30")) {
		t.Fatalf("expected reserved_total 30, got %s", balance.ReservedTotal)
	}
}

func TestAllocateTxPreferredOrderJumpsQueue(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	ctx := context.Background()
	material := uuid.New()
	if err := conn.Create(&models.StockBalance{MaterialID: material, OnHand: dec("10")}).Error; err != nil {
		t.Fatalf("seed balance: %v", err)
	}

	base := time.Now().UTC().Add(-time.Hour)
	seedWaitingOrder(t, conn, "2026083101", base, material, "10", "0")
	preferred := seedWaitingOrder(t, conn, "2026083102", base.Add(time.Minute), material, "10", "0")

	engine := newTestAllocator(t, conn, nil)
	result, err := engine.AllocateTx(ctx, conn, material, dec("10"), &preferred.ID)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if len(result.Allocations) != 1 {
		t.Fatalf("expected one allocation, got %d", len(result.Allocations))
	}
	if result.Allocations[0].OrderID != preferred.ID {
		t.Fatalf("expected preferred order served first, got %s", result.Allocations[0].OrderNumber)
	}
}

func TestAllocateTxUpdatesItemsAndTasks(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	ctx := context.Background()
	material := uuid.New()
	if err := conn.Create(&models.StockBalance{MaterialID: material, OnHand: dec("30")}).Error; err != nil {
		t.Fatalf("seed balance: %v", err)
	}

	order := seedWaitingOrder(t, conn, "2026083101", time.Now().UTC().Add(-time.Hour), material, "50", "20")

	var synced []decimal.Decimal
	syncTask := func(ctx context.Context, tx *gorm.DB, orderID, materialID uuid.UUID, qty decimal.Decimal) error {
		synced = append(synced, qty)
		return nil
	}

	engine := newTestAllocator(t, conn, syncTask)
	result, err := engine.AllocateTx(ctx, conn, material, dec("30"), nil)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if len(result.Allocations) != 1 || !result.Allocations[0].Qty.Equal(dec("30")) {
		t.Fatalf("expected a single 30 unit grant, got %+v", result.Allocations)
	}
	if !result.Allocations[0].RemainingNeed.IsZero() {
		t.Fatalf("expected no remaining need, got %s", result.Allocations[0].RemainingNeed)
	}

	var item models.OrderItem
	if err := conn.First(&item, "order_id = ?", order.ID).Error; err != nil {
		t.Fatalf("load item: %v", err)
	}
	if !item.QtyReservedFromStock.Equal(dec("50")) || !item.QtyToProduce.IsZero() {
		t.Fatalf("unexpected item state: reserved=%s produce=%s", item.QtyReservedFromStock, item.QtyToProduce)
	}
	if len(synced) != 1 || !synced[0].IsZero() {
		t.Fatalf("expected task resized to zero, got %v", synced)
	}

	var note models.Notification
	if err := conn.First(&note, "type = ?", enums.NotificationTypeAllocation).Error; err != nil {
		t.Fatalf("expected an allocation notification: %v", err)
	}
	if note.TargetRole != enums.TargetRoleSales {
		t.Fatalf("expected sales inbox, got %s", note.TargetRole)
	}
}

func TestAllocateTxIgnoresDraftsAndSatisfiedItems(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	ctx := context.Background()
	material := uuid.New()
	if err := conn.Create(&models.StockBalance{MaterialID: material, OnHand: dec("100")}).Error; err != nil {
		t.Fatalf("seed balance: %v", err)
	}

	draft := &models.Order{
		ID:          uuid.New(),
		OrderNumber: "draft",
		Status:      enums.OrderStatusDraft,
		Readiness:   enums.ReadinessNotReady,
		CreatedBy:   uuid.New(),
	}
	if err := conn.Create(draft).Error; err != nil {
		t.Fatalf("seed draft: %v", err)
	}
	if err := conn.Create(&models.OrderItem{
		OrderID:      draft.ID,
		MaterialID:   material,
		QtyRequested: dec("10"),
	}).Error; err != nil {
		t.Fatalf("seed draft item: %v", err)
	}
	seedWaitingOrder(t, conn, "2026083101", time.Now().UTC(), material, "10", "10")

	engine := newTestAllocator(t, conn, nil)
	result, err := engine.AllocateTx(ctx, conn, material, dec("20"), nil)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if len(result.Allocations) != 0 {
		t.Fatalf("expected no allocations, got %+v", result.Allocations)
	}
	if !result.Remaining.Equal(dec("20")) {
		t.Fatalf("expected full quantity left over, got %s", result.Remaining)
	}
}
