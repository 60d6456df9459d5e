package production

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/andrebarreto/stockflow-backend/internal/allocation"
	"github.com/andrebarreto/stockflow-backend/internal/inventory"
	"github.com/andrebarreto/stockflow-backend/internal/notifications"
	"github.com/andrebarreto/stockflow-backend/internal/receipts"
	"github.com/andrebarreto/stockflow-backend/internal/reservations"
	"github.com/andrebarreto/stockflow-backend/pkg/db"
	"github.com/andrebarreto/stockflow-backend/pkg/db/models"
	"github.com/andrebarreto/stockflow-backend/pkg/enums"
	pkgerrors "github.com/andrebarreto/stockflow-backend/pkg/errors"
	"github.com/andrebarreto/stockflow-backend/pkg/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:production_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	err = conn.AutoMigrate(
		&models.Material{},
		&models.StockBalance{},
		&models.StockReservation{},
		&models.ProductionReservation{},
		&models.ProductionTask{},
		&models.Order{},
		&models.OrderItem{},
		&models.InventoryReceipt{},
		&models.InventoryReceiptItem{},
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

type testStack struct {
	svc       Service
	engine    *Engine
	resEngine *reservations.Engine
}

func newTestStack(t *testing.T, conn *gorm.DB) *testStack {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "test"})
	balances := inventory.NewBalanceRepository(conn)
	resEngine, err := reservations.NewEngine(reservations.NewRepository(conn), balances, 5*time.Minute)
	if err != nil {
		t.Fatalf("new reservation engine: %v", err)
	}
	prodRepo := NewRepository(conn)
	prodEngine, err := NewEngine(prodRepo, resEngine)
	if err != nil {
		t.Fatalf("new production engine: %v", err)
	}
	emitter, err := notifications.NewEmitter(notifications.NewRepository(conn))
	if err != nil {
		t.Fatalf("new emitter: %v", err)
	}
	allocator, err := allocation.NewEngine(resEngine, prodEngine.SyncTaskTx, nil, emitter, nil)
	if err != nil {
		t.Fatalf("new allocator: %v", err)
	}
	receiptsSvc, err := receipts.NewService(db.NewFromGorm(conn), receipts.NewRepository(conn), balances, resEngine, allocator, nil, logg)
	if err != nil {
		t.Fatalf("new receipts service: %v", err)
	}
	svc, err := NewService(db.NewFromGorm(conn), prodRepo, prodEngine, receiptsSvc, resEngine, emitter, nil, nil, logg)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return &testStack{svc: svc, engine: prodEngine, resEngine: resEngine}
}

// seedTask creates an open order waiting on produce units of a material and
// the matching pending task with its production promise.
func seedTask(t *testing.T, conn *gorm.DB, stack *testStack, requested, reserved, produce string) *models.ProductionTask {
	t.Helper()
	ctx := context.Background()

	material := &models.Material{
		ID:   uuid.New(),
		Code: "M-" + uuid.NewString()[:8],
		Name: "test material",
		Unit: "un",
	}
	if err := conn.Create(material).Error; err != nil {
		t.Fatalf("seed material: %v", err)
	}
	order := &models.Order{
		ID:          uuid.New(),
		OrderNumber: "2026083101",
		Status:      enums.OrderStatusOpen,
		Readiness:   enums.ReadinessNotReady,
		CreatedBy:   uuid.New(),
	}
	if err := conn.Create(order).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}
	if err := conn.Create(&models.OrderItem{
		OrderID:              order.ID,
		MaterialID:           material.ID,
		QtyRequested:         dec(requested),
		QtyReservedFromStock: dec(reserved),
		QtyToProduce:         dec(produce),
		ShortageAction:       enums.ShortageActionProduce,
	}).Error; err != nil {
		t.Fatalf("seed item: %v", err)
	}
	if err := stack.engine.SyncTaskTx(ctx, conn, order.ID, material.ID, dec(produce)); err != nil {
		t.Fatalf("sync task: %v", err)
	}

	var task models.ProductionTask
	if err := conn.First(&task, "order_id = ? AND material_id = ?", order.ID, material.ID).Error; err != nil {
		t.Fatalf("load task: %v", err)
	}
	return &task
}

func TestStartMovesPendingToInProgress(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	stack := newTestStack(t, conn)
	ctx := context.Background()
	task := seedTask(t, conn, stack, "50", "20", "30")
	actor := uuid.New()

	started, err := stack.svc.Start(ctx, task.ID, actor)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if started.Status != enums.ProductionTaskStatusInProgress || started.StartedAt == nil {
		t.Fatalf("expected in progress with start time, got %+v", started)
	}

	firstStart := *started.StartedAt
	again, err := stack.svc.Start(ctx, task.ID, actor)
	if err != nil {
		t.Fatalf("second start: %v", err)
	}
	if again.StartedAt == nil || !again.StartedAt.Equal(firstStart) {
		t.Fatalf("second start moved the start time: %+v", again)
	}
}

func TestCompleteCreditsStockToTriggeringOrder(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	stack := newTestStack(t, conn)
	ctx := context.Background()
	task := seedTask(t, conn, stack, "50", "20", "30")
	actor := uuid.New()

	result, err := stack.svc.Complete(ctx, task.ID, actor)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !result.ProducedQty.Equal(dec("30")) {
		t.Fatalf("expected produced 30, got %s", result.ProducedQty)
	}
	if result.Task.Status != enums.ProductionTaskStatusDone || !result.Task.QtyToProduce.IsZero() {
		t.Fatalf("task not finished: %+v", result.Task)
	}
	if result.Task.CompletedAt == nil || result.Task.StartedAt == nil {
		t.Fatalf("completion timestamps missing: %+v", result.Task)
	}
	if result.Receipt == nil || result.Receipt.Status != enums.ReceiptStatusPosted || !result.Receipt.AutoAllocated {
		t.Fatalf("expected an auto-allocated posted receipt, got %+v", result.Receipt)
	}

	var balance models.StockBalance
	if err := conn.First(&balance, "material_id = ?", task.MaterialID).Error; err != nil {
		t.Fatalf("load balance: %v", err)
	}
	if !balance.OnHand.Equal(dec("30")) {
		t.Fatalf("expected on_hand 30, got %s", balance.OnHand)
	}
	if !balance.ProductionReserved.IsZero() {
		t.Fatalf("expected promise cleared, got %s", balance.ProductionReserved)
	}
	if !balance.ReservedTotal.Equal(dec("30")) {
		t.Fatalf("expected the output claimed by the order, reserved_total=%s", balance.ReservedTotal)
	}

	var item models.OrderItem
	if err := conn.First(&item, "order_id = ?", task.OrderID).Error; err != nil {
		t.Fatalf("load item: %v", err)
	}
	if !item.QtyReservedFromStock.Equal(dec("50")) || !item.QtyToProduce.IsZero() {
		t.Fatalf("item not updated by allocation: reserved=%s produce=%s", item.QtyReservedFromStock, item.QtyToProduce)
	}

	var claim models.StockReservation
	if err := conn.First(&claim, "order_id = ? AND material_id = ?", task.OrderID, task.MaterialID).Error; err != nil {
		t.Fatalf("expected a claim for the triggering order: %v", err)
	}
	if !claim.Qty.Equal(dec("30")) || !claim.ExpiresAt.After(time.Now().UTC()) {
		t.Fatalf("unexpected claim: qty=%s expires=%s", claim.Qty, claim.ExpiresAt)
	}

	var count int64
	err = conn.Model(&models.Notification{}).
		Where("type = ? AND target_role = ?", enums.NotificationTypeProductionDone, enums.TargetRoleWarehouse).
		Count(&count).Error
	if err != nil {
		t.Fatalf("count notifications: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one completion notification, got %d", count)
	}
}

func TestCompleteTwiceIsAStateConflict(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	stack := newTestStack(t, conn)
	ctx := context.Background()
	task := seedTask(t, conn, stack, "50", "20", "30")
	actor := uuid.New()

	if _, err := stack.svc.Complete(ctx, task.ID, actor); err != nil {
		t.Fatalf("first complete: %v", err)
	}
	_, err := stack.svc.Complete(ctx, task.ID, actor)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestCompleteWithNothingProducedOnlyClearsPromise(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	stack := newTestStack(t, conn)
	ctx := context.Background()
	task := seedTask(t, conn, stack, "50", "20", "30")
	actor := uuid.New()

	// The run was cancelled on the floor; nothing came out.
	if err := conn.Model(&models.ProductionTask{}).Where("id = ?", task.ID).Update("qty_to_produce", dec("0")).Error; err != nil {
		t.Fatalf("zero task: %v", err)
	}

	result, err := stack.svc.Complete(ctx, task.ID, actor)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if result.Receipt != nil {
		t.Fatalf("expected no receipt, got %+v", result.Receipt)
	}

	var balance models.StockBalance
	if err := conn.First(&balance, "material_id = ?", task.MaterialID).Error; err != nil {
		t.Fatalf("load balance: %v", err)
	}
	if !balance.OnHand.IsZero() || !balance.ProductionReserved.IsZero() {
		t.Fatalf("expected untouched stock and a cleared promise, got %+v", balance)
	}
}
