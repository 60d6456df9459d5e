package receipts

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
	"github.com/andrebarreto/stockflow-backend/internal/reservations"
	"github.com/andrebarreto/stockflow-backend/pkg/db"
	"github.com/andrebarreto/stockflow-backend/pkg/db/models"
	"github.com/andrebarreto/stockflow-backend/pkg/enums"
	pkgerrors "github.com/andrebarreto/stockflow-backend/pkg/errors"
	"github.com/andrebarreto/stockflow-backend/pkg/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:receipts_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	err = conn.AutoMigrate(
		&models.Material{},
		&models.StockBalance{},
		&models.StockReservation{},
		&models.ProductionReservation{},
		&models.Order{},
		&models.OrderItem{},
		&models.InventoryReceipt{},
		&models.InventoryReceiptItem{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func newTestStack(t *testing.T, conn *gorm.DB) (Service, *reservations.Engine) {
	t.Helper()
	resEngine, err := reservations.NewEngine(reservations.NewRepository(conn), inventory.NewBalanceRepository(conn), 5*time.Minute)
	if err != nil {
		t.Fatalf("new reservation engine: %v", err)
	}
	allocator, err := allocation.NewEngine(resEngine, nil, nil, nil, nil)
	if err != nil {
		t.Fatalf("new allocator: %v", err)
	}
	svc, err := NewService(db.NewFromGorm(conn), NewRepository(conn), inventory.NewBalanceRepository(conn), resEngine, allocator, nil, logger.New(logger.Options{ServiceName: "test"}))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, resEngine
}

func seedMaterial(t *testing.T, conn *gorm.DB) uuid.UUID {
	t.Helper()
	material := &models.Material{
		ID:   uuid.New(),
		Code: "M-" + uuid.NewString()[:8],
		Name: "test material",
		Unit: "un",
	}
	if err := conn.Create(material).Error; err != nil {
		t.Fatalf("seed material: %v", err)
	}
	return material.ID
}

func TestCreateRejectsBadInput(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	svc, _ := newTestStack(t, conn)
	ctx := context.Background()
	material := seedMaterial(t, conn)
	actor := uuid.New()

	cases := []struct {
		name  string
		input CreateInput
	}{
		{"missing type", CreateInput{Items: []CreateItemInput{{MaterialID: material, Qty: dec("1")}}, ActorID: actor}},
		{"no items", CreateInput{Type: enums.ReceiptTypePurchase, ActorID: actor}},
		{"missing actor", CreateInput{Type: enums.ReceiptTypePurchase, Items: []CreateItemInput{{MaterialID: material, Qty: dec("1")}}}},
		{"zero qty", CreateInput{Type: enums.ReceiptTypePurchase, Items: []CreateItemInput{{MaterialID: material, Qty: dec("0")}}, ActorID: actor}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tc.input)
			if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}

	_, err := svc.Create(ctx, CreateInput{
		Type:    enums.ReceiptTypePurchase,
		Items:   []CreateItemInput{{MaterialID: uuid.New(), Qty: dec("1")}},
		ActorID: actor,
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found for unknown material, got %v", err)
	}
}

func TestPostCreditsStockOnce(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	svc, _ := newTestStack(t, conn)
	ctx := context.Background()
	material := seedMaterial(t, conn)
	actor := uuid.New()

	receipt, err := svc.Create(ctx, CreateInput{
		Type:    enums.ReceiptTypePurchase,
		Items:   []CreateItemInput{{MaterialID: material, Qty: dec("25")}},
		ActorID: actor,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if receipt.Status != enums.ReceiptStatusDraft {
		t.Fatalf("expected draft, got %s", receipt.Status)
	}

	result, err := svc.Post(ctx, receipt.ID, PostOptions{ActorID: actor})
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if result.Receipt.Status != enums.ReceiptStatusPosted {
		t.Fatalf("expected posted, got %s", result.Receipt.Status)
	}
	if result.Receipt.PostedAt == nil || result.Receipt.PostedBy == nil || *result.Receipt.PostedBy != actor {
		t.Fatalf("posting metadata missing: %+v", result.Receipt)
	}

	var balance models.StockBalance
	if err := conn.First(&balance, "material_id = ?", material).Error; err != nil {
		t.Fatalf("load balance: %v", err)
	}
	if !balance.OnHand.Equal(dec("25")) {
		t.Fatalf("expected on_hand 25, got %s", balance.OnHand)
	}

	// A second post must not credit again.
	_, err = svc.Post(ctx, receipt.ID, PostOptions{ActorID: actor})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
	if err := conn.First(&balance, "material_id = ?", material).Error; err != nil {
		t.Fatalf("reload balance: %v", err)
	}
	if !balance.OnHand.Equal(dec("25")) {
		t.Fatalf("double post changed on_hand to %s", balance.OnHand)
	}
}

func TestPostAutoAllocatesToWaitingOrder(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	svc, _ := newTestStack(t, conn)
	ctx := context.Background()
	material := seedMaterial(t, conn)
	actor := uuid.New()

	order := &models.Order{
		ID:          uuid.New(),
		OrderNumber: "2026083101",
		Status:      enums.OrderStatusOpen,
		Readiness:   enums.ReadinessNotReady,
		CreatedBy:   actor,
	}
	if err := conn.Create(order).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}
	if err := conn.Create(&models.OrderItem{
		OrderID:        order.ID,
		MaterialID:     material,
		QtyRequested:   dec("30"),
		ShortageAction: enums.ShortageActionProduce,
	}).Error; err != nil {
		t.Fatalf("seed item: %v", err)
	}

	receipt, err := svc.Create(ctx, CreateInput{
		Type:    enums.ReceiptTypePurchase,
		Items:   []CreateItemInput{{MaterialID: material, Qty: dec("30")}},
		ActorID: actor,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	result, err := svc.Post(ctx, receipt.ID, PostOptions{AutoAllocate: true, ActorID: actor})
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if len(result.Allocations) != 1 || !result.Allocations[0].Qty.Equal(dec("30")) {
		t.Fatalf("expected a single 30 unit allocation, got %+v", result.Allocations)
	}

	var claim models.StockReservation
	if err := conn.First(&claim, "order_id = ?", order.ID).Error; err != nil {
		t.Fatalf("expected the order to hold a claim: %v", err)
	}
	if !claim.Qty.Equal(dec("30")) {
		t.Fatalf("expected claim 30, got %s", claim.Qty)
	}
}

func TestPostProductionReceiptClearsPromise(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	svc, resEngine := newTestStack(t, conn)
	ctx := context.Background()
	material := seedMaterial(t, conn)
	actor := uuid.New()
	orderID := uuid.New()

	if err := resEngine.SetPromiseTx(ctx, conn, orderID, material, dec("20")); err != nil {
		t.Fatalf("seed promise: %v", err)
	}

	receipt, err := svc.Create(ctx, CreateInput{
		Type:          enums.ReceiptTypeProduction,
		SourceOrderID: &orderID,
		Items:         []CreateItemInput{{MaterialID: material, Qty: dec("20")}},
		ActorID:       actor,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Post(ctx, receipt.ID, PostOptions{ActorID: actor}); err != nil {
		t.Fatalf("post: %v", err)
	}

	var balance models.StockBalance
	if err := conn.First(&balance, "material_id = ?", material).Error; err != nil {
		t.Fatalf("load balance: %v", err)
	}
	if !balance.ProductionReserved.IsZero() {
		t.Fatalf("expected promise cleared, production_reserved=%s", balance.ProductionReserved)
	}
	if !balance.OnHand.Equal(dec("20")) {
		t.Fatalf("expected on_hand 20, got %s", balance.OnHand)
	}
}
