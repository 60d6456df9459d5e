package reservations

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/andrebarreto/stockflow-backend/internal/inventory"
	"github.com/andrebarreto/stockflow-backend/pkg/db/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:reservations_" + uuid.NewString() + "?mode=memory&cache=shared"
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
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn
}

func newTestEngine(t *testing.T, conn *gorm.DB) *Engine {
	t.Helper()
	engine, err := NewEngine(NewRepository(conn), inventory.NewBalanceRepository(conn), 5*time.Minute)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return engine
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func seedBalance(t *testing.T, conn *gorm.DB, materialID uuid.UUID, onHand string) {
	t.Helper()
	err := conn.Create(&models.StockBalance{
		MaterialID: materialID,
		OnHand:     dec(onHand),
	}).Error
	if err != nil {
		t.Fatalf("seed balance: %v", err)
	}
}

func loadBalance(t *testing.T, conn *gorm.DB, materialID uuid.UUID) models.StockBalance {
	t.Helper()
	var balance models.StockBalance
	if err := conn.First(&balance, "material_id = ?", materialID).Error; err != nil {
		t.Fatalf("load balance: %v", err)
	}
	return balance
}

func TestReserveTxCapsToAvailable(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	ctx := context.Background()
	engine := newTestEngine(t, conn)
	material := uuid.New()
	orderA := uuid.New()
	orderB := uuid.New()
	seedBalance(t, conn, material, "100")

	reserved, err := engine.ReserveTx(ctx, conn, orderA, material, dec("80"))
	if err != nil {
		t.Fatalf("reserve A: %v", err)
	}
	if !reserved.Equal(dec("80")) {
		t.Fatalf("expected 80 reserved for A, got %s", reserved)
	}

	reserved, err = engine.ReserveTx(ctx, conn, orderB, material, dec("50"))
	if err != nil {
		t.Fatalf("reserve B: %v", err)
	}
	if !reserved.Equal(dec("20")) {
		t.Fatalf("expected 20 reserved for B, got %s", reserved)
	}

	balance := loadBalance(t, conn, material)
	if !balance.ReservedTotal.Equal(dec("100")) {
		t.Fatalf("expected reserved_total 100, got %s", balance.ReservedTotal)
	}
}

func TestReserveTxResizesInsteadOfStacking(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	ctx := context.Background()
	engine := newTestEngine(t, conn)
	material := uuid.New()
	order := uuid.New()
	seedBalance(t, conn, material, "100")

	if _, err := engine.ReserveTx(ctx, conn, order, material, dec("60")); err != nil {
		t.Fatalf("first reserve: %v", err)
	}
	reserved, err := engine.ReserveTx(ctx, conn, order, material, dec("30"))
	if err != nil {
		t.Fatalf("second reserve: %v", err)
	}
	if !reserved.Equal(dec("30")) {
		t.Fatalf("expected claim resized to 30, got %s", reserved)
	}

	var count int64
	if err := conn.Model(&models.StockReservation{}).Where("order_id = ?", order).Count(&count).Error; err != nil {
		t.Fatalf("count claims: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one claim row, got %d", count)
	}
	if balance := loadBalance(t, conn, material); !balance.ReservedTotal.Equal(dec("30")) {
		t.Fatalf("expected reserved_total 30, got %s", balance.ReservedTotal)
	}
}

func TestReserveTxZeroReleasesClaim(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	ctx := context.Background()
	engine := newTestEngine(t, conn)
	material := uuid.New()
	order := uuid.New()
	seedBalance(t, conn, material, "100")

	if _, err := engine.ReserveTx(ctx, conn, order, material, dec("40")); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	reserved, err := engine.ReserveTx(ctx, conn, order, material, decimal.Zero)
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if !reserved.IsZero() {
		t.Fatalf("expected zero reserved, got %s", reserved)
	}

	var count int64
	if err := conn.Model(&models.StockReservation{}).Count(&count).Error; err != nil {
		t.Fatalf("count claims: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no claims, got %d", count)
	}
	if balance := loadBalance(t, conn, material); !balance.ReservedTotal.IsZero() {
		t.Fatalf("expected reserved_total zero, got %s", balance.ReservedTotal)
	}
}

func TestReserveTxRejectsNegative(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	engine := newTestEngine(t, conn)

	_, err := engine.ReserveTx(context.Background(), conn, uuid.New(), uuid.New(), dec("-1"))
	if err == nil {
		t.Fatal("expected validation error")
	}
}

func TestClaimMoreTxGrowsClaim(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	ctx := context.Background()
	engine := newTestEngine(t, conn)
	material := uuid.New()
	order := uuid.New()
	seedBalance(t, conn, material, "100")

	if _, err := engine.ReserveTx(ctx, conn, order, material, dec("20")); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := engine.ClaimMoreTx(ctx, conn, order, material, dec("30")); err != nil {
		t.Fatalf("claim more: %v", err)
	}

	var claim models.StockReservation
	if err := conn.First(&claim, "order_id = ? AND material_id = ?", order, material).Error; err != nil {
		t.Fatalf("load claim: %v", err)
	}
	if !claim.Qty.Equal(dec("50")) {
		t.Fatalf("expected claim 50, got %s", claim.Qty)
	}
	if balance := loadBalance(t, conn, material); !balance.ReservedTotal.Equal(dec("50")) {
		t.Fatalf("expected reserved_total 50, got %s", balance.ReservedTotal)
	}
}

func TestReleaseOrderTxReturnsEverything(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	ctx := context.Background()
	engine := newTestEngine(t, conn)
	materialA := uuid.New()
	materialB := uuid.New()
	order := uuid.New()
	seedBalance(t, conn, materialA, "100")
	seedBalance(t, conn, materialB, "100")

	if _, err := engine.ReserveTx(ctx, conn, order, materialA, dec("40")); err != nil {
		t.Fatalf("reserve A: %v", err)
	}
	if _, err := engine.ReserveTx(ctx, conn, order, materialB, dec("10")); err != nil {
		t.Fatalf("reserve B: %v", err)
	}

	released, err := engine.ReleaseOrderTx(ctx, conn, order)
	if err != nil {
		t.Fatalf("release order: %v", err)
	}
	if len(released) != 2 {
		t.Fatalf("expected 2 materials released, got %d", len(released))
	}
	if !released[materialA].Equal(dec("40")) || !released[materialB].Equal(dec("10")) {
		t.Fatalf("unexpected released quantities: %+v", released)
	}
	if balance := loadBalance(t, conn, materialA); !balance.ReservedTotal.IsZero() {
		t.Fatalf("expected reserved_total zero for A, got %s", balance.ReservedTotal)
	}
	if balance := loadBalance(t, conn, materialB); !balance.ReservedTotal.IsZero() {
		t.Fatalf("expected reserved_total zero for B, got %s", balance.ReservedTotal)
	}
}

func TestSetPromiseTxAdjustsByDelta(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	ctx := context.Background()
	engine := newTestEngine(t, conn)
	material := uuid.New()
	order := uuid.New()
	seedBalance(t, conn, material, "0")

	if err := engine.SetPromiseTx(ctx, conn, order, material, dec("30")); err != nil {
		t.Fatalf("set promise: %v", err)
	}
	if balance := loadBalance(t, conn, material); !balance.ProductionReserved.Equal(dec("30")) {
		t.Fatalf("expected production_reserved 30, got %s", balance.ProductionReserved)
	}

	if err := engine.SetPromiseTx(ctx, conn, order, material, dec("10")); err != nil {
		t.Fatalf("shrink promise: %v", err)
	}
	if balance := loadBalance(t, conn, material); !balance.ProductionReserved.Equal(dec("10")) {
		t.Fatalf("expected production_reserved 10, got %s", balance.ProductionReserved)
	}

	if err := engine.ClearPromiseTx(ctx, conn, order, material); err != nil {
		t.Fatalf("clear promise: %v", err)
	}
	if balance := loadBalance(t, conn, material); !balance.ProductionReserved.IsZero() {
		t.Fatalf("expected production_reserved zero, got %s", balance.ProductionReserved)
	}
	var count int64
	if err := conn.Model(&models.ProductionReservation{}).Count(&count).Error; err != nil {
		t.Fatalf("count promises: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no promise rows, got %d", count)
	}
}

func TestRefreshClaimTxOnlyTouchesExpiry(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	ctx := context.Background()
	material := uuid.New()
	order := uuid.New()
	seedBalance(t, conn, material, "100")

	past := time.Now().UTC().Add(-time.Hour)
	engine := newTestEngine(t, conn).WithNow(func() time.Time { return past })
	if _, err := engine.ReserveTx(ctx, conn, order, material, dec("25")); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	now := time.Now().UTC()
	engine = engine.WithNow(func() time.Time { return now })
	if err := engine.RefreshClaimTx(ctx, conn, order, material); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	var claim models.StockReservation
	if err := conn.First(&claim, "order_id = ?", order).Error; err != nil {
		t.Fatalf("load claim: %v", err)
	}
	if !claim.Qty.Equal(dec("25")) {
		t.Fatalf("expected qty untouched, got %s", claim.Qty)
	}
	if !claim.ExpiresAt.After(now) {
		t.Fatalf("expected expiry in the future, got %s", claim.ExpiresAt)
	}
}
