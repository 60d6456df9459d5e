package materials

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/andrebarreto/stockflow-backend/pkg/db/models"
	pkgerrors "github.com/andrebarreto/stockflow-backend/pkg/errors"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:materials_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := conn.AutoMigrate(&models.Material{}, &models.StockBalance{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn
}

func newTestService(t *testing.T, conn *gorm.DB) Service {
	t.Helper()
	svc, err := NewService(NewRepository(conn))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestCreateNormalizesCode(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	svc := newTestService(t, conn)
	ctx := context.Background()

	material, err := svc.Create(ctx, CreateInput{
		Code: "  alu-6061 ",
		Name: " Aluminum sheet ",
		Unit: "kg",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if material.Code != "ALU-6061" {
		t.Fatalf("expected upper-cased trimmed code, got %q", material.Code)
	}
	if material.Name != "Aluminum sheet" {
		t.Fatalf("expected trimmed name, got %q", material.Name)
	}
	if material.ID == uuid.Nil {
		t.Fatalf("expected assigned id")
	}
}

func TestCreateValidatesInput(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	svc := newTestService(t, conn)
	ctx := context.Background()

	cases := []struct {
		name  string
		input CreateInput
	}{
		{"blank code", CreateInput{Code: "  ", Name: "x", Unit: "un"}},
		{"blank name", CreateInput{Code: "C1", Name: " ", Unit: "un"}},
		{"negative reorder point", CreateInput{Code: "C1", Name: "x", Unit: "un", ReorderPoint: dec("-1")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tc.input)
			if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestUpdateAppliesOnlyProvidedFields(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	svc := newTestService(t, conn)
	ctx := context.Background()

	material, err := svc.Create(ctx, CreateInput{Code: "C1", Name: "original", Unit: "un", MinStock: dec("5")})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	name := "renamed"
	reorder := dec("12")
	updated, err := svc.Update(ctx, material.ID, UpdateInput{Name: &name, ReorderPoint: &reorder})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Name != "renamed" || !updated.ReorderPoint.Equal(dec("12")) {
		t.Fatalf("update not applied: %+v", updated)
	}
	if updated.Unit != "un" || !updated.MinStock.Equal(dec("5")) {
		t.Fatalf("untouched fields changed: %+v", updated)
	}

	_, err = svc.Update(ctx, uuid.New(), UpdateInput{Name: &name})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListBelowReorderPoint(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	svc := newTestService(t, conn)
	repo := NewRepository(conn)
	ctx := context.Background()

	low, err := svc.Create(ctx, CreateInput{Code: "LOW", Name: "low stock", Unit: "un", ReorderPoint: dec("10")})
	if err != nil {
		t.Fatalf("create low: %v", err)
	}
	if err := conn.Create(&models.StockBalance{MaterialID: low.ID, OnHand: dec("4")}).Error; err != nil {
		t.Fatalf("seed balance: %v", err)
	}

	ok, err := svc.Create(ctx, CreateInput{Code: "OK", Name: "plenty", Unit: "un", ReorderPoint: dec("10")})
	if err != nil {
		t.Fatalf("create ok: %v", err)
	}
	if err := conn.Create(&models.StockBalance{MaterialID: ok.ID, OnHand: dec("50")}).Error; err != nil {
		t.Fatalf("seed balance: %v", err)
	}

	// No reorder point means the material never shows up in the scan.
	if _, err := svc.Create(ctx, CreateInput{Code: "NOPT", Name: "untracked", Unit: "un"}); err != nil {
		t.Fatalf("create untracked: %v", err)
	}
	// No balance row counts as zero on hand.
	if _, err := svc.Create(ctx, CreateInput{Code: "EMPTY", Name: "never received", Unit: "un", ReorderPoint: dec("3")}); err != nil {
		t.Fatalf("create empty: %v", err)
	}

	rows, err := repo.ListBelowReorderPoint(ctx)
	if err != nil {
		t.Fatalf("list below reorder point: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 low stock rows, got %d", len(rows))
	}
	if rows[0].Material.Code != "EMPTY" || rows[1].Material.Code != "LOW" {
		t.Fatalf("unexpected rows: %q, %q", rows[0].Material.Code, rows[1].Material.Code)
	}
	if !rows[1].Balance.OnHand.Equal(dec("4")) {
		t.Fatalf("expected balance carried along, got %s", rows[1].Balance.OnHand)
	}
}
