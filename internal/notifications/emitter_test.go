package notifications

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/andrebarreto/stockflow-backend/pkg/db/models"
	"github.com/andrebarreto/stockflow-backend/pkg/enums"
	pkgerrors "github.com/andrebarreto/stockflow-backend/pkg/errors"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:notifications_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := conn.AutoMigrate(&models.Notification{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn
}

func newEmitter(t *testing.T, conn *gorm.DB) *Emitter {
	t.Helper()
	emitter, err := NewEmitter(NewRepository(conn))
	if err != nil {
		t.Fatalf("new emitter: %v", err)
	}
	return emitter
}

func shortageInput(key string) EmitInput {
	orderID := uuid.New()
	materialID := uuid.New()
	return EmitInput{
		Type:       enums.NotificationTypeShortage,
		TargetRole: enums.TargetRoleProduction,
		Title:      "Order needs production",
		Message:    "30 units cannot be covered from stock",
		DedupeKey:  &key,
		OrderID:    &orderID,
		MaterialID: &materialID,
	}
}

func TestEmitTxWritesRow(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	emitter := newEmitter(t, conn)
	ctx := context.Background()

	written, err := emitter.EmitTx(ctx, conn, shortageInput("shortage:test:1"))
	if err != nil {
		t.Fatalf("emit: %v", err)
	}
	if !written {
		t.Fatalf("expected a write")
	}

	var row models.Notification
	if err := conn.First(&row, "dedupe_key = ?", "shortage:test:1").Error; err != nil {
		t.Fatalf("load notification: %v", err)
	}
	if row.ReadAt != nil {
		t.Fatalf("fresh notification must be unread")
	}
}

func TestEmitTxSuppressesWhileUnread(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	emitter := newEmitter(t, conn)
	ctx := context.Background()
	key := "shortage:test:dedupe"

	if _, err := emitter.EmitTx(ctx, conn, shortageInput(key)); err != nil {
		t.Fatalf("first emit: %v", err)
	}
	written, err := emitter.EmitTx(ctx, conn, shortageInput(key))
	if err != nil {
		t.Fatalf("second emit: %v", err)
	}
	if written {
		t.Fatalf("pending key must suppress the write")
	}

	var count int64
	if err := conn.Model(&models.Notification{}).Where("dedupe_key = ?", key).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected a single row, got %d", count)
	}
}

func TestEmitTxReopensAfterRead(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	emitter := newEmitter(t, conn)
	ctx := context.Background()
	key := "shortage:test:reopen"

	if _, err := emitter.EmitTx(ctx, conn, shortageInput(key)); err != nil {
		t.Fatalf("first emit: %v", err)
	}

	svc, err := NewService(NewRepository(conn))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	var row models.Notification
	if err := conn.First(&row, "dedupe_key = ?", key).Error; err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := svc.MarkRead(ctx, enums.TargetRoleProduction, row.ID); err != nil {
		t.Fatalf("mark read: %v", err)
	}

	written, err := emitter.EmitTx(ctx, conn, shortageInput(key))
	if err != nil {
		t.Fatalf("emit after read: %v", err)
	}
	if !written {
		t.Fatalf("read rows must not block new emissions")
	}
}

func TestEmitTxValidatesInput(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	emitter := newEmitter(t, conn)
	ctx := context.Background()

	cases := []struct {
		name  string
		input EmitInput
	}{
		{"bad type", EmitInput{Type: "nope", TargetRole: enums.TargetRoleSales, Title: "t"}},
		{"bad role", EmitInput{Type: enums.NotificationTypeShortage, TargetRole: "nope", Title: "t"}},
		{"no title", EmitInput{Type: enums.NotificationTypeShortage, TargetRole: enums.TargetRoleSales}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := emitter.EmitTx(ctx, conn, tc.input)
			if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestMarkReadScopedToRole(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	emitter := newEmitter(t, conn)
	ctx := context.Background()

	if _, err := emitter.EmitTx(ctx, conn, shortageInput("shortage:test:role")); err != nil {
		t.Fatalf("emit: %v", err)
	}
	svc, err := NewService(NewRepository(conn))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	var row models.Notification
	if err := conn.First(&row, "dedupe_key = ?", "shortage:test:role").Error; err != nil {
		t.Fatalf("load: %v", err)
	}

	// The sales inbox cannot read production's notification.
	err = svc.MarkRead(ctx, enums.TargetRoleSales, row.ID)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found across roles, got %v", err)
	}
	if err := svc.MarkRead(ctx, enums.TargetRoleProduction, row.ID); err != nil {
		t.Fatalf("mark read: %v", err)
	}

	marked, err := svc.MarkAllRead(ctx, enums.TargetRoleProduction)
	if err != nil {
		t.Fatalf("mark all read: %v", err)
	}
	if marked != 0 {
		t.Fatalf("expected nothing left to mark, got %d", marked)
	}
}
