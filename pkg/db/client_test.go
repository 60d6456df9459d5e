package db

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	dsn := "file:dbclient_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	return NewFromGorm(conn)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	if err := client.DB().Exec("CREATE TABLE things (id TEXT PRIMARY KEY)").Error; err != nil {
		t.Fatalf("create table: %v", err)
	}

	wantErr := errors.New("boom")
	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Exec("INSERT INTO things (id) VALUES ('a')").Error; err != nil {
			return err
		}
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected fn error, got %v", err)
	}

	var count int64
	if err := client.DB().Raw("SELECT COUNT(*) FROM things").Scan(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected rollback, found %d rows", count)
	}
}

func TestWithTxRetryRetriesTransientOnce(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	attempts := 0
	err := client.WithTxRetry(ctx, func(tx *gorm.DB) error {
		attempts++
		if attempts == 1 {
			return fmt.Errorf("exec: %w", driver.ErrBadConn)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected retry to succeed: %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected exactly 2 attempts, got %d", attempts)
	}
}

func TestWithTxRetryDoesNotRetryDomainErrors(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	attempts := 0
	wantErr := errors.New("receipt already posted")
	err := client.WithTxRetry(ctx, func(tx *gorm.DB) error {
		attempts++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 1 {
		t.Fatalf("domain errors must not retry, got %d attempts", attempts)
	}
}

func TestIsTransient(t *testing.T) {
	if !IsTransient(driver.ErrBadConn) {
		t.Fatal("bad conn should be transient")
	}
	if !IsTransient(errors.New("read tcp 10.0.0.2:5432: connection reset by peer")) {
		t.Fatal("connection reset should be transient")
	}
	if IsTransient(errors.New("validation failed")) {
		t.Fatal("domain errors are not transient")
	}
}
