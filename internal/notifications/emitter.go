package notifications

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/andrebarreto/stockflow-backend/pkg/db/models"
	"github.com/andrebarreto/stockflow-backend/pkg/enums"
	pkgerrors "github.com/andrebarreto/stockflow-backend/pkg/errors"
)

// EmitInput describes one notification to deliver to a role inbox.
type EmitInput struct {
	Type       enums.NotificationType
	TargetRole enums.TargetRole
	Title      string
	Message    string
	Link       *string
	DedupeKey  *string
	OrderID    *uuid.UUID
	MaterialID *uuid.UUID
}

// Emitter writes notifications inside the caller's transaction. A dedupe key
// suppresses the write while an unread row with the same key exists; once
// that row is read, the next emit with the key goes through again.
type Emitter struct {
	repo Repository
}

// NewEmitter wires the notification emitter.
func NewEmitter(repo Repository) (*Emitter, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifications repository required")
	}
	return &Emitter{repo: repo}, nil
}

// EmitTx stores the notification, or silently drops it when its dedupe key
// is already pending. Returns whether a row was written.
func (e *Emitter) EmitTx(ctx context.Context, tx *gorm.DB, input EmitInput) (bool, error) {
	if !input.Type.IsValid() {
		return false, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid notification type %q", input.Type))
	}
	if !input.TargetRole.IsValid() {
		return false, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid target role %q", input.TargetRole))
	}
	if input.Title == "" {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "notification title required")
	}

	repo := e.repo.WithTx(tx)
	if input.DedupeKey != nil && *input.DedupeKey != "" {
		pending, err := repo.HasUnreadWithKey(ctx, *input.DedupeKey)
		if err != nil {
			return false, err
		}
		if pending {
			return false, nil
		}
	}

	notification := &models.Notification{
		Type:       input.Type,
		TargetRole: input.TargetRole,
		Title:      input.Title,
		Message:    input.Message,
		Link:       input.Link,
		DedupeKey:  input.DedupeKey,
		OrderID:    input.OrderID,
		MaterialID: input.MaterialID,
	}
	if err := repo.Create(ctx, notification); err != nil {
		return false, err
	}
	return true, nil
}

// DedupeKey builds the canonical dedupe key for an event scoped to an order
// and material pair.
func DedupeKey(kind string, orderID, materialID uuid.UUID) string {
	return fmt.Sprintf("%s:%s:%s", kind, orderID, materialID)
}
