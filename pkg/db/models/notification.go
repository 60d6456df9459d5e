package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/andrebarreto/stockflow-backend/pkg/enums"
)

// Notification stores in-app notification payloads targeted at a role inbox
// or a single user. No two unread rows may share a dedupe key.
type Notification struct {
	ID           uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	Type         enums.NotificationType `gorm:"column:type;type:notification_type;not null"`
	TargetRole   enums.TargetRole       `gorm:"column:target_role;type:target_role;not null"`
	TargetUserID *uuid.UUID             `gorm:"column:target_user_id;type:uuid"`
	Title        string                 `gorm:"column:title;not null"`
	Message      string                 `gorm:"column:message;not null"`
	Link         *string                `gorm:"column:link"`
	DedupeKey    *string                `gorm:"column:dedupe_key;index"`
	OrderID      *uuid.UUID             `gorm:"column:order_id;type:uuid"`
	MaterialID   *uuid.UUID             `gorm:"column:material_id;type:uuid"`
	ReadAt       *time.Time             `gorm:"column:read_at"`
	CreatedAt    time.Time              `gorm:"column:created_at;autoCreateTime"`
}

// BeforeCreate assigns the row identity when the caller did not.
func (n *Notification) BeforeCreate(*gorm.DB) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return nil
}
