package enums

import "fmt"

// NotificationType maps to the notification_type enum in Postgres.
type NotificationType string

const (
	NotificationTypeAllocation     NotificationType = "allocation_available"
	NotificationTypeShortage       NotificationType = "shortage"
	NotificationTypeLowStock       NotificationType = "low_stock"
	NotificationTypeProductionDone NotificationType = "production_done"
)

var validNotificationTypes = []NotificationType{
	NotificationTypeAllocation,
	NotificationTypeShortage,
	NotificationTypeLowStock,
	NotificationTypeProductionDone,
}

// IsValid checks whether the given type matches the canonical enum.
func (n NotificationType) IsValid() bool {
	for _, candidate := range validNotificationTypes {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationType converts raw strings into NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	for _, candidate := range validNotificationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification type %q", value)
}

// TargetRole scopes a notification to an operator role inbox.
type TargetRole string

const (
	TargetRoleWarehouse  TargetRole = "warehouse"
	TargetRoleProduction TargetRole = "production"
	TargetRoleSales      TargetRole = "sales"
	TargetRoleAdmin      TargetRole = "admin"
)

var validTargetRoles = []TargetRole{
	TargetRoleWarehouse,
	TargetRoleProduction,
	TargetRoleSales,
	TargetRoleAdmin,
}

// IsValid checks whether the given role matches the canonical enum.
func (r TargetRole) IsValid() bool {
	for _, candidate := range validTargetRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseTargetRole converts raw strings into TargetRole.
func ParseTargetRole(value string) (TargetRole, error) {
	for _, candidate := range validTargetRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid target role %q", value)
}
