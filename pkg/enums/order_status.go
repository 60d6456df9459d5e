package enums

import "fmt"

// OrderStatus maps to the order_status enum in Postgres. The values keep the
// legacy Portuguese wording used on the warehouse floor.
type OrderStatus string

const (
	OrderStatusDraft       OrderStatus = "RASCUNHO"
	OrderStatusOpen        OrderStatus = "ABERTO"
	OrderStatusPicking     OrderStatus = "EM_PICKING"
	OrderStatusPickingDone OrderStatus = "SAIDA_CONCLUIDA"
	OrderStatusFinished    OrderStatus = "FINALIZADO"
	OrderStatusCanceled    OrderStatus = "CANCELADO"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusDraft,
	OrderStatusOpen,
	OrderStatusPicking,
	OrderStatusPickingDone,
	OrderStatusFinished,
	OrderStatusCanceled,
}

// IsValid checks whether the given status matches the canonical enum.
func (s OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status can never transition again.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusFinished || s == OrderStatusCanceled
}

// CompetesForStock reports whether orders in this status count as demand.
// Drafts do not compete until submitted; terminal orders never do.
func (s OrderStatus) CompetesForStock() bool {
	return !s.IsTerminal() && s != OrderStatusDraft
}

// ParseOrderStatus converts raw strings into OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}

// ActiveOrderStatuses returns the statuses that compete for stock.
func ActiveOrderStatuses() []OrderStatus {
	return []OrderStatus{OrderStatusOpen, OrderStatusPicking, OrderStatusPickingDone}
}
