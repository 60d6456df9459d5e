package enums

import "fmt"

// ProductionTaskStatus tracks the per-(order, material) production state machine.
type ProductionTaskStatus string

const (
	ProductionTaskStatusPending    ProductionTaskStatus = "PENDING"
	ProductionTaskStatusInProgress ProductionTaskStatus = "IN_PROGRESS"
	ProductionTaskStatusDone       ProductionTaskStatus = "DONE"
)

var validProductionTaskStatuses = []ProductionTaskStatus{
	ProductionTaskStatusPending,
	ProductionTaskStatusInProgress,
	ProductionTaskStatusDone,
}

// IsValid checks whether the given status matches the canonical enum.
func (s ProductionTaskStatus) IsValid() bool {
	for _, candidate := range validProductionTaskStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseProductionTaskStatus converts raw strings into ProductionTaskStatus.
func ParseProductionTaskStatus(value string) (ProductionTaskStatus, error) {
	for _, candidate := range validProductionTaskStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid production task status %q", value)
}
