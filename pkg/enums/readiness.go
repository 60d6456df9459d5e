package enums

// Readiness rolls up how much of an order's demand is currently reserved.
type Readiness string

const (
	ReadinessNotReady Readiness = "NOT_READY"
	ReadinessPartial  Readiness = "READY_PARTIAL"
	ReadinessFull     Readiness = "READY_FULL"
)
