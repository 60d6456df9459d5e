package metrics

import "github.com/prometheus/client_golang/prometheus"

// EngineMetrics counts the reservation engine's state transitions.
type EngineMetrics struct {
	reservations        *prometheus.CounterVec
	reservationsExpired prometheus.Counter
	allocations         prometheus.Counter
	receiptsPosted      prometheus.Counter
	tasksCompleted      prometheus.Counter
}

// NewEngineMetrics registers the engine counters on the provided registerer.
func NewEngineMetrics(reg prometheus.Registerer) *EngineMetrics {
	if reg == nil {
		return &EngineMetrics{}
	}
	reservations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_reservations_total",
		Help: "Reservation calls by outcome (full, partial, none).",
	}, []string{"outcome"})
	expired := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stock_reservations_expired_total",
		Help: "Reservations released by the expiry sweep.",
	})
	allocations := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stock_allocations_total",
		Help: "Order items that received quantity from the allocator.",
	})
	receipts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "inventory_receipts_posted_total",
		Help: "Receipts committed into the stock ledger.",
	})
	tasks := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "production_tasks_completed_total",
		Help: "Production tasks transitioned to DONE.",
	})
	reg.MustRegister(reservations, expired, allocations, receipts, tasks)
	return &EngineMetrics{
		reservations:        reservations,
		reservationsExpired: expired,
		allocations:         allocations,
		receiptsPosted:      receipts,
		tasksCompleted:      tasks,
	}
}

// ObserveReservation records one reservation call outcome.
func (m *EngineMetrics) ObserveReservation(outcome string) {
	if m == nil || m.reservations == nil {
		return
	}
	m.reservations.WithLabelValues(outcome).Inc()
}

// AddExpired counts reservations released by the sweep.
func (m *EngineMetrics) AddExpired(n int) {
	if m == nil || m.reservationsExpired == nil {
		return
	}
	m.reservationsExpired.Add(float64(n))
}

// IncAllocation counts one allocated order item.
func (m *EngineMetrics) IncAllocation() {
	if m == nil || m.allocations == nil {
		return
	}
	m.allocations.Inc()
}

// IncReceiptPosted counts one posted receipt.
func (m *EngineMetrics) IncReceiptPosted() {
	if m == nil || m.receiptsPosted == nil {
		return
	}
	m.receiptsPosted.Inc()
}

// IncTaskCompleted counts one completed production task.
func (m *EngineMetrics) IncTaskCompleted() {
	if m == nil || m.tasksCompleted == nil {
		return
	}
	m.tasksCompleted.Inc()
}
