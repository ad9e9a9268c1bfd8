package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// ModerationMetrics counts moderation outcomes so conflict and blocked-batch
// rates are visible next to the happy path.
type ModerationMetrics struct {
	operations  *prometheus.CounterVec
	transitions *prometheus.CounterVec
	batchSize   prometheus.Histogram
}

// NewModerationMetrics registers the moderation metrics on the provided registerer.
func NewModerationMetrics(reg prometheus.Registerer) *ModerationMetrics {
	if reg == nil {
		return &ModerationMetrics{}
	}
	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "moderation",
		Name:      "operations_total",
		Help:      "Moderation operations by name and outcome code.",
	}, []string{"operation", "outcome"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "moderation",
		Name:      "transitions_total",
		Help:      "Committed state transitions by source and target state.",
	}, []string{"from", "to"})
	batchSize := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "moderation",
		Name:      "batch_promoted_members",
		Help:      "Number of captures promoted per batch.",
		Buckets:   []float64{1, 5, 10, 25, 50, 100, 250},
	})
	reg.MustRegister(operations, transitions, batchSize)
	return &ModerationMetrics{
		operations:  operations,
		transitions: transitions,
		batchSize:   batchSize,
	}
}

// ObserveOperation records the outcome of one moderation call. outcome is
// "ok", "noop" or an error code.
func (m *ModerationMetrics) ObserveOperation(operation, outcome string) {
	if m == nil || m.operations == nil {
		return
	}
	m.operations.WithLabelValues(normalizeLabel(operation), normalizeLabel(outcome)).Inc()
}

// IncTransition records one committed state change.
func (m *ModerationMetrics) IncTransition(from, to string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(from), normalizeLabel(to)).Inc()
}

// ObserveBatch records the size of a promoted batch.
func (m *ModerationMetrics) ObserveBatch(members int) {
	if m == nil || m.batchSize == nil {
		return
	}
	m.batchSize.Observe(float64(members))
}
