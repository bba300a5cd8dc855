package metrics

import "github.com/prometheus/client_golang/prometheus"

// Reservation outcomes.
const (
	OutcomeReserved   = "reserved"
	OutcomeNeedsTopup = "needs_topup"
	OutcomeReplayed   = "replayed"
)

// LedgerMetrics counts wallet ledger activity. A nil receiver is a no-op.
type LedgerMetrics struct {
	entries      *prometheus.CounterVec
	reservations *prometheus.CounterVec
	violations   *prometheus.CounterVec
}

// NewLedgerMetrics registers the ledger metrics on the provided registerer.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	entries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "entries_total",
		Help:      "Wallet transactions appended, by type.",
	}, []string{"type"})
	reservations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "reservations_total",
		Help:      "Reservation attempts, by outcome.",
	}, []string{"outcome"})
	violations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "invariant_violations_total",
		Help:      "Operations aborted on a ledger consistency check.",
	}, []string{"operation"})
	reg.MustRegister(entries, reservations, violations)
	return &LedgerMetrics{entries: entries, reservations: reservations, violations: violations}
}

func (m *LedgerMetrics) IncEntry(txType string) {
	if m == nil || m.entries == nil {
		return
	}
	m.entries.WithLabelValues(normalizeLabel(txType)).Inc()
}

func (m *LedgerMetrics) IncReservation(outcome string) {
	if m == nil || m.reservations == nil {
		return
	}
	m.reservations.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *LedgerMetrics) IncViolation(operation string) {
	if m == nil || m.violations == nil {
		return
	}
	m.violations.WithLabelValues(normalizeLabel(operation)).Inc()
}
