package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestLedgerMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewLedgerMetrics(reg)
	m.IncEntry("reserve")
	m.IncEntry("reserve")
	m.IncReservation(OutcomeNeedsTopup)
	m.IncViolation("release")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "vendorisland_ledger_entries_total", "type", "reserve"); err != nil || got != 2 {
		t.Fatalf("expected 2 reserve entries, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "vendorisland_ledger_reservations_total", "outcome", OutcomeNeedsTopup); err != nil || got != 1 {
		t.Fatalf("expected 1 needs_topup outcome, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "vendorisland_ledger_invariant_violations_total", "operation", "release"); err != nil || got != 1 {
		t.Fatalf("expected 1 violation, got %f (%v)", got, err)
	}
}

func TestLedgerMetricsNilSafe(t *testing.T) {
	var m *LedgerMetrics
	m.IncEntry("deposit")
	m.IncReservation(OutcomeReserved)
	m.IncViolation("settle")
	NewLedgerMetrics(nil).IncEntry("fee")
}
