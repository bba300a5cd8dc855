package router

import (
	cbigquery "cloud.google.com/go/bigquery"
	"github.com/google/uuid"

	"github.com/vendorisland/vendorisland-backend/internal/analytics/types"
	"github.com/vendorisland/vendorisland-backend/pkg/outbox/payloads"
)

func baseRow(env types.Envelope) types.LedgerFactRow {
	row := types.LedgerFactRow{
		EventID:    env.EventID,
		EventType:  string(env.EventType),
		OccurredAt: env.OccurredAt.UTC(),
		Payload:    cbigquery.NullJSON{Valid: len(env.Payload) > 0, JSONVal: string(env.Payload)},
	}
	if env.CorrelationID != "" {
		row.CorrelationID = ptr(env.CorrelationID)
	}
	return row
}

func ledgerEntryFact(row *types.LedgerFactRow, e *payloads.LedgerEntryEvent) {
	row.VendorID = e.VendorID.String()
	row.WalletID = idColumn(e.WalletID)
	if e.OrderID != nil {
		row.OrderID = idColumn(*e.OrderID)
	}
	row.TransactionID = idColumn(e.TransactionID)
	row.TransactionType = ptr(string(e.Type))
	row.Sequence = ptr(e.Sequence)
	row.AmountCents = ptr(e.AmountCents)
	row.ReservedDeltaCents = ptr(e.ReservedDeltaCents)
	row.BalanceAfterCents = ptr(e.BalanceAfterCents)
	row.ReservedAfterCents = ptr(e.ReservedAfterCents)
	if !e.OccurredAt.IsZero() {
		row.OccurredAt = e.OccurredAt.UTC()
	}
}

func orderSettledFact(row *types.LedgerFactRow, e *payloads.OrderSettledEvent) {
	row.VendorID = e.VendorID.String()
	row.WalletID = idColumn(e.WalletID)
	row.OrderID = idColumn(e.OrderID)
	row.TotalPaidCents = ptr(e.TotalPaidCents)
	row.SupplierCostCents = ptr(e.SupplierCostCents)
	row.PlatformFeeCents = ptr(e.PlatformFeeCents)
	row.ProfitCents = ptr(e.ProfitCents)
	if !e.SettledAt.IsZero() {
		row.OccurredAt = e.SettledAt.UTC()
	}
}

func needsTopupFact(row *types.LedgerFactRow, e *payloads.OrderNeedsTopupEvent) {
	row.VendorID = e.VendorID.String()
	row.WalletID = idColumn(e.WalletID)
	row.OrderID = idColumn(e.OrderID)
	row.AmountCents = ptr(e.RequiredCents)
	row.BalanceAfterCents = ptr(e.AvailableCents)
	row.ShortfallCents = ptr(e.ShortfallCents)
}

// refundFact covers both executed and queued refunds; Queued tells them apart.
func refundFact(row *types.LedgerFactRow, e *payloads.OrderRefundedEvent) {
	row.VendorID = e.VendorID.String()
	row.OrderID = idColumn(e.OrderID)
	row.AmountCents = ptr(e.AmountCents)
	row.RefundQueued = ptr(e.Queued)
}

func depositApprovedFact(row *types.LedgerFactRow, e *payloads.DepositApprovedEvent) {
	row.VendorID = e.VendorID.String()
	row.WalletID = idColumn(e.WalletID)
	row.DepositRequestID = idColumn(e.DepositRequestID)
	row.AmountCents = ptr(e.AmountCents)
}

func ptr[T any](v T) *T { return &v }

// idColumn renders an id as a nullable column value.
func idColumn(id uuid.UUID) *string {
	if id == uuid.Nil {
		return nil
	}
	return ptr(id.String())
}
