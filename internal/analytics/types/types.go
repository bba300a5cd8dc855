// Package types holds the analytics worker's wire and warehouse shapes.
package types

import (
	"encoding/json"
	"time"

	cbigquery "cloud.google.com/go/bigquery"

	"github.com/vendorisland/vendorisland-backend/pkg/enums"
)

// Envelope is a domain event as received from Pub/Sub, after the publisher's
// attributes and the stored payload envelope have been reconciled.
type Envelope struct {
	EventID       string
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   string
	CorrelationID string
	OccurredAt    time.Time
	Payload       json.RawMessage
}

// LedgerFactRow mirrors the ledger_facts BigQuery schema. One row is written
// per money-moving domain event; columns that do not apply stay null.
type LedgerFactRow struct {
	EventID            string             `bigquery:"event_id"`
	EventType          string             `bigquery:"event_type"`
	OccurredAt         time.Time          `bigquery:"occurred_at"`
	VendorID           string             `bigquery:"vendor_id"`
	CorrelationID      *string            `bigquery:"correlation_id"`
	WalletID           *string            `bigquery:"wallet_id"`
	OrderID            *string            `bigquery:"order_id"`
	DepositRequestID   *string            `bigquery:"deposit_request_id"`
	TransactionID      *string            `bigquery:"transaction_id"`
	TransactionType    *string            `bigquery:"transaction_type"`
	Sequence           *int64             `bigquery:"sequence"`
	AmountCents        *int64             `bigquery:"amount_cents"`
	ReservedDeltaCents *int64             `bigquery:"reserved_delta_cents"`
	BalanceAfterCents  *int64             `bigquery:"balance_after_cents"`
	ReservedAfterCents *int64             `bigquery:"reserved_after_cents"`
	TotalPaidCents     *int64             `bigquery:"total_paid_cents"`
	SupplierCostCents  *int64             `bigquery:"supplier_cost_cents"`
	PlatformFeeCents   *int64             `bigquery:"platform_fee_cents"`
	ProfitCents        *int64             `bigquery:"profit_cents"`
	ShortfallCents     *int64             `bigquery:"shortfall_cents"`
	RefundQueued       *bool              `bigquery:"refund_queued"`
	Payload            cbigquery.NullJSON `bigquery:"payload"`
}
