package enums

import "fmt"

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventOrderCreated      OutboxEventType = "order_created"
	EventOrderStateChanged OutboxEventType = "order_state_changed"
	EventLedgerEntry       OutboxEventType = "ledger_entry_appended"
	EventOrderNeedsTopup   OutboxEventType = "order_needs_topup"
	EventOrderSettled      OutboxEventType = "order_settled"
	EventOrderRefunded     OutboxEventType = "order_refunded"
	EventRefundQueued      OutboxEventType = "refund_queued"
	EventDepositApproved   OutboxEventType = "deposit_approved"
	EventProductRepriced   OutboxEventType = "product_repriced"
)

var validOutboxEventTypes = []OutboxEventType{
	EventOrderCreated,
	EventOrderStateChanged,
	EventLedgerEntry,
	EventOrderNeedsTopup,
	EventOrderSettled,
	EventOrderRefunded,
	EventRefundQueued,
	EventDepositApproved,
	EventProductRepriced,
}

// IsValid reports whether the value matches the canonical event type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}

// OutboxDLQErrorReason records why the relay parked an event.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

func (r OutboxDLQErrorReason) IsValid() bool {
	return r == OutboxDLQReasonMaxAttempts || r == OutboxDLQReasonNonRetryable
}
