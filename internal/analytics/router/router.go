// Package router turns ledger-relevant domain events into BigQuery fact rows.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vendorisland/vendorisland-backend/internal/analytics/types"
	"github.com/vendorisland/vendorisland-backend/pkg/enums"
	"github.com/vendorisland/vendorisland-backend/pkg/logger"
)

// ErrUnsupportedEventType marks events that carry no ledger fact. The worker
// acks them.
var ErrUnsupportedEventType = errors.New("unsupported analytics event type")

type Writer interface {
	InsertLedgerFact(ctx context.Context, row types.LedgerFactRow) error
}

type route func(ctx context.Context, env types.Envelope) error

// Router dispatches envelopes by event type.
type Router struct {
	writer Writer
	logg   *logger.Logger
	routes map[enums.OutboxEventType]route
}

func NewRouter(writer Writer, logg *logger.Logger) (*Router, error) {
	if writer == nil {
		return nil, errors.New("writer is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	r := &Router{writer: writer, logg: logg}
	r.routes = map[enums.OutboxEventType]route{
		enums.EventLedgerEntry:     fact(r, ledgerEntryFact),
		enums.EventOrderSettled:    fact(r, orderSettledFact),
		enums.EventOrderNeedsTopup: fact(r, needsTopupFact),
		enums.EventOrderRefunded:   fact(r, refundFact),
		enums.EventRefundQueued:    fact(r, refundFact),
		enums.EventDepositApproved: fact(r, depositApprovedFact),
	}
	return r, nil
}

func (r *Router) Handle(ctx context.Context, env types.Envelope) error {
	handle, ok := r.routes[env.EventType]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedEventType, env.EventType)
	}
	if len(env.Payload) == 0 {
		return fmt.Errorf("empty payload for %s", env.EventType)
	}
	return handle(ctx, env)
}

// fact decodes the payload as T, lets build fill the event specific columns
// and writes the row.
func fact[T any](r *Router, build func(row *types.LedgerFactRow, event *T)) route {
	return func(ctx context.Context, env types.Envelope) error {
		var event T
		if err := json.Unmarshal(env.Payload, &event); err != nil {
			return fmt.Errorf("decode %s payload: %w", env.EventType, err)
		}
		row := baseRow(env)
		build(&row, &event)
		if err := r.writer.InsertLedgerFact(ctx, row); err != nil {
			return err
		}
		r.logg.Debug(r.logg.WithField(ctx, "vendor_id", row.VendorID), "ledger fact written")
		return nil
	}
}
