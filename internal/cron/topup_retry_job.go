package cron

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/vendorisland/vendorisland-backend/internal/orders"
	"github.com/vendorisland/vendorisland-backend/pkg/logger"
)

type topupOrders interface {
	ListBlockedVendors(ctx context.Context) ([]uuid.UUID, error)
	RetryTopup(ctx context.Context, vendorID uuid.UUID) (*orders.TopupRetryResult, error)
}

type TopupRetryJobParams struct {
	Logger *logger.Logger
	Orders topupOrders
}

// NewTopupRetryJob re-attempts reservations and queued refunds for every
// vendor that has blocked orders. One vendor failing does not stop the rest.
func NewTopupRetryJob(params TopupRetryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	return &topupRetryJob{logg: params.Logger, orders: params.Orders}, nil
}

type topupRetryJob struct {
	logg   *logger.Logger
	orders topupOrders
}

func (j *topupRetryJob) Name() string { return "topup-retry" }

func (j *topupRetryJob) Run(ctx context.Context) error {
	vendors, err := j.orders.ListBlockedVendors(ctx)
	if err != nil {
		return fmt.Errorf("list blocked vendors: %w", err)
	}
	var (
		errs                          error
		attempted, reserved, refunded int
		stillBlocked                  int
	)
	for _, vendorID := range vendors {
		res, err := j.orders.RetryTopup(ctx, vendorID)
		if res != nil {
			attempted += res.Attempted
			reserved += len(res.Reserved)
			refunded += len(res.RefundsApplied)
			stillBlocked += len(res.StillBlocked)
		}
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("vendor %s: %w", vendorID, err))
		}
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"vendors":         len(vendors),
		"attempted":       attempted,
		"reserved":        reserved,
		"refunds_applied": refunded,
		"still_blocked":   stillBlocked,
		"failed_vendors":  len(multierr.Errors(errs)),
	})
	j.logg.Info(logCtx, "topup retry pass complete")
	return errs
}
