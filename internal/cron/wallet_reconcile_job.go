package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/vendorisland/vendorisland-backend/internal/wallet"
	"github.com/vendorisland/vendorisland-backend/pkg/logger"
)

type walletDirectory interface {
	ListWalletIDs(ctx context.Context) ([]uuid.UUID, error)
}

type walletReconciler interface {
	Reconcile(ctx context.Context, walletID uuid.UUID) (*wallet.Reconciliation, error)
}

const defaultReconcileEvery = time.Hour

type WalletReconcileJobParams struct {
	Logger    *logger.Logger
	Directory walletDirectory
	Wallets   walletReconciler
	Every     time.Duration
}

// NewWalletReconcileJob replays every wallet ledger and reports drift
// between the cached balances and the entries.
func NewWalletReconcileJob(params WalletReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Directory == nil {
		return nil, fmt.Errorf("wallet directory required")
	}
	if params.Wallets == nil {
		return nil, fmt.Errorf("wallet service required")
	}
	every := params.Every
	if every <= 0 {
		every = defaultReconcileEvery
	}
	return &walletReconcileJob{logg: params.Logger, directory: params.Directory, wallets: params.Wallets, every: every}, nil
}

type walletReconcileJob struct {
	logg      *logger.Logger
	directory walletDirectory
	wallets   walletReconciler
	every     time.Duration
}

func (j *walletReconcileJob) Name() string { return "wallet-reconcile" }

func (j *walletReconcileJob) Every() time.Duration { return j.every }

func (j *walletReconcileJob) Run(ctx context.Context) error {
	ids, err := j.directory.ListWalletIDs(ctx)
	if err != nil {
		return fmt.Errorf("list wallets: %w", err)
	}
	var (
		errs    error
		drifted int
	)
	for _, id := range ids {
		rec, err := j.wallets.Reconcile(ctx, id)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("wallet %s: %w", id, err))
			continue
		}
		if rec.Consistent {
			continue
		}
		drifted++
		logCtx := j.logg.WithFields(ctx, map[string]any{
			"wallet_id":                id.String(),
			"cached_available_cents":   rec.CachedAvailableCents,
			"replayed_available_cents": rec.ReplayedAvailableCents,
			"cached_reserved_cents":    rec.CachedReservedCents,
			"replayed_reserved_cents":  rec.ReplayedReservedCents,
			"problems":                 len(rec.Problems),
		})
		j.logg.Error(logCtx, "wallet ledger drift detected", rec.Err())
		errs = multierr.Append(errs, fmt.Errorf("wallet %s: %w", id, rec.Err()))
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"wallets": len(ids),
		"drifted": drifted,
	})
	j.logg.Info(logCtx, "wallet reconciliation complete")
	return errs
}
