package wallet

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/vendorisland/vendorisland-backend/pkg/db"
	"github.com/vendorisland/vendorisland-backend/pkg/db/dbtest"
	"github.com/vendorisland/vendorisland-backend/pkg/db/models"
	"github.com/vendorisland/vendorisland-backend/pkg/enums"
	pkgerrors "github.com/vendorisland/vendorisland-backend/pkg/errors"
	"github.com/vendorisland/vendorisland-backend/pkg/metrics"
	"github.com/vendorisland/vendorisland-backend/pkg/outbox"
)

type fixture struct {
	conn *gorm.DB
	tx   *db.Client
	repo Repository
	svc  Service
	reg  *prometheus.Registry
}

func newFixture(t *testing.T, policy Policy) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	client := db.Wrap(conn)
	reg := prometheus.NewRegistry()
	svc, err := NewService(repo, client, outbox.NewService(outbox.NewRepository(conn), nil), policy,
		WithMetrics(metrics.NewLedgerMetrics(reg)),
		WithRetryPolicy(db.RetryPolicy{MaxAttempts: 1}),
	)
	require.NoError(t, err)
	return &fixture{conn: conn, tx: client, repo: repo, svc: svc, reg: reg}
}

func (f *fixture) funded(t *testing.T, cents int64) uuid.UUID {
	t.Helper()
	w, err := f.svc.Provision(context.Background(), uuid.New(), "")
	require.NoError(t, err)
	if cents > 0 {
		_, err = f.svc.Deposit(context.Background(), DepositInput{WalletID: w.ID, AmountCents: cents})
		require.NoError(t, err)
	}
	return w.ID
}

func (f *fixture) balances(t *testing.T, walletID uuid.UUID) (int64, int64) {
	t.Helper()
	w, err := f.svc.Get(context.Background(), walletID)
	require.NoError(t, err)
	return w.AvailableBalanceCents, w.ReservedBalanceCents
}

func (f *fixture) entries(t *testing.T, walletID uuid.UUID) []models.WalletTransaction {
	t.Helper()
	entries, err := f.repo.AllEntries(context.Background(), walletID)
	require.NoError(t, err)
	return entries
}

func (f *fixture) settle(t *testing.T, input SettleInput) (*SettleResult, error) {
	t.Helper()
	var result *SettleResult
	err := f.tx.WithTx(context.Background(), func(tx *gorm.DB) error {
		var err error
		result, err = f.svc.SettleTx(context.Background(), tx, input)
		return err
	})
	return result, err
}

func (f *fixture) refund(t *testing.T, input RefundInput) (*RefundResult, error) {
	t.Helper()
	var result *RefundResult
	err := f.tx.WithTx(context.Background(), func(tx *gorm.DB) error {
		var err error
		result, err = f.svc.RefundTx(context.Background(), tx, input)
		return err
	})
	return result, err
}

func (f *fixture) assertConsistent(t *testing.T, walletID uuid.UUID) {
	t.Helper()
	rec, err := f.svc.Reconcile(context.Background(), walletID)
	require.NoError(t, err)
	assert.True(t, rec.Consistent, "problems: %+v", rec.Problems)
	assert.NoError(t, rec.Err())
}

func counterValue(t *testing.T, reg *prometheus.Registry, name, label, value string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == label && lp.GetValue() == value {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestReserveThenSettleCreditsProfit(t *testing.T) {
	f := newFixture(t, Policy{})
	ctx := context.Background()
	walletID := f.funded(t, 10000)
	orderID := uuid.New()

	reserve := f.svc.Policy().ReservationCents(4000, 1000)
	require.Equal(t, int64(5000), reserve)

	res, err := f.svc.ReserveFunds(ctx, walletID, orderID, reserve)
	require.NoError(t, err)
	require.True(t, res.Reserved)
	require.False(t, res.NeedsTopup)

	available, reserved := f.balances(t, walletID)
	assert.Equal(t, int64(5000), available)
	assert.Equal(t, int64(5000), reserved)

	settled, err := f.settle(t, SettleInput{
		WalletID:          walletID,
		OrderID:           orderID,
		TotalPaidCents:    8000,
		SupplierCostCents: 4000,
		PlatformFeeCents:  1000,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3000), settled.ProfitCents)
	assert.Equal(t, int64(0), settled.Release.AmountCents)
	assert.Equal(t, int64(-5000), settled.Release.ReservedDeltaCents)
	require.NotNil(t, settled.Fee)
	assert.Equal(t, int64(0), settled.Fee.AmountCents)

	available, reserved = f.balances(t, walletID)
	assert.Equal(t, int64(8000), available)
	assert.Equal(t, int64(0), reserved)

	var types []enums.TransactionType
	for _, entry := range f.entries(t, walletID) {
		types = append(types, entry.Type)
	}
	assert.Equal(t, []enums.TransactionType{
		enums.TransactionTypeDeposit,
		enums.TransactionTypeReserve,
		enums.TransactionTypeRelease,
		enums.TransactionTypeProfit,
		enums.TransactionTypeFee,
	}, types)
	f.assertConsistent(t, walletID)
}

func TestSettleSeparateFeeMatchesReservedFee(t *testing.T) {
	f := newFixture(t, Policy{FeePolicy: "separate"})
	walletID := f.funded(t, 10000)
	orderID := uuid.New()

	reserve := f.svc.Policy().ReservationCents(4000, 1000)
	require.Equal(t, int64(4000), reserve)
	_, err := f.svc.ReserveFunds(context.Background(), walletID, orderID, reserve)
	require.NoError(t, err)

	settled, err := f.settle(t, SettleInput{
		WalletID:          walletID,
		OrderID:           orderID,
		TotalPaidCents:    8000,
		SupplierCostCents: 4000,
		PlatformFeeCents:  1000,
	})
	require.NoError(t, err)
	require.NotNil(t, settled.Fee)
	assert.Equal(t, int64(-1000), settled.Fee.AmountCents)

	available, reserved := f.balances(t, walletID)
	assert.Equal(t, int64(8000), available)
	assert.Equal(t, int64(0), reserved)
	f.assertConsistent(t, walletID)
}

func TestReserveInsufficientFundsNeedsTopup(t *testing.T) {
	f := newFixture(t, Policy{})
	walletID := f.funded(t, 2000)

	res, err := f.svc.ReserveFunds(context.Background(), walletID, uuid.New(), 5000)
	require.NoError(t, err)
	assert.True(t, res.NeedsTopup)
	assert.False(t, res.Reserved)
	assert.Equal(t, int64(3000), res.ShortfallCents)

	available, reserved := f.balances(t, walletID)
	assert.Equal(t, int64(2000), available)
	assert.Equal(t, int64(0), reserved)
	assert.Len(t, f.entries(t, walletID), 1)
	assert.Equal(t, float64(1), counterValue(t, f.reg, "vendorisland_ledger_reservations_total", "outcome", metrics.OutcomeNeedsTopup))
}

func TestReleaseReturnsReservation(t *testing.T) {
	f := newFixture(t, Policy{})
	ctx := context.Background()
	walletID := f.funded(t, 10000)
	orderID := uuid.New()

	_, err := f.svc.ReserveFunds(ctx, walletID, orderID, 5000)
	require.NoError(t, err)
	entry, err := f.svc.ReleaseFunds(ctx, walletID, orderID, 5000)
	require.NoError(t, err)
	assert.Equal(t, enums.TransactionTypeRelease, entry.Type)
	assert.Equal(t, int64(5000), entry.AmountCents)

	available, reserved := f.balances(t, walletID)
	assert.Equal(t, int64(10000), available)
	assert.Equal(t, int64(0), reserved)
	f.assertConsistent(t, walletID)
}

func TestReserveTwiceReturnsOriginal(t *testing.T) {
	f := newFixture(t, Policy{})
	ctx := context.Background()
	walletID := f.funded(t, 10000)
	orderID := uuid.New()

	first, err := f.svc.ReserveFunds(ctx, walletID, orderID, 5000)
	require.NoError(t, err)
	second, err := f.svc.ReserveFunds(ctx, walletID, orderID, 5000)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Transaction.ID, second.Transaction.ID)

	available, reserved := f.balances(t, walletID)
	assert.Equal(t, int64(5000), available)
	assert.Equal(t, int64(5000), reserved)

	_, err = f.svc.ReserveFunds(ctx, walletID, orderID, 4000)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
}

func TestReleaseViolations(t *testing.T) {
	f := newFixture(t, Policy{})
	ctx := context.Background()
	walletID := f.funded(t, 10000)
	orderID := uuid.New()

	_, err := f.svc.ReleaseFunds(ctx, walletID, orderID, 5000)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvariant), "release without reserve: %v", err)

	_, err = f.svc.ReserveFunds(ctx, walletID, orderID, 5000)
	require.NoError(t, err)

	_, err = f.svc.ReleaseFunds(ctx, walletID, orderID, 4000)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvariant), "partial release: %v", err)

	_, err = f.svc.ReleaseFunds(ctx, walletID, orderID, 5000)
	require.NoError(t, err)
	_, err = f.svc.ReleaseFunds(ctx, walletID, orderID, 5000)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvariant), "double release: %v", err)

	available, reserved := f.balances(t, walletID)
	assert.Equal(t, int64(10000), available)
	assert.Equal(t, int64(0), reserved)
	assert.Equal(t, float64(3), counterValue(t, f.reg, "vendorisland_ledger_invariant_violations_total", "operation", "release"))
}

func TestSettleViolations(t *testing.T) {
	f := newFixture(t, Policy{})
	ctx := context.Background()
	walletID := f.funded(t, 10000)
	orderID := uuid.New()
	input := SettleInput{WalletID: walletID, OrderID: orderID, TotalPaidCents: 8000, SupplierCostCents: 4000, PlatformFeeCents: 1000}

	_, err := f.settle(t, input)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvariant), "settle without reserve: %v", err)

	_, err = f.svc.ReserveFunds(ctx, walletID, orderID, 5000)
	require.NoError(t, err)
	_, err = f.settle(t, input)
	require.NoError(t, err)

	_, err = f.settle(t, input)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvariant), "double settle: %v", err)

	available, reserved := f.balances(t, walletID)
	assert.Equal(t, int64(8000), available)
	assert.Equal(t, int64(0), reserved)
}

func TestSettleRollsBackAsUnit(t *testing.T) {
	f := newFixture(t, Policy{})
	ctx := context.Background()
	walletID := f.funded(t, 5000)
	orderID := uuid.New()
	_, err := f.svc.ReserveFunds(ctx, walletID, orderID, 5000)
	require.NoError(t, err)

	// Loss larger than the remaining balance is refused and nothing is kept.
	_, err = f.settle(t, SettleInput{WalletID: walletID, OrderID: orderID, TotalPaidCents: 1000, SupplierCostCents: 4000, PlatformFeeCents: 1000})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	available, reserved := f.balances(t, walletID)
	assert.Equal(t, int64(0), available)
	assert.Equal(t, int64(5000), reserved)
	assert.Len(t, f.entries(t, walletID), 2)
	f.assertConsistent(t, walletID)
}

func TestRefundAfterSettlementQueuesUntilTopup(t *testing.T) {
	f := newFixture(t, Policy{})
	ctx := context.Background()
	walletID := f.funded(t, 5000)
	orderID := uuid.New()

	_, err := f.svc.ReserveFunds(ctx, walletID, orderID, 5000)
	require.NoError(t, err)
	_, err = f.settle(t, SettleInput{WalletID: walletID, OrderID: orderID, TotalPaidCents: 6000, SupplierCostCents: 4000, PlatformFeeCents: 1000})
	require.NoError(t, err)
	available, _ := f.balances(t, walletID)
	require.Equal(t, int64(1000), available)

	refund := RefundInput{WalletID: walletID, OrderID: orderID, AmountCents: 6000}
	res, err := f.refund(t, refund)
	require.NoError(t, err)
	assert.True(t, res.Queued)
	assert.Nil(t, res.Debit)
	assert.Len(t, f.entries(t, walletID), 5)

	_, err = f.svc.Deposit(ctx, DepositInput{WalletID: walletID, AmountCents: 5000})
	require.NoError(t, err)
	res, err = f.refund(t, refund)
	require.NoError(t, err)
	assert.False(t, res.Queued)
	require.NotNil(t, res.Debit)
	assert.Equal(t, int64(-6000), res.Debit.AmountCents)

	available, reserved := f.balances(t, walletID)
	assert.Equal(t, int64(0), available)
	assert.Equal(t, int64(0), reserved)
	f.assertConsistent(t, walletID)
}

func TestRefundMayOverdrawWhenPolicyAllows(t *testing.T) {
	f := newFixture(t, Policy{AllowNegativeBalance: true})
	ctx := context.Background()
	walletID := f.funded(t, 5000)
	orderID := uuid.New()

	_, err := f.svc.ReserveFunds(ctx, walletID, orderID, 5000)
	require.NoError(t, err)
	_, err = f.settle(t, SettleInput{WalletID: walletID, OrderID: orderID, TotalPaidCents: 6000, SupplierCostCents: 4000, PlatformFeeCents: 1000})
	require.NoError(t, err)

	res, err := f.refund(t, RefundInput{WalletID: walletID, OrderID: orderID, AmountCents: 6000})
	require.NoError(t, err)
	assert.False(t, res.Queued)

	available, _ := f.balances(t, walletID)
	assert.Equal(t, int64(-5000), available)
	f.assertConsistent(t, walletID)

	_, err = f.svc.Withdraw(ctx, WithdrawInput{WalletID: walletID, AmountCents: 1})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestRefundBeforeSettlementReleasesReservation(t *testing.T) {
	f := newFixture(t, Policy{})
	walletID := f.funded(t, 10000)
	orderID := uuid.New()
	_, err := f.svc.ReserveFunds(context.Background(), walletID, orderID, 5000)
	require.NoError(t, err)

	res, err := f.refund(t, RefundInput{WalletID: walletID, OrderID: orderID, AmountCents: 8000})
	require.NoError(t, err)
	require.NotNil(t, res.Released)
	assert.Nil(t, res.Debit)

	available, reserved := f.balances(t, walletID)
	assert.Equal(t, int64(10000), available)
	assert.Equal(t, int64(0), reserved)
}

func TestDepositAndWithdrawReferences(t *testing.T) {
	f := newFixture(t, Policy{})
	ctx := context.Background()
	walletID := f.funded(t, 0)

	first, err := f.svc.Deposit(ctx, DepositInput{WalletID: walletID, AmountCents: 2500, ReferenceID: "dep-1"})
	require.NoError(t, err)
	again, err := f.svc.Deposit(ctx, DepositInput{WalletID: walletID, AmountCents: 2500, ReferenceID: "dep-1"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	_, err = f.svc.Deposit(ctx, DepositInput{WalletID: walletID, AmountCents: 100, ReferenceID: "dep-1"})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	_, err = f.svc.Withdraw(ctx, WithdrawInput{WalletID: walletID, AmountCents: 3000})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	w1, err := f.svc.Withdraw(ctx, WithdrawInput{WalletID: walletID, AmountCents: 1000, ReferenceID: "wd-1"})
	require.NoError(t, err)
	w2, err := f.svc.Withdraw(ctx, WithdrawInput{WalletID: walletID, AmountCents: 1000, ReferenceID: "wd-1"})
	require.NoError(t, err)
	assert.Equal(t, w1.ID, w2.ID)

	available, _ := f.balances(t, walletID)
	assert.Equal(t, int64(1500), available)

	_, err = f.svc.Deposit(ctx, DepositInput{WalletID: walletID, AmountCents: 0})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestReplayReproducesBalances(t *testing.T) {
	f := newFixture(t, Policy{})
	ctx := context.Background()
	walletID := f.funded(t, 20000)

	orders := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	for _, id := range orders {
		_, err := f.svc.ReserveFunds(ctx, walletID, id, 3000)
		require.NoError(t, err)
	}
	_, err := f.svc.ReleaseFunds(ctx, walletID, orders[0], 3000)
	require.NoError(t, err)
	_, err = f.settle(t, SettleInput{WalletID: walletID, OrderID: orders[1], TotalPaidCents: 4500, SupplierCostCents: 2500, PlatformFeeCents: 500})
	require.NoError(t, err)
	_, err = f.svc.Withdraw(ctx, WithdrawInput{WalletID: walletID, AmountCents: 700})
	require.NoError(t, err)

	replay, problems := ReplayEntries(f.entries(t, walletID))
	require.Empty(t, problems)
	available, reserved := f.balances(t, walletID)
	assert.Equal(t, available, replay.AvailableCents)
	assert.Equal(t, reserved, replay.ReservedCents)
	assert.Equal(t, int64(3000), reserved)
	assert.Equal(t, map[uuid.UUID]int64{orders[2]: 3000}, replay.OpenReservations)
}

func TestDriftBlocksFurtherWrites(t *testing.T) {
	f := newFixture(t, Policy{})
	ctx := context.Background()
	walletID := f.funded(t, 1000)

	require.NoError(t, f.conn.Exec("UPDATE wallets SET available_balance_cents = available_balance_cents + 1 WHERE id = ?", walletID).Error)

	rec, err := f.svc.Reconcile(ctx, walletID)
	require.NoError(t, err)
	assert.False(t, rec.Consistent)
	assert.NotEmpty(t, rec.Problems)
	assert.True(t, pkgerrors.IsCode(rec.Err(), pkgerrors.CodeInvariant))

	_, err = f.svc.Deposit(ctx, DepositInput{WalletID: walletID, AmountCents: 100})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvariant))
	assert.Len(t, f.entries(t, walletID), 1)
}

func TestConcurrentReservationsSerialize(t *testing.T) {
	f := newFixture(t, Policy{})
	walletID := f.funded(t, 10000)

	const attempts = 5
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		reserved   int
		needsTopup int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.svc.ReserveFunds(context.Background(), walletID, uuid.New(), 3000)
			if err != nil {
				t.Errorf("reserve: %v", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if res.Reserved {
				reserved++
			}
			if res.NeedsTopup {
				needsTopup++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, reserved)
	assert.Equal(t, 2, needsTopup)
	available, held := f.balances(t, walletID)
	assert.Equal(t, int64(1000), available)
	assert.Equal(t, int64(9000), held)
	f.assertConsistent(t, walletID)
}

func TestListTransactionsPages(t *testing.T) {
	f := newFixture(t, Policy{})
	ctx := context.Background()
	walletID := f.funded(t, 0)
	for i := 0; i < 5; i++ {
		_, err := f.svc.Deposit(ctx, DepositInput{WalletID: walletID, AmountCents: int64(100 * (i + 1))})
		require.NoError(t, err)
	}

	var seen []int64
	cursor := ""
	for range 3 {
		page, err := f.svc.ListTransactions(ctx, walletID, ListTransactionsParams{Limit: 2, Cursor: cursor})
		require.NoError(t, err)
		for _, tx := range page.Transactions {
			seen = append(seen, tx.Sequence)
		}
		cursor = page.NextCursor
		if cursor == "" {
			break
		}
	}
	assert.Equal(t, []int64{5, 4, 3, 2, 1}, seen)
	assert.Empty(t, cursor)

	_, err := f.svc.ListTransactions(ctx, walletID, ListTransactionsParams{Cursor: "not-a-cursor"})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestProvisionIsIdempotent(t *testing.T) {
	f := newFixture(t, Policy{DefaultCurrency: "EUR"})
	ctx := context.Background()
	vendorID := uuid.New()

	first, err := f.svc.Provision(ctx, vendorID, "")
	require.NoError(t, err)
	assert.Equal(t, "EUR", first.Currency)
	second, err := f.svc.Provision(ctx, vendorID, "usd")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	_, err = f.svc.Provision(ctx, uuid.New(), "dollars")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.Get(ctx, uuid.New())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestEveryEntryEmitsLedgerEvent(t *testing.T) {
	f := newFixture(t, Policy{})
	ctx := context.Background()
	walletID := f.funded(t, 10000)
	_, err := f.svc.ReserveFunds(ctx, walletID, uuid.New(), 5000)
	require.NoError(t, err)

	var count int64
	require.NoError(t, f.conn.Model(&models.OutboxEvent{}).
		Where("event_type = ? AND aggregate_id = ?", enums.EventLedgerEntry, walletID).
		Count(&count).Error)
	assert.Equal(t, int64(len(f.entries(t, walletID))), count)
	assert.Equal(t, float64(1), counterValue(t, f.reg, "vendorisland_ledger_entries_total", "type", "reserve"))
}

func TestPolicyPlatformFeeCents(t *testing.T) {
	cases := []struct {
		name     string
		policy   Policy
		subtotal int64
		want     int64
	}{
		{name: "no fee configured", policy: Policy{}, subtotal: 8000, want: 0},
		{name: "fixed only", policy: Policy{PlatformFeeFixedCents: 150}, subtotal: 8000, want: 150},
		{name: "basis points round half up", policy: Policy{PlatformFeeBps: 250}, subtotal: 1999, want: 50},
		{name: "fixed plus percentage", policy: Policy{PlatformFeeBps: 500, PlatformFeeFixedCents: 30}, subtotal: 8000, want: 430},
		{name: "empty subtotal keeps fixed part", policy: Policy{PlatformFeeBps: 500, PlatformFeeFixedCents: 30}, subtotal: 0, want: 30},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.policy.PlatformFeeCents(tc.subtotal))
		})
	}
}
