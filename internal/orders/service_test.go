package orders

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/vendorisland/vendorisland-backend/internal/stores"
	"github.com/vendorisland/vendorisland-backend/internal/wallet"
	"github.com/vendorisland/vendorisland-backend/pkg/db"
	"github.com/vendorisland/vendorisland-backend/pkg/db/dbtest"
	"github.com/vendorisland/vendorisland-backend/pkg/db/models"
	"github.com/vendorisland/vendorisland-backend/pkg/enums"
	pkgerrors "github.com/vendorisland/vendorisland-backend/pkg/errors"
	"github.com/vendorisland/vendorisland-backend/pkg/outbox"
	"github.com/vendorisland/vendorisland-backend/pkg/pagination"
)

type sequentialNumbers struct {
	mu sync.Mutex
	n  int
}

func (s *sequentialNumbers) Next(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("VI-TEST-%06d", s.n), nil
}

type harness struct {
	conn    *gorm.DB
	wallets wallet.Service
	svc     Service
	stores  stores.Service
}

func newHarness(t *testing.T, policy wallet.Policy) *harness {
	t.Helper()
	conn := dbtest.Open(t)
	client := db.Wrap(conn)
	emitter := outbox.NewService(outbox.NewRepository(conn), nil)
	noRetry := db.RetryPolicy{MaxAttempts: 1}

	wallets, err := wallet.NewService(wallet.NewRepository(conn), client, emitter, policy, wallet.WithRetryPolicy(noRetry))
	require.NoError(t, err)

	// Each read of the clock advances a second so created_at ordering is stable.
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	ticks := 0
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		ticks++
		return base.Add(time.Duration(ticks) * time.Second)
	}

	storeDir, err := stores.NewService(stores.NewRepository(conn), nil)
	require.NoError(t, err)

	svc, err := NewService(NewRepository(conn), client, emitter, wallets, storeDir, &sequentialNumbers{},
		WithRetryPolicy(noRetry),
		WithClock(clock),
	)
	require.NoError(t, err)
	return &harness{conn: conn, wallets: wallets, svc: svc, stores: storeDir}
}

// vendor provisions a wallet holding the given balance.
func (h *harness) vendor(t *testing.T, cents int64) (uuid.UUID, uuid.UUID) {
	t.Helper()
	vendorID := uuid.New()
	w, err := h.wallets.Provision(context.Background(), vendorID, "")
	require.NoError(t, err)
	if cents > 0 {
		h.deposit(t, w.ID, cents)
	}
	return vendorID, w.ID
}

func (h *harness) deposit(t *testing.T, walletID uuid.UUID, cents int64) {
	t.Helper()
	_, err := h.wallets.Deposit(context.Background(), wallet.DepositInput{WalletID: walletID, AmountCents: cents})
	require.NoError(t, err)
}

// order creates a single-line order whose fee follows the harness policy.
func (h *harness) order(t *testing.T, vendorID uuid.UUID, costCents int64) *OrderDTO {
	t.Helper()
	order, err := h.svc.Create(context.Background(), CreateOrderInput{
		VendorID:      vendorID,
		CustomerName:  "Dana Reyes",
		CustomerEmail: "dana@example.com",
		Items: []CreateOrderItem{{
			ProductName:    "Ceramic pour-over",
			UnitPriceCents: costCents * 2,
			CostPriceCents: costCents,
			Quantity:       1,
		}},
	})
	require.NoError(t, err)
	return order
}

func (h *harness) balances(t *testing.T, walletID uuid.UUID) (int64, int64) {
	t.Helper()
	w, err := h.wallets.Get(context.Background(), walletID)
	require.NoError(t, err)
	return w.AvailableBalanceCents, w.ReservedBalanceCents
}

func (h *harness) advance(t *testing.T, orderID uuid.UUID, targets ...enums.OrderStatus) {
	t.Helper()
	for _, target := range targets {
		_, err := h.svc.TransitionOrder(context.Background(), TransitionInput{
			OrderID:         orderID,
			Target:          target,
			Scope:           AdminScope(uuid.New()),
			SupplierOrderID: "SUP-1001",
			TrackingNumber:  "1Z999",
		})
		require.NoError(t, err, "transition to %s", target)
	}
}

func (h *harness) events(t *testing.T, aggregateID uuid.UUID, eventType enums.OutboxEventType) int64 {
	t.Helper()
	var count int64
	require.NoError(t, h.conn.Model(&models.OutboxEvent{}).
		Where("aggregate_id = ? AND event_type = ?", aggregateID, eventType).
		Count(&count).Error)
	return count
}

func (h *harness) assertConsistent(t *testing.T, walletID uuid.UUID) {
	t.Helper()
	rec, err := h.wallets.Reconcile(context.Background(), walletID)
	require.NoError(t, err)
	assert.True(t, rec.Consistent, "problems: %+v", rec.Problems)
}

func TestCreateComputesTotals(t *testing.T) {
	h := newHarness(t, wallet.Policy{PlatformFeeBps: 500, PlatformFeeFixedCents: 25})
	vendorID, _ := h.vendor(t, 0)

	order, err := h.svc.Create(context.Background(), CreateOrderInput{
		VendorID:      vendorID,
		CustomerName:  "Dana Reyes",
		CustomerEmail: "dana@example.com",
		Items: []CreateOrderItem{
			{ProductName: "Mug", UnitPriceCents: 1500, CostPriceCents: 600, ShippingCostCents: 200, Quantity: 2},
			{ProductName: "Kettle", UnitPriceCents: 4000, CostPriceCents: 2100, Quantity: 1},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, enums.OrderStatusPendingPayment, order.Status)
	assert.Equal(t, "VI-TEST-000001", order.OrderNumber)
	assert.Equal(t, int64(7000), order.SubtotalCents)
	assert.Equal(t, int64(400), order.ShippingTotalCents)
	assert.Equal(t, int64(3700), order.SupplierCostCents)
	assert.Equal(t, int64(375), order.PlatformFeeCents)
	assert.Len(t, order.Items, 2)
	assert.Equal(t, int64(1), h.events(t, order.ID, enums.EventOrderCreated))
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	h := newHarness(t, wallet.Policy{})
	vendorID, _ := h.vendor(t, 0)

	_, err := h.svc.Create(context.Background(), CreateOrderInput{VendorID: vendorID, CustomerName: "A", CustomerEmail: "a@example.com"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = h.svc.Create(context.Background(), CreateOrderInput{
		VendorID:      vendorID,
		CustomerName:  "A",
		CustomerEmail: "a@example.com",
		Items:         []CreateOrderItem{{ProductName: "Free sample", Quantity: 1}},
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestCreateRequiresVendorOwnedStore(t *testing.T) {
	h := newHarness(t, wallet.Policy{})
	ctx := context.Background()
	vendorID, _ := h.vendor(t, 0)
	own, err := h.stores.Create(ctx, vendorID, stores.CreateStoreInput{Name: "Leaf Room"})
	require.NoError(t, err)
	foreign, err := h.stores.Create(ctx, uuid.New(), stores.CreateStoreInput{Name: "Elsewhere"})
	require.NoError(t, err)
	missing := uuid.New()

	input := func(storeID *uuid.UUID) CreateOrderInput {
		return CreateOrderInput{
			VendorID:      vendorID,
			StoreID:       storeID,
			CustomerName:  "Dana Reyes",
			CustomerEmail: "dana@example.com",
			Items:         []CreateOrderItem{{ProductName: "Mug", UnitPriceCents: 1500, CostPriceCents: 600, Quantity: 1}},
		}
	}

	for _, storeID := range []*uuid.UUID{&foreign.ID, &missing} {
		_, err := h.svc.Create(ctx, input(storeID))
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "store %s: %v", *storeID, err)
	}

	order, err := h.svc.Create(ctx, input(&own.ID))
	require.NoError(t, err)
	require.NotNil(t, order.StoreID)
	assert.Equal(t, own.ID, *order.StoreID)

	var count int64
	require.NoError(t, h.conn.Model(&models.Order{}).Where("vendor_id = ?", vendorID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestLifecycleSettlesProfitIntoWallet(t *testing.T) {
	h := newHarness(t, wallet.Policy{PlatformFeeFixedCents: 1000})
	ctx := context.Background()
	vendorID, walletID := h.vendor(t, 10000)
	order := h.order(t, vendorID, 4000)

	paid, err := h.svc.MarkPaid(ctx, order.ID, 8000, AdminScope(uuid.New()))
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPendingPayment, paid.From)
	assert.Equal(t, enums.OrderStatusFundsReserved, paid.To)
	assert.False(t, paid.NeedsTopup)
	assert.Equal(t, int64(5000), paid.Order.ReservedAmountCents)

	available, reserved := h.balances(t, walletID)
	assert.Equal(t, int64(5000), available)
	assert.Equal(t, int64(5000), reserved)

	h.advance(t, order.ID, enums.OrderStatusOrderedFromSupplier, enums.OrderStatusShipped, enums.OrderStatusDelivered)

	settled, err := h.svc.SettleOrder(ctx, order.ID, VendorScope(vendorID, uuid.New()))
	require.NoError(t, err)
	require.NotNil(t, settled.ProfitCents)
	assert.Equal(t, int64(3000), *settled.ProfitCents)
	assert.Equal(t, enums.OrderStatusSettled, settled.Order.Status)
	require.NotNil(t, settled.Order.SupplierOrderID)
	assert.Equal(t, "SUP-1001", *settled.Order.SupplierOrderID)
	assert.NotNil(t, settled.Order.SettledAt)

	available, reserved = h.balances(t, walletID)
	assert.Equal(t, int64(8000), available)
	assert.Equal(t, int64(0), reserved)

	// paid, funds_reserved, ordered, shipped, delivered, settled
	assert.Equal(t, int64(6), h.events(t, order.ID, enums.EventOrderStateChanged))
	assert.Equal(t, int64(1), h.events(t, order.ID, enums.EventOrderSettled))
	h.assertConsistent(t, walletID)

	_, err = h.svc.SettleOrder(ctx, order.ID, AdminScope(uuid.New()))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestMarkPaidWithoutFundsWaitsForTopup(t *testing.T) {
	h := newHarness(t, wallet.Policy{PlatformFeeFixedCents: 1000})
	ctx := context.Background()
	vendorID, walletID := h.vendor(t, 1000)
	order := h.order(t, vendorID, 4000)

	res, err := h.svc.MarkPaid(ctx, order.ID, 8000, AdminScope(uuid.New()))
	require.NoError(t, err)
	assert.True(t, res.NeedsTopup)
	assert.Equal(t, enums.OrderStatusNeedsTopup, res.Order.Status)
	assert.Equal(t, int64(4000), res.ShortfallCents)
	assert.Equal(t, int64(1), h.events(t, order.ID, enums.EventOrderNeedsTopup))

	available, reserved := h.balances(t, walletID)
	assert.Equal(t, int64(1000), available)
	assert.Equal(t, int64(0), reserved)

	// Still short: no duplicate needs_topup event.
	retry, err := h.svc.RetryTopup(ctx, vendorID)
	require.NoError(t, err)
	assert.Equal(t, 1, retry.Attempted)
	assert.Equal(t, []uuid.UUID{order.ID}, retry.StillBlocked)
	assert.Equal(t, int64(1), h.events(t, order.ID, enums.EventOrderNeedsTopup))

	h.deposit(t, walletID, 4000)
	retry, err = h.svc.RetryTopup(ctx, vendorID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{order.ID}, retry.Reserved)
	assert.Empty(t, retry.StillBlocked)

	got, err := h.svc.Get(ctx, order.ID, VendorScope(vendorID, uuid.New()))
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusFundsReserved, got.Status)

	available, reserved = h.balances(t, walletID)
	assert.Equal(t, int64(0), available)
	assert.Equal(t, int64(5000), reserved)
	h.assertConsistent(t, walletID)
}

func TestRetryTopupContinuesPastLargeShortfall(t *testing.T) {
	h := newHarness(t, wallet.Policy{})
	ctx := context.Background()
	vendorID, walletID := h.vendor(t, 0)
	large := h.order(t, vendorID, 5000)
	small := h.order(t, vendorID, 2000)

	for _, o := range []*OrderDTO{large, small} {
		res, err := h.svc.MarkPaid(ctx, o.ID, o.SubtotalCents, AdminScope(uuid.New()))
		require.NoError(t, err)
		require.True(t, res.NeedsTopup)
	}

	blocked, err := h.svc.ListBlockedVendors(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{vendorID}, blocked)

	h.deposit(t, walletID, 3000)
	retry, err := h.svc.RetryTopup(ctx, vendorID)
	require.NoError(t, err)
	assert.Equal(t, 2, retry.Attempted)
	assert.Equal(t, []uuid.UUID{large.ID}, retry.StillBlocked)
	assert.Equal(t, []uuid.UUID{small.ID}, retry.Reserved)

	available, reserved := h.balances(t, walletID)
	assert.Equal(t, int64(1000), available)
	assert.Equal(t, int64(2000), reserved)
}

func TestCancelReturnsReservation(t *testing.T) {
	h := newHarness(t, wallet.Policy{PlatformFeeFixedCents: 1000})
	ctx := context.Background()
	vendorID, walletID := h.vendor(t, 10000)
	order := h.order(t, vendorID, 4000)

	_, err := h.svc.MarkPaid(ctx, order.ID, 8000, AdminScope(uuid.New()))
	require.NoError(t, err)
	h.advance(t, order.ID, enums.OrderStatusOrderedFromSupplier)

	res, err := h.svc.CancelOrder(ctx, order.ID, VendorScope(vendorID, uuid.New()), "supplier out of stock")
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusOrderedFromSupplier, res.From)
	assert.Equal(t, enums.OrderStatusCancelled, res.Order.Status)
	require.NotNil(t, res.Order.Notes)
	assert.Contains(t, *res.Order.Notes, "cancelled: supplier out of stock")

	available, reserved := h.balances(t, walletID)
	assert.Equal(t, int64(10000), available)
	assert.Equal(t, int64(0), reserved)
	h.assertConsistent(t, walletID)

	_, err = h.svc.CancelOrder(ctx, order.ID, AdminScope(uuid.New()), "")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestRefundBeforeSettlementReturnsReservation(t *testing.T) {
	h := newHarness(t, wallet.Policy{PlatformFeeFixedCents: 1000})
	ctx := context.Background()
	vendorID, walletID := h.vendor(t, 10000)
	order := h.order(t, vendorID, 4000)

	_, err := h.svc.MarkPaid(ctx, order.ID, 8000, AdminScope(uuid.New()))
	require.NoError(t, err)

	res, err := h.svc.RefundOrder(ctx, order.ID, 0, AdminScope(uuid.New()), "customer request")
	require.NoError(t, err)
	assert.False(t, res.RefundQueued)
	assert.Equal(t, enums.OrderStatusRefunded, res.Order.Status)
	assert.Equal(t, int64(8000), res.Order.RefundedTotalCents)

	available, reserved := h.balances(t, walletID)
	assert.Equal(t, int64(10000), available)
	assert.Equal(t, int64(0), reserved)
	assert.Equal(t, int64(1), h.events(t, order.ID, enums.EventOrderRefunded))

	_, err = h.svc.RefundOrder(ctx, order.ID, 0, AdminScope(uuid.New()), "")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestRefundAfterSettlementQueuesUntilTopup(t *testing.T) {
	h := newHarness(t, wallet.Policy{PlatformFeeFixedCents: 1000})
	ctx := context.Background()
	vendorID, walletID := h.vendor(t, 5000)
	order := h.order(t, vendorID, 4000)

	_, err := h.svc.MarkPaid(ctx, order.ID, 8000, AdminScope(uuid.New()))
	require.NoError(t, err)
	h.advance(t, order.ID,
		enums.OrderStatusOrderedFromSupplier,
		enums.OrderStatusShipped,
		enums.OrderStatusDelivered,
		enums.OrderStatusSettled,
	)
	available, _ := h.balances(t, walletID)
	require.Equal(t, int64(3000), available)

	res, err := h.svc.RefundOrder(ctx, order.ID, 0, AdminScope(uuid.New()), "")
	require.NoError(t, err)
	assert.True(t, res.RefundQueued)
	assert.Equal(t, enums.OrderStatusSettled, res.Order.Status)
	assert.True(t, res.Order.RefundPending)
	assert.Equal(t, int64(8000), res.Order.RefundAmountCents)
	assert.Equal(t, int64(1), h.events(t, order.ID, enums.EventRefundQueued))

	_, err = h.svc.RefundOrder(ctx, order.ID, 0, AdminScope(uuid.New()), "")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	h.deposit(t, walletID, 5000)
	retry, err := h.svc.RetryTopup(ctx, vendorID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{order.ID}, retry.RefundsApplied)

	got, err := h.svc.Get(ctx, order.ID, AdminScope(uuid.New()))
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusRefunded, got.Status)
	assert.False(t, got.RefundPending)
	assert.Equal(t, int64(8000), got.RefundedTotalCents)

	available, reserved := h.balances(t, walletID)
	assert.Equal(t, int64(0), available)
	assert.Equal(t, int64(0), reserved)
	h.assertConsistent(t, walletID)
}

func TestRefundRejectsAmountAbovePaid(t *testing.T) {
	h := newHarness(t, wallet.Policy{})
	ctx := context.Background()
	vendorID, _ := h.vendor(t, 10000)
	order := h.order(t, vendorID, 4000)

	_, err := h.svc.MarkPaid(ctx, order.ID, 8000, AdminScope(uuid.New()))
	require.NoError(t, err)

	_, err = h.svc.RefundOrder(ctx, order.ID, 9000, AdminScope(uuid.New()), "")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestTransitionGuards(t *testing.T) {
	h := newHarness(t, wallet.Policy{})
	ctx := context.Background()
	vendorID, _ := h.vendor(t, 10000)
	order := h.order(t, vendorID, 4000)

	_, err := h.svc.TransitionOrder(ctx, TransitionInput{OrderID: order.ID, Target: enums.OrderStatusShipped, Scope: AdminScope(uuid.New())})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	_, err = h.svc.TransitionOrder(ctx, TransitionInput{OrderID: order.ID, Target: enums.OrderStatusNeedsTopup, Scope: AdminScope(uuid.New())})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	_, err = h.svc.MarkPaid(ctx, order.ID, 8000, AdminScope(uuid.New()))
	require.NoError(t, err)

	_, err = h.svc.TransitionOrder(ctx, TransitionInput{OrderID: order.ID, Target: enums.OrderStatusOrderedFromSupplier, Scope: AdminScope(uuid.New())})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = h.svc.SettleOrder(ctx, order.ID, AdminScope(uuid.New()))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	got, err := h.svc.Get(ctx, order.ID, AdminScope(uuid.New()))
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusFundsReserved, got.Status)
}

func TestVendorScopeHidesOtherVendorsOrders(t *testing.T) {
	h := newHarness(t, wallet.Policy{})
	ctx := context.Background()
	vendorID, _ := h.vendor(t, 10000)
	order := h.order(t, vendorID, 4000)
	stranger := VendorScope(uuid.New(), uuid.New())

	_, err := h.svc.Get(ctx, order.ID, stranger)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = h.svc.CancelOrder(ctx, order.ID, stranger, "not mine")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	got, err := h.svc.Get(ctx, order.ID, AdminScope(uuid.New()))
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPendingPayment, got.Status)
}

func TestVendorCannotConfirmOwnPayment(t *testing.T) {
	h := newHarness(t, wallet.Policy{PlatformFeeFixedCents: 1000})
	ctx := context.Background()
	vendorID, walletID := h.vendor(t, 10000)
	order := h.order(t, vendorID, 4000)
	owner := VendorScope(vendorID, uuid.New())

	_, err := h.svc.TransitionOrder(ctx, TransitionInput{
		OrderID:        order.ID,
		Target:         enums.OrderStatusPaid,
		TotalPaidCents: 100000000,
		Scope:          owner,
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	_, err = h.svc.MarkPaid(ctx, order.ID, 100000000, owner)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	got, err := h.svc.Get(ctx, order.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPendingPayment, got.Status)
	assert.Equal(t, int64(0), got.TotalPaidCents)
	assert.Equal(t, int64(1000), got.PlatformFeeCents)

	available, reserved := h.balances(t, walletID)
	assert.Equal(t, int64(10000), available)
	assert.Equal(t, int64(0), reserved)
	assert.Equal(t, int64(0), h.events(t, order.ID, enums.EventOrderStateChanged))
}

func TestListPagesNewestFirst(t *testing.T) {
	h := newHarness(t, wallet.Policy{})
	ctx := context.Background()
	vendorID, _ := h.vendor(t, 0)
	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		ids = append(ids, h.order(t, vendorID, 1000).ID)
	}
	h.order(t, uuid.New(), 1000)

	page, err := h.svc.List(ctx, vendorID, pagination.Params{Limit: 2}, ListFilters{})
	require.NoError(t, err)
	require.Len(t, page.Orders, 2)
	assert.Equal(t, ids[2], page.Orders[0].ID)
	assert.Equal(t, ids[1], page.Orders[1].ID)
	require.NotEmpty(t, page.NextCursor)

	next, err := h.svc.List(ctx, vendorID, pagination.Params{Limit: 2, Cursor: page.NextCursor}, ListFilters{})
	require.NoError(t, err)
	require.Len(t, next.Orders, 1)
	assert.Equal(t, ids[0], next.Orders[0].ID)
	assert.Empty(t, next.NextCursor)

	status := enums.OrderStatusPaid
	filtered, err := h.svc.List(ctx, vendorID, pagination.Params{}, ListFilters{Status: &status})
	require.NoError(t, err)
	assert.Empty(t, filtered.Orders)
}
