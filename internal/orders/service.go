package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/vendorisland/vendorisland-backend/internal/stores"
	"github.com/vendorisland/vendorisland-backend/internal/wallet"
	"github.com/vendorisland/vendorisland-backend/pkg/db"
	"github.com/vendorisland/vendorisland-backend/pkg/db/models"
	"github.com/vendorisland/vendorisland-backend/pkg/enums"
	pkgerrors "github.com/vendorisland/vendorisland-backend/pkg/errors"
	"github.com/vendorisland/vendorisland-backend/pkg/logger"
	"github.com/vendorisland/vendorisland-backend/pkg/outbox"
	"github.com/vendorisland/vendorisland-backend/pkg/outbox/payloads"
	"github.com/vendorisland/vendorisland-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// walletLedger is the slice of the wallet service the state machine drives.
type walletLedger interface {
	Policy() wallet.Policy
	Provision(ctx context.Context, vendorID uuid.UUID, currency string) (*wallet.WalletDTO, error)
	GetByVendor(ctx context.Context, vendorID uuid.UUID) (*wallet.WalletDTO, error)
	WithWalletLock(ctx context.Context, walletID uuid.UUID, fn func(ctx context.Context) error) error
	ReserveTx(ctx context.Context, tx *gorm.DB, walletID, orderID uuid.UUID, amountCents int64) (*wallet.ReserveResult, error)
	ReleaseTx(ctx context.Context, tx *gorm.DB, input wallet.ReleaseInput) (*models.WalletTransaction, error)
	SettleTx(ctx context.Context, tx *gorm.DB, input wallet.SettleInput) (*wallet.SettleResult, error)
	RefundTx(ctx context.Context, tx *gorm.DB, input wallet.RefundInput) (*wallet.RefundResult, error)
}

type storeLoader interface {
	GetByID(ctx context.Context, vendorID, storeID uuid.UUID) (*stores.StoreDTO, error)
}

// Service drives orders through the settlement state machine. Every
// transition commits together with its ledger entries and outbox events.
type Service interface {
	Create(ctx context.Context, input CreateOrderInput) (*OrderDTO, error)
	MarkPaid(ctx context.Context, orderID uuid.UUID, totalPaidCents int64, scope Scope) (*TransitionResult, error)
	TransitionOrder(ctx context.Context, input TransitionInput) (*TransitionResult, error)
	SettleOrder(ctx context.Context, orderID uuid.UUID, scope Scope) (*TransitionResult, error)
	CancelOrder(ctx context.Context, orderID uuid.UUID, scope Scope, reason string) (*TransitionResult, error)
	RefundOrder(ctx context.Context, orderID uuid.UUID, amountCents int64, scope Scope, reason string) (*TransitionResult, error)
	RetryTopup(ctx context.Context, vendorID uuid.UUID) (*TopupRetryResult, error)
	Get(ctx context.Context, orderID uuid.UUID, scope Scope) (*OrderDTO, error)
	List(ctx context.Context, vendorID uuid.UUID, params pagination.Params, filters ListFilters) (*OrderList, error)
	ListBlockedVendors(ctx context.Context) ([]uuid.UUID, error)
}

type service struct {
	repo    Repository
	tx      txRunner
	outbox  outbox.Emitter
	wallets walletLedger
	stores  storeLoader
	numbers NumberGenerator
	retry   db.RetryPolicy
	logg    *logger.Logger
	now     func() time.Time
}

// Option customizes optional collaborators.
type Option func(*service)

func WithLogger(l *logger.Logger) Option {
	return func(s *service) { s.logg = l }
}

func WithRetryPolicy(p db.RetryPolicy) Option {
	return func(s *service) { s.retry = p }
}

func WithClock(now func() time.Time) Option {
	return func(s *service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService wires the order state machine.
func NewService(repo Repository, tx txRunner, emitter outbox.Emitter, wallets walletLedger, storeDir storeLoader, numbers NumberGenerator, opts ...Option) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if wallets == nil {
		return nil, fmt.Errorf("wallet ledger required")
	}
	if storeDir == nil {
		return nil, fmt.Errorf("store loader required")
	}
	if numbers == nil {
		return nil, fmt.Errorf("order number generator required")
	}
	s := &service{
		repo:    repo,
		tx:      tx,
		outbox:  emitter,
		wallets: wallets,
		stores:  storeDir,
		numbers: numbers,
		retry:   db.RetryPolicy{MaxAttempts: 3, BaseDelay: 50 * time.Millisecond},
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *service) Create(ctx context.Context, input CreateOrderInput) (*OrderDTO, error) {
	if err := validateCreate(input); err != nil {
		return nil, err
	}
	if err := s.ensureStore(ctx, input.VendorID, input.StoreID); err != nil {
		return nil, err
	}
	if _, err := s.wallets.Provision(ctx, input.VendorID, ""); err != nil {
		return nil, err
	}
	number, err := s.numbers.Next(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "allocate order number")
	}

	now := s.now()
	order := &models.Order{
		ID:              uuid.New(),
		OrderNumber:     number,
		VendorID:        input.VendorID,
		StoreID:         input.StoreID,
		Status:          enums.OrderStatusPendingPayment,
		CustomerName:    strings.TrimSpace(input.CustomerName),
		CustomerEmail:   strings.TrimSpace(input.CustomerEmail),
		ShippingAddress: input.ShippingAddress,
		Notes:           input.Notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	for _, item := range input.Items {
		qty := int64(item.Quantity)
		order.SubtotalCents += item.UnitPriceCents * qty
		order.ShippingTotalCents += item.ShippingCostCents * qty
		order.SupplierCostCents += (item.CostPriceCents + item.ShippingCostCents) * qty
		order.Items = append(order.Items, models.OrderItem{
			ID:                uuid.New(),
			CatalogProductID:  item.CatalogProductID,
			ProductName:       strings.TrimSpace(item.ProductName),
			UnitPriceCents:    item.UnitPriceCents,
			CostPriceCents:    item.CostPriceCents,
			ShippingCostCents: item.ShippingCostCents,
			Quantity:          item.Quantity,
			VariantInfo:       item.VariantInfo,
			CreatedAt:         now,
		})
	}
	if order.SupplierCostCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order supplier cost must be positive")
	}
	order.PlatformFeeCents = s.wallets.Policy().PlatformFeeCents(order.SubtotalCents)

	err = db.Retry(ctx, s.retry, func(ctx context.Context) error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			if err := s.repo.WithTx(tx).Create(ctx, order); err != nil {
				return db.Classify(err, "create order")
			}
			return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventOrderCreated,
				AggregateType: enums.AggregateOrder,
				AggregateID:   order.ID,
				OccurredAt:    now,
				Data: payloads.OrderCreatedEvent{
					OrderID:           order.ID,
					OrderNumber:       order.OrderNumber,
					VendorID:          order.VendorID,
					SubtotalCents:     order.SubtotalCents,
					SupplierCostCents: order.SupplierCostCents,
					ItemCount:         len(order.Items),
				},
			})
		})
	})
	if err != nil {
		return nil, err
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithOrder(ctx, order.ID.String(), ""), "order created")
	}
	return toOrderDTO(order), nil
}

// MarkPaid records payment and immediately attempts the reservation, so a
// paid order leaves the call either funds_reserved or needs_topup. Payment is
// confirmed by the platform, never by the vendor who receives the profit.
func (s *service) MarkPaid(ctx context.Context, orderID uuid.UUID, totalPaidCents int64, scope Scope) (*TransitionResult, error) {
	if !scope.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "payment can only be confirmed by the platform")
	}
	if totalPaidCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "total paid must be positive")
	}
	return s.apply(ctx, orderID, scope, func(ctx context.Context, tx *gorm.DB, order *models.Order, walletID uuid.UUID) (*TransitionResult, error) {
		from := order.Status
		now := s.now()
		if err := s.moveTo(ctx, tx, order, enums.OrderStatusPaid, scope, map[string]any{
			"total_paid_cents": totalPaidCents,
			"paid_at":          now,
		}); err != nil {
			return nil, err
		}
		order.TotalPaidCents = totalPaidCents
		result, err := s.reserve(ctx, tx, order, walletID, scope)
		if err != nil {
			return nil, err
		}
		result.From = from
		return result, nil
	})
}

func (s *service) TransitionOrder(ctx context.Context, input TransitionInput) (*TransitionResult, error) {
	switch input.Target {
	case enums.OrderStatusPaid:
		return s.MarkPaid(ctx, input.OrderID, input.TotalPaidCents, input.Scope)
	case enums.OrderStatusSettled:
		return s.SettleOrder(ctx, input.OrderID, input.Scope)
	case enums.OrderStatusCancelled:
		return s.CancelOrder(ctx, input.OrderID, input.Scope, input.Reason)
	case enums.OrderStatusRefunded:
		return s.RefundOrder(ctx, input.OrderID, input.RefundCents, input.Scope, input.Reason)
	case enums.OrderStatusNeedsTopup:
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "needs_topup is only reached through a failed reservation")
	case enums.OrderStatusFundsReserved:
		return s.apply(ctx, input.OrderID, input.Scope, func(ctx context.Context, tx *gorm.DB, order *models.Order, walletID uuid.UUID) (*TransitionResult, error) {
			if err := ValidateTransition(order.Status, enums.OrderStatusFundsReserved); err != nil {
				return nil, err
			}
			return s.reserve(ctx, tx, order, walletID, input.Scope)
		})
	case enums.OrderStatusOrderedFromSupplier:
		supplierOrderID := strings.TrimSpace(input.SupplierOrderID)
		if supplierOrderID == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "supplier order id required")
		}
		return s.simple(ctx, input, map[string]any{"supplier_order_id": supplierOrderID})
	case enums.OrderStatusShipped:
		updates := map[string]any{"shipped_at": s.now()}
		if v := strings.TrimSpace(input.TrackingNumber); v != "" {
			updates["tracking_number"] = v
		}
		if v := strings.TrimSpace(input.TrackingURL); v != "" {
			updates["tracking_url"] = v
		}
		return s.simple(ctx, input, updates)
	case enums.OrderStatusDelivered:
		return s.simple(ctx, input, map[string]any{"delivered_at": s.now()})
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid target status")
	}
}

// simple applies a transition with no wallet effect.
func (s *service) simple(ctx context.Context, input TransitionInput, updates map[string]any) (*TransitionResult, error) {
	return s.apply(ctx, input.OrderID, input.Scope, func(ctx context.Context, tx *gorm.DB, order *models.Order, _ uuid.UUID) (*TransitionResult, error) {
		from := order.Status
		if err := s.moveTo(ctx, tx, order, input.Target, input.Scope, updates); err != nil {
			return nil, err
		}
		return &TransitionResult{From: from, To: input.Target}, nil
	})
}

func (s *service) SettleOrder(ctx context.Context, orderID uuid.UUID, scope Scope) (*TransitionResult, error) {
	return s.apply(ctx, orderID, scope, func(ctx context.Context, tx *gorm.DB, order *models.Order, walletID uuid.UUID) (*TransitionResult, error) {
		if err := ValidateTransition(order.Status, enums.OrderStatusSettled); err != nil {
			return nil, err
		}
		settled, err := s.wallets.SettleTx(ctx, tx, wallet.SettleInput{
			WalletID:          walletID,
			OrderID:           order.ID,
			TotalPaidCents:    order.TotalPaidCents,
			SupplierCostCents: order.SupplierCostCents,
			PlatformFeeCents:  order.PlatformFeeCents,
		})
		if err != nil {
			return nil, err
		}
		now := s.now()
		profit := settled.ProfitCents
		if err := s.moveTo(ctx, tx, order, enums.OrderStatusSettled, scope, map[string]any{
			"profit_cents": profit,
			"settled_at":   now,
		}); err != nil {
			return nil, err
		}
		if err := s.emit(ctx, tx, order, enums.EventOrderSettled, scope, payloads.OrderSettledEvent{
			OrderID:           order.ID,
			VendorID:          order.VendorID,
			WalletID:          walletID,
			TotalPaidCents:    order.TotalPaidCents,
			SupplierCostCents: order.SupplierCostCents,
			PlatformFeeCents:  order.PlatformFeeCents,
			ProfitCents:       profit,
			SettledAt:         now,
		}); err != nil {
			return nil, err
		}
		return &TransitionResult{From: enums.OrderStatusDelivered, To: enums.OrderStatusSettled, ProfitCents: &profit}, nil
	})
}

// CancelOrder closes a non-settled order, returning any reservation to the
// vendor's available balance first.
func (s *service) CancelOrder(ctx context.Context, orderID uuid.UUID, scope Scope, reason string) (*TransitionResult, error) {
	return s.apply(ctx, orderID, scope, func(ctx context.Context, tx *gorm.DB, order *models.Order, walletID uuid.UUID) (*TransitionResult, error) {
		from := order.Status
		if err := ValidateTransition(from, enums.OrderStatusCancelled); err != nil {
			return nil, err
		}
		if from.HoldsReservation() {
			if _, err := s.wallets.ReleaseTx(ctx, tx, wallet.ReleaseInput{
				WalletID:    walletID,
				OrderID:     order.ID,
				AmountCents: order.ReservedAmountCents,
				Mode:        wallet.ReleaseToAvailable,
				Description: "reservation released on cancellation",
			}); err != nil {
				return nil, err
			}
		}
		updates := map[string]any{"cancelled_at": s.now()}
		if note := appendNote(order.Notes, "cancelled", reason); note != nil {
			updates["notes"] = *note
		}
		if err := s.moveTo(ctx, tx, order, enums.OrderStatusCancelled, scope, updates); err != nil {
			return nil, err
		}
		return &TransitionResult{From: from, To: enums.OrderStatusCancelled}, nil
	})
}

// RefundOrder reverses the order's wallet effects. A refund of a settled
// order that the wallet cannot cover is queued and the order stays settled
// with refund_pending set until RetryTopup applies it.
func (s *service) RefundOrder(ctx context.Context, orderID uuid.UUID, amountCents int64, scope Scope, reason string) (*TransitionResult, error) {
	if amountCents < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund amount cannot be negative")
	}
	return s.apply(ctx, orderID, scope, func(ctx context.Context, tx *gorm.DB, order *models.Order, walletID uuid.UUID) (*TransitionResult, error) {
		from := order.Status
		if err := ValidateTransition(from, enums.OrderStatusRefunded); err != nil {
			return nil, err
		}
		if order.RefundPending {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "refund already queued")
		}
		amount := amountCents
		if amount == 0 {
			amount = order.TotalPaidCents
		}
		if amount > order.TotalPaidCents {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund exceeds amount paid")
		}

		refund, err := s.wallets.RefundTx(ctx, tx, wallet.RefundInput{
			WalletID:    walletID,
			OrderID:     order.ID,
			AmountCents: amount,
		})
		if err != nil {
			return nil, err
		}
		event := payloads.OrderRefundedEvent{OrderID: order.ID, VendorID: order.VendorID, AmountCents: amount}
		if refund.Queued {
			if err := s.repo.WithTx(tx).Update(ctx, order.ID, map[string]any{
				"refund_pending":      true,
				"refund_amount_cents": amount,
			}); err != nil {
				return nil, db.Classify(err, "queue refund")
			}
			event.Queued = true
			if err := s.emit(ctx, tx, order, enums.EventRefundQueued, scope, event); err != nil {
				return nil, err
			}
			return &TransitionResult{From: from, To: from, RefundQueued: true}, nil
		}

		updates := map[string]any{
			"refunded_at":          s.now(),
			"refunded_total_cents": order.RefundedTotalCents + amount,
		}
		if note := appendNote(order.Notes, "refunded", reason); note != nil {
			updates["notes"] = *note
		}
		if err := s.moveTo(ctx, tx, order, enums.OrderStatusRefunded, scope, updates); err != nil {
			return nil, err
		}
		if err := s.emit(ctx, tx, order, enums.EventOrderRefunded, scope, event); err != nil {
			return nil, err
		}
		return &TransitionResult{From: from, To: enums.OrderStatusRefunded}, nil
	})
}

// RetryTopup re-attempts every blocked order of the vendor, oldest first.
// A still-short order does not stop later, smaller ones from reserving.
func (s *service) RetryTopup(ctx context.Context, vendorID uuid.UUID) (*TopupRetryResult, error) {
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id required")
	}
	blocked, err := s.repo.ListBlocked(ctx, vendorID)
	if err != nil {
		return nil, db.Classify(err, "list blocked orders")
	}

	system := Scope{Role: enums.RoleAdmin}
	result := &TopupRetryResult{VendorID: vendorID}
	var errs error
	for _, candidate := range blocked {
		result.Attempted++
		if candidate.RefundPending {
			applied, err := s.retryRefund(ctx, candidate.ID, system)
			switch {
			case err != nil:
				errs = multierr.Append(errs, fmt.Errorf("refund for order %s: %w", candidate.ID, err))
			case applied:
				result.RefundsApplied = append(result.RefundsApplied, candidate.ID)
			default:
				result.StillBlocked = append(result.StillBlocked, candidate.ID)
			}
			continue
		}

		res, err := s.apply(ctx, candidate.ID, system, func(ctx context.Context, tx *gorm.DB, order *models.Order, walletID uuid.UUID) (*TransitionResult, error) {
			if order.Status != enums.OrderStatusNeedsTopup {
				return &TransitionResult{From: order.Status, To: order.Status}, nil
			}
			return s.reserve(ctx, tx, order, walletID, system)
		})
		switch {
		case err != nil:
			errs = multierr.Append(errs, fmt.Errorf("reserve for order %s: %w", candidate.ID, err))
		case res.NeedsTopup:
			result.StillBlocked = append(result.StillBlocked, candidate.ID)
		case res.To == enums.OrderStatusFundsReserved:
			result.Reserved = append(result.Reserved, candidate.ID)
		}
	}
	if s.logg != nil && result.Attempted > 0 {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"vendor_id":       vendorID.String(),
			"attempted":       result.Attempted,
			"reserved":        len(result.Reserved),
			"refunds_applied": len(result.RefundsApplied),
			"still_blocked":   len(result.StillBlocked),
		})
		s.logg.Info(logCtx, "topup retry pass complete")
	}
	return result, errs
}

func (s *service) retryRefund(ctx context.Context, orderID uuid.UUID, scope Scope) (bool, error) {
	applied := false
	_, err := s.apply(ctx, orderID, scope, func(ctx context.Context, tx *gorm.DB, order *models.Order, walletID uuid.UUID) (*TransitionResult, error) {
		applied = false
		if !order.RefundPending {
			return &TransitionResult{From: order.Status, To: order.Status}, nil
		}
		refund, err := s.wallets.RefundTx(ctx, tx, wallet.RefundInput{
			WalletID:    walletID,
			OrderID:     order.ID,
			AmountCents: order.RefundAmountCents,
		})
		if err != nil {
			return nil, err
		}
		if refund.Queued {
			return &TransitionResult{From: order.Status, To: order.Status, RefundQueued: true}, nil
		}
		from := order.Status
		amount := order.RefundAmountCents
		if err := s.moveTo(ctx, tx, order, enums.OrderStatusRefunded, scope, map[string]any{
			"refund_pending":       false,
			"refund_amount_cents":  int64(0),
			"refunded_total_cents": order.RefundedTotalCents + amount,
			"refunded_at":          s.now(),
		}); err != nil {
			return nil, err
		}
		if err := s.emit(ctx, tx, order, enums.EventOrderRefunded, scope, payloads.OrderRefundedEvent{
			OrderID:     order.ID,
			VendorID:    order.VendorID,
			AmountCents: amount,
		}); err != nil {
			return nil, err
		}
		applied = true
		return &TransitionResult{From: from, To: enums.OrderStatusRefunded}, nil
	})
	return applied, err
}

func (s *service) Get(ctx context.Context, orderID uuid.UUID, scope Scope) (*OrderDTO, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, orderLookupError(err)
	}
	if err := authorize(order, scope); err != nil {
		return nil, err
	}
	return toOrderDTO(order), nil
}

func (s *service) List(ctx context.Context, vendorID uuid.UUID, params pagination.Params, filters ListFilters) (*OrderList, error) {
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id required")
	}
	if filters.Status != nil && !filters.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status filter")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	limit := pagination.NormalizeLimit(params.Limit)
	rows, err := s.repo.List(ctx, vendorID, cursor, pagination.LimitWithBuffer(params.Limit), filters)
	if err != nil {
		return nil, db.Classify(err, "list orders")
	}
	rows, next := pagination.Trim(rows, limit, func(o *models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	})
	list := &OrderList{Orders: make([]OrderSummary, 0, len(rows)), NextCursor: next}
	for _, row := range rows {
		list.Orders = append(list.Orders, toOrderSummary(row))
	}
	return list, nil
}

func (s *service) ListBlockedVendors(ctx context.Context) ([]uuid.UUID, error) {
	ids, err := s.repo.ListBlockedVendors(ctx)
	if err != nil {
		return nil, db.Classify(err, "list blocked vendors")
	}
	return ids, nil
}

type step func(ctx context.Context, tx *gorm.DB, order *models.Order, walletID uuid.UUID) (*TransitionResult, error)

// apply runs fn under the vendor wallet's lock inside one transaction with
// the order row locked. Transient failures retry the whole unit, so the
// order never moves without its ledger entries.
func (s *service) apply(ctx context.Context, orderID uuid.UUID, scope Scope, fn step) (*TransitionResult, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, orderLookupError(err)
	}
	if err := authorize(order, scope); err != nil {
		return nil, err
	}
	vendorWallet, err := s.wallets.GetByVendor(ctx, order.VendorID)
	if err != nil {
		return nil, err
	}

	var result *TransitionResult
	err = s.wallets.WithWalletLock(ctx, vendorWallet.ID, func(ctx context.Context) error {
		return db.Retry(ctx, s.retry, func(ctx context.Context) error {
			return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
				locked, err := s.repo.WithTx(tx).LockByID(ctx, orderID)
				if err != nil {
					return orderLookupError(err)
				}
				result, err = fn(ctx, tx, locked, vendorWallet.ID)
				return err
			})
		})
	})
	if err != nil {
		if s.logg != nil && pkgerrors.IsCode(err, pkgerrors.CodeInvariant) {
			s.logg.Error(s.logg.WithOrder(ctx, orderID.String(), vendorWallet.ID.String()), "order ledger invariant violated", err)
		}
		return nil, err
	}

	fresh, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, orderLookupError(err)
	}
	result.Order = toOrderDTO(fresh)
	return result, nil
}

// reserve attempts the order's reservation. Insufficient funds park the
// order in needs_topup; the needs_topup event fires only on entry.
func (s *service) reserve(ctx context.Context, tx *gorm.DB, order *models.Order, walletID uuid.UUID, scope Scope) (*TransitionResult, error) {
	from := order.Status
	amount := s.wallets.Policy().ReservationCents(order.SupplierCostCents, order.PlatformFeeCents)
	res, err := s.wallets.ReserveTx(ctx, tx, walletID, order.ID, amount)
	if err != nil {
		return nil, err
	}
	if res.NeedsTopup {
		result := &TransitionResult{
			From:           from,
			To:             enums.OrderStatusNeedsTopup,
			NeedsTopup:     true,
			ShortfallCents: res.ShortfallCents,
		}
		if from == enums.OrderStatusNeedsTopup {
			return result, nil
		}
		if err := s.moveTo(ctx, tx, order, enums.OrderStatusNeedsTopup, scope, map[string]any{}); err != nil {
			return nil, err
		}
		if err := s.emit(ctx, tx, order, enums.EventOrderNeedsTopup, scope, payloads.OrderNeedsTopupEvent{
			OrderID:        order.ID,
			VendorID:       order.VendorID,
			WalletID:       walletID,
			RequiredCents:  res.RequiredCents,
			AvailableCents: res.AvailableCents,
			ShortfallCents: res.ShortfallCents,
		}); err != nil {
			return nil, err
		}
		return result, nil
	}
	if err := s.moveTo(ctx, tx, order, enums.OrderStatusFundsReserved, scope, map[string]any{
		"reserved_amount_cents": amount,
		"funds_reserved_at":     s.now(),
	}); err != nil {
		return nil, err
	}
	order.ReservedAmountCents = amount
	return &TransitionResult{From: from, To: enums.OrderStatusFundsReserved}, nil
}

// moveTo validates and persists one edge of the state machine and records it
// in the outbox.
func (s *service) moveTo(ctx context.Context, tx *gorm.DB, order *models.Order, to enums.OrderStatus, scope Scope, updates map[string]any) error {
	from := order.Status
	if err := ValidateTransition(from, to); err != nil {
		return err
	}
	updates["status"] = to
	if err := s.repo.WithTx(tx).Update(ctx, order.ID, updates); err != nil {
		return db.Classify(err, "update order status")
	}
	order.Status = to
	changedAt := s.now()
	if err := s.emit(ctx, tx, order, enums.EventOrderStateChanged, scope, payloads.OrderStateChangedEvent{
		OrderID:    order.ID,
		VendorID:   order.VendorID,
		FromStatus: from,
		ToStatus:   to,
		ChangedAt:  changedAt,
	}); err != nil {
		return err
	}
	if s.logg != nil {
		logCtx := s.logg.WithOrder(ctx, order.ID.String(), "")
		logCtx = s.logg.WithFields(logCtx, map[string]any{"from": from, "to": to})
		s.logg.Info(logCtx, "order transitioned")
	}
	return nil
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, order *models.Order, eventType enums.OutboxEventType, scope Scope, data any) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         actorRef(scope),
		Data:          data,
		OccurredAt:    s.now(),
	})
}

func actorRef(scope Scope) *outbox.ActorRef {
	if scope.UserID == uuid.Nil && scope.VendorID == nil {
		return nil
	}
	return &outbox.ActorRef{UserID: scope.UserID, VendorID: scope.VendorID, Role: string(scope.Role)}
}

// authorize hides other vendors' orders behind not found.
func authorize(order *models.Order, scope Scope) error {
	if scope.VendorID == nil || *scope.VendorID == order.VendorID {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
}

func orderLookupError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "order not found")
	}
	return db.Classify(err, "load order")
}

// ensureStore rejects a store the vendor does not own.
func (s *service) ensureStore(ctx context.Context, vendorID uuid.UUID, storeID *uuid.UUID) error {
	if storeID == nil {
		return nil
	}
	if _, err := s.stores.GetByID(ctx, vendorID, *storeID); err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return pkgerrors.New(pkgerrors.CodeValidation, "store not found for vendor").
				WithDetails(map[string]any{"field": "store_id"})
		}
		return err
	}
	return nil
}

func validateCreate(input CreateOrderInput) error {
	switch {
	case input.VendorID == uuid.Nil:
		return pkgerrors.New(pkgerrors.CodeValidation, "vendor id required")
	case strings.TrimSpace(input.CustomerName) == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "customer name required")
	case strings.TrimSpace(input.CustomerEmail) == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "customer email required")
	case len(input.Items) == 0:
		return pkgerrors.New(pkgerrors.CodeValidation, "order requires at least one item")
	}
	for i, item := range input.Items {
		if strings.TrimSpace(item.ProductName) == "" || item.Quantity <= 0 ||
			item.UnitPriceCents < 0 || item.CostPriceCents < 0 || item.ShippingCostCents < 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "invalid order item").WithDetails(map[string]any{"index": i})
		}
	}
	return nil
}

func appendNote(existing *string, label, reason string) *string {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil
	}
	note := label + ": " + reason
	if existing != nil && *existing != "" {
		note = *existing + "\n" + note
	}
	return &note
}
