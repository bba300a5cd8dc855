package wallet

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/vendorisland/vendorisland-backend/pkg/config"
	"github.com/vendorisland/vendorisland-backend/pkg/db"
	"github.com/vendorisland/vendorisland-backend/pkg/db/models"
	"github.com/vendorisland/vendorisland-backend/pkg/enums"
	pkgerrors "github.com/vendorisland/vendorisland-backend/pkg/errors"
	"github.com/vendorisland/vendorisland-backend/pkg/logger"
	"github.com/vendorisland/vendorisland-backend/pkg/metrics"
	"github.com/vendorisland/vendorisland-backend/pkg/outbox"
	"github.com/vendorisland/vendorisland-backend/pkg/outbox/payloads"
	"github.com/vendorisland/vendorisland-backend/pkg/pagination"
)

const sequenceConstraint = "wallet_transactions_wallet_sequence_key"

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Policy holds the configurable ledger rules.
type Policy struct {
	FeePolicy             string
	AllowNegativeBalance  bool
	DefaultCurrency       string
	PlatformFeeBps        int64
	PlatformFeeFixedCents int64
}

// PolicyFromConfig lifts the wallet section of the service config.
func PolicyFromConfig(cfg config.WalletConfig) Policy {
	return Policy{
		FeePolicy:             cfg.FeePolicy,
		AllowNegativeBalance:  cfg.AllowNegativeBalance,
		DefaultCurrency:       cfg.DefaultCurrency,
		PlatformFeeBps:        cfg.PlatformFeeBps,
		PlatformFeeFixedCents: cfg.PlatformFeeFixedCents,
	}
}

// PlatformFeeCents is the fee the platform takes from an order with the given
// subtotal. The percentage part rounds half away from zero.
func (p Policy) PlatformFeeCents(subtotalCents int64) int64 {
	fee := p.PlatformFeeFixedCents
	if p.PlatformFeeBps > 0 && subtotalCents > 0 {
		fee += decimal.NewFromInt(subtotalCents).
			Mul(decimal.NewFromInt(p.PlatformFeeBps)).
			Div(decimal.NewFromInt(10000)).
			Round(0).
			IntPart()
	}
	if fee < 0 {
		return 0
	}
	return fee
}

// FeeSeparate reports whether the platform fee is debited at settlement
// instead of being held with the reservation.
func (p Policy) FeeSeparate() bool {
	return strings.EqualFold(strings.TrimSpace(p.FeePolicy), config.FeePolicySeparate)
}

// ReservationCents is the amount an order must reserve before fulfillment.
func (p Policy) ReservationCents(supplierCostCents, platformFeeCents int64) int64 {
	if p.FeeSeparate() {
		return supplierCostCents
	}
	return supplierCostCents + platformFeeCents
}

// Service exposes wallet reads and every ledger mutation.
//
// The Tx-suffixed methods run inside a caller-owned transaction and expect the
// caller to hold WithWalletLock for the wallet; the rest manage both.
type Service interface {
	Policy() Policy
	Provision(ctx context.Context, vendorID uuid.UUID, currency string) (*WalletDTO, error)
	Get(ctx context.Context, walletID uuid.UUID) (*WalletDTO, error)
	GetByVendor(ctx context.Context, vendorID uuid.UUID) (*WalletDTO, error)
	ListTransactions(ctx context.Context, walletID uuid.UUID, params ListTransactionsParams) (*TransactionPage, error)
	Deposit(ctx context.Context, input DepositInput) (*TransactionDTO, error)
	Withdraw(ctx context.Context, input WithdrawInput) (*TransactionDTO, error)
	ReserveFunds(ctx context.Context, walletID, orderID uuid.UUID, amountCents int64) (*ReserveResult, error)
	ReleaseFunds(ctx context.Context, walletID, orderID uuid.UUID, amountCents int64) (*TransactionDTO, error)
	Reconcile(ctx context.Context, walletID uuid.UUID) (*Reconciliation, error)

	WithWalletLock(ctx context.Context, walletID uuid.UUID, fn func(ctx context.Context) error) error
	DepositTx(ctx context.Context, tx *gorm.DB, input DepositInput) (*models.WalletTransaction, error)
	ReserveTx(ctx context.Context, tx *gorm.DB, walletID, orderID uuid.UUID, amountCents int64) (*ReserveResult, error)
	ReleaseTx(ctx context.Context, tx *gorm.DB, input ReleaseInput) (*models.WalletTransaction, error)
	SettleTx(ctx context.Context, tx *gorm.DB, input SettleInput) (*SettleResult, error)
	RefundTx(ctx context.Context, tx *gorm.DB, input RefundInput) (*RefundResult, error)
}

type service struct {
	repo    Repository
	tx      txRunner
	outbox  outbox.Emitter
	policy  Policy
	retry   db.RetryPolicy
	metrics *metrics.LedgerMetrics
	logg    *logger.Logger
	locks   *keyedMutex
	now     func() time.Time
}

// Option customizes optional service collaborators.
type Option func(*service)

func WithMetrics(m *metrics.LedgerMetrics) Option {
	return func(s *service) { s.metrics = m }
}

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

// NewService wires the wallet ledger.
func NewService(repo Repository, tx txRunner, emitter outbox.Emitter, policy Policy, opts ...Option) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("wallet repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if policy.DefaultCurrency == "" {
		policy.DefaultCurrency = "USD"
	}
	s := &service{
		repo:   repo,
		tx:     tx,
		outbox: emitter,
		policy: policy,
		retry:  db.RetryPolicy{MaxAttempts: 3, BaseDelay: 50 * time.Millisecond},
		locks:  newKeyedMutex(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *service) Policy() Policy {
	return s.policy
}

func (s *service) Provision(ctx context.Context, vendorID uuid.UUID, currency string) (*WalletDTO, error) {
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id required")
	}
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = s.policy.DefaultCurrency
	}
	if !currencyPattern.MatchString(currency) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "currency must be a three letter ISO code")
	}

	existing, err := s.repo.FindByVendorID(ctx, vendorID)
	if err == nil {
		return toWalletDTO(existing), nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, db.Classify(err, "load vendor wallet")
	}

	wallet := &models.Wallet{
		ID:       uuid.New(),
		VendorID: vendorID,
		Currency: currency,
	}
	if err := s.repo.Create(ctx, wallet); err != nil {
		if db.IsUniqueViolation(err, "") {
			// Lost a provisioning race; the winner's wallet is the vendor's wallet.
			existing, findErr := s.repo.FindByVendorID(ctx, vendorID)
			if findErr != nil {
				return nil, db.Classify(findErr, "load vendor wallet")
			}
			return toWalletDTO(existing), nil
		}
		return nil, db.Classify(err, "create wallet")
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{"wallet_id": wallet.ID.String(), "vendor_id": vendorID.String()})
		s.logg.Info(logCtx, "wallet provisioned")
	}
	return toWalletDTO(wallet), nil
}

func (s *service) Get(ctx context.Context, walletID uuid.UUID) (*WalletDTO, error) {
	wallet, err := s.repo.FindByID(ctx, walletID)
	if err != nil {
		return nil, walletLookupError(err)
	}
	return toWalletDTO(wallet), nil
}

func (s *service) GetByVendor(ctx context.Context, vendorID uuid.UUID) (*WalletDTO, error) {
	wallet, err := s.repo.FindByVendorID(ctx, vendorID)
	if err != nil {
		return nil, walletLookupError(err)
	}
	return toWalletDTO(wallet), nil
}

func (s *service) ListTransactions(ctx context.Context, walletID uuid.UUID, params ListTransactionsParams) (*TransactionPage, error) {
	if _, err := s.repo.FindByID(ctx, walletID); err != nil {
		return nil, walletLookupError(err)
	}
	before, err := pagination.ParseSequence(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	if params.Type != nil && !params.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid transaction type")
	}
	limit := pagination.NormalizeLimit(params.Limit)
	entries, err := s.repo.ListEntries(ctx, walletID, EntryFilter{
		BeforeSequence: before,
		Type:           params.Type,
		OrderID:        params.OrderID,
		Limit:          limit + 1,
	})
	if err != nil {
		return nil, db.Classify(err, "list wallet transactions")
	}

	page := &TransactionPage{Transactions: make([]TransactionDTO, 0, len(entries))}
	if len(entries) > limit {
		entries = entries[:limit]
		page.NextCursor = pagination.EncodeSequence(entries[limit-1].Sequence)
	}
	for i := range entries {
		page.Transactions = append(page.Transactions, *ToTransactionDTO(&entries[i]))
	}
	return page, nil
}

func (s *service) Deposit(ctx context.Context, input DepositInput) (*TransactionDTO, error) {
	var entry *models.WalletTransaction
	err := s.mutate(ctx, input.WalletID, func(ctx context.Context, tx *gorm.DB) error {
		var err error
		entry, err = s.DepositTx(ctx, tx, input)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ToTransactionDTO(entry), nil
}

func (s *service) DepositTx(ctx context.Context, tx *gorm.DB, input DepositInput) (*models.WalletTransaction, error) {
	if input.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "deposit amount must be positive")
	}
	repo := s.repo.WithTx(tx)
	wallet, err := s.lock(ctx, repo, input.WalletID)
	if err != nil {
		return nil, err
	}
	ref := strings.TrimSpace(input.ReferenceID)
	if ref != "" {
		prior, err := repo.FindByReference(ctx, wallet.ID, enums.TransactionTypeDeposit, ref)
		if err != nil {
			return nil, db.Classify(err, "lookup deposit reference")
		}
		if prior != nil {
			if prior.AmountCents != input.AmountCents {
				return nil, pkgerrors.New(pkgerrors.CodeConflict, "deposit reference already used with a different amount")
			}
			return prior, nil
		}
	}
	return s.append(ctx, repo, tx, wallet, effect{
		txType:      enums.TransactionTypeDeposit,
		amount:      input.AmountCents,
		description: defaultString(input.Description, "deposit"),
		referenceID: optionalString(ref),
	})
}

func (s *service) Withdraw(ctx context.Context, input WithdrawInput) (*TransactionDTO, error) {
	if input.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "withdrawal amount must be positive")
	}
	var entry *models.WalletTransaction
	err := s.mutate(ctx, input.WalletID, func(ctx context.Context, tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		wallet, err := s.lock(ctx, repo, input.WalletID)
		if err != nil {
			return err
		}
		ref := strings.TrimSpace(input.ReferenceID)
		if ref != "" {
			prior, err := repo.FindByReference(ctx, wallet.ID, enums.TransactionTypeWithdrawal, ref)
			if err != nil {
				return db.Classify(err, "lookup withdrawal reference")
			}
			if prior != nil {
				entry = prior
				return nil
			}
		}
		// Withdrawals never overdraw, whatever the negative balance policy.
		if wallet.AvailableBalanceCents < input.AmountCents {
			return insufficientFunds(wallet, input.AmountCents)
		}
		entry, err = s.append(ctx, repo, tx, wallet, effect{
			txType:      enums.TransactionTypeWithdrawal,
			amount:      -input.AmountCents,
			description: defaultString(input.Description, "withdrawal"),
			referenceID: optionalString(ref),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return ToTransactionDTO(entry), nil
}

func (s *service) ReserveFunds(ctx context.Context, walletID, orderID uuid.UUID, amountCents int64) (*ReserveResult, error) {
	var result *ReserveResult
	err := s.mutate(ctx, walletID, func(ctx context.Context, tx *gorm.DB) error {
		var err error
		result, err = s.ReserveTx(ctx, tx, walletID, orderID, amountCents)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ReserveTx moves amountCents from available to reserved for the order.
// Insufficient funds yield NeedsTopup with the wallet untouched. Repeating a
// reservation for the same order returns the original entry.
func (s *service) ReserveTx(ctx context.Context, tx *gorm.DB, walletID, orderID uuid.UUID, amountCents int64) (*ReserveResult, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if amountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reservation amount must be positive")
	}
	repo := s.repo.WithTx(tx)
	wallet, err := s.lock(ctx, repo, walletID)
	if err != nil {
		return nil, err
	}
	history, err := s.orderHistory(ctx, repo, wallet.ID, orderID, "reserve")
	if err != nil {
		return nil, err
	}

	if history.reserve != nil {
		if history.release != nil {
			return nil, s.violated(ctx, "reserve", violation("order reservation was already released"))
		}
		if history.heldCents() != amountCents {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "order already holds a reservation for a different amount").
				WithDetails(map[string]any{"reserved_cents": history.heldCents()})
		}
		s.metrics.IncReservation(metrics.OutcomeReplayed)
		return &ReserveResult{
			Reserved:       true,
			Replayed:       true,
			RequiredCents:  amountCents,
			AvailableCents: wallet.AvailableBalanceCents,
			Transaction:    ToTransactionDTO(history.reserve),
		}, nil
	}

	if wallet.AvailableBalanceCents < amountCents {
		s.metrics.IncReservation(metrics.OutcomeNeedsTopup)
		return &ReserveResult{
			NeedsTopup:     true,
			RequiredCents:  amountCents,
			AvailableCents: wallet.AvailableBalanceCents,
			ShortfallCents: amountCents - wallet.AvailableBalanceCents,
		}, nil
	}

	entry, err := s.append(ctx, repo, tx, wallet, effect{
		txType:        enums.TransactionTypeReserve,
		orderID:       &orderID,
		amount:        -amountCents,
		reservedDelta: amountCents,
		description:   "funds reserved for order",
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncReservation(metrics.OutcomeReserved)
	return &ReserveResult{
		Reserved:       true,
		RequiredCents:  amountCents,
		AvailableCents: wallet.AvailableBalanceCents,
		Transaction:    ToTransactionDTO(entry),
	}, nil
}

func (s *service) ReleaseFunds(ctx context.Context, walletID, orderID uuid.UUID, amountCents int64) (*TransactionDTO, error) {
	var entry *models.WalletTransaction
	err := s.mutate(ctx, walletID, func(ctx context.Context, tx *gorm.DB) error {
		var err error
		entry, err = s.ReleaseTx(ctx, tx, ReleaseInput{
			WalletID:    walletID,
			OrderID:     orderID,
			AmountCents: amountCents,
			Mode:        ReleaseToAvailable,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return ToTransactionDTO(entry), nil
}

// ReleaseTx closes the order's reservation. The amount must match the open
// reservation exactly; releasing twice or without a reserve is a violation.
func (s *service) ReleaseTx(ctx context.Context, tx *gorm.DB, input ReleaseInput) (*models.WalletTransaction, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "release amount must be positive")
	}
	repo := s.repo.WithTx(tx)
	wallet, err := s.lock(ctx, repo, input.WalletID)
	if err != nil {
		return nil, err
	}
	history, err := s.orderHistory(ctx, repo, wallet.ID, input.OrderID, "release")
	if err != nil {
		return nil, err
	}
	if err := requireOpenReservation(history, input.AmountCents); err != nil {
		return nil, s.violated(ctx, "release", err)
	}
	return s.release(ctx, repo, tx, wallet, input.OrderID, history.heldCents(), input.Mode, input.Description)
}

// SettleTx consumes the reservation and books the realized profit, plus the
// platform fee when it is collected separately.
func (s *service) SettleTx(ctx context.Context, tx *gorm.DB, input SettleInput) (*SettleResult, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.TotalPaidCents < 0 || input.SupplierCostCents < 0 || input.PlatformFeeCents < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "settlement amounts cannot be negative")
	}
	repo := s.repo.WithTx(tx)
	wallet, err := s.lock(ctx, repo, input.WalletID)
	if err != nil {
		return nil, err
	}
	history, err := s.orderHistory(ctx, repo, wallet.ID, input.OrderID, "settle")
	if err != nil {
		return nil, err
	}
	if history.profit != nil {
		return nil, s.violated(ctx, "settle", violation("order already settled"))
	}
	expected := s.policy.ReservationCents(input.SupplierCostCents, input.PlatformFeeCents)
	if err := requireOpenReservation(history, expected); err != nil {
		return nil, s.violated(ctx, "settle", err)
	}

	profit := input.TotalPaidCents - input.SupplierCostCents - input.PlatformFeeCents
	debits := int64(0)
	if profit < 0 {
		debits -= profit
	}
	if s.policy.FeeSeparate() {
		debits += input.PlatformFeeCents
	}
	if debits > 0 && !s.policy.AllowNegativeBalance {
		credits := max(profit, 0)
		if wallet.AvailableBalanceCents+credits < debits {
			return nil, insufficientFunds(wallet, debits-credits)
		}
	}

	result := &SettleResult{ProfitCents: profit}
	result.Release, err = s.release(ctx, repo, tx, wallet, input.OrderID, history.heldCents(), ReleaseConsumed, "")
	if err != nil {
		return nil, err
	}
	result.Profit, err = s.append(ctx, repo, tx, wallet, effect{
		txType:      enums.TransactionTypeProfit,
		orderID:     &input.OrderID,
		amount:      profit,
		description: "order profit",
		overdraw:    true,
	})
	if err != nil {
		return nil, err
	}
	if input.PlatformFeeCents > 0 {
		fee := effect{
			txType:      enums.TransactionTypeFee,
			orderID:     &input.OrderID,
			description: "platform fee held with reservation",
			overdraw:    true,
		}
		if s.policy.FeeSeparate() {
			fee.amount = -input.PlatformFeeCents
			fee.description = "platform fee"
		}
		result.Fee, err = s.append(ctx, repo, tx, wallet, fee)
		if err != nil {
			return nil, err
		}
	}
	return result, nil
}

// RefundTx reverses an order's wallet effects. An open reservation is
// returned to available. Once profit has been booked the refund is debited,
// or queued when the debit would overdraw a wallet that may not go negative.
func (s *service) RefundTx(ctx context.Context, tx *gorm.DB, input RefundInput) (*RefundResult, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.AmountCents < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund amount cannot be negative")
	}
	repo := s.repo.WithTx(tx)
	wallet, err := s.lock(ctx, repo, input.WalletID)
	if err != nil {
		return nil, err
	}
	history, err := s.orderHistory(ctx, repo, wallet.ID, input.OrderID, "refund")
	if err != nil {
		return nil, err
	}

	result := &RefundResult{}
	if history.open() {
		result.Released, err = s.release(ctx, repo, tx, wallet, input.OrderID, history.heldCents(), ReleaseToAvailable, "reservation returned on refund")
		if err != nil {
			return nil, err
		}
		return result, nil
	}
	if history.profit == nil || input.AmountCents == 0 {
		return result, nil
	}

	if wallet.AvailableBalanceCents < input.AmountCents && !s.policy.AllowNegativeBalance {
		result.Queued = true
		return result, nil
	}
	result.Debit, err = s.append(ctx, repo, tx, wallet, effect{
		txType:      enums.TransactionTypeRefund,
		orderID:     &input.OrderID,
		amount:      -input.AmountCents,
		description: defaultString(input.Description, "customer refund"),
		overdraw:    true,
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Reconcile replays the wallet's full ledger and compares it with the cache.
// Drift never mutates anything; Reconciliation.Err reports it.
func (s *service) Reconcile(ctx context.Context, walletID uuid.UUID) (*Reconciliation, error) {
	var (
		wallet  *models.Wallet
		entries []models.WalletTransaction
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		wallet, err = repo.FindByID(ctx, walletID)
		if err != nil {
			return walletLookupError(err)
		}
		entries, err = repo.AllEntries(ctx, walletID)
		if err != nil {
			return db.Classify(err, "load wallet ledger")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	replay, problems := ReplayEntries(entries)
	if replay.AvailableCents != wallet.AvailableBalanceCents || replay.ReservedCents != wallet.ReservedBalanceCents {
		problems = append(problems, Problem{
			Sequence: replay.LastSequence,
			Detail: fmt.Sprintf("cached balances %d/%d, replay gives %d/%d",
				wallet.AvailableBalanceCents, wallet.ReservedBalanceCents, replay.AvailableCents, replay.ReservedCents),
		})
	}
	if replay.LastSequence != wallet.LastSequence {
		problems = append(problems, Problem{
			Sequence: replay.LastSequence,
			Detail:   fmt.Sprintf("cached last sequence %d", wallet.LastSequence),
		})
	}

	rec := &Reconciliation{
		WalletID:               wallet.ID,
		Consistent:             len(problems) == 0,
		CachedAvailableCents:   wallet.AvailableBalanceCents,
		CachedReservedCents:    wallet.ReservedBalanceCents,
		ReplayedAvailableCents: replay.AvailableCents,
		ReplayedReservedCents:  replay.ReservedCents,
		Entries:                replay.Entries,
		OpenReservations:       len(replay.OpenReservations),
		Problems:               problems,
	}
	if !rec.Consistent {
		s.metrics.IncViolation("reconcile")
		if s.logg != nil {
			logCtx := s.logg.WithFields(ctx, map[string]any{"wallet_id": walletID.String(), "problems": len(problems)})
			s.logg.Error(logCtx, "wallet ledger drift detected", rec.Err())
		}
	}
	return rec, nil
}

// Err returns an invariant violation describing the drift, or nil.
func (r *Reconciliation) Err() error {
	if r == nil || r.Consistent {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeInvariant, "wallet ledger does not replay to cached balances").WithDetails(r.Problems)
}

func (s *service) WithWalletLock(ctx context.Context, walletID uuid.UUID, fn func(ctx context.Context) error) error {
	if walletID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "wallet id required")
	}
	unlock, err := s.locks.Lock(ctx, walletID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "waiting for wallet lock")
	}
	defer unlock()
	return fn(ctx)
}

// mutate runs fn in its own transaction under the wallet lock, retrying
// transient storage failures. Each attempt starts from a clean transaction.
func (s *service) mutate(ctx context.Context, walletID uuid.UUID, fn func(ctx context.Context, tx *gorm.DB) error) error {
	return s.WithWalletLock(ctx, walletID, func(ctx context.Context) error {
		return db.Retry(ctx, s.retry, func(ctx context.Context) error {
			return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
				return fn(ctx, tx)
			})
		})
	})
}

func (s *service) lock(ctx context.Context, repo Repository, walletID uuid.UUID) (*models.Wallet, error) {
	if walletID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "wallet id required")
	}
	wallet, err := repo.LockByID(ctx, walletID)
	if err != nil {
		return nil, walletLookupError(err)
	}
	return wallet, nil
}

func (s *service) orderHistory(ctx context.Context, repo Repository, walletID, orderID uuid.UUID, operation string) (orderLedger, error) {
	entries, err := repo.EntriesForOrder(ctx, walletID, orderID)
	if err != nil {
		return orderLedger{}, db.Classify(err, "load order ledger entries")
	}
	history, err := summarizeOrder(entries)
	if err != nil {
		return history, s.violated(ctx, operation, err)
	}
	return history, nil
}

func (s *service) release(ctx context.Context, repo Repository, tx *gorm.DB, wallet *models.Wallet, orderID uuid.UUID, held int64, mode ReleaseMode, description string) (*models.WalletTransaction, error) {
	e := effect{
		txType:        enums.TransactionTypeRelease,
		orderID:       &orderID,
		reservedDelta: -held,
	}
	switch mode {
	case ReleaseConsumed:
		e.description = defaultString(description, "reservation consumed by settlement")
	default:
		e.amount = held
		e.description = defaultString(description, "reservation released")
	}
	return s.append(ctx, repo, tx, wallet, e)
}

// effect is one pending ledger line. overdraw marks debits the negative
// balance policy may let through.
type effect struct {
	txType        enums.TransactionType
	orderID       *uuid.UUID
	amount        int64
	reservedDelta int64
	description   string
	referenceID   *string
	overdraw      bool
}

// append writes one entry and moves the cached balances with it. The cache is
// checked against the previous entry first so a diverged wallet stops taking
// writes instead of compounding the drift.
func (s *service) append(ctx context.Context, repo Repository, tx *gorm.DB, wallet *models.Wallet, e effect) (*models.WalletTransaction, error) {
	last, err := repo.LastEntry(ctx, wallet.ID)
	if err != nil {
		return nil, db.Classify(err, "load last ledger entry")
	}
	if err := checkContinuity(wallet, last); err != nil {
		return nil, s.violated(ctx, string(e.txType), err)
	}

	available := wallet.AvailableBalanceCents + e.amount
	reserved := wallet.ReservedBalanceCents + e.reservedDelta
	if reserved < 0 {
		return nil, s.violated(ctx, string(e.txType), violation("reserved balance would go negative"))
	}
	if e.amount < 0 && available < 0 && !(e.overdraw && s.policy.AllowNegativeBalance) {
		return nil, insufficientFunds(wallet, -e.amount)
	}

	entry := &models.WalletTransaction{
		ID:                 uuid.New(),
		WalletID:           wallet.ID,
		OrderID:            e.orderID,
		Sequence:           wallet.LastSequence + 1,
		Type:               e.txType,
		AmountCents:        e.amount,
		ReservedDeltaCents: e.reservedDelta,
		BalanceAfterCents:  available,
		ReservedAfterCents: reserved,
		Description:        e.description,
		ReferenceID:        e.referenceID,
		CreatedAt:          s.now(),
	}
	if err := repo.AppendEntry(ctx, entry); err != nil {
		switch {
		case isSequenceCollision(err):
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "concurrent ledger append")
		case db.IsUniqueViolation(err, ""):
			return nil, s.violated(ctx, string(e.txType), pkgerrors.Wrap(pkgerrors.CodeInvariant, err, "duplicate order ledger entry"))
		default:
			return nil, db.Classify(err, "append ledger entry")
		}
	}

	wallet.AvailableBalanceCents = available
	wallet.ReservedBalanceCents = reserved
	wallet.LastSequence = entry.Sequence
	if err := repo.UpdateBalances(ctx, wallet); err != nil {
		return nil, db.Classify(err, "update wallet balances")
	}

	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventLedgerEntry,
		AggregateType: enums.AggregateWallet,
		AggregateID:   wallet.ID,
		OccurredAt:    entry.CreatedAt,
		Data: payloads.LedgerEntryEvent{
			TransactionID:      entry.ID,
			WalletID:           wallet.ID,
			VendorID:           wallet.VendorID,
			OrderID:            entry.OrderID,
			Sequence:           entry.Sequence,
			Type:               entry.Type,
			AmountCents:        entry.AmountCents,
			ReservedDeltaCents: entry.ReservedDeltaCents,
			BalanceAfterCents:  entry.BalanceAfterCents,
			ReservedAfterCents: entry.ReservedAfterCents,
			OccurredAt:         entry.CreatedAt,
		},
	}); err != nil {
		return nil, db.Classify(err, "emit ledger event")
	}
	s.metrics.IncEntry(string(entry.Type))
	return entry, nil
}

func (s *service) violated(ctx context.Context, operation string, err error) error {
	s.metrics.IncViolation(operation)
	if s.logg != nil {
		s.logg.Error(s.logg.WithField(ctx, "operation", operation), "ledger invariant violated", err)
	}
	return err
}

func checkContinuity(wallet *models.Wallet, last *models.WalletTransaction) error {
	if last == nil {
		if wallet.LastSequence != 0 || wallet.AvailableBalanceCents != 0 || wallet.ReservedBalanceCents != 0 {
			return violation("wallet has balances but no ledger entries")
		}
		return nil
	}
	if last.Sequence != wallet.LastSequence ||
		last.BalanceAfterCents != wallet.AvailableBalanceCents ||
		last.ReservedAfterCents != wallet.ReservedBalanceCents {
		return violation("wallet balance cache diverged from ledger").WithDetails(map[string]any{
			"cached_sequence":  wallet.LastSequence,
			"ledger_sequence":  last.Sequence,
			"cached_available": wallet.AvailableBalanceCents,
			"ledger_available": last.BalanceAfterCents,
		})
	}
	return nil
}

func requireOpenReservation(history orderLedger, amountCents int64) error {
	switch {
	case history.reserve == nil:
		return violation("order has no reservation")
	case history.release != nil:
		return violation("order reservation already released")
	case history.heldCents() != amountCents:
		return violation(fmt.Sprintf("amount %d does not match reservation of %d", amountCents, history.heldCents()))
	}
	return nil
}

func isSequenceCollision(err error) bool {
	return db.IsUniqueViolation(err, sequenceConstraint) ||
		strings.Contains(err.Error(), "wallet_transactions.sequence")
}

func insufficientFunds(wallet *models.Wallet, neededCents int64) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, "insufficient available balance").WithDetails(map[string]any{
		"available_cents": wallet.AvailableBalanceCents,
		"required_cents":  neededCents,
	})
}

func walletLookupError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "wallet not found")
	}
	return db.Classify(err, "load wallet")
}

func defaultString(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
