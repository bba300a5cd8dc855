package wallet

import (
	"time"

	"github.com/google/uuid"

	"github.com/vendorisland/vendorisland-backend/pkg/db/models"
	"github.com/vendorisland/vendorisland-backend/pkg/enums"
	"github.com/vendorisland/vendorisland-backend/pkg/money"
)

// WalletDTO is the vendor-facing view of a wallet.
type WalletDTO struct {
	ID                    uuid.UUID `json:"id"`
	VendorID              uuid.UUID `json:"vendor_id"`
	AvailableBalanceCents int64     `json:"available_balance_cents"`
	ReservedBalanceCents  int64     `json:"reserved_balance_cents"`
	AvailableBalance      string    `json:"available_balance"`
	ReservedBalance       string    `json:"reserved_balance"`
	Currency              string    `json:"currency"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// TransactionDTO is one ledger line.
type TransactionDTO struct {
	ID                 uuid.UUID             `json:"id"`
	WalletID           uuid.UUID             `json:"wallet_id"`
	OrderID            *uuid.UUID            `json:"order_id,omitempty"`
	Sequence           int64                 `json:"sequence"`
	Type               enums.TransactionType `json:"type"`
	AmountCents        int64                 `json:"amount_cents"`
	ReservedDeltaCents int64                 `json:"reserved_delta_cents"`
	BalanceAfterCents  int64                 `json:"balance_after_cents"`
	ReservedAfterCents int64                 `json:"reserved_after_cents"`
	Amount             string                `json:"amount"`
	BalanceAfter       string                `json:"balance_after"`
	Description        string                `json:"description,omitempty"`
	ReferenceID        *string               `json:"reference_id,omitempty"`
	CreatedAt          time.Time             `json:"created_at"`
}

// TransactionPage is a newest-first slice of the ledger.
type TransactionPage struct {
	Transactions []TransactionDTO `json:"transactions"`
	NextCursor   string           `json:"next_cursor,omitempty"`
}

// ListTransactionsParams filters the ledger listing.
type ListTransactionsParams struct {
	Limit   int
	Cursor  string
	Type    *enums.TransactionType
	OrderID *uuid.UUID
}

// DepositInput credits available balance. ReferenceID makes the call
// idempotent: a second deposit with the same reference returns the first.
type DepositInput struct {
	WalletID    uuid.UUID
	AmountCents int64
	ReferenceID string
	Description string
}

// WithdrawInput debits available balance.
type WithdrawInput struct {
	WalletID    uuid.UUID
	AmountCents int64
	ReferenceID string
	Description string
}

// ReserveResult is the outcome of a reservation attempt. NeedsTopup is a
// normal outcome, not an error: the wallet is left untouched.
type ReserveResult struct {
	Reserved       bool            `json:"reserved"`
	NeedsTopup     bool            `json:"needs_topup"`
	Replayed       bool            `json:"replayed,omitempty"`
	RequiredCents  int64           `json:"required_cents"`
	AvailableCents int64           `json:"available_cents"`
	ShortfallCents int64           `json:"shortfall_cents,omitempty"`
	Transaction    *TransactionDTO `json:"transaction,omitempty"`
}

// ReleaseMode selects where released funds go.
type ReleaseMode int

const (
	// ReleaseToAvailable returns the reservation to available balance.
	ReleaseToAvailable ReleaseMode = iota
	// ReleaseConsumed clears the reservation because the funds were spent on
	// the supplier order.
	ReleaseConsumed
)

// ReleaseInput identifies the reservation being released.
type ReleaseInput struct {
	WalletID    uuid.UUID
	OrderID     uuid.UUID
	AmountCents int64
	Mode        ReleaseMode
	Description string
}

// SettleInput carries the order economics at settlement.
type SettleInput struct {
	WalletID          uuid.UUID
	OrderID           uuid.UUID
	TotalPaidCents    int64
	SupplierCostCents int64
	PlatformFeeCents  int64
}

// SettleResult lists the entries a settlement appended.
type SettleResult struct {
	ProfitCents int64
	Release     *models.WalletTransaction
	Profit      *models.WalletTransaction
	Fee         *models.WalletTransaction
}

// RefundInput describes a customer refund charged to the vendor.
type RefundInput struct {
	WalletID    uuid.UUID
	OrderID     uuid.UUID
	AmountCents int64
	Description string
}

// RefundResult reports what a refund did. Queued means the debit would have
// taken the wallet negative and nothing was appended.
type RefundResult struct {
	Released *models.WalletTransaction
	Debit    *models.WalletTransaction
	Queued   bool
}

// Reconciliation compares the cached balances with a full replay.
type Reconciliation struct {
	WalletID               uuid.UUID `json:"wallet_id"`
	Consistent             bool      `json:"consistent"`
	CachedAvailableCents   int64     `json:"cached_available_cents"`
	CachedReservedCents    int64     `json:"cached_reserved_cents"`
	ReplayedAvailableCents int64     `json:"replayed_available_cents"`
	ReplayedReservedCents  int64     `json:"replayed_reserved_cents"`
	Entries                int       `json:"entries"`
	OpenReservations       int       `json:"open_reservations"`
	Problems               []Problem `json:"problems,omitempty"`
}

func toWalletDTO(w *models.Wallet) *WalletDTO {
	return &WalletDTO{
		ID:                    w.ID,
		VendorID:              w.VendorID,
		AvailableBalanceCents: w.AvailableBalanceCents,
		ReservedBalanceCents:  w.ReservedBalanceCents,
		AvailableBalance:      money.FormatCents(w.AvailableBalanceCents),
		ReservedBalance:       money.FormatCents(w.ReservedBalanceCents),
		Currency:              w.Currency,
		UpdatedAt:             w.UpdatedAt,
	}
}

// ToTransactionDTO maps a ledger row to its API shape.
func ToTransactionDTO(entry *models.WalletTransaction) *TransactionDTO {
	if entry == nil {
		return nil
	}
	return &TransactionDTO{
		ID:                 entry.ID,
		WalletID:           entry.WalletID,
		OrderID:            entry.OrderID,
		Sequence:           entry.Sequence,
		Type:               entry.Type,
		AmountCents:        entry.AmountCents,
		ReservedDeltaCents: entry.ReservedDeltaCents,
		BalanceAfterCents:  entry.BalanceAfterCents,
		ReservedAfterCents: entry.ReservedAfterCents,
		Amount:             money.FormatCents(entry.AmountCents),
		BalanceAfter:       money.FormatCents(entry.BalanceAfterCents),
		Description:        entry.Description,
		ReferenceID:        entry.ReferenceID,
		CreatedAt:          entry.CreatedAt,
	}
}
