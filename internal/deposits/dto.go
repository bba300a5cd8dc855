package deposits

import (
	"time"

	"github.com/google/uuid"

	"github.com/vendorisland/vendorisland-backend/internal/orders"
	"github.com/vendorisland/vendorisland-backend/internal/wallet"
	"github.com/vendorisland/vendorisland-backend/pkg/db/models"
	"github.com/vendorisland/vendorisland-backend/pkg/enums"
	"github.com/vendorisland/vendorisland-backend/pkg/money"
)

// SubmitInput is a vendor's claim that funds were sent.
type SubmitInput struct {
	VendorID    uuid.UUID
	AmountCents int64
	CryptoType  enums.CryptoType
	ReceiptURL  *string
	TxHash      *string
}

// ReviewInput carries the reviewing admin and an optional note.
type ReviewInput struct {
	RequestID uuid.UUID
	AdminID   uuid.UUID
	Notes     string
}

// ListParams filters the request listing. A nil VendorID is the admin view.
type ListParams struct {
	VendorID *uuid.UUID
	Status   *enums.DepositStatus
	Limit    int
	Cursor   string
}

// DepositDTO is the API view of a deposit request.
type DepositDTO struct {
	ID          uuid.UUID           `json:"id"`
	VendorID    uuid.UUID           `json:"vendor_id"`
	WalletID    uuid.UUID           `json:"wallet_id"`
	AmountCents int64               `json:"amount_cents"`
	Amount      string              `json:"amount"`
	CryptoType  enums.CryptoType    `json:"crypto_type"`
	ReceiptURL  *string             `json:"receipt_url,omitempty"`
	TxHash      *string             `json:"tx_hash,omitempty"`
	Status      enums.DepositStatus `json:"status"`
	AdminNotes  *string             `json:"admin_notes,omitempty"`
	ReviewedBy  *uuid.UUID          `json:"reviewed_by,omitempty"`
	ReviewedAt  *time.Time          `json:"reviewed_at,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
}

// DepositList is one page of deposit requests.
type DepositList struct {
	Deposits   []DepositDTO `json:"deposits"`
	NextCursor string       `json:"next_cursor,omitempty"`
}

// ApproveResult reports the credited ledger entry and what the follow-up
// top-up pass managed to unblock. The deposit is committed even when that
// pass fails, in which case Topup may be partial or nil.
type ApproveResult struct {
	Deposit     *DepositDTO              `json:"deposit"`
	Transaction *wallet.TransactionDTO   `json:"transaction"`
	Replayed    bool                     `json:"replayed,omitempty"`
	Topup       *orders.TopupRetryResult `json:"topup,omitempty"`
}

func toDepositDTO(r *models.DepositRequest) *DepositDTO {
	return &DepositDTO{
		ID:          r.ID,
		VendorID:    r.VendorID,
		WalletID:    r.WalletID,
		AmountCents: r.AmountCents,
		Amount:      money.FormatCents(r.AmountCents),
		CryptoType:  r.CryptoType,
		ReceiptURL:  r.ReceiptURL,
		TxHash:      r.TxHash,
		Status:      r.Status,
		AdminNotes:  r.AdminNotes,
		ReviewedBy:  r.ReviewedBy,
		ReviewedAt:  r.ReviewedAt,
		CreatedAt:   r.CreatedAt,
	}
}
