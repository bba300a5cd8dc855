package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/vendorisland/vendorisland-backend/pkg/enums"
)

// DepositRequest is a vendor-submitted crypto deposit awaiting review.
type DepositRequest struct {
	ID          uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	VendorID    uuid.UUID           `gorm:"column:vendor_id;type:uuid;not null"`
	WalletID    uuid.UUID           `gorm:"column:wallet_id;type:uuid;not null"`
	AmountCents int64               `gorm:"column:amount_cents;not null"`
	CryptoType  enums.CryptoType    `gorm:"column:crypto_type;type:crypto_type;not null"`
	ReceiptURL  *string             `gorm:"column:receipt_url"`
	TxHash      *string             `gorm:"column:tx_hash"`
	Status      enums.DepositStatus `gorm:"column:status;type:deposit_status;not null"`
	AdminNotes  *string             `gorm:"column:admin_notes"`
	ReviewedBy  *uuid.UUID          `gorm:"column:reviewed_by;type:uuid"`
	ReviewedAt  *time.Time          `gorm:"column:reviewed_at"`
	CreatedAt   time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (DepositRequest) TableName() string { return "deposit_requests" }
