package models

import (
	"time"

	"github.com/google/uuid"
)

// Wallet is the per-vendor balance cache. Balances are derived from
// wallet_transactions and only change alongside a ledger append.
type Wallet struct {
	ID                    uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	VendorID              uuid.UUID `gorm:"column:vendor_id;type:uuid;not null;uniqueIndex"`
	AvailableBalanceCents int64     `gorm:"column:available_balance_cents;not null;default:0"`
	ReservedBalanceCents  int64     `gorm:"column:reserved_balance_cents;not null;default:0"`
	Currency              string    `gorm:"column:currency;not null;default:'USD'"`
	LastSequence          int64     `gorm:"column:last_sequence;not null;default:0"`
	CreatedAt             time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Wallet) TableName() string { return "wallets" }
