package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/vendorisland/vendorisland-backend/pkg/enums"
)

// WalletTransaction is an append-only ledger entry.
//
// AmountCents is the signed effect on the available balance and
// ReservedDeltaCents the signed effect on the reserved balance, so replaying
// entries ordered by Sequence reproduces the wallet exactly.
type WalletTransaction struct {
	ID                 uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	WalletID           uuid.UUID             `gorm:"column:wallet_id;type:uuid;not null"`
	OrderID            *uuid.UUID            `gorm:"column:order_id;type:uuid"`
	Sequence           int64                 `gorm:"column:sequence;not null"`
	Type               enums.TransactionType `gorm:"column:type;type:transaction_type;not null"`
	AmountCents        int64                 `gorm:"column:amount_cents;not null"`
	ReservedDeltaCents int64                 `gorm:"column:reserved_delta_cents;not null;default:0"`
	BalanceAfterCents  int64                 `gorm:"column:balance_after_cents;not null"`
	ReservedAfterCents int64                 `gorm:"column:reserved_after_cents;not null"`
	Description        string                `gorm:"column:description"`
	ReferenceID        *string               `gorm:"column:reference_id"`
	CreatedAt          time.Time             `gorm:"column:created_at;autoCreateTime"`
}

func (WalletTransaction) TableName() string { return "wallet_transactions" }
