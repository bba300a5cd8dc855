package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/vendorisland/vendorisland-backend/pkg/enums"
)

// OrderCreatedEvent is emitted when a storefront checkout lands an order.
type OrderCreatedEvent struct {
	OrderID           uuid.UUID `json:"order_id" validate:"required"`
	OrderNumber       string    `json:"order_number"`
	VendorID          uuid.UUID `json:"vendor_id" validate:"required"`
	SubtotalCents     int64     `json:"subtotal_cents"`
	SupplierCostCents int64     `json:"supplier_cost_cents"`
	ItemCount         int       `json:"item_count"`
}

// OrderStateChangedEvent is emitted for every committed status transition.
type OrderStateChangedEvent struct {
	OrderID    uuid.UUID         `json:"order_id" validate:"required"`
	VendorID   uuid.UUID         `json:"vendor_id" validate:"required"`
	FromStatus enums.OrderStatus `json:"from_status"`
	ToStatus   enums.OrderStatus `json:"to_status"`
	ChangedAt  time.Time         `json:"changed_at"`
}

// LedgerEntryEvent mirrors one appended wallet transaction.
type LedgerEntryEvent struct {
	TransactionID      uuid.UUID             `json:"transaction_id" validate:"required"`
	WalletID           uuid.UUID             `json:"wallet_id" validate:"required"`
	VendorID           uuid.UUID             `json:"vendor_id" validate:"required"`
	OrderID            *uuid.UUID            `json:"order_id,omitempty"`
	Sequence           int64                 `json:"sequence"`
	Type               enums.TransactionType `json:"type"`
	AmountCents        int64                 `json:"amount_cents"`
	ReservedDeltaCents int64                 `json:"reserved_delta_cents"`
	BalanceAfterCents  int64                 `json:"balance_after_cents"`
	ReservedAfterCents int64                 `json:"reserved_after_cents"`
	OccurredAt         time.Time             `json:"occurred_at"`
}

// OrderNeedsTopupEvent tells the vendor fulfillment is blocked on funds.
type OrderNeedsTopupEvent struct {
	OrderID        uuid.UUID `json:"order_id" validate:"required"`
	VendorID       uuid.UUID `json:"vendor_id" validate:"required"`
	WalletID       uuid.UUID `json:"wallet_id"`
	RequiredCents  int64     `json:"required_cents"`
	AvailableCents int64     `json:"available_cents"`
	ShortfallCents int64     `json:"shortfall_cents"`
}

// OrderSettledEvent summarizes a completed settlement.
type OrderSettledEvent struct {
	OrderID           uuid.UUID `json:"order_id" validate:"required"`
	VendorID          uuid.UUID `json:"vendor_id" validate:"required"`
	WalletID          uuid.UUID `json:"wallet_id" validate:"required"`
	TotalPaidCents    int64     `json:"total_paid_cents"`
	SupplierCostCents int64     `json:"supplier_cost_cents"`
	PlatformFeeCents  int64     `json:"platform_fee_cents"`
	ProfitCents       int64     `json:"profit_cents"`
	SettledAt         time.Time `json:"settled_at"`
}

// OrderRefundedEvent is emitted when a refund is applied or queued.
type OrderRefundedEvent struct {
	OrderID     uuid.UUID `json:"order_id" validate:"required"`
	VendorID    uuid.UUID `json:"vendor_id" validate:"required"`
	AmountCents int64     `json:"amount_cents"`
	Queued      bool      `json:"queued"`
}

// DepositApprovedEvent is emitted when an admin credits a deposit request.
type DepositApprovedEvent struct {
	DepositRequestID uuid.UUID        `json:"deposit_request_id" validate:"required"`
	VendorID         uuid.UUID        `json:"vendor_id" validate:"required"`
	WalletID         uuid.UUID        `json:"wallet_id" validate:"required"`
	AmountCents      int64            `json:"amount_cents"`
	CryptoType       enums.CryptoType `json:"crypto_type"`
}

// ProductRepricedEvent records a selling price change on a catalog product.
type ProductRepricedEvent struct {
	ProductID         uuid.UUID  `json:"product_id" validate:"required"`
	VendorID          uuid.UUID  `json:"vendor_id" validate:"required"`
	PreviousCents     *int64     `json:"previous_cents,omitempty"`
	SellingPriceCents *int64     `json:"selling_price_cents,omitempty"`
	PricingRuleID     *uuid.UUID `json:"pricing_rule_id,omitempty"`
}
