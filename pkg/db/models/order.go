package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/vendorisland/vendorisland-backend/pkg/enums"
)

// Order is a customer purchase fulfilled through a supplier on behalf of a vendor.
type Order struct {
	ID              uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	OrderNumber     string            `gorm:"column:order_number;not null;uniqueIndex"`
	VendorID        uuid.UUID         `gorm:"column:vendor_id;type:uuid;not null"`
	StoreID         *uuid.UUID        `gorm:"column:store_id;type:uuid"`
	Status          enums.OrderStatus `gorm:"column:status;type:order_status;not null"`
	CustomerName    string            `gorm:"column:customer_name;not null"`
	CustomerEmail   string            `gorm:"column:customer_email;not null"`
	ShippingAddress json.RawMessage   `gorm:"column:shipping_address;type:jsonb"`

	SubtotalCents       int64  `gorm:"column:subtotal_cents;not null"`
	ShippingTotalCents  int64  `gorm:"column:shipping_total_cents;not null"`
	TotalPaidCents      int64  `gorm:"column:total_paid_cents;not null;default:0"`
	SupplierCostCents   int64  `gorm:"column:supplier_cost_cents;not null"`
	PlatformFeeCents    int64  `gorm:"column:platform_fee_cents;not null;default:0"`
	ProfitCents         *int64 `gorm:"column:profit_cents"`
	ReservedAmountCents int64  `gorm:"column:reserved_amount_cents;not null;default:0"`

	RefundPending      bool  `gorm:"column:refund_pending;not null;default:false"`
	RefundAmountCents  int64 `gorm:"column:refund_amount_cents;not null;default:0"`
	RefundedTotalCents int64 `gorm:"column:refunded_total_cents;not null;default:0"`

	SupplierOrderID *string `gorm:"column:supplier_order_id"`
	TrackingNumber  *string `gorm:"column:tracking_number"`
	TrackingURL     *string `gorm:"column:tracking_url"`
	Notes           *string `gorm:"column:notes"`

	PaidAt          *time.Time `gorm:"column:paid_at"`
	FundsReservedAt *time.Time `gorm:"column:funds_reserved_at"`
	ShippedAt       *time.Time `gorm:"column:shipped_at"`
	DeliveredAt     *time.Time `gorm:"column:delivered_at"`
	SettledAt       *time.Time `gorm:"column:settled_at"`
	CancelledAt     *time.Time `gorm:"column:cancelled_at"`
	RefundedAt      *time.Time `gorm:"column:refunded_at"`
	CreatedAt       time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time  `gorm:"column:updated_at;autoUpdateTime"`

	Items []OrderItem `gorm:"foreignKey:OrderID;references:ID"`
}

func (Order) TableName() string { return "orders" }
