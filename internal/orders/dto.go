package orders

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/vendorisland/vendorisland-backend/pkg/db/models"
	"github.com/vendorisland/vendorisland-backend/pkg/enums"
	"github.com/vendorisland/vendorisland-backend/pkg/money"
)

// Scope restricts an operation to one vendor. A nil VendorID is the admin scope.
type Scope struct {
	VendorID *uuid.UUID
	UserID   uuid.UUID
	Role     enums.UserRole
}

// VendorScope builds the scope of a vendor-authenticated caller.
func VendorScope(vendorID, userID uuid.UUID) Scope {
	return Scope{VendorID: &vendorID, UserID: userID, Role: enums.RoleVendor}
}

// AdminScope builds the scope of a platform operator.
func AdminScope(userID uuid.UUID) Scope {
	return Scope{UserID: userID, Role: enums.RoleAdmin}
}

// IsAdmin reports whether the scope belongs to a platform operator.
func (s Scope) IsAdmin() bool {
	return s.VendorID == nil && s.Role == enums.RoleAdmin
}

// CreateOrderInput lands a storefront checkout.
type CreateOrderInput struct {
	VendorID        uuid.UUID
	StoreID         *uuid.UUID
	CustomerName    string
	CustomerEmail   string
	ShippingAddress json.RawMessage
	Notes           *string
	Items           []CreateOrderItem
}

// CreateOrderItem is the snapshot taken of one purchased product.
type CreateOrderItem struct {
	CatalogProductID  *uuid.UUID
	ProductName       string
	UnitPriceCents    int64
	CostPriceCents    int64
	ShippingCostCents int64
	Quantity          int
	VariantInfo       json.RawMessage
}

// TransitionInput requests a move to Target. Fields are read only by the
// transitions that need them.
type TransitionInput struct {
	OrderID         uuid.UUID
	Target          enums.OrderStatus
	Scope           Scope
	TotalPaidCents  int64
	SupplierOrderID string
	TrackingNumber  string
	TrackingURL     string
	RefundCents     int64
	Reason          string
}

// TransitionResult reports where an order ended up. NeedsTopup and
// RefundQueued are outcomes, not failures.
type TransitionResult struct {
	Order          *OrderDTO         `json:"order"`
	From           enums.OrderStatus `json:"from"`
	To             enums.OrderStatus `json:"to"`
	NeedsTopup     bool              `json:"needs_topup"`
	ShortfallCents int64             `json:"shortfall_cents,omitempty"`
	RefundQueued   bool              `json:"refund_queued,omitempty"`
	ProfitCents    *int64            `json:"profit_cents,omitempty"`
}

// ListFilters narrow the vendor order list.
type ListFilters struct {
	Status      *enums.OrderStatus
	StoreID     *uuid.UUID
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

// OrderList is one page of orders.
type OrderList struct {
	Orders     []OrderSummary `json:"orders"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// OrderSummary is the list view of an order.
type OrderSummary struct {
	ID             uuid.UUID         `json:"id"`
	OrderNumber    string            `json:"order_number"`
	Status         enums.OrderStatus `json:"status"`
	CustomerName   string            `json:"customer_name"`
	TotalPaidCents int64             `json:"total_paid_cents"`
	TotalPaid      string            `json:"total_paid"`
	ProfitCents    *int64            `json:"profit_cents,omitempty"`
	RefundPending  bool              `json:"refund_pending"`
	CreatedAt      time.Time         `json:"created_at"`
}

// TopupRetryResult summarizes one RetryTopup pass over a vendor's blocked orders.
type TopupRetryResult struct {
	VendorID       uuid.UUID   `json:"vendor_id"`
	Attempted      int         `json:"attempted"`
	Reserved       []uuid.UUID `json:"reserved,omitempty"`
	RefundsApplied []uuid.UUID `json:"refunds_applied,omitempty"`
	StillBlocked   []uuid.UUID `json:"still_blocked,omitempty"`
}

// OrderDTO is the detail view of an order.
type OrderDTO struct {
	ID                  uuid.UUID         `json:"id"`
	OrderNumber         string            `json:"order_number"`
	VendorID            uuid.UUID         `json:"vendor_id"`
	StoreID             *uuid.UUID        `json:"store_id,omitempty"`
	Status              enums.OrderStatus `json:"status"`
	CustomerName        string            `json:"customer_name"`
	CustomerEmail       string            `json:"customer_email"`
	ShippingAddress     json.RawMessage   `json:"shipping_address,omitempty"`
	SubtotalCents       int64             `json:"subtotal_cents"`
	ShippingTotalCents  int64             `json:"shipping_total_cents"`
	TotalPaidCents      int64             `json:"total_paid_cents"`
	SupplierCostCents   int64             `json:"supplier_cost_cents"`
	PlatformFeeCents    int64             `json:"platform_fee_cents"`
	ProfitCents         *int64            `json:"profit_cents,omitempty"`
	ReservedAmountCents int64             `json:"reserved_amount_cents"`
	Subtotal            string            `json:"subtotal"`
	TotalPaid           string            `json:"total_paid"`
	Profit              *string           `json:"profit,omitempty"`
	RefundPending       bool              `json:"refund_pending"`
	RefundAmountCents   int64             `json:"refund_amount_cents,omitempty"`
	RefundedTotalCents  int64             `json:"refunded_total_cents,omitempty"`
	SupplierOrderID     *string           `json:"supplier_order_id,omitempty"`
	TrackingNumber      *string           `json:"tracking_number,omitempty"`
	TrackingURL         *string           `json:"tracking_url,omitempty"`
	Notes               *string           `json:"notes,omitempty"`
	PaidAt              *time.Time        `json:"paid_at,omitempty"`
	FundsReservedAt     *time.Time        `json:"funds_reserved_at,omitempty"`
	ShippedAt           *time.Time        `json:"shipped_at,omitempty"`
	DeliveredAt         *time.Time        `json:"delivered_at,omitempty"`
	SettledAt           *time.Time        `json:"settled_at,omitempty"`
	CancelledAt         *time.Time        `json:"cancelled_at,omitempty"`
	RefundedAt          *time.Time        `json:"refunded_at,omitempty"`
	CreatedAt           time.Time         `json:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at"`
	Items               []OrderItemDTO    `json:"items,omitempty"`
}

// OrderItemDTO is a purchased product snapshot.
type OrderItemDTO struct {
	ID                uuid.UUID       `json:"id"`
	CatalogProductID  *uuid.UUID      `json:"catalog_product_id,omitempty"`
	ProductName       string          `json:"product_name"`
	UnitPriceCents    int64           `json:"unit_price_cents"`
	CostPriceCents    int64           `json:"cost_price_cents"`
	ShippingCostCents int64           `json:"shipping_cost_cents"`
	Quantity          int             `json:"quantity"`
	VariantInfo       json.RawMessage `json:"variant_info,omitempty"`
}

func toOrderDTO(o *models.Order) *OrderDTO {
	dto := &OrderDTO{
		ID:                  o.ID,
		OrderNumber:         o.OrderNumber,
		VendorID:            o.VendorID,
		StoreID:             o.StoreID,
		Status:              o.Status,
		CustomerName:        o.CustomerName,
		CustomerEmail:       o.CustomerEmail,
		ShippingAddress:     o.ShippingAddress,
		SubtotalCents:       o.SubtotalCents,
		ShippingTotalCents:  o.ShippingTotalCents,
		TotalPaidCents:      o.TotalPaidCents,
		SupplierCostCents:   o.SupplierCostCents,
		PlatformFeeCents:    o.PlatformFeeCents,
		ProfitCents:         o.ProfitCents,
		ReservedAmountCents: o.ReservedAmountCents,
		Subtotal:            money.FormatCents(o.SubtotalCents),
		TotalPaid:           money.FormatCents(o.TotalPaidCents),
		Profit:              money.FormatCentsPtr(o.ProfitCents),
		RefundPending:       o.RefundPending,
		RefundAmountCents:   o.RefundAmountCents,
		RefundedTotalCents:  o.RefundedTotalCents,
		SupplierOrderID:     o.SupplierOrderID,
		TrackingNumber:      o.TrackingNumber,
		TrackingURL:         o.TrackingURL,
		Notes:               o.Notes,
		PaidAt:              o.PaidAt,
		FundsReservedAt:     o.FundsReservedAt,
		ShippedAt:           o.ShippedAt,
		DeliveredAt:         o.DeliveredAt,
		SettledAt:           o.SettledAt,
		CancelledAt:         o.CancelledAt,
		RefundedAt:          o.RefundedAt,
		CreatedAt:           o.CreatedAt,
		UpdatedAt:           o.UpdatedAt,
	}
	for _, item := range o.Items {
		dto.Items = append(dto.Items, OrderItemDTO{
			ID:                item.ID,
			CatalogProductID:  item.CatalogProductID,
			ProductName:       item.ProductName,
			UnitPriceCents:    item.UnitPriceCents,
			CostPriceCents:    item.CostPriceCents,
			ShippingCostCents: item.ShippingCostCents,
			Quantity:          item.Quantity,
			VariantInfo:       item.VariantInfo,
		})
	}
	return dto
}

func toOrderSummary(o models.Order) OrderSummary {
	return OrderSummary{
		ID:             o.ID,
		OrderNumber:    o.OrderNumber,
		Status:         o.Status,
		CustomerName:   o.CustomerName,
		TotalPaidCents: o.TotalPaidCents,
		TotalPaid:      money.FormatCents(o.TotalPaidCents),
		ProfitCents:    o.ProfitCents,
		RefundPending:  o.RefundPending,
		CreatedAt:      o.CreatedAt,
	}
}
