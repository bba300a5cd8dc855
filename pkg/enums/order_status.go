package enums

import "fmt"

// OrderStatus maps to the order_status enum in Postgres.
type OrderStatus string

const (
	OrderStatusPendingPayment      OrderStatus = "pending_payment"
	OrderStatusPaid                OrderStatus = "paid"
	OrderStatusFundsReserved       OrderStatus = "funds_reserved"
	OrderStatusNeedsTopup          OrderStatus = "needs_topup"
	OrderStatusOrderedFromSupplier OrderStatus = "ordered_from_supplier"
	OrderStatusShipped             OrderStatus = "shipped"
	OrderStatusDelivered           OrderStatus = "delivered"
	OrderStatusSettled             OrderStatus = "settled"
	OrderStatusCancelled           OrderStatus = "cancelled"
	OrderStatusRefunded            OrderStatus = "refunded"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusPendingPayment,
	OrderStatusPaid,
	OrderStatusFundsReserved,
	OrderStatusNeedsTopup,
	OrderStatusOrderedFromSupplier,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusSettled,
	OrderStatusCancelled,
	OrderStatusRefunded,
}

// IsValid reports whether the value matches the canonical order status enum.
func (s OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseOrderStatus converts raw input into OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}

// IsTerminal reports whether no further transitions are allowed.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCancelled || s == OrderStatusRefunded
}

// HoldsReservation reports whether an order in this status is expected to
// have an open wallet reservation.
func (s OrderStatus) HoldsReservation() bool {
	switch s {
	case OrderStatusFundsReserved, OrderStatusOrderedFromSupplier, OrderStatusShipped, OrderStatusDelivered:
		return true
	default:
		return false
	}
}
