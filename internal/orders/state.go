package orders

import (
	"github.com/vendorisland/vendorisland-backend/pkg/enums"
	pkgerrors "github.com/vendorisland/vendorisland-backend/pkg/errors"
)

// transitions lists the statuses reachable from each status. cancelled and
// refunded are absorbing; settled only admits a refund.
var transitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusPendingPayment: {
		enums.OrderStatusPaid,
		enums.OrderStatusCancelled,
	},
	enums.OrderStatusPaid: {
		enums.OrderStatusFundsReserved,
		enums.OrderStatusNeedsTopup,
		enums.OrderStatusCancelled,
		enums.OrderStatusRefunded,
	},
	enums.OrderStatusNeedsTopup: {
		enums.OrderStatusFundsReserved,
		enums.OrderStatusCancelled,
		enums.OrderStatusRefunded,
	},
	enums.OrderStatusFundsReserved: {
		enums.OrderStatusOrderedFromSupplier,
		enums.OrderStatusCancelled,
		enums.OrderStatusRefunded,
	},
	enums.OrderStatusOrderedFromSupplier: {
		enums.OrderStatusShipped,
		enums.OrderStatusCancelled,
		enums.OrderStatusRefunded,
	},
	enums.OrderStatusShipped: {
		enums.OrderStatusDelivered,
		enums.OrderStatusCancelled,
		enums.OrderStatusRefunded,
	},
	enums.OrderStatusDelivered: {
		enums.OrderStatusSettled,
		enums.OrderStatusCancelled,
		enums.OrderStatusRefunded,
	},
	enums.OrderStatusSettled: {
		enums.OrderStatusRefunded,
	},
}

// AllowedTransitions returns the statuses reachable from the provided one.
func AllowedTransitions(from enums.OrderStatus) []enums.OrderStatus {
	next := transitions[from]
	out := make([]enums.OrderStatus, len(next))
	copy(out, next)
	return out
}

// CanTransition reports whether from -> to is an edge of the order state machine.
func CanTransition(from, to enums.OrderStatus) bool {
	for _, candidate := range transitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns a state conflict describing the rejected edge.
func ValidateTransition(from, to enums.OrderStatus) error {
	if !to.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid target status")
	}
	if CanTransition(from, to) {
		return nil
	}
	reason := "transition not allowed"
	switch {
	case from.IsTerminal():
		reason = "order is closed"
	case from == to:
		reason = "order already in target status"
	}
	return pkgerrors.New(pkgerrors.CodeStateConflict, reason).WithDetails(map[string]any{
		"from":    from,
		"to":      to,
		"allowed": AllowedTransitions(from),
	})
}
