package orders

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vendorisland/vendorisland-backend/pkg/enums"
	pkgerrors "github.com/vendorisland/vendorisland-backend/pkg/errors"
)

func TestValidateTransitionHappyPath(t *testing.T) {
	path := []enums.OrderStatus{
		enums.OrderStatusPendingPayment,
		enums.OrderStatusPaid,
		enums.OrderStatusFundsReserved,
		enums.OrderStatusOrderedFromSupplier,
		enums.OrderStatusShipped,
		enums.OrderStatusDelivered,
		enums.OrderStatusSettled,
		enums.OrderStatusRefunded,
	}
	for i := 0; i < len(path)-1; i++ {
		assert.NoError(t, ValidateTransition(path[i], path[i+1]), "%s -> %s", path[i], path[i+1])
	}
}

func TestValidateTransitionRejectsSkips(t *testing.T) {
	cases := []struct {
		from, to enums.OrderStatus
		reason   string
	}{
		{enums.OrderStatusPendingPayment, enums.OrderStatusShipped, "transition not allowed"},
		{enums.OrderStatusPaid, enums.OrderStatusSettled, "transition not allowed"},
		{enums.OrderStatusNeedsTopup, enums.OrderStatusOrderedFromSupplier, "transition not allowed"},
		{enums.OrderStatusSettled, enums.OrderStatusCancelled, "transition not allowed"},
		{enums.OrderStatusCancelled, enums.OrderStatusPaid, "order is closed"},
		{enums.OrderStatusRefunded, enums.OrderStatusRefunded, "order is closed"},
		{enums.OrderStatusShipped, enums.OrderStatusShipped, "order already in target status"},
	}
	for _, tc := range cases {
		err := ValidateTransition(tc.from, tc.to)
		require.Error(t, err, "%s -> %s", tc.from, tc.to)
		typed := pkgerrors.As(err)
		require.NotNil(t, typed)
		assert.Equal(t, pkgerrors.CodeStateConflict, typed.Code())
		assert.Equal(t, tc.reason, typed.Message())
	}
}

func TestValidateTransitionInvalidTarget(t *testing.T) {
	err := ValidateTransition(enums.OrderStatusPaid, enums.OrderStatus("lost"))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestAllowedTransitionsReturnsCopy(t *testing.T) {
	next := AllowedTransitions(enums.OrderStatusSettled)
	require.Equal(t, []enums.OrderStatus{enums.OrderStatusRefunded}, next)
	next[0] = enums.OrderStatusPaid
	assert.True(t, CanTransition(enums.OrderStatusSettled, enums.OrderStatusRefunded))
	assert.Empty(t, AllowedTransitions(enums.OrderStatusCancelled))
}
