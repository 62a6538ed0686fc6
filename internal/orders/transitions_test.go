package orders

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/angelmondragon/orderportal/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderportal/pkg/errors"
)

func TestTransitionTable(t *testing.T) {
	statuses := []enums.OrderStatus{
		enums.OrderStatusPending,
		enums.OrderStatusPreparing,
		enums.OrderStatusReady,
		enums.OrderStatusDelivered,
		enums.OrderStatusCancelled,
	}
	allowed := map[[2]enums.OrderStatus]bool{
		{enums.OrderStatusPending, enums.OrderStatusPreparing}:   true,
		{enums.OrderStatusPreparing, enums.OrderStatusReady}:     true,
		{enums.OrderStatusReady, enums.OrderStatusDelivered}:     true,
		{enums.OrderStatusPending, enums.OrderStatusCancelled}:   true,
		{enums.OrderStatusPreparing, enums.OrderStatusCancelled}: true,
		{enums.OrderStatusReady, enums.OrderStatusCancelled}:     true,
	}
	for _, from := range statuses {
		for _, to := range statuses {
			want := allowed[[2]enums.OrderStatus{from, to}]
			assert.Equal(t, want, CanTransition(from, to), "%s -> %s", from, to)
			if !want {
				assert.True(t, pkgerrors.IsCode(ValidateTransition(from, to), pkgerrors.CodeStateConflict), "%s -> %s", from, to)
			}
		}
	}
}

func TestTransitionMessages(t *testing.T) {
	cases := []struct {
		from, to enums.OrderStatus
		message  string
	}{
		{enums.OrderStatusDelivered, enums.OrderStatusCancelled, "cannot cancel a delivered order"},
		{enums.OrderStatusCancelled, enums.OrderStatusPending, "order already cancelled"},
		{enums.OrderStatusCancelled, enums.OrderStatusCancelled, "order already cancelled"},
		{enums.OrderStatusPending, enums.OrderStatusDelivered, "invalid status transition"},
		{enums.OrderStatusReady, enums.OrderStatusPreparing, "invalid status transition"},
	}
	for _, tc := range cases {
		err := pkgerrors.As(ValidateTransition(tc.from, tc.to))
		if assert.NotNil(t, err) {
			assert.Equal(t, tc.message, err.Message())
		}
	}
	assert.True(t, pkgerrors.IsCode(ValidateTransition("bogus", enums.OrderStatusReady), pkgerrors.CodeValidation))
}

func TestNextStatus(t *testing.T) {
	next, ok := NextStatus(enums.OrderStatusPreparing)
	assert.True(t, ok)
	assert.Equal(t, enums.OrderStatusReady, next)
	_, ok = NextStatus(enums.OrderStatusDelivered)
	assert.False(t, ok)
}

func TestNewOrderNumberShape(t *testing.T) {
	now := time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC)
	number, err := NewOrderNumber(now)
	assert.NoError(t, err)
	assert.True(t, ValidOrderNumber(number), number)
	assert.Equal(t, "ORD-20260309-", number[:13])
	assert.False(t, ValidOrderNumber("ORD-2026039-ABCD"))
}
