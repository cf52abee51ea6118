package models_test

import (
	"testing"
	"time"

	"toko-checkout/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransition(t *testing.T) {
	cases := []struct {
		from    models.OrderStatus
		event   models.EventType
		want    models.OrderStatus
		illegal bool
	}{
		{"", models.EventOrderCreated, models.StatusPendingPayment, false},
		{models.StatusPendingPayment, models.EventOrderPaid, models.StatusPaid, false},
		{models.StatusPendingPayment, models.EventOrderCancelled, models.StatusCancelled, false},
		{models.StatusPendingPayment, models.EventOrderExpired, models.StatusExpired, false},
		{"", models.EventOrderPaid, "", true},
		{models.StatusPendingPayment, models.EventOrderCreated, models.StatusPendingPayment, true},
		{models.StatusPaid, models.EventOrderCancelled, models.StatusPaid, true},
		{models.StatusCancelled, models.EventOrderPaid, models.StatusCancelled, true},
		{models.StatusExpired, models.EventOrderPaid, models.StatusExpired, true},
	}
	for _, tc := range cases {
		got, err := models.Transition(tc.from, tc.event)
		if tc.illegal {
			assert.ErrorIs(t, err, models.ErrIllegalTransition, "%s -> %s", tc.from, tc.event)
		} else {
			assert.NoError(t, err, "%s -> %s", tc.from, tc.event)
		}
		assert.Equal(t, tc.want, got)
	}
}

func TestDeriveStatus(t *testing.T) {
	events := []models.OrderEvent{
		{EventType: models.EventOrderCreated},
		{EventType: models.EventOrderPaid},
	}
	status, err := models.DeriveStatus(events)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaid, status)

	_, err = models.DeriveStatus(append(events, models.OrderEvent{EventType: models.EventOrderExpired}))
	assert.ErrorIs(t, err, models.ErrIllegalTransition)

	status, err = models.DeriveStatus(nil)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatus(""), status)
}

func TestDeriveStatusFollowsSeq(t *testing.T) {
	events := []models.OrderEvent{
		{Seq: 2, EventType: models.EventOrderCancelled},
		{Seq: 1, EventType: models.EventOrderCreated},
	}
	status, err := models.DeriveStatus(events)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, status)
	assert.Equal(t, 2, events[0].Seq)
}

func TestOrderApplyEventStampsTimestamps(t *testing.T) {
	order := &models.Order{ID: "order-1"}
	created := &models.OrderEvent{EventType: models.EventOrderCreated}
	require.NoError(t, order.ApplyEvent(created))
	assert.Equal(t, models.StatusPendingPayment, order.Status)
	assert.Equal(t, "order-1", created.OrderID)
	assert.False(t, created.CreatedAt.IsZero())

	paidAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, order.ApplyEvent(&models.OrderEvent{EventType: models.EventOrderPaid, CreatedAt: paidAt}))
	assert.Equal(t, models.StatusPaid, order.Status)
	require.NotNil(t, order.PaidAt)
	assert.Equal(t, paidAt, *order.PaidAt)
	assert.Nil(t, order.CancelledAt)

	err := order.ApplyEvent(&models.OrderEvent{EventType: models.EventOrderCancelled})
	assert.ErrorIs(t, err, models.ErrIllegalTransition)
	assert.Equal(t, models.StatusPaid, order.Status)
	assert.Nil(t, order.CancelledAt)
}

func TestOrderStatusPredicates(t *testing.T) {
	assert.True(t, models.StatusPaid.IsTerminal())
	assert.True(t, models.StatusExpired.IsTerminal())
	assert.False(t, models.StatusPendingPayment.IsTerminal())
	assert.True(t, models.StatusCancelled.Valid())
	assert.False(t, models.OrderStatus("shipped").Valid())
}

func TestNewBreakdown(t *testing.T) {
	b := models.NewBreakdown(decimal.RequireFromString("30.00"), decimal.RequireFromString("5.50"), decimal.RequireFromString("2.25"))
	assert.True(t, b.TotalAmount.Equal(decimal.RequireFromString("33.25")), b.TotalAmount.String())
}

func TestMetadataRoundTripThroughScanner(t *testing.T) {
	v, err := models.Metadata{"source": "CART", "item_count": 2}.Value()
	require.NoError(t, err)

	var m models.Metadata
	require.NoError(t, m.Scan(v))
	assert.Equal(t, "CART", m["source"])
	assert.EqualValues(t, 2, m["item_count"])

	require.NoError(t, m.Scan(nil))
	assert.Empty(t, m)
	assert.Error(t, m.Scan(42))
}
