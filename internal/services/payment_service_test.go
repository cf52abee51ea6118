package services_test

import (
	"context"
	"testing"

	"toko-checkout/internal/models"
	"toko-checkout/internal/services"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pendingOrder places a two-unit order of p (stock 5) for user-1.
func pendingOrder(t *testing.T, env *testEnv) *models.Order {
	t.Helper()
	env.seedProduct(t, "p", "12.50", 5)
	order, err := env.orders.CreateOrder(context.Background(), "user-1", orderRequest("pay", direct(item("p", 2))))
	require.NoError(t, err)
	return order
}

func eventTypes(events []models.OrderEvent) []models.EventType {
	out := make([]models.EventType, 0, len(events))
	for _, e := range events {
		out = append(out, e.EventType)
	}
	return out
}

func TestCreatePayment(t *testing.T) {
	env := newTestEnv(t, services.OrderConfig{})
	order := pendingOrder(t, env)
	ctx := context.Background()

	payment, err := env.payments.CreatePayment(ctx, "user-1", order.ID, "card")
	require.NoError(t, err)
	assert.NotEmpty(t, payment.ID)
	assert.Equal(t, models.PaymentInit, payment.Status)
	assert.True(t, payment.Amount.Equal(order.TotalAmount))

	_, err = env.payments.CreatePayment(ctx, "user-2", order.ID, "card")
	assert.ErrorIs(t, err, services.ErrForbidden)

	_, err = env.payments.CreatePayment(ctx, "user-1", "missing", "card")
	assert.ErrorIs(t, err, services.ErrNotFound)

	_, err = env.payments.CreatePayment(ctx, "user-1", order.ID, "")
	assert.ErrorIs(t, err, services.ErrInvalidRequest)

	payments, err := env.payments.GetPayments(ctx, "user-1", order.ID)
	require.NoError(t, err)
	assert.Len(t, payments, 1)

	got, err := env.payments.GetPaymentStatus(ctx, "user-1", payment.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.ID, got.ID)

	_, err = env.payments.GetPaymentStatus(ctx, "user-2", payment.ID)
	assert.ErrorIs(t, err, services.ErrForbidden)
}

func TestApplyPaymentResult_SuccessPaysOrder(t *testing.T) {
	env := newTestEnv(t, services.OrderConfig{})
	order := pendingOrder(t, env)
	ctx := context.Background()

	payment, err := env.payments.CreatePayment(ctx, "user-1", order.ID, "card")
	require.NoError(t, err)

	settled, err := env.payments.ApplyPaymentResult(ctx, models.PaymentResult{
		PaymentID:   payment.ID,
		Succeeded:   true,
		ProviderRef: "ch_123",
	})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentSucceeded, settled.Status)
	assert.Equal(t, "ch_123", settled.ProviderRef)

	stored, err := env.orders.GetOrder(ctx, "user-1", order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaid, stored.Status)
	assert.NotNil(t, stored.PaidAt)
	assert.Equal(t, []models.EventType{models.EventOrderCreated, models.EventOrderPaid}, eventTypes(stored.Events))
	status, err := models.DeriveStatus(stored.Events)
	require.NoError(t, err)
	assert.Equal(t, stored.Status, status)

	assert.Equal(t, 3, env.stock(t, "p"))
	assert.EqualValues(t, 2, env.count(t, &models.OutboxMessage{}))
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.PaymentResults.WithLabelValues("succeeded")))

	// Paid orders cannot take another payment or be cancelled.
	_, err = env.payments.CreatePayment(ctx, "user-1", order.ID, "card")
	assert.ErrorIs(t, err, services.ErrInvalidState)
	_, err = env.payments.CancelOrder(ctx, "user-1", order.ID, "changed my mind")
	assert.ErrorIs(t, err, services.ErrInvalidState)
}

func TestApplyPaymentResult_FailureCancelsAndRestocks(t *testing.T) {
	env := newTestEnv(t, services.OrderConfig{})
	order := pendingOrder(t, env)
	ctx := context.Background()
	require.Equal(t, 3, env.stock(t, "p"))

	payment, err := env.payments.CreatePayment(ctx, "user-1", order.ID, "card")
	require.NoError(t, err)

	settled, err := env.payments.ApplyPaymentResult(ctx, models.PaymentResult{
		PaymentID: payment.ID,
		Reason:    "card declined",
	})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentFailed, settled.Status)

	stored, err := env.orders.GetOrder(ctx, "user-1", order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, stored.Status)
	require.Len(t, stored.Events, 2)
	assert.Equal(t, "card declined", stored.Events[1].Metadata["reason"])
	assert.Equal(t, 5, env.stock(t, "p"))
}

func TestApplyPaymentResult_ReplayIsNoOp(t *testing.T) {
	env := newTestEnv(t, services.OrderConfig{})
	order := pendingOrder(t, env)
	ctx := context.Background()

	payment, err := env.payments.CreatePayment(ctx, "user-1", order.ID, "card")
	require.NoError(t, err)
	result := models.PaymentResult{PaymentID: payment.ID, Succeeded: true}

	_, err = env.payments.ApplyPaymentResult(ctx, result)
	require.NoError(t, err)
	again, err := env.payments.ApplyPaymentResult(ctx, result)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentSucceeded, again.Status)

	events, err := env.store.Orders().ListEvents(ctx, order.ID)
	require.NoError(t, err)
	assert.Len(t, events, 2)
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.PaymentResults.WithLabelValues("replay")))
}

func TestApplyPaymentResult_LateSuccessAfterCancel(t *testing.T) {
	env := newTestEnv(t, services.OrderConfig{})
	order := pendingOrder(t, env)
	ctx := context.Background()

	payment, err := env.payments.CreatePayment(ctx, "user-1", order.ID, "card")
	require.NoError(t, err)
	_, err = env.payments.CancelOrder(ctx, "user-1", order.ID, "")
	require.NoError(t, err)

	settled, err := env.payments.ApplyPaymentResult(ctx, models.PaymentResult{PaymentID: payment.ID, Succeeded: true})
	assert.ErrorIs(t, err, services.ErrInvalidState)
	require.NotNil(t, settled)
	assert.Equal(t, models.PaymentSucceeded, settled.Status)

	stored, err := env.orders.GetOrder(ctx, "user-1", order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, stored.Status)
	assert.Len(t, stored.Events, 2)
	assert.Equal(t, 5, env.stock(t, "p"))
}

func TestApplyPaymentResult_UnknownPayment(t *testing.T) {
	env := newTestEnv(t, services.OrderConfig{})

	_, err := env.payments.ApplyPaymentResult(context.Background(), models.PaymentResult{PaymentID: "missing"})
	assert.ErrorIs(t, err, services.ErrNotFound)
	_, err = env.payments.ApplyPaymentResult(context.Background(), models.PaymentResult{})
	assert.ErrorIs(t, err, services.ErrInvalidRequest)
}

func TestCancelOrder(t *testing.T) {
	env := newTestEnv(t, services.OrderConfig{})
	order := pendingOrder(t, env)
	ctx := context.Background()

	_, err := env.payments.CancelOrder(ctx, "user-2", order.ID, "")
	assert.ErrorIs(t, err, services.ErrForbidden)
	assert.Equal(t, 3, env.stock(t, "p"))

	cancelled, err := env.payments.CancelOrder(ctx, "user-1", order.ID, "changed my mind")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, cancelled.Status)
	assert.NotNil(t, cancelled.CancelledAt)
	assert.Equal(t, 5, env.stock(t, "p"))

	// A second cancel neither fails nor restocks twice.
	again, err := env.payments.CancelOrder(ctx, "user-1", order.ID, "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, again.Status)
	assert.Equal(t, 5, env.stock(t, "p"))

	_, err = env.payments.ExpireOrder(ctx, order.ID, "")
	assert.ErrorIs(t, err, services.ErrInvalidState)
	_, err = env.payments.CreatePayment(ctx, "user-1", order.ID, "card")
	assert.ErrorIs(t, err, services.ErrInvalidState)
}

func TestExpireOrder(t *testing.T) {
	env := newTestEnv(t, services.OrderConfig{})
	order := pendingOrder(t, env)
	ctx := context.Background()

	expired, err := env.payments.ExpireOrder(ctx, order.ID, "payment window elapsed")
	require.NoError(t, err)
	assert.Equal(t, models.StatusExpired, expired.Status)
	assert.NotNil(t, expired.ExpiredAt)
	assert.Equal(t, 5, env.stock(t, "p"))

	_, err = env.payments.ExpireOrder(ctx, order.ID, "")
	require.NoError(t, err)
	assert.Equal(t, 5, env.stock(t, "p"))

	stored, err := env.orders.GetOrder(ctx, "user-1", order.ID)
	require.NoError(t, err)
	assert.Equal(t, []models.EventType{models.EventOrderCreated, models.EventOrderExpired}, eventTypes(stored.Events))

	_, err = env.payments.ExpireOrder(ctx, "missing", "")
	assert.ErrorIs(t, err, services.ErrNotFound)
}
