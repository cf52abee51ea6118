package services_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"toko-checkout/internal/cache"
	"toko-checkout/internal/models"
	"toko-checkout/internal/repositories"
	"toko-checkout/internal/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestValidateIdempotencyKey(t *testing.T) {
	for _, key := range []string{"a", "order:2026-01-01.retry_1", strings.Repeat("k", 128)} {
		assert.NoError(t, services.ValidateIdempotencyKey(key), key)
	}
	for _, key := range []string{"", "has space", "semi;colon", strings.Repeat("k", 129)} {
		assert.ErrorIs(t, services.ValidateIdempotencyKey(key), services.ErrInvalidRequest, key)
	}
}

func TestIdempotencyGuard_NoPriorOrder(t *testing.T) {
	orders := new(MockOrderRepository)
	guard := services.NewIdempotencyGuard(orders, nil)

	orders.On("GetByIdempotencyKey", mock.Anything, "user-1", "key-1").
		Return(nil, fmt.Errorf("lookup: %w", repositories.ErrRecordNotFound)).Once()

	assert.NoError(t, guard.EnsureNotDuplicate(context.Background(), "user-1", "key-1"))
	orders.AssertExpectations(t)
}

func TestIdempotencyGuard_DuplicateFromDatabaseIsCached(t *testing.T) {
	orders := new(MockOrderRepository)
	c := new(MockIdempotencyCache)
	guard := services.NewIdempotencyGuard(orders, c)
	existing := &models.Order{ID: "order-1", UserID: "user-1", IdempotencyKey: "key-1"}

	c.On("Get", mock.Anything, "user-1", "key-1").Return("", cache.ErrCacheMiss).Once()
	orders.On("GetByIdempotencyKey", mock.Anything, "user-1", "key-1").Return(existing, nil).Once()
	c.On("Set", mock.Anything, "user-1", "key-1", "order-1").Return(nil).Once()

	err := guard.EnsureNotDuplicate(context.Background(), "user-1", "key-1")
	require.ErrorIs(t, err, services.ErrDuplicateRequest)
	var dup *services.DuplicateRequestError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, "order-1", dup.Order.ID)
	orders.AssertExpectations(t)
	c.AssertExpectations(t)
}

func TestIdempotencyGuard_CacheHit(t *testing.T) {
	orders := new(MockOrderRepository)
	c := new(MockIdempotencyCache)
	guard := services.NewIdempotencyGuard(orders, c)
	existing := &models.Order{ID: "order-1", UserID: "user-1", IdempotencyKey: "key-1"}

	c.On("Get", mock.Anything, "user-1", "key-1").Return("order-1", nil).Once()
	orders.On("GetByID", mock.Anything, "order-1").Return(existing, nil).Once()

	err := guard.EnsureNotDuplicate(context.Background(), "user-1", "key-1")
	assert.ErrorIs(t, err, services.ErrDuplicateRequest)
	orders.AssertNotCalled(t, "GetByIdempotencyKey", mock.Anything, mock.Anything, mock.Anything)
}

func TestIdempotencyGuard_CacheFailureFallsBackToDatabase(t *testing.T) {
	orders := new(MockOrderRepository)
	c := new(MockIdempotencyCache)
	guard := services.NewIdempotencyGuard(orders, c)

	c.On("Get", mock.Anything, "user-1", "key-1").Return("", errors.New("redis down")).Once()
	orders.On("GetByIdempotencyKey", mock.Anything, "user-1", "key-1").
		Return(nil, repositories.ErrRecordNotFound).Once()

	assert.NoError(t, guard.EnsureNotDuplicate(context.Background(), "user-1", "key-1"))
	orders.AssertExpectations(t)
}

func TestIdempotencyGuard_DatabaseErrorIsClassified(t *testing.T) {
	orders := new(MockOrderRepository)
	guard := services.NewIdempotencyGuard(orders, nil)

	orders.On("GetByIdempotencyKey", mock.Anything, "user-1", "key-1").
		Return(nil, fmt.Errorf("select: %w", repositories.ErrLockUnavailable)).Once()

	assert.ErrorIs(t, guard.EnsureNotDuplicate(context.Background(), "user-1", "key-1"), services.ErrBusy)
}
