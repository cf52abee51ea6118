package cache

import (
	"context"
	"errors"
)

// IdempotencyCache remembers which order a (user, idempotency key) pair
// produced. It is a fast path only; the orders table stays authoritative.
type IdempotencyCache interface {
	Get(ctx context.Context, userID, key string) (string, error)
	Set(ctx context.Context, userID, key, orderID string) error
}

var ErrCacheMiss = errors.New("cache miss")
