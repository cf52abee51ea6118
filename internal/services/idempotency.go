package services

import (
	"context"
	"errors"
	"log"
	"regexp"

	"toko-checkout/internal/cache"
	"toko-checkout/internal/models"
	"toko-checkout/internal/repositories"
)

var idempotencyKeyPattern = regexp.MustCompile(`^[A-Za-z0-9_.:-]{1,128}$`)

// ValidateIdempotencyKey accepts 1 to 128 characters of letters, digits and
// "_.:-".
func ValidateIdempotencyKey(key string) error {
	if !idempotencyKeyPattern.MatchString(key) {
		return invalidRequest("idempotency key must be 1-128 characters of [A-Za-z0-9_.:-]")
	}
	return nil
}

// IdempotencyGuard detects resubmissions of an already satisfied order
// request. The unique (user_id, idempotency_key) index is the enforcement;
// the guard only saves lock work for the common retry case.
type IdempotencyGuard struct {
	orders repositories.OrderRepository
	cache  cache.IdempotencyCache
}

// NewIdempotencyGuard creates a guard. c may be nil to skip the cache.
func NewIdempotencyGuard(orders repositories.OrderRepository, c cache.IdempotencyCache) *IdempotencyGuard {
	return &IdempotencyGuard{orders: orders, cache: c}
}

// EnsureNotDuplicate returns a *DuplicateRequestError carrying the existing
// order when userID already used key, and nil otherwise.
func (g *IdempotencyGuard) EnsureNotDuplicate(ctx context.Context, userID, key string) error {
	if existing := g.fromCache(ctx, userID, key); existing != nil {
		return &DuplicateRequestError{Order: existing}
	}

	existing, err := g.orders.GetByIdempotencyKey(ctx, userID, key)
	switch {
	case err == nil:
		g.Remember(ctx, existing)
		return &DuplicateRequestError{Order: existing}
	case errors.Is(err, repositories.ErrRecordNotFound):
		return nil
	default:
		return classify(err)
	}
}

// Existing looks up the order that owns key, bypassing the cache. Used after
// losing an insert race on the unique index.
func (g *IdempotencyGuard) Existing(ctx context.Context, userID, key string) (*models.Order, error) {
	order, err := g.orders.GetByIdempotencyKey(ctx, userID, key)
	if err != nil {
		return nil, classify(err)
	}
	return order, nil
}

// Remember caches the key of a committed order. Failures only cost the fast
// path and are logged.
func (g *IdempotencyGuard) Remember(ctx context.Context, order *models.Order) {
	if g.cache == nil {
		return
	}
	if err := g.cache.Set(ctx, order.UserID, order.IdempotencyKey, order.ID); err != nil {
		log.Printf("Failed to cache idempotency key for order %s: %v", order.ID, err)
	}
}

func (g *IdempotencyGuard) fromCache(ctx context.Context, userID, key string) *models.Order {
	if g.cache == nil {
		return nil
	}
	orderID, err := g.cache.Get(ctx, userID, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			log.Printf("Idempotency cache unavailable, falling back to database: %v", err)
		}
		return nil
	}
	order, err := g.orders.GetByID(ctx, orderID)
	if err != nil || order.UserID != userID || order.IdempotencyKey != key {
		return nil
	}
	return order
}
