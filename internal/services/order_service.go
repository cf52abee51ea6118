package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"toko-checkout/internal/models"
	"toko-checkout/internal/repositories"
	"toko-checkout/pkg/metrics"
)

// OrderConfig bounds the order creation transaction.
type OrderConfig struct {
	// TxTimeout caps one transaction attempt. Zero means no deadline.
	TxTimeout time.Duration
	// LockTimeout caps each row-lock wait where the database supports it.
	LockTimeout time.Duration
	// MaxAttempts is the number of times a busy or timed out transaction is
	// run. 1 surfaces the first Busy to the caller.
	MaxAttempts int
	BaseDelay   time.Duration
	EventTopic  string
}

// CreateOrderRequest is one logical purchase.
type CreateOrderRequest struct {
	Source         models.ItemSource
	IdempotencyKey string
}

// OrderPage is one page of a user's order history.
type OrderPage struct {
	Orders   []models.Order `json:"orders"`
	Total    int64          `json:"total"`
	Page     int            `json:"page"`
	PageSize int            `json:"page_size"`
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// OrderService turns item sources into orders.
type OrderService struct {
	store   repositories.TxManager
	guard   *IdempotencyGuard
	pricing PricingPolicy
	metrics *metrics.Metrics
	cfg     OrderConfig
}

// NewOrderService creates a new OrderService.
func NewOrderService(store repositories.TxManager, guard *IdempotencyGuard, pricing PricingPolicy, m *metrics.Metrics, cfg OrderConfig) *OrderService {
	if pricing == nil {
		pricing = ZeroPricing{}
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 50 * time.Millisecond
	}
	if cfg.EventTopic == "" {
		cfg.EventTopic = DefaultEventTopic
	}
	return &OrderService{
		store:   store,
		guard:   guard,
		pricing: pricing,
		metrics: m,
		cfg:     cfg,
	}
}

// CreateOrder places an order for userID. Resubmitting a key that already
// produced an order returns a *DuplicateRequestError carrying that order.
// Busy and timed out transactions are re-run up to MaxAttempts times with
// exponential backoff; the duplicate check is repeated on every attempt.
func (s *OrderService) CreateOrder(ctx context.Context, userID string, req CreateOrderRequest) (*models.Order, error) {
	if userID == "" {
		return nil, invalidRequest("user id is required")
	}
	if err := ValidateIdempotencyKey(req.IdempotencyKey); err != nil {
		return nil, err
	}
	if req.Source == nil {
		return nil, invalidRequest("item source is required")
	}

	for attempt := 1; ; attempt++ {
		order, err := s.createOnce(ctx, userID, req)
		if err == nil {
			s.metrics.ObserveOrder(metrics.OutcomeCreated)
			s.guard.Remember(ctx, order)
			log.Printf("Order %s created for user %s (key %s, total %s)", order.ID, userID, req.IdempotencyKey, order.TotalAmount)
			return order, nil
		}
		if !retryable(err) || attempt >= s.cfg.MaxAttempts || ctx.Err() != nil {
			s.metrics.ObserveOrder(outcomeOf(err))
			if !errors.Is(err, ErrDuplicateRequest) {
				log.Printf("Order creation failed for user %s (key %s, attempt %d): %v", userID, req.IdempotencyKey, attempt, err)
			}
			return nil, err
		}

		s.metrics.ObserveRetry()
		delay := s.cfg.BaseDelay << (attempt - 1)
		log.Printf("Order creation for user %s (key %s) hit %v, retrying in %s", userID, req.IdempotencyKey, err, delay)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())
		case <-timer.C:
		}
	}
}

func (s *OrderService) createOnce(ctx context.Context, userID string, req CreateOrderRequest) (*models.Order, error) {
	if err := s.guard.EnsureNotDuplicate(ctx, userID, req.IdempotencyKey); err != nil {
		return nil, err
	}

	txCtx := ctx
	if s.cfg.TxTimeout > 0 {
		var cancel context.CancelFunc
		txCtx, cancel = context.WithTimeout(ctx, s.cfg.TxTimeout)
		defer cancel()
	}

	start := time.Now()
	var order *models.Order
	err := s.store.WithinTransaction(txCtx, repositories.TxOptions{LockTimeout: s.cfg.LockTimeout}, func(tx repositories.Repos) error {
		var err error
		order, err = s.placeOrder(txCtx, tx, userID, req)
		return err
	})
	s.metrics.ObserveTx(time.Since(start))
	if err == nil {
		return order, nil
	}

	if raced(err) {
		// A concurrent request with the same key may have committed first and
		// taken the stock or cart lines this attempt needed.
		existing, lookupErr := s.guard.Existing(ctx, userID, req.IdempotencyKey)
		switch {
		case lookupErr == nil:
			return nil, &DuplicateRequestError{Order: existing}
		case errors.Is(err, repositories.ErrDuplicateKey):
			return nil, fmt.Errorf("%w: order for idempotency key %s committed concurrently but could not be read: %v", ErrBusy, req.IdempotencyKey, lookupErr)
		}
	}
	return nil, classify(err)
}

// raced reports whether a failed order transaction may have lost to a
// concurrent request with the same idempotency key.
func raced(err error) bool {
	return errors.Is(err, repositories.ErrDuplicateKey) ||
		errors.Is(err, ErrOutOfStock) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, repositories.ErrRecordNotFound)
}

// placeOrder is the body of the order transaction. Products are locked in
// ascending ID order, so overlapping checkouts cannot deadlock.
func (s *OrderService) placeOrder(ctx context.Context, tx repositories.Repos, userID string, req CreateOrderRequest) (*models.Order, error) {
	resolved, err := resolveSource(ctx, tx.Carts(), userID, req.Source)
	if err != nil {
		return nil, err
	}

	items := make([]models.CheckoutItem, 0, len(resolved.lines))
	for _, line := range resolved.lines {
		product, err := tx.Products().LockAndRead(ctx, line.ProductID)
		if err != nil {
			if errors.Is(err, repositories.ErrRecordNotFound) {
				return nil, fmt.Errorf("%w: product %s", ErrNotFound, line.ProductID)
			}
			return nil, err
		}
		if !product.IsActive() {
			return nil, invalidRequest("product %s is not active", product.ID)
		}
		if line.Quantity > product.Stock {
			return nil, &OutOfStockError{ProductID: product.ID, Requested: line.Quantity, Available: product.Stock}
		}
		if err := tx.Products().DecrementStock(ctx, product.ID, line.Quantity); err != nil {
			if errors.Is(err, repositories.ErrInsufficientStock) {
				return nil, &OutOfStockError{ProductID: product.ID, Requested: line.Quantity, Available: product.Stock}
			}
			return nil, err
		}
		items = append(items, priceLine(product, line.Quantity))
	}

	totals, err := breakdown(ctx, s.pricing, userID, items)
	if err != nil {
		return nil, fmt.Errorf("%w: pricing policy: %w", ErrInternal, err)
	}

	order := &models.Order{
		UserID:         userID,
		IdempotencyKey: req.IdempotencyKey,
		Source:         req.Source.Kind(),
		SubTotal:       totals.SubTotal,
		ShippingCost:   totals.ShippingCost,
		Discount:       totals.Discount,
		TotalAmount:    totals.TotalAmount,
		Items:          make([]models.OrderItem, 0, len(items)),
	}
	for _, item := range items {
		order.Items = append(order.Items, models.OrderItem{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			UnitPrice:   item.Price,
			Quantity:    item.Quantity,
			LineTotal:   item.LineTotal,
		})
	}

	meta := models.Metadata{
		"source":     string(req.Source.Kind()),
		"item_count": len(items),
	}
	if len(resolved.cartItemIDs) > 0 {
		meta["cart_item_ids"] = resolved.cartItemIDs
	}
	created := &models.OrderEvent{EventType: models.EventOrderCreated, Metadata: meta}
	if err := tx.Orders().Create(ctx, order, created); err != nil {
		return nil, err
	}
	order.Events = []models.OrderEvent{*created}
	if err := enqueueEvent(ctx, tx, s.cfg.EventTopic, order, created); err != nil {
		return nil, err
	}

	if len(resolved.cartItemIDs) > 0 {
		if err := tx.Carts().DeleteItems(ctx, userID, resolved.cartItemIDs); err != nil {
			if errors.Is(err, repositories.ErrRecordNotFound) {
				return nil, fmt.Errorf("%w: cart items were consumed by another checkout", ErrNotFound)
			}
			return nil, err
		}
	}
	return order, nil
}

// GetOrder returns one of userID's orders with its items and event log.
func (s *OrderService) GetOrder(ctx context.Context, userID, orderID string) (*models.Order, error) {
	order, err := s.store.Orders().GetByID(ctx, orderID)
	if err != nil {
		return nil, classify(err)
	}
	if order.UserID != userID {
		return nil, fmt.Errorf("%w: order %s belongs to another user", ErrForbidden, orderID)
	}
	return order, nil
}

// ListOrders returns a page of userID's orders, newest first.
func (s *OrderService) ListOrders(ctx context.Context, userID string, filter models.OrderFilter) (*OrderPage, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, invalidRequest("unknown order status %q", filter.Status)
	}
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return nil, invalidRequest("'to' must not be before 'from'")
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	switch {
	case filter.PageSize < 1:
		filter.PageSize = defaultPageSize
	case filter.PageSize > maxPageSize:
		filter.PageSize = maxPageSize
	}

	orders, total, err := s.store.Orders().List(ctx, userID, filter)
	if err != nil {
		return nil, classify(err)
	}
	if orders == nil {
		orders = []models.Order{}
	}
	return &OrderPage{Orders: orders, Total: total, Page: filter.Page, PageSize: filter.PageSize}, nil
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, ErrDuplicateRequest):
		return metrics.OutcomeDuplicate
	case errors.Is(err, ErrOutOfStock):
		return metrics.OutcomeOutOfStock
	case errors.Is(err, ErrBusy):
		return metrics.OutcomeBusy
	case errors.Is(err, ErrTimeout):
		return metrics.OutcomeTimeout
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, ErrNotFound):
		return metrics.OutcomeRejected
	}
	return metrics.OutcomeError
}
