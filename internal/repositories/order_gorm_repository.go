package repositories

import (
	"context"
	"fmt"

	"toko-checkout/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OrderRepository defines the interface for order data access. Status is only
// changed by Create and AppendEvent, which persist the event that causes it.
type OrderRepository interface {
	Create(ctx context.Context, order *models.Order, created *models.OrderEvent) error
	AppendEvent(ctx context.Context, order *models.Order, event *models.OrderEvent) error
	GetByID(ctx context.Context, id string) (*models.Order, error)
	GetByIdempotencyKey(ctx context.Context, userID, key string) (*models.Order, error)
	LockByID(ctx context.Context, id string) (*models.Order, error)
	List(ctx context.Context, userID string, filter models.OrderFilter) ([]models.Order, int64, error)
	ListEvents(ctx context.Context, orderID string) ([]models.OrderEvent, error)
}

// GORMOrderRepository is a GORM implementation of OrderRepository.
type GORMOrderRepository struct {
	db *gorm.DB
}

// NewGORMOrderRepository creates a new instance of GORMOrderRepository.
func NewGORMOrderRepository(db *gorm.DB) *GORMOrderRepository {
	return &GORMOrderRepository{db: db}
}

// Create applies the creation event to order and inserts the order, its items
// and the event.
func (r *GORMOrderRepository) Create(ctx context.Context, order *models.Order, created *models.OrderEvent) error {
	if order.ID == "" {
		order.ID = uuid.New().String()
	}
	if err := order.ApplyEvent(created); err != nil {
		return err
	}
	for i := range order.Items {
		if order.Items[i].ID == "" {
			order.Items[i].ID = uuid.New().String()
		}
		order.Items[i].OrderID = order.ID
	}
	if created.ID == "" {
		created.ID = uuid.New().String()
	}
	created.Seq = 1

	db := r.db.WithContext(ctx)
	if err := db.Omit("Events").Create(order).Error; err != nil {
		return fmt.Errorf("failed to create order: %w", TranslateError(err))
	}
	if err := db.Create(created).Error; err != nil {
		return fmt.Errorf("failed to append %s to order %s: %w", created.EventType, order.ID, TranslateError(err))
	}
	return nil
}

// AppendEvent inserts event and refreshes the cached status projection of
// order in the same statement batch. Callers hold the order row lock.
func (r *GORMOrderRepository) AppendEvent(ctx context.Context, order *models.Order, event *models.OrderEvent) error {
	if err := order.ApplyEvent(event); err != nil {
		return err
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	db := r.db.WithContext(ctx)
	var last int
	err := db.Model(&models.OrderEvent{}).
		Where("order_id = ?", order.ID).
		Select("COALESCE(MAX(seq), 0)").
		Scan(&last).Error
	if err != nil {
		return fmt.Errorf("failed to read event sequence of order %s: %w", order.ID, TranslateError(err))
	}
	event.Seq = last + 1
	if err := db.Create(event).Error; err != nil {
		return fmt.Errorf("failed to append %s to order %s: %w", event.EventType, order.ID, TranslateError(err))
	}
	res := db.Model(&models.Order{}).Where("id = ?", order.ID).Updates(map[string]any{
		"status":       order.Status,
		"paid_at":      order.PaidAt,
		"cancelled_at": order.CancelledAt,
		"expired_at":   order.ExpiredAt,
	})
	if res.Error != nil {
		return fmt.Errorf("failed to project status of order %s: %w", order.ID, TranslateError(res.Error))
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("order with ID %s not found: %w", order.ID, ErrRecordNotFound)
	}
	return nil
}

// GetByID retrieves an order with its items and events.
func (r *GORMOrderRepository) GetByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("product_id") }).
		Preload("Events", func(db *gorm.DB) *gorm.DB { return db.Order("seq") }).
		First(&order, "id = ?", id).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get order by ID %s: %w", id, TranslateError(err))
	}
	return &order, nil
}

// GetByIdempotencyKey finds the order a user created with key.
func (r *GORMOrderRepository) GetByIdempotencyKey(ctx context.Context, userID, key string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("product_id") }).
		First(&order, "user_id = ? AND idempotency_key = ?", userID, key).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get order of user %s by idempotency key: %w", userID, TranslateError(err))
	}
	return &order, nil
}

// LockByID reads an order with its items under a row lock.
func (r *GORMOrderRepository) LockByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&order, "id = ?", id).Error
	if err != nil {
		return nil, fmt.Errorf("failed to lock order %s: %w", id, TranslateError(err))
	}
	if err := r.db.WithContext(ctx).Where("order_id = ?", id).Order("product_id").Find(&order.Items).Error; err != nil {
		return nil, fmt.Errorf("failed to load items of order %s: %w", id, TranslateError(err))
	}
	return &order, nil
}

// List returns one page of a user's orders, newest first, and the total
// number of matching orders.
func (r *GORMOrderRepository) List(ctx context.Context, userID string, filter models.OrderFilter) ([]models.Order, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.Order{}).Where("user_id = ?", userID)
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.From != nil {
		q = q.Where("created_at >= ?", *filter.From)
	}
	if filter.To != nil {
		q = q.Where("created_at < ?", *filter.To)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count orders of user %s: %w", userID, TranslateError(err))
	}

	var orders []models.Order
	err := q.Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("product_id") }).
		Order("created_at DESC, id").
		Offset((filter.Page - 1) * filter.PageSize).
		Limit(filter.PageSize).
		Find(&orders).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list orders of user %s: %w", userID, TranslateError(err))
	}
	return orders, total, nil
}

// ListEvents returns the event log of an order in Seq order.
func (r *GORMOrderRepository) ListEvents(ctx context.Context, orderID string) ([]models.OrderEvent, error) {
	var events []models.OrderEvent
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Order("seq").Find(&events).Error; err != nil {
		return nil, fmt.Errorf("failed to list events of order %s: %w", orderID, TranslateError(err))
	}
	return events, nil
}
