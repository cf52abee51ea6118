package repositories

import (
	"context"
	"fmt"
	"time"

	"toko-checkout/internal/models"

	"gorm.io/gorm"
)

// OutboxRepository stores messages waiting to be relayed to the broker.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg *models.OutboxMessage) error
	FetchPending(ctx context.Context, limit int) ([]models.OutboxMessage, error)
	MarkSent(ctx context.Context, id uint) error
	MarkFailed(ctx context.Context, id uint, cause error) error
}

// GORMOutboxRepository is a GORM implementation of OutboxRepository.
type GORMOutboxRepository struct {
	db *gorm.DB
}

// NewGORMOutboxRepository creates a new instance of GORMOutboxRepository.
func NewGORMOutboxRepository(db *gorm.DB) *GORMOutboxRepository {
	return &GORMOutboxRepository{db: db}
}

// Enqueue inserts msg. Called inside the transaction that wrote the event.
func (r *GORMOutboxRepository) Enqueue(ctx context.Context, msg *models.OutboxMessage) error {
	if err := r.db.WithContext(ctx).Create(msg).Error; err != nil {
		return fmt.Errorf("failed to enqueue outbox message for event %s: %w", msg.EventID, TranslateError(err))
	}
	return nil
}

// FetchPending returns up to limit unsent messages in insertion order.
func (r *GORMOutboxRepository) FetchPending(ctx context.Context, limit int) ([]models.OutboxMessage, error) {
	var msgs []models.OutboxMessage
	err := r.db.WithContext(ctx).
		Where("sent_at IS NULL").
		Order("id").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pending outbox messages: %w", TranslateError(err))
	}
	return msgs, nil
}

// MarkSent stamps a message as delivered.
func (r *GORMOutboxRepository) MarkSent(ctx context.Context, id uint) error {
	now := time.Now().UTC()
	err := r.db.WithContext(ctx).Model(&models.OutboxMessage{}).Where("id = ?", id).Update("sent_at", now).Error
	if err != nil {
		return fmt.Errorf("failed to mark outbox message %d sent: %w", id, TranslateError(err))
	}
	return nil
}

// MarkFailed records a failed delivery attempt. The message stays pending.
func (r *GORMOutboxRepository) MarkFailed(ctx context.Context, id uint, cause error) error {
	msg := cause.Error()
	if len(msg) > 255 {
		msg = msg[:255]
	}
	err := r.db.WithContext(ctx).Model(&models.OutboxMessage{}).Where("id = ?", id).Updates(map[string]any{
		"attempts":   gorm.Expr("attempts + 1"),
		"last_error": msg,
	}).Error
	if err != nil {
		return fmt.Errorf("failed to mark outbox message %d failed: %w", id, TranslateError(err))
	}
	return nil
}
