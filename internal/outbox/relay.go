package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"toko-checkout/internal/models"
	"toko-checkout/internal/repositories"
	"toko-checkout/pkg/metrics"

	"github.com/google/uuid"
)

// Publisher delivers one message to the broker. Implemented by the RabbitMQ
// and Kafka clients.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, body []byte) error
}

// OrderEventMessage is the payload published for every order event.
type OrderEventMessage struct {
	EventID   string           `json:"event_id"`
	OrderID   string           `json:"order_id"`
	Seq       int              `json:"seq"`
	UserID    string           `json:"user_id"`
	EventType models.EventType `json:"event_type"`
	Status    string           `json:"status"`
	Metadata  models.Metadata  `json:"metadata"`
	CreatedAt time.Time        `json:"created_at"`
}

// NewOrderEventMessage builds the outbox row for an event that was just
// appended to order.
func NewOrderEventMessage(topic string, order *models.Order, event *models.OrderEvent) (*models.OutboxMessage, error) {
	body, err := json.Marshal(OrderEventMessage{
		EventID:   event.ID,
		OrderID:   order.ID,
		Seq:       event.Seq,
		UserID:    order.UserID,
		EventType: event.EventType,
		Status:    order.Status.String(),
		Metadata:  event.Metadata,
		CreatedAt: event.CreatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal order event: %w", err)
	}
	eventID := event.ID
	if eventID == "" {
		eventID = uuid.New().String()
	}
	return &models.OutboxMessage{
		EventID: eventID,
		Topic:   topic,
		Key:     order.ID,
		Payload: string(body),
	}, nil
}

// Relay polls unsent outbox messages and publishes them. A message that fails
// to publish stays pending and is retried on the next tick.
type Relay struct {
	repo      repositories.OutboxRepository
	publisher Publisher
	metrics   *metrics.Metrics
	interval  time.Duration
	batchSize int
}

func NewRelay(repo repositories.OutboxRepository, publisher Publisher, m *metrics.Metrics, interval time.Duration, batchSize int) *Relay {
	if interval <= 0 {
		interval = time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Relay{repo: repo, publisher: publisher, metrics: m, interval: interval, batchSize: batchSize}
}

// Run relays until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	log.Printf("Outbox relay started (interval %s, batch %d)", r.interval, r.batchSize)
	for {
		select {
		case <-ticker.C:
			r.RelayOnce(ctx)
		case <-ctx.Done():
			log.Println("Outbox relay stopped")
			return
		}
	}
}

// RelayOnce publishes one batch and returns how many messages were sent.
// Messages are published in insertion order; the batch stops at the first
// failure so later events of the same order are not delivered ahead of it.
func (r *Relay) RelayOnce(ctx context.Context) int {
	msgs, err := r.repo.FetchPending(ctx, r.batchSize)
	if err != nil {
		log.Printf("Failed to fetch outbox messages: %v", err)
		return 0
	}

	sent := 0
	for _, msg := range msgs {
		if err := r.publisher.Publish(ctx, msg.Topic, msg.Key, []byte(msg.Payload)); err != nil {
			log.Printf("Failed to publish outbox message %d (event %s): %v", msg.ID, msg.EventID, err)
			r.metrics.ObserveOutbox("failed")
			if markErr := r.repo.MarkFailed(ctx, msg.ID, err); markErr != nil {
				log.Printf("Failed to record outbox failure %d: %v", msg.ID, markErr)
			}
			return sent
		}
		if err := r.repo.MarkSent(ctx, msg.ID); err != nil {
			// Published but not marked: it will be sent again. Consumers dedupe
			// on event_id.
			log.Printf("Failed to mark outbox message %d sent: %v", msg.ID, err)
			return sent
		}
		r.metrics.ObserveOutbox("sent")
		sent++
	}
	return sent
}
