package services

import (
	"context"
	"sort"

	"toko-checkout/internal/models"
	"toko-checkout/internal/outbox"
	"toko-checkout/internal/repositories"
)

// DefaultEventTopic is where order events are published.
const DefaultEventTopic = "order.events"

// appendEvent records one lifecycle event on an order the caller has locked,
// returns stock for cancelled or expired orders and queues the event for
// publication. Everything happens in tx.
func appendEvent(ctx context.Context, tx repositories.Repos, topic string, order *models.Order, eventType models.EventType, meta models.Metadata) (*models.OrderEvent, error) {
	event := &models.OrderEvent{EventType: eventType, Metadata: meta}
	if err := tx.Orders().AppendEvent(ctx, order, event); err != nil {
		return nil, err
	}
	if eventType == models.EventOrderCancelled || eventType == models.EventOrderExpired {
		if err := restock(ctx, tx, order.Items); err != nil {
			return nil, err
		}
	}
	if err := enqueueEvent(ctx, tx, topic, order, event); err != nil {
		return nil, err
	}
	return event, nil
}

// restock returns the quantities of items to inventory, in product ID order
// like every other stock writer.
func restock(ctx context.Context, tx repositories.Repos, items []models.OrderItem) error {
	sorted := make([]models.OrderItem, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ProductID < sorted[j].ProductID })
	for _, item := range sorted {
		if err := tx.Products().IncrementStock(ctx, item.ProductID, item.Quantity); err != nil {
			return err
		}
	}
	return nil
}

func enqueueEvent(ctx context.Context, tx repositories.Repos, topic string, order *models.Order, event *models.OrderEvent) error {
	msg, err := outbox.NewOrderEventMessage(topic, order, event)
	if err != nil {
		return err
	}
	return tx.Outbox().Enqueue(ctx, msg)
}
