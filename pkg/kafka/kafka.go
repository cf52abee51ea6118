package kafka

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// Client publishes to and consumes from a Kafka cluster.
type Client struct {
	Brokers []string

	mu      sync.Mutex
	writers map[string]*kafka.Writer
}

// NewClient parses a comma-separated broker list.
func NewClient(brokersCSV string) *Client {
	brokers := []string{}
	for _, b := range strings.Split(brokersCSV, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	return &Client{Brokers: brokers, writers: map[string]*kafka.Writer{}}
}

func (c *Client) Enabled() bool {
	return len(c.Brokers) > 0
}

func (c *Client) NewWriter(topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(c.Brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
}

func (c *Client) NewReader(topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  c.Brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
}

func (c *Client) writer(topic string) *kafka.Writer {
	c.mu.Lock()
	defer c.mu.Unlock()
	w, ok := c.writers[topic]
	if !ok {
		w = c.NewWriter(topic)
		c.writers[topic] = w
	}
	return w
}

// Publish writes body to topic. Messages with the same key land on the same
// partition, so events of one order stay ordered.
func (c *Client) Publish(ctx context.Context, topic, key string, body []byte) error {
	msg := kafka.Message{Key: []byte(key), Value: body, Time: time.Now().UTC()}
	if err := c.writer(topic).WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish message to %s: %w", topic, err)
	}
	return nil
}

// MessageHandler processes one message value.
type MessageHandler func(ctx context.Context, body []byte) error

// Consume reads topic as part of groupID until ctx is cancelled. Offsets are
// committed only after handler succeeds.
func (c *Client) Consume(ctx context.Context, topic, groupID string, handler MessageHandler) error {
	reader := c.NewReader(topic, groupID)
	defer reader.Close()

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("Error reading message from %s: %v", topic, err)
			continue
		}
		if err := handler(ctx, msg.Value); err != nil {
			log.Printf("Error handling message at %s/%d/%d: %v", topic, msg.Partition, msg.Offset, err)
			continue
		}
		if err := reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			log.Printf("Error committing offset %d on %s: %v", msg.Offset, topic, err)
		}
	}
}

// Close flushes and closes every writer.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var errs []error
	for topic, w := range c.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close writer for %s: %w", topic, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors closing kafka writers: %v", errs)
	}
	return nil
}
