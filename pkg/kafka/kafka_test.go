package kafka

import (
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
)

func TestNewClientParsesBrokers(t *testing.T) {
	c := NewClient(" k1:9092, ,k2:9092 ")
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Brokers)
	assert.True(t, c.Enabled())
	assert.False(t, NewClient("").Enabled())
}

func TestWriterIsReusedPerTopic(t *testing.T) {
	c := NewClient("localhost:9092")

	w1 := c.writer("order.events")
	w2 := c.writer("order.events")
	w3 := c.writer("other")

	assert.Same(t, w1, w2)
	assert.NotSame(t, w1, w3)
	assert.Equal(t, "order.events", w1.Topic)
	assert.IsType(t, &kafka.Hash{}, w1.Balancer)
	assert.NoError(t, c.Close())
}
