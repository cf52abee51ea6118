package metrics

import (
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveOrder(OutcomeCreated)
	m.ObserveOrder(OutcomeCreated)
	m.ObserveOrder(OutcomeOutOfStock)
	m.ObserveRetry()
	m.ObserveOutbox("sent")
	m.ObserveRequest("/api/v1/checkout", http.StatusOK, 12*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Orders.WithLabelValues(OutcomeCreated)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Orders.WithLabelValues(OutcomeOutOfStock)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Retries))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OutboxPublished.WithLabelValues("sent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues("/api/v1/checkout", "OK")))
}

func TestSeparateRegistriesDoNotCollide(t *testing.T) {
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveOrder(OutcomeCreated)
		m.ObserveTx(time.Second)
		m.ObserveRetry()
		m.ObserveOutbox("failed")
		m.ObservePaymentResult("paid")
		m.ObserveRequest("/", http.StatusOK, time.Millisecond)
	})
}
