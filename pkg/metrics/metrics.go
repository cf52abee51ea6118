package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Order creation outcomes.
const (
	OutcomeCreated    = "created"
	OutcomeDuplicate  = "duplicate"
	OutcomeOutOfStock = "out_of_stock"
	OutcomeBusy       = "busy"
	OutcomeTimeout    = "timeout"
	OutcomeRejected   = "rejected"
	OutcomeError      = "error"
)

// Metrics holds the service's collectors. A nil *Metrics records nothing.
type Metrics struct {
	Requests        *prometheus.CounterVec
	LatencyMS       *prometheus.HistogramVec
	Orders          *prometheus.CounterVec
	TxDuration      prometheus.Histogram
	Retries         prometheus.Counter
	OutboxPublished *prometheus.CounterVec
	PaymentResults  *prometheus.CounterVec
	gatherer        prometheus.Gatherer
}

// New creates the collectors and registers them with reg.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "toko",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"route", "status"}),
		LatencyMS: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "toko",
			Subsystem: "http",
			Name:      "request_duration_ms",
			Help:      "HTTP request latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"route"}),
		Orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "toko",
			Subsystem: "checkout",
			Name:      "orders_total",
			Help:      "Order creation attempts by outcome.",
		}, []string{"outcome"}),
		TxDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "toko",
			Subsystem: "checkout",
			Name:      "tx_duration_seconds",
			Help:      "Duration of order creation transactions.",
			Buckets:   prometheus.DefBuckets,
		}),
		Retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "toko",
			Subsystem: "checkout",
			Name:      "retries_total",
			Help:      "Order creation transactions retried after a busy or timed out attempt.",
		}),
		OutboxPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "toko",
			Subsystem: "outbox",
			Name:      "published_total",
			Help:      "Outbox messages relayed to the broker by status.",
		}, []string{"status"}),
		PaymentResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "toko",
			Subsystem: "payment",
			Name:      "results_total",
			Help:      "Payment results applied by outcome.",
		}, []string{"outcome"}),
		gatherer: reg,
	}
	reg.MustRegister(m.Requests, m.LatencyMS, m.Orders, m.TxDuration, m.Retries, m.OutboxPublished, m.PaymentResults)
	return m
}

func (m *Metrics) ObserveRequest(route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(route, http.StatusText(status)).Inc()
	m.LatencyMS.WithLabelValues(route).Observe(float64(elapsed.Milliseconds()))
}

func (m *Metrics) ObserveOrder(outcome string) {
	if m == nil {
		return
	}
	m.Orders.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveTx(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.TxDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveRetry() {
	if m == nil {
		return
	}
	m.Retries.Inc()
}

func (m *Metrics) ObserveOutbox(status string) {
	if m == nil {
		return
	}
	m.OutboxPublished.WithLabelValues(status).Inc()
}

func (m *Metrics) ObservePaymentResult(outcome string) {
	if m == nil {
		return
	}
	m.PaymentResults.WithLabelValues(outcome).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
