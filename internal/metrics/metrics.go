package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

// Metrics owns its registry so several instances (tests, servers) never
// collide on the global default registerer. All methods are nil-safe.
type Metrics struct {
	registry      *prometheus.Registry
	operations    *prometheus.CounterVec
	latencyMS     *prometheus.HistogramVec
	drawerBalance prometheus.Gauge
	outbox        *prometheus.CounterVec
}

func New() *Metrics {
	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "restopos",
		Subsystem: "engine",
		Name:      "operations_total",
		Help:      "Engine operations by outcome.",
	}, []string{"operation", "outcome"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "restopos",
		Subsystem: "engine",
		Name:      "operation_duration_ms",
		Help:      "Engine operation latency in milliseconds.",
		Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
	}, []string{"operation"})
	balance := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "restopos",
		Subsystem: "drawer",
		Name:      "current_balance",
		Help:      "Derived balance of the open cash drawer.",
	})
	outbox := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "restopos",
		Subsystem: "outbox",
		Name:      "events_total",
		Help:      "Outbox events handled by the relay.",
	}, []string{"outcome"})

	registry := prometheus.NewRegistry()
	registry.MustRegister(operations, latency, balance, outbox, collectors.NewGoCollector())

	return &Metrics{
		registry:      registry,
		operations:    operations,
		latencyMS:     latency,
		drawerBalance: balance,
		outbox:        outbox,
	}
}

func (m *Metrics) ObserveOperation(operation string, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
	m.latencyMS.WithLabelValues(operation).Observe(float64(elapsed.Microseconds()) / 1000)
}

func (m *Metrics) SetDrawerBalance(balance decimal.Decimal) {
	if m == nil {
		return
	}
	m.drawerBalance.Set(balance.InexactFloat64())
}

func (m *Metrics) ObserveOutbox(outcome string, n int) {
	if m == nil || n < 1 {
		return
	}
	m.outbox.WithLabelValues(outcome).Add(float64(n))
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
