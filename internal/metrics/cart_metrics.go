package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Режимы синхронизации.
const (
	SyncModeCreate = "create"
	SyncModeUpdate = "update"
)

// Результаты операций.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultEmpty   = "empty"
	ResultSkipped = "skipped"
)

// CartMetrics содержит метрики синхронизации корзины.
// Все методы безопасны для nil-получателя.
type CartMetrics struct {
	syncAttempts   *prometheus.CounterVec
	syncDuration   *prometheus.HistogramVec
	hydrations     *prometheus.CounterVec
	lookupFailures prometheus.Counter
	checkouts      *prometheus.CounterVec

	cartLines prometheus.Gauge
	cartItems prometheus.Gauge
}

// NewCartMetrics регистрирует метрики в DefaultRegisterer.
func NewCartMetrics() *CartMetrics {
	return NewCartMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewCartMetricsWithRegisterer регистрирует метрики в переданном registerer.
func NewCartMetricsWithRegisterer(registerer prometheus.Registerer) *CartMetrics {
	return &CartMetrics{
		syncAttempts: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_cart_sync_total",
			Help: "Total number of cart sync attempts by mode and result",
		}, []string{"mode", "result"}),
		syncDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "storefront_cart_sync_duration_seconds",
			Help:    "Duration of cart sync calls in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		}, []string{"mode"}),
		hydrations: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_cart_hydration_total",
			Help: "Total number of cart hydrations from the remote API by result",
		}, []string{"result"}),
		lookupFailures: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_product_lookup_failures_total",
			Help: "Total number of failed product lookups",
		}),
		checkouts: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_cart_checkout_total",
			Help: "Total number of checkout attempts by result",
		}, []string{"result"}),
		cartLines: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "storefront_cart_lines",
			Help: "Number of distinct products in the local cart",
		}),
		cartItems: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "storefront_cart_items",
			Help: "Total quantity of items in the local cart",
		}),
	}
}

// RecordSync фиксирует попытку синхронизации.
func (m *CartMetrics) RecordSync(mode, result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.syncAttempts.WithLabelValues(mode, result).Inc()
	m.syncDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

// RecordHydration фиксирует загрузку корзины из API.
func (m *CartMetrics) RecordHydration(result string) {
	if m == nil {
		return
	}
	m.hydrations.WithLabelValues(result).Inc()
}

// RecordLookupFailure увеличивает счётчик неудачных запросов товара.
func (m *CartMetrics) RecordLookupFailure() {
	if m == nil {
		return
	}
	m.lookupFailures.Inc()
}

// RecordCheckout фиксирует попытку оформления.
func (m *CartMetrics) RecordCheckout(result string) {
	if m == nil {
		return
	}
	m.checkouts.WithLabelValues(result).Inc()
}

// SetCartSize обновляет gauges размера локальной корзины.
func (m *CartMetrics) SetCartSize(lines, items int) {
	if m == nil {
		return
	}
	m.cartLines.Set(float64(lines))
	m.cartItems.Set(float64(items))
}
