package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// APIMetrics содержит метрики HTTP-клиента удалённого API.
type APIMetrics struct {
	requestDuration *prometheus.HistogramVec
	retries         *prometheus.CounterVec
	breakerOpen     prometheus.Gauge
}

// NewAPIMetrics регистрирует метрики в DefaultRegisterer.
func NewAPIMetrics() *APIMetrics {
	return NewAPIMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewAPIMetricsWithRegisterer регистрирует метрики в переданном registerer.
func NewAPIMetricsWithRegisterer(registerer prometheus.Registerer) *APIMetrics {
	return &APIMetrics{
		requestDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "storefront_api_request_duration_seconds",
			Help:    "Duration of remote API requests by endpoint and status code",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint", "status"}),
		retries: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_api_retries_total",
			Help: "Total number of retried remote API requests by endpoint",
		}, []string{"endpoint"}),
		breakerOpen: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "storefront_api_circuit_open",
			Help: "1 when the remote API circuit breaker is open",
		}),
	}
}

// ObserveRequest записывает длительность запроса. status=0 означает сетевую ошибку.
func (m *APIMetrics) ObserveRequest(endpoint string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.requestDuration.WithLabelValues(endpoint, label).Observe(duration.Seconds())
}

// RecordRetry увеличивает счётчик повторов.
func (m *APIMetrics) RecordRetry(endpoint string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(endpoint).Inc()
}

// SetCircuitOpen отражает состояние circuit breaker.
func (m *APIMetrics) SetCircuitOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.breakerOpen.Set(1)
		return
	}
	m.breakerOpen.Set(0)
}
