package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// findMetric ищет серию name с точным набором меток.
func findMetric(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) *dto.Metric {
	t.Helper()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			if labelsMatch(metric.GetLabel(), labels) {
				return metric
			}
		}
	}
	t.Fatalf("metric %s%v not found", name, labels)
	return nil
}

func labelsMatch(pairs []*dto.LabelPair, want map[string]string) bool {
	if len(pairs) != len(want) {
		return false
	}
	for _, pair := range pairs {
		if want[pair.GetName()] != pair.GetValue() {
			return false
		}
	}
	return true
}

func TestCartMetrics_RecordSync(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCartMetricsWithRegisterer(reg)

	m.RecordSync(SyncModeCreate, ResultSuccess, 120*time.Millisecond)
	m.RecordSync(SyncModeCreate, ResultSuccess, 80*time.Millisecond)
	m.RecordSync(SyncModeUpdate, ResultFailure, time.Second)

	created := findMetric(t, reg, "storefront_cart_sync_total", map[string]string{"mode": "create", "result": "success"})
	if got := created.GetCounter().GetValue(); got != 2 {
		t.Fatalf("expected 2 create syncs, got %v", got)
	}
	failed := findMetric(t, reg, "storefront_cart_sync_total", map[string]string{"mode": "update", "result": "failure"})
	if got := failed.GetCounter().GetValue(); got != 1 {
		t.Fatalf("expected 1 failed update, got %v", got)
	}

	hist := findMetric(t, reg, "storefront_cart_sync_duration_seconds", map[string]string{"mode": "create"})
	if got := hist.GetHistogram().GetSampleCount(); got != 2 {
		t.Fatalf("expected 2 samples, got %d", got)
	}
}

func TestCartMetrics_CountersAndGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCartMetricsWithRegisterer(reg)

	m.RecordHydration(ResultSkipped)
	m.RecordLookupFailure()
	m.RecordLookupFailure()
	m.RecordCheckout(ResultSuccess)
	m.SetCartSize(3, 7)

	if got := findMetric(t, reg, "storefront_cart_hydration_total", map[string]string{"result": "skipped"}).GetCounter().GetValue(); got != 1 {
		t.Fatalf("expected 1 skipped hydration, got %v", got)
	}
	if got := findMetric(t, reg, "storefront_product_lookup_failures_total", nil).GetCounter().GetValue(); got != 2 {
		t.Fatalf("expected 2 lookup failures, got %v", got)
	}
	if got := findMetric(t, reg, "storefront_cart_checkout_total", map[string]string{"result": "success"}).GetCounter().GetValue(); got != 1 {
		t.Fatalf("expected 1 checkout, got %v", got)
	}
	if got := findMetric(t, reg, "storefront_cart_lines", nil).GetGauge().GetValue(); got != 3 {
		t.Fatalf("expected 3 lines, got %v", got)
	}
	if got := findMetric(t, reg, "storefront_cart_items", nil).GetGauge().GetValue(); got != 7 {
		t.Fatalf("expected 7 items, got %v", got)
	}
}

func TestNewCartMetrics_ReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := NewCartMetricsWithRegisterer(reg)
	second := NewCartMetricsWithRegisterer(reg)

	first.RecordCheckout(ResultFailure)
	second.RecordCheckout(ResultFailure)

	if got := findMetric(t, reg, "storefront_cart_checkout_total", map[string]string{"result": "failure"}).GetCounter().GetValue(); got != 2 {
		t.Fatalf("expected shared counter with value 2, got %v", got)
	}
}

func TestMetrics_NilReceiverIsNoop(t *testing.T) {
	var cart *CartMetrics
	cart.RecordSync(SyncModeCreate, ResultSuccess, time.Second)
	cart.RecordHydration(ResultEmpty)
	cart.RecordLookupFailure()
	cart.RecordCheckout(ResultSuccess)
	cart.SetCartSize(1, 1)

	var api *APIMetrics
	api.ObserveRequest("/carts", 200, time.Second)
	api.RecordRetry("/carts")
	api.SetCircuitOpen(true)

	var outbox *OutboxMetrics
	outbox.RecordPublish(ResultSuccess)
	outbox.SetBacklog(1, time.Now())
}

func TestAPIMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewAPIMetricsWithRegisterer(reg)

	m.ObserveRequest("/products/{id}", 200, 10*time.Millisecond)
	m.ObserveRequest("/products/{id}", 0, time.Second)
	m.RecordRetry("/products/{id}")
	m.SetCircuitOpen(true)

	ok := findMetric(t, reg, "storefront_api_request_duration_seconds", map[string]string{"endpoint": "/products/{id}", "status": "200"})
	if got := ok.GetHistogram().GetSampleCount(); got != 1 {
		t.Fatalf("expected 1 sample for 200, got %d", got)
	}
	failed := findMetric(t, reg, "storefront_api_request_duration_seconds", map[string]string{"endpoint": "/products/{id}", "status": "error"})
	if got := failed.GetHistogram().GetSampleCount(); got != 1 {
		t.Fatalf("expected 1 sample for network error, got %d", got)
	}
	if got := findMetric(t, reg, "storefront_api_retries_total", map[string]string{"endpoint": "/products/{id}"}).GetCounter().GetValue(); got != 1 {
		t.Fatalf("expected 1 retry, got %v", got)
	}
	if got := findMetric(t, reg, "storefront_api_circuit_open", nil).GetGauge().GetValue(); got != 1 {
		t.Fatalf("expected open circuit gauge, got %v", got)
	}

	m.SetCircuitOpen(false)
	if got := findMetric(t, reg, "storefront_api_circuit_open", nil).GetGauge().GetValue(); got != 0 {
		t.Fatalf("expected closed circuit gauge, got %v", got)
	}
}

func TestOutboxMetrics_SetBacklog(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOutboxMetricsWithRegisterer(reg)

	m.SetBacklog(4, time.Now().Add(-time.Minute))
	if got := findMetric(t, reg, "storefront_outbox_pending_records", nil).GetGauge().GetValue(); got != 4 {
		t.Fatalf("expected 4 pending, got %v", got)
	}
	if got := findMetric(t, reg, "storefront_outbox_oldest_pending_age_seconds", nil).GetGauge().GetValue(); got < 59 {
		t.Fatalf("expected age around 60s, got %v", got)
	}

	m.SetBacklog(0, time.Time{})
	if got := findMetric(t, reg, "storefront_outbox_oldest_pending_age_seconds", nil).GetGauge().GetValue(); got != 0 {
		t.Fatalf("expected zero age for empty backlog, got %v", got)
	}

	m.RecordPublish(ResultFailure)
	if got := findMetric(t, reg, "storefront_outbox_publish_attempts_total", map[string]string{"result": "failure"}).GetCounter().GetValue(); got != 1 {
		t.Fatalf("expected 1 failed publish, got %v", got)
	}
}
