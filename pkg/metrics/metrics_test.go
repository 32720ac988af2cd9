package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestCacheMetricsExportsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewCacheMetrics(reg)
	metrics.IncHit("products")
	metrics.IncHit("products")
	metrics.IncMiss("products")
	metrics.IncEviction("")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "storefront_cache_hits_total", "cache", "products"); err != nil {
		t.Fatalf("fetch hits: %v", err)
	} else if got != 2 {
		t.Fatalf("expected hits=2, got %f", got)
	}
	if got, err := fetchCounterValue(mfs, "storefront_cache_misses_total", "cache", "products"); err != nil {
		t.Fatalf("fetch misses: %v", err)
	} else if got != 1 {
		t.Fatalf("expected misses=1, got %f", got)
	}
	if got, err := fetchCounterValue(mfs, "storefront_cache_evictions_total", "cache", "unknown"); err != nil {
		t.Fatalf("fetch evictions: %v", err)
	} else if got != 1 {
		t.Fatalf("expected evictions=1, got %f", got)
	}
}

func TestCheckoutMetricsExportsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewCheckoutMetrics(reg)
	metrics.Observe(OutcomeSuccess, 150*time.Millisecond)
	metrics.Observe(OutcomeNetworkError, 10*time.Millisecond)
	metrics.IncFavoriteRevert()

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "storefront_checkout_total", "outcome", OutcomeSuccess); err != nil {
		t.Fatalf("fetch success: %v", err)
	} else if got != 1 {
		t.Fatalf("expected success=1, got %f", got)
	}
	if got, err := fetchHistogramSum(mfs, "storefront_checkout_duration_seconds", "outcome", OutcomeSuccess); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got <= 0 {
		t.Fatalf("expected duration sum > 0, got %f", got)
	}
	mf := findMetricFamily(mfs, "storefront_favorites_reverted_total")
	if mf == nil || mf.GetMetric()[0].GetCounter().GetValue() != 1 {
		t.Fatalf("expected one favorite revert")
	}
}

func TestMaintenanceMetricsExportsJobOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMaintenanceMetrics(reg)
	metrics.ObserveJob("cache_sweep", 20*time.Millisecond, nil)
	metrics.ObserveJob("", time.Millisecond, errors.New("boom"))
	metrics.IncCycle(CycleCompleted)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	mf := findMetricFamily(mfs, "storefront_maintenance_job_runs_total")
	if mf == nil {
		t.Fatal("job runs metric not found")
	}
	results := map[string]string{}
	for _, metric := range mf.GetMetric() {
		labels := map[string]string{}
		for _, pair := range metric.GetLabel() {
			labels[pair.GetName()] = pair.GetValue()
		}
		results[labels["job"]] = labels["result"]
	}
	if results["cache_sweep"] != "success" || results["unknown"] != "failure" {
		t.Fatalf("unexpected job results %v", results)
	}
	if got, err := fetchCounterValue(mfs, "storefront_maintenance_cycles_total", "result", CycleCompleted); err != nil {
		t.Fatalf("fetch cycles: %v", err)
	} else if got != 1 {
		t.Fatalf("expected cycles=1, got %f", got)
	}
	if got, err := fetchHistogramSum(mfs, "storefront_maintenance_job_duration_seconds", "job", "cache_sweep"); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got <= 0 {
		t.Fatalf("expected duration sum > 0, got %f", got)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var cache *CacheMetrics
	cache.IncHit("x")
	NewCacheMetrics(nil).IncMiss("x")

	var checkout *CheckoutMetrics
	checkout.Observe(OutcomeSuccess, time.Second)
	NewCheckoutMetrics(nil).IncFavoriteRevert()

	var maintenance *MaintenanceMetrics
	maintenance.IncCycle(CycleSkipped)
	NewMaintenanceMetrics(nil).ObserveJob("x", time.Second, nil)
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}
