package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestStockMetricsExportsCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewStockMetrics(reg)

	metrics.IncSuccess("prelock")
	metrics.IncFailure("prelock")
	metrics.ObserveLockWait("prelock", 15*time.Millisecond)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "stock_operations_total", "prelock", "success"); err != nil {
		t.Fatalf("fetch success: %v", err)
	} else if got != 1 {
		t.Fatalf("expected success=1, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "stock_operations_total", "prelock", "failure"); err != nil {
		t.Fatalf("fetch failure: %v", err)
	} else if got != 1 {
		t.Fatalf("expected failure=1, got %f", got)
	}

	if got, err := fetchHistogramSum(mfs, "stock_lock_wait_seconds", "prelock"); err != nil {
		t.Fatalf("fetch lock wait: %v", err)
	} else if got <= 0 {
		t.Fatalf("expected lock wait sum > 0, got %f", got)
	}
}

func TestStockMetricsNilSafe(t *testing.T) {
	var metrics *StockMetrics
	metrics.IncSuccess("confirm")
	metrics.ObserveLockWait("confirm", time.Millisecond)

	unregistered := NewStockMetrics(nil)
	unregistered.IncFailure("release")
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, op, result string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if labelsMatch(metric, map[string]string{"op": op, "result": result}) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("series op=%s result=%s not found", op, result)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, op string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if labelsMatch(metric, map[string]string{"op": op}) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("series op=%s not found", op)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func labelsMatch(metric *dto.Metric, want map[string]string) bool {
	got := map[string]string{}
	for _, pair := range metric.GetLabel() {
		got[pair.GetName()] = pair.GetValue()
	}
	for k, v := range want {
		if got[k] != v {
			return false
		}
	}
	return true
}
