package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// StockMetrics records reservation engine outcomes.
type StockMetrics struct {
	operations *prometheus.CounterVec
	lockWait   *prometheus.HistogramVec
}

// NewStockMetrics registers the stock metrics on the provided registerer.
func NewStockMetrics(reg prometheus.Registerer) *StockMetrics {
	if reg == nil {
		return &StockMetrics{}
	}
	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_operations_total",
		Help: "Stock ledger operations by operation and result.",
	}, []string{"op", "result"})
	lockWait := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stock_lock_wait_seconds",
		Help:    "Time spent waiting for the per-product stock lock.",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})
	reg.MustRegister(operations, lockWait)
	return &StockMetrics{
		operations: operations,
		lockWait:   lockWait,
	}
}

// IncSuccess counts a committed operation.
func (m *StockMetrics) IncSuccess(op string) {
	if m == nil || m.operations == nil {
		return
	}
	m.operations.WithLabelValues(normalizeLabel(op), "success").Inc()
}

// IncFailure counts a rejected or failed operation.
func (m *StockMetrics) IncFailure(op string) {
	if m == nil || m.operations == nil {
		return
	}
	m.operations.WithLabelValues(normalizeLabel(op), "failure").Inc()
}

// ObserveLockWait records how long the caller waited to serialize on a product.
func (m *StockMetrics) ObserveLockWait(op string, wait time.Duration) {
	if m == nil || m.lockWait == nil {
		return
	}
	m.lockWait.WithLabelValues(normalizeLabel(op)).Observe(wait.Seconds())
}

func normalizeLabel(op string) string {
	if op == "" {
		return "unknown"
	}
	return op
}
