package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Checkout outcomes used as label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// OrderMetrics records checkout and fulfillment activity.
type OrderMetrics struct {
	checkoutDuration *prometheus.HistogramVec
	checkouts        *prometheus.CounterVec
	statusChanges    *prometheus.CounterVec
	cancellations    prometheus.Counter
	stockAdjusts     *prometheus.CounterVec
}

// NewOrderMetrics registers the order metrics on the provided registerer. A
// nil registerer yields a no-op recorder.
func NewOrderMetrics(reg prometheus.Registerer) *OrderMetrics {
	if reg == nil {
		return &OrderMetrics{}
	}
	checkoutDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "checkout_duration_seconds",
		Help:    "Duration of checkout transactions in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})
	checkouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkouts_total",
		Help: "Checkout attempts by outcome and error code.",
	}, []string{"outcome", "code"})
	statusChanges := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "order_status_changes_total",
		Help: "Administrative order status changes by target status.",
	}, []string{"status"})
	cancellations := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "order_cancellations_total",
		Help: "Orders cancelled with stock restored.",
	})
	stockAdjusts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_adjustments_total",
		Help: "Operator stock adjustments by operation.",
	}, []string{"operation"})
	reg.MustRegister(checkoutDuration, checkouts, statusChanges, cancellations, stockAdjusts)
	return &OrderMetrics{
		checkoutDuration: checkoutDuration,
		checkouts:        checkouts,
		statusChanges:    statusChanges,
		cancellations:    cancellations,
		stockAdjusts:     stockAdjusts,
	}
}

// ObserveCheckout records one checkout attempt. code is empty on success.
func (m *OrderMetrics) ObserveCheckout(code string, duration time.Duration) {
	if m == nil || m.checkouts == nil {
		return
	}
	outcome := OutcomeSuccess
	if code != "" {
		outcome = OutcomeFailure
	}
	m.checkoutDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	m.checkouts.WithLabelValues(outcome, normalizeLabel(code, "none")).Inc()
}

func (m *OrderMetrics) IncStatusChange(status string) {
	if m == nil || m.statusChanges == nil {
		return
	}
	m.statusChanges.WithLabelValues(normalizeLabel(status, "unknown")).Inc()
}

func (m *OrderMetrics) IncCancellation() {
	if m == nil || m.cancellations == nil {
		return
	}
	m.cancellations.Inc()
}

func (m *OrderMetrics) IncStockAdjustment(operation string) {
	if m == nil || m.stockAdjusts == nil {
		return
	}
	m.stockAdjusts.WithLabelValues(normalizeLabel(operation, "unknown")).Inc()
}

func normalizeLabel(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
