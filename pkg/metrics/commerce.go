package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// CommerceMetrics counts checkout outcomes and stock rejections.
// A nil *CommerceMetrics is valid and records nothing.
type CommerceMetrics struct {
	checkouts       *prometheus.CounterVec
	cancellations   prometheus.Counter
	stockRejections *prometheus.CounterVec
}

// NewCommerceMetrics registers the commerce counters on the provided registerer.
func NewCommerceMetrics(reg prometheus.Registerer) *CommerceMetrics {
	if reg == nil {
		return &CommerceMetrics{}
	}
	checkouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "orders_created_total",
		Help:      "Orders created, by source (cart or explicit) and outcome.",
	}, []string{"source", "outcome"})
	cancellations := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "orders_cancelled_total",
		Help:      "Orders cancelled with stock restored.",
	})
	rejections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "inventory_stock_rejections_total",
		Help:      "Stock checks or decrements refused for lack of stock.",
	}, []string{"operation"})
	reg.MustRegister(checkouts, cancellations, rejections)
	return &CommerceMetrics{
		checkouts:       checkouts,
		cancellations:   cancellations,
		stockRejections: rejections,
	}
}

// ObserveOrder records an order creation attempt.
func (m *CommerceMetrics) ObserveOrder(source string, err error) {
	if m == nil || m.checkouts == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.checkouts.WithLabelValues(orUnknown(source), outcome).Inc()
}

// IncCancelled records a successful cancellation.
func (m *CommerceMetrics) IncCancelled() {
	if m == nil || m.cancellations == nil {
		return
	}
	m.cancellations.Inc()
}

// IncStockRejection records a refused stock operation.
func (m *CommerceMetrics) IncStockRejection(operation string) {
	if m == nil || m.stockRejections == nil {
		return
	}
	m.stockRejections.WithLabelValues(orUnknown(operation)).Inc()
}
