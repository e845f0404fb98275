package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the service. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	RequestsTotal     *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec
	CarrierCalls      *prometheus.CounterVec
	CarrierDuration   *prometheus.HistogramVec
	CarrierFallbacks  *prometheus.CounterVec
	OrdersCompleted   *prometheus.CounterVec
	ShipmentsCreated  *prometheus.CounterVec
	ReturnTransitions *prometheus.CounterVec
}

// NewMetrics creates metrics and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "postershop_requests_total",
				Help: "Total number of API operations by operation and status",
			},
			[]string{"operation", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "postershop_request_duration_seconds",
				Help:    "API operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		CarrierCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "postershop_carrier_calls_total",
				Help: "Total carrier calls by carrier, capability, and outcome",
			},
			[]string{"carrier", "capability", "outcome"},
		),
		CarrierDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "postershop_carrier_call_duration_seconds",
				Help:    "Carrier call duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"carrier", "capability"},
		),
		CarrierFallbacks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "postershop_carrier_fallbacks_total",
				Help: "Carrier answers served from deterministic fallback data",
			},
			[]string{"carrier", "capability", "reason"},
		),
		OrdersCompleted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "postershop_orders_completed_total",
				Help: "Orders recorded by initial status",
			},
			[]string{"status"},
		),
		ShipmentsCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "postershop_shipments_created_total",
				Help: "Shipments written to the ledger by waybill provenance",
			},
			[]string{"provenance"},
		),
		ReturnTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "postershop_return_transitions_total",
				Help: "Return request status transitions",
			},
			[]string{"from", "to"},
		),
	}
}

// RecordRequest records an API operation.
func (m *Metrics) RecordRequest(operation, status string, duration float64) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(operation, status).Inc()
	m.RequestDuration.WithLabelValues(operation).Observe(duration)
}

// RecordCarrierCall records one carrier call and its classified outcome.
func (m *Metrics) RecordCarrierCall(carrier, capability, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.CarrierCalls.WithLabelValues(carrier, capability, outcome).Inc()
	m.CarrierDuration.WithLabelValues(carrier, capability).Observe(d.Seconds())
}

// RecordFallback records a deterministic fallback answer.
func (m *Metrics) RecordFallback(carrier, capability, reason string) {
	if m == nil {
		return
	}
	m.CarrierFallbacks.WithLabelValues(carrier, capability, reason).Inc()
}

// RecordOrder records a completed checkout.
func (m *Metrics) RecordOrder(status string) {
	if m == nil {
		return
	}
	m.OrdersCompleted.WithLabelValues(status).Inc()
}

// RecordShipment records a ledger shipment write.
func (m *Metrics) RecordShipment(provenance string) {
	if m == nil {
		return
	}
	m.ShipmentsCreated.WithLabelValues(provenance).Inc()
}

// RecordReturnTransition records a return status change.
func (m *Metrics) RecordReturnTransition(from, to string) {
	if m == nil {
		return
	}
	m.ReturnTransitions.WithLabelValues(from, to).Inc()
}
