package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BookingsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bookings_created_total",
		Help: "Total number of bookings created",
	})

	BookingsConfirmedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bookings_confirmed_total",
		Help: "Total number of bookings confirmed with the supplier",
	})

	ConfirmationsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_confirmations_failed_total",
		Help: "Total number of failed confirmation attempts",
	}, []string{"reason"})

	CreditRejectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "credit_rejections_total",
		Help: "Total number of confirmations rejected by the credit guard",
	})

	RiskDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "risk_decisions_total",
		Help: "Total number of risk evaluations by decision",
	}, []string{"decision"})

	SupplierConfirmLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "supplier_confirm_latency_seconds",
		Help:    "Latency of supplier confirmation calls",
		Buckets: prometheus.DefBuckets,
	})

	SupplierErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "supplier_errors_total",
		Help: "Total number of supplier adapter errors",
	}, []string{"code"})

	BookingsCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bookings_cancelled_total",
		Help: "Total number of bookings cancelled",
	})

	AmendmentsAppliedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "amendments_applied_total",
		Help: "Total number of amendments applied",
	})

	IdempotentReplaysTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "idempotent_replays_total",
		Help: "Total number of requests served from stored idempotency records",
	}, []string{"endpoint"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
