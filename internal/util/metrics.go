package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CartMutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_mutations_total",
		Help: "Total number of applied cart ledger mutations",
	}, []string{"op"})

	CartMutationsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_mutations_rejected_total",
		Help: "Total number of cart mutations rejected before touching the ledger",
	}, []string{"reason"})

	CartMirrorWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_mirror_writes_total",
		Help: "Remote cart mirror writes by outcome",
	}, []string{"outcome"})

	CartLockWaitLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cart_lock_wait_seconds",
		Help:    "Time spent acquiring the per-session cart lock",
		Buckets: prometheus.DefBuckets,
	})

	SessionsCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sessions_created_total",
		Help: "Total number of sessions established",
	}, []string{"role"})

	PaymentAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_attempts_total",
		Help: "Total number of payment attempts handed to the gateway",
	})

	PaymentVerifiedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_verified_total",
		Help: "Total number of verified payments",
	})

	PaymentFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_failed_total",
		Help: "Total number of failed payment attempts",
	}, []string{"reason"})

	PaymentDuplicateCallbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_duplicate_callbacks_total",
		Help: "Gateway callbacks ignored because the attempt was already settled or in flight",
	})

	PaymentVerificationLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "payment_verification_latency_seconds",
		Help:    "Latency of the remote payment verification call",
		Buckets: prometheus.DefBuckets,
	})

	RemoteRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "remote_request_duration_seconds",
		Help:    "Latency of calls to the storefront REST API",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

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
