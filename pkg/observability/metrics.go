package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the control plane
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Tenant lifecycle metrics
	TenantTransitionsTotal *prometheus.CounterVec

	// Subscription metrics
	SubscriptionsCreatedTotal *prometheus.CounterVec
	SubscriptionsExpiredTotal prometheus.Counter
	RenewalsTotal             *prometheus.CounterVec

	// Payment metrics
	PaymentsSubmittedTotal prometheus.Counter
	PaymentsVerifiedTotal  *prometheus.CounterVec

	// Usage limit metrics
	LimitChecksTotal  *prometheus.CounterVec
	LimitDenialsTotal *prometheus.CounterVec

	// Notification metrics
	NotificationsDispatchedTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskhive_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "taskhive_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		TenantTransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskhive_tenant_transitions_total",
				Help: "Tenant lifecycle transitions by target state and outcome",
			},
			[]string{"to_status", "outcome"},
		),
		SubscriptionsCreatedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskhive_subscriptions_created_total",
				Help: "Subscriptions created by initial status",
			},
			[]string{"status"},
		),
		SubscriptionsExpiredTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "taskhive_subscriptions_expired_total",
				Help: "Subscriptions transitioned to expired by the sweep",
			},
		),
		RenewalsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskhive_subscription_renewals_total",
				Help: "Subscription renewal attempts by outcome",
			},
			[]string{"outcome"},
		),
		PaymentsSubmittedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "taskhive_payments_submitted_total",
				Help: "Payments submitted for verification",
			},
		),
		PaymentsVerifiedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskhive_payments_verified_total",
				Help: "Payment verification decisions",
			},
			[]string{"decision"},
		),
		LimitChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskhive_limit_checks_total",
				Help: "Usage limit checks by resource type",
			},
			[]string{"resource"},
		),
		LimitDenialsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskhive_limit_denials_total",
				Help: "Usage limit denials by resource type and reason",
			},
			[]string{"resource", "reason"},
		),
		NotificationsDispatchedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskhive_notifications_dispatched_total",
				Help: "Notifications dispatched by type and outcome",
			},
			[]string{"type", "outcome"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.TenantTransitionsTotal,
		m.SubscriptionsCreatedTotal,
		m.SubscriptionsExpiredTotal,
		m.RenewalsTotal,
		m.PaymentsSubmittedTotal,
		m.PaymentsVerifiedTotal,
		m.LimitChecksTotal,
		m.LimitDenialsTotal,
		m.NotificationsDispatchedTotal,
	)

	return m
}

// Handler returns an HTTP handler for the metrics endpoint
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
