package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"service", "method", "path", "status"},
	)

	HTTPRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)

	KeysIssuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "license_keys_issued_total",
			Help: "Total number of key issuance attempts.",
		},
		[]string{"service", "result"},
	)

	ValidationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "license_validations_total",
			Help: "Total number of validation attempts by outcome.",
		},
		[]string{"service", "result"},
	)

	RevocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "license_revocations_total",
			Help: "Total number of revocation attempts.",
		},
		[]string{"service", "result"},
	)

	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "license_notifications_total",
			Help: "Total number of webhook notifications dispatched.",
		},
		[]string{"service", "event", "result"},
	)

	AdminAuthTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "license_admin_auth_total",
			Help: "Total number of admin token verifications.",
		},
		[]string{"service", "result"},
	)
)

func MustRegister(serviceName string) {
	HTTPRequestsTotal = HTTPRequestsTotal.MustCurryWith(prometheus.Labels{"service": serviceName})
	HTTPRequestDurationSeconds = HTTPRequestDurationSeconds.MustCurryWith(prometheus.Labels{"service": serviceName}).(*prometheus.HistogramVec)
	KeysIssuedTotal = KeysIssuedTotal.MustCurryWith(prometheus.Labels{"service": serviceName})
	ValidationsTotal = ValidationsTotal.MustCurryWith(prometheus.Labels{"service": serviceName})
	RevocationsTotal = RevocationsTotal.MustCurryWith(prometheus.Labels{"service": serviceName})
	NotificationsTotal = NotificationsTotal.MustCurryWith(prometheus.Labels{"service": serviceName})
	AdminAuthTotal = AdminAuthTotal.MustCurryWith(prometheus.Labels{"service": serviceName})

	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDurationSeconds,
		KeysIssuedTotal,
		ValidationsTotal,
		RevocationsTotal,
		NotificationsTotal,
		AdminAuthTotal,
	)
}
