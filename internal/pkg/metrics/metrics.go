package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// 指标集合，InitMetrics 之后可用。
var (
	HTTPRequestsTotal      *prometheus.CounterVec
	HTTPRequestDuration    *prometheus.HistogramVec
	UsersRegisteredTotal   prometheus.Counter
	VerificationsTotal     *prometheus.CounterVec
	VerificationMailsTotal prometheus.Counter
	RateLimitRejectedTotal prometheus.Counter
)

var initOnce sync.Once

// InitMetrics 注册所有 Prometheus 指标（幂等，可在测试中反复调用）。
func InitMetrics() {
	initOnce.Do(func() {
		HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "todohive_http_requests_total",
			Help: "Total HTTP requests by method, path and status.",
		}, []string{"method", "path", "status"})

		HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "todohive_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"})

		UsersRegisteredTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "todohive_users_registered_total",
			Help: "Total user registrations.",
		})

		VerificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "todohive_email_verifications_total",
			Help: "Email verification attempts by result.",
		}, []string{"result"})

		VerificationMailsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "todohive_verification_mails_sent_total",
			Help: "Verification mails handed to SMTP.",
		})

		RateLimitRejectedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "todohive_ratelimit_rejected_total",
			Help: "Requests rejected by the rate limiter.",
		})

		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDuration,
			UsersRegisteredTotal,
			VerificationsTotal,
			VerificationMailsTotal,
			RateLimitRejectedTotal,
		)
	})
}
