// Package metrics exposes the service's Prometheus instrumentation.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aviso_http_requests_total",
			Help: "Total HTTP requests by method, path, and status",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aviso_http_request_duration_seconds",
			Help:    "HTTP request latency distribution",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	notificationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aviso_notifications_created_total",
			Help: "Notifications created, by type",
		},
		[]string{"type"},
	)

	notificationsOpened = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aviso_notifications_opened_total",
			Help: "Notifications opened, by type",
		},
		[]string{"type"},
	)

	mailSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aviso_mail_sent_total",
			Help: "Emails handed off to the transport, by template",
		},
		[]string{"template"},
	)

	mailFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aviso_mail_failures_total",
			Help: "Email deliveries that exhausted their attempts, by failure kind",
		},
		[]string{"kind"},
	)

	mailRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "aviso_mail_retries_total",
			Help: "Delivery attempts retried after a transient failure",
		},
	)

	idempotencyHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "aviso_idempotency_hits_total",
			Help: "Requests served from the idempotency cache",
		},
	)

	rateLimitRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "aviso_rate_limit_rejections_total",
			Help: "Requests rejected by the rate limiter",
		},
	)
)

// Handler returns the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRequest records HTTP request metrics.
func RecordRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordNotificationCreated counts a created notification.
func RecordNotificationCreated(notifType string) {
	notificationsCreated.WithLabelValues(notifType).Inc()
}

// RecordNotificationOpened counts an opened notification.
func RecordNotificationOpened(notifType string) {
	notificationsOpened.WithLabelValues(notifType).Inc()
}

// RecordMailSent counts a successful transport handoff.
func RecordMailSent(templateName string) {
	mailSent.WithLabelValues(templateName).Inc()
}

// RecordMailFailure counts a delivery that gave up.
func RecordMailFailure(kind string) {
	mailFailures.WithLabelValues(kind).Inc()
}

// RecordMailRetry counts a retried delivery attempt.
func RecordMailRetry() {
	mailRetries.Inc()
}

// RecordIdempotencyHit counts a cache-replayed create.
func RecordIdempotencyHit() {
	idempotencyHits.Inc()
}

// RecordRateLimitRejection counts a throttled request.
func RecordRateLimitRejection() {
	rateLimitRejections.Inc()
}
