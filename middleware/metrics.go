package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	webhookEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Payment webhook deliveries by outcome",
		},
		[]string{"outcome"},
	)

	bookingCancellationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_cancellations_total",
			Help: "Booking cancellations by outcome",
		},
		[]string{"outcome"},
	)

	vouchersIssuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vouchers_issued_total",
			Help: "Vouchers issued by delivery mode",
		},
		[]string{"delivery"},
	)

	idempotentReplaysTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "idempotent_replays_total",
			Help: "Responses served from the idempotency store",
		},
		[]string{"scope"},
	)

	notificationsSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_sent_total",
			Help: "Total number of notifications sent",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpRequestDuration)
	prometheus.MustRegister(webhookEventsTotal)
	prometheus.MustRegister(bookingCancellationsTotal)
	prometheus.MustRegister(vouchersIssuedTotal)
	prometheus.MustRegister(idempotentReplaysTotal)
	prometheus.MustRegister(notificationsSentTotal)
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		duration := time.Since(start).Seconds()

		httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}

func RecordWebhookOutcome(outcome string) {
	webhookEventsTotal.WithLabelValues(outcome).Inc()
}

func RecordCancellation(outcome string) {
	bookingCancellationsTotal.WithLabelValues(outcome).Inc()
}

func RecordVoucherIssued(delivery string) {
	vouchersIssuedTotal.WithLabelValues(delivery).Inc()
}

func RecordIdempotentReplay(scope string) {
	idempotentReplaysTotal.WithLabelValues(scope).Inc()
}

func RecordNotificationSent(kind string) {
	notificationsSentTotal.WithLabelValues(kind).Inc()
}
