package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	InvoicesCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "donation_invoices_created_total",
			Help: "Invoices requested from the payment processor",
		},
		[]string{"status"},
	)

	RateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "donation_rate_limited_total",
			Help: "Requests rejected by a rate limit rule",
		},
		[]string{"rule"},
	)

	ReceiptsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "donation_receipts_total",
			Help: "Receipt dispatch attempts",
		},
		[]string{"status"},
	)

	DonorWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "donation_donor_writes_total",
			Help: "Best-effort donor record writes",
		},
		[]string{"status"},
	)

	SettledFeed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "donation_settled_broadcasts_total",
			Help: "Settled donations pushed to the live feed",
		},
	)

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "donation_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2, 5},
		},
		[]string{"method", "route", "code"},
	)
)

// Outcome labels.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Outcome maps an error to a status label.
func Outcome(err error) string {
	if err != nil {
		return StatusFailure
	}
	return StatusSuccess
}

// Middleware records request durations by route template.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		requestDuration.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}

// Handler serves the prometheus exposition format.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
