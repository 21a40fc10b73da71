package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestsTotal counts admin/API requests by route and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "backoffice",
		Name:      "http_requests_total",
		Help:      "HTTP requests processed, by method, route and status.",
	}, []string{"method", "route", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "backoffice",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	// AssignmentOutcomes counts bulk/single assignment results per outcome
	// (assigned, or a skip reason).
	AssignmentOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "backoffice",
		Subsystem: "promotion",
		Name:      "assignment_outcomes_total",
		Help:      "Promotion assignment outcomes, by outcome.",
	}, []string{"outcome"})

	// DiscountsApplied counts reservations settled at charge time.
	DiscountsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "backoffice",
		Subsystem: "promotion",
		Name:      "discounts_applied_total",
		Help:      "Promotion discounts applied to successful payments, by discount type.",
	}, []string{"discount_type"})
)

// GinMiddleware records request counts and latency.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		HTTPRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
