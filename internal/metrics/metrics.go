package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Registrations counts form submissions by outcome.
	Registrations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "eventgate",
		Name:      "registrations_total",
		Help:      "Registration attempts by result.",
	}, []string{"result"})

	// Attendance counts attendance updates by outcome.
	Attendance = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "eventgate",
		Name:      "attendance_marks_total",
		Help:      "Attendance updates by result.",
	}, []string{"result"})

	// Logins counts staff sign-in attempts by outcome.
	Logins = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "eventgate",
		Name:      "staff_logins_total",
		Help:      "Staff login attempts by result.",
	}, []string{"result"})

	// Mails counts confirmation emails by outcome.
	Mails = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "eventgate",
		Name:      "confirmation_mails_total",
		Help:      "Confirmation email dispatches by result.",
	}, []string{"result"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "eventgate",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route and status.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

// Gin records request latency labelled by the matched route template.
func Gin() gin.HandlerFunc {
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
