package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pcRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paycrawl_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	pcRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "paycrawl_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	pcClaimEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paycrawl_claim_events_total",
		Help: "Claim lifecycle events by type (created, verified, approved, rejected).",
	}, []string{"event"})

	pcVerificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paycrawl_verifications_total",
		Help: "DNS verification attempts by outcome.",
	}, []string{"outcome"})

	pcDiscoveryRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paycrawl_discovery_runs_total",
		Help: "Total discovery runs executed.",
	})

	pcDomainsProbedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paycrawl_domains_probed_total",
		Help: "Domains probed across all discovery runs.",
	})

	pcDomainsQualifiedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paycrawl_domains_qualified_total",
		Help: "Domains that qualified with a positive probe signal.",
	})

	pcAvailabilityChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paycrawl_availability_checks_total",
		Help: "Published-domain availability checks by result.",
	}, []string{"result"})

	pcPublishedDomains = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "paycrawl_published_domains",
		Help: "Current number of published marketplace domains.",
	})
)

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		pcRequestsTotal.WithLabelValues(method, path, status).Inc()
		pcRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordClaimEvent records a claim lifecycle event.
func RecordClaimEvent(event string) {
	pcClaimEventsTotal.WithLabelValues(event).Inc()
}

// RecordVerification records a DNS verification attempt outcome.
func RecordVerification(outcome string) {
	pcVerificationsTotal.WithLabelValues(outcome).Inc()
}

// RecordDiscoveryRun records a completed discovery run.
func RecordDiscoveryRun(probed, qualified int) {
	pcDiscoveryRunsTotal.Inc()
	pcDomainsProbedTotal.Add(float64(probed))
	pcDomainsQualifiedTotal.Add(float64(qualified))
}

// RecordAvailabilityCheck records a published-domain availability check.
func RecordAvailabilityCheck(available bool) {
	if available {
		pcAvailabilityChecksTotal.WithLabelValues("available").Inc()
	} else {
		pcAvailabilityChecksTotal.WithLabelValues("unavailable").Inc()
	}
}

// SetPublishedDomainsGauge sets the published domain count gauge.
func SetPublishedDomainsGauge(count float64) {
	pcPublishedDomains.Set(count)
}
