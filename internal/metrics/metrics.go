// Package metrics registers the Prometheus collectors exposed at
// /api/performance-metrics, grounded on the pack's per-service
// prometheus/metrics.go convention (counter/histogram/gauge vars registered
// in init, a promhttp handler, and small Record* helpers called from the
// transport layer).
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mallquest_http_requests_total",
			Help: "Total HTTP requests by route, method and status.",
		},
		[]string{"route", "method", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mallquest_http_request_duration_seconds",
			Help:    "HTTP request latency by route and method.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)

	RewardEngineDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mallquest_reward_engine_duration_seconds",
			Help:    "Duration of reward.Compute calls.",
			Buckets: prometheus.DefBuckets,
		},
	)

	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mallquest_cache_hits_total",
			Help: "Cache lookups by tier and outcome.",
		},
		[]string{"tier", "outcome"},
	)

	RateLimitRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mallquest_rate_limit_rejections_total",
			Help: "Requests rejected by the rate limiter, by action.",
		},
		[]string{"action"},
	)

	VersionConflictsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mallquest_version_conflicts_total",
			Help: "Optimistic version conflicts observed across all coordinators.",
		},
	)

	SchedulerJobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mallquest_scheduler_job_duration_seconds",
			Help:    "Duration of one background scheduler job tick.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"job"},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		RewardEngineDuration,
		CacheHitsTotal,
		RateLimitRejectionsTotal,
		VersionConflictsTotal,
		SchedulerJobDuration,
	)
}

// Handler serves the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request count and latency per route/method/status. The
// route label uses chi's routing pattern (set after RouteContext is
// populated), falling back to the raw path when unmatched.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		route := routePattern(r)
		HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
		HTTPRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(sw.status)).Inc()
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
		return rc.RoutePattern()
	}
	return r.URL.Path
}

// RecordRateLimitRejection increments the per-action rejection counter.
func RecordRateLimitRejection(action string) {
	RateLimitRejectionsTotal.WithLabelValues(action).Inc()
}

// RecordVersionConflict increments the process-wide version-conflict counter.
func RecordVersionConflict() {
	VersionConflictsTotal.Inc()
}

// RecordCacheOutcome increments the cache hit/miss counter for a tier.
func RecordCacheOutcome(tier string, hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	CacheHitsTotal.WithLabelValues(tier, outcome).Inc()
}
