package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	Submissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiz_submissions_total",
			Help: "Graded submissions by outcome",
		},
		[]string{"outcome"},
	)

	PrefetchFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "quiz_prefetch_failures_total",
			Help: "Media fetches that failed during prefetch",
		},
	)

	PackageBuildDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scorm_package_build_duration_seconds",
			Help:    "Duration of SCORM package builds",
			Buckets: []float64{0.5, 1, 5, 15, 60},
		},
		[]string{"status"},
	)
)

// Register adds every collector to reg. Call once at startup.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(RequestCounter, RequestDuration, Submissions, PrefetchFailures, PackageBuildDuration)
}

// Middleware records request count and latency per route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		endpoint := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			endpoint = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		RequestCounter.WithLabelValues(r.Method, endpoint, strconv.Itoa(status)).Inc()
		RequestDuration.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
	})
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
