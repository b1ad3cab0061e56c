package dispatcher

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the dispatcher's Prometheus collector set, the same
// request-count/duration/in-flight shape as infrastructure/metrics.Metrics,
// narrowed to what an invocation path actually emits.
type Metrics struct {
	registry          *prometheus.Registry
	requestsTotal     *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	requestsInFlight  prometheus.Gauge
	concurrencyDenied *prometheus.CounterVec
}

// NewMetrics builds a Metrics bound to a private registry so a dispatcher
// embedded in a larger process never collides with unrelated collectors
// registered against prometheus.DefaultRegisterer.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "faascore_invoke_requests_total",
			Help: "Total number of /invoke requests handled, by function ref and status.",
		}, []string{"ref", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "faascore_invoke_duration_seconds",
			Help:    "Invocation request duration in seconds.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"ref"}),
		requestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "faascore_invoke_requests_in_flight",
			Help: "Current number of invocation requests being processed.",
		}),
		concurrencyDenied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "faascore_invoke_concurrency_denied_total",
			Help: "Total number of requests rejected with too_many_concurrent.",
		}, []string{"ref"}),
	}
	reg.MustRegister(m.requestsTotal, m.requestDuration, m.requestsInFlight, m.concurrencyDenied)
	return m
}

// Handler serves the Prometheus text exposition format for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// metricsMiddleware mirrors infrastructure/middleware.MetricsMiddleware:
// in-flight gauge around the call, then a counter and histogram observation
// keyed by the matched route template rather than the raw path (so
// /invoke/{ref}/{rest:.*} doesn't explode cardinality per tail segment).
func metricsMiddleware(m *Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			m.requestsInFlight.Inc()
			defer m.requestsInFlight.Dec()

			wrapped := &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			ref := mux.Vars(r)["ref"]
			if ref == "" {
				ref = "-"
			}
			m.requestsTotal.WithLabelValues(ref, strconv.Itoa(wrapped.statusCode)).Inc()
			m.requestDuration.WithLabelValues(ref).Observe(time.Since(start).Seconds())
		})
	}
}

// statusWriter captures the status code passed to WriteHeader, mirroring
// infrastructure/middleware's responseWriter wrapper.
type statusWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.written {
		w.statusCode = code
		w.written = true
		w.ResponseWriter.WriteHeader(code)
	}
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}
