package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stagewire/dispatch/pkg/common"
)

// Metrics collects Prometheus request metrics. Each instance owns its own
// registry so tests and multiple routers never collide on metric names.
type Metrics struct {
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics creates a Metrics collector under the given namespace.
func NewMetrics(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests by method and status.",
			},
			[]string{"method", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
	}
	m.registry.MustRegister(m.requests, m.duration)
	return m
}

// Middleware returns the request-recording middleware. A request that
// unwinds with a panic is counted as a 500 and the panic is re-raised.
func (m *Metrics) Middleware() common.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &statusWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			defer func() {
				m.duration.WithLabelValues(r.Method).Observe(time.Since(start).Seconds())
				if rec := recover(); rec != nil {
					m.requests.WithLabelValues(r.Method, strconv.Itoa(statusFromFault(rec))).Inc()
					panic(rec)
				}
				m.requests.WithLabelValues(r.Method, strconv.Itoa(rw.statusCode)).Inc()
			}()

			next.ServeHTTP(rw, r)
		})
	}
}

// Handler returns the exposition endpoint for the collector's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, e.g. for registering
// application metrics alongside the request metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
