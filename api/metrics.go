package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the server's prometheus collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	positionsRecomputed prometheus.Counter
	cascadeFailures     prometheus.Counter
	valuations          prometheus.Counter
	reports             *prometheus.CounterVec
}

// NewMetrics registers the collectors plus the Go and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cost_engine",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cost_engine",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		positionsRecomputed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cost_engine",
			Name:      "positions_recomputed_total",
			Help:      "Positions recomputed by salary configuration cascades.",
		}),
		cascadeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cost_engine",
			Name:      "cascade_failures_total",
			Help:      "Positions that failed to recompute during a cascade.",
		}),
		valuations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cost_engine",
			Name:      "budget_valuations_total",
			Help:      "Budget revaluations triggered by edits.",
		}),
		reports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cost_engine",
			Name:      "budget_reports_total",
			Help:      "Budget reports built, by output format.",
		}, []string{"format"}),
	}
	m.registry.MustRegister(
		m.requests,
		m.requestDuration,
		m.positionsRecomputed,
		m.cascadeFailures,
		m.valuations,
		m.reports,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware counts and times every request by its chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.requests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		m.requestDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

func (m *Metrics) recordCascade(succeeded, failed int) {
	m.positionsRecomputed.Add(float64(succeeded))
	m.cascadeFailures.Add(float64(failed))
}

func (m *Metrics) recordValuation() { m.valuations.Inc() }

func (m *Metrics) recordReport(format string) {
	m.reports.WithLabelValues(format).Inc()
}
