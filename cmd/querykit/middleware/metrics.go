package middleware

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// MetricsCollector defines the interface for collecting metrics.
type MetricsCollector interface {
	IncrementCounter(name string, labels ...string)
	RecordHistogram(name string, value float64, labels ...string)
	RecordGauge(name string, value float64, labels ...string)
	StartTimer(name string) Timer
}

// Timer represents a timing measurement.
type Timer interface {
	Stop() float64
}

// MetricsMiddleware provides metrics collection middleware.
type MetricsMiddleware struct {
	collector MetricsCollector
}

// NewMetricsMiddleware creates a new metrics middleware.
func NewMetricsMiddleware(collector MetricsCollector) *MetricsMiddleware {
	return &MetricsMiddleware{
		collector: collector,
	}
}

// Handler records request counts, statuses and latencies per route.
func (m *MetricsMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		timer := m.collector.StartTimer("http_handler")
		rec := newStatusRecorder(w)

		next.ServeHTTP(rec, r)

		duration := timer.Stop()
		route := routePattern(r)
		m.collector.IncrementCounter("http_requests_total", "method", r.Method, "route", route)
		m.collector.IncrementCounter("http_responses_total", "method", r.Method, "route", route, "code", strconv.Itoa(rec.Status()))
		m.collector.RecordHistogram("http_request_duration_seconds", duration, "method", r.Method, "route", route)
	})
}

// routePattern returns the matched chi route, so that metrics are not
// labelled by raw paths.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}
