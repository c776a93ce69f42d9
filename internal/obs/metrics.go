package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// Domain counters.

	LeadMutations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leads_mutations_total",
			Help: "Lead mutations by operation (create, update, delete).",
		},
		[]string{"op"},
	)

	NotificationsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "notifications_created_total",
		Help: "Durable notification rows created.",
	})

	LiveEventsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "live_events_dropped_total",
		Help: "Live push events dropped because a subscriber was slow.",
	})

	EmailFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "email_send_failures_total",
		Help: "Outbound notice emails that failed to send.",
	})
)

// Init registers all metrics with the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		LeadMutations, NotificationsCreated, LiveEventsDropped, EmailFailures,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Instrument wraps a handler with RPS/latency/in-flight measurement.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// CanonicalPath collapses resource identifiers so metric labels stay bounded.
func CanonicalPath(path string) string {
	if path == "" {
		return "/"
	}
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	parts := strings.Split(path, "/")
	collapse := func(prefix []string, idIdx int, rest ...string) bool {
		if len(parts) != idIdx+1+len(rest) {
			return false
		}
		for i, p := range prefix {
			if parts[i] != p {
				return false
			}
		}
		for i, p := range rest {
			if parts[idIdx+1+i] != p {
				return false
			}
		}
		return true
	}
	switch {
	case collapse([]string{"", "api", "v1", "leads"}, 4):
		parts[4] = ":id"
	case collapse([]string{"", "api", "v1", "leads"}, 4, "activities"):
		parts[4] = ":id"
	case collapse([]string{"", "api", "v1", "activities"}, 4):
		parts[4] = ":id"
	case collapse([]string{"", "api", "v1", "notifications"}, 4, "read"):
		parts[4] = ":id"
	}
	return strings.Join(parts, "/")
}

// statusWriter records the response code for labelling.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// Flush lets instrumented SSE handlers keep streaming.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
