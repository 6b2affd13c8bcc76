package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "datawarden",
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests by method, path, and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "datawarden",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path"})

	ToolExecutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "datawarden",
		Name:      "tool_executions_total",
		Help:      "Total governed tool executions by tool and outcome.",
	}, []string{"tool", "outcome"})

	ToolExecutionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "datawarden",
		Name:      "tool_execution_duration_seconds",
		Help:      "Governed tool execution latency in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"tool"})

	PolicyDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "datawarden",
		Name:      "policy_decisions_total",
		Help:      "Total policy decisions by outcome (allow or the failed policy).",
	}, []string{"decision"})

	HealingAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "datawarden",
		Name:      "healing_attempts_total",
		Help:      "Total self-healed query executions by outcome.",
	}, []string{"outcome"})

	OracleConsultationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "datawarden",
		Name:      "oracle_consultations_total",
		Help:      "Total oracle consultations by outcome.",
	}, []string{"outcome"})

	AuditWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "datawarden",
		Name:      "audit_writes_total",
		Help:      "Total audit entries written by status.",
	}, []string{"status"})
)

// Handler returns an http.Handler that serves the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware wraps an http.Handler to record request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		duration := time.Since(start).Seconds()

		path := normalizePath(r.URL.Path)
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rw.statusCode)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// normalizePath buckets URL paths to avoid high cardinality.
// It keeps the first two path segments and replaces the rest with a placeholder.
func normalizePath(p string) string {
	if p == "" || p == "/" {
		return "/"
	}
	switch {
	case p == "/healthz" || p == "/readyz" || p == "/metrics":
		return p
	}
	segments := 0
	for i := 1; i < len(p); i++ {
		if p[i] == '/' {
			segments++
			if segments >= 2 {
				return p[:i]
			}
		}
	}
	return p
}
