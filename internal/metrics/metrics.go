package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RequestsTotal counts total HTTP requests
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arcade_mcp_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// RequestDuration tracks request latency
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "arcade_mcp_request_duration_seconds",
			Help:    "Request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// ActiveSessions tracks currently connected MCP sessions
	ActiveSessions = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "arcade_mcp_active_sessions",
			Help: "Number of active MCP sessions",
		},
		[]string{"transport"},
	)

	// ToolCalls tracks tool invocations
	ToolCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arcade_mcp_tool_calls_total",
			Help: "Total number of tool calls",
		},
		[]string{"tool", "status"},
	)

	// ToolCallDuration tracks tool execution latency
	ToolCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "arcade_mcp_tool_call_duration_seconds",
			Help:    "Tool execution duration in seconds",
			Buckets: []float64{0.005, 0.05, 0.1, 0.5, 1, 5, 15, 60},
		},
		[]string{"tool"},
	)

	// NotificationsDropped counts notifications dropped by rate limiting
	NotificationsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arcade_mcp_notifications_dropped_total",
			Help: "Total number of notifications dropped by the per-client rate limit",
		},
		[]string{"method"},
	)

	// EventStoreTrims counts events evicted from replay streams
	EventStoreTrims = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "arcade_mcp_event_store_trims_total",
			Help: "Total number of events trimmed from replay streams",
		},
	)

	// RPCRequests counts dispatched JSON-RPC methods
	RPCRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arcade_mcp_rpc_requests_total",
			Help: "Total number of JSON-RPC requests by method and outcome",
		},
		[]string{"rpc_method", "status"},
	)
)

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush implements http.Flusher for SSE support
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Middleware creates an HTTP middleware that records metrics
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		path := normalizePath(r.URL.Path)

		RequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		RequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// normalizePath normalizes URL paths to avoid high cardinality
func normalizePath(path string) string {
	switch path {
	case "/health", "/ready", "/metrics", "/mcp", "/mcp/", "/sse", "/stream":
		return path
	default:
		switch {
		case strings.HasPrefix(path, "/mcp/"):
			return "/mcp"
		case strings.HasPrefix(path, "/worker/"):
			return path
		default:
			return "other"
		}
	}
}

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordSessionStart increments the active session gauge
func RecordSessionStart(transport string) {
	ActiveSessions.WithLabelValues(transport).Inc()
}

// RecordSessionEnd decrements the active session gauge
func RecordSessionEnd(transport string) {
	ActiveSessions.WithLabelValues(transport).Dec()
}

// RecordToolCall records one tool invocation
func RecordToolCall(tool, status string, duration time.Duration) {
	ToolCalls.WithLabelValues(tool, status).Inc()
	ToolCallDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// RecordRPC records one dispatched JSON-RPC request
func RecordRPC(method, status string) {
	RPCRequests.WithLabelValues(method, status).Inc()
}

// RecordNotificationDrop records a rate-limited notification
func RecordNotificationDrop(method string) {
	NotificationsDropped.WithLabelValues(method).Inc()
}

// RecordEventTrim records an event evicted from a replay stream
func RecordEventTrim() {
	EventStoreTrims.Inc()
}
