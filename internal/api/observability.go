package api

import (
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics with bounded cardinality (no per-node labels to prevent DoS)
var (
	// Simulation metrics
	tickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "graphsim_tick_duration_seconds",
		Help:    "Time spent computing one simulation pass",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
	})

	simulationAlpha = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "graphsim_alpha",
		Help: "Current simulation temperature",
	})

	nodeCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "graphsim_nodes",
		Help: "Number of nodes in the loaded graph",
	})

	edgeCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "graphsim_edges",
		Help: "Number of edges in the loaded graph",
	})

	engineEventsDropped = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "graphsim_engine_events_dropped",
		Help: "Engine events discarded because the event channel was full",
	})

	// Audit log metrics
	auditLogTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "graphsim_audit_log_entries",
		Help: "Total audit log entries accepted",
	})

	auditLogDropped = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "graphsim_audit_log_dropped",
		Help: "Audit log entries dropped due to rate limiting",
	})

	// IPC metrics
	ipcClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "graphsim_ipc_clients",
		Help: "Connected renderer processes",
	})

	ipcFramesSent = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "graphsim_ipc_frames_sent",
		Help: "Position frames broadcast to renderers",
	})

	ipcFramesDropped = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "graphsim_ipc_frames_dropped",
		Help: "Position frames dropped because the broadcast queue was full",
	})

	// DoS detection metrics - use ONLY bounded label values
	connectionRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "graphsim_connections_rejected_total",
		Help: "Connections rejected by rate limiter or origin check",
	}, []string{"reason"}) // Bounded: "rate_limit", "origin", "ws_limit"

	// HTTP metrics with bounded labels
	requestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "graphsim_http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "endpoint"}) // endpoint is route pattern, not raw path

	requestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "graphsim_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "endpoint", "status"})

	// WebSocket metrics
	wsConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "graphsim_websocket_connections_active",
		Help: "Currently active WebSocket connections",
	})

	wsMessagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "graphsim_websocket_messages_total",
		Help: "Total WebSocket messages sent",
	})
)

// ObservabilityConfig configures the debug/metrics server
type ObservabilityConfig struct {
	// DebugAddr is the address for pprof/metrics endpoints
	// SECURITY: Should be localhost-only in production
	DebugAddr string

	// EnableDebugServer controls whether to start the debug server
	EnableDebugServer bool

	// BasicAuthUser/Pass for debug endpoints (empty = no auth)
	BasicAuthUser string
	BasicAuthPass string
}

// DefaultObservabilityConfig returns safe defaults
var DefaultObservabilityConfig = ObservabilityConfig{
	DebugAddr:         "127.0.0.1:6060", // Localhost only
	EnableDebugServer: true,
}

// StartDebugServer starts the pprof/metrics server on a separate port
// SECURITY: This should NEVER be exposed publicly. It binds to localhost
// by default. Set ALLOW_DEBUG_EXTERNAL=true env var to override (dangerous).
func StartDebugServer(cfg ObservabilityConfig) {
	if !cfg.EnableDebugServer {
		return
	}

	// Enforce localhost-only unless explicitly overridden
	if os.Getenv("ALLOW_DEBUG_EXTERNAL") != "true" {
		if !strings.HasPrefix(cfg.DebugAddr, "127.0.0.1:") && !strings.HasPrefix(cfg.DebugAddr, "localhost:") {
			log.Printf("⚠️ SECURITY: Debug server address %s is not localhost, forcing to 127.0.0.1:6060", cfg.DebugAddr)
			cfg.DebugAddr = "127.0.0.1:6060"
		}
	}

	mux := http.NewServeMux()

	// pprof endpoints
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	// Prometheus metrics
	mux.Handle("/metrics", promhttp.Handler())

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	var handler http.Handler = mux
	if cfg.BasicAuthUser != "" && cfg.BasicAuthPass != "" {
		handler = basicAuthMiddleware(cfg.BasicAuthUser, cfg.BasicAuthPass, mux)
	}

	go func() {
		log.Printf("📊 Debug server listening on %s (pprof + metrics)", cfg.DebugAddr)
		if err := http.ListenAndServe(cfg.DebugAddr, handler); err != nil {
			log.Printf("⚠️ Debug server error: %v", err)
		}
	}()
}

// basicAuthMiddleware adds HTTP basic auth to debug endpoints
func basicAuthMiddleware(user, pass string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || u != user || p != pass {
			w.Header().Set("WWW-Authenticate", `Basic realm="debug"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RecordTick records the duration of one simulation pass
func RecordTick(duration time.Duration) {
	tickDuration.Observe(duration.Seconds())
}

// RecordAlpha updates the simulation temperature gauge
func RecordAlpha(alpha float64) {
	simulationAlpha.Set(alpha)
}

// UpdateGraphSize updates the node and edge count gauges
func UpdateGraphSize(nodes, edges int64) {
	nodeCount.Set(float64(nodes))
	edgeCount.Set(float64(edges))
}

// UpdateEngineDropped updates the dropped engine event gauge
func UpdateEngineDropped(dropped uint64) {
	engineEventsDropped.Set(float64(dropped))
}

// UpdateAuditLogStats updates audit log metrics
func UpdateAuditLogStats(total, dropped uint64) {
	auditLogTotal.Set(float64(total))
	auditLogDropped.Set(float64(dropped))
}

// UpdateIPCStats updates IPC publisher metrics
func UpdateIPCStats(clients int, sent, dropped int64) {
	ipcClients.Set(float64(clients))
	ipcFramesSent.Set(float64(sent))
	ipcFramesDropped.Set(float64(dropped))
}

// RecordConnectionRejected increments rejection counter with bounded reason
func RecordConnectionRejected(reason string) {
	connectionRejected.WithLabelValues(reason).Inc()
}

// RecordRequest records HTTP request metrics
func RecordRequest(method, endpoint, status string, duration time.Duration) {
	requestLatency.WithLabelValues(method, endpoint).Observe(duration.Seconds())
	requestTotal.WithLabelValues(method, endpoint, status).Inc()
}

// UpdateWSConnections sets the active WebSocket connection gauge
func UpdateWSConnections(count int) {
	wsConnectionsActive.Set(float64(count))
}

// IncrementWSMessages increments the WebSocket message counter
func IncrementWSMessages() {
	wsMessagesTotal.Inc()
}
