// Package api exposes the simulation over HTTP and WebSocket: graph upload,
// lifecycle control, advisory position reads and monitoring. Handlers talk
// to the engine exclusively through the Sim controller, so every mutation
// travels the same message path no matter which transport it came in on.
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// PublisherInterface defines the IPC publisher methods used by the stats
// endpoint. Abstracted so tests can run without a socket.
type PublisherInterface interface {
	GetStats() (clients int, sent int64, dropped int64)
}

// RouterConfig holds dependencies for creating a router
type RouterConfig struct {
	// Sim is the simulation controller (required)
	Sim SimInterface

	// Publisher provides IPC stats (optional)
	Publisher PublisherInterface

	// RateLimiter for IP-based rate limiting (optional)
	RateLimiter *IPRateLimiter

	// RateLimitConfig creates a rate limiter if RateLimiter is nil
	RateLimitConfig *RateLimitConfig

	// CORSOrigins overrides the default allowed origins (optional)
	CORSOrigins []string

	// DisableLogging disables request logging (for tests)
	DisableLogging bool
}

type routerHandlers struct {
	sim       SimInterface
	publisher PublisherInterface
	limiter   *IPRateLimiter
}

// NewRouter creates a chi router with all HTTP routes configured.
// This is a pure function with no side effects - it doesn't start servers
// or goroutines, making it safe for testing.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware stack
	if !cfg.DisableLogging {
		r.Use(middleware.Logger)
	}
	// Metrics outside Recoverer so recovered panics are recorded as 500s
	r.Use(metricsMiddleware)
	r.Use(middleware.Recoverer)

	// Rate limiting BEFORE CORS so abusive clients are rejected early
	rateLimiter := cfg.RateLimiter
	if rateLimiter == nil && cfg.RateLimitConfig != nil {
		rateLimiter = NewIPRateLimiter(*cfg.RateLimitConfig)
	}
	if rateLimiter != nil {
		r.Use(rateLimiter.Middleware)
	}

	corsOrigins := cfg.CORSOrigins
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"http://localhost:*", "http://127.0.0.1:*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h := &routerHandlers{
		sim:       cfg.Sim,
		publisher: cfg.Publisher,
		limiter:   rateLimiter,
	}

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.handleHealth)

		// Graph topology
		r.Post("/graph", h.handleLoadGraph)
		r.Post("/graph/nodes", h.handleExtendGraph)
		r.Get("/graph", h.handleGetGraph)

		// Simulation lifecycle and control
		r.Route("/sim", func(r chi.Router) {
			r.Post("/start", h.handleStart)
			r.Post("/stop", h.handleStop)
			r.Post("/reheat", h.handleReheat)
			r.Post("/config", h.handleConfig)
			r.Post("/edges", h.handleEdges)
			r.Post("/pin", h.handlePin)
			r.Post("/unpin", h.handleUnpin)
		})

		// Advisory reads
		r.Get("/positions", h.handlePositions)
		r.Get("/state", h.handleState)
		r.Get("/stats", h.handleStats)
	})

	// Service banner for discovery
	r.Get("/", h.handleIndex)

	return r
}

// metricsMiddleware records request latency and counts per route pattern.
// Patterns keep the label cardinality bounded; raw paths would not.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		pattern := chi.RouteContext(r.Context()).RoutePattern()
		if pattern == "" {
			pattern = "unmatched"
		}
		RecordRequest(r.Method, pattern, strconv.Itoa(ww.Status()), time.Since(start))
	})
}
