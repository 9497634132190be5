package api

import (
	"log"
	"net/http"

	"graphsim/internal/layout"

	"github.com/go-chi/chi/v5"
)

// Server is the HTTP API server with WebSocket support.
// It combines the HTTP router with a WebSocket hub for live updates.
type Server struct {
	sim         SimInterface
	publisher   PublisherInterface
	router      *chi.Mux
	wsHub       *WebSocketHub
	rateLimiter *IPRateLimiter
}

// NewServer creates a new API server with default production configuration.
//
// IMPORTANT: Background workers do NOT start until Start() is called.
// This enables testing by allowing the server to be constructed without
// starting goroutines or opening network listeners.
//
// For testing HTTP endpoints without WebSocket support, use NewRouter() directly.
func NewServer(sim SimInterface, publisher PublisherInterface) *Server {
	s := &Server{
		sim:       sim,
		publisher: publisher,
		wsHub:     NewWebSocketHub(sim),
	}

	// Create rate limiter (we track it for cleanup)
	s.rateLimiter = NewIPRateLimiter(DefaultRateLimitConfig)

	// Build router using the factory
	s.router = NewRouter(RouterConfig{
		Sim:         sim,
		Publisher:   publisher,
		RateLimiter: s.rateLimiter,
	})

	// Add WebSocket routes (these need the wsHub instance)
	s.setupWebSocketRoutes()

	return s
}

// setupWebSocketRoutes adds WebSocket-specific routes to the router.
// These routes need access to the wsHub instance, so they can't be
// part of the generic NewRouter factory.
func (s *Server) setupWebSocketRoutes() {
	s.router.Get("/ws", s.handleWS)
}

// BroadcastEvent forwards an engine event to all WebSocket clients as
// {"event": kind, "data": payload}. Wire this into Sim.OnEvent.
func (s *Server) BroadcastEvent(ev layout.Event) {
	s.wsHub.Broadcast(ev.Kind(), ev)
}

// Start begins the HTTP server AND starts background workers.
// This is the ONLY method that starts goroutines or opens network listeners.
//
// Call this method only once. To stop the server, signal the process.
func (s *Server) Start(addr string) error {
	// Start background workers NOW, not in constructor
	// This is critical for testability - tests can construct the server
	// and use Router() without these workers running.
	go s.wsHub.Run()
	s.wsHub.StartBroadcastLoop()

	log.Printf("🌐 API server starting on %s", addr)

	return http.ListenAndServe(addr, s.router)
}

// Router returns the HTTP handler for use with httptest.
// Use this in integration tests instead of calling Start().
//
// Example:
//
//	server := api.NewServer(sim, nil)
//	ts := httptest.NewServer(server.Router())
//	defer ts.Close()
//	resp, _ := http.Get(ts.URL + "/api/state")
func (s *Server) Router() http.Handler {
	return s.router
}

// Stop performs graceful shutdown of background workers.
// Call this before process exit to ensure clean cleanup.
func (s *Server) Stop() {
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
	// Note: WebSocket connections close when the process exits.
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	s.wsHub.HandleWebSocket(w, r)
}
