package api

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"graphsim/internal/graph"
	"graphsim/internal/layout"

	"github.com/gorilla/websocket"
)

const (
	// MaxWSConnectionsTotal is the maximum number of WebSocket connections allowed
	MaxWSConnectionsTotal = 500

	// MaxWSConnectionsPerIP is the maximum WebSocket connections per IP
	MaxWSConnectionsPerIP = 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")

		// Use the centralized origin checker
		if IsAllowedOrigin(origin) {
			return true
		}

		// Log rejected origin for security monitoring
		log.Printf("⚠️ WebSocket connection rejected from origin: %s", origin)
		RecordConnectionRejected("origin")
		return false
	},
}

// wsCommand is the inbound control envelope. The type field selects the
// command, the rest is per-command payload. Commands ride the same message
// path as the HTTP routes; anything outside the known set is dropped
// without a response.
type wsCommand struct {
	Type  string              `json:"type"`
	Alpha float64             `json:"alpha,omitempty"`
	Patch *layout.ConfigPatch `json:"patch,omitempty"`
	ID    string              `json:"id,omitempty"`
	X     float64             `json:"x,omitempty"`
	Y     float64             `json:"y,omitempty"`
	Edges []graph.Edge        `json:"edges,omitempty"`
}

// wsClient tracks a WebSocket connection with its source IP
type wsClient struct {
	conn *websocket.Conn
	ip   string
}

// WebSocketHub manages all WebSocket connections with DoS protection
type WebSocketHub struct {
	sim        SimInterface
	clients    map[*websocket.Conn]*wsClient
	broadcast  chan []byte
	register   chan *wsClient
	unregister chan *websocket.Conn
	mu         sync.RWMutex

	// Connection limiting per IP
	wsLimiter *WebSocketRateLimiter
}

// NewWebSocketHub creates a new hub with connection limiting
func NewWebSocketHub(sim SimInterface) *WebSocketHub {
	return &WebSocketHub{
		sim:        sim,
		clients:    make(map[*websocket.Conn]*wsClient),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *wsClient),
		unregister: make(chan *websocket.Conn),
		wsLimiter:  NewWebSocketRateLimiter(MaxWSConnectionsPerIP),
	}
}

// Run starts the hub
func (h *WebSocketHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.conn] = client
			count := len(h.clients)
			h.mu.Unlock()

			log.Printf("📱 Client connected from %s (%d total)", client.ip, count)
			UpdateWSConnections(count)

		case conn := <-h.unregister:
			h.mu.Lock()
			if client, ok := h.clients[conn]; ok {
				// Release the connection slot for this IP
				h.wsLimiter.Release(client.ip)
				delete(h.clients, conn)
				conn.Close()
			}
			count := len(h.clients)
			h.mu.Unlock()

			log.Printf("📱 Client disconnected (%d remaining)", count)
			UpdateWSConnections(count)

		case message := <-h.broadcast:
			var failed []*websocket.Conn
			h.mu.RLock()
			for conn := range h.clients {
				if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
					failed = append(failed, conn)
				}
			}
			h.mu.RUnlock()

			for _, conn := range failed {
				h.mu.Lock()
				if client, ok := h.clients[conn]; ok {
					h.wsLimiter.Release(client.ip)
					delete(h.clients, conn)
					conn.Close()
				}
				h.mu.Unlock()
			}
			IncrementWSMessages()
		}
	}
}

// Broadcast sends a message to all connected clients
func (h *WebSocketHub) Broadcast(event string, data interface{}) {
	msg := map[string]interface{}{
		"event": event,
		"data":  data,
	}

	jsonBytes, err := json.Marshal(msg)
	if err != nil {
		return
	}

	select {
	case h.broadcast <- jsonBytes:
	default:
		// Channel full, skip (backpressure)
	}
}

// ClientCount returns the number of connected clients
func (h *WebSocketHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// StartBroadcastLoop starts broadcasting node positions periodically.
// Positions come from the shared buffer, not from engine events, so the
// loop costs nothing when the simulation is idle and never blocks it.
func (h *WebSocketHub) StartBroadcastLoop() {
	ticker := time.NewTicker(100 * time.Millisecond) // 10 updates per second

	go func() {
		for range ticker.C {
			if h.ClientCount() == 0 {
				continue
			}

			g := h.sim.Graph()
			if g == nil {
				continue
			}

			// Advisory read, same caveats as the positions endpoint
			n := g.Count()
			positions := make([]float64, 2*n)
			for i := 0; i < n; i++ {
				positions[2*i] = g.Nodes.X(i)
				positions[2*i+1] = g.Nodes.Y(i)
			}

			h.Broadcast("positions", map[string]interface{}{
				"count":     n,
				"alpha":     g.State.Alpha(),
				"running":   g.State.Running(),
				"positions": positions,
			})
		}
	}()
}

// handleCommand dispatches one inbound control frame. The command set is
// closed: unknown types fall through without any effect or response, and
// command errors (unknown node id, nothing loaded) are dropped the same
// way. Remote clients get feedback through the event broadcast, not through
// per-command replies.
func (h *WebSocketHub) handleCommand(cmd wsCommand) {
	switch cmd.Type {
	case "start":
		h.sim.Send(layout.StartMessage{Alpha: cmd.Alpha})
	case "stop":
		h.sim.Send(layout.StopMessage{})
	case "reheat":
		h.sim.Send(layout.ReheatMessage{Alpha: cmd.Alpha})
	case "config":
		if cmd.Patch != nil {
			h.sim.Send(layout.ConfigMessage{Patch: *cmd.Patch})
		}
	case "pin":
		if cmd.ID != "" {
			h.sim.PinNode(cmd.ID, cmd.X, cmd.Y)
		}
	case "unpin":
		if cmd.ID != "" {
			h.sim.UnpinNode(cmd.ID)
		}
	case "edges":
		if len(cmd.Edges) > 0 {
			h.sim.ReplaceEdges(cmd.Edges)
		}
	}
}

// HandleWebSocket handles incoming WebSocket connections with DoS protection
func (h *WebSocketHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Get client IP for rate limiting
	ip := GetClientIP(r)

	// Check total connection limit
	h.mu.RLock()
	totalConnections := len(h.clients)
	h.mu.RUnlock()

	if totalConnections >= MaxWSConnectionsTotal {
		log.Printf("⚠️ WebSocket connection rejected: total limit reached (%d)", totalConnections)
		RecordConnectionRejected("ws_total_limit")
		http.Error(w, "Too many connections", http.StatusServiceUnavailable)
		return
	}

	// Check per-IP connection limit
	if !h.wsLimiter.Allow(ip) {
		log.Printf("⚠️ WebSocket connection rejected from %s: per-IP limit reached", ip)
		RecordConnectionRejected("ws_ip_limit")
		http.Error(w, "Too many connections from your IP", http.StatusTooManyRequests)
		return
	}

	// Upgrade to WebSocket
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		h.wsLimiter.Release(ip) // Release the slot we reserved
		return
	}

	// Register the connection
	client := &wsClient{conn: conn, ip: ip}
	h.register <- client

	// Read control frames from the client
	go func() {
		defer func() {
			h.unregister <- conn
		}()

		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				break
			}

			var cmd wsCommand
			if err := json.Unmarshal(message, &cmd); err != nil {
				// Malformed frames are dropped silently
				continue
			}

			h.handleCommand(cmd)
		}
	}()
}
