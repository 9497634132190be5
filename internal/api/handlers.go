package api

import (
	"encoding/json"
	"io"
	"log"
	"net/http"

	"graphsim/internal/graph"
	"graphsim/internal/layout"
)

// Handler methods for routerHandlers.
// These are used by both the standalone router (for testing) and the full Server.

// maxGraphBody caps graph uploads. A million-node document is ~100MB of
// JSON; 32MB covers every realistic graph while bounding memory per request.
const maxGraphBody = 32 << 20

func (h *routerHandlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func (h *routerHandlers) handleIndex(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{
		"service": "graphsim",
		"state":   h.sim.EngineState().String(),
		"endpoints": []string{
			"POST /api/graph",
			"POST /api/graph/nodes",
			"GET /api/graph",
			"POST /api/sim/{start,stop,reheat,config,edges,pin,unpin}",
			"GET /api/positions",
			"GET /api/state",
			"GET /api/stats",
			"WS /ws",
		},
	})
}

func (h *routerHandlers) handleLoadGraph(w http.ResponseWriter, r *http.Request) {
	var doc graph.Document
	r.Body = http.MaxBytesReader(w, r.Body, maxGraphBody)
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		writeError(w, "Invalid graph document", http.StatusBadRequest)
		return
	}

	if err := h.sim.LoadGraph(doc); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	g := h.sim.Graph()
	writeJSON(w, map[string]interface{}{
		"success": true,
		"nodes":   g.Count(),
		"edges":   len(g.Edges),
	})
}

func (h *routerHandlers) handleExtendGraph(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Nodes []graph.Node `json:"nodes"`
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxGraphBody)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	if err := h.sim.ExtendGraph(req.Nodes); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, map[string]interface{}{
		"success": true,
		"nodes":   h.sim.Graph().Count(),
	})
}

func (h *routerHandlers) handleGetGraph(w http.ResponseWriter, r *http.Request) {
	g := h.sim.Graph()
	if g == nil {
		writeError(w, "No graph loaded", http.StatusNotFound)
		return
	}

	writeJSON(w, map[string]interface{}{
		"nodes": g.IDs(),
		"edges": len(g.Edges),
	})
}

func (h *routerHandlers) handleStart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Alpha float64 `json:"alpha"`
	}
	// Empty body means default temperature
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	log.Println("🚀 Simulation start requested via API")
	if !h.sim.Send(layout.StartMessage{Alpha: req.Alpha}) {
		writeError(w, "No graph loaded", http.StatusConflict)
		return
	}
	writeJSON(w, map[string]bool{"success": true})
}

func (h *routerHandlers) handleStop(w http.ResponseWriter, r *http.Request) {
	log.Println("⏸️ Simulation stop requested via API")
	if !h.sim.Send(layout.StopMessage{}) {
		writeError(w, "No graph loaded", http.StatusConflict)
		return
	}
	writeJSON(w, map[string]bool{"success": true})
}

func (h *routerHandlers) handleReheat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Alpha float64 `json:"alpha"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	if !h.sim.Send(layout.ReheatMessage{Alpha: req.Alpha}) {
		writeError(w, "No graph loaded", http.StatusConflict)
		return
	}
	writeJSON(w, map[string]bool{"success": true})
}

func (h *routerHandlers) handleConfig(w http.ResponseWriter, r *http.Request) {
	var patch layout.ConfigPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, "Invalid config patch", http.StatusBadRequest)
		return
	}

	if !h.sim.Send(layout.ConfigMessage{Patch: patch}) {
		writeError(w, "No graph loaded", http.StatusConflict)
		return
	}
	writeJSON(w, map[string]bool{"success": true})
}

func (h *routerHandlers) handleEdges(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Edges []graph.Edge `json:"edges"`
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxGraphBody)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	if err := h.sim.ReplaceEdges(req.Edges); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, map[string]interface{}{
		"success": true,
		"edges":   len(req.Edges),
	})
}

func (h *routerHandlers) handlePin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID string  `json:"id"`
		X  float64 `json:"x"`
		Y  float64 `json:"y"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if req.ID == "" {
		writeError(w, "Node id is required", http.StatusBadRequest)
		return
	}

	if err := h.sim.PinNode(req.ID, req.X, req.Y); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, map[string]bool{"success": true})
}

func (h *routerHandlers) handleUnpin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID string `json:"id"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if req.ID == "" {
		writeError(w, "Node id is required", http.StatusBadRequest)
		return
	}

	if err := h.sim.UnpinNode(req.ID); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, map[string]bool{"success": true})
}

func (h *routerHandlers) handlePositions(w http.ResponseWriter, r *http.Request) {
	g := h.sim.Graph()
	if g == nil {
		writeError(w, "No graph loaded", http.StatusNotFound)
		return
	}

	// Advisory read: the engine may be mid-tick, so individual coordinates
	// can be one integration step apart. Fine for rendering, not for
	// convergence decisions.
	n := g.Count()
	positions := make([]float64, 2*n)
	for i := 0; i < n; i++ {
		positions[2*i] = g.Nodes.X(i)
		positions[2*i+1] = g.Nodes.Y(i)
	}

	writeJSON(w, map[string]interface{}{
		"count":     n,
		"alpha":     g.State.Alpha(),
		"running":   g.State.Running(),
		"positions": positions,
	})
}

func (h *routerHandlers) handleState(w http.ResponseWriter, r *http.Request) {
	stats := h.sim.EngineStats()
	resp := map[string]interface{}{
		"state": stats.State,
		"ticks": stats.Ticks,
	}

	if g := h.sim.Graph(); g != nil {
		resp["alpha"] = g.State.Alpha()
		resp["alphaTarget"] = g.State.AlphaTarget()
		resp["alphaMin"] = g.State.AlphaMin()
		resp["running"] = g.State.Running()
	}

	writeJSON(w, resp)
}

func (h *routerHandlers) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"engine": h.sim.EngineStats(),
	}

	if h.publisher != nil {
		clients, sent, dropped := h.publisher.GetStats()
		stats["ipc"] = map[string]interface{}{
			"clients":       clients,
			"framesSent":    sent,
			"framesDropped": dropped,
		}
	}

	if h.limiter != nil {
		stats["rateLimiter"] = h.limiter.GetStats()
	}

	writeJSON(w, stats)
}

// Helper functions (package-level for reuse)

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
