package api

import (
	"fmt"
	"log"
	"sync"
	"time"

	"graphsim/internal/graph"
	"graphsim/internal/layout"
)

// SimInterface defines the simulation controller methods used by HTTP and
// WebSocket handlers. Abstracted for testing.
type SimInterface interface {
	LoadGraph(doc graph.Document) error
	ExtendGraph(nodes []graph.Node) error
	ReplaceEdges(edges []graph.Edge) error
	PinNode(id string, x, y float64) error
	UnpinNode(id string) error
	Graph() *graph.Graph
	Send(msg layout.Message) bool
	EngineState() layout.State
	EngineStats() layout.Stats
}

// SimOptions configures the simulation controller.
type SimOptions struct {
	TickRate    int     // engine ticks per second, 0 = engine default
	EventBuffer int     // engine event channel capacity, 0 = engine default
	Seed        int64   // placement seed for unpositioned nodes
	WorldWidth  float64 // placement extent, 0 = 1000
	WorldHeight float64

	Snapshots *layout.SnapshotRing // shared with the IPC publisher
	AuditLog  *layout.EventLog     // lifecycle audit trail
}

// Sim owns the engine lifecycle and the currently loaded graph. An engine
// accepts exactly one init in its lifetime, so loading a new graph
// terminates the old engine and brings up a fresh one behind the same
// controller. Handlers only ever talk to the controller.
type Sim struct {
	opts SimOptions

	mu       sync.RWMutex
	engine   *layout.Engine
	g        *graph.Graph
	eventFns []func(layout.Event)
	graphFns []func(*graph.Graph)
}

// NewSim creates a controller with no graph loaded.
func NewSim(opts SimOptions) *Sim {
	return &Sim{opts: opts}
}

// OnEvent registers a listener for engine events. Listeners run on the
// event pump goroutine and must not block; register everything before the
// first LoadGraph.
func (s *Sim) OnEvent(fn func(layout.Event)) {
	s.mu.Lock()
	s.eventFns = append(s.eventFns, fn)
	s.mu.Unlock()
}

// OnGraph registers a listener that fires after a load, extension or edge
// swap, so downstream consumers (IPC metadata) can refresh. Listeners run
// with the controller read-locked, so the graph is stable for the duration
// of the call; they must not call back into the controller.
func (s *Sim) OnGraph(fn func(*graph.Graph)) {
	s.mu.Lock()
	s.graphFns = append(s.graphFns, fn)
	s.mu.Unlock()
}

func (s *Sim) notifyEvent(ev layout.Event) {
	s.mu.RLock()
	fns := s.eventFns
	s.mu.RUnlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func (s *Sim) notifyGraph() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.g == nil {
		return
	}
	for _, fn := range s.graphFns {
		fn(s.g)
	}
}

func (s *Sim) loadOpts() graph.LoadOptions {
	return graph.LoadOptions{
		Width:  s.opts.WorldWidth,
		Height: s.opts.WorldHeight,
		Seed:   s.opts.Seed,
	}
}

// pump drains one engine's event stream into the registered listeners. It
// exits when the engine terminates and closes its channel.
func (s *Sim) pump(e *layout.Engine) {
	for ev := range e.Events() {
		s.notifyEvent(ev)
	}
}

// waitInitialized polls until the engine acknowledges init. A fresh engine
// with buffers built by the graph loader cannot fail validation, so a
// timeout here means something is badly wrong.
func waitInitialized(e *layout.Engine, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if e.State() == layout.StateInitialized {
			return nil
		}
		time.Sleep(2 * time.Millisecond)
	}
	return fmt.Errorf("engine did not initialize within %v", timeout)
}

// LoadGraph validates and loads a graph document, replacing whatever was
// loaded before. The previous engine is terminated first so the snapshot
// ring only ever has one writer.
func (s *Sim) LoadGraph(doc graph.Document) error {
	g, err := graph.Load(doc, s.loadOpts())
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.engine != nil {
		old := s.engine
		s.engine = nil
		s.g = nil
		old.Send(layout.TerminateMessage{})
		select {
		case <-old.Done():
		case <-time.After(2 * time.Second):
			log.Printf("⚠️ Old engine did not terminate in time")
		}
	}

	e := layout.NewEngine(layout.EngineOptions{
		TickRate:    s.opts.TickRate,
		EventBuffer: s.opts.EventBuffer,
		Snapshots:   s.opts.Snapshots,
		AuditLog:    s.opts.AuditLog,
	})
	go s.pump(e)

	e.Send(g.InitMessage())
	if err := waitInitialized(e, 2*time.Second); err != nil {
		e.Send(layout.TerminateMessage{})
		s.mu.Unlock()
		return err
	}

	s.engine = e
	s.g = g
	s.mu.Unlock()

	log.Printf("🗺️ Graph loaded: %d nodes, %d edges", g.Count(), len(g.Edges))
	s.notifyGraph()
	return nil
}

// ExtendGraph appends nodes to the loaded graph. The controller allocates
// the grown buffer and copies existing records before the engine ever sees
// it; the engine swaps buffers between ticks.
func (s *Sim) ExtendGraph(nodes []graph.Node) error {
	s.mu.Lock()
	if s.g == nil || s.engine == nil {
		s.mu.Unlock()
		return fmt.Errorf("no graph loaded")
	}
	msg, err := s.g.Extend(nodes, s.loadOpts())
	if err != nil {
		s.mu.Unlock()
		return err
	}
	// Send under the lock so concurrent extensions reach the engine in the
	// same order they grew the graph.
	ok := s.engine.Send(msg)
	count := s.g.Count()
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("engine terminated")
	}
	log.Printf("📐 Graph extended to %d nodes", count)
	s.notifyGraph()
	return nil
}

// ReplaceEdges swaps the edge list. Endpoints are resolved against the
// current ID mapping before anything is sent, so a bad list leaves both the
// controller and the engine untouched.
func (s *Sim) ReplaceEdges(edges []graph.Edge) error {
	s.mu.Lock()
	if s.g == nil || s.engine == nil {
		s.mu.Unlock()
		return fmt.Errorf("no graph loaded")
	}
	resolved, err := s.g.ResolveEdges(edges)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.g.Edges = resolved
	ok := s.engine.Send(layout.EdgesMessage{Edges: resolved})
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("engine terminated")
	}
	s.notifyGraph()
	return nil
}

// PinNode fixes a node at (x, y) by ID.
func (s *Sim) PinNode(id string, x, y float64) error {
	s.mu.RLock()
	e, g := s.engine, s.g
	s.mu.RUnlock()
	if g == nil || e == nil {
		return fmt.Errorf("no graph loaded")
	}
	i, ok := g.IndexOf(id)
	if !ok {
		return fmt.Errorf("unknown node id %q", id)
	}
	if !e.Send(layout.FixNodeMessage{Index: i, X: x, Y: y}) {
		return fmt.Errorf("engine terminated")
	}
	return nil
}

// UnpinNode releases a pinned node by ID.
func (s *Sim) UnpinNode(id string) error {
	s.mu.RLock()
	e, g := s.engine, s.g
	s.mu.RUnlock()
	if g == nil || e == nil {
		return fmt.Errorf("no graph loaded")
	}
	i, ok := g.IndexOf(id)
	if !ok {
		return fmt.Errorf("unknown node id %q", id)
	}
	if !e.Send(layout.UnfixNodeMessage{Index: i}) {
		return fmt.Errorf("engine terminated")
	}
	return nil
}

// Graph returns the loaded graph, or nil.
func (s *Sim) Graph() *graph.Graph {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.g
}

// Send forwards a control message to the live engine. Reports false when no
// graph is loaded.
func (s *Sim) Send(msg layout.Message) bool {
	s.mu.RLock()
	e := s.engine
	s.mu.RUnlock()
	if e == nil {
		return false
	}
	return e.Send(msg)
}

// EngineState returns the live engine's lifecycle phase.
func (s *Sim) EngineState() layout.State {
	s.mu.RLock()
	e := s.engine
	s.mu.RUnlock()
	if e == nil {
		return layout.StateUninitialized
	}
	return e.State()
}

// EngineStats returns the live engine's counters.
func (s *Sim) EngineStats() layout.Stats {
	s.mu.RLock()
	e := s.engine
	s.mu.RUnlock()
	if e == nil {
		return layout.Stats{State: layout.StateUninitialized.String()}
	}
	return e.Stats()
}

// Close terminates the live engine and waits for it to drain.
func (s *Sim) Close() {
	s.mu.Lock()
	e := s.engine
	s.engine = nil
	s.g = nil
	s.mu.Unlock()
	if e == nil {
		return
	}
	e.Send(layout.TerminateMessage{})
	select {
	case <-e.Done():
	case <-time.After(2 * time.Second):
		log.Printf("⚠️ Engine did not terminate in time")
	}
}
