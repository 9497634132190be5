// Package layout implements a force-directed graph layout engine: five force
// kernels (center, link, charge, collision, radial) driven by an annealing
// tick loop that cools alpha until the system settles.
//
// The engine runs on its own goroutine and owns all simulation state. It
// communicates over two channels with different guarantees: a typed message
// inbox that mutates topology, configuration and pinning strictly between
// ticks, and the shared node/state buffers, which the engine writes and the
// owner reads without synchronization (advisory reads for rendering).
package layout

import (
	"fmt"
	"log"
	"math/rand"
	"runtime/debug"
	"sync/atomic"
	"time"

	"graphsim/internal/layout/spatial"
)

// State is the engine lifecycle phase.
type State uint32

const (
	StateUninitialized State = iota
	StateInitialized
	StateRunning
	StateStopped
	StateTerminated
)

// String returns the lifecycle phase name.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// EngineOptions configures a new engine.
type EngineOptions struct {
	TickRate    int            // ticks per second, default 60
	EventBuffer int            // outbound event channel capacity, default 256
	Random      func() float64 // jitter source in [0,1), defaults to a time-seeded generator
	Snapshots   *SnapshotRing  // optional per-tick position publication
	AuditLog    *EventLog      // optional lifecycle audit trail
}

// Engine is a force-directed layout simulation. Create one with NewEngine,
// drive it with Send, observe it through Events and the shared buffers.
type Engine struct {
	inbox  chan Message
	events chan Event
	done   chan struct{}

	interval time.Duration
	random   func() float64

	// Owned by the run goroutine.
	nodes    NodeBuffer
	stateBuf StateBuffer
	edges    []Edge
	cfg      SimConfig
	tree     *spatial.QuadTree
	timer    *time.Timer
	tickNum  int
	runStart time.Time

	// Cross-goroutine observables.
	lifecycle     atomic.Uint32
	nodeCount     atomic.Int64
	edgeCount     atomic.Int64
	ticks         atomic.Uint64
	droppedEvents atomic.Uint64

	snapshots *SnapshotRing
	auditLog  *EventLog
}

// NewEngine creates an engine and starts its goroutine. The engine is
// Uninitialized until an InitMessage arrives.
func NewEngine(opts EngineOptions) *Engine {
	if opts.TickRate <= 0 {
		opts.TickRate = 60
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = 256
	}
	random := opts.Random
	if random == nil {
		rng := rand.New(rand.NewSource(time.Now().UnixNano()))
		random = rng.Float64
	}

	e := &Engine{
		inbox:     make(chan Message, 64),
		events:    make(chan Event, opts.EventBuffer),
		done:      make(chan struct{}),
		interval:  time.Second / time.Duration(opts.TickRate),
		random:    random,
		snapshots: opts.Snapshots,
		auditLog:  opts.AuditLog,
	}
	go e.run()
	return e
}

// Send queues a control message. It reports false once the engine has
// terminated; a terminated engine ignores everything.
func (e *Engine) Send(msg Message) bool {
	select {
	case <-e.done:
		return false
	default:
	}
	select {
	case e.inbox <- msg:
		return true
	case <-e.done:
		return false
	}
}

// Events returns the outbound event stream. The channel is closed when the
// engine terminates. Slow consumers lose oldest events first; lifecycle
// events keep flowing because every drop frees a slot.
func (e *Engine) Events() <-chan Event { return e.events }

// Done is closed when the engine has terminated.
func (e *Engine) Done() <-chan struct{} { return e.done }

// State returns the current lifecycle phase.
func (e *Engine) State() State { return State(e.lifecycle.Load()) }

// Stats is a point-in-time engine summary for monitoring endpoints.
type Stats struct {
	State         string `json:"state"`
	NodeCount     int    `json:"nodeCount"`
	EdgeCount     int    `json:"edgeCount"`
	Ticks         uint64 `json:"ticks"`
	DroppedEvents uint64 `json:"droppedEvents"`
}

// Stats returns engine counters for monitoring.
func (e *Engine) Stats() Stats {
	return Stats{
		State:         e.State().String(),
		NodeCount:     int(e.nodeCount.Load()),
		EdgeCount:     int(e.edgeCount.Load()),
		Ticks:         e.ticks.Load(),
		DroppedEvents: e.droppedEvents.Load(),
	}
}

// run is the engine goroutine: it alternates between applying control
// messages and executing scheduled ticks, so messages always land between
// ticks, never during one.
func (e *Engine) run() {
	defer close(e.events)
	for {
		var tickC <-chan time.Time
		if e.timer != nil {
			tickC = e.timer.C
		}
		select {
		case msg := <-e.inbox:
			if e.handle(msg) {
				return
			}
		case <-tickC:
			e.safeTick()
		}
	}
}

// handle dispatches one message and reports whether the engine terminated.
// A nil message (or any type not in the union) is dropped without response.
func (e *Engine) handle(msg Message) bool {
	switch m := msg.(type) {
	case InitMessage:
		e.handleInit(m)
	case StartMessage:
		e.handleStart(m)
	case StopMessage:
		e.handleStop()
	case ConfigMessage:
		e.handleConfig(m)
	case EdgesMessage:
		e.handleEdges(m)
	case ResizeMessage:
		e.handleResize(m)
	case FixNodeMessage:
		e.handleFixNode(m)
	case UnfixNodeMessage:
		e.handleUnfixNode(m)
	case ReheatMessage:
		e.handleReheat(m)
	case TerminateMessage:
		e.handleTerminate()
		return true
	}
	return false
}

func (e *Engine) setLifecycle(s State) { e.lifecycle.Store(uint32(s)) }

// fail reports a precondition violation. The engine stays in its prior
// state; recovery is the owner's call.
func (e *Engine) fail(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	log.Printf("⚠️ layout: %s", msg)
	e.emit(ErrorEvent{Message: msg})
	e.audit(LogError, ErrorPayload{Message: msg})
}

// emit pushes an event without blocking the tick loop. When the buffer is
// full the oldest event is dropped to make room, so a stalled consumer
// costs history, never liveness.
func (e *Engine) emit(ev Event) {
	select {
	case e.events <- ev:
		return
	default:
	}
	select {
	case <-e.events:
		e.droppedEvents.Add(1)
	default:
	}
	select {
	case e.events <- ev:
	default:
		e.droppedEvents.Add(1)
	}
}

func (e *Engine) audit(t LogEventType, payload any) {
	if e.auditLog == nil {
		return
	}
	e.auditLog.Emit(t, uint64(e.tickNum), payload)
}

func (e *Engine) handleInit(msg InitMessage) {
	if e.State() != StateUninitialized {
		e.fail("init: engine already initialized")
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.nodes = NodeBuffer{}
			e.stateBuf = StateBuffer{}
			e.edges = nil
			e.tree = nil
			e.setLifecycle(StateUninitialized)
			e.emit(ErrorEvent{
				Message: fmt.Sprintf("init failed: %v", r),
				Stack:   string(debug.Stack()),
			})
		}
	}()

	nodes, err := WrapNodeBuffer(msg.NodeData, msg.NodeCount)
	if err != nil {
		e.fail("init rejected: %v", err)
		return
	}
	stateBuf, err := WrapStateBuffer(msg.StateData)
	if err != nil {
		e.fail("init rejected: %v", err)
		return
	}
	if err := nodes.ValidateEdges(msg.Edges); err != nil {
		e.fail("init rejected: %v", err)
		return
	}

	e.nodes = nodes
	e.stateBuf = stateBuf
	e.edges = msg.Edges
	e.cfg = msg.Config
	e.tree = spatial.NewQuadTree(msg.NodeCount)
	e.tickNum = 0

	stateBuf.SetAlpha(1)
	stateBuf.SetAlphaTarget(e.cfg.AlphaTarget)
	stateBuf.SetAlphaMin(e.cfg.AlphaMin)
	stateBuf.SetRunning(false)

	e.setLifecycle(StateInitialized)
	e.nodeCount.Store(int64(msg.NodeCount))
	e.edgeCount.Store(int64(len(msg.Edges)))

	e.emit(ReadyEvent{})
	e.audit(LogInit, InitPayload{NodeCount: msg.NodeCount, EdgeCount: len(msg.Edges)})
	log.Printf("🧲 layout initialized: %d nodes, %d edges", msg.NodeCount, len(msg.Edges))
}

func (e *Engine) handleStart(msg StartMessage) {
	switch e.State() {
	case StateUninitialized:
		e.fail("start: engine not initialized")
		return
	case StateRunning:
		return
	}

	alpha := msg.Alpha
	if alpha <= 0 {
		alpha = 1
	}
	e.stateBuf.SetAlpha(alpha)
	e.stateBuf.SetRunning(true)
	e.setLifecycle(StateRunning)
	e.tickNum = 0
	e.runStart = time.Now()
	e.scheduleTick()

	e.audit(LogStart, StartPayload{Alpha: alpha})
	log.Printf("🚀 layout running (alpha %.3f)", alpha)
}

func (e *Engine) handleStop() {
	switch e.State() {
	case StateUninitialized:
		e.fail("stop: engine not initialized")
		return
	case StateRunning:
	default:
		return
	}

	// The already-scheduled tick observes the cleared flag and exits
	// without rescheduling.
	e.stateBuf.SetRunning(false)
	e.setLifecycle(StateStopped)

	e.audit(LogStop, nil)
	log.Printf("⏸️ layout stopped at tick %d", e.tickNum)
}

func (e *Engine) handleConfig(msg ConfigMessage) {
	if e.State() == StateUninitialized {
		e.fail("config: engine not initialized")
		return
	}
	msg.Patch.Apply(&e.cfg)
	e.stateBuf.SetAlphaTarget(e.cfg.AlphaTarget)
	e.stateBuf.SetAlphaMin(e.cfg.AlphaMin)
	e.audit(LogConfig, nil)
}

func (e *Engine) handleEdges(msg EdgesMessage) {
	if e.State() == StateUninitialized {
		e.fail("edges: engine not initialized")
		return
	}
	if err := e.nodes.ValidateEdges(msg.Edges); err != nil {
		e.fail("edges rejected: %v", err)
		return
	}
	e.edges = msg.Edges
	e.edgeCount.Store(int64(len(msg.Edges)))
	e.audit(LogEdges, EdgesPayload{EdgeCount: len(msg.Edges)})
}

func (e *Engine) handleResize(msg ResizeMessage) {
	if e.State() == StateUninitialized {
		e.fail("resize: engine not initialized")
		return
	}
	nodes, err := WrapNodeBuffer(msg.NodeData, msg.NodeCount)
	if err != nil {
		e.fail("resize rejected: %v", err)
		return
	}
	e.nodes = nodes
	e.nodeCount.Store(int64(msg.NodeCount))
	e.audit(LogResize, ResizePayload{NodeCount: msg.NodeCount})
	log.Printf("📐 layout resized to %d nodes", msg.NodeCount)
}

func (e *Engine) handleFixNode(msg FixNodeMessage) {
	// Out-of-range indices are dropped, not errors.
	if msg.Index < 0 || msg.Index >= e.nodes.Count() {
		return
	}
	e.nodes.Pin(msg.Index, msg.X, msg.Y)
	e.audit(LogPin, PinPayload{Index: msg.Index, X: msg.X, Y: msg.Y})
}

func (e *Engine) handleUnfixNode(msg UnfixNodeMessage) {
	if msg.Index < 0 || msg.Index >= e.nodes.Count() {
		return
	}
	e.nodes.Unpin(msg.Index)
	e.audit(LogUnpin, PinPayload{Index: msg.Index})
}

func (e *Engine) handleReheat(msg ReheatMessage) {
	if e.State() == StateUninitialized {
		e.fail("reheat: engine not initialized")
		return
	}

	alpha := msg.Alpha
	if alpha <= 0 {
		alpha = 1
	}
	e.stateBuf.SetAlpha(alpha)

	if e.State() != StateRunning {
		// Restart without resetting counters: a reheat continues the run.
		e.stateBuf.SetRunning(true)
		e.setLifecycle(StateRunning)
		if e.runStart.IsZero() {
			e.runStart = time.Now()
		}
		e.scheduleTick()
	}
	e.audit(LogReheat, StartPayload{Alpha: alpha})
	log.Printf("🔥 layout reheated (alpha %.3f)", alpha)
}

func (e *Engine) handleTerminate() {
	if e.timer != nil {
		e.timer.Stop()
	}
	if e.State() != StateUninitialized {
		e.stateBuf.SetRunning(false)
	}
	e.audit(LogTerminate, nil)
	e.setLifecycle(StateTerminated)

	// Release every shared reference; the engine is inert from here on.
	e.nodes = NodeBuffer{}
	e.stateBuf = StateBuffer{}
	e.edges = nil
	e.tree = nil

	close(e.done)
	log.Printf("🛑 layout engine terminated")
}

func (e *Engine) scheduleTick() {
	if e.timer == nil {
		e.timer = time.NewTimer(e.interval)
		return
	}
	e.timer.Reset(e.interval)
}

// safeTick guards a tick the same way init is guarded: a panic becomes an
// ErrorEvent and the loop stops instead of taking the process down.
func (e *Engine) safeTick() {
	defer func() {
		if r := recover(); r != nil {
			if e.State() == StateRunning {
				e.stateBuf.SetRunning(false)
				e.setLifecycle(StateStopped)
			}
			e.emit(ErrorEvent{
				Message: fmt.Sprintf("tick failed: %v", r),
				Stack:   string(debug.Stack()),
			})
			e.audit(LogError, ErrorPayload{Message: fmt.Sprintf("tick failed: %v", r)})
		}
	}()
	e.tick()
}

// tick runs one simulation step: forces in fixed order, integration, alpha
// decay, progress event, termination check, next schedule.
func (e *Engine) tick() {
	if !e.stateBuf.Running() {
		return // stopped between schedule and fire; do not reschedule
	}

	started := time.Now()
	alpha := e.stateBuf.Alpha()

	if e.cfg.Center.Enabled {
		e.applyCenter(alpha)
	}
	if e.cfg.Link.Enabled {
		e.applyLink(alpha)
	}
	if e.cfg.Charge.Enabled {
		e.applyCharge(alpha)
	}
	if e.cfg.Collision.Enabled {
		e.applyCollision()
	}
	if e.cfg.Radial.Enabled {
		e.applyRadial(alpha)
	}
	e.integrate()

	alpha += (e.cfg.AlphaTarget - alpha) * e.cfg.AlphaDecay
	e.stateBuf.SetAlpha(alpha)

	e.tickNum++
	e.ticks.Add(1)
	e.emit(TickEvent{Alpha: alpha, ComputeTime: time.Since(started)})

	if e.snapshots != nil {
		e.publishSnapshot(alpha)
	}

	if alpha < e.stateBuf.AlphaMin() {
		e.stateBuf.SetRunning(false)
		e.setLifecycle(StateStopped)
		total := time.Since(e.runStart)
		e.emit(EndEvent{TotalTicks: e.tickNum, TotalTime: total})
		e.audit(LogEnd, EndPayload{TotalTicks: e.tickNum, TotalTimeMs: total.Milliseconds()})
		log.Printf("✅ layout settled after %d ticks (%.1fs)", e.tickNum, total.Seconds())
		return
	}
	e.scheduleTick()
}
