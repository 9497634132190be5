package layout

import "time"

// Message is a control message sent into the engine's inbox. Messages are
// the only way to mutate topology, configuration or pinning; they apply
// strictly between ticks. The union is closed: only types in this package
// satisfy it, so the engine's dispatch switch is exhaustive.
type Message interface{ isMessage() }

// InitMessage hands the engine its buffer views, edge list and starting
// configuration. The engine validates sizes, seeds the state buffer and
// answers with ReadyEvent. Buffers are shared by reference, never copied.
type InitMessage struct {
	NodeData  []float64
	StateData []float64
	NodeCount int
	Edges     []Edge
	Config    SimConfig
}

// StartMessage begins (or resumes) the tick loop. Alpha 0 means the default
// starting temperature of 1.0.
type StartMessage struct {
	Alpha float64 `json:"alpha"`
}

// StopMessage requests a cooperative stop: the loop observes the flag at the
// top of the next scheduled tick.
type StopMessage struct{}

// ConfigMessage merges a partial configuration into the live one.
type ConfigMessage struct {
	Patch ConfigPatch `json:"patch"`
}

// EdgesMessage atomically replaces the edge list.
type EdgesMessage struct {
	Edges []Edge `json:"edges"`
}

// ResizeMessage swaps in a new node buffer sized for NodeCount nodes.
type ResizeMessage struct {
	NodeData  []float64
	NodeCount int
}

// FixNodeMessage pins one node at (X, Y). Out-of-range indices are ignored.
type FixNodeMessage struct {
	Index int     `json:"index"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
}

// UnfixNodeMessage releases one pinned node. Out-of-range indices are
// ignored.
type UnfixNodeMessage struct {
	Index int `json:"index"`
}

// ReheatMessage raises alpha and restarts the loop if it had settled,
// typically after a topology edit.
type ReheatMessage struct {
	Alpha float64 `json:"alpha"`
}

// TerminateMessage shuts the engine down for good: buffer and edge
// references are released and every later message is ignored.
type TerminateMessage struct{}

func (InitMessage) isMessage()      {}
func (StartMessage) isMessage()     {}
func (StopMessage) isMessage()      {}
func (ConfigMessage) isMessage()    {}
func (EdgesMessage) isMessage()     {}
func (ResizeMessage) isMessage()    {}
func (FixNodeMessage) isMessage()   {}
func (UnfixNodeMessage) isMessage() {}
func (ReheatMessage) isMessage()    {}
func (TerminateMessage) isMessage() {}

// Event is a notification emitted by the engine. Kind returns the wire name
// used by broadcast and logging layers.
type Event interface {
	Kind() string
	isEvent()
}

// ReadyEvent acknowledges a successful init.
type ReadyEvent struct{}

// TickEvent reports per-tick progress. Positions are not included; owners
// read them straight from the shared node buffer.
type TickEvent struct {
	Alpha       float64       `json:"alpha"`
	ComputeTime time.Duration `json:"computeTime"`
}

// EndEvent is emitted exactly once per run, on the first tick where alpha
// falls below alphaMin.
type EndEvent struct {
	TotalTicks int           `json:"totalTicks"`
	TotalTime  time.Duration `json:"totalTime"`
}

// ErrorEvent reports a precondition violation or a recovered panic. The
// engine stays in its prior state unless the event says otherwise.
type ErrorEvent struct {
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

func (ReadyEvent) Kind() string { return "ready" }
func (TickEvent) Kind() string  { return "tick" }
func (EndEvent) Kind() string   { return "end" }
func (ErrorEvent) Kind() string { return "error" }

func (ReadyEvent) isEvent() {}
func (TickEvent) isEvent()  {}
func (EndEvent) isEvent()   {}
func (ErrorEvent) isEvent() {}
