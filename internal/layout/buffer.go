package layout

import (
	"fmt"
	"math"
)

// Node record field offsets within the shared node buffer. One node occupies
// NodeStride consecutive float64 slots starting at index*NodeStride. The
// layout is part of the public contract: an owner that allocated a buffer
// for N nodes reads positions directly out of it, without copying, while the
// engine is writing them.
const (
	FieldX      = 0 // position
	FieldY      = 1
	FieldVX     = 2 // velocity
	FieldVY     = 3
	FieldFX     = 4 // pin target, NaN on either axis means unpinned
	FieldFY     = 5
	FieldMass   = 6
	FieldRadius = 7

	// NodeStride is the number of float64 slots per node record.
	NodeStride = 8
)

// State buffer slot indices. The engine publishes its annealing state here
// every tick; owners poll it to drive progress indicators or detect settling.
const (
	StateAlpha       = 0
	StateAlphaTarget = 1
	StateAlphaMin    = 2
	StateRunningFlag = 3 // 0 stopped, 1 running

	// StateSlots is the minimum length of a state buffer.
	StateSlots = 4
)

// NodeBuffer is a typed view over a shared node buffer. The engine and the
// owner hold views of the same backing array; while a simulation is loaded
// the engine is the sole writer. Reads from other goroutines are advisory:
// they can observe a record mid-update, which is acceptable because
// positions feed rendering, not further computation. Anything that needs a
// consistent snapshot stops the simulation first or consumes the snapshot
// ring.
type NodeBuffer struct {
	data  []float64
	count int
}

// WrapNodeBuffer validates that data holds exactly count node records and
// returns a view over it. The backing array is shared, never copied.
func WrapNodeBuffer(data []float64, count int) (NodeBuffer, error) {
	if count < 0 {
		return NodeBuffer{}, fmt.Errorf("node buffer: negative count %d", count)
	}
	if len(data) != count*NodeStride {
		return NodeBuffer{}, fmt.Errorf("node buffer: %d slots, need %d for %d nodes",
			len(data), count*NodeStride, count)
	}
	return NodeBuffer{data: data, count: count}, nil
}

// AllocNodeBuffer allocates a buffer for count nodes: unpinned (NaN pin
// targets), unit mass, zero radius, zero position and velocity. Owners
// normally seed positions before handing the buffer to the engine.
func AllocNodeBuffer(count int) NodeBuffer {
	data := make([]float64, count*NodeStride)
	for i := 0; i < count; i++ {
		base := i * NodeStride
		data[base+FieldFX] = math.NaN()
		data[base+FieldFY] = math.NaN()
		data[base+FieldMass] = 1
	}
	return NodeBuffer{data: data, count: count}
}

// Count returns the number of node records in the view.
func (b NodeBuffer) Count() int { return b.count }

// Raw exposes the backing slice. Callers must treat it as engine-owned while
// a simulation is running.
func (b NodeBuffer) Raw() []float64 { return b.data }

func (b NodeBuffer) X(i int) float64      { return b.data[i*NodeStride+FieldX] }
func (b NodeBuffer) Y(i int) float64      { return b.data[i*NodeStride+FieldY] }
func (b NodeBuffer) VX(i int) float64     { return b.data[i*NodeStride+FieldVX] }
func (b NodeBuffer) VY(i int) float64     { return b.data[i*NodeStride+FieldVY] }
func (b NodeBuffer) Mass(i int) float64   { return b.data[i*NodeStride+FieldMass] }
func (b NodeBuffer) Radius(i int) float64 { return b.data[i*NodeStride+FieldRadius] }

func (b NodeBuffer) SetX(i int, v float64)      { b.data[i*NodeStride+FieldX] = v }
func (b NodeBuffer) SetY(i int, v float64)      { b.data[i*NodeStride+FieldY] = v }
func (b NodeBuffer) SetVX(i int, v float64)     { b.data[i*NodeStride+FieldVX] = v }
func (b NodeBuffer) SetVY(i int, v float64)     { b.data[i*NodeStride+FieldVY] = v }
func (b NodeBuffer) SetMass(i int, v float64)   { b.data[i*NodeStride+FieldMass] = v }
func (b NodeBuffer) SetRadius(i int, v float64) { b.data[i*NodeStride+FieldRadius] = v }

// Pinned reports whether node i carries a pin target on both axes.
func (b NodeBuffer) Pinned(i int) bool {
	base := i * NodeStride
	return !math.IsNaN(b.data[base+FieldFX]) && !math.IsNaN(b.data[base+FieldFY])
}

// PinX returns the pin target x of node i, NaN when unpinned on that axis.
func (b NodeBuffer) PinX(i int) float64 { return b.data[i*NodeStride+FieldFX] }

// PinY returns the pin target y of node i, NaN when unpinned on that axis.
func (b NodeBuffer) PinY(i int) float64 { return b.data[i*NodeStride+FieldFY] }

// Pin fixes node i at (x, y). Integration snaps a pinned node to its target
// and zeroes its velocity every tick.
func (b NodeBuffer) Pin(i int, x, y float64) {
	base := i * NodeStride
	b.data[base+FieldFX] = x
	b.data[base+FieldFY] = y
}

// Unpin clears the pin target of node i.
func (b NodeBuffer) Unpin(i int) {
	base := i * NodeStride
	b.data[base+FieldFX] = math.NaN()
	b.data[base+FieldFY] = math.NaN()
}

// StateBuffer is a typed view over the shared scalar state slots.
type StateBuffer struct {
	data []float64
}

// WrapStateBuffer validates that data has at least StateSlots slots and
// returns a view over it.
func WrapStateBuffer(data []float64) (StateBuffer, error) {
	if len(data) < StateSlots {
		return StateBuffer{}, fmt.Errorf("state buffer: %d slots, need %d", len(data), StateSlots)
	}
	return StateBuffer{data: data}, nil
}

// AllocStateBuffer allocates a zeroed state buffer.
func AllocStateBuffer() StateBuffer {
	return StateBuffer{data: make([]float64, StateSlots)}
}

// Raw exposes the backing slice.
func (s StateBuffer) Raw() []float64 { return s.data }

func (s StateBuffer) Alpha() float64       { return s.data[StateAlpha] }
func (s StateBuffer) AlphaTarget() float64 { return s.data[StateAlphaTarget] }
func (s StateBuffer) AlphaMin() float64    { return s.data[StateAlphaMin] }
func (s StateBuffer) Running() bool        { return s.data[StateRunningFlag] != 0 }

func (s StateBuffer) SetAlpha(v float64)       { s.data[StateAlpha] = v }
func (s StateBuffer) SetAlphaTarget(v float64) { s.data[StateAlphaTarget] = v }
func (s StateBuffer) SetAlphaMin(v float64)    { s.data[StateAlphaMin] = v }

func (s StateBuffer) SetRunning(running bool) {
	if running {
		s.data[StateRunningFlag] = 1
	} else {
		s.data[StateRunningFlag] = 0
	}
}

// Edge links two node records by index. Distance is the spring rest length
// and Strength scales the correction per pass. The owner keeps indices valid
// across resizes; the engine validates them when an edge list arrives.
type Edge struct {
	Source   int32   `json:"source"`
	Target   int32   `json:"target"`
	Distance float64 `json:"distance"`
	Strength float64 `json:"strength"`
}

// ValidateEdges checks that every endpoint indexes a node record in b.
func (b NodeBuffer) ValidateEdges(edges []Edge) error {
	n := int32(b.count)
	for i, e := range edges {
		if e.Source < 0 || e.Source >= n || e.Target < 0 || e.Target >= n {
			return fmt.Errorf("edge %d: endpoints %d->%d out of range for %d nodes",
				i, e.Source, e.Target, b.count)
		}
	}
	return nil
}
