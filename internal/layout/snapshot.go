package layout

import (
	"sync/atomic"
	"time"
)

// PositionSnapshot is one complete frame of node positions, safe to read
// outside the engine goroutine. Unlike the live node buffer, a snapshot is
// never written while a consumer holds it.
type PositionSnapshot struct {
	Sequence  uint64    // monotonic, for ordering
	Timestamp time.Time // when the frame was produced
	Tick      uint64
	Alpha     float64
	Count     int       // nodes in this frame
	Positions []float64 // xy pairs, len = 2*Count
}

// SnapshotRing triple-buffers position frames for lock-free handoff between
// the engine (producer) and publishers (consumers). The producer always has
// a free slot to write, the consumer always reads the latest complete
// frame, and neither ever blocks the other.
type SnapshotRing struct {
	frames   [3]PositionSnapshot
	writeIdx uint32 // atomic - producer index
	readIdx  uint32 // atomic - consumer index
	sequence uint64 // atomic - monotonic sequence
}

// NewSnapshotRing preallocates frames for up to maxNodes nodes. Frames grow
// past that if a resize brings more nodes; preallocation just keeps the
// steady state allocation-free.
func NewSnapshotRing(maxNodes int) *SnapshotRing {
	r := &SnapshotRing{}
	for i := range r.frames {
		r.frames[i].Positions = make([]float64, 0, 2*maxNodes)
	}
	return r
}

// AcquireWrite returns the next write slot with its position slice reset but
// capacity kept. Producer only.
func (r *SnapshotRing) AcquireWrite() *PositionSnapshot {
	idx := atomic.AddUint32(&r.writeIdx, 1) % 3
	snap := &r.frames[idx]
	snap.Positions = snap.Positions[:0]
	snap.Sequence = atomic.AddUint64(&r.sequence, 1)
	snap.Timestamp = time.Now()
	return snap
}

// PublishWrite marks the write slot complete and points readers at it.
func (r *SnapshotRing) PublishWrite() {
	atomic.StoreUint32(&r.readIdx, atomic.LoadUint32(&r.writeIdx))
}

// AcquireRead returns the latest complete frame, or nil before the first
// publish. The returned frame stays valid until two more publishes have
// happened; consumers that need it longer must copy.
func (r *SnapshotRing) AcquireRead() *PositionSnapshot {
	if atomic.LoadUint64(&r.sequence) == 0 {
		return nil
	}
	idx := atomic.LoadUint32(&r.readIdx) % 3
	return &r.frames[idx]
}

// publishSnapshot copies current positions into the ring at the end of a
// tick.
func (e *Engine) publishSnapshot(alpha float64) {
	snap := e.snapshots.AcquireWrite()
	snap.Tick = uint64(e.tickNum)
	snap.Alpha = alpha

	data := e.nodes.Raw()
	count := e.nodes.Count()
	snap.Count = count
	for i := 0; i < count; i++ {
		base := i * NodeStride
		snap.Positions = append(snap.Positions, data[base+FieldX], data[base+FieldY])
	}
	e.snapshots.PublishWrite()
}
