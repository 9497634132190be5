package ipc

import (
	"time"

	"graphsim/internal/layout"
)

// ToSnapshot converts a wire frame back into a layout snapshot.
// This lets render code work on the domain type whether frames arrived over
// IPC or straight from the engine's ring.
func (msg *FrameMessage) ToSnapshot() *layout.PositionSnapshot {
	return &layout.PositionSnapshot{
		Sequence:  msg.Sequence,
		Timestamp: time.Unix(0, msg.Timestamp),
		Tick:      msg.Tick,
		Alpha:     msg.Alpha,
		Count:     msg.Count,
		Positions: msg.Positions,
	}
}

// MetaFromGraph assembles the subscriber-facing description of a loaded
// graph: node radii in index order plus drawable edge endpoints.
func MetaFromGraph(nodes layout.NodeBuffer, edges []layout.Edge, worldW, worldH float64) MetaMessage {
	meta := MetaMessage{
		NodeCount:   nodes.Count(),
		Radii:       make([]float64, nodes.Count()),
		Edges:       make([]EdgeData, len(edges)),
		WorldWidth:  worldW,
		WorldHeight: worldH,
	}
	for i := 0; i < nodes.Count(); i++ {
		meta.Radii[i] = nodes.Radius(i)
	}
	for i, e := range edges {
		meta.Edges[i] = EdgeData{Source: e.Source, Target: e.Target}
	}
	return meta
}
