// Package graph turns JSON graph documents into the buffers and edge lists
// the layout engine consumes. It owns the node identity mapping: documents
// name nodes by string ID, the engine only ever sees indices.
package graph

import (
	"fmt"
	"math/rand"

	"graphsim/internal/layout"
)

const (
	DefaultNodeRadius   = 5.0
	DefaultEdgeDistance = 30.0
	DefaultEdgeStrength = 1.0
)

// Node is one node record in a graph document. Position and pin fields are
// pointers so "absent" and "zero" stay distinguishable; absent positions get
// seeded placement.
type Node struct {
	ID     string   `json:"id"`
	X      *float64 `json:"x,omitempty"`
	Y      *float64 `json:"y,omitempty"`
	FX     *float64 `json:"fx,omitempty"`
	FY     *float64 `json:"fy,omitempty"`
	Mass   float64  `json:"mass,omitempty"`
	Radius float64  `json:"radius,omitempty"`
}

// Edge links two nodes by ID. Zero distance and strength take the package
// defaults.
type Edge struct {
	Source   string  `json:"source"`
	Target   string  `json:"target"`
	Distance float64 `json:"distance,omitempty"`
	Strength float64 `json:"strength,omitempty"`
}

// Document is the wire format for a whole graph upload: nodes, edges and an
// optional config patch layered over the stock force parameters.
type Document struct {
	Nodes  []Node              `json:"nodes"`
	Edges  []Edge              `json:"edges,omitempty"`
	Config *layout.ConfigPatch `json:"config,omitempty"`
}

// LoadOptions controls placement seeding for nodes without explicit
// positions.
type LoadOptions struct {
	Width  float64 // seeding extent, centered on the origin
	Height float64
	Seed   int64
}

// Graph is a loaded document: allocated buffers, index-based edges and the
// resolved config, ready to hand to the engine.
type Graph struct {
	Nodes  layout.NodeBuffer
	State  layout.StateBuffer
	Edges  []layout.Edge
	Config layout.SimConfig

	ids   []string
	index map[string]int
}

// Load validates a document and builds the engine-side representation.
// Unplaced nodes are scattered deterministically for the given seed, so the
// same document and seed reproduce the same layout run.
func Load(doc Document, opts LoadOptions) (*Graph, error) {
	if len(doc.Nodes) == 0 {
		return nil, fmt.Errorf("graph document has no nodes")
	}
	if opts.Width <= 0 {
		opts.Width = 1000
	}
	if opts.Height <= 0 {
		opts.Height = 1000
	}

	g := &Graph{
		Nodes:  layout.AllocNodeBuffer(len(doc.Nodes)),
		State:  layout.AllocStateBuffer(),
		Config: layout.DefaultSimConfig(),
		ids:    make([]string, len(doc.Nodes)),
		index:  make(map[string]int, len(doc.Nodes)),
	}
	if doc.Config != nil {
		doc.Config.Apply(&g.Config)
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	for i, n := range doc.Nodes {
		if n.ID == "" {
			return nil, fmt.Errorf("node %d has no id", i)
		}
		if _, dup := g.index[n.ID]; dup {
			return nil, fmt.Errorf("duplicate node id %q", n.ID)
		}
		g.ids[i] = n.ID
		g.index[n.ID] = i

		switch {
		case n.X != nil && n.Y != nil:
			g.Nodes.SetX(i, *n.X)
			g.Nodes.SetY(i, *n.Y)
		case n.FX != nil && n.FY != nil:
			// Pinned nodes start on their pin target.
			g.Nodes.SetX(i, *n.FX)
			g.Nodes.SetY(i, *n.FY)
		default:
			g.Nodes.SetX(i, (rng.Float64()-0.5)*opts.Width)
			g.Nodes.SetY(i, (rng.Float64()-0.5)*opts.Height)
		}
		if n.FX != nil && n.FY != nil {
			g.Nodes.Pin(i, *n.FX, *n.FY)
		}
		if n.Mass > 0 {
			g.Nodes.SetMass(i, n.Mass)
		}
		if n.Radius > 0 {
			g.Nodes.SetRadius(i, n.Radius)
		} else {
			g.Nodes.SetRadius(i, DefaultNodeRadius)
		}
	}

	g.Edges = make([]layout.Edge, 0, len(doc.Edges))
	for i, e := range doc.Edges {
		src, ok := g.index[e.Source]
		if !ok {
			return nil, fmt.Errorf("edge %d: unknown source %q", i, e.Source)
		}
		dst, ok := g.index[e.Target]
		if !ok {
			return nil, fmt.Errorf("edge %d: unknown target %q", i, e.Target)
		}
		dist := e.Distance
		if dist <= 0 {
			dist = DefaultEdgeDistance
		}
		strength := e.Strength
		if strength <= 0 {
			strength = DefaultEdgeStrength
		}
		g.Edges = append(g.Edges, layout.Edge{
			Source:   int32(src),
			Target:   int32(dst),
			Distance: dist,
			Strength: strength,
		})
	}

	return g, nil
}

// Count returns the number of nodes.
func (g *Graph) Count() int { return g.Nodes.Count() }

// IDs returns node IDs in index order. Callers must not mutate the slice.
func (g *Graph) IDs() []string { return g.ids }

// IndexOf resolves a node ID to its buffer index.
func (g *Graph) IndexOf(id string) (int, bool) {
	i, ok := g.index[id]
	return i, ok
}

// ResolveEdges maps an ID-based edge list onto the current index mapping,
// for edge replacement after the initial load.
func (g *Graph) ResolveEdges(edges []Edge) ([]layout.Edge, error) {
	out := make([]layout.Edge, 0, len(edges))
	for i, e := range edges {
		src, ok := g.index[e.Source]
		if !ok {
			return nil, fmt.Errorf("edge %d: unknown source %q", i, e.Source)
		}
		dst, ok := g.index[e.Target]
		if !ok {
			return nil, fmt.Errorf("edge %d: unknown target %q", i, e.Target)
		}
		dist := e.Distance
		if dist <= 0 {
			dist = DefaultEdgeDistance
		}
		strength := e.Strength
		if strength <= 0 {
			strength = DefaultEdgeStrength
		}
		out = append(out, layout.Edge{
			Source:   int32(src),
			Target:   int32(dst),
			Distance: dist,
			Strength: strength,
		})
	}
	return out, nil
}

// Extend grows the graph by additional nodes. It allocates a fresh buffer,
// copies the existing records into it and seeds the newcomers, then swaps
// the graph's own view to the new buffer. The returned message carries the
// new buffer to the engine; existing node indices are unchanged.
func (g *Graph) Extend(nodes []Node, opts LoadOptions) (layout.ResizeMessage, error) {
	if len(nodes) == 0 {
		return layout.ResizeMessage{}, fmt.Errorf("no nodes to add")
	}
	if opts.Width <= 0 {
		opts.Width = 1000
	}
	if opts.Height <= 0 {
		opts.Height = 1000
	}

	start := g.Nodes.Count()
	grown := layout.AllocNodeBuffer(start + len(nodes))
	copy(grown.Raw(), g.Nodes.Raw())

	ids := make([]string, start+len(nodes))
	copy(ids, g.ids)

	// Offset the seed so extensions scatter differently from the load.
	rng := rand.New(rand.NewSource(opts.Seed + int64(start)))
	seen := make(map[string]bool, len(nodes))
	for j, n := range nodes {
		i := start + j
		if n.ID == "" {
			return layout.ResizeMessage{}, fmt.Errorf("node %d has no id", j)
		}
		if _, dup := g.index[n.ID]; dup || seen[n.ID] {
			return layout.ResizeMessage{}, fmt.Errorf("duplicate node id %q", n.ID)
		}
		seen[n.ID] = true
		ids[i] = n.ID

		switch {
		case n.X != nil && n.Y != nil:
			grown.SetX(i, *n.X)
			grown.SetY(i, *n.Y)
		case n.FX != nil && n.FY != nil:
			grown.SetX(i, *n.FX)
			grown.SetY(i, *n.FY)
		default:
			grown.SetX(i, (rng.Float64()-0.5)*opts.Width)
			grown.SetY(i, (rng.Float64()-0.5)*opts.Height)
		}
		if n.FX != nil && n.FY != nil {
			grown.Pin(i, *n.FX, *n.FY)
		}
		if n.Mass > 0 {
			grown.SetMass(i, n.Mass)
		}
		if n.Radius > 0 {
			grown.SetRadius(i, n.Radius)
		} else {
			grown.SetRadius(i, DefaultNodeRadius)
		}
	}

	// All new nodes validated, commit the swap.
	for j, n := range nodes {
		g.index[n.ID] = start + j
	}
	g.ids = ids
	g.Nodes = grown

	return layout.ResizeMessage{
		NodeData:  grown.Raw(),
		NodeCount: grown.Count(),
	}, nil
}

// InitMessage assembles the engine init message for this graph.
func (g *Graph) InitMessage() layout.InitMessage {
	return layout.InitMessage{
		NodeData:  g.Nodes.Raw(),
		StateData: g.State.Raw(),
		NodeCount: g.Nodes.Count(),
		Edges:     g.Edges,
		Config:    g.Config,
	}
}
