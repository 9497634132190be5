// Package spatial provides the Barnes-Hut quadtree used to approximate
// long-range repulsion in O(n log n).
//
// The tree is stored in a flat preallocated slice with integer child links
// (not pointers) to minimize GC pressure and maximize cache locality. It is
// rebuilt from scratch every tick; Reset keeps the allocated capacity across
// rebuilds.
package spatial

// maxTreeDepth bounds subdivision when inserting near-coincident points.
// Past this depth a cell is ~2^-32 of the root square and further splitting
// has no numeric value; extra occupants fold into the leaf aggregate.
const maxTreeDepth = 32

// treeNode is one quadtree cell. (x, y) is the minimum corner of the square
// region of side size. comX/comY/mass aggregate every point in the subtree;
// count is the occupant total. point holds the inserted id for
// single-position leaves and -1 for internal or empty cells.
type treeNode struct {
	x, y, size float64
	comX, comY float64
	mass       float64
	count      int32
	point      int32
	children   [4]int32 // indices into QuadTree.nodes, -1 when absent
}

// QuadTree is a region quadtree over weighted 2D points. Quadrants are
// created lazily on first occupant; every cell keeps a running center of
// mass so a whole subtree can stand in for its points during traversal.
type QuadTree struct {
	nodes []treeNode
	stack []int32 // reusable traversal stack for Repel
}

// NewQuadTree preallocates a tree expected to hold around capacity points.
func NewQuadTree(capacity int) *QuadTree {
	if capacity < 8 {
		capacity = 8
	}
	return &QuadTree{
		nodes: make([]treeNode, 0, 2*capacity),
		stack: make([]int32, 0, 64),
	}
}

// Reset drops all cells without deallocating and re-roots the tree on the
// square with minimum corner (x, y) and side size. Callers compute the
// bounding square over current positions before inserting.
func (t *QuadTree) Reset(x, y, size float64) {
	t.nodes = t.nodes[:0] // keep capacity, reset length
	t.nodes = append(t.nodes, treeNode{
		x: x, y: y, size: size,
		point:    -1,
		children: [4]int32{-1, -1, -1, -1},
	})
}

// Insert adds a weighted point, updating the running center of mass of every
// visited cell (com' = (com·m + p·m_new)/(m + m_new)). id should be the index
// into the caller's node storage; it comes back out of Repel as the
// self-exclusion key. Points exactly coincident with an existing occupant,
// or splitting past maxTreeDepth, fold into the leaf aggregate.
func (t *QuadTree) Insert(id int32, x, y, mass float64) {
	cur := int32(0)
	for depth := 0; ; depth++ {
		n := &t.nodes[cur]
		if n.count == 0 {
			n.comX, n.comY = x, y
			n.mass = mass
			n.count = 1
			n.point = id
			return
		}
		if n.point >= 0 {
			// Occupied leaf: fold coincident points, otherwise push the
			// occupant one level down and keep descending.
			if (n.comX == x && n.comY == y) || depth >= maxTreeDepth {
				total := n.mass + mass
				n.comX = (n.comX*n.mass + x*mass) / total
				n.comY = (n.comY*n.mass + y*mass) / total
				n.mass = total
				n.count++
				return
			}
			oldX, oldY, oldMass := n.comX, n.comY, n.mass
			oldID, oldCount := n.point, n.count
			n.point = -1
			child := t.child(cur, oldX, oldY) // may grow t.nodes
			c := &t.nodes[child]
			c.comX, c.comY = oldX, oldY
			c.mass = oldMass
			c.count = oldCount
			c.point = oldID
			n = &t.nodes[cur] // re-take, the append above can reallocate
		}
		total := n.mass + mass
		n.comX = (n.comX*n.mass + x*mass) / total
		n.comY = (n.comY*n.mass + y*mass) / total
		n.mass = total
		n.count++
		cur = t.child(cur, x, y)
	}
}

// child returns the child cell of parent containing (x, y), creating it on
// first occupant.
func (t *QuadTree) child(parent int32, x, y float64) int32 {
	p := t.nodes[parent]
	half := p.size / 2
	midX := p.x + half
	midY := p.y + half

	qi := 0
	cx, cy := p.x, p.y
	if x >= midX {
		qi |= 1
		cx = midX
	}
	if y >= midY {
		qi |= 2
		cy = midY
	}

	if c := p.children[qi]; c >= 0 {
		return c
	}
	idx := int32(len(t.nodes))
	t.nodes = append(t.nodes, treeNode{
		x: cx, y: cy, size: half,
		point:    -1,
		children: [4]int32{-1, -1, -1, -1},
	})
	t.nodes[parent].children[qi] = idx
	return idx
}

// RepelParams bound a Barnes-Hut repulsion query.
type RepelParams struct {
	Theta2   float64 // squared accuracy threshold (smaller = more exact)
	MinDist2 float64 // squared lower clamp on pair distance
	MaxDist2 float64 // squared cutoff beyond which clusters contribute nothing
	// Jitter returns a small non-zero displacement used when the query
	// point coincides exactly with a cluster's center of mass.
	Jitter func() float64
}

// Repel accumulates the inverse-square pull of every cluster on the query
// point (x, y) and returns the unscaled sum Σ m·Δ/d², with Δ pointing from
// the query point toward each cluster. Callers apply their own strength and
// damping factors, so the acceptance criterion stays testable on its own.
//
// A subtree is treated as a single point mass at its center of mass when
// size²/d² < theta², or when it is a leaf; otherwise its children are pushed
// onto an explicit stack. self names the inserted point to exclude (negative
// disables exclusion); its mass is subtracted when the traversal reaches the
// leaf holding it, which also keeps folded coincident occupants repelling
// each other.
func (t *QuadTree) Repel(x, y float64, self int32, selfMass float64, p RepelParams) (fx, fy float64) {
	if len(t.nodes) == 0 || t.nodes[0].count == 0 {
		return 0, 0
	}
	t.stack = t.stack[:0]
	t.stack = append(t.stack, 0)

	for len(t.stack) > 0 {
		cur := t.stack[len(t.stack)-1]
		t.stack = t.stack[:len(t.stack)-1]
		n := &t.nodes[cur]

		dx := n.comX - x
		dy := n.comY - y
		d2 := dx*dx + dy*dy

		if n.size*n.size < p.Theta2*d2 || n.point >= 0 {
			m := n.mass
			if n.point >= 0 && n.point == self {
				m -= selfMass
				if m <= 0 {
					continue
				}
			}
			if d2 >= p.MaxDist2 {
				continue
			}
			if d2 == 0 {
				dx = p.Jitter()
				dy = p.Jitter()
				d2 = dx*dx + dy*dy
			}
			if d2 < p.MinDist2 {
				d2 = p.MinDist2
			}
			w := m / d2
			fx += dx * w
			fy += dy * w
			continue
		}

		for _, c := range n.children {
			if c >= 0 && t.nodes[c].count > 0 {
				t.stack = append(t.stack, c)
			}
		}
	}
	return fx, fy
}

// Stats returns tree statistics for debugging/profiling.
func (t *QuadTree) Stats() TreeStats {
	var s TreeStats
	s.Cells = len(t.nodes)
	if s.Cells == 0 {
		return s
	}
	s.Points = int(t.nodes[0].count)

	type frame struct {
		idx   int32
		depth int
	}
	work := []frame{{0, 0}}
	for len(work) > 0 {
		f := work[len(work)-1]
		work = work[:len(work)-1]
		n := &t.nodes[f.idx]
		if f.depth > s.MaxDepth {
			s.MaxDepth = f.depth
		}
		if n.point >= 0 {
			s.Leaves++
			if int(n.count) > s.MaxLeafOccupancy {
				s.MaxLeafOccupancy = int(n.count)
			}
			continue
		}
		for _, c := range n.children {
			if c >= 0 {
				work = append(work, frame{c, f.depth + 1})
			}
		}
	}
	return s
}

// TreeStats contains quadtree statistics for debugging.
type TreeStats struct {
	Cells            int
	Leaves           int
	Points           int
	MaxDepth         int
	MaxLeafOccupancy int // >1 only when coincident points folded
}
