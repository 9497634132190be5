package layout

import (
	"math"

	"graphsim/internal/layout/spatial"
)

// The five kernels come in two styles, and the difference is a contract:
// center, link and collision nudge positions directly, each seeing the
// buffer state left by the previous force in the chain; charge and radial
// accumulate into velocity, which integrate applies and decays once at the
// end of the tick. Every kernel skips pinned nodes on its own, and
// integrate enforces pinning again authoritatively.

// jiggle returns a tiny random displacement for breaking exact ties
// (coincident nodes, zero-length edges).
func (e *Engine) jiggle() float64 {
	return (e.random() - 0.5) * 1e-6
}

// applyCenter translates every unpinned node so the unpinned centroid moves
// toward the configured point.
func (e *Engine) applyCenter(alpha float64) {
	cfg := e.cfg.Center
	data := e.nodes.Raw()
	count := e.nodes.Count()

	var sx, sy float64
	free := 0
	for i := 0; i < count; i++ {
		if e.nodes.Pinned(i) {
			continue
		}
		base := i * NodeStride
		sx += data[base+FieldX]
		sy += data[base+FieldY]
		free++
	}
	if free == 0 {
		return
	}

	dx := (sx/float64(free) - cfg.X) * cfg.Strength * alpha
	dy := (sy/float64(free) - cfg.Y) * cfg.Strength * alpha
	for i := 0; i < count; i++ {
		if e.nodes.Pinned(i) {
			continue
		}
		base := i * NodeStride
		data[base+FieldX] -= dx
		data[base+FieldY] -= dy
	}
}

// applyLink relaxes every edge toward its rest distance, half the correction
// per endpoint. Coincident endpoints get jittered apart before the division.
func (e *Engine) applyLink(alpha float64) {
	data := e.nodes.Raw()
	for pass := 0; pass < e.cfg.Link.Iterations; pass++ {
		for _, edge := range e.edges {
			sb := int(edge.Source) * NodeStride
			tb := int(edge.Target) * NodeStride

			dx := data[tb+FieldX] - data[sb+FieldX]
			dy := data[tb+FieldY] - data[sb+FieldY]
			d2 := dx*dx + dy*dy
			if d2 == 0 {
				dx = e.jiggle()
				dy = e.jiggle()
				d2 = dx*dx + dy*dy
			}
			dist := math.Sqrt(d2)

			mag := (dist - edge.Distance) / dist * alpha * edge.Strength
			dx *= mag
			dy *= mag

			if !e.nodes.Pinned(int(edge.Target)) {
				data[tb+FieldX] -= dx * 0.5
				data[tb+FieldY] -= dy * 0.5
			}
			if !e.nodes.Pinned(int(edge.Source)) {
				data[sb+FieldX] += dx * 0.5
				data[sb+FieldY] += dy * 0.5
			}
		}
	}
}

// applyCharge rebuilds the quadtree from current positions and adds the
// approximated many-body force to each unpinned node's velocity. Pinned
// nodes still repel others; they just do not move themselves.
func (e *Engine) applyCharge(alpha float64) {
	cfg := e.cfg.Charge
	data := e.nodes.Raw()
	count := e.nodes.Count()
	if count == 0 {
		return
	}

	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for i := 0; i < count; i++ {
		base := i * NodeStride
		x, y := data[base+FieldX], data[base+FieldY]
		minX = math.Min(minX, x)
		minY = math.Min(minY, y)
		maxX = math.Max(maxX, x)
		maxY = math.Max(maxY, y)
	}

	e.tree.Reset(minX, minY, math.Max(maxX-minX, maxY-minY))
	for i := 0; i < count; i++ {
		base := i * NodeStride
		e.tree.Insert(int32(i), data[base+FieldX], data[base+FieldY], data[base+FieldMass])
	}

	maxDist2 := math.Inf(1)
	if cfg.DistanceMax > 0 {
		maxDist2 = cfg.DistanceMax * cfg.DistanceMax
	}
	params := spatial.RepelParams{
		Theta2:   cfg.Theta * cfg.Theta,
		MinDist2: cfg.DistanceMin * cfg.DistanceMin,
		MaxDist2: maxDist2,
		Jitter:   e.jiggle,
	}

	k := cfg.Strength * alpha
	for i := 0; i < count; i++ {
		if e.nodes.Pinned(i) {
			continue
		}
		base := i * NodeStride
		mass := data[base+FieldMass]
		fx, fy := e.tree.Repel(data[base+FieldX], data[base+FieldY], int32(i), mass, params)
		data[base+FieldVX] += fx * k / mass
		data[base+FieldVY] += fy * k / mass
	}
}

// applyCollision resolves pairwise overlaps using node radii, pushing each
// overlapping pair apart 50/50. Scans all pairs; only charge uses the
// quadtree.
func (e *Engine) applyCollision() {
	cfg := e.cfg.Collision
	data := e.nodes.Raw()
	count := e.nodes.Count()

	for pass := 0; pass < cfg.Iterations; pass++ {
		for i := 0; i < count; i++ {
			ib := i * NodeStride
			ri := data[ib+FieldRadius]
			for j := i + 1; j < count; j++ {
				jb := j * NodeStride
				r := ri + data[jb+FieldRadius]
				if r <= 0 {
					continue
				}

				dx := data[jb+FieldX] - data[ib+FieldX]
				dy := data[jb+FieldY] - data[ib+FieldY]
				d2 := dx*dx + dy*dy
				if d2 >= r*r {
					continue
				}
				if d2 == 0 {
					dx = e.jiggle()
					dy = e.jiggle()
					d2 = dx*dx + dy*dy
				}
				dist := math.Sqrt(d2)

				push := (r - dist) / dist * cfg.Strength
				dx *= push
				dy *= push

				if !e.nodes.Pinned(j) {
					data[jb+FieldX] += dx * 0.5
					data[jb+FieldY] += dy * 0.5
				}
				if !e.nodes.Pinned(i) {
					data[ib+FieldX] -= dx * 0.5
					data[ib+FieldY] -= dy * 0.5
				}
			}
		}
	}
}

// applyRadial nudges each unpinned node's velocity toward the target circle
// around the configured center.
func (e *Engine) applyRadial(alpha float64) {
	cfg := e.cfg.Radial
	data := e.nodes.Raw()
	count := e.nodes.Count()

	for i := 0; i < count; i++ {
		if e.nodes.Pinned(i) {
			continue
		}
		base := i * NodeStride

		dx := data[base+FieldX] - cfg.X
		dy := data[base+FieldY] - cfg.Y
		d2 := dx*dx + dy*dy
		if d2 == 0 {
			dx = e.jiggle()
			dy = e.jiggle()
			d2 = dx*dx + dy*dy
		}
		dist := math.Sqrt(d2)

		k := (cfg.Radius - dist) / dist * cfg.Strength * alpha
		data[base+FieldVX] += dx * k
		data[base+FieldVY] += dy * k
	}
}

// integrate applies velocity to position and then decays it. Pinned nodes
// are snapped to their targets with velocity zeroed regardless of what the
// force kernels did.
func (e *Engine) integrate() {
	decay := 1 - e.cfg.VelocityDecay
	data := e.nodes.Raw()
	count := e.nodes.Count()

	for i := 0; i < count; i++ {
		base := i * NodeStride
		if e.nodes.Pinned(i) {
			data[base+FieldX] = data[base+FieldFX]
			data[base+FieldY] = data[base+FieldFY]
			data[base+FieldVX] = 0
			data[base+FieldVY] = 0
			continue
		}
		data[base+FieldX] += data[base+FieldVX]
		data[base+FieldVX] *= decay
		data[base+FieldY] += data[base+FieldVY]
		data[base+FieldVY] *= decay
	}
}
