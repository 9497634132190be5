package layout

import (
	"math"
	"math/rand"
	"testing"

	"graphsim/internal/layout/spatial"
)

// kernelEngine builds an engine shell for driving force kernels directly,
// without the goroutine or timer.
func kernelEngine(n int, cfg SimConfig) *Engine {
	e := &Engine{
		random: rand.New(rand.NewSource(1)).Float64,
		cfg:    cfg,
		tree:   spatial.NewQuadTree(n),
	}
	e.nodes = AllocNodeBuffer(n)
	e.stateBuf = AllocStateBuffer()
	return e
}

func setPositions(e *Engine, positions [][2]float64) {
	for i, p := range positions {
		e.nodes.SetX(i, p[0])
		e.nodes.SetY(i, p[1])
	}
}

// TestCenterKernel tests that the centering force translates the centroid
// of the free nodes onto the configured origin.
func TestCenterKernel(t *testing.T) {
	cfg := DefaultSimConfig()
	e := kernelEngine(2, cfg)
	setPositions(e, [][2]float64{{0, 0}, {10, 10}})

	e.applyCenter(1)

	want := [][2]float64{{-5, -5}, {5, 5}}
	for i, w := range want {
		if e.nodes.X(i) != w[0] || e.nodes.Y(i) != w[1] {
			t.Errorf("Node %d at (%g, %g), want (%g, %g)",
				i, e.nodes.X(i), e.nodes.Y(i), w[0], w[1])
		}
	}
}

// TestCenterKernelSkipsPinned tests that pinned nodes neither contribute to
// the centroid nor get translated.
func TestCenterKernelSkipsPinned(t *testing.T) {
	cfg := DefaultSimConfig()
	e := kernelEngine(2, cfg)
	setPositions(e, [][2]float64{{0, 0}, {10, 10}})
	e.nodes.Pin(1, 10, 10)

	e.applyCenter(1)

	// Free centroid is already on the origin, nothing moves.
	if e.nodes.X(0) != 0 || e.nodes.Y(0) != 0 {
		t.Errorf("Free node moved to (%g, %g)", e.nodes.X(0), e.nodes.Y(0))
	}
	if e.nodes.X(1) != 10 || e.nodes.Y(1) != 10 {
		t.Errorf("Pinned node moved to (%g, %g)", e.nodes.X(1), e.nodes.Y(1))
	}
}

// TestLinkKernel tests the spring displacement split between two free
// endpoints.
func TestLinkKernel(t *testing.T) {
	e := kernelEngine(2, DefaultSimConfig())
	setPositions(e, [][2]float64{{0, 0}, {10, 0}})
	e.edges = []Edge{{Source: 0, Target: 1, Distance: 30, Strength: 1}}

	e.applyLink(1)

	// Correction (d - rest) = -20 split half to each endpoint.
	if got := e.nodes.X(0); got != -10 {
		t.Errorf("Source at x=%g, want -10", got)
	}
	if got := e.nodes.X(1); got != 20 {
		t.Errorf("Target at x=%g, want 20", got)
	}
	if d := pairDistance(e.nodes, 0, 1); d != 30 {
		t.Errorf("Pair distance %g, want 30", d)
	}
}

// TestLinkKernelPinnedEndpoint tests that a pinned endpoint absorbs no
// correction while the free endpoint still gets its half.
func TestLinkKernelPinnedEndpoint(t *testing.T) {
	e := kernelEngine(2, DefaultSimConfig())
	setPositions(e, [][2]float64{{0, 0}, {10, 0}})
	e.nodes.Pin(0, 0, 0)
	e.edges = []Edge{{Source: 0, Target: 1, Distance: 30, Strength: 1}}

	e.applyLink(1)

	if got := e.nodes.X(0); got != 0 {
		t.Errorf("Pinned source moved to x=%g", got)
	}
	if got := e.nodes.X(1); got != 20 {
		t.Errorf("Free target at x=%g, want 20", got)
	}
}

// TestLinkKernelZeroLength tests that coincident endpoints get jittered
// instead of producing NaN.
func TestLinkKernelZeroLength(t *testing.T) {
	e := kernelEngine(2, DefaultSimConfig())
	setPositions(e, [][2]float64{{5, 5}, {5, 5}})
	e.edges = []Edge{{Source: 0, Target: 1, Distance: 30, Strength: 1}}

	e.applyLink(1)

	for i := 0; i < 2; i++ {
		if math.IsNaN(e.nodes.X(i)) || math.IsNaN(e.nodes.Y(i)) {
			t.Fatalf("Node %d position is NaN", i)
		}
	}
	if pairDistance(e.nodes, 0, 1) == 0 {
		t.Error("Endpoints still coincident after jitter")
	}
}

// TestChargeKernel tests the many-body force on a separated pair: with the
// default negative strength the velocities point apart.
func TestChargeKernel(t *testing.T) {
	cfg := DefaultSimConfig() // strength -30, distanceMin 1
	e := kernelEngine(2, cfg)
	setPositions(e, [][2]float64{{0, 0}, {10, 0}})

	e.applyCharge(1)

	// Pairwise: |f| = m/d^2 = 0.01 along x, scaled by strength*alpha.
	if got := e.nodes.VX(0); math.Abs(got-(-3)) > 1e-12 {
		t.Errorf("Node 0 vx=%g, want -3", got)
	}
	if got := e.nodes.VX(1); math.Abs(got-3) > 1e-12 {
		t.Errorf("Node 1 vx=%g, want 3", got)
	}
	if e.nodes.VY(0) != 0 || e.nodes.VY(1) != 0 {
		t.Error("Axis-aligned pair should have no y velocity")
	}
}

// TestChargeKernelMassScaling tests that acceleration divides by node mass.
func TestChargeKernelMassScaling(t *testing.T) {
	cfg := DefaultSimConfig()
	e := kernelEngine(2, cfg)
	setPositions(e, [][2]float64{{0, 0}, {10, 0}})
	e.nodes.SetMass(0, 4)

	e.applyCharge(1)

	// Node 0 feels node 1's unit mass but weighs 4: vx = 0.1*-30/4 = -0.75.
	if got := e.nodes.VX(0); math.Abs(got-(-0.75)) > 1e-12 {
		t.Errorf("Heavy node vx=%g, want -0.75", got)
	}
	// Node 1 feels node 0's mass 4 at unit weight: vx = -0.4*-30 = 12.
	if got := e.nodes.VX(1); math.Abs(got-12) > 1e-12 {
		t.Errorf("Light node vx=%g, want 12", got)
	}
}

// TestChargeKernelDistanceMax tests the interaction cutoff.
func TestChargeKernelDistanceMax(t *testing.T) {
	cfg := DefaultSimConfig()
	cfg.Charge.DistanceMax = 5
	e := kernelEngine(2, cfg)
	setPositions(e, [][2]float64{{0, 0}, {10, 0}})

	e.applyCharge(1)

	if e.nodes.VX(0) != 0 || e.nodes.VX(1) != 0 {
		t.Errorf("Nodes beyond distanceMax interacted: vx0=%g vx1=%g",
			e.nodes.VX(0), e.nodes.VX(1))
	}
}

// TestChargeKernelPinnedStillRepels tests that pinned nodes exert force but
// do not accumulate velocity.
func TestChargeKernelPinnedStillRepels(t *testing.T) {
	cfg := DefaultSimConfig()
	e := kernelEngine(2, cfg)
	setPositions(e, [][2]float64{{0, 0}, {10, 0}})
	e.nodes.Pin(0, 0, 0)

	e.applyCharge(1)

	if e.nodes.VX(0) != 0 {
		t.Errorf("Pinned node accumulated velocity %g", e.nodes.VX(0))
	}
	if got := e.nodes.VX(1); math.Abs(got-3) > 1e-12 {
		t.Errorf("Free node vx=%g, want 3", got)
	}
}

// TestCollisionKernel tests overlap resolution between two equal circles.
func TestCollisionKernel(t *testing.T) {
	cfg := DefaultSimConfig() // collision strength 0.7
	e := kernelEngine(2, cfg)
	setPositions(e, [][2]float64{{0, 0}, {10, 0}})
	e.nodes.SetRadius(0, 10)
	e.nodes.SetRadius(1, 10)

	e.applyCollision()

	// Overlap 10 resolved at strength 0.7, split between the pair.
	if got := e.nodes.X(0); got != -3.5 {
		t.Errorf("Node 0 at x=%g, want -3.5", got)
	}
	if got := e.nodes.X(1); got != 13.5 {
		t.Errorf("Node 1 at x=%g, want 13.5", got)
	}
}

// TestCollisionKernelNoOverlap tests that separated circles are untouched.
func TestCollisionKernelNoOverlap(t *testing.T) {
	e := kernelEngine(2, DefaultSimConfig())
	setPositions(e, [][2]float64{{0, 0}, {30, 0}})
	e.nodes.SetRadius(0, 10)
	e.nodes.SetRadius(1, 10)

	e.applyCollision()

	if e.nodes.X(0) != 0 || e.nodes.X(1) != 30 {
		t.Errorf("Separated circles moved: x0=%g x1=%g", e.nodes.X(0), e.nodes.X(1))
	}
}

// TestCollisionKernelZeroRadius tests that radius-zero nodes never collide.
func TestCollisionKernelZeroRadius(t *testing.T) {
	e := kernelEngine(2, DefaultSimConfig())
	setPositions(e, [][2]float64{{0, 0}, {1, 0}})

	e.applyCollision()

	if e.nodes.X(0) != 0 || e.nodes.X(1) != 1 {
		t.Errorf("Zero-radius nodes moved: x0=%g x1=%g", e.nodes.X(0), e.nodes.X(1))
	}
}

// TestRadialKernel tests the pull toward the configured ring.
func TestRadialKernel(t *testing.T) {
	cfg := DefaultSimConfig()
	cfg.Radial.Enabled = true
	cfg.Radial.Strength = 0.1
	cfg.Radial.Radius = 30
	e := kernelEngine(1, cfg)
	setPositions(e, [][2]float64{{10, 0}})

	e.applyRadial(1)

	// Inside the ring: pushed outward along +x by (30-10)/10*0.1*10 = 2.
	if got := e.nodes.VX(0); math.Abs(got-2) > 1e-12 {
		t.Errorf("vx=%g, want 2", got)
	}
	if e.nodes.VY(0) != 0 {
		t.Errorf("vy=%g, want 0", e.nodes.VY(0))
	}
}

// TestRadialKernelOutsideRing tests the inward pull past the ring radius.
func TestRadialKernelOutsideRing(t *testing.T) {
	cfg := DefaultSimConfig()
	cfg.Radial.Enabled = true
	cfg.Radial.Strength = 0.1
	cfg.Radial.Radius = 30
	e := kernelEngine(1, cfg)
	setPositions(e, [][2]float64{{60, 0}})

	e.applyRadial(1)

	// Outside the ring: pulled back along -x by (30-60)/60*0.1*60 = -3.
	if got := e.nodes.VX(0); math.Abs(got-(-3)) > 1e-12 {
		t.Errorf("vx=%g, want -3", got)
	}
}

// TestIntegrateAppliesThenDecays tests the update order: the full velocity
// moves the position first, then the decay shrinks the velocity.
func TestIntegrateAppliesThenDecays(t *testing.T) {
	cfg := DefaultSimConfig() // velocityDecay 0.4
	e := kernelEngine(1, cfg)
	e.nodes.SetVX(0, 10)
	e.nodes.SetVY(0, -10)

	e.integrate()

	if got := e.nodes.X(0); got != 10 {
		t.Errorf("x=%g, want 10 (velocity applied before decay)", got)
	}
	if got := e.nodes.Y(0); got != -10 {
		t.Errorf("y=%g, want -10", got)
	}
	if got := e.nodes.VX(0); got != 6 {
		t.Errorf("vx=%g, want 6 after decay", got)
	}
	if got := e.nodes.VY(0); got != -6 {
		t.Errorf("vy=%g, want -6 after decay", got)
	}
}

// TestIntegrateSnapsPinned tests that integration overrides any accumulated
// motion on pinned nodes.
func TestIntegrateSnapsPinned(t *testing.T) {
	e := kernelEngine(1, DefaultSimConfig())
	e.nodes.SetX(0, 99)
	e.nodes.SetY(0, 99)
	e.nodes.SetVX(0, 7)
	e.nodes.SetVY(0, -7)
	e.nodes.Pin(0, 3, 4)

	e.integrate()

	if e.nodes.X(0) != 3 || e.nodes.Y(0) != 4 {
		t.Errorf("Pinned node at (%g, %g), want (3, 4)", e.nodes.X(0), e.nodes.Y(0))
	}
	if e.nodes.VX(0) != 0 || e.nodes.VY(0) != 0 {
		t.Errorf("Pinned node kept velocity (%g, %g)", e.nodes.VX(0), e.nodes.VY(0))
	}
}

// TestForcePipelineStaysFinite tests a full multi-force pass over a random
// scatter for numeric robustness.
func TestForcePipelineStaysFinite(t *testing.T) {
	cfg := DefaultSimConfig()
	cfg.Radial.Enabled = true
	n := 200
	e := kernelEngine(n, cfg)
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < n; i++ {
		e.nodes.SetX(i, rng.Float64()*100)
		e.nodes.SetY(i, rng.Float64()*100)
		e.nodes.SetRadius(i, 2+rng.Float64()*6)
	}
	for i := 0; i < n-1; i++ {
		e.edges = append(e.edges, Edge{
			Source: int32(i), Target: int32(i + 1), Distance: 30, Strength: 1,
		})
	}

	alpha := 1.0
	for step := 0; step < 50; step++ {
		e.applyCenter(alpha)
		e.applyLink(alpha)
		e.applyCharge(alpha)
		e.applyCollision()
		e.applyRadial(alpha)
		e.integrate()
		alpha += (0 - alpha) * 0.0228
	}

	for i := 0; i < n; i++ {
		for _, v := range []float64{e.nodes.X(i), e.nodes.Y(i), e.nodes.VX(i), e.nodes.VY(i)} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				t.Fatalf("Node %d went non-finite: %g", i, v)
			}
		}
	}
}

func benchmarkTick(b *testing.B, n int) {
	cfg := DefaultSimConfig()
	e := kernelEngine(n, cfg)
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < n; i++ {
		e.nodes.SetX(i, rng.Float64()*1000)
		e.nodes.SetY(i, rng.Float64()*1000)
		e.nodes.SetRadius(i, 5)
	}
	for i := 0; i < n-1; i++ {
		e.edges = append(e.edges, Edge{
			Source: int32(i), Target: int32(i + 1), Distance: 30, Strength: 1,
		})
	}

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		e.applyCenter(0.5)
		e.applyLink(0.5)
		e.applyCharge(0.5)
		e.applyCollision()
		e.integrate()
	}
}

func BenchmarkTick_100Nodes(b *testing.B) {
	benchmarkTick(b, 100)
}

func BenchmarkTick_1000Nodes(b *testing.B) {
	benchmarkTick(b, 1000)
}
