package render

import (
	"bytes"
	"image"
	"image/color"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
)

var background = color.RGBA{250, 250, 255, 255}

func pixelAt(t *testing.T, img image.Image, x, y int) color.RGBA {
	t.Helper()
	return color.RGBAModel.Convert(img.At(x, y)).(color.RGBA)
}

// TestRendererDefaults tests that a zero config falls back to sane dimensions.
func TestRendererDefaults(t *testing.T) {
	r := NewRenderer(Config{})
	bounds := r.Image().Bounds()

	if bounds.Dx() != 1024 || bounds.Dy() != 768 {
		t.Errorf("Expected 1024x768 canvas, got %dx%d", bounds.Dx(), bounds.Dy())
	}
}

// TestSceneTransform tests that the world rect is fitted and centered.
func TestSceneTransform(t *testing.T) {
	r := NewRenderer(Config{Width: 1024, Height: 768, Margin: 40})
	r.SetScene(Scene{WorldWidth: 1000, WorldHeight: 1000})

	// Height is the constraining axis: (768-80)/1000.
	if math.Abs(r.scale-0.688) > 1e-9 {
		t.Errorf("Expected scale 0.688, got %f", r.scale)
	}

	x, y := r.toScreen(500, 500)
	if math.Abs(x-512) > 1e-9 || math.Abs(y-384) > 1e-9 {
		t.Errorf("Expected world center at canvas center (512, 384), got (%f, %f)", x, y)
	}
}

// TestSceneTransformDefaultsWorld tests that non-positive world dims are replaced.
func TestSceneTransformDefaultsWorld(t *testing.T) {
	r := NewRenderer(Config{Width: 100, Height: 100, Margin: 0})
	r.SetScene(Scene{WorldWidth: 0, WorldHeight: -5})

	if r.scale <= 0 {
		t.Errorf("Expected positive scale after defaulting world size, got %f", r.scale)
	}
}

// TestRenderFrameDrawsNode tests that a node changes pixels at its location
// and leaves the background alone elsewhere.
func TestRenderFrameDrawsNode(t *testing.T) {
	r := NewRenderer(Config{Width: 200, Height: 200, Margin: 0, ShowHUD: false})
	r.SetScene(Scene{
		Radii:       []float64{10},
		WorldWidth:  100,
		WorldHeight: 100,
	})

	r.RenderFrame(Frame{Positions: []float64{50, 50}, Count: 1})

	img := r.Image()
	if got := pixelAt(t, img, 100, 100); got == background {
		t.Errorf("Expected node pixel at canvas center, got background %v", got)
	}
	if got := pixelAt(t, img, 5, 5); got != background {
		t.Errorf("Expected background at corner, got %v", got)
	}
}

// TestRenderFrameDrawsEdge tests that the segment between two nodes is stroked.
func TestRenderFrameDrawsEdge(t *testing.T) {
	r := NewRenderer(Config{Width: 200, Height: 200, Margin: 0, ShowHUD: false})
	r.SetScene(Scene{
		Radii:       []float64{2, 2},
		Edges:       []Edge{{Source: 0, Target: 1}},
		WorldWidth:  100,
		WorldHeight: 100,
	})

	r.RenderFrame(Frame{Positions: []float64{10, 50, 90, 50}, Count: 2})

	// Midpoint of the edge, outside both node circles.
	img := r.Image()
	if got := pixelAt(t, img, 100, 100); got == background {
		t.Errorf("Expected edge pixel at segment midpoint, got background %v", got)
	}
	if got := pixelAt(t, img, 100, 140); got != background {
		t.Errorf("Expected background below the edge, got %v", got)
	}
}

// TestRenderFrameSkipsBadEdges tests that out-of-range edge indices are ignored.
func TestRenderFrameSkipsBadEdges(t *testing.T) {
	r := NewRenderer(Config{Width: 100, Height: 100, Margin: 0, ShowHUD: false})
	r.SetScene(Scene{
		Radii:       []float64{2, 2},
		Edges:       []Edge{{Source: 0, Target: 99}, {Source: -1, Target: 1}},
		WorldWidth:  100,
		WorldHeight: 100,
	})

	r.RenderFrame(Frame{Positions: []float64{20, 20, 80, 80}, Count: 2})

	if got := pixelAt(t, r.Image(), 50, 50); got != background {
		t.Errorf("Expected no edge drawn for bad indices, got %v at midpoint", got)
	}
}

// TestRenderFrameClampsCount tests that Count beyond the position slice is clamped.
func TestRenderFrameClampsCount(t *testing.T) {
	r := NewRenderer(Config{Width: 100, Height: 100, Margin: 0, ShowHUD: false})
	r.SetScene(Scene{WorldWidth: 100, WorldHeight: 100})

	// Two positions, Count claims ten.
	r.RenderFrame(Frame{Positions: []float64{25, 25, 75, 75}, Count: 10})

	if got := pixelAt(t, r.Image(), 25, 25); got == background {
		t.Errorf("Expected node drawn at (25, 25)")
	}
	if got := pixelAt(t, r.Image(), 75, 75); got == background {
		t.Errorf("Expected node drawn at (75, 75)")
	}
}

// TestEncodePNG tests that the canvas encodes as a valid PNG stream.
func TestEncodePNG(t *testing.T) {
	r := NewRenderer(Config{Width: 64, Height: 64, ShowHUD: false})
	r.RenderFrame(Frame{})

	var buf bytes.Buffer
	if err := r.EncodePNG(&buf); err != nil {
		t.Fatalf("EncodePNG failed: %v", err)
	}

	magic := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}
	if !bytes.HasPrefix(buf.Bytes(), magic) {
		t.Errorf("Expected PNG magic header, got %v", buf.Bytes()[:8])
	}
}

// TestSavePNG tests writing a frame to disk.
func TestSavePNG(t *testing.T) {
	r := NewRenderer(Config{Width: 64, Height: 64})
	r.RenderFrame(Frame{Positions: []float64{32, 32}, Count: 1, Tick: 7, Alpha: 0.5})

	path := filepath.Join(t.TempDir(), "frame.png")
	if err := r.SavePNG(path); err != nil {
		t.Fatalf("SavePNG failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Size() == 0 {
		t.Error("Expected non-empty PNG file")
	}
}

// BenchmarkRenderFrame benchmarks a full frame draw at preview scale.
func BenchmarkRenderFrame(b *testing.B) {
	const nodes = 200

	rng := rand.New(rand.NewSource(42))
	positions := make([]float64, nodes*2)
	radii := make([]float64, nodes)
	for i := 0; i < nodes; i++ {
		positions[i*2] = rng.Float64() * 1000
		positions[i*2+1] = rng.Float64() * 1000
		radii[i] = 4 + rng.Float64()*8
	}
	edges := make([]Edge, 0, nodes-1)
	for i := 1; i < nodes; i++ {
		edges = append(edges, Edge{Source: rng.Intn(i), Target: i})
	}

	r := NewRenderer(Config{Width: 1024, Height: 768, Margin: 40})
	r.SetScene(Scene{Radii: radii, Edges: edges, WorldWidth: 1000, WorldHeight: 1000})
	frame := Frame{Positions: positions, Count: nodes, Tick: 1, Alpha: 0.8}

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		r.RenderFrame(frame)
	}
}
