// Package render turns position frames into PNG images for the preview
// tool. It is transport-agnostic: callers hand it scene metadata (radii,
// edges, world size) and per-frame positions from whatever source they have.
package render

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"math"

	"github.com/fogleman/gg"
)

// Config controls the output image.
type Config struct {
	Width   int
	Height  int
	Margin  float64 // padding around the fitted world rect, in pixels
	ShowHUD bool    // tick/alpha/node-count readout in the corner
}

// DefaultConfig returns preview-friendly defaults.
func DefaultConfig() Config {
	return Config{
		Width:   1024,
		Height:  768,
		Margin:  40,
		ShowHUD: true,
	}
}

// Edge is one drawable connection between two node indices.
type Edge struct {
	Source int
	Target int
}

// Scene is the static description of a loaded graph. It changes only when
// the graph itself changes; positions arrive separately in each Frame.
type Scene struct {
	Radii       []float64
	Edges       []Edge
	WorldWidth  float64
	WorldHeight float64
}

// Frame is one drawable set of positions.
type Frame struct {
	Positions []float64 // xy pairs, index order
	Count     int
	Tick      uint64
	Alpha     float64
}

const fallbackRadius = 5.0

// Node fill colors cycle by index so adjacent indices stay distinguishable.
var nodePalette = []color.RGBA{
	{78, 121, 167, 255},
	{242, 142, 43, 255},
	{225, 87, 89, 255},
	{118, 183, 178, 255},
	{89, 161, 79, 255},
	{237, 201, 72, 255},
	{176, 122, 161, 255},
	{255, 157, 167, 255},
	{156, 117, 95, 255},
	{186, 176, 172, 255},
}

// Renderer draws frames into a reusable canvas. Not safe for concurrent
// use; the preview tool renders from a single goroutine.
type Renderer struct {
	config Config
	scene  Scene
	dc     *gg.Context

	// World to screen transform, recomputed on SetScene.
	scale   float64
	offsetX float64
	offsetY float64
}

// NewRenderer creates a renderer with its canvas allocated up front. The
// canvas is reused across frames.
func NewRenderer(config Config) *Renderer {
	if config.Width <= 0 {
		config.Width = 1024
	}
	if config.Height <= 0 {
		config.Height = 768
	}
	if config.Margin < 0 {
		config.Margin = 0
	}

	r := &Renderer{
		config: config,
		dc:     gg.NewContext(config.Width, config.Height),
	}
	// Identity-ish transform until a real scene arrives.
	r.SetScene(Scene{
		WorldWidth:  float64(config.Width),
		WorldHeight: float64(config.Height),
	})
	return r
}

// SetScene installs graph metadata and refits the camera to the world rect.
// The camera stays fixed across frames so sequences do not jitter.
func (r *Renderer) SetScene(scene Scene) {
	if scene.WorldWidth <= 0 {
		scene.WorldWidth = 1000
	}
	if scene.WorldHeight <= 0 {
		scene.WorldHeight = 1000
	}
	r.scene = scene

	availW := float64(r.config.Width) - 2*r.config.Margin
	availH := float64(r.config.Height) - 2*r.config.Margin
	if availW < 1 {
		availW = float64(r.config.Width)
	}
	if availH < 1 {
		availH = float64(r.config.Height)
	}

	r.scale = math.Min(availW/scene.WorldWidth, availH/scene.WorldHeight)
	r.offsetX = (float64(r.config.Width) - scene.WorldWidth*r.scale) / 2
	r.offsetY = (float64(r.config.Height) - scene.WorldHeight*r.scale) / 2
}

// toScreen maps world coordinates onto the canvas.
func (r *Renderer) toScreen(x, y float64) (float64, float64) {
	return x*r.scale + r.offsetX, y*r.scale + r.offsetY
}

// RenderFrame draws one frame over the previous canvas contents. Call
// Image, EncodePNG or SavePNG afterwards to get the result.
func (r *Renderer) RenderFrame(frame Frame) {
	count := frame.Count
	if max := len(frame.Positions) / 2; count > max {
		count = max
	}

	r.drawBackground(r.dc)
	r.drawEdges(r.dc, frame.Positions, count)
	r.drawNodes(r.dc, frame.Positions, count)
	if r.config.ShowHUD {
		r.drawHUD(r.dc, frame, count)
	}
}

// Image returns the current canvas. The returned image is reused by the
// next RenderFrame call.
func (r *Renderer) Image() image.Image {
	return r.dc.Image()
}

// EncodePNG writes the current canvas as PNG.
func (r *Renderer) EncodePNG(w io.Writer) error {
	return r.dc.EncodePNG(w)
}

// SavePNG writes the current canvas to a file.
func (r *Renderer) SavePNG(path string) error {
	return r.dc.SavePNG(path)
}

func (r *Renderer) drawBackground(dc *gg.Context) {
	dc.SetColor(color.RGBA{250, 250, 255, 255}) // Soft white
	dc.DrawRectangle(0, 0, float64(r.config.Width), float64(r.config.Height))
	dc.Fill()
}

func (r *Renderer) drawEdges(dc *gg.Context, positions []float64, count int) {
	dc.SetColor(color.RGBA{120, 130, 150, 110})
	dc.SetLineWidth(1)

	for _, e := range r.scene.Edges {
		if e.Source < 0 || e.Source >= count || e.Target < 0 || e.Target >= count {
			continue
		}
		sx, sy := r.toScreen(positions[e.Source*2], positions[e.Source*2+1])
		tx, ty := r.toScreen(positions[e.Target*2], positions[e.Target*2+1])
		dc.DrawLine(sx, sy, tx, ty)
		dc.Stroke()
	}
}

func (r *Renderer) drawNodes(dc *gg.Context, positions []float64, count int) {
	w := float64(r.config.Width)
	h := float64(r.config.Height)

	for i := 0; i < count; i++ {
		x, y := r.toScreen(positions[i*2], positions[i*2+1])

		radius := fallbackRadius
		if i < len(r.scene.Radii) && r.scene.Radii[i] > 0 {
			radius = r.scene.Radii[i]
		}
		radius *= r.scale
		if radius < 1 {
			radius = 1
		}

		// Entirely off-canvas, skip the draw calls.
		if x+radius < 0 || x-radius > w || y+radius < 0 || y-radius > h {
			continue
		}

		dc.SetColor(nodePalette[i%len(nodePalette)])
		dc.DrawCircle(x, y, radius)
		dc.Fill()

		dc.SetColor(color.RGBA{30, 30, 40, 200})
		dc.SetLineWidth(1.5)
		dc.DrawCircle(x, y, radius)
		dc.Stroke()
	}
}

func (r *Renderer) drawHUD(dc *gg.Context, frame Frame, count int) {
	dc.SetColor(color.RGBA{20, 25, 35, 255}) // Dark charcoal
	dc.DrawString(fmt.Sprintf("tick %d  alpha %.3f  nodes %d", frame.Tick, frame.Alpha, count), 10, 20)
}
