// =============================================================================
// GRAPHSIM - PREVIEW
// =============================================================================
// This standalone process handles ONLY rendering:
// - Receives position frames via IPC from the layout daemon
// - Renders edges and node circles into PNG files at a configurable stride
//
// Keeping it out of the daemon means a slow disk or a large canvas can never
// stall a simulation tick.
//
// USAGE:
//   1. Start the layout daemon first: go run ./cmd/layoutd
//   2. Then start this preview:       go run ./cmd/preview
// =============================================================================
package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"graphsim/internal/config"
	"graphsim/internal/ipc"
	"graphsim/internal/render"

	"github.com/joho/godotenv"
)

func main() {
	// Load environment
	if err := godotenv.Load("../.env"); err != nil {
		if err := godotenv.Load(".env"); err != nil {
			log.Println("No .env file found, using environment variables")
		}
	}

	log.Println("================================")
	log.Println("  GRAPHSIM - PREVIEW")
	log.Println("  PNG frame renderer")
	log.Println("================================")

	appConfig := config.Load()
	previewCfg := appConfig.Preview
	socketPath := appConfig.IPC.SocketPath

	log.Printf("Canvas: %dx%d, margin %g", previewCfg.Width, previewCfg.Height, previewCfg.Margin)
	log.Printf("Output: %s (every %d frames)", previewCfg.OutDir, previewCfg.Stride)

	if err := os.MkdirAll(previewCfg.OutDir, 0755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}

	renderer := render.NewRenderer(render.Config{
		Width:   previewCfg.Width,
		Height:  previewCfg.Height,
		Margin:  previewCfg.Margin,
		ShowHUD: previewCfg.ShowHUD,
	})

	subscriber := ipc.NewSubscriber(socketPath)

	// Latest-wins handoff so rendering never backpressures the socket reads
	frameCh := make(chan *ipc.FrameMessage, 1)
	sceneCh := make(chan render.Scene, 1)
	stopCh := make(chan struct{})

	subscriber.OnFrame(func(frame *ipc.FrameMessage) {
		select {
		case frameCh <- frame:
		default:
			select {
			case <-frameCh:
			default:
			}
			select {
			case frameCh <- frame:
			default:
			}
		}
	})

	subscriber.OnMeta(func(meta *ipc.MetaMessage) {
		scene := sceneFromMeta(meta)
		select {
		case sceneCh <- scene:
		default:
			select {
			case <-sceneCh:
			default:
			}
			select {
			case sceneCh <- scene:
			default:
			}
		}
	})

	// Start IPC subscriber
	log.Println("Connecting to layout daemon...")
	if err := subscriber.Start(); err != nil {
		log.Fatalf("Failed to start IPC subscriber: %v", err)
	}

	// Wait for connection to the daemon
	for i := 0; i < 30; i++ { // Wait up to 30 seconds
		if subscriber.IsConnected() {
			break
		}
		time.Sleep(time.Second)
	}

	if !subscriber.IsConnected() {
		log.Println("WARNING: Could not connect to layout daemon")
		log.Println("Make sure the daemon is running: go run ./cmd/layoutd")
		log.Println("Continuing anyway (will retry connection)...")
	}

	stride := previewCfg.Stride
	if stride < 1 {
		stride = 1
	}

	var framesWritten int64

	// Render loop: one goroutine owns the renderer
	go func() {
		received := 0
		for {
			select {
			case <-stopCh:
				return

			case scene := <-sceneCh:
				renderer.SetScene(scene)

			case frame := <-frameCh:
				received++
				if (received-1)%stride != 0 {
					continue
				}

				renderer.RenderFrame(render.Frame{
					Positions: frame.Positions,
					Count:     frame.Count,
					Tick:      frame.Tick,
					Alpha:     frame.Alpha,
				})

				path := filepath.Join(previewCfg.OutDir, fmt.Sprintf("frame_%06d.png", frame.Tick))
				if err := renderer.SavePNG(path); err != nil {
					log.Printf("Failed to write %s: %v", path, err)
					continue
				}
				atomic.AddInt64(&framesWritten, 1)
			}
		}
	}()

	// Stats logging goroutine
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for range ticker.C {
			received, reconnects, errors := subscriber.GetStats()
			log.Printf("IPC: frames=%d, written=%d, reconnects=%d, errors=%d, connected=%v",
				received, atomic.LoadInt64(&framesWritten), reconnects, errors, subscriber.IsConnected())
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	log.Println("")
	log.Println("Preview ready! Press Ctrl+C to stop.")
	log.Println("")
	<-quit

	log.Println("Shutting down preview...")
	close(stopCh)
	subscriber.Stop()
	log.Printf("Preview stopped after %d frames written", atomic.LoadInt64(&framesWritten))
}

// sceneFromMeta converts the wire description into renderer inputs.
func sceneFromMeta(meta *ipc.MetaMessage) render.Scene {
	edges := make([]render.Edge, len(meta.Edges))
	for i, e := range meta.Edges {
		edges[i] = render.Edge{Source: int(e.Source), Target: int(e.Target)}
	}
	return render.Scene{
		Radii:       meta.Radii,
		Edges:       edges,
		WorldWidth:  meta.WorldWidth,
		WorldHeight: meta.WorldHeight,
	}
}
