package main

import (
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"graphsim/internal/api"
	"graphsim/internal/config"
	"graphsim/internal/graph"
	"graphsim/internal/ipc"
	"graphsim/internal/layout"

	"github.com/joho/godotenv"
)

func main() {
	// Load .env file from parent directory
	if err := godotenv.Load("../.env"); err != nil {
		// Try current directory as fallback
		if err := godotenv.Load(".env"); err != nil {
			log.Println("💡 No .env file found, using environment variables only")
		}
	} else {
		log.Println("✅ Loaded environment from ../.env")
	}

	log.Println("🧲 ================================")
	log.Println("🧲  GRAPHSIM - LAYOUT DAEMON")
	log.Println("🧲  Force-directed graph layout")
	log.Println("🧲 ================================")

	// Load centralized configuration (SSOT - Single Source of Truth)
	appConfig := config.Load()
	engineCfg := appConfig.Engine
	serverCfg := appConfig.Server
	ipcCfg := appConfig.IPC
	auditCfg := appConfig.Audit

	log.Printf("🧲 Config: %d TPS, %gx%g world, seed %d, event buffer %d",
		engineCfg.TickRate, engineCfg.WorldWidth, engineCfg.WorldHeight, engineCfg.Seed, engineCfg.EventBuffer)

	// Audit log records lifecycle events as JSONL for post-hoc debugging
	auditLog := layout.NewEventLog()
	if auditCfg.Enabled {
		if err := auditLog.Start(auditCfg.Path); err != nil {
			log.Printf("⚠️ Audit log disabled: %v", err)
		} else {
			log.Printf("📝 Audit log: %s", auditCfg.Path)
		}
	}

	// Snapshot ring shared between the engine and the IPC publisher.
	// Preallocation hint only; frames grow past it when a larger graph loads.
	ring := layout.NewSnapshotRing(10_000)

	// IPC publisher streams position frames to renderer processes
	var publisher *ipc.Publisher
	if ipcCfg.Enabled {
		publisher = ipc.NewPublisher(ipcCfg.SocketPath)
		if err := publisher.Start(); err != nil {
			log.Printf("⚠️ IPC publisher disabled: %v", err)
			publisher = nil
		}
	}

	// Simulation controller: owns the engine lifecycle and the loaded graph
	sim := api.NewSim(api.SimOptions{
		TickRate:    engineCfg.TickRate,
		EventBuffer: engineCfg.EventBuffer,
		Seed:        engineCfg.Seed,
		WorldWidth:  engineCfg.WorldWidth,
		WorldHeight: engineCfg.WorldHeight,
		Snapshots:   ring,
		AuditLog:    auditLog,
	})

	// A nil *ipc.Publisher must stay a nil interface, or handlers would call
	// methods on it.
	var pubStats api.PublisherInterface
	if publisher != nil {
		pubStats = publisher
	}
	server := api.NewServer(sim, pubStats)

	// Engine events fan out to WebSocket clients, metrics and the publisher
	sim.OnEvent(func(ev layout.Event) {
		server.BroadcastEvent(ev)

		switch e := ev.(type) {
		case layout.TickEvent:
			api.RecordTick(e.ComputeTime)
			api.RecordAlpha(e.Alpha)
			if publisher != nil {
				publisher.Publish(ring.AcquireRead())
			}
		case layout.EndEvent:
			log.Printf("✅ Layout settled after %d ticks (%s)", e.TotalTicks, e.TotalTime.Round(time.Millisecond))
		case layout.ErrorEvent:
			log.Printf("🔥 Engine error: %s", e.Message)
		}
	})

	// Graph changes update the renderer-facing description and gauges
	sim.OnGraph(func(g *graph.Graph) {
		api.UpdateGraphSize(int64(g.Nodes.Count()), int64(len(g.Edges)))
		if publisher != nil {
			publisher.SetMeta(ipc.MetaFromGraph(g.Nodes, g.Edges, engineCfg.WorldWidth, engineCfg.WorldHeight))
		}
	})

	// Start debug server (pprof + metrics, localhost only)
	if serverCfg.DebugEnabled {
		api.StartDebugServer(api.ObservabilityConfig{
			DebugAddr:         serverCfg.DebugAddr,
			EnableDebugServer: true,
			BasicAuthUser:     os.Getenv("DEBUG_AUTH_USER"),
			BasicAuthPass:     os.Getenv("DEBUG_AUTH_PASS"),
		})
	}

	// Periodic gauge refresh for counters that are polled, not pushed
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()

		for range ticker.C {
			api.UpdateEngineDropped(sim.EngineStats().DroppedEvents)
			if publisher != nil {
				clients, sent, dropped := publisher.GetStats()
				api.UpdateIPCStats(clients, sent, dropped)
			}
			api.UpdateAuditLogStats(auditLog.GetTotalCount(), auditLog.GetDroppedCount())
		}
	}()

	// Start API server in goroutine
	go func() {
		addr := ":" + strconv.Itoa(serverCfg.Port)
		log.Printf("🌐 API server on http://localhost%s", addr)

		if err := server.Start(addr); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	log.Println("")
	log.Println("📋 Quick start:")
	log.Println("   1. Load a graph:    curl -X POST localhost:3000/api/graph -d @graph.json")
	log.Println("   2. Start layout:    curl -X POST localhost:3000/api/sim/start")
	log.Println("   3. Poll positions:  curl localhost:3000/api/positions")
	log.Println("   4. Render frames:   go run ./cmd/preview")
	log.Println("")

	// Wait for shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	log.Println("✅ Layout daemon ready! Press Ctrl+C to stop.")
	<-quit

	log.Println("🛑 Shutting down...")
	server.Stop()
	sim.Close()
	if publisher != nil {
		publisher.Stop()
	}
	auditLog.Stop()
	log.Println("👋 Goodbye!")
}
