// Package config provides centralized configuration management.
// This is the SINGLE SOURCE OF TRUTH for all engine and daemon settings.
//
// IMPORTANT: When changing values, only modify this file.
// All other parts of the codebase should reference these values.
package config

import (
	"os"
	"strconv"
)

// =============================================================================
// ENGINE CONFIGURATION
// =============================================================================

// EngineConfig holds simulation engine settings.
type EngineConfig struct {
	TickRate    int     // Simulation ticks per second
	EventBuffer int     // Engine event channel capacity
	Seed        int64   // Seed for initial node placement
	WorldWidth  float64 // Layout world width in simulation units
	WorldHeight float64 // Layout world height in simulation units
}

// DefaultEngine returns the default engine configuration.
func DefaultEngine() EngineConfig {
	return EngineConfig{
		TickRate:    60,
		EventBuffer: 256,
		Seed:        1,
		WorldWidth:  1000,
		WorldHeight: 1000,
	}
}

// EngineFromEnv returns engine configuration with environment variable
// overrides. Environment variables take precedence over defaults.
func EngineFromEnv() EngineConfig {
	cfg := DefaultEngine()

	if tr := getEnvInt("TICK_RATE", 0); tr > 0 {
		cfg.TickRate = tr
	}
	if eb := getEnvInt("EVENT_BUFFER", 0); eb > 0 {
		cfg.EventBuffer = eb
	}
	if s := getEnvInt("SIM_SEED", 0); s != 0 {
		cfg.Seed = int64(s)
	}
	if w := getEnvFloat("WORLD_WIDTH", 0); w > 0 {
		cfg.WorldWidth = w
	}
	if h := getEnvFloat("WORLD_HEIGHT", 0); h > 0 {
		cfg.WorldHeight = h
	}

	return cfg
}

// =============================================================================
// SERVER CONFIGURATION
// =============================================================================

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         int
	DebugAddr    string // pprof + metrics listener, keep on localhost
	DebugEnabled bool
}

// DefaultServer returns the default server configuration.
func DefaultServer() ServerConfig {
	return ServerConfig{
		Port:         3000,
		DebugAddr:    "127.0.0.1:6060",
		DebugEnabled: true,
	}
}

// ServerFromEnv returns server configuration with environment variable overrides.
func ServerFromEnv() ServerConfig {
	cfg := DefaultServer()

	if p := getEnvInt("PORT", 0); p > 0 {
		cfg.Port = p
	}
	if addr := os.Getenv("DEBUG_ADDR"); addr != "" {
		cfg.DebugAddr = addr
	}
	if os.Getenv("DEBUG_ENABLED") == "false" {
		cfg.DebugEnabled = false
	}

	return cfg
}

// =============================================================================
// IPC CONFIGURATION
// =============================================================================

// IPCConfig holds position publisher settings.
type IPCConfig struct {
	Enabled    bool
	SocketPath string // empty uses the ipc package default
}

// DefaultIPC returns the default IPC configuration.
func DefaultIPC() IPCConfig {
	return IPCConfig{
		Enabled:    true,
		SocketPath: "",
	}
}

// IPCFromEnv returns IPC configuration with environment variable overrides.
func IPCFromEnv() IPCConfig {
	cfg := DefaultIPC()

	if os.Getenv("IPC_ENABLED") == "false" {
		cfg.Enabled = false
	}
	if path := os.Getenv("IPC_SOCKET"); path != "" {
		cfg.SocketPath = path
	}

	return cfg
}

// =============================================================================
// AUDIT LOG CONFIGURATION
// =============================================================================

// AuditConfig holds lifecycle event log settings.
type AuditConfig struct {
	Enabled bool
	Path    string // JSONL output file
}

// DefaultAudit returns the default audit log configuration.
func DefaultAudit() AuditConfig {
	return AuditConfig{
		Enabled: true,
		Path:    "layout_events.jsonl",
	}
}

// AuditFromEnv returns audit log configuration with environment variable overrides.
func AuditFromEnv() AuditConfig {
	cfg := DefaultAudit()

	if os.Getenv("AUDIT_ENABLED") == "false" {
		cfg.Enabled = false
	}
	if path := os.Getenv("AUDIT_LOG_PATH"); path != "" {
		cfg.Path = path
	}

	return cfg
}

// =============================================================================
// PREVIEW CONFIGURATION
// =============================================================================

// PreviewConfig holds PNG preview renderer settings.
type PreviewConfig struct {
	Width   int
	Height  int
	Margin  float64 // padding around the fitted layout in pixels
	OutDir  string  // directory for frame_NNNN.png output
	Stride  int     // write every Nth received frame
	ShowHUD bool
}

// DefaultPreview returns the default preview configuration.
func DefaultPreview() PreviewConfig {
	return PreviewConfig{
		Width:   1024,
		Height:  768,
		Margin:  40,
		OutDir:  "frames",
		Stride:  10,
		ShowHUD: true,
	}
}

// PreviewFromEnv returns preview configuration with environment variable overrides.
func PreviewFromEnv() PreviewConfig {
	cfg := DefaultPreview()

	if w := getEnvInt("PREVIEW_WIDTH", 0); w > 0 {
		cfg.Width = w
	}
	if h := getEnvInt("PREVIEW_HEIGHT", 0); h > 0 {
		cfg.Height = h
	}
	if m := getEnvFloat("PREVIEW_MARGIN", -1); m >= 0 {
		cfg.Margin = m
	}
	if dir := os.Getenv("PREVIEW_OUT_DIR"); dir != "" {
		cfg.OutDir = dir
	}
	if s := getEnvInt("PREVIEW_STRIDE", 0); s > 0 {
		cfg.Stride = s
	}
	if os.Getenv("PREVIEW_HUD") == "false" {
		cfg.ShowHUD = false
	}

	return cfg
}

// =============================================================================
// COMPLETE APP CONFIGURATION
// =============================================================================

// AppConfig holds the complete application configuration.
type AppConfig struct {
	Engine  EngineConfig
	Server  ServerConfig
	IPC     IPCConfig
	Audit   AuditConfig
	Preview PreviewConfig
}

// Load returns the complete configuration with environment overrides.
func Load() AppConfig {
	return AppConfig{
		Engine:  EngineFromEnv(),
		Server:  ServerFromEnv(),
		IPC:     IPCFromEnv(),
		Audit:   AuditFromEnv(),
		Preview: PreviewFromEnv(),
	}
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}
