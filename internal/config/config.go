// Package config provides centralized configuration management.
// Game tuning lives in GameSettings (settings.go); process-level settings
// (server, limits, storage, debug endpoints) live here.
//
// Every section follows the same shape: a DefaultX() constructor holding
// the canonical values and an XFromEnv() that applies environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// SERVER CONFIGURATION
// =============================================================================

// ServerConfig holds HTTP server and match loop settings.
type ServerConfig struct {
	Port              int
	TickRate          int           // Simulation ticks per second
	BroadcastInterval time.Duration // WebSocket state push period
	AIBots            int           // AI players added when a match starts
	AllowedOrigins    []string
	AdminToken        string // required for match control when set
}

// DefaultServer returns the default server configuration.
func DefaultServer() ServerConfig {
	return ServerConfig{
		Port:              3000,
		TickRate:          60,
		BroadcastInterval: 100 * time.Millisecond, // 10 Hz
		AIBots:            3,
		AllowedOrigins:    []string{"*"},
	}
}

// ServerFromEnv returns server configuration with environment variable overrides.
func ServerFromEnv() ServerConfig {
	cfg := DefaultServer()

	if p := getEnvInt("PORT", 0); p > 0 {
		cfg.Port = p
	}
	if tr := getEnvInt("TICK_RATE", 0); tr > 0 {
		cfg.TickRate = tr
	}
	if d := getEnvDuration("BROADCAST_INTERVAL", 0); d > 0 {
		cfg.BroadcastInterval = d
	}
	if n := getEnvInt("AI_BOTS", -1); n >= 0 {
		cfg.AIBots = n
	}
	if o := os.Getenv("ALLOWED_ORIGINS"); o != "" {
		cfg.AllowedOrigins = splitList(o)
	}
	cfg.AdminToken = os.Getenv("ADMIN_TOKEN")

	return cfg
}

// =============================================================================
// GAME RESOURCE LIMITS
// =============================================================================

// ResourceLimits controls DoS protection and performance limits.
type ResourceLimits struct {
	MaxPlayers      int // Hard cap on participants in one match
	MaxProjectiles  int // Maximum active projectiles
	MaxPickups      int // Maximum dropped weapons lying in the world
	EventsPerSecond int // Global event log rate limit
	WSClients       int // Maximum concurrent WebSocket clients
}

// DefaultLimits returns the default resource limits.
func DefaultLimits() ResourceLimits {
	return ResourceLimits{
		MaxPlayers:      8,
		MaxProjectiles:  256,
		MaxPickups:      32,
		EventsPerSecond: 2000,
		WSClients:       64,
	}
}

// LimitsFromEnv returns resource limits with environment variable overrides.
func LimitsFromEnv() ResourceLimits {
	cfg := DefaultLimits()

	if mp := getEnvInt("MAX_PLAYERS", 0); mp > 0 {
		cfg.MaxPlayers = mp
	}
	if mp := getEnvInt("MAX_PROJECTILES", 0); mp > 0 {
		cfg.MaxProjectiles = mp
	}
	if c := getEnvInt("WS_MAX_CLIENTS", 0); c > 0 {
		cfg.WSClients = c
	}

	return cfg
}

// =============================================================================
// STORE CONFIGURATION
// =============================================================================

// StoreConfig selects where finished match results are kept.
// An empty DSN keeps results in memory.
type StoreConfig struct {
	DSN          string
	MaxOpenConns int
	Timeout      time.Duration
}

// DefaultStore returns the default store configuration.
func DefaultStore() StoreConfig {
	return StoreConfig{
		MaxOpenConns: 5,
		Timeout:      3 * time.Second,
	}
}

// StoreFromEnv returns store configuration with environment variable overrides.
func StoreFromEnv() StoreConfig {
	cfg := DefaultStore()

	cfg.DSN = os.Getenv("DATABASE_URL")
	if n := getEnvInt("DB_MAX_OPEN_CONNS", 0); n > 0 {
		cfg.MaxOpenConns = n
	}
	if d := getEnvDuration("DB_TIMEOUT", 0); d > 0 {
		cfg.Timeout = d
	}

	return cfg
}

// =============================================================================
// OBSERVABILITY CONFIGURATION
// =============================================================================

// ObservabilityConfig holds debug server and event log settings.
type ObservabilityConfig struct {
	DebugAddr     string // pprof + /metrics listener, empty disables it
	DebugUser     string // optional basic auth for the debug listener
	DebugPass     string
	AllowExternal bool // permit a non-loopback DebugAddr
	EventLogPath  string // NDJSON event log file, empty keeps events in memory only
}

// DefaultObservability returns the default observability configuration.
func DefaultObservability() ObservabilityConfig {
	return ObservabilityConfig{
		DebugAddr: "localhost:6060",
	}
}

// ObservabilityFromEnv returns observability configuration with environment overrides.
func ObservabilityFromEnv() ObservabilityConfig {
	cfg := DefaultObservability()

	if v, ok := os.LookupEnv("DEBUG_ADDR"); ok {
		cfg.DebugAddr = v
	}
	cfg.DebugUser = os.Getenv("DEBUG_USER")
	cfg.DebugPass = os.Getenv("DEBUG_PASS")
	cfg.AllowExternal = os.Getenv("ALLOW_DEBUG_EXTERNAL") == "true"
	cfg.EventLogPath = os.Getenv("EVENT_LOG_PATH")

	return cfg
}

// =============================================================================
// COMPLETE APP CONFIGURATION
// =============================================================================

// AppConfig holds the complete application configuration.
type AppConfig struct {
	Server        ServerConfig
	Limits        ResourceLimits
	Store         StoreConfig
	Observability ObservabilityConfig
	Game          GameSettings
}

// Load returns the complete configuration with environment overrides.
// SETTINGS_FILE, when set, is merged over the default game settings before
// the ARENA_* variables are applied.
func Load() (AppConfig, error) {
	game := DefaultGame()
	if path := os.Getenv("SETTINGS_FILE"); path != "" {
		loaded, err := LoadSettingsFile(path)
		if err != nil {
			return AppConfig{}, err
		}
		game = loaded
	}
	game = GameFromEnv(game)
	if err := game.Validate(); err != nil {
		return AppConfig{}, fmt.Errorf("game settings: %w", err)
	}

	return AppConfig{
		Server:        ServerFromEnv(),
		Limits:        LimitsFromEnv(),
		Store:         StoreFromEnv(),
		Observability: ObservabilityFromEnv(),
		Game:          game,
	}, nil
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

// getEnvDuration accepts Go duration strings ("250ms") or bare milliseconds.
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultVal
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
