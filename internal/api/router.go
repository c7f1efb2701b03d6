package api

import (
	"context"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"arena-brawl/internal/config"
	"arena-brawl/internal/game"
	"arena-brawl/internal/store"
)

// EngineInterface defines the game engine methods used by the API.
// This interface enables mocking for tests without spinning up the game loop.
// *game.Engine satisfies it.
type EngineInterface interface {
	Snapshot() *game.GameSnapshot
	MatchStats() game.MatchStats
	State() game.MatchState
	MatchID() string
	Leaderboard(n int) []game.LeaderboardEntry
	Settings() config.GameSettings
	Level() game.Level
	Limits() config.ResourceLimits

	AddPlayer(name string, ai bool, difficulty string) (int, error)
	RemovePlayer(slot int) error
	SetInput(slot int, state game.InputState) error
	Equip(slot int, kind game.WeaponKind) error

	StartMatch() bool
	Pause() bool
	Resume() bool
	EndMatch() *game.Winner
	Reset(settings *config.GameSettings) error

	AIStatus() []game.AIStatus
	SetAIDifficulty(name string) bool

	RecentEvents(n int) []game.LogEntry
	EventLogStats() map[string]interface{}
	History(ctx context.Context, limit int) ([]store.MatchResult, error)
	Result(ctx context.Context, id string) (store.MatchResult, error)
}

var _ EngineInterface = (*game.Engine)(nil)

// RouterConfig contains all dependencies needed to construct the HTTP router.
//
// Example usage in tests:
//
//	cfg := api.RouterConfig{
//	    Engine: mockEngine,
//	    RateLimitConfig: &api.RateLimitConfig{
//	        RequestsPerSecond: 1000, // High limit for tests
//	        Burst:             1000,
//	    },
//	}
//	router := api.NewRouter(cfg)
//	ts := httptest.NewServer(router)
type RouterConfig struct {
	// Engine is the game engine (required)
	Engine EngineInterface

	// RateLimiter is an optional pre-configured rate limiter.
	// If nil, a new one will be created using RateLimitConfig.
	RateLimiter *IPRateLimiter

	// RateLimitConfig is optional configuration for the rate limiter.
	// Only used if RateLimiter is nil. If both are nil, uses DefaultRateLimitConfig.
	RateLimitConfig *RateLimitConfig

	// CORSOrigins is an optional list of allowed CORS origins.
	// If nil, every origin is allowed.
	CORSOrigins []string

	// Sessions guards match control. If nil or without a token, control
	// routes are open.
	Sessions *SessionManager

	// StoreTimeout bounds history queries. Zero means 3s.
	StoreTimeout time.Duration

	// DisableLogging disables the request logger middleware (useful for benchmarks).
	DisableLogging bool
}

// routerHandlers holds the handler functions for the router.
type routerHandlers struct {
	engine       EngineInterface
	storeTimeout time.Duration
}

// NewRouter constructs the HTTP router with all middleware and routes.
//
// IMPORTANT: This function starts no goroutines beyond the rate limiter's
// cleanup loop and opens no listeners, so it is safe with httptest.NewServer.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware - Order matters!
	if !cfg.DisableLogging {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)
	r.Use(metricsMiddleware)

	// Rate limiting (BEFORE CORS to reject early and save CPU)
	rateLimiter := cfg.RateLimiter
	if rateLimiter == nil {
		rateLimitCfg := DefaultRateLimitConfig
		if cfg.RateLimitConfig != nil {
			rateLimitCfg = *cfg.RateLimitConfig
		}
		rateLimiter = NewIPRateLimiter(rateLimitCfg)
	}
	r.Use(rateLimiter.Middleware)

	corsOrigins := cfg.CORSOrigins
	if corsOrigins == nil {
		corsOrigins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	sessions := cfg.Sessions
	if sessions == nil {
		sessions = NewSessionManager("")
	}

	h := &routerHandlers{
		engine:       cfg.Engine,
		storeTimeout: cfg.StoreTimeout,
	}
	if h.storeTimeout <= 0 {
		h.storeTimeout = 3 * time.Second
	}

	r.Get("/health", h.handleHealth)

	r.Route("/api", func(r chi.Router) {
		// Game state
		r.Get("/state", h.handleGetState)
		r.Get("/stats", h.handleGetStats)
		r.Get("/leaderboard", h.handleGetLeaderboard)
		r.Get("/settings", h.handleGetSettings)
		r.Get("/weapons", h.handleGetWeapons)
		r.Get("/events", h.handleGetEvents)
		r.Get("/minimap.png", h.handleMinimap)

		// Match history
		r.Get("/history", h.handleGetHistory)
		r.Get("/history/{id}", h.handleGetResult)

		// Players
		r.Post("/players", h.handlePlayerJoin)
		r.Post("/players/{slot}/input", h.handlePlayerInput)
		r.Get("/ai", h.handleGetAI)

		// Admin session
		r.Post("/admin/login", sessions.HandleLogin)
		r.Post("/admin/logout", sessions.HandleLogout)
		r.Get("/admin/status", sessions.HandleAuthStatus)

		// Match control
		r.Group(func(r chi.Router) {
			r.Use(sessions.AdminAuthMiddleware)

			r.Post("/match/start", h.handleMatchStart)
			r.Post("/match/pause", h.handleMatchPause)
			r.Post("/match/resume", h.handleMatchResume)
			r.Post("/match/end", h.handleMatchEnd)
			r.Post("/match/reset", h.handleMatchReset)

			r.Delete("/players/{slot}", h.handlePlayerLeave)
			r.Post("/players/{slot}/weapon", h.handlePlayerWeapon)
			r.Put("/ai/difficulty", h.handleSetAIDifficulty)
		})
	})

	return r
}
