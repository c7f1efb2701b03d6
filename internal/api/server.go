package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"arena-brawl/internal/config"
	"arena-brawl/internal/game"
	"arena-brawl/internal/store"
)

// ServerOptions configures a Server.
type ServerOptions struct {
	Config          config.ServerConfig
	RateLimitConfig *RateLimitConfig
	StoreTimeout    time.Duration
	DisableLogging  bool
}

// Server is the HTTP API server with WebSocket support.
// It combines the HTTP router with WebSocket hub for real-time updates.
type Server struct {
	engine      EngineInterface
	cfg         config.ServerConfig
	router      *chi.Mux
	wsHub       *WebSocketHub
	rateLimiter *IPRateLimiter
	sessions    *SessionManager

	httpServer  *http.Server
	workersOnce sync.Once
}

// NewServer creates a new API server.
//
// IMPORTANT: Background workers do NOT start until Start() or StartWorkers()
// is called. Tests can construct the server and use Router() without them.
func NewServer(engine EngineInterface, opts ServerOptions) *Server {
	s := &Server{
		engine:   engine,
		cfg:      opts.Config,
		sessions: NewSessionManager(opts.Config.AdminToken),
	}

	rateLimitCfg := DefaultRateLimitConfig
	if opts.RateLimitConfig != nil {
		rateLimitCfg = *opts.RateLimitConfig
	}
	s.rateLimiter = NewIPRateLimiter(rateLimitCfg)

	s.wsHub = NewWebSocketHub(engine, NewOriginPolicy(opts.Config.AllowedOrigins), s.sessions, engine.Limits().WSClients)

	s.router = NewRouter(RouterConfig{
		Engine:         engine,
		RateLimiter:    s.rateLimiter,
		CORSOrigins:    opts.Config.AllowedOrigins,
		Sessions:       s.sessions,
		StoreTimeout:   opts.StoreTimeout,
		DisableLogging: opts.DisableLogging,
	})

	// WebSocket route needs the wsHub instance, so it is not part of NewRouter.
	s.router.Get("/ws", s.wsHub.HandleWebSocket)

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	if opts.Config.AdminToken == "" {
		log.Println("⚠️ ADMIN_TOKEN not set, match control is open")
	}
	return s
}

// Callbacks returns engine callbacks feeding metrics and the hub.
func (s *Server) Callbacks() game.EngineCallbacks {
	return game.EngineCallbacks{
		OnTick:   RecordTickStats,
		OnEvents: s.wsHub.PushEvents,
		OnMatchEnd: func(r store.MatchResult) {
			RecordMatchEnd(r)
			s.wsHub.Broadcast(EventGameOver, r)
		},
	}
}

// StartWorkers starts the hub and its broadcast loop. Safe to call twice.
func (s *Server) StartWorkers() {
	s.workersOnce.Do(func() {
		go s.wsHub.Run()
		s.wsHub.StartBroadcastLoop(s.cfg.BroadcastInterval)
	})
}

// Start begins the HTTP server AND starts background workers. It blocks
// until Shutdown.
func (s *Server) Start() error {
	s.StartWorkers()

	log.Printf("🌐 API server starting on %s", s.httpServer.Addr)
	log.Printf("🔌 WebSocket: ws://localhost%s/ws", s.httpServer.Addr)

	if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Router returns the HTTP handler for use with httptest.
func (s *Server) Router() http.Handler {
	return s.router
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *WebSocketHub {
	return s.wsHub
}

// Shutdown stops accepting requests, then stops background workers.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.Stop()
	return err
}

// Stop stops background workers.
func (s *Server) Stop() {
	s.wsHub.Stop()
	s.rateLimiter.Stop()
	s.sessions.Stop()
}
