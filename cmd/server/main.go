package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"arena-brawl/internal/api"
	"arena-brawl/internal/config"
	"arena-brawl/internal/game"
	"arena-brawl/internal/store"
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

	log.Println("🎮 ================================")
	log.Println("🎮  ARENA BRAWL - GAME SERVER")
	log.Println("🎮 ================================")

	appConfig, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Configuration error: %v", err)
	}
	serverCfg := appConfig.Server
	limits := appConfig.Limits

	log.Printf("🎮 Config: %d TPS, %v broadcast, %d AI bots", serverCfg.TickRate, serverCfg.BroadcastInterval, serverCfg.AIBots)
	log.Printf("🛡️ Resource limits: %d players, %d projectiles, %d pickups, %d ws clients",
		limits.MaxPlayers, limits.MaxProjectiles, limits.MaxPickups, limits.WSClients)

	matchStore, err := openStore(appConfig.Store)
	if err != nil {
		log.Fatalf("❌ Match store: %v", err)
	}

	engine := game.NewEngine(game.EngineOptions{
		Settings:     appConfig.Game,
		Limits:       limits,
		Level:        game.DefaultArena(),
		TickRate:     serverCfg.TickRate,
		Seed:         time.Now().UnixNano(),
		Store:        matchStore,
		StoreTimeout: appConfig.Store.Timeout,
		EventLogPath: appConfig.Observability.EventLogPath,
	})

	server := api.NewServer(engine, api.ServerOptions{
		Config:       serverCfg,
		StoreTimeout: appConfig.Store.Timeout,
	})
	engine.SetCallbacks(server.Callbacks())

	debugServer, err := api.StartDebugServer(appConfig.Observability)
	if err != nil {
		log.Printf("⚠️ Debug server disabled: %v", err)
	}

	for i := 0; i < serverCfg.AIBots; i++ {
		if _, err := engine.AddPlayer(fmt.Sprintf("Bot-%d", i+1), true, ""); err != nil {
			log.Printf("⚠️ Could not add bot %d: %v", i+1, err)
			break
		}
	}

	if err := engine.Start(); err != nil {
		log.Fatalf("❌ Game engine: %v", err)
	}
	engine.StartMatch()
	log.Printf("✅ Game Engine started, match %s", engine.MatchID())

	// Start API server in goroutine
	go func() {
		if err := server.Start(); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	log.Println("✅ Server ready! Press Ctrl+C to stop.")
	<-quit

	log.Println("🛑 Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("⚠️ API server shutdown: %v", err)
	}
	if debugServer != nil {
		debugServer.Shutdown(ctx)
	}
	engine.Stop() // waits for pending result saves
	if err := matchStore.Close(); err != nil {
		log.Printf("⚠️ Match store close: %v", err)
	}
	log.Println("👋 Goodbye!")
}

// openStore connects to Postgres when a DSN is configured and falls back
// to an in-memory history otherwise.
func openStore(cfg config.StoreConfig) (store.MatchStore, error) {
	if cfg.DSN == "" {
		log.Println("💾 DATABASE_URL not set, keeping match history in memory")
		return store.NewMemoryStore(store.DefaultMemoryCapacity), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pg, err := store.OpenPostgres(ctx, cfg.DSN, cfg.MaxOpenConns)
	if err != nil {
		return nil, err
	}
	if err := pg.Migrate(ctx); err != nil {
		pg.Close()
		return nil, err
	}
	log.Println("💾 Match history in Postgres")
	return pg, nil
}
