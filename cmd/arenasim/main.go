// Command arenasim runs bot-only matches headless on a simulated clock and
// prints their results.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"arena-brawl/internal/config"
	"arena-brawl/internal/game"
	"arena-brawl/internal/store"
)

func main() {
	var (
		bots       = flag.Int("bots", 4, "number of AI players")
		matches    = flag.Int("matches", 1, "matches to play")
		seed       = flag.Int64("seed", 1, "random seed")
		tickRate   = flag.Int("tick-rate", 60, "simulated ticks per second")
		maxTime    = flag.Duration("max", 10*time.Minute, "simulated time limit per match")
		difficulty = flag.String("difficulty", "", "AI difficulty preset (default from settings)")
		settings   = flag.String("settings", "", "YAML or JSON settings file")
		conditions = flag.String("conditions", "", "comma-separated victory conditions")
		asJSON     = flag.Bool("json", false, "print results as JSON")
	)
	flag.Parse()

	gameCfg := config.DefaultGame()
	if *settings != "" {
		loaded, err := config.LoadSettingsFile(*settings)
		if err != nil {
			log.Fatalf("❌ %v", err)
		}
		gameCfg = loaded
	}
	if *conditions != "" {
		gameCfg.Match.VictoryConditions = strings.Split(*conditions, ",")
	}
	if err := gameCfg.Validate(); err != nil {
		log.Fatalf("❌ %v", err)
	}

	limits := config.DefaultLimits()
	if *bots > limits.MaxPlayers {
		limits.MaxPlayers = *bots
	}

	results, err := run(simOptions{
		Settings:   gameCfg,
		Limits:     limits,
		Bots:       *bots,
		Matches:    *matches,
		Seed:       *seed,
		TickRate:   *tickRate,
		MaxTime:    *maxTime,
		Difficulty: *difficulty,
	})
	if err != nil {
		log.Fatalf("❌ %v", err)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			log.Fatalf("❌ %v", err)
		}
		return
	}
	for _, r := range results {
		printResult(r)
	}
}

type simOptions struct {
	Settings   config.GameSettings
	Limits     config.ResourceLimits
	Bots       int
	Matches    int
	Seed       int64
	TickRate   int
	MaxTime    time.Duration
	Difficulty string
}

// run plays opts.Matches matches back to back and returns them oldest first.
func run(opts simOptions) ([]store.MatchResult, error) {
	if opts.TickRate <= 0 {
		opts.TickRate = 60
	}
	if opts.Matches <= 0 {
		opts.Matches = 1
	}
	clock := game.NewManualClock(time.Unix(0, 0).UTC())
	mem := store.NewMemoryStore(opts.Matches)

	engine := game.NewEngine(game.EngineOptions{
		Settings: opts.Settings,
		Limits:   opts.Limits,
		Level:    game.DefaultArena(),
		TickRate: opts.TickRate,
		Seed:     opts.Seed,
		Clock:    clock,
		Store:    mem,
	})

	for i := 0; i < opts.Bots; i++ {
		if _, err := engine.AddPlayer(fmt.Sprintf("Bot-%d", i+1), true, opts.Difficulty); err != nil {
			return nil, fmt.Errorf("add bot %d: %w", i+1, err)
		}
	}

	step := time.Second / time.Duration(opts.TickRate)
	for m := 0; m < opts.Matches; m++ {
		if m > 0 {
			if err := engine.Reset(nil); err != nil {
				return nil, fmt.Errorf("reset: %w", err)
			}
		}
		engine.StartMatch()

		started := clock.Now()
		for engine.State() != game.MatchEnded {
			if clock.Now().Sub(started) >= opts.MaxTime {
				engine.EndMatch()
				break
			}
			clock.Advance(step)
			engine.Step()
		}
	}

	engine.Stop() // waits for result saves

	results, err := engine.History(context.Background(), opts.Matches)
	if err != nil {
		return nil, err
	}
	// History is newest first.
	for i, j := 0, len(results)-1; i < j; i, j = i+1, j-1 {
		results[i], results[j] = results[j], results[i]
	}
	return results, nil
}

func printResult(r store.MatchResult) {
	winner := "nobody"
	if r.WinnerSlot != game.NoPlayer {
		winner = r.WinnerName
	}
	fmt.Printf("🏁 %s  %s wins by %s after %v\n", r.ID, winner, r.Reason, r.Duration.Round(time.Millisecond))
	for _, p := range r.Players {
		fmt.Printf("   %-8s $%-8.0f %3d kills %3d deaths\n", p.Name, p.Money, p.Kills, p.Deaths)
	}
}
