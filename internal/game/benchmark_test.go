package game

import (
	"fmt"
	"testing"
	"time"

	"arena-brawl/internal/config"
)

// =============================================================================
// BENCHMARK SUITE: TICK AND SNAPSHOT COST
// Run with: go test -bench=. -benchmem ./internal/game/...
// =============================================================================

func benchWorld(b *testing.B, players int, ai bool) (*World, *ManualClock) {
	w, clock := newTestWorld(b, func(o *WorldOptions) {
		o.Limits.MaxPlayers = players
		o.Limits.MaxProjectiles = 1024
	})
	for i := 0; i < players; i++ {
		if _, err := w.AddPlayer(fmt.Sprintf("Player%d", i), ai, ""); err != nil {
			b.Fatal(err)
		}
		if err := w.Equip(i, WeaponMinigun); err != nil {
			b.Fatal(err)
		}
		_ = w.SetInput(i, InputState{Attack: true, Right: i%2 == 0, Left: i%2 == 1})
	}
	w.StartMatch()
	w.Tick()
	return w, clock
}

// -----------------------------------------------------------------------------
// WORLD TICK BENCHMARKS
// -----------------------------------------------------------------------------

func BenchmarkWorldTick_2Players(b *testing.B)  { benchmarkWorldTick(b, 2, false) }
func BenchmarkWorldTick_8Players(b *testing.B)  { benchmarkWorldTick(b, 8, false) }
func BenchmarkWorldTick_32Players(b *testing.B) { benchmarkWorldTick(b, 32, false) }
func BenchmarkWorldTick_8Bots(b *testing.B)     { benchmarkWorldTick(b, 8, true) }

func benchmarkWorldTick(b *testing.B, players int, ai bool) {
	w, clock := benchWorld(b, players, ai)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		clock.Advance(time.Second / 60)
		w.Tick()
	}
}

// -----------------------------------------------------------------------------
// SNAPSHOT BENCHMARKS
// -----------------------------------------------------------------------------

func BenchmarkFillSnapshot_8Players(b *testing.B)  { benchmarkSnapshot(b, 8) }
func BenchmarkFillSnapshot_32Players(b *testing.B) { benchmarkSnapshot(b, 32) }

func benchmarkSnapshot(b *testing.B, players int) {
	w, clock := benchWorld(b, players, false)
	for i := 0; i < 10; i++ {
		clock.Advance(time.Second / 60)
		w.Tick()
	}
	pool := NewSnapshotPool(config.ResourceLimits{MaxPlayers: players, MaxProjectiles: 1024, MaxPickups: 32})

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		snap := pool.AcquireWrite(clock.Now())
		w.FillSnapshot(snap)
		pool.PublishWrite()
	}
}

// -----------------------------------------------------------------------------
// ENGINE STEP BENCHMARK
// -----------------------------------------------------------------------------

func BenchmarkEngineStep_8Bots(b *testing.B) {
	clock := NewManualClock(epoch)
	e := NewEngine(EngineOptions{
		Settings: config.DefaultGame(),
		Limits:   config.DefaultLimits(),
		Level:    testLevel(),
		Clock:    clock,
	})
	for i := 0; i < 8; i++ {
		if _, err := e.AddPlayer(fmt.Sprintf("Bot%d", i), true, "hard"); err != nil {
			b.Fatal(err)
		}
	}
	e.StartMatch()

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		clock.Advance(time.Second / 60)
		e.Step()
	}
}

func BenchmarkInboxPushDrain(b *testing.B) {
	q := NewInbox[InputCommand](1024)
	cmd := InputCommand{Player: 1, State: InputState{Right: true}}

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		q.TryPush(cmd)
		if i%64 == 63 {
			q.Drain(func(InputCommand) {})
		}
	}
}
