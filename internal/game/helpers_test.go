package game

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"arena-brawl/internal/config"
	"arena-brawl/internal/game/geom"
)

// testLevel is a flat floor with its top at y = 0, so standing bodies rest
// at y = 1. Player spawns sit at x = ±15 and ±30; the weapon spawn and the
// trophy spawn are far from all of them.
func testLevel() *TileLevel {
	l := NewTileLevel(Bounds{MinX: -40, MaxX: 40, MinY: -20, MaxY: 40})
	l.AddTile(geom.AABB{Min: geom.V(-50, -1, -1), Max: geom.V(50, 0, 1)}, true)
	for _, x := range []float64{-15, 15, -30, 30} {
		l.AddSpawn(SpawnPlayer, geom.V(x, 1, 0))
	}
	l.AddSpawn(SpawnWeapon, geom.V(-36, 1, 0))
	l.AddSpawn(SpawnObjective, geom.V(36, 1, 0))
	return l
}

func newTestWorld(t testing.TB, mutate ...func(*WorldOptions)) (*World, *ManualClock) {
	t.Helper()
	clock := NewManualClock(epoch)
	opts := WorldOptions{
		Settings: config.DefaultGame(),
		Limits:   config.DefaultLimits(),
		Level:    testLevel(),
		Clock:    clock,
		Seed:     1,
	}
	for _, m := range mutate {
		m(&opts)
	}
	return NewWorld(opts), clock
}

func addPlayers(t testing.TB, w *World, n int) []*Player {
	t.Helper()
	out := make([]*Player, n)
	for i := range out {
		p, err := w.AddPlayer("player", false, "")
		require.NoError(t, err)
		out[i] = p
	}
	return out
}

// step advances the clock by d and runs one tick.
func step(w *World, clock *ManualClock, d time.Duration) TickResult {
	clock.Advance(d)
	return w.Tick()
}

func countEvents(events []Event, kind EventKind) int {
	n := 0
	for _, e := range events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

func withSettings(fn func(*config.GameSettings)) func(*WorldOptions) {
	return func(o *WorldOptions) { fn(&o.Settings) }
}
