package game

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arena-brawl/internal/config"
	"arena-brawl/internal/game/geom"
)

func TestNewWorldRequiresLevel(t *testing.T) {
	assert.Panics(t, func() { NewWorld(WorldOptions{Settings: config.DefaultGame()}) })
}

func TestAddPlayerUsesSpawnsAndLimit(t *testing.T) {
	w, _ := newTestWorld(t, func(o *WorldOptions) { o.Limits.MaxPlayers = 2 })

	p0, err := w.AddPlayer("ann", false, "")
	require.NoError(t, err)
	p1, err := w.AddPlayer("bob", true, "hard")
	require.NoError(t, err)

	assert.Equal(t, 0, p0.Slot)
	assert.Equal(t, geom.V(-15, 1, 0), p0.Position())
	assert.Equal(t, geom.V(15, 1, 0), p1.Position())
	assert.True(t, p1.AI)
	require.NotNil(t, w.AI().Controller(1))
	assert.Equal(t, "hard", w.AI().Controller(1).Difficulty())

	_, err = w.AddPlayer("cat", false, "")
	assert.True(t, errors.Is(err, ErrPlayerLimit))
}

func TestRemovePlayer(t *testing.T) {
	w, _ := newTestWorld(t)
	ps := addPlayers(t, w, 2)
	w.Trophy().Position = ps[1].Position()
	require.True(t, w.StartMatch())
	w.Tick()
	require.Equal(t, 1, w.Trophy().Carrier)

	require.NoError(t, w.RemovePlayer(1))
	assert.Nil(t, w.Player(1))
	assert.Len(t, w.Players(), 1)
	assert.False(t, w.Trophy().Carried(), "the trophy stays behind")

	err := w.RemovePlayer(1)
	assert.ErrorIs(t, err, ErrUnknownPlayer)
	assert.ErrorIs(t, w.SetInput(7, InputState{}), ErrUnknownPlayer)
	assert.ErrorIs(t, w.Equip(7, WeaponGun), ErrUnknownPlayer)

	// Slots are never reused.
	p, err := w.AddPlayer("late", false, "")
	require.NoError(t, err)
	assert.Equal(t, 2, p.Slot)
}

func TestTickClampsDelta(t *testing.T) {
	w, clock := newTestWorld(t)

	res := w.Tick()
	assert.Equal(t, uint64(1), res.Tick)
	assert.Zero(t, res.DT, "first tick has no elapsed time")

	res = step(w, clock, 20*time.Millisecond)
	assert.Equal(t, 20*time.Millisecond, res.DT)

	res = step(w, clock, time.Second)
	assert.Equal(t, MaxDelta, res.DT)
	assert.Equal(t, uint64(3), w.TickCount())
}

// TestWaitingMatchMovesButDoesNotFire tests that the lobby runs movement only.
func TestWaitingMatchMovesButDoesNotFire(t *testing.T) {
	w, clock := newTestWorld(t)
	ps := addPlayers(t, w, 1)
	require.NoError(t, w.Equip(0, WeaponGun))
	w.Tick()

	require.NoError(t, w.SetInput(0, InputState{Right: true, Attack: true, Jump: true}))
	res := step(w, clock, 20*time.Millisecond)

	assert.Greater(t, ps[0].Position().X, -15.0)
	assert.Equal(t, 1, countEvents(res.Events, EventJumped))
	assert.Zero(t, countEvents(res.Events, EventFired))
	assert.Empty(t, w.Combat().Projectiles())
}

func TestAttackFiresOnPress(t *testing.T) {
	w, clock := newTestWorld(t)
	addPlayers(t, w, 1)
	require.NoError(t, w.Equip(0, WeaponGun))
	require.True(t, w.StartMatch())
	w.Tick()

	require.NoError(t, w.SetInput(0, InputState{Attack: true}))
	res := step(w, clock, 10*time.Millisecond)
	assert.Equal(t, 1, countEvents(res.Events, EventFired))

	res = step(w, clock, 600*time.Millisecond)
	assert.Zero(t, countEvents(res.Events, EventFired), "holding a gun does not refire")

	require.NoError(t, w.SetInput(0, InputState{}))
	step(w, clock, 10*time.Millisecond)
	require.NoError(t, w.SetInput(0, InputState{Attack: true}))
	res = step(w, clock, 10*time.Millisecond)
	assert.Equal(t, 1, countEvents(res.Events, EventFired))
}

func TestAutomaticWeaponFiresWhileHeld(t *testing.T) {
	w, clock := newTestWorld(t)
	addPlayers(t, w, 1)
	require.NoError(t, w.Equip(0, WeaponMinigun))
	require.True(t, w.StartMatch())
	w.Tick()
	require.NoError(t, w.SetInput(0, InputState{Attack: true}))

	fired := countEvents(step(w, clock, 10*time.Millisecond).Events, EventFired)
	for i := 0; i < 5; i++ {
		fired += countEvents(step(w, clock, 50*time.Millisecond).Events, EventFired)
	}
	// Shots at +10, +110 and +210 ms with a 100 ms cooldown.
	assert.Equal(t, 3, fired)
}

func TestPausedWorldIsFrozen(t *testing.T) {
	w, clock := newTestWorld(t)
	ps := addPlayers(t, w, 1)
	require.True(t, w.StartMatch())
	w.Tick()
	require.True(t, w.Pause())

	require.NoError(t, w.SetInput(0, InputState{Right: true}))
	res := step(w, clock, 50*time.Millisecond)
	assert.Equal(t, -15.0, ps[0].Position().X)
	assert.Equal(t, uint64(2), res.Tick)

	require.True(t, w.Resume())
	step(w, clock, 50*time.Millisecond)
	assert.Greater(t, ps[0].Position().X, -15.0)
}

func TestEliminationDrawInTick(t *testing.T) {
	w, clock := newTestWorld(t, withSettings(func(s *config.GameSettings) {
		s.Match.VictoryConditions = []string{config.VictoryElimination}
	}))
	ps := addPlayers(t, w, 2)
	require.True(t, w.StartMatch())
	w.Tick()

	w.Combat().Kill(ps[0], NoPlayer)
	w.Combat().Kill(ps[1], NoPlayer)
	res := step(w, clock, 10*time.Millisecond)

	require.NotNil(t, res.Winner)
	assert.Equal(t, NoPlayer, res.Winner.Index)
	assert.Equal(t, ReasonDraw, res.Winner.Reason)
	assert.Equal(t, 1, countEvents(res.Events, EventVictory))
	assert.Equal(t, MatchEnded, w.Rules().State())

	// Nothing respawns once the match is over.
	for i := 0; i < 120; i++ {
		res = step(w, clock, 50*time.Millisecond)
		assert.Nil(t, res.Winner)
	}
	assert.False(t, ps[0].Alive())
}

// TestKillDropsLoot tests that a kill hands over the trophy bounty and
// leaves the weapon on the ground.
func TestKillDropsLoot(t *testing.T) {
	w, clock := newTestWorld(t)
	ps := addPlayers(t, w, 2)
	require.NoError(t, w.Equip(0, WeaponGun))
	require.True(t, w.StartMatch())
	w.Trophy().Position = ps[0].Position()

	res := w.Tick()
	require.Equal(t, 0, w.Trophy().Carrier)
	assert.Equal(t, 1, countEvents(res.Events, EventTrophyPickedUp))
	assert.Equal(t, 1000.0, ps[0].Money)

	out := w.Combat().ApplyDamage(ps[0], 1000, 1)
	require.True(t, out.Lethal)

	assert.False(t, w.Trophy().Carried())
	assert.False(t, ps[0].HasTrophy)
	assert.Equal(t, ps[0].Position(), w.Trophy().Position)
	assert.Equal(t, 2000.0, ps[1].Money)
	require.Len(t, w.Pickups().Dropped(), 1)
	assert.Equal(t, WeaponGun, w.Pickups().Dropped()[0].Weapon.Kind)

	step(w, clock, 10*time.Millisecond)
	assert.False(t, w.Trophy().Carried(), "the dead cannot pick it back up")
	assert.Equal(t, 1, w.Rules().Kills(1))
}

func TestRespawnAfterDelay(t *testing.T) {
	w, clock := newTestWorld(t)
	ps := addPlayers(t, w, 2)
	require.True(t, w.StartMatch())
	w.Tick()

	ps[0].kin.Position = geom.V(3, 1, 0)
	w.Combat().Kill(ps[0], 1)

	respawned := 0
	for i := 0; i < 101; i++ {
		respawned += countEvents(step(w, clock, 50*time.Millisecond).Events, EventRespawned)
	}

	assert.Equal(t, 1, respawned)
	assert.True(t, ps[0].Alive())
	assert.Equal(t, geom.V(-15, 1, 0), ps[0].Position())
	assert.Equal(t, 100.0, ps[0].vit.Health)
}

func TestMoneyVictoryFromTrophyIncome(t *testing.T) {
	w, clock := newTestWorld(t, withSettings(func(s *config.GameSettings) {
		s.Match.WinMoney = 1100
	}))
	ps := addPlayers(t, w, 2)
	require.True(t, w.StartMatch())
	w.Trophy().Position = ps[1].Position()
	w.Tick()

	var winner *Winner
	for i := 0; i < 40 && winner == nil; i++ {
		winner = step(w, clock, 50*time.Millisecond).Winner
	}
	require.NotNil(t, winner)
	assert.Equal(t, 1, winner.Index)
	assert.Equal(t, ReasonMoney, winner.Reason)
}

func TestResetWorld(t *testing.T) {
	w, clock := newTestWorld(t)
	ps := addPlayers(t, w, 2)
	require.NoError(t, w.Equip(0, WeaponGun))
	require.True(t, w.StartMatch())
	ps[0].Money = 500
	w.Combat().Kill(ps[1], 0)
	id := w.Rules().ID

	w.EndMatch()
	w.Reset()
	step(w, clock, 10*time.Millisecond)

	assert.Equal(t, MatchWaiting, w.Rules().State())
	assert.NotEqual(t, id, w.Rules().ID)
	assert.Zero(t, ps[0].Money)
	assert.Nil(t, ps[0].Weapon)
	assert.True(t, ps[1].Alive())
	assert.Empty(t, w.Pickups().Dropped())
	assert.Equal(t, testLevel().Spawns(SpawnObjective)[0], w.Trophy().Position)
}

func TestAIPlayerActsInWorld(t *testing.T) {
	w, clock := newTestWorld(t)
	bot, err := w.AddPlayer("bot", true, "hard")
	require.NoError(t, err)
	require.True(t, w.StartMatch())
	w.Tick()

	for i := 0; i < 30; i++ {
		step(w, clock, 50*time.Millisecond)
	}

	// The only weapon spawn is to the left of the bot.
	assert.Less(t, bot.Position().X, -16.0)
	assert.Equal(t, TargetObjective, w.AI().Controller(bot.Slot).Target().Kind)
}

func TestSnapshot(t *testing.T) {
	w, clock := newTestWorld(t)
	ps := addPlayers(t, w, 2)
	require.NoError(t, w.Equip(0, WeaponBow))
	require.True(t, w.StartMatch())
	w.Tick()
	w.Combat().ApplyDamage(ps[1], 10, 0)
	w.Combat().Kill(ps[0], NoPlayer)
	clock.Advance(50 * time.Millisecond)

	snap := w.Snapshot()
	assert.Equal(t, w.Rules().ID, snap.MatchID)
	assert.Equal(t, MatchPlaying, snap.State)
	assert.Equal(t, 2, snap.PlayerCount)
	assert.Equal(t, 1, snap.AliveCount)
	require.Len(t, snap.Players, 2)

	assert.True(t, snap.Players[0].Dead)
	assert.Equal(t, WeaponNone, snap.Players[0].Weapon, "weapon dropped on death")
	assert.True(t, snap.Players[1].Hurt)
	assert.InDelta(t, geom.EaseOutQuad(0.75), snap.Players[1].HurtAlpha, 1e-9)
	assert.True(t, snap.Players[1].Invulnerable)

	require.NotNil(t, snap.Trophy)
	assert.Equal(t, NoPlayer, snap.Trophy.Carrier)

	var spawned, dropped int
	for _, pk := range snap.Pickups {
		if pk.Dropped {
			dropped++
		} else {
			spawned++
		}
	}
	assert.Equal(t, 1, spawned)
	assert.Equal(t, 1, dropped)

	clone := snap.Clone()
	clone.Players[0].Name = "changed"
	assert.NotEqual(t, "changed", snap.Players[0].Name)
}
