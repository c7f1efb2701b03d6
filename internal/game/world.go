package game

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"arena-brawl/internal/config"
	"arena-brawl/internal/game/geom"
)

var (
	// ErrPlayerLimit is returned when a match is full.
	ErrPlayerLimit = errors.New("player limit reached")
	// ErrUnknownPlayer is returned for slots that are not in the match.
	ErrUnknownPlayer = errors.New("unknown player")
)

// MaxDelta caps the simulated time of a single tick.
const MaxDelta = 50 * time.Millisecond

// WorldOptions configures a World. Zero Clock means SystemClock.
type WorldOptions struct {
	Settings config.GameSettings
	Limits   config.ResourceLimits
	Level    Level
	Clock    Clock
	Seed     int64
}

// TickResult is what one tick produced. Events replace per-frame flags:
// observers read them once, after the tick.
type TickResult struct {
	Tick   uint64
	DT     time.Duration
	Events []Event
	Winner *Winner // set on the tick a winner was declared
}

// World is one match: players, projectiles, pickups, AI and rules stepped
// together by Tick. It holds no global state, so any number can coexist.
// Not safe for concurrent use; Engine serializes access.
type World struct {
	settings config.GameSettings
	limits   config.ResourceLimits
	level    Level
	clock    Clock
	rng      *rand.Rand

	armory  *Armory
	rules   *MatchRules
	combat  *Combat
	pickups *Pickups
	trophy  *Trophy // nil when disabled or the level has no objective spawn
	ai      *AIManager

	events   EventBuffer
	players  []*Player // slot order
	nextSlot int

	tick     uint64
	lastTick time.Time

	objectives []Objective // rebuilt every tick for the AI
}

// NewWorld builds a match in the waiting state. It panics on a nil level.
func NewWorld(opts WorldOptions) *World {
	if opts.Level == nil {
		panic("game: NewWorld requires a level")
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock
	}
	if opts.Limits.MaxPlayers <= 0 {
		opts.Limits = config.DefaultLimits()
	}

	w := &World{
		settings: opts.Settings,
		limits:   opts.Limits,
		level:    opts.Level,
		clock:    opts.Clock,
		rng:      rand.New(rand.NewSource(opts.Seed)),
		players:  make([]*Player, 0, opts.Limits.MaxPlayers),
	}

	w.armory = NewArmory(opts.Settings)
	w.rules = NewMatchRules(opts.Settings.Match, opts.Settings.Combat.RespawnDelay.Duration(), w.clock)
	w.combat = NewCombat(w.armory, opts.Settings.Combat, w.rules, opts.Level.Bounds(), opts.Limits.MaxProjectiles, &w.events, w.clock, w.rng)
	w.pickups = NewPickups(w.armory, opts.Settings.Pickups, opts.Level.Spawns(SpawnWeapon), opts.Limits.MaxPickups, w.clock, w.rng, &w.events)
	w.ai = NewAIManager(opts.Settings.AI, w.rng)

	if objs := opts.Level.Spawns(SpawnObjective); opts.Settings.Trophy.Enabled && len(objs) > 0 {
		w.trophy = NewTrophy(opts.Settings.Trophy, objs[0], &w.events)
	}

	w.combat.OnDeath(w.dropLoot)
	return w
}

// dropLoot runs before a player is marked dead: the trophy drops where it
// died and pays the killer, the weapon becomes a world pickup.
func (w *World) dropLoot(victim Combatant, killer int) {
	p, ok := victim.(*Player)
	if !ok {
		return
	}
	if w.trophy != nil {
		w.trophy.Drop(p, w.Player(killer))
	}
	w.pickups.Drop(p)
}

// =============================================================================
// ACCESSORS
// =============================================================================

func (w *World) Rules() *MatchRules { return w.rules }
func (w *World) Combat() *Combat { return w.combat }
func (w *World) Pickups() *Pickups { return w.pickups }
func (w *World) Trophy() *Trophy { return w.trophy }
func (w *World) AI() *AIManager { return w.ai }
func (w *World) Armory() *Armory { return w.armory }
func (w *World) Level() Level { return w.level }
func (w *World) Settings() config.GameSettings { return w.settings }
func (w *World) Clock() Clock { return w.clock }
func (w *World) TickCount() uint64 { return w.tick }

// Players returns the players in slot order. Read-only.
func (w *World) Players() []*Player { return w.players }

// Player returns the player in slot, nil if there is none.
func (w *World) Player(slot int) *Player {
	for _, p := range w.players {
		if p.Slot == slot {
			return p
		}
	}
	return nil
}

// =============================================================================
// PARTICIPANTS
// =============================================================================

// AddPlayer joins a new participant at its spawn point. AI players get a
// controller with the named difficulty ("" for the default).
func (w *World) AddPlayer(name string, ai bool, difficulty string) (*Player, error) {
	if len(w.players) >= w.limits.MaxPlayers {
		return nil, fmt.Errorf("add %q: %w", name, ErrPlayerLimit)
	}
	slot := w.nextSlot
	w.nextSlot++

	spawn := SpawnFor(slot, w.level.Spawns(SpawnPlayer), geom.Zero)
	p := NewPlayer(slot, name, spawn, w.settings.Combat.MaxHealth)
	p.controller = NewCharacterController(p, w.level, w.settings.Movement, w.clock, &w.events, slot, spawn)
	w.players = append(w.players, p)

	if ai {
		if difficulty == "" {
			difficulty = w.settings.AI.DefaultDifficulty
		}
		w.ai.Add(p, difficulty)
	}

	emit(&w.events, Event{Kind: EventPlayerJoined, Player: slot, Other: NoPlayer, Position: spawn, Reason: name})
	return p, nil
}

// RemovePlayer takes a participant out of the match. A carried trophy
// drops where the player stood; the weapon leaves with the player.
func (w *World) RemovePlayer(slot int) error {
	for i, p := range w.players {
		if p.Slot != slot {
			continue
		}
		if w.trophy != nil {
			w.trophy.Drop(p, nil)
		}
		w.ai.Remove(slot)
		w.players = append(w.players[:i], w.players[i+1:]...)
		emit(&w.events, Event{Kind: EventPlayerLeft, Player: slot, Other: NoPlayer, Position: p.kin.Position})
		return nil
	}
	return fmt.Errorf("remove slot %d: %w", slot, ErrUnknownPlayer)
}

// SetInput stores the input state a player holds from the next tick on.
func (w *World) SetInput(slot int, state InputState) error {
	p := w.Player(slot)
	if p == nil {
		return fmt.Errorf("input for slot %d: %w", slot, ErrUnknownPlayer)
	}
	p.input = state
	return nil
}

// Equip gives a player a fresh weapon of kind.
func (w *World) Equip(slot int, kind WeaponKind) error {
	p := w.Player(slot)
	if p == nil {
		return fmt.Errorf("equip slot %d: %w", slot, ErrUnknownPlayer)
	}
	p.Unequip()
	p.Equip(w.armory.NewWeapon(kind))
	return nil
}

// =============================================================================
// MATCH CONTROL
// =============================================================================

func (w *World) emitState() {
	emit(&w.events, Event{Kind: EventMatchState, Player: NoPlayer, Other: NoPlayer, Reason: w.rules.State().String()})
}

// StartMatch moves a waiting match to playing.
func (w *World) StartMatch() bool {
	if !w.rules.StartMatch(w.players) {
		return false
	}
	w.emitState()
	return true
}

// Pause freezes the simulation.
func (w *World) Pause() bool {
	if !w.rules.Pause() {
		return false
	}
	w.emitState()
	return true
}

// Resume continues a paused match.
func (w *World) Resume() bool {
	if !w.rules.Resume() {
		return false
	}
	w.emitState()
	return true
}

// EndMatch stops the match without a winner.
func (w *World) EndMatch() *Winner {
	winner := w.rules.EndMatch()
	if winner != nil {
		emit(&w.events, Event{Kind: EventVictory, Player: NoPlayer, Other: NoPlayer, Reason: winner.Reason})
		w.emitState()
	}
	return winner
}

// Reset prepares a rematch with the same participants: everyone back at
// their spawn with full health, no money and no weapon.
func (w *World) Reset() {
	w.rules.Reset()
	w.combat.ClearProjectiles()
	w.pickups.Clear()
	if w.trophy != nil {
		w.trophy.Reset(w.level.Spawns(SpawnObjective)[0])
	}
	spawns := w.level.Spawns(SpawnPlayer)
	for _, p := range w.players {
		p.Unequip()
		p.Money = 0
		p.HasTrophy = false
		p.input, p.prevInput = InputState{}, InputState{}
		Respawn(p, SpawnFor(p.Slot, spawns, p.Spawn))
	}
	w.emitState()
}

// MatchStats reports per-player standings.
func (w *World) MatchStats() MatchStats {
	return w.rules.MatchStats(w.players)
}

// Standings returns leaderboard rows for every player.
func (w *World) Standings() []LeaderboardEntry {
	out := make([]LeaderboardEntry, len(w.players))
	for i, p := range w.players {
		out[i] = LeaderboardEntry{
			Slot:   p.Slot,
			Name:   p.Name,
			Money:  p.Money,
			Kills:  w.rules.Kills(p.Slot),
			Deaths: w.rules.Deaths(p.Slot),
		}
	}
	return out
}

// =============================================================================
// TICK
// =============================================================================

// Tick advances the match by the wall time since the previous tick, clamped
// to MaxDelta. Phases run in a fixed order: input, movement, combat, AI,
// victory and respawns. Paused matches only advance the tick clock; waiting
// and ended matches run input and movement only.
func (w *World) Tick() TickResult {
	now := w.clock.Now()
	var delta time.Duration
	if !w.lastTick.IsZero() {
		delta = now.Sub(w.lastTick)
	}
	w.lastTick = now
	if delta < 0 {
		delta = 0
	}
	if delta > MaxDelta {
		delta = MaxDelta
	}
	dt := delta.Seconds()

	w.tick++
	w.events.Begin(w.tick, now)
	res := TickResult{Tick: w.tick, DT: delta}

	state := w.rules.State()
	if state == MatchPaused {
		res.Events = w.events.Drain()
		return res
	}
	playing := state == MatchPlaying

	w.resolveInput(playing)

	for _, p := range w.players {
		p.controller.Update(dt)
	}

	if playing {
		w.combat.UpdateProjectiles(dt, w.players, w.level.Bounds())
		for _, p := range w.players {
			w.combat.ExpireInvulnerability(p)
			w.combat.Heal(p, w.settings.Healing, dt)
		}
		if w.trophy != nil {
			w.trophy.Update(w.players, w.Player, dt)
		}
		w.pickups.Update(w.players)

		w.buildObjectives()
		w.ai.Update(now, w.players, w.objectivesFor, w.actorFor)

		if winner := w.rules.CheckVictory(w.players); winner != nil {
			res.Winner = winner
			emit(&w.events, Event{Kind: EventVictory, Player: winner.Index, Other: NoPlayer, Amount: winner.Stats.Money, Reason: winner.Reason})
			w.emitState()
		} else {
			for _, p := range w.rules.UpdateRespawns(w.Player, w.level.Spawns(SpawnPlayer)) {
				emit(&w.events, Event{Kind: EventRespawned, Player: p.Slot, Other: NoPlayer, Position: p.kin.Position})
			}
		}
	}

	res.Events = w.events.Drain()
	return res
}

// resolveInput applies held and pressed input. Jumping works in every
// running state; firing only while playing. Automatic weapons fire while
// attack is held, others on the press edge.
func (w *World) resolveInput(playing bool) {
	for _, p := range w.players {
		edges := p.input.Pressed(p.prevInput)
		p.prevInput = p.input

		dir := p.input.Direction()
		if ai := w.ai.Controller(p.Slot); ai != nil {
			dir = ai.Axis()
		}
		p.controller.SetInput(dir)

		if !p.Alive() {
			continue
		}
		if edges.Jump {
			p.controller.Jump()
		}
		if !playing || p.Weapon == nil {
			continue
		}
		if edges.Attack || (p.input.Attack && p.Weapon.Spec().Automatic) {
			w.combat.Fire(p, geom.Zero)
		}
	}
}

func (w *World) buildObjectives() {
	w.objectives = w.objectives[:0]
	if w.trophy != nil && !w.trophy.Carried() {
		w.objectives = append(w.objectives, Objective{Kind: ObjectiveMoney, Position: w.trophy.Position})
	}
	for _, s := range w.pickups.Spawns() {
		if s.Weapon != nil {
			w.objectives = append(w.objectives, Objective{Kind: ObjectiveWeapon, Position: s.Position})
		}
	}
	for _, d := range w.pickups.Dropped() {
		w.objectives = append(w.objectives, Objective{Kind: ObjectiveWeapon, Position: d.Position})
	}
}

func (w *World) objectivesFor(*Player) []Objective { return w.objectives }

func (w *World) actorFor(p *Player) AIActor { return worldActor{w: w, p: p} }

// worldActor carries out AI decisions for one player.
type worldActor struct {
	w *World
	p *Player
}

func (a worldActor) Jump() bool { return a.p.controller.Jump() }

func (a worldActor) Attack(aim geom.Vec3) bool { return a.w.combat.FireAt(a.p, aim) }

// =============================================================================
// SNAPSHOT
// =============================================================================

// Snapshot returns a fresh render snapshot.
func (w *World) Snapshot() *GameSnapshot {
	snap := &GameSnapshot{Timestamp: w.clock.Now()}
	w.FillSnapshot(snap)
	return snap
}

// FillSnapshot writes the render view of the current state into snap,
// reusing its slices.
func (w *World) FillSnapshot(snap *GameSnapshot) {
	now := w.clock.Now()
	snap.reset()
	snap.TickNumber = w.tick
	snap.MatchID = w.rules.ID
	snap.State = w.rules.State()
	snap.Elapsed = w.rules.Elapsed()
	snap.Remaining = w.rules.Remaining()
	snap.Winner = w.rules.Winner()
	hurt := w.settings.Combat.HurtDuration.Duration()

	for _, p := range w.players {
		ps := PlayerSnapshot{
			Slot:         p.Slot,
			Name:         p.Name,
			AI:           p.AI,
			Position:     p.kin.Position,
			Velocity:     p.kin.Velocity,
			Facing:       p.kin.Facing,
			Grounded:     p.kin.Grounded,
			Health:       p.vit.Health,
			MaxHealth:    p.vit.MaxHealth,
			Money:        p.Money,
			Kills:        w.rules.Kills(p.Slot),
			Deaths:       w.rules.Deaths(p.Slot),
			Dead:         p.vit.Dead,
			Invulnerable: p.vit.Invulnerable,
			HasTrophy:    p.HasTrophy,
		}
		if p.Weapon != nil {
			ps.Weapon = p.Weapon.Kind
			ps.Ammo = p.Weapon.Ammo
		}
		if a := hurtAlpha(&p.vit, now, hurt); a > 0 {
			ps.Hurt = true
			ps.HurtAlpha = a
		}
		snap.Players = append(snap.Players, ps)
		snap.TotalKills += ps.Kills
		if !ps.Dead {
			snap.AliveCount++
		}
	}
	snap.PlayerCount = len(w.players)

	for _, proj := range w.combat.Projectiles() {
		snap.Projectiles = append(snap.Projectiles, ProjectileSnapshot{
			ID:       proj.ID,
			Kind:     proj.Kind,
			Owner:    proj.Owner,
			Position: proj.Position,
			Velocity: proj.Velocity,
		})
	}

	for _, s := range w.pickups.Spawns() {
		if s.Weapon != nil {
			snap.Pickups = append(snap.Pickups, PickupSnapshot{Weapon: s.Weapon.Kind, Position: s.Position})
		}
	}
	for _, d := range w.pickups.Dropped() {
		snap.Pickups = append(snap.Pickups, PickupSnapshot{Weapon: d.Weapon.Kind, Position: d.Position, Dropped: true})
	}

	if w.trophy != nil {
		snap.Trophy = &TrophySnapshot{Position: w.trophy.Position, Carrier: w.trophy.Carrier}
	}
}
