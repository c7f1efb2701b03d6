package game

import (
	"math/rand"
	"time"

	"arena-brawl/internal/config"
	"arena-brawl/internal/game/geom"
	"arena-brawl/internal/game/spatial"
)

const (
	// muzzleOffset is how far in front of the shooter projectiles spawn.
	muzzleOffset = 0.6
	// projectileMargin is how far past the level bounds a projectile may
	// travel before it is removed.
	projectileMargin = 5.0
	// gridCellSize must be at least the hit radius.
	gridCellSize = 4.0
)

// DamageOutcome reports what ApplyDamage did.
type DamageOutcome struct {
	Applied bool
	Lethal  bool
	Health  float64 // target health afterwards
}

// DeathHook runs when a combatant is about to be marked dead, before its
// state changes, so held items can drop at the death position.
type DeathHook func(victim Combatant, killer int)

// Combat owns damage, death and the active projectile set.
// Server-authoritative: clients only ever send input.
type Combat struct {
	armory   *Armory
	settings config.CombatSettings
	rules    *MatchRules
	events   EventSink
	clock    Clock
	rng      *rand.Rand

	onDeath DeathHook

	projectiles    []*Projectile
	maxProjectiles int
	nextID         uint64

	grid    *spatial.SpatialGrid
	targets []*Player // index space of grid entries
}

// NewCombat creates the combat system for one match.
func NewCombat(armory *Armory, settings config.CombatSettings, rules *MatchRules, bounds Bounds, maxProjectiles int, events EventSink, clock Clock, rng *rand.Rand) *Combat {
	width := bounds.MaxX - bounds.MinX + 2*projectileMargin
	height := bounds.MaxY - bounds.MinY + 2*projectileMargin
	return &Combat{
		armory:         armory,
		settings:       settings,
		rules:          rules,
		events:         events,
		clock:          clock,
		rng:            rng,
		projectiles:    make([]*Projectile, 0, maxProjectiles),
		maxProjectiles: maxProjectiles,
		grid: spatial.NewSpatialGrid(
			bounds.MinX-projectileMargin, bounds.MinY-projectileMargin,
			width, height, gridCellSize, 64,
		),
	}
}

// OnDeath installs the hook run before a combatant is marked dead.
func (c *Combat) OnDeath(h DeathHook) { c.onDeath = h }

// Projectiles returns the active projectiles. Read-only.
func (c *Combat) Projectiles() []*Projectile { return c.projectiles }

// =============================================================================
// DAMAGE
// =============================================================================

// ApplyDamage hits target for amount. Dead or invulnerable targets are
// skipped. A lethal hit kills; a non-lethal one opens the invulnerability
// window and restarts the hurt timer. attacker may be NoPlayer.
func (c *Combat) ApplyDamage(target Combatant, amount float64, attacker int) DamageOutcome {
	v := target.Vitals()
	now := c.clock.Now()

	if v.Dead || amount <= 0 {
		return DamageOutcome{Health: v.Health}
	}
	if v.Invulnerable {
		if now.Before(v.InvulnerableUntil) {
			return DamageOutcome{Health: v.Health}
		}
		v.Invulnerable = false
	}

	v.setHealth(v.Health - amount)
	v.LastDamaged = now
	if p, ok := target.(*Player); ok && attacker != NoPlayer && attacker != p.Slot {
		p.LastAttacker = attacker
	}

	emit(c.events, Event{
		Kind:     EventDamaged,
		Player:   target.ID(),
		Other:    attacker,
		Amount:   amount,
		Position: target.Kinematics().Position,
	})

	if v.Health <= 0 {
		c.Kill(target, attacker)
		return DamageOutcome{Applied: true, Lethal: true}
	}

	if window := c.settings.Invulnerability.Duration(); window > 0 {
		v.Invulnerable = true
		v.InvulnerableUntil = now.Add(window)
	}
	v.HurtUntil = now.Add(c.settings.HurtDuration.Duration())
	return DamageOutcome{Applied: true, Health: v.Health}
}

// Kill marks victim dead and queues its respawn. No-op if already dead.
func (c *Combat) Kill(victim Combatant, killer int) bool {
	if victim.Vitals().Dead {
		return false
	}
	if c.onDeath != nil {
		c.onDeath(victim, killer)
	}
	pos := victim.Kinematics().Position
	if !c.rules.HandlePlayerDeath(victim, killer) {
		return false
	}
	emit(c.events, Event{
		Kind:     EventEliminated,
		Player:   victim.ID(),
		Other:    killer,
		Position: pos,
	})
	return true
}

// ExpireInvulnerability clears windows that ended at or before now.
func (c *Combat) ExpireInvulnerability(target Combatant) {
	v := target.Vitals()
	if v.Invulnerable && !c.clock.Now().Before(v.InvulnerableUntil) {
		v.Invulnerable = false
		v.InvulnerableUntil = time.Time{}
	}
}

// Respawn revives c at pos with full health and no velocity.
func Respawn(c Combatant, pos geom.Vec3) {
	v := c.Vitals()
	v.Dead = false
	v.Health = v.MaxHealth
	v.Invulnerable = false
	v.InvulnerableUntil = time.Time{}
	v.HurtUntil = time.Time{}

	k := c.Kinematics()
	k.Position = pos
	k.Velocity = geom.Zero
	k.Grounded = true
	k.JumpBufferedAt = time.Time{}

	if p, ok := c.(*Player); ok {
		p.LastAttacker = NoPlayer
		if p.controller != nil {
			p.controller.SetInput(0)
		}
	}
}

// Heal regenerates living players that have not been hit for the healing
// cooldown.
func (c *Combat) Heal(p *Player, healing config.HealingSettings, dt float64) {
	v := p.Vitals()
	if v.Dead || v.Health >= v.MaxHealth || healing.AmountPerSec <= 0 {
		return
	}
	if !v.LastDamaged.IsZero() && c.clock.Now().Sub(v.LastDamaged) < healing.Cooldown.Duration() {
		return
	}
	v.setHealth(v.Health + healing.AmountPerSec*dt)
}

// =============================================================================
// FIRING
// =============================================================================

// Fire shoots p's weapon along dir. Recoil pushes the shooter opposite the
// shot. Returns false when the shot was rejected, including when the
// projectile set is full. Pellets beyond the cap are dropped and give no
// recoil.
func (c *Combat) Fire(p *Player, dir geom.Vec3) bool {
	if !p.Alive() || p.Weapon == nil {
		return false
	}
	if len(c.projectiles) >= c.maxProjectiles {
		return false
	}
	now := c.clock.Now()
	if dir.IsZero() {
		dir = p.AimDirection()
	}
	origin := p.kin.Position.Add(geom.V(geom.Sign(dir.X)*muzzleOffset, 0, 0))

	res, ok := p.Weapon.Fire(origin, dir, now, c.rng)
	if !ok {
		return false
	}

	recoil := res.Recoil
	added := 0
	for _, proj := range res.Projectiles {
		if len(c.projectiles) >= c.maxProjectiles {
			break
		}
		c.nextID++
		proj.ID = c.nextID
		c.projectiles = append(c.projectiles, proj)
		added++
	}
	if added < len(res.Projectiles) {
		recoil = geom.Vec3{}
		for _, proj := range res.Projectiles[:added] {
			recoil = recoil.Add(proj.Velocity.Normalize().Negate().Scale(proj.Impulse()))
		}
	}

	p.kin.Velocity = p.kin.Velocity.Add(recoil.Scale(c.settings.RecoilScale))
	if dir.X != 0 {
		p.kin.Facing = geom.Sign(dir.X)
	}

	emit(c.events, Event{
		Kind:     EventFired,
		Player:   p.Slot,
		Other:    NoPlayer,
		Weapon:   p.Weapon.Kind,
		Amount:   float64(added),
		Position: origin,
	})
	return true
}

// FireAt aims at target and shoots.
func (c *Combat) FireAt(p *Player, target geom.Vec3) bool {
	return c.Fire(p, target.Sub(p.kin.Position))
}

// =============================================================================
// PROJECTILES
// =============================================================================

// UpdateProjectiles moves every projectile, resolves hits against living
// players and removes spent, expired and out-of-bounds projectiles. Each
// projectile damages at most one player.
func (c *Combat) UpdateProjectiles(dt float64, players []*Player, bounds Bounds) {
	if len(c.projectiles) == 0 {
		return
	}
	now := c.clock.Now()

	c.grid.Clear()
	c.targets = c.targets[:0]
	for _, p := range players {
		if !p.Alive() {
			continue
		}
		c.grid.Insert(uint32(len(c.targets)), p.kin.Position.X, p.kin.Position.Y)
		c.targets = append(c.targets, p)
	}

	radius := c.settings.HitRadius
	live := c.projectiles[:0]
	for _, proj := range c.projectiles {
		proj.Update(dt)

		if !proj.Spent {
			for _, idx := range c.grid.QueryRadius(proj.Position.X, proj.Position.Y, radius) {
				target := c.targets[idx]
				if target.Slot == proj.Owner || !target.Alive() {
					continue
				}
				if !proj.Hits(target.kin.Position, radius) {
					continue
				}
				proj.Spent = true
				c.ApplyDamage(target, proj.Damage, proj.Owner)
				break
			}
		}

		if proj.Spent || proj.Expired(now) || !bounds.Contains(proj.Position, projectileMargin) {
			continue
		}
		live = append(live, proj)
	}
	for i := len(live); i < len(c.projectiles); i++ {
		c.projectiles[i] = nil
	}
	c.projectiles = live
}

// ClearProjectiles removes all projectiles.
func (c *Combat) ClearProjectiles() {
	for i := range c.projectiles {
		c.projectiles[i] = nil
	}
	c.projectiles = c.projectiles[:0]
}
