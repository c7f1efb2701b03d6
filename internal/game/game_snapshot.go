package game

import (
	"sync/atomic"
	"time"

	"arena-brawl/internal/config"
	"arena-brawl/internal/game/geom"
)

// PlayerSnapshot is an immutable copy of player state for rendering.
// Uses value types (not pointers) to ensure immutability.
type PlayerSnapshot struct {
	Slot      int        `json:"slot" msgpack:"slot"`
	Name      string     `json:"name" msgpack:"name"`
	AI        bool       `json:"ai" msgpack:"ai"`
	Position  geom.Vec3  `json:"position" msgpack:"position"`
	Velocity  geom.Vec3  `json:"velocity" msgpack:"velocity"`
	Facing    float64    `json:"facing" msgpack:"facing"`
	Grounded  bool       `json:"grounded" msgpack:"grounded"`
	Health    float64    `json:"health" msgpack:"health"`
	MaxHealth float64    `json:"maxHealth" msgpack:"maxHealth"`
	Money     float64    `json:"money" msgpack:"money"`
	Kills     int        `json:"kills" msgpack:"kills"`
	Deaths    int        `json:"deaths" msgpack:"deaths"`
	Weapon    WeaponKind `json:"weapon" msgpack:"weapon"`
	Ammo      int        `json:"ammo,omitempty" msgpack:"ammo,omitempty"`

	// Transient visual flags
	Dead         bool    `json:"dead" msgpack:"dead"`
	Invulnerable bool    `json:"invulnerable" msgpack:"invulnerable"`
	Hurt         bool    `json:"hurt" msgpack:"hurt"`
	HurtAlpha    float64 `json:"hurtAlpha,omitempty" msgpack:"hurtAlpha,omitempty"` // 1 just hit, fading to 0
	HasTrophy    bool    `json:"hasTrophy" msgpack:"hasTrophy"`
}

// ProjectileSnapshot is an immutable projectile for rendering.
type ProjectileSnapshot struct {
	ID       uint64         `json:"id" msgpack:"id"`
	Kind     ProjectileKind `json:"kind" msgpack:"kind"`
	Owner    int            `json:"owner" msgpack:"owner"`
	Position geom.Vec3      `json:"position" msgpack:"position"`
	Velocity geom.Vec3      `json:"velocity" msgpack:"velocity"`
}

// PickupSnapshot is a weapon lying in the world.
type PickupSnapshot struct {
	Weapon   WeaponKind `json:"weapon" msgpack:"weapon"`
	Position geom.Vec3  `json:"position" msgpack:"position"`
	Dropped  bool       `json:"dropped" msgpack:"dropped"`
}

// TrophySnapshot is the money objective.
type TrophySnapshot struct {
	Position geom.Vec3 `json:"position" msgpack:"position"`
	Carrier  int       `json:"carrier" msgpack:"carrier"`
}

// GameSnapshot is a complete immutable game state for rendering.
// Slices are pre-allocated to the resource limits.
type GameSnapshot struct {
	Sequence   uint64        `json:"sequence" msgpack:"sequence"`
	Timestamp  time.Time     `json:"timestamp" msgpack:"timestamp"`
	TickNumber uint64        `json:"tick" msgpack:"tick"`
	MatchID    string        `json:"matchId" msgpack:"matchId"`
	State      MatchState    `json:"state" msgpack:"state"`
	Elapsed    time.Duration `json:"elapsedNs" msgpack:"elapsedNs"`
	Remaining  time.Duration `json:"remainingNs,omitempty" msgpack:"remainingNs,omitempty"`

	Players     []PlayerSnapshot     `json:"players" msgpack:"players"`
	Projectiles []ProjectileSnapshot `json:"projectiles" msgpack:"projectiles"`
	Pickups     []PickupSnapshot     `json:"pickups" msgpack:"pickups"`
	Trophy      *TrophySnapshot      `json:"trophy,omitempty" msgpack:"trophy,omitempty"`
	Winner      *Winner              `json:"winner,omitempty" msgpack:"winner,omitempty"`

	// Aggregate stats
	PlayerCount int `json:"playerCount" msgpack:"playerCount"`
	AliveCount  int `json:"aliveCount" msgpack:"aliveCount"`
	TotalKills  int `json:"totalKills" msgpack:"totalKills"`
}

// reset empties s while keeping slice capacity.
func (s *GameSnapshot) reset() {
	s.Players = s.Players[:0]
	s.Projectiles = s.Projectiles[:0]
	s.Pickups = s.Pickups[:0]
	s.Trophy = nil
	s.Winner = nil
	s.PlayerCount, s.AliveCount, s.TotalKills = 0, 0, 0
}

// Clone returns a deep copy that does not share slices with s.
func (s *GameSnapshot) Clone() *GameSnapshot {
	c := *s
	c.Players = append([]PlayerSnapshot(nil), s.Players...)
	c.Projectiles = append([]ProjectileSnapshot(nil), s.Projectiles...)
	c.Pickups = append([]PickupSnapshot(nil), s.Pickups...)
	if s.Trophy != nil {
		t := *s.Trophy
		c.Trophy = &t
	}
	if s.Winner != nil {
		w := *s.Winner
		c.Winner = &w
	}
	return &c
}

// hurtAlpha fades the hurt flash out over its duration.
func hurtAlpha(v *Vitals, now time.Time, duration time.Duration) float64 {
	if duration <= 0 || !now.Before(v.HurtUntil) {
		return 0
	}
	remaining := float64(v.HurtUntil.Sub(now)) / float64(duration)
	return geom.EaseOutQuad(geom.Clamp(remaining, 0, 1))
}

// SnapshotPool pre-allocates snapshots to avoid GC pressure.
// Uses triple buffering: the tick goroutine writes one slot while readers
// see the last published one.
type SnapshotPool struct {
	snapshots [3]GameSnapshot
	limits    config.ResourceLimits
	writeIdx  uint32 // atomic - producer index
	readIdx   uint32 // atomic - consumer index
	sequence  uint64 // atomic - monotonic sequence
	published uint32 // atomic - set once the first snapshot is out
}

// NewSnapshotPool creates a pool with pre-allocated slices.
func NewSnapshotPool(limits config.ResourceLimits) *SnapshotPool {
	pool := &SnapshotPool{limits: limits}
	for i := range pool.snapshots {
		pool.snapshots[i] = GameSnapshot{
			Players:     make([]PlayerSnapshot, 0, limits.MaxPlayers),
			Projectiles: make([]ProjectileSnapshot, 0, limits.MaxProjectiles),
			Pickups:     make([]PickupSnapshot, 0, limits.MaxPickups+8),
		}
	}
	return pool
}

// AcquireWrite gets the next write slot (producer only, called from the
// tick goroutine). Slices are reset with capacity preserved.
func (p *SnapshotPool) AcquireWrite(now time.Time) *GameSnapshot {
	idx := atomic.AddUint32(&p.writeIdx, 1) % 3
	snap := &p.snapshots[idx]
	snap.reset()
	snap.Sequence = atomic.AddUint64(&p.sequence, 1)
	snap.Timestamp = now
	return snap
}

// PublishWrite makes the last acquired slot the one readers see.
func (p *SnapshotPool) PublishWrite() {
	atomic.StoreUint32(&p.readIdx, atomic.LoadUint32(&p.writeIdx))
	atomic.StoreUint32(&p.published, 1)
}

// AcquireRead returns the latest published snapshot, nil before the first.
func (p *SnapshotPool) AcquireRead() *GameSnapshot {
	if atomic.LoadUint32(&p.published) == 0 {
		return nil
	}
	idx := atomic.LoadUint32(&p.readIdx) % 3
	return &p.snapshots[idx]
}

// Limits returns the resource limits the pool was sized for.
func (p *SnapshotPool) Limits() config.ResourceLimits {
	return p.limits
}
