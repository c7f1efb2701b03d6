package game

import (
	"time"

	"arena-brawl/internal/game/geom"
)

// Projectile is a moving shot. It lives until it hits a player, outlives
// its lifespan or leaves the level.
type Projectile struct {
	ID     uint64
	Kind   ProjectileKind
	Weapon WeaponKind
	Owner  int

	Position geom.Vec3
	Velocity geom.Vec3
	Mass     float64
	Damage   float64

	SpawnedAt time.Time
	Lifespan  time.Duration // 0 = until hit or out of bounds
	Spent     bool          // already applied its damage
}

// Update integrates position over dt seconds.
func (p *Projectile) Update(dt float64) {
	p.Position = p.Position.Add(p.Velocity.Scale(dt))
}

// Expired reports whether a finite lifespan has run out at now.
func (p *Projectile) Expired(now time.Time) bool {
	return p.Lifespan > 0 && now.Sub(p.SpawnedAt) >= p.Lifespan
}

// Impulse is mass × speed.
func (p *Projectile) Impulse() float64 {
	return p.Mass * p.Velocity.Len()
}

// Hits tests the projectile against a point target with the given radius.
func (p *Projectile) Hits(target geom.Vec3, radius float64) bool {
	return geom.Sphere{Center: p.Position, Radius: radius}.ContainsPoint(target)
}
