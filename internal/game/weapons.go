package game

import (
	"log"
	"math/rand"
	"sort"
	"time"

	"arena-brawl/internal/config"
	"arena-brawl/internal/game/geom"
)

// WeaponKind enumerates the weapons of the arena.
type WeaponKind uint8

const (
	WeaponNone WeaponKind = iota
	WeaponBow
	WeaponGun
	WeaponShotgun
	WeaponMinigun
)

var weaponNames = map[WeaponKind]string{
	WeaponBow:     "bow",
	WeaponGun:     "gun",
	WeaponShotgun: "shotgun",
	WeaponMinigun: "minigun",
}

func (k WeaponKind) String() string {
	if n, ok := weaponNames[k]; ok {
		return n
	}
	return "none"
}

func (k WeaponKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// ParseWeaponKind maps a settings name to a kind.
func ParseWeaponKind(name string) (WeaponKind, bool) {
	for k, n := range weaponNames {
		if n == name {
			return k, true
		}
	}
	return WeaponNone, false
}

// ProjectileKind enumerates projectile types.
type ProjectileKind uint8

const (
	ProjectileBullet ProjectileKind = iota
	ProjectileArrow
)

func (k ProjectileKind) String() string {
	if k == ProjectileArrow {
		return "arrow"
	}
	return "bullet"
}

func (k ProjectileKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// ParseProjectileKind maps a settings name to a kind.
func ParseProjectileKind(name string) (ProjectileKind, bool) {
	switch name {
	case "bullet":
		return ProjectileBullet, true
	case "arrow":
		return ProjectileArrow, true
	}
	return ProjectileBullet, false
}

// WeaponSpec is the resolved tuning of one weapon kind.
type WeaponSpec struct {
	Kind        WeaponKind
	Cooldown    time.Duration
	Damage      float64
	Projectile  ProjectileKind
	Pellets     int
	Spread      float64 // degrees, full fan width
	Jitter      float64 // degrees, full random cone for single shots
	Ammo        int     // 0 = unlimited
	Lifespan    time.Duration
	Automatic   bool
	SpawnWeight int
}

// ProjectileSpec is the resolved tuning of one projectile kind.
type ProjectileSpec struct {
	Kind             ProjectileKind
	Speed            float64
	Mass             float64
	DamageMultiplier float64
}

// Fallbacks for kinds missing from the settings.
var (
	defaultWeaponSpec = WeaponSpec{
		Cooldown: 500 * time.Millisecond,
		Damage:   1,
		Pellets:  1,
	}
	defaultProjectileSpec = ProjectileSpec{
		Kind:             ProjectileBullet,
		Speed:            100,
		Mass:             0.05,
		DamageMultiplier: 1,
	}
)

// Armory is the weapon and projectile lookup table, keyed by kind.
type Armory struct {
	weapons     map[WeaponKind]WeaponSpec
	projectiles map[ProjectileKind]ProjectileSpec
	spawnable   []WeaponKind
	totalWeight int
}

// NewArmory builds the lookup table from settings. Unknown names are
// skipped with a warning.
func NewArmory(s config.GameSettings) *Armory {
	a := &Armory{
		weapons:     make(map[WeaponKind]WeaponSpec, len(s.Weapons)),
		projectiles: make(map[ProjectileKind]ProjectileSpec, len(s.Projectiles)),
	}

	for name, p := range s.Projectiles {
		kind, ok := ParseProjectileKind(name)
		if !ok {
			log.Printf("⚠️ Unknown projectile %q in settings, ignored", name)
			continue
		}
		a.projectiles[kind] = ProjectileSpec{
			Kind:             kind,
			Speed:            p.Speed,
			Mass:             p.Mass,
			DamageMultiplier: p.DamageMultiplier,
		}
	}

	for name, w := range s.Weapons {
		kind, ok := ParseWeaponKind(name)
		if !ok {
			log.Printf("⚠️ Unknown weapon %q in settings, ignored", name)
			continue
		}
		proj, _ := ParseProjectileKind(w.Projectile)
		pellets := w.Pellets
		if pellets < 1 {
			pellets = 1
		}
		a.weapons[kind] = WeaponSpec{
			Kind:        kind,
			Cooldown:    w.Cooldown.Duration(),
			Damage:      w.Damage,
			Projectile:  proj,
			Pellets:     pellets,
			Spread:      w.Spread,
			Jitter:      w.Jitter,
			Ammo:        w.Ammo,
			Lifespan:    w.Lifespan.Duration(),
			Automatic:   w.Automatic,
			SpawnWeight: w.SpawnWeight,
		}
	}

	for kind, spec := range a.weapons {
		if spec.SpawnWeight > 0 {
			a.spawnable = append(a.spawnable, kind)
			a.totalWeight += spec.SpawnWeight
		}
	}
	// Map order is random; keep weighted picks reproducible under a seed.
	sort.Slice(a.spawnable, func(i, j int) bool { return a.spawnable[i] < a.spawnable[j] })

	return a
}

// Weapon returns the spec for kind, or a generic spec if it is unknown.
func (a *Armory) Weapon(kind WeaponKind) WeaponSpec {
	if spec, ok := a.weapons[kind]; ok {
		return spec
	}
	spec := defaultWeaponSpec
	spec.Kind = kind
	return spec
}

// Projectile returns the spec for kind, or the generic bullet.
func (a *Armory) Projectile(kind ProjectileKind) ProjectileSpec {
	if spec, ok := a.projectiles[kind]; ok {
		return spec
	}
	spec := defaultProjectileSpec
	spec.Kind = kind
	return spec
}

// NewWeapon creates an unowned weapon of kind with a full magazine.
func (a *Armory) NewWeapon(kind WeaponKind) *Weapon {
	spec := a.Weapon(kind)
	return &Weapon{
		Kind:  kind,
		Owner: NoPlayer,
		Ammo:  spec.Ammo,
		spec:  spec,
		proj:  a.Projectile(spec.Projectile),
	}
}

// RandomKind picks a spawnable weapon kind weighted by SpawnWeight.
func (a *Armory) RandomKind(rng *rand.Rand) WeaponKind {
	if a.totalWeight == 0 {
		return WeaponNone
	}
	r := rng.Intn(a.totalWeight)
	for _, kind := range a.spawnable {
		r -= a.weapons[kind].SpawnWeight
		if r < 0 {
			return kind
		}
	}
	return a.spawnable[len(a.spawnable)-1]
}

// =============================================================================
// WEAPON INSTANCE
// =============================================================================

// Weapon is one weapon instance, owned by a player or lying in the world.
type Weapon struct {
	Kind      WeaponKind
	Owner     int // NoPlayer while unowned
	LastFired time.Time
	Ammo      int

	spec WeaponSpec
	proj ProjectileSpec
}

// FireResult is what a successful shot produced.
type FireResult struct {
	Projectiles []*Projectile
	Recoil      geom.Vec3 // sum of -normalize(velocity) * impulse
}

// Spec returns the weapon's resolved tuning.
func (w *Weapon) Spec() WeaponSpec { return w.spec }

// Empty reports whether an ammo weapon has run dry.
func (w *Weapon) Empty() bool {
	return w.spec.Ammo > 0 && w.Ammo <= 0
}

// Reload restores a full magazine.
func (w *Weapon) Reload() {
	w.Ammo = w.spec.Ammo
}

// Ready reports whether the weapon may fire at now.
func (w *Weapon) Ready(now time.Time) bool {
	if w.Empty() {
		return false
	}
	return w.LastFired.IsZero() || now.Sub(w.LastFired) >= w.spec.Cooldown
}

// CooldownRemaining returns how long until the weapon is off cooldown.
func (w *Weapon) CooldownRemaining(now time.Time) time.Duration {
	if w.LastFired.IsZero() {
		return 0
	}
	if d := w.spec.Cooldown - now.Sub(w.LastFired); d > 0 {
		return d
	}
	return 0
}

// Fire shoots from origin toward dir. It returns false without side effects
// when the weapon is on cooldown or out of ammo. Multi-pellet weapons fan
// their pellets evenly across Spread degrees, symmetric about dir; single
// shots get a random offset within Jitter degrees.
func (w *Weapon) Fire(origin, dir geom.Vec3, now time.Time, rng *rand.Rand) (FireResult, bool) {
	if !w.Ready(now) {
		return FireResult{}, false
	}
	w.LastFired = now
	if w.spec.Ammo > 0 {
		w.Ammo--
	}

	aim := dir.Normalize()
	if aim.IsZero() {
		aim = geom.Right
	}

	n := w.spec.Pellets
	offsets := make([]float64, n)
	if n > 1 {
		step := w.spec.Spread / float64(n-1)
		for i := range offsets {
			offsets[i] = -w.spec.Spread/2 + float64(i)*step
		}
	} else if w.spec.Jitter > 0 && rng != nil {
		offsets[0] = geom.RandomRange(rng, -w.spec.Jitter/2, w.spec.Jitter/2)
	}

	damage := w.spec.Damage * w.proj.DamageMultiplier
	res := FireResult{Projectiles: make([]*Projectile, 0, n)}
	for _, deg := range offsets {
		heading := aim.RotateZ(geom.DegToRad(deg))
		p := &Projectile{
			Kind:      w.proj.Kind,
			Weapon:    w.Kind,
			Owner:     w.Owner,
			Position:  origin,
			Velocity:  heading.Scale(w.proj.Speed),
			Mass:      w.proj.Mass,
			Damage:    damage,
			SpawnedAt: now,
			Lifespan:  w.spec.Lifespan,
		}
		res.Projectiles = append(res.Projectiles, p)
		res.Recoil = res.Recoil.Add(p.Velocity.Normalize().Negate().Scale(p.Impulse()))
	}
	return res, true
}
