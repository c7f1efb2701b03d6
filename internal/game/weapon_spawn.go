package game

import (
	"math/rand"
	"time"

	"arena-brawl/internal/config"
	"arena-brawl/internal/game/geom"
)

// WeaponSpawn is a fixed point that holds one weapon and refills after it
// is taken.
type WeaponSpawn struct {
	Position  geom.Vec3
	Weapon    *Weapon // nil while empty
	EmptiedAt time.Time
}

// DroppedWeapon is a one-shot pickup left where its owner died.
type DroppedWeapon struct {
	Position  geom.Vec3
	Weapon    *Weapon
	DroppedAt time.Time
}

// Pickups manages weapon spawn points and dropped weapons.
type Pickups struct {
	armory   *Armory
	settings config.PickupSettings
	clock    Clock
	rng      *rand.Rand
	events   EventSink

	spawns     []*WeaponSpawn
	dropped    []*DroppedWeapon
	maxDropped int
}

// NewPickups stocks every spawn point with a random weapon.
func NewPickups(armory *Armory, settings config.PickupSettings, points []geom.Vec3, maxDropped int, clock Clock, rng *rand.Rand, events EventSink) *Pickups {
	pk := &Pickups{
		armory:     armory,
		settings:   settings,
		clock:      clock,
		rng:        rng,
		events:     events,
		spawns:     make([]*WeaponSpawn, len(points)),
		maxDropped: maxDropped,
	}
	for i, pos := range points {
		pk.spawns[i] = &WeaponSpawn{Position: pos}
		pk.restock(pk.spawns[i])
	}
	return pk
}

func (pk *Pickups) restock(s *WeaponSpawn) {
	kind := pk.armory.RandomKind(pk.rng)
	if kind == WeaponNone {
		return
	}
	s.Weapon = pk.armory.NewWeapon(kind)
	s.EmptiedAt = time.Time{}
}

// Spawns returns the spawn points. Read-only.
func (pk *Pickups) Spawns() []*WeaponSpawn { return pk.spawns }

// Dropped returns the dropped weapons still on the ground. Read-only.
func (pk *Pickups) Dropped() []*DroppedWeapon { return pk.dropped }

// CanPickUp reports whether p would take a weapon it touches.
func CanPickUp(p *Player) bool {
	return p.Alive() && (p.Weapon == nil || p.Weapon.Empty())
}

// Update refills empty spawns, expires old drops and hands weapons to
// eligible players in slot order. Spawn points are checked before drops.
func (pk *Pickups) Update(players []*Player) {
	now := pk.clock.Now()
	refill := pk.settings.RefillDelay.Duration()
	for _, s := range pk.spawns {
		if s.Weapon == nil && now.Sub(s.EmptiedAt) >= refill {
			pk.restock(s)
		}
	}

	ttl := pk.settings.DroppedTTL.Duration()
	kept := pk.dropped[:0]
	for _, d := range pk.dropped {
		if ttl > 0 && now.Sub(d.DroppedAt) >= ttl {
			continue
		}
		kept = append(kept, d)
	}
	clear(pk.dropped[len(kept):])
	pk.dropped = kept

	radius := pk.settings.PickupRadius
	for _, p := range players {
		if !CanPickUp(p) {
			continue
		}
		pos := p.kin.Position
		for _, s := range pk.spawns {
			if s.Weapon != nil && pos.Dist(s.Position) <= radius {
				pk.give(p, s.Weapon, s.Position)
				s.Weapon = nil
				s.EmptiedAt = now
				break
			}
		}
		if !CanPickUp(p) {
			continue
		}
		for i, d := range pk.dropped {
			if pos.Dist(d.Position) <= radius {
				pk.give(p, d.Weapon, d.Position)
				pk.dropped = append(pk.dropped[:i], pk.dropped[i+1:]...)
				break
			}
		}
	}
}

func (pk *Pickups) give(p *Player, w *Weapon, at geom.Vec3) {
	p.Unequip()
	p.Equip(w)
	emit(pk.events, Event{Kind: EventWeaponPickedUp, Player: p.Slot, Other: NoPlayer, Weapon: w.Kind, Position: at})
}

// Drop takes p's weapon and leaves it at p's position. Empty weapons are
// discarded. The oldest drop is evicted when the ground is full.
func (pk *Pickups) Drop(p *Player) bool {
	w := p.Unequip()
	if w == nil {
		return false
	}
	emit(pk.events, Event{Kind: EventWeaponDropped, Player: p.Slot, Other: NoPlayer, Weapon: w.Kind, Position: p.kin.Position})
	if w.Empty() || pk.maxDropped <= 0 {
		return true
	}
	if len(pk.dropped) >= pk.maxDropped {
		pk.dropped = append(pk.dropped[:0], pk.dropped[1:]...)
	}
	pk.dropped = append(pk.dropped, &DroppedWeapon{
		Position:  p.kin.Position,
		Weapon:    w,
		DroppedAt: pk.clock.Now(),
	})
	return true
}

// Clear empties the ground and restocks every spawn.
func (pk *Pickups) Clear() {
	pk.dropped = nil
	for _, s := range pk.spawns {
		pk.restock(s)
	}
}
