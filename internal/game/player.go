package game

import (
	"time"

	"arena-brawl/internal/game/geom"
)

// Kinematics is the movement state of a body.
type Kinematics struct {
	Position geom.Vec3
	Velocity geom.Vec3
	Facing   float64 // -1 left, +1 right

	Grounded       bool
	LastGrounded   time.Time // last landing or ledge departure
	JumpBufferedAt time.Time // zero when no jump is buffered
}

// Vitals is the health state of a combatant.
type Vitals struct {
	Health    float64
	MaxHealth float64
	Dead      bool

	Invulnerable      bool
	InvulnerableUntil time.Time
	HurtUntil         time.Time // cosmetic hurt flash
	LastDamaged       time.Time
}

// InvulnerableFor returns the remaining invulnerability window at now.
func (v *Vitals) InvulnerableFor(now time.Time) time.Duration {
	if !v.Invulnerable {
		return 0
	}
	if d := v.InvulnerableUntil.Sub(now); d > 0 {
		return d
	}
	return 0
}

// Fraction returns health / max health.
func (v *Vitals) Fraction() float64 {
	if v.MaxHealth <= 0 {
		return 0
	}
	return v.Health / v.MaxHealth
}

// setHealth stores h clamped to [0, MaxHealth].
func (v *Vitals) setHealth(h float64) {
	v.Health = geom.Clamp(h, 0, v.MaxHealth)
}

// Body is anything the character controller can move.
type Body interface {
	Kinematics() *Kinematics
	Alive() bool
}

// Combatant is a Body that can be damaged, killed and respawned.
type Combatant interface {
	Body
	Vitals() *Vitals
	ID() int
}

// Player is one participant, human or AI, addressed by its slot index.
type Player struct {
	Slot int
	Name string
	AI   bool

	Weapon       *Weapon
	Money        float64
	HasTrophy    bool
	Spawn        geom.Vec3
	LastAttacker int // slot of the last player to damage us, NoPlayer if none

	kin Kinematics
	vit Vitals

	controller *CharacterController
	input      InputState // current frame
	prevInput  InputState // previous frame, for edge detection
}

// NewPlayer creates a living player standing at spawn.
func NewPlayer(slot int, name string, spawn geom.Vec3, maxHealth float64) *Player {
	return &Player{
		Slot:         slot,
		Name:         name,
		Spawn:        spawn,
		LastAttacker: NoPlayer,
		kin: Kinematics{
			Position: spawn,
			Facing:   1,
			Grounded: true,
		},
		vit: Vitals{
			Health:    maxHealth,
			MaxHealth: maxHealth,
		},
	}
}

func (p *Player) Kinematics() *Kinematics { return &p.kin }
func (p *Player) Vitals() *Vitals         { return &p.vit }
func (p *Player) ID() int                 { return p.Slot }
func (p *Player) Alive() bool             { return !p.vit.Dead }

// Position returns the current position.
func (p *Player) Position() geom.Vec3 { return p.kin.Position }

// Armed reports whether the player holds a weapon that can still shoot.
func (p *Player) Armed() bool {
	return p.Weapon != nil && !p.Weapon.Empty()
}

// Controller returns the player's movement controller.
func (p *Player) Controller() *CharacterController { return p.controller }

// AimDirection is the facing direction on the X axis.
func (p *Player) AimDirection() geom.Vec3 {
	if p.kin.Facing < 0 {
		return geom.V(-1, 0, 0)
	}
	return geom.Right
}

// Equip hands w to the player, replacing whatever was held.
func (p *Player) Equip(w *Weapon) {
	if w != nil {
		w.Owner = p.Slot
	}
	p.Weapon = w
}

// Unequip removes and returns the held weapon.
func (p *Player) Unequip() *Weapon {
	w := p.Weapon
	p.Weapon = nil
	if w != nil {
		w.Owner = NoPlayer
	}
	return w
}
