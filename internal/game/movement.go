package game

import (
	"time"

	"arena-brawl/internal/config"
	"arena-brawl/internal/game/geom"
)

const (
	// FootOffset is the distance from a body's center to the ground it stands on.
	FootOffset = 1.0
	// probeSpread is the X offset of the side ground probes.
	probeSpread = 0.3
	// maxHorizontalSpeed caps horizontal speed including recoil.
	maxHorizontalSpeed = 8.0
)

// CharacterController integrates gravity, input acceleration, friction,
// jumping and grounding for one body. It only touches the body through the
// Body interface.
type CharacterController struct {
	body     Body
	ground   GroundQuery
	bounds   Bounds
	settings config.MovementSettings
	clock    Clock
	events   EventSink
	slot     int
	spawn    geom.Vec3

	input float64 // held horizontal direction in [-1, 1]
}

// NewCharacterController binds a controller to body. spawn is the fall
// recovery point; slot tags emitted events.
func NewCharacterController(body Body, level Level, settings config.MovementSettings, clock Clock, events EventSink, slot int, spawn geom.Vec3) *CharacterController {
	return &CharacterController{
		body:     body,
		ground:   level,
		bounds:   level.Bounds(),
		settings: settings,
		clock:    clock,
		events:   events,
		slot:     slot,
		spawn:    spawn,
	}
}

// SetInput sets the held horizontal direction, clamped to [-1, 1].
// A zero direction lets friction take over.
func (c *CharacterController) SetInput(direction float64) {
	c.input = geom.Clamp(direction, -1, 1)
	if c.input != 0 {
		c.body.Kinematics().Facing = geom.Sign(c.input)
	}
}

// Input returns the held horizontal direction.
func (c *CharacterController) Input() float64 {
	return c.input
}

// Jump attempts a jump. It succeeds when grounded or within the coyote
// window after leaving the ground; otherwise the request is buffered and
// replayed on landing if still fresh.
func (c *CharacterController) Jump() bool {
	if !c.body.Alive() {
		return false
	}
	k := c.body.Kinematics()
	now := c.clock.Now()

	coyote := !k.LastGrounded.IsZero() && now.Sub(k.LastGrounded) < c.settings.CoyoteTime.Duration()
	if !k.Grounded && !coyote {
		k.JumpBufferedAt = now
		return false
	}

	k.Velocity.Y = c.settings.JumpVelocity
	k.Grounded = false
	k.JumpBufferedAt = time.Time{}
	// Spend the coyote window so an airborne press cannot jump twice.
	k.LastGrounded = time.Time{}

	emit(c.events, Event{Kind: EventJumped, Player: c.slot, Other: NoPlayer, Position: k.Position})
	return true
}

// Update advances the body by dt seconds. dt is clamped to the configured
// maximum step.
func (c *CharacterController) Update(dt float64) {
	if !c.body.Alive() || dt <= 0 {
		return
	}
	if maxStep := c.settings.MaxStep.Duration().Seconds(); dt > maxStep {
		dt = maxStep
	}
	k := c.body.Kinematics()
	frames := dt * 60

	if !k.Grounded {
		k.Velocity.Y -= c.settings.Gravity * dt
	}

	if c.input != 0 {
		speed := c.settings.MoveSpeed * abs(c.input)
		accel := c.settings.MoveSpeed * c.settings.Acceleration * frames
		if c.input < 0 {
			if k.Velocity.X > -speed {
				k.Velocity.X = max(k.Velocity.X-accel, -speed)
			}
		} else if k.Velocity.X < speed {
			k.Velocity.X = min(k.Velocity.X+accel, speed)
		}
	} else {
		friction := c.settings.AirFriction
		if k.Grounded {
			friction = c.settings.GroundFriction
		}
		k.Velocity.X *= geom.FrictionFactor(friction, dt)
	}

	k.Velocity.X = geom.Clamp(k.Velocity.X, -maxHorizontalSpeed, maxHorizontalSpeed)
	k.Velocity.Y = geom.Clamp(k.Velocity.Y, -c.settings.MaxFallSpeed, c.settings.MaxFallSpeed)

	k.Position = k.Position.Add(k.Velocity.Scale(dt))

	c.detectGround(k)

	k.Position = c.bounds.Clamp(k.Position)
}

// detectGround casts three downward probes and snaps the body onto the
// highest ground surface when its feet are within snap tolerance.
func (c *CharacterController) detectGround(k *Kinematics) {
	now := c.clock.Now()
	wasGrounded := k.Grounded

	standY, found := 0.0, false
	for _, dx := range [...]float64{0, -probeSpread, probeSpread} {
		origin := k.Position
		origin.X += dx
		if top, ok := c.ground.ProbeGround(origin, c.settings.ProbeDistance); ok {
			if y := top + FootOffset; !found || y > standY {
				standY, found = y, true
			}
		}
	}

	if found && k.Velocity.Y <= 0 && k.Position.Y <= standY+c.settings.SnapTolerance {
		k.Position.Y = standY
		k.Velocity.Y = 0
		if !wasGrounded {
			k.Grounded = true
			k.LastGrounded = now
			if !k.JumpBufferedAt.IsZero() && now.Sub(k.JumpBufferedAt) < c.settings.JumpBuffer.Duration() {
				c.Jump()
			}
			k.JumpBufferedAt = time.Time{}
		}
		return
	}

	if k.Position.Y < c.settings.FallRecoveryY {
		k.Position = geom.V(c.spawn.X, c.settings.RecoveryHeight, c.spawn.Z)
		k.Velocity = geom.Zero
		k.Grounded = false
		return
	}

	if wasGrounded {
		// Walked off a ledge or was launched: start the coyote window.
		k.Grounded = false
		k.LastGrounded = now
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
