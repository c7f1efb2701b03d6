package geom

import "math"

// Seek returns the velocity that heads from pos straight at target at maxSpeed.
func Seek(pos, target Vec3, maxSpeed float64) Vec3 {
	return target.Sub(pos).Normalize().Scale(maxSpeed)
}

// Flee is Seek reversed.
func Flee(pos, threat Vec3, maxSpeed float64) Vec3 {
	return pos.Sub(threat).Normalize().Scale(maxSpeed)
}

// Arrive is Seek that slows linearly inside slowRadius.
func Arrive(pos, target Vec3, maxSpeed, slowRadius float64) Vec3 {
	d := target.Sub(pos)
	dist := d.Len()
	if dist < Epsilon {
		return Zero
	}
	speed := maxSpeed
	if slowRadius > 0 && dist < slowRadius {
		speed = maxSpeed * dist / slowRadius
	}
	return d.Scale(speed / dist)
}

// SmoothDamp eases current toward target with a critically damped spring.
// velocity carries state between calls.
func SmoothDamp(current, target float64, velocity *float64, smoothTime, dt, maxSpeed float64) float64 {
	if dt <= 0 {
		return current
	}
	smoothTime = math.Max(0.0001, smoothTime)
	omega := 2 / smoothTime
	x := omega * dt
	exp := 1 / (1 + x + 0.48*x*x + 0.235*x*x*x)

	change := current - target
	maxChange := maxSpeed * smoothTime
	change = Clamp(change, -maxChange, maxChange)
	adjusted := current - change

	temp := (*velocity + omega*change) * dt
	*velocity = (*velocity - omega*temp) * exp
	out := adjusted + (change+temp)*exp

	// Prevent overshoot.
	if (target-current > 0) == (out > target) {
		out = target
		*velocity = (out - target) / dt
	}
	return out
}

// ApplyImpulse adds impulse/mass to velocity.
func ApplyImpulse(velocity, impulse Vec3, mass float64) Vec3 {
	if mass <= 0 {
		return velocity
	}
	return velocity.Add(impulse.Scale(1 / mass))
}

// Bounce reflects velocity about a surface normal, scaled by bounciness.
func Bounce(velocity, normal Vec3, bounciness float64) Vec3 {
	n := normal.Normalize()
	return velocity.Sub(n.Scale(2 * velocity.Dot(n))).Scale(bounciness)
}
