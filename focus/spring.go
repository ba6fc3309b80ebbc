package focus

import "math"

// springRate relates transition duration to angular frequency:
// omega = springRate / durationMs, so a transition parameterized by
// durationMs settles on the order of durationMs.
const springRate = 4000.0

// Settle thresholds. Once position error and velocity both drop
// below these the spring snaps to its target and reports settled.
const (
	settlePosEps = 1e-3
	settleVelEps = 1e-2
)

// Spring is a critically damped second order spring over a scalar
// depth in [0, 1]. Input handling picks targets; the spring is the
// only thing that moves the focal depth itself.
type Spring struct {
	Position float64
	Velocity float64
	Target   float64
}

// NewSpring returns a settled spring resting at depth.
func NewSpring(depth float64) *Spring {
	d := clamp01(depth)
	return &Spring{Position: d, Target: d}
}

// Retarget points the spring at a new depth. Velocity carries over so
// a retarget mid flight stays smooth.
func (s *Spring) Retarget(depth float64) {
	s.Target = clamp01(depth)
}

// Tick advances the spring by dt seconds with omega = springRate /
// durationMs. dt is clamped so omega*dt stays inside the stable range
// of the integrator; a long frame gap then advances less than real
// time instead of blowing up the trajectory.
func (s *Spring) Tick(dt, durationMs float64) {
	if dt <= 0 || s.Settled() {
		return
	}
	if durationMs < 1 {
		durationMs = 1
	}
	omega := springRate / durationMs
	if lim := 0.45 / omega; dt > lim {
		dt = lim
	}
	accel := omega*omega*(s.Target-s.Position) - 2*omega*s.Velocity
	s.Velocity += accel * dt
	s.Position += s.Velocity * dt
	if math.Abs(s.Target-s.Position) < settlePosEps && math.Abs(s.Velocity) < settleVelEps {
		s.Position = s.Target
		s.Velocity = 0
	}
}

// Settled reports whether the spring has reached its target and
// stopped.
func (s *Spring) Settled() bool {
	return s.Position == s.Target && s.Velocity == 0
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
