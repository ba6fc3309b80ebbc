package focus

import (
	"math"
	"testing"
)

func TestSpringMonotonicNoOvershoot(t *testing.T) {
	tests := []struct {
		name     string
		from, to float64
	}{
		{"up", 0.2, 0.8},
		{"down", 0.9, 0.1},
		{"full rack", 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSpring(tt.from)
			s.Retarget(tt.to)

			dir := 1.0
			if tt.to < tt.from {
				dir = -1
			}
			prev := s.Position
			for i := 0; i < 1200 && !s.Settled(); i++ {
				s.Tick(1.0/60, 600)
				if (s.Position-prev)*dir < 0 {
					t.Fatalf("step %d: moved away from target: %v -> %v", i, prev, s.Position)
				}
				if (s.Position-tt.to)*dir > 0 {
					t.Fatalf("step %d: overshot %v: %v", i, tt.to, s.Position)
				}
				prev = s.Position
			}
			if !s.Settled() {
				t.Fatalf("did not settle: pos=%v vel=%v", s.Position, s.Velocity)
			}
			if s.Position != tt.to {
				t.Errorf("settled at %v, want %v", s.Position, tt.to)
			}
		})
	}
}

func TestSpringSettlesOnDurationScale(t *testing.T) {
	// At t = durationMs most of the jump must be done, and the spring
	// must have snapped to the target well before 3x the duration.
	s := NewSpring(0)
	s.Retarget(1)

	const durationMs = 600
	dt := 1.0 / 60
	steps := int(durationMs / 1000 / dt)
	for i := 0; i < steps; i++ {
		s.Tick(dt, durationMs)
	}
	if err := math.Abs(1 - s.Position); err > 0.12 {
		t.Errorf("error at t=duration: %v, want <= 0.12", err)
	}

	for i := 0; i < 3*steps && !s.Settled(); i++ {
		s.Tick(dt, durationMs)
	}
	if !s.Settled() {
		t.Fatalf("not settled by 4x duration: pos=%v vel=%v", s.Position, s.Velocity)
	}
}

func TestSpringDeterministic(t *testing.T) {
	run := func() []float64 {
		s := NewSpring(0.5)
		var out []float64
		script := []struct {
			target float64
			steps  int
			dt     float64
		}{
			{0.9, 20, 1.0 / 60},
			{0.1, 35, 1.0 / 48},
			{0.7, 50, 1.0 / 144},
		}
		for _, seg := range script {
			s.Retarget(seg.target)
			for i := 0; i < seg.steps; i++ {
				s.Tick(seg.dt, 500)
				out = append(out, s.Position)
			}
		}
		return out
	}

	a, b := run(), run()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("step %d: %v != %v", i, a[i], b[i])
		}
	}
}

func TestSpringSnapsOnTinyNudge(t *testing.T) {
	s := NewSpring(0.5)
	s.Retarget(0.5005)
	s.Tick(1.0/60, 250)
	if !s.Settled() {
		t.Errorf("tiny nudge did not snap: pos=%v vel=%v", s.Position, s.Velocity)
	}
	if s.Position != 0.5005 {
		t.Errorf("Position = %v, want 0.5005", s.Position)
	}
}

func TestSpringLargeDtStable(t *testing.T) {
	// Second-long frame gaps with a short duration would diverge
	// without the dt clamp.
	s := NewSpring(0)
	s.Retarget(1)
	prev := s.Position
	for i := 0; i < 200 && !s.Settled(); i++ {
		s.Tick(1.0, 100)
		if math.IsNaN(s.Position) || math.Abs(s.Position) > 2 {
			t.Fatalf("step %d: diverged: pos=%v vel=%v", i, s.Position, s.Velocity)
		}
		if s.Position < prev {
			t.Fatalf("step %d: non-monotonic: %v -> %v", i, prev, s.Position)
		}
		prev = s.Position
	}
	if !s.Settled() {
		t.Fatalf("not settled: pos=%v vel=%v", s.Position, s.Velocity)
	}
}

func TestSpringRetargetKeepsVelocity(t *testing.T) {
	s := NewSpring(0)
	s.Retarget(1)
	for i := 0; i < 10; i++ {
		s.Tick(1.0/60, 800)
	}
	v := s.Velocity
	if v == 0 {
		t.Fatal("expected nonzero velocity mid flight")
	}
	s.Retarget(0.2)
	if s.Velocity != v {
		t.Errorf("Retarget changed velocity: %v -> %v", v, s.Velocity)
	}
}

func TestSpringClampsTarget(t *testing.T) {
	s := NewSpring(0.5)
	s.Retarget(1.8)
	if s.Target != 1 {
		t.Errorf("Target = %v, want 1", s.Target)
	}
	s.Retarget(-0.3)
	if s.Target != 0 {
		t.Errorf("Target = %v, want 0", s.Target)
	}
}

func TestSpringIdleTickIsNoop(t *testing.T) {
	s := NewSpring(0.42)
	s.Tick(1.0/60, 500)
	if s.Position != 0.42 || s.Velocity != 0 || !s.Settled() {
		t.Errorf("settled spring moved: pos=%v vel=%v", s.Position, s.Velocity)
	}
}
