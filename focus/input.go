package focus

import (
	"fmt"
	"math"
)

// Mode selects what drives the focal depth target.
type Mode int

const (
	// ModeAuto tracks the pointer while it is over the surface and
	// eases back to the auto focus depth when it leaves.
	ModeAuto Mode = iota
	// ModePointer tracks the pointer and holds the last depth when
	// it leaves.
	ModePointer
	// ModeScroll maps the host element's visibility fraction to
	// focal depth.
	ModeScroll
	// ModeProgrammatic ignores pointer and scroll input; only
	// SetTarget moves the focus.
	ModeProgrammatic
)

func (m Mode) String() string {
	switch m {
	case ModeAuto:
		return "auto"
	case ModePointer:
		return "pointer"
	case ModeScroll:
		return "scroll"
	case ModeProgrammatic:
		return "programmatic"
	}
	return "unknown"
}

// ParseMode parses a mode name as it appears in configuration.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "auto":
		return ModeAuto, nil
	case "pointer":
		return ModePointer, nil
	case "scroll":
		return ModeScroll, nil
	case "programmatic":
		return ModeProgrammatic, nil
	}
	return 0, fmt.Errorf("focus: unknown mode %q", s)
}

// Transition duration bounds in milliseconds. The duration of a rack
// scales with the size of the depth jump between them, so small
// nudges settle faster than a full near-far rack.
const (
	minTransitionMs = 250
	maxTransitionMs = 1000
)

// lockHoldSec is the minimum time between honored lock toggles, so a
// double click does not lock and immediately unlock.
const lockHoldSec = 0.35

// Breathing excursion at the depth extremes: scale is relative to 1,
// offset is a fraction of the viewport height.
const (
	breathScaleRange  = 0.04
	breathOffsetRange = 0.01
)

// State is the spring driven focus snapshot consumed by the rack
// focus pipeline once per display tick.
type State struct {
	FocalDepth    float64
	Transitioning bool
	Progress      float64
	BreathScale   float64
	BreathOffset  float64
}

// Driver turns pointer, scroll and API input into spring targets and
// integrates the spring. All methods are called from the display loop
// and must not be used concurrently. Time advances only through Tick,
// so a recorded input sequence replays to an identical trajectory.
type Driver struct {
	mode      Mode
	spring    *Spring
	autoDepth float64
	breathing float64

	transitionMs float64
	elapsed      float64

	locked  bool
	lockAge float64
}

// NewDriver returns a driver resting at depth in the given mode.
func NewDriver(mode Mode, depth float64) *Driver {
	return &Driver{
		mode:      mode,
		spring:    NewSpring(depth),
		autoDepth: clamp01(depth),
		lockAge:   lockHoldSec,
	}
}

// SetMode switches the input mode. The current target is kept; the
// next input event under the new mode takes over.
func (d *Driver) SetMode(m Mode) { d.mode = m }

// Mode returns the active input mode.
func (d *Driver) Mode() Mode { return d.mode }

// SetAutoDepth sets the depth ModeAuto returns to when the pointer
// leaves, typically the dominant subject depth from depth analysis.
func (d *Driver) SetAutoDepth(depth float64) { d.autoDepth = clamp01(depth) }

// SetBreathing sets the focus breathing amount in [0, 1].
func (d *Driver) SetBreathing(amount float64) { d.breathing = clamp01(amount) }

// PointerMove reports the depth under the pointer. It retargets the
// spring in auto and pointer modes unless the focus is locked.
func (d *Driver) PointerMove(depth float64) {
	if d.locked || (d.mode != ModeAuto && d.mode != ModePointer) {
		return
	}
	d.retarget(depth)
}

// PointerLeave reports the pointer leaving the surface. ModeAuto
// eases back to the auto focus depth; ModePointer holds.
func (d *Driver) PointerLeave() {
	if d.locked || d.mode != ModeAuto {
		return
	}
	d.retarget(d.autoDepth)
}

// SetVisibility maps the host element visibility fraction to focal
// depth in ModeScroll.
func (d *Driver) SetVisibility(fraction float64) {
	if d.locked || d.mode != ModeScroll {
		return
	}
	d.retarget(fraction)
}

// SetTarget racks the focus to depth regardless of mode. This is the
// programmatic channel and is not gated by the lock.
func (d *Driver) SetTarget(depth float64) {
	d.retarget(depth)
}

// ToggleLock flips the click to lock flag and returns the new state.
// A toggle within lockHoldSec of the previous one is ignored.
func (d *Driver) ToggleLock() bool {
	if d.lockAge < lockHoldSec {
		return d.locked
	}
	d.locked = !d.locked
	d.lockAge = 0
	return d.locked
}

// Locked reports whether pointer and scroll input is suppressed.
func (d *Driver) Locked() bool { return d.locked }

func (d *Driver) retarget(depth float64) {
	depth = clamp01(depth)
	if depth == d.spring.Target {
		return
	}
	jump := math.Abs(depth - d.spring.Position)
	d.transitionMs = maxTransitionMs * jump
	if d.transitionMs < minTransitionMs {
		d.transitionMs = minTransitionMs
	}
	d.elapsed = 0
	d.spring.Retarget(depth)
}

// Tick advances time by dt seconds and returns the new focus state.
func (d *Driver) Tick(dt float64) State {
	if dt > 0 {
		d.lockAge += dt
		if !d.spring.Settled() {
			d.elapsed += dt
			d.spring.Tick(dt, d.transitionMs)
		}
	}
	return d.State()
}

// State returns the current focus state without advancing time.
func (d *Driver) State() State {
	st := State{
		FocalDepth:    d.spring.Position,
		Transitioning: !d.spring.Settled(),
		Progress:      1,
	}
	if st.Transitioning && d.transitionMs > 0 {
		if p := d.elapsed / (d.transitionMs / 1000); p < 1 {
			st.Progress = p
		}
	}
	ex := d.breathing * (st.FocalDepth - 0.5)
	st.BreathScale = 1 + breathScaleRange*ex
	st.BreathOffset = breathOffsetRange * ex
	return st
}
