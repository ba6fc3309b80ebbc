package depthfx

import (
	"math"
	"sync"

	"github.com/gogpu/depthfx/backend"
	"github.com/gogpu/depthfx/focus"
)

// Rack-focus attribute defaults.
const (
	defaultAperture  = 1.5
	defaultMaxBlur   = 12.0
	defaultBreathing = 0.3
)

// focusEventEps is the minimum focal-depth movement between two
// EventFocusChange emissions, keeping the channel quiet during slow
// spring tails.
const focusEventEps = 0.002

// RackFocusConfig describes an interactive depth-of-field effect. Nil
// pointer fields resolve explicit > derived-from-depth > built-in
// default.
type RackFocusConfig struct {
	Config

	// Mode selects what drives the focal plane. Defaults to ModeAuto.
	Mode *focus.Mode

	// Aperture scales circle-of-confusion growth per unit of depth
	// distance from the focal plane. The derived value compensates for
	// shallow depth ranges.
	Aperture *float64

	// MaxBlur caps the blur radius in pixels at full resolution.
	MaxBlur *float64

	// FocusMin and FocusMax bound the reachable focal depths.
	FocusMin *float64
	FocusMax *float64

	// AutoDepth is the resting focal depth for ModeAuto and the
	// fallback after PointerLeave.
	AutoDepth *float64

	// Breathing scales the subtle zoom coupled to focus transitions.
	// Zero disables it.
	Breathing *float64

	// Vignette and Bloom are optional finishing passes, disabled at
	// zero.
	Vignette *float64
	Bloom    *float64
}

// RackFocus is a depth-of-field renderer with a spring-driven focal
// plane. Pointer, scroll or programmatic input retargets the spring;
// every display tick advances it and renders with the current focal
// depth.
type RackFocus struct {
	*Renderer

	// focusMu guards the driver, which itself is single-threaded:
	// host-facing methods and the display loop both reach it.
	focusMu sync.Mutex
	drv     *focus.Driver

	// Display goroutine only.
	lastEmitted      float64
	wasTransitioning bool
}

// NewRackFocus builds a rack-focus renderer over cfg.Source. The
// returned effect still needs Initialize and Start.
func NewRackFocus(cfg RackFocusConfig, opts ...Option) (*RackFocus, error) {
	c, err := newCore(&cfg.Config, opts)
	if err != nil {
		return nil, err
	}

	aperture := defaultAperture
	if c.derived != nil {
		aperture = defaultAperture * c.derived.DOFScale
	}
	if cfg.Aperture != nil {
		aperture = *cfg.Aperture
	}
	maxBlur := resolveF(cfg.MaxBlur, defaultMaxBlur)
	focusMin, focusMax := 0.0, 1.0
	if c.derived != nil {
		focusMin, focusMax = c.derived.FocusMin, c.derived.FocusMax
	}
	if cfg.FocusMin != nil {
		focusMin = *cfg.FocusMin
	}
	if cfg.FocusMax != nil {
		focusMax = *cfg.FocusMax
	}
	autoDepth := 0.5
	if c.derived != nil {
		autoDepth = c.derived.AutoFocusDepth
	}
	if cfg.AutoDepth != nil {
		autoDepth = *cfg.AutoDepth
	}
	breathing := resolveF(cfg.Breathing, defaultBreathing)
	vignette := resolveF(cfg.Vignette, 0)
	bloom := resolveF(cfg.Bloom, 0)
	mode := focus.ModeAuto
	if cfg.Mode != nil {
		mode = *cfg.Mode
	}

	// Breathing samples at most 2% outside the frame at full scale,
	// plus the offset sweep.
	overscan := 0.03*breathing + overscanMargin
	if c.o.overscan != nil {
		overscan = *c.o.overscan
	}
	vp := computeViewport(c.dispW, c.dispH, c.srcW, c.srcH, overscan, c.mirror)

	pipe, err := c.be.NewRackFocus(backend.RackFocusSpec{
		Viewport: vp,
		Quality:  c.quality,
		Aperture: aperture,
		MaxBlur:  maxBlur,
		FocusMin: focusMin,
		FocusMax: focusMax,
		Vignette: vignette,
		Bloom:    bloom,
	})
	if err != nil {
		c.close()
		return nil, err
	}

	drv := focus.NewDriver(mode, autoDepth)
	drv.SetAutoDepth(autoDepth)
	drv.SetBreathing(breathing)

	rf := &RackFocus{
		Renderer: newRenderer(c, pipe, vp, overscan),
		drv:      drv,
	}
	rf.lastEmitted = autoDepth
	rf.Renderer.prepare = rf.prepareFrame
	return rf, nil
}

// prepareFrame advances the focus spring by dt and stamps the result
// into the frame input. Runs on the display goroutine.
func (rf *RackFocus) prepareFrame(dt float64, in *backend.FrameInput) {
	rf.focusMu.Lock()
	st := rf.drv.Tick(dt)
	rf.focusMu.Unlock()

	in.Focal = st.FocalDepth
	in.BreathScale = st.BreathScale
	in.BreathOffset = st.BreathOffset

	if st.Transitioning {
		if math.Abs(st.FocalDepth-rf.lastEmitted) > focusEventEps {
			rf.lastEmitted = st.FocalDepth
			rf.emit(Event{Kind: EventFocusChange, FocalDepth: st.FocalDepth})
		}
	} else if rf.wasTransitioning {
		rf.lastEmitted = st.FocalDepth
		rf.emit(Event{Kind: EventFocusSettled, FocalDepth: st.FocalDepth})
	}
	rf.wasTransitioning = st.Transitioning
}

// PointerFocus retargets focus to the depth under a pointer at display
// UV (u, v) in [0, 1]. A no-op in modes that ignore the pointer or
// before any depth map exists.
func (rf *RackFocus) PointerFocus(u, v float64) {
	su, sv := rf.Viewport().Map(u, v)
	d, ok := rf.depthProbe(su, sv)
	if !ok {
		return
	}
	rf.focusMu.Lock()
	rf.drv.PointerMove(d)
	rf.focusMu.Unlock()
}

// PointerLeave eases focus back toward the auto depth.
func (rf *RackFocus) PointerLeave() {
	rf.focusMu.Lock()
	rf.drv.PointerLeave()
	rf.focusMu.Unlock()
}

// SetVisibility feeds the visible fraction in scroll mode, mapping the
// focus range across it.
func (rf *RackFocus) SetVisibility(fraction float64) {
	rf.focusMu.Lock()
	rf.drv.SetVisibility(fraction)
	rf.focusMu.Unlock()
}

// SetFocusDepth retargets the focal plane directly.
func (rf *RackFocus) SetFocusDepth(depth float64) {
	rf.focusMu.Lock()
	rf.drv.SetTarget(depth)
	rf.focusMu.Unlock()
}

// SetFocusMode switches the input mode at runtime.
func (rf *RackFocus) SetFocusMode(m focus.Mode) {
	rf.focusMu.Lock()
	rf.drv.SetMode(m)
	rf.focusMu.Unlock()
}

// ToggleFocusLock freezes or releases the focal plane and reports the
// new lock state.
func (rf *RackFocus) ToggleFocusLock() bool {
	rf.focusMu.Lock()
	defer rf.focusMu.Unlock()
	return rf.drv.ToggleLock()
}

// FocusLocked reports whether the focal plane is frozen.
func (rf *RackFocus) FocusLocked() bool {
	rf.focusMu.Lock()
	defer rf.focusMu.Unlock()
	return rf.drv.Locked()
}

// FocusState returns the spring's current state without advancing it.
func (rf *RackFocus) FocusState() focus.State {
	rf.focusMu.Lock()
	defer rf.focusMu.Unlock()
	return rf.drv.State()
}
