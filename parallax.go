package depthfx

import (
	"math"

	"github.com/gogpu/depthfx/backend"
)

// Parallax attribute defaults, used when neither the host nor depth
// analysis supplies a value.
const (
	defaultParallaxStrength = 0.04
)

// ParallaxConfig describes a pointer-driven displacement effect. Nil
// pointer fields resolve explicit > derived-from-depth > built-in
// default.
type ParallaxConfig struct {
	Config

	// Strength is the maximum displacement as a fraction of the
	// viewport. Derived from depth spread when left nil.
	Strength *float64

	// AxisX and AxisY scale displacement per axis. AxisY's derived
	// value dampens vertical motion on scenes with strong vertical
	// depth bias.
	AxisX *float64
	AxisY *float64

	// POM enables per-pixel occlusion marching, which resolves
	// silhouette overlap at the cost of extra depth samples per pixel.
	POM bool
}

// Parallax is a depth-displacement renderer. Feed it pointer positions
// with SetPointer; the displacement follows with a short smoothing lag.
type Parallax struct {
	*Renderer

	strength     float64
	axisX, axisY float64
}

// NewParallax builds a parallax renderer over cfg.Source. The returned
// effect still needs Initialize and Start.
func NewParallax(cfg ParallaxConfig, opts ...Option) (*Parallax, error) {
	c, err := newCore(&cfg.Config, opts)
	if err != nil {
		return nil, err
	}

	strength := defaultParallaxStrength
	if c.derived != nil {
		strength = c.derived.ParallaxStrength
	}
	if cfg.Strength != nil {
		strength = *cfg.Strength
	}
	axisX := resolveF(cfg.AxisX, 1)
	axisY := 1.0
	if c.derived != nil {
		axisY = c.derived.ParallaxYScale
	}
	if cfg.AxisY != nil {
		axisY = *cfg.AxisY
	}

	overscan := strength*math.Max(axisX, axisY) + overscanMargin
	if c.o.overscan != nil {
		overscan = *c.o.overscan
	}
	vp := computeViewport(c.dispW, c.dispH, c.srcW, c.srcH, overscan, c.mirror)

	pipe, err := c.be.NewParallax(backend.ParallaxSpec{
		Viewport: vp,
		Quality:  c.quality,
		Strength: strength,
		AxisX:    axisX,
		AxisY:    axisY,
		POM:      cfg.POM,
	})
	if err != nil {
		c.close()
		return nil, err
	}

	return &Parallax{
		Renderer: newRenderer(c, pipe, vp, overscan),
		strength: strength,
		axisX:    axisX,
		axisY:    axisY,
	}, nil
}

// Strength returns the resolved displacement strength.
func (p *Parallax) Strength() float64 { return p.strength }
