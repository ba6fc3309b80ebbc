package depthfx

import (
	"fmt"

	"github.com/gogpu/depthfx/backend"
	"github.com/gogpu/depthfx/shape"
)

// Portal attribute defaults.
const (
	defaultPortalScale = 0.75
	defaultLens        = 0.35
	defaultRimWidth    = 0.25
	defaultRimInt      = 0.8
	defaultChromatic   = 0.5
	defaultBevelWidth  = 0.3
	defaultChamfer     = 0.6
	defaultMaxRange    = 0.35
	defaultExteriorDim = 0.65
)

// PortalConfig describes a shape-cut video portal. The silhouette
// comes from, in order of precedence, an already-built Mesh, shaped
// Text (Font required), or outline PathData.
type PortalConfig struct {
	Config

	// PathData is an outline in path-command syntax
	// (move/line/curve/arc/close).
	PathData string

	// Text is shaped into outlines with Font, which must be a
	// complete font file (TTF/OTF).
	Text string
	Font []byte

	// Mesh overrides PathData and Text with a prebuilt silhouette.
	Mesh *shape.Mesh

	// Scale sizes the silhouette relative to the shorter viewport
	// axis.
	Scale *float64

	// LensStrength bends interior sampling by depth, the glass-lens
	// look. Zero samples straight through.
	LensStrength *float64

	// RimWidth and RimIntensity shape the bright refraction band at
	// the silhouette boundary; Chromatic splits it per channel.
	RimWidth     *float64
	RimIntensity *float64
	Chromatic    *float64

	// BevelWidth is the wall band inside the boundary, as a fraction
	// of the distance range; ChamferDepth scales its shading.
	BevelWidth   *float64
	ChamferDepth *float64

	// MaxRange clamps the normalized distance field, as a fraction of
	// the shorter viewport axis.
	MaxRange *float64

	// ExteriorDim darkens everything outside the silhouette: 0 passes
	// the source through, 1 blacks it out.
	ExteriorDim *float64
}

// Portal renders the source inside a shaped cutout with lens, rim and
// bevel shading driven by a distance field of the silhouette.
type Portal struct {
	*Renderer

	mesh *shape.Mesh
}

// NewPortal builds a portal renderer over cfg.Source. The returned
// effect still needs Initialize and Start.
func NewPortal(cfg PortalConfig, opts ...Option) (*Portal, error) {
	mesh, err := resolveMesh(&cfg)
	if err != nil {
		return nil, err
	}

	c, err := newCore(&cfg.Config, opts)
	if err != nil {
		return nil, err
	}

	scale := resolveF(cfg.Scale, defaultPortalScale)
	lens := resolveF(cfg.LensStrength, defaultLens)
	chromatic := resolveF(cfg.Chromatic, defaultChromatic)

	// The lens remap excurses at most a quarter of its strength from
	// the tap position; chromatic split adds a sliver.
	overscan := 0.25*lens + 0.015*chromatic + overscanMargin
	if c.o.overscan != nil {
		overscan = *c.o.overscan
	}
	vp := computeViewport(c.dispW, c.dispH, c.srcW, c.srcH, overscan, c.mirror)

	pipe, err := c.be.NewPortal(backend.PortalSpec{
		Viewport:     vp,
		Quality:      c.quality,
		Mesh:         mesh,
		Scale:        scale,
		LensStrength: lens,
		RimWidth:     resolveF(cfg.RimWidth, defaultRimWidth),
		RimIntensity: resolveF(cfg.RimIntensity, defaultRimInt),
		Chromatic:    chromatic,
		BevelWidth:   resolveF(cfg.BevelWidth, defaultBevelWidth),
		ChamferDepth: resolveF(cfg.ChamferDepth, defaultChamfer),
		MaxRange:     resolveF(cfg.MaxRange, defaultMaxRange),
		ExteriorDim:  resolveF(cfg.ExteriorDim, defaultExteriorDim),
	})
	if err != nil {
		c.close()
		return nil, err
	}

	return &Portal{
		Renderer: newRenderer(c, pipe, vp, overscan),
		mesh:     mesh,
	}, nil
}

// Mesh returns the silhouette mesh the portal renders with.
func (p *Portal) Mesh() *shape.Mesh { return p.mesh }

func resolveMesh(cfg *PortalConfig) (*shape.Mesh, error) {
	switch {
	case cfg.Mesh != nil:
		return cfg.Mesh, nil
	case cfg.Text != "":
		if len(cfg.Font) == 0 {
			return nil, fmt.Errorf("depthfx: portal text %q needs a font", cfg.Text)
		}
		face, err := shape.ParseFont(cfg.Font)
		if err != nil {
			return nil, fmt.Errorf("depthfx: portal font: %w", err)
		}
		mesh, err := shape.FromText(face, cfg.Text)
		if err != nil {
			return nil, fmt.Errorf("depthfx: portal text: %w", err)
		}
		return mesh, nil
	case cfg.PathData != "":
		mesh, err := shape.FromPathData(cfg.PathData)
		if err != nil {
			return nil, fmt.Errorf("depthfx: portal path: %w", err)
		}
		return mesh, nil
	default:
		return nil, ErrNoShape
	}
}

func resolveF(p *float64, def float64) float64 {
	if p != nil {
		return *p
	}
	return def
}
