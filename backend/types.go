package backend

import (
	"github.com/gogpu/depthfx/shape"
)

// Viewport describes the render target and the transform that maps
// target coordinates into the source frame. The transform is the
// cover-fit mapping computed by the renderer core: for a target UV in
// [0, 1]^2, the source UV is u*ScaleU+OffsetU, v*ScaleV+OffsetV.
// Overscan shrinks the scale below 1 so per-pixel displacement never
// samples past the frame edge; a mirrored camera source carries a
// negative ScaleU.
type Viewport struct {
	W, H             int
	ScaleU, ScaleV   float64
	OffsetU, OffsetV float64
}

// FullViewport returns an identity-mapped viewport of the given size.
func FullViewport(w, h int) Viewport {
	return Viewport{W: w, H: h, ScaleU: 1, ScaleV: 1}
}

// Valid reports whether the viewport has a positive pixel area.
func (vp Viewport) Valid() bool { return vp.W > 0 && vp.H > 0 }

// Map converts a target UV to a source UV.
func (vp Viewport) Map(u, v float64) (su, sv float64) {
	return u*vp.ScaleU + vp.OffsetU, v*vp.ScaleV + vp.OffsetV
}

// FrameInput carries everything one display tick feeds a pipeline.
// Pix is the RGBA source frame, tightly packed W*H*4 bytes, borrowed
// for the duration of the RenderFrame call.
type FrameInput struct {
	Pix  []byte
	W, H int

	// Time is the source presentation time in seconds.
	Time float64

	// InputX, InputY is the smoothed pointer vector in [-1, 1].
	// Parallax displacement follows it.
	InputX, InputY float64

	// Focal is the focal depth in [0, 1] for rack focus, 255-nearest
	// convention scaled to the unit range.
	Focal float64

	// BreathScale and BreathOffset carry the focus-breathing state: a
	// scale of 1 and offset of 0 mean no breathing.
	BreathScale  float64
	BreathOffset float64
}

// ParallaxSpec configures a parallax displacement pipeline.
// All values arrive fully resolved; the precedence chain between
// explicit configuration, derived parameters and built-in defaults is
// the caller's concern.
type ParallaxSpec struct {
	Viewport Viewport
	Quality  *QualityParams

	// Strength is the maximum UV displacement at the depth extremes.
	Strength float64

	// AxisX, AxisY scale displacement per axis. A vertically biased
	// depth map typically gets a reduced AxisY.
	AxisX, AxisY float64

	// POM enables the parallax-occlusion march for interior
	// displacement. The step count comes from the quality tier; a
	// tier with zero steps renders the plain offset path regardless.
	POM bool
}

// RackFocusSpec configures a depth-of-field pipeline.
type RackFocusSpec struct {
	Viewport Viewport
	Quality  *QualityParams

	// Aperture scales the signed circle of confusion per unit of
	// depth distance from the focal plane.
	Aperture float64

	// MaxBlur is the largest gather radius in pixels at full circle
	// of confusion.
	MaxBlur float64

	// FocusMin and FocusMax clamp the reachable focal depth.
	FocusMin, FocusMax float64

	// Vignette darkens the frame toward the corners, 0 disables.
	Vignette float64

	// Bloom boosts blurred highlights above the luma threshold,
	// 0 disables.
	Bloom float64
}

// PortalSpec configures a shaped-portal pipeline.
type PortalSpec struct {
	Viewport Viewport
	Quality  *QualityParams

	// Mesh is the triangulated silhouette, normalized to [-1, 1].
	Mesh *shape.Mesh

	// Scale sizes the silhouette as a fraction of the short viewport
	// side (1 fills it edge to edge).
	Scale float64

	// LensStrength magnifies the interior by sampled depth,
	// 0 disables the lens remap.
	LensStrength float64

	// RimWidth is the boundary band, in units of the clamped distance
	// field, that receives rim lighting; RimIntensity scales it.
	RimWidth     float64
	RimIntensity float64

	// Chromatic disperses the RGB channels radially inside the rim
	// band, 0 disables.
	Chromatic float64

	// BevelWidth is the distance-field band shaded as a bevel wall;
	// ChamferDepth scales the directional shading on it.
	BevelWidth   float64
	ChamferDepth float64

	// MaxRange clamps the normalized distance field, as a fraction of
	// the short viewport side.
	MaxRange float64

	// ExteriorDim darkens everything outside the silhouette: 0 passes
	// the source through, 1 blacks it out.
	ExteriorDim float64
}
