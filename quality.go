package depthfx

import (
	"runtime"

	"github.com/gogpu/depthfx/backend"
)

// Tier is the coarse performance class driving sample counts and
// buffer resolutions. Aliased from the backend package so callers of
// the effect API need only this package.
type Tier = backend.Tier

// Quality tiers, ascending.
const (
	TierLow    = backend.TierLow
	TierMedium = backend.TierMedium
	TierHigh   = backend.TierHigh
)

// QualityParams is the resolved per-tier parameter set.
type QualityParams = backend.QualityParams

// ParseTier maps a tier name ("low", "medium", "high") to its value.
// Unknown names report false.
func ParseTier(s string) (Tier, bool) { return backend.ParseTier(s) }

// resolveQuality picks the quality parameter set. Precedence: an
// explicit parameter set, then an explicit tier, then the tier probed
// from the backend's device class with a core-count heuristic for CPU
// rendering. The result is shared by reference with every pass of the
// pipeline, so one probe governs the whole effect.
func resolveQuality(o *options, class backend.DeviceClass) *backend.QualityParams {
	if o.quality != nil {
		q := *o.quality
		return &q
	}
	tier := backend.TierFor(class, runtime.NumCPU())
	if o.tier != nil {
		tier = *o.tier
	}
	q := backend.ParamsFor(tier)
	return &q
}

// effectivePixelRatio bounds the requested device pixel ratio by the
// tier cap. A non-positive request means 1.
func effectivePixelRatio(req float64, q *backend.QualityParams) float64 {
	if req <= 0 {
		req = 1
	}
	if q.PixelRatioCap > 0 && req > q.PixelRatioCap {
		req = q.PixelRatioCap
	}
	return req
}

// depthDims bounds depth plane dimensions to the tier cap, preserving
// aspect ratio. The estimator publishes at this resolution so the
// pipeline's own downsample stage finds nothing left to do.
func depthDims(w, h, maxDim int) (int, int) {
	if maxDim <= 0 || (w <= maxDim && h <= maxDim) {
		return w, h
	}
	scale := float64(maxDim) / float64(max(w, h))
	dw := int(float64(w)*scale + 0.5)
	dh := int(float64(h)*scale + 0.5)
	if dw < 1 {
		dw = 1
	}
	if dh < 1 {
		dh = 1
	}
	return dw, dh
}
