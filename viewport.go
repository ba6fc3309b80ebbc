package depthfx

import (
	"github.com/gogpu/depthfx/backend"
)

// overscanMargin is the safety margin added to every derived overscan
// fraction, so rounding in the displacement math never lands exactly
// on the source edge.
const overscanMargin = 0.01

// maxOverscan bounds the total overscan inset per side. Beyond this
// the visible crop gets more objectionable than an occasional edge
// clamp.
const maxOverscan = 0.2

// coverFit computes the UV transform that fills a dispW x dispH target
// with a srcW x srcH frame, preserving the source aspect ratio and
// cropping the longer axis symmetrically. Equal aspect ratios yield
// the identity transform.
func coverFit(dispW, dispH, srcW, srcH int) (scaleU, scaleV, offU, offV float64) {
	scaleU, scaleV = 1, 1
	if dispW > 0 && dispH > 0 && srcW > 0 && srcH > 0 {
		srcAspect := float64(srcW) / float64(srcH)
		dispAspect := float64(dispW) / float64(dispH)
		switch {
		case srcAspect > dispAspect:
			scaleU = dispAspect / srcAspect
		case srcAspect < dispAspect:
			scaleV = srcAspect / dispAspect
		}
	}
	offU = (1 - scaleU) / 2
	offV = (1 - scaleV) / 2
	return scaleU, scaleV, offU, offV
}

// computeViewport builds the pipeline viewport: cover-fit UV transform,
// symmetric overscan inset sized to the maximum displacement the effect
// can produce, and an optional horizontal mirror for selfie-convention
// cameras. Overscan shrinks the scale around the region center, so the
// center point of the sampled region never moves.
func computeViewport(dispW, dispH, srcW, srcH int, overscan float64, mirror bool) backend.Viewport {
	su, sv, ou, ov := coverFit(dispW, dispH, srcW, srcH)

	if overscan > 0 {
		if overscan > maxOverscan {
			overscan = maxOverscan
		}
		ou += su * overscan
		ov += sv * overscan
		su *= 1 - 2*overscan
		sv *= 1 - 2*overscan
	}

	if mirror {
		ou += su
		su = -su
	}

	return backend.Viewport{
		W: dispW, H: dispH,
		ScaleU: su, ScaleV: sv,
		OffsetU: ou, OffsetV: ov,
	}
}
