package backend

// Tier is a coarse performance class. It picks sample counts and
// buffer resolutions for every pass; pipelines hold a reference to
// the resolved QualityParams rather than a copy, so one probe governs
// the whole effect.
type Tier int

// Quality tiers, ascending.
const (
	TierLow Tier = iota
	TierMedium
	TierHigh
)

// String returns the tier name.
func (t Tier) String() string {
	switch t {
	case TierLow:
		return "low"
	case TierMedium:
		return "medium"
	case TierHigh:
		return "high"
	default:
		return "unknown"
	}
}

// ParseTier maps a tier name to its value. Unknown names report false.
func ParseTier(s string) (Tier, bool) {
	switch s {
	case "low":
		return TierLow, true
	case "medium":
		return TierMedium, true
	case "high":
		return TierHigh, true
	}
	return TierLow, false
}

// DeviceClass is the kind of device backing a backend.
type DeviceClass int

// Device classes reported by Class().
const (
	ClassUnknown DeviceClass = iota
	ClassCPU
	ClassIntegratedGPU
	ClassDiscreteGPU
)

// String returns the device class name.
func (c DeviceClass) String() string {
	switch c {
	case ClassCPU:
		return "cpu"
	case ClassIntegratedGPU:
		return "integrated"
	case ClassDiscreteGPU:
		return "discrete"
	default:
		return "unknown"
	}
}

// QualityParams are the per-tier sample counts and caps referenced by
// every pass.
type QualityParams struct {
	// BilateralRadius is the kernel radius of the depth filter stage.
	BilateralRadius int

	// PoissonSamples is the gather tap count of the focus blur.
	PoissonSamples int

	// DepthMaxDim caps the depth plane resolution; larger uploads are
	// downsampled into a preallocated scratch plane.
	DepthMaxDim int

	// PixelRatioCap bounds the device pixel ratio applied to the
	// render target.
	PixelRatioCap float64

	// POMSteps is the parallax-occlusion march step count, 0 disables
	// the march.
	POMSteps int

	// HalfResBlur runs the focus blur at half resolution.
	HalfResBlur bool

	Tier Tier
}

// TierFor derives the quality tier from the device class, falling back
// to a core-count heuristic for CPU rendering.
func TierFor(class DeviceClass, cores int) Tier {
	switch class {
	case ClassDiscreteGPU:
		return TierHigh
	case ClassIntegratedGPU:
		return TierMedium
	case ClassCPU:
		if cores >= 8 {
			return TierMedium
		}
		return TierLow
	default:
		return TierLow
	}
}

// ParamsFor returns the parameter set of a tier.
func ParamsFor(tier Tier) QualityParams {
	switch tier {
	case TierHigh:
		return QualityParams{
			BilateralRadius: 4,
			PoissonSamples:  32,
			DepthMaxDim:     512,
			PixelRatioCap:   2,
			POMSteps:        16,
			HalfResBlur:     false,
			Tier:            TierHigh,
		}
	case TierMedium:
		return QualityParams{
			BilateralRadius: 3,
			PoissonSamples:  16,
			DepthMaxDim:     384,
			PixelRatioCap:   1.5,
			POMSteps:        8,
			HalfResBlur:     false,
			Tier:            TierMedium,
		}
	default:
		return QualityParams{
			BilateralRadius: 2,
			PoissonSamples:  8,
			DepthMaxDim:     256,
			PixelRatioCap:   1,
			POMSteps:        0,
			HalfResBlur:     true,
			Tier:            TierLow,
		}
	}
}
