package depth

import "math"

// Profile summarizes a depth data set: byte range, contrast spread
// and where near content sits vertically. It is computed by a single
// pass over every frame and carries no mutable state.
type Profile struct {
	Min    uint8
	Max    uint8
	Mean   float64 // normalized to [0, 1]
	Spread float64 // (Max - Min) / 255

	// VerticalBias is positive when the lower half of the image is
	// nearer than the upper half, in [-1, 1].
	VerticalBias float64
}

// DerivedParams are effect defaults derived from a Profile. They sit
// below explicit configuration in precedence: explicit beats derived
// beats built-in.
type DerivedParams struct {
	// ParallaxStrength is the UV displacement at the depth extremes.
	ParallaxStrength float64
	// ParallaxYScale damps vertical displacement when the scene has a
	// strong ground plane.
	ParallaxYScale float64
	// FocusMin and FocusMax bound the rackable focal depth.
	FocusMin float64
	FocusMax float64
	// AutoFocusDepth is the resting focal depth for auto mode.
	AutoFocusDepth float64
	// DOFScale boosts circle-of-confusion growth on low-contrast
	// depth so the blur stays visible.
	DOFScale float64
}

// Analyze profiles every frame of the set.
func Analyze(fs *FrameSet) Profile {
	acc := profileAccum{min: 255}
	for i := 0; i < fs.FrameCount(); i++ {
		acc.add(fs.Frame(i), fs.Width, fs.Height)
	}
	return acc.profile()
}

// AnalyzeFrame profiles a single w x h depth map.
func AnalyzeFrame(frame []byte, w, h int) Profile {
	acc := profileAccum{min: 255}
	acc.add(frame, w, h)
	return acc.profile()
}

// Derive turns a profile into effect defaults.
func (p Profile) Derive() DerivedParams {
	d := DerivedParams{
		ParallaxStrength: 0.02 + 0.05*p.Spread,
		ParallaxYScale:   1 - 0.5*math.Abs(p.VerticalBias),
		AutoFocusDepth:   p.Mean,
		DOFScale:         1 / math.Max(p.Spread, 1.0/3.0),
	}
	inset := 0.05 * p.Spread
	d.FocusMin = float64(p.Min)/255 + inset
	d.FocusMax = float64(p.Max)/255 - inset
	return d
}

type profileAccum struct {
	min, max    uint8
	sum         float64
	sumTop      float64
	sumBottom   float64
	count       int
	countTop    int
	countBottom int
}

func (a *profileAccum) add(frame []byte, w, h int) {
	if w <= 0 || h <= 0 || len(frame) < w*h {
		return
	}
	// The middle row of an odd height belongs to neither half.
	mid := h / 2
	for y := 0; y < h; y++ {
		rowSum := 0
		for _, v := range frame[y*w : (y+1)*w] {
			if v < a.min {
				a.min = v
			}
			if v > a.max {
				a.max = v
			}
			rowSum += int(v)
		}
		a.sum += float64(rowSum)
		if y < mid {
			a.sumTop += float64(rowSum)
			a.countTop += w
		} else if y >= h-mid {
			a.sumBottom += float64(rowSum)
			a.countBottom += w
		}
	}
	a.count += w * h
}

func (a *profileAccum) profile() Profile {
	if a.count == 0 {
		return Profile{}
	}
	p := Profile{
		Min:    a.min,
		Max:    a.max,
		Mean:   a.sum / float64(a.count) / 255,
		Spread: float64(a.max-a.min) / 255,
	}
	if a.countTop > 0 && a.countBottom > 0 {
		top := a.sumTop / float64(a.countTop)
		bottom := a.sumBottom / float64(a.countBottom)
		p.VerticalBias = (bottom - top) / 255
	}
	return p
}
