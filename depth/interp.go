package depth

import "github.com/gogpu/depthfx/internal/plane"

// Reader is the time-indexed depth contract shared by the precomputed
// and estimated provisioning paths. DepthAt never blocks and always
// returns a fully formed Width x Height buffer; callers must treat it
// as read-only.
type Reader interface {
	DepthAt(t float64) []byte
	Size() (w, h int)
}

// Interpolator serves time queries over a FrameSet by blending the
// two bracketing frames per pixel. It reuses one scratch buffer
// across calls and is meant for a single consumer loop.
type Interpolator struct {
	fs  *FrameSet
	buf []byte
}

// NewInterpolator wraps a frame set.
func NewInterpolator(fs *FrameSet) *Interpolator {
	return &Interpolator{fs: fs, buf: make([]byte, fs.Width*fs.Height)}
}

// Size returns the depth map dimensions.
func (ip *Interpolator) Size() (int, int) { return ip.fs.Width, ip.fs.Height }

// DepthAt maps t in seconds to a fractional frame index at the set's
// FPS and blends the bracketing frames. Out-of-range times clamp to
// the first or last frame.
func (ip *Interpolator) DepthAt(t float64) []byte {
	pos := t * ip.fs.FPS
	last := ip.fs.FrameCount() - 1
	if pos <= 0 {
		return ip.fs.Frame(0)
	}
	if pos >= float64(last) {
		return ip.fs.Frame(last)
	}

	i0 := int(pos)
	frac := pos - float64(i0)
	if frac == 0 {
		return ip.fs.Frame(i0)
	}
	plane.Lerp(ip.buf, ip.fs.Frame(i0), ip.fs.Frame(i0+1), frac)
	return ip.buf
}
