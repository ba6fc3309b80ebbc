// Package plane implements operations on single-channel byte planes.
//
// Depth maps travel through the pipeline as tightly packed row-major
// byte buffers where 255 is nearest to the camera and 0 is farthest.
// The helpers here cover the resampling, normalization and blending
// those buffers need without allocating per frame.
package plane

import "math"

// Plane is a single-channel row-major byte image.
// Pix holds exactly W*H bytes.
type Plane struct {
	Pix []byte
	W   int
	H   int
}

// New allocates a zeroed plane of the given size.
func New(w, h int) Plane {
	if w < 0 {
		w = 0
	}
	if h < 0 {
		h = 0
	}
	return Plane{Pix: make([]byte, w*h), W: w, H: h}
}

// Valid reports whether the plane's buffer matches its dimensions.
func (p Plane) Valid() bool {
	return p.W > 0 && p.H > 0 && len(p.Pix) == p.W*p.H
}

// At returns the byte at (x, y) with coordinates clamped to the plane.
func (p Plane) At(x, y int) byte {
	if x < 0 {
		x = 0
	} else if x >= p.W {
		x = p.W - 1
	}
	if y < 0 {
		y = 0
	} else if y >= p.H {
		y = p.H - 1
	}
	return p.Pix[y*p.W+x]
}

// Fill sets every byte to v.
func (p Plane) Fill(v byte) {
	for i := range p.Pix {
		p.Pix[i] = v
	}
}

// SampleBilinear samples the plane at normalized coordinates (u, v) in
// [0, 1] using pixel-center convention: u*W - 0.5, clamped at the
// edges. The result is in [0, 1].
func (p Plane) SampleBilinear(u, v float64) float64 {
	if !p.Valid() {
		return 0
	}

	px := u*float64(p.W) - 0.5
	py := v*float64(p.H) - 0.5

	x0 := int(math.Floor(px))
	y0 := int(math.Floor(py))
	fx := px - float64(x0)
	fy := py - float64(y0)

	c00 := float64(p.At(x0, y0))
	c10 := float64(p.At(x0+1, y0))
	c01 := float64(p.At(x0, y0+1))
	c11 := float64(p.At(x0+1, y0+1))

	top := c00 + (c10-c00)*fx
	bot := c01 + (c11-c01)*fx
	return (top + (bot-top)*fy) / 255.0
}

// DownsampleNearest fills dst from src by nearest-neighbor sampling.
// dst must be preallocated; both planes must be valid. Equal sizes
// degenerate to a copy.
func DownsampleNearest(dst, src Plane) {
	if !dst.Valid() || !src.Valid() {
		return
	}
	if dst.W == src.W && dst.H == src.H {
		copy(dst.Pix, src.Pix)
		return
	}

	for y := 0; y < dst.H; y++ {
		sy := y * src.H / dst.H
		srcRow := src.Pix[sy*src.W:]
		dstRow := dst.Pix[y*dst.W : (y+1)*dst.W]
		for x := range dstRow {
			dstRow[x] = srcRow[x*src.W/dst.W]
		}
	}
}

// ResizeBilinear fills dst from src by bilinear sampling at dst pixel
// centers. dst must be preallocated.
func ResizeBilinear(dst, src Plane) {
	if !dst.Valid() || !src.Valid() {
		return
	}
	if dst.W == src.W && dst.H == src.H {
		copy(dst.Pix, src.Pix)
		return
	}

	for y := 0; y < dst.H; y++ {
		v := (float64(y) + 0.5) / float64(dst.H)
		for x := 0; x < dst.W; x++ {
			u := (float64(x) + 0.5) / float64(dst.W)
			dst.Pix[y*dst.W+x] = byte(math.Round(src.SampleBilinear(u, v) * 255.0))
		}
	}
}

// ResizeBilinearF32 resamples a float32 plane of size sw x sh into
// dst of size dw x dh, sampling at dst pixel centers and clamping at
// the edges.
func ResizeBilinearF32(dst []float32, dw, dh int, src []float32, sw, sh int) {
	if dw <= 0 || dh <= 0 || sw <= 0 || sh <= 0 || len(dst) < dw*dh || len(src) < sw*sh {
		return
	}
	if dw == sw && dh == sh {
		copy(dst, src[:dw*dh])
		return
	}

	clamp := func(i, n int) int {
		if i < 0 {
			return 0
		}
		if i >= n {
			return n - 1
		}
		return i
	}
	for y := 0; y < dh; y++ {
		py := (float64(y)+0.5)/float64(dh)*float64(sh) - 0.5
		y0 := int(math.Floor(py))
		fy := py - float64(y0)
		r0 := clamp(y0, sh) * sw
		r1 := clamp(y0+1, sh) * sw
		for x := 0; x < dw; x++ {
			px := (float64(x)+0.5)/float64(dw)*float64(sw) - 0.5
			x0 := int(math.Floor(px))
			fx := px - float64(x0)
			c0 := clamp(x0, sw)
			c1 := clamp(x0+1, sw)

			top := float64(src[r0+c0]) + (float64(src[r0+c1])-float64(src[r0+c0]))*fx
			bot := float64(src[r1+c0]) + (float64(src[r1+c1])-float64(src[r1+c0]))*fx
			dst[y*dw+x] = float32(top + (bot-top)*fy)
		}
	}
}

// Lerp writes round(a*(1-t) + b*t) into dst for every byte. The three
// slices must have equal length. t outside [0, 1] is clamped.
func Lerp(dst, a, b []byte, t float64) {
	if len(dst) != len(a) || len(dst) != len(b) {
		return
	}
	if t <= 0 {
		copy(dst, a)
		return
	}
	if t >= 1 {
		copy(dst, b)
		return
	}
	for i := range dst {
		av := float64(a[i])
		bv := float64(b[i])
		dst[i] = byte(math.Round(av + (bv-av)*t))
	}
}

// Normalize converts a float32 buffer to bytes by min/max scaling:
// the minimum maps to 0 and the maximum to 255. A flat input (max ==
// min) produces a plane filled with 128 so downstream effects see
// mid-depth rather than garbage.
func Normalize(dst []byte, src []float32) {
	if len(dst) != len(src) || len(src) == 0 {
		return
	}

	minV, maxV := src[0], src[0]
	for _, v := range src[1:] {
		if v < minV {
			minV = v
		}
		if v > maxV {
			maxV = v
		}
	}

	if maxV <= minV {
		for i := range dst {
			dst[i] = 128
		}
		return
	}

	scale := 255.0 / float64(maxV-minV)
	for i, v := range src {
		dst[i] = byte(math.Round(float64(v-minV) * scale))
	}
}
