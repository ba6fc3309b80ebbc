package filter

import (
	"sync"

	"github.com/gogpu/depthfx/internal/parallel"
)

// BlurRGBA applies a separable Gaussian blur to a tightly packed RGBA
// buffer. The two-pass algorithm convolves rows then columns, which is
// O(w*h*r) instead of O(w*h*r^2). Edges extend the border pixel.
//
// src and dst must both hold w*h*4 bytes; they may not alias.
// Radius <= 0 copies src to dst.
func BlurRGBA(dst, src []byte, w, h int, radius float64) {
	if len(src) < w*h*4 || len(dst) < w*h*4 || w <= 0 || h <= 0 {
		return
	}
	if radius <= 0 {
		copy(dst[:w*h*4], src[:w*h*4])
		return
	}

	kernel := CachedGaussianKernel(radius)
	half := len(kernel) / 2

	temp := getTempBuffer(w, h)
	defer putTempBuffer(temp)

	// Pass 1: horizontal, src -> temp.
	parallel.Rows(h, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			for x := 0; x < w; x++ {
				var r, g, b, a float32
				for k := range kernel {
					kx := x + k - half
					if kx < 0 {
						kx = 0
					} else if kx >= w {
						kx = w - 1
					}
					si := (y*w + kx) * 4
					wgt := kernel[k]
					r += float32(src[si+0]) * wgt
					g += float32(src[si+1]) * wgt
					b += float32(src[si+2]) * wgt
					a += float32(src[si+3]) * wgt
				}
				ti := (y*w + x) * 4
				temp[ti+0] = r
				temp[ti+1] = g
				temp[ti+2] = b
				temp[ti+3] = a
			}
		}
	})

	// Pass 2: vertical, temp -> dst.
	parallel.Rows(h, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			for x := 0; x < w; x++ {
				var r, g, b, a float32
				for k := range kernel {
					ky := y + k - half
					if ky < 0 {
						ky = 0
					} else if ky >= h {
						ky = h - 1
					}
					ti := (ky*w + x) * 4
					wgt := kernel[k]
					r += temp[ti+0] * wgt
					g += temp[ti+1] * wgt
					b += temp[ti+2] * wgt
					a += temp[ti+3] * wgt
				}
				di := (y*w + x) * 4
				dst[di+0] = clampUint8(r)
				dst[di+1] = clampUint8(g)
				dst[di+2] = clampUint8(b)
				dst[di+3] = clampUint8(a)
			}
		}
	})
}

type floatBuffer struct {
	data []float32
}

var tempBufferPool = sync.Pool{
	New: func() interface{} {
		return &floatBuffer{data: make([]float32, 1024*1024*4)}
	},
}

// getTempBuffer returns a pooled float32 buffer with at least
// width*height*4 elements.
func getTempBuffer(width, height int) []float32 {
	size := width * height * 4
	wrapper := tempBufferPool.Get().(*floatBuffer)
	if len(wrapper.data) < size {
		tempBufferPool.Put(wrapper)
		return make([]float32, size)
	}
	return wrapper.data[:size]
}

func putTempBuffer(buf []float32) {
	if cap(buf) <= 16*1024*1024 {
		tempBufferPool.Put(&floatBuffer{data: buf[:cap(buf)]})
	}
}

func clampUint8(v float32) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v + 0.5)
}
