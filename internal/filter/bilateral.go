package filter

import (
	"math"

	"github.com/gogpu/depthfx/internal/parallel"
	"github.com/gogpu/depthfx/internal/plane"
)

// Bilateral smooths a depth plane while preserving depth
// discontinuities. Each output byte is a weighted average over a
// (2r+1)^2 window where the weight is the product of a spatial
// Gaussian and a range Gaussian on the byte difference to the center.
//
// Smoothing raw depth before any effect consumes it removes the
// blocky quantization that per-pixel displacement would otherwise
// turn into visible tearing.
type Bilateral struct {
	radius  int
	spatial []float64
	rangeW  [256]float64
}

// NewBilateral builds a bilateral kernel for the given pixel radius.
// Spatial sigma is radius/2 (minimum 0.5); range sigma is fixed at 25
// byte levels, which keeps silhouette edges intact on 8-bit depth.
func NewBilateral(radius int) *Bilateral {
	if radius < 0 {
		radius = 0
	}

	b := &Bilateral{radius: radius}

	sigmaSpace := float64(radius) / 2
	if sigmaSpace < 0.5 {
		sigmaSpace = 0.5
	}
	size := 2*radius + 1
	b.spatial = make([]float64, size*size)
	twoSigmaSq := 2 * sigmaSpace * sigmaSpace
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			d2 := float64(dx*dx + dy*dy)
			b.spatial[(dy+radius)*size+(dx+radius)] = math.Exp(-d2 / twoSigmaSq)
		}
	}

	const sigmaRange = 25.0
	twoRangeSq := 2 * sigmaRange * sigmaRange
	for d := 0; d < 256; d++ {
		b.rangeW[d] = math.Exp(-float64(d*d) / twoRangeSq)
	}
	return b
}

// Radius returns the kernel radius in pixels.
func (b *Bilateral) Radius() int { return b.radius }

// Apply filters src into dst. Both planes must share dimensions; dst
// must be preallocated. Radius 0 degenerates to a copy. Rows are
// processed on the shared worker pool.
func (b *Bilateral) Apply(dst, src plane.Plane) {
	if !dst.Valid() || !src.Valid() || dst.W != src.W || dst.H != src.H {
		return
	}
	if b.radius == 0 {
		copy(dst.Pix, src.Pix)
		return
	}

	r := b.radius
	size := 2*r + 1
	w, h := src.W, src.H

	parallel.Rows(h, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			for x := 0; x < w; x++ {
				center := src.Pix[y*w+x]

				var sum, weight float64
				for dy := -r; dy <= r; dy++ {
					sy := y + dy
					if sy < 0 {
						sy = 0
					} else if sy >= h {
						sy = h - 1
					}
					row := src.Pix[sy*w:]
					spatialRow := b.spatial[(dy+r)*size:]
					for dx := -r; dx <= r; dx++ {
						sx := x + dx
						if sx < 0 {
							sx = 0
						} else if sx >= w {
							sx = w - 1
						}
						v := row[sx]
						d := int(v) - int(center)
						if d < 0 {
							d = -d
						}
						wgt := spatialRow[dx+r] * b.rangeW[d]
						sum += wgt * float64(v)
						weight += wgt
					}
				}
				dst.Pix[y*w+x] = byte(sum/weight + 0.5)
			}
		}
	})
}
