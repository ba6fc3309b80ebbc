// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import (
	"context"
	"math"

	"github.com/gogpu/depthfx/backend"
	"github.com/gogpu/depthfx/internal/filter"
	"github.com/gogpu/depthfx/internal/parallel"
)

// Composite tuning. The sharp/blur mix saturates at a third of the
// full circle of confusion; highlights above the luma threshold bloom
// in proportion to how far they sit out of focus.
const (
	cocBlendGain   = 3.0
	bloomThreshold = 0.75
)

// rackFocusPipeline renders depth of field in three passes: a signed
// circle-of-confusion plane, a Poisson-disc depth-aware gather, and a
// composite that mixes sharp and blurred by CoC magnitude and applies
// vignette and highlight bloom.
type rackFocusPipeline struct {
	pipeline
	spec backend.RackFocusSpec

	taps []filter.Sample

	// Per-viewport-pixel planes from the CoC pass. dpx caches the
	// depth sample so the gather's tap weighting reads the exact
	// values the CoC was derived from.
	coc []float32
	dpx []float32

	// Gather output, full or half resolution by quality tier.
	blur         []byte
	blurW, blurH int
}

func (p *rackFocusPipeline) Initialize(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.initBase(ctx); err != nil {
		return err
	}
	p.taps = filter.PoissonDisc(p.quality.PoissonSamples)
	p.allocPlanes()
	return nil
}

func (p *rackFocusPipeline) Resize(vp backend.Viewport) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.resizeBase(vp); err != nil {
		return err
	}
	p.allocPlanes()
	return nil
}

func (p *rackFocusPipeline) Dispose() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.disposeBase()
	p.taps = nil
	p.coc = nil
	p.dpx = nil
	p.blur = nil
}

// allocPlanes sizes the CoC, depth and blur planes for the current
// viewport. Must hold mu.
func (p *rackFocusPipeline) allocPlanes() {
	w, h := p.vp.W, p.vp.H
	p.coc = make([]float32, w*h)
	p.dpx = make([]float32, w*h)

	p.blurW, p.blurH = w, h
	if p.quality.HalfResBlur {
		p.blurW = (w + 1) / 2
		p.blurH = (h + 1) / 2
	}
	p.blur = make([]byte, p.blurW*p.blurH*4)
}

// uvMap composes the viewport transform with the focus breathing
// zoom: a scale above 1 samples a smaller region about the center,
// the offset shifts vertically.
type uvMap struct {
	vp            backend.Viewport
	scale, offset float64
}

func (m uvMap) src(u, v float64) (float64, float64) {
	su, sv := m.vp.Map(u, v)
	if m.scale != 1 {
		su = 0.5 + (su-0.5)/m.scale
		sv = 0.5 + (sv-0.5)/m.scale
	}
	return su, sv + m.offset
}

func (p *rackFocusPipeline) RenderFrame(in backend.FrameInput) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.checkFrame(in); err != nil {
		return err
	}

	scale := in.BreathScale
	if scale <= 0 {
		scale = 1
	}
	m := uvMap{vp: p.vp, scale: scale, offset: in.BreathOffset}
	focal := clampF(in.Focal, p.spec.FocusMin, p.spec.FocusMax)

	p.cocPass(m, focal)
	p.gatherPass(in, m)
	p.compositePass(in, m)
	return nil
}

// cocPass fills the signed circle-of-confusion and depth planes. The
// sign encodes which side of the focal plane a pixel sits on; only
// the magnitude drives blur radius.
func (p *rackFocusPipeline) cocPass(m uvMap, focal float64) {
	w, h := p.vp.W, p.vp.H
	aperture := p.spec.Aperture
	parallel.Rows(h, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			v := (float64(y) + 0.5) / float64(h)
			for x := 0; x < w; x++ {
				u := (float64(x) + 0.5) / float64(w)
				su, sv := m.src(u, v)
				d := p.depth.SampleBilinear(su, sv)
				i := y*w + x
				p.dpx[i] = float32(d)
				p.coc[i] = float32(clampF((d-focal)*aperture, -1, 1))
			}
		}
	})
}

// cocAt reads the CoC plane at a viewport UV, nearest sample.
func (p *rackFocusPipeline) cocAt(u, v float64) (coc, depth float64) {
	w, h := p.vp.W, p.vp.H
	x := clampInt(int(u*float64(w)), 0, w-1)
	y := clampInt(int(v*float64(h)), 0, h-1)
	i := y*w + x
	return float64(p.coc[i]), float64(p.dpx[i])
}

// gatherPass scatters Poisson-disc taps around each pixel with radius
// proportional to its CoC. Taps that are sharper and nearer than the
// center are down-weighted so in-focus foreground detail does not
// bleed into a blurred background.
func (p *rackFocusPipeline) gatherPass(in backend.FrameInput, m uvMap) {
	bw, bh := p.blurW, p.blurH
	vw, vh := float64(p.vp.W), float64(p.vp.H)
	maxBlur := p.spec.MaxBlur

	parallel.Rows(bh, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			v := (float64(y) + 0.5) / float64(bh)
			for x := 0; x < bw; x++ {
				u := (float64(x) + 0.5) / float64(bw)
				o := (y*bw + x) * 4

				cocHere, dHere := p.cocAt(u, v)
				mag := math.Abs(cocHere)
				radius := mag * maxBlur

				su, sv := m.src(u, v)
				r, g, b, a := sampleRGBA(in.Pix, in.W, in.H, su, sv)
				if radius < 0.5 {
					p.blur[o] = toByte(r)
					p.blur[o+1] = toByte(g)
					p.blur[o+2] = toByte(b)
					p.blur[o+3] = toByte(a)
					continue
				}

				wsum := 1.0
				for _, tp := range p.taps {
					tu := clamp01(u + float64(tp.X)*radius/vw)
					tv := clamp01(v + float64(tp.Y)*radius/vh)

					wgt := 1.0
					cocTap, dTap := p.cocAt(tu, tv)
					magTap := math.Abs(cocTap)
					if magTap < mag && dTap > dHere {
						wgt = magTap / mag
					}

					tsu, tsv := m.src(tu, tv)
					tr, tg, tb, ta := sampleRGBA(in.Pix, in.W, in.H, tsu, tsv)
					r += tr * wgt
					g += tg * wgt
					b += tb * wgt
					a += ta * wgt
					wsum += wgt
				}

				p.blur[o] = toByte(r / wsum)
				p.blur[o+1] = toByte(g / wsum)
				p.blur[o+2] = toByte(b / wsum)
				p.blur[o+3] = toByte(a / wsum)
			}
		}
	})
}

// compositePass mixes sharp and blurred by CoC magnitude, then layers
// vignette and highlight bloom.
func (p *rackFocusPipeline) compositePass(in backend.FrameInput, m uvMap) {
	w, h := p.vp.W, p.vp.H
	fullRes := p.blurW == w && p.blurH == h
	vignette := p.spec.Vignette
	bloom := p.spec.Bloom
	fb := p.fb

	parallel.Rows(h, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			v := (float64(y) + 0.5) / float64(h)
			row := fb[y*w*4 : (y+1)*w*4]
			for x := 0; x < w; x++ {
				u := (float64(x) + 0.5) / float64(w)
				i := y*w + x
				o := x * 4

				mag := math.Abs(float64(p.coc[i]))
				blend := clamp01(mag * cocBlendGain)

				su, sv := m.src(u, v)
				sr, sg, sb, sa := sampleRGBA(in.Pix, in.W, in.H, su, sv)

				var br, bg, bb, ba float64
				if fullRes {
					bo := i * 4
					br = float64(p.blur[bo])
					bg = float64(p.blur[bo+1])
					bb = float64(p.blur[bo+2])
					ba = float64(p.blur[bo+3])
				} else {
					br, bg, bb, ba = sampleRGBA(p.blur, p.blurW, p.blurH, u, v)
				}

				r := sr + (br-sr)*blend
				g := sg + (bg-sg)*blend
				b := sb + (bb-sb)*blend
				a := sa + (ba-sa)*blend

				if vignette > 0 {
					dx := u - 0.5
					dy := v - 0.5
					vig := 1 - vignette*2*(dx*dx+dy*dy)
					if vig < 0 {
						vig = 0
					}
					r *= vig
					g *= vig
					b *= vig
				}

				if bloom > 0 && blend > 0 {
					lum := (0.2126*br + 0.7152*bg + 0.0722*bb) / 255
					if lum > bloomThreshold {
						boost := 1 + bloom*(lum-bloomThreshold)/(1-bloomThreshold)*mag
						r *= boost
						g *= boost
						b *= boost
					}
				}

				row[o] = toByte(r)
				row[o+1] = toByte(g)
				row[o+2] = toByte(b)
				row[o+3] = toByte(a)
			}
		}
	})
}
