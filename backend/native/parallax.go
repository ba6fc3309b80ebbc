// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import (
	"context"

	"github.com/gogpu/depthfx/backend"
	"github.com/gogpu/depthfx/internal/parallel"
)

// parallaxPipeline displaces the source frame per pixel along the
// pointer vector, scaled by depth. With POM enabled it marches a ray
// through the depth plane instead of reading a single sample, which
// keeps near silhouettes from smearing over far content.
type parallaxPipeline struct {
	pipeline
	spec backend.ParallaxSpec
}

func (p *parallaxPipeline) Initialize(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.initBase(ctx)
}

func (p *parallaxPipeline) Resize(vp backend.Viewport) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.resizeBase(vp)
}

func (p *parallaxPipeline) Dispose() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disposeBase()
}

func (p *parallaxPipeline) RenderFrame(in backend.FrameInput) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.checkFrame(in); err != nil {
		return err
	}

	// Displacement at the depth extremes, in source UV units.
	dirU := in.InputX * p.spec.Strength * p.spec.AxisX
	dirV := in.InputY * p.spec.Strength * p.spec.AxisY

	steps := 0
	if p.spec.POM {
		steps = p.quality.POMSteps
	}

	w, h := p.vp.W, p.vp.H
	fb := p.fb
	parallel.Rows(h, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			v := (float64(y) + 0.5) / float64(h)
			row := fb[y*w*4 : (y+1)*w*4]
			for x := 0; x < w; x++ {
				u := (float64(x) + 0.5) / float64(w)
				su, sv := p.vp.Map(u, v)

				var tu, tv float64
				if steps > 0 {
					tu, tv = p.pomTrace(su, sv, dirU, dirV, steps)
				} else {
					d := p.depth.SampleBilinear(su, sv)
					tu = su + (d-0.5)*dirU
					tv = sv + (d-0.5)*dirV
				}

				r, g, b, a := sampleRGBA(in.Pix, in.W, in.H, clamp01(tu), clamp01(tv))
				o := x * 4
				row[o] = toByte(r)
				row[o+1] = toByte(g)
				row[o+2] = toByte(b)
				row[o+3] = toByte(a)
			}
		}
	})
	return nil
}

// pomTrace marches the view ray from the near plane down through the
// depth surface and returns the UV where it first hits, with one
// linear refinement between the straddling steps. The first hit wins,
// so near silhouettes occlude far content. On constant depth d the
// result lands exactly at the plain offset (d-0.5)*dir.
func (p *parallaxPipeline) pomTrace(su, sv, dirU, dirV float64, steps int) (float64, float64) {
	if dirU == 0 && dirV == 0 {
		return su, sv
	}

	// Ray start: the sample a near-plane pixel (depth 1) would get.
	// At parameter t the ray has descended to height 1-t and moved t
	// of the displacement range toward the far-end sample.
	baseU := su + 0.5*dirU
	baseV := sv + 0.5*dirV

	prevT := 0.0
	prevF := p.depth.SampleBilinear(baseU, baseV) - 1
	if prevF >= 0 {
		return baseU, baseV
	}

	dt := 1.0 / float64(steps)
	for i := 1; i <= steps; i++ {
		t := float64(i) * dt
		f := p.depth.SampleBilinear(baseU-dirU*t, baseV-dirV*t) - (1 - t)
		if f >= 0 {
			tt := t
			if f != prevF {
				tt = prevT + dt*(-prevF)/(f-prevF)
			}
			return baseU - dirU*tt, baseV - dirV*tt
		}
		prevT, prevF = t, f
	}
	return baseU - dirU, baseV - dirV
}
