// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import (
	"context"
	"math"

	"github.com/gogpu/depthfx/backend"
	"github.com/gogpu/depthfx/internal/jfa"
	"github.com/gogpu/depthfx/internal/parallel"
)

// Bevel light direction, normalized (-1, -1): light falls from the
// upper left, matching the rim highlight.
const bevelLightU, bevelLightV = -0.7071067811865476, -0.7071067811865476

// chromaticShift is the maximum per-channel UV offset at full
// dispersion, before scaling by the radial vector.
const chromaticShift = 0.03

// portalPipeline renders the source frame through a shaped cutout.
// The silhouette mask and its distance field depend only on the mesh
// and the viewport, so they are rasterized once per initialize or
// resize; the per-frame pass is a single composite.
type portalPipeline struct {
	pipeline
	spec backend.PortalSpec

	mask []byte    // 255 inside the silhouette
	dist []float32 // pixels to the nearest boundary cell
}

func (p *portalPipeline) Initialize(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.initBase(ctx); err != nil {
		return err
	}
	p.buildStatics()
	return nil
}

func (p *portalPipeline) Resize(vp backend.Viewport) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.resizeBase(vp); err != nil {
		return err
	}
	p.buildStatics()
	return nil
}

func (p *portalPipeline) Dispose() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.disposeBase()
	p.mask = nil
	p.dist = nil
}

// buildStatics rasterizes the silhouette mask and floods its distance
// field. Must hold mu.
func (p *portalPipeline) buildStatics() {
	w, h := p.vp.W, p.vp.H
	p.mask = make([]byte, w*h)
	p.dist = make([]float32, w*h)

	mesh := p.spec.Mesh
	if mesh != nil && len(mesh.Indices) >= 3 {
		s := p.spec.Scale * math.Min(float64(w), float64(h)) / 2
		cx := float64(w) / 2
		cy := float64(h) / 2
		for i := 0; i+2 < len(mesh.Indices); i += 3 {
			i0 := int(mesh.Indices[i]) * 2
			i1 := int(mesh.Indices[i+1]) * 2
			i2 := int(mesh.Indices[i+2]) * 2
			fillTriangle(p.mask, w, h,
				cx+float64(mesh.Vertices[i0])*s, cy-float64(mesh.Vertices[i0+1])*s,
				cx+float64(mesh.Vertices[i1])*s, cy-float64(mesh.Vertices[i1+1])*s,
				cx+float64(mesh.Vertices[i2])*s, cy-float64(mesh.Vertices[i2+1])*s)
		}
	}

	seeds := make([]byte, w*h)
	jfa.EdgeSeeds(seeds, p.mask, w, h)
	t := jfa.NewTransform(w, h)
	t.Distance(p.dist, seeds)
	p.log("portal statics built", "viewport_w", w, "viewport_h", h)
}

// fillTriangle rasterizes one triangle into the mask by testing pixel
// centers against the three edge functions.
func fillTriangle(mask []byte, w, h int, x0, y0, x1, y1, x2, y2 float64) {
	area := (x1-x0)*(y2-y0) - (x2-x0)*(y1-y0)
	if math.Abs(area) < 1e-12 {
		return
	}

	minX := clampInt(int(math.Floor(min3(x0, x1, x2))), 0, w-1)
	maxX := clampInt(int(math.Ceil(max3(x0, x1, x2))), 0, w-1)
	minY := clampInt(int(math.Floor(min3(y0, y1, y2))), 0, h-1)
	maxY := clampInt(int(math.Ceil(max3(y0, y1, y2))), 0, h-1)

	for y := minY; y <= maxY; y++ {
		py := float64(y) + 0.5
		for x := minX; x <= maxX; x++ {
			px := float64(x) + 0.5
			e0 := (x1-x0)*(py-y0) - (px-x0)*(y1-y0)
			e1 := (x2-x1)*(py-y1) - (px-x1)*(y2-y1)
			e2 := (x0-x2)*(py-y2) - (px-x2)*(y0-y2)
			if area > 0 {
				if e0 >= 0 && e1 >= 0 && e2 >= 0 {
					mask[y*w+x] = 255
				}
			} else {
				if e0 <= 0 && e1 <= 0 && e2 <= 0 {
					mask[y*w+x] = 255
				}
			}
		}
	}
}

func min3(a, b, c float64) float64 { return math.Min(a, math.Min(b, c)) }
func max3(a, b, c float64) float64 { return math.Max(a, math.Max(b, c)) }

func (p *portalPipeline) RenderFrame(in backend.FrameInput) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.checkFrame(in); err != nil {
		return err
	}

	w, h := p.vp.W, p.vp.H
	rangePx := p.spec.MaxRange * math.Min(float64(w), float64(h))
	if rangePx <= 0 {
		rangePx = 1
	}
	exterior := 1 - clamp01(p.spec.ExteriorDim)
	fb := p.fb

	parallel.Rows(h, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			v := (float64(y) + 0.5) / float64(h)
			row := fb[y*w*4 : (y+1)*w*4]
			for x := 0; x < w; x++ {
				u := (float64(x) + 0.5) / float64(w)
				i := y*w + x
				o := x * 4

				if p.mask[i] == 0 {
					su, sv := p.vp.Map(u, v)
					r, g, b, a := sampleRGBA(in.Pix, in.W, in.H, su, sv)
					row[o] = toByte(r * exterior)
					row[o+1] = toByte(g * exterior)
					row[o+2] = toByte(b * exterior)
					row[o+3] = toByte(a)
					continue
				}

				nd := clamp01(float64(p.dist[i]) / rangePx)
				r, g, b, a := p.shadeInterior(in, u, v, x, y, nd)
				row[o] = toByte(r)
				row[o+1] = toByte(g)
				row[o+2] = toByte(b)
				row[o+3] = toByte(a)
			}
		}
	})
	return nil
}

// shadeInterior samples the source through the lens remap and applies
// the boundary treatments: chromatic dispersion and rim light inside
// the rim band, directional wall shading inside the bevel band.
func (p *portalPipeline) shadeInterior(in backend.FrameInput, u, v float64, x, y int, nd float64) (r, g, b, a float64) {
	lu, lv := u, v
	if p.spec.LensStrength != 0 {
		su, sv := p.vp.Map(u, v)
		d := p.depth.SampleBilinear(su, sv)
		m := p.spec.LensStrength * (d - 0.5)
		lu = u + (u-0.5)*m
		lv = v + (v-0.5)*m
	}

	inRim := p.spec.RimWidth > 0 && nd < p.spec.RimWidth
	if inRim && p.spec.Chromatic > 0 {
		t := 1 - nd/p.spec.RimWidth
		shift := p.spec.Chromatic * t * chromaticShift
		du := u - 0.5
		dv := v - 0.5
		r, _, _, a = p.sampleMapped(in, lu+du*shift, lv+dv*shift)
		_, g, _, _ = p.sampleMapped(in, lu, lv)
		_, _, b, _ = p.sampleMapped(in, lu-du*shift, lv-dv*shift)
	} else {
		r, g, b, a = p.sampleMapped(in, lu, lv)
	}

	if p.spec.BevelWidth > 0 && nd < p.spec.BevelWidth {
		t := 1 - nd/p.spec.BevelWidth
		gx, gy := p.distGradient(x, y)
		shade := (gx*bevelLightU + gy*bevelLightV) * p.spec.ChamferDepth * t
		f := 1 + shade
		if f < 0 {
			f = 0
		}
		r *= f
		g *= f
		b *= f
	}

	if inRim {
		rim := p.spec.RimIntensity * (1 - nd/p.spec.RimWidth) * 255
		r += rim
		g += rim
		b += rim
	}
	return r, g, b, a
}

// sampleMapped samples the source frame at a target UV through the
// viewport transform, clamped to the frame.
func (p *portalPipeline) sampleMapped(in backend.FrameInput, u, v float64) (float64, float64, float64, float64) {
	su, sv := p.vp.Map(clamp01(u), clamp01(v))
	return sampleRGBA(in.Pix, in.W, in.H, su, sv)
}

// distGradient is the central difference of the distance field at
// (x, y), normalized. It points inward, away from the boundary.
func (p *portalPipeline) distGradient(x, y int) (float64, float64) {
	w, h := p.vp.W, p.vp.H
	x0 := clampInt(x-1, 0, w-1)
	x1 := clampInt(x+1, 0, w-1)
	y0 := clampInt(y-1, 0, h-1)
	y1 := clampInt(y+1, 0, h-1)

	gx := float64(p.dist[y*w+x1]) - float64(p.dist[y*w+x0])
	gy := float64(p.dist[y1*w+x]) - float64(p.dist[y0*w+x])
	n := math.Sqrt(gx*gx + gy*gy)
	if n < 1e-12 {
		return 0, 0
	}
	return gx / n, gy / n
}
