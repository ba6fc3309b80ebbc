// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/gogpu/depthfx/backend"
	"github.com/gogpu/depthfx/internal/filter"
	"github.com/gogpu/depthfx/internal/plane"
)

// pipelineState tracks the lifecycle: a pipeline is built, initialized
// exactly once, then disposed. Disposal is terminal.
type pipelineState int

const (
	stateNew pipelineState = iota
	stateReady
	stateDisposed
)

// midDepth is the neutral depth value before the first upload. At the
// midpoint every effect degenerates gracefully: parallax displaces by
// zero, rack focus sees a flat plane, the portal lens stays at unity.
const midDepth = 128

// pipeline is the state shared by every CPU effect: the viewport, the
// resolved quality parameters, the filtered depth plane and the output
// framebuffer. Effect types embed it and add their own passes.
type pipeline struct {
	mu      sync.Mutex
	state   pipelineState
	vp      backend.Viewport
	quality *backend.QualityParams
	logger  *slog.Logger

	// rawDepth holds the upload capped to DepthMaxDim; depth is the
	// bilateral-filtered plane every pass samples.
	rawDepth  plane.Plane
	depth     plane.Plane
	bilateral *filter.Bilateral

	fb []byte
}

func (p *pipeline) configure(vp backend.Viewport, q *backend.QualityParams, logger *slog.Logger) {
	p.vp = vp
	p.quality = q
	p.logger = logger
}

// initBase allocates the framebuffer and a neutral depth plane so
// RenderFrame works before the first UploadDepth. Must hold mu.
func (p *pipeline) initBase(ctx context.Context) error {
	switch p.state {
	case stateDisposed:
		return backend.ErrDisposed
	case stateReady:
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	dw, dh := capDims(p.vp.W, p.vp.H, p.quality.DepthMaxDim)
	p.rawDepth = plane.New(dw, dh)
	p.depth = plane.New(dw, dh)
	p.rawDepth.Fill(midDepth)
	p.depth.Fill(midDepth)
	p.bilateral = filter.NewBilateral(p.quality.BilateralRadius)
	p.fb = make([]byte, p.vp.W*p.vp.H*4)

	p.state = stateReady
	p.log("pipeline initialized", "viewport_w", p.vp.W, "viewport_h", p.vp.H,
		"depth_w", dw, "depth_h", dh, "tier", p.quality.Tier.String())
	return nil
}

// ensureReady reports the lifecycle error for the current state, if
// any. Must hold mu.
func (p *pipeline) ensureReady() error {
	switch p.state {
	case stateNew:
		return backend.ErrNotInitialized
	case stateDisposed:
		return backend.ErrDisposed
	}
	return nil
}

// UploadDepth replaces the depth plane. Uploads larger than the
// quality cap are downsampled into the capped plane first, then the
// bilateral filter smooths the result. At stable dimensions the path
// is allocation free.
func (p *pipeline) UploadDepth(buf []byte, w, h int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ensureReady(); err != nil {
		return err
	}
	if w <= 0 || h <= 0 {
		return fmt.Errorf("native: depth dimensions %dx%d", w, h)
	}
	if len(buf) < w*h {
		return fmt.Errorf("native: depth buffer %d bytes, need %d", len(buf), w*h)
	}

	cw, ch := capDims(w, h, p.quality.DepthMaxDim)
	if p.rawDepth.W != cw || p.rawDepth.H != ch {
		p.rawDepth = plane.New(cw, ch)
		p.depth = plane.New(cw, ch)
	}
	src := plane.Plane{Pix: buf[:w*h], W: w, H: h}
	plane.DownsampleNearest(p.rawDepth, src)
	p.bilateral.Apply(p.depth, p.rawDepth)
	return nil
}

// Frame returns the last rendered frame. The slice is borrowed: it
// stays valid until the next RenderFrame, Resize or Dispose call.
func (p *pipeline) Frame() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != stateReady {
		return nil
	}
	return p.fb
}

// resizeBase swaps the viewport and reallocates the framebuffer. The
// depth plane is untouched: its resolution follows uploads, not the
// target. Must hold mu.
func (p *pipeline) resizeBase(vp backend.Viewport) error {
	if err := p.ensureReady(); err != nil {
		return err
	}
	if !vp.Valid() {
		return fmt.Errorf("native: invalid viewport %dx%d", vp.W, vp.H)
	}
	p.vp = vp
	p.fb = make([]byte, vp.W*vp.H*4)
	p.log("pipeline resized", "viewport_w", vp.W, "viewport_h", vp.H)
	return nil
}

// disposeBase releases the shared buffers. Idempotent. Must hold mu.
func (p *pipeline) disposeBase() {
	if p.state == stateDisposed {
		return
	}
	p.state = stateDisposed
	p.rawDepth = plane.Plane{}
	p.depth = plane.Plane{}
	p.bilateral = nil
	p.fb = nil
}

// checkFrame validates a RenderFrame input. Must hold mu.
func (p *pipeline) checkFrame(in backend.FrameInput) error {
	if err := p.ensureReady(); err != nil {
		return err
	}
	if in.W <= 0 || in.H <= 0 {
		return fmt.Errorf("native: frame dimensions %dx%d", in.W, in.H)
	}
	if len(in.Pix) < in.W*in.H*4 {
		return fmt.Errorf("native: frame buffer %d bytes, need %d", len(in.Pix), in.W*in.H*4)
	}
	return nil
}

func (p *pipeline) log(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Debug(msg, args...)
	}
}

// capDims shrinks (w, h) preserving aspect so the longer side does not
// exceed maxDim. Nonpositive maxDim disables the cap.
func capDims(w, h, maxDim int) (int, int) {
	if maxDim <= 0 || (w <= maxDim && h <= maxDim) {
		return w, h
	}
	if w >= h {
		nh := (h*maxDim + w/2) / w
		if nh < 1 {
			nh = 1
		}
		return maxDim, nh
	}
	nw := (w*maxDim + h/2) / h
	if nw < 1 {
		nw = 1
	}
	return nw, maxDim
}

// sampleRGBA samples a tightly packed RGBA buffer bilinearly at
// normalized (u, v) with the same pixel-center, edge-clamped
// convention as plane.SampleBilinear. Channels return in [0, 255].
func sampleRGBA(pix []byte, w, h int, u, v float64) (r, g, b, a float64) {
	px := u*float64(w) - 0.5
	py := v*float64(h) - 0.5

	x0 := int(math.Floor(px))
	y0 := int(math.Floor(py))
	fx := px - float64(x0)
	fy := py - float64(y0)

	x1 := clampInt(x0+1, 0, w-1)
	y1 := clampInt(y0+1, 0, h-1)
	x0 = clampInt(x0, 0, w-1)
	y0 = clampInt(y0, 0, h-1)

	i00 := (y0*w + x0) * 4
	i10 := (y0*w + x1) * 4
	i01 := (y1*w + x0) * 4
	i11 := (y1*w + x1) * 4

	w00 := (1 - fx) * (1 - fy)
	w10 := fx * (1 - fy)
	w01 := (1 - fx) * fy
	w11 := fx * fy

	r = float64(pix[i00])*w00 + float64(pix[i10])*w10 + float64(pix[i01])*w01 + float64(pix[i11])*w11
	g = float64(pix[i00+1])*w00 + float64(pix[i10+1])*w10 + float64(pix[i01+1])*w01 + float64(pix[i11+1])*w11
	b = float64(pix[i00+2])*w00 + float64(pix[i10+2])*w10 + float64(pix[i01+2])*w01 + float64(pix[i11+2])*w11
	a = float64(pix[i00+3])*w00 + float64(pix[i10+3])*w10 + float64(pix[i01+3])*w01 + float64(pix[i11+3])*w11
	return r, g, b, a
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func toByte(v float64) byte {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return byte(v + 0.5)
}
