// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/depthfx/backend"
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

// pipeline is the state shared by every GPU effect: the viewport, the
// resolved quality parameters, the depth buffers with their bilateral
// filter passes, and the source/output/staging buffers. Effect types
// embed it and add their own stages.
//
// The filtered depth lives on the GPU as normalized f32 texels. The
// bilateral filter runs as one accumulation pass per kernel offset
// plus a resolve pass, each offset carrying a static uniform with its
// spatial weight.
type pipeline struct {
	mu      sync.Mutex
	state   pipelineState
	dev     *device
	vp      backend.Viewport
	quality *backend.QualityParams
	logger  *slog.Logger

	// Depth resources. rawPlane is the CPU-side downsample target for
	// uploads larger than the quality cap; depthScratch and zeroDepth
	// are WriteBuffer scratch of the same byte size as the planes.
	dw, dh       int
	rawPlane     plane.Plane
	depthScratch []byte
	zeroDepth    []byte
	rawDepth     *buffer
	depthSum     *buffer
	depthWsum    *buffer
	depthBuf     *buffer

	stAccum    *computeStage
	stDepthRes *computeStage

	accumUniforms   []*buffer
	accumBinds      []hal.BindGroup
	depthResUniform *buffer
	depthResBind    hal.BindGroup

	// Target resources. The staging buffer mirrors outBuf for the
	// mapped readback into fb.
	srcW, srcH int
	srcBuf     *buffer
	outBuf     *buffer
	stagingBuf *buffer
	fb         []byte

	// dirty is set whenever a buffer an effect bind group references
	// was reallocated; effects rebuild their bind groups on the next
	// frame.
	dirty bool
}

func (p *pipeline) configure(dev *device, vp backend.Viewport, q *backend.QualityParams, logger *slog.Logger) {
	p.dev = dev
	p.vp = vp
	p.quality = q
	p.logger = logger
}

// beginInit handles the lifecycle half of Initialize: done reports
// whether the caller should return err as is instead of building its
// resources. Must hold mu.
func (p *pipeline) beginInit(ctx context.Context) (done bool, err error) {
	switch p.state {
	case stateDisposed:
		return true, backend.ErrDisposed
	case stateReady:
		return true, nil
	}
	if err := ctx.Err(); err != nil {
		return true, err
	}
	return false, nil
}

// initBase compiles the bilateral stages and allocates the depth and
// target resources every effect shares. On error the caller releases
// via releaseBase. Must hold mu.
func (p *pipeline) initBase() error {
	var err error
	p.stAccum, err = p.dev.newStage("depth_accum", bilateralAccumShaderSource, []gputypes.BufferBindingType{
		gputypes.BufferBindingTypeUniform,
		gputypes.BufferBindingTypeReadOnlyStorage,
		gputypes.BufferBindingTypeStorage,
		gputypes.BufferBindingTypeStorage,
	})
	if err != nil {
		return err
	}
	p.stDepthRes, err = p.dev.newStage("depth_resolve", bilateralResolveShaderSource, []gputypes.BufferBindingType{
		gputypes.BufferBindingTypeUniform,
		gputypes.BufferBindingTypeReadOnlyStorage,
		gputypes.BufferBindingTypeReadOnlyStorage,
		gputypes.BufferBindingTypeStorage,
	})
	if err != nil {
		return err
	}

	dw, dh := capDims(p.vp.W, p.vp.H, p.quality.DepthMaxDim)
	if err := p.allocDepth(dw, dh); err != nil {
		return err
	}
	if err := p.allocTarget(); err != nil {
		return err
	}

	// Neutral depth before the first upload.
	p.rawPlane.Fill(midDepth)
	mid := math.Float32bits(float32(midDepth) / 255)
	for i := 0; i < len(p.depthScratch); i += 4 {
		binary.LittleEndian.PutUint32(p.depthScratch[i:], mid)
	}
	p.dev.queue.WriteBuffer(p.depthBuf.b, 0, p.depthScratch)
	return nil
}

// allocDepth creates the depth buffers at dw*dh texels plus the static
// bilateral pass uniforms and bind groups. Must hold mu.
func (p *pipeline) allocDepth(dw, dh int) error {
	n := uint64(dw) * uint64(dh) * 4
	var err error
	if p.rawDepth, err = p.dev.newBuffer("depth_raw", n, usageStorage); err != nil {
		return err
	}
	if p.depthSum, err = p.dev.newBuffer("depth_sum", n, usageStorage); err != nil {
		return err
	}
	if p.depthWsum, err = p.dev.newBuffer("depth_wsum", n, usageStorage); err != nil {
		return err
	}
	if p.depthBuf, err = p.dev.newBuffer("depth_filtered", n, usageStorage); err != nil {
		return err
	}
	p.dw, p.dh = dw, dh
	p.rawPlane = plane.New(dw, dh)
	p.depthScratch = make([]byte, n)
	p.zeroDepth = make([]byte, n)

	// One accumulation pass per kernel offset. Spatial sigma is
	// radius/2 (minimum 0.5), matching filter.NewBilateral.
	r := p.quality.BilateralRadius
	if r < 0 {
		r = 0
	}
	sigma := float64(r) / 2
	if sigma < 0.5 {
		sigma = 0.5
	}
	twoSigmaSq := 2 * sigma * sigma
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			wgt := math.Exp(-float64(dx*dx+dy*dy) / twoSigmaSq)
			blk := (&params{}).u32(uint32(dw)).u32(uint32(dh)).i32(int32(dx)).i32(int32(dy)).f32(wgt).bytes()
			u, err := p.dev.newUniform("depth_accum_params", blk)
			if err != nil {
				return err
			}
			p.accumUniforms = append(p.accumUniforms, u)
			bg, err := p.dev.newBindGroup("depth_accum", p.stAccum.bindLayout, u, p.rawDepth, p.depthSum, p.depthWsum)
			if err != nil {
				return err
			}
			p.accumBinds = append(p.accumBinds, bg)
		}
	}

	blk := (&params{}).u32(uint32(dw)).u32(uint32(dh)).bytes()
	if p.depthResUniform, err = p.dev.newUniform("depth_resolve_params", blk); err != nil {
		return err
	}
	p.depthResBind, err = p.dev.newBindGroup("depth_resolve", p.stDepthRes.bindLayout,
		p.depthResUniform, p.depthSum, p.depthWsum, p.depthBuf)
	return err
}

// releaseDepth frees the depth buffers and their pass resources. Must
// hold mu.
func (p *pipeline) releaseDepth() {
	p.dev.destroyBindGroups(p.accumBinds)
	p.accumBinds = nil
	p.dev.destroyBuffers(p.accumUniforms)
	p.accumUniforms = nil
	p.dev.destroyBindGroup(p.depthResBind)
	p.depthResBind = nil
	p.depthResUniform.destroy(p.dev)
	p.depthResUniform = nil
	p.rawDepth.destroy(p.dev)
	p.depthSum.destroy(p.dev)
	p.depthWsum.destroy(p.dev)
	p.depthBuf.destroy(p.dev)
	p.rawDepth, p.depthSum, p.depthWsum, p.depthBuf = nil, nil, nil, nil
	p.rawPlane = plane.Plane{}
	p.depthScratch = nil
	p.zeroDepth = nil
	p.dw, p.dh = 0, 0
}

// allocTarget creates the output and staging buffers plus the CPU
// framebuffer for the current viewport. Must hold mu.
func (p *pipeline) allocTarget() error {
	n := uint64(p.vp.W) * uint64(p.vp.H) * 4
	var err error
	if p.outBuf, err = p.dev.newBuffer("frame_out", n, usageStorage); err != nil {
		return err
	}
	if p.stagingBuf, err = p.dev.newBuffer("frame_staging", n, usageStaging); err != nil {
		return err
	}
	p.fb = make([]byte, n)
	return nil
}

// releaseTarget frees the output side. Must hold mu.
func (p *pipeline) releaseTarget() {
	p.outBuf.destroy(p.dev)
	p.stagingBuf.destroy(p.dev)
	p.outBuf, p.stagingBuf = nil, nil
	p.fb = nil
}

// releaseBase frees everything the base owns. Idempotent. Must hold mu.
func (p *pipeline) releaseBase() {
	p.releaseDepth()
	p.releaseTarget()
	p.srcBuf.destroy(p.dev)
	p.srcBuf = nil
	p.srcW, p.srcH = 0, 0
	p.stAccum.destroy(p.dev)
	p.stDepthRes.destroy(p.dev)
	p.stAccum, p.stDepthRes = nil, nil
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
// quality cap are downsampled on the CPU into the capped plane, then
// the bilateral pass chain filters the result on the GPU in a single
// submission.
func (p *pipeline) UploadDepth(buf []byte, w, h int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ensureReady(); err != nil {
		return err
	}
	if w <= 0 || h <= 0 {
		return fmt.Errorf("wgpu: depth dimensions %dx%d", w, h)
	}
	if len(buf) < w*h {
		return fmt.Errorf("wgpu: depth buffer %d bytes, need %d", len(buf), w*h)
	}

	cw, ch := capDims(w, h, p.quality.DepthMaxDim)
	if cw != p.dw || ch != p.dh {
		p.releaseDepth()
		if err := p.allocDepth(cw, ch); err != nil {
			return err
		}
		p.dirty = true
	}

	src := plane.Plane{Pix: buf[:w*h], W: w, H: h}
	plane.DownsampleNearest(p.rawPlane, src)
	for i, v := range p.rawPlane.Pix {
		binary.LittleEndian.PutUint32(p.depthScratch[i*4:], uint32(v))
	}
	p.dev.queue.WriteBuffer(p.rawDepth.b, 0, p.depthScratch)
	p.dev.queue.WriteBuffer(p.depthSum.b, 0, p.zeroDepth)
	p.dev.queue.WriteBuffer(p.depthWsum.b, 0, p.zeroDepth)

	gx, gy := groups2D(p.dw, p.dh)
	passes := make([]pass, 0, len(p.accumBinds)+1)
	for _, bg := range p.accumBinds {
		passes = append(passes, pass{stage: p.stAccum, bind: bg, x: gx, y: gy})
	}
	passes = append(passes, pass{stage: p.stDepthRes, bind: p.depthResBind, x: gx, y: gy})
	return p.dev.run("depth_filter", passes, nil)
}

// ensureSrc guarantees the source buffer fits a w*h RGBA frame,
// reallocating on dimension change. Must hold mu.
func (p *pipeline) ensureSrc(w, h int) error {
	if p.srcBuf != nil && p.srcW == w && p.srcH == h {
		return nil
	}
	p.srcBuf.destroy(p.dev)
	p.srcBuf = nil
	b, err := p.dev.newBuffer("frame_src", uint64(w)*uint64(h)*4, usageStorage)
	if err != nil {
		return err
	}
	p.srcBuf = b
	p.srcW, p.srcH = w, h
	p.dirty = true
	return nil
}

// checkFrame validates a RenderFrame input. Must hold mu.
func (p *pipeline) checkFrame(in backend.FrameInput) error {
	if err := p.ensureReady(); err != nil {
		return err
	}
	if in.W <= 0 || in.H <= 0 {
		return fmt.Errorf("wgpu: frame dimensions %dx%d", in.W, in.H)
	}
	if len(in.Pix) < in.W*in.H*4 {
		return fmt.Errorf("wgpu: frame buffer %d bytes, need %d", len(in.Pix), in.W*in.H*4)
	}
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

// readFrame maps the staging buffer into fb. Packed u32 texels in
// little-endian memory are exactly the RGBA byte order, so the copy
// needs no swizzle. Must hold mu.
func (p *pipeline) readFrame() error {
	if err := p.dev.queue.ReadBuffer(p.stagingBuf.b, 0, p.fb); err != nil {
		return fmt.Errorf("wgpu: read frame: %w", err)
	}
	return nil
}

// resizeBase swaps the viewport and reallocates the output side. The
// depth buffers are untouched: their resolution follows uploads, not
// the target. Must hold mu.
func (p *pipeline) resizeBase(vp backend.Viewport) error {
	if err := p.ensureReady(); err != nil {
		return err
	}
	if !vp.Valid() {
		return fmt.Errorf("wgpu: invalid viewport %dx%d", vp.W, vp.H)
	}
	p.vp = vp
	p.releaseTarget()
	if err := p.allocTarget(); err != nil {
		return err
	}
	p.dirty = true
	p.log("pipeline resized", "viewport_w", vp.W, "viewport_h", vp.H)
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
