// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"context"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/depthfx/backend"
	"github.com/gogpu/depthfx/internal/filter"
)

// rackFocusPipeline renders depth of field as a CoC pass, one gather
// pass per Poisson tap, a resolve pass and a composite pass, all
// submitted together. The center tap runs first and resets the
// accumulators, so the tap chain needs no separate clear. Tap offsets
// are static uniforms written once at Initialize.
type rackFocusPipeline struct {
	pipeline
	spec backend.RackFocusSpec

	stCoC       *computeStage
	stTap       *computeStage
	stGatherRes *computeStage
	stComposite *computeStage

	// Viewport-resolution CoC and depth planes; the gather's tap
	// weighting reads the exact values the CoC was derived from.
	cocBuf *buffer
	dpxBuf *buffer

	// Gather accumulators and resolved blur plane, full or half
	// resolution by quality tier.
	sumBuf       *buffer
	wsumBuf      *buffer
	blurBuf      *buffer
	blurW, blurH int

	cocParams       *buffer
	gatherParams    *buffer
	gatherResParams *buffer
	compParams      *buffer
	tapUniforms     []*buffer

	bgCoC       hal.BindGroup
	bgGatherRes hal.BindGroup
	bgComposite hal.BindGroup
	bgTaps      []hal.BindGroup
}

func (p *rackFocusPipeline) Initialize(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if done, err := p.beginInit(ctx); done {
		return err
	}
	if err := p.initEffect(); err != nil {
		p.release()
		return err
	}
	p.state = stateReady
	p.dirty = true
	p.log("pipeline initialized", "viewport_w", p.vp.W, "viewport_h", p.vp.H,
		"depth_w", p.dw, "depth_h", p.dh, "tier", p.quality.Tier.String())
	return nil
}

func (p *rackFocusPipeline) initEffect() error {
	if err := p.initBase(); err != nil {
		return err
	}
	var err error
	p.stCoC, err = p.dev.newStage("coc", cocShaderSource, []gputypes.BufferBindingType{
		gputypes.BufferBindingTypeUniform,
		gputypes.BufferBindingTypeReadOnlyStorage,
		gputypes.BufferBindingTypeStorage,
		gputypes.BufferBindingTypeStorage,
	})
	if err != nil {
		return err
	}
	p.stTap, err = p.dev.newStage("gather_tap", gatherTapShaderSource, []gputypes.BufferBindingType{
		gputypes.BufferBindingTypeUniform,
		gputypes.BufferBindingTypeUniform,
		gputypes.BufferBindingTypeReadOnlyStorage,
		gputypes.BufferBindingTypeReadOnlyStorage,
		gputypes.BufferBindingTypeReadOnlyStorage,
		gputypes.BufferBindingTypeStorage,
		gputypes.BufferBindingTypeStorage,
	})
	if err != nil {
		return err
	}
	p.stGatherRes, err = p.dev.newStage("gather_resolve", gatherResolveShaderSource, []gputypes.BufferBindingType{
		gputypes.BufferBindingTypeUniform,
		gputypes.BufferBindingTypeReadOnlyStorage,
		gputypes.BufferBindingTypeReadOnlyStorage,
		gputypes.BufferBindingTypeStorage,
	})
	if err != nil {
		return err
	}
	p.stComposite, err = p.dev.newStage("focus_composite", focusCompositeShaderSource, []gputypes.BufferBindingType{
		gputypes.BufferBindingTypeUniform,
		gputypes.BufferBindingTypeReadOnlyStorage,
		gputypes.BufferBindingTypeReadOnlyStorage,
		gputypes.BufferBindingTypeReadOnlyStorage,
		gputypes.BufferBindingTypeStorage,
	})
	if err != nil {
		return err
	}

	if p.cocParams, err = p.dev.newUniform("coc_params", make([]byte, 48)); err != nil {
		return err
	}
	if p.gatherParams, err = p.dev.newUniform("gather_params", make([]byte, 64)); err != nil {
		return err
	}
	if p.gatherResParams, err = p.dev.newUniform("gather_resolve_params", make([]byte, 16)); err != nil {
		return err
	}
	if p.compParams, err = p.dev.newUniform("composite_params", make([]byte, 64)); err != nil {
		return err
	}

	// The center tap first, then the Poisson disc.
	center := (&params{}).f32(0).f32(0).u32(1).bytes()
	u, err := p.dev.newUniform("gather_tap_center", center)
	if err != nil {
		return err
	}
	p.tapUniforms = append(p.tapUniforms, u)
	for _, tp := range filter.PoissonDisc(p.quality.PoissonSamples) {
		blk := (&params{}).f32(float64(tp.X)).f32(float64(tp.Y)).u32(0).bytes()
		u, err := p.dev.newUniform("gather_tap", blk)
		if err != nil {
			return err
		}
		p.tapUniforms = append(p.tapUniforms, u)
	}

	return p.allocPlanes()
}

// allocPlanes sizes the CoC, depth and blur buffers for the current
// viewport. Must hold mu.
func (p *rackFocusPipeline) allocPlanes() error {
	p.dropPlanes()

	w, h := p.vp.W, p.vp.H
	p.blurW, p.blurH = w, h
	if p.quality.HalfResBlur {
		p.blurW = (w + 1) / 2
		p.blurH = (h + 1) / 2
	}

	vn := uint64(w) * uint64(h) * 4
	bn := uint64(p.blurW) * uint64(p.blurH)
	var err error
	if p.cocBuf, err = p.dev.newBuffer("coc_plane", vn, usageStorage); err != nil {
		return err
	}
	if p.dpxBuf, err = p.dev.newBuffer("depth_plane", vn, usageStorage); err != nil {
		return err
	}
	if p.sumBuf, err = p.dev.newBuffer("gather_sum", bn*16, usageStorage); err != nil {
		return err
	}
	if p.wsumBuf, err = p.dev.newBuffer("gather_wsum", bn*4, usageStorage); err != nil {
		return err
	}
	if p.blurBuf, err = p.dev.newBuffer("blur_plane", bn*16, usageStorage); err != nil {
		return err
	}

	blk := (&params{}).u32(uint32(p.blurW)).u32(uint32(p.blurH)).bytes()
	p.dev.queue.WriteBuffer(p.gatherResParams.b, 0, blk)
	p.dirty = true
	return nil
}

func (p *rackFocusPipeline) dropPlanes() {
	p.cocBuf.destroy(p.dev)
	p.dpxBuf.destroy(p.dev)
	p.sumBuf.destroy(p.dev)
	p.wsumBuf.destroy(p.dev)
	p.blurBuf.destroy(p.dev)
	p.cocBuf, p.dpxBuf, p.sumBuf, p.wsumBuf, p.blurBuf = nil, nil, nil, nil, nil
}

// rebind rebuilds the frame bind groups after a referenced buffer was
// reallocated. srcBuf must exist. Must hold mu.
func (p *rackFocusPipeline) rebind() error {
	p.dropBinds()

	var err error
	if p.bgCoC, err = p.dev.newBindGroup("coc", p.stCoC.bindLayout,
		p.cocParams, p.depthBuf, p.cocBuf, p.dpxBuf); err != nil {
		return err
	}
	for _, tu := range p.tapUniforms {
		bg, err := p.dev.newBindGroup("gather_tap", p.stTap.bindLayout,
			p.gatherParams, tu, p.cocBuf, p.dpxBuf, p.srcBuf, p.sumBuf, p.wsumBuf)
		if err != nil {
			return err
		}
		p.bgTaps = append(p.bgTaps, bg)
	}
	if p.bgGatherRes, err = p.dev.newBindGroup("gather_resolve", p.stGatherRes.bindLayout,
		p.gatherResParams, p.sumBuf, p.wsumBuf, p.blurBuf); err != nil {
		return err
	}
	if p.bgComposite, err = p.dev.newBindGroup("focus_composite", p.stComposite.bindLayout,
		p.compParams, p.cocBuf, p.blurBuf, p.srcBuf, p.outBuf); err != nil {
		return err
	}
	p.dirty = false
	return nil
}

func (p *rackFocusPipeline) dropBinds() {
	p.dev.destroyBindGroup(p.bgCoC)
	p.dev.destroyBindGroup(p.bgGatherRes)
	p.dev.destroyBindGroup(p.bgComposite)
	p.dev.destroyBindGroups(p.bgTaps)
	p.bgCoC, p.bgGatherRes, p.bgComposite = nil, nil, nil
	p.bgTaps = p.bgTaps[:0]
}

func (p *rackFocusPipeline) RenderFrame(in backend.FrameInput) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.checkFrame(in); err != nil {
		return err
	}
	if err := p.ensureSrc(in.W, in.H); err != nil {
		return err
	}
	if p.dirty {
		if err := p.rebind(); err != nil {
			return err
		}
	}

	scale := in.BreathScale
	if scale <= 0 {
		scale = 1
	}
	focal := clampF(in.Focal, p.spec.FocusMin, p.spec.FocusMax)

	cocBlk := (&params{}).
		u32(uint32(p.vp.W)).u32(uint32(p.vp.H)).
		u32(uint32(p.dw)).u32(uint32(p.dh)).
		f32(p.vp.ScaleU).f32(p.vp.ScaleV).
		f32(p.vp.OffsetU).f32(p.vp.OffsetV).
		f32(scale).f32(in.BreathOffset).
		f32(focal).f32(p.spec.Aperture).
		bytes()
	gatherBlk := (&params{}).
		u32(uint32(p.blurW)).u32(uint32(p.blurH)).
		u32(uint32(p.vp.W)).u32(uint32(p.vp.H)).
		u32(uint32(in.W)).u32(uint32(in.H)).
		u32(0).u32(0).
		f32(p.vp.ScaleU).f32(p.vp.ScaleV).
		f32(p.vp.OffsetU).f32(p.vp.OffsetV).
		f32(scale).f32(in.BreathOffset).
		f32(p.spec.MaxBlur).
		bytes()
	compBlk := (&params{}).
		u32(uint32(p.vp.W)).u32(uint32(p.vp.H)).
		u32(uint32(p.blurW)).u32(uint32(p.blurH)).
		u32(uint32(in.W)).u32(uint32(in.H)).
		u32(0).u32(0).
		f32(p.vp.ScaleU).f32(p.vp.ScaleV).
		f32(p.vp.OffsetU).f32(p.vp.OffsetV).
		f32(scale).f32(in.BreathOffset).
		f32(p.spec.Vignette).f32(p.spec.Bloom).
		bytes()
	p.dev.queue.WriteBuffer(p.cocParams.b, 0, cocBlk)
	p.dev.queue.WriteBuffer(p.gatherParams.b, 0, gatherBlk)
	p.dev.queue.WriteBuffer(p.compParams.b, 0, compBlk)
	p.dev.queue.WriteBuffer(p.srcBuf.b, 0, in.Pix[:in.W*in.H*4])

	vx, vy := groups2D(p.vp.W, p.vp.H)
	bx, by := groups2D(p.blurW, p.blurH)
	passes := make([]pass, 0, len(p.bgTaps)+3)
	passes = append(passes, pass{stage: p.stCoC, bind: p.bgCoC, x: vx, y: vy})
	for _, bg := range p.bgTaps {
		passes = append(passes, pass{stage: p.stTap, bind: bg, x: bx, y: by})
	}
	passes = append(passes, pass{stage: p.stGatherRes, bind: p.bgGatherRes, x: bx, y: by})
	passes = append(passes, pass{stage: p.stComposite, bind: p.bgComposite, x: vx, y: vy})

	size := uint64(p.vp.W) * uint64(p.vp.H) * 4
	if err := p.dev.run("rack_focus", passes, &copyOp{src: p.outBuf, dst: p.stagingBuf, size: size}); err != nil {
		return err
	}
	return p.readFrame()
}

func (p *rackFocusPipeline) Resize(vp backend.Viewport) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.resizeBase(vp); err != nil {
		return err
	}
	return p.allocPlanes()
}

func (p *rackFocusPipeline) Dispose() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == stateDisposed {
		return
	}
	p.release()
	p.state = stateDisposed
}

// release frees everything the effect owns, then the base. Must hold
// mu.
func (p *rackFocusPipeline) release() {
	p.dropBinds()
	p.dropPlanes()
	p.dev.destroyBuffers(p.tapUniforms)
	p.tapUniforms = nil
	p.cocParams.destroy(p.dev)
	p.gatherParams.destroy(p.dev)
	p.gatherResParams.destroy(p.dev)
	p.compParams.destroy(p.dev)
	p.cocParams, p.gatherParams, p.gatherResParams, p.compParams = nil, nil, nil, nil
	p.stCoC.destroy(p.dev)
	p.stTap.destroy(p.dev)
	p.stGatherRes.destroy(p.dev)
	p.stComposite.destroy(p.dev)
	p.stCoC, p.stTap, p.stGatherRes, p.stComposite = nil, nil, nil, nil
	p.releaseBase()
}
