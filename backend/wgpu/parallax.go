// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"context"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/depthfx/backend"
)

// parallaxPipeline displaces the source frame per pixel along the
// pointer vector, scaled by depth. The plain path is one compute
// pass; with POM enabled the occlusion march runs as a begin pass,
// one pass per station and a resolve pass, all in a single
// submission. Each station reads its ray parameter from a static
// uniform written once at Initialize.
type parallaxPipeline struct {
	pipeline
	spec backend.ParallaxSpec

	stSimple  *computeStage
	stBegin   *computeStage
	stStep    *computeStage
	stResolve *computeStage

	// hitT and prevF carry the march state between stations, one f32
	// per output pixel.
	hitT  *buffer
	prevF *buffer

	frameParams *buffer
	stepParams  []*buffer

	bgSimple  hal.BindGroup
	bgBegin   hal.BindGroup
	bgResolve hal.BindGroup
	bgSteps   []hal.BindGroup
}

func (p *parallaxPipeline) Initialize(ctx context.Context) error {
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

func (p *parallaxPipeline) initEffect() error {
	if err := p.initBase(); err != nil {
		return err
	}
	var err error
	p.stSimple, err = p.dev.newStage("parallax", parallaxShaderSource, []gputypes.BufferBindingType{
		gputypes.BufferBindingTypeUniform,
		gputypes.BufferBindingTypeReadOnlyStorage,
		gputypes.BufferBindingTypeReadOnlyStorage,
		gputypes.BufferBindingTypeStorage,
	})
	if err != nil {
		return err
	}
	if p.frameParams, err = p.dev.newUniform("parallax_params", make([]byte, 64)); err != nil {
		return err
	}
	if p.spec.POM && p.quality.POMSteps > 0 {
		return p.initMarch()
	}
	return nil
}

func (p *parallaxPipeline) initMarch() error {
	var err error
	p.stBegin, err = p.dev.newStage("pom_begin", pomBeginShaderSource, []gputypes.BufferBindingType{
		gputypes.BufferBindingTypeUniform,
		gputypes.BufferBindingTypeReadOnlyStorage,
		gputypes.BufferBindingTypeStorage,
		gputypes.BufferBindingTypeStorage,
	})
	if err != nil {
		return err
	}
	p.stStep, err = p.dev.newStage("pom_step", pomStepShaderSource, []gputypes.BufferBindingType{
		gputypes.BufferBindingTypeUniform,
		gputypes.BufferBindingTypeUniform,
		gputypes.BufferBindingTypeReadOnlyStorage,
		gputypes.BufferBindingTypeStorage,
		gputypes.BufferBindingTypeStorage,
	})
	if err != nil {
		return err
	}
	p.stResolve, err = p.dev.newStage("pom_resolve", pomResolveShaderSource, []gputypes.BufferBindingType{
		gputypes.BufferBindingTypeUniform,
		gputypes.BufferBindingTypeReadOnlyStorage,
		gputypes.BufferBindingTypeReadOnlyStorage,
		gputypes.BufferBindingTypeStorage,
	})
	if err != nil {
		return err
	}
	if err := p.allocMarch(); err != nil {
		return err
	}

	// One static station uniform per march step.
	steps := p.quality.POMSteps
	dt := 1.0 / float64(steps)
	for i := 1; i <= steps; i++ {
		blk := (&params{}).f32(float64(i) * dt).f32(dt).bytes()
		u, err := p.dev.newUniform("pom_station", blk)
		if err != nil {
			return err
		}
		p.stepParams = append(p.stepParams, u)
	}
	return nil
}

// allocMarch sizes the march state to the viewport. Must hold mu.
func (p *parallaxPipeline) allocMarch() error {
	p.hitT.destroy(p.dev)
	p.prevF.destroy(p.dev)
	p.hitT, p.prevF = nil, nil

	n := uint64(p.vp.W) * uint64(p.vp.H) * 4
	var err error
	if p.hitT, err = p.dev.newBuffer("pom_hit", n, usageStorage); err != nil {
		return err
	}
	p.prevF, err = p.dev.newBuffer("pom_clearance", n, usageStorage)
	return err
}

// rebind rebuilds the frame bind groups after a referenced buffer was
// reallocated. srcBuf must exist. Must hold mu.
func (p *parallaxPipeline) rebind() error {
	p.dropBinds()

	var err error
	if p.bgSimple, err = p.dev.newBindGroup("parallax", p.stSimple.bindLayout,
		p.frameParams, p.depthBuf, p.srcBuf, p.outBuf); err != nil {
		return err
	}
	if p.stBegin != nil {
		if p.bgBegin, err = p.dev.newBindGroup("pom_begin", p.stBegin.bindLayout,
			p.frameParams, p.depthBuf, p.hitT, p.prevF); err != nil {
			return err
		}
		for _, sp := range p.stepParams {
			bg, err := p.dev.newBindGroup("pom_step", p.stStep.bindLayout,
				p.frameParams, sp, p.depthBuf, p.hitT, p.prevF)
			if err != nil {
				return err
			}
			p.bgSteps = append(p.bgSteps, bg)
		}
		if p.bgResolve, err = p.dev.newBindGroup("pom_resolve", p.stResolve.bindLayout,
			p.frameParams, p.hitT, p.srcBuf, p.outBuf); err != nil {
			return err
		}
	}
	p.dirty = false
	return nil
}

func (p *parallaxPipeline) dropBinds() {
	p.dev.destroyBindGroup(p.bgSimple)
	p.dev.destroyBindGroup(p.bgBegin)
	p.dev.destroyBindGroup(p.bgResolve)
	p.dev.destroyBindGroups(p.bgSteps)
	p.bgSimple, p.bgBegin, p.bgResolve = nil, nil, nil
	p.bgSteps = p.bgSteps[:0]
}

func (p *parallaxPipeline) RenderFrame(in backend.FrameInput) error {
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

	// Displacement at the depth extremes, in source UV units.
	dirU := in.InputX * p.spec.Strength * p.spec.AxisX
	dirV := in.InputY * p.spec.Strength * p.spec.AxisY

	steps := 0
	if p.spec.POM {
		steps = p.quality.POMSteps
	}
	useMarch := steps > 0 && (dirU != 0 || dirV != 0)

	blk := (&params{}).
		u32(uint32(p.vp.W)).u32(uint32(p.vp.H)).
		u32(uint32(in.W)).u32(uint32(in.H)).
		u32(uint32(p.dw)).u32(uint32(p.dh)).
		u32(0).u32(0).
		f32(p.vp.ScaleU).f32(p.vp.ScaleV).
		f32(p.vp.OffsetU).f32(p.vp.OffsetV).
		f32(dirU).f32(dirV).
		bytes()
	p.dev.queue.WriteBuffer(p.frameParams.b, 0, blk)
	p.dev.queue.WriteBuffer(p.srcBuf.b, 0, in.Pix[:in.W*in.H*4])

	gx, gy := groups2D(p.vp.W, p.vp.H)
	var passes []pass
	if useMarch {
		passes = make([]pass, 0, len(p.bgSteps)+2)
		passes = append(passes, pass{stage: p.stBegin, bind: p.bgBegin, x: gx, y: gy})
		for _, bg := range p.bgSteps {
			passes = append(passes, pass{stage: p.stStep, bind: bg, x: gx, y: gy})
		}
		passes = append(passes, pass{stage: p.stResolve, bind: p.bgResolve, x: gx, y: gy})
	} else {
		passes = []pass{{stage: p.stSimple, bind: p.bgSimple, x: gx, y: gy}}
	}

	size := uint64(p.vp.W) * uint64(p.vp.H) * 4
	if err := p.dev.run("parallax", passes, &copyOp{src: p.outBuf, dst: p.stagingBuf, size: size}); err != nil {
		return err
	}
	return p.readFrame()
}

func (p *parallaxPipeline) Resize(vp backend.Viewport) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.resizeBase(vp); err != nil {
		return err
	}
	if p.hitT != nil {
		return p.allocMarch()
	}
	return nil
}

func (p *parallaxPipeline) Dispose() {
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
func (p *parallaxPipeline) release() {
	p.dropBinds()
	p.dev.destroyBuffers(p.stepParams)
	p.stepParams = nil
	p.frameParams.destroy(p.dev)
	p.frameParams = nil
	p.hitT.destroy(p.dev)
	p.prevF.destroy(p.dev)
	p.hitT, p.prevF = nil, nil
	p.stSimple.destroy(p.dev)
	p.stBegin.destroy(p.dev)
	p.stStep.destroy(p.dev)
	p.stResolve.destroy(p.dev)
	p.stSimple, p.stBegin, p.stStep, p.stResolve = nil, nil, nil, nil
	p.releaseBase()
}
