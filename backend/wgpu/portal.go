// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"context"
	"math"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/depthfx/backend"
	"github.com/gogpu/depthfx/internal/jfa"
)

// portalPipeline renders the source frame through a shaped cutout.
// The silhouette mask and its distance field depend only on the mesh
// and the viewport, so they are built once per initialize or resize:
// one rasterization pass per triangle, a seed pass, the jump flood
// schedule from internal/jfa ping-ponging between two seed buffers,
// and a resolve pass, all in a single submission. The per-frame work
// is a single composite pass.
type portalPipeline struct {
	pipeline
	spec backend.PortalSpec

	stMask      *computeStage
	stSeed      *computeStage
	stFlood     *computeStage
	stJfaRes    *computeStage
	stComposite *computeStage

	maskBuf *buffer
	pingBuf *buffer
	pongBuf *buffer
	distBuf *buffer

	zeroMask []byte

	triUniforms []*buffer
	triBinds    []hal.BindGroup

	// gridParams carries {w, h} for the seed and resolve passes; the
	// flood passes add their jump offset.
	gridParams  *buffer
	seedBind    hal.BindGroup
	floodParams []*buffer
	floodBinds  []hal.BindGroup
	jfaResBind  hal.BindGroup

	frameParams *buffer
	bgComposite hal.BindGroup
}

func (p *portalPipeline) Initialize(ctx context.Context) error {
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

func (p *portalPipeline) initEffect() error {
	if err := p.initBase(); err != nil {
		return err
	}
	var err error
	p.stMask, err = p.dev.newStage("portal_mask", portalMaskShaderSource, []gputypes.BufferBindingType{
		gputypes.BufferBindingTypeUniform,
		gputypes.BufferBindingTypeStorage,
	})
	if err != nil {
		return err
	}
	p.stSeed, err = p.dev.newStage("jfa_seed", jfaSeedShaderSource, []gputypes.BufferBindingType{
		gputypes.BufferBindingTypeUniform,
		gputypes.BufferBindingTypeReadOnlyStorage,
		gputypes.BufferBindingTypeStorage,
	})
	if err != nil {
		return err
	}
	p.stFlood, err = p.dev.newStage("jfa_flood", jfaFloodShaderSource, []gputypes.BufferBindingType{
		gputypes.BufferBindingTypeUniform,
		gputypes.BufferBindingTypeReadOnlyStorage,
		gputypes.BufferBindingTypeStorage,
	})
	if err != nil {
		return err
	}
	p.stJfaRes, err = p.dev.newStage("jfa_resolve", jfaResolveShaderSource, []gputypes.BufferBindingType{
		gputypes.BufferBindingTypeUniform,
		gputypes.BufferBindingTypeReadOnlyStorage,
		gputypes.BufferBindingTypeStorage,
	})
	if err != nil {
		return err
	}
	p.stComposite, err = p.dev.newStage("portal_composite", portalCompositeShaderSource, []gputypes.BufferBindingType{
		gputypes.BufferBindingTypeUniform,
		gputypes.BufferBindingTypeReadOnlyStorage,
		gputypes.BufferBindingTypeReadOnlyStorage,
		gputypes.BufferBindingTypeReadOnlyStorage,
		gputypes.BufferBindingTypeReadOnlyStorage,
		gputypes.BufferBindingTypeStorage,
	})
	if err != nil {
		return err
	}

	if p.gridParams, err = p.dev.newUniform("grid_params", make([]byte, 16)); err != nil {
		return err
	}
	if p.frameParams, err = p.dev.newUniform("portal_params", make([]byte, 80)); err != nil {
		return err
	}
	return p.buildStatics()
}

// buildStatics rasterizes the silhouette mask and floods its distance
// field on the GPU. Must hold mu.
func (p *portalPipeline) buildStatics() error {
	p.dropStatics()

	w, h := p.vp.W, p.vp.H
	vn := uint64(w) * uint64(h) * 4
	var err error
	if p.maskBuf, err = p.dev.newBuffer("portal_mask", vn, usageStorage); err != nil {
		return err
	}
	if p.pingBuf, err = p.dev.newBuffer("jfa_ping", vn, usageStorage); err != nil {
		return err
	}
	if p.pongBuf, err = p.dev.newBuffer("jfa_pong", vn, usageStorage); err != nil {
		return err
	}
	if p.distBuf, err = p.dev.newBuffer("portal_dist", vn, usageStorage); err != nil {
		return err
	}
	p.zeroMask = make([]byte, vn)
	p.dev.queue.WriteBuffer(p.maskBuf.b, 0, p.zeroMask)

	blk := (&params{}).u32(uint32(w)).u32(uint32(h)).bytes()
	p.dev.queue.WriteBuffer(p.gridParams.b, 0, blk)

	// One rasterization pass per triangle, skipping degenerates.
	mesh := p.spec.Mesh
	if mesh != nil && len(mesh.Indices) >= 3 {
		s := p.spec.Scale * math.Min(float64(w), float64(h)) / 2
		cx := float64(w) / 2
		cy := float64(h) / 2
		for i := 0; i+2 < len(mesh.Indices); i += 3 {
			i0 := int(mesh.Indices[i]) * 2
			i1 := int(mesh.Indices[i+1]) * 2
			i2 := int(mesh.Indices[i+2]) * 2
			x0 := cx + float64(mesh.Vertices[i0])*s
			y0 := cy - float64(mesh.Vertices[i0+1])*s
			x1 := cx + float64(mesh.Vertices[i1])*s
			y1 := cy - float64(mesh.Vertices[i1+1])*s
			x2 := cx + float64(mesh.Vertices[i2])*s
			y2 := cy - float64(mesh.Vertices[i2+1])*s
			area := (x1-x0)*(y2-y0) - (x2-x0)*(y1-y0)
			if math.Abs(area) < 1e-12 {
				continue
			}
			blk := (&params{}).
				u32(uint32(w)).u32(uint32(h)).u32(0).u32(0).
				f32(x0).f32(y0).f32(x1).f32(y1).f32(x2).f32(y2).
				f32(area).
				bytes()
			u, err := p.dev.newUniform("portal_triangle", blk)
			if err != nil {
				return err
			}
			p.triUniforms = append(p.triUniforms, u)
			bg, err := p.dev.newBindGroup("portal_mask", p.stMask.bindLayout, u, p.maskBuf)
			if err != nil {
				return err
			}
			p.triBinds = append(p.triBinds, bg)
		}
	}

	if p.seedBind, err = p.dev.newBindGroup("jfa_seed", p.stSeed.bindLayout,
		p.gridParams, p.maskBuf, p.pingBuf); err != nil {
		return err
	}

	// The flood ping-pongs between the seed buffers; the final pass
	// parity decides which one the resolve reads.
	steps := jfa.NewTransform(w, h).Steps()
	for i, step := range steps {
		blk := (&params{}).u32(uint32(w)).u32(uint32(h)).i32(int32(step)).bytes()
		u, err := p.dev.newUniform("jfa_flood_params", blk)
		if err != nil {
			return err
		}
		p.floodParams = append(p.floodParams, u)
		src, dst := p.pingBuf, p.pongBuf
		if i%2 == 1 {
			src, dst = p.pongBuf, p.pingBuf
		}
		bg, err := p.dev.newBindGroup("jfa_flood", p.stFlood.bindLayout, u, src, dst)
		if err != nil {
			return err
		}
		p.floodBinds = append(p.floodBinds, bg)
	}
	final := p.pingBuf
	if len(steps)%2 == 1 {
		final = p.pongBuf
	}
	if p.jfaResBind, err = p.dev.newBindGroup("jfa_resolve", p.stJfaRes.bindLayout,
		p.gridParams, final, p.distBuf); err != nil {
		return err
	}

	gx, gy := groups2D(w, h)
	passes := make([]pass, 0, len(p.triBinds)+len(p.floodBinds)+2)
	for _, bg := range p.triBinds {
		passes = append(passes, pass{stage: p.stMask, bind: bg, x: gx, y: gy})
	}
	passes = append(passes, pass{stage: p.stSeed, bind: p.seedBind, x: gx, y: gy})
	for _, bg := range p.floodBinds {
		passes = append(passes, pass{stage: p.stFlood, bind: bg, x: gx, y: gy})
	}
	passes = append(passes, pass{stage: p.stJfaRes, bind: p.jfaResBind, x: gx, y: gy})
	if err := p.dev.run("portal_statics", passes, nil); err != nil {
		return err
	}

	p.dirty = true
	p.log("portal statics built", "viewport_w", w, "viewport_h", h,
		"triangles", len(p.triBinds), "flood_passes", len(p.floodBinds))
	return nil
}

func (p *portalPipeline) dropStatics() {
	p.dev.destroyBindGroups(p.triBinds)
	p.triBinds = nil
	p.dev.destroyBuffers(p.triUniforms)
	p.triUniforms = nil
	p.dev.destroyBindGroup(p.seedBind)
	p.seedBind = nil
	p.dev.destroyBindGroups(p.floodBinds)
	p.floodBinds = nil
	p.dev.destroyBuffers(p.floodParams)
	p.floodParams = nil
	p.dev.destroyBindGroup(p.jfaResBind)
	p.jfaResBind = nil
	p.maskBuf.destroy(p.dev)
	p.pingBuf.destroy(p.dev)
	p.pongBuf.destroy(p.dev)
	p.distBuf.destroy(p.dev)
	p.maskBuf, p.pingBuf, p.pongBuf, p.distBuf = nil, nil, nil, nil
	p.zeroMask = nil
}

// rebind rebuilds the composite bind group after a referenced buffer
// was reallocated. srcBuf must exist. Must hold mu.
func (p *portalPipeline) rebind() error {
	p.dev.destroyBindGroup(p.bgComposite)
	p.bgComposite = nil

	var err error
	p.bgComposite, err = p.dev.newBindGroup("portal_composite", p.stComposite.bindLayout,
		p.frameParams, p.maskBuf, p.distBuf, p.depthBuf, p.srcBuf, p.outBuf)
	if err != nil {
		return err
	}
	p.dirty = false
	return nil
}

func (p *portalPipeline) RenderFrame(in backend.FrameInput) error {
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

	w, h := p.vp.W, p.vp.H
	rangePx := p.spec.MaxRange * math.Min(float64(w), float64(h))
	if rangePx <= 0 {
		rangePx = 1
	}
	exterior := 1 - clamp01(p.spec.ExteriorDim)

	blk := (&params{}).
		u32(uint32(w)).u32(uint32(h)).
		u32(uint32(in.W)).u32(uint32(in.H)).
		u32(uint32(p.dw)).u32(uint32(p.dh)).
		u32(0).u32(0).
		f32(p.vp.ScaleU).f32(p.vp.ScaleV).
		f32(p.vp.OffsetU).f32(p.vp.OffsetV).
		f32(rangePx).f32(exterior).
		f32(p.spec.LensStrength).f32(p.spec.RimWidth).
		f32(p.spec.RimIntensity).f32(p.spec.BevelWidth).
		f32(p.spec.ChamferDepth).f32(p.spec.Chromatic).
		bytes()
	p.dev.queue.WriteBuffer(p.frameParams.b, 0, blk)
	p.dev.queue.WriteBuffer(p.srcBuf.b, 0, in.Pix[:in.W*in.H*4])

	gx, gy := groups2D(w, h)
	passes := []pass{{stage: p.stComposite, bind: p.bgComposite, x: gx, y: gy}}
	size := uint64(w) * uint64(h) * 4
	if err := p.dev.run("portal", passes, &copyOp{src: p.outBuf, dst: p.stagingBuf, size: size}); err != nil {
		return err
	}
	return p.readFrame()
}

func (p *portalPipeline) Resize(vp backend.Viewport) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.resizeBase(vp); err != nil {
		return err
	}
	return p.buildStatics()
}

func (p *portalPipeline) Dispose() {
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
func (p *portalPipeline) release() {
	p.dev.destroyBindGroup(p.bgComposite)
	p.bgComposite = nil
	p.dropStatics()
	p.gridParams.destroy(p.dev)
	p.frameParams.destroy(p.dev)
	p.gridParams, p.frameParams = nil, nil
	p.stMask.destroy(p.dev)
	p.stSeed.destroy(p.dev)
	p.stFlood.destroy(p.dev)
	p.stJfaRes.destroy(p.dev)
	p.stComposite.destroy(p.dev)
	p.stMask, p.stSeed, p.stFlood, p.stJfaRes, p.stComposite = nil, nil, nil, nil, nil
	p.releaseBase()
}
