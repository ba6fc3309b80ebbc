// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/depthfx/backend"
)

// gpuTimeout bounds every fence wait. A device that cannot finish a
// frame in this window is treated as lost.
const gpuTimeout = 5 * time.Second

var errFenceTimeout = errors.New("fence timeout")

const (
	usageStorage = gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst
	usageUniform = gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst
	usageStaging = gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst
)

// device bundles the HAL handles shared by every pipeline created
// from one Backend, plus the loss latch. Once a submit or fence wait
// fails the device is marked lost and every later submission returns
// backend.ErrDeviceLost without touching the hardware.
type device struct {
	hal    hal.Device
	queue  hal.Queue
	lost   atomic.Bool
	logger *slog.Logger
}

func (d *device) markLost(op string, cause error) error {
	d.lost.Store(true)
	if d.logger != nil {
		d.logger.Error("wgpu device lost", "op", op, "err", cause)
	}
	return fmt.Errorf("wgpu: %s: %v: %w", op, cause, backend.ErrDeviceLost)
}

// computeStage is one compiled WGSL entry point with its layouts. The
// binding types passed to newStage must match the shader's bindings
// in declaration order.
type computeStage struct {
	module     hal.ShaderModule
	bindLayout hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	pipeline   hal.ComputePipeline
}

func (d *device) newStage(label, source string, bindings []gputypes.BufferBindingType) (*computeStage, error) {
	module, err := d.hal.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  label,
		Source: hal.ShaderSource{WGSL: source},
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: %s: create shader module: %w", label, err)
	}

	entries := make([]gputypes.BindGroupLayoutEntry, len(bindings))
	for i, bt := range bindings {
		entries[i] = gputypes.BindGroupLayoutEntry{
			Binding:    uint32(i),
			Visibility: gputypes.ShaderStageCompute,
			Buffer:     &gputypes.BufferBindingLayout{Type: bt},
		}
	}
	bindLayout, err := d.hal.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   label,
		Entries: entries,
	})
	if err != nil {
		d.hal.DestroyShaderModule(module)
		return nil, fmt.Errorf("wgpu: %s: create bind group layout: %w", label, err)
	}

	pipeLayout, err := d.hal.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            label,
		BindGroupLayouts: []hal.BindGroupLayout{bindLayout},
	})
	if err != nil {
		d.hal.DestroyBindGroupLayout(bindLayout)
		d.hal.DestroyShaderModule(module)
		return nil, fmt.Errorf("wgpu: %s: create pipeline layout: %w", label, err)
	}

	pipeline, err := d.hal.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:   label,
		Layout:  pipeLayout,
		Compute: hal.ComputeState{Module: module, EntryPoint: "main"},
	})
	if err != nil {
		d.hal.DestroyPipelineLayout(pipeLayout)
		d.hal.DestroyBindGroupLayout(bindLayout)
		d.hal.DestroyShaderModule(module)
		return nil, fmt.Errorf("wgpu: %s: create compute pipeline: %w", label, err)
	}

	return &computeStage{
		module:     module,
		bindLayout: bindLayout,
		pipeLayout: pipeLayout,
		pipeline:   pipeline,
	}, nil
}

func (s *computeStage) destroy(d *device) {
	if s == nil {
		return
	}
	if s.pipeline != nil {
		d.hal.DestroyComputePipeline(s.pipeline)
	}
	if s.pipeLayout != nil {
		d.hal.DestroyPipelineLayout(s.pipeLayout)
	}
	if s.bindLayout != nil {
		d.hal.DestroyBindGroupLayout(s.bindLayout)
	}
	if s.module != nil {
		d.hal.DestroyShaderModule(s.module)
	}
}

// buffer pairs a HAL buffer with its size for bind group entries.
type buffer struct {
	b    hal.Buffer
	size uint64
}

func (d *device) newBuffer(label string, size uint64, usage gputypes.BufferUsage) (*buffer, error) {
	b, err := d.hal.CreateBuffer(&hal.BufferDescriptor{Label: label, Size: size, Usage: usage})
	if err != nil {
		return nil, fmt.Errorf("wgpu: %s: create buffer (%d bytes): %w", label, size, err)
	}
	return &buffer{b: b, size: size}, nil
}

// newUniform creates a uniform buffer preloaded with data. Later
// writes must keep the same length.
func (d *device) newUniform(label string, data []byte) (*buffer, error) {
	b, err := d.newBuffer(label, uint64(len(data)), usageUniform)
	if err != nil {
		return nil, err
	}
	d.queue.WriteBuffer(b.b, 0, data)
	return b, nil
}

func (b *buffer) destroy(d *device) {
	if b != nil && b.b != nil {
		d.hal.DestroyBuffer(b.b)
		b.b = nil
	}
}

// newBindGroup binds the buffers to bindings 0..n-1 in order, each
// over its full size.
func (d *device) newBindGroup(label string, layout hal.BindGroupLayout, bufs ...*buffer) (hal.BindGroup, error) {
	entries := make([]gputypes.BindGroupEntry, len(bufs))
	for i, b := range bufs {
		entries[i] = gputypes.BindGroupEntry{
			Binding:  uint32(i),
			Resource: gputypes.BufferBinding{Buffer: b.b.NativeHandle(), Offset: 0, Size: b.size},
		}
	}
	bg, err := d.hal.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   label,
		Layout:  layout,
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: %s: create bind group: %w", label, err)
	}
	return bg, nil
}

func (d *device) destroyBindGroup(bg hal.BindGroup) {
	if bg != nil {
		d.hal.DestroyBindGroup(bg)
	}
}

func (d *device) destroyBindGroups(bgs []hal.BindGroup) {
	for _, bg := range bgs {
		d.destroyBindGroup(bg)
	}
}

func (d *device) destroyBuffers(bufs []*buffer) {
	for _, b := range bufs {
		b.destroy(d)
	}
}

// pass is one compute dispatch in a frame's command stream.
type pass struct {
	stage *computeStage
	bind  hal.BindGroup
	x, y  uint32
}

// groups2D returns the dispatch counts covering a w*h grid at 8x8
// workgroups.
func groups2D(w, h int) (uint32, uint32) {
	return (uint32(w) + 7) / 8, (uint32(h) + 7) / 8
}

// copyOp copies src into dst after the passes complete, usually into
// the map-read staging buffer.
type copyOp struct {
	src, dst *buffer
	size     uint64
}

// run encodes the passes in order in a single command encoder, then
// submits once and blocks on the fence. Storage writes are visible
// across pass boundaries, so iterative algorithms run as one pass per
// step; this also avoids naga SPIR-V bug #5 (loops only execute the
// first iteration).
func (d *device) run(label string, passes []pass, cp *copyOp) error {
	if d.lost.Load() {
		return backend.ErrDeviceLost
	}

	encoder, err := d.hal.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return fmt.Errorf("wgpu: %s: create command encoder: %w", label, err)
	}
	if err := encoder.BeginEncoding(label); err != nil {
		return fmt.Errorf("wgpu: %s: begin encoding: %w", label, err)
	}
	for _, p := range passes {
		cpass := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: label})
		cpass.SetPipeline(p.stage.pipeline)
		cpass.SetBindGroup(0, p.bind, nil)
		cpass.Dispatch(p.x, p.y, 1)
		cpass.End()
	}
	if cp != nil {
		encoder.CopyBufferToBuffer(cp.src.b, cp.dst.b, []hal.BufferCopy{
			{SrcOffset: 0, DstOffset: 0, Size: cp.size},
		})
	}
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("wgpu: %s: end encoding: %w", label, err)
	}
	defer d.hal.FreeCommandBuffer(cmdBuf)

	fence, err := d.hal.CreateFence()
	if err != nil {
		return fmt.Errorf("wgpu: %s: create fence: %w", label, err)
	}
	defer d.hal.DestroyFence(fence)

	if err := d.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return d.markLost(label+" submit", err)
	}
	done, err := d.hal.Wait(fence, 1, gpuTimeout)
	if err != nil {
		return d.markLost(label+" wait", err)
	}
	if !done {
		return d.markLost(label+" wait", errFenceTimeout)
	}
	return nil
}

// params builds a little-endian uniform block, padded to the 16 byte
// uniform alignment. Field order must match the WGSL struct.
type params struct{ buf []byte }

func (p *params) u32(v uint32) *params {
	p.buf = binary.LittleEndian.AppendUint32(p.buf, v)
	return p
}

func (p *params) i32(v int32) *params { return p.u32(uint32(v)) }

func (p *params) f32(v float64) *params {
	return p.u32(math.Float32bits(float32(v)))
}

func (p *params) bytes() []byte {
	for len(p.buf)%16 != 0 {
		p.buf = append(p.buf, 0)
	}
	return p.buf
}
