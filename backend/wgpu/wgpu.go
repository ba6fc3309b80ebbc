// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	// Import Vulkan backend so it registers via init().
	_ "github.com/gogpu/wgpu/hal/vulkan"

	"github.com/gogpu/depthfx/backend"
)

// init registers the wgpu backend on package import. The registry
// probes it before the native backend, so importing this package is
// enough to prefer GPU rendering when a device is present:
//
//	import _ "github.com/gogpu/depthfx/backend/wgpu"
func init() {
	backend.Register(backend.BackendWGPU, func() backend.PipelineBackend {
		return NewBackend()
	})
}

// Backend renders every effect in compute passes on a wgpu HAL
// device. Init opens the Vulkan backend and picks the best adapter;
// alternatively SetDeviceProvider adopts a device another renderer
// already opened, so both can share one GPU context.
//
// Backend is safe for concurrent use from multiple goroutines.
type Backend struct {
	mu     sync.RWMutex
	logger *slog.Logger

	instance hal.Instance
	dev      *device
	class    backend.DeviceClass
	adapter  string

	initialized bool
	external    bool
}

var (
	_ backend.PipelineBackend     = (*Backend)(nil)
	_ backend.DeviceProviderAware = (*Backend)(nil)
)

// NewBackend creates a new GPU rendering backend. The backend must be
// initialized with Init() or handed a device via SetDeviceProvider
// before use.
func NewBackend() *Backend {
	return &Backend{class: backend.ClassUnknown}
}

// Name returns the backend identifier.
func (b *Backend) Name() string {
	return backend.BackendWGPU
}

// Class reports the device class discovered at Init. Before Init it
// is ClassUnknown.
func (b *Backend) Class() backend.DeviceClass {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.class
}

// SetLogger installs a structured logger. Pipelines built afterwards
// inherit it.
func (b *Backend) SetLogger(logger *slog.Logger) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logger = logger
	if b.dev != nil {
		b.dev.logger = logger
	}
}

// Init opens the Vulkan HAL backend, enumerates adapters and opens a
// device on the best one, preferring discrete over integrated GPUs.
// It fails when no Vulkan implementation or no adapter is present,
// which the registry probe treats as "try the next backend".
func (b *Backend) Init() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.initialized {
		return nil
	}

	halBackend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return fmt.Errorf("wgpu: vulkan backend not available: %w", backend.ErrBackendNotAvailable)
	}
	instance, err := halBackend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return fmt.Errorf("wgpu: create instance: %w", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return fmt.Errorf("wgpu: no GPU adapters found: %w", backend.ErrBackendNotAvailable)
	}
	var selected *hal.ExposedAdapter
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	if selected == nil {
		selected = &adapters[0]
	}
	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return fmt.Errorf("wgpu: open device: %w", err)
	}

	b.instance = instance
	b.dev = &device{hal: openDev.Device, queue: openDev.Queue, logger: b.logger}
	b.class = classFor(selected.Info.DeviceType)
	b.adapter = selected.Info.Name
	b.external = false
	b.initialized = true
	if b.logger != nil {
		b.logger.Debug("wgpu backend initialized",
			"adapter", b.adapter, "class", b.class.String())
	}
	return nil
}

// classFor maps a HAL adapter type onto the quality tier classes.
func classFor(t gputypes.DeviceType) backend.DeviceClass {
	switch t {
	case gputypes.DeviceTypeDiscreteGPU:
		return backend.ClassDiscreteGPU
	case gputypes.DeviceTypeIntegratedGPU:
		return backend.ClassIntegratedGPU
	default:
		return backend.ClassUnknown
	}
}

// SetDeviceProvider adopts a GPU device opened elsewhere. The provider
// must expose HalDevice() any and HalQueue() any returning hal.Device
// and hal.Queue; gpucontext device providers do. Any device the
// backend opened itself is destroyed first. Adopted devices are never
// destroyed by Close; their owner keeps that responsibility.
func (b *Backend) SetDeviceProvider(provider any) error {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return fmt.Errorf("wgpu: provider %T does not expose HAL types", provider)
	}
	dev, ok := hp.HalDevice().(hal.Device)
	if !ok || dev == nil {
		return fmt.Errorf("wgpu: provider HalDevice is not hal.Device")
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return fmt.Errorf("wgpu: provider HalQueue is not hal.Queue")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.external && b.dev != nil {
		b.dev.hal.Destroy()
	}
	if b.instance != nil {
		b.instance.Destroy()
		b.instance = nil
	}

	// The provider does not report an adapter type; keep whatever an
	// earlier Init discovered so quality tiering stays reasonable.
	b.dev = &device{hal: dev, queue: queue, logger: b.logger}
	b.external = true
	b.initialized = true
	if b.logger != nil {
		b.logger.Debug("wgpu backend adopted external device")
	}
	return nil
}

// Close releases the device and instance when the backend opened them
// itself; adopted devices are only dropped. Pipelines built from this
// backend must be disposed first.
func (b *Backend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.dev != nil && !b.external {
		b.dev.hal.Destroy()
	}
	if b.instance != nil {
		b.instance.Destroy()
	}
	b.instance = nil
	b.dev = nil
	b.class = backend.ClassUnknown
	b.adapter = ""
	b.initialized = false
	b.external = false
}

// NewParallax builds a parallax displacement pipeline.
func (b *Backend) NewParallax(spec backend.ParallaxSpec) (backend.Pipeline, error) {
	dev, q, logger, err := b.pipelineDeps(spec.Viewport, spec.Quality)
	if err != nil {
		return nil, err
	}
	p := &parallaxPipeline{spec: spec}
	p.configure(dev, spec.Viewport, q, logger)
	return p, nil
}

// NewRackFocus builds a depth-of-field pipeline.
func (b *Backend) NewRackFocus(spec backend.RackFocusSpec) (backend.Pipeline, error) {
	dev, q, logger, err := b.pipelineDeps(spec.Viewport, spec.Quality)
	if err != nil {
		return nil, err
	}
	if spec.FocusMax <= spec.FocusMin {
		spec.FocusMin, spec.FocusMax = 0, 1
	}
	p := &rackFocusPipeline{spec: spec}
	p.configure(dev, spec.Viewport, q, logger)
	return p, nil
}

// NewPortal builds a shaped-portal pipeline.
func (b *Backend) NewPortal(spec backend.PortalSpec) (backend.Pipeline, error) {
	dev, q, logger, err := b.pipelineDeps(spec.Viewport, spec.Quality)
	if err != nil {
		return nil, err
	}
	p := &portalPipeline{spec: spec}
	p.configure(dev, spec.Viewport, q, logger)
	return p, nil
}

// pipelineDeps validates construction preconditions and resolves the
// device and quality parameters a new pipeline will hold.
func (b *Backend) pipelineDeps(vp backend.Viewport, q *backend.QualityParams) (*device, *backend.QualityParams, *slog.Logger, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.initialized || b.dev == nil {
		return nil, nil, nil, backend.ErrNotInitialized
	}
	if !vp.Valid() {
		return nil, nil, nil, fmt.Errorf("wgpu: invalid viewport %dx%d", vp.W, vp.H)
	}
	if q == nil {
		def := backend.ParamsFor(backend.TierFor(b.class, runtime.NumCPU()))
		q = &def
	}
	return b.dev, q, b.logger, nil
}
