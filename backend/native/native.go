// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/gogpu/depthfx/backend"
)

// init registers the native backend on package import.
// This enables automatic backend selection via backend.InitDefault().
//
// To use the native backend, import this package:
//
//	import _ "github.com/gogpu/depthfx/backend/native"
func init() {
	backend.Register(backend.BackendNative, func() backend.PipelineBackend {
		return &Backend{}
	})
}

// Backend renders every effect on the CPU with row-parallel loops over
// byte and float planes. It has no device to open, so Init always
// succeeds and it serves as the fall-through of the backend probe.
//
// Backend is safe for concurrent use from multiple goroutines.
type Backend struct {
	mu          sync.RWMutex
	logger      *slog.Logger
	initialized bool
}

// NewBackend creates a new CPU rendering backend.
// The backend must be initialized with Init() before use.
func NewBackend() *Backend {
	return &Backend{}
}

// Name returns the backend identifier.
func (b *Backend) Name() string {
	return backend.BackendNative
}

// Class reports the CPU device class.
func (b *Backend) Class() backend.DeviceClass {
	return backend.ClassCPU
}

// Init marks the backend ready. The CPU path has no device to probe.
func (b *Backend) Init() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.initialized {
		return nil
	}
	b.initialized = true
	if b.logger != nil {
		b.logger.Debug("native backend initialized", "cores", runtime.NumCPU())
	}
	return nil
}

// Close releases the backend. Pipelines built from it stay usable;
// they own their buffers.
func (b *Backend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.initialized = false
}

// SetLogger installs a structured logger. Pipelines built afterwards
// inherit it.
func (b *Backend) SetLogger(logger *slog.Logger) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logger = logger
}

// NewParallax builds a parallax displacement pipeline.
func (b *Backend) NewParallax(spec backend.ParallaxSpec) (backend.Pipeline, error) {
	q, logger, err := b.pipelineDeps(spec.Viewport, spec.Quality)
	if err != nil {
		return nil, err
	}
	p := &parallaxPipeline{spec: spec}
	p.configure(spec.Viewport, q, logger)
	return p, nil
}

// NewRackFocus builds a depth-of-field pipeline.
func (b *Backend) NewRackFocus(spec backend.RackFocusSpec) (backend.Pipeline, error) {
	q, logger, err := b.pipelineDeps(spec.Viewport, spec.Quality)
	if err != nil {
		return nil, err
	}
	if spec.FocusMax <= spec.FocusMin {
		spec.FocusMin, spec.FocusMax = 0, 1
	}
	p := &rackFocusPipeline{spec: spec}
	p.configure(spec.Viewport, q, logger)
	return p, nil
}

// NewPortal builds a shaped-portal pipeline.
func (b *Backend) NewPortal(spec backend.PortalSpec) (backend.Pipeline, error) {
	q, logger, err := b.pipelineDeps(spec.Viewport, spec.Quality)
	if err != nil {
		return nil, err
	}
	p := &portalPipeline{spec: spec}
	p.configure(spec.Viewport, q, logger)
	return p, nil
}

// pipelineDeps validates construction preconditions and resolves the
// quality parameters a new pipeline will hold.
func (b *Backend) pipelineDeps(vp backend.Viewport, q *backend.QualityParams) (*backend.QualityParams, *slog.Logger, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.initialized {
		return nil, nil, backend.ErrNotInitialized
	}
	if !vp.Valid() {
		return nil, nil, fmt.Errorf("native: invalid viewport %dx%d", vp.W, vp.H)
	}
	if q == nil {
		def := backend.ParamsFor(backend.TierFor(backend.ClassCPU, runtime.NumCPU()))
		q = &def
	}
	return q, b.logger, nil
}
