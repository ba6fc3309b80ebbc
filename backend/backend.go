package backend

import (
	"context"
	"errors"
)

// Backend name constants.
const (
	// BackendWGPU is the name of the GPU compute backend (gogpu/wgpu).
	BackendWGPU = "wgpu"
	// BackendNative is the name of the pure Go CPU backend.
	BackendNative = "native"
)

// Common backend errors.
var (
	// ErrBackendNotAvailable is returned when a requested backend is not available.
	ErrBackendNotAvailable = errors.New("backend: not available")

	// ErrNotInitialized is returned when operations are called before Init.
	ErrNotInitialized = errors.New("backend: not initialized")

	// ErrDisposed is returned when operations are called on a disposed pipeline.
	ErrDisposed = errors.New("backend: pipeline disposed")

	// ErrDeviceLost is returned once the GPU device is gone. The condition
	// is terminal for the backend instance: the owner must construct a new
	// backend rather than retry.
	ErrDeviceLost = errors.New("backend: device lost")
)

// PipelineBackend builds effect pipelines over one rendering
// implementation. It abstracts the render device, allowing the library
// to drive the same effect graph on a GPU (compute shaders via
// gogpu/wgpu) or on the CPU.
//
// Backends must be registered via Register() and are selected via
// Get() or InitDefault().
type PipelineBackend interface {
	// Name returns the backend identifier (e.g., "wgpu", "native").
	Name() string

	// Init acquires the render device. It must be called before any
	// pipeline is created and reports failure when the device cannot
	// be opened, which lets the registry probe fall through to the
	// next backend in priority order.
	Init() error

	// Close releases all backend resources. Pipelines created by the
	// backend must be disposed first.
	Close()

	// Class reports the device class backing this backend, valid
	// after a successful Init. Quality tier selection keys off it.
	Class() DeviceClass

	// NewParallax creates a depth-parallax pipeline.
	NewParallax(spec ParallaxSpec) (Pipeline, error)

	// NewRackFocus creates a rack-focus depth-of-field pipeline.
	NewRackFocus(spec RackFocusSpec) (Pipeline, error)

	// NewPortal creates a shaped-portal pipeline.
	NewPortal(spec PortalSpec) (Pipeline, error)
}

// Pipeline is one configured effect instance. The renderer core feeds
// it from two sides: UploadDepth from the presentation loop whenever a
// fresh depth map arrives, RenderFrame from the display loop once per
// refresh. A pipeline owns every render resource it creates and
// releases all of them in Dispose.
type Pipeline interface {
	// Initialize allocates the pipeline's render resources. An error
	// leaves the pipeline fully uninitialized, never partially built.
	Initialize(ctx context.Context) error

	// UploadDepth hands the pipeline a new raw depth plane of w*h
	// bytes, 255 nearest. The pipeline downsamples to its depth cap
	// and runs the edge-preserving filter stage; buf is not retained.
	UploadDepth(buf []byte, w, h int) error

	// RenderFrame runs the effect's pass graph for one display tick.
	// The input frame is borrowed for the duration of the call.
	RenderFrame(in FrameInput) error

	// Frame returns the RGBA render target contents after the last
	// RenderFrame, tightly packed at the viewport size. The slice is
	// borrowed and valid until the next RenderFrame, Resize or
	// Dispose.
	Frame() []byte

	// Resize rebuilds the viewport-sized resources for a new target.
	// Resources referencing a recreated buffer are rebuilt with it.
	Resize(vp Viewport) error

	// Dispose releases all pipeline resources. Idempotent.
	Dispose()
}

// DeviceProviderAware is an optional interface for backends that can
// share a render device with an external provider (e.g., a host
// window). When SetDeviceProvider is called, the backend reuses the
// provided device instead of opening its own.
type DeviceProviderAware interface {
	SetDeviceProvider(provider any) error
}
