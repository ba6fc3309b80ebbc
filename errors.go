package depthfx

import "errors"

// Root configuration and lifecycle errors. Backend-level conditions
// (backend.ErrDeviceLost, backend.ErrBackendNotAvailable, and friends)
// pass through wrapped, so errors.Is works against either package.
var (
	// ErrNoSource is returned when a config carries no media source.
	ErrNoSource = errors.New("depthfx: no media source configured")

	// ErrNoDepthProvider is returned when neither precomputed depth
	// frames nor an estimation model is configured. There is no silent
	// degraded mode; the config is rejected at construction.
	ErrNoDepthProvider = errors.New("depthfx: neither depth frames nor an estimation model configured")

	// ErrNoShape is returned by NewPortal when the config carries no
	// mesh, text or path data to cut the portal from.
	ErrNoShape = errors.New("depthfx: no portal shape configured")

	// ErrNotReady is returned by Start before Initialize has completed.
	ErrNotReady = errors.New("depthfx: renderer not initialized")

	// ErrStopped is returned by operations on a stopped renderer. A
	// stopped renderer cannot be restarted; construct a new one.
	ErrStopped = errors.New("depthfx: renderer stopped")
)
