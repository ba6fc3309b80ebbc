// Package backend provides a pluggable effect pipeline abstraction.
//
// The backend package allows the depthfx library to support multiple
// rendering implementations: a GPU compute path via gogpu/wgpu and a
// pure-Go CPU path. Both produce the same frames within tolerance, so
// callers select on availability and speed, not on features.
//
// # Backend Registration
//
// Backends are registered via init() functions and selected at runtime.
// Importing a backend package registers it:
//
//	import (
//		_ "github.com/gogpu/depthfx/backend/native"
//		_ "github.com/gogpu/depthfx/backend/wgpu"
//	)
//
// # Backend Selection
//
// Use InitDefault() to probe for the best working backend. Registration
// alone does not guarantee the device can be opened: the wgpu backend
// registers on any platform but its Init fails without a usable GPU, and
// the probe falls through to the CPU backend:
//
//	b, err := backend.InitDefault()
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer b.Close()
//
// Or request a specific backend by name and initialize it yourself:
//
//	b := backend.Get(backend.BackendNative)
//	if err := b.Init(); err != nil {
//		log.Fatal(err)
//	}
//	defer b.Close()
//
// # Pipelines
//
// An initialized backend builds effect pipelines. Each pipeline owns its
// buffers and intermediate planes; the backend owns the device:
//
//	params := backend.ParamsFor(backend.TierFor(b.Class(), runtime.NumCPU()))
//	p, err := b.NewRackFocus(backend.RackFocusSpec{
//		Viewport: backend.FullViewport(1280, 720),
//		Quality:  &params,
//		Aperture: 2.5,
//		MaxBlur:  24,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer p.Dispose()
//
//	if err := p.Initialize(ctx); err != nil {
//		log.Fatal(err)
//	}
//	p.UploadDepth(depthPix, dw, dh)
//	p.RenderFrame(backend.FrameInput{Pix: rgba, W: 1280, H: 720, Focal: 0.4})
//	out := p.Frame()
//
// # Available Backends
//
// - "wgpu": GPU compute via gogpu/wgpu (preferred when a device opens)
// - "native": pure-Go CPU implementation (always available)
package backend
