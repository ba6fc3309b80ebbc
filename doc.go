// Package depthfx renders depth-aware visual effects over images,
// video and live camera sources.
//
// # Overview
//
// depthfx drives three effects from a per-pixel depth map: pointer
// parallax displacement, an interactive rack-focus depth of field, and
// a shape-cut video portal with lens and bevel shading. Depth comes
// either from a precomputed frame set or from live monocular
// estimation through an ONNX model. Rendering runs on a GPU compute
// backend (gogpu/wgpu) with a pure-Go fallback producing the same
// output.
//
// # Quick Start
//
//	src, err := source.NewImage(source.ImageConfig{Path: "scene.jpg"})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer src.Close()
//
//	fx, err := depthfx.NewRackFocus(depthfx.RackFocusConfig{
//		Config: depthfx.Config{
//			Source:    src,
//			ModelPath: "model-small.onnx",
//		},
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer fx.Dispose()
//
//	if err := fx.Initialize(context.Background()); err != nil {
//		log.Fatal(err)
//	}
//	fx.Start(func(f depthfx.RenderedFrame) {
//		// f.Pix is the rendered RGBA frame, valid for this call.
//	})
//
// # Effects
//
// NewParallax, NewRackFocus and NewPortal each return a renderer over
// one source. Every attribute is optional and resolves explicit value
// first, then a value derived from depth statistics, then a built-in
// default. Feed input with SetPointer, PointerFocus and friends;
// subscribe to Events for frame, focus and error notifications.
//
// # Backends
//
// The backend registry probes wgpu first and falls back to the native
// CPU backend. WithBackend pins one by name, WithDevice shares an
// existing gogpu device, WithTier or WithQuality overrides the
// detected performance tier.
//
// # Lifecycle
//
// A renderer moves through Initialize, Start, Stop, Dispose; Stop is
// terminal. Hosts that create and destroy effects in response to
// configuration changes can drive them through a Controller, which
// serializes teardown and rebuild. Logging is off by default; install
// a handler with SetLogger.
package depthfx
