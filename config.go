package depthfx

import (
	"fmt"

	"github.com/gogpu/gpucontext"

	"github.com/gogpu/depthfx/backend"
	"github.com/gogpu/depthfx/depth"
	"github.com/gogpu/depthfx/source"
)

// DeviceHandle provides render-device access from a host application.
//
// When the host already owns a GPU device (a gogpu window, a compositor),
// it implements DeviceHandle and passes it through WithDevice, and the
// wgpu backend renders on the shared device instead of opening its own.
// The backend never destroys a shared device.
//
// DeviceHandle is an alias for gpucontext.DeviceProvider so any provider
// from the gpucontext ecosystem plugs in directly.
type DeviceHandle = gpucontext.DeviceProvider

// Config carries the attributes shared by every effect. The embedded
// zero value of each optional field means "not set": the effect falls
// back to a value derived from depth analysis, then to its built-in
// default. Explicit always beats derived beats default.
type Config struct {
	// Source supplies frames. Required. The renderer holds a
	// non-owning reference: the host creates and closes the source.
	Source source.Source

	// Depth provisioning. Exactly one path must be configured:
	//
	//   - DepthFrames: precomputed per-frame depth, interpolated by
	//     source time.
	//   - Model: an externally constructed estimation model. The
	//     renderer takes ownership and closes it on Dispose.
	//   - ModelPath: an ONNX depth model file, opened at Initialize.
	//   - ModelURL: a model downloaded to ModelCacheDir at Initialize,
	//     with progress reported through EventDownloadProgress.
	DepthFrames   *depth.FrameSet
	Model         depth.Model
	ModelPath     string
	ModelURL      string
	ModelCacheDir string

	// Mirror flips the horizontal axis at display time. Unset, it
	// follows the source: front-facing cameras report themselves
	// mirrored.
	Mirror *bool
}

// validate checks the parts of the config every effect requires.
func (cfg *Config) validate() error {
	if cfg.Source == nil {
		return ErrNoSource
	}
	if cfg.DepthFrames == nil && cfg.Model == nil && cfg.ModelPath == "" && cfg.ModelURL == "" {
		return ErrNoDepthProvider
	}
	return nil
}

// Float returns a pointer to v, for filling optional config fields.
func Float(v float64) *float64 { return &v }

// Bool returns a pointer to v, for filling optional config fields.
func Bool(v bool) *bool { return &v }

// Option configures renderer infrastructure during effect creation.
// Effect attributes live in the per-effect config structs; options
// cover the machinery underneath: backend choice, quality, target
// size, display rate.
type Option func(*options)

// options holds the resolved infrastructure knobs.
type options struct {
	backendName string
	injected    backend.PipelineBackend
	device      DeviceHandle
	tier        *backend.Tier
	quality     *backend.QualityParams
	width       int
	height      int
	pixelRatio  float64
	overscan    *float64
	displayRate float64
	eventBuffer int
}

func defaultOptions() options {
	return options{
		pixelRatio:  1,
		displayRate: 60,
		eventBuffer: 64,
	}
}

// WithBackend selects a registered backend by name ("wgpu", "native")
// instead of probing in priority order.
func WithBackend(name string) Option {
	return func(o *options) { o.backendName = name }
}

// WithPipelineBackend injects an already-initialized backend. The
// renderer uses it as-is and does not close it on Dispose. Use this to
// share one backend between several effects or to substitute a test
// double.
func WithPipelineBackend(b backend.PipelineBackend) Option {
	return func(o *options) { o.injected = b }
}

// WithDevice shares the host's render device with the backend. Only
// backends that support device sharing honor it; the rest open their
// own device.
func WithDevice(h DeviceHandle) Option {
	return func(o *options) { o.device = h }
}

// WithTier pins the quality tier instead of deriving it from the
// probed device class.
func WithTier(t Tier) Option {
	return func(o *options) { o.tier = &t }
}

// WithQuality supplies a full parameter set, overriding both the tier
// probe and WithTier.
func WithQuality(q QualityParams) Option {
	return func(o *options) { o.quality = &q }
}

// WithSize sets the render target size in layout pixels. The default
// is the source size. The device pixel ratio multiplies on top.
func WithSize(w, h int) Option {
	return func(o *options) { o.width, o.height = w, h }
}

// WithPixelRatio sets the device pixel ratio applied to the target
// size. It is capped by the quality tier.
func WithPixelRatio(r float64) Option {
	return func(o *options) { o.pixelRatio = r }
}

// WithOverscan overrides the derived overscan fraction. Overscan
// shrinks the sampled source region so per-pixel displacement never
// reveals a frame edge; each effect derives a sufficient value from
// its own attributes by default.
func WithOverscan(frac float64) Option {
	return func(o *options) { o.overscan = &frac }
}

// WithDisplayRate sets the display loop frequency in Hz. Default 60.
func WithDisplayRate(hz float64) Option {
	return func(o *options) {
		if hz > 0 {
			o.displayRate = hz
		}
	}
}

// WithEventBuffer sets the event channel capacity. When the host stops
// draining, the oldest events are dropped rather than blocking the
// render loops.
func WithEventBuffer(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.eventBuffer = n
		}
	}
}

// core is the state shared by every effect constructor: the resolved
// backend, quality tier, target geometry and the depth provisioning
// outcome. Effects consume it through finish().
type core struct {
	cfg *Config
	o   options

	be    backend.PipelineBackend
	ownBE bool

	quality *backend.QualityParams
	derived *depth.DerivedParams
	reader  depth.Reader // nil on the estimation path until Initialize

	srcW, srcH   int
	dispW, dispH int
	mirror       bool
}

// newCore validates the config, acquires a backend and resolves the
// quality tier and target geometry. On the precomputed path it also
// analyzes the depth set so derived defaults are available to the
// effect's attribute resolution.
func newCore(cfg *Config, opts []Option) (*core, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	c := &core{cfg: cfg, o: o}
	if err := c.acquireBackend(); err != nil {
		return nil, err
	}

	c.quality = resolveQuality(&o, c.be.Class())
	c.srcW, c.srcH = cfg.Source.Size()

	ratio := effectivePixelRatio(o.pixelRatio, c.quality)
	w, h := o.width, o.height
	if w <= 0 || h <= 0 {
		w, h = c.srcW, c.srcH
	}
	c.dispW = scaleDim(w, ratio)
	c.dispH = scaleDim(h, ratio)

	if cfg.Mirror != nil {
		c.mirror = *cfg.Mirror
	} else if m, ok := cfg.Source.(source.Mirrored); ok {
		c.mirror = m.Mirrored()
	}

	if cfg.DepthFrames != nil {
		d := depth.Analyze(cfg.DepthFrames).Derive()
		c.derived = &d
		c.reader = depth.NewInterpolator(cfg.DepthFrames)
	}
	return c, nil
}

// acquireBackend resolves the rendering backend: injected instance,
// named lookup, or the registry probe in priority order. The probe
// falls from the GPU backend to the CPU backend when no device opens.
func (c *core) acquireBackend() error {
	switch {
	case c.o.injected != nil:
		c.be = c.o.injected
	case c.o.backendName != "":
		b := backend.Get(c.o.backendName)
		if b == nil {
			return fmt.Errorf("depthfx: backend %q: %w", c.o.backendName, backend.ErrBackendNotAvailable)
		}
		propagateLogger(b)
		c.applyDevice(b)
		if err := b.Init(); err != nil {
			return fmt.Errorf("depthfx: init backend %q: %w", c.o.backendName, err)
		}
		c.be = b
		c.ownBE = true
	default:
		b, err := c.probe()
		if err != nil {
			return err
		}
		c.be = b
		c.ownBE = true
	}
	propagateLogger(c.be)
	Logger().Debug("backend selected",
		"backend", c.be.Name(),
		"class", c.be.Class().String(),
		"owned", c.ownBE)
	return nil
}

// probe walks the registered backends in priority order, handing each
// the shared device first so a provider-aware backend can adopt it
// instead of opening its own.
func (c *core) probe() (backend.PipelineBackend, error) {
	if c.o.device == nil {
		b, err := backend.InitDefault()
		if err != nil {
			return nil, fmt.Errorf("depthfx: no usable backend: %w", err)
		}
		return b, nil
	}

	var firstErr error
	for _, name := range []string{backend.BackendWGPU, backend.BackendNative} {
		b := backend.Get(name)
		if b == nil {
			continue
		}
		propagateLogger(b)
		c.applyDevice(b)
		if err := b.Init(); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			b.Close()
			continue
		}
		return b, nil
	}
	if firstErr == nil {
		firstErr = backend.ErrBackendNotAvailable
	}
	return nil, fmt.Errorf("depthfx: no usable backend: %w", firstErr)
}

// applyDevice hands the shared device to a provider-aware backend. A
// provider the backend cannot use is logged and ignored; the backend
// then opens its own device in Init.
func (c *core) applyDevice(b backend.PipelineBackend) {
	if c.o.device == nil {
		return
	}
	aware, ok := b.(backend.DeviceProviderAware)
	if !ok {
		return
	}
	if err := aware.SetDeviceProvider(c.o.device); err != nil {
		Logger().Warn("shared device rejected", "backend", b.Name(), "err", err)
	}
}

// close releases the backend if the core owns it. Effect constructors
// call it on their error paths.
func (c *core) close() {
	if c.ownBE && c.be != nil {
		c.be.Close()
	}
}

func scaleDim(v int, ratio float64) int {
	s := int(float64(v)*ratio + 0.5)
	if s < 1 {
		s = 1
	}
	return s
}
