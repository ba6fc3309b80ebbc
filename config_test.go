package depthfx

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/gogpu/depthfx/backend"
	"github.com/gogpu/depthfx/depth"
	"github.com/gogpu/depthfx/source"
)

// mockPipeline implements backend.Pipeline for testing, recording
// every call it sees.
type mockPipeline struct {
	mu          sync.Mutex
	initialized bool
	disposed    bool
	depthCalls  int
	renderCalls int
	resizeCalls int
	lastInput   backend.FrameInput
	lastVP      backend.Viewport
	frame       []byte
	renderErr   error

	renderBeforeDepth bool
}

func newMockPipeline(vp backend.Viewport) *mockPipeline {
	return &mockPipeline{lastVP: vp}
}

func (p *mockPipeline) Initialize(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.initialized = true
	p.frame = make([]byte, p.lastVP.W*p.lastVP.H*4)
	return nil
}

func (p *mockPipeline) UploadDepth(buf []byte, w, h int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(buf) < w*h {
		return errors.New("short depth buffer")
	}
	p.depthCalls++
	return nil
}

func (p *mockPipeline) RenderFrame(in backend.FrameInput) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.renderErr; err != nil {
		return err
	}
	if p.depthCalls == 0 {
		p.renderBeforeDepth = true
	}
	p.renderCalls++
	in.Pix = nil // borrowed, do not retain
	p.lastInput = in
	return nil
}

func (p *mockPipeline) Frame() []byte { return p.frame }

func (p *mockPipeline) Resize(vp backend.Viewport) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !vp.Valid() {
		return errors.New("invalid viewport")
	}
	p.resizeCalls++
	p.lastVP = vp
	p.frame = make([]byte, vp.W*vp.H*4)
	return nil
}

func (p *mockPipeline) Dispose() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disposed = true
}

func (p *mockPipeline) setRenderErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.renderErr = err
}

func (p *mockPipeline) snapshot() (depthCalls, renderCalls, resizeCalls int, last backend.FrameInput) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.depthCalls, p.renderCalls, p.resizeCalls, p.lastInput
}

// mockBackend implements backend.PipelineBackend, handing out mock
// pipelines and retaining the specs it was asked to build.
type mockBackend struct {
	mu        sync.Mutex
	class     backend.DeviceClass
	initCalls int
	closed    bool
	logger    *slog.Logger

	parallaxSpec  *backend.ParallaxSpec
	rackFocusSpec *backend.RackFocusSpec
	portalSpec    *backend.PortalSpec
	pipes         []*mockPipeline
}

func newMockBackend(class backend.DeviceClass) *mockBackend {
	return &mockBackend{class: class}
}

func (b *mockBackend) Name() string { return "mock" }

func (b *mockBackend) Init() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.initCalls++
	return nil
}

func (b *mockBackend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
}

func (b *mockBackend) Class() backend.DeviceClass { return b.class }

func (b *mockBackend) SetLogger(l *slog.Logger) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logger = l
}

func (b *mockBackend) NewParallax(spec backend.ParallaxSpec) (backend.Pipeline, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.parallaxSpec = &spec
	p := newMockPipeline(spec.Viewport)
	b.pipes = append(b.pipes, p)
	return p, nil
}

func (b *mockBackend) NewRackFocus(spec backend.RackFocusSpec) (backend.Pipeline, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rackFocusSpec = &spec
	p := newMockPipeline(spec.Viewport)
	b.pipes = append(b.pipes, p)
	return p, nil
}

func (b *mockBackend) NewPortal(spec backend.PortalSpec) (backend.Pipeline, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.portalSpec = &spec
	p := newMockPipeline(spec.Viewport)
	b.pipes = append(b.pipes, p)
	return p, nil
}

func (b *mockBackend) pipe(t *testing.T) *mockPipeline {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.pipes) == 0 {
		t.Fatal("no pipeline was built")
	}
	return b.pipes[len(b.pipes)-1]
}

// rampSet builds a small frame set sweeping near to far, enough to
// drive depth analysis.
func rampSet(t *testing.T) *depth.FrameSet {
	t.Helper()
	const w, h, n = 8, 8, 2
	payload := make([]byte, w*h*n)
	for f := 0; f < n; f++ {
		for i := 0; i < w*h; i++ {
			payload[f*w*h+i] = byte(40 + f*150 + (i%w)*8)
		}
	}
	fs, err := depth.NewFrameSet(depth.Metadata{
		Width: w, Height: h, FrameCount: n, FPS: 30,
	}, payload)
	if err != nil {
		t.Fatalf("NewFrameSet: %v", err)
	}
	return fs
}

func testPattern(t *testing.T) *source.Pattern {
	t.Helper()
	p := source.NewPattern(source.PatternConfig{Width: 32, Height: 18, FPS: 60})
	t.Cleanup(func() { p.Close() })
	return p
}

func TestConfigValidation(t *testing.T) {
	t.Run("no source", func(t *testing.T) {
		_, err := NewParallax(ParallaxConfig{})
		if !errors.Is(err, ErrNoSource) {
			t.Fatalf("err = %v, want ErrNoSource", err)
		}
	})
	t.Run("no depth provider", func(t *testing.T) {
		_, err := NewParallax(ParallaxConfig{
			Config: Config{Source: testPattern(t)},
		})
		if !errors.Is(err, ErrNoDepthProvider) {
			t.Fatalf("err = %v, want ErrNoDepthProvider", err)
		}
	})
	t.Run("unknown backend name", func(t *testing.T) {
		_, err := NewParallax(ParallaxConfig{
			Config: Config{Source: testPattern(t), DepthFrames: rampSet(t)},
		}, WithBackend("no-such-backend"))
		if !errors.Is(err, backend.ErrBackendNotAvailable) {
			t.Fatalf("err = %v, want ErrBackendNotAvailable", err)
		}
	})
}

func TestParallaxAttributePrecedence(t *testing.T) {
	fs := rampSet(t)
	derived := depth.Analyze(fs).Derive()

	t.Run("derived when unset", func(t *testing.T) {
		be := newMockBackend(backend.ClassCPU)
		fx, err := NewParallax(ParallaxConfig{
			Config: Config{Source: testPattern(t), DepthFrames: fs},
		}, WithPipelineBackend(be))
		if err != nil {
			t.Fatalf("NewParallax: %v", err)
		}
		defer fx.Dispose()

		spec := be.parallaxSpec
		if spec.Strength != derived.ParallaxStrength {
			t.Errorf("Strength = %v, want derived %v", spec.Strength, derived.ParallaxStrength)
		}
		if spec.AxisY != derived.ParallaxYScale {
			t.Errorf("AxisY = %v, want derived %v", spec.AxisY, derived.ParallaxYScale)
		}
		if spec.AxisX != 1 {
			t.Errorf("AxisX = %v, want 1", spec.AxisX)
		}
	})

	t.Run("explicit wins", func(t *testing.T) {
		be := newMockBackend(backend.ClassCPU)
		fx, err := NewParallax(ParallaxConfig{
			Config:   Config{Source: testPattern(t), DepthFrames: fs},
			Strength: Float(0.09),
			AxisY:    Float(0.5),
			POM:      true,
		}, WithPipelineBackend(be))
		if err != nil {
			t.Fatalf("NewParallax: %v", err)
		}
		defer fx.Dispose()

		spec := be.parallaxSpec
		if spec.Strength != 0.09 || spec.AxisY != 0.5 || !spec.POM {
			t.Errorf("spec = %+v, want explicit strength 0.09 axisY 0.5 pom", spec)
		}
		if fx.Strength() != 0.09 {
			t.Errorf("Strength() = %v", fx.Strength())
		}
	})

	t.Run("default without depth analysis", func(t *testing.T) {
		be := newMockBackend(backend.ClassCPU)
		fx, err := NewParallax(ParallaxConfig{
			Config: Config{Source: testPattern(t), ModelPath: "model.onnx"},
		}, WithPipelineBackend(be))
		if err != nil {
			t.Fatalf("NewParallax: %v", err)
		}
		defer fx.Dispose()

		if be.parallaxSpec.Strength != defaultParallaxStrength {
			t.Errorf("Strength = %v, want built-in %v", be.parallaxSpec.Strength, defaultParallaxStrength)
		}
	})
}

func TestRackFocusAttributePrecedence(t *testing.T) {
	fs := rampSet(t)
	derived := depth.Analyze(fs).Derive()

	be := newMockBackend(backend.ClassCPU)
	fx, err := NewRackFocus(RackFocusConfig{
		Config:  Config{Source: testPattern(t), DepthFrames: fs},
		MaxBlur: Float(9),
	}, WithPipelineBackend(be))
	if err != nil {
		t.Fatalf("NewRackFocus: %v", err)
	}
	defer fx.Dispose()

	spec := be.rackFocusSpec
	if spec.Aperture != defaultAperture*derived.DOFScale {
		t.Errorf("Aperture = %v, want derived %v", spec.Aperture, defaultAperture*derived.DOFScale)
	}
	if spec.FocusMin != derived.FocusMin || spec.FocusMax != derived.FocusMax {
		t.Errorf("focus range = [%v,%v], want derived [%v,%v]",
			spec.FocusMin, spec.FocusMax, derived.FocusMin, derived.FocusMax)
	}
	if spec.MaxBlur != 9 {
		t.Errorf("MaxBlur = %v, want explicit 9", spec.MaxBlur)
	}
	if st := fx.FocusState(); st.FocalDepth != derived.AutoFocusDepth {
		t.Errorf("initial focal depth = %v, want derived auto %v", st.FocalDepth, derived.AutoFocusDepth)
	}
}

func TestQualityResolution(t *testing.T) {
	fs := rampSet(t)

	t.Run("tier option", func(t *testing.T) {
		be := newMockBackend(backend.ClassDiscreteGPU)
		fx, err := NewParallax(ParallaxConfig{
			Config: Config{Source: testPattern(t), DepthFrames: fs},
		}, WithPipelineBackend(be), WithTier(TierLow))
		if err != nil {
			t.Fatalf("NewParallax: %v", err)
		}
		defer fx.Dispose()

		q := fx.Quality()
		want := backend.ParamsFor(backend.TierLow)
		if q != want {
			t.Errorf("quality = %+v, want low-tier %+v", q, want)
		}
	})

	t.Run("device class default", func(t *testing.T) {
		be := newMockBackend(backend.ClassDiscreteGPU)
		fx, err := NewParallax(ParallaxConfig{
			Config: Config{Source: testPattern(t), DepthFrames: fs},
		}, WithPipelineBackend(be))
		if err != nil {
			t.Fatalf("NewParallax: %v", err)
		}
		defer fx.Dispose()

		if got := fx.Quality().Tier; got != TierHigh {
			t.Errorf("tier for discrete GPU = %v, want high", got)
		}
	})

	t.Run("explicit params", func(t *testing.T) {
		be := newMockBackend(backend.ClassCPU)
		q := backend.ParamsFor(backend.TierMedium)
		q.PoissonSamples = 24
		fx, err := NewParallax(ParallaxConfig{
			Config: Config{Source: testPattern(t), DepthFrames: fs},
		}, WithPipelineBackend(be), WithQuality(q))
		if err != nil {
			t.Fatalf("NewParallax: %v", err)
		}
		defer fx.Dispose()

		if got := fx.Quality().PoissonSamples; got != 24 {
			t.Errorf("PoissonSamples = %d, want 24", got)
		}
	})
}

func TestViewportFromOptions(t *testing.T) {
	fs := rampSet(t)

	t.Run("size and pixel ratio", func(t *testing.T) {
		be := newMockBackend(backend.ClassDiscreteGPU)
		fx, err := NewParallax(ParallaxConfig{
			Config: Config{Source: testPattern(t), DepthFrames: fs},
		}, WithPipelineBackend(be), WithSize(100, 50), WithPixelRatio(2))
		if err != nil {
			t.Fatalf("NewParallax: %v", err)
		}
		defer fx.Dispose()

		vp := fx.Viewport()
		if vp.W != 200 || vp.H != 100 {
			t.Errorf("viewport = %dx%d, want 200x100", vp.W, vp.H)
		}
	})

	t.Run("pixel ratio capped by tier", func(t *testing.T) {
		be := newMockBackend(backend.ClassCPU)
		fx, err := NewParallax(ParallaxConfig{
			Config: Config{Source: testPattern(t), DepthFrames: fs},
		}, WithPipelineBackend(be), WithTier(TierLow), WithSize(100, 50), WithPixelRatio(3))
		if err != nil {
			t.Fatalf("NewParallax: %v", err)
		}
		defer fx.Dispose()

		// Low tier caps the ratio at 1.
		if vp := fx.Viewport(); vp.W != 100 || vp.H != 50 {
			t.Errorf("viewport = %dx%d, want 100x50", vp.W, vp.H)
		}
	})

	t.Run("mirror", func(t *testing.T) {
		be := newMockBackend(backend.ClassCPU)
		fx, err := NewParallax(ParallaxConfig{
			Config: Config{Source: testPattern(t), DepthFrames: fs, Mirror: Bool(true)},
		}, WithPipelineBackend(be))
		if err != nil {
			t.Fatalf("NewParallax: %v", err)
		}
		defer fx.Dispose()

		if vp := fx.Viewport(); vp.ScaleU >= 0 {
			t.Errorf("mirrored ScaleU = %v, want negative", vp.ScaleU)
		}
	})

	t.Run("explicit overscan", func(t *testing.T) {
		be := newMockBackend(backend.ClassCPU)
		fx, err := NewParallax(ParallaxConfig{
			Config: Config{Source: testPattern(t), DepthFrames: fs},
		}, WithPipelineBackend(be), WithOverscan(0.1))
		if err != nil {
			t.Fatalf("NewParallax: %v", err)
		}
		defer fx.Dispose()

		want := computeViewport(32, 18, 32, 18, 0.1, false)
		if vp := fx.Viewport(); vp != want {
			t.Errorf("viewport = %+v, want %+v", vp, want)
		}
	})
}

func TestInjectedBackendNotOwned(t *testing.T) {
	be := newMockBackend(backend.ClassCPU)
	fx, err := NewParallax(ParallaxConfig{
		Config: Config{Source: testPattern(t), DepthFrames: rampSet(t)},
	}, WithPipelineBackend(be))
	if err != nil {
		t.Fatalf("NewParallax: %v", err)
	}
	fx.Dispose()

	be.mu.Lock()
	defer be.mu.Unlock()
	if be.closed {
		t.Fatal("injected backend was closed by Dispose")
	}
	if be.initCalls != 0 {
		t.Fatalf("injected backend saw %d Init calls, want 0", be.initCalls)
	}
	if be.logger == nil {
		t.Fatal("logger was not propagated to the backend")
	}
}
