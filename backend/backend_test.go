package backend

import (
	"errors"
	"testing"
)

// fakeBackend implements PipelineBackend for registry tests.
type fakeBackend struct {
	name    string
	class   DeviceClass
	initErr error
	inited  bool
	closed  bool
}

func (f *fakeBackend) Name() string       { return f.name }
func (f *fakeBackend) Class() DeviceClass { return f.class }

func (f *fakeBackend) Init() error {
	if f.initErr != nil {
		return f.initErr
	}
	f.inited = true
	return nil
}

func (f *fakeBackend) Close() { f.closed = true }

func (f *fakeBackend) NewParallax(spec ParallaxSpec) (Pipeline, error) {
	return nil, ErrNotInitialized
}

func (f *fakeBackend) NewRackFocus(spec RackFocusSpec) (Pipeline, error) {
	return nil, ErrNotInitialized
}

func (f *fakeBackend) NewPortal(spec PortalSpec) (Pipeline, error) {
	return nil, ErrNotInitialized
}

func TestRegistryRegisterAndGet(t *testing.T) {
	Register("test-fake", func() PipelineBackend {
		return &fakeBackend{name: "test-fake", class: ClassCPU}
	})
	defer Unregister("test-fake")

	b := Get("test-fake")
	if b == nil {
		t.Fatal("Get(test-fake) returned nil")
	}
	if b.Name() != "test-fake" {
		t.Errorf("Get(test-fake).Name() = %q, want %q", b.Name(), "test-fake")
	}
}

func TestRegistryGetUnregistered(t *testing.T) {
	if b := Get("nonexistent"); b != nil {
		t.Error("Get(nonexistent) should return nil")
	}
}

func TestRegistryAvailable(t *testing.T) {
	Register("test-fake", func() PipelineBackend {
		return &fakeBackend{name: "test-fake"}
	})
	defer Unregister("test-fake")

	found := false
	for _, name := range Available() {
		if name == "test-fake" {
			found = true
			break
		}
	}
	if !found {
		t.Error("Available() should include 'test-fake'")
	}
}

func TestRegistryUnregister(t *testing.T) {
	Register("test-fake", func() PipelineBackend {
		return &fakeBackend{name: "test-fake"}
	})

	if !IsRegistered("test-fake") {
		t.Error("test-fake should be registered")
	}

	Unregister("test-fake")

	if IsRegistered("test-fake") {
		t.Error("test-fake should be unregistered")
	}
}

func TestRegistryDefaultPriority(t *testing.T) {
	Register(BackendWGPU, func() PipelineBackend {
		return &fakeBackend{name: BackendWGPU, class: ClassDiscreteGPU}
	})
	Register(BackendNative, func() PipelineBackend {
		return &fakeBackend{name: BackendNative, class: ClassCPU}
	})
	defer Unregister(BackendWGPU)
	defer Unregister(BackendNative)

	b := Default()
	if b == nil {
		t.Fatal("Default() returned nil")
	}
	if b.Name() != BackendWGPU {
		t.Errorf("Default().Name() = %q, want %q", b.Name(), BackendWGPU)
	}

	Unregister(BackendWGPU)

	b = Default()
	if b == nil {
		t.Fatal("Default() returned nil after unregistering wgpu")
	}
	if b.Name() != BackendNative {
		t.Errorf("Default().Name() = %q, want %q", b.Name(), BackendNative)
	}
}

func TestInitDefaultProbesInPriorityOrder(t *testing.T) {
	gpu := &fakeBackend{name: BackendWGPU, initErr: errors.New("no adapter")}
	cpu := &fakeBackend{name: BackendNative, class: ClassCPU}

	Register(BackendWGPU, func() PipelineBackend { return gpu })
	Register(BackendNative, func() PipelineBackend { return cpu })
	defer Unregister(BackendWGPU)
	defer Unregister(BackendNative)

	b, err := InitDefault()
	if err != nil {
		t.Fatalf("InitDefault() error = %v", err)
	}
	if b.Name() != BackendNative {
		t.Errorf("InitDefault() selected %q, want fall-through to %q", b.Name(), BackendNative)
	}
	if !cpu.inited {
		t.Error("selected backend should be initialized")
	}
	if !gpu.closed {
		t.Error("failed probe should close the backend before falling through")
	}
	b.Close()
}

func TestInitDefaultReturnsProbeError(t *testing.T) {
	probeErr := errors.New("device exploded")
	Register(BackendWGPU, func() PipelineBackend {
		return &fakeBackend{name: BackendWGPU, initErr: probeErr}
	})
	defer Unregister(BackendWGPU)

	_, err := InitDefault()
	if !errors.Is(err, probeErr) {
		t.Errorf("InitDefault() error = %v, want the probe error", err)
	}
}

func TestInitDefaultNoBackends(t *testing.T) {
	_, err := InitDefault()
	if !errors.Is(err, ErrBackendNotAvailable) {
		t.Errorf("InitDefault() error = %v, want ErrBackendNotAvailable", err)
	}
}

func TestTierString(t *testing.T) {
	tests := []struct {
		tier Tier
		want string
	}{
		{TierLow, "low"},
		{TierMedium, "medium"},
		{TierHigh, "high"},
		{Tier(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.tier.String(); got != tt.want {
			t.Errorf("Tier(%d).String() = %q, want %q", tt.tier, got, tt.want)
		}
	}
}

func TestParseTier(t *testing.T) {
	tests := []struct {
		s    string
		want Tier
		ok   bool
	}{
		{"low", TierLow, true},
		{"medium", TierMedium, true},
		{"high", TierHigh, true},
		{"ultra", TierLow, false},
		{"", TierLow, false},
	}
	for _, tt := range tests {
		got, ok := ParseTier(tt.s)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseTier(%q) = (%v, %v), want (%v, %v)", tt.s, got, ok, tt.want, tt.ok)
		}
	}
}

func TestDeviceClassString(t *testing.T) {
	tests := []struct {
		class DeviceClass
		want  string
	}{
		{ClassCPU, "cpu"},
		{ClassIntegratedGPU, "integrated"},
		{ClassDiscreteGPU, "discrete"},
		{ClassUnknown, "unknown"},
	}
	for _, tt := range tests {
		if got := tt.class.String(); got != tt.want {
			t.Errorf("DeviceClass(%d).String() = %q, want %q", tt.class, got, tt.want)
		}
	}
}

func TestTierFor(t *testing.T) {
	tests := []struct {
		name  string
		class DeviceClass
		cores int
		want  Tier
	}{
		{"discrete GPU", ClassDiscreteGPU, 2, TierHigh},
		{"integrated GPU", ClassIntegratedGPU, 16, TierMedium},
		{"CPU many cores", ClassCPU, 8, TierMedium},
		{"CPU few cores", ClassCPU, 4, TierLow},
		{"unknown class", ClassUnknown, 32, TierLow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TierFor(tt.class, tt.cores); got != tt.want {
				t.Errorf("TierFor(%v, %d) = %v, want %v", tt.class, tt.cores, got, tt.want)
			}
		})
	}
}

func TestParamsFor(t *testing.T) {
	low := ParamsFor(TierLow)
	med := ParamsFor(TierMedium)
	high := ParamsFor(TierHigh)

	if low.Tier != TierLow || med.Tier != TierMedium || high.Tier != TierHigh {
		t.Error("ParamsFor should record its tier")
	}

	// Sample counts and caps grow with the tier.
	if !(low.BilateralRadius < med.BilateralRadius && med.BilateralRadius < high.BilateralRadius) {
		t.Errorf("BilateralRadius not ascending: %d, %d, %d",
			low.BilateralRadius, med.BilateralRadius, high.BilateralRadius)
	}
	if !(low.PoissonSamples < med.PoissonSamples && med.PoissonSamples < high.PoissonSamples) {
		t.Errorf("PoissonSamples not ascending: %d, %d, %d",
			low.PoissonSamples, med.PoissonSamples, high.PoissonSamples)
	}
	if !(low.DepthMaxDim < med.DepthMaxDim && med.DepthMaxDim < high.DepthMaxDim) {
		t.Errorf("DepthMaxDim not ascending: %d, %d, %d",
			low.DepthMaxDim, med.DepthMaxDim, high.DepthMaxDim)
	}
	if !(low.PixelRatioCap < med.PixelRatioCap && med.PixelRatioCap < high.PixelRatioCap) {
		t.Errorf("PixelRatioCap not ascending: %v, %v, %v",
			low.PixelRatioCap, med.PixelRatioCap, high.PixelRatioCap)
	}

	// Only the low tier trades blur resolution for speed.
	if !low.HalfResBlur {
		t.Error("low tier should use half-res blur")
	}
	if med.HalfResBlur || high.HalfResBlur {
		t.Error("medium and high tiers should blur at full resolution")
	}

	// The low tier disables the occlusion march entirely.
	if low.POMSteps != 0 {
		t.Errorf("low tier POMSteps = %d, want 0", low.POMSteps)
	}
	if med.POMSteps <= 0 || high.POMSteps <= med.POMSteps {
		t.Errorf("POMSteps not ascending above low: %d, %d", med.POMSteps, high.POMSteps)
	}
}

func TestFullViewport(t *testing.T) {
	vp := FullViewport(800, 600)
	if vp.W != 800 || vp.H != 600 {
		t.Errorf("FullViewport dims = %dx%d, want 800x600", vp.W, vp.H)
	}
	if !vp.Valid() {
		t.Error("FullViewport should be valid")
	}

	// Identity transform: target UV maps to itself.
	for _, uv := range [][2]float64{{0, 0}, {1, 1}, {0.25, 0.75}} {
		su, sv := vp.Map(uv[0], uv[1])
		if su != uv[0] || sv != uv[1] {
			t.Errorf("Map(%v, %v) = (%v, %v), want identity", uv[0], uv[1], su, sv)
		}
	}
}

func TestViewportMap(t *testing.T) {
	// Overscan: scale 0.9, centered.
	vp := Viewport{W: 100, H: 100, ScaleU: 0.9, ScaleV: 0.9, OffsetU: 0.05, OffsetV: 0.05}
	su, sv := vp.Map(0.5, 0.5)
	if !near(su, 0.5) || !near(sv, 0.5) {
		t.Errorf("center Map = (%v, %v), want (0.5, 0.5)", su, sv)
	}
	su, sv = vp.Map(0, 0)
	if !near(su, 0.05) || !near(sv, 0.05) {
		t.Errorf("corner Map = (%v, %v), want (0.05, 0.05)", su, sv)
	}

	// Mirrored camera: negative ScaleU flips horizontally.
	vp = Viewport{W: 100, H: 100, ScaleU: -1, ScaleV: 1, OffsetU: 1}
	su, _ = vp.Map(0, 0)
	if !near(su, 1) {
		t.Errorf("mirrored Map(0) = %v, want 1", su)
	}
	su, _ = vp.Map(1, 0)
	if !near(su, 0) {
		t.Errorf("mirrored Map(1) = %v, want 0", su)
	}
}

func TestViewportValid(t *testing.T) {
	tests := []struct {
		vp   Viewport
		want bool
	}{
		{Viewport{W: 1, H: 1, ScaleU: 1, ScaleV: 1}, true},
		{Viewport{W: 0, H: 100}, false},
		{Viewport{W: 100, H: 0}, false},
		{Viewport{W: -1, H: -1}, false},
	}
	for _, tt := range tests {
		if got := tt.vp.Valid(); got != tt.want {
			t.Errorf("Viewport{%d, %d}.Valid() = %v, want %v", tt.vp.W, tt.vp.H, got, tt.want)
		}
	}
}

func near(got, want float64) bool {
	d := got - want
	if d < 0 {
		d = -d
	}
	return d < 1e-9
}
