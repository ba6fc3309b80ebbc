package depthfx

import (
	"math"
	"testing"
)

func TestCoverFitIdentity(t *testing.T) {
	tests := []struct {
		name         string
		dispW, dispH int
		srcW, srcH   int
	}{
		{"square", 256, 256, 512, 512},
		{"same size", 640, 360, 640, 360},
		{"same aspect scaled", 160, 90, 1920, 1080},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			su, sv, ou, ov := coverFit(tt.dispW, tt.dispH, tt.srcW, tt.srcH)
			if su != 1 || sv != 1 || ou != 0 || ov != 0 {
				t.Fatalf("coverFit = scale(%v,%v) offset(%v,%v), want identity", su, sv, ou, ov)
			}
		})
	}
}

func TestCoverFitCrops(t *testing.T) {
	tests := []struct {
		name         string
		dispW, dispH int
		srcW, srcH   int
		wantSU       float64
		wantSV       float64
	}{
		{"wide source crops horizontally", 100, 100, 200, 100, 0.5, 1},
		{"tall source crops vertically", 200, 100, 100, 100, 1, 0.5},
		{"widescreen source in portrait", 90, 160, 160, 90, (90.0 / 160.0) / (160.0 / 90.0), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			su, sv, ou, ov := coverFit(tt.dispW, tt.dispH, tt.srcW, tt.srcH)
			if math.Abs(su-tt.wantSU) > 1e-12 || math.Abs(sv-tt.wantSV) > 1e-12 {
				t.Fatalf("scale = (%v,%v), want (%v,%v)", su, sv, tt.wantSU, tt.wantSV)
			}
			if math.Abs(ou-(1-su)/2) > 1e-12 || math.Abs(ov-(1-sv)/2) > 1e-12 {
				t.Fatalf("offset = (%v,%v), not centered for scale (%v,%v)", ou, ov, su, sv)
			}
		})
	}
}

func TestOverscanShrinksAroundCenter(t *testing.T) {
	base := computeViewport(320, 180, 1280, 720, 0, false)
	prev := base.ScaleU
	for _, o := range []float64{0.01, 0.05, 0.1, 0.2} {
		vp := computeViewport(320, 180, 1280, 720, o, false)
		if vp.ScaleU >= prev {
			t.Fatalf("overscan %v: scale %v did not shrink below %v", o, vp.ScaleU, prev)
		}
		prev = vp.ScaleU

		baseCenter := base.OffsetU + base.ScaleU/2
		center := vp.OffsetU + vp.ScaleU/2
		if math.Abs(center-baseCenter) > 1e-12 {
			t.Fatalf("overscan %v: center moved from %v to %v", o, baseCenter, center)
		}
		vCenter := vp.OffsetV + vp.ScaleV/2
		if math.Abs(vCenter-(base.OffsetV+base.ScaleV/2)) > 1e-12 {
			t.Fatalf("overscan %v: vertical center moved to %v", o, vCenter)
		}
	}
}

func TestOverscanClamped(t *testing.T) {
	capped := computeViewport(100, 100, 100, 100, maxOverscan, false)
	beyond := computeViewport(100, 100, 100, 100, 0.9, false)
	if beyond.ScaleU != capped.ScaleU || beyond.OffsetU != capped.OffsetU {
		t.Fatalf("overscan 0.9 = scale %v offset %v, want clamp to %v / %v",
			beyond.ScaleU, beyond.OffsetU, capped.ScaleU, capped.OffsetU)
	}
	if capped.ScaleU <= 0 {
		t.Fatalf("clamped scale %v not positive", capped.ScaleU)
	}
}

func TestMirrorReflectsU(t *testing.T) {
	plain := computeViewport(128, 128, 128, 128, 0.05, false)
	mirrored := computeViewport(128, 128, 128, 128, 0.05, true)

	if mirrored.ScaleU >= 0 {
		t.Fatalf("mirrored ScaleU = %v, want negative", mirrored.ScaleU)
	}
	if mirrored.ScaleV != plain.ScaleV || mirrored.OffsetV != plain.OffsetV {
		t.Fatal("mirror touched the vertical axis")
	}

	// Mirroring maps u to 1-u within the sampled region.
	for _, u := range []float64{0, 0.25, 0.5, 0.75, 1} {
		mu, _ := mirrored.Map(u, 0.5)
		pu, _ := plain.Map(1-u, 0.5)
		if math.Abs(mu-pu) > 1e-12 {
			t.Fatalf("Map(%v) mirrored = %v, plain reflected = %v", u, mu, pu)
		}
	}
}

func TestComputeViewportDimensions(t *testing.T) {
	vp := computeViewport(333, 111, 640, 360, 0.02, false)
	if vp.W != 333 || vp.H != 111 {
		t.Fatalf("viewport size = %dx%d, want 333x111", vp.W, vp.H)
	}
	if !vp.Valid() {
		t.Fatal("viewport not valid")
	}
}
