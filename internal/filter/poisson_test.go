package filter

import (
	"math"
	"testing"
)

func TestPoissonDiscCount(t *testing.T) {
	for _, n := range []int{1, 8, 16, 32} {
		if got := len(PoissonDisc(n)); got != n {
			t.Errorf("PoissonDisc(%d) returned %d samples", n, got)
		}
	}
	if PoissonDisc(0) != nil {
		t.Error("PoissonDisc(0) != nil")
	}
	if PoissonDisc(-3) != nil {
		t.Error("PoissonDisc(-3) != nil")
	}
}

func TestPoissonDiscInsideUnitDisc(t *testing.T) {
	for _, s := range PoissonDisc(32) {
		r := math.Hypot(float64(s.X), float64(s.Y))
		if r > 1.0+1e-6 {
			t.Errorf("sample (%v, %v) outside unit disc, |r| = %v", s.X, s.Y, r)
		}
	}
}

func TestPoissonDiscDeterministic(t *testing.T) {
	a := PoissonDisc(16)
	b := PoissonDisc(16)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("sample %d differs between calls: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestPoissonDiscSeparation(t *testing.T) {
	// Best-candidate sampling will not pack points on top of each
	// other; at 16 samples the minimum pairwise distance should be
	// clearly nonzero.
	pts := PoissonDisc(16)
	minD := math.MaxFloat64
	for i := range pts {
		for j := i + 1; j < len(pts); j++ {
			dx := float64(pts[i].X - pts[j].X)
			dy := float64(pts[i].Y - pts[j].Y)
			if d := math.Hypot(dx, dy); d < minD {
				minD = d
			}
		}
	}
	if minD < 0.05 {
		t.Errorf("minimum pairwise distance = %v, want >= 0.05", minD)
	}
}

func TestGaussianKernelNormalized(t *testing.T) {
	tests := []struct {
		name   string
		radius float64
	}{
		{"identity", 0},
		{"small", 1.5},
		{"large", 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k := GaussianKernel(tt.radius)
			var sum float64
			for _, v := range k {
				sum += float64(v)
			}
			if math.Abs(sum-1.0) > 1e-4 {
				t.Errorf("kernel sum = %v, want 1.0", sum)
			}
			if len(k)%2 != 1 {
				t.Errorf("kernel size = %v, want odd", len(k))
			}
		})
	}
}

func TestBlurRGBAZeroRadiusCopies(t *testing.T) {
	w, h := 4, 4
	src := make([]byte, w*h*4)
	for i := range src {
		src[i] = byte(i)
	}
	dst := make([]byte, w*h*4)
	BlurRGBA(dst, src, w, h, 0)

	for i := range src {
		if dst[i] != src[i] {
			t.Fatalf("dst[%d] = %v, want %v", i, dst[i], src[i])
		}
	}
}

func TestBlurRGBASpreadsEnergy(t *testing.T) {
	w, h := 9, 9
	src := make([]byte, w*h*4)
	// Single bright opaque pixel at the center.
	ci := (4*w + 4) * 4
	src[ci+0] = 255
	src[ci+3] = 255

	dst := make([]byte, w*h*4)
	BlurRGBA(dst, src, w, h, 1.5)

	if dst[ci] >= 255 {
		t.Errorf("center after blur = %v, want < 255", dst[ci])
	}
	ni := (4*w + 5) * 4
	if dst[ni] == 0 {
		t.Error("neighbor after blur = 0, want > 0")
	}
}
