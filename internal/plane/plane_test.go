package plane

import (
	"math"
	"testing"
)

func TestNewAndValid(t *testing.T) {
	p := New(4, 3)
	if !p.Valid() {
		t.Fatal("New(4, 3).Valid() = false, want true")
	}
	if len(p.Pix) != 12 {
		t.Errorf("len(Pix) = %v, want 12", len(p.Pix))
	}

	bad := Plane{Pix: make([]byte, 5), W: 4, H: 3}
	if bad.Valid() {
		t.Error("mismatched plane reported Valid")
	}
}

func TestAtClampsEdges(t *testing.T) {
	p := New(2, 2)
	p.Pix = []byte{10, 20, 30, 40}

	tests := []struct {
		name string
		x, y int
		want byte
	}{
		{"in bounds", 1, 0, 20},
		{"negative x", -5, 0, 10},
		{"negative y", 0, -1, 10},
		{"past right", 9, 1, 40},
		{"past bottom", 0, 9, 30},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.At(tt.x, tt.y); got != tt.want {
				t.Errorf("At(%d, %d) = %v, want %v", tt.x, tt.y, got, tt.want)
			}
		})
	}
}

func TestSampleBilinearCenters(t *testing.T) {
	p := New(2, 1)
	p.Pix = []byte{0, 255}

	// Pixel centers return the exact values.
	if got := p.SampleBilinear(0.25, 0.5); got != 0 {
		t.Errorf("left center = %v, want 0", got)
	}
	if got := p.SampleBilinear(0.75, 0.5); got != 1 {
		t.Errorf("right center = %v, want 1", got)
	}
	// Midpoint blends both.
	if got := p.SampleBilinear(0.5, 0.5); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("midpoint = %v, want 0.5", got)
	}
}

func TestDownsampleNearestSamePixels(t *testing.T) {
	src := New(4, 4)
	for i := range src.Pix {
		src.Pix[i] = byte(i * 16)
	}
	dst := New(2, 2)
	DownsampleNearest(dst, src)

	// Every output byte must exist somewhere in the source.
	for _, v := range dst.Pix {
		found := false
		for _, s := range src.Pix {
			if s == v {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("output byte %v not present in source", v)
		}
	}
}

func TestDownsampleNearestEqualSizeCopies(t *testing.T) {
	src := New(3, 2)
	for i := range src.Pix {
		src.Pix[i] = byte(i + 1)
	}
	dst := New(3, 2)
	DownsampleNearest(dst, src)

	for i := range src.Pix {
		if dst.Pix[i] != src.Pix[i] {
			t.Fatalf("Pix[%d] = %v, want %v", i, dst.Pix[i], src.Pix[i])
		}
	}
}

func TestResizeBilinearConstantStaysConstant(t *testing.T) {
	src := New(7, 5)
	src.Fill(77)
	dst := New(13, 9)
	ResizeBilinear(dst, src)

	for i, v := range dst.Pix {
		if v != 77 {
			t.Fatalf("Pix[%d] = %v, want 77", i, v)
		}
	}
}

func TestResizeBilinearF32Upscale(t *testing.T) {
	dst := make([]float32, 4)
	ResizeBilinearF32(dst, 4, 1, []float32{0, 10}, 2, 1)

	want := []float32{0, 2.5, 7.5, 10}
	for i := range want {
		if math.Abs(float64(dst[i]-want[i])) > 1e-6 {
			t.Errorf("dst[%d] = %v, want %v", i, dst[i], want[i])
		}
	}
}

func TestResizeBilinearF32Downscale(t *testing.T) {
	dst := make([]float32, 2)
	ResizeBilinearF32(dst, 2, 1, []float32{0, 10, 20, 30}, 4, 1)

	want := []float32{5, 25}
	for i := range want {
		if math.Abs(float64(dst[i]-want[i])) > 1e-6 {
			t.Errorf("dst[%d] = %v, want %v", i, dst[i], want[i])
		}
	}
}

func TestResizeBilinearF32SameSizeCopies(t *testing.T) {
	src := []float32{1, 2, 3, 4, 5, 6}
	dst := make([]float32, 6)
	ResizeBilinearF32(dst, 3, 2, src, 3, 2)

	for i := range src {
		if dst[i] != src[i] {
			t.Fatalf("dst[%d] = %v, want %v", i, dst[i], src[i])
		}
	}
}

func TestLerp(t *testing.T) {
	a := []byte{0, 100, 200}
	b := []byte{100, 200, 100}
	dst := make([]byte, 3)

	tests := []struct {
		name string
		t    float64
		want []byte
	}{
		{"t=0 returns a", 0, []byte{0, 100, 200}},
		{"t=1 returns b", 1, []byte{100, 200, 100}},
		{"t=0.5 rounds midpoint", 0.5, []byte{50, 150, 150}},
		{"t<0 clamps to a", -2, []byte{0, 100, 200}},
		{"t>1 clamps to b", 3, []byte{100, 200, 100}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t2 *testing.T) {
			Lerp(dst, a, b, tt.t)
			for i := range dst {
				if dst[i] != tt.want[i] {
					t2.Errorf("dst[%d] = %v, want %v", i, dst[i], tt.want[i])
				}
			}
		})
	}
}

func TestLerpRounding(t *testing.T) {
	// 10*(1-0.25) + 30*0.25 = 15, exact; 10 and 11 at t=0.5 rounds 10.5 to 11.
	dst := make([]byte, 1)
	Lerp(dst, []byte{10}, []byte{11}, 0.5)
	if dst[0] != 11 {
		t.Errorf("round(10.5) = %v, want 11", dst[0])
	}
}

func TestNormalizeFullRange(t *testing.T) {
	src := []float32{2.0, 4.0, 6.0}
	dst := make([]byte, 3)
	Normalize(dst, src)

	if dst[0] != 0 {
		t.Errorf("min maps to %v, want 0", dst[0])
	}
	if dst[2] != 255 {
		t.Errorf("max maps to %v, want 255", dst[2])
	}
	if dst[1] != 128 {
		t.Errorf("midpoint maps to %v, want 128", dst[1])
	}
}

func TestNormalizeFlatInput(t *testing.T) {
	src := []float32{3.5, 3.5, 3.5, 3.5}
	dst := make([]byte, 4)
	Normalize(dst, src)

	for i, v := range dst {
		if v != 128 {
			t.Errorf("dst[%d] = %v, want 128", i, v)
		}
	}
}
