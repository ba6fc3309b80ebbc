package filter

import (
	"testing"

	"github.com/gogpu/depthfx/internal/plane"
)

func TestBilateralZeroRadiusCopies(t *testing.T) {
	src := plane.New(4, 4)
	for i := range src.Pix {
		src.Pix[i] = byte(i * 7)
	}
	dst := plane.New(4, 4)

	NewBilateral(0).Apply(dst, src)

	for i := range src.Pix {
		if dst.Pix[i] != src.Pix[i] {
			t.Fatalf("Pix[%d] = %v, want %v", i, dst.Pix[i], src.Pix[i])
		}
	}
}

func TestBilateralConstantStaysConstant(t *testing.T) {
	src := plane.New(8, 8)
	src.Fill(200)
	dst := plane.New(8, 8)

	NewBilateral(2).Apply(dst, src)

	for i, v := range dst.Pix {
		if v != 200 {
			t.Errorf("Pix[%d] = %v, want 200", i, v)
		}
	}
}

func TestBilateralSmoothsNoise(t *testing.T) {
	// A noisy plateau: a lone spike should be pulled toward its
	// neighborhood.
	src := plane.New(9, 9)
	src.Fill(100)
	src.Pix[4*9+4] = 130

	dst := plane.New(9, 9)
	NewBilateral(3).Apply(dst, src)

	center := dst.Pix[4*9+4]
	if center >= 130 || center < 100 {
		t.Errorf("spike = %v, want within (100, 130)", center)
	}
}

func TestBilateralPreservesStrongEdge(t *testing.T) {
	// Left half 20, right half 230. The range Gaussian should keep
	// the two sides from bleeding into each other.
	src := plane.New(16, 8)
	for y := 0; y < 8; y++ {
		for x := 0; x < 16; x++ {
			if x < 8 {
				src.Pix[y*16+x] = 20
			} else {
				src.Pix[y*16+x] = 230
			}
		}
	}

	dst := plane.New(16, 8)
	NewBilateral(3).Apply(dst, src)

	// Sample well inside each side and directly at the edge.
	if v := dst.Pix[4*16+2]; v > 25 {
		t.Errorf("far side = %v, want near 20", v)
	}
	if v := dst.Pix[4*16+13]; v < 225 {
		t.Errorf("near side = %v, want near 230", v)
	}
	if v := dst.Pix[4*16+7]; v > 40 {
		t.Errorf("edge left = %v, want to stay near 20", v)
	}
	if v := dst.Pix[4*16+8]; v < 210 {
		t.Errorf("edge right = %v, want to stay near 230", v)
	}
}

func TestBilateralMismatchedPlanesIgnored(t *testing.T) {
	src := plane.New(4, 4)
	dst := plane.New(5, 4)
	dst.Fill(9)

	NewBilateral(1).Apply(dst, src)

	for i, v := range dst.Pix {
		if v != 9 {
			t.Fatalf("Pix[%d] = %v, want untouched 9", i, v)
		}
	}
}
