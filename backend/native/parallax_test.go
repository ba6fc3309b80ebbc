// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import (
	"bytes"
	"testing"

	"github.com/gogpu/depthfx/backend"
)

func TestParallaxZeroInputCopiesSource(t *testing.T) {
	w, h := 8, 6
	b := initBackend(t)
	p := initPipeline(t, b.NewParallax(backend.ParallaxSpec{
		Viewport: backend.FullViewport(w, h),
		Strength: 0.3,
		AxisX:    1,
		AxisY:    1,
	}))

	// Varied depth, zero pointer input: displacement collapses to
	// zero everywhere and the frame copies through exactly.
	depth := make([]byte, w*h)
	for i := range depth {
		depth[i] = byte(i * 255 / (w*h - 1))
	}
	if err := p.UploadDepth(depth, w, h); err != nil {
		t.Fatalf("UploadDepth() error = %v", err)
	}

	src := rampFrame(w, h)
	out := renderFrame(t, p, backend.FrameInput{Pix: src, W: w, H: h})
	if !bytes.Equal(out, src) {
		t.Error("zero input should copy the source exactly")
	}
}

func TestParallaxWholePixelShift(t *testing.T) {
	w, h := 8, 4
	b := initBackend(t)
	p := initPipeline(t, b.NewParallax(backend.ParallaxSpec{
		Viewport: backend.FullViewport(w, h),
		Strength: 0.5,
		AxisX:    1,
		AxisY:    1,
	}))

	// Depth 255 everywhere: offset = (1-0.5)*0.5*1 = 0.25 of the
	// frame width, exactly two columns at width 8.
	if err := p.UploadDepth(uniformDepth(w, h, 255), w, h); err != nil {
		t.Fatalf("UploadDepth() error = %v", err)
	}

	src := rampFrame(w, h)
	out := renderFrame(t, p, backend.FrameInput{Pix: src, W: w, H: h, InputX: 1})

	for x := 0; x < w; x++ {
		sx := x + 2
		if sx > w-1 {
			sx = w - 1
		}
		want := src[sx*4]
		got := out[x*4]
		if got != want {
			t.Errorf("column %d: red = %d, want %d (source column %d)", x, got, want, sx)
		}
	}
}

func TestParallaxPOMConstantDepthMatchesOffset(t *testing.T) {
	w, h := 16, 8
	q := backend.ParamsFor(backend.TierHigh)
	b := initBackend(t)

	flat := initPipeline(t, b.NewParallax(backend.ParallaxSpec{
		Viewport: backend.FullViewport(w, h),
		Quality:  &q,
		Strength: 0.2,
		AxisX:    1,
		AxisY:    1,
	}))
	pom := initPipeline(t, b.NewParallax(backend.ParallaxSpec{
		Viewport: backend.FullViewport(w, h),
		Quality:  &q,
		Strength: 0.2,
		AxisX:    1,
		AxisY:    1,
		POM:      true,
	}))

	depth := uniformDepth(w, h, 200)
	if err := flat.UploadDepth(depth, w, h); err != nil {
		t.Fatalf("UploadDepth() error = %v", err)
	}
	if err := pom.UploadDepth(depth, w, h); err != nil {
		t.Fatalf("UploadDepth() error = %v", err)
	}

	src := rampFrame(w, h)
	in := backend.FrameInput{Pix: src, W: w, H: h, InputX: 0.7, InputY: -0.4}
	a := renderFrame(t, flat, in)
	c := renderFrame(t, pom, in)

	// On constant depth the march refines to the plain offset; only
	// rounding at the byte boundary may differ.
	for i := range a {
		d := int(a[i]) - int(c[i])
		if d < -1 || d > 1 {
			t.Fatalf("byte %d: flat %d vs pom %d, want within 1", i, a[i], c[i])
		}
	}
}

func TestParallaxAxisSuppression(t *testing.T) {
	w, h := 8, 8
	b := initBackend(t)
	p := initPipeline(t, b.NewParallax(backend.ParallaxSpec{
		Viewport: backend.FullViewport(w, h),
		Strength: 0.5,
		AxisX:    1,
		AxisY:    0,
	}))

	if err := p.UploadDepth(uniformDepth(w, h, 255), w, h); err != nil {
		t.Fatalf("UploadDepth() error = %v", err)
	}

	// Pure vertical input with AxisY 0 displaces nothing.
	src := rampFrame(w, h)
	out := renderFrame(t, p, backend.FrameInput{Pix: src, W: w, H: h, InputY: 1})
	if !bytes.Equal(out, src) {
		t.Error("suppressed axis should leave the frame unchanged")
	}
}

func TestParallaxEdgeClamp(t *testing.T) {
	w, h := 8, 8
	b := initBackend(t)
	p := initPipeline(t, b.NewParallax(backend.ParallaxSpec{
		Viewport: backend.FullViewport(w, h),
		Strength: 5,
		AxisX:    1,
		AxisY:    1,
	}))

	if err := p.UploadDepth(uniformDepth(w, h, 255), w, h); err != nil {
		t.Fatalf("UploadDepth() error = %v", err)
	}

	// An absurd strength drives every sample past the frame edge;
	// clamping keeps the output inside it.
	src := rampFrame(w, h)
	out := renderFrame(t, p, backend.FrameInput{Pix: src, W: w, H: h, InputX: 1, InputY: 1})
	for i := 3; i < len(out); i += 4 {
		if out[i] != 255 {
			t.Fatalf("alpha at %d = %d, want 255", i, out[i])
		}
	}
}
