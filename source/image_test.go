package source

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func writePNG(t *testing.T, img image.Image) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "frame.png")
	if err := os.WriteFile(path, encodePNG(t, img), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestImageSource(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 3, 2))
	img.SetRGBA(0, 0, color.RGBA{255, 0, 0, 255})
	img.SetRGBA(1, 0, color.RGBA{0, 255, 0, 255})
	img.SetRGBA(2, 1, color.RGBA{0, 0, 255, 255})

	s, err := NewImage(ImageConfig{Path: writePNG(t, img)})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if s.Kind() != KindImage || s.Live() || s.CurrentTime() != 0 {
		t.Fatalf("static source state: kind=%v live=%v t=%v", s.Kind(), s.Live(), s.CurrentTime())
	}
	if w, h := s.Size(); w != 3 || h != 2 {
		t.Fatalf("Size = %dx%d, want 3x2", w, h)
	}

	f, err := s.ReadFrame(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(f.Pix) != 3*2*4 {
		t.Fatalf("len(Pix) = %d, want 24", len(f.Pix))
	}
	if f.Pix[0] != 255 || f.Pix[1] != 0 {
		t.Errorf("pixel (0,0) = %v, want red", f.Pix[0:4])
	}
	if f.Pix[4] != 0 || f.Pix[5] != 255 {
		t.Errorf("pixel (1,0) = %v, want green", f.Pix[4:8])
	}
	if off := (1*3 + 2) * 4; f.Pix[off+2] != 255 {
		t.Errorf("pixel (2,1) = %v, want blue", f.Pix[off:off+4])
	}
}

func TestImageSourceFiresCallbackOnce(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	s, err := NewImage(ImageConfig{Reader: bytes.NewReader(encodePNG(t, img))})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	fired := 0
	s.SetFrameCallback(func(f Frame) {
		fired++
		if f.W != 2 || f.H != 2 {
			t.Errorf("callback frame %dx%d, want 2x2", f.W, f.H)
		}
	})
	if fired != 1 {
		t.Fatalf("callback fired %d times on registration, want 1", fired)
	}
}

func TestImageSourceScalesDown(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 8, 4))
	for i := range img.Pix {
		img.Pix[i] = 128
	}
	s, err := NewImage(ImageConfig{
		Reader: bytes.NewReader(encodePNG(t, img)),
		MaxDim: 4,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if w, h := s.Size(); w != 4 || h != 2 {
		t.Fatalf("Size = %dx%d, want 4x2", w, h)
	}
	f, _ := s.ReadFrame(context.Background())
	for i, v := range f.Pix {
		if v != 128 {
			t.Fatalf("Pix[%d] = %v after a constant-color downscale, want 128", i, v)
		}
	}
}

func TestImageSourceClose(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	s, err := NewImage(ImageConfig{Reader: bytes.NewReader(encodePNG(t, img))})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ReadFrame(context.Background()); !errors.Is(err, ErrSourceClosed) {
		t.Fatalf("ReadFrame after close = %v, want ErrSourceClosed", err)
	}
}

func TestImageSourceErrors(t *testing.T) {
	if _, err := NewImage(ImageConfig{}); err == nil {
		t.Error("empty config accepted")
	}
	if _, err := NewImage(ImageConfig{Path: filepath.Join(t.TempDir(), "missing.png")}); err == nil {
		t.Error("missing file accepted")
	}
	if _, err := NewImage(ImageConfig{Reader: strings.NewReader("not an image")}); err == nil {
		t.Error("garbage data accepted")
	}
}
