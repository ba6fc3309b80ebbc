package source

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFrames(t *testing.T, colors []color.RGBA) []string {
	t.Helper()
	dir := t.TempDir()
	paths := make([]string, len(colors))
	for i, c := range colors {
		img := image.NewRGBA(image.Rect(0, 0, 2, 2))
		for p := 0; p < 4; p++ {
			img.SetRGBA(p%2, p/2, c)
		}
		paths[i] = filepath.Join(dir, fmt.Sprintf("frame%03d.png", i))
		if err := os.WriteFile(paths[i], encodePNG(t, img), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return paths
}

// drainQuiet reads frames until the source stays silent for a while.
func drainQuiet(t *testing.T, s Source) {
	t.Helper()
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
		_, err := s.ReadFrame(ctx)
		cancel()
		if errors.Is(err, context.DeadlineExceeded) {
			return
		}
		if err != nil {
			t.Fatalf("drain: %v", err)
		}
	}
}

func TestVideoPlaysFrames(t *testing.T) {
	paths := writeFrames(t, []color.RGBA{
		{255, 0, 0, 255},
		{0, 0, 255, 255},
	})
	v, err := NewVideo(VideoConfig{Paths: paths, FPS: 50, Loop: true})
	if err != nil {
		t.Fatal(err)
	}
	defer v.Close()

	if v.Kind() != KindVideo || !v.Live() {
		t.Fatalf("video state: kind=%v live=%v", v.Kind(), v.Live())
	}
	if w, h := v.Size(); w != 2 || h != 2 {
		t.Fatalf("Size = %dx%d, want 2x2", w, h)
	}
	if d := v.Duration(); d != 2.0/50 {
		t.Fatalf("Duration = %v, want 0.04", d)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var sawRed, sawBlue bool
	for !sawRed || !sawBlue {
		f, err := v.ReadFrame(ctx)
		if err != nil {
			t.Fatalf("saw red=%v blue=%v before: %v", sawRed, sawBlue, err)
		}
		if f.Time != float64(f.Index)/50 {
			t.Fatalf("frame %d has time %v, want %v", f.Index, f.Time, float64(f.Index)/50)
		}
		switch f.Index {
		case 0:
			if f.Pix[0] != 255 {
				t.Fatalf("frame 0 pixel = %v, want red", f.Pix[0:4])
			}
			sawRed = true
		case 1:
			if f.Pix[2] != 255 {
				t.Fatalf("frame 1 pixel = %v, want blue", f.Pix[0:4])
			}
			sawBlue = true
		default:
			t.Fatalf("frame index %d out of range", f.Index)
		}
	}
}

func TestVideoPauseAndResume(t *testing.T) {
	paths := writeFrames(t, []color.RGBA{{10, 0, 0, 255}, {20, 0, 0, 255}})
	v, err := NewVideo(VideoConfig{Paths: paths, FPS: 100, Loop: true})
	if err != nil {
		t.Fatal(err)
	}
	defer v.Close()

	v.Pause()
	drainQuiet(t, v)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	_, rerr := v.ReadFrame(ctx)
	cancel()
	if !errors.Is(rerr, context.DeadlineExceeded) {
		t.Fatalf("paused video produced a frame: %v", rerr)
	}

	if err := v.Play(); err != nil {
		t.Fatal(err)
	}
	ctx, cancel = context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := v.ReadFrame(ctx); err != nil {
		t.Fatalf("no frame after resume: %v", err)
	}
}

func TestVideoSeek(t *testing.T) {
	colors := make([]color.RGBA, 5)
	for i := range colors {
		colors[i] = color.RGBA{uint8(i * 50), 0, 0, 255}
	}
	v, err := NewVideo(VideoConfig{Paths: writeFrames(t, colors), FPS: 20, Loop: true})
	if err != nil {
		t.Fatal(err)
	}
	defer v.Close()

	v.Pause()
	drainQuiet(t, v)
	if err := v.Seek(0.15); err != nil {
		t.Fatal(err)
	}
	if err := v.Play(); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	f, err := v.ReadFrame(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if f.Index != 3 || f.Pix[0] != 150 {
		t.Fatalf("frame after seek = index %d pixel %v, want index 3 pixel 150", f.Index, f.Pix[0])
	}
}

func TestVideoEndsWithoutLoop(t *testing.T) {
	paths := writeFrames(t, []color.RGBA{{10, 0, 0, 255}, {20, 0, 0, 255}})
	v, err := NewVideo(VideoConfig{Paths: paths, FPS: 100})
	if err != nil {
		t.Fatal(err)
	}
	defer v.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for _, want := range []uint64{0, 1} {
		f, err := v.ReadFrame(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if f.Index != want {
			t.Fatalf("frame index = %d, want %d", f.Index, want)
		}
	}
	drainQuiet(t, v)
	if got := v.CurrentTime(); got != 1.0/100 {
		t.Fatalf("CurrentTime after end = %v, want 0.01", got)
	}

	// Play restarts a finished clip from the beginning.
	if err := v.Play(); err != nil {
		t.Fatal(err)
	}
	f, err := v.ReadFrame(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if f.Index != 0 {
		t.Fatalf("restarted clip began at frame %d, want 0", f.Index)
	}
}

func TestVideoCallbackDelivery(t *testing.T) {
	paths := writeFrames(t, []color.RGBA{{10, 0, 0, 255}, {20, 0, 0, 255}})
	v, err := NewVideo(VideoConfig{Paths: paths, FPS: 100, Loop: true})
	if err != nil {
		t.Fatal(err)
	}
	defer v.Close()

	frames := make(chan Frame, 4)
	v.SetFrameCallback(func(f Frame) {
		select {
		case frames <- f:
		default:
		}
	})

	for i := 0; i < 2; i++ {
		select {
		case f := <-frames:
			if f.Index > 1 {
				t.Fatalf("callback frame index %d out of range", f.Index)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("callback never delivered a frame")
		}
	}
}

func TestVideoClose(t *testing.T) {
	paths := writeFrames(t, []color.RGBA{{10, 0, 0, 255}})
	v, err := NewVideo(VideoConfig{Paths: paths, FPS: 100})
	if err != nil {
		t.Fatal(err)
	}
	if err := v.Close(); err != nil {
		t.Fatal(err)
	}
	if err := v.Close(); err != nil {
		t.Fatalf("second close = %v", err)
	}
	if _, err := v.ReadFrame(context.Background()); !errors.Is(err, ErrSourceClosed) {
		t.Fatalf("ReadFrame after close = %v, want ErrSourceClosed", err)
	}
	if err := v.Play(); !errors.Is(err, ErrSourceClosed) {
		t.Fatalf("Play after close = %v, want ErrSourceClosed", err)
	}
	if err := v.Seek(0); !errors.Is(err, ErrSourceClosed) {
		t.Fatalf("Seek after close = %v, want ErrSourceClosed", err)
	}
}

func TestVideoConfigErrors(t *testing.T) {
	if _, err := NewVideo(VideoConfig{}); err == nil {
		t.Error("empty frame list accepted")
	}
	if _, err := NewVideo(VideoConfig{Paths: []string{filepath.Join(t.TempDir(), "missing.png")}}); err == nil {
		t.Error("missing frame file accepted")
	}

	small := writeFrames(t, []color.RGBA{{1, 2, 3, 255}})
	big := filepath.Join(t.TempDir(), "big.png")
	img := image.NewRGBA(image.Rect(0, 0, 3, 2))
	if err := os.WriteFile(big, encodePNG(t, img), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewVideo(VideoConfig{Paths: []string{small[0], big}}); err == nil {
		t.Error("mismatched frame sizes accepted")
	}
}
