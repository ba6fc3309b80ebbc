package depth

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestParseMetadata(t *testing.T) {
	md, err := ParseMetadata([]byte(`{"width":64,"height":36,"frameCount":10,"fps":15}`))
	if err != nil {
		t.Fatalf("ParseMetadata: %v", err)
	}
	if md.Width != 64 || md.Height != 36 || md.FrameCount != 10 || md.FPS != 15 {
		t.Errorf("metadata = %+v", md)
	}
	if md.SourceFPS != 15 {
		t.Errorf("SourceFPS = %v, want defaulted to fps", md.SourceFPS)
	}
}

func TestParseMetadataErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"bad json", `{"width":`},
		{"zero width", `{"width":0,"height":36,"frameCount":10,"fps":15}`},
		{"zero frames", `{"width":64,"height":36,"frameCount":0,"fps":15}`},
		{"zero fps", `{"width":64,"height":36,"frameCount":10,"fps":0}`},
		{"negative source fps", `{"width":64,"height":36,"frameCount":10,"fps":15,"sourceFps":-1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseMetadata([]byte(tt.in)); !errors.Is(err, ErrBadMetadata) {
				t.Errorf("err = %v, want ErrBadMetadata", err)
			}
		})
	}
}

func TestNewFrameSetPayloadMismatch(t *testing.T) {
	md := Metadata{Width: 4, Height: 4, FrameCount: 2, FPS: 10}
	if _, err := NewFrameSet(md, make([]byte, 4*4)); !errors.Is(err, ErrPayloadSize) {
		t.Errorf("err = %v, want ErrPayloadSize", err)
	}
	if _, err := NewFrameSet(md, make([]byte, 4*4*2)); err != nil {
		t.Errorf("exact payload rejected: %v", err)
	}
}

func TestFrameSetFrameClamping(t *testing.T) {
	md := Metadata{Width: 2, Height: 2, FrameCount: 3, FPS: 10}
	payload := make([]byte, 12)
	for i := range payload {
		payload[i] = byte(i/4*10 + 5)
	}
	fs, err := NewFrameSet(md, payload)
	if err != nil {
		t.Fatalf("NewFrameSet: %v", err)
	}

	if got := fs.Frame(1)[0]; got != 15 {
		t.Errorf("Frame(1)[0] = %v, want 15", got)
	}
	if got := fs.Frame(-1)[0]; got != 5 {
		t.Errorf("Frame(-1)[0] = %v, want clamp to first", got)
	}
	if got := fs.Frame(99)[0]; got != 25 {
		t.Errorf("Frame(99)[0] = %v, want clamp to last", got)
	}
	if got := len(fs.Frame(0)); got != 4 {
		t.Errorf("frame length = %v, want 4", got)
	}
}

func TestFrameSetDuration(t *testing.T) {
	md := Metadata{Width: 1, Height: 1, FrameCount: 30, FPS: 15}
	fs, err := NewFrameSet(md, make([]byte, 30))
	if err != nil {
		t.Fatalf("NewFrameSet: %v", err)
	}
	if got := fs.Duration(); got != 2 {
		t.Errorf("Duration = %v, want 2", got)
	}
	if got := fs.FrameCount(); got != 30 {
		t.Errorf("FrameCount = %v, want 30", got)
	}
}

func TestLoadFiles(t *testing.T) {
	dir := t.TempDir()
	metaPath := filepath.Join(dir, "depth.json")
	dataPath := filepath.Join(dir, "depth.bin")

	meta := []byte(`{"width":2,"height":2,"frameCount":2,"fps":12,"sourceFps":24}`)
	payload := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	if err := os.WriteFile(metaPath, meta, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dataPath, payload, 0o644); err != nil {
		t.Fatal(err)
	}

	fs, err := LoadFiles(metaPath, dataPath)
	if err != nil {
		t.Fatalf("LoadFiles: %v", err)
	}
	if fs.Width != 2 || fs.Height != 2 || fs.FPS != 12 || fs.SourceFPS != 24 {
		t.Errorf("frame set = %+v", fs)
	}
	if got := fs.Frame(1)[3]; got != 8 {
		t.Errorf("Frame(1)[3] = %v, want 8", got)
	}

	if _, err := LoadFiles(metaPath, filepath.Join(dir, "missing.bin")); err == nil {
		t.Error("missing payload: expected error")
	}
}
