package source

import "testing"

func TestKindString(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{KindVideo, "Video"},
		{KindImage, "Image"},
		{KindCamera, "Camera"},
		{KindPattern, "Pattern"},
		{KindUnknown, "Unknown"},
		{Kind(99), "Unknown"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("Kind(%d).String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}

func TestRegistryKinds(t *testing.T) {
	for _, kind := range []Kind{KindVideo, KindImage, KindCamera, KindPattern} {
		if !IsAvailable(kind) {
			t.Errorf("IsAvailable(%v) = false", kind)
		}
	}
	if IsAvailable(KindUnknown) {
		t.Error("IsAvailable(KindUnknown) = true")
	}

	kinds := Available()
	if len(kinds) < 4 {
		t.Fatalf("Available() = %v, want at least 4 kinds", kinds)
	}
	for i := 1; i < len(kinds); i++ {
		if kinds[i-1] >= kinds[i] {
			t.Fatalf("Available() = %v, want ascending order", kinds)
		}
	}
}

func TestNewUnknownKind(t *testing.T) {
	if _, err := New(Kind(99), nil); err == nil {
		t.Fatal("New accepted an unregistered kind")
	}
}

func TestNewRejectsWrongConfig(t *testing.T) {
	if _, err := New(KindImage, 42); err == nil {
		t.Fatal("image factory accepted an int config")
	}
	if _, err := New(KindVideo, "clip.mp4"); err == nil {
		t.Fatal("video factory accepted a string config")
	}
}

func TestNewPatternDefaults(t *testing.T) {
	s, err := New(KindPattern, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if s.Kind() != KindPattern {
		t.Errorf("Kind = %v, want Pattern", s.Kind())
	}
	if w, h := s.Size(); w != 640 || h != 360 {
		t.Errorf("Size = %dx%d, want 640x360", w, h)
	}
}
