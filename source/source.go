package source

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrSourceClosed is returned by operations on a closed source.
var ErrSourceClosed = errors.New("source: closed")

// Kind identifies the type of media source.
type Kind int

const (
	KindUnknown Kind = iota
	KindVideo
	KindImage
	KindCamera
	KindPattern
)

func (k Kind) String() string {
	switch k {
	case KindVideo:
		return "Video"
	case KindImage:
		return "Image"
	case KindCamera:
		return "Camera"
	case KindPattern:
		return "Pattern"
	default:
		return "Unknown"
	}
}

// Frame is one presented RGBA frame. Pix is tightly packed, 4*W*H
// bytes, row-major. The slice is borrowed: it is valid until the
// frame callback returns or the next ReadFrame call on the same
// source, whichever applies.
type Frame struct {
	Pix   []byte
	W, H  int
	Index uint64  // frame number on the media timeline
	Time  float64 // seconds of media time
}

// Source produces frames for a renderer.
//
// Live sources push frames through the callback set with
// SetFrameCallback and also serve them through ReadFrame when no
// callback is set. Static sources fire the callback once per
// registration and answer every ReadFrame with the same frame.
type Source interface {
	Kind() Kind
	Size() (w, h int)
	CurrentTime() float64
	Live() bool
	SetFrameCallback(func(Frame))
	ReadFrame(context.Context) (Frame, error)
	Close() error
}

// Player is implemented by sources with a seekable timeline.
type Player interface {
	Play() error
	Pause()
	Seek(t float64) error
	SetLoop(bool)
}

// Mirrored is implemented by sources whose frames should be flipped
// horizontally at display time (front-facing cameras).
type Mirrored interface {
	Mirrored() bool
}

// Factory creates a source from a kind-specific config value.
type Factory func(cfg any) (Source, error)

var (
	registryMu sync.RWMutex
	factories  = make(map[Kind]Factory)
)

// Register registers a factory for a source kind. Called from init()
// in the source implementation files; a later registration replaces
// an earlier one.
func Register(kind Kind, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	factories[kind] = factory
}

// New creates a source of the given kind. The config type is specific
// to the kind: *ImageConfig, *VideoConfig, *CameraConfig or
// *PatternConfig.
func New(kind Kind, cfg any) (Source, error) {
	registryMu.RLock()
	factory, ok := factories[kind]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("source: kind not available: %v", kind)
	}
	return factory(cfg)
}

// IsAvailable checks whether a factory is registered for the kind.
func IsAvailable(kind Kind) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := factories[kind]
	return ok
}

// Available returns the registered kinds in ascending order.
func Available() []Kind {
	registryMu.RLock()
	defer registryMu.RUnlock()

	kinds := make([]Kind, 0, len(factories))
	for k := range factories {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
