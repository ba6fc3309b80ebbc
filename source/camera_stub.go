//go:build !cgo

package source

import (
	"context"
	"errors"
	"fmt"
)

// ErrCGORequired is returned when camera capture is requested from a
// binary built without cgo.
var ErrCGORequired = errors.New("source: camera capture requires cgo")

// CameraConfig configures live camera capture.
type CameraConfig struct {
	Device string
	Width  int
	Height int
	FPS    float64
	Mirror bool
}

// CameraStats counts capture outcomes.
type CameraStats struct {
	Frames  uint64
	Dropped uint64
}

// Camera is unavailable without cgo; NewCamera always fails.
type Camera struct{}

func NewCamera(CameraConfig) (*Camera, error) { return nil, ErrCGORequired }

func (c *Camera) Kind() Kind                               { return KindCamera }
func (c *Camera) Size() (int, int)                         { return 0, 0 }
func (c *Camera) CurrentTime() float64                     { return 0 }
func (c *Camera) Live() bool                               { return true }
func (c *Camera) Mirrored() bool                           { return false }
func (c *Camera) SetFrameCallback(func(Frame))             {}
func (c *Camera) ReadFrame(context.Context) (Frame, error) { return Frame{}, ErrCGORequired }
func (c *Camera) Stats() CameraStats                       { return CameraStats{} }
func (c *Camera) Close() error                             { return nil }

func init() {
	Register(KindCamera, func(cfg any) (Source, error) {
		if _, ok := cfg.(*CameraConfig); !ok {
			return nil, fmt.Errorf("source: camera source needs *CameraConfig, got %T", cfg)
		}
		return nil, ErrCGORequired
	})
}
