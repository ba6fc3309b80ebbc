package source

import (
	"context"
	"fmt"
	"image"
	"io"
	"os"
	"sync"

	"golang.org/x/image/draw"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// ImageConfig configures a still-image source.
type ImageConfig struct {
	Path   string
	Reader io.Reader // used when Path is empty
	MaxDim int       // optional bound on the longer side, 0 keeps the original
}

// Image is a static source: one decoded frame, presented once.
type Image struct {
	pix  []byte
	w, h int

	mu     sync.Mutex
	closed bool
}

// NewImage decodes the configured image into a single RGBA frame.
func NewImage(cfg ImageConfig) (*Image, error) {
	r := cfg.Reader
	if cfg.Path != "" {
		f, err := os.Open(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("source: open image: %w", err)
		}
		defer f.Close()
		r = f
	}
	if r == nil {
		return nil, fmt.Errorf("source: image config needs a path or reader")
	}

	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("source: decode image: %w", err)
	}
	rgba := toRGBA(img)
	if w, h := rgba.Rect.Dx(), rgba.Rect.Dy(); cfg.MaxDim > 0 && max(w, h) > cfg.MaxDim {
		scale := float64(cfg.MaxDim) / float64(max(w, h))
		rgba = scaleRGBA(rgba, int(float64(w)*scale+0.5), int(float64(h)*scale+0.5))
	}

	return &Image{
		pix: rgba.Pix,
		w:   rgba.Rect.Dx(),
		h:   rgba.Rect.Dy(),
	}, nil
}

func (s *Image) Kind() Kind           { return KindImage }
func (s *Image) Size() (int, int)     { return s.w, s.h }
func (s *Image) CurrentTime() float64 { return 0 }
func (s *Image) Live() bool           { return false }

// SetFrameCallback fires the frame exactly once per registration.
func (s *Image) SetFrameCallback(cb func(Frame)) {
	if cb == nil {
		return
	}
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if !closed {
		cb(s.frame())
	}
}

// ReadFrame returns the decoded frame. It never blocks.
func (s *Image) ReadFrame(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Frame{}, ErrSourceClosed
	}
	return s.frame(), nil
}

func (s *Image) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *Image) frame() Frame {
	return Frame{Pix: s.pix, W: s.w, H: s.h}
}

// toRGBA returns img as a tightly packed RGBA image, copying only
// when the layout requires it.
func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok &&
		rgba.Rect.Min == (image.Point{}) && rgba.Stride == 4*rgba.Rect.Dx() {
		return rgba
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return rgba
}

func scaleRGBA(src *image.RGBA, w, h int) *image.RGBA {
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

func init() {
	Register(KindImage, func(cfg any) (Source, error) {
		c, ok := cfg.(*ImageConfig)
		if !ok {
			return nil, fmt.Errorf("source: image source needs *ImageConfig, got %T", cfg)
		}
		return NewImage(*c)
	})
}
