package depth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

var (
	ErrBadMetadata = errors.New("depth: bad metadata")
	ErrPayloadSize = errors.New("depth: payload size mismatch")
)

// Metadata describes a precomputed depth payload: FrameCount maps of
// Width x Height single-channel bytes sampled at FPS. SourceFPS
// records the frame rate of the media the maps were baked from and
// defaults to FPS when absent.
type Metadata struct {
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	FrameCount int     `json:"frameCount"`
	FPS        float64 `json:"fps"`
	SourceFPS  float64 `json:"sourceFps,omitempty"`
}

// ParseMetadata decodes and validates JSON metadata.
func ParseMetadata(data []byte) (Metadata, error) {
	var md Metadata
	if err := json.Unmarshal(data, &md); err != nil {
		return Metadata{}, fmt.Errorf("%w: %v", ErrBadMetadata, err)
	}
	if err := md.Validate(); err != nil {
		return Metadata{}, err
	}
	if md.SourceFPS == 0 {
		md.SourceFPS = md.FPS
	}
	return md, nil
}

// Validate checks the metadata fields for plausibility.
func (md Metadata) Validate() error {
	switch {
	case md.Width <= 0 || md.Height <= 0:
		return fmt.Errorf("%w: dimensions %dx%d", ErrBadMetadata, md.Width, md.Height)
	case md.FrameCount <= 0:
		return fmt.Errorf("%w: frame count %d", ErrBadMetadata, md.FrameCount)
	case md.FPS <= 0:
		return fmt.Errorf("%w: fps %v", ErrBadMetadata, md.FPS)
	case md.SourceFPS < 0:
		return fmt.Errorf("%w: source fps %v", ErrBadMetadata, md.SourceFPS)
	}
	return nil
}

// FrameSet is an immutable ordered sequence of depth maps. Frames are
// stored frame-major in a single payload buffer; Frame returns views
// into it that must not be modified.
type FrameSet struct {
	Width     int
	Height    int
	FPS       float64
	SourceFPS float64

	payload []byte
}

// NewFrameSet wraps a raw payload of FrameCount tightly packed
// row-major frames. The payload length must match the metadata
// exactly.
func NewFrameSet(md Metadata, payload []byte) (*FrameSet, error) {
	if err := md.Validate(); err != nil {
		return nil, err
	}
	want := md.Width * md.Height * md.FrameCount
	if len(payload) != want {
		return nil, fmt.Errorf("%w: have %d bytes, want %d", ErrPayloadSize, len(payload), want)
	}
	srcFPS := md.SourceFPS
	if srcFPS == 0 {
		srcFPS = md.FPS
	}
	return &FrameSet{
		Width:     md.Width,
		Height:    md.Height,
		FPS:       md.FPS,
		SourceFPS: srcFPS,
		payload:   payload,
	}, nil
}

// LoadFiles reads metadata JSON and the raw payload from disk.
func LoadFiles(metaPath, payloadPath string) (*FrameSet, error) {
	meta, err := os.ReadFile(metaPath)
	if err != nil {
		return nil, fmt.Errorf("depth: read metadata: %w", err)
	}
	md, err := ParseMetadata(meta)
	if err != nil {
		return nil, err
	}
	payload, err := os.ReadFile(payloadPath)
	if err != nil {
		return nil, fmt.Errorf("depth: read payload: %w", err)
	}
	return NewFrameSet(md, payload)
}

// FrameCount returns the number of depth maps in the set.
func (fs *FrameSet) FrameCount() int {
	return len(fs.payload) / (fs.Width * fs.Height)
}

// Frame returns the i'th depth map, with i clamped to the valid
// range.
func (fs *FrameSet) Frame(i int) []byte {
	n := fs.FrameCount()
	if i < 0 {
		i = 0
	} else if i >= n {
		i = n - 1
	}
	size := fs.Width * fs.Height
	return fs.payload[i*size : (i+1)*size : (i+1)*size]
}

// Duration returns the time span covered by the set in seconds.
func (fs *FrameSet) Duration() float64 {
	return float64(fs.FrameCount()) / fs.FPS
}
