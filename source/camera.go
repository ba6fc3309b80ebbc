//go:build cgo

package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
)

// ErrCGORequired is returned when camera capture is requested from a
// binary built without cgo.
var ErrCGORequired = errors.New("source: camera capture requires cgo")

// CameraConfig configures live camera capture.
type CameraConfig struct {
	Device string  // e.g. /dev/video0; empty picks the default device
	Width  int     // default 1280
	Height int     // default 720
	FPS    float64 // default 30
	Mirror bool    // flip horizontally at display time
}

// CameraStats counts capture outcomes.
type CameraStats struct {
	Frames  uint64
	Dropped uint64
}

// Camera captures frames from a local device through a GStreamer
// pipeline ending in an appsink that keeps only the latest buffer, so
// a slow consumer never builds a backlog.
type Camera struct {
	pipeline *gst.Pipeline
	w, h     int
	mirror   bool
	started  time.Time

	mu     sync.Mutex
	cb     func(Frame)
	closed bool

	frames  atomic.Uint64
	dropped atomic.Uint64

	frameCh chan Frame
	done    chan struct{}
}

// NewCamera builds and starts the capture pipeline.
func NewCamera(cfg CameraConfig) (*Camera, error) {
	if cfg.Width <= 0 {
		cfg.Width = 1280
	}
	if cfg.Height <= 0 {
		cfg.Height = 720
	}
	if cfg.FPS <= 0 {
		cfg.FPS = 30
	}

	gst.Init(nil)

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return nil, fmt.Errorf("source: create pipeline: %w", err)
	}

	var src *gst.Element
	if cfg.Device != "" {
		src, err = gst.NewElement("v4l2src")
		if err == nil {
			src.SetProperty("device", cfg.Device)
		}
	} else {
		src, err = gst.NewElement("autovideosrc")
	}
	if err != nil {
		return nil, fmt.Errorf("source: create capture element: %w", err)
	}

	convert, err := gst.NewElement("videoconvert")
	if err != nil {
		return nil, fmt.Errorf("source: create videoconvert: %w", err)
	}
	scale, err := gst.NewElement("videoscale")
	if err != nil {
		return nil, fmt.Errorf("source: create videoscale: %w", err)
	}
	rate, err := gst.NewElement("videorate")
	if err != nil {
		return nil, fmt.Errorf("source: create videorate: %w", err)
	}
	rate.SetProperty("drop-only", true)
	rate.SetProperty("skip-to-first", true)

	capsfilter, err := gst.NewElement("capsfilter")
	if err != nil {
		return nil, fmt.Errorf("source: create capsfilter: %w", err)
	}
	capsfilter.SetProperty("caps", gst.NewCapsFromString(cameraCaps(cfg.Width, cfg.Height, cfg.FPS)))

	sink, err := app.NewAppSink()
	if err != nil {
		return nil, fmt.Errorf("source: create appsink: %w", err)
	}
	sink.SetProperty("sync", false)
	sink.SetProperty("max-buffers", 1) // keep only the latest frame
	sink.SetProperty("drop", true)
	sink.SetProperty("qos", true)

	if err := pipeline.AddMany(src, convert, scale, rate, capsfilter, sink.Element); err != nil {
		return nil, fmt.Errorf("source: assemble pipeline: %w", err)
	}
	if err := gst.ElementLinkMany(src, convert, scale, rate, capsfilter, sink.Element); err != nil {
		return nil, fmt.Errorf("source: link pipeline: %w", err)
	}

	c := &Camera{
		pipeline: pipeline,
		w:        cfg.Width,
		h:        cfg.Height,
		mirror:   cfg.Mirror,
		started:  time.Now(),
		frameCh:  make(chan Frame, 1),
		done:     make(chan struct{}),
	}
	sink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: c.onSample,
	})

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		pipeline.SetState(gst.StateNull)
		return nil, fmt.Errorf("source: start pipeline: %w", err)
	}

	slog.Info("source: camera started",
		"device", cfg.Device,
		"resolution", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
		"fps", cfg.FPS,
		"mirror", cfg.Mirror,
	)
	return c, nil
}

func (c *Camera) Kind() Kind       { return KindCamera }
func (c *Camera) Size() (int, int) { return c.w, c.h }
func (c *Camera) Live() bool       { return true }
func (c *Camera) Mirrored() bool   { return c.mirror }

func (c *Camera) CurrentTime() float64 {
	return time.Since(c.started).Seconds()
}

func (c *Camera) SetFrameCallback(cb func(Frame)) {
	c.mu.Lock()
	c.cb = cb
	c.mu.Unlock()
}

// ReadFrame blocks until the next captured frame.
func (c *Camera) ReadFrame(ctx context.Context) (Frame, error) {
	select {
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	case <-c.done:
		return Frame{}, ErrSourceClosed
	case f := <-c.frameCh:
		return f, nil
	}
}

// Stats returns a snapshot of the capture counters.
func (c *Camera) Stats() CameraStats {
	return CameraStats{Frames: c.frames.Load(), Dropped: c.dropped.Load()}
}

func (c *Camera) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	err := c.pipeline.SetState(gst.StateNull)
	close(c.done)
	if err != nil {
		return fmt.Errorf("source: stop pipeline: %w", err)
	}
	return nil
}

// onSample runs on the GStreamer streaming thread. The buffer is
// copied before delivery because GStreamer reuses it.
func (c *Camera) onSample(sink *app.Sink) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		slog.Warn("source: camera sample pull failed, skipping frame")
		return gst.FlowOK
	}
	buffer := sample.GetBuffer()
	if buffer == nil {
		slog.Warn("source: camera sample has no buffer, skipping frame")
		return gst.FlowOK
	}

	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	if len(data) == 0 {
		buffer.Unmap()
		return gst.FlowOK
	}
	pix := make([]byte, len(data))
	copy(pix, data)
	buffer.Unmap()

	frame := Frame{
		Pix:   pix,
		W:     c.w,
		H:     c.h,
		Index: c.frames.Add(1) - 1,
		Time:  time.Since(c.started).Seconds(),
	}

	c.mu.Lock()
	cb := c.cb
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return gst.FlowOK
	}
	if cb != nil {
		cb(frame)
		return gst.FlowOK
	}
	select {
	case c.frameCh <- frame:
	default:
		c.dropped.Add(1)
	}
	return gst.FlowOK
}

// cameraCaps locks the appsink format. Fractional rates map to 1/N
// so sub-hertz capture still negotiates.
func cameraCaps(width, height int, fps float64) string {
	num, den := 1, 1
	if fps < 1.0 {
		den = int(1.0 / fps)
	} else {
		num = int(fps)
	}
	return fmt.Sprintf(
		"video/x-raw,format=RGBA,width=%d,height=%d,framerate=%d/%d",
		width, height, num, den,
	)
}

func init() {
	Register(KindCamera, func(cfg any) (Source, error) {
		c, ok := cfg.(*CameraConfig)
		if !ok {
			return nil, fmt.Errorf("source: camera source needs *CameraConfig, got %T", cfg)
		}
		return NewCamera(*c)
	})
}
