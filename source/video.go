package source

import (
	"context"
	"fmt"
	"image"
	"math"
	"os"
	"sync"
	"time"
)

// VideoConfig configures a frame-sequence video source.
type VideoConfig struct {
	Paths []string // ordered frame image files, all the same size
	FPS   float64  // playback rate, default 30
	Loop  bool
}

// Video plays a pre-decoded frame sequence on its own ticker. It
// starts playing on creation; Play, Pause, Seek and SetLoop control
// the timeline.
type Video struct {
	frames [][]byte
	w, h   int
	fps    float64

	mu       sync.Mutex
	cb       func(Frame)
	pos      int
	lastTime float64
	playing  bool
	loop     bool
	closed   bool

	frameCh chan Frame
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewVideo decodes every frame of the sequence up front and starts
// playback. All frames must share the first frame's dimensions.
func NewVideo(cfg VideoConfig) (*Video, error) {
	if len(cfg.Paths) == 0 {
		return nil, fmt.Errorf("source: video needs at least one frame")
	}
	if cfg.FPS <= 0 {
		cfg.FPS = 30
	}

	v := &Video{
		frames:  make([][]byte, 0, len(cfg.Paths)),
		fps:     cfg.FPS,
		playing: true,
		loop:    cfg.Loop,
		frameCh: make(chan Frame, 2),
		done:    make(chan struct{}),
	}
	for i, p := range cfg.Paths {
		f, err := os.Open(p)
		if err != nil {
			return nil, fmt.Errorf("source: open frame %d: %w", i, err)
		}
		img, _, err := image.Decode(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("source: decode frame %d: %w", i, err)
		}
		rgba := toRGBA(img)
		w, h := rgba.Rect.Dx(), rgba.Rect.Dy()
		if i == 0 {
			v.w, v.h = w, h
		} else if w != v.w || h != v.h {
			return nil, fmt.Errorf("source: frame %d is %dx%d, want %dx%d", i, w, h, v.w, v.h)
		}
		v.frames = append(v.frames, rgba.Pix)
	}

	v.wg.Add(1)
	go v.run()
	return v, nil
}

func (v *Video) Kind() Kind       { return KindVideo }
func (v *Video) Size() (int, int) { return v.w, v.h }
func (v *Video) Live() bool       { return true }

// Duration returns the clip length in seconds.
func (v *Video) Duration() float64 { return float64(len(v.frames)) / v.fps }

func (v *Video) CurrentTime() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastTime
}

func (v *Video) SetFrameCallback(cb func(Frame)) {
	v.mu.Lock()
	v.cb = cb
	v.mu.Unlock()
}

// ReadFrame blocks until the next frame is presented. Frames that
// arrive while no reader waits are dropped, keeping a slow consumer
// on the latest content.
func (v *Video) ReadFrame(ctx context.Context) (Frame, error) {
	select {
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	case <-v.done:
		return Frame{}, ErrSourceClosed
	case f := <-v.frameCh:
		return f, nil
	}
}

// Play resumes playback. A clip that ran to completion restarts from
// the first frame.
func (v *Video) Play() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return ErrSourceClosed
	}
	if v.pos >= len(v.frames) {
		v.pos = 0
	}
	v.playing = true
	return nil
}

// Pause stops the timeline without losing the position.
func (v *Video) Pause() {
	v.mu.Lock()
	v.playing = false
	v.mu.Unlock()
}

// Seek jumps to the frame nearest t seconds.
func (v *Video) Seek(t float64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return ErrSourceClosed
	}
	pos := int(math.Round(t * v.fps))
	if pos < 0 {
		pos = 0
	}
	if pos > len(v.frames)-1 {
		pos = len(v.frames) - 1
	}
	v.pos = pos
	return nil
}

func (v *Video) SetLoop(loop bool) {
	v.mu.Lock()
	v.loop = loop
	v.mu.Unlock()
}

func (v *Video) Close() error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return nil
	}
	v.closed = true
	v.playing = false
	v.mu.Unlock()

	close(v.done)
	v.wg.Wait()
	return nil
}

func (v *Video) run() {
	defer v.wg.Done()

	ticker := time.NewTicker(time.Duration(float64(time.Second) / v.fps))
	defer ticker.Stop()

	for {
		select {
		case <-v.done:
			return
		case <-ticker.C:
			v.step()
		}
	}
}

func (v *Video) step() {
	v.mu.Lock()
	if !v.playing || v.closed {
		v.mu.Unlock()
		return
	}
	frame := Frame{
		Pix:   v.frames[v.pos],
		W:     v.w,
		H:     v.h,
		Index: uint64(v.pos),
		Time:  float64(v.pos) / v.fps,
	}
	v.lastTime = frame.Time
	v.pos++
	if v.pos >= len(v.frames) {
		if v.loop {
			v.pos = 0
		} else {
			v.playing = false
		}
	}
	cb := v.cb
	v.mu.Unlock()

	if cb != nil {
		cb(frame)
		return
	}
	select {
	case v.frameCh <- frame:
	default:
	}
}

func init() {
	Register(KindVideo, func(cfg any) (Source, error) {
		c, ok := cfg.(*VideoConfig)
		if !ok {
			return nil, fmt.Errorf("source: video source needs *VideoConfig, got %T", cfg)
		}
		return NewVideo(*c)
	})
}
