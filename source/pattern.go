package source

import (
	"context"
	"sync"
	"time"
)

// PatternConfig configures the synthetic test source.
type PatternConfig struct {
	Width  int     // default 640
	Height int     // default 360
	FPS    float64 // default 30
}

// Pattern generates a horizontally drifting gradient with a known
// vertical depth ramp, so effects can run without real media or a
// depth model.
type Pattern struct {
	w, h  int
	fps   float64
	depth []byte

	mu       sync.Mutex
	cb       func(Frame)
	index    uint64
	lastTime float64
	closed   bool

	frameCh chan Frame
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewPattern starts a generator at the configured rate.
func NewPattern(cfg PatternConfig) *Pattern {
	if cfg.Width <= 0 {
		cfg.Width = 640
	}
	if cfg.Height <= 0 {
		cfg.Height = 360
	}
	if cfg.FPS <= 0 {
		cfg.FPS = 30
	}

	p := &Pattern{
		w:       cfg.Width,
		h:       cfg.Height,
		fps:     cfg.FPS,
		depth:   make([]byte, cfg.Width*cfg.Height),
		frameCh: make(chan Frame, 2),
		done:    make(chan struct{}),
	}
	for y := 0; y < p.h; y++ {
		// Bottom of the frame is nearest.
		var d byte = 255
		if p.h > 1 {
			d = byte(y * 255 / (p.h - 1))
		}
		row := p.depth[y*p.w : (y+1)*p.w]
		for x := range row {
			row[x] = d
		}
	}

	p.wg.Add(1)
	go p.run()
	return p
}

func (p *Pattern) Kind() Kind       { return KindPattern }
func (p *Pattern) Size() (int, int) { return p.w, p.h }
func (p *Pattern) Live() bool       { return true }

func (p *Pattern) CurrentTime() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastTime
}

// DepthPlane returns the ground-truth depth ramp matching the
// generated frames: one byte per pixel, 255 at the bottom row.
func (p *Pattern) DepthPlane() []byte { return p.depth }

func (p *Pattern) SetFrameCallback(cb func(Frame)) {
	p.mu.Lock()
	p.cb = cb
	p.mu.Unlock()
}

func (p *Pattern) ReadFrame(ctx context.Context) (Frame, error) {
	select {
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	case <-p.done:
		return Frame{}, ErrSourceClosed
	case f := <-p.frameCh:
		return f, nil
	}
}

func (p *Pattern) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	close(p.done)
	p.wg.Wait()
	return nil
}

func (p *Pattern) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(time.Duration(float64(time.Second) / p.fps))
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			p.step()
		}
	}
}

func (p *Pattern) step() {
	p.mu.Lock()
	idx := p.index
	p.index++
	p.lastTime = float64(idx) / p.fps
	cb := p.cb
	p.mu.Unlock()

	frame := Frame{
		Pix:   p.generate(idx),
		W:     p.w,
		H:     p.h,
		Index: idx,
		Time:  float64(idx) / p.fps,
	}

	if cb != nil {
		cb(frame)
		return
	}
	select {
	case p.frameCh <- frame:
	default:
	}
}

// generate renders a gradient shifted 3 levels per frame, tinted by
// the depth ramp so depth is visible to the eye.
func (p *Pattern) generate(frameNum uint64) []byte {
	pix := make([]byte, 4*p.w*p.h)
	shift := int(frameNum%256) * 3
	for y := 0; y < p.h; y++ {
		d := p.depth[y*p.w]
		row := pix[4*y*p.w:]
		for x := 0; x < p.w; x++ {
			v := byte((x*255/p.w + shift) % 256)
			row[4*x+0] = v
			row[4*x+1] = 255 - v
			row[4*x+2] = d
			row[4*x+3] = 255
		}
	}
	return pix
}

func init() {
	Register(KindPattern, func(cfg any) (Source, error) {
		c, ok := cfg.(*PatternConfig)
		if !ok {
			c = &PatternConfig{}
		}
		return NewPattern(*c), nil
	})
}
