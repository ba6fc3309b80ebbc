package depthfx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/depthfx/backend"
	"github.com/gogpu/depthfx/depth"
	"github.com/gogpu/depthfx/source"
)

// pointerTau is the time constant of the pointer smoothing filter in
// seconds. Displacement follows the pointer with a short exponential
// lag so a jumpy input device does not translate into jitter.
const pointerTau = 0.12

// maxTickDt bounds the dt fed to physics and smoothing after a stall,
// so a debugger pause or a backgrounded process does not launch the
// spring.
const maxTickDt = 0.25

// RenderedFrame is one display-loop output delivered to the Start
// callback. Pix is the pipeline's render target, tightly packed RGBA
// at the viewport size, borrowed for the duration of the callback.
type RenderedFrame struct {
	Pix        []byte
	W, H       int
	Index      uint64  // display ticks rendered since Start
	SourceTime float64 // media time of the source frame on screen
}

// Stats is a snapshot of the renderer's counters.
type Stats struct {
	// FramesRendered counts completed display ticks.
	FramesRendered uint64
	// DepthUpdates counts depth uploads (one bilateral filter run each).
	DepthUpdates uint64
	// SourceFramesDropped counts source frames overwritten in the
	// presentation mailbox before the loop could take them.
	SourceFramesDropped uint64
	// FrameErrors counts display ticks skipped on a transient error.
	FrameErrors uint64
	// InferencesCompleted and InferencesDropped mirror the estimator
	// counters on the live-estimation path.
	InferencesCompleted uint64
	InferencesDropped   uint64
}

type rendererState int

const (
	stateCreated rendererState = iota
	stateReady
	stateRunning
	stateStopped
	stateDisposed
)

// ownedFrame is a renderer-owned copy of one source frame. Frames
// rotate through a small pool: mailbox slot, published slot, the
// display loop's in-use slot, spares. Steady state allocates nothing.
type ownedFrame struct {
	pix   []byte
	w, h  int
	index uint64
	time  float64
}

// Renderer drives one effect pipeline with two loops: a display-rate
// ticker that samples input and renders, and a presentation loop woken
// per source frame that refilters depth. The split keeps depth work at
// source rate while input response runs at full display rate.
//
// Renderers are built by NewParallax, NewRackFocus and NewPortal and
// move through Initialize, Start, Stop, Dispose. Stop is terminal.
type Renderer struct {
	logger *slog.Logger
	cfg    Config

	be    backend.PipelineBackend
	ownBE bool
	pipe  backend.Pipeline

	// readerMu serializes reader access between the presentation loop
	// and host-thread depth probes; the interpolator reuses one
	// scratch buffer across calls.
	readerMu sync.Mutex
	reader   depth.Reader
	est      *depth.Estimator
	quality  *backend.QualityParams
	derived  depth.DerivedParams

	srcW, srcH  int
	overscan    float64
	mirror      bool
	displayRate float64
	pixelRatio  float64

	// prepare lets the effect adjust the frame input once per display
	// tick (focus spring state, for one). Display goroutine only.
	prepare func(dt float64, in *backend.FrameInput)

	// frameMu guards the frame rotation, the depth wake flag, the
	// coalesced resize slot and the published viewport.
	frameMu    sync.Mutex
	frameCond  *sync.Cond
	pending    *ownedFrame
	cur        *ownedFrame
	used       *ownedFrame
	spare      []*ownedFrame
	depthFresh bool
	stopping   bool
	resizeTo   *[2]int
	vp         backend.Viewport

	pointerMu sync.Mutex
	targetX   float64
	targetY   float64
	smoothX   float64
	smoothY   float64

	stateMu sync.Mutex
	state   rendererState
	src     source.Source
	initMu  sync.Mutex

	onFrame   func(RenderedFrame)
	events    chan Event
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	lastIndex uint64
	hasFrame  bool

	framesRendered atomic.Uint64
	depthUpdates   atomic.Uint64
	framesDropped  atomic.Uint64
	frameErrors    atomic.Uint64
}

// newRenderer assembles a renderer from a resolved core and a
// constructed pipeline. The pipeline is not initialized yet.
func newRenderer(c *core, pipe backend.Pipeline, vp backend.Viewport, overscan float64) *Renderer {
	r := &Renderer{
		logger:   Logger(),
		cfg:      *c.cfg,
		be:       c.be,
		ownBE:    c.ownBE,
		pipe:     pipe,
		reader:   c.reader,
		quality:  c.quality,
		srcW:        c.srcW,
		srcH:        c.srcH,
		overscan:    overscan,
		mirror:      c.mirror,
		displayRate: c.o.displayRate,
		pixelRatio:  effectivePixelRatio(c.o.pixelRatio, c.quality),
		vp:       vp,
		src:      c.cfg.Source,
		events:   make(chan Event, c.o.eventBuffer),
	}
	if c.derived != nil {
		r.derived = *c.derived
	}
	r.frameCond = sync.NewCond(&r.frameMu)
	return r
}

// Events returns the notification channel. Drain it from one
// goroutine; when it fills up, new events are dropped.
func (r *Renderer) Events() <-chan Event { return r.events }

// BackendName reports which backend renders this effect.
func (r *Renderer) BackendName() string { return r.be.Name() }

// Quality returns the resolved quality parameters.
func (r *Renderer) Quality() QualityParams { return *r.quality }

// Derived returns the effect defaults derived from depth analysis, the
// zero value on the estimation path.
func (r *Renderer) Derived() depth.DerivedParams { return r.derived }

// Viewport returns the current render target transform.
func (r *Renderer) Viewport() backend.Viewport {
	r.frameMu.Lock()
	defer r.frameMu.Unlock()
	return r.vp
}

// Stats returns a snapshot of the frame and depth counters.
func (r *Renderer) Stats() Stats {
	s := Stats{
		FramesRendered:      r.framesRendered.Load(),
		DepthUpdates:        r.depthUpdates.Load(),
		SourceFramesDropped: r.framesDropped.Load(),
		FrameErrors:         r.frameErrors.Load(),
	}
	if r.est != nil {
		es := r.est.Stats()
		s.InferencesCompleted = es.Completed
		s.InferencesDropped = es.Dropped
	}
	return s
}

// Initialize allocates the pipeline's render resources and resolves
// the depth provider: on the estimation path it loads (or downloads)
// the model and, for static sources, runs one synchronous inference so
// the first rendered frame already has real depth. An error leaves the
// renderer fully uninitialized and Initialize may be retried.
func (r *Renderer) Initialize(ctx context.Context) error {
	r.initMu.Lock()
	defer r.initMu.Unlock()

	r.stateMu.Lock()
	st := r.state
	r.stateMu.Unlock()
	switch st {
	case stateReady, stateRunning:
		return nil
	case stateStopped, stateDisposed:
		return ErrStopped
	}

	if err := r.pipe.Initialize(ctx); err != nil {
		return err
	}
	if err := r.resolveDepth(ctx); err != nil {
		return err
	}
	if err := r.warmup(ctx); err != nil {
		return err
	}

	r.stateMu.Lock()
	r.state = stateReady
	r.stateMu.Unlock()

	ev := Event{
		Kind:    EventReady,
		SourceW: r.srcW, SourceH: r.srcH,
		Derived: r.derived,
	}
	if d, ok := r.src.(interface{ Duration() float64 }); ok {
		ev.Duration = d.Duration()
	}
	r.emit(ev)
	r.logger.Info("renderer initialized",
		"backend", r.be.Name(),
		"source", r.src.Kind().String(),
		"viewport_w", r.vp.W, "viewport_h", r.vp.H,
		"tier", r.quality.Tier.String())
	return nil
}

// resolveDepth builds the estimation bridge when no precomputed set
// was configured: model from config, file, or download.
func (r *Renderer) resolveDepth(ctx context.Context) error {
	if r.reader != nil {
		return nil
	}

	model := r.cfg.Model
	if model == nil {
		path := r.cfg.ModelPath
		if path == "" {
			dir, err := modelCacheDir(r.cfg.ModelCacheDir)
			if err != nil {
				return err
			}
			path, err = depth.EnsureModel(ctx, dir, r.cfg.ModelURL, func(got, total int64) {
				r.emit(Event{Kind: EventDownloadProgress, BytesReceived: got, BytesTotal: total})
			})
			if err != nil {
				return fmt.Errorf("depthfx: fetch depth model: %w", err)
			}
		}
		var err error
		model, err = depth.NewOnnxModel(depth.OnnxOptions{ModelPath: path})
		if err != nil {
			return fmt.Errorf("depthfx: load depth model: %w", err)
		}
	}

	dw, dh := depthDims(r.srcW, r.srcH, r.quality.DepthMaxDim)
	est := depth.NewEstimator(model, dw, dh)
	est.OnUpdate(r.wakeDepth)
	est.OnError(func(err error) {
		r.logger.Warn("depth inference failed", "err", err)
	})
	r.est = est
	r.reader = est
	return nil
}

// modelCacheDir resolves the download directory, defaulting to the
// user cache.
func modelCacheDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("depthfx: resolve model cache dir: %w", err)
	}
	return filepath.Join(base, "depthfx"), nil
}

// warmup gives static sources a complete first frame: one inference on
// the estimation path, then a depth upload, then the frame published
// for the display loop.
func (r *Renderer) warmup(ctx context.Context) error {
	if r.src.Live() {
		return nil
	}
	f, err := r.src.ReadFrame(ctx)
	if err != nil {
		return fmt.Errorf("depthfx: read static frame: %w", err)
	}
	if r.est != nil {
		if err := r.est.SubmitFrameAndWait(ctx, f.Pix, f.W, f.H); err != nil {
			return fmt.Errorf("depthfx: warmup inference: %w", err)
		}
	}
	if err := r.uploadDepth(f.Time); err != nil {
		return err
	}
	r.publishFrame(f)
	return nil
}

// Start attaches the source callback and spawns the two loops. The
// optional onFrame callback observes every completed display tick;
// its frame buffer is borrowed for the duration of the call.
func (r *Renderer) Start(onFrame func(RenderedFrame)) error {
	r.stateMu.Lock()
	switch r.state {
	case stateCreated:
		r.stateMu.Unlock()
		return ErrNotReady
	case stateRunning:
		r.stateMu.Unlock()
		return nil
	case stateStopped, stateDisposed:
		r.stateMu.Unlock()
		return ErrStopped
	}
	r.onFrame = onFrame
	r.state = stateRunning
	src := r.src
	r.stateMu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.wg.Add(2)
	go r.displayLoop(ctx)
	go r.presentLoop()

	// Live sources push from here on; static sources fire exactly once.
	src.SetFrameCallback(r.onSourceFrame)
	return nil
}

// Stop halts both loops, detaches the source callback and drops the
// external references, so a late frame or inference completion is a
// no-op. Stop is idempotent and terminal: the renderer cannot be
// restarted.
func (r *Renderer) Stop() {
	r.stateMu.Lock()
	if r.state != stateRunning {
		if r.state == stateReady {
			r.state = stateStopped
			r.src = nil
		}
		r.stateMu.Unlock()
		return
	}
	r.state = stateStopped
	src := r.src
	r.src = nil
	r.stateMu.Unlock()

	src.SetFrameCallback(nil)
	r.cancel()

	r.frameMu.Lock()
	r.stopping = true
	r.frameCond.Broadcast()
	r.frameMu.Unlock()

	r.wg.Wait()
	r.logger.Debug("renderer stopped",
		"frames", r.framesRendered.Load(),
		"depth_updates", r.depthUpdates.Load())
}

// Dispose stops the loops and releases the pipeline, the estimator and
// an owned backend. Idempotent.
func (r *Renderer) Dispose() {
	r.Stop()

	r.stateMu.Lock()
	if r.state == stateDisposed {
		r.stateMu.Unlock()
		return
	}
	r.state = stateDisposed
	r.stateMu.Unlock()

	r.pipe.Dispose()
	if r.est != nil {
		if err := r.est.Close(); err != nil {
			r.logger.Warn("estimator close failed", "err", err)
		}
	}
	if r.ownBE {
		r.be.Close()
	}
}

// SetPointer feeds the smoothed input vector driving parallax
// displacement. Coordinates are clamped to [-1, 1].
func (r *Renderer) SetPointer(x, y float64) {
	r.pointerMu.Lock()
	r.targetX = clampRange(x, -1, 1)
	r.targetY = clampRange(y, -1, 1)
	r.pointerMu.Unlock()
}

// Resize requests a new target size in layout pixels. Requests
// coalesce: the display loop applies only the newest one per tick,
// since each resize rebuilds render targets.
func (r *Renderer) Resize(w, h int) {
	if w <= 0 || h <= 0 {
		return
	}
	sz := [2]int{scaleDim(w, r.pixelRatio), scaleDim(h, r.pixelRatio)}
	r.frameMu.Lock()
	r.resizeTo = &sz
	r.frameMu.Unlock()
}

// Play resumes a seekable source and reports it to the host.
func (r *Renderer) Play() error {
	p, err := r.player()
	if err != nil {
		return err
	}
	if err := p.Play(); err != nil {
		return err
	}
	r.emit(Event{Kind: EventPlay})
	return nil
}

// Pause suspends a seekable source's timeline.
func (r *Renderer) Pause() error {
	p, err := r.player()
	if err != nil {
		return err
	}
	p.Pause()
	r.emit(Event{Kind: EventPause})
	return nil
}

// Seek jumps a seekable source to t seconds.
func (r *Renderer) Seek(t float64) error {
	p, err := r.player()
	if err != nil {
		return err
	}
	return p.Seek(t)
}

// SetLoop switches a seekable source between looping and stopping at
// the end.
func (r *Renderer) SetLoop(loop bool) error {
	p, err := r.player()
	if err != nil {
		return err
	}
	p.SetLoop(loop)
	return nil
}

func (r *Renderer) player() (source.Player, error) {
	r.stateMu.Lock()
	src := r.src
	r.stateMu.Unlock()
	if src == nil {
		return nil, ErrStopped
	}
	p, ok := src.(source.Player)
	if !ok {
		return nil, fmt.Errorf("depthfx: %v source has no timeline", src.Kind())
	}
	return p, nil
}

// onSourceFrame is the source's frame callback. It copies the frame
// into an owned buffer and posts it to the single-slot mailbox,
// overwriting (and counting) an undelivered predecessor so the
// presentation loop always works on the newest frame.
func (r *Renderer) onSourceFrame(f source.Frame) {
	if len(f.Pix) < f.W*f.H*4 || f.W <= 0 || f.H <= 0 {
		return
	}
	r.frameMu.Lock()
	if r.stopping {
		r.frameMu.Unlock()
		return
	}
	buf := r.takeSpareLocked(f.W * f.H * 4)
	copy(buf.pix, f.Pix[:f.W*f.H*4])
	buf.w, buf.h = f.W, f.H
	buf.index = f.Index
	buf.time = f.Time
	if r.pending != nil {
		r.recycleLocked(r.pending)
		r.framesDropped.Add(1)
	}
	r.pending = buf
	r.frameCond.Signal()
	r.frameMu.Unlock()
}

// wakeDepth nudges the presentation loop after an inference completes,
// so fresh depth reaches the pipeline even when no new source frame
// arrives (a paused video, a static image).
func (r *Renderer) wakeDepth() {
	r.frameMu.Lock()
	if !r.stopping {
		r.depthFresh = true
		r.frameCond.Signal()
	}
	r.frameMu.Unlock()
}

// presentLoop runs once per source frame (or depth completion): submit
// the frame for inference when estimating, re-sample and filter depth,
// publish the frame for the display loop, report frame and loop
// events. Depth upload happens before the frame is published, so a
// display tick never sees a frame newer than its depth.
func (r *Renderer) presentLoop() {
	defer r.wg.Done()
	for {
		r.frameMu.Lock()
		for r.pending == nil && !r.depthFresh && !r.stopping {
			r.frameCond.Wait()
		}
		if r.stopping {
			r.frameMu.Unlock()
			return
		}
		f := r.pending
		r.pending = nil
		r.depthFresh = false
		r.frameMu.Unlock()

		r.presentTick(f)
	}
}

func (r *Renderer) presentTick(f *ownedFrame) {
	t := 0.0
	if f != nil {
		t = f.time
		if r.est != nil {
			r.est.SubmitFrame(f.pix, f.w, f.h)
		}
	}

	if err := r.uploadDepth(t); err != nil {
		if errors.Is(err, backend.ErrDeviceLost) {
			r.halt(err)
			return
		}
		r.logger.Warn("depth update skipped", "err", err)
		r.frameErrors.Add(1)
	}

	if f == nil {
		return
	}

	r.frameMu.Lock()
	if old := r.cur; old != nil && old != r.used {
		r.recycleLocked(old)
	}
	r.cur = f
	r.frameMu.Unlock()

	if f.index < r.lastIndex {
		r.emit(Event{Kind: EventLoop, FrameIndex: f.index, SourceTime: f.time})
	}
	r.lastIndex = f.index
	r.emit(Event{Kind: EventFrame, FrameIndex: f.index, SourceTime: f.time})
}

// uploadDepth samples the reader at t and runs the pipeline's filter
// stage.
func (r *Renderer) uploadDepth(t float64) error {
	r.readerMu.Lock()
	defer r.readerMu.Unlock()
	buf := r.reader.DepthAt(t)
	dw, dh := r.reader.Size()
	if err := r.pipe.UploadDepth(buf, dw, dh); err != nil {
		return err
	}
	r.depthUpdates.Add(1)
	return nil
}

// depthProbe samples the current depth map at a source UV, nearest
// neighbor, returning depth in [0, 1]. False when no depth exists yet.
func (r *Renderer) depthProbe(su, sv float64) (float64, bool) {
	r.frameMu.Lock()
	t := 0.0
	if r.cur != nil {
		t = r.cur.time
	}
	r.frameMu.Unlock()

	r.readerMu.Lock()
	defer r.readerMu.Unlock()
	if r.reader == nil {
		return 0, false
	}
	buf := r.reader.DepthAt(t)
	dw, dh := r.reader.Size()
	if dw <= 0 || dh <= 0 || len(buf) < dw*dh {
		return 0, false
	}
	x := int(su * float64(dw))
	y := int(sv * float64(dh))
	if x < 0 {
		x = 0
	} else if x >= dw {
		x = dw - 1
	}
	if y < 0 {
		y = 0
	} else if y >= dh {
		y = dh - 1
	}
	return float64(buf[y*dw+x]) / 255, true
}

// displayLoop ticks at the configured display rate regardless of
// source frame rate.
func (r *Renderer) displayLoop(ctx context.Context) {
	defer r.wg.Done()

	rate := r.displayRate
	if rate <= 0 {
		rate = 60
	}
	ticker := time.NewTicker(time.Duration(float64(time.Second) / rate))
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			dt := now.Sub(last).Seconds()
			last = now
			if dt <= 0 {
				continue
			}
			if dt > maxTickDt {
				dt = maxTickDt
			}
			r.displayTick(dt)
		}
	}
}

// displayTick runs one display refresh: apply a coalesced resize,
// sample and smooth input, let the effect advance its physics, render,
// deliver the frame. Transient failures skip the tick and keep the
// previous frame on screen; device loss halts the renderer.
func (r *Renderer) displayTick(dt float64) {
	r.frameMu.Lock()
	if rs := r.resizeTo; rs != nil {
		r.resizeTo = nil
		vp := computeViewport(rs[0], rs[1], r.srcW, r.srcH, r.overscan, r.mirror)
		r.frameMu.Unlock()
		if err := r.pipe.Resize(vp); err != nil {
			if errors.Is(err, backend.ErrDeviceLost) {
				r.halt(err)
				return
			}
			r.logger.Warn("resize failed", "err", err)
			r.frameErrors.Add(1)
		} else {
			r.frameMu.Lock()
			r.vp = vp
			r.frameMu.Unlock()
		}
		r.frameMu.Lock()
	}
	if r.cur != nil && r.cur != r.used {
		if r.used != nil {
			r.recycleLocked(r.used)
		}
		r.used = r.cur
	}
	f := r.used
	vp := r.vp
	r.frameMu.Unlock()

	if f == nil {
		return
	}

	ix, iy := r.smoothPointer(dt)
	in := backend.FrameInput{
		Pix: f.pix, W: f.w, H: f.h,
		Time:   f.time,
		InputX: ix, InputY: iy,
		BreathScale: 1,
	}
	if r.prepare != nil {
		r.prepare(dt, &in)
	}

	if err := r.pipe.RenderFrame(in); err != nil {
		if errors.Is(err, backend.ErrDeviceLost) {
			r.halt(err)
			return
		}
		r.logger.Warn("frame skipped", "err", err)
		r.frameErrors.Add(1)
		return
	}
	n := r.framesRendered.Add(1)

	if r.onFrame != nil {
		r.onFrame(RenderedFrame{
			Pix: r.pipe.Frame(), W: vp.W, H: vp.H,
			Index:      n - 1,
			SourceTime: f.time,
		})
	}
}

// smoothPointer advances the exponential input filter by dt and
// returns the smoothed vector.
func (r *Renderer) smoothPointer(dt float64) (float64, float64) {
	alpha := 1 - math.Exp(-dt/pointerTau)
	r.pointerMu.Lock()
	r.smoothX += (r.targetX - r.smoothX) * alpha
	r.smoothY += (r.targetY - r.smoothY) * alpha
	x, y := r.smoothX, r.smoothY
	r.pointerMu.Unlock()
	return x, y
}

// halt reports a terminal error and shuts the renderer down from
// inside a loop goroutine.
func (r *Renderer) halt(err error) {
	r.logger.Error("renderer halted", "err", err)
	r.emit(Event{Kind: EventError, Err: err})
	go r.Stop()
}

// emit delivers an event without blocking. A full channel sheds the
// oldest notification, so a host that stopped draining still sees the
// newest events when it comes back.
func (r *Renderer) emit(ev Event) {
	select {
	case r.events <- ev:
		return
	default:
	}
	select {
	case <-r.events:
	default:
	}
	select {
	case r.events <- ev:
	default:
	}
}

// publishFrame copies a source frame straight into the published slot,
// bypassing the mailbox. Used by warmup so the display loop has
// content on its first tick.
func (r *Renderer) publishFrame(f source.Frame) {
	if len(f.Pix) < f.W*f.H*4 || f.W <= 0 || f.H <= 0 {
		return
	}
	r.frameMu.Lock()
	buf := r.takeSpareLocked(f.W * f.H * 4)
	copy(buf.pix, f.Pix[:f.W*f.H*4])
	buf.w, buf.h = f.W, f.H
	buf.index = f.Index
	buf.time = f.Time
	if old := r.cur; old != nil && old != r.used {
		r.recycleLocked(old)
	}
	r.cur = buf
	r.frameMu.Unlock()
}

// takeSpareLocked returns a frame buffer of at least n bytes, reusing
// a spare when one fits. Caller holds frameMu.
func (r *Renderer) takeSpareLocked(n int) *ownedFrame {
	for i, s := range r.spare {
		if cap(s.pix) >= n {
			r.spare = append(r.spare[:i], r.spare[i+1:]...)
			s.pix = s.pix[:n]
			return s
		}
	}
	if len(r.spare) > 0 {
		// Undersized spares are stale after a source size change.
		r.spare = r.spare[:0]
	}
	return &ownedFrame{pix: make([]byte, n)}
}

// recycleLocked returns a frame buffer to the spare pool. Caller holds
// frameMu.
func (r *Renderer) recycleLocked(f *ownedFrame) {
	if f == nil {
		return
	}
	if len(r.spare) < 3 {
		r.spare = append(r.spare, f)
	}
}

func clampRange(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
