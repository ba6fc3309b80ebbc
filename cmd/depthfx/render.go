package main

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/gogpu/depthfx"
	"github.com/gogpu/depthfx/source"
)

var watchConfig bool

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render the configured effect to numbered PNG frames",
	Long: `Render builds the configured source, depth provider and effect,
then writes every presented frame to the output directory as
frame-NNNNNN.png until the frame budget is reached or the process is
interrupted.

With --watch the config file is re-read on change and the effect is
torn down and rebuilt with the new attributes. Changes that land while
a build is in flight coalesce into a single rebuild.`,
	Args: cobra.NoArgs,
	RunE: runRender,
}

func init() {
	renderCmd.Flags().BoolVar(&watchConfig, "watch", false, "rebuild the effect when the config file changes")
	renderCmd.Flags().String("effect", "", "effect kind: parallax, rackfocus or portal")
	renderCmd.Flags().Int("frames", 0, "frames to render before exiting, 0 renders until interrupted")
	renderCmd.Flags().String("out", "", "output directory for PNG frames")
	renderCmd.Flags().String("backend", "", "render backend: wgpu or native")
	_ = vp.BindPFlag("effect.kind", renderCmd.Flags().Lookup("effect"))
	_ = vp.BindPFlag("render.frames", renderCmd.Flags().Lookup("frames"))
	_ = vp.BindPFlag("render.out", renderCmd.Flags().Lookup("out"))
	_ = vp.BindPFlag("render.backend", renderCmd.Flags().Lookup("backend"))
}

func runRender(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// done carries the first terminal outcome: budget reached (nil),
	// a renderer error, or a failed build reported by the controller.
	done := make(chan error, 1)

	var current atomic.Pointer[settings]
	current.Store(loadSettings(vp))

	ctrl := depthfx.NewController(
		func(ctx context.Context) (depthfx.Instance, error) {
			sess, err := startSession(ctx, current.Load(), done)
			if err != nil {
				return nil, err
			}
			return sess, nil
		},
		func(err error) {
			select {
			case done <- err:
			default:
			}
		},
	)
	ctrl.OnConnect()
	defer ctrl.OnDisconnect()

	if watchConfig {
		if vp.ConfigFileUsed() == "" {
			return fmt.Errorf("--watch needs a config file, none was found")
		}
		vp.OnConfigChange(func(e fsnotify.Event) {
			slog.Info("config changed, rebuilding", "file", e.Name)
			next := loadSettings(vp)
			ctrl.OnAttributeChange(func() { current.Store(next) })
		})
		vp.WatchConfig()
	}

	select {
	case <-ctx.Done():
		slog.Info("interrupted")
		return nil
	case err := <-done:
		return err
	}
}

// renderSession is one running effect bound to an output directory. It
// satisfies the controller's Instance interface so a config change can
// tear it down and start a fresh one.
type renderSession struct {
	fx     effect
	src    source.Source
	outDir string
	every  int
	budget int
	done   chan<- error

	rendered atomic.Int64
	saved    atomic.Int64
	finished atomic.Bool

	stop chan struct{}
	wg   sync.WaitGroup
}

func startSession(ctx context.Context, s *settings, done chan<- error) (*renderSession, error) {
	fx, src, err := buildEffect(s)
	if err != nil {
		return nil, err
	}
	sess := &renderSession{
		fx:     fx,
		src:    src,
		outDir: s.outDir,
		every:  s.every,
		budget: s.frameCount,
		done:   done,
		stop:   make(chan struct{}),
	}
	if sess.every < 1 {
		sess.every = 1
	}
	if err := os.MkdirAll(s.outDir, 0o755); err != nil {
		fx.Dispose()
		src.Close()
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	// Drain events from here on so download progress and readiness get
	// logged while Initialize runs.
	sess.wg.Add(1)
	go sess.drainEvents()

	if err := fx.Initialize(ctx); err != nil {
		sess.teardown()
		return nil, err
	}
	if err := fx.Start(sess.onFrame); err != nil {
		sess.teardown()
		return nil, err
	}
	if s.srcKind == "video" {
		if err := fx.Play(); err != nil {
			sess.teardown()
			return nil, err
		}
	}
	slog.Info("session started",
		"effect", s.effect,
		"backend", fx.BackendName(),
		"tier", fx.Quality().Tier.String(),
		"out", s.outDir)
	return sess, nil
}

// Dispose stops rendering, releases the effect and closes the source.
func (s *renderSession) Dispose() {
	s.teardown()
	st := s.fx.Stats()
	slog.Info("session stopped",
		"frames_rendered", st.FramesRendered,
		"frames_saved", s.saved.Load(),
		"source_frames_dropped", st.SourceFramesDropped,
		"frame_errors", st.FrameErrors)
}

func (s *renderSession) teardown() {
	s.fx.Stop()
	s.fx.Dispose()
	s.src.Close()
	close(s.stop)
	s.wg.Wait()
}

// finish reports the session's terminal outcome exactly once.
func (s *renderSession) finish(err error) {
	if s.finished.CompareAndSwap(false, true) {
		select {
		case s.done <- err:
		default:
		}
	}
}

// onFrame runs on the display goroutine; the pixel buffer is only valid
// for the duration of the call, so the PNG is encoded in place.
func (s *renderSession) onFrame(f depthfx.RenderedFrame) {
	n := s.rendered.Add(1)
	if (n-1)%int64(s.every) == 0 {
		if err := s.savePNG(f, s.saved.Load()); err != nil {
			slog.Error("write frame", "err", err)
			s.finish(err)
			return
		}
		s.saved.Add(1)
	}
	if s.budget > 0 && n >= int64(s.budget) {
		s.finish(nil)
	}
}

func (s *renderSession) savePNG(f depthfx.RenderedFrame, idx int64) error {
	img := &image.RGBA{
		Pix:    f.Pix,
		Stride: f.W * 4,
		Rect:   image.Rect(0, 0, f.W, f.H),
	}
	path := filepath.Join(s.outDir, fmt.Sprintf("frame-%06d.png", idx))
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(file, img); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func (s *renderSession) drainEvents() {
	defer s.wg.Done()
	for {
		select {
		case <-s.stop:
			return
		case ev := <-s.fx.Events():
			s.logEvent(ev)
		}
	}
}

func (s *renderSession) logEvent(ev depthfx.Event) {
	switch ev.Kind {
	case depthfx.EventReady:
		slog.Info("effect ready",
			"source_w", ev.SourceW,
			"source_h", ev.SourceH,
			"duration", ev.Duration)
	case depthfx.EventDownloadProgress:
		if ev.BytesTotal > 0 {
			slog.Info("downloading model",
				"received", ev.BytesReceived,
				"total", ev.BytesTotal)
		} else {
			slog.Info("downloading model", "received", ev.BytesReceived)
		}
	case depthfx.EventLoop:
		slog.Debug("source looped", "frame", ev.FrameIndex)
	case depthfx.EventError:
		slog.Error("renderer halted", "err", ev.Err)
		s.finish(ev.Err)
	default:
		slog.Debug("event", "kind", ev.Kind.String())
	}
}
