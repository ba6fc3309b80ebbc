package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/gogpu/depthfx"
	"github.com/gogpu/depthfx/depth"
	"github.com/gogpu/depthfx/focus"
	"github.com/gogpu/depthfx/source"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("source.kind", "pattern")
	v.SetDefault("source.width", 640)
	v.SetDefault("source.height", 360)
	v.SetDefault("source.fps", 30.0)
	v.SetDefault("source.loop", true)

	v.SetDefault("effect.kind", "parallax")

	v.SetDefault("render.rate", 60.0)
	v.SetDefault("render.pixel_ratio", 1.0)
	v.SetDefault("render.frames", 120)
	v.SetDefault("render.out", "out")
	v.SetDefault("render.every", 1)
}

// settings is one immutable snapshot of the effect configuration. The
// watcher replaces the whole snapshot on a config change, so a build
// never observes a half-applied file.
type settings struct {
	srcKind string
	srcPath string
	frames  []string
	device  string
	width   int
	height  int
	fps     float64
	loop    bool
	mirror  bool

	effect string

	strength *float64
	axisX    *float64
	axisY    *float64
	pom      bool

	mode      string
	aperture  *float64
	maxBlur   *float64
	focusMin  *float64
	focusMax  *float64
	autoDepth *float64
	breathing *float64
	vignette  *float64
	bloom     *float64

	shapePath string
	text      string
	fontFile  string
	scale     *float64
	lens      *float64
	rim       *float64
	rimInt    *float64
	chromatic *float64
	bevel     *float64
	chamfer   *float64
	maxRange  *float64
	extDim    *float64

	depthMeta    string
	depthPayload string
	modelPath    string
	modelURL     string
	cacheDir     string

	backendName string
	tier        string
	outW        int
	outH        int
	pixelRatio  float64
	rate        float64
	overscan    *float64

	frameCount int
	outDir     string
	every      int
}

func loadSettings(v *viper.Viper) *settings {
	f := func(key string) *float64 {
		if !v.IsSet(key) {
			return nil
		}
		val := v.GetFloat64(key)
		return &val
	}
	return &settings{
		srcKind: v.GetString("source.kind"),
		srcPath: v.GetString("source.path"),
		frames:  v.GetStringSlice("source.frames"),
		device:  v.GetString("source.device"),
		width:   v.GetInt("source.width"),
		height:  v.GetInt("source.height"),
		fps:     v.GetFloat64("source.fps"),
		loop:    v.GetBool("source.loop"),
		mirror:  v.GetBool("source.mirror"),

		effect: v.GetString("effect.kind"),

		strength: f("effect.strength"),
		axisX:    f("effect.axis_x"),
		axisY:    f("effect.axis_y"),
		pom:      v.GetBool("effect.pom"),

		mode:      v.GetString("effect.mode"),
		aperture:  f("effect.aperture"),
		maxBlur:   f("effect.max_blur"),
		focusMin:  f("effect.focus_min"),
		focusMax:  f("effect.focus_max"),
		autoDepth: f("effect.auto_depth"),
		breathing: f("effect.breathing"),
		vignette:  f("effect.vignette"),
		bloom:     f("effect.bloom"),

		shapePath: v.GetString("effect.shape"),
		text:      v.GetString("effect.text"),
		fontFile:  v.GetString("effect.font"),
		scale:     f("effect.scale"),
		lens:      f("effect.lens"),
		rim:       f("effect.rim_width"),
		rimInt:    f("effect.rim_intensity"),
		chromatic: f("effect.chromatic"),
		bevel:     f("effect.bevel_width"),
		chamfer:   f("effect.chamfer_depth"),
		maxRange:  f("effect.max_range"),
		extDim:    f("effect.exterior_dim"),

		depthMeta:    v.GetString("depth.meta"),
		depthPayload: v.GetString("depth.payload"),
		modelPath:    v.GetString("depth.model"),
		modelURL:     v.GetString("depth.model_url"),
		cacheDir:     v.GetString("depth.cache_dir"),

		backendName: v.GetString("render.backend"),
		tier:        v.GetString("render.tier"),
		outW:        v.GetInt("render.width"),
		outH:        v.GetInt("render.height"),
		pixelRatio:  v.GetFloat64("render.pixel_ratio"),
		rate:        v.GetFloat64("render.rate"),
		overscan:    f("render.overscan"),

		frameCount: v.GetInt("render.frames"),
		outDir:     v.GetString("render.out"),
		every:      v.GetInt("render.every"),
	}
}

// buildSource constructs the configured media source.
func buildSource(s *settings) (source.Source, error) {
	switch s.srcKind {
	case "pattern":
		return source.NewPattern(source.PatternConfig{
			Width: s.width, Height: s.height, FPS: s.fps,
		}), nil
	case "image":
		if s.srcPath == "" {
			return nil, fmt.Errorf("source.path required for an image source")
		}
		return source.NewImage(source.ImageConfig{Path: s.srcPath})
	case "video":
		paths, err := expandFrames(s.frames)
		if err != nil {
			return nil, err
		}
		return source.NewVideo(source.VideoConfig{
			Paths: paths, FPS: s.fps, Loop: s.loop,
		})
	case "camera":
		return source.NewCamera(source.CameraConfig{
			Device: s.device,
			Width:  s.width, Height: s.height, FPS: s.fps,
			Mirror: s.mirror,
		})
	default:
		return nil, fmt.Errorf("unknown source.kind %q", s.srcKind)
	}
}

// expandFrames resolves glob patterns in the frame list, keeping
// literal paths as they are.
func expandFrames(entries []string) ([]string, error) {
	var paths []string
	for _, e := range entries {
		if !strings.ContainsAny(e, "*?[") {
			paths = append(paths, e)
			continue
		}
		matches, err := filepath.Glob(e)
		if err != nil {
			return nil, fmt.Errorf("bad frame pattern %q: %w", e, err)
		}
		paths = append(paths, matches...)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("source.frames matched no files")
	}
	return paths, nil
}

// baseConfig assembles the shared effect config: source plus depth
// provider.
func baseConfig(s *settings, src source.Source) (depthfx.Config, error) {
	cfg := depthfx.Config{
		Source:        src,
		ModelPath:     s.modelPath,
		ModelURL:      s.modelURL,
		ModelCacheDir: s.cacheDir,
	}
	if s.srcKind == "camera" || s.mirror {
		cfg.Mirror = depthfx.Bool(s.mirror)
	}
	if s.depthMeta != "" || s.depthPayload != "" {
		fs, err := depth.LoadFiles(s.depthMeta, s.depthPayload)
		if err != nil {
			return depthfx.Config{}, err
		}
		cfg.DepthFrames = fs
	}
	return cfg, nil
}

func buildOptions(s *settings) ([]depthfx.Option, error) {
	var opts []depthfx.Option
	if s.backendName != "" && s.backendName != "auto" {
		opts = append(opts, depthfx.WithBackend(s.backendName))
	}
	if s.tier != "" && s.tier != "auto" {
		tier, ok := depthfx.ParseTier(s.tier)
		if !ok {
			return nil, fmt.Errorf("unknown render.tier %q", s.tier)
		}
		opts = append(opts, depthfx.WithTier(tier))
	}
	if s.outW > 0 && s.outH > 0 {
		opts = append(opts, depthfx.WithSize(s.outW, s.outH))
	}
	opts = append(opts,
		depthfx.WithPixelRatio(s.pixelRatio),
		depthfx.WithDisplayRate(s.rate),
	)
	if s.overscan != nil {
		opts = append(opts, depthfx.WithOverscan(*s.overscan))
	}
	return opts, nil
}

// effect is the common surface of the three renderer types.
type effect interface {
	Initialize(ctx context.Context) error
	Start(func(depthfx.RenderedFrame)) error
	Stop()
	Dispose()
	Play() error
	Events() <-chan depthfx.Event
	Stats() depthfx.Stats
	BackendName() string
	Quality() depthfx.QualityParams
}

// buildEffect constructs the configured effect over a fresh source.
// The effect owns neither the snapshot nor the viper instance, so a
// rebuild with a new snapshot is a clean slate.
func buildEffect(s *settings) (effect, source.Source, error) {
	src, err := buildSource(s)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := baseConfig(s, src)
	if err != nil {
		src.Close()
		return nil, nil, err
	}
	opts, err := buildOptions(s)
	if err != nil {
		src.Close()
		return nil, nil, err
	}

	var fx effect
	switch s.effect {
	case "parallax":
		fx, err = depthfx.NewParallax(depthfx.ParallaxConfig{
			Config:   cfg,
			Strength: s.strength,
			AxisX:    s.axisX,
			AxisY:    s.axisY,
			POM:      s.pom,
		}, opts...)
	case "rackfocus":
		rfCfg := depthfx.RackFocusConfig{
			Config:    cfg,
			Aperture:  s.aperture,
			MaxBlur:   s.maxBlur,
			FocusMin:  s.focusMin,
			FocusMax:  s.focusMax,
			AutoDepth: s.autoDepth,
			Breathing: s.breathing,
			Vignette:  s.vignette,
			Bloom:     s.bloom,
		}
		if s.mode != "" {
			m, perr := focus.ParseMode(s.mode)
			if perr != nil {
				src.Close()
				return nil, nil, perr
			}
			rfCfg.Mode = &m
		}
		fx, err = depthfx.NewRackFocus(rfCfg, opts...)
	case "portal":
		var font []byte
		if s.fontFile != "" {
			font, err = os.ReadFile(s.fontFile)
			if err != nil {
				src.Close()
				return nil, nil, fmt.Errorf("read effect.font: %w", err)
			}
		}
		fx, err = depthfx.NewPortal(depthfx.PortalConfig{
			Config:       cfg,
			PathData:     s.shapePath,
			Text:         s.text,
			Font:         font,
			Scale:        s.scale,
			LensStrength: s.lens,
			RimWidth:     s.rim,
			RimIntensity: s.rimInt,
			Chromatic:    s.chromatic,
			BevelWidth:   s.bevel,
			ChamferDepth: s.chamfer,
			MaxRange:     s.maxRange,
			ExteriorDim:  s.extDim,
		}, opts...)
	default:
		src.Close()
		return nil, nil, fmt.Errorf("unknown effect.kind %q", s.effect)
	}
	if err != nil {
		src.Close()
		return nil, nil, err
	}
	return fx, src, nil
}
