package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gogpu/depthfx/depth"
	"github.com/gogpu/depthfx/source"
)

var bakeCmd = &cobra.Command{
	Use:   "bake",
	Short: "Precompute depth maps for a frame sequence",
	Long: `Bake runs monocular depth estimation over the configured source
frames and writes a metadata JSON plus a raw depth payload. The pair
feeds depth.meta and depth.payload on later render runs, replacing
live estimation.`,
	Args: cobra.NoArgs,
	RunE: runBake,
}

var (
	bakeMeta    string
	bakePayload string
	bakeSize    int
	bakeEvery   int
)

func init() {
	bakeCmd.Flags().StringVar(&bakeMeta, "meta", "depth.json", "output metadata path")
	bakeCmd.Flags().StringVar(&bakePayload, "payload", "depth.raw", "output payload path")
	bakeCmd.Flags().IntVar(&bakeSize, "size", 384, "longer side of the baked depth maps")
	bakeCmd.Flags().IntVar(&bakeEvery, "every", 1, "estimate every Nth source frame")
}

func runBake(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s := loadSettings(vp)
	paths, err := bakeInputs(s)
	if err != nil {
		return err
	}
	if bakeEvery < 1 {
		bakeEvery = 1
	}
	kept := make([]string, 0, (len(paths)+bakeEvery-1)/bakeEvery)
	for i := 0; i < len(paths); i += bakeEvery {
		kept = append(kept, paths[i])
	}

	model, err := openModel(ctx, s)
	if err != nil {
		return err
	}

	first, err := loadFrame(ctx, kept[0])
	if err != nil {
		return err
	}
	bw, bh := bakeDims(first.W, first.H, bakeSize)
	est := depth.NewEstimator(model, bw, bh)
	defer est.Close()

	payload := make([]byte, 0, bw*bh*len(kept))
	for i, p := range kept {
		f := first
		if i > 0 {
			if f, err = loadFrame(ctx, p); err != nil {
				return err
			}
		}
		if err := est.SubmitFrameAndWait(ctx, f.Pix, f.W, f.H); err != nil {
			return fmt.Errorf("estimate %s: %w", p, err)
		}
		payload = append(payload, est.DepthAt(0)...)
		if (i+1)%10 == 0 || i+1 == len(kept) {
			slog.Info("baking", "frame", i+1, "of", len(kept))
		}
	}

	md := depth.Metadata{
		Width:      bw,
		Height:     bh,
		FrameCount: len(kept),
		FPS:        s.fps / float64(bakeEvery),
		SourceFPS:  s.fps,
	}
	// Round-trip through the loader's own validation before writing.
	if _, err := depth.NewFrameSet(md, payload); err != nil {
		return err
	}
	meta, err := json.MarshalIndent(md, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(bakePayload, payload, 0o644); err != nil {
		return fmt.Errorf("write payload: %w", err)
	}
	if err := os.WriteFile(bakeMeta, append(meta, '\n'), 0o644); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	slog.Info("bake complete",
		"frames", len(kept), "w", bw, "h", bh,
		"meta", bakeMeta, "payload", bakePayload)
	return nil
}

func bakeInputs(s *settings) ([]string, error) {
	if len(s.frames) > 0 {
		return expandFrames(s.frames)
	}
	if s.srcPath != "" {
		return []string{s.srcPath}, nil
	}
	return nil, fmt.Errorf("bake needs source.frames or source.path")
}

// openModel resolves the ONNX model from the configured path, or
// downloads it into the cache directory.
func openModel(ctx context.Context, s *settings) (depth.Model, error) {
	path := s.modelPath
	if path == "" {
		dir := s.cacheDir
		if dir == "" {
			base, err := os.UserCacheDir()
			if err != nil {
				return nil, fmt.Errorf("resolve model cache dir: %w", err)
			}
			dir = filepath.Join(base, "depthfx")
		}
		var lastDecile int64 = -1
		var err error
		path, err = depth.EnsureModel(ctx, dir, s.modelURL, func(got, total int64) {
			if total <= 0 {
				return
			}
			if d := got * 10 / total; d > lastDecile {
				lastDecile = d
				slog.Info("downloading model", "percent", d*10)
			}
		})
		if err != nil {
			return nil, err
		}
	}
	return depth.NewOnnxModel(depth.OnnxOptions{ModelPath: path})
}

func loadFrame(ctx context.Context, path string) (source.Frame, error) {
	img, err := source.NewImage(source.ImageConfig{Path: path})
	if err != nil {
		return source.Frame{}, err
	}
	defer img.Close()
	return img.ReadFrame(ctx)
}

func bakeDims(w, h, maxDim int) (int, int) {
	if maxDim <= 0 || (w <= maxDim && h <= maxDim) {
		return w, h
	}
	scale := float64(maxDim) / float64(max(w, h))
	dw := int(float64(w)*scale + 0.5)
	dh := int(float64(h)*scale + 0.5)
	if dw < 1 {
		dw = 1
	}
	if dh < 1 {
		dh = 1
	}
	return dw, dh
}
