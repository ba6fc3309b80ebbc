//go:build cgo

package depth

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"sync"

	"github.com/nfnt/resize"
	ort "github.com/yalue/onnxruntime_go"
)

// ErrCGORequired is returned by builds without cgo; this build has
// it, so the sentinel exists only for callers that match on it.
var ErrCGORequired = errors.New("depth: onnx estimation requires cgo")

// MiDaS-style preprocessing defaults.
var (
	defaultMean = [3]float32{0.485, 0.456, 0.406}
	defaultStd  = [3]float32{0.229, 0.224, 0.225}
)

// OnnxOptions configures the ONNX depth model.
type OnnxOptions struct {
	// ModelPath is the .onnx file on disk.
	ModelPath string
	// LibraryPath points at the onnxruntime shared library. When
	// empty, ONNXRUNTIME_SHARED_LIBRARY_PATH is respected.
	LibraryPath string
	// InputName and OutputName are the tensor names in the model
	// graph. Empty values mean "input" and "output".
	InputName  string
	OutputName string
	// InputSize is the square model input side. Zero means 256.
	InputSize int
	// Mean and Std are per-channel RGB normalization terms; zero
	// values take the MiDaS defaults.
	Mean [3]float32
	Std  [3]float32
}

// OnnxModel runs monocular depth inference through onnxruntime. The
// frame is letterboxed into the square model input; the matching
// region of the output is returned so the caller sees depth at the
// original aspect ratio.
type OnnxModel struct {
	mu      sync.Mutex
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	size    int
	mean    [3]float32
	std     [3]float32
}

var (
	ortInit    sync.Once
	ortInitErr error
)

// The onnxruntime environment is process-global; it is initialized on
// first use and stays up for the life of the process.
func initRuntime(libraryPath string) error {
	ortInit.Do(func() {
		if libraryPath == "" {
			libraryPath = os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH")
		}
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		ortInitErr = ort.InitializeEnvironment()
	})
	return ortInitErr
}

// NewOnnxModel loads the model and binds reusable input and output
// tensors for repeated inference.
func NewOnnxModel(opts OnnxOptions) (*OnnxModel, error) {
	if opts.ModelPath == "" {
		return nil, fmt.Errorf("depth: model path required")
	}
	if err := initRuntime(opts.LibraryPath); err != nil {
		return nil, fmt.Errorf("depth: onnxruntime init: %w", err)
	}

	m := &OnnxModel{size: opts.InputSize, mean: opts.Mean, std: opts.Std}
	if m.size <= 0 {
		m.size = 256
	}
	if m.mean == ([3]float32{}) {
		m.mean = defaultMean
	}
	if m.std == ([3]float32{}) {
		m.std = defaultStd
	}
	inName := opts.InputName
	if inName == "" {
		inName = "input"
	}
	outName := opts.OutputName
	if outName == "" {
		outName = "output"
	}

	side := int64(m.size)
	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, side, side))
	if err != nil {
		return nil, fmt.Errorf("depth: input tensor: %w", err)
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, side, side))
	if err != nil {
		input.Destroy()
		return nil, fmt.Errorf("depth: output tensor: %w", err)
	}
	session, err := ort.NewAdvancedSession(opts.ModelPath,
		[]string{inName}, []string{outName},
		[]ort.Value{input}, []ort.Value{output}, nil)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("depth: load model: %w", err)
	}

	m.input, m.output, m.session = input, output, session
	return m, nil
}

// Estimate letterboxes the frame into the model input, runs the
// session and crops the content region back out of the output.
func (m *OnnxModel) Estimate(ctx context.Context, rgba []byte, w, h int) ([]float32, int, int, error) {
	if w <= 0 || h <= 0 || len(rgba) < w*h*4 {
		return nil, 0, 0, fmt.Errorf("depth: bad frame %dx%d", w, h)
	}
	if err := ctx.Err(); err != nil {
		return nil, 0, 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil, 0, 0, ErrEstimatorClosed
	}

	cw, ch, x0, y0 := m.letterbox(rgba, w, h)
	if err := m.session.Run(); err != nil {
		return nil, 0, 0, fmt.Errorf("depth: inference: %w", err)
	}

	out := m.output.GetData()
	data := make([]float32, cw*ch)
	for y := 0; y < ch; y++ {
		copy(data[y*cw:(y+1)*cw], out[(y0+y)*m.size+x0:][:cw])
	}
	return data, cw, ch, nil
}

// Close releases the session and tensors.
func (m *OnnxModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session != nil {
		m.session.Destroy()
		m.session = nil
	}
	if m.input != nil {
		m.input.Destroy()
		m.input = nil
	}
	if m.output != nil {
		m.output.Destroy()
		m.output = nil
	}
	return nil
}

// letterbox scales the frame into the square model input preserving
// aspect ratio, fills the borders with normalized mid gray and writes
// NCHW float data. It returns the content geometry inside the square.
func (m *OnnxModel) letterbox(rgba []byte, w, h int) (cw, ch, x0, y0 int) {
	side := m.size
	if w >= h {
		cw = side
		ch = h * side / w
	} else {
		ch = side
		cw = w * side / h
	}
	if cw < 1 {
		cw = 1
	}
	if ch < 1 {
		ch = 1
	}
	x0 = (side - cw) / 2
	y0 = (side - ch) / 2

	src := &image.RGBA{Pix: rgba[:w*h*4], Stride: w * 4, Rect: image.Rect(0, 0, w, h)}
	scaled := resize.Resize(uint(cw), uint(ch), src, resize.Bilinear)

	data := m.input.GetData()
	n := side * side
	for c := 0; c < 3; c++ {
		gray := (0.5 - m.mean[c]) / m.std[c]
		cp := data[c*n : (c+1)*n]
		for i := range cp {
			cp[i] = gray
		}
	}
	for y := 0; y < ch; y++ {
		for x := 0; x < cw; x++ {
			r, g, b, _ := scaled.At(x, y).RGBA()
			idx := (y0+y)*side + x0 + x
			data[idx] = (float32(r>>8)/255 - m.mean[0]) / m.std[0]
			data[n+idx] = (float32(g>>8)/255 - m.mean[1]) / m.std[1]
			data[2*n+idx] = (float32(b>>8)/255 - m.mean[2]) / m.std[2]
		}
	}
	return cw, ch, x0, y0
}
