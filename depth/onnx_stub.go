//go:build !cgo

package depth

import (
	"context"
	"errors"
)

// ErrCGORequired is returned when ONNX estimation is attempted in a
// build without cgo; onnxruntime needs it.
var ErrCGORequired = errors.New("depth: onnx estimation requires cgo")

// OnnxOptions configures the ONNX depth model.
type OnnxOptions struct {
	ModelPath   string
	LibraryPath string
	InputName   string
	OutputName  string
	InputSize   int
	Mean        [3]float32
	Std         [3]float32
}

// OnnxModel is unavailable without cgo.
type OnnxModel struct{}

// NewOnnxModel reports that cgo support is missing.
func NewOnnxModel(OnnxOptions) (*OnnxModel, error) {
	return nil, ErrCGORequired
}

// Estimate reports that cgo support is missing.
func (*OnnxModel) Estimate(context.Context, []byte, int, int) ([]float32, int, int, error) {
	return nil, 0, 0, ErrCGORequired
}

// Close is a no-op.
func (*OnnxModel) Close() error { return nil }
