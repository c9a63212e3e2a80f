//go:build !cgo
// +build !cgo

package embedding

import (
	"errors"
)

// ONNXOptions configures an ONNX engine.
type ONNXOptions struct {
	ModelPath         string
	SharedLibraryPath string
	InputNames        []string
	OutputName        string
	MaxTokens         int
	NativeDimensions  int
}

// ONNXEngine stub type when built without CGO (see onnx.go for real implementation).
type ONNXEngine struct{}

// NewONNXEngine returns an error when built without CGO (ONNX not available).
func NewONNXEngine(_ ONNXOptions) (*ONNXEngine, error) {
	return nil, errors.New("ONNX engine requires CGO; build with CGO_ENABLED=1 and onnxruntime")
}

// Tokenize implements Engine.
func (e *ONNXEngine) Tokenize(string) ([]int64, error) {
	return nil, errors.New("ONNX engine unavailable")
}

// RunPooled implements Engine.
func (e *ONNXEngine) RunPooled([]int64) ([]float32, error) {
	return nil, errors.New("ONNX engine unavailable")
}

// Close implements Engine.
func (e *ONNXEngine) Close() error { return nil }
