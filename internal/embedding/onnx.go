//go:build cgo
// +build cgo

package embedding

import (
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var ortInit sync.Mutex

// ONNXOptions configures an ONNX engine.
type ONNXOptions struct {
	ModelPath         string
	SharedLibraryPath string
	InputNames        []string // any of input_ids, attention_mask, token_type_ids
	OutputName        string
	MaxTokens         int
	NativeDimensions  int
}

// ONNXEngine runs a sentence-embedding model through ONNX Runtime. It requires
// CGO and the onnxruntime shared library. It reuses one set of tensors, so calls
// must be serialized by the caller.
type ONNXEngine struct {
	session   *ort.AdvancedSession
	tokenizer Tokenizer
	maxTokens int
	inputs    map[string]*ort.Tensor[int64]
	output    *ort.Tensor[float32]
}

// NewONNXEngine loads the model at opts.ModelPath. The runtime environment is
// initialized on first use.
func NewONNXEngine(opts ONNXOptions) (*ONNXEngine, error) {
	if opts.MaxTokens <= 0 || opts.NativeDimensions <= 0 {
		return nil, fmt.Errorf("max tokens and native dimensions must be positive")
	}
	if err := initRuntime(opts.SharedLibraryPath); err != nil {
		return nil, err
	}

	e := &ONNXEngine{
		tokenizer: &SimpleTokenizer{},
		maxTokens: opts.MaxTokens,
		inputs:    make(map[string]*ort.Tensor[int64], len(opts.InputNames)),
	}
	shape := ort.NewShape(1, int64(opts.MaxTokens))
	inputs := make([]ort.ArbitraryTensor, 0, len(opts.InputNames))
	for _, name := range opts.InputNames {
		t, err := ort.NewTensor(shape, make([]int64, opts.MaxTokens))
		if err != nil {
			e.Close()
			return nil, fmt.Errorf("failed to create %s tensor: %w", name, err)
		}
		e.inputs[name] = t
		inputs = append(inputs, t)
	}
	out, err := ort.NewTensor(ort.NewShape(1, int64(opts.NativeDimensions)), make([]float32, opts.NativeDimensions))
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	e.output = out

	session, err := ort.NewAdvancedSession(
		opts.ModelPath,
		opts.InputNames,
		[]string{opts.OutputName},
		inputs,
		[]ort.ArbitraryTensor{out},
		nil,
	)
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}
	e.session = session
	return e, nil
}

func initRuntime(libPath string) error {
	ortInit.Lock()
	defer ortInit.Unlock()
	if ort.IsInitialized() {
		return nil
	}
	if libPath != "" {
		ort.SetSharedLibraryPath(libPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX runtime: %w", err)
	}
	return nil
}

// Tokenize implements Engine.
func (e *ONNXEngine) Tokenize(text string) ([]int64, error) {
	return e.tokenizer.Tokenize(text), nil
}

// RunPooled implements Engine. Tokens beyond the tensor width are dropped.
func (e *ONNXEngine) RunPooled(tokens []int64) ([]float32, error) {
	if e.session == nil {
		return nil, fmt.Errorf("engine is closed")
	}
	if len(tokens) > e.maxTokens {
		tokens = tokens[:e.maxTokens]
	}
	for name, t := range e.inputs {
		data := t.GetData()
		clear(data)
		switch name {
		case "input_ids":
			copy(data, tokens)
		case "attention_mask":
			for i := range tokens {
				data[i] = 1
			}
		}
	}
	if err := e.session.Run(); err != nil {
		return nil, err
	}
	out := e.output.GetData()
	vec := make([]float32, len(out))
	copy(vec, out)
	return vec, nil
}

// Close destroys the session and tensors.
func (e *ONNXEngine) Close() error {
	var err error
	if e.session != nil {
		err = e.session.Destroy()
		e.session = nil
	}
	for name, t := range e.inputs {
		_ = t.Destroy()
		delete(e.inputs, name)
	}
	if e.output != nil {
		_ = e.output.Destroy()
		e.output = nil
	}
	return err
}
