package embedding

import (
	"errors"
	"math"
	"sync"
	"sync/atomic"
)

// MockEngine is a deterministic engine for tests. The pooled vector is derived
// from a hash of the tokens, so the same text always gets the same vector.
type MockEngine struct {
	native    int
	tokenizer SimpleTokenizer
	calls     atomic.Int64
	closed    atomic.Bool

	// Hook, if set, runs inside RunPooled before the vector is produced.
	// A non-nil return is reported as the inference error.
	Hook func(tokens []int64) error
}

// NewMockEngine returns an engine producing vectors of the given native width.
func NewMockEngine(native int) *MockEngine {
	if native <= 0 {
		native = 768
	}
	return &MockEngine{native: native}
}

// Tokenize implements Engine.
func (e *MockEngine) Tokenize(text string) ([]int64, error) {
	return e.tokenizer.Tokenize(text), nil
}

// RunPooled implements Engine.
func (e *MockEngine) RunPooled(tokens []int64) ([]float32, error) {
	if e.closed.Load() {
		return nil, errors.New("engine is closed")
	}
	e.calls.Add(1)
	if e.Hook != nil {
		if err := e.Hook(tokens); err != nil {
			return nil, err
		}
	}
	var h int64
	for _, t := range tokens {
		h = 31*h + t
	}
	vec := make([]float32, e.native)
	for i := range vec {
		vec[i] = float32(math.Sin(float64(h)*float64(i+1)*0.001)) + 0.01
	}
	return vec, nil
}

// Calls returns how many forward passes have run.
func (e *MockEngine) Calls() int64 {
	return e.calls.Load()
}

// Close implements Engine.
func (e *MockEngine) Close() error {
	e.closed.Store(true)
	return nil
}

// LockedEngine serializes access to a single engine.
type LockedEngine struct {
	mu     sync.Mutex
	engine Engine
}

// NewLockedEngine wraps engine in a mutex guard.
func NewLockedEngine(engine Engine) *LockedEngine {
	return &LockedEngine{engine: engine}
}

// WithEngine implements EngineGuard.
func (l *LockedEngine) WithEngine(fn func(Engine) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.engine == nil {
		return errors.New("no engine loaded")
	}
	return fn(l.engine)
}
