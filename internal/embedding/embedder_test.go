package embedding

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/hyperjump/clipsearch/pkg/utils"
)

type fixedEngine struct {
	tokens []int64
	out    []float32
	err    error
	seen   []int64
}

func (f *fixedEngine) Tokenize(string) ([]int64, error) { return f.tokens, nil }
func (f *fixedEngine) RunPooled(tokens []int64) ([]float32, error) {
	f.seen = tokens
	return f.out, f.err
}
func (f *fixedEngine) Close() error { return nil }

func TestEmbedder_NormalizedAndTruncated(t *testing.T) {
	engine := NewMockEngine(768)
	e := NewEmbedder(NewLockedEngine(engine), 256, 512)

	vec, err := e.Embed(context.Background(), "some clipboard text")
	if err != nil {
		t.Fatal(err)
	}
	if len(vec) != 256 {
		t.Fatalf("len = %d, want 256", len(vec))
	}
	if norm := utils.L2Norm(vec); math.Abs(norm-1) > 1e-3 {
		t.Errorf("norm = %f, want 1", norm)
	}
	if e.Dimensions() != 256 {
		t.Errorf("Dimensions = %d", e.Dimensions())
	}
}

func TestEmbedder_Deterministic(t *testing.T) {
	e := NewEmbedder(NewLockedEngine(NewMockEngine(64)), 32, 512)
	a, err := e.Embed(context.Background(), "same text")
	if err != nil {
		t.Fatal(err)
	}
	b, err := e.Embed(context.Background(), "same text")
	if err != nil {
		t.Fatal(err)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("component %d differs: %f vs %f", i, a[i], b[i])
		}
	}
}

func TestEmbedder_TakesPrefixOfNativeVector(t *testing.T) {
	engine := &fixedEngine{tokens: []int64{1, 2}, out: []float32{3, 4, 100, 100}}
	e := NewEmbedder(NewLockedEngine(engine), 2, 512)
	vec, err := e.Embed(context.Background(), "x")
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(float64(vec[0])-0.6) > 1e-6 || math.Abs(float64(vec[1])-0.8) > 1e-6 {
		t.Errorf("vec = %v, want [0.6 0.8]", vec)
	}
}

func TestEmbedder_TruncatesTokens(t *testing.T) {
	engine := &fixedEngine{tokens: make([]int64, 1000), out: []float32{1, 0}}
	e := NewEmbedder(NewLockedEngine(engine), 2, 512)
	if _, err := e.Embed(context.Background(), "long"); err != nil {
		t.Fatal(err)
	}
	if len(engine.seen) != 512 {
		t.Errorf("engine saw %d tokens, want 512", len(engine.seen))
	}
}

func TestEmbedder_ZeroOutputUnchanged(t *testing.T) {
	engine := &fixedEngine{tokens: []int64{1}, out: []float32{0, 0, 0}}
	e := NewEmbedder(NewLockedEngine(engine), 3, 512)
	vec, err := e.Embed(context.Background(), "x")
	if err != nil {
		t.Fatal(err)
	}
	for _, v := range vec {
		if v != 0 {
			t.Errorf("zero vector changed: %v", vec)
		}
	}
}

func TestEmbedder_Errors(t *testing.T) {
	cases := []struct {
		name   string
		guard  EngineGuard
		ctx    context.Context
		target error
	}{
		{"no guard", nil, context.Background(), ErrInference},
		{"no engine", NewLockedEngine(nil), context.Background(), ErrInference},
		{"empty tokens", NewLockedEngine(&fixedEngine{out: []float32{1}}), context.Background(), ErrEmptyTokens},
		{"forward pass", NewLockedEngine(&fixedEngine{tokens: []int64{1}, err: errors.New("boom")}), context.Background(), ErrInference},
		{"short output", NewLockedEngine(&fixedEngine{tokens: []int64{1}, out: []float32{1}}), context.Background(), ErrInference},
		{"cancelled", NewLockedEngine(NewMockEngine(8)), cancelledContext(), context.Canceled},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := NewEmbedder(tc.guard, 2, 512)
			_, err := e.Embed(tc.ctx, "text")
			if !errors.Is(err, tc.target) {
				t.Errorf("err = %v, want %v", err, tc.target)
			}
			if !errors.Is(err, ErrInference) {
				t.Errorf("err = %v, want it to wrap ErrInference", err)
			}
		})
	}
}

func TestMockEngine_Hook(t *testing.T) {
	engine := NewMockEngine(4)
	engine.Hook = func([]int64) error { return errors.New("hooked") }
	e := NewEmbedder(NewLockedEngine(engine), 4, 512)
	if _, err := e.Embed(context.Background(), "text"); !errors.Is(err, ErrInference) {
		t.Errorf("err = %v", err)
	}
	if engine.Calls() != 1 {
		t.Errorf("Calls = %d, want 1", engine.Calls())
	}
}

func cancelledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}
