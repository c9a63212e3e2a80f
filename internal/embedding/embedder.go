// Package embedding turns text into normalized, fixed-dimension vectors using a
// local inference engine.
package embedding

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyperjump/clipsearch/pkg/utils"
	"go.uber.org/zap"
)

var (
	// ErrInference is returned when tokenization or the forward pass fails,
	// or when no engine is available.
	ErrInference = errors.New("inference failed")
	// ErrEmptyTokens is returned when tokenization yields no tokens.
	ErrEmptyTokens = errors.New("tokenization produced no tokens")
)

// Engine is a loaded local inference model.
type Engine interface {
	// Tokenize converts text to the model's token ids.
	Tokenize(text string) ([]int64, error)
	// RunPooled runs one forward pass and returns the pooled sequence vector at
	// the model's native width.
	RunPooled(tokens []int64) ([]float32, error)
	Close() error
}

// EngineGuard grants exclusive access to a loaded engine.
type EngineGuard interface {
	WithEngine(fn func(Engine) error) error
}

// Embedder produces L2-normalized embeddings of a fixed dimension from an engine
// whose native output may be wider.
type Embedder struct {
	guard      EngineGuard
	dimensions int
	maxTokens  int
	logger     *zap.Logger
}

// Option configures an Embedder.
type Option func(*Embedder)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Embedder) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEmbedder returns an Embedder that truncates token sequences to maxTokens
// and model output to the first dimensions components.
func NewEmbedder(guard EngineGuard, dimensions, maxTokens int, opts ...Option) *Embedder {
	e := &Embedder{
		guard:      guard,
		dimensions: dimensions,
		maxTokens:  maxTokens,
		logger:     zap.NewNop(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Embed returns the embedding of text.
//
// Token sequences longer than the configured maximum are truncated, so only the
// leading part of a long text contributes to its vector.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInference, err)
	}
	if e.guard == nil {
		return nil, fmt.Errorf("%w: no engine", ErrInference)
	}

	var vec []float32
	err := e.guard.WithEngine(func(engine Engine) error {
		tokens, err := engine.Tokenize(text)
		if err != nil {
			return fmt.Errorf("%w: tokenize: %w", ErrInference, err)
		}
		if len(tokens) == 0 {
			return fmt.Errorf("%w: %w", ErrInference, ErrEmptyTokens)
		}
		if e.maxTokens > 0 && len(tokens) > e.maxTokens {
			e.logger.Debug("truncating input",
				zap.Int("tokens", len(tokens)),
				zap.Int("max_tokens", e.maxTokens))
			tokens = tokens[:e.maxTokens]
		}

		out, err := engine.RunPooled(tokens)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInference, err)
		}
		if len(out) < e.dimensions {
			return fmt.Errorf("%w: model output has %d components, need %d",
				ErrInference, len(out), e.dimensions)
		}
		vec = make([]float32, e.dimensions)
		copy(vec, out[:e.dimensions])
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrInference) {
			err = fmt.Errorf("%w: %w", ErrInference, err)
		}
		return nil, err
	}

	utils.NormalizeL2(vec)
	return vec, nil
}

// Dimensions returns the embedding dimension.
func (e *Embedder) Dimensions() int {
	return e.dimensions
}
