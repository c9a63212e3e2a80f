// Package search answers natural-language queries against the vector index.
package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/hyperjump/clipsearch/internal/indexer"
	"github.com/hyperjump/clipsearch/internal/models"
	"github.com/hyperjump/clipsearch/internal/status"
	"github.com/hyperjump/clipsearch/internal/storage"
	"github.com/hyperjump/clipsearch/internal/vector"
)

var (
	ErrNotEnabled       = errors.New("semantic search is not enabled")
	ErrModelUnavailable = errors.New("model not downloaded")
	ErrEmptyQuery       = errors.New("query cannot be empty")
)

var tracer = otel.Tracer("github.com/hyperjump/clipsearch/internal/search")

// ItemFetcher resolves item ids to history records.
type ItemFetcher interface {
	GetItem(ctx context.Context, id int64) (*models.Item, error)
}

// Pruner drops an item that no longer exists from the index.
type Pruner interface {
	Forget(ctx context.Context, itemID int64) error
}

// Config holds query limits and the query-embedding cache size.
type Config struct {
	DefaultLimit int
	MaxLimit     int
	CacheSize    int // 0 disables the cache
}

// Service runs semantic queries.
type Service struct {
	index    *vector.Index
	embedder indexer.Embedder
	model    indexer.ModelLoader
	items    ItemFetcher
	pruner   Pruner
	status   *status.Tracker
	cfg      Config
	cache    *ristretto.Cache[string, []float32]
	logger   *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService creates a query service.
func NewService(
	index *vector.Index,
	embedder indexer.Embedder,
	model indexer.ModelLoader,
	items ItemFetcher,
	pruner Pruner,
	tracker *status.Tracker,
	cfg Config,
	opts ...Option,
) (*Service, error) {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 20
	}
	if cfg.MaxLimit < cfg.DefaultLimit {
		cfg.MaxLimit = max(cfg.DefaultLimit, 100)
	}
	s := &Service{
		index:    index,
		embedder: embedder,
		model:    model,
		items:    items,
		pruner:   pruner,
		status:   tracker,
		cfg:      cfg,
		logger:   zap.NewNop(),
	}
	for _, o := range opts {
		o(s)
	}
	if cfg.CacheSize > 0 {
		cache, err := ristretto.NewCache(&ristretto.Config[string, []float32]{
			NumCounters:        int64(cfg.CacheSize) * 10,
			MaxCost:            int64(cfg.CacheSize),
			BufferItems:        64,
			IgnoreInternalCost: true, // cost is counted in entries
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create query cache: %w", err)
		}
		s.cache = cache
	}
	return s, nil
}

// Limit applies the default and maximum to a requested result count.
func (s *Service) Limit(limit int) int {
	if limit <= 0 {
		return s.cfg.DefaultLimit
	}
	return min(limit, s.cfg.MaxLimit)
}

// Search embeds query and returns up to limit matching items, best first.
// Hits whose item has been deleted are dropped and pruned from the index.
func (s *Service) Search(ctx context.Context, query string, limit int) (results []*models.SearchResult, err error) {
	query = indexer.Preprocess(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	snap := s.status.Snapshot()
	if !snap.Enabled {
		return nil, ErrNotEnabled
	}
	if !snap.ModelDownloaded {
		return nil, ErrModelUnavailable
	}
	limit = s.Limit(limit)

	ctx, span := tracer.Start(ctx, "search.Search",
		trace.WithAttributes(attribute.Int("query_length", len(query))))
	defer func() {
		span.SetAttributes(attribute.Int("limit", limit), attribute.Int("results", len(results)))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	start := time.Now()
	vec, err := s.queryVector(ctx, query)
	if err != nil {
		return nil, err
	}
	hits := s.index.Search(vec, limit)

	results = make([]*models.SearchResult, 0, len(hits))
	for _, hit := range hits {
		item, err := s.items.GetItem(ctx, hit.ID)
		if errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("indexed item no longer exists, pruning", zap.Int64("item_id", hit.ID))
			if s.pruner != nil {
				_ = s.pruner.Forget(ctx, hit.ID)
			} else {
				s.index.Remove(hit.ID)
			}
			continue
		}
		if err != nil {
			s.logger.Error("failed to fetch item", zap.Int64("item_id", hit.ID), zap.Error(err))
			continue
		}
		results = append(results, &models.SearchResult{Item: item, Score: hit.Score})
	}
	s.logger.Debug("search finished",
		zap.Int("count", len(results)),
		zap.Duration("took", time.Since(start)))
	return results, nil
}

func (s *Service) queryVector(ctx context.Context, query string) ([]float32, error) {
	if s.cache != nil {
		if vec, ok := s.cache.Get(query); ok {
			return vec, nil
		}
	}
	if err := s.model.EnsureLoaded(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModelUnavailable, err)
	}
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Set(query, vec, 1)
	}
	return vec, nil
}

// ClearCache drops all cached query embeddings.
func (s *Service) ClearCache() {
	if s.cache != nil {
		s.cache.Clear()
	}
}

// Close releases the query cache.
func (s *Service) Close() {
	if s.cache != nil {
		s.cache.Close()
	}
}
