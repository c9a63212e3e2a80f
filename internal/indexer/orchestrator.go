// Package indexer keeps the in-memory vector index in step with the clipboard
// history: single-item indexing on capture, bulk backfill, rebuild and pruning.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/clipsearch/internal/status"
	"github.com/hyperjump/clipsearch/internal/storage"
	"github.com/hyperjump/clipsearch/internal/vector"
)

// ErrBackfillRunning is returned when a bulk backfill is already in progress.
var ErrBackfillRunning = errors.New("bulk backfill already running")

var tracer = otel.Tracer("github.com/hyperjump/clipsearch/internal/indexer")

// Store is the persistence the orchestrator needs.
type Store interface {
	storage.HistoryStore
	storage.EmbeddingStore
}

// Embedder computes a normalized embedding for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ModelLoader lazily loads the inference model.
type ModelLoader interface {
	EnsureLoaded() error
}

// Config tunes bulk backfill.
type Config struct {
	BatchSize        int // embeddings per durable write transaction
	ProgressInterval int // items between indexed-count updates
}

// Summary describes a finished bulk backfill run.
type Summary struct {
	RunID     string `json:"run_id"`
	Indexed   int    `json:"indexed"`
	Failed    int    `json:"failed"`
	Persisted int    `json:"persisted"`
	Stopped   bool   `json:"stopped"` // disabled or cancelled before the end
}

// Orchestrator funnels every index mutation from capture, backfill, deletion and rebuild.
type Orchestrator struct {
	store    Store
	index    *vector.Index
	embedder Embedder
	model    ModelLoader
	status   *status.Tracker
	cfg      Config
	logger   *zap.Logger

	wg sync.WaitGroup
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// New creates an orchestrator.
func New(store Store, index *vector.Index, embedder Embedder, model ModelLoader, tracker *status.Tracker, cfg Config, opts ...Option) *Orchestrator {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = 10
	}
	o := &Orchestrator{
		store:    store,
		index:    index,
		embedder: embedder,
		model:    model,
		status:   tracker,
		cfg:      cfg,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// IndexSingle embeds text, persists it for itemID and upserts it into the index.
// It does nothing while the feature is disabled or the model is missing. Failures
// are logged, never returned, so the capture path is never interrupted.
func (o *Orchestrator) IndexSingle(ctx context.Context, itemID int64, text string) {
	if !o.status.Enabled() || !o.status.ModelDownloaded() {
		return
	}
	log := o.logger.With(zap.Int64("item_id", itemID))
	if err := o.model.EnsureLoaded(); err != nil {
		log.Error("failed to load model", zap.Error(err))
		return
	}
	vec, err := o.embedder.Embed(ctx, Preprocess(text))
	if err != nil {
		log.Warn("failed to compute embedding", zap.Error(err))
		return
	}
	if err := o.store.SaveEmbedding(ctx, itemID, vec); err != nil {
		log.Warn("failed to save embedding", zap.Error(err))
		return
	}
	existed := o.index.Contains(itemID)
	o.index.Upsert(itemID, vec)
	if !existed {
		o.status.AddIndexed(1)
	}
	log.Debug("indexed item")
}

// BulkBackfill embeds every text item that has no durable embedding, newest
// first. Each vector is searchable as soon as it is computed; durable writes are
// batched by a separate writer. The run stops before the next item once the
// feature is disabled or ctx is done, flushing what was computed.
func (o *Orchestrator) BulkBackfill(ctx context.Context) (Summary, error) {
	if !o.status.TryStartIndexing() {
		return Summary{}, ErrBackfillRunning
	}
	return o.backfill(ctx)
}

// StartBackfill runs BulkBackfill in the background. It returns ErrBackfillRunning
// without starting anything if a run is active.
func (o *Orchestrator) StartBackfill(ctx context.Context) error {
	if !o.status.TryStartIndexing() {
		return ErrBackfillRunning
	}
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		_, _ = o.backfill(ctx)
	}()
	return nil
}

// Wait blocks until background backfills have finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) backfill(ctx context.Context) (sum Summary, err error) {
	defer o.status.FinishIndexing()

	sum.RunID = uuid.NewString()
	ctx, span := tracer.Start(ctx, "indexer.BulkBackfill")
	defer func() {
		span.SetAttributes(
			attribute.String("run_id", sum.RunID),
			attribute.Int("indexed", sum.Indexed),
			attribute.Int("failed", sum.Failed),
			attribute.Bool("stopped", sum.Stopped),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()
	log := o.logger.With(zap.String("run_id", sum.RunID))

	items, err := o.store.ListUnindexedText(ctx)
	if err != nil {
		log.Error("failed to list unindexed items", zap.Error(err))
		return sum, err
	}
	if len(items) == 0 {
		log.Info("no items to index")
		return sum, nil
	}
	if err := o.model.EnsureLoaded(); err != nil {
		log.Error("failed to load model for backfill", zap.Error(err))
		return sum, err
	}

	start := time.Now()
	log.Info("bulk backfill started", zap.Int("count", len(items)))

	queue := make(chan storage.Embedding, o.cfg.BatchSize)
	g, gctx := errgroup.WithContext(context.WithoutCancel(ctx))
	g.Go(func() error {
		n, err := o.writeBatches(gctx, queue)
		sum.Persisted = n
		return err
	})

	pending := 0
produce:
	for _, item := range items {
		if !o.status.Enabled() {
			log.Info("semantic search disabled, stopping backfill")
			sum.Stopped = true
			break
		}
		if ctx.Err() != nil {
			sum.Stopped = true
			break
		}

		vec, err := o.embedder.Embed(ctx, Preprocess(item.Content))
		if err != nil {
			sum.Failed++
			log.Warn("failed to compute embedding", zap.Int64("item_id", item.ID), zap.Error(err))
			continue
		}
		o.index.Upsert(item.ID, vec)
		sum.Indexed++
		pending++

		select {
		case queue <- storage.Embedding{ItemID: item.ID, Dim: len(vec), Vector: vec}:
		case <-gctx.Done():
			sum.Stopped = true
			break produce
		}
		if pending >= o.cfg.ProgressInterval {
			o.status.AddIndexed(int64(pending))
			pending = 0
		}
	}
	close(queue)
	werr := g.Wait()
	o.status.AddIndexed(int64(pending))

	log.Info("bulk backfill finished",
		zap.Int("indexed", sum.Indexed),
		zap.Int("failed", sum.Failed),
		zap.Int("persisted", sum.Persisted),
		zap.Bool("stopped", sum.Stopped),
		zap.Duration("took", time.Since(start)))
	if werr != nil {
		log.Error("bulk backfill write failed", zap.Error(werr))
		return sum, werr
	}
	return sum, nil
}

// writeBatches drains queue, writing up to BatchSize embeddings per transaction.
func (o *Orchestrator) writeBatches(ctx context.Context, queue <-chan storage.Embedding) (int, error) {
	batch := make([]storage.Embedding, 0, o.cfg.BatchSize)
	written := 0
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := o.store.SaveEmbeddings(ctx, batch); err != nil {
			return fmt.Errorf("save batch of %d: %w", len(batch), err)
		}
		written += len(batch)
		o.logger.Debug("flushed embedding batch", zap.Int("count", len(batch)))
		batch = batch[:0]
		return nil
	}
	for e := range queue {
		batch = append(batch, e)
		if len(batch) >= o.cfg.BatchSize {
			if err := flush(); err != nil {
				return written, err
			}
		}
	}
	return written, flush()
}

// Forget drops itemID from the index and from durable storage.
func (o *Orchestrator) Forget(ctx context.Context, itemID int64) error {
	if o.index.Remove(itemID) {
		o.status.SubIndexed(1)
	}
	if err := o.store.DeleteEmbedding(ctx, itemID); err != nil {
		o.logger.Warn("failed to delete embedding", zap.Int64("item_id", itemID), zap.Error(err))
		return err
	}
	return nil
}

// Rebuild clears the index and reloads it from durable embeddings. Rows stored
// with a different dimension are skipped. It returns the number loaded, or
// ErrBackfillRunning while a backfill holds vectors not yet written.
func (o *Orchestrator) Rebuild(ctx context.Context) (int, error) {
	if !o.status.TryStartIndexing() {
		return 0, ErrBackfillRunning
	}
	defer o.status.FinishIndexing()

	all, err := o.store.LoadAllEmbeddings(ctx)
	if err != nil {
		return 0, err
	}
	o.index.Clear()
	loaded, skipped := 0, 0
	dim := o.index.Dimensions()
	for _, e := range all {
		if e.Dim != dim || len(e.Vector) != dim {
			skipped++
			continue
		}
		o.index.Upsert(e.ItemID, e.Vector)
		loaded++
	}
	if skipped > 0 {
		o.logger.Warn("skipped embeddings with mismatched dimension",
			zap.Int("count", skipped), zap.Int("dimensions", dim))
	}
	o.status.SetIndexed(int64(loaded))
	o.logger.Info("rebuilt index", zap.Int("count", loaded))
	return loaded, nil
}

// FullRebuild deletes every durable embedding, clears the index and starts a
// background backfill. It returns the number of embeddings deleted.
func (o *Orchestrator) FullRebuild(ctx context.Context) (int64, error) {
	if !o.status.TryStartIndexing() {
		return 0, ErrBackfillRunning
	}
	cleared, err := o.store.ClearEmbeddings(ctx)
	if err != nil {
		o.status.FinishIndexing()
		return 0, err
	}
	o.index.Clear()
	o.status.SetIndexed(0)
	o.logger.Info("full rebuild: cleared embeddings", zap.Int64("count", cleared))

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		_, _ = o.backfill(ctx)
	}()
	return cleared, nil
}
