// Package semantic wires the vector index, embedding model, indexing
// orchestrator and query service into the facade used by the server and CLI.
package semantic

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/hyperjump/clipsearch/internal/config"
	"github.com/hyperjump/clipsearch/internal/embedding"
	"github.com/hyperjump/clipsearch/internal/indexer"
	"github.com/hyperjump/clipsearch/internal/model"
	"github.com/hyperjump/clipsearch/internal/models"
	"github.com/hyperjump/clipsearch/internal/search"
	"github.com/hyperjump/clipsearch/internal/settings"
	"github.com/hyperjump/clipsearch/internal/status"
	"github.com/hyperjump/clipsearch/internal/storage"
	"github.com/hyperjump/clipsearch/internal/vector"
)

// Service is the semantic search facade.
type Service struct {
	cfg        config.SemanticConfig
	store      storage.Storage
	index      *vector.Index
	tracker    *status.Tracker
	model      *model.Manager
	embedder   *embedding.Embedder
	orch       *indexer.Orchestrator
	search     *search.Service
	transition *settings.Transition
	logger     *zap.Logger

	restarts       sync.WaitGroup
	restartPending atomic.Bool

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	closeErr  error
}

// Option configures a Service.
type Option func(*options)

type options struct {
	logger *zap.Logger
	client *http.Client
}

// WithLogger sets the logger shared by every component.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithHTTPClient sets the client used for model downloads.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.client = c }
}

// ONNXLoader returns a model loader that opens the model with ONNX Runtime.
func ONNXLoader(cfg config.SemanticConfig) model.Loader {
	return func(path string) (embedding.Engine, error) {
		return embedding.NewONNXEngine(embedding.ONNXOptions{
			ModelPath:         path,
			SharedLibraryPath: cfg.ONNX.SharedLibraryPath,
			InputNames:        cfg.ONNX.InputNames,
			OutputName:        cfg.ONNX.OutputName,
			MaxTokens:         cfg.MaxTokens,
			NativeDimensions:  cfg.NativeDimensions,
		})
	}
}

// New builds the facade. Call Start before use and Close when done.
func New(cfg config.SemanticConfig, store storage.Storage, loader model.Loader, opts ...Option) (*Service, error) {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	index, err := vector.NewIndex(cfg.Dimensions, cfg.MaxItemsInMemory, cfg.MinSimilarityOrDefault())
	if err != nil {
		return nil, fmt.Errorf("failed to create vector index: %w", err)
	}
	tracker := status.NewTracker()
	manager := model.NewManager(model.Config{
		Path:      cfg.ModelPath,
		URL:       cfg.ModelURL,
		MinSize:   cfg.MinModelSizeBytes,
		ChunkSize: cfg.DownloadChunkSize,
		Timeout:   cfg.DownloadTimeout(),
	}, loader,
		model.WithObserver(tracker),
		model.WithLogger(o.logger.Named("model")),
		model.WithHTTPClient(o.client),
	)
	embedder := embedding.NewEmbedder(manager, cfg.Dimensions, cfg.MaxTokens,
		embedding.WithLogger(o.logger.Named("embedding")))
	orch := indexer.New(store, index, embedder, manager, tracker, indexer.Config{
		BatchSize:        cfg.BatchSize,
		ProgressInterval: cfg.ProgressInterval,
	}, indexer.WithLogger(o.logger.Named("indexer")))
	svc, err := search.NewService(index, embedder, manager, store, orch, tracker, search.Config{
		DefaultLimit: cfg.DefaultLimit,
		MaxLimit:     cfg.MaxLimit,
		CacheSize:    cfg.QueryCacheSize,
	}, search.WithLogger(o.logger.Named("search")))
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		cfg:        cfg,
		store:      store,
		index:      index,
		tracker:    tracker,
		model:      manager,
		embedder:   embedder,
		orch:       orch,
		search:     svc,
		transition: settings.NewTransition(false),
		logger:     o.logger,
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// Start applies the configured enabled flag, counts text items and, when
// enabled, replays durable embeddings and backfills whatever is missing.
func (s *Service) Start(ctx context.Context) error {
	if _, err := s.model.CheckIntegrity(); err != nil {
		s.logger.Warn("model file failed integrity check", zap.Error(err))
	}
	if err := s.refreshTotal(ctx); err != nil {
		return err
	}
	s.logger.Info("semantic search initialized",
		zap.Bool("enabled", s.cfg.Enabled),
		zap.Bool("model_downloaded", s.tracker.ModelDownloaded()))
	return s.SetEnabled(ctx, s.cfg.Enabled)
}

// Status returns the current status, re-checking the model file if it was not
// yet known to be present and refreshing the text item count.
func (s *Service) Status(ctx context.Context) (status.Snapshot, error) {
	if !s.tracker.ModelDownloaded() && !s.model.Downloading() {
		_, _ = s.model.CheckIntegrity()
	}
	if err := s.refreshTotal(ctx); err != nil {
		return status.Snapshot{}, err
	}
	return s.tracker.Snapshot(), nil
}

// ModelState returns the model lifecycle state.
func (s *Service) ModelState() model.State {
	return s.model.State()
}

func (s *Service) refreshTotal(ctx context.Context) error {
	n, err := s.store.CountText(ctx)
	if err != nil {
		return err
	}
	s.tracker.SetTotal(n)
	return nil
}

// StartDownload starts fetching the model in the background. When it finishes
// and the feature is enabled, a bulk backfill starts.
func (s *Service) StartDownload() error {
	return s.model.StartDownload(s.ctx, func(err error) {
		if err != nil {
			return
		}
		if s.tracker.Enabled() {
			s.logger.Info("starting bulk backfill after model download")
			s.startBackfill()
		}
	})
}

// Download fetches the model and waits for it to finish.
func (s *Service) Download(ctx context.Context) error {
	if err := s.model.Download(ctx); err != nil {
		return err
	}
	if s.tracker.Enabled() {
		s.startBackfill()
	}
	return nil
}

// CancelDownload stops an active download.
func (s *Service) CancelDownload() {
	s.model.Cancel()
}

// ManualDownloadInfo returns where to fetch the model and where to put it.
func (s *Service) ManualDownloadInfo() model.ManualDownloadInfo {
	return s.model.ManualDownloadInfo()
}

// Search runs a semantic query.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]*models.SearchResult, error) {
	return s.search.Search(ctx, query, limit)
}

// SetEnabled switches the feature at runtime. Switching it on replays durable
// embeddings into an empty index and starts a backfill when the model is present.
// Switching it off stops a running backfill before its next item and unloads the model.
func (s *Service) SetEnabled(ctx context.Context, enabled bool) error {
	s.tracker.SetEnabled(enabled)
	if !s.transition.Observe(enabled) {
		if !enabled && s.model.Loaded() {
			s.logger.Info("semantic search disabled, unloading model")
			if err := s.model.Unload(); err != nil {
				s.logger.Warn("failed to unload model", zap.Error(err))
			}
		}
		return nil
	}

	s.logger.Info("semantic search enabled")
	if s.index.IsEmpty() {
		if _, err := s.orch.Rebuild(ctx); err != nil && !errors.Is(err, indexer.ErrBackfillRunning) {
			return fmt.Errorf("failed to load stored embeddings: %w", err)
		}
	}
	if ok, _ := s.model.CheckIntegrity(); ok {
		s.startBackfill()
	}
	return nil
}

// HandleSettingsReload applies a reloaded configuration file.
func (s *Service) HandleSettingsReload(cfg *config.Config) {
	if err := s.SetEnabled(s.ctx, cfg.Semantic.Enabled); err != nil {
		s.logger.Error("failed to apply reloaded settings", zap.Error(err))
	}
}

// Rebuild reloads the index from durable embeddings and returns how many were loaded.
func (s *Service) Rebuild(ctx context.Context) (int, error) {
	return s.orch.Rebuild(ctx)
}

// FullRebuild deletes all durable embeddings and re-embeds every text item in
// the background. It returns how many embeddings were deleted.
func (s *Service) FullRebuild(ctx context.Context) (int64, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	s.search.ClearCache()
	return s.orch.FullRebuild(s.ctx)
}

// StartBulkIndexing starts a background backfill of unindexed text items.
func (s *Service) StartBulkIndexing() error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.orch.StartBackfill(s.ctx)
}

// Backfill runs a bulk backfill and waits for it.
func (s *Service) Backfill(ctx context.Context) (indexer.Summary, error) {
	if err := s.ready(); err != nil {
		return indexer.Summary{}, err
	}
	return s.orch.BulkBackfill(ctx)
}

func (s *Service) ready() error {
	if !s.tracker.Enabled() {
		return search.ErrNotEnabled
	}
	if ok, _ := s.model.CheckIntegrity(); !ok {
		return search.ErrModelUnavailable
	}
	return nil
}

func (s *Service) startBackfill() {
	err := s.orch.StartBackfill(s.ctx)
	switch {
	case err == nil:
	case errors.Is(err, indexer.ErrBackfillRunning):
		s.restartAfterRun()
	default:
		s.logger.Error("failed to start backfill", zap.Error(err))
	}
}

// restartAfterRun starts another backfill once the active one returns, so items
// skipped by a run that was stopping still get indexed. At most one restart is queued.
func (s *Service) restartAfterRun() {
	if s.ctx.Err() != nil || !s.restartPending.CompareAndSwap(false, true) {
		return
	}
	s.logger.Info("backfill already running, restart queued")
	s.restarts.Add(1)
	go func() {
		defer s.restarts.Done()
		defer s.restartPending.Store(false)
		s.orch.Wait()
		if s.ctx.Err() != nil || !s.tracker.Enabled() {
			return
		}
		if err := s.orch.StartBackfill(s.ctx); err != nil {
			s.logger.Info("backfill restart skipped", zap.Error(err))
		}
	}()
}

// OnItemSaved indexes a newly captured item. Non-text items are ignored.
func (s *Service) OnItemSaved(ctx context.Context, item *models.Item, created bool) {
	if !item.IsText() {
		return
	}
	if created {
		s.tracker.AddTotal(1)
	}
	s.orch.IndexSingle(ctx, item.ID, item.Content)
}

// OnItemDeleted drops a deleted item from the index and durable storage.
func (s *Service) OnItemDeleted(ctx context.Context, itemID int64) {
	if err := s.orch.Forget(ctx, itemID); err != nil {
		s.logger.Warn("failed to forget deleted item", zap.Int64("item_id", itemID), zap.Error(err))
	}
	if err := s.refreshTotal(ctx); err != nil {
		s.logger.Warn("failed to refresh text count", zap.Error(err))
	}
}

// IndexLen returns the number of vectors in memory.
func (s *Service) IndexLen() int {
	return s.index.Len()
}

// Wait blocks until background backfills, including a queued restart, have finished.
func (s *Service) Wait() {
	s.restarts.Wait()
	s.orch.Wait()
}

// Close stops background work and releases the model. Safe to call more than once.
func (s *Service) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		s.model.Cancel()
		s.restarts.Wait()
		s.orch.Wait()
		s.search.Close()
		s.closeErr = s.model.Unload()
	})
	return s.closeErr
}
