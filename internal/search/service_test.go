package search

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/hyperjump/clipsearch/internal/embedding"
	"github.com/hyperjump/clipsearch/internal/indexer"
	"github.com/hyperjump/clipsearch/internal/models"
	"github.com/hyperjump/clipsearch/internal/status"
	"github.com/hyperjump/clipsearch/internal/storage"
	"github.com/hyperjump/clipsearch/internal/vector"
)

type noopModel struct{ err error }

func (m noopModel) EnsureLoaded() error { return m.err }

type fixture struct {
	svc     *Service
	orch    *indexer.Orchestrator
	store   *storage.SQLiteStorage
	index   *vector.Index
	tracker *status.Tracker
	engine  *embedding.MockEngine
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	idx, err := vector.NewIndex(16, 100, 0.2)
	if err != nil {
		t.Fatal(err)
	}
	engine := embedding.NewMockEngine(32)
	emb := embedding.NewEmbedder(embedding.NewLockedEngine(engine), 16, 512)
	tracker := status.NewTracker()
	tracker.SetEnabled(true)
	tracker.SetModelDownloaded(true)
	orch := indexer.New(store, idx, emb, noopModel{}, tracker, indexer.Config{})
	svc, err := NewService(idx, emb, noopModel{}, store, orch, tracker, cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(svc.Close)
	return &fixture{svc: svc, orch: orch, store: store, index: idx, tracker: tracker, engine: engine}
}

func (f *fixture) add(t *testing.T, content string) *models.Item {
	t.Helper()
	item, _, err := f.store.AddItem(context.Background(), models.TypeText, content)
	if err != nil {
		t.Fatal(err)
	}
	f.orch.IndexSingle(context.Background(), item.ID, item.Content)
	return item
}

func TestService_Preconditions(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	if _, err := f.svc.Search(ctx, "   ", 5); !errors.Is(err, ErrEmptyQuery) {
		t.Errorf("blank query: %v", err)
	}
	f.tracker.SetModelDownloaded(false)
	if _, err := f.svc.Search(ctx, "hello", 5); !errors.Is(err, ErrModelUnavailable) {
		t.Errorf("not downloaded: %v", err)
	}
	f.tracker.SetEnabled(false)
	if _, err := f.svc.Search(ctx, "hello", 5); !errors.Is(err, ErrNotEnabled) {
		t.Errorf("disabled: %v", err)
	}
}

func TestService_ModelLoadFailure(t *testing.T) {
	f := newFixture(t, Config{})
	f.svc.model = noopModel{err: errors.New("gone")}
	if _, err := f.svc.Search(context.Background(), "hello", 5); !errors.Is(err, ErrModelUnavailable) {
		t.Errorf("err = %v, want ErrModelUnavailable", err)
	}
}

func TestService_Search(t *testing.T) {
	f := newFixture(t, Config{})
	var target *models.Item
	for i := 0; i < 5; i++ {
		item := f.add(t, fmt.Sprintf("note %d about project deadlines", i))
		if i == 3 {
			target = item
		}
	}

	results, err := f.svc.Search(context.Background(), target.Content, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) == 0 {
		t.Fatal("expected results")
	}
	if results[0].Item.ID != target.ID {
		t.Errorf("top result = %d, want %d", results[0].Item.ID, target.ID)
	}
	if results[0].Score < 0.999 {
		t.Errorf("identical text should score ~1, got %f", results[0].Score)
	}
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Errorf("results not descending at %d", i)
		}
	}
}

func TestService_PrunesDeletedItems(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	kept := f.add(t, "kept entry")
	gone := f.add(t, "deleted entry")

	// Delete only the history row so the index still references it.
	if _, err := f.store.GetEmbedding(ctx, gone.ID); err != nil {
		t.Fatal(err)
	}
	if err := f.store.DeleteItem(ctx, gone.ID); err != nil {
		t.Fatal(err)
	}
	if !f.index.Contains(gone.ID) {
		t.Fatal("index should still hold the deleted item")
	}

	results, err := f.svc.Search(ctx, "deleted entry", 10)
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range results {
		if r.Item.ID == gone.ID {
			t.Error("deleted item must not be returned")
		}
	}
	if f.index.Contains(gone.ID) {
		t.Error("deleted item should be pruned from the index")
	}
	if !f.index.Contains(kept.ID) {
		t.Error("kept item should remain")
	}
}

func TestService_Limit(t *testing.T) {
	f := newFixture(t, Config{DefaultLimit: 3, MaxLimit: 5})
	tests := []struct{ in, want int }{
		{0, 3}, {-2, 3}, {4, 4}, {5, 5}, {50, 5},
	}
	for _, tt := range tests {
		if got := f.svc.Limit(tt.in); got != tt.want {
			t.Errorf("Limit(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestService_QueryCache(t *testing.T) {
	f := newFixture(t, Config{CacheSize: 10})
	f.add(t, "cached entry")
	ctx := context.Background()

	if _, err := f.svc.Search(ctx, "cached entry", 5); err != nil {
		t.Fatal(err)
	}
	f.svc.cache.Wait()
	calls := f.engine.Calls()
	if _, err := f.svc.Search(ctx, "  cached   entry ", 5); err != nil {
		t.Fatal(err)
	}
	if f.engine.Calls() != calls {
		t.Errorf("repeated query should reuse cached embedding, calls %d -> %d", calls, f.engine.Calls())
	}

	f.svc.ClearCache()
	if _, err := f.svc.Search(ctx, "cached entry", 5); err != nil {
		t.Fatal(err)
	}
	if f.engine.Calls() != calls+1 {
		t.Errorf("cleared cache should embed again, calls = %d", f.engine.Calls())
	}
}
