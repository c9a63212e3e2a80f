package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  host: "127.0.0.1"
  port: 9000
storage:
  database_path: "test.db"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Storage.DatabasePath == "" {
		t.Error("database_path should be set")
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
	if cfg.Semantic.Enabled {
		t.Error("semantic search should default to disabled")
	}
}

func TestLoad_semanticDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "debug: true\n"))
	if err != nil {
		t.Fatal(err)
	}
	s := cfg.Semantic
	checks := []struct {
		name      string
		got, want int
	}{
		{"dimensions", s.Dimensions, 256},
		{"native_dimensions", s.NativeDimensions, 768},
		{"max_tokens", s.MaxTokens, 512},
		{"max_items_in_memory", s.MaxItemsInMemory, 50000},
		{"batch_size", s.BatchSize, 100},
		{"progress_interval", s.ProgressInterval, 10},
		{"download_chunk_size", s.DownloadChunkSize, 8192},
		{"download_timeout_seconds", s.DownloadTimeoutSeconds, 30},
		{"query_cache_size", s.QueryCacheSize, 1000},
		{"default_limit", s.DefaultLimit, 20},
		{"max_limit", s.MaxLimit, 100},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %d, want %d", c.name, c.got, c.want)
		}
	}
	if s.MinModelSizeBytes != 100*1024*1024 {
		t.Errorf("min_model_size_bytes = %d", s.MinModelSizeBytes)
	}
	if s.MinSimilarityOrDefault() != 0.2 {
		t.Errorf("min_similarity = %f, want 0.2", s.MinSimilarityOrDefault())
	}
	if s.ONNX.OutputName != "sentence_embedding" || len(s.ONNX.InputNames) != 2 {
		t.Errorf("unexpected onnx defaults: %+v", s.ONNX)
	}
	if !cfg.Debug {
		t.Error("debug should be true when set in config")
	}
}

func TestLoad_explicitZeroSimilarity(t *testing.T) {
	cfg, err := Load(writeConfig(t, "semantic:\n  min_similarity: 0\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Semantic.MinSimilarityOrDefault() != 0 {
		t.Errorf("explicit 0 should be kept, got %f", cfg.Semantic.MinSimilarityOrDefault())
	}
}

func TestLoad_expandPathDotSlashRelativeToConfigDir(t *testing.T) {
	path := writeConfig(t, `
storage:
  database_path: "./data/db/history.db"
semantic:
  model_path: "./models/model.onnx"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	dir := filepath.Dir(path)
	if want := filepath.Join(dir, "data", "db", "history.db"); cfg.Storage.DatabasePath != want {
		t.Errorf("database_path = %q, want %q", cfg.Storage.DatabasePath, want)
	}
	if want := filepath.Join(dir, "models", "model.onnx"); cfg.Semantic.ModelPath != want {
		t.Errorf("model_path = %q, want %q", cfg.Semantic.ModelPath, want)
	}
}

func TestLoad_rejectsDimensionsAboveNative(t *testing.T) {
	path := writeConfig(t, `
semantic:
  dimensions: 1024
  native_dimensions: 768
`)
	if _, err := Load(path); !errors.Is(err, ErrInvalid) {
		t.Errorf("err = %v, want ErrInvalid", err)
	}
}

func TestLoad_missingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestSave_roundTrip(t *testing.T) {
	path := writeConfig(t, "semantic:\n  enabled: false\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	cfg.Semantic.Enabled = true
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	again, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !again.Semantic.Enabled {
		t.Error("enabled flag should persist")
	}
}
