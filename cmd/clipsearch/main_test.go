package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/clipsearch/internal/cli"
	"github.com/hyperjump/clipsearch/internal/models"
)

func TestBuildSearchQuery(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected string
	}{
		{"single word", []string{"wifi"}, "wifi"},
		{"multiple words", []string{"wifi", "password"}, "wifi password"},
		{"single quoted phrase", []string{"wifi password"}, "wifi password"},
		{"surrounding space trimmed", []string{"  wifi ", "password  "}, "wifi  password"},
		{"empty", []string{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := buildSearchQuery(tt.args); got != tt.expected {
				t.Errorf("buildSearchQuery() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestLoadConfig_prefersCwdConfigWhenDefaultPath(t *testing.T) {
	dir := t.TempDir()
	content := "debug: true\nserver:\n  port: 9191\n"
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	oldWd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(oldWd) })

	cfg, path, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if filepath.Base(path) != "config.yaml" || filepath.Dir(path) == filepath.Dir(defaultConfigPath) {
		t.Errorf("resolved path = %q, want the cwd config", path)
	}
	if !cfg.Debug || cfg.Server.Port != 9191 {
		t.Errorf("cfg = debug %t port %d", cfg.Debug, cfg.Server.Port)
	}
}

func TestLoadConfig_usesExplicitPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	if err := os.WriteFile(path, []byte("semantic:\n  enabled: true\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, resolved, err := loadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != path || !cfg.Semantic.Enabled {
		t.Errorf("resolved=%q enabled=%t", resolved, cfg.Semantic.Enabled)
	}
}

func TestGlobalFlagsFormat(t *testing.T) {
	for in, want := range map[string]cli.OutputFormat{"": cli.OutputText, "text": cli.OutputText, "json": cli.OutputJSON} {
		g := &globalFlags{output: in}
		got, err := g.format()
		if err != nil || got != want {
			t.Errorf("format(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := (&globalFlags{output: "yaml"}).format(); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestAPIClient(t *testing.T) {
	var gotQuery models.SearchQuery
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/semantic/search", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotQuery)
		_ = json.NewEncoder(w).Encode(models.SearchResponse{
			Query:   gotQuery.Query,
			Total:   1,
			Results: []*models.SearchResult{{Item: &models.Item{ID: 4, Content: "hit"}, Score: 0.8}},
		})
	})
	mux.HandleFunc("GET /api/v1/semantic/status", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"enabled":true,"indexed_count":3,"total_text_count":5,"model_state":"loaded"}`))
	})
	mux.HandleFunc("GET /api/v1/semantic/download/manual", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"url":"https://example.com/m.onnx","target_path":"/data/m.onnx","filename":"m.onnx"}`))
	})
	mux.HandleFunc("POST /api/v1/semantic/download", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"model already downloaded","code":"already_downloaded"}`))
	})
	mux.HandleFunc("POST /api/v1/semantic/rebuild", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"loaded":7}`))
	})
	mux.HandleFunc("DELETE /api/v1/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "9" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"not found","code":"not_found"}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"deleted"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ctx := context.Background()
	c := newAPIClient(srv.URL + "/")

	resp, err := c.Search(ctx, models.SearchQuery{Query: "find me", Limit: 3})
	if err != nil {
		t.Fatal(err)
	}
	if gotQuery.Limit != 3 || resp.Total != 1 || resp.Results[0].Item.ID != 4 {
		t.Errorf("search: sent %+v, got %+v", gotQuery, resp)
	}

	report, err := c.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if report.ModelState != "loaded" || report.IndexedCount != 3 || report.ModelPath != "/data/m.onnx" {
		t.Errorf("status = %+v", report)
	}

	err = c.StartDownload(ctx)
	var apiErr *apiError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusConflict || apiErr.Code != "already_downloaded" {
		t.Errorf("StartDownload() error = %v", err)
	}

	msg, err := c.Rebuild(ctx, false)
	if err != nil || msg != "Loaded 7 embeddings" {
		t.Errorf("Rebuild() = %q, %v", msg, err)
	}

	if err := c.DeleteItem(ctx, 9); err != nil {
		t.Errorf("DeleteItem(9) = %v", err)
	}
	if err := c.DeleteItem(ctx, 10); !errors.As(err, &apiErr) || apiErr.Status != http.StatusNotFound {
		t.Errorf("DeleteItem(10) = %v", err)
	}
}

func TestLocalCommands(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := "storage:\n  database_path: ./history.db\nsemantic:\n  model_path: ./model.onnx\n"
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	run := func(args ...string) (string, error) {
		root := newRootCmd()
		var out bytes.Buffer
		root.SetOut(&out)
		root.SetErr(&out)
		root.SetArgs(append([]string{"--config", configPath, "--server", ""}, args...))
		err := root.Execute()
		return out.String(), err
	}

	out, err := run("add", "first", "clip")
	if err != nil {
		t.Fatalf("add: %v\n%s", err, out)
	}
	if !strings.Contains(out, "first clip") {
		t.Errorf("add output = %q", out)
	}

	out, err = run("status", "-o", "json")
	if err != nil {
		t.Fatalf("status: %v\n%s", err, out)
	}
	var report cli.StatusReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("status json: %v\n%s", err, out)
	}
	if report.Enabled || report.TotalTextCount != 1 || report.ModelState != "not_downloaded" {
		t.Errorf("status = %+v", report)
	}

	if _, err := run("search", "first"); err == nil {
		t.Error("search while disabled should fail")
	}

	if out, err := run("enable"); err != nil || !strings.Contains(out, "enabled") {
		t.Fatalf("enable: %v %q", err, out)
	}
	cfg, _, err := loadConfig(configPath)
	if err != nil || !cfg.Semantic.Enabled {
		t.Errorf("enable not persisted: %v", err)
	}

	if _, err := run("delete", "abc"); err == nil {
		t.Error("delete with bad id should fail")
	}
	if out, err := run("delete", "1"); err != nil || !strings.Contains(out, "Item deleted: 1") {
		t.Errorf("delete: %v %q", err, out)
	}

	if out, err := run("version"); err != nil || !strings.Contains(out, "clipsearch version") {
		t.Errorf("version: %v %q", err, out)
	}
}
