package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hyperjump/clipsearch/internal/cli"
	"github.com/hyperjump/clipsearch/internal/models"
)

// apiClient talks to a running clipsearch server.
type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient(base string) *apiClient {
	return &apiClient{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: 60 * time.Second},
	}
}

// apiError is an error response from the server.
type apiError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"error"`
}

func (e *apiError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("server returned %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

func (c *apiClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &apiError{Status: resp.StatusCode}
		if json.Unmarshal(b, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(b))
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *apiClient) Search(ctx context.Context, query models.SearchQuery) (*models.SearchResponse, error) {
	var resp models.SearchResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/semantic/search", query, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *apiClient) Status(ctx context.Context) (*cli.StatusReport, error) {
	var report cli.StatusReport
	if err := c.do(ctx, http.MethodGet, "/api/v1/semantic/status", nil, &report); err != nil {
		return nil, err
	}
	if info, err := c.ManualDownloadInfo(ctx); err == nil {
		report.ModelPath = info["target_path"]
	}
	return &report, nil
}

func (c *apiClient) AddItem(ctx context.Context, input models.ItemInput) (*models.Item, error) {
	var item models.Item
	if err := c.do(ctx, http.MethodPost, "/api/v1/items", input, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

func (c *apiClient) DeleteItem(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/items/"+strconv.FormatInt(id, 10), nil, nil)
}

func (c *apiClient) StartDownload(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/v1/semantic/download", nil, nil)
}

func (c *apiClient) ManualDownloadInfo(ctx context.Context) (map[string]string, error) {
	var info map[string]string
	if err := c.do(ctx, http.MethodGet, "/api/v1/semantic/download/manual", nil, &info); err != nil {
		return nil, err
	}
	return info, nil
}

// Rebuild asks the server to reload the index, or with full to re-embed
// everything, and returns a human-readable summary.
func (c *apiClient) Rebuild(ctx context.Context, full bool) (string, error) {
	if full {
		var out struct {
			Cleared int64 `json:"cleared"`
		}
		if err := c.do(ctx, http.MethodPost, "/api/v1/semantic/rebuild/full", nil, &out); err != nil {
			return "", err
		}
		return fmt.Sprintf("Cleared %d embeddings; re-indexing in the background", out.Cleared), nil
	}
	var out struct {
		Loaded int `json:"loaded"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/semantic/rebuild", nil, &out); err != nil {
		return "", err
	}
	return fmt.Sprintf("Loaded %d embeddings", out.Loaded), nil
}

func (c *apiClient) SetEnabled(ctx context.Context, enabled bool) error {
	return c.do(ctx, http.MethodPut, "/api/v1/semantic/enabled", map[string]bool{"enabled": enabled}, nil)
}
