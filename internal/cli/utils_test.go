package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/clipsearch/internal/models"
	"github.com/hyperjump/clipsearch/internal/status"
)

func sampleResponse() *models.SearchResponse {
	return &models.SearchResponse{
		Query:  "test query",
		TookMs: 42,
		Total:  2,
		Results: []*models.SearchResult{
			{Score: 0.91, Item: &models.Item{ID: 7, Type: models.TypeText, Content: "first hit\nsecond line", CreatedAt: time.Now()}},
			{Score: 0.45, Item: &models.Item{ID: 3, Type: models.TypeText, Content: strings.Repeat("long ", 100), CreatedAt: time.Now()}},
		},
	}
}

func TestWriteSearchResults_JSON(t *testing.T) {
	response := sampleResponse()
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, response, OutputJSON); err != nil {
		t.Fatalf("WriteSearchResults(json): %v", err)
	}
	var decoded models.SearchResponse
	if err := json.NewDecoder(&buf).Decode(&decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded.Query != response.Query || decoded.TookMs != response.TookMs || decoded.Total != 2 {
		t.Errorf("decoded = %+v", decoded)
	}
	if len(decoded.Results) != 2 || decoded.Results[0].Item.ID != 7 {
		t.Errorf("decoded results: %+v", decoded.Results)
	}
}

func TestWriteSearchResults_JSON_empty(t *testing.T) {
	response := &models.SearchResponse{Query: "q"}
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, response, OutputJSON); err != nil {
		t.Fatalf("WriteSearchResults(json): %v", err)
	}
	var decoded models.SearchResponse
	if err := json.NewDecoder(&buf).Decode(&decoded); err != nil {
		t.Fatalf("empty response JSON decode: %v", err)
	}
	if decoded.Total != 0 || len(decoded.Results) != 0 {
		t.Errorf("expected empty, got %+v", decoded)
	}
}

func TestWriteSearchResults_text(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, sampleResponse(), OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"Found 2 results", "Rank: 1 | Score: 0.9100", "ID: 7", "first hit second line", "..."} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestWriteSearchResults_unknownFormatTreatedAsText(t *testing.T) {
	response := &models.SearchResponse{Query: "x"}
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, response, OutputFormat("unknown")); err != nil {
		t.Fatalf("WriteSearchResults(unknown): %v", err)
	}
	if !strings.Contains(buf.String(), "Found") {
		t.Errorf("unknown format should fall back to text; got %q", buf.String())
	}
}

func TestWriteStatus(t *testing.T) {
	progress := 0.5
	report := StatusReport{
		Snapshot: status.Snapshot{
			Enabled:            true,
			ModelDownloaded:    false,
			DownloadProgress:   &progress,
			IndexedCount:       3,
			TotalTextCount:     10,
			IndexingInProgress: true,
		},
		ModelState: "downloading",
		ModelPath:  "/tmp/model.onnx",
	}

	var text bytes.Buffer
	if err := WriteStatus(&text, report, OutputText); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"enabled", "downloading", "50%", "3 / 10", "in progress"} {
		if !strings.Contains(text.String(), want) {
			t.Errorf("expected %q in:\n%s", want, text.String())
		}
	}

	var js bytes.Buffer
	if err := WriteStatus(&js, report, OutputJSON); err != nil {
		t.Fatal(err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(js.Bytes(), &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded["model_state"] != "downloading" || decoded["indexed_count"] != float64(3) || decoded["download_progress"] != 0.5 {
		t.Errorf("decoded = %v", decoded)
	}
}

func TestWriteItem(t *testing.T) {
	var buf bytes.Buffer
	item := &models.Item{ID: 12, Type: models.TypeImage, Content: "iVBORw0KGgo="}
	if err := WriteItem(&buf, item, OutputText); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "ID: 12 | Type: image") || strings.Contains(buf.String(), "iVBOR") {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func TestPrintSearchResults(t *testing.T) {
	old := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	os.Stdout = w
	PrintSearchResults(sampleResponse())
	_ = w.Close()
	os.Stdout = old

	out, _ := io.ReadAll(r)
	if !strings.Contains(string(out), "Found 2 results") {
		t.Errorf("stdout: %q", out)
	}
}
