// Package cli provides CLI output helpers for clipsearch.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/hyperjump/clipsearch/internal/models"
	"github.com/hyperjump/clipsearch/internal/status"
	"github.com/hyperjump/clipsearch/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

const previewLen = 200

// WriteSearchResults writes search results to w in the given format.
// Use OutputJSON for parseable output consumable by other apps.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return writeJSON(w, response)
	default:
		writeSearchResultsText(w, response)
		return nil
	}
}

func writeSearchResultsText(w io.Writer, response *models.SearchResponse) {
	fmt.Fprintf(w, "\nFound %d results for %q in %dms\n\n", response.Total, response.Query, response.TookMs)
	for i, result := range response.Results {
		writeOneResult(w, i+1, result)
	}
}

func writeOneResult(w io.Writer, rank int, result *models.SearchResult) {
	fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
	fmt.Fprintf(w, "Rank: %d | Score: %.4f\n", rank, result.Score)
	if result.Item != nil {
		fmt.Fprintf(w, "ID: %d | Copied: %s\n", result.Item.ID, result.Item.CreatedAt.Format("2006-01-02 15:04"))
		fmt.Fprintf(w, "\n%s\n", utils.Truncate(utils.OneLine(result.Item.Content), previewLen))
	}
	fmt.Fprintln(w)
}

// PrintSearchResults prints search results to stdout in text format.
func PrintSearchResults(response *models.SearchResponse) {
	_ = WriteSearchResults(os.Stdout, response, OutputText)
}

// StatusReport is the status output of the CLI.
type StatusReport struct {
	status.Snapshot
	ModelState string `json:"model_state"`
	ModelPath  string `json:"model_path"`
}

// WriteStatus writes a status report to w in the given format.
func WriteStatus(w io.Writer, report StatusReport, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, report)
	}
	fmt.Fprintf(w, "Semantic search: %s\n", onOff(report.Enabled))
	fmt.Fprintf(w, "Model:           %s (%s)\n", report.ModelState, report.ModelPath)
	if report.DownloadProgress != nil {
		fmt.Fprintf(w, "Download:        %.0f%%\n", *report.DownloadProgress*100)
	}
	fmt.Fprintf(w, "Indexed:         %d / %d text items\n", report.IndexedCount, report.TotalTextCount)
	if report.IndexingInProgress {
		fmt.Fprintln(w, "Indexing:        in progress")
	}
	return nil
}

// WriteItem writes a single history item to w in the given format.
func WriteItem(w io.Writer, item *models.Item, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, item)
	}
	fmt.Fprintf(w, "ID: %d | Type: %s | Copied: %s\n", item.ID, item.Type, item.CreatedAt.Format("2006-01-02 15:04"))
	if item.IsText() {
		fmt.Fprintf(w, "%s\n", utils.Truncate(utils.OneLine(item.Content), previewLen))
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func onOff(v bool) string {
	if v {
		return "enabled"
	}
	return "disabled"
}
