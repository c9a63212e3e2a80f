// Package status holds the shared semantic search status record.
package status

import "sync"

// Snapshot is a point-in-time copy of the status record.
type Snapshot struct {
	Enabled            bool     `json:"enabled"`
	ModelDownloaded    bool     `json:"model_downloaded"`
	ModelLoaded        bool     `json:"model_loaded"`
	DownloadProgress   *float64 `json:"download_progress,omitempty"`
	IndexedCount       int64    `json:"indexed_count"`
	TotalTextCount     int64    `json:"total_text_count"`
	IndexingInProgress bool     `json:"indexing_in_progress"`
}

// Tracker guards the status record with its own lock, independent of the
// vector index lock.
type Tracker struct {
	mu sync.RWMutex
	s  Snapshot
}

// NewTracker returns a tracker with every field zeroed.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Snapshot returns a copy of the current status.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s := t.s
	if s.DownloadProgress != nil {
		p := *s.DownloadProgress
		s.DownloadProgress = &p
	}
	return s
}

// Enabled reports whether semantic search is switched on.
func (t *Tracker) Enabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.s.Enabled
}

// ModelDownloaded reports whether a valid model file is on disk.
func (t *Tracker) ModelDownloaded() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.s.ModelDownloaded
}

// SetEnabled records the feature switch.
func (t *Tracker) SetEnabled(v bool) {
	t.mu.Lock()
	t.s.Enabled = v
	t.mu.Unlock()
}

// SetModelDownloaded implements model.Observer.
func (t *Tracker) SetModelDownloaded(v bool) {
	t.mu.Lock()
	t.s.ModelDownloaded = v
	t.mu.Unlock()
}

// SetModelLoaded implements model.Observer.
func (t *Tracker) SetModelLoaded(v bool) {
	t.mu.Lock()
	t.s.ModelLoaded = v
	t.mu.Unlock()
}

// SetDownloadProgress implements model.Observer. nil means no download is active.
func (t *Tracker) SetDownloadProgress(p *float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p == nil {
		t.s.DownloadProgress = nil
		return
	}
	v := *p
	t.s.DownloadProgress = &v
}

// SetIndexed overwrites the indexed count.
func (t *Tracker) SetIndexed(n int64) {
	t.mu.Lock()
	t.s.IndexedCount = max(n, 0)
	t.mu.Unlock()
}

// AddIndexed increments the indexed count.
func (t *Tracker) AddIndexed(n int64) {
	t.mu.Lock()
	t.s.IndexedCount += n
	t.mu.Unlock()
}

// SubIndexed decrements the indexed count, saturating at zero.
func (t *Tracker) SubIndexed(n int64) {
	t.mu.Lock()
	t.s.IndexedCount = max(t.s.IndexedCount-n, 0)
	t.mu.Unlock()
}

// SetTotal sets the number of text items in the history.
func (t *Tracker) SetTotal(n int64) {
	t.mu.Lock()
	t.s.TotalTextCount = n
	t.mu.Unlock()
}

// AddTotal increments the text item count.
func (t *Tracker) AddTotal(n int64) {
	t.mu.Lock()
	t.s.TotalTextCount = max(t.s.TotalTextCount+n, 0)
	t.mu.Unlock()
}

// TryStartIndexing sets the indexing flag if it was clear and reports whether it did.
func (t *Tracker) TryStartIndexing() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.s.IndexingInProgress {
		return false
	}
	t.s.IndexingInProgress = true
	return true
}

// FinishIndexing clears the indexing flag.
func (t *Tracker) FinishIndexing() {
	t.mu.Lock()
	t.s.IndexingInProgress = false
	t.mu.Unlock()
}
