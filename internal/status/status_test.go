package status

import (
	"sync"
	"testing"
)

func TestTracker_TryStartIndexing(t *testing.T) {
	tr := NewTracker()
	if !tr.TryStartIndexing() {
		t.Fatal("first start should succeed")
	}
	if tr.TryStartIndexing() {
		t.Error("second start should fail while running")
	}
	tr.FinishIndexing()
	if !tr.TryStartIndexing() {
		t.Error("start after finish should succeed")
	}
}

func TestTracker_TryStartIndexingConcurrent(t *testing.T) {
	tr := NewTracker()
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if tr.TryStartIndexing() {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Errorf("wins = %d, want exactly 1", wins)
	}
}

func TestTracker_IndexedSaturates(t *testing.T) {
	tr := NewTracker()
	tr.AddIndexed(3)
	tr.SubIndexed(5)
	if got := tr.Snapshot().IndexedCount; got != 0 {
		t.Errorf("IndexedCount = %d, want 0", got)
	}
	tr.SetIndexed(-4)
	if got := tr.Snapshot().IndexedCount; got != 0 {
		t.Errorf("IndexedCount = %d, want 0", got)
	}
}

func TestTracker_SnapshotCopiesProgress(t *testing.T) {
	tr := NewTracker()
	p := 0.25
	tr.SetDownloadProgress(&p)
	p = 0.9
	s := tr.Snapshot()
	if s.DownloadProgress == nil || *s.DownloadProgress != 0.25 {
		t.Fatalf("progress = %v, want 0.25", s.DownloadProgress)
	}
	*s.DownloadProgress = 1
	if *tr.Snapshot().DownloadProgress != 0.25 {
		t.Error("snapshot mutation leaked into tracker")
	}
	tr.SetDownloadProgress(nil)
	if tr.Snapshot().DownloadProgress != nil {
		t.Error("progress should be cleared")
	}
}

func TestTracker_Flags(t *testing.T) {
	tr := NewTracker()
	tr.SetEnabled(true)
	tr.SetModelDownloaded(true)
	tr.SetModelLoaded(true)
	tr.SetTotal(10)
	tr.AddTotal(2)
	s := tr.Snapshot()
	if !s.Enabled || !s.ModelDownloaded || !s.ModelLoaded || s.TotalTextCount != 12 {
		t.Errorf("unexpected snapshot %+v", s)
	}
	if !tr.Enabled() || !tr.ModelDownloaded() {
		t.Error("accessors disagree with snapshot")
	}
}
