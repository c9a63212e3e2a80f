// Package vector provides a bounded in-memory vector index with exact cosine search.
package vector

import (
	"container/list"
	"errors"
	"fmt"
	"sync"
)

// ErrDimensionMismatch reports a vector whose length differs from the index dimension.
// It is a configuration bug, so Upsert and Search panic with it instead of returning it.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Result is a single search hit.
type Result struct {
	ID    int64   `json:"id"`
	Score float32 `json:"score"` // dot product; cosine similarity for normalized vectors
}

// Index is an in-memory embedding index with least-recently-used eviction.
//
// Vectors are stored packed in one slice (slot i occupies data[i*dim:(i+1)*dim])
// parallel to ids, so a search is a single linear pass over contiguous memory.
// positions maps an id to its slot; removal swaps the last slot into the hole.
// recency orders ids from least (front) to most (back) recently written.
type Index struct {
	dimensions int
	maxItems   int
	minScore   float32

	mu        sync.RWMutex
	ids       []int64
	data      []float32
	positions map[int64]int
	recency   *list.List
	elems     map[int64]*list.Element
}

// NewIndex creates an empty index holding at most maxItems vectors of the given dimension.
// Search discards hits scoring below minScore.
func NewIndex(dimensions, maxItems int, minScore float32) (*Index, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	if maxItems <= 0 {
		return nil, fmt.Errorf("max items must be positive")
	}
	return &Index{
		dimensions: dimensions,
		maxItems:   maxItems,
		minScore:   minScore,
		positions:  make(map[int64]int),
		recency:    list.New(),
		elems:      make(map[int64]*list.Element),
	}, nil
}

// Upsert stores vec for id. An existing id is overwritten in place and becomes the
// most recently used; a new id evicts the least recently used entry when the index is full.
// vec is copied. Panics if len(vec) differs from the index dimension.
func (x *Index) Upsert(id int64, vec []float32) {
	x.checkDim(len(vec))
	x.mu.Lock()
	defer x.mu.Unlock()

	if pos, ok := x.positions[id]; ok {
		copy(x.slot(pos), vec)
		x.recency.MoveToBack(x.elems[id])
		return
	}
	for len(x.ids) >= x.maxItems {
		x.evictLocked()
	}
	x.positions[id] = len(x.ids)
	x.ids = append(x.ids, id)
	x.data = append(x.data, vec...)
	x.elems[id] = x.recency.PushBack(id)
}

// Remove deletes id from the index. Returns whether it was present.
func (x *Index) Remove(id int64) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.removeLocked(id)
}

func (x *Index) evictLocked() {
	oldest := x.recency.Front()
	if oldest == nil {
		return
	}
	x.removeLocked(oldest.Value.(int64))
}

func (x *Index) removeLocked(id int64) bool {
	pos, ok := x.positions[id]
	if !ok {
		return false
	}
	last := len(x.ids) - 1
	if pos != last {
		moved := x.ids[last]
		x.ids[pos] = moved
		x.positions[moved] = pos
		copy(x.slot(pos), x.slot(last))
	}
	x.ids = x.ids[:last]
	x.data = x.data[:last*x.dimensions]
	delete(x.positions, id)
	x.recency.Remove(x.elems[id])
	delete(x.elems, id)
	return true
}

// Search returns up to k ids whose dot product with query is at least the index's
// minimum score, ordered by descending score. Ties are in no particular order.
// Panics if len(query) differs from the index dimension.
func (x *Index) Search(query []float32, k int) []Result {
	x.checkDim(len(query))
	x.mu.RLock()
	defer x.mu.RUnlock()

	if k <= 0 || len(x.ids) == 0 {
		return nil
	}
	scores := make([]Result, 0, len(x.ids))
	for i, id := range x.ids {
		score := Dot(query, x.slot(i))
		if score >= x.minScore {
			scores = append(scores, Result{ID: id, Score: score})
		}
	}
	if len(scores) == 0 {
		return nil
	}
	return topK(scores, k)
}

// Clear removes every entry.
func (x *Index) Clear() {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.ids = nil
	x.data = nil
	x.positions = make(map[int64]int)
	x.recency.Init()
	x.elems = make(map[int64]*list.Element)
}

// Len returns the number of indexed vectors.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.ids)
}

// IsEmpty reports whether the index holds no vectors.
func (x *Index) IsEmpty() bool {
	return x.Len() == 0
}

// Contains reports whether id is indexed.
func (x *Index) Contains(id int64) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	_, ok := x.positions[id]
	return ok
}

// Capacity returns the maximum number of vectors kept before eviction.
func (x *Index) Capacity() int {
	return x.maxItems
}

// Dimensions returns the vector length the index accepts.
func (x *Index) Dimensions() int {
	return x.dimensions
}

// MemoryUsage returns an approximation of the bytes held by the index.
func (x *Index) MemoryUsage() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	n := len(x.ids)
	const (
		idBytes      = 8
		floatBytes   = 4
		mapEntry     = 24
		recencyEntry = 48
	)
	return n*idBytes + len(x.data)*floatBytes + 2*n*mapEntry + n*recencyEntry
}

func (x *Index) slot(pos int) []float32 {
	start := pos * x.dimensions
	return x.data[start : start+x.dimensions : start+x.dimensions]
}

func (x *Index) checkDim(n int) {
	if n != x.dimensions {
		panic(fmt.Errorf("%w: got %d, expected %d", ErrDimensionMismatch, n, x.dimensions))
	}
}
