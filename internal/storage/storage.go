// Package storage defines the persistence interfaces for clipboard history and
// item embeddings.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/clipsearch/internal/models"
)

var (
	// ErrNotFound is returned when an item does not exist.
	ErrNotFound = errors.New("not found")
	// ErrPersistence wraps durable read and write failures.
	ErrPersistence = errors.New("persistence error")
)

// Embedding is a durable item embedding. Dim is the dimension the vector was
// stored with.
type Embedding struct {
	ItemID int64
	Dim    int
	Vector []float32
}

// HistoryStore is the read side of the clipboard history used by indexing and search.
type HistoryStore interface {
	GetItem(ctx context.Context, id int64) (*models.Item, error)
	// ListUnindexedText returns text items without a durable embedding, newest first.
	ListUnindexedText(ctx context.Context) ([]*models.Item, error)
	CountText(ctx context.Context) (int64, error)
}

// EmbeddingStore persists one embedding per item with overwrite semantics.
type EmbeddingStore interface {
	SaveEmbedding(ctx context.Context, itemID int64, vec []float32) error
	// SaveEmbeddings writes a batch in a single transaction.
	SaveEmbeddings(ctx context.Context, batch []Embedding) error
	LoadAllEmbeddings(ctx context.Context) ([]Embedding, error)
	DeleteEmbedding(ctx context.Context, itemID int64) error
	// ClearEmbeddings deletes every embedding and returns how many were removed.
	ClearEmbeddings(ctx context.Context) (int64, error)
}

// Storage is the full clipboard store.
type Storage interface {
	HistoryStore
	EmbeddingStore

	// AddItem records content, returning the item and whether it is new.
	// Re-adding identical content refreshes its timestamp.
	AddItem(ctx context.Context, itemType, content string) (*models.Item, bool, error)
	DeleteItem(ctx context.Context, id int64) error
	GetEmbedding(ctx context.Context, itemID int64) (*Embedding, error)
	CountEmbeddings(ctx context.Context) (int64, error)

	Close() error
}
