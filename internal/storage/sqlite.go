package storage

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/clipsearch/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist. ":memory:" opens a private
// in-memory database.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dbPath != ":memory:" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps an in-memory database shared and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		type TEXT NOT NULL,
		content TEXT NOT NULL,
		hash TEXT NOT NULL UNIQUE,
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_history_created_at ON history(created_at);
	CREATE INDEX IF NOT EXISTS idx_history_type ON history(type);

	CREATE TABLE IF NOT EXISTS embeddings (
		item_id INTEGER PRIMARY KEY,
		embedding BLOB NOT NULL,
		dim INTEGER NOT NULL,
		created_at TIMESTAMP NOT NULL
	);
	`
	_, err := db.Exec(schema)
	return err
}

func contentHash(itemType, content string) string {
	sum := sha256.Sum256([]byte(itemType + "\x00" + content))
	return hex.EncodeToString(sum[:])
}

// AddItem inserts content, or refreshes the timestamp of an identical existing item.
func (s *SQLiteStorage) AddItem(ctx context.Context, itemType, content string) (*models.Item, bool, error) {
	item := &models.Item{
		Type:      itemType,
		Content:   content,
		Hash:      contentHash(itemType, content),
		CreatedAt: time.Now().UTC(),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRowContext(ctx, `SELECT id FROM history WHERE hash = ?`, item.Hash).Scan(&id)
	switch {
	case err == nil:
		if _, err := tx.ExecContext(ctx, `UPDATE history SET created_at = ? WHERE id = ?`, item.CreatedAt, id); err != nil {
			return nil, false, fmt.Errorf("%w: %w", ErrPersistence, err)
		}
		item.ID = id
		if err := tx.Commit(); err != nil {
			return nil, false, fmt.Errorf("%w: %w", ErrPersistence, err)
		}
		return item, false, nil
	case !errors.Is(err, sql.ErrNoRows):
		return nil, false, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO history (type, content, hash, created_at) VALUES (?, ?, ?, ?)`,
		item.Type, item.Content, item.Hash, item.CreatedAt,
	)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if item.ID, err = res.LastInsertId(); err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return item, true, nil
}

// GetItem returns an item by ID, or ErrNotFound.
func (s *SQLiteStorage) GetItem(ctx context.Context, id int64) (*models.Item, error) {
	var item models.Item
	err := s.db.QueryRowContext(ctx,
		`SELECT id, type, content, hash, created_at FROM history WHERE id = ?`, id,
	).Scan(&item.ID, &item.Type, &item.Content, &item.Hash, &item.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: item %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return &item, nil
}

// DeleteItem removes an item and its embedding. Deleting a missing item returns ErrNotFound.
func (s *SQLiteStorage) DeleteItem(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM history WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: item %d", ErrNotFound, id)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM embeddings WHERE item_id = ?`, id); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return nil
}

// ListUnindexedText returns text items without an embedding, newest first.
func (s *SQLiteStorage) ListUnindexedText(ctx context.Context) ([]*models.Item, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT h.id, h.type, h.content, h.hash, h.created_at
		 FROM history h LEFT JOIN embeddings e ON e.item_id = h.id
		 WHERE h.type = ? AND e.item_id IS NULL
		 ORDER BY h.created_at DESC, h.id DESC`,
		models.TypeText,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	defer rows.Close()

	var items []*models.Item
	for rows.Next() {
		var item models.Item
		if err := rows.Scan(&item.ID, &item.Type, &item.Content, &item.Hash, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
		}
		items = append(items, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return items, nil
}

// CountText returns the number of text items.
func (s *SQLiteStorage) CountText(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM history WHERE type = ?`, models.TypeText).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return count, nil
}

// SaveEmbedding stores vec for itemID, replacing any previous embedding.
func (s *SQLiteStorage) SaveEmbedding(ctx context.Context, itemID int64, vec []float32) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO embeddings (item_id, embedding, dim, created_at) VALUES (?, ?, ?, ?)`,
		itemID, EncodeEmbedding(vec), len(vec), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("%w: save embedding %d: %w", ErrPersistence, itemID, err)
	}
	return nil
}

// SaveEmbeddings stores a batch of embeddings in one transaction.
func (s *SQLiteStorage) SaveEmbeddings(ctx context.Context, batch []Embedding) error {
	if len(batch) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO embeddings (item_id, embedding, dim, created_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, e := range batch {
		if _, err := stmt.ExecContext(ctx, e.ItemID, EncodeEmbedding(e.Vector), len(e.Vector), now); err != nil {
			return fmt.Errorf("%w: save embedding %d: %w", ErrPersistence, e.ItemID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return nil
}

// LoadAllEmbeddings returns every stored embedding decoded with its declared dimension.
// Rows whose blob does not match the declared dimension are returned with a nil Vector.
func (s *SQLiteStorage) LoadAllEmbeddings(ctx context.Context) ([]Embedding, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT item_id, embedding, dim FROM embeddings ORDER BY created_at, item_id`)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	defer rows.Close()

	var out []Embedding
	for rows.Next() {
		var e Embedding
		var blob []byte
		if err := rows.Scan(&e.ItemID, &blob, &e.Dim); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
		}
		e.Vector, _ = DecodeEmbedding(blob, e.Dim)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return out, nil
}

// GetEmbedding returns the stored embedding for itemID, or ErrNotFound.
func (s *SQLiteStorage) GetEmbedding(ctx context.Context, itemID int64) (*Embedding, error) {
	e := Embedding{ItemID: itemID}
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT embedding, dim FROM embeddings WHERE item_id = ?`, itemID,
	).Scan(&blob, &e.Dim)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: embedding %d", ErrNotFound, itemID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if e.Vector, err = DecodeEmbedding(blob, e.Dim); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return &e, nil
}

// DeleteEmbedding removes the embedding for itemID. Missing rows are not an error.
func (s *SQLiteStorage) DeleteEmbedding(ctx context.Context, itemID int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM embeddings WHERE item_id = ?`, itemID); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return nil
}

// ClearEmbeddings removes all embeddings and returns how many were deleted.
func (s *SQLiteStorage) ClearEmbeddings(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM embeddings`)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// CountEmbeddings returns the number of stored embeddings.
func (s *SQLiteStorage) CountEmbeddings(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM embeddings`).Scan(&count); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return count, nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
