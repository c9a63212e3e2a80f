// Package models defines core data structures for clipboard items, queries, and search results.
package models

import "time"

// Item types recorded in the history store.
const (
	TypeText  = "text"
	TypeImage = "image"
)

// Item is a clipboard history record.
type Item struct {
	ID        int64     `json:"id" db:"id"`
	Type      string    `json:"type" db:"type"`
	Content   string    `json:"content" db:"content"`
	Hash      string    `json:"hash" db:"hash"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// IsText reports whether the item carries indexable text.
func (i *Item) IsText() bool {
	return i.Type == TypeText
}

// ItemInput is the input for recording a clipboard item.
type ItemInput struct {
	Type    string `json:"type,omitempty"`
	Content string `json:"content"`
}
