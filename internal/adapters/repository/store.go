// Package repository holds the in-memory ranked index of ratings.
package repository

import "context"

// Entry is one row of a ranked index. Key orders entries: higher keys rank
// first, equal keys fall back to ID ascending.
type Entry struct {
	Rank  int
	ID    int64
	Key   float64
	Mu    float64
	Sigma float64
}

// Index provides ordered access to rated participants.
type Index interface {
	// Upsert inserts e or replaces the entry with the same ID.
	Upsert(ctx context.Context, e Entry)
	// Remove drops id. It reports whether id was present.
	Remove(ctx context.Context, id int64) bool
	// Get returns the entry for id with its current 1-based rank.
	// Returns ErrNotFound if id is unknown.
	Get(ctx context.Context, id int64) (Entry, error)
	// TopN returns the first n entries in rank order.
	TopN(ctx context.Context, n int) ([]Entry, error)
	Contains(id int64) bool
	Count(ctx context.Context) int
	// Load replaces the whole index with entries.
	Load(ctx context.Context, entries []Entry)
}
