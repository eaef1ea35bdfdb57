// Package storage persists ratings. Each mode has its own statically named
// table (or hash); a row whose mu or sigma is NULL counts as uninitialized.
package storage

import (
	"context"

	"github.com/okian/vsrank/internal/domain/model"
)

// Record is one persisted rating.
type Record struct {
	ParticipantID model.ParticipantID
	Mu            float64
	Sigma         float64
}

// Store is the rating persistence contract.
type Store interface {
	// Get returns ErrNotFound when the row is missing or cleared.
	Get(ctx context.Context, mode model.Mode, id model.ParticipantID) (Record, error)
	Upsert(ctx context.Context, mode model.Mode, rec Record) error
	// UpsertMany writes all records or none.
	UpsertMany(ctx context.Context, mode model.Mode, recs []Record) error
	// Clear sets mu and sigma to NULL. Returns ErrNotFound for a missing row.
	Clear(ctx context.Context, mode model.Mode, id model.ParticipantID) error
	// Scan returns every initialized row of mode.
	Scan(ctx context.Context, mode model.Mode) ([]Record, error)
	Close() error
}

// TableName is the storage name used for mode's ratings.
func TableName(mode model.Mode) string {
	return "ratings_" + string(mode)
}
