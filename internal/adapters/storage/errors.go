package storage

import "errors"

var (
	ErrNotFound    = errors.New("rating record not found")
	ErrUnknownMode = errors.New("storage: unknown mode")
	ErrCorrupt     = errors.New("rating record is corrupt")
)
