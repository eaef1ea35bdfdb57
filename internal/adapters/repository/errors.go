package repository

import "errors"

// Sentinel kinds for index errors.
var (
	ErrNotFound     = errors.New("participant not ranked")
	ErrInvalidLimit = errors.New("invalid leaderboard limit")
)
