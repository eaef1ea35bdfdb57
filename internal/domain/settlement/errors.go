package settlement

import "errors"

var (
	// ErrMatchVoid means nobody scored by the deadline.
	ErrMatchVoid    = errors.New("match void: no scores found for the task")
	ErrInvalidMatch = errors.New("invalid match")
)
