package scoresource

import "errors"

var (
	ErrUpstream        = errors.New("score source request failed")
	ErrNotFound        = errors.New("score source resource not found")
	ErrBeatmapNotFound = errors.New("beatmap not found")
)
