// Package types contains common types used across the application
package types

// Entry represents a leaderboard entry
type Entry struct {
	Rank          int     `json:"rank"`
	ParticipantID int64   `json:"participant_id"`
	Mu            float64 `json:"mu"`
	Sigma         float64 `json:"sigma"`
	Ordinal       float64 `json:"ordinal"`
}
