package service

import (
	"time"

	"github.com/okian/vsrank/internal/domain/model"
	"github.com/okian/vsrank/internal/domain/rating"
)

// MatchStatus is where a submitted match is in its lifecycle.
type MatchStatus string

const (
	StatusPending MatchStatus = "pending"
	StatusSettled MatchStatus = "settled"
	StatusVoid    MatchStatus = "void"
	StatusFailed  MatchStatus = "failed"
)

// MatchRequest asks for a match on one task. A zero Length is resolved
// from the beatmap.
type MatchRequest struct {
	Mode   model.Mode
	TaskID int64
	Length time.Duration
	Teams  []model.Team
}

// Match is the retrievable record of a submitted match.
type Match struct {
	ID        string            `json:"match_id"`
	Status    MatchStatus       `json:"status"`
	Mode      model.Mode        `json:"mode"`
	TaskID    int64             `json:"task_id"`
	Length    time.Duration     `json:"-"`
	Deadline  time.Duration     `json:"-"`
	Teams     []model.Team      `json:"teams"`
	Scores    model.ScoreMatrix `json:"scores,omitempty"`
	Before    [][]rating.Rating `json:"before,omitempty"`
	After     [][]rating.Rating `json:"after,omitempty"`
	Error     string            `json:"error,omitempty"`
	Submitted time.Time         `json:"submitted_at"`
	Finished  *time.Time        `json:"finished_at,omitempty"`
}

// SimulateRequest rates a match directly. Nil Scores ranks teams by order.
type SimulateRequest struct {
	Mode   model.Mode
	Teams  []model.Team
	Scores model.ScoreMatrix
	DryRun bool
}

// Prediction holds outcome probabilities for a prospective match.
type Prediction struct {
	Win  []float64 `json:"win"`
	Draw float64   `json:"draw"`
}
