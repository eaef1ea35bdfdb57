// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"strings"
	"time"
)

// ParticipantID identifies a player. It is opaque to the engine.
type ParticipantID int64

// Mode is a game ruleset. Every mode has its own rating population.
type Mode string

const (
	ModeOsu    Mode = "osu"
	ModeTaiko  Mode = "taiko"
	ModeFruits Mode = "fruits"
	ModeMania  Mode = "mania"
)

// Modes lists every supported mode in a stable order.
var Modes = []Mode{ModeOsu, ModeTaiko, ModeFruits, ModeMania} //nolint:gochecknoglobals // fixed ruleset list

// ParseMode resolves a mode name. "standard" and "catch" are accepted as
// aliases of osu and fruits.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "osu", "standard", "std":
		return ModeOsu, nil
	case "taiko":
		return ModeTaiko, nil
	case "fruits", "catch", "ctb":
		return ModeFruits, nil
	case "mania":
		return ModeMania, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// Valid reports whether m is one of Modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeOsu, ModeTaiko, ModeFruits, ModeMania:
		return true
	}
	return false
}

func (m Mode) String() string { return string(m) }

// Task is the single contested beatmap of a match.
type Task struct {
	ID     int64         // beatmap id
	Mode   Mode          // ruleset scores are looked up in
	Length time.Duration // expected play duration
}

// Team is an ordered, non-empty list of participants.
type Team []ParticipantID

// ValidateTeams checks that there is at least one team, that no team is
// empty, and that no participant appears twice across teams.
func ValidateTeams(teams []Team) error {
	if len(teams) == 0 {
		return ErrNoTeams
	}
	seen := make(map[ParticipantID]struct{})
	for i, t := range teams {
		if len(t) == 0 {
			return fmt.Errorf("%w: team %d", ErrEmptyTeam, i)
		}
		for _, p := range t {
			if _, ok := seen[p]; ok {
				return fmt.Errorf("%w: %d", ErrDuplicateParticipant, p)
			}
			seen[p] = struct{}{}
		}
	}
	return nil
}

// Participants flattens teams in order.
func Participants(teams []Team) []ParticipantID {
	var out []ParticipantID
	for _, t := range teams {
		out = append(out, t...)
	}
	return out
}

// ScoreMatrix holds one row per team and one score per participant,
// positionally aligned with the teams it was produced for.
type ScoreMatrix [][]float64

// NewScoreMatrix returns a zeroed matrix shaped like teams.
func NewScoreMatrix(teams []Team) ScoreMatrix {
	m := make(ScoreMatrix, len(teams))
	for i, t := range teams {
		m[i] = make([]float64, len(t))
	}
	return m
}

// Total sums every entry.
func (m ScoreMatrix) Total() float64 {
	var total float64
	for _, row := range m {
		for _, s := range row {
			total += s
		}
	}
	return total
}

// TeamTotals returns the row sums.
func (m ScoreMatrix) TeamTotals() []float64 {
	totals := make([]float64, len(m))
	for i, row := range m {
		for _, s := range row {
			totals[i] += s
		}
	}
	return totals
}

// Matches reports whether m has the same shape as teams.
func (m ScoreMatrix) Matches(teams []Team) bool {
	if len(m) != len(teams) {
		return false
	}
	for i := range teams {
		if len(m[i]) != len(teams[i]) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy.
func (m ScoreMatrix) Clone() ScoreMatrix {
	if m == nil {
		return nil
	}
	out := make(ScoreMatrix, len(m))
	for i, row := range m {
		out[i] = append([]float64(nil), row...)
	}
	return out
}

// MatchOutcome is what settlement hands to the rating engine.
type MatchOutcome struct {
	Teams  []Team
	Scores ScoreMatrix
}

// MatchJob is a unit of settlement work.
type MatchJob struct {
	ID        string
	Teams     []Team
	Task      Task
	Submitted time.Time
}

// Keys returns the settlement keys a job reserves, one per participant.
func (j MatchJob) Keys() []string {
	out := make([]string, 0, len(j.Teams))
	for _, p := range Participants(j.Teams) {
		out = append(out, SettlementKey(j.Task, p))
	}
	return out
}

// SettlementKey identifies a (participant, task) pair within a mode.
func SettlementKey(task Task, p ParticipantID) string {
	return fmt.Sprintf("%s:%d:%d", task.Mode, task.ID, p)
}

// RecentScore is one entry of a participant's recent play history.
type RecentScore struct {
	TaskID int64
	Value  float64
	At     time.Time
}

// FirstFor returns the first score in scores played on taskID. Sources
// return scores newest first, so this is the most recent attempt.
func FirstFor(scores []RecentScore, taskID int64) (RecentScore, bool) {
	for _, s := range scores {
		if s.TaskID == taskID {
			return s, true
		}
	}
	return RecentScore{}, false
}
