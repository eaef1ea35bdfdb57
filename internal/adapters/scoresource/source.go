// Package scoresource looks up participants' recent scores and beatmap
// metadata, either from the osu! web API or from an in-memory simulation.
package scoresource

import (
	"context"

	"github.com/okian/vsrank/internal/domain/model"
)

// Source returns a participant's recent scores in a mode, newest first.
type Source interface {
	RecentScores(ctx context.Context, p model.ParticipantID, mode model.Mode) ([]model.RecentScore, error)
}

// BeatmapResolver resolves a beatmap id into a task.
type BeatmapResolver interface {
	Beatmap(ctx context.Context, id int64) (model.Task, error)
}
