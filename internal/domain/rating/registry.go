package rating

import (
	"context"
	"fmt"

	"github.com/okian/vsrank/internal/adapters/storage"
	"github.com/okian/vsrank/internal/domain/model"
)

// Registry maps every mode to its Model. The mapping is fixed at
// construction.
type Registry struct {
	models map[model.Mode]*Model
}

// NewRegistry builds one Model per mode over store and loads each of them.
func NewRegistry(ctx context.Context, store storage.Store, opts ...Option) (*Registry, error) {
	r := &Registry{models: make(map[model.Mode]*Model, len(model.Modes))}
	for _, mode := range model.Modes {
		m := NewModel(mode, store, opts...)
		if err := m.Reload(ctx); err != nil {
			return nil, fmt.Errorf("load %s ratings: %w", mode, err)
		}
		r.models[mode] = m
	}
	return r, nil
}

// Model returns the model for mode.
func (r *Registry) Model(mode model.Mode) (*Model, error) {
	m, ok := r.models[mode]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	return m, nil
}

// Exists reports whether p is rated in any mode.
func (r *Registry) Exists(p model.ParticipantID) bool {
	for _, mode := range model.Modes {
		if r.models[mode].Contains(p) {
			return true
		}
	}
	return false
}

// Counts returns the number of rated participants per mode.
func (r *Registry) Counts(ctx context.Context) map[model.Mode]int {
	out := make(map[model.Mode]int, len(r.models))
	for mode, m := range r.models {
		out[mode] = m.Count(ctx)
	}
	return out
}

// Apply rates a settled match in mode. See Model.Apply.
func (r *Registry) Apply(ctx context.Context, mode model.Mode, teams []model.Team, scores model.ScoreMatrix) (before, after [][]Rating, err error) {
	m, err := r.Model(mode)
	if err != nil {
		return nil, nil, err
	}
	return m.Apply(ctx, teams, scores)
}
