// Package rating maintains per-mode skill ratings. Each Model owns a ranked
// in-memory index that mirrors its rows in a storage.Store; every mutation
// writes the store first and then the index, under the model's write lock.
package rating

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/okian/vsrank/internal/adapters/repository"
	"github.com/okian/vsrank/internal/adapters/storage"
	"github.com/okian/vsrank/internal/domain/model"
	"github.com/okian/vsrank/internal/domain/types"
	"github.com/okian/vsrank/pkg/logger"
	"github.com/okian/vsrank/pkg/metrics"
)

// Model holds the ratings of one mode.
type Model struct {
	mode  model.Mode
	store storage.Store
	index repository.Index
	log   logger.Logger

	mu0    float64
	sigma0 float64
	z      int
	tau    float64

	lock sync.RWMutex
}

// NewModel creates an empty model for mode. Call Reload to load the store.
func NewModel(mode model.Mode, store storage.Store, opts ...Option) *Model {
	m := &Model{
		mode:   mode,
		store:  store,
		index:  repository.NewTreapIndex(),
		log:    logger.Nop(),
		mu0:    DefaultMu,
		sigma0: DefaultSigma,
		z:      DefaultZ,
		tau:    DefaultTau,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Mode returns the mode this model rates.
func (m *Model) Mode() model.Mode { return m.mode }

// Default returns the rating new participants start with.
func (m *Model) Default() Rating { return Rating{Mu: m.mu0, Sigma: m.sigma0} }

func (m *Model) key(r Rating) float64 { return r.Ordinal(float64(m.z)) }

func (m *Model) entry(p model.ParticipantID, r Rating) repository.Entry {
	return repository.Entry{ID: int64(p), Key: m.key(r), Mu: r.Mu, Sigma: r.Sigma}
}

func (m *Model) notFound(p model.ParticipantID) error {
	return fmt.Errorf("%w: participant %d in %s", ErrRatingNotFound, p, m.mode)
}

func (m *Model) persistErr(err error) error {
	metrics.RecordRatingPersistenceError(m.mode.String())
	return fmt.Errorf("%w: %s: %w", ErrPersistence, m.mode, err)
}

// lookup reads p from the index. Callers hold the lock.
func (m *Model) lookup(ctx context.Context, p model.ParticipantID) (Rating, bool) {
	e, err := m.index.Get(ctx, int64(p))
	if err != nil {
		return Rating{}, false
	}
	return Rating{Mu: e.Mu, Sigma: e.Sigma}, true
}

// Contains reports whether p has an initialized rating.
func (m *Model) Contains(p model.ParticipantID) bool {
	return m.index.Contains(int64(p))
}

// Get returns p's rating, initializing it at the defaults on first use.
func (m *Model) Get(ctx context.Context, p model.ParticipantID) (Rating, error) {
	m.lock.RLock()
	r, ok := m.lookup(ctx, p)
	m.lock.RUnlock()
	if ok {
		return r, nil
	}
	return m.Initialize(ctx, p)
}

// Initialize creates p's rating at the defaults. It is a no-op returning
// the current rating when p already has one.
func (m *Model) Initialize(ctx context.Context, p model.ParticipantID) (Rating, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	if r, ok := m.lookup(ctx, p); ok {
		return r, nil
	}
	r := m.Default()
	if err := m.store.Upsert(ctx, m.mode, storage.Record{ParticipantID: p, Mu: r.Mu, Sigma: r.Sigma}); err != nil {
		return Rating{}, m.persistErr(err)
	}
	m.index.Upsert(ctx, m.entry(p, r))

	metrics.RecordRatingInitialization(m.mode.String())
	metrics.UpdateRatedParticipants(m.mode.String(), m.index.Count(ctx))
	m.log.Debug(ctx, "rating initialized",
		logger.String("mode", m.mode.String()),
		logger.Int64("participant", int64(p)),
	)
	return r, nil
}

// RateMatch applies a match result. scores, if not nil, must have the
// shape of teams; team totals decide the placing and each participant's
// share within the team weighs their own update. A nil scores ranks teams
// by their order in teams. Every participant must already be rated.
//
// With dryRun the new ratings are computed and returned but nothing is
// written.
func (m *Model) RateMatch(ctx context.Context, teams []model.Team, scores model.ScoreMatrix, dryRun bool) ([][]Rating, error) {
	_, after, err := m.rate(ctx, teams, scores, dryRun)
	return after, err
}

// Apply is RateMatch without dry run that also returns the ratings the
// update started from, read under the same lock.
func (m *Model) Apply(ctx context.Context, teams []model.Team, scores model.ScoreMatrix) (before, after [][]Rating, err error) {
	return m.rate(ctx, teams, scores, false)
}

func (m *Model) rate(ctx context.Context, teams []model.Team, scores model.ScoreMatrix, dryRun bool) (before, after [][]Rating, err error) {
	if err := model.ValidateTeams(teams); err != nil {
		return nil, nil, err
	}
	if len(teams) < 2 {
		return nil, nil, ErrTooFewTeams
	}
	if scores != nil && !scores.Matches(teams) {
		return nil, nil, ErrShapeMismatch
	}

	if dryRun {
		m.lock.RLock()
		defer m.lock.RUnlock()
	} else {
		m.lock.Lock()
		defer m.lock.Unlock()
	}

	before = make([][]Rating, len(teams))
	for i, team := range teams {
		before[i] = make([]Rating, len(team))
		for j, p := range team {
			r, ok := m.lookup(ctx, p)
			if !ok {
				return nil, nil, m.notFound(p)
			}
			before[i][j] = r
		}
	}

	after = m.update(before, scores)

	if dryRun {
		metrics.RecordRatingDryRun(m.mode.String())
		return before, after, nil
	}

	recs := make([]storage.Record, 0, len(model.Participants(teams)))
	for i, team := range teams {
		for j, p := range team {
			recs = append(recs, storage.Record{ParticipantID: p, Mu: after[i][j].Mu, Sigma: after[i][j].Sigma})
		}
	}
	if err := m.store.UpsertMany(ctx, m.mode, recs); err != nil {
		return nil, nil, m.persistErr(err)
	}
	for _, rec := range recs {
		m.index.Upsert(ctx, m.entry(rec.ParticipantID, Rating{Mu: rec.Mu, Sigma: rec.Sigma}))
	}

	metrics.RecordRatingUpdate(m.mode.String())
	m.log.Debug(ctx, "match rated",
		logger.String("mode", m.mode.String()),
		logger.Int("participants", len(recs)),
	)
	return before, after, nil
}

func (m *Model) toEntry(e repository.Entry) types.Entry {
	return types.Entry{Rank: e.Rank, ParticipantID: e.ID, Mu: e.Mu, Sigma: e.Sigma, Ordinal: e.Key}
}

// Rank returns p's rating and 1-based leaderboard position.
func (m *Model) Rank(ctx context.Context, p model.ParticipantID) (types.Entry, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	e, err := m.index.Get(ctx, int64(p))
	if err != nil {
		return types.Entry{}, m.notFound(p)
	}
	return m.toEntry(e), nil
}

// Top returns the n best-ranked participants.
func (m *Model) Top(ctx context.Context, n int) ([]types.Entry, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	entries, err := m.index.TopN(ctx, n)
	if err != nil {
		return nil, err
	}
	out := make([]types.Entry, len(entries))
	for i, e := range entries {
		out[i] = m.toEntry(e)
	}
	return out, nil
}

// Count returns the number of rated participants.
func (m *Model) Count(ctx context.Context) int {
	return m.index.Count(ctx)
}

// prospective returns current ratings, using the defaults for anyone
// unrated. Nothing is initialized.
func (m *Model) prospective(ctx context.Context, teams []model.Team) ([][]Rating, error) {
	if err := model.ValidateTeams(teams); err != nil {
		return nil, err
	}
	if len(teams) < 2 {
		return nil, ErrTooFewTeams
	}
	m.lock.RLock()
	defer m.lock.RUnlock()
	out := make([][]Rating, len(teams))
	for i, team := range teams {
		out[i] = make([]Rating, len(team))
		for j, p := range team {
			r, ok := m.lookup(ctx, p)
			if !ok {
				r = m.Default()
			}
			out[i][j] = r
		}
	}
	return out, nil
}

// PredictWin returns each team's probability of winning, in team order.
func (m *Model) PredictWin(ctx context.Context, teams []model.Team) ([]float64, error) {
	ratings, err := m.prospective(ctx, teams)
	if err != nil {
		return nil, err
	}
	return m.predictWin(ratings), nil
}

// PredictDraw returns the probability the teams draw.
func (m *Model) PredictDraw(ctx context.Context, teams []model.Team) (float64, error) {
	ratings, err := m.prospective(ctx, teams)
	if err != nil {
		return 0, err
	}
	return m.predictDraw(ratings), nil
}

// Unlink clears p's rating in the store and drops it from the index.
func (m *Model) Unlink(ctx context.Context, p model.ParticipantID) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	if !m.index.Contains(int64(p)) {
		return m.notFound(p)
	}
	err := m.store.Clear(ctx, m.mode, p)
	if errors.Is(err, storage.ErrNotFound) {
		m.index.Remove(ctx, int64(p))
		return m.notFound(p)
	}
	if err != nil {
		return m.persistErr(err)
	}
	m.index.Remove(ctx, int64(p))
	metrics.UpdateRatedParticipants(m.mode.String(), m.index.Count(ctx))
	m.log.Info(ctx, "rating unlinked",
		logger.String("mode", m.mode.String()),
		logger.Int64("participant", int64(p)),
	)
	return nil
}

// Reload rebuilds the index from the store, which is authoritative.
func (m *Model) Reload(ctx context.Context) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	recs, err := m.store.Scan(ctx, m.mode)
	if err != nil {
		return m.persistErr(err)
	}
	entries := make([]repository.Entry, len(recs))
	for i, rec := range recs {
		entries[i] = m.entry(rec.ParticipantID, Rating{Mu: rec.Mu, Sigma: rec.Sigma})
	}
	m.index.Load(ctx, entries)

	metrics.UpdateRatedParticipants(m.mode.String(), len(entries))
	m.log.Info(ctx, "ratings loaded",
		logger.String("mode", m.mode.String()),
		logger.Int("count", len(entries)),
	)
	return nil
}
