// Package service wires settlement, rating and persistence into the
// operations served by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/okian/vsrank/internal/adapters/mq/queue"
	"github.com/okian/vsrank/internal/adapters/mq/worker"
	"github.com/okian/vsrank/internal/adapters/repository"
	"github.com/okian/vsrank/internal/adapters/scoresource"
	"github.com/okian/vsrank/internal/adapters/storage"
	"github.com/okian/vsrank/internal/domain/dedupe"
	"github.com/okian/vsrank/internal/domain/model"
	"github.com/okian/vsrank/internal/domain/rating"
	"github.com/okian/vsrank/internal/domain/settlement"
	"github.com/okian/vsrank/internal/domain/types"
	"github.com/okian/vsrank/pkg/logger"
	"github.com/okian/vsrank/pkg/metrics"
	"github.com/patrickmn/go-cache"
)

const (
	defaultQueueSize = 10_000
	defaultDedupe    = 100_000
	defaultMaxLimit  = 100
	defaultRetention = time.Hour
)

// Source supplies recent scores and beatmap lengths.
type Source interface {
	scoresource.Source
	scoresource.BeatmapResolver
}

// Service implements the API dependencies for vsrank.
type Service struct {
	mu sync.RWMutex

	store     storage.Store
	source    Source
	simulator *scoresource.Simulated
	registry  *rating.Registry
	deduper   dedupe.Deduper
	jobs      *queue.InMemoryQueue
	pool      *worker.Pool
	poller    *settlement.Poller

	matchMu sync.Mutex
	matches *cache.Cache

	workerCount int
	queueSize   int
	dedupeSize  int
	maxLimit    int
	retention   time.Duration
	ratingOpts  []rating.Option
	pollerOpts  []settlement.Option

	started bool
	logger  logger.Logger
}

// New constructs a Service. Without WithStore and WithScoreSource it runs
// on an in-memory store and a simulated source.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount: runtime.NumCPU() * 16,
		queueSize:   defaultQueueSize,
		dedupeSize:  defaultDedupe,
		maxLimit:    defaultMaxLimit,
		retention:   defaultRetention,
		logger:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.store == nil {
		s.store = storage.NewMemory()
	}
	if s.source == nil {
		if s.simulator == nil {
			s.simulator = scoresource.NewSimulated()
		}
		s.source = s.simulator
	}
	return s
}

// Start loads every rating model from the store and starts the workers.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	s.logger.Info(ctx, "starting vsrank service...")

	ratingOpts := append([]rating.Option{rating.WithLogger(s.logger.Named("rating"))}, s.ratingOpts...)
	registry, err := rating.NewRegistry(ctx, s.store, ratingOpts...)
	if err != nil {
		return fmt.Errorf("load ratings: %w", err)
	}
	s.registry = registry

	pollerOpts := append([]settlement.Option{settlement.WithLogger(s.logger.Named("poller"))}, s.pollerOpts...)
	s.poller = settlement.NewPoller(s.source, pollerOpts...)
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.matches = cache.New(s.retention, s.retention/2)
	s.jobs = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	s.pool = worker.NewPool(s.workerCount, s.jobs, s.poller, s.registry, reporter{s},
		worker.WithLogger(s.logger),
	)
	// workers outlive the start request; Stop ends them
	s.pool.Start(context.WithoutCancel(ctx))

	s.started = true
	s.logger.Info(ctx, "vsrank service started",
		logger.Int("workers", s.pool.Size()),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.Any("rated", registry.Counts(ctx)),
	)
	return nil
}

// Stop cancels in-flight settlements, fails anything still queued and
// closes the store.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	ctx := context.Background()
	s.logger.Info(ctx, "stopping vsrank service...")

	if err := s.pool.Shutdown(ctx); err != nil {
		s.logger.Error(ctx, "worker pool shutdown failed", logger.Error(err))
	}
	rep := reporter{s}
	for j := range s.jobs.Dequeue(ctx) {
		rep.Failed(ctx, j, ErrNotStarted)
	}
	if err := s.store.Close(); err != nil {
		s.logger.Error(ctx, "closing store failed", logger.Error(err))
	}

	s.started = false
	s.logger.Info(ctx, "vsrank service stopped")
}

func (s *Service) ready() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return ErrNotStarted
	}
	return nil
}

func (s *Service) model(mode model.Mode) (*rating.Model, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.registry.Model(mode)
}

// SubmitMatch validates a match, reserves its settlement keys and queues
// it. Participants without a rating in the mode are initialized first.
func (s *Service) SubmitMatch(ctx context.Context, req MatchRequest) (string, error) {
	if err := s.ready(); err != nil {
		return "", err
	}
	if !req.Mode.Valid() {
		return "", fmt.Errorf("%w: %w: %q", ErrInvalidRequest, model.ErrUnknownMode, req.Mode)
	}
	if err := model.ValidateTeams(req.Teams); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if len(req.Teams) < 2 {
		return "", fmt.Errorf("%w: %w", ErrInvalidRequest, rating.ErrTooFewTeams)
	}
	if req.Length < 0 {
		return "", fmt.Errorf("%w: negative length", ErrInvalidRequest)
	}

	task := model.Task{ID: req.TaskID, Mode: req.Mode, Length: req.Length}
	if task.Length == 0 {
		bm, err := s.source.Beatmap(ctx, req.TaskID)
		if err != nil {
			return "", fmt.Errorf("resolve beatmap %d: %w", req.TaskID, err)
		}
		task.Length = bm.Length
	}

	m, err := s.registry.Model(req.Mode)
	if err != nil {
		return "", err
	}
	for _, p := range model.Participants(req.Teams) {
		if _, err := m.Get(ctx, p); err != nil {
			return "", err
		}
	}

	job := model.MatchJob{
		ID:        uuid.NewString(),
		Teams:     req.Teams,
		Task:      task,
		Submitted: time.Now(),
	}
	keys := job.Keys()
	if conflict, ok := s.deduper.Reserve(ctx, keys); !ok {
		metrics.RecordErrorByComponent("service", "duplicate_settlement")
		return "", fmt.Errorf("%w: %s", ErrDuplicateSettlement, conflict)
	}

	s.putMatch(Match{
		ID:        job.ID,
		Status:    StatusPending,
		Mode:      task.Mode,
		TaskID:    task.ID,
		Length:    task.Length,
		Deadline:  s.poller.Deadline(task.Length),
		Teams:     job.Teams,
		Submitted: job.Submitted,
	}, cache.NoExpiration)

	if !s.jobs.Enqueue(ctx, job) {
		s.deduper.Release(ctx, keys)
		s.matches.Delete(job.ID)
		return "", ErrBackpressure
	}

	s.logger.Info(ctx, "match queued",
		logger.String("match", job.ID),
		logger.String("mode", task.Mode.String()),
		logger.Int64("task", task.ID),
		logger.Duration("length", task.Length),
		logger.Int("teams", len(job.Teams)),
	)
	return job.ID, nil
}

func (s *Service) putMatch(m Match, ttl time.Duration) { //nolint:gocritic // hugeParam: stored by value
	s.matchMu.Lock()
	defer s.matchMu.Unlock()
	s.matches.Set(m.ID, m, ttl)
}

// finish records a match's outcome. Finished matches expire after the
// retention period.
func (s *Service) finish(id string, update func(*Match)) {
	s.matchMu.Lock()
	defer s.matchMu.Unlock()
	v, ok := s.matches.Get(id)
	if !ok {
		return
	}
	m := v.(Match)
	now := time.Now()
	m.Finished = &now
	update(&m)
	s.matches.Set(id, m, cache.DefaultExpiration)
}

// Match returns the current state of a submitted match. Records stay
// readable after Stop.
func (s *Service) Match(_ context.Context, id string) (Match, error) {
	s.mu.RLock()
	matches := s.matches
	s.mu.RUnlock()
	if matches == nil {
		return Match{}, ErrNotStarted
	}
	v, ok := matches.Get(id)
	if !ok {
		return Match{}, fmt.Errorf("%w: %s", ErrMatchNotFound, id)
	}
	return v.(Match), nil
}

// Rating returns p's rating and rank in mode.
func (s *Service) Rating(ctx context.Context, mode model.Mode, p model.ParticipantID) (types.Entry, error) {
	m, err := s.model(mode)
	if err != nil {
		return types.Entry{}, err
	}
	return m.Rank(ctx, p)
}

// Link initializes p in mode, keeping any existing rating.
func (s *Service) Link(ctx context.Context, mode model.Mode, p model.ParticipantID) (types.Entry, error) {
	m, err := s.model(mode)
	if err != nil {
		return types.Entry{}, err
	}
	if _, err := m.Initialize(ctx, p); err != nil {
		return types.Entry{}, err
	}
	return m.Rank(ctx, p)
}

// Unlink clears p's rating in mode.
func (s *Service) Unlink(ctx context.Context, mode model.Mode, p model.ParticipantID) error {
	m, err := s.model(mode)
	if err != nil {
		return err
	}
	return m.Unlink(ctx, p)
}

// Exists reports whether p is rated in any mode.
func (s *Service) Exists(p model.ParticipantID) bool {
	if s.ready() != nil {
		return false
	}
	return s.registry.Exists(p)
}

// Leaderboard returns the top limit participants of mode.
func (s *Service) Leaderboard(ctx context.Context, mode model.Mode, limit int) ([]types.Entry, error) {
	if limit <= 0 || limit > s.maxLimit {
		return nil, fmt.Errorf("%w: limit must be between 1 and %d", repository.ErrInvalidLimit, s.maxLimit)
	}
	m, err := s.model(mode)
	if err != nil {
		return nil, err
	}
	return m.Top(ctx, limit)
}

// MaxLeaderboardLimit returns the largest limit Leaderboard accepts.
func (s *Service) MaxLeaderboardLimit() int { return s.maxLimit }

// Simulate rates a match directly, without settlement. With DryRun nothing
// is written.
func (s *Service) Simulate(ctx context.Context, req SimulateRequest) ([][]rating.Rating, error) {
	m, err := s.model(req.Mode)
	if err != nil {
		return nil, err
	}
	return m.RateMatch(ctx, req.Teams, req.Scores, req.DryRun)
}

// Predict returns win and draw probabilities for a prospective match.
func (s *Service) Predict(ctx context.Context, mode model.Mode, teams []model.Team) (Prediction, error) {
	m, err := s.model(mode)
	if err != nil {
		return Prediction{}, err
	}
	win, err := m.PredictWin(ctx, teams)
	if err != nil {
		return Prediction{}, err
	}
	draw, err := m.PredictDraw(ctx, teams)
	if err != nil {
		return Prediction{}, err
	}
	return Prediction{Win: win, Draw: draw}, nil
}

// SubmitScore records a play on the simulated score source.
func (s *Service) SubmitScore(_ context.Context, p model.ParticipantID, mode model.Mode, taskID int64, value float64) error {
	if s.simulator == nil {
		return ErrNoSimulator
	}
	if !mode.Valid() {
		return fmt.Errorf("%w: %q", model.ErrUnknownMode, mode)
	}
	s.simulator.Submit(p, mode, taskID, value)
	return nil
}

// AddBeatmap registers a beatmap on the simulated score source.
func (s *Service) AddBeatmap(_ context.Context, task model.Task) error {
	if s.simulator == nil {
		return ErrNoSimulator
	}
	s.simulator.AddBeatmap(task)
	return nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]any{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"dedupeSize":  s.dedupeSize,
	}
	if s.started {
		queueLen := s.jobs.Len(ctx)
		stats["queueLength"] = queueLen
		stats["reservedKeys"] = s.deduper.Size()
		stats["trackedMatches"] = s.matches.ItemCount()
		rated := make(map[string]int)
		for mode, n := range s.registry.Counts(ctx) {
			rated[mode.String()] = n
		}
		stats["rated"] = rated
		metrics.UpdateQueueSize(queueLen)
	}
	return stats
}

// reporter turns worker outcomes into match records and releases the
// settlement keys of matches that did not count.
type reporter struct{ s *Service }

func (r reporter) Settled(_ context.Context, j worker.Job, scores model.ScoreMatrix, before, after [][]rating.Rating) { //nolint:gocritic // hugeParam: jobs travel by value
	r.s.finish(j.ID, func(m *Match) {
		m.Status = StatusSettled
		m.Scores = scores
		m.Before = before
		m.After = after
	})
}

func (r reporter) Voided(ctx context.Context, j worker.Job) { //nolint:gocritic // hugeParam: jobs travel by value
	r.s.deduper.Release(ctx, j.Keys())
	r.s.finish(j.ID, func(m *Match) {
		m.Status = StatusVoid
	})
}

func (r reporter) Failed(ctx context.Context, j worker.Job, err error) { //nolint:gocritic // hugeParam: jobs travel by value
	r.s.deduper.Release(ctx, j.Keys())
	r.s.finish(j.ID, func(m *Match) {
		m.Status = StatusFailed
		m.Error = err.Error()
		if errors.Is(err, context.Canceled) {
			m.Error = "settlement cancelled"
		}
	})
}
