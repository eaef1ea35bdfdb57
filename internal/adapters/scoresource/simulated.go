package scoresource

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/okian/vsrank/internal/domain/model"
)

const (
	defaultMinLatency = 20 * time.Millisecond
	defaultMaxLatency = 80 * time.Millisecond
	defaultRandomSeed = 42
	maxRecentScores   = 50
)

// SimulatedOption configures a Simulated source.
type SimulatedOption func(*Simulated)

// WithLatencyRange sets the simulated lookup latency range. A zero range
// answers immediately.
func WithLatencyRange(minLatency, maxLatency time.Duration) SimulatedOption {
	return func(s *Simulated) {
		if minLatency >= 0 && maxLatency >= minLatency {
			s.minLatency = minLatency
			s.maxLatency = maxLatency
		}
	}
}

type playerKey struct {
	mode model.Mode
	id   model.ParticipantID
}

// Simulated is an in-memory Source. Scores are pushed with Submit and
// served newest first after a simulated latency.
type Simulated struct {
	mu         sync.Mutex
	recent     map[playerKey][]model.RecentScore
	failures   map[model.ParticipantID]error
	beatmaps   map[int64]model.Task
	minLatency time.Duration
	maxLatency time.Duration
	rng        *rand.Rand
	now        func() time.Time
}

// NewSimulated creates an empty simulated source.
func NewSimulated(opts ...SimulatedOption) *Simulated {
	s := &Simulated{
		recent:     make(map[playerKey][]model.RecentScore),
		failures:   make(map[model.ParticipantID]error),
		beatmaps:   make(map[int64]model.Task),
		minLatency: defaultMinLatency,
		maxLatency: defaultMaxLatency,
		rng:        rand.New(rand.NewSource(defaultRandomSeed)), //nolint:gosec // deterministic seed for reproducible testing
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit records a play of taskID by p as the newest recent score.
func (s *Simulated) Submit(p model.ParticipantID, mode model.Mode, taskID int64, value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := playerKey{mode: mode, id: p}
	scores := append([]model.RecentScore{{TaskID: taskID, Value: value, At: s.now()}}, s.recent[k]...)
	if len(scores) > maxRecentScores {
		scores = scores[:maxRecentScores]
	}
	s.recent[k] = scores
}

// Fail makes every lookup for p return err until cleared with a nil err.
func (s *Simulated) Fail(p model.ParticipantID, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, p)
		return
	}
	s.failures[p] = err
}

// AddBeatmap registers beatmap metadata for Beatmap.
func (s *Simulated) AddBeatmap(t model.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.beatmaps[t.ID] = t
}

func (s *Simulated) latency() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.maxLatency <= s.minLatency {
		return s.minLatency
	}
	return s.minLatency + time.Duration(s.rng.Int63n(int64(s.maxLatency-s.minLatency)))
}

func (s *Simulated) wait(ctx context.Context) error {
	d := s.latency()
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("context cancelled: %w", ctx.Err())
	case <-t.C:
		return nil
	}
}

// RecentScores implements Source.
func (s *Simulated) RecentScores(ctx context.Context, p model.ParticipantID, mode model.Mode) ([]model.RecentScore, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failures[p]; err != nil {
		return nil, err
	}
	return append([]model.RecentScore(nil), s.recent[playerKey{mode: mode, id: p}]...), nil
}

// Beatmap implements BeatmapResolver.
func (s *Simulated) Beatmap(ctx context.Context, id int64) (model.Task, error) {
	if err := s.wait(ctx); err != nil {
		return model.Task{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.beatmaps[id]
	if !ok {
		return model.Task{}, fmt.Errorf("%w: %d", ErrBeatmapNotFound, id)
	}
	return t, nil
}
