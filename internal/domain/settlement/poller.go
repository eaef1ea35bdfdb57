// Package settlement decides when a match is over by polling a score
// source, since the source never signals completion.
//
// A settlement runs in three phases:
//
//  1. wait for the task's expected length; nobody can have finished sooner
//  2. poll every cadence until the deadline, returning early once every
//     participant has a score for the task
//  3. wait out the remainder of the deadline and run one final round
//
// deadline = max(length * factor, minDeadline). A final total of zero voids
// the match.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/vsrank/internal/domain/model"
	"github.com/okian/vsrank/pkg/logger"
	"github.com/okian/vsrank/pkg/metrics"
	"golang.org/x/sync/errgroup"
)

const (
	defaultCadence        = 10 * time.Second
	defaultMinDeadline    = 60 * time.Second
	defaultDeadlineFactor = 1.5
)

// ScoreSource returns a participant's recent scores, newest first.
type ScoreSource interface {
	RecentScores(ctx context.Context, p model.ParticipantID, mode model.Mode) ([]model.RecentScore, error)
}

// Poller settles matches against a ScoreSource. It holds no per-match
// state and may settle any number of matches concurrently.
type Poller struct {
	source      ScoreSource
	cadence     time.Duration
	minDeadline time.Duration
	factor      float64
	log         logger.Logger
}

// NewPoller creates a Poller reading from source.
func NewPoller(source ScoreSource, opts ...Option) *Poller {
	p := &Poller{
		source:      source,
		cadence:     defaultCadence,
		minDeadline: defaultMinDeadline,
		factor:      defaultDeadlineFactor,
		log:         logger.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Deadline returns how long after the start a match of the given length is
// settled at the latest.
func (p *Poller) Deadline(length time.Duration) time.Duration {
	return max(time.Duration(float64(length)*p.factor), p.minDeadline)
}

type round struct {
	scores   model.ScoreMatrix
	finished bool
}

// Settle blocks until the match described by teams and task is decided and
// returns the per-participant scores in team order. It returns ErrMatchVoid
// when nobody scored, and ctx.Err() if ctx ends first.
func (p *Poller) Settle(ctx context.Context, teams []model.Team, task model.Task) (model.ScoreMatrix, error) {
	if err := model.ValidateTeams(teams); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMatch, err)
	}
	if task.Length < 0 {
		return nil, fmt.Errorf("%w: negative task length %s", ErrInvalidMatch, task.Length)
	}

	start := time.Now()
	metrics.IncActiveSettlements()
	defer metrics.DecActiveSettlements()

	scores, err := p.settle(ctx, teams, task)
	outcome := metrics.OutcomeSettled
	switch {
	case err == nil:
	case errors.Is(err, ErrMatchVoid):
		outcome = metrics.OutcomeVoid
	case ctx.Err() != nil:
		outcome = metrics.OutcomeCancelled
	default:
		outcome = metrics.OutcomeFailed
	}
	metrics.RecordSettlement(task.Mode.String(), outcome, time.Since(start))
	p.log.Info(ctx, "settlement finished",
		logger.Int64("task", task.ID),
		logger.String("mode", task.Mode.String()),
		logger.String("outcome", outcome),
		logger.Duration("elapsed", time.Since(start)),
	)
	return scores, err
}

func (p *Poller) settle(ctx context.Context, teams []model.Team, task model.Task) (model.ScoreMatrix, error) {
	deadline := p.Deadline(task.Length)
	window := deadline - task.Length
	rounds := int(window / p.cadence)
	tail := window % p.cadence

	p.log.Debug(ctx, "waiting for task length",
		logger.Int64("task", task.ID),
		logger.Duration("length", task.Length),
		logger.Duration("deadline", deadline),
		logger.Int("rounds", rounds),
	)
	if err := sleep(ctx, task.Length); err != nil {
		return nil, err
	}

	for i := 0; i < rounds; i++ {
		scores, done, err := p.boundedRound(ctx, teams, task, i)
		if err != nil {
			return nil, err
		}
		if done {
			p.log.Debug(ctx, "everyone finished", logger.Int64("task", task.ID), logger.Int("round", i))
			return scores, nil
		}
	}

	if err := sleep(ctx, tail); err != nil {
		return nil, err
	}
	metrics.RecordPollRound()
	final, err := p.query(ctx, teams, task)
	if err != nil {
		return nil, err
	}
	if final.scores.Total() == 0 {
		return nil, ErrMatchVoid
	}
	return final.scores, nil
}

// boundedRound starts a query round and waits one cadence. It reports
// done only when the round completed with every participant finished; in
// that case it returns as soon as the round does. A round still running at
// the tick is cancelled and its result dropped.
func (p *Poller) boundedRound(ctx context.Context, teams []model.Team, task model.Task, n int) (model.ScoreMatrix, bool, error) {
	metrics.RecordPollRound()
	roundCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan round, 1)
	go func() {
		r, err := p.query(roundCtx, teams, task)
		if err == nil {
			results <- r
		}
		close(results)
	}()

	tick := time.NewTimer(p.cadence)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, false, ctx.Err()
		case r, ok := <-results:
			if ok && r.finished {
				return r.scores, true, nil
			}
			// Finished early but incomplete: hold the cadence.
			results = nil
		case <-tick.C:
			if results != nil {
				metrics.RecordPollRoundDiscarded()
				p.log.Debug(ctx, "poll round outlived cadence, discarded",
					logger.Int64("task", task.ID),
					logger.Int("round", n),
				)
			}
			return nil, false, nil
		}
	}
}

// query looks up every participant concurrently. Lookup failures and
// missing scores count as 0; only cancellation of ctx is an error.
func (p *Poller) query(ctx context.Context, teams []model.Team, task model.Task) (round, error) {
	scores := model.NewScoreMatrix(teams)
	found := make([][]bool, len(teams))

	g, gctx := errgroup.WithContext(ctx)
	for i, team := range teams {
		found[i] = make([]bool, len(team))
		for j, participant := range team {
			g.Go(func() error {
				metrics.RecordScoreQuery()
				recent, err := p.source.RecentScores(gctx, participant, task.Mode)
				if err != nil {
					if gctx.Err() != nil {
						return gctx.Err()
					}
					metrics.RecordScoreQueryError()
					p.log.Debug(gctx, "score lookup failed, counting as 0",
						logger.Int64("participant", int64(participant)),
						logger.Error(err),
					)
					return nil
				}
				if s, ok := model.FirstFor(recent, task.ID); ok {
					scores[i][j] = s.Value
					found[i][j] = true
				}
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return round{}, err
	}
	if err := ctx.Err(); err != nil {
		return round{}, err
	}

	finished := true
	for _, row := range found {
		for _, ok := range row {
			finished = finished && ok
		}
	}
	return round{scores: scores, finished: finished}, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
