// Package worker runs match jobs: settle the match, then rate it.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/okian/vsrank/internal/adapters/mq/queue"
	"github.com/okian/vsrank/internal/domain/model"
	"github.com/okian/vsrank/internal/domain/rating"
	"github.com/okian/vsrank/internal/domain/settlement"
	"github.com/okian/vsrank/pkg/logger"
	"github.com/okian/vsrank/pkg/metrics"
)

const (
	defaultWorkerMultiplier = 16
	poolShutdownTimeout     = 30 * time.Second
)

// Job is what workers read off the queue.
type Job = queue.Job

// Settler decides when a match is over and returns its scores.
type Settler interface {
	Settle(ctx context.Context, teams []model.Team, task model.Task) (model.ScoreMatrix, error)
}

// Rater applies a settled match to the ratings of a mode.
type Rater interface {
	Apply(ctx context.Context, mode model.Mode, teams []model.Team, scores model.ScoreMatrix) (before, after [][]rating.Rating, err error)
}

// Reporter receives the outcome of every job exactly once.
type Reporter interface {
	Settled(ctx context.Context, job Job, scores model.ScoreMatrix, before, after [][]rating.Rating)
	Voided(ctx context.Context, job Job)
	Failed(ctx context.Context, job Job, err error)
}

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Job
}

// Worker processes jobs from a queue until it is drained or stopped.
type Worker struct {
	name     string
	queue    Queue
	settler  Settler
	rater    Rater
	reporter Reporter
	log      logger.Logger

	done chan struct{}
}

// NewWorker creates a worker.
func NewWorker(q Queue, s Settler, r Rater, rep Reporter, opts ...Option) *Worker {
	w := &Worker{
		name:     "worker",
		queue:    q,
		settler:  s,
		rater:    r,
		reporter: rep,
		log:      logger.Nop(),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.log = w.log.Named(w.name)
	return w
}

// Run consumes jobs until ctx is done or the queue is closed and drained.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)
	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-jobs:
			if !ok {
				return
			}
			metrics.RecordQueueDequeue()
			w.process(ctx, j)
		}
	}
}

// Done is closed once Run has returned.
func (w *Worker) Done() <-chan struct{} { return w.done }

func (w *Worker) process(ctx context.Context, j Job) { //nolint:gocritic // hugeParam: jobs travel by value
	start := time.Now()
	mode := j.Task.Mode.String()
	metrics.IncWorkerBusy()
	defer func() {
		metrics.DecWorkerBusy()
		metrics.RecordWorkerProcessing(time.Since(start))
	}()

	// outcomes are reported even when the run context was cancelled
	report := context.WithoutCancel(ctx)

	w.log.Info(ctx, "settling match",
		logger.String("match", j.ID),
		logger.String("mode", mode),
		logger.Int64("task", j.Task.ID),
		logger.Duration("length", j.Task.Length),
	)

	scores, err := w.settler.Settle(ctx, j.Teams, j.Task)
	switch {
	case errors.Is(err, settlement.ErrMatchVoid):
		w.log.Info(ctx, "match void", logger.String("match", j.ID))
		w.reporter.Voided(report, j)
		return
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		w.log.Warn(ctx, "settlement cancelled", logger.String("match", j.ID))
		w.reporter.Failed(report, j, err)
		return
	case err != nil:
		w.fail(report, j, fmt.Errorf("settle match %s: %w", j.ID, err))
		return
	}

	before, after, err := w.rater.Apply(report, j.Task.Mode, j.Teams, scores)
	if err != nil {
		w.fail(report, j, fmt.Errorf("rate match %s: %w", j.ID, err))
		return
	}

	w.log.Info(ctx, "match settled",
		logger.String("match", j.ID),
		logger.Float64("total", scores.Total()),
	)
	w.reporter.Settled(report, j, scores, before, after)
}

// fail reports a job that could not be settled or rated. Settlement
// outcomes themselves are recorded by the Settler.
func (w *Worker) fail(ctx context.Context, j Job, err error) { //nolint:gocritic // hugeParam: jobs travel by value
	metrics.RecordWorkerError()
	metrics.RecordErrorByComponent("worker", "job_failed")
	w.log.Error(ctx, "match failed", logger.String("match", j.ID), logger.Error(err))
	w.reporter.Failed(ctx, j, err)
}

// Pool manages a fixed set of workers sharing one queue.
type Pool struct {
	workers []*Worker
	queue   Queue
	log     logger.Logger

	cancel context.CancelFunc
	once   sync.Once
}

// NewPool creates workerCount workers. A count below one defaults to a
// multiple of the CPU count; settlements mostly wait.
func NewPool(workerCount int, q Queue, s Settler, r Rater, rep Reporter, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}
	p := &Pool{
		workers: make([]*Worker, workerCount),
		queue:   q,
		log:     logger.Nop(),
	}
	probe := &Worker{log: p.log}
	for _, opt := range opts {
		opt(probe)
	}
	p.log = probe.log.Named("worker-pool")

	for i := range p.workers {
		p.workers[i] = NewWorker(q, s, r, rep,
			append(opts, WithName("worker-"+strconv.Itoa(i)))...,
		)
	}
	metrics.UpdateWorkerActiveCount(workerCount)
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start launches every worker. Cancelling ctx or calling Shutdown stops them.
func (p *Pool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Shutdown closes the queue, cancels in-flight settlements and waits for
// every worker to return.
func (p *Pool) Shutdown(ctx context.Context) error {
	var err error
	p.once.Do(func() {
		if closer, ok := p.queue.(interface{ Close() error }); ok {
			if cerr := closer.Close(); cerr != nil {
				p.log.Error(ctx, "error closing queue", logger.Error(cerr))
			}
		}
		if p.cancel == nil {
			return
		}
		p.cancel()

		wait, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
		defer cancel()
		for i, w := range p.workers {
			select {
			case <-w.Done():
			case <-wait.Done():
				p.log.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
				err = fmt.Errorf("worker pool shutdown: %w", wait.Err())
				return
			}
		}
		metrics.UpdateWorkerActiveCount(0)
	})
	return err
}
