package service

import (
	"time"

	"github.com/okian/vsrank/internal/adapters/scoresource"
	"github.com/okian/vsrank/internal/adapters/storage"
	"github.com/okian/vsrank/internal/domain/rating"
	"github.com/okian/vsrank/internal/domain/settlement"
	"github.com/okian/vsrank/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of settlement workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum number of queued matches.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets how many settlement keys are remembered.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		s.dedupeSize = size
	}
}

// WithMaxLeaderboardLimit caps Leaderboard's limit.
func WithMaxLeaderboardLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxLimit = n
		}
	}
}

// WithMatchRetention sets how long finished matches stay queryable.
func WithMatchRetention(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.retention = d
		}
	}
}

// WithStore sets the rating store. The service closes it on Stop.
func WithStore(store storage.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithScoreSource sets where scores and beatmaps come from.
func WithScoreSource(src Source) Option {
	return func(s *Service) {
		if src != nil {
			s.source = src
		}
	}
}

// WithSimulator exposes sim through SubmitScore. sim should back the
// configured score source.
func WithSimulator(sim *scoresource.Simulated) Option {
	return func(s *Service) {
		s.simulator = sim
	}
}

// WithRatingOptions passes options to every rating model.
func WithRatingOptions(opts ...rating.Option) Option {
	return func(s *Service) {
		s.ratingOpts = append(s.ratingOpts, opts...)
	}
}

// WithPollerOptions passes options to the score poller.
func WithPollerOptions(opts ...settlement.Option) Option {
	return func(s *Service) {
		s.pollerOpts = append(s.pollerOpts, opts...)
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
