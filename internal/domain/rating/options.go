package rating

import (
	"github.com/okian/vsrank/internal/adapters/repository"
	"github.com/okian/vsrank/pkg/logger"
)

const (
	DefaultMu    = 25.0
	DefaultSigma = DefaultMu / 3
	DefaultZ     = 3
	DefaultTau   = DefaultMu / 300
)

// Option applies a configuration option to a Model.
type Option func(*Model)

// WithDefaults sets the rating given to new participants.
func WithDefaults(mu, sigma float64) Option {
	return func(m *Model) {
		if sigma > 0 {
			m.mu0 = mu
			m.sigma0 = sigma
		}
	}
}

// WithZ sets how many standard deviations the ranking key subtracts.
func WithZ(z int) Option {
	return func(m *Model) {
		if z >= 0 {
			m.z = z
		}
	}
}

// WithTau sets the dynamics factor added to sigma before every update.
func WithTau(tau float64) Option {
	return func(m *Model) {
		if tau >= 0 {
			m.tau = tau
		}
	}
}

// WithIndex replaces the in-memory ranked index. Mostly for tests.
func WithIndex(newIndex func() repository.Index) Option {
	return func(m *Model) {
		if newIndex != nil {
			m.index = newIndex()
		}
	}
}

// WithLogger sets the model's logger.
func WithLogger(l logger.Logger) Option {
	return func(m *Model) {
		if l != nil {
			m.log = l
		}
	}
}
