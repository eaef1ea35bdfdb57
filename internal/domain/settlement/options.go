package settlement

import (
	"time"

	"github.com/okian/vsrank/pkg/logger"
)

// Option applies a configuration option to the Poller.
type Option func(*Poller)

// WithCadence sets the interval between polling rounds.
func WithCadence(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.cadence = d
		}
	}
}

// WithMinDeadline sets the floor of the settlement deadline.
func WithMinDeadline(d time.Duration) Option {
	return func(p *Poller) {
		if d >= 0 {
			p.minDeadline = d
		}
	}
}

// WithDeadlineFactor sets the multiple of the task length after which a
// match is settled regardless of who finished.
func WithDeadlineFactor(f float64) Option {
	return func(p *Poller) {
		if f >= 1 {
			p.factor = f
		}
	}
}

// WithLogger sets the poller's logger.
func WithLogger(l logger.Logger) Option {
	return func(p *Poller) {
		if l != nil {
			p.log = l
		}
	}
}
