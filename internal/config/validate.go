package config

import (
	"fmt"
)

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.QueueSize <= 0:
		return fmt.Errorf("%w: queue_size must be positive", ErrInvalidConfig)
	case c.WorkerCount <= 0:
		return fmt.Errorf("%w: worker_count must be positive", ErrInvalidConfig)
	case c.DedupeSize <= 0:
		return fmt.Errorf("%w: dedupe_size must be positive", ErrInvalidConfig)
	case c.MaxLeaderboardLimit <= 0:
		return fmt.Errorf("%w: max_leaderboard_limit must be positive", ErrInvalidConfig)
	case c.RatingSigma <= 0:
		return fmt.Errorf("%w: rating_sigma must be positive", ErrInvalidConfig)
	case c.RatingZ < 0:
		return fmt.Errorf("%w: rating_z must not be negative", ErrInvalidConfig)
	case c.RatingTau < 0:
		return fmt.Errorf("%w: rating_tau must not be negative", ErrInvalidConfig)
	case c.PollCadenceMS <= 0:
		return fmt.Errorf("%w: poll_cadence_ms must be positive", ErrInvalidConfig)
	case c.PollMinDeadlineMS < 0:
		return fmt.Errorf("%w: poll_min_deadline_ms must not be negative", ErrInvalidConfig)
	case c.PollDeadlineFactor < 1:
		return fmt.Errorf("%w: poll_deadline_factor must be at least 1", ErrInvalidConfig)
	case c.ScoreCacheTTLMS < 0 || c.ScoreCacheTTLMS > c.PollCadenceMS:
		return fmt.Errorf("%w: score_cache_ttl_ms must be between 0 and poll_cadence_ms", ErrInvalidConfig)
	case c.ScoreRatePerSecond <= 0 || c.ScoreRateBurst <= 0:
		return fmt.Errorf("%w: score rate limit must be positive", ErrInvalidConfig)
	case c.ScoreRecentLimit <= 0:
		return fmt.Errorf("%w: score_recent_limit must be positive", ErrInvalidConfig)
	case c.SimulatedLatencyMinMS < 0 || c.SimulatedLatencyMaxMS < c.SimulatedLatencyMinMS:
		return fmt.Errorf("%w: simulated latency bounds are inverted", ErrInvalidConfig)
	}

	switch c.StoreBackend {
	case StoreMemory:
	case StoreSQLite:
		if c.DatabasePath == "" {
			return fmt.Errorf("%w: database_path is required for sqlite", ErrInvalidConfig)
		}
	case StoreRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("%w: redis_addr is required for redis", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown store_backend %q", ErrInvalidConfig, c.StoreBackend)
	}

	switch c.ScoreSource {
	case SourceSimulated:
	case SourceOsu:
		if c.OsuAPIURL == "" || c.OsuTokenURL == "" || c.OsuClientID == "" || c.OsuClientSecret == "" {
			return fmt.Errorf("%w: osu score source needs api url, token url and client credentials", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown score_source %q", ErrInvalidConfig, c.ScoreSource)
	}
	return nil
}
