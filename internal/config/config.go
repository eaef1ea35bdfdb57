// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Load layers a YAML file and the environment on top of those defaults.
// - Errors are wrapped with this package's sentinels.
package config

import (
	"runtime"
	"time"
)

// Store backends.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
)

// Score sources.
const (
	SourceSimulated = "simulated"
	SourceOsu       = "osu"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// QueueSize bounds the in-memory match job queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of settlement workers. Each worker holds
	// one match for up to its settlement deadline.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize sets the size of the settlement key cache.
	DedupeSize int `koanf:"dedupe_size"`

	// MaxLeaderboardLimit caps GET /leaderboard/{mode}?limit.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit"`

	// StoreBackend selects the rating store: memory, sqlite or redis.
	StoreBackend string `koanf:"store_backend"`
	DatabasePath string `koanf:"database_path"`

	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`

	// Rating model parameters.
	RatingMu    float64 `koanf:"rating_mu"`
	RatingSigma float64 `koanf:"rating_sigma"`
	RatingZ     int     `koanf:"rating_z"`
	RatingTau   float64 `koanf:"rating_tau"`

	// Poller timing.
	PollCadenceMS      int     `koanf:"poll_cadence_ms"`
	PollMinDeadlineMS  int     `koanf:"poll_min_deadline_ms"`
	PollDeadlineFactor float64 `koanf:"poll_deadline_factor"`

	// ScoreSource selects where scores come from: simulated or osu.
	ScoreSource     string `koanf:"score_source"`
	OsuAPIURL       string `koanf:"osu_api_url"`
	OsuTokenURL     string `koanf:"osu_token_url"`
	OsuClientID     string `koanf:"osu_client_id"`
	OsuClientSecret string `koanf:"osu_client_secret"`

	// ScoreCacheTTLMS must not exceed PollCadenceMS, otherwise a poll round
	// could be answered from a previous round's response.
	ScoreCacheTTLMS    int     `koanf:"score_cache_ttl_ms"`
	ScoreRatePerSecond float64 `koanf:"score_rate_per_second"`
	ScoreRateBurst     int     `koanf:"score_rate_burst"`
	ScoreRecentLimit   int     `koanf:"score_recent_limit"`

	// SimulatedLatencyMinMS and SimulatedLatencyMaxMS bound the simulated
	// score source lookup latency.
	SimulatedLatencyMinMS int `koanf:"simulated_latency_min_ms"`
	SimulatedLatencyMaxMS int `koanf:"simulated_latency_max_ms"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:              "info",
		Addr:                  ":9080",
		QueueSize:             10_000,
		WorkerCount:           runtime.NumCPU() * 16,
		DedupeSize:            100_000,
		MaxLeaderboardLimit:   100,
		StoreBackend:          StoreSQLite,
		DatabasePath:          "vsrank.db",
		RedisAddr:             "localhost:6379",
		RedisDB:               0,
		RatingMu:              25,
		RatingSigma:           25.0 / 3.0,
		RatingZ:               3,
		RatingTau:             25.0 / 300.0,
		PollCadenceMS:         10_000,
		PollMinDeadlineMS:     60_000,
		PollDeadlineFactor:    1.5,
		ScoreSource:           SourceSimulated,
		OsuAPIURL:             "https://osu.ppy.sh/api/v2",
		OsuTokenURL:           "https://osu.ppy.sh/oauth/token",
		ScoreCacheTTLMS:       10_000,
		ScoreRatePerSecond:    10,
		ScoreRateBurst:        20,
		ScoreRecentLimit:      10,
		SimulatedLatencyMinMS: 20,
		SimulatedLatencyMaxMS: 80,
	}
}

// PollCadence returns the poll cadence as a duration.
func (c *Config) PollCadence() time.Duration {
	return time.Duration(c.PollCadenceMS) * time.Millisecond
}

// PollMinDeadline returns the minimum settlement deadline as a duration.
func (c *Config) PollMinDeadline() time.Duration {
	return time.Duration(c.PollMinDeadlineMS) * time.Millisecond
}

// ScoreCacheTTL returns the score cache TTL as a duration.
func (c *Config) ScoreCacheTTL() time.Duration {
	return time.Duration(c.ScoreCacheTTLMS) * time.Millisecond
}
