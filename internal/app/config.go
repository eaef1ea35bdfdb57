package service

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/vsrank/internal/adapters/scoresource"
	"github.com/okian/vsrank/internal/adapters/storage"
	"github.com/okian/vsrank/internal/config"
	"github.com/okian/vsrank/internal/domain/rating"
	"github.com/okian/vsrank/internal/domain/settlement"
)

// OptionsFromConfig opens the configured store and score source and turns
// the rest of cfg into Service options. The returned store is owned by the
// Service once New is called with these options.
func OptionsFromConfig(ctx context.Context, cfg *config.Config) ([]Option, error) {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	opts := []Option{
		WithStore(store),
		WithWorkerCount(cfg.WorkerCount),
		WithQueueSize(cfg.QueueSize),
		WithDedupeSize(cfg.DedupeSize),
		WithMaxLeaderboardLimit(cfg.MaxLeaderboardLimit),
		WithRatingOptions(
			rating.WithDefaults(cfg.RatingMu, cfg.RatingSigma),
			rating.WithZ(cfg.RatingZ),
			rating.WithTau(cfg.RatingTau),
		),
		WithPollerOptions(
			settlement.WithCadence(cfg.PollCadence()),
			settlement.WithMinDeadline(cfg.PollMinDeadline()),
			settlement.WithDeadlineFactor(cfg.PollDeadlineFactor),
		),
	}

	var upstream Source
	switch cfg.ScoreSource {
	case config.SourceOsu:
		upstream = scoresource.NewClient(ctx, cfg.OsuAPIURL, cfg.OsuTokenURL, cfg.OsuClientID, cfg.OsuClientSecret,
			scoresource.WithRecentLimit(cfg.ScoreRecentLimit),
		)
	case config.SourceSimulated:
		sim := scoresource.NewSimulated(scoresource.WithLatencyRange(
			time.Duration(cfg.SimulatedLatencyMinMS)*time.Millisecond,
			time.Duration(cfg.SimulatedLatencyMaxMS)*time.Millisecond,
		))
		opts = append(opts, WithSimulator(sim))
		upstream = sim
	default:
		_ = store.Close()
		return nil, fmt.Errorf("%w: unknown score_source %q", config.ErrInvalidConfig, cfg.ScoreSource)
	}

	opts = append(opts, WithScoreSource(scoresource.NewCached(upstream,
		scoresource.WithTTL(cfg.ScoreCacheTTL()),
		scoresource.WithRateLimit(cfg.ScoreRatePerSecond, cfg.ScoreRateBurst),
	)))
	return opts, nil
}

func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.StoreBackend {
	case config.StoreMemory:
		return storage.NewMemory(), nil
	case config.StoreSQLite:
		s, err := storage.OpenSQLite(ctx, cfg.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return s, nil
	case config.StoreRedis:
		s, err := storage.DialRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, fmt.Errorf("dial redis store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: unknown store_backend %q", config.ErrInvalidConfig, cfg.StoreBackend)
	}
}
