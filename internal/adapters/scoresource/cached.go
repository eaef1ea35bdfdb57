package scoresource

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/vsrank/internal/domain/model"
	"github.com/okian/vsrank/pkg/metrics"
	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const (
	defaultScoreTTL        = 10 * time.Second
	defaultBeatmapTTL      = 15 * time.Minute
	defaultUpstreamTimeout = 30 * time.Second
)

// CachedOption configures a Cached source.
type CachedOption func(*Cached)

// WithTTL sets how long recent scores are reused. Zero disables caching.
// Keep it at or below the poll cadence so each round sees fresh data.
func WithTTL(ttl time.Duration) CachedOption {
	return func(c *Cached) {
		if ttl >= 0 {
			c.ttl = ttl
		}
	}
}

// WithBeatmapTTL sets how long beatmap metadata is reused.
func WithBeatmapTTL(ttl time.Duration) CachedOption {
	return func(c *Cached) {
		if ttl > 0 {
			c.beatmapTTL = ttl
		}
	}
}

// WithUpstreamTimeout bounds a single shared upstream request. Callers
// still give up on their own context.
func WithUpstreamTimeout(d time.Duration) CachedOption {
	return func(c *Cached) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRateLimit bounds upstream requests per second.
func WithRateLimit(perSecond float64, burst int) CachedOption {
	return func(c *Cached) {
		if perSecond > 0 && burst > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

// Cached decorates a Source with a TTL cache, request coalescing and an
// upstream rate limit.
type Cached struct {
	next       Source
	ttl        time.Duration
	beatmapTTL time.Duration
	timeout    time.Duration
	scores     *cache.Cache
	beatmaps   *cache.Cache
	group      singleflight.Group
	limiter    *rate.Limiter
}

// NewCached wraps next.
func NewCached(next Source, opts ...CachedOption) *Cached {
	c := &Cached{
		next:       next,
		ttl:        defaultScoreTTL,
		beatmapTTL: defaultBeatmapTTL,
		timeout:    defaultUpstreamTimeout,
		limiter:    rate.NewLimiter(rate.Inf, 0),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.scores = cache.New(c.ttl, 2*c.ttl+time.Second)
	c.beatmaps = cache.New(c.beatmapTTL, c.beatmapTTL)
	return c
}

// RecentScores implements Source.
func (c *Cached) RecentScores(ctx context.Context, p model.ParticipantID, mode model.Mode) ([]model.RecentScore, error) {
	key := fmt.Sprintf("%s:%d", mode, p)
	if c.ttl > 0 {
		if v, ok := c.scores.Get(key); ok {
			metrics.RecordScoreCacheHit()
			return v.([]model.RecentScore), nil
		}
	}
	metrics.RecordScoreCacheMiss()

	v, err := c.shared(ctx, key, func(ctx context.Context) (any, error) {
		scores, err := c.next.RecentScores(ctx, p, mode)
		if err != nil {
			return nil, err
		}
		if c.ttl > 0 {
			c.scores.Set(key, scores, c.ttl)
		}
		return scores, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]model.RecentScore), nil
}

// Beatmap implements BeatmapResolver when the wrapped source does.
func (c *Cached) Beatmap(ctx context.Context, id int64) (model.Task, error) {
	r, ok := c.next.(BeatmapResolver)
	if !ok {
		return model.Task{}, fmt.Errorf("%w: %d", ErrBeatmapNotFound, id)
	}
	key := fmt.Sprintf("beatmap:%d", id)
	if v, ok := c.beatmaps.Get(key); ok {
		return v.(model.Task), nil
	}
	v, err := c.shared(ctx, key, func(ctx context.Context) (any, error) {
		t, err := r.Beatmap(ctx, id)
		if err != nil {
			return nil, err
		}
		c.beatmaps.SetDefault(key, t)
		return t, nil
	})
	if err != nil {
		return model.Task{}, err
	}
	return v.(model.Task), nil
}

// shared runs fetch once per key for all concurrent callers. The upstream
// call is detached from whichever caller started it; each caller waits
// only on its own ctx.
func (c *Cached) shared(ctx context.Context, key string, fetch func(context.Context) (any, error)) (any, error) {
	ch := c.group.DoChan(key, func() (any, error) {
		uctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		if err := c.limiter.Wait(uctx); err != nil {
			return nil, err
		}
		return fetch(uctx)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		return res.Val, res.Err
	}
}
