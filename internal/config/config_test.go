package config_test

import (
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/okian/vsrank/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.QueueSize, convey.ShouldEqual, 10_000)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, runtime.NumCPU()*16)
			convey.So(cfg.DedupeSize, convey.ShouldEqual, 100_000)
			convey.So(cfg.StoreBackend, convey.ShouldEqual, config.StoreSQLite)
			convey.So(cfg.ScoreSource, convey.ShouldEqual, config.SourceSimulated)
		})

		convey.Convey("Then rating defaults should match the openskill model", func() {
			convey.So(cfg.RatingMu, convey.ShouldEqual, 25)
			convey.So(cfg.RatingSigma, convey.ShouldAlmostEqual, 25.0/3.0)
			convey.So(cfg.RatingZ, convey.ShouldEqual, 3)
			convey.So(cfg.RatingTau, convey.ShouldAlmostEqual, 25.0/300.0)
		})

		convey.Convey("Then poll timing should convert to durations", func() {
			convey.So(cfg.PollCadence(), convey.ShouldEqual, 10*time.Second)
			convey.So(cfg.PollMinDeadline(), convey.ShouldEqual, time.Minute)
			convey.So(cfg.ScoreCacheTTL(), convey.ShouldEqual, 10*time.Second)
			convey.So(cfg.PollDeadlineFactor, convey.ShouldEqual, 1.5)
		})

		convey.Convey("Then the defaults should validate", func() {
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given a default config", t, func() {
		cfg := config.New()

		cases := []struct {
			name   string
			mutate func(c *config.Config)
		}{
			{"empty addr", func(c *config.Config) { c.Addr = "" }},
			{"zero queue", func(c *config.Config) { c.QueueSize = 0 }},
			{"zero workers", func(c *config.Config) { c.WorkerCount = 0 }},
			{"zero sigma", func(c *config.Config) { c.RatingSigma = 0 }},
			{"zero cadence", func(c *config.Config) { c.PollCadenceMS = 0 }},
			{"factor below one", func(c *config.Config) { c.PollDeadlineFactor = 0.5 }},
			{"cache ttl beyond cadence", func(c *config.Config) { c.ScoreCacheTTLMS = c.PollCadenceMS + 1 }},
			{"unknown store", func(c *config.Config) { c.StoreBackend = "mongo" }},
			{"sqlite without path", func(c *config.Config) { c.DatabasePath = "" }},
			{"redis without addr", func(c *config.Config) { c.StoreBackend = config.StoreRedis; c.RedisAddr = "" }},
			{"unknown source", func(c *config.Config) { c.ScoreSource = "bancho" }},
			{"osu without credentials", func(c *config.Config) { c.ScoreSource = config.SourceOsu }},
			{"inverted latency", func(c *config.Config) { c.SimulatedLatencyMinMS = 100; c.SimulatedLatencyMaxMS = 10 }},
		}

		for _, tc := range cases {
			convey.Convey("When "+tc.name, func() {
				tc.mutate(cfg)
				err := cfg.Validate()

				convey.Convey("Then it should be rejected as invalid", func() {
					convey.So(err, convey.ShouldNotBeNil)
					convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				})
			})
		}

		convey.Convey("When the cache ttl equals the cadence", func() {
			cfg.ScoreCacheTTLMS = cfg.PollCadenceMS

			convey.Convey("Then it should be accepted", func() {
				convey.So(cfg.Validate(), convey.ShouldBeNil)
			})
		})

		convey.Convey("When osu credentials are complete", func() {
			cfg.ScoreSource = config.SourceOsu
			cfg.OsuClientID = "1234"
			cfg.OsuClientSecret = "secret"

			convey.Convey("Then it should be accepted", func() {
				convey.So(cfg.Validate(), convey.ShouldBeNil)
			})
		})
	})
}
