package config_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/okian/vsrank/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()

		convey.Convey("When loading config with defaults only", func() {
			clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 10_000)
				convey.So(cfg.PollCadenceMS, convey.ShouldEqual, 10_000)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("VSRANK_ADDR", ":8080")
			_ = os.Setenv("VSRANK_QUEUE_SIZE", "500")
			_ = os.Setenv("VSRANK_WORKER_COUNT", "16")
			_ = os.Setenv("VSRANK_STORE_BACKEND", "memory")
			_ = os.Setenv("VSRANK_RATING_MU", "1500")
			_ = os.Setenv("VSRANK_POLL_CADENCE_MS", "5000")
			_ = os.Setenv("VSRANK_SCORE_CACHE_TTL_MS", "4000")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 500)
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 16)
				convey.So(cfg.StoreBackend, convey.ShouldEqual, config.StoreMemory)
				convey.So(cfg.RatingMu, convey.ShouldEqual, 1500)
				convey.So(cfg.PollCadenceMS, convey.ShouldEqual, 5000)
				convey.So(cfg.ScoreCacheTTLMS, convey.ShouldEqual, 4000)
			})
		})

		convey.Convey("When loading config with YAML file", func() {
			yamlContent := `
# settlement tuning
addr: ":9090"
queue_size: 300
worker_count: 24
store_backend: redis
redis_addr: "cache:6379"
poll_deadline_factor: 2
`
			tmpFile := createTempConfigFile(yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("VSRANK_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load from YAML file", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 300)
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 24)
				convey.So(cfg.StoreBackend, convey.ShouldEqual, config.StoreRedis)
				convey.So(cfg.RedisAddr, convey.ShouldEqual, "cache:6379")
				convey.So(cfg.PollDeadlineFactor, convey.ShouldEqual, 2)
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			yamlContent := `
addr: ":9090"
queue_size: 300
worker_count: 24
`
			tmpFile := createTempConfigFile(yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("VSRANK_CONFIG", tmpFile)
			_ = os.Setenv("VSRANK_ADDR", ":8080")
			_ = os.Setenv("VSRANK_WORKER_COUNT", "32")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 300)
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 32)
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempConfigFile(`invalid: yaml: content: [`)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("VSRANK_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(cfg, convey.ShouldBeNil)
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("VSRANK_CONFIG", "/nonexistent/vsrank.yaml")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(cfg, convey.ShouldBeNil)
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the cache ttl exceeds the poll cadence", func() {
			_ = os.Setenv("VSRANK_POLL_CADENCE_MS", "1000")
			_ = os.Setenv("VSRANK_SCORE_CACHE_TTL_MS", "2000")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should fail validation", func() {
				convey.So(cfg, convey.ShouldBeNil)
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "score_cache_ttl_ms")
			})
		})

		convey.Convey("When loading config with an empty addr", func() {
			tmpFile := createTempConfigFile(`addr: ""`)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("VSRANK_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return validation error for empty addr", func() {
				convey.So(cfg, convey.ShouldBeNil)
				convey.So(err.Error(), convey.ShouldContainSubstring, "addr must not be empty")
			})
		})
	})
}

// Helper functions.

func clearConfigEnvVars() {
	envVars := []string{
		"VSRANK_CONFIG",
		"VSRANK_ADDR",
		"VSRANK_QUEUE_SIZE",
		"VSRANK_WORKER_COUNT",
		"VSRANK_STORE_BACKEND",
		"VSRANK_RATING_MU",
		"VSRANK_POLL_CADENCE_MS",
		"VSRANK_SCORE_CACHE_TTL_MS",
	}
	for _, envVar := range envVars {
		_ = os.Unsetenv(envVar)
	}
}

func createTempConfigFile(content string) string {
	tmpFile, err := os.CreateTemp("", "vsrank-config-*.yaml")
	if err != nil {
		panic(err)
	}

	if _, err := tmpFile.WriteString(content); err != nil {
		panic(err)
	}

	if err := tmpFile.Close(); err != nil {
		panic(err)
	}

	return tmpFile.Name()
}
