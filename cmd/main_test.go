package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/okian/vsrank/internal/adapters/scoresource"
	app "github.com/okian/vsrank/internal/app"
	"github.com/okian/vsrank/internal/config"
	"github.com/okian/vsrank/internal/domain/settlement"
	"github.com/okian/vsrank/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func TestMainConfiguration(t *testing.T) {
	convey.Convey("Given environment overrides", t, func() {
		t.Setenv("VSRANK_ADDR", ":8080")
		t.Setenv("VSRANK_QUEUE_SIZE", "1000")
		t.Setenv("VSRANK_WORKER_COUNT", "4")
		t.Setenv("VSRANK_STORE_BACKEND", "memory")

		convey.Convey("When the configuration is loaded", func() {
			cfg, err := config.Load(context.Background())

			convey.Convey("Then the overrides should win over defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 1000)
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 4)
			})

			convey.Convey("Then service options should build from it", func() {
				opts, err := app.OptionsFromConfig(context.Background(), cfg)
				convey.So(err, convey.ShouldBeNil)
				svc := app.New(opts...)
				convey.So(svc.Start(context.Background()), convey.ShouldBeNil)
				defer svc.Stop()

				stats := svc.GetStats()
				convey.So(stats["workerCount"], convey.ShouldEqual, 4)
				convey.So(stats["queueSize"], convey.ShouldEqual, 1000)
			})
		})
	})

	convey.Convey("Given an empty listen address", t, func() {
		t.Setenv("VSRANK_ADDR", "")

		convey.Convey("Then loading should fail", func() {
			cfg, err := config.Load(context.Background())
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(cfg, convey.ShouldBeNil)
		})
	})

	convey.Convey("Given an unknown score source", t, func() {
		cfg := config.New()
		cfg.StoreBackend = config.StoreMemory
		cfg.ScoreSource = "carrier-pigeon"

		convey.Convey("Then building options should fail", func() {
			_, err := app.OptionsFromConfig(context.Background(), cfg)
			convey.So(err, convey.ShouldNotBeNil)
		})
	})
}

func TestEndToEnd(t *testing.T) {
	convey.Convey("Given a running service behind the HTTP handler", t, func() {
		ctx := context.Background()

		svc := app.New(
			app.WithSimulator(scoresource.NewSimulated(scoresource.WithLatencyRange(0, 0))),
			app.WithWorkerCount(2),
			app.WithPollerOptions(
				settlement.WithCadence(5*time.Millisecond),
				settlement.WithMinDeadline(20*time.Millisecond),
			),
		)
		convey.So(svc.Start(ctx), convey.ShouldBeNil)
		defer svc.Stop()

		cfg := config.New()
		srv := httptest.NewServer(newHandler(ctx, svc, cfg))
		defer srv.Close()

		post := func(path string, body any) *http.Response {
			b, err := json.Marshal(body)
			convey.So(err, convey.ShouldBeNil)
			resp, err := http.Post(srv.URL+path, "application/json", bytes.NewReader(b))
			convey.So(err, convey.ShouldBeNil)
			return resp
		}

		convey.Convey("When both players post scores and a match is submitted", func() {
			for p, score := range map[int64]float64{1: 900_000, 2: 700_000} {
				resp := post("/scores", map[string]any{"participant_id": p, "mode": "osu", "task_id": 42, "score": score})
				_ = resp.Body.Close()
				convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusAccepted)
			}

			resp := post("/matches", map[string]any{"mode": "osu", "task_id": 42, "length_ms": 10, "teams": [][]int64{{1}, {2}}})
			var accepted struct {
				MatchID string `json:"match_id"`
			}
			convey.So(json.NewDecoder(resp.Body).Decode(&accepted), convey.ShouldBeNil)
			_ = resp.Body.Close()
			convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusAccepted)
			convey.So(accepted.MatchID, convey.ShouldNotBeEmpty)

			convey.Convey("Then the match should settle and move the leaderboard", func() {
				var status string
				deadline := time.Now().Add(3 * time.Second)
				for time.Now().Before(deadline) && status != string(app.StatusSettled) {
					r, err := http.Get(srv.URL + "/matches/" + accepted.MatchID)
					convey.So(err, convey.ShouldBeNil)
					var m struct {
						Status string `json:"status"`
					}
					_ = json.NewDecoder(r.Body).Decode(&m)
					_ = r.Body.Close()
					status = m.Status
					time.Sleep(5 * time.Millisecond)
				}
				convey.So(status, convey.ShouldEqual, string(app.StatusSettled))

				r, err := http.Get(srv.URL + "/leaderboard/osu?limit=2")
				convey.So(err, convey.ShouldBeNil)
				defer func() { _ = r.Body.Close() }()
				var board []struct {
					ParticipantID int64 `json:"participant_id"`
					Rank          int   `json:"rank"`
				}
				convey.So(json.NewDecoder(r.Body).Decode(&board), convey.ShouldBeNil)
				convey.So(len(board), convey.ShouldEqual, 2)
				convey.So(board[0].ParticipantID, convey.ShouldEqual, 1)
				convey.So(board[0].Rank, convey.ShouldEqual, 1)
			})
		})

		convey.Convey("When metrics are scraped", func() {
			updateSystemMetrics()
			r, err := http.Get(srv.URL + "/healthz")
			convey.So(err, convey.ShouldBeNil)
			_ = r.Body.Close()

			convey.Convey("Then the health endpoint should answer", func() {
				convey.So(r.StatusCode, convey.ShouldEqual, http.StatusOK)
			})
		})
	})
}

func TestSystemMetricsUpdater(t *testing.T) {
	convey.Convey("Given a context that expires", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		convey.Convey("Then the updater should return without panicking", func() {
			convey.So(func() { startSystemMetricsUpdater(ctx) }, convey.ShouldNotPanic)
		})
	})
}

func TestMain(m *testing.M) {
	_ = logger.InitWithWriter(&bytes.Buffer{})
	os.Exit(m.Run())
}
