package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/vsrank/internal/adapters/repository"
	"github.com/okian/vsrank/internal/adapters/scoresource"
	"github.com/okian/vsrank/internal/adapters/storage"
	service "github.com/okian/vsrank/internal/app"
	"github.com/okian/vsrank/internal/domain/model"
	"github.com/okian/vsrank/internal/domain/rating"
	"github.com/okian/vsrank/internal/domain/settlement"
	. "github.com/smartystreets/goconvey/convey"
)

func newService(opts ...service.Option) (*service.Service, *scoresource.Simulated) {
	sim := scoresource.NewSimulated(scoresource.WithLatencyRange(0, 0))
	base := []service.Option{
		service.WithSimulator(sim),
		service.WithWorkerCount(4),
		service.WithPollerOptions(
			settlement.WithCadence(5*time.Millisecond),
			settlement.WithMinDeadline(20*time.Millisecond),
		),
	}
	return service.New(append(base, opts...)...), sim
}

func waitFinished(ctx context.Context, svc *service.Service, id string) service.Match {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		m, err := svc.Match(ctx, id)
		if err == nil && m.Status != service.StatusPending {
			return m
		}
		time.Sleep(2 * time.Millisecond)
	}
	m, _ := svc.Match(ctx, id)
	return m
}

func oneVsOne() service.MatchRequest {
	return service.MatchRequest{
		Mode:   model.ModeOsu,
		TaskID: 129891,
		Length: 10 * time.Millisecond,
		Teams:  []model.Team{{1}, {2}},
	}
}

func TestServiceLifecycle(t *testing.T) {
	Convey("Given a service that was never started", t, func() {
		ctx := context.Background()
		svc, _ := newService()

		Convey("Then operations should report it not started", func() {
			_, err := svc.SubmitMatch(ctx, oneVsOne())
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			_, err = svc.Rating(ctx, model.ModeOsu, 1)
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			So(svc.Exists(1), ShouldBeFalse)
			So(svc.GetStats()["started"], ShouldBeFalse)
		})

		Convey("When it is started twice and stopped twice", func() {
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.Start(ctx), ShouldBeNil)
			svc.Stop()
			svc.Stop()
			So(svc.GetStats()["started"], ShouldBeFalse)
		})
	})

	Convey("Given a store with existing ratings", t, func() {
		ctx := context.Background()
		store := storage.NewMemory()
		So(store.Upsert(ctx, model.ModeTaiko, storage.Record{ParticipantID: 9, Mu: 31, Sigma: 4}), ShouldBeNil)
		svc, _ := newService(service.WithStore(store))
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		Convey("Then they should be served after start", func() {
			e, err := svc.Rating(ctx, model.ModeTaiko, 9)
			So(err, ShouldBeNil)
			So(e.Rank, ShouldEqual, 1)
			So(e.Mu, ShouldEqual, 31)
			So(svc.Exists(9), ShouldBeTrue)
		})
	})
}

func TestSubmitMatch(t *testing.T) {
	Convey("Given a running service", t, func() {
		ctx := context.Background()
		svc, sim := newService()
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		Convey("When both players have already played the map", func() {
			sim.Submit(1, model.ModeOsu, 129891, 500_000)
			sim.Submit(2, model.ModeOsu, 129891, 300_000)
			id, err := svc.SubmitMatch(ctx, oneVsOne())
			So(err, ShouldBeNil)
			So(id, ShouldNotBeEmpty)

			m := waitFinished(ctx, svc, id)

			Convey("Then the match should settle and move the ratings", func() {
				So(m.Status, ShouldEqual, service.StatusSettled)
				So(m.Scores, ShouldResemble, model.ScoreMatrix{{500_000}, {300_000}})
				So(m.Before[0][0].Mu, ShouldEqual, rating.DefaultMu)
				So(m.After[0][0].Mu, ShouldBeGreaterThan, rating.DefaultMu)
				So(m.After[1][0].Mu, ShouldBeLessThan, rating.DefaultMu)
				So(m.Finished, ShouldNotBeNil)

				winner, err := svc.Rating(ctx, model.ModeOsu, 1)
				So(err, ShouldBeNil)
				So(winner.Rank, ShouldEqual, 1)
				So(winner.Mu, ShouldEqual, m.After[0][0].Mu)
			})

			Convey("Then the same players cannot settle the task again", func() {
				_, err := svc.SubmitMatch(ctx, oneVsOne())
				So(errors.Is(err, service.ErrDuplicateSettlement), ShouldBeTrue)
			})
		})

		Convey("When nobody plays before the deadline", func() {
			id, err := svc.SubmitMatch(ctx, oneVsOne())
			So(err, ShouldBeNil)

			Convey("Then a second submission should be refused while pending", func() {
				_, err := svc.SubmitMatch(ctx, service.MatchRequest{
					Mode: model.ModeOsu, TaskID: 129891, Length: time.Millisecond,
					Teams: []model.Team{{2}, {3}},
				})
				So(errors.Is(err, service.ErrDuplicateSettlement), ShouldBeTrue)
			})

			Convey("Then the match should be void and the ratings untouched", func() {
				m := waitFinished(ctx, svc, id)
				So(m.Status, ShouldEqual, service.StatusVoid)
				e, _ := svc.Rating(ctx, model.ModeOsu, 1)
				So(e.Mu, ShouldEqual, rating.DefaultMu)

				Convey("And the players can replay the task", func() {
					_, err := svc.SubmitMatch(ctx, oneVsOne())
					So(err, ShouldBeNil)
				})
			})
		})

		Convey("When the match length is not given", func() {
			Convey("And the beatmap is known", func() {
				So(svc.AddBeatmap(ctx, model.Task{ID: 77, Mode: model.ModeOsu, Length: 5 * time.Millisecond}), ShouldBeNil)
				sim.Submit(1, model.ModeOsu, 77, 10)
				sim.Submit(2, model.ModeOsu, 77, 20)
				id, err := svc.SubmitMatch(ctx, service.MatchRequest{Mode: model.ModeOsu, TaskID: 77, Teams: []model.Team{{1}, {2}}})

				Convey("Then its length should be looked up", func() {
					So(err, ShouldBeNil)
					m := waitFinished(ctx, svc, id)
					So(m.Length, ShouldEqual, 5*time.Millisecond)
					So(m.Status, ShouldEqual, service.StatusSettled)
				})
			})

			Convey("And the beatmap is unknown", func() {
				_, err := svc.SubmitMatch(ctx, service.MatchRequest{Mode: model.ModeOsu, TaskID: 404, Teams: []model.Team{{1}, {2}}})
				So(errors.Is(err, scoresource.ErrBeatmapNotFound), ShouldBeTrue)
			})
		})

		Convey("When the request is malformed", func() {
			cases := []service.MatchRequest{
				{Mode: "pong", TaskID: 1, Length: time.Second, Teams: []model.Team{{1}, {2}}},
				{Mode: model.ModeOsu, TaskID: 1, Length: time.Second, Teams: []model.Team{{1}}},
				{Mode: model.ModeOsu, TaskID: 1, Length: time.Second, Teams: []model.Team{{1}, {1}}},
				{Mode: model.ModeOsu, TaskID: 1, Length: time.Second, Teams: []model.Team{{1}, {}}},
				{Mode: model.ModeOsu, TaskID: 1, Length: -time.Second, Teams: []model.Team{{1}, {2}}},
			}

			Convey("Then every one should be rejected as invalid", func() {
				for _, req := range cases {
					_, err := svc.SubmitMatch(ctx, req)
					So(errors.Is(err, service.ErrInvalidRequest), ShouldBeTrue)
				}
			})
		})

		Convey("When asking for an unknown match", func() {
			_, err := svc.Match(ctx, "missing")
			So(errors.Is(err, service.ErrMatchNotFound), ShouldBeTrue)
		})

		Convey("When a match is submitted", func() {
			_, err := svc.SubmitMatch(ctx, oneVsOne())
			So(err, ShouldBeNil)

			Convey("Then its players should be initialized in the mode", func() {
				So(svc.Exists(1), ShouldBeTrue)
				e, err := svc.Rating(ctx, model.ModeOsu, 2)
				So(err, ShouldBeNil)
				So(e.Mu, ShouldEqual, rating.DefaultMu)
				_, err = svc.Rating(ctx, model.ModeTaiko, 2)
				So(errors.Is(err, rating.ErrRatingNotFound), ShouldBeTrue)
			})
		})
	})
}

func TestBackpressure(t *testing.T) {
	Convey("Given a service with one worker and a one-slot queue", t, func() {
		ctx := context.Background()
		svc, _ := newService(
			service.WithWorkerCount(1),
			service.WithQueueSize(1),
			service.WithPollerOptions(settlement.WithMinDeadline(time.Minute)),
		)
		So(svc.Start(ctx), ShouldBeNil)

		req := func(task int64) service.MatchRequest {
			return service.MatchRequest{Mode: model.ModeMania, TaskID: task, Length: time.Minute, Teams: []model.Team{{1}, {2}}}
		}
		first, err := svc.SubmitMatch(ctx, req(1))
		So(err, ShouldBeNil)
		for i := 0; i < 100 && svc.GetStats()["queueLength"] != 0; i++ {
			time.Sleep(2 * time.Millisecond)
		}
		second, err := svc.SubmitMatch(ctx, req(2))
		So(err, ShouldBeNil)

		Convey("When the queue is full", func() {
			_, err := svc.SubmitMatch(ctx, req(3))

			Convey("Then the submission should be refused and its keys released", func() {
				So(errors.Is(err, service.ErrBackpressure), ShouldBeTrue)
				So(svc.GetStats()["reservedKeys"], ShouldEqual, int64(4))
			})
		})

		Convey("When the service stops", func() {
			svc.Stop()

			Convey("Then in-flight and queued matches should fail", func() {
				a, _ := svc.Match(ctx, first)
				b, _ := svc.Match(ctx, second)
				So(a.Status, ShouldEqual, service.StatusFailed)
				So(b.Status, ShouldEqual, service.StatusFailed)
			})
		})

		Reset(func() { svc.Stop() })
	})
}

func TestRatingOperations(t *testing.T) {
	Convey("Given a running service", t, func() {
		ctx := context.Background()
		svc, _ := newService(service.WithMaxLeaderboardLimit(10))
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		Convey("When participants are linked", func() {
			for p := model.ParticipantID(1); p <= 3; p++ {
				e, err := svc.Link(ctx, model.ModeFruits, p)
				So(err, ShouldBeNil)
				So(e.Mu, ShouldEqual, rating.DefaultMu)
			}

			Convey("Then a simulated match should move them", func() {
				after, err := svc.Simulate(ctx, service.SimulateRequest{
					Mode:  model.ModeFruits,
					Teams: []model.Team{{3}, {1}, {2}},
				})
				So(err, ShouldBeNil)
				So(len(after), ShouldEqual, 3)

				top, err := svc.Leaderboard(ctx, model.ModeFruits, 10)
				So(err, ShouldBeNil)
				So(len(top), ShouldEqual, 3)
				So(top[0].ParticipantID, ShouldEqual, 3)
				So(top[2].ParticipantID, ShouldEqual, 2)
			})

			Convey("Then a dry run should leave them alone", func() {
				_, err := svc.Simulate(ctx, service.SimulateRequest{
					Mode:   model.ModeFruits,
					Teams:  []model.Team{{3}, {1}},
					Scores: model.ScoreMatrix{{1}, {0}},
					DryRun: true,
				})
				So(err, ShouldBeNil)
				e, _ := svc.Rating(ctx, model.ModeFruits, 3)
				So(e.Mu, ShouldEqual, rating.DefaultMu)
			})

			Convey("Then unlinking should remove one", func() {
				So(svc.Unlink(ctx, model.ModeFruits, 2), ShouldBeNil)
				_, err := svc.Rating(ctx, model.ModeFruits, 2)
				So(errors.Is(err, rating.ErrRatingNotFound), ShouldBeTrue)
				So(errors.Is(svc.Unlink(ctx, model.ModeFruits, 2), rating.ErrRatingNotFound), ShouldBeTrue)
			})

			Convey("Then predictions should be even", func() {
				p, err := svc.Predict(ctx, model.ModeFruits, []model.Team{{1}, {2}})
				So(err, ShouldBeNil)
				So(p.Win[0], ShouldAlmostEqual, 0.5, 1e-9)
				So(p.Draw, ShouldBeGreaterThan, 0)
			})
		})

		Convey("When a simulated match names an unrated player", func() {
			_, err := svc.Simulate(ctx, service.SimulateRequest{Mode: model.ModeOsu, Teams: []model.Team{{1}, {2}}})
			So(errors.Is(err, rating.ErrRatingNotFound), ShouldBeTrue)
		})

		Convey("When the leaderboard limit is out of range", func() {
			_, err := svc.Leaderboard(ctx, model.ModeOsu, 11)
			So(errors.Is(err, repository.ErrInvalidLimit), ShouldBeTrue)
			_, err = svc.Leaderboard(ctx, model.ModeOsu, 0)
			So(errors.Is(err, repository.ErrInvalidLimit), ShouldBeTrue)
		})

		Convey("When the mode is unknown", func() {
			_, err := svc.Leaderboard(ctx, "pong", 5)
			So(errors.Is(err, rating.ErrUnknownMode), ShouldBeTrue)
		})

		Convey("When stats are requested", func() {
			_, _ = svc.Link(ctx, model.ModeOsu, 5)
			stats := svc.GetStats()
			So(stats["started"], ShouldBeTrue)
			So(stats["rated"].(map[string]int)["osu"], ShouldEqual, 1)
		})
	})
}

func TestSubmitScoreWithoutSimulator(t *testing.T) {
	Convey("Given a service backed by a non-simulated source", t, func() {
		svc := service.New(service.WithScoreSource(scoresource.NewCached(scoresource.NewSimulated())))

		Convey("Then SubmitScore should refuse", func() {
			err := svc.SubmitScore(context.Background(), 1, model.ModeOsu, 1, 1)
			So(errors.Is(err, service.ErrNoSimulator), ShouldBeTrue)
		})
	})
}
