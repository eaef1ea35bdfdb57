package scoresource

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/vsrank/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestSimulated(t *testing.T) {
	Convey("Given a simulated source", t, func() {
		ctx := context.Background()
		sim := NewSimulated(WithLatencyRange(0, 0))

		Convey("When nothing was played", func() {
			scores, err := sim.RecentScores(ctx, 1, model.ModeOsu)

			Convey("Then the history should be empty", func() {
				So(err, ShouldBeNil)
				So(scores, ShouldBeEmpty)
			})
		})

		Convey("When plays are submitted", func() {
			sim.Submit(1, model.ModeOsu, 100, 5000)
			sim.Submit(1, model.ModeOsu, 200, 7000)
			sim.Submit(1, model.ModeOsu, 100, 9000)
			sim.Submit(1, model.ModeMania, 100, 1)

			Convey("Then they should be served newest first per mode", func() {
				scores, err := sim.RecentScores(ctx, 1, model.ModeOsu)
				So(err, ShouldBeNil)
				So(len(scores), ShouldEqual, 3)
				first, ok := model.FirstFor(scores, 100)
				So(ok, ShouldBeTrue)
				So(first.Value, ShouldEqual, 9000)
				_, ok = model.FirstFor(scores, 300)
				So(ok, ShouldBeFalse)
			})
		})

		Convey("When a participant is set to fail", func() {
			boom := errors.New("rate limited")
			sim.Fail(3, boom)
			_, err := sim.RecentScores(ctx, 3, model.ModeOsu)

			Convey("Then lookups should return the error until cleared", func() {
				So(errors.Is(err, boom), ShouldBeTrue)
				sim.Fail(3, nil)
				_, err = sim.RecentScores(ctx, 3, model.ModeOsu)
				So(err, ShouldBeNil)
			})
		})

		Convey("When the lookup outlives the context", func() {
			slow := NewSimulated(WithLatencyRange(200*time.Millisecond, 300*time.Millisecond))
			short, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
			defer cancel()
			_, err := slow.RecentScores(short, 1, model.ModeOsu)

			Convey("Then it should be cancelled", func() {
				So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
			})
		})

		Convey("When resolving beatmaps", func() {
			sim.AddBeatmap(model.Task{ID: 9, Mode: model.ModeFruits, Length: 90 * time.Second})
			task, err := sim.Beatmap(ctx, 9)
			_, missing := sim.Beatmap(ctx, 10)

			Convey("Then registered beatmaps should resolve", func() {
				So(err, ShouldBeNil)
				So(task.Mode, ShouldEqual, model.ModeFruits)
				So(errors.Is(missing, ErrBeatmapNotFound), ShouldBeTrue)
			})
		})
	})
}
