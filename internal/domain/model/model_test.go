package model_test

import (
	"errors"
	"testing"
	"time"

	model "github.com/okian/vsrank/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestParseMode(t *testing.T) {
	convey.Convey("Given mode names", t, func() {
		convey.Convey("When parsing canonical names and aliases", func() {
			cases := map[string]model.Mode{
				"osu":      model.ModeOsu,
				"standard": model.ModeOsu,
				"Taiko":    model.ModeTaiko,
				"catch":    model.ModeFruits,
				"fruits":   model.ModeFruits,
				" mania ":  model.ModeMania,
			}

			convey.Convey("Then each should resolve to its mode", func() {
				for in, want := range cases {
					got, err := model.ParseMode(in)
					convey.So(err, convey.ShouldBeNil)
					convey.So(got, convey.ShouldEqual, want)
					convey.So(got.Valid(), convey.ShouldBeTrue)
				}
			})
		})

		convey.Convey("When parsing an unknown name", func() {
			_, err := model.ParseMode("chess")

			convey.Convey("Then it should return ErrUnknownMode", func() {
				convey.So(errors.Is(err, model.ErrUnknownMode), convey.ShouldBeTrue)
				convey.So(model.Mode("chess").Valid(), convey.ShouldBeFalse)
			})
		})
	})
}

func TestValidateTeams(t *testing.T) {
	convey.Convey("Given team layouts", t, func() {
		convey.Convey("When teams are disjoint and non-empty", func() {
			err := model.ValidateTeams([]model.Team{{1, 2}, {3}})

			convey.Convey("Then they should be valid", func() {
				convey.So(err, convey.ShouldBeNil)
			})
		})

		convey.Convey("When there are no teams", func() {
			convey.So(errors.Is(model.ValidateTeams(nil), model.ErrNoTeams), convey.ShouldBeTrue)
		})

		convey.Convey("When a team is empty", func() {
			err := model.ValidateTeams([]model.Team{{1}, {}})
			convey.So(errors.Is(err, model.ErrEmptyTeam), convey.ShouldBeTrue)
		})

		convey.Convey("When a participant is on two teams", func() {
			err := model.ValidateTeams([]model.Team{{1, 2}, {2}})
			convey.So(errors.Is(err, model.ErrDuplicateParticipant), convey.ShouldBeTrue)
		})
	})
}

func TestScoreMatrix(t *testing.T) {
	convey.Convey("Given a score matrix", t, func() {
		teams := []model.Team{{1, 2}, {3}}
		m := model.NewScoreMatrix(teams)

		convey.Convey("When it is freshly created", func() {
			convey.Convey("Then it should be zeroed and shaped like the teams", func() {
				convey.So(m.Matches(teams), convey.ShouldBeTrue)
				convey.So(m.Total(), convey.ShouldEqual, 0)
			})
		})

		convey.Convey("When scores are filled in", func() {
			m[0][0], m[0][1], m[1][0] = 100, 50, 120

			convey.Convey("Then totals should be summed per team and overall", func() {
				convey.So(m.TeamTotals(), convey.ShouldResemble, []float64{150, 120})
				convey.So(m.Total(), convey.ShouldEqual, 270)
			})

			convey.Convey("Then a clone should not share rows", func() {
				c := m.Clone()
				c[0][0] = 0
				convey.So(m[0][0], convey.ShouldEqual, 100)
			})
		})

		convey.Convey("When compared with a different shape", func() {
			convey.So(m.Matches([]model.Team{{1}, {3}}), convey.ShouldBeFalse)
			convey.So(m.Matches([]model.Team{{1, 2}}), convey.ShouldBeFalse)
		})
	})
}

func TestMatchJobKeys(t *testing.T) {
	convey.Convey("Given a match job", t, func() {
		job := model.MatchJob{
			ID:    "m1",
			Teams: []model.Team{{7}, {9, 11}},
			Task:  model.Task{ID: 129891, Mode: model.ModeTaiko, Length: 2 * time.Minute},
		}

		convey.Convey("Then it should reserve one key per participant", func() {
			convey.So(job.Keys(), convey.ShouldResemble, []string{
				"taiko:129891:7",
				"taiko:129891:9",
				"taiko:129891:11",
			})
			convey.So(model.Participants(job.Teams), convey.ShouldResemble, []model.ParticipantID{7, 9, 11})
		})
	})
}
