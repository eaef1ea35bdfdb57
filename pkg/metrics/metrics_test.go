package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with default options", func() {
			manager := NewManager(WithPrometheusRegistry(prometheus.NewRegistry()))

			Convey("Then it should use the vsrank namespace", func() {
				So(manager, ShouldNotBeNil)
				So(manager.namespace, ShouldEqual, "vsrank")
				So(manager.enabled, ShouldBeTrue)
			})
		})

		Convey("When creating with custom options", func() {
			manager := NewManager(
				WithNamespace("test_namespace"),
				WithSubsystem("test_subsystem"),
				WithMetricPrefix("test_"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithMetricsEnabled(false),
				WithRefreshInterval(5*time.Second),
				WithCustomLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(prometheus.NewRegistry()),
			)

			Convey("Then every option should be applied", func() {
				So(manager.namespace, ShouldEqual, "test_namespace")
				So(manager.subsystem, ShouldEqual, "test_subsystem")
				So(manager.metricPrefix, ShouldEqual, "test_")
				So(manager.histogramBuckets, ShouldResemble, []float64{0.1, 0.5, 1.0})
				So(manager.enabled, ShouldBeFalse)
				So(manager.refreshInterval, ShouldEqual, 5*time.Second)
				So(manager.customLabels["env"], ShouldEqual, "test")
			})
		})

		Convey("When creating with empty or invalid option values", func() {
			manager := NewManager(
				WithNamespace(""),
				WithSubsystem(""),
				WithMetricPrefix(""),
				WithHistogramBuckets(nil),
				WithRefreshInterval(-1*time.Second),
				WithCustomLabels(nil),
				WithPrometheusRegistry(prometheus.NewRegistry()),
			)

			Convey("Then defaults should be kept", func() {
				So(manager.namespace, ShouldEqual, "vsrank")
				So(manager.histogramBuckets, ShouldResemble, prometheus.DefBuckets)
				So(manager.refreshInterval, ShouldEqual, defaultRefreshInterval)
				So(manager.customLabels, ShouldNotBeNil)
			})
		})
	})
}

func TestManagerCollectors(t *testing.T) {
	Convey("Given a manager bound to a fresh registry", t, func() {
		registry := prometheus.NewRegistry()
		manager := NewManager(WithPrometheusRegistry(registry))

		Convey("When settlement collectors are updated", func() {
			manager.settlementsTotal.WithLabelValues("osu", OutcomeSettled).Inc()
			manager.settlementsTotal.WithLabelValues("osu", OutcomeVoid).Add(2)
			manager.pollRoundsDiscarded.Inc()

			Convey("Then the values should be observable", func() {
				So(testutil.ToFloat64(manager.settlementsTotal.WithLabelValues("osu", OutcomeSettled)), ShouldEqual, 1)
				So(testutil.ToFloat64(manager.settlementsTotal.WithLabelValues("osu", OutcomeVoid)), ShouldEqual, 2)
				So(testutil.ToFloat64(manager.pollRoundsDiscarded), ShouldEqual, 1)
			})
		})

		Convey("When a disabled manager is bound to the same kind of registry", func() {
			quiet := prometheus.NewRegistry()
			disabled := NewManager(WithPrometheusRegistry(quiet), WithMetricsEnabled(false))
			disabled.settlementsTotal.WithLabelValues("osu", OutcomeSettled).Inc()
			families, err := quiet.Gather()

			Convey("Then its collectors should work but stay off the registry", func() {
				So(err, ShouldBeNil)
				So(families, ShouldBeEmpty)
				So(testutil.ToFloat64(disabled.settlementsTotal.WithLabelValues("osu", OutcomeSettled)), ShouldEqual, 1)
			})
		})

		Convey("When the registry is gathered", func() {
			manager.ratedParticipants.WithLabelValues("taiko").Set(3)
			families, err := registry.Gather()

			Convey("Then metric names should carry the namespace", func() {
				So(err, ShouldBeNil)
				found := false
				for _, f := range families {
					if f.GetName() == "vsrank_rated_participants" {
						found = true
					}
				}
				So(found, ShouldBeTrue)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global metrics manager", t, func() {
		Convey("When asking for the refresh interval", func() {
			Convey("Then the default should be returned", func() {
				So(RefreshInterval(), ShouldEqual, defaultRefreshInterval)
			})
		})

		Convey("When recording settlement metrics", func() {
			before := testutil.ToFloat64(globalManager.settlementsTotal.WithLabelValues("mania", OutcomeSettled))
			RecordSettlement("mania", OutcomeSettled, 90*time.Second)

			Convey("Then the outcome counter should advance", func() {
				after := testutil.ToFloat64(globalManager.settlementsTotal.WithLabelValues("mania", OutcomeSettled))
				So(after-before, ShouldEqual, 1)
			})

			Convey("And round recorders should not panic", func() {
				So(func() {
					IncActiveSettlements()
					RecordPollRound()
					RecordPollRoundDiscarded()
					RecordScoreQuery()
					RecordScoreQueryError()
					DecActiveSettlements()
				}, ShouldNotPanic)
			})
		})

		Convey("When recording rating metrics", func() {
			before := testutil.ToFloat64(globalManager.ratingPersistenceErrors.WithLabelValues("fruits"))
			RecordRatingPersistenceError("fruits")
			UpdateRatedParticipants("fruits", 42)

			Convey("Then the rating collectors should reflect it", func() {
				So(testutil.ToFloat64(globalManager.ratingPersistenceErrors.WithLabelValues("fruits"))-before, ShouldEqual, 1)
				So(testutil.ToFloat64(globalManager.ratedParticipants.WithLabelValues("fruits")), ShouldEqual, 42)
			})

			Convey("And the remaining recorders should not panic", func() {
				So(func() {
					RecordRatingUpdate("osu")
					RecordRatingDryRun("osu")
					RecordRatingInitialization("osu")
				}, ShouldNotPanic)
			})
		})

		Convey("When recording infrastructure metrics", func() {
			So(func() {
				RecordScoreCacheHit()
				RecordScoreCacheMiss()
				RecordScoreSourceLatency(12)
				UpdateRepositoryRecordsTotal(10)
				AddRepositoryRecords(1)
				RecordRepositoryUpdateLatency(0.2)
				RecordRepositoryQueryLatency(0.1)
				RecordStorageLatency("sqlite", "upsert", 1.5)
				RecordStorageError("redis", "scan")
				UpdateQueueSize(3)
				UpdateQueueCapacity(10)
				UpdateQueueUtilization(0.3)
				RecordQueueEnqueue()
				RecordQueueDequeue()
				RecordQueueEnqueueError()
				UpdateWorkerActiveCount(4)
				IncWorkerBusy()
				DecWorkerBusy()
				RecordWorkerError()
				RecordWorkerProcessing(time.Second)
				RecordHTTPRequest("/matches", "POST", "202")
				RecordHTTPRequestDuration("/matches", "POST", "202", 3)
				RecordErrorByComponent("settlement", "void")
				RecordErrorByEndpoint("/ratings", "GET", "not_found")
				UpdateSystemMemoryUsage(1 << 20)
				UpdateSystemGoroutineCount(12)
				RecordSystemGCPauseTime(0.5)
			}, ShouldNotPanic)

			Convey("Then the queue gauge should hold the last value", func() {
				So(testutil.ToFloat64(globalManager.queueSize), ShouldEqual, 3)
			})
		})
	})
}

func TestMetricsConcurrency(t *testing.T) {
	Convey("Given concurrent recorders", t, func() {
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 100; j++ {
					RecordPollRound()
					RecordRatingUpdate("osu")
					RecordHTTPRequest("/leaderboard", "GET", "200")
				}
			}()
		}
		wg.Wait()

		Convey("Then the registry should still gather", func() {
			_, err := GetRegistry().Gather()
			So(err, ShouldBeNil)
		})
	})
}
