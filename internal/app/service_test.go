package service_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	service "github.com/okian/playstack/internal/app"
	"github.com/okian/playstack/internal/domain/aggregate"
	"github.com/okian/playstack/internal/domain/classify"
	"github.com/okian/playstack/internal/domain/freshness"
	"github.com/okian/playstack/internal/domain/model"
	"github.com/okian/playstack/internal/domain/overlay"
	"github.com/okian/playstack/internal/domain/ratelimit"
	. "github.com/smartystreets/goconvey/convey"
)

func f64(v float64) *float64 { return &v }
func intp(v int) *int        { return &v }
func strp(v string) *string  { return &v }

func teamEvents() []model.PlayEvent {
	return []model.PlayEvent{
		{ID: "e1", TeamID: "t1", GameID: "g1", PlayFamily: model.FamilyRun, GainedYards: f64(12), Down: intp(1), Distance: f64(10), BallOn: strp("O25"), CreatedAt: "2024-09-01T18:00:00Z"},
		{ID: "e2", TeamID: "t1", GameID: "g1", PlayFamily: model.FamilyPass, GainedYards: f64(20), Down: intp(2), Distance: f64(8), BallOn: strp("O37"), CreatedAt: "2024-09-01T18:00:20Z"},
	}
}

func teamGames() []model.GameMeta {
	return []model.GameMeta{{ID: "g1", OpponentName: "Hawks", StartTime: "2024-09-01T17:00:00Z", Status: "final"}}
}

// waitLatest polls until a recompute result for teamID shows up.
func waitLatest(svc *service.Service, teamID string) (aggregate.Result, bool) {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if res, ok := svc.Latest(teamID); ok {
			return res, true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return aggregate.Result{}, false
}

func TestService_New(t *testing.T) {
	Convey("Given a new service with default options", t, func() {
		svc := service.New()

		Convey("Then it reports sensible stats before starting", func() {
			stats := svc.GetStats()
			So(stats["started"], ShouldEqual, false)
			So(stats["ratePoints"], ShouldEqual, 60)
			So(stats["rateWindowMs"], ShouldEqual, int64(60000))
			So(stats["teams"], ShouldEqual, 0)
		})
	})

	Convey("Given a new service with custom options", t, func() {
		svc := service.New(
			service.WithWorkerCount(2),
			service.WithQueueSize(100),
			service.WithDedupeSize(50),
			service.WithRateLimit(5, time.Second),
		)

		Convey("Then the options are applied", func() {
			stats := svc.GetStats()
			So(stats["workerCount"], ShouldEqual, 2)
			So(stats["queueSize"], ShouldEqual, 100)
			So(stats["dedupeSize"], ShouldEqual, 50)
			So(stats["ratePoints"], ShouldEqual, 5)
		})
	})
}

func TestService_StartStop(t *testing.T) {
	Convey("Given a new service", t, func() {
		svc := service.New(service.WithWorkerCount(2))
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		Convey("When starting it twice", func() {
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.Start(ctx), ShouldBeNil)
			defer svc.Stop()

			Convey("Then it is marked as started", func() {
				stats := svc.GetStats()
				So(stats["started"], ShouldEqual, true)
				So(stats["queueLength"], ShouldEqual, 0)
			})
		})

		Convey("When stopping it", func() {
			So(svc.Start(ctx), ShouldBeNil)
			svc.Stop()
			svc.Stop()

			Convey("Then it is marked as stopped and refuses work", func() {
				So(svc.GetStats()["started"], ShouldEqual, false)
				So(svc.Submit(ctx, model.Notification{ID: "n", TeamID: "t1"}), ShouldBeFalse)
			})
		})
	})
}

func TestService_Summarize(t *testing.T) {
	Convey("Given a service with a two call budget", t, func() {
		ctx := context.Background()
		clock := clockwork.NewFakeClock()
		svc := service.New(service.WithRateLimit(2, time.Minute), service.WithClock(clock))
		req := service.Request{TeamID: "t1", Events: teamEvents(), Games: teamGames()}

		Convey("When summarizing", func() {
			res, err := svc.Summarize(ctx, "tenant-a", req)

			Convey("Then stacks are built with default thresholds", func() {
				So(err, ShouldBeNil)
				So(len(res.Stacks), ShouldEqual, 1)
				So(res.Stacks[0].Plays, ShouldEqual, 2)
				So(res.Stacks[0].ExplosiveRate, ShouldEqual, 1.0)
				So(*res.Aggregate.LastEventAt, ShouldEqual, "2024-09-01T18:00:20.000Z")
			})
		})

		Convey("When the budget is spent", func() {
			_, err := svc.Summarize(ctx, "tenant-a", req)
			So(err, ShouldBeNil)
			first, err := svc.Summarize(ctx, "tenant-a", req)
			So(err, ShouldBeNil)
			So(first.CacheHit, ShouldBeTrue)

			_, err = svc.Summarize(ctx, "tenant-a", req)

			Convey("Then the third call is limited", func() {
				var le *ratelimit.LimitError
				So(errors.As(err, &le), ShouldBeTrue)
				So(errors.Is(err, ratelimit.ErrRateLimited), ShouldBeTrue)
				So(le.Status, ShouldEqual, http.StatusTooManyRequests)
				So(le.RetryAt, ShouldEqual, clock.Now().Add(time.Minute).UnixMilli())
			})

			Convey("And another tenant key is unaffected", func() {
				_, err := svc.Summarize(ctx, "tenant-b", req)
				So(err, ShouldBeNil)
			})

			Convey("And the budget returns after the window", func() {
				clock.Advance(time.Minute + time.Millisecond)
				_, err := svc.Summarize(ctx, "tenant-a", req)
				So(err, ShouldBeNil)
			})
		})

		Convey("When no tenant key is given", func() {
			_, _ = svc.Summarize(ctx, "", req)
			_, _ = svc.Summarize(ctx, "", req)
			_, err := svc.Summarize(ctx, "t1", req)

			Convey("Then the team ID is charged", func() {
				So(errors.Is(err, ratelimit.ErrRateLimited), ShouldBeTrue)
			})
		})

		Convey("When the team ID is missing", func() {
			_, err := svc.Summarize(ctx, "tenant-a", service.Request{})
			So(errors.Is(err, service.ErrInvalidTeamID), ShouldBeTrue)
		})

		Convey("When stored preferences raise the thresholds", func() {
			So(svc.SetPreferences(ctx, "t1", model.Preferences{
				ExplosiveRunYards:  f64(18),
				ExplosivePassYards: f64(30),
			}), ShouldBeNil)
			res, err := svc.Summarize(ctx, "tenant-a", req)

			Convey("Then no play is explosive", func() {
				So(err, ShouldBeNil)
				So(res.Stacks[0].ExplosiveRate, ShouldEqual, 0.0)
			})

			Convey("And request preferences win over stored ones", func() {
				res, err := svc.Summarize(ctx, "tenant-a", service.Request{
					TeamID: "t1", Events: teamEvents(), Games: teamGames(),
					Preferences: &model.Preferences{ExplosiveRunYards: f64(10), ExplosivePassYards: f64(15)},
				})
				So(err, ShouldBeNil)
				So(res.Stacks[0].ExplosiveRate, ShouldEqual, 1.0)
			})
		})
	})
}

func TestService_Preferences(t *testing.T) {
	Convey("Given a service", t, func() {
		ctx := context.Background()
		svc := service.New()

		Convey("When storing invalid preferences", func() {
			err := svc.SetPreferences(ctx, "t1", model.Preferences{ExplosiveRunYards: f64(-3)})

			Convey("Then they are rejected with a validation error", func() {
				var ve *overlay.ValidationError
				So(errors.As(err, &ve), ShouldBeTrue)
				_, ok := svc.Preferences("t1")
				So(ok, ShouldBeFalse)
			})
		})

		Convey("When storing valid preferences", func() {
			So(svc.SetPreferences(ctx, "t1", model.Preferences{ExplosiveRunYards: f64(18)}), ShouldBeNil)

			Convey("Then they can be read back", func() {
				p, ok := svc.Preferences("t1")
				So(ok, ShouldBeTrue)
				So(*p.ExplosiveRunYards, ShouldEqual, 18.0)
			})
		})

		Convey("When the team ID is blank", func() {
			So(errors.Is(svc.SetPreferences(ctx, " ", model.Preferences{}), service.ErrInvalidTeamID), ShouldBeTrue)
		})
	})
}

func TestService_Recompute(t *testing.T) {
	Convey("Given a started service", t, func() {
		ctx := context.Background()
		svc := service.New(service.WithWorkerCount(2), service.WithQueueSize(16))
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		Convey("When events are ingested", func() {
			count, queued, err := svc.Ingest(ctx, "t1", teamEvents(), teamGames())
			So(err, ShouldBeNil)
			So(count, ShouldEqual, 2)
			So(queued, ShouldBeTrue)

			Convey("Then a worker publishes the latest result", func() {
				res, ok := waitLatest(svc, "t1")
				So(ok, ShouldBeTrue)
				So(res.Aggregate.Plays, ShouldEqual, 2)
				So(res.Stacks[0].Opponent, ShouldEqual, "Hawks")
			})
		})

		Convey("When a notification is redelivered", func() {
			n := model.Notification{ID: "dup-1", TeamID: "unknown"}
			So(svc.Submit(ctx, n), ShouldBeTrue)
			So(svc.Submit(ctx, n), ShouldBeTrue)

			Convey("Then it is remembered once", func() {
				So(svc.GetStats()["seenNotifications"], ShouldEqual, int64(1))
			})
		})

		Convey("When recomputing an unknown team directly", func() {
			err := svc.Recompute(ctx, model.Notification{TeamID: "ghost"})

			Convey("Then the load error is returned", func() {
				So(err, ShouldNotBeNil)
				_, ok := svc.Latest("ghost")
				So(ok, ShouldBeFalse)
			})
		})

		Convey("When ingesting for a blank team", func() {
			_, _, err := svc.Ingest(ctx, "", teamEvents(), nil)
			So(errors.Is(err, service.ErrInvalidTeamID), ShouldBeTrue)
		})
	})
}

func TestService_Freshness(t *testing.T) {
	Convey("Given a service", t, func() {
		svc := service.New()
		now := time.Date(2024, 9, 1, 18, 1, 0, 0, time.UTC)

		Convey("Then freshness follows the evaluator thresholds", func() {
			So(svc.Freshness(strp("2024-09-01T18:00:40Z"), now).State, ShouldEqual, freshness.Fresh)
			So(svc.Freshness(strp("2024-09-01T17:59:00Z"), now).State, ShouldEqual, freshness.Stale)
			So(svc.Freshness(strp("2024-09-01T17:00:00Z"), now).State, ShouldEqual, freshness.Offline)
			So(svc.Freshness(nil, now).State, ShouldEqual, freshness.Offline)
		})
	})
}

func TestService_ClassifierOptions(t *testing.T) {
	Convey("Given services with and without a fixed 1st-down minimum", t, func() {
		ctx := context.Background()
		req := service.Request{TeamID: "t1", Events: teamEvents(), Games: teamGames()}

		plain := service.New()
		strict := service.New(service.WithClassifierOptions(classify.WithFirstDownMinYards(15)))

		a, errA := plain.Summarize(ctx, "", req)
		b, errB := strict.Summarize(ctx, "", req)

		Convey("Then the 12-yard 1st-down run only succeeds under the fractional rule", func() {
			So(errA, ShouldBeNil)
			So(errB, ShouldBeNil)
			So(a.Aggregate.SuccessRate, ShouldEqual, 1.0)
			So(b.Aggregate.SuccessRate, ShouldEqual, 0.5)
		})
	})
}
