package freshness_test

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/okian/playstack/internal/domain/freshness"
	. "github.com/smartystreets/goconvey/convey"
)

func strp(s string) *string { return &s }

func TestCompute(t *testing.T) {
	Convey("Given a last-update timestamp", t, func() {
		base := time.Date(2024, 9, 1, 18, 0, 0, 0, time.UTC)
		last := strp(base.Format(time.RFC3339Nano))
		nowMs := base.UnixMilli()

		Convey("Then the boundaries are inclusive", func() {
			So(freshness.ComputeMillis(last, nowMs), ShouldEqual, freshness.Fresh)
			So(freshness.ComputeMillis(last, nowMs+30000), ShouldEqual, freshness.Fresh)
			So(freshness.ComputeMillis(last, nowMs+30001), ShouldEqual, freshness.Stale)
			So(freshness.ComputeMillis(last, nowMs+150000), ShouldEqual, freshness.Stale)
			So(freshness.ComputeMillis(last, nowMs+150001), ShouldEqual, freshness.Offline)
		})

		Convey("And a future timestamp is fresh", func() {
			So(freshness.ComputeMillis(last, nowMs-5000), ShouldEqual, freshness.Fresh)
		})

		Convey("And millisecond precision is honored", func() {
			withMs := strp("2024-09-01T18:00:00.250Z")
			So(freshness.ComputeMillis(withMs, nowMs+30250), ShouldEqual, freshness.Fresh)
			So(freshness.ComputeMillis(withMs, nowMs+30251), ShouldEqual, freshness.Stale)
		})
	})

	Convey("Given no usable timestamp", t, func() {
		now := time.Now()
		So(freshness.Compute(nil, now), ShouldEqual, freshness.Offline)
		So(freshness.Compute(strp(""), now), ShouldEqual, freshness.Offline)
		So(freshness.Compute(strp("not a date"), now), ShouldEqual, freshness.Offline)
	})
}

func TestFormatRelative(t *testing.T) {
	Convey("Given ages across each threshold", t, func() {
		cases := []struct {
			age  time.Duration
			want string
		}{
			{-time.Second, "just now"},
			{0, "just now"},
			{999 * time.Millisecond, "just now"},
			{time.Second, "1s ago"},
			{59999 * time.Millisecond, "59s ago"},
			{time.Minute, "1m ago"},
			{59*time.Minute + 59*time.Second, "59m ago"},
			{time.Hour, "1h ago"},
			{23*time.Hour + 59*time.Minute, "23h ago"},
			{24 * time.Hour, "1d ago"},
			{72*time.Hour + time.Hour, "3d ago"},
		}
		for _, c := range cases {
			So(freshness.FormatRelative(c.age), ShouldEqual, c.want)
		}
	})
}

func TestDescribe(t *testing.T) {
	Convey("Given an evaluator on a fake clock", t, func() {
		start := time.Date(2024, 9, 1, 18, 0, 0, 0, time.UTC)
		clock := clockwork.NewFakeClockAt(start)
		ev := freshness.NewEvaluator(clock)
		last := strp("2024-09-01T18:00:00.000Z")

		Convey("When time advances", func() {
			first := ev.Describe(last)
			clock.Advance(45 * time.Second)
			second := ev.Describe(last)
			clock.Advance(10 * time.Minute)
			third := ev.Describe(last)

			Convey("Then state and label follow", func() {
				So(first, ShouldResemble, freshness.Status{State: freshness.Fresh, Label: "just now"})
				So(second.State, ShouldEqual, freshness.Stale)
				So(second.Label, ShouldEqual, "45s ago")
				So(second.Age, ShouldEqual, 45*time.Second)
				So(third.State, ShouldEqual, freshness.Offline)
				So(third.Label, ShouldEqual, "10m ago")
			})
		})

		Convey("When nothing was ever recorded", func() {
			So(ev.Describe(nil), ShouldResemble, freshness.Status{State: freshness.Offline, Label: "never"})
		})
	})
}
