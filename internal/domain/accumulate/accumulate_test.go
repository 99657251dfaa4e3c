package accumulate_test

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/okian/gaitlog/internal/domain/accumulate"
	"github.com/okian/gaitlog/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func samples(times ...float64) []model.Sample {
	out := make([]model.Sample, len(times))
	for i, t := range times {
		out[i] = model.Sample{Time: t, Roll: t * 10, Pitch: -t}
	}
	return out
}

func TestMerge(t *testing.T) {
	convey.Convey("Given no existing session", t, func() {
		batch := samples(0, 0.01, 0.02)
		got := accumulate.Merge(nil, "left-1", 1000, len(batch), batch)

		convey.Convey("Then the batch becomes the whole session", func() {
			convey.So(got.ID, convey.ShouldEqual, "left-1")
			convey.So(got.StartTimeEpochMs, convey.ShouldEqual, 1000)
			convey.So(got.SampleCount, convey.ShouldEqual, 3)
			convey.So(got.Samples, convey.ShouldResemble, batch)
			convey.So(got.Version, convey.ShouldEqual, 1)
		})

		convey.Convey("Then the result does not alias the caller's batch", func() {
			batch[0].Time = 42
			convey.So(got.Samples[0].Time, convey.ShouldEqual, 0)
		})
	})

	convey.Convey("Given an existing session of five samples", t, func() {
		existing := model.Session{
			ID:               "left-1",
			StartTimeEpochMs: 1000,
			SampleCount:      5,
			Samples:          samples(0, 1, 2, 3, 4),
			Version:          4,
			LastBatchSeq:     2,
		}
		batch := samples(0.5, 9, 0.5)
		got := accumulate.Merge(&existing, "left-1", 2500, 3, batch)

		convey.Convey("Then counts add and samples concatenate in arrival order", func() {
			convey.So(got.SampleCount, convey.ShouldEqual, 8)
			want := append(samples(0, 1, 2, 3, 4), batch...)
			convey.So(got.Samples, convey.ShouldResemble, want)
		})

		convey.Convey("Then the newest start time wins", func() {
			convey.So(got.StartTimeEpochMs, convey.ShouldEqual, 2500)
		})

		convey.Convey("Then version advances and the batch watermark is carried", func() {
			convey.So(got.Version, convey.ShouldEqual, 5)
			convey.So(got.LastBatchSeq, convey.ShouldEqual, 2)
		})

		convey.Convey("Then the existing record is untouched", func() {
			convey.So(len(existing.Samples), convey.ShouldEqual, 5)
			convey.So(existing.SampleCount, convey.ShouldEqual, 5)
		})
	})

	convey.Convey("Given the same batch merged twice into a fresh session", t, func() {
		batch := samples(0, 0.01)
		first := accumulate.Merge(nil, "right-1", 0, 2, batch)
		second := accumulate.Merge(&first, "right-1", 0, 2, batch)

		convey.Convey("Then its contribution is doubled", func() {
			convey.So(second.SampleCount, convey.ShouldEqual, 4)
			convey.So(second.Samples, convey.ShouldResemble, append(samples(0, 0.01), samples(0, 0.01)...))
		})
	})
}

func TestStartTime(t *testing.T) {
	convey.Convey("Given a device wall clock and offset", t, func() {
		convey.Convey("When the clock uses the firmware layout", func() {
			ms, err := accumulate.StartTime("2000-01-01 00:00:10.000000", 10, nil)

			convey.Convey("Then the offset is subtracted in milliseconds", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(ms, convey.ShouldEqual, time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli())
			})
		})

		convey.Convey("When the offset is fractional", func() {
			ms, err := accumulate.StartTime("2000-01-01T00:00:01.5", 0.25, nil)

			convey.Convey("Then the result keeps millisecond precision", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(ms, convey.ShouldEqual, time.Date(2000, 1, 1, 0, 0, 1, 250e6, time.UTC).UnixMilli())
			})
		})

		convey.Convey("When the clock carries a zone", func() {
			ms, err := accumulate.StartTime("2000-01-01T02:00:00+02:00", 0, nil)

			convey.Convey("Then the zone is honoured", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(ms, convey.ShouldEqual, time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli())
			})
		})

		convey.Convey("When a device location is configured", func() {
			loc := time.FixedZone("device", 3600)
			ms, err := accumulate.StartTime("2000-01-01 01:00:00", 0, loc)

			convey.Convey("Then naive clocks are read in that location", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(ms, convey.ShouldEqual, time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli())
			})
		})

		convey.Convey("When the clock is garbage", func() {
			_, err := accumulate.StartTime("yesterday", 0, nil)

			convey.Convey("Then a format error is returned", func() {
				convey.So(errors.Is(err, accumulate.ErrTimeFormat), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the offset is not finite", func() {
			_, err := accumulate.StartTime("2000-01-01 00:00:00", math.Inf(1), nil)

			convey.Convey("Then it is rejected", func() {
				convey.So(err, convey.ShouldNotBeNil)
			})
		})
	})
}
