package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	dedupe "github.com/okian/gaitlog/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemoryDeduper(t *testing.T) {
	ctx := context.Background()

	Convey("Given a new InMemoryDeduper", t, func() {
		d := dedupe.NewInMemoryDeduper()
		So(d.Size(), ShouldEqual, 0)

		Convey("When a key is only checked", func() {
			key := dedupe.BatchKey("left-1", 1)

			Convey("Then checking does not record it", func() {
				So(d.Seen(ctx, key), ShouldBeFalse)
				So(d.Seen(ctx, key), ShouldBeFalse)
				So(d.Size(), ShouldEqual, 0)
			})
		})

		Convey("When a batch key is recorded", func() {
			key := dedupe.BatchKey("left-1", 1)
			added := d.Record(ctx, key)

			Convey("Then it is added once and seen afterwards", func() {
				So(added, ShouldBeTrue)
				So(d.Seen(ctx, key), ShouldBeTrue)
				So(d.Record(ctx, key), ShouldBeFalse)
				So(d.Size(), ShouldEqual, 1)
			})

			Convey("Then another sequence of the same session is independent", func() {
				So(d.Seen(ctx, dedupe.BatchKey("left-1", 2)), ShouldBeFalse)
				So(d.Record(ctx, dedupe.BatchKey("left-1", 2)), ShouldBeTrue)
				So(d.Size(), ShouldEqual, 2)
			})
		})

		Convey("When a session is forgotten", func() {
			for seq := int64(1); seq <= 3; seq++ {
				d.Record(ctx, dedupe.BatchKey("left-1", seq))
			}
			d.Record(ctx, dedupe.BatchKey("right-1", 1))
			d.Forget(ctx, "left-1")

			Convey("Then only that session's keys are dropped", func() {
				So(d.Size(), ShouldEqual, 1)
				So(d.Seen(ctx, dedupe.BatchKey("left-1", 2)), ShouldBeFalse)
				So(d.Seen(ctx, dedupe.BatchKey("right-1", 1)), ShouldBeTrue)
			})
		})

		Convey("When an unknown session is forgotten", func() {
			d.Forget(ctx, "nonexistent")

			Convey("Then nothing changes", func() {
				So(d.Size(), ShouldEqual, 0)
			})
		})

		Convey("When session ids themselves contain the separator", func() {
			d.Record(ctx, dedupe.BatchKey("odd#name", 1))
			d.Forget(ctx, "odd#name")

			Convey("Then forgetting still matches the whole id", func() {
				So(d.Size(), ShouldEqual, 0)
			})
		})
	})

	Convey("Given a bounded deduper", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(3))
		for i := 1; i <= 3; i++ {
			So(d.Record(ctx, fmt.Sprintf("s#%d", i)), ShouldBeTrue)
		}

		Convey("When one more key arrives", func() {
			d.Record(ctx, "s#4")

			Convey("Then the oldest key is evicted", func() {
				So(d.Size(), ShouldEqual, 3)
				So(d.Seen(ctx, "s#4"), ShouldBeTrue)
				So(d.Seen(ctx, "s#3"), ShouldBeTrue)
				So(d.Seen(ctx, "s#2"), ShouldBeTrue)
				So(d.Seen(ctx, "s#1"), ShouldBeFalse)
			})
		})
	})

	Convey("Given an unbounded deduper", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(-1))

		Convey("When many keys are recorded", func() {
			const n = 1000
			for i := 0; i < n; i++ {
				d.Record(ctx, dedupe.BatchKey("s", int64(i)))
			}

			Convey("Then none are evicted", func() {
				So(d.Size(), ShouldEqual, int64(n))
				So(d.Seen(ctx, dedupe.BatchKey("s", 0)), ShouldBeTrue)
			})
		})
	})
}

func TestDedupeConcurrency(t *testing.T) {
	Convey("Given a deduper with concurrent access", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(1000))
		const workers = 10
		const perWorker = 100

		Convey("When the same keys race from several goroutines", func() {
			var wg sync.WaitGroup
			var mu sync.Mutex
			fresh := 0
			for w := 0; w < workers; w++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for j := 0; j < perWorker; j++ {
						if d.Record(context.Background(), dedupe.BatchKey("left-1", int64(j))) {
							mu.Lock()
							fresh++
							mu.Unlock()
						}
					}
				}()
			}
			wg.Wait()

			Convey("Then each key is added exactly once", func() {
				So(fresh, ShouldEqual, perWorker)
				So(d.Size(), ShouldEqual, int64(perWorker))
			})
		})
	})
}
