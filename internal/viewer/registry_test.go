package viewer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/gaitlog/internal/domain/types"
)

// fakeFetcher serves canned data. Detail blocks on gate when it is set and
// closes returned[id] after it returns.
type fakeFetcher struct {
	mu       sync.Mutex
	entries  []types.Entry
	listErr  error
	details  map[string]types.Detail
	gate     chan struct{}
	returned map[string]chan struct{}
	calls    int
}

func (f *fakeFetcher) List(context.Context) ([]types.Entry, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]types.Entry(nil), f.entries...), nil
}

func (f *fakeFetcher) Detail(ctx context.Context, id string) (types.Detail, error) {
	f.mu.Lock()
	f.calls++
	done := f.returned[id]
	f.mu.Unlock()
	if done != nil {
		defer close(done)
	}
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return types.Detail{}, ctx.Err()
		}
	}
	d, ok := f.details[id]
	if !ok {
		return types.Detail{}, ErrNotFound
	}
	return d, nil
}

func detail(id string) types.Detail {
	return types.Detail{Entry: types.Entry{SessionID: id}}
}

func waitFor(ch chan struct{}) {
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		panic("timed out")
	}
}

func TestRegistry_List(t *testing.T) {
	Convey("Given a registry over a list of sessions", t, func() {
		f := &fakeFetcher{entries: []types.Entry{
			{SessionID: "a", StartTimeEpochMs: 2000},
			{SessionID: "b", StartTimeEpochMs: 5000},
			{SessionID: "c", StartTimeEpochMs: 1000},
			{SessionID: "d", StartTimeEpochMs: 3000},
		}}
		r := NewRegistry(f, NewSelection())

		Convey("When the list is fetched", func() {
			got, err := r.List(context.Background())

			Convey("Then entries are ordered by start time, newest first", func() {
				So(err, ShouldBeNil)
				ids := make([]string, len(got))
				for i, e := range got {
					ids[i] = e.SessionID
				}
				So(ids, ShouldResemble, []string{"b", "d", "a", "c"})
				for i := 1; i < len(got); i++ {
					So(got[i-1].StartTimeEpochMs, ShouldBeGreaterThan, got[i].StartTimeEpochMs)
				}
			})

			Convey("And a later failing fetch keeps the prior list", func() {
				f.listErr = errors.New("offline")
				_, err := r.List(context.Background())
				So(err, ShouldNotBeNil)
				So(r.Entries(), ShouldHaveLength, 4)
				So(r.Entries()[0].SessionID, ShouldEqual, "b")
			})
		})
	})
}

func TestRegistry_Toggle(t *testing.T) {
	Convey("Given a registry with a slow detail endpoint", t, func() {
		ctx := context.Background()
		f := &fakeFetcher{
			details:  map[string]types.Detail{"left-1": detail("left-1"), "right-1": detail("right-1")},
			gate:     make(chan struct{}),
			returned: map[string]chan struct{}{"left-1": make(chan struct{})},
		}
		sel := NewSelection()
		var changes int
		var mu sync.Mutex
		r := NewRegistry(f, sel, WithOnChange(func() {
			mu.Lock()
			changes++
			mu.Unlock()
		}))

		Convey("When a session is toggled on", func() {
			So(r.Toggle(ctx, "left-1"), ShouldEqual, Loading)
			So(r.State("left-1"), ShouldEqual, Loading)
			So(sel.Has("left-1"), ShouldBeFalse)

			Convey("Then it becomes active once the fetch lands", func() {
				close(f.gate)
				So(r.Wait(ctx), ShouldBeNil)
				So(r.State("left-1"), ShouldEqual, Active)
				So(sel.IDs(), ShouldResemble, []string{"left-1"})
				mu.Lock()
				So(changes, ShouldEqual, 1)
				mu.Unlock()

				Convey("And toggling again deactivates it without a fetch", func() {
					So(r.Toggle(ctx, "left-1"), ShouldEqual, Inactive)
					So(sel.Len(), ShouldEqual, 0)
					So(f.calls, ShouldEqual, 1)
				})
			})

			Convey("Then toggling off before the fetch lands discards the result", func() {
				So(r.Toggle(ctx, "left-1"), ShouldEqual, Inactive)
				close(f.gate)
				waitFor(f.returned["left-1"])
				So(r.Wait(ctx), ShouldBeNil)

				So(r.State("left-1"), ShouldEqual, Inactive)
				So(sel.Has("left-1"), ShouldBeFalse)
				So(BuildPlot(sel.Details()).Curves, ShouldBeEmpty)
				mu.Lock()
				So(changes, ShouldEqual, 0)
				mu.Unlock()
			})
		})

		Convey("When the fetch fails", func() {
			close(f.gate)
			r.Toggle(ctx, "ghost")
			So(r.Wait(ctx), ShouldBeNil)

			Convey("Then the row stays inactive and the error is kept", func() {
				So(r.State("ghost"), ShouldEqual, Inactive)
				So(errors.Is(r.Err("ghost"), ErrNotFound), ShouldBeTrue)
				So(sel.Len(), ShouldEqual, 0)
			})
		})

		Convey("When two sessions are activated", func() {
			close(f.gate)
			r.Toggle(ctx, "right-1")
			So(r.Wait(ctx), ShouldBeNil)
			r.Toggle(ctx, "left-1")
			So(r.Wait(ctx), ShouldBeNil)

			Convey("Then the selection keeps activation order", func() {
				So(sel.IDs(), ShouldResemble, []string{"right-1", "left-1"})
			})
		})
	})
}

func TestRowState_String(t *testing.T) {
	Convey("Row states have readable names", t, func() {
		So(Inactive.String(), ShouldEqual, "inactive")
		So(Loading.String(), ShouldEqual, "loading")
		So(Active.String(), ShouldEqual, "active")
	})
}
