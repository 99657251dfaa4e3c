package viewer

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/gaitlog/internal/domain/types"
)

func stepDetail(id string, time, pitch, roll []float64) types.Detail {
	d := detail(id)
	d.AverageStep = types.AverageStep{Time: time, Pitch: pitch, Roll: roll}
	return d
}

var pngMagic = []byte("\x89PNG")

func TestBuildPlot(t *testing.T) {
	Convey("Given two sessions on different ranges", t, func() {
		left := stepDetail("left-a", []float64{0, 0.5, 1.0}, []float64{10, -40, 5}, []float64{2, 3, 1})
		right := stepDetail("right-b", []float64{0, 0.6, 1.2}, []float64{20, -60, 15}, []float64{-5, -2, 0})

		Convey("When both are plotted", func() {
			p := BuildPlot([]types.Detail{left, right})

			Convey("Then the scales span the union of every value", func() {
				So(p.X, ShouldResemble, Scale{Min: 0, Max: 1.2})
				So(p.Y, ShouldResemble, Scale{Min: -60, Max: 20})
			})

			Convey("Then each session adds a pitch and a roll curve coloured by foot", func() {
				So(p.Curves, ShouldHaveLength, 4)
				So(p.Curves[0].Color, ShouldEqual, ColorPitchLeft)
				So(p.Curves[1].Color, ShouldEqual, ColorRollLeft)
				So(p.Curves[2].Color, ShouldEqual, ColorPitchRight)
				So(p.Curves[3].Color, ShouldEqual, ColorRollRight)
				So(p.Curves[3].Kind, ShouldEqual, "roll")
			})
		})

		Convey("When one session is removed", func() {
			p := BuildPlot([]types.Detail{left})

			Convey("Then the scales shrink to the remaining session", func() {
				So(p.X, ShouldResemble, Scale{Min: 0, Max: 1.0})
				So(p.Y, ShouldResemble, Scale{Min: -40, Max: 10})
			})
		})

		Convey("When every value is equal", func() {
			flat := stepDetail("right-flat", []float64{1, 1}, []float64{3, 3}, []float64{3, 3})
			p := BuildPlot([]types.Detail{flat})

			Convey("Then the scales are padded to a non-zero span", func() {
				So(p.X, ShouldResemble, Scale{Min: 0, Max: 2})
				So(p.Y, ShouldResemble, Scale{Min: 2, Max: 4})
			})
		})

		Convey("When nothing is selected", func() {
			So(BuildPlot(nil).Curves, ShouldBeEmpty)
		})
	})
}

func TestRenderer(t *testing.T) {
	Convey("Given a renderer over a memory canvas", t, func() {
		canvas := &MemoryCanvas{}
		r := NewRenderer(canvas, WithSize(400, 300))
		sel := NewSelection()

		Convey("When the selection has sessions", func() {
			sel.Add(stepDetail("left-a", []float64{0, 0.5, 1.0}, []float64{10, -40, 5}, []float64{2, 3, 1}))
			So(r.Render(sel), ShouldBeNil)

			Convey("Then a PNG frame is drawn", func() {
				So(bytes.HasPrefix(canvas.Frame(), pngMagic), ShouldBeTrue)
			})

			Convey("And emptying the selection clears the canvas", func() {
				sel.Remove("left-a")
				So(r.Render(sel), ShouldBeNil)
				So(canvas.Frame(), ShouldBeNil)
				draws, clears := canvas.Counts()
				So(draws, ShouldEqual, 1)
				So(clears, ShouldEqual, 1)
			})
		})
	})

	Convey("Given a file canvas", t, func() {
		path := filepath.Join(t.TempDir(), "chart.png")
		c := FileCanvas{Path: path}

		So(c.Draw(pngMagic), ShouldBeNil)
		b, err := os.ReadFile(path)
		So(err, ShouldBeNil)
		So(b, ShouldResemble, pngMagic)

		So(c.Clear(), ShouldBeNil)
		_, err = os.Stat(path)
		So(os.IsNotExist(err), ShouldBeTrue)
		So(c.Clear(), ShouldBeNil)
	})
}

func TestSelection(t *testing.T) {
	Convey("Given a selection", t, func() {
		sel := NewSelection()
		sel.Add(detail("b"))
		sel.Add(detail("a"))
		sel.Add(detail("c"))

		Convey("Then ids keep insertion order", func() {
			So(sel.IDs(), ShouldResemble, []string{"b", "a", "c"})
		})

		Convey("When an existing id is re-added", func() {
			d := detail("b")
			d.StepCount = 9
			sel.Add(d)

			Convey("Then it is replaced in place", func() {
				So(sel.IDs(), ShouldResemble, []string{"b", "a", "c"})
				So(sel.Details()[0].StepCount, ShouldEqual, 9)
			})
		})

		Convey("When an id is removed", func() {
			So(sel.Remove("a"), ShouldBeTrue)
			So(sel.Remove("a"), ShouldBeFalse)
			So(sel.IDs(), ShouldResemble, []string{"b", "c"})
		})
	})
}
