package repository

import (
	"errors"
	"math"
	"testing"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/okian/gaitlog/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestCodecs(t *testing.T) {
	samples := []model.Sample{
		{Time: 0, Roll: 1.5, Pitch: -2.25},
		{Time: 0.01, Roll: 179.999, Pitch: -89.5},
	}

	Convey("Given the JSON codec", t, func() {
		c := JSONCodec{}

		Convey("Then it writes the legacy row format", func() {
			b, err := c.Encode(samples)
			So(err, ShouldBeNil)
			So(string(b), ShouldEqual, "[[0,1.5,-2.25],[0.01,179.999,-89.5]]")

			got, err := c.Decode(b)
			So(err, ShouldBeNil)
			So(got, ShouldResemble, samples)
		})

		Convey("Then an empty history is an empty array", func() {
			b, err := c.Encode(nil)
			So(err, ShouldBeNil)
			So(string(b), ShouldEqual, "[]")
		})

		Convey("Then malformed text is a codec error", func() {
			_, err := c.Decode([]byte("[[1,2]]"))
			So(errors.Is(err, ErrCodec), ShouldBeTrue)
		})
	})

	Convey("Given the columnar codec", t, func() {
		c := ColumnarCodec{}

		Convey("Then values survive bit for bit", func() {
			b, err := c.Encode(samples)
			So(err, ShouldBeNil)
			// three columns of two doubles plus a two byte header each
			So(len(b), ShouldEqual, 3*(2+16))

			got, err := c.Decode(b)
			So(err, ShouldBeNil)
			So(got, ShouldResemble, samples)
		})

		Convey("Then it is smaller than the JSON form for realistic values", func() {
			long := make([]model.Sample, 500)
			for i := range long {
				long[i] = model.Sample{Time: float64(i) / 100, Roll: -123.456, Pitch: 45.678}
			}
			cb, _ := c.Encode(long)
			jb, _ := JSONCodec{}.Encode(long)
			So(len(cb), ShouldBeLessThan, len(jb))
		})

		Convey("Then unknown fields are skipped", func() {
			b, _ := c.Encode(samples)
			b = protowire.AppendTag(b, 9, protowire.VarintType)
			b = protowire.AppendVarint(b, 7)
			got, err := c.Decode(b)
			So(err, ShouldBeNil)
			So(got, ShouldResemble, samples)
		})

		Convey("Then mismatched columns are rejected", func() {
			var b []byte
			b = protowire.AppendTag(b, fieldTime, protowire.BytesType)
			b = protowire.AppendBytes(b, protowire.AppendFixed64(nil, math.Float64bits(1)))
			_, err := c.Decode(b)
			So(errors.Is(err, ErrCodec), ShouldBeTrue)
		})

		Convey("Then truncated input is rejected", func() {
			b, _ := c.Encode(samples)
			_, err := c.Decode(b[:len(b)-3])
			So(errors.Is(err, ErrCodec), ShouldBeTrue)
		})
	})

	Convey("Given codec names", t, func() {
		c, err := CodecByName("json")
		So(err, ShouldBeNil)
		So(c.Name(), ShouldEqual, CodecJSON)

		c, err = CodecByName("")
		So(err, ShouldBeNil)
		So(c.Name(), ShouldEqual, CodecColumnar)

		_, err = CodecByName("xml")
		So(errors.Is(err, ErrCodec), ShouldBeTrue)
	})
}
