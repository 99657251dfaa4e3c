package repository

import (
	"encoding/json"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/okian/gaitlog/internal/domain/model"
)

// Codec serialises a session's sample history at the storage boundary.
type Codec interface {
	Name() string
	Encode(samples []model.Sample) ([]byte, error)
	Decode(b []byte) ([]model.Sample, error)
}

// Codec names as persisted alongside each record.
const (
	CodecJSON     = "json"
	CodecColumnar = "columnar"
)

// CodecByName resolves a persisted or configured codec name.
func CodecByName(name string) (Codec, error) {
	switch name {
	case CodecJSON:
		return JSONCodec{}, nil
	case CodecColumnar, "":
		return ColumnarCodec{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown codec %q", ErrCodec, name)
	}
}

// JSONCodec writes the legacy text form [[time,roll,pitch],...].
type JSONCodec struct{}

func (JSONCodec) Name() string { return CodecJSON }

func (JSONCodec) Encode(samples []model.Sample) ([]byte, error) {
	if samples == nil {
		samples = []model.Sample{}
	}
	b, err := json.Marshal(samples)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCodec, err)
	}
	return b, nil
}

func (JSONCodec) Decode(b []byte) ([]model.Sample, error) {
	var out []model.Sample
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCodec, err)
	}
	return out, nil
}

// Columnar field numbers. Each holds one packed repeated double.
const (
	fieldTime  protowire.Number = 1
	fieldRoll  protowire.Number = 2
	fieldPitch protowire.Number = 3
)

// ColumnarCodec stores times, rolls and pitches as three packed double
// columns in protobuf wire format.
type ColumnarCodec struct{}

func (ColumnarCodec) Name() string { return CodecColumnar }

func (ColumnarCodec) Encode(samples []model.Sample) ([]byte, error) {
	column := func(b []byte, num protowire.Number, get func(model.Sample) float64) []byte {
		if len(samples) == 0 {
			return b
		}
		packed := make([]byte, 0, 8*len(samples))
		for _, s := range samples {
			packed = protowire.AppendFixed64(packed, math.Float64bits(get(s)))
		}
		b = protowire.AppendTag(b, num, protowire.BytesType)
		return protowire.AppendBytes(b, packed)
	}

	b := make([]byte, 0, 24*len(samples)+12)
	b = column(b, fieldTime, func(s model.Sample) float64 { return s.Time })
	b = column(b, fieldRoll, func(s model.Sample) float64 { return s.Roll })
	b = column(b, fieldPitch, func(s model.Sample) float64 { return s.Pitch })
	return b, nil
}

func (ColumnarCodec) Decode(b []byte) ([]model.Sample, error) {
	var times, rolls, pitches []float64
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", ErrCodec, protowire.ParseError(n))
		}
		b = b[n:]

		if typ != protowire.BytesType || num < fieldTime || num > fieldPitch {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", ErrCodec, protowire.ParseError(n))
			}
			b = b[n:]
			continue
		}

		packed, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", ErrCodec, protowire.ParseError(n))
		}
		b = b[n:]

		values, err := unpackDoubles(packed)
		if err != nil {
			return nil, err
		}
		switch num {
		case fieldTime:
			times = append(times, values...)
		case fieldRoll:
			rolls = append(rolls, values...)
		case fieldPitch:
			pitches = append(pitches, values...)
		}
	}

	if len(times) != len(rolls) || len(times) != len(pitches) {
		return nil, fmt.Errorf("%w: column lengths differ (%d/%d/%d)", ErrCodec, len(times), len(rolls), len(pitches))
	}
	out := make([]model.Sample, len(times))
	for i := range out {
		out[i] = model.Sample{Time: times[i], Roll: rolls[i], Pitch: pitches[i]}
	}
	return out, nil
}

func unpackDoubles(b []byte) ([]float64, error) {
	if len(b)%8 != 0 {
		return nil, fmt.Errorf("%w: packed doubles of %d bytes", ErrCodec, len(b))
	}
	out := make([]float64, 0, len(b)/8)
	for len(b) > 0 {
		v, n := protowire.ConsumeFixed64(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", ErrCodec, protowire.ParseError(n))
		}
		out = append(out, math.Float64frombits(v))
		b = b[n:]
	}
	return out, nil
}
