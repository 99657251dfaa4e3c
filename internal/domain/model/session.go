// Package model contains domain models passed between layers.
package model

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/okian/gaitlog/internal/domain/types"
)

// LeftFootPrefix marks sessions recorded on the left foot.
const LeftFootPrefix = "left"

// RawSample is one device reading: seconds since recording start and the
// orientation quaternion (i, j, k, real).
type RawSample struct {
	Time float64
	I    float64
	J    float64
	K    float64
	Real float64
}

// Sample is a converted reading. It travels as the array [time, roll, pitch].
type Sample struct {
	Time  float64
	Roll  float64
	Pitch float64
}

// MarshalJSON encodes the sample as [time, roll, pitch].
func (s Sample) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]float64{s.Time, s.Roll, s.Pitch})
}

// UnmarshalJSON decodes a [time, roll, pitch] row.
func (s *Sample) UnmarshalJSON(b []byte) error {
	var row []float64
	if err := json.Unmarshal(b, &row); err != nil {
		return err
	}
	if len(row) != 3 {
		return fmt.Errorf("sample row has %d values, want 3", len(row))
	}
	s.Time, s.Roll, s.Pitch = row[0], row[1], row[2]
	return nil
}

// Session is the accumulated record of one recording.
// SampleCount == len(Samples) after every successful write.
type Session struct {
	ID               string   `json:"file-name"`
	StartTimeEpochMs int64    `json:"start-time"`
	SampleCount      int      `json:"data-points"`
	Samples          []Sample `json:"data"`

	// Version increments on every write; stores use it for conditional puts.
	Version int64 `json:"version"`
	// LastBatchSeq is the highest caller-supplied batch sequence applied, 0 if none.
	LastBatchSeq int64 `json:"last-batch-seq,omitempty"`
}

// Entry projects the session onto its registry row.
func (s Session) Entry() types.Entry {
	return types.Entry{
		SessionID:        s.ID,
		StartTimeEpochMs: s.StartTimeEpochMs,
		SampleCount:      s.SampleCount,
	}
}

// Clone returns a copy that shares no sample storage with s.
func (s Session) Clone() Session {
	out := s
	if s.Samples != nil {
		out.Samples = make([]Sample, len(s.Samples))
		copy(out.Samples, s.Samples)
	}
	return out
}

// IsLeftFoot reports whether a session id follows the left-foot naming convention.
func IsLeftFoot(sessionID string) bool {
	return strings.HasPrefix(sessionID, LeftFootPrefix)
}
