// Package accumulate merges incoming sample batches into session records.
package accumulate

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/okian/gaitlog/internal/domain/model"
)

// ErrTimeFormat is returned when the reported wall clock cannot be parsed.
var ErrTimeFormat = errors.New("unrecognised wall clock time")

// wallClockLayouts are tried in order. Layouts without a zone are read in
// the device location.
var wallClockLayouts = []struct {
	layout string
	zoned  bool
}{
	{time.RFC3339Nano, true},
	{"2006-01-02 15:04:05.999999999Z07:00", true},
	{"2006-01-02 15:04:05.999999999", false},
	{"2006-01-02T15:04:05.999999999", false},
}

// Merge produces the replacement record for sessionID.
//
// A nil existing record starts a new session. Otherwise the batch is appended
// after the stored samples, the count is summed and the start time is taken
// from the latest request so a later upload can correct an earlier estimate.
// Nothing is de-duplicated or re-sorted. Version is advanced by one.
func Merge(existing *model.Session, sessionID string, startTimeMs int64, incomingCount int, batch []model.Sample) model.Session {
	if existing == nil {
		samples := make([]model.Sample, len(batch))
		copy(samples, batch)
		return model.Session{
			ID:               sessionID,
			StartTimeEpochMs: startTimeMs,
			SampleCount:      incomingCount,
			Samples:          samples,
			Version:          1,
		}
	}

	samples := make([]model.Sample, 0, len(existing.Samples)+len(batch))
	samples = append(samples, existing.Samples...)
	samples = append(samples, batch...)

	return model.Session{
		ID:               sessionID,
		StartTimeEpochMs: startTimeMs,
		SampleCount:      existing.SampleCount + incomingCount,
		Samples:          samples,
		Version:          existing.Version + 1,
		LastBatchSeq:     existing.LastBatchSeq,
	}
}

// StartTime derives the absolute recording start in epoch milliseconds from
// the device's reported "now" and how many seconds ago recording began.
// A nil loc means UTC.
func StartTime(wallClock string, offsetSeconds float64, loc *time.Location) (int64, error) {
	if math.IsNaN(offsetSeconds) || math.IsInf(offsetSeconds, 0) {
		return 0, fmt.Errorf("time offset must be finite, got %v", offsetSeconds)
	}
	now, err := ParseWallClock(wallClock, loc)
	if err != nil {
		return 0, err
	}
	nowMs := float64(now.UnixNano()) / float64(time.Millisecond)
	return int64(math.Round(nowMs - offsetSeconds*1000)), nil
}

// ParseWallClock parses a device timestamp.
func ParseWallClock(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	s = strings.TrimSpace(s)
	for _, l := range wallClockLayouts {
		var (
			t   time.Time
			err error
		)
		if l.zoned {
			t, err = time.Parse(l.layout, s)
		} else {
			t, err = time.ParseInLocation(l.layout, s, loc)
		}
		if err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrTimeFormat, s)
}
