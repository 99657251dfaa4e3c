package service

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/okian/gaitlog/internal/domain/accumulate"
	"github.com/okian/gaitlog/internal/domain/model"
	"github.com/okian/gaitlog/internal/domain/types"
)

const (
	rowWidth        = 5
	maxSessionIDLen = 256
)

// batch is a validated ingest request.
type batch struct {
	sessionID   string
	startTimeMs int64
	count       int
	raw         []model.RawSample
	seq         int64
}

func validateRequest(req types.IngestRequest, loc *time.Location) (batch, error) {
	id := req.ID()
	if id == "" {
		return batch{}, errors.New("file_name is required")
	}
	if len(id) > maxSessionIDLen {
		return batch{}, fmt.Errorf("file_name longer than %d bytes", maxSessionIDLen)
	}
	if req.Data == nil {
		return batch{}, errors.New("data is required")
	}

	raw := make([]model.RawSample, len(req.Data))
	for i, row := range req.Data {
		if len(row) != rowWidth {
			return batch{}, fmt.Errorf("data row %d has %d values, want %d", i, len(row), rowWidth)
		}
		var vals [rowWidth]float64
		for j, n := range row {
			if !n.Set || math.IsNaN(n.Value) || math.IsInf(n.Value, 0) {
				return batch{}, fmt.Errorf("data row %d column %d is not a finite number", i, j)
			}
			vals[j] = n.Value
		}
		raw[i] = model.RawSample{Time: vals[0], I: vals[1], J: vals[2], K: vals[3], Real: vals[4]}
	}

	if !req.DataPoints.Set {
		return batch{}, errors.New("data_points is required")
	}
	count := req.DataPoints.Value
	if math.IsInf(count, 0) || count != math.Trunc(count) || count < 0 {
		return batch{}, fmt.Errorf("data_points must be a non-negative integer, got %v", count)
	}
	if int(count) != len(raw) {
		return batch{}, fmt.Errorf("data_points is %d but data has %d rows", int(count), len(raw))
	}

	if req.CurrentTime == "" {
		return batch{}, errors.New("current_time is required")
	}
	if !req.TimeOffset.Set {
		return batch{}, errors.New("time_offset is required")
	}
	start, err := accumulate.StartTime(req.CurrentTime, req.TimeOffset.Value, loc)
	if err != nil {
		return batch{}, err
	}

	var seq int64
	if req.BatchSeq.Set {
		v := req.BatchSeq.Value
		if v != math.Trunc(v) || v < 1 || v > math.MaxInt64/2 {
			return batch{}, fmt.Errorf("batch_seq must be a positive integer, got %v", v)
		}
		seq = int64(v)
	}

	return batch{
		sessionID:   id,
		startTimeMs: start,
		count:       len(raw),
		raw:         raw,
		seq:         seq,
	}, nil
}
