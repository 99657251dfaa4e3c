package uploader

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/okian/gaitlog/internal/domain/model"
)

// ReadCSV parses a firmware recording: one "time,i,j,k,real" row per sample.
// A non-numeric first row is treated as a header and skipped.
func ReadCSV(r io.Reader) ([]model.RawSample, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 5
	cr.TrimLeadingSpace = true

	var out []model.RawSample
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("csv: %w", err)
		}
		var v [5]float64
		for i, f := range rec {
			v[i], err = strconv.ParseFloat(strings.TrimSpace(f), 64)
			if err != nil {
				break
			}
		}
		if err != nil {
			if line == 1 {
				continue
			}
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		out = append(out, model.RawSample{Time: v[0], I: v[1], J: v[2], K: v[3], Real: v[4]})
	}
}

// ManifestEntry is one line of the device's pending-upload list.
type ManifestEntry struct {
	FileName    string
	CurrentTime string
	TimeOffset  float64
}

// SessionID is the file name exactly as the device uploads it, so a replay
// lands in the same session as a direct upload.
func (m ManifestEntry) SessionID() string {
	return m.FileName
}

// ReadManifest parses "file_name,current_time,time_offset" lines.
func ReadManifest(r io.Reader) ([]ManifestEntry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 3
	cr.TrimLeadingSpace = true

	var out []ManifestEntry
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("manifest: %w", err)
		}
		off, err := strconv.ParseFloat(strings.TrimSpace(rec[2]), 64)
		if err != nil {
			return nil, fmt.Errorf("manifest line %d: time_offset: %w", line, err)
		}
		out = append(out, ManifestEntry{
			FileName:    strings.TrimSpace(rec[0]),
			CurrentTime: strings.TrimSpace(rec[1]),
			TimeOffset:  off,
		})
	}
}
