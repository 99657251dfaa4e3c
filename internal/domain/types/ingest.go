package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Number is a JSON number that devices may also send as a quoted string.
// Set is false when the field was absent or null.
type Number struct {
	Value float64
	Set   bool
}

// NewNumber returns a set Number.
func NewNumber(v float64) Number { return Number{Value: v, Set: true} }

// UnmarshalJSON accepts 12.5, "12.5" and null.
func (n *Number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*n = Number{}
		return nil
	}
	raw := string(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		raw = strings.TrimSpace(s)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("not a number: %s", b)
	}
	*n = Number{Value: v, Set: true}
	return nil
}

// MarshalJSON writes the plain number, or null when unset.
func (n Number) MarshalJSON() ([]byte, error) {
	if !n.Set {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatFloat(n.Value, 'f', -1, 64)), nil
}

// IngestRequest is one uploaded batch as sent by a device. Rows of Data are
// [time, qi, qj, qk, qreal]. The session is named by file_name, sessionId
// or session_id.
type IngestRequest struct {
	FileName       string     `json:"file_name,omitempty"`
	SessionIDCamel string     `json:"sessionId,omitempty"`
	SessionID      string     `json:"session_id,omitempty"`
	CurrentTime    string     `json:"current_time"`
	TimeOffset     Number     `json:"time_offset"`
	DataPoints     Number     `json:"data_points"`
	Data           [][]Number `json:"data"`
	// BatchSeq is an optional per-session sequence number starting at 1.
	BatchSeq Number `json:"batch_seq,omitempty"`
}

// ID returns the session identifier, preferring file_name, then sessionId.
func (r IngestRequest) ID() string {
	for _, id := range []string{r.FileName, r.SessionIDCamel, r.SessionID} {
		if id = strings.TrimSpace(id); id != "" {
			return id
		}
	}
	return ""
}
