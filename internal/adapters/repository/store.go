// Package repository persists accumulated sessions as whole records.
package repository

import (
	"context"
	"time"

	"github.com/okian/gaitlog/internal/domain/model"
	"github.com/okian/gaitlog/internal/domain/types"
	"github.com/okian/gaitlog/pkg/metrics"
)

// Store provides whole-record access to sessions keyed by session id.
// There is no row-level mutation: a write always replaces the full record.
type Store interface {
	// Get returns the stored session or ErrNotFound.
	Get(ctx context.Context, sessionID string) (model.Session, error)

	// Put replaces the record for s.ID only if the stored version equals
	// expectedVersion. An expectedVersion of 0 means the record must not
	// exist yet. Any mismatch returns ErrConflict.
	Put(ctx context.Context, s model.Session, expectedVersion int64) error

	// Delete removes a session. Deleting an unknown id is not an error.
	Delete(ctx context.Context, sessionID string) error

	// List returns registry entries without sample history, newest first.
	List(ctx context.Context) ([]types.Entry, error)

	// Count returns the number of stored sessions.
	Count(ctx context.Context) (int, error)

	Close() error
}

// observe records the latency of one store operation.
func observe(driver, op string, start time.Time) {
	metrics.RecordStoreLatency(driver, op, float64(time.Since(start).Microseconds())/1000)
}
