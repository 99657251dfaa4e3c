package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/okian/gaitlog/internal/domain/model"
	"github.com/okian/gaitlog/internal/domain/types"
	"github.com/okian/gaitlog/pkg/metrics"
)

const driverMemory = "memory"

// record is a session as held at rest: metadata plus the encoded sample blob.
type record struct {
	startTime    int64
	dataPoints   int
	version      int64
	lastBatchSeq int64
	codec        string
	data         []byte
}

// MemoryStore keeps encoded session records in a map.
type MemoryStore struct {
	mu    sync.RWMutex
	byID  map[string]record
	codec Codec
}

// NewMemoryStore constructs an in-process store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &MemoryStore{
		byID:  make(map[string]record),
		codec: o.codec,
	}
}

// Get implements Store.Get.
func (s *MemoryStore) Get(ctx context.Context, sessionID string) (model.Session, error) {
	defer observe(driverMemory, "get", time.Now())

	s.mu.RLock()
	rec, ok := s.byID[sessionID]
	s.mu.RUnlock()
	if !ok {
		return model.Session{}, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}

	sess, err := decodeRecord(sessionID, rec)
	if err != nil {
		metrics.RecordStoreError(driverMemory, "get")
		return model.Session{}, err
	}
	return sess, nil
}

// Put implements Store.Put.
func (s *MemoryStore) Put(ctx context.Context, sess model.Session, expectedVersion int64) error {
	defer observe(driverMemory, "put", time.Now())

	rec, err := encodeRecord(s.codec, sess)
	if err != nil {
		metrics.RecordStoreError(driverMemory, "put")
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	cur, exists := s.byID[sess.ID]
	switch {
	case expectedVersion == 0 && exists:
		return fmt.Errorf("%w: %s already exists at version %d", ErrConflict, sess.ID, cur.version)
	case expectedVersion != 0 && !exists:
		return fmt.Errorf("%w: %s no longer exists", ErrConflict, sess.ID)
	case exists && cur.version != expectedVersion:
		return fmt.Errorf("%w: %s is at version %d, expected %d", ErrConflict, sess.ID, cur.version, expectedVersion)
	}
	s.byID[sess.ID] = rec
	return nil
}

// Delete implements Store.Delete.
func (s *MemoryStore) Delete(ctx context.Context, sessionID string) error {
	defer observe(driverMemory, "delete", time.Now())

	s.mu.Lock()
	delete(s.byID, sessionID)
	s.mu.Unlock()
	return nil
}

// List implements Store.List.
func (s *MemoryStore) List(ctx context.Context) ([]types.Entry, error) {
	defer observe(driverMemory, "list", time.Now())

	s.mu.RLock()
	out := make([]types.Entry, 0, len(s.byID))
	for id, rec := range s.byID {
		out = append(out, types.Entry{SessionID: id, StartTimeEpochMs: rec.startTime, SampleCount: rec.dataPoints})
	}
	s.mu.RUnlock()

	sortEntries(out)
	return out, nil
}

// Count implements Store.Count.
func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID), nil
}

// Close implements Store.Close.
func (s *MemoryStore) Close() error { return nil }

func encodeRecord(c Codec, sess model.Session) (record, error) {
	data, err := c.Encode(sess.Samples)
	if err != nil {
		return record{}, err
	}
	metrics.RecordBlobBytes(c.Name(), len(data))
	return record{
		startTime:    sess.StartTimeEpochMs,
		dataPoints:   sess.SampleCount,
		version:      sess.Version,
		lastBatchSeq: sess.LastBatchSeq,
		codec:        c.Name(),
		data:         data,
	}, nil
}

func decodeRecord(id string, rec record) (model.Session, error) {
	c, err := CodecByName(rec.codec)
	if err != nil {
		return model.Session{}, err
	}
	samples, err := c.Decode(rec.data)
	if err != nil {
		return model.Session{}, fmt.Errorf("decode %s: %w", id, err)
	}
	return model.Session{
		ID:               id,
		StartTimeEpochMs: rec.startTime,
		SampleCount:      rec.dataPoints,
		Samples:          samples,
		Version:          rec.version,
		LastBatchSeq:     rec.lastBatchSeq,
	}, nil
}

// sortEntries orders newest first, then by id.
func sortEntries(entries []types.Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].StartTimeEpochMs != entries[j].StartTimeEpochMs {
			return entries[i].StartTimeEpochMs > entries[j].StartTimeEpochMs
		}
		return entries[i].SessionID < entries[j].SessionID
	})
}
