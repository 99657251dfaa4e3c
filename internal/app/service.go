// Package service implements session ingestion and the read API on top of
// a session store.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/gaitlog/internal/adapters/repository"
	"github.com/okian/gaitlog/internal/domain/accumulate"
	"github.com/okian/gaitlog/internal/domain/analysis"
	"github.com/okian/gaitlog/internal/domain/angles"
	"github.com/okian/gaitlog/internal/domain/dedupe"
	"github.com/okian/gaitlog/internal/domain/model"
	"github.com/okian/gaitlog/internal/domain/types"
	"github.com/okian/gaitlog/pkg/logger"
	"github.com/okian/gaitlog/pkg/metrics"
)

// IngestResult reports the outcome of one batch.
type IngestResult struct {
	Message   string
	SessionID string
	BatchSize int
	Total     int
	Version   int64
	Created   bool
	Duplicate bool
}

// Service accumulates uploaded batches into sessions and serves them back.
type Service struct {
	mu sync.RWMutex

	// Core components
	store    repository.Store
	deduper  dedupe.Deduper
	analyzer *analysis.Analyzer

	// Configuration
	maxMergeRetries int
	dedupeSize      int
	location        *time.Location

	// Counters reported by GetStats
	batches    atomic.Int64
	duplicates atomic.Int64
	conflicts  atomic.Int64

	started bool
	logger  logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the session store. The service closes it on Stop.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithMaxMergeRetries sets how many times a conflicting write is re-merged.
func WithMaxMergeRetries(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.maxMergeRetries = n
		}
	}
}

// WithDedupeSize sets the size of the batch sequence cache.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithLocation sets the zone used for device clocks that carry no offset.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.location = loc
		}
	}
}

// WithAnalyzer sets the step analyzer used by Detail.
func WithAnalyzer(a *analysis.Analyzer) Option {
	return func(s *Service) {
		if a != nil {
			s.analyzer = a
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		maxMergeRetries: 5,
		dedupeSize:      50000,
		location:        time.UTC,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	return s
}

// running guards the operations that need the components filled in by Start.
func (s *Service) running(op string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return newError(op, ErrNotStarted, nil)
	}
	return nil
}

// Start fills in any component that was not supplied.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	if s.store == nil {
		s.store = repository.NewMemoryStore()
		s.logger.Info(ctx, "using in-memory session store")
	}
	if s.analyzer == nil {
		s.analyzer = analysis.New()
	}
	if n, err := s.store.Count(ctx); err == nil {
		metrics.UpdateSessionsTotal(n)
	}

	s.started = true
	s.logger.Info(ctx, "session service started",
		logger.Int("maxMergeRetries", s.maxMergeRetries),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.String("location", s.location.String()),
	)
	return nil
}

// Stop closes the store.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	if err := s.store.Close(); err != nil {
		s.logger.Warn(context.Background(), "closing session store", logger.Error(err))
	}
	s.started = false
	s.logger.Info(context.Background(), "session service stopped")
}

// Ingest validates a batch, converts it and appends it to its session.
//
// The read-merge-write cycle is guarded by the record version: when another
// writer lands first the batch is re-merged onto the fresh record, up to
// maxMergeRetries times. A batch_seq at or below the session's last applied
// sequence is acknowledged without writing. The dedupe cache only holds
// batches whose write committed, so a retry racing an in-flight write falls
// through to the watermark check.
func (s *Service) Ingest(ctx context.Context, req types.IngestRequest) (IngestResult, error) {
	const op = "ingest"
	if err := s.running(op); err != nil {
		return IngestResult{}, err
	}

	b, err := validateRequest(req, s.location)
	if err != nil {
		metrics.RecordValidationError()
		metrics.RecordBatchIngested("invalid", 0)
		s.logger.Warn(ctx, "rejected batch", logger.String("session_id", req.ID()), logger.Error(err))
		return IngestResult{}, newError(op, ErrValidation, err)
	}
	log := s.logger.With(logger.String("session_id", b.sessionID), logger.Int("batch_size", b.count))
	converted := angles.ConvertBatch(b.raw)

	var key string
	if b.seq > 0 {
		key = dedupe.BatchKey(b.sessionID, b.seq)
		if s.deduper.Seen(ctx, key) {
			return s.duplicate(ctx, b)
		}
	}

	res, err := s.merge(ctx, b, converted)
	if err != nil {
		metrics.RecordBatchIngested("failed", 0)
		log.Error(ctx, "batch not stored", logger.Error(err))
		return IngestResult{}, newError(op, ErrStore, err)
	}
	if key != "" {
		s.deduper.Record(ctx, key)
	}
	if res.Duplicate {
		s.duplicates.Add(1)
		metrics.RecordBatchDuplicate()
		return res, nil
	}

	s.batches.Add(1)
	outcome := "appended"
	if res.Created {
		outcome = "created"
		if n, err := s.store.Count(ctx); err == nil {
			metrics.UpdateSessionsTotal(n)
		}
	}
	metrics.RecordBatchIngested(outcome, b.count)
	log.Debug(ctx, "batch stored", logger.Int("total", res.Total), logger.Int64("version", res.Version))
	return res, nil
}

// merge runs the optimistic read-merge-write loop.
func (s *Service) merge(ctx context.Context, b batch, converted []model.Sample) (IngestResult, error) {
	attempts := 0
	defer func() { metrics.RecordMergeAttempts(attempts) }()

	for attempts <= s.maxMergeRetries {
		attempts++

		var existing *model.Session
		cur, err := s.store.Get(ctx, b.sessionID)
		switch {
		case err == nil:
			existing = &cur
		case errors.Is(err, repository.ErrNotFound):
		default:
			return IngestResult{}, err
		}

		if existing != nil && b.seq > 0 && b.seq <= existing.LastBatchSeq {
			return duplicateResult(b, existing.SampleCount, existing.Version), nil
		}

		var expected int64
		if existing != nil {
			expected = existing.Version
		}
		next := accumulate.Merge(existing, b.sessionID, b.startTimeMs, b.count, converted)
		if b.seq > next.LastBatchSeq {
			next.LastBatchSeq = b.seq
		}

		err = s.store.Put(ctx, next, expected)
		if errors.Is(err, repository.ErrConflict) {
			s.conflicts.Add(1)
			metrics.RecordMergeConflict()
			s.logger.Debug(ctx, "merge conflict, retrying",
				logger.String("session_id", b.sessionID),
				logger.Int("attempt", attempts),
			)
			continue
		}
		if err != nil {
			return IngestResult{}, err
		}

		return IngestResult{
			Message:   fmt.Sprintf("Received file: %s, Number of elements: %d, Total number of elements: %d", b.sessionID, b.count, next.SampleCount),
			SessionID: b.sessionID,
			BatchSize: b.count,
			Total:     next.SampleCount,
			Version:   next.Version,
			Created:   existing == nil,
		}, nil
	}
	return IngestResult{}, fmt.Errorf("%w: %s gave up after %d attempts", repository.ErrConflict, b.sessionID, attempts)
}

// duplicate answers a batch the dedupe cache has already seen.
func (s *Service) duplicate(ctx context.Context, b batch) (IngestResult, error) {
	s.duplicates.Add(1)
	metrics.RecordBatchDuplicate()

	cur, err := s.store.Get(ctx, b.sessionID)
	switch {
	case err == nil:
		return duplicateResult(b, cur.SampleCount, cur.Version), nil
	case errors.Is(err, repository.ErrNotFound):
		// Deleted since the batch was applied.
		return duplicateResult(b, 0, 0), nil
	default:
		return IngestResult{}, newError("ingest", ErrStore, err)
	}
}

func duplicateResult(b batch, total int, version int64) IngestResult {
	return IngestResult{
		Message:   fmt.Sprintf("Duplicate batch %d for file: %s, Total number of elements: %d", b.seq, b.sessionID, total),
		SessionID: b.sessionID,
		BatchSize: b.count,
		Total:     total,
		Version:   version,
		Duplicate: true,
	}
}

// DeleteSession removes a session. Unknown ids succeed.
func (s *Service) DeleteSession(ctx context.Context, sessionID string) (string, error) {
	const op = "delete"
	if err := s.running(op); err != nil {
		return "", err
	}
	if sessionID == "" {
		return "", newError(op, ErrValidation, errors.New("session id is required"))
	}
	if err := s.store.Delete(ctx, sessionID); err != nil {
		s.logger.Error(ctx, "delete failed", logger.String("session_id", sessionID), logger.Error(err))
		return "", newError(op, ErrStore, err)
	}
	s.deduper.Forget(ctx, sessionID)
	metrics.RecordSessionDeleted()
	if n, err := s.store.Count(ctx); err == nil {
		metrics.UpdateSessionsTotal(n)
	}
	s.logger.Debug(ctx, "session deleted", logger.String("session_id", sessionID))
	return fmt.Sprintf("Deleted item %s", sessionID), nil
}

// List returns registry entries, newest first.
func (s *Service) List(ctx context.Context) ([]types.Entry, error) {
	if err := s.running("list"); err != nil {
		return nil, err
	}
	entries, err := s.store.List(ctx)
	if err != nil {
		return nil, newError("list", ErrStore, err)
	}
	return entries, nil
}

// Session returns the full accumulated session.
func (s *Service) Session(ctx context.Context, sessionID string) (model.Session, error) {
	if err := s.running("session"); err != nil {
		return model.Session{}, err
	}
	sess, err := s.store.Get(ctx, sessionID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Session{}, newError("session", ErrNotFound, err)
	}
	if err != nil {
		return model.Session{}, newError("session", ErrStore, err)
	}
	return sess, nil
}

// Detail returns the registry entry of a session together with its gait features.
func (s *Service) Detail(ctx context.Context, sessionID string) (types.Detail, error) {
	sess, err := s.Session(ctx, sessionID)
	if err != nil {
		return types.Detail{}, err
	}

	start := time.Now()
	features, err := s.analyzer.Analyze(sess.ID, sess.Samples)
	metrics.RecordAnalysisDuration(float64(time.Since(start).Microseconds()) / 1000)
	if err != nil {
		metrics.RecordAnalysisFailure()
		s.logger.Info(ctx, "analysis failed",
			logger.String("session_id", sessionID),
			logger.Int("samples", sess.SampleCount),
			logger.Error(err),
		)
		return types.Detail{}, newError("detail", ErrAnalysis, err)
	}
	return types.Detail{Entry: sess.Entry(), Features: features}, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":         s.started,
		"maxMergeRetries": s.maxMergeRetries,
		"dedupeSize":      s.dedupeSize,
		"batchesStored":   s.batches.Load(),
		"duplicates":      s.duplicates.Load(),
		"mergeConflicts":  s.conflicts.Load(),
	}
	if s.started {
		stats["dedupeEntries"] = s.deduper.Size()
		if n, err := s.store.Count(context.Background()); err == nil {
			stats["sessions"] = n
			metrics.UpdateSessionsTotal(n)
		}
	}
	return stats
}
