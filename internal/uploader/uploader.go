// Package uploader replays device recordings against the ingest API in
// sequenced chunks, the way the sensor firmware uploads them.
package uploader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/gaitlog/internal/domain/model"
	"github.com/okian/gaitlog/internal/domain/types"
	"github.com/okian/gaitlog/pkg/logger"
)

// Defaults match the firmware's upload loop.
const (
	DefaultChunkSize   = 500
	DefaultConcurrency = 4
	defaultRetryDelay  = time.Second
)

// WallClockLayout is the format devices report current_time in.
const WallClockLayout = "2006-01-02 15:04:05.000000"

// ErrEmpty is returned for a recording with no samples.
var ErrEmpty = errors.New("recording has no samples")

// Ingester posts one batch and returns the server's acknowledgement.
type Ingester interface {
	Ingest(ctx context.Context, req types.IngestRequest) (string, error)
}

// Recording is one device file ready for upload.
type Recording struct {
	SessionID   string
	CurrentTime string  // device wall clock when the upload began
	TimeOffset  float64 // seconds between recording start and CurrentTime
	Samples     []model.RawSample
}

// Result summarises one uploaded recording.
type Result struct {
	SessionID string
	Batches   int
	Samples   int
	Last      string // last server acknowledgement
}

// Uploader splits recordings into batches and posts them.
type Uploader struct {
	ing         Ingester
	chunkSize   int
	concurrency int
	retries     int
	retryDelay  time.Duration
	logger      logger.Logger
}

// Option configures an Uploader.
type Option func(*Uploader)

// WithChunkSize sets the rows per batch.
func WithChunkSize(n int) Option {
	return func(u *Uploader) {
		if n > 0 {
			u.chunkSize = n
		}
	}
}

// WithConcurrency bounds how many recordings upload at once.
func WithConcurrency(n int) Option {
	return func(u *Uploader) {
		if n > 0 {
			u.concurrency = n
		}
	}
}

// WithRetries re-posts a failed batch up to n more times. Batches carry a
// sequence number, so a retry of a batch the server already applied is a no-op.
func WithRetries(n int, delay time.Duration) Option {
	return func(u *Uploader) {
		if n >= 0 {
			u.retries = n
		}
		if delay >= 0 {
			u.retryDelay = delay
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(u *Uploader) {
		if l != nil {
			u.logger = l
		}
	}
}

// New creates an uploader posting through ing.
func New(ing Ingester, opts ...Option) *Uploader {
	u := &Uploader{
		ing:         ing,
		chunkSize:   DefaultChunkSize,
		concurrency: DefaultConcurrency,
		retryDelay:  defaultRetryDelay,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Batches splits rec into ingest requests numbered from 1.
func (u *Uploader) Batches(rec Recording) []types.IngestRequest {
	var out []types.IngestRequest
	for start, seq := 0, 1; start < len(rec.Samples); start, seq = start+u.chunkSize, seq+1 {
		end := min(start+u.chunkSize, len(rec.Samples))
		chunk := rec.Samples[start:end]

		data := make([][]types.Number, len(chunk))
		for i, s := range chunk {
			data[i] = []types.Number{
				types.NewNumber(s.Time),
				types.NewNumber(s.I),
				types.NewNumber(s.J),
				types.NewNumber(s.K),
				types.NewNumber(s.Real),
			}
		}
		out = append(out, types.IngestRequest{
			FileName:    rec.SessionID,
			CurrentTime: rec.CurrentTime,
			TimeOffset:  types.NewNumber(rec.TimeOffset),
			DataPoints:  types.NewNumber(float64(len(chunk))),
			Data:        data,
			BatchSeq:    types.NewNumber(float64(seq)),
		})
	}
	return out
}

// Upload posts every batch of rec in order.
func (u *Uploader) Upload(ctx context.Context, rec Recording) (Result, error) {
	if len(rec.Samples) == 0 {
		return Result{}, fmt.Errorf("%s: %w", rec.SessionID, ErrEmpty)
	}

	res := Result{SessionID: rec.SessionID}
	for i, req := range u.Batches(rec) {
		ack, err := u.post(ctx, req)
		if err != nil {
			return res, fmt.Errorf("%s batch %d: %w", rec.SessionID, i+1, err)
		}
		res.Batches++
		res.Samples += len(req.Data)
		res.Last = ack
		if u.logger != nil {
			u.logger.Debug(ctx, "batch uploaded", logger.String("session_id", rec.SessionID), logger.Int("batch_seq", i+1))
		}
	}
	return res, nil
}

func (u *Uploader) post(ctx context.Context, req types.IngestRequest) (string, error) {
	var err error
	for attempt := 0; attempt <= u.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(u.retryDelay):
			}
		}
		var ack string
		if ack, err = u.ing.Ingest(ctx, req); err == nil {
			return ack, nil
		}
	}
	return "", err
}

// UploadAll uploads recordings concurrently. Results keep the input order;
// the first failure cancels the remaining uploads.
func (u *Uploader) UploadAll(ctx context.Context, recs []Recording) ([]Result, error) {
	results := make([]Result, len(recs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.concurrency)
	for i, rec := range recs {
		g.Go(func() error {
			res, err := u.Upload(gctx, rec)
			results[i] = res
			return err
		})
	}
	return results, g.Wait()
}
