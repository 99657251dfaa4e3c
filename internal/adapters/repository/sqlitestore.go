package repository

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/okian/gaitlog/internal/domain/model"
	"github.com/okian/gaitlog/internal/domain/types"
	"github.com/okian/gaitlog/pkg/metrics"
)

const driverSQLite = "sqlite"

//go:embed migrations/*.sql
var migrationFS embed.FS

// SQLiteStore keeps sessions in a single SQLite table.
type SQLiteStore struct {
	conn  *sql.DB
	codec Codec
}

// OpenSQLite opens (or creates) the database at path and applies pending
// migrations.
func OpenSQLite(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	conn, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite allows a single writer.
	conn.SetMaxOpenConns(1)

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	sub, err := fs.Sub(migrationFS, "migrations")
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migrations sub-fs: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, conn, sub)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("create migration provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	return &SQLiteStore{conn: conn, codec: o.codec}, nil
}

// Get implements Store.Get.
func (s *SQLiteStore) Get(ctx context.Context, sessionID string) (model.Session, error) {
	defer observe(driverSQLite, "get", time.Now())

	var rec record
	err := s.conn.QueryRowContext(ctx,
		`SELECT start_time, data_points, version, last_batch_seq, codec, data
		   FROM sessions WHERE file_name = ?`, sessionID,
	).Scan(&rec.startTime, &rec.dataPoints, &rec.version, &rec.lastBatchSeq, &rec.codec, &rec.data)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Session{}, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	if err != nil {
		metrics.RecordStoreError(driverSQLite, "get")
		return model.Session{}, fmt.Errorf("sqlite get %s: %w", sessionID, err)
	}

	sess, err := decodeRecord(sessionID, rec)
	if err != nil {
		metrics.RecordStoreError(driverSQLite, "get")
		return model.Session{}, err
	}
	return sess, nil
}

// Put implements Store.Put. A fresh record is inserted only if the key is
// absent; an existing one is updated only at the expected version.
func (s *SQLiteStore) Put(ctx context.Context, sess model.Session, expectedVersion int64) error {
	defer observe(driverSQLite, "put", time.Now())

	rec, err := encodeRecord(s.codec, sess)
	if err != nil {
		metrics.RecordStoreError(driverSQLite, "put")
		return err
	}

	var res sql.Result
	if expectedVersion == 0 {
		res, err = s.conn.ExecContext(ctx,
			`INSERT INTO sessions (file_name, start_time, data_points, version, last_batch_seq, codec, data)
			 VALUES (?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(file_name) DO NOTHING`,
			sess.ID, rec.startTime, rec.dataPoints, rec.version, rec.lastBatchSeq, rec.codec, rec.data)
	} else {
		res, err = s.conn.ExecContext(ctx,
			`UPDATE sessions
			    SET start_time = ?, data_points = ?, version = ?, last_batch_seq = ?, codec = ?, data = ?
			  WHERE file_name = ? AND version = ?`,
			rec.startTime, rec.dataPoints, rec.version, rec.lastBatchSeq, rec.codec, rec.data,
			sess.ID, expectedVersion)
	}
	if err != nil {
		metrics.RecordStoreError(driverSQLite, "put")
		return fmt.Errorf("sqlite put %s: %w", sess.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		metrics.RecordStoreError(driverSQLite, "put")
		return fmt.Errorf("sqlite put %s: %w", sess.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s expected version %d", ErrConflict, sess.ID, expectedVersion)
	}
	return nil
}

// Delete implements Store.Delete.
func (s *SQLiteStore) Delete(ctx context.Context, sessionID string) error {
	defer observe(driverSQLite, "delete", time.Now())

	if _, err := s.conn.ExecContext(ctx, `DELETE FROM sessions WHERE file_name = ?`, sessionID); err != nil {
		metrics.RecordStoreError(driverSQLite, "delete")
		return fmt.Errorf("sqlite delete %s: %w", sessionID, err)
	}
	return nil
}

// List implements Store.List.
func (s *SQLiteStore) List(ctx context.Context) ([]types.Entry, error) {
	defer observe(driverSQLite, "list", time.Now())

	rows, err := s.conn.QueryContext(ctx,
		`SELECT file_name, start_time, data_points FROM sessions
		  ORDER BY start_time DESC, file_name ASC`)
	if err != nil {
		metrics.RecordStoreError(driverSQLite, "list")
		return nil, fmt.Errorf("sqlite list: %w", err)
	}
	defer rows.Close()

	out := []types.Entry{}
	for rows.Next() {
		var e types.Entry
		if err := rows.Scan(&e.SessionID, &e.StartTimeEpochMs, &e.SampleCount); err != nil {
			metrics.RecordStoreError(driverSQLite, "list")
			return nil, fmt.Errorf("sqlite list scan: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		metrics.RecordStoreError(driverSQLite, "list")
		return nil, fmt.Errorf("sqlite list: %w", err)
	}
	return out, nil
}

// Count implements Store.Count.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&n); err != nil {
		metrics.RecordStoreError(driverSQLite, "count")
		return 0, fmt.Errorf("sqlite count: %w", err)
	}
	return n, nil
}

// Close implements Store.Close.
func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}
