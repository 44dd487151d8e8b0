package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/roman-kulish/pulse-hrv/internal/measurement"
)

// TraceReader provides an iterator over the intensity trace of a session
// with optional time filtering.
type TraceReader interface {
	// Next advances the iterator and returns true if there is another trace
	// point to read, false when the iteration is complete or if an error occurred.
	Next(context.Context) bool

	// Current returns the current trace point.
	// If called after Next() returns false, the behavior is undefined.
	Current() measurement.TracePoint

	// Error returns any error that occurred during iteration.
	Error() error

	// Close releases any resources associated with the reader.
	Close() error
}

// ReaderOption configures a TraceReader with filtering criteria.
type ReaderOption func(*SqliteTraceReader)

// WithStartTime excludes trace points before t.
func WithStartTime(t time.Time) ReaderOption {
	return func(r *SqliteTraceReader) {
		r.startTime = &t
	}
}

// WithEndTime excludes trace points after t.
func WithEndTime(t time.Time) ReaderOption {
	return func(r *SqliteTraceReader) {
		r.endTime = &t
	}
}

// WithTimeRange sets both start and end time filters.
func WithTimeRange(startTime, endTime time.Time) ReaderOption {
	return func(r *SqliteTraceReader) {
		r.startTime = &startTime
		r.endTime = &endTime
	}
}

// SqliteTraceReader implements TraceReader for SQLite database backend.
type SqliteTraceReader struct {
	db        *sql.DB
	sessionID int64

	startTime *time.Time // Optional start of time range filter
	endTime   *time.Time // Optional end of time range filter

	current measurement.TracePoint
	rows    *sql.Rows
	err     error
}

func newSqliteTraceReader(ctx context.Context, db *sql.DB, sessionID int64, opts ...ReaderOption) (*SqliteTraceReader, error) {
	tr := &SqliteTraceReader{
		db:        db,
		sessionID: sessionID,
	}
	for _, opt := range opts {
		opt(tr)
	}
	if err := tr.init(ctx); err != nil {
		return nil, fmt.Errorf("initializing reader: %w", err)
	}
	return tr, nil
}

func (tr *SqliteTraceReader) init(ctx context.Context) (err error) {
	if tr.db == nil {
		return errors.New("database connection required")
	}
	if tr.sessionID <= 0 {
		return errors.New("session ID required")
	}

	from, to := int64(math.MinInt64), int64(math.MaxInt64)
	if tr.startTime != nil {
		from = tr.startTime.UnixMicro()
	}
	if tr.endTime != nil {
		to = tr.endTime.UnixMicro()
	}
	if from > to {
		return fmt.Errorf("start time %s is after end time %s", tr.startTime, tr.endTime)
	}

	stmt, err := tr.db.PrepareContext(ctx, selectTraceSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	if tr.rows, err = stmt.QueryContext(ctx, tr.sessionID, from, to); err != nil {
		return fmt.Errorf("querying trace: %w", err)
	}
	return nil
}

func (tr *SqliteTraceReader) Next(ctx context.Context) bool {
	if tr.err != nil || tr.rows == nil {
		return false
	}

	select {
	case <-ctx.Done():
		tr.err = ctx.Err()
		return false
	default:
	}

	if !tr.rows.Next() {
		return false
	}

	var data traceData
	if tr.err = tr.rows.Scan(&data.Timestamp, &data.Intensity, &data.Smoothed); tr.err != nil {
		tr.err = fmt.Errorf("scanning trace point: %w", tr.err)
		return false
	}

	tr.current = measurement.TracePoint{
		Timestamp: time.UnixMicro(data.Timestamp),
		Intensity: data.Intensity,
		Smoothed:  data.Smoothed,
	}
	return true
}

func (tr *SqliteTraceReader) Current() measurement.TracePoint {
	return tr.current
}

func (tr *SqliteTraceReader) Error() error {
	if tr.err != nil {
		return tr.err
	}
	if tr.rows != nil {
		return tr.rows.Err()
	}
	return nil
}

func (tr *SqliteTraceReader) Close() error {
	if tr.rows != nil {
		err := tr.rows.Close()
		tr.rows = nil
		return err
	}
	return nil
}
