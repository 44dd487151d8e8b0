package storage

import (
	"database/sql"
	"errors"

	"github.com/roman-kulish/pulse-hrv/internal/measurement"
)

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

func rollbackWithError(rb interface{ Rollback() error }, err *error) {
	if cErr := rb.Rollback(); cErr != nil && *err == nil && !errors.Is(cErr, sql.ErrTxDone) {
		*err = cErr
	}
}

func toSQLNullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func fromSQLNullFloat(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*measurement.Session, error) {
	var data sessionData
	err := row.Scan(
		&data.ID,
		&data.UUID,
		&data.StartedAt,
		&data.CompletedAt,
		&data.State,
		&data.Device,
		&data.Config,
		&data.Bpm,
		&data.Rmssd,
		&data.StressIndex,
		&data.RawIntervals,
		&data.PlausibleIntervals,
		&data.CorrectedIntervals,
	)
	if err != nil {
		return nil, err
	}
	return data.toSession()
}
