package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/roman-kulish/pulse-hrv/internal/measurement"
)

type sessionData struct {
	ID                 int64
	UUID               string
	StartedAt          time.Time
	CompletedAt        sql.NullTime
	State              string
	Device             string
	Config             sql.NullString
	Bpm                int
	Rmssd              sql.NullFloat64
	StressIndex        sql.NullFloat64
	RawIntervals       int
	PlausibleIntervals int
	CorrectedIntervals int
}

func (d *sessionData) toSession() (*measurement.Session, error) {
	id, err := uuid.Parse(d.UUID)
	if err != nil {
		return nil, fmt.Errorf("parsing session uuid %q: %w", d.UUID, err)
	}

	sess := measurement.Session{
		ID:                 d.ID,
		UUID:               id,
		StartedAt:          d.StartedAt,
		State:              d.State,
		Device:             d.Device,
		Bpm:                d.Bpm,
		Rmssd:              fromSQLNullFloat(d.Rmssd),
		StressIndex:        fromSQLNullFloat(d.StressIndex),
		RawIntervals:       d.RawIntervals,
		PlausibleIntervals: d.PlausibleIntervals,
		CorrectedIntervals: d.CorrectedIntervals,
	}
	if d.CompletedAt.Valid {
		sess.CompletedAt = &d.CompletedAt.Time
	}
	if d.Config.Valid {
		sess.Config = &d.Config.String
	}
	return &sess, nil
}

type traceData struct {
	SessionID int64
	Timestamp int64 // µs since the Unix epoch
	Intensity float64
	Smoothed  float64
}

func toTraceData(sessionID int64, p measurement.TracePoint) traceData {
	return traceData{
		SessionID: sessionID,
		Timestamp: p.Timestamp.UnixMicro(),
		Intensity: p.Intensity,
		Smoothed:  p.Smoothed,
	}
}
