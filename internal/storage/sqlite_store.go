package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/roman-kulish/pulse-hrv/internal/hrv"
	"github.com/roman-kulish/pulse-hrv/internal/measurement"
)

// maxRowsPerInsert keeps batch statements below the sqlite bound variables limit
const maxRowsPerInsert = 500

// SqliteStore handles database operations
type SqliteStore struct {
	dbPath string

	writeDB     *sql.DB
	writeDBOnce sync.Once
	writeDBErr  error

	readDB     *sql.DB
	readDBOnce sync.Once
	readDBErr  error

	closeOnce sync.Once
	closeErr  error
}

// NewSqliteStore creates a store backed by the sqlite database at dbPath.
// Connections are opened on first use; the schema is created with the
// write connection.
func NewSqliteStore(dbPath string) *SqliteStore {
	return &SqliteStore{dbPath: dbPath}
}

func runSQLCommand(db *sql.DB, sql string) error {
	_, err := db.Exec(sql)
	return err
}

func (s *SqliteStore) getWriteDB() (*sql.DB, error) {
	s.writeDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on"))
		if err != nil {
			s.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}

		if err = runSQLCommand(db, initSchemaSQL); err != nil {
			_ = db.Close()
			s.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		s.writeDB = db
	})

	return s.writeDB, s.writeDBErr
}

func (s *SqliteStore) getReadDB() (*sql.DB, error) {
	s.readDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "mode=ro"))
		if err != nil {
			s.readDBErr = fmt.Errorf("opening read connection: %w", err)
			return
		}
		s.readDB = db
	})

	return s.readDB, s.readDBErr
}

func marshalConfig(config any) (configData sql.NullString, err error) {
	switch c := config.(type) {
	case nil:
		return
	case string:
		return sql.NullString{String: c, Valid: true}, nil
	case []byte:
		return sql.NullString{String: string(c), Valid: true}, nil
	default:
		var p []byte
		if p, err = json.Marshal(c); err != nil {
			return configData, fmt.Errorf("marshaling config: %w", err)
		}
		return sql.NullString{String: string(p), Valid: true}, nil
	}
}

func (s *SqliteStore) CreateSession(ctx context.Context, session *measurement.Session, config any) (sessionID int64, err error) {
	if session == nil {
		return 0, errors.New("session is required")
	}

	configData, err := marshalConfig(config)
	if err != nil {
		return
	}

	db, err := s.getWriteDB()
	if err != nil {
		err = fmt.Errorf("getting write connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, insertSessionSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	result, err := stmt.ExecContext(ctx, session.UUID.String(), session.StartedAt.UTC(), session.State, session.Device, configData)
	if err != nil {
		err = fmt.Errorf("inserting session: %w", err)
		return
	}

	sessionID, err = result.LastInsertId()
	if err != nil {
		err = fmt.Errorf("getting session ID: %w", err)
	}
	return
}

func (s *SqliteStore) CompleteSession(ctx context.Context, sessionID int64, state string, completedAt time.Time, result *hrv.Result) (err error) {
	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	var r hrv.Result
	if result != nil {
		r = *result
	}

	res, err := db.ExecContext(ctx, completeSessionSQL,
		completedAt.UTC(),
		state,
		r.Bpm,
		toSQLNullFloat(r.Rmssd),
		toSQLNullFloat(r.StressIndex),
		r.RawIntervals,
		r.PlausibleIntervals,
		r.CorrectedIntervals,
		sessionID,
	)
	if err != nil {
		return fmt.Errorf("updating session: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("session %d: %w", sessionID, ErrNotFound)
	}
	return nil
}

func (s *SqliteStore) Session(ctx context.Context, id int64) (session *measurement.Session, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, selectSessionSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	session, err = scanSession(stmt.QueryRowContext(ctx, id))
	if errors.Is(err, sql.ErrNoRows) {
		err = fmt.Errorf("session %d: %w", id, ErrNotFound)
		return
	}
	if err != nil {
		err = fmt.Errorf("scanning session: %w", err)
	}
	return
}

func (s *SqliteStore) Sessions(ctx context.Context) (sessions []*measurement.Session, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectSessionsSQL)
	if err != nil {
		err = fmt.Errorf("querying sessions: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var sess *measurement.Session
		if sess, err = scanSession(rows); err != nil {
			err = fmt.Errorf("scanning session: %w", err)
			return
		}
		sessions = append(sessions, sess)
	}
	err = rows.Err()
	return
}

func (s *SqliteStore) StoreBeats(ctx context.Context, sessionID int64, beats []measurement.Beat) error {
	return s.batchInsert(ctx, insertBeatSQL, "(?, ?, ?)", len(beats), func(i int) []any {
		return []any{sessionID, beats[i].Timestamp.UnixMilli(), beats[i].Interval}
	})
}

func (s *SqliteStore) Beats(ctx context.Context, sessionID int64) (beats []measurement.Beat, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectBeatsSQL, sessionID)
	if err != nil {
		err = fmt.Errorf("querying beats: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var ts, interval int64
		if err = rows.Scan(&ts, &interval); err != nil {
			err = fmt.Errorf("scanning beat: %w", err)
			return
		}
		beats = append(beats, measurement.Beat{Timestamp: time.UnixMilli(ts), Interval: interval})
	}
	err = rows.Err()
	return
}

func (s *SqliteStore) StoreTrace(ctx context.Context, sessionID int64, points []measurement.TracePoint) error {
	return s.batchInsert(ctx, insertTraceSQL, "(?, ?, ?, ?)", len(points), func(i int) []any {
		data := toTraceData(sessionID, points[i])
		return []any{data.SessionID, data.Timestamp, data.Intensity, data.Smoothed}
	})
}

// ReadTrace creates a TraceReader over the intensity trace of a session,
// ordered by timestamp. Time filters default to the whole session.
//
// The returned reader must be closed after use to release database resources.
// Each reader instance should only be used from a single goroutine.
//
// Returns error if reader creation fails or the filters are invalid.
func (s *SqliteStore) ReadTrace(ctx context.Context, sessionID int64, opts ...ReaderOption) (TraceReader, error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}
	return newSqliteTraceReader(ctx, db, sessionID, opts...)
}

// batchInsert inserts n rows in one transaction, building multi-row VALUES
// statements of at most maxRowsPerInsert rows
func (s *SqliteStore) batchInsert(ctx context.Context, query, placeholder string, n int, row func(i int) []any) (err error) {
	if n == 0 {
		return
	}

	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollbackWithError(tx, &err)

	indexes := make([]int, n)
	for i := range indexes {
		indexes[i] = i
	}

	for start := 0; start < len(indexes); start += maxRowsPerInsert {
		end := min(start+maxRowsPerInsert, len(indexes))
		chunk := indexes[start:end:end]
		var sb strings.Builder
		sb.WriteString(query)

		values := make([]any, 0, len(chunk)*strings.Count(placeholder, "?"))
		for j, i := range chunk {
			if j > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(placeholder)
			values = append(values, row(i)...)
		}

		if _, err = tx.ExecContext(ctx, sb.String(), values...); err != nil {
			return fmt.Errorf("batch inserting rows: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *SqliteStore) Close() error {
	s.closeOnce.Do(func() {
		var writeErr, readErr error

		if s.readDB != nil {
			readErr = s.readDB.Close()
			s.readDB = nil
		}

		if s.writeDB != nil {
			_ = runSQLCommand(s.writeDB, initIndexesSQL)

			writeErr = s.writeDB.Close()
			s.writeDB = nil
		}

		s.closeErr = errors.Join(writeErr, readErr)
	})

	return s.closeErr
}
