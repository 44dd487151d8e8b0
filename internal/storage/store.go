package storage

import (
	"context"
	"errors"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roman-kulish/pulse-hrv/internal/hrv"
	"github.com/roman-kulish/pulse-hrv/internal/measurement"
)

// ErrNotFound is returned when a session does not exist
var ErrNotFound = errors.New("not found")

// Store provides an interface for persisting pulse measurement sessions.
// It handles session records, accepted beats and the intensity trace.
// All operations that write to the database should be considered atomic.
type Store interface {
	// CreateSession stores a new running session and returns its identifier.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - session: Session record; UUID, StartedAt, State and Device are stored
	//   - config: Optional analyzer configuration. Can be string, []byte, or JSON-serializable object
	//
	// Returns:
	//   - sessionID: Unique identifier for the created session
	//   - error: If session creation fails or context is cancelled
	CreateSession(ctx context.Context, session *measurement.Session, config any) (sessionID int64, err error)

	// CompleteSession records the final state of a session. A nil result
	// leaves the metrics absent, as for a failed or cancelled session.
	//
	// Returns ErrNotFound if the session does not exist.
	CompleteSession(ctx context.Context, sessionID int64, state string, completedAt time.Time, result *hrv.Result) error

	// Session retrieves a specific session by its ID.
	// Returns ErrNotFound if the session does not exist.
	Session(ctx context.Context, id int64) (*measurement.Session, error)

	// Sessions returns all sessions ordered by start time in ascending order.
	Sessions(ctx context.Context) ([]*measurement.Session, error)

	// StoreBeats saves accepted beats of a session in a single transaction.
	StoreBeats(ctx context.Context, sessionID int64, beats []measurement.Beat) error

	// Beats returns the beats of a session ordered by timestamp.
	Beats(ctx context.Context, sessionID int64) ([]measurement.Beat, error)

	// StoreTrace saves a batch of trace points in a single transaction.
	StoreTrace(ctx context.Context, sessionID int64, points []measurement.TracePoint) error

	// ReadTrace returns an iterator over the trace of a session.
	// The returned reader must be closed after use.
	ReadTrace(ctx context.Context, sessionID int64, opts ...ReaderOption) (TraceReader, error)

	// Close releases all database connections and resources.
	// It is safe to call Close multiple times.
	Close() error
}

var _ Store = (*SqliteStore)(nil)
