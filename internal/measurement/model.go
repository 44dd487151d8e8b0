// Package measurement holds the persisted records of a pulse measurement.
package measurement

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/roman-kulish/pulse-hrv/internal/hrv"
	"github.com/roman-kulish/pulse-hrv/internal/pulse"
)

// Session is a single measurement attempt as stored on disk.
// Metrics stay nil until the session completes with sufficient data.
type Session struct {
	ID          int64      `json:"ID"`                    // Unique identifier for the session
	UUID        uuid.UUID  `json:"uuid"`                  // Globally unique identifier, shared with published events
	StartedAt   time.Time  `json:"startedAt"`             // When the session was created
	CompletedAt *time.Time `json:"completedAt,omitempty"` // When the session reached a final state
	State       string     `json:"state"`                 // Final session state, "running" until then
	Device      string     `json:"device"`                // Frame source (e.g., "ffmpeg")
	Config      *string    `json:"config,omitempty"`      // Optional analyzer configuration in JSON format

	Bpm                int      `json:"bpm"`
	Rmssd              *float64 `json:"rmssd,omitempty"`       // ms
	StressIndex        *float64 `json:"stressIndex,omitempty"` // Baevsky stress index
	RawIntervals       int      `json:"rawIntervals"`
	PlausibleIntervals int      `json:"plausibleIntervals"`
	CorrectedIntervals int      `json:"correctedIntervals"`
}

// StateRunning marks a session that has not reached a final state
const StateRunning = "running"

// NewSession returns a running session record with a fresh UUID
func NewSession(device string, startedAt time.Time) *Session {
	return &Session{
		UUID:      uuid.New(),
		StartedAt: startedAt,
		State:     StateRunning,
		Device:    device,
	}
}

// Result returns the interval processor output stored with the session
func (s *Session) Result() hrv.Result {
	return hrv.Result{
		Bpm:                s.Bpm,
		Rmssd:              s.Rmssd,
		StressIndex:        s.StressIndex,
		RawIntervals:       s.RawIntervals,
		PlausibleIntervals: s.PlausibleIntervals,
		CorrectedIntervals: s.CorrectedIntervals,
	}
}

// Duration returns the wall time between start and completion, or 0 while running
func (s *Session) Duration() time.Duration {
	if s.CompletedAt == nil {
		return 0
	}
	return s.CompletedAt.Sub(s.StartedAt)
}

func (s *Session) String() string {
	return fmt.Sprintf("session %d (%s) %s: %s", s.ID, s.UUID, s.State, s.Result())
}

// Beat is an accepted heartbeat
type Beat struct {
	Timestamp time.Time `json:"timestamp"`
	Interval  int64     `json:"interval"` // ms since the previous beat, 0 at a run start
}

// NewBeat converts a detector beat into its stored form
func NewBeat(b pulse.Beat) Beat {
	return Beat{
		Timestamp: time.UnixMilli(b.TimestampMs),
		Interval:  b.IntervalMs,
	}
}

// TracePoint is one reduced frame of the intensity trace
type TracePoint struct {
	Timestamp time.Time `json:"timestamp"`
	Intensity float64   `json:"intensity"` // mean red estimate over the ROI
	Smoothed  float64   `json:"smoothed"`  // moving average fed to the detector
}
