package stream

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/roman-kulish/pulse-hrv/internal/hrv"
	"github.com/roman-kulish/pulse-hrv/internal/pulse"
)

// Conn is the subset of *nats.Conn used by the publisher
type Conn interface {
	Publish(subject string, data []byte) error
}

// BeatMsg is published for every accepted beat on <subject>.beat
type BeatMsg struct {
	Session  string `json:"session"`
	Ts       int64  `json:"ts"`       // beat timestamp, ms since the Unix epoch
	Bpm      int    `json:"bpm"`      // live BPM, 0 until enough beats are collected
	Interval int64  `json:"interval"` // ms since the previous beat, 0 at a run start
	RunStart bool   `json:"runStart,omitempty"`
}

// ResultMsg is published once when the session reaches a final state on <subject>.result
type ResultMsg struct {
	Session     string      `json:"session"`
	Ts          int64       `json:"ts"`
	State       string      `json:"state"`
	Result      *hrv.Result `json:"result,omitempty"`
	StressLevel string      `json:"stressLevel,omitempty"`
}

// WithLogger sets the logger for the publisher
func WithLogger(logger *slog.Logger) func(p *Publisher) {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// Publisher sends the events of one measurement session
type Publisher struct {
	conn    Conn
	subject string
	session string

	logger *slog.Logger
}

// NewPublisher creates a publisher for the session identified by id
func NewPublisher(conn Conn, subject string, id uuid.UUID, options ...func(p *Publisher)) *Publisher {
	p := Publisher{
		conn:    conn,
		subject: subject,
		session: id.String(),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&p)
	}

	return &p
}

// BeatSubject returns the subject beat events are published on
func (p *Publisher) BeatSubject() string {
	return p.subject + ".beat"
}

// ResultSubject returns the subject the final result is published on
func (p *Publisher) ResultSubject() string {
	return p.subject + ".result"
}

// PublishBeat sends an accepted beat with the live BPM
func (p *Publisher) PublishBeat(beat pulse.Beat, bpm int) error {
	return p.publish(p.BeatSubject(), BeatMsg{
		Session:  p.session,
		Ts:       beat.TimestampMs,
		Bpm:      bpm,
		Interval: beat.IntervalMs,
		RunStart: beat.RunStart,
	})
}

// PublishResult sends the final state of the session. The result is nil for
// sessions that did not complete.
func (p *Publisher) PublishResult(state string, at time.Time, result *hrv.Result) error {
	msg := ResultMsg{
		Session: p.session,
		Ts:      at.UnixMilli(),
		State:   state,
		Result:  result,
	}
	if result != nil {
		msg.StressLevel = result.StressLevel().String()
	}
	return p.publish(p.ResultSubject(), msg)
}

func (p *Publisher) publish(subject string, msg any) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshaling %T: %w", msg, err)
	}

	if err = p.conn.Publish(subject, b); err != nil {
		return fmt.Errorf("publishing to %s: %w", subject, err)
	}

	p.logger.Debug("Event published", slog.String("subject", subject), slog.Int("size", len(b)))
	return nil
}
