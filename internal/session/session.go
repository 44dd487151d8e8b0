// Package session owns one pulse measurement attempt: it feeds camera frames
// through the reducer, signal buffer and peak detector, watches for stalls and
// hands the collected beats to the interval processor on completion.
package session

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roman-kulish/pulse-hrv/internal/frame"
	"github.com/roman-kulish/pulse-hrv/internal/hrv"
	"github.com/roman-kulish/pulse-hrv/internal/pulse"
	"github.com/roman-kulish/pulse-hrv/internal/signal"
)

const (
	StateIdle State = iota
	StateWarmup
	StateListening
	StateCompleted
	StateFailed
)

var (
	ErrSessionActive   = errors.New("session is already active")
	ErrSessionInactive = errors.New("session is not accepting frames")
	ErrNotFinished     = errors.New("session is still running")
	ErrResetRequired   = errors.New("finished session must be reset before a new start")
)

type State int

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWarmup:
		return "warmup"
	case StateListening:
		return "listening"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Active reports whether the state accepts frames
func (s State) Active() bool {
	return s == StateWarmup || s == StateListening
}

// Sample is one reduced frame as seen by the detector
type Sample struct {
	Timestamp time.Time
	Intensity float64
	Smoothed  float64
}

// Snapshot is a point-in-time view of the session
type Snapshot struct {
	State       State
	Frames      int // frames reduced to a sample
	Skipped     int // malformed frames
	Beats       int
	StartedAt   time.Time // first accepted frame; zero before it
	FirstBeatAt time.Time
	LastBeatAt  time.Time
	RollingBpm  int
}

// WithBeatHandler is called for every accepted beat with the live BPM
func WithBeatHandler(fn func(beat pulse.Beat, rollingBpm int)) func(c *Controller) {
	return func(c *Controller) {
		c.onBeat = fn
	}
}

// WithFailureHandler is called once when the stall watchdog fails the session
func WithFailureHandler(fn func()) func(c *Controller) {
	return func(c *Controller) {
		c.onFailure = fn
	}
}

// WithCompletionHandler is called once with the interval processor result
func WithCompletionHandler(fn func(result hrv.Result)) func(c *Controller) {
	return func(c *Controller) {
		c.onComplete = fn
	}
}

// WithSampleHandler is called for every reduced frame
func WithSampleHandler(fn func(sample Sample)) func(c *Controller) {
	return func(c *Controller) {
		c.onSample = fn
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) func(c *Controller) {
	return func(c *Controller) {
		c.logger = logger
	}
}

// Controller is the session state machine. Frames must be delivered one at a
// time in timestamp order; the controller is not safe for concurrent use.
type Controller struct {
	cfg      Config
	reducer  *frame.Reducer
	buffer   *signal.Buffer
	detector *pulse.Detector

	state          State
	frames         int
	skipped        int
	startMs        int64
	started        bool
	clockMs        int64 // first delivered frame, malformed or not
	clocked        bool
	beats          []pulse.Beat
	stallSignalled bool
	result         hrv.Result

	onBeat     func(beat pulse.Beat, rollingBpm int)
	onFailure  func()
	onComplete func(result hrv.Result)
	onSample   func(sample Sample)
	logger     *slog.Logger
}

// New creates an idle Controller
func New(cfg Config, options ...func(c *Controller)) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := Controller{
		cfg:    cfg,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, option := range options {
		option(&c)
	}

	var err error
	if c.reducer, err = frame.NewReducer(frame.WithROIMargin(cfg.ROIMargin), frame.WithStride(cfg.Stride)); err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	if c.buffer, err = signal.NewBuffer(cfg.Signal); err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	if c.detector, err = pulse.NewDetector(cfg.Pulse, pulse.WithLogger(c.logger)); err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	return &c, nil
}

// Start begins a new session. A finished session must be Reset first.
func (c *Controller) Start() error {
	switch c.state {
	case StateWarmup, StateListening:
		return ErrSessionActive
	case StateCompleted, StateFailed:
		return ErrResetRequired
	}

	c.clear()
	c.state = StateWarmup
	c.logger.Info("Session started")
	return nil
}

// Cancel abandons the session from any state; no result is produced
func (c *Controller) Cancel() {
	if c.state != StateIdle {
		c.logger.Info("Session cancelled", slog.String("state", c.state.String()), slog.Int("beats", len(c.beats)))
	}
	c.clear()
	c.state = StateIdle
}

// Reset returns a finished session to Idle
func (c *Controller) Reset() error {
	if c.state.Active() {
		return ErrNotFinished
	}

	c.clear()
	c.state = StateIdle
	return nil
}

func (c *Controller) clear() {
	c.buffer.Reset()
	c.detector.Reset()
	c.frames = 0
	c.skipped = 0
	c.startMs = 0
	c.started = false
	c.clockMs = 0
	c.clocked = false
	c.beats = nil
	c.stallSignalled = false
	c.result = hrv.Result{}
}

// OnFrame processes one camera frame. Frames that cannot be reduced are
// skipped without error but still count towards the stall watchdog;
// ErrSessionInactive is returned outside Warmup and Listening.
func (c *Controller) OnFrame(f *frame.Frame) error {
	if !c.state.Active() {
		return ErrSessionInactive
	}
	if f == nil {
		return nil
	}

	ts := f.Timestamp
	nowMs := ts.UnixMilli()
	if !c.clocked {
		c.clockMs = nowMs
		c.clocked = true
	}

	intensity, ok := c.reducer.Reduce(f)
	if !ok {
		c.skipped++
		c.logger.Debug("Frame skipped", slog.Int("frame", c.frames+c.skipped))
		c.checkStall(nowMs)
		return nil
	}

	if !c.started {
		c.startMs = nowMs
		c.started = true
		c.detector.SetOrigin(ts)
	}
	c.frames++

	c.buffer.Push(intensity)
	smoothed := c.buffer.Smoothed()
	if c.onSample != nil {
		c.onSample(Sample{Timestamp: ts, Intensity: intensity, Smoothed: smoothed})
	}

	if c.state == StateWarmup {
		if !c.buffer.BaselineEstablished() {
			return nil
		}
		c.state = StateListening
		c.logger.Info("Baseline established", slog.Float64("intensity", smoothed), slog.Int("frames", c.frames))
	}

	if beat, ok := c.detector.Process(smoothed, c.buffer.DynamicRange(), ts); ok {
		c.recordBeat(beat)
	}

	if len(c.beats) > 0 && nowMs-c.beats[0].TimestampMs >= c.cfg.Duration.Milliseconds() {
		c.complete()
		return nil
	}

	c.checkStall(nowMs)
	return nil
}

func (c *Controller) recordBeat(beat pulse.Beat) {
	c.beats = append(c.beats, beat)
	c.stallSignalled = false

	bpm := c.RollingBPM()
	c.logger.Debug("Beat detected",
		slog.Int64("timestamp", beat.TimestampMs),
		slog.Int64("interval", beat.IntervalMs),
		slog.Bool("runStart", beat.RunStart),
		slog.Int("bpm", bpm))

	if c.onBeat != nil {
		c.onBeat(beat, bpm)
	}
}

func (c *Controller) checkStall(nowMs int64) {
	if c.stallSignalled || c.frames+c.skipped <= c.cfg.MinStallFrames {
		return
	}

	since := c.clockMs
	if n := len(c.beats); n > 0 {
		since = c.beats[n-1].TimestampMs
	}
	if nowMs-since <= c.cfg.StallTimeout.Milliseconds() {
		return
	}

	c.stallSignalled = true
	c.state = StateFailed
	c.logger.Warn("Measurement stalled",
		slog.Int64("silence", nowMs-since),
		slog.Int("frames", c.frames),
		slog.Int("skipped", c.skipped),
		slog.Int("beats", len(c.beats)))

	if c.onFailure != nil {
		c.onFailure()
	}
}

func (c *Controller) complete() {
	timestamps := c.Timestamps()
	if len(timestamps) > c.cfg.SettlingBeats {
		timestamps = timestamps[c.cfg.SettlingBeats:]
	} else {
		timestamps = nil
	}

	c.result = hrv.Process(timestamps, c.cfg.HRV)
	c.state = StateCompleted
	c.logger.Info("Session completed", slog.String("result", c.result.String()), slog.Int("beats", len(c.beats)))

	if c.onComplete != nil {
		c.onComplete(c.result)
	}
}

// State returns the current state
func (c *Controller) State() State {
	return c.state
}

// Result returns the interval processor output of a completed session
func (c *Controller) Result() (hrv.Result, bool) {
	if c.state != StateCompleted {
		return hrv.Result{}, false
	}
	return c.result, true
}

// Beats returns a copy of the beats recorded in this session
func (c *Controller) Beats() []pulse.Beat {
	return append([]pulse.Beat(nil), c.beats...)
}

// Timestamps returns the recorded beat timestamps in milliseconds
func (c *Controller) Timestamps() []int64 {
	ts := make([]int64, len(c.beats))
	for i, b := range c.beats {
		ts[i] = b.TimestampMs
	}
	return ts
}

// RollingBPM returns the live heart rate over the most recent beats, or 0
// until enough beats have been recorded
func (c *Controller) RollingBPM() int {
	n := len(c.beats)
	if n < c.cfg.RollingBeats {
		return 0
	}

	ts := make([]int64, 0, c.cfg.RollingBeats)
	for _, b := range c.beats[n-c.cfg.RollingBeats:] {
		ts = append(ts, b.TimestampMs)
	}
	return hrv.CalculateBpm(hrv.Intervals(ts))
}

// Snapshot returns a view of the session progress
func (c *Controller) Snapshot() Snapshot {
	s := Snapshot{
		State:      c.state,
		Frames:     c.frames,
		Skipped:    c.skipped,
		Beats:      len(c.beats),
		RollingBpm: c.RollingBPM(),
	}
	if c.started {
		s.StartedAt = time.UnixMilli(c.startMs)
	}
	if n := len(c.beats); n > 0 {
		s.FirstBeatAt = time.UnixMilli(c.beats[0].TimestampMs)
		s.LastBeatAt = time.UnixMilli(c.beats[n-1].TimestampMs)
	}
	return s
}
