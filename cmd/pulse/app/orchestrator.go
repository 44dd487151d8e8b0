package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roman-kulish/pulse-hrv/internal/frame"
	"github.com/roman-kulish/pulse-hrv/internal/hrv"
	"github.com/roman-kulish/pulse-hrv/internal/measurement"
	"github.com/roman-kulish/pulse-hrv/internal/pulse"
	"github.com/roman-kulish/pulse-hrv/internal/session"
	"github.com/roman-kulish/pulse-hrv/internal/storage"
	"github.com/roman-kulish/pulse-hrv/internal/stream"
	"github.com/roman-kulish/pulse-hrv/internal/trace"
)

const (
	// StateCancelled is stored for sessions interrupted before a final state
	StateCancelled = "cancelled"

	framesBacklog = 8
)

var (
	// ErrCaptureEnded is returned when the frame source stops before the session finishes
	ErrCaptureEnded = errors.New("capture ended before the measurement finished")

	// ErrMeasurementFailed is returned when the session stalls
	ErrMeasurementFailed = errors.New("measurement failed: no pulse detected")
)

// FrameSource delivers camera frames in timestamp order
type FrameSource interface {
	BeginCapture(ctx context.Context, frames chan<- *frame.Frame) (<-chan error, error)
	Stop()
}

// WithMaxBatchSize sets the maximum number of trace points stored within a
// single database transaction
func WithMaxBatchSize(size int) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.maxBatchSize = size
	}
}

// WithTraceBufferSize sets the number of trace points held before a flush
func WithTraceBufferSize(size int) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.traceBufferSize = size
	}
}

// WithStream publishes live beats and the final result
func WithStream(conn stream.Conn, subject string) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.streamConn = conn
		o.subject = subject
	}
}

// WithSessionConfig sets the configuration stored with the session record
func WithSessionConfig(config any) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.sessionConfig = config
	}
}

// WithClock sets the wall clock used for session records
func WithClock(now func() time.Time) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// Outcome summarizes a finished measurement
type Outcome struct {
	Session *measurement.Session
	Frames  int
	Beats   int
}

// Orchestrator runs one measurement: it feeds frames from the source to the
// session controller, writes the trace and beats to the store and publishes
// live events.
type Orchestrator struct {
	source   FrameSource
	device   string
	analyzer session.Config

	logger        *slog.Logger
	store         storage.Store
	streamConn    stream.Conn
	subject       string
	sessionConfig any
	now           func() time.Time

	maxBatchSize    int
	traceBufferSize int
}

// NewOrchestrator creates a new Orchestrator
func NewOrchestrator(source FrameSource, device string, analyzer session.Config, store storage.Store, logger *slog.Logger, options ...func(*Orchestrator)) *Orchestrator {
	o := Orchestrator{
		source:          source,
		device:          device,
		analyzer:        analyzer,
		logger:          logger,
		store:           store,
		now:             time.Now,
		maxBatchSize:    defaultMaxBatchSize,
		traceBufferSize: defaultTraceBufferSize,
	}

	for _, option := range options {
		option(&o)
	}

	return &o
}

// run holds the state of a single Run call
type run struct {
	*Orchestrator

	ctx       context.Context
	sessionID int64
	record    *measurement.Session
	traceBuf  *trace.Buffer
	batches   chan []measurement.TracePoint
	publisher *stream.Publisher
	result    *hrv.Result
}

// Run performs one measurement session and returns its outcome. The
// returned error is non-nil unless the session completed.
func (o *Orchestrator) Run(ctx context.Context) (*Outcome, error) {
	traceBuf, err := trace.NewBuffer(o.traceBufferSize, o.traceBufferSize)
	if err != nil {
		return nil, fmt.Errorf("creating trace buffer: %w", err)
	}

	r := run{
		Orchestrator: o,
		ctx:          ctx,
		record:       measurement.NewSession(o.device, o.now()),
		traceBuf:     traceBuf,
		batches:      make(chan []measurement.TracePoint, 4),
	}

	if r.sessionID, err = o.store.CreateSession(ctx, r.record, o.sessionConfig); err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}
	r.record.ID = r.sessionID

	if o.streamConn != nil {
		r.publisher = stream.NewPublisher(o.streamConn, o.subject, r.record.UUID, stream.WithLogger(o.logger))
	}

	logger := o.logger.With(slog.Int64("session", r.sessionID), slog.String("uuid", r.record.UUID.String()))
	controller, err := session.New(o.analyzer,
		session.WithBeatHandler(r.onBeat),
		session.WithFailureHandler(r.onFailure),
		session.WithCompletionHandler(r.onComplete),
		session.WithSampleHandler(r.onSample),
		session.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("creating session controller: %w", err)
	}
	if err = controller.Start(); err != nil {
		return nil, fmt.Errorf("starting session: %w", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.handleTraceBatches()
	}()

	frames := make(chan *frame.Frame, framesBacklog)
	captureErr := r.capture(ctx, controller, frames)

	// the controller is done with its callbacks once capture returns
	if points := r.traceBuf.DrainAll(); len(points) > 0 {
		r.batches <- points
	}
	close(r.batches)
	wg.Wait()

	outcome := &Outcome{
		Session: r.record,
		Frames:  controller.Snapshot().Frames,
	}

	beats := controller.Beats()
	outcome.Beats = len(beats)
	if err = r.storeBeats(beats); err != nil {
		o.logger.Error(err.Error())
	}

	state, runErr := r.finalState(controller, captureErr)
	if controller.State().Active() {
		controller.Cancel()
	}

	if err = r.finish(state); err != nil {
		return outcome, errors.Join(runErr, err)
	}
	return outcome, runErr
}

// capture feeds frames to the controller until the session leaves the
// active states, the source stops or ctx is cancelled
func (r *run) capture(ctx context.Context, controller *session.Controller, frames chan *frame.Frame) error {
	done, err := r.source.BeginCapture(ctx, frames)
	if err != nil {
		return fmt.Errorf("starting capture: %w", err)
	}
	defer r.source.Stop()

	feed := func(f *frame.Frame) bool {
		if err := controller.OnFrame(f); err != nil {
			r.logger.Debug("Frame rejected", slog.String("error", err.Error()))
		}
		return controller.State().Active()
	}

	for {
		select {
		case f := <-frames:
			if !feed(f) {
				return nil
			}

		case err, ok := <-done:
			// frames read before the source stopped are still queued
			for len(frames) > 0 {
				if !feed(<-frames) {
					return nil
				}
			}
			if ok && err != nil {
				return fmt.Errorf("%w: %w", ErrCaptureEnded, err)
			}
			return ErrCaptureEnded

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (r *run) finalState(controller *session.Controller, captureErr error) (string, error) {
	switch controller.State() {
	case session.StateCompleted:
		return session.StateCompleted.String(), nil
	case session.StateFailed:
		return session.StateFailed.String(), ErrMeasurementFailed
	}

	if captureErr == nil {
		captureErr = ErrCaptureEnded
	}
	return StateCancelled, captureErr
}

func (r *run) finish(state string) error {
	completedAt := r.now()
	r.record.State = state
	r.record.CompletedAt = &completedAt
	if r.result != nil {
		r.record.Bpm = r.result.Bpm
		r.record.Rmssd = r.result.Rmssd
		r.record.StressIndex = r.result.StressIndex
		r.record.RawIntervals = r.result.RawIntervals
		r.record.PlausibleIntervals = r.result.PlausibleIntervals
		r.record.CorrectedIntervals = r.result.CorrectedIntervals
	}

	if r.publisher != nil {
		if err := r.publisher.PublishResult(state, completedAt, r.result); err != nil {
			r.logger.Warn(err.Error())
		}
	}

	// the run context may be cancelled already; the record is still closed
	ctx := context.WithoutCancel(r.ctx)
	if err := r.store.CompleteSession(ctx, r.sessionID, state, completedAt, r.result); err != nil {
		return fmt.Errorf("completing session: %w", err)
	}
	return nil
}

func (r *run) onBeat(beat pulse.Beat, bpm int) {
	if r.publisher == nil {
		return
	}
	if err := r.publisher.PublishBeat(beat, bpm); err != nil {
		r.logger.Warn(err.Error())
	}
}

func (r *run) onFailure() {
	r.logger.Warn("No pulse detected, stopping capture", slog.Int64("session", r.sessionID))
}

func (r *run) onComplete(result hrv.Result) {
	r.result = &result
}

func (r *run) onSample(s session.Sample) {
	r.traceBuf.Insert(measurement.TracePoint{
		Timestamp: s.Timestamp,
		Intensity: s.Intensity,
		Smoothed:  s.Smoothed,
	})
	if r.traceBuf.IsFull() {
		r.batches <- r.traceBuf.Flush()
	}
}

func (r *run) handleTraceBatches() {
	ctx := context.WithoutCancel(r.ctx)
	for points := range r.batches {
		if r.maxBatchSize < 1 {
			panic("cannot be less than 1")
		}
		for start := 0; start < len(points); start += r.maxBatchSize {
			end := min(start+r.maxBatchSize, len(points))
			chunk := points[start:end:end]
			if err := r.store.StoreTrace(ctx, r.sessionID, chunk); err != nil {
				r.logger.Error(fmt.Sprintf("storing trace: %s", err.Error()))
			}
		}
	}
}

func (r *run) storeBeats(beats []pulse.Beat) error {
	if len(beats) == 0 {
		return nil
	}

	data := make([]measurement.Beat, len(beats))
	for i, b := range beats {
		data[i] = measurement.NewBeat(b)
	}
	if err := r.store.StoreBeats(context.WithoutCancel(r.ctx), r.sessionID, data); err != nil {
		return fmt.Errorf("storing beats: %w", err)
	}
	return nil
}
