package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/pulse-hrv/internal/frame"
	"github.com/roman-kulish/pulse-hrv/internal/session"
	"github.com/roman-kulish/pulse-hrv/internal/storage"
	"github.com/roman-kulish/pulse-hrv/internal/stream"
)

const (
	fps       = 30
	frameSize = 30
)

// syntheticSource emits I420 frames whose red intensity follows level(i)
type syntheticSource struct {
	epoch  time.Time
	level  func(i int) float64
	frames int

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func (s *syntheticSource) BeginCapture(ctx context.Context, out chan<- *frame.Frame) (<-chan error, error) {
	ctx, s.cancel = context.WithCancel(ctx)
	done := make(chan error, 1)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(done)

		for i := 0; i < s.frames; i++ {
			v := s.level(i)
			buf := make([]byte, frame.I420Size(frameSize, frameSize))
			for j := 0; j < frameSize*frameSize; j++ {
				buf[j] = byte(math.Floor(v + float64(j%7)/7))
			}
			for j := frameSize * frameSize; j < len(buf); j++ {
				buf[j] = 128
			}

			f, err := frame.FromI420(frameSize, frameSize, buf, s.epoch.Add(time.Duration(i)*time.Second/fps))
			if err != nil {
				done <- err
				return
			}

			select {
			case out <- f:
			case <-ctx.Done():
				return
			}
		}
	}()

	return done, nil
}

func (s *syntheticSource) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func pulseLevel(period time.Duration) func(i int) float64 {
	step := 2 * math.Pi * float64(time.Second/fps) / float64(period)
	return func(i int) float64 {
		return 100 + 30*math.Sin(0.7+step*float64(i))
	}
}

type fakeConn struct {
	subjects []string
	payloads [][]byte
}

func (c *fakeConn) Publish(subject string, data []byte) error {
	c.subjects = append(c.subjects, subject)
	c.payloads = append(c.payloads, data)
	return nil
}

func newTestStore(t *testing.T) *storage.SqliteStore {
	t.Helper()
	s := storage.NewSqliteStore(filepath.Join(t.TempDir(), "pulse.db"))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOrchestrator_CompletedSession(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	conn := &fakeConn{}

	source := &syntheticSource{
		epoch:  time.UnixMilli(1_700_000_000_000),
		level:  pulseLevel(800 * time.Millisecond),
		frames: 90 * fps,
	}
	o := NewOrchestrator(source, "synthetic", session.DefaultConfig(), store, discardLogger(),
		WithMaxBatchSize(64),
		WithTraceBufferSize(100),
		WithStream(conn, "pulse"),
		WithSessionConfig(map[string]string{"source": "synthetic"}))

	outcome, err := o.Run(ctx)
	require.NoError(t, err)
	require.NotNil(t, outcome)

	assert.Equal(t, "completed", outcome.Session.State)
	assert.InDelta(t, 75, outcome.Session.Bpm, 1)
	require.NotNil(t, outcome.Session.Rmssd)
	assert.Less(t, outcome.Frames, 90*fps, "capture stops once the session completes")

	stored, err := store.Session(ctx, outcome.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, "completed", stored.State)
	assert.Equal(t, outcome.Session.UUID, stored.UUID)
	assert.Equal(t, outcome.Session.Bpm, stored.Bpm)
	require.NotNil(t, stored.Rmssd)
	assert.InDelta(t, *outcome.Session.Rmssd, *stored.Rmssd, 1e-9)
	require.NotNil(t, stored.Config)
	assert.JSONEq(t, `{"source":"synthetic"}`, *stored.Config)

	beats, err := store.Beats(ctx, outcome.Session.ID)
	require.NoError(t, err)
	assert.Len(t, beats, outcome.Beats)
	assert.Zero(t, beats[0].Interval)

	reader, err := store.ReadTrace(ctx, outcome.Session.ID)
	require.NoError(t, err)
	defer reader.Close()
	var points int
	for reader.Next(ctx) {
		points++
	}
	require.NoError(t, reader.Error())
	assert.Equal(t, outcome.Frames, points)

	// one message per beat and the result
	require.Len(t, conn.subjects, outcome.Beats+1)
	assert.Equal(t, "pulse.beat", conn.subjects[0])
	assert.Equal(t, "pulse.result", conn.subjects[len(conn.subjects)-1])

	var result stream.ResultMsg
	require.NoError(t, json.Unmarshal(conn.payloads[len(conn.payloads)-1], &result))
	assert.Equal(t, outcome.Session.UUID.String(), result.Session)
	assert.Equal(t, "completed", result.State)
	require.NotNil(t, result.Result)
	assert.Equal(t, outcome.Session.Bpm, result.Result.Bpm)
}

func TestOrchestrator_FailedSession(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	source := &syntheticSource{
		epoch:  time.UnixMilli(1_700_000_000_000),
		level:  func(int) float64 { return 90 },
		frames: 30 * fps,
	}
	o := NewOrchestrator(source, "synthetic", session.DefaultConfig(), store, discardLogger())

	outcome, err := o.Run(ctx)
	require.ErrorIs(t, err, ErrMeasurementFailed)
	require.NotNil(t, outcome)
	assert.Zero(t, outcome.Beats)

	stored, err := store.Session(ctx, outcome.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, "failed", stored.State)
	assert.NotNil(t, stored.CompletedAt)
	assert.Nil(t, stored.Rmssd)
	assert.Nil(t, stored.StressIndex)
}

func TestOrchestrator_CaptureEnded(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	source := &syntheticSource{
		epoch:  time.UnixMilli(1_700_000_000_000),
		level:  pulseLevel(800 * time.Millisecond),
		frames: 5 * fps,
	}
	o := NewOrchestrator(source, "synthetic", session.DefaultConfig(), store, discardLogger())

	outcome, err := o.Run(ctx)
	require.ErrorIs(t, err, ErrCaptureEnded)
	assert.Equal(t, 5*fps, outcome.Frames, "queued frames are processed")

	stored, err := store.Session(ctx, outcome.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, StateCancelled, stored.State)

	beats, err := store.Beats(ctx, outcome.Session.ID)
	require.NoError(t, err)
	assert.Len(t, beats, outcome.Beats)
}

func TestParseConfig(t *testing.T) {
	config, err := ParseConfig(strings.NewReader(`
settings:
  logLevel: debug
capture:
  input: /dev/video0
  inputFormat: v4l2
  width: 640
  height: 480
  frameRate: 30
analyzer:
  duration: 60s
  pulse:
    minDynamicRange: 0.8
storage:
  dataDirectory: /tmp/pulse
stream:
  enabled: true
  natsURL: nats://127.0.0.1:4222
`))
	require.NoError(t, err)

	assert.Equal(t, slog.LevelDebug, config.Settings.LogLevel)
	assert.Equal(t, 640, config.Capture.Width)
	assert.Equal(t, 60*time.Second, config.Analyzer.Duration.Std())
	assert.Equal(t, 0.8, config.Analyzer.Pulse.MinDynamicRange)

	// untouched keys keep their defaults
	defaults := DefaultConfig()
	assert.Equal(t, defaults.Analyzer.StallTimeout, config.Analyzer.StallTimeout)
	assert.Equal(t, defaults.Analyzer.Pulse.KernelLength, config.Analyzer.Pulse.KernelLength)
	assert.Equal(t, defaultMaxBatchSize, config.Storage.MaxBatchSize)
	assert.Equal(t, defaultSubject, config.Stream.Subject)
}

func TestParseConfig_Invalid(t *testing.T) {
	testCases := []struct {
		name string
		yaml string
	}{
		{"missing capture", "settings:\n  logLevel: info\n"},
		{"unknown key", "capture:\n  input: a.mp4\n  width: 320\n  height: 240\n  frameRate: 30\n  torch: true\n"},
		{"invalid analyzer", "capture:\n  input: a.mp4\n  width: 320\n  height: 240\n  frameRate: 30\nanalyzer:\n  rollingBeats: 1\n"},
		{"stream without url", "capture:\n  input: a.mp4\n  width: 320\n  height: 240\n  frameRate: 30\nstream:\n  enabled: true\n"},
		{"invalid duration", "capture:\n  input: a.mp4\n  width: 320\n  height: 240\n  frameRate: 30\nanalyzer:\n  duration: soon\n"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseConfig(strings.NewReader(tc.yaml))
			assert.Error(t, err)
		})
	}
}
