package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/pulse-hrv/internal/hrv"
	"github.com/roman-kulish/pulse-hrv/internal/measurement"
)

func newTestStore(t *testing.T) *SqliteStore {
	t.Helper()
	s := NewSqliteStore(filepath.Join(t.TempDir(), "pulse.db"))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func createSession(t *testing.T, s *SqliteStore, startedAt time.Time) (int64, *measurement.Session) {
	t.Helper()
	sess := measurement.NewSession("ffmpeg", startedAt)
	id, err := s.CreateSession(context.Background(), sess, map[string]int{"stride": 2})
	require.NoError(t, err)
	require.Positive(t, id)
	return id, sess
}

func TestSqliteStore_SessionLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	startedAt := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	id, created := createSession(t, s, startedAt)

	got, err := s.Session(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, created.UUID, got.UUID)
	assert.True(t, startedAt.Equal(got.StartedAt), "started at %s", got.StartedAt)
	assert.Equal(t, measurement.StateRunning, got.State)
	assert.Equal(t, "ffmpeg", got.Device)
	assert.Nil(t, got.CompletedAt)
	require.NotNil(t, got.Config)
	assert.JSONEq(t, `{"stride":2}`, *got.Config)

	rmssd, stress := 42.5, 120.25
	result := hrv.Result{
		Bpm:                72,
		Rmssd:              &rmssd,
		StressIndex:        &stress,
		RawIntervals:       45,
		PlausibleIntervals: 44,
		CorrectedIntervals: 40,
	}
	completedAt := startedAt.Add(45 * time.Second)
	require.NoError(t, s.CompleteSession(ctx, id, "completed", completedAt, &result))

	got, err = s.Session(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "completed", got.State)
	require.NotNil(t, got.CompletedAt)
	assert.Equal(t, 45*time.Second, got.Duration())
	if diff := cmp.Diff(result, got.Result()); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}
}

func TestSqliteStore_AbsentMetricsRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	startedAt := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	id, _ := createSession(t, s, startedAt)

	insufficient := hrv.Result{RawIntervals: 6, PlausibleIntervals: 6}
	require.NoError(t, s.CompleteSession(ctx, id, "completed", startedAt.Add(time.Minute), &insufficient))

	failedID, _ := createSession(t, s, startedAt.Add(time.Hour))
	require.NoError(t, s.CompleteSession(ctx, failedID, "failed", startedAt.Add(time.Hour+10*time.Second), nil))

	sessions, err := s.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)

	assert.Equal(t, id, sessions[0].ID)
	assert.Zero(t, sessions[0].Bpm)
	assert.Nil(t, sessions[0].Rmssd)
	assert.Nil(t, sessions[0].StressIndex)
	assert.Equal(t, 6, sessions[0].RawIntervals)

	assert.Equal(t, failedID, sessions[1].ID)
	assert.Equal(t, "failed", sessions[1].State)
	assert.False(t, sessions[1].Result().Sufficient())
}

func TestSqliteStore_NotFound(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	createSession(t, s, time.Now())

	_, err := s.Session(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.CompleteSession(ctx, 999, "failed", time.Now(), nil), ErrNotFound)
}

func TestSqliteStore_Beats(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	base := time.UnixMilli(1_700_000_000_000)
	id, _ := createSession(t, s, base)
	other, _ := createSession(t, s, base)

	beats := []measurement.Beat{
		{Timestamp: base.Add(800 * time.Millisecond), Interval: 0},
		{Timestamp: base.Add(1600 * time.Millisecond), Interval: 800},
		{Timestamp: base.Add(2410 * time.Millisecond), Interval: 810},
	}
	require.NoError(t, s.StoreBeats(ctx, id, beats))
	require.NoError(t, s.StoreBeats(ctx, other, beats[:1]))
	require.NoError(t, s.StoreBeats(ctx, id, nil))

	got, err := s.Beats(ctx, id)
	require.NoError(t, err)
	if diff := cmp.Diff(beats, got, cmp.Comparer(func(a, b time.Time) bool { return a.Equal(b) })); diff != "" {
		t.Errorf("beats mismatch (-want +got):\n%s", diff)
	}
}

func TestSqliteStore_Trace(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	base := time.UnixMilli(1_700_000_000_000)
	id, _ := createSession(t, s, base)

	// more points than fit into a single insert statement
	points := make([]measurement.TracePoint, 2*maxRowsPerInsert+17)
	for i := range points {
		points[i] = measurement.TracePoint{
			Timestamp: base.Add(time.Duration(i) * 33 * time.Millisecond),
			Intensity: float64(100 + i%10),
			Smoothed:  float64(100+i%10) - 0.5,
		}
	}
	require.NoError(t, s.StoreTrace(ctx, id, points[:700]))
	require.NoError(t, s.StoreTrace(ctx, id, points[700:]))

	read := func(opts ...ReaderOption) []measurement.TracePoint {
		r, err := s.ReadTrace(ctx, id, opts...)
		require.NoError(t, err)
		defer func() { require.NoError(t, r.Close()) }()

		var got []measurement.TracePoint
		for r.Next(ctx) {
			got = append(got, r.Current())
		}
		require.NoError(t, r.Error())
		return got
	}

	all := read()
	require.Len(t, all, len(points))
	for i := range all {
		assert.True(t, points[i].Timestamp.Equal(all[i].Timestamp), "point %d", i)
		assert.Equal(t, points[i].Intensity, all[i].Intensity)
		assert.Equal(t, points[i].Smoothed, all[i].Smoothed)
	}

	window := read(WithTimeRange(points[30].Timestamp, points[59].Timestamp))
	require.Len(t, window, 30)
	assert.True(t, points[30].Timestamp.Equal(window[0].Timestamp))

	tail := read(WithStartTime(points[len(points)-5].Timestamp))
	assert.Len(t, tail, 5)

	head := read(WithEndTime(points[4].Timestamp))
	assert.Len(t, head, 5)

	_, err := s.ReadTrace(ctx, id, WithTimeRange(points[10].Timestamp, points[0].Timestamp))
	assert.Error(t, err)

	_, err = s.ReadTrace(ctx, 0)
	assert.Error(t, err)
}

func TestSqliteStore_ReadTraceCancelled(t *testing.T) {
	s := newTestStore(t)
	base := time.UnixMilli(1_700_000_000_000)
	id, _ := createSession(t, s, base)
	require.NoError(t, s.StoreTrace(context.Background(), id, []measurement.TracePoint{{Timestamp: base}}))

	r, err := s.ReadTrace(context.Background(), id)
	require.NoError(t, err)
	defer r.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, r.Next(ctx))
	assert.ErrorIs(t, r.Error(), context.Canceled)
}

func TestSqliteStore_Close(t *testing.T) {
	s := NewSqliteStore(filepath.Join(t.TempDir(), "pulse.db"))
	createSession(t, s, time.Now())
	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "close is idempotent")
}
