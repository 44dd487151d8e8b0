package app

import (
	"context"
	"image/png"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/pulse-hrv/internal/hrv"
	"github.com/roman-kulish/pulse-hrv/internal/measurement"
	"github.com/roman-kulish/pulse-hrv/internal/storage"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// seedSession writes a completed 20s session with an 800ms pulse
func seedSession(t *testing.T, dbPath string, startedAt time.Time) int64 {
	t.Helper()
	ctx := context.Background()

	store := storage.NewSqliteStore(dbPath)
	defer func() { require.NoError(t, store.Close()) }()

	id, err := store.CreateSession(ctx, measurement.NewSession("ffmpeg", startedAt), nil)
	require.NoError(t, err)

	var points []measurement.TracePoint
	for i := 0; i < 600; i++ {
		ts := startedAt.Add(time.Duration(i) * 33 * time.Millisecond)
		v := 100 + 20*math.Sin(2*math.Pi*float64(ts.Sub(startedAt))/float64(800*time.Millisecond))
		points = append(points, measurement.TracePoint{Timestamp: ts, Intensity: v + float64(i%3), Smoothed: v})
	}
	require.NoError(t, store.StoreTrace(ctx, id, points))

	var beats []measurement.Beat
	for i := 0; i < 24; i++ {
		b := measurement.Beat{Timestamp: startedAt.Add(time.Second + time.Duration(i)*800*time.Millisecond), Interval: 800}
		if i == 0 {
			b.Interval = 0
		}
		beats = append(beats, b)
	}
	require.NoError(t, store.StoreBeats(ctx, id, beats))

	rmssd, si := 12.5, 31.0
	require.NoError(t, store.CompleteSession(ctx, id, "completed", startedAt.Add(20*time.Second), &hrv.Result{
		Bpm:         75,
		Rmssd:       &rmssd,
		StressIndex: &si,
	}))
	return id
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "pulse.sqlite")
	id := seedSession(t, dbPath, time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC))

	config, err := NewConfigFromArgs("trace", []string{
		"-db", dbPath,
		"-s", strconv.FormatInt(id, 10),
		"-o", filepath.Join(dir, "report"),
		"-width", "800",
		"-height", "200",
		"-tz", "UTC",
		"-from", "2s",
		"-to", "12s",
	}, io.Discard)
	require.NoError(t, err)

	require.NoError(t, Run(context.Background(), config, discard))

	f, err := os.Open(filepath.Join(dir, "report.png"))
	require.NoError(t, err)
	defer f.Close()

	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 800+defaultLeftBorder+defaultRightBorder, img.Bounds().Dx())
	assert.Equal(t, 200+defaultTopBorder+defaultBottomBorder, img.Bounds().Dy())
}

func TestRun_Errors(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "pulse.sqlite")
	id := seedSession(t, dbPath, time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC))

	args := func(extra ...string) *Config {
		c, err := NewConfigFromArgs("trace", append([]string{"-db", dbPath, "-o", filepath.Join(dir, "out")}, extra...), io.Discard)
		require.NoError(t, err)
		return c
	}

	err := Run(context.Background(), args("-s", "999"), discard)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	err = Run(context.Background(), args("-s", strconv.FormatInt(id, 10), "-from", "1m"), discard)
	assert.ErrorIs(t, err, ErrNoTrace)

	missing := args()
	missing.DBPath = filepath.Join(dir, "missing.sqlite")
	assert.Error(t, Run(context.Background(), missing, discard))

	_, err = os.Stat(filepath.Join(dir, "out.png"))
	assert.True(t, os.IsNotExist(err), "no image is written on error")
}
