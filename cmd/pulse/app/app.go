package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/pulse-hrv/internal/capture"
	"github.com/roman-kulish/pulse-hrv/internal/capture/ffmpeg"
	"github.com/roman-kulish/pulse-hrv/internal/storage"
	"github.com/roman-kulish/pulse-hrv/internal/stream"
)

const natsClientName = "pulse-hrv"

// Run performs one measurement session with the camera described by config
func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	store, err := createStorage(&config.Storage, logger)
	if err != nil {
		return fmt.Errorf("failed to create storage: %w", err)
	}
	defer store.Close()

	handler, err := ffmpeg.New(&config.Capture)
	if err != nil {
		return fmt.Errorf("failed to create camera: %w", err)
	}
	device := capture.NewDevice(handler, capture.WithLogger(logger))

	options := []func(*Orchestrator){
		WithMaxBatchSize(config.Storage.MaxBatchSize),
		WithTraceBufferSize(config.Storage.TraceBufferSize),
		WithSessionConfig(config),
	}

	if config.Stream.Enabled {
		nc, err := stream.Connect(config.Stream.NatsURL, natsClientName)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		defer nc.Drain()

		options = append(options, WithStream(nc, config.Stream.Subject))
		logger.Info("publishing live events", slog.String("url", config.Stream.NatsURL), slog.String("subject", config.Stream.Subject))
	}

	logger.Info("place a fingertip over the camera and torch", slog.String("capture", config.Capture.String()))

	orchestrator := NewOrchestrator(device, handler.Device(), config.Analyzer, store, logger, options...)
	outcome, err := orchestrator.Run(ctx)
	if outcome != nil {
		logSummary(logger, outcome)
	}
	return err
}

func logSummary(logger *slog.Logger, outcome *Outcome) {
	sess := outcome.Session
	attrs := []any{
		slog.Int64("session", sess.ID),
		slog.String("state", sess.State),
		slog.String("frames", humanize.Comma(int64(outcome.Frames))),
		slog.String("beats", humanize.Comma(int64(outcome.Beats))),
		slog.String("started", humanize.Time(sess.StartedAt)),
		slog.Duration("duration", sess.Duration().Round(time.Millisecond)),
	}

	result := sess.Result()
	if !result.Sufficient() && result.Bpm == 0 {
		logger.Warn("measurement finished without a result", attrs...)
		return
	}

	attrs = append(attrs,
		slog.Int("bpm", result.Bpm),
		slog.String("rmssd", formatMetric(result.Rmssd, "ms")),
		slog.String("stressIndex", formatMetric(result.StressIndex, "")),
		slog.String("stress", result.StressLevel().String()))
	logger.Info("measurement finished", attrs...)
}

func formatMetric(v *float64, unit string) string {
	if v == nil {
		return "n/a"
	}
	return humanize.FtoaWithDigits(*v, 1) + unit
}

func createStorage(config *StorageConfig, logger *slog.Logger) (*storage.SqliteStore, error) {
	dir := config.DataDirectory
	if dir == "" {
		dir = defaultStorageDir
	}
	if !filepath.IsAbs(dir) {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current working directory: %w", err)
		}
		dir = filepath.Join(wd, dir)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage directory '%s': %w", dir, err)
	}

	dbPath := filepath.Join(dir, fmt.Sprintf("pulse_session_%s.sqlite", time.Now().UTC().Format("20060102_150405")))
	logger.Info("storing measurement", slog.String("path", dbPath))

	return storage.NewSqliteStore(dbPath), nil
}
