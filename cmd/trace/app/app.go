package app

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/pulse-hrv/internal/storage"
)

// ErrNoTrace is returned when the selected range holds no trace points
var ErrNoTrace = errors.New("no trace points in range")

func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	if _, err := os.Stat(config.DBPath); err != nil && os.IsNotExist(err) {
		return fmt.Errorf("database file '%s' does not exist: %w", config.DBPath, err)
	}

	store := storage.NewSqliteStore(config.DBPath)
	defer store.Close()

	return renderTrace(ctx, store, config, logger)
}

func renderTrace(ctx context.Context, store storage.Store, config *Config, logger *slog.Logger) error {
	sess, err := store.Session(ctx, config.SessionID)
	if err != nil {
		return fmt.Errorf("loading session %d: %w", config.SessionID, err)
	}

	logger.Info("session loaded",
		slog.String("uuid", sess.UUID.String()),
		slog.String("state", sess.State),
		slog.String("device", sess.Device),
		slog.String("started", sess.StartedAt.In(config.TimeZone).Format(time.DateTime)))

	var opts []storage.ReaderOption
	var filters []any
	switch {
	case config.From != nil && config.To != nil:
		opts = append(opts, storage.WithTimeRange(sess.StartedAt.Add(*config.From), sess.StartedAt.Add(*config.To)))
		filters = append(filters, slog.Duration("from", *config.From), slog.Duration("to", *config.To))

	case config.From != nil:
		opts = append(opts, storage.WithStartTime(sess.StartedAt.Add(*config.From)))
		filters = append(filters, slog.Duration("from", *config.From))

	case config.To != nil:
		opts = append(opts, storage.WithEndTime(sess.StartedAt.Add(*config.To)))
		filters = append(filters, slog.Duration("to", *config.To))
	}

	logger.Info("iterator configuration", filters...)

	iter, err := store.ReadTrace(ctx, sess.ID, opts...)
	if err != nil {
		return err
	}
	defer iter.Close()

	data := NewTraceData()
	for iter.Next(ctx) {
		data.Update(iter.Current())
	}
	if err = iter.Error(); err != nil {
		return err
	}
	if len(data.Points) == 0 {
		return ErrNoTrace
	}

	beats, err := store.Beats(ctx, sess.ID)
	if err != nil {
		return fmt.Errorf("loading beats: %w", err)
	}
	data.AddBeats(beats)

	logger.Info("finished reading trace",
		slog.Group("stats",
			slog.String("points", humanize.Comma(int64(len(data.Points)))),
			slog.String("beats", humanize.Comma(int64(len(data.Beats)))),
			slog.String("start", data.TimestampStart.In(config.TimeZone).Format(time.DateTime)),
			slog.Duration("duration", data.Duration()),
		))

	renderer, err := NewTraceRenderer(RenderConfig{
		Width:         config.Width,
		Height:        config.Height,
		Location:      config.TimeZone,
		NoRaw:         config.NoRaw,
		NoAnnotations: config.NoAnnotations,
	})
	if err != nil {
		return fmt.Errorf("creating trace renderer: %w", err)
	}

	logger.Info("rendering trace",
		slog.Group("image",
			slog.String("destination", config.OutputFile),
			slog.String("format", string(config.Format)),
			slog.Int("width", config.Width),
			slog.Int("height", config.Height),
		))

	img, err := renderer.Render(data, sess)
	if err != nil {
		return fmt.Errorf("rendering trace: %w", err)
	}

	out, err := os.Create(config.OutputFile)
	if err != nil {
		return err
	}
	if err = encode(out, img, config.Format); err != nil {
		_ = out.Close()
		return fmt.Errorf("encoding %s: %w", config.Format, err)
	}
	return out.Close()
}

func encode(w io.Writer, img image.Image, format ImageFormat) error {
	switch format {
	case ImageJPEG:
		return jpeg.Encode(w, img, &jpeg.Options{Quality: 98})
	default:
		return png.Encode(w, img)
	}
}
