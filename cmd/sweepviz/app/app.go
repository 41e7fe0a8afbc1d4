package app

import (
	"context"
	"fmt"
	"image/png"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/multierr"

	"github.com/roman-kulish/lidar-avoidance/internal/storage"
)

func Run(ctx context.Context, config *Config, w io.Writer, logger *slog.Logger) (err error) {
	if _, err := os.Stat(config.DBPath); err != nil && os.IsNotExist(err) {
		return fmt.Errorf("database file '%s' does not exist: %w", config.DBPath, err)
	}

	store := storage.NewSqliteStore(config.DBPath)
	defer func() {
		err = multierr.Append(err, store.Close())
	}()

	if config.List {
		return listSessions(ctx, store, w)
	}

	view, err := readSweep(ctx, store, config, logger)
	if err != nil {
		return err
	}

	if config.Bars {
		if err = WriteBars(w, config.Avoidance, view.Sweep.Samples); err != nil {
			return fmt.Errorf("writing bars: %w", err)
		}
	}

	if config.OutputFile != "" {
		if err = renderSweep(view, config.OutputFile, logger); err != nil {
			return err
		}
	}

	return nil
}

func listSessions(ctx context.Context, store *storage.SqliteStore, w io.Writer) error {
	sessions, err := store.Sessions(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tSTARTED\tSOURCE\tSOURCE ID")
	for _, s := range sessions {
		_, _ = fmt.Fprintf(tw, "%d\t%s (%s)\t%s\t%s\n",
			s.ID,
			s.StartTime.Local().Format(time.DateTime),
			humanize.Time(s.StartTime),
			s.SourceType,
			s.SourceID)
	}
	return tw.Flush()
}

// readSweep finds the requested sweep in the session and evaluates it with
// the configured avoidance parameters.
func readSweep(ctx context.Context, store *storage.SqliteStore, config *Config, logger *slog.Logger) (*SweepView, error) {
	iter, err := store.ReadSweeps(ctx, config.SessionID)
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var (
		count  int
		window []*storage.RecordedSweep
		found  *storage.RecordedSweep
	)
	for iter.Next(ctx) {
		current := iter.Current()

		if config.SweepIndex >= 0 {
			if count == config.SweepIndex {
				found = current
				count++
				break
			}
		} else {
			window = append(window, current)
			if len(window) > -config.SweepIndex {
				window = window[1:]
			}
		}
		count++
	}
	if err = iter.Error(); err != nil {
		return nil, err
	}

	index := config.SweepIndex
	if index < 0 && len(window) == -index {
		found = window[0]
		index += count
	}
	if found == nil {
		return nil, fmt.Errorf("sweep %d not found in session %d: %d sweeps recorded", config.SweepIndex, config.SessionID, count)
	}

	obs := config.Avoidance.EvaluateSweep(found.Samples)

	logger.Info("sweep loaded",
		slog.Int64("session", config.SessionID),
		slog.Int("index", index),
		slog.String("timestamp", found.Timestamp.Local().Format(time.DateTime+".000")),
		slog.Int("samples", len(found.Samples)),
		slog.String("recordedAction", found.Action),
		slog.Bool("clear", obs.IsClear))

	return &SweepView{
		SessionID:   config.SessionID,
		Index:       index,
		Sweep:       found.Sweep,
		Observation: obs,
		Config:      config.Avoidance,
		Size:        config.ImageSize,
		MaxDistance: config.MaxDistance,
	}, nil
}

func renderSweep(view *SweepView, path string, logger *slog.Logger) (err error) {
	renderer, err := NewRenderer(true)
	if err != nil {
		return fmt.Errorf("creating sweep renderer: %w", err)
	}

	img, err := renderer.Render(view)
	if err != nil {
		return fmt.Errorf("rendering sweep: %w", err)
	}

	logger.Info("writing image",
		slog.String("destination", path),
		slog.Int("size", view.Size))

	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, out.Close())
	}()

	return png.Encode(out, img)
}
