// Package replay implements a sweep source which plays back sweeps recorded
// by the storage package, so the monitor can run without a sensor attached.
package replay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/roman-kulish/lidar-avoidance/internal/lidar"
	"github.com/roman-kulish/lidar-avoidance/internal/storage"
)

const Device = "replay"

var ErrNotScanning = errors.New("not scanning")

// OpenFunc opens a reader positioned before the first recorded sweep
type OpenFunc func(ctx context.Context) (storage.SweepReader, error)

// FromStore returns an OpenFunc reading one session of a store
func FromStore(store *storage.SqliteStore, sessionID int64, opts ...storage.ReaderOption) OpenFunc {
	return func(ctx context.Context) (storage.SweepReader, error) {
		return store.ReadSweeps(ctx, sessionID, opts...)
	}
}

// WithLogger sets the logger for the source
func WithLogger(logger *slog.Logger) func(s *Source) {
	return func(s *Source) {
		s.logger = logger.With(slog.String("device", Device))
	}
}

// WithClock sets the clock used for pacing and sweep timestamps
func WithClock(clk clock.Clock) func(s *Source) {
	return func(s *Source) {
		s.clock = clk
	}
}

// WithPacing makes AcquireSweep wait for the recorded interval between
// consecutive sweeps instead of returning them as fast as possible.
func WithPacing(pace bool) func(s *Source) {
	return func(s *Source) {
		s.pace = pace
	}
}

// WithLoop restarts the recording from the beginning once it is exhausted
func WithLoop(loop bool) func(s *Source) {
	return func(s *Source) {
		s.loop = loop
	}
}

// Source plays back recorded sweeps. It is not safe for concurrent use.
type Source struct {
	open   OpenFunc
	reader storage.SweepReader

	pace bool
	loop bool

	spinning bool
	scanning bool

	lastRecorded time.Time // recorded timestamp of the previous sweep
	lastEmitted  time.Time // clock time the previous sweep was returned
	played       int

	clock  clock.Clock
	logger *slog.Logger
}

var _ lidar.Source = (*Source)(nil)

// New creates a replay source. The recording is opened by StartScan.
func New(open OpenFunc, options ...func(s *Source)) *Source {
	s := Source{
		open:   open,
		clock:  clock.New(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&s)
	}

	return &s
}

func (s *Source) StartSpin() error {
	s.spinning = true
	return nil
}

func (s *Source) StopSpin() error {
	s.spinning = false
	return nil
}

// StartScan opens the recording. A scan started after StopScan plays the
// recording from the beginning.
func (s *Source) StartScan() error {
	if s.scanning {
		return nil
	}
	if err := s.reopen(context.Background()); err != nil {
		return err
	}
	s.scanning = true
	return nil
}

func (s *Source) StopScan() error {
	s.scanning = false
	return s.closeReader()
}

// AcquireSweep returns the next recorded sweep, stamped with the current
// time. It returns io.EOF once the recording is exhausted and looping is off.
func (s *Source) AcquireSweep(ctx context.Context) (lidar.Sweep, error) {
	if !s.scanning || s.reader == nil {
		return lidar.Sweep{}, lidar.NewAcquireError(ErrNotScanning)
	}

	rec, err := s.next(ctx)
	if err != nil {
		return lidar.Sweep{}, err
	}

	if err = s.wait(ctx, rec.Timestamp); err != nil {
		return lidar.Sweep{}, lidar.NewAcquireError(err)
	}

	s.played++
	s.lastRecorded = rec.Timestamp
	s.lastEmitted = s.clock.Now()

	return lidar.Sweep{
		Timestamp: s.lastEmitted,
		Samples:   rec.Samples,
	}, nil
}

// Played returns the number of sweeps returned so far
func (s *Source) Played() int {
	return s.played
}

func (s *Source) Dispose() error {
	s.scanning = false
	s.spinning = false
	return s.closeReader()
}

func (s *Source) next(ctx context.Context) (*storage.RecordedSweep, error) {
	if s.reader.Next(ctx) {
		return s.reader.Current(), nil
	}
	if err := s.reader.Error(); err != nil {
		return nil, lidar.NewAcquireError(fmt.Errorf("reading recording: %w", err))
	}
	if !s.loop {
		return nil, io.EOF
	}

	s.logger.Debug("recording exhausted, starting over", slog.Int("played", s.played))

	if err := s.reopen(ctx); err != nil {
		return nil, lidar.NewAcquireError(err)
	}
	if s.reader.Next(ctx) {
		return s.reader.Current(), nil
	}
	if err := s.reader.Error(); err != nil {
		return nil, lidar.NewAcquireError(fmt.Errorf("reading recording: %w", err))
	}
	return nil, io.EOF // an empty recording would loop forever
}

// wait sleeps for the recorded gap between the previous sweep and this one,
// minus the time already spent since the previous sweep was returned.
func (s *Source) wait(ctx context.Context, recorded time.Time) error {
	if !s.pace || s.lastRecorded.IsZero() {
		return nil
	}

	gap := recorded.Sub(s.lastRecorded)
	remaining := gap - s.clock.Since(s.lastEmitted)
	if remaining <= 0 {
		return nil
	}

	timer := s.clock.Timer(remaining)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (s *Source) reopen(ctx context.Context) error {
	if err := s.closeReader(); err != nil {
		return err
	}

	reader, err := s.open(ctx)
	if err != nil {
		return fmt.Errorf("opening recording: %w", err)
	}

	s.reader = reader
	s.lastRecorded = time.Time{}

	if sess := reader.Session(); sess != nil {
		s.logger.Info("recording opened",
			slog.Int64("session", sess.ID),
			slog.String("sourceType", sess.SourceType),
			slog.String("sourceID", sess.SourceID))
	}
	return nil
}

func (s *Source) closeReader() error {
	if s.reader == nil {
		return nil
	}
	err := s.reader.Close()
	s.reader = nil
	if err != nil {
		return fmt.Errorf("closing recording: %w", err)
	}
	return nil
}
