package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roman-kulish/lidar-avoidance/internal/lidar"
)

// SweepReader provides an iterator-based interface for reading recorded
// sweeps with optional time filtering.
type SweepReader interface {
	// Session returns metadata about the session this reader is accessing.
	Session() *Session

	// Next advances the iterator and returns true if there is another sweep
	// to read, false when the iteration is complete or if an error occurred.
	Next(context.Context) bool

	// Current returns the current sweep in the iteration.
	// If called after Next() returns false, the behavior is undefined.
	Current() *RecordedSweep

	// Error returns any error that occurred during iteration.
	Error() error

	// Close releases any resources associated with the reader.
	Close() error
}

// ReaderOption configures a SweepReader with specific filtering criteria.
type ReaderOption func(*SqliteSweepReader)

// WithStartTime excludes sweeps recorded before t
func WithStartTime(t time.Time) ReaderOption {
	return func(r *SqliteSweepReader) {
		r.startTime = &t
	}
}

// WithEndTime excludes sweeps recorded after t
func WithEndTime(t time.Time) ReaderOption {
	return func(r *SqliteSweepReader) {
		r.endTime = &t
	}
}

// WithTimeRange sets both start and end time filters.
func WithTimeRange(startTime, endTime time.Time) ReaderOption {
	return func(r *SqliteSweepReader) {
		r.startTime = &startTime
		r.endTime = &endTime
	}
}

// SqliteSweepReader implements SweepReader for the Sqlite database backend.
type SqliteSweepReader struct {
	db *sql.DB

	sessionID int64
	session   *Session

	startTime *time.Time // Optional start of time range filter
	endTime   *time.Time // Optional end of time range filter

	current *RecordedSweep
	next    *RecordedSweep // sweep whose first row was read ahead
	rows    *sql.Rows
	err     error
}

var _ SweepReader = (*SqliteSweepReader)(nil)

func newSqliteSweepReader(ctx context.Context, db *sql.DB, sessionID int64, opts ...ReaderOption) (*SqliteSweepReader, error) {
	sr := &SqliteSweepReader{
		db:        db,
		sessionID: sessionID,
	}
	for _, opt := range opts {
		opt(sr)
	}
	if err := sr.init(ctx); err != nil {
		return nil, fmt.Errorf("initializing reader: %w", err)
	}
	return sr, nil
}

func (sr *SqliteSweepReader) init(ctx context.Context) error {
	if sr.db == nil {
		return errors.New("database connection required")
	}
	if sr.sessionID <= 0 {
		return errors.New("session ID required")
	}

	steps := []struct {
		msg string
		fn  func(context.Context) error
	}{
		{msg: "loading session", fn: sr.loadSession},
		{msg: "initializing filters", fn: sr.initFilters},
		{msg: "initializing query", fn: sr.initQuery},
	}
	for _, s := range steps {
		if err := s.fn(ctx); err != nil {
			return fmt.Errorf("%s: %w", s.msg, err)
		}
	}
	return nil
}

func (sr *SqliteSweepReader) loadSession(ctx context.Context) (err error) {
	stmt, err := sr.db.PrepareContext(ctx, selectSessionSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	if sr.session, err = scanSession(stmt.QueryRowContext(ctx, sr.sessionID)); err != nil {
		return fmt.Errorf("querying session: %w", err)
	}
	return
}

func (sr *SqliteSweepReader) initFilters(ctx context.Context) (err error) {
	if sr.startTime != nil && sr.endTime != nil {
		if sr.startTime.After(*sr.endTime) {
			return fmt.Errorf("start time %s is after end time %s", sr.startTime, sr.endTime)
		}
		return nil
	}

	stmt, err := sr.db.PrepareContext(ctx, selectSweepBoundsSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	var startTime, endTime sqliteDatetime
	if err = stmt.QueryRowContext(ctx, sr.sessionID).Scan(&startTime, &endTime); err != nil {
		return fmt.Errorf("scanning filters data: %w", err)
	}

	// an empty session leaves both bounds unset and the query matches nothing
	if sr.startTime == nil && startTime.Valid {
		sr.startTime = &startTime.Datetime
	}
	if sr.endTime == nil && endTime.Valid {
		sr.endTime = &endTime.Datetime
	}

	return nil
}

func (sr *SqliteSweepReader) initQuery(ctx context.Context) (err error) {
	stmt, err := sr.db.PrepareContext(ctx, selectSweepsSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	var startTime, endTime any
	if sr.startTime != nil {
		startTime = sr.startTime.UTC()
	}
	if sr.endTime != nil {
		endTime = sr.endTime.UTC()
	}

	if sr.rows, err = stmt.QueryContext(ctx, sr.sessionID, startTime, endTime); err != nil {
		return err
	}
	return nil
}

// scanRow reads one joined sweep/sample row. The sample is nil for a sweep
// recorded without samples.
func (sr *SqliteSweepReader) scanRow() (*RecordedSweep, *lidar.Sample, error) {
	var sweep RecordedSweep
	var nearest sql.NullFloat64
	var angle, distance, quality sql.NullFloat64

	err := sr.rows.Scan(
		&sweep.ID,
		&sweep.Timestamp,
		&nearest,
		&sweep.IsClear,
		&sweep.Action,
		&angle,
		&distance,
		&quality,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("scanning sweep: %w", err)
	}
	sweep.NearestDistance = fromNullDistance(nearest)

	if !angle.Valid {
		return &sweep, nil, nil
	}
	return &sweep, &lidar.Sample{
		Angle:    angle.Float64,
		Distance: distance.Float64,
		Quality:  quality.Float64,
	}, nil
}

func (sr *SqliteSweepReader) Session() *Session {
	return sr.session
}

func (sr *SqliteSweepReader) Next(ctx context.Context) bool {
	if sr.err != nil || sr.rows == nil {
		return false
	}

	sr.current, sr.next = sr.next, nil

	for {
		select {
		case <-ctx.Done():
			sr.err = ctx.Err()
			return false
		default:
		}

		if !sr.rows.Next() {
			return sr.current != nil
		}

		sweep, sample, err := sr.scanRow()
		if err != nil {
			sr.err = err
			return false
		}

		if sr.current != nil && sweep.ID != sr.current.ID {
			// first row of the following sweep
			if sample != nil {
				sweep.Samples = append(sweep.Samples, *sample)
			}
			sr.next = sweep
			return true
		}

		if sr.current == nil {
			sr.current = sweep
		}
		if sample != nil {
			sr.current.Samples = append(sr.current.Samples, *sample)
		}
	}
}

func (sr *SqliteSweepReader) Current() *RecordedSweep {
	return sr.current
}

func (sr *SqliteSweepReader) Error() error {
	if sr.err != nil {
		return sr.err
	}
	if sr.rows != nil {
		return sr.rows.Err()
	}
	return nil
}

func (sr *SqliteSweepReader) Close() error {
	if sr.rows != nil {
		err := sr.rows.Close()
		sr.current = nil
		sr.next = nil
		sr.rows = nil
		return err
	}
	return nil
}
