package storage

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/benbjohnson/clock"

	"github.com/roman-kulish/lidar-avoidance/internal/avoidance"
	"github.com/roman-kulish/lidar-avoidance/internal/lidar"
)

// WithRecorderClock sets the clock used to timestamp commands
func WithRecorderClock(clk clock.Clock) func(r *Recorder) {
	return func(r *Recorder) {
		r.clock = clk
	}
}

// Recorder writes the sweeps and commands of a monitor run into one session
type Recorder struct {
	store     Store
	sessionID int64
	clock     clock.Clock

	sweeps   atomic.Int64
	commands atomic.Int64
	failed   atomic.Int64
}

var _ avoidance.Recorder = (*Recorder)(nil)

// NewRecorder creates a recorder bound to an existing session
func NewRecorder(store Store, sessionID int64, options ...func(r *Recorder)) *Recorder {
	r := Recorder{
		store:     store,
		sessionID: sessionID,
		clock:     clock.New(),
	}

	for _, option := range options {
		option(&r)
	}

	return &r
}

func (r *Recorder) SessionID() int64 {
	return r.sessionID
}

func (r *Recorder) RecordSweep(ctx context.Context, sweep lidar.Sweep, obs avoidance.Observation, action avoidance.Action) error {
	if sweep.Timestamp.IsZero() {
		sweep.Timestamp = r.clock.Now()
	}

	rec := RecordedSweep{
		Sweep:           sweep,
		NearestDistance: obs.NearestDistance,
		IsClear:         obs.IsClear,
		Action:          action.String(),
	}

	if _, err := r.store.StoreSweep(ctx, r.sessionID, &rec); err != nil {
		return fmt.Errorf("storing sweep: %w", err)
	}
	r.sweeps.Add(1)
	return nil
}

func (r *Recorder) RecordCommand(ctx context.Context, command string, cmdErr error) error {
	if err := r.store.StoreCommand(ctx, r.sessionID, r.clock.Now(), command, cmdErr); err != nil {
		return fmt.Errorf("storing command: %w", err)
	}
	r.commands.Add(1)
	if cmdErr != nil {
		r.failed.Add(1)
	}
	return nil
}

// Stats returns the number of sweeps and commands recorded so far and how
// many of the commands had failed.
func (r *Recorder) Stats() (sweeps, commands, failed int64) {
	return r.sweeps.Load(), r.commands.Load(), r.failed.Load()
}
