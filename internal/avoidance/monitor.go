// Package avoidance implements the obstacle monitor: it reduces LiDAR sweeps
// to a clear/blocked decision and drives the vehicle controller through a
// hysteresis latch so that each transition issues its commands exactly once.
package avoidance

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/multierr"

	"github.com/roman-kulish/lidar-avoidance/internal/flight"
	"github.com/roman-kulish/lidar-avoidance/internal/lidar"
)

var (
	// ErrTooManyAcquireFailures is returned when consecutive failed sweeps exceed the configured limit
	ErrTooManyAcquireFailures = errors.New("too many consecutive acquire failures")
)

// Recorder receives every evaluated sweep and every issued command
type Recorder interface {
	RecordSweep(ctx context.Context, sweep lidar.Sweep, obs Observation, action Action) error
	RecordCommand(ctx context.Context, command string, err error) error
}

// WithLogger sets the logger for the monitor
func WithLogger(logger *slog.Logger) func(m *Monitor) {
	return func(m *Monitor) {
		m.logger = logger.With(slog.String("component", "monitor"))
	}
}

// WithClock sets the clock used for the pause between cycles
func WithClock(clk clock.Clock) func(m *Monitor) {
	return func(m *Monitor) {
		m.clock = clk
	}
}

// WithRecorder sets the recorder for sweeps and commands
func WithRecorder(r Recorder) func(m *Monitor) {
	return func(m *Monitor) {
		m.recorder = r
	}
}

// WithAsserted sets the initial state of the latch, for a monitor starting
// while control is already held.
func WithAsserted(asserted bool) func(m *Monitor) {
	return func(m *Monitor) {
		m.asserted = asserted
	}
}

// Monitor runs the acquire, evaluate, act, sleep cycle. The latch is owned by
// the goroutine calling Run.
type Monitor struct {
	source     lidar.Source
	controller flight.Controller
	config     Config

	asserted bool
	last     Observation
	observed bool
	failures int

	clock    clock.Clock
	recorder Recorder
	logger   *slog.Logger
}

// NewMonitor creates a new Monitor with a discard logger
func NewMonitor(source lidar.Source, controller flight.Controller, config Config, options ...func(m *Monitor)) (*Monitor, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid avoidance configuration: %w", err)
	}

	m := Monitor{
		source:     source,
		controller: controller,
		config:     config,
		clock:      clock.New(),
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&m)
	}

	return &m, nil
}

// Asserted reports whether the monitor holds control authority
func (m *Monitor) Asserted() bool {
	return m.asserted
}

// LastObservation returns the observation of the last successful sweep
func (m *Monitor) LastObservation() (Observation, bool) {
	return m.last, m.observed
}

// Run starts the sensor and loops until ctx is done, the source is
// exhausted or a fatal error occurs. The sensor is stopped and held control
// is released on every exit path.
func (m *Monitor) Run(ctx context.Context) (err error) {
	defer func() {
		err = multierr.Append(err, m.teardown(context.WithoutCancel(ctx)))
	}()

	if err = m.source.StartSpin(); err != nil {
		return fmt.Errorf("starting motor: %w", err)
	}
	if err = m.source.StartScan(); err != nil {
		return fmt.Errorf("starting scan: %w", err)
	}

	m.logger.Info("monitoring started",
		slog.Int("batchSize", m.config.BatchSize),
		slog.Float64("qualityThreshold", m.config.QualityThreshold),
		slog.Float64("blockingDistance", m.config.BlockingDistance))

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("monitoring cancelled")
			return nil
		default:
		}

		done, err := m.cycle(ctx)
		if err != nil {
			return err
		}
		if done {
			m.logger.Info("source exhausted")
			return nil
		}

		if err = m.sleep(ctx, m.config.Interval); err != nil {
			return nil // cancelled while sleeping
		}
	}
}

// cycle runs one acquire, evaluate, act pass. A failed acquire keeps the
// previous observation and latch.
func (m *Monitor) cycle(ctx context.Context) (done bool, err error) {
	sweep, err := m.source.AcquireSweep(ctx)
	if err != nil {
		switch {
		case errors.Is(err, io.EOF):
			return true, nil
		case ctx.Err() != nil:
			return false, nil // the loop exits at the top of the next cycle
		}

		m.failures++
		m.logger.Warn(fmt.Sprintf("no sweep this cycle: %s", err.Error()), slog.Int("failures", m.failures))

		if m.config.MaxAcquireFailures > 0 && m.failures > m.config.MaxAcquireFailures {
			return false, fmt.Errorf("%w: %w", ErrTooManyAcquireFailures, err)
		}
		return false, nil
	}
	m.failures = 0

	obs := m.config.EvaluateSweep(sweep.Samples)
	action, asserted := Step(obs, m.asserted)

	m.logger.Debug("sweep evaluated",
		slog.Int("samples", len(sweep.Samples)),
		slog.Bool("clear", obs.IsClear),
		slog.Float64("nearest", obs.NearestDistance),
		slog.String("action", action.String()))

	m.apply(ctx, action, obs)

	m.asserted = asserted
	m.last = obs
	m.observed = true

	if m.recorder != nil {
		if err := m.recorder.RecordSweep(ctx, sweep, obs, action); err != nil {
			m.logger.Error(fmt.Sprintf("recording sweep: %s", err.Error()))
		}
	}

	return false, nil
}

// apply issues the commands of an action. Failures are logged only, the
// caller updates the latch regardless.
func (m *Monitor) apply(ctx context.Context, action Action, obs Observation) {
	switch action {
	case ActionHalt:
		m.logger.Warn("approaching obstacle, stopping", slog.Float64("nearest", obs.NearestDistance))
		_ = m.command(ctx, flight.CommandTakeControl, m.controller.TakeControl)
		_ = m.command(ctx, flight.CommandStop, m.controller.Stop)

	case ActionRelease:
		m.logger.Info("clear of all obstacles", slog.Float64("nearest", obs.NearestDistance))
		_ = m.command(ctx, flight.CommandReleaseControl, m.controller.ReleaseControl)
	}
}

// command runs fn up to CommandAttempts times and records the outcome
func (m *Monitor) command(ctx context.Context, name string, fn func(context.Context) error) error {
	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(m.config.CommandRetryDelay), uint64(m.config.CommandAttempts-1)),
		ctx,
	)

	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		return fn(ctx)
	}, b, func(err error, next time.Duration) {
		m.logger.Warn(fmt.Sprintf("%s failed, retrying: %s", name, err.Error()),
			slog.Int("attempt", attempt), slog.Duration("backoff", next))
	})

	if err != nil {
		m.logger.Error(fmt.Sprintf("%s failed: %s", name, err.Error()), slog.Int("attempts", attempt))
	}

	if m.recorder != nil {
		if rErr := m.recorder.RecordCommand(ctx, name, err); rErr != nil {
			m.logger.Error(fmt.Sprintf("recording command: %s", rErr.Error()))
		}
	}

	return err
}

// teardown stops the sensor and releases held control
func (m *Monitor) teardown(ctx context.Context) error {
	var err error

	if sErr := m.source.StopScan(); sErr != nil {
		err = multierr.Append(err, fmt.Errorf("stopping scan: %w", sErr))
	}
	if sErr := m.source.StopSpin(); sErr != nil {
		err = multierr.Append(err, fmt.Errorf("stopping motor: %w", sErr))
	}

	if m.asserted {
		if cErr := m.command(ctx, flight.CommandReleaseControl, m.controller.ReleaseControl); cErr != nil {
			err = multierr.Append(err, cErr)
		}
		m.asserted = false
	}

	m.logger.Info("monitoring stopped")
	return err
}

func (m *Monitor) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := m.clock.Timer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
