package storage

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/lidar-avoidance/internal/avoidance"
	"github.com/roman-kulish/lidar-avoidance/internal/lidar"
)

func newTestStore(t *testing.T) *SqliteStore {
	t.Helper()

	s := NewSqliteStore(filepath.Join(t.TempDir(), "flight.db"))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testSamples(n int, distance float64) []lidar.Sample {
	samples := make([]lidar.Sample, n)
	for i := range samples {
		samples[i] = lidar.Sample{
			Angle:    float64(i) * 360 / float64(n),
			Distance: distance + float64(i),
			Quality:  float64(i % 64),
		}
	}
	return samples
}

func readAll(t *testing.T, r *SqliteSweepReader) []*RecordedSweep {
	t.Helper()

	var sweeps []*RecordedSweep
	for r.Next(context.Background()) {
		sweeps = append(sweeps, r.Current())
	}
	require.NoError(t, r.Error())
	require.NoError(t, r.Close())
	return sweeps
}

func TestSqliteStore_Sessions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.CreateSession(ctx, "rplidar", "/dev/ttyUSB0", map[string]any{"batchSize": 8})
	require.NoError(t, err)
	second, err := s.CreateSession(ctx, "replay", "old.db", nil)
	require.NoError(t, err)

	sess, err := s.Session(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, "rplidar", sess.SourceType)
	assert.Equal(t, "/dev/ttyUSB0", sess.SourceID)
	require.NotNil(t, sess.Config)
	assert.JSONEq(t, `{"batchSize": 8}`, *sess.Config)
	assert.WithinDuration(t, time.Now(), sess.StartTime, time.Minute)

	sessions, err := s.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, first, sessions[0].ID)
	assert.Equal(t, second, sessions[1].ID)
	assert.Nil(t, sessions[1].Config)

	_, err = s.Session(ctx, 42)
	assert.Error(t, err)
}

func TestSqliteStore_SweepRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sessionID, err := s.CreateSession(ctx, "rplidar", "/dev/ttyUSB0", "raw config")
	require.NoError(t, err)

	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	want := []*RecordedSweep{
		{
			Sweep:           lidar.Sweep{Timestamp: start, Samples: testSamples(360, 500)}, // more than one insert batch
			NearestDistance: 512.5,
			IsClear:         false,
			Action:          "halt",
		},
		{
			Sweep:           lidar.Sweep{Timestamp: start.Add(150 * time.Millisecond)},
			NearestDistance: math.Inf(1),
			IsClear:         true,
			Action:          "none",
		},
		{
			Sweep:           lidar.Sweep{Timestamp: start.Add(300 * time.Millisecond), Samples: testSamples(7, 2000)},
			NearestDistance: 2003,
			IsClear:         true,
			Action:          "release",
		},
	}

	for _, sweep := range want {
		sweep.ID, err = s.StoreSweep(ctx, sessionID, sweep)
		require.NoError(t, err)
	}

	r, err := s.ReadSweeps(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, sessionID, r.Session().ID)

	got := readAll(t, r)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("sweeps mismatch (-want +got):\n%s", diff)
	}
}

func TestSqliteStore_ReadSweepsTimeRange(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sessionID, err := s.CreateSession(ctx, "replay", "test", nil)
	require.NoError(t, err)

	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	for i := range 5 {
		_, err = s.StoreSweep(ctx, sessionID, &RecordedSweep{
			Sweep:   lidar.Sweep{Timestamp: start.Add(time.Duration(i) * time.Second), Samples: testSamples(4, 1000)},
			IsClear: true,
			Action:  "none",
		})
		require.NoError(t, err)
	}

	r, err := s.ReadSweeps(ctx, sessionID, WithTimeRange(start.Add(time.Second), start.Add(3*time.Second)))
	require.NoError(t, err)
	got := readAll(t, r)
	require.Len(t, got, 3)
	assert.WithinDuration(t, start.Add(time.Second), got[0].Timestamp, 0)
	assert.WithinDuration(t, start.Add(3*time.Second), got[2].Timestamp, 0)

	r, err = s.ReadSweeps(ctx, sessionID, WithStartTime(start.Add(4*time.Second)))
	require.NoError(t, err)
	assert.Len(t, readAll(t, r), 1)

	r, err = s.ReadSweeps(ctx, sessionID, WithEndTime(start.Add(500*time.Millisecond)))
	require.NoError(t, err)
	assert.Len(t, readAll(t, r), 1)

	_, err = s.ReadSweeps(ctx, sessionID, WithTimeRange(start.Add(time.Second), start))
	assert.ErrorContains(t, err, "is after end time")
}

func TestSqliteStore_ReadSweepsEmptySession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sessionID, err := s.CreateSession(ctx, "replay", "test", nil)
	require.NoError(t, err)

	r, err := s.ReadSweeps(ctx, sessionID)
	require.NoError(t, err)
	assert.Empty(t, readAll(t, r))
}

func TestSqliteStore_ReadSweepsCancelled(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sessionID, err := s.CreateSession(ctx, "replay", "test", nil)
	require.NoError(t, err)
	_, err = s.StoreSweep(ctx, sessionID, &RecordedSweep{
		Sweep:  lidar.Sweep{Timestamp: time.Now(), Samples: testSamples(4, 1000)},
		Action: "none",
	})
	require.NoError(t, err)

	r, err := s.ReadSweeps(ctx, sessionID)
	require.NoError(t, err)
	defer r.Close()

	cancelled, cancel := context.WithCancel(ctx)
	cancel()

	assert.False(t, r.Next(cancelled))
	assert.ErrorIs(t, r.Error(), context.Canceled)
}

func TestRecorder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sessionID, err := s.CreateSession(ctx, "rplidar", "/dev/ttyUSB0", nil)
	require.NoError(t, err)

	mock := clock.NewMock()
	mock.Set(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))

	rec := NewRecorder(s, sessionID, WithRecorderClock(mock))
	assert.Equal(t, sessionID, rec.SessionID())

	obs := avoidance.Observation{NearestDistance: 640, IsClear: false}
	require.NoError(t, rec.RecordSweep(ctx, lidar.Sweep{Samples: testSamples(16, 640)}, obs, avoidance.ActionHalt))
	require.NoError(t, rec.RecordCommand(ctx, "take control", nil))

	mock.Add(time.Second)
	require.NoError(t, rec.RecordCommand(ctx, "stop", errors.New("link down")))

	sweeps, commands, failed := rec.Stats()
	assert.Equal(t, int64(1), sweeps)
	assert.Equal(t, int64(2), commands)
	assert.Equal(t, int64(1), failed)

	r, err := s.ReadSweeps(ctx, sessionID)
	require.NoError(t, err)
	got := readAll(t, r)
	require.Len(t, got, 1)
	assert.WithinDuration(t, mock.Now().Add(-time.Second), got[0].Timestamp, 0)
	assert.Equal(t, "halt", got[0].Action)
	assert.Equal(t, 640.0, got[0].NearestDistance)
	assert.Len(t, got[0].Samples, 16)

	linkDown := "link down"
	want := []*RecordedCommand{
		{Timestamp: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), Command: "take control"},
		{Timestamp: time.Date(2024, 5, 1, 10, 0, 1, 0, time.UTC), Command: "stop", Error: &linkDown},
	}

	cmds, err := s.Commands(ctx, sessionID)
	require.NoError(t, err)
	if diff := cmp.Diff(want, cmds); diff != "" {
		t.Errorf("commands mismatch (-want +got):\n%s", diff)
	}
}

func TestSqliteStore_Close(t *testing.T) {
	s := NewSqliteStore(filepath.Join(t.TempDir(), "flight.db"))

	_, err := s.CreateSession(context.Background(), "replay", "test", nil)
	require.NoError(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}
