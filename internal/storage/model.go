package storage

import (
	"database/sql"
	"time"

	"github.com/roman-kulish/lidar-avoidance/internal/lidar"
)

// Session is a recording session: one run of the monitor against one source
type Session struct {
	ID         int64
	StartTime  time.Time
	SourceType string
	SourceID   string
	Config     *string
}

// RecordedSweep is a sweep together with the decision taken on it
type RecordedSweep struct {
	ID int64
	lidar.Sweep

	NearestDistance float64 // math.Inf(1) when the sweep had no valid batch
	IsClear         bool
	Action          string
}

// RecordedCommand is a controller command issued during a session
type RecordedCommand struct {
	Timestamp time.Time
	Command   string
	Error     *string // nil when the command succeeded
}

type sweepData struct {
	SessionID       int64
	Timestamp       time.Time
	NearestDistance sql.NullFloat64
	IsClear         bool
	Action          string
}

type commandData struct {
	SessionID int64
	Timestamp time.Time
	Command   string
	Error     sql.NullString
}
