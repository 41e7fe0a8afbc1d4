package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
)

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

func rollbackWithError(rb interface{ Rollback() error }, err *error) {
	if rErr := rb.Rollback(); rErr != nil && !errors.Is(rErr, sql.ErrTxDone) && *err == nil {
		*err = rErr
	}
}

func toSweepData(sessionID int64, s *RecordedSweep) *sweepData {
	var nearest sql.NullFloat64
	if !math.IsInf(s.NearestDistance, 0) && !math.IsNaN(s.NearestDistance) {
		nearest.Float64 = s.NearestDistance
		nearest.Valid = true
	}

	return &sweepData{
		SessionID:       sessionID,
		Timestamp:       s.Timestamp.UTC(),
		NearestDistance: nearest,
		IsClear:         s.IsClear,
		Action:          s.Action,
	}
}

func toCommandData(sessionID int64, ts time.Time, command string, cmdErr error) *commandData {
	var e sql.NullString
	if cmdErr != nil {
		e.String = cmdErr.Error()
		e.Valid = true
	}

	return &commandData{
		SessionID: sessionID,
		Timestamp: ts.UTC(),
		Command:   command,
		Error:     e,
	}
}

func fromNullDistance(d sql.NullFloat64) float64 {
	if !d.Valid {
		return math.Inf(1)
	}
	return d.Float64
}

// sqliteDatetime scans aggregated timestamps. Sqlite drops the declared
// column type on MIN/MAX, so the driver hands them over as text.
type sqliteDatetime struct {
	Datetime time.Time
	Valid    bool
}

func (d *sqliteDatetime) Scan(value any) error {
	var s string

	switch v := value.(type) {
	case nil:
		d.Datetime, d.Valid = time.Time{}, false
		return nil
	case time.Time:
		d.Datetime, d.Valid = v, true
		return nil
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return fmt.Errorf("unsupported datetime value %T", value)
	}

	s = strings.TrimSuffix(s, "Z")
	for _, format := range sqlite3.SQLiteTimestampFormats {
		if t, err := time.ParseInLocation(format, s, time.UTC); err == nil {
			d.Datetime, d.Valid = t, true
			return nil
		}
	}
	return fmt.Errorf("parsing datetime %q", s)
}
