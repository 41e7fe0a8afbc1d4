// Package storage records monitor sessions, the sweeps evaluated during them
// and the controller commands they caused, and reads them back for replay
// and inspection.
package storage

import (
	"context"
	"time"
)

// Store provides an interface for the flight recorder. All operations that
// write to the database should be considered atomic.
type Store interface {
	// CreateSession starts a new recording session and returns its identifier.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - sourceType: Type of the sweep source (e.g., "rplidar", "replay")
	//   - sourceID: Identifier of the source (e.g., serial port name)
	//   - config: Optional configuration. Can be string, []byte, or JSON-serializable object
	CreateSession(ctx context.Context, sourceType, sourceID string, config any) (sessionID int64, err error)

	// Session retrieves a session by its ID.
	Session(ctx context.Context, id int64) (session *Session, err error)

	// Sessions returns all sessions ordered by start time.
	Sessions(ctx context.Context) (sessions []*Session, err error)

	// StoreSweep saves a sweep and its samples in a single transaction.
	StoreSweep(ctx context.Context, sessionID int64, sweep *RecordedSweep) (sweepID int64, err error)

	// StoreCommand saves a controller command and its outcome; cmdErr is nil
	// when the command succeeded.
	StoreCommand(ctx context.Context, sessionID int64, ts time.Time, command string, cmdErr error) error

	// Commands returns the commands of a session in the order they were issued.
	Commands(ctx context.Context, sessionID int64) (commands []*RecordedCommand, err error)

	// Close releases all database connections. It is safe to call Close
	// multiple times.
	Close() error
}
