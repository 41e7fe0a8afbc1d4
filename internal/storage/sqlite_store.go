package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"
)

// maxBatchSize is the number of sample rows inserted per statement, it keeps
// the number of bound variables well under the sqlite limit.
const maxBatchSize = 150

// SqliteStore handles database operations
type SqliteStore struct {
	dbPath string

	writeDB     *sql.DB
	writeDBOnce sync.Once
	writeDBErr  error

	readDB     *sql.DB
	readDBOnce sync.Once
	readDBErr  error

	closeOnce sync.Once
	closeErr  error
}

var _ Store = (*SqliteStore)(nil)

// NewSqliteStore creates a new store backed by the Sqlite database at
// dbPath. Connections are opened on first use.
func NewSqliteStore(dbPath string) *SqliteStore {
	return &SqliteStore{dbPath: dbPath}
}

func runSQLCommand(db *sql.DB, sql string) error {
	_, err := db.Exec(sql)
	return err
}

func (s *SqliteStore) getWriteDB() (*sql.DB, error) {
	s.writeDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on"))
		if err != nil {
			s.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}
		db.SetMaxOpenConns(1)

		if err = runSQLCommand(db, initSchemaSQL); err != nil {
			_ = db.Close()
			s.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		s.writeDB = db
	})

	return s.writeDB, s.writeDBErr
}

func (s *SqliteStore) getReadDB() (*sql.DB, error) {
	s.readDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "mode=ro"))
		if err != nil {
			s.readDBErr = fmt.Errorf("opening read connection: %w", err)
			return
		}
		s.readDB = db
	})

	return s.readDB, s.readDBErr
}

func (s *SqliteStore) CreateSession(ctx context.Context, sourceType, sourceID string, config any) (sessionID int64, err error) {
	var configData sql.NullString

	if config != nil {
		switch c := config.(type) {
		case string:
			configData.Valid = true
			configData.String = c

		case []byte:
			configData.Valid = true
			configData.String = string(c)

		default:
			var p []byte
			if p, err = json.Marshal(config); err != nil {
				err = fmt.Errorf("marshaling config: %w", err)
				return
			}

			configData.Valid = true
			configData.String = string(p)
		}
	}

	db, err := s.getWriteDB()
	if err != nil {
		err = fmt.Errorf("getting write connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, insertSessionSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	result, err := stmt.ExecContext(ctx, time.Now().UTC(), sourceType, sourceID, configData)
	if err != nil {
		err = fmt.Errorf("inserting session: %w", err)
		return
	}

	sessionID, err = result.LastInsertId()
	if err != nil {
		err = fmt.Errorf("getting session ID: %w", err)
	}
	return
}

func scanSession(row interface{ Scan(...any) error }) (*Session, error) {
	var sess Session
	var config sql.NullString
	if err := row.Scan(&sess.ID, &sess.StartTime, &sess.SourceType, &sess.SourceID, &config); err != nil {
		return nil, err
	}
	if config.Valid {
		sess.Config = &config.String
	}
	return &sess, nil
}

func (s *SqliteStore) Session(ctx context.Context, id int64) (session *Session, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, selectSessionSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	if session, err = scanSession(stmt.QueryRowContext(ctx, id)); err != nil {
		err = fmt.Errorf("scanning session: %w", err)
	}
	return
}

func (s *SqliteStore) Sessions(ctx context.Context) (sessions []*Session, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectSessionsSQL)
	if err != nil {
		err = fmt.Errorf("querying sessions: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var sess *Session
		if sess, err = scanSession(rows); err != nil {
			err = fmt.Errorf("scanning session: %w", err)
			return
		}
		sessions = append(sessions, sess)
	}
	err = rows.Err()
	return
}

// StoreSweep saves the sweep row first, then its samples in acquisition
// order in multi-row inserts of at most maxBatchSize rows.
func (s *SqliteStore) StoreSweep(ctx context.Context, sessionID int64, sweep *RecordedSweep) (sweepID int64, err error) {
	db, err := s.getWriteDB()
	if err != nil {
		return 0, fmt.Errorf("getting write connection: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollbackWithError(tx, &err)

	data := toSweepData(sessionID, sweep)

	result, err := tx.ExecContext(ctx, insertSweepSQL,
		data.SessionID,
		data.Timestamp,
		data.NearestDistance,
		data.IsClear,
		data.Action,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting sweep: %w", err)
	}
	if sweepID, err = result.LastInsertId(); err != nil {
		return 0, fmt.Errorf("getting sweep ID: %w", err)
	}

	const valuesPlaceholder = "(?, ?, ?, ?, ?)"

	seq := 0
	for chunk := range slices.Chunk(sweep.Samples, maxBatchSize) {
		values := make([]any, 0, len(chunk)*5)

		var sb strings.Builder
		sb.WriteString(insertSamplesSQL)

		for i, sample := range chunk {
			values = append(values, sweepID, seq, sample.Angle, sample.Distance, sample.Quality)
			seq++

			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(valuesPlaceholder)
		}

		if _, err = tx.ExecContext(ctx, sb.String(), values...); err != nil {
			return 0, fmt.Errorf("batch inserting samples: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing transaction: %w", err)
	}

	return sweepID, nil
}

func (s *SqliteStore) StoreCommand(ctx context.Context, sessionID int64, ts time.Time, command string, cmdErr error) (err error) {
	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	stmt, err := db.PrepareContext(ctx, insertCommandSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	data := toCommandData(sessionID, ts, command, cmdErr)
	if _, err = stmt.ExecContext(ctx, data.SessionID, data.Timestamp, data.Command, data.Error); err != nil {
		return fmt.Errorf("inserting command: %w", err)
	}
	return nil
}

func (s *SqliteStore) Commands(ctx context.Context, sessionID int64) (commands []*RecordedCommand, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectCommandsSQL, sessionID)
	if err != nil {
		err = fmt.Errorf("querying commands: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var cmd RecordedCommand
		var cmdErr sql.NullString
		if err = rows.Scan(&cmd.Timestamp, &cmd.Command, &cmdErr); err != nil {
			err = fmt.Errorf("scanning command: %w", err)
			return
		}
		if cmdErr.Valid {
			cmd.Error = &cmdErr.String
		}
		commands = append(commands, &cmd)
	}
	err = rows.Err()
	return
}

// ReadSweeps creates a SweepReader over the sweeps of a session in the order
// they were recorded. Without a time range the whole session is read.
//
// The returned reader must be closed after use to release database resources.
// Each reader instance should only be used from a single goroutine.
func (s *SqliteStore) ReadSweeps(ctx context.Context, sessionID int64, opts ...ReaderOption) (*SqliteSweepReader, error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}
	return newSqliteSweepReader(ctx, db, sessionID, opts...)
}

func (s *SqliteStore) Close() error {
	s.closeOnce.Do(func() {
		if s.writeDB != nil {
			_ = runSQLCommand(s.writeDB, initIndexesSQL)

			s.closeErr = multierr.Append(s.closeErr, s.writeDB.Close())
			s.writeDB = nil
		}

		if s.readDB != nil {
			s.closeErr = multierr.Append(s.closeErr, s.readDB.Close())
			s.readDB = nil
		}
	})

	return s.closeErr
}
