package storage

import (
	_ "embed"
)

const (
	insertSessionSQL = `
INSERT INTO sessions (
                      start_time,
                      source_type,
                      source_id,
                      config)
VALUES (?, ?, ?, ?)`

	selectSessionSQL = `
SELECT
    id,
    start_time,
    source_type,
    source_id,
    config
FROM sessions
WHERE
    id = ?`

	selectSessionsSQL = `
SELECT
    id,
    start_time,
    source_type,
    source_id,
    config
FROM sessions
ORDER BY start_time, id`

	insertSweepSQL = `
INSERT INTO sweeps (session_id,
                    timestamp,
                    nearest_distance,
                    is_clear,
                    action)
VALUES (?, ?, ?, ?, ?)`

	insertSamplesSQL = `
INSERT INTO samples (sweep_id,
                     seq,
                     angle,
                     distance,
                     quality)
VALUES `

	insertCommandSQL = `
INSERT INTO commands (session_id,
                      timestamp,
                      command,
                      error)
VALUES (?, ?, ?, ?)`

	selectCommandsSQL = `
SELECT
    timestamp,
    command,
    error
FROM commands
WHERE
    session_id = ?
ORDER BY id`

	selectSweepBoundsSQL = `
SELECT
    MIN(timestamp),
    MAX(timestamp)
FROM sweeps
WHERE
    session_id = ?`

	selectSweepsSQL = `
SELECT
    sw.id,
    sw.timestamp,
    sw.nearest_distance,
    sw.is_clear,
    sw.action,
    sa.angle,
    sa.distance,
    sa.quality
FROM sweeps sw
    LEFT JOIN samples sa ON sa.sweep_id = sw.id
WHERE
    sw.session_id = ?
    AND sw.timestamp BETWEEN ? AND ?
ORDER BY sw.id, sa.seq`
)

var (
	//go:embed schema.sql
	initSchemaSQL string

	//go:embed indexes.sql
	initIndexesSQL string
)
