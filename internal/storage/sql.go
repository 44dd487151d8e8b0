package storage

import (
	_ "embed"
)

const (
	insertSessionSQL = `
INSERT INTO sessions (uuid,
                      started_at,
                      state,
                      device,
                      config)
VALUES (?, ?, ?, ?, ?)`

	completeSessionSQL = `
UPDATE sessions
SET completed_at        = ?,
    state               = ?,
    bpm                 = ?,
    rmssd               = ?,
    stress_index        = ?,
    raw_intervals       = ?,
    plausible_intervals = ?,
    corrected_intervals = ?
WHERE id = ?`

	sessionColumns = `
    id,
    uuid,
    started_at,
    completed_at,
    state,
    device,
    config,
    bpm,
    rmssd,
    stress_index,
    raw_intervals,
    plausible_intervals,
    corrected_intervals`

	selectSessionSQL = `
SELECT ` + sessionColumns + `
FROM sessions
WHERE
    id = ?`

	selectSessionsSQL = `
SELECT ` + sessionColumns + `
FROM sessions
ORDER BY started_at, id`

	insertBeatSQL = `
INSERT INTO beats (session_id,
                   timestamp_ms,
                   interval_ms)
VALUES `

	selectBeatsSQL = `
SELECT
    timestamp_ms,
    interval_ms
FROM beats
WHERE
    session_id = ?
ORDER BY timestamp_ms`

	insertTraceSQL = `
INSERT INTO trace (session_id,
                   timestamp_us,
                   intensity,
                   smoothed)
VALUES `

	selectTraceSQL = `
SELECT
    timestamp_us,
    intensity,
    smoothed
FROM trace
WHERE
    session_id = ?
    AND timestamp_us BETWEEN ? AND ?
ORDER BY timestamp_us`
)

//go:embed schema.sql
var initSchemaSQL string

//go:embed indexes.sql
var initIndexesSQL string
