// Copyright 2026 The Brewshed Authors
// SPDX-License-Identifier: Apache-2.0

package store

// storeSchema is applied to every pool connection on first use. All
// statements are idempotent. Times are Unix nanoseconds.
//
// The partial unique index on sessions is the at-most-one-active
// invariant in schema form: a second active row for the same
// (uid, session_type) cannot exist, whatever the code above does.
const storeSchema = `
	CREATE TABLE IF NOT EXISTS devices (
		uid         TEXT PRIMARY KEY,
		alias       TEXT NOT NULL DEFAULT '',
		device_type TEXT NOT NULL,
		first_seen  INTEGER NOT NULL,
		last_seen   INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id                  INTEGER PRIMARY KEY,
		guid                TEXT NOT NULL UNIQUE,
		uid                 TEXT NOT NULL,
		session_type        TEXT NOT NULL,
		active              INTEGER NOT NULL DEFAULT 1,
		start_date          INTEGER NOT NULL,
		end_date            INTEGER,
		target_abv          REAL,
		target_pressure_psi REAL,
		auto_complete       INTEGER NOT NULL DEFAULT 0,
		use_conservative    INTEGER NOT NULL DEFAULT 0,
		completion_reason   TEXT NOT NULL DEFAULT '',
		point_count         INTEGER NOT NULL DEFAULT 0
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_one_active
		ON sessions(uid, session_type) WHERE active = 1;
	CREATE INDEX IF NOT EXISTS idx_sessions_history
		ON sessions(session_type, active, start_date DESC);
	CREATE INDEX IF NOT EXISTS idx_sessions_device
		ON sessions(uid, session_type, start_date DESC);

	CREATE TABLE IF NOT EXISTS point_batches (
		id                INTEGER PRIMARY KEY,
		session_id        INTEGER NOT NULL,
		seq               INTEGER NOT NULL,
		point_count       INTEGER NOT NULL,
		compression       INTEGER NOT NULL,
		uncompressed_size INTEGER NOT NULL,
		checksum          BLOB NOT NULL,
		payload           BLOB NOT NULL,
		created_at        INTEGER NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_point_batches_seq
		ON point_batches(session_id, seq);
`
