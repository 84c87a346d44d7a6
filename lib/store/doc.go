// Copyright 2026 The Brewshed Authors
// SPDX-License-Identifier: Apache-2.0

// Package store persists devices, sessions, and telemetry point
// batches in SQLite.
//
// The session table carries a partial unique index on
// (uid, session_type) WHERE active=1, so the at-most-one-active-
// session invariant is enforced by the database itself; StartSession
// checks inside an immediate transaction to return a typed
// ConflictError before the index ever fires.
//
// Telemetry points are not stored row-per-point. The session manager
// accumulates points and appends them as compressed CBOR batches
// (zstd or lz4, picked by probe) with a BLAKE3 checksum over the
// uncompressed encoding. LoadPoints reassembles the full arrival-
// order history by walking a session's batches.
//
// Writes that fail for non-domain reasons are retried once; a second
// failure surfaces as a PersistenceError.
package store
