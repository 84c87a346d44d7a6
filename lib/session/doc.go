// Copyright 2026 The Brewshed Authors
// SPDX-License-Identifier: Apache-2.0

// Package session manages the live state of brewing-device sessions:
// start and stop transitions, telemetry ingestion with per-sample
// validation, fermentation estimation, durable point batching, and
// event fan-out.
//
// Each (device, session type) key is an independent unit of mutual
// exclusion with single-writer ingestion; different keys never
// contend. Accepted points accumulate in a per-key pending buffer
// flushed as a compressed batch at a size threshold, on a background
// interval, and always on completion. State transitions commit to
// the store before their events publish, so a subscriber never
// observes a session a status query cannot find.
package session
