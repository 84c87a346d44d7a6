// Copyright 2026 The Brewshed Authors
// SPDX-License-Identifier: Apache-2.0

// Package fanout distributes session events to stream subscribers.
//
// A Bus holds the set of connected subscribers. Publishers (the
// session manager, the auto-complete sweep) call Publish with a
// schema.StreamEvent; the bus delivers it to every subscriber whose
// channel patterns match the event's channel name.
//
// Delivery is bounded and lossy. Each subscriber owns a fixed-size
// buffer; when it fills, the bus evicts the oldest queued event to
// make room for the newest one. A dashboard that falls behind loses
// stale points, never fresh ones, and the per-subscriber drop counter
// lets the stream handler report the gap in its heartbeats. Publish
// never blocks on a slow consumer.
package fanout
