// Copyright 2026 The Brewshed Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"github.com/brewshed/brewshed/lib/codec"
)

// StreamRole selects what a stream connection does after the hello
// handshake.
type StreamRole string

const (
	// RoleSubscribe receives StreamEvent frames for matching
	// channels until the connection closes.
	RoleSubscribe StreamRole = "subscribe"

	// RoleIngest pushes TelemetryFrame batches and receives a
	// StreamAck per frame.
	RoleIngest StreamRole = "ingest"
)

// StreamHello is the first frame a client sends on a stream
// connection. The server answers with a StreamAck before any other
// traffic.
type StreamHello struct {
	// Role is subscribe or ingest.
	Role StreamRole `json:"role"`

	// Channels are subscription patterns (path.Match syntax).
	// Empty subscribes to everything. Ignored for ingest.
	Channels []string `json:"channels,omitempty"`
}

// StreamAck acknowledges a hello or an ingest frame.
type StreamAck struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`

	// Accepted and Flagged report ingest frame outcomes: points
	// appended, and points whose time ran backwards.
	Accepted int `json:"accepted,omitempty"`
	Flagged  int `json:"flagged,omitempty"`
}

// StreamEvent is one event pushed to a subscriber. Payload is the
// raw CBOR of the kind-specific event struct (SessionUpdateEvent,
// StatusUpdateEvent, AutoCompleteEvent, HeartbeatEvent); it is
// decoded lazily so the fan-out path never re-marshals per
// subscriber.
type StreamEvent struct {
	Channel string           `json:"channel"`
	Kind    string           `json:"kind"`
	Payload codec.RawMessage `json:"payload"`
}

// TelemetryFrame is one ingest batch pushed by a device connection.
type TelemetryFrame struct {
	UID         string           `json:"uid"`
	SessionType SessionType      `json:"session_type"`
	Samples     []TelemetryPoint `json:"samples"`
}
