// Copyright 2026 The Brewshed Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"path"
	"time"
)

// Event kinds carried in StreamEvent.Kind. Subscribers switch on the
// kind to decode the payload.
const (
	EventKindSessionUpdate = "session_update"
	EventKindStatusUpdate  = "status_update"
	EventKindAutoComplete  = "auto_complete"
	EventKindHeartbeat     = "heartbeat"
)

// SessionUpdateChannel names the per-session telemetry channel:
// "{sessionType}_session_update|{id}". One event per ingest batch is
// published here.
func SessionUpdateChannel(sessionType SessionType, id string) string {
	return string(sessionType) + "_session_update|" + id
}

// StatusUpdateChannel names the per-device estimator channel:
// "ferm_status_update|{uid}". A standalone EstimationResult is
// published here on each ferm ingest once estimation is possible.
func StatusUpdateChannel(uid string) string {
	return "ferm_status_update|" + uid
}

// AutoCompleteChannel names the one-shot completion channel:
// "ferm_auto_complete|{uid}".
func AutoCompleteChannel(uid string) string {
	return "ferm_auto_complete|" + uid
}

// ChannelID returns the identifier half of a session's channel names.
// Brew sessions are identified by session GUID: brew charts follow
// one batch from mash-in to chill, and a device brews many batches.
// Monitoring sessions (ferm, still, tilt, ispindel) are identified by
// device UID: dashboards follow the vessel, whatever run it is on.
func ChannelID(sessionType SessionType, uid, guid string) string {
	if sessionType == SessionBrew {
		return guid
	}
	return uid
}

// MatchChannel reports whether any subscription pattern matches the
// channel name. Patterns use path.Match syntax: "ferm_*" matches
// every ferm channel, "*|FERM001" everything for one device. An
// empty pattern list subscribes to all channels. Malformed patterns
// match nothing.
func MatchChannel(patterns []string, channel string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, pattern := range patterns {
		if ok, err := path.Match(pattern, channel); err == nil && ok {
			return true
		}
	}
	return false
}

// SessionUpdateEvent is the payload on a session_update channel: the
// ingest batch that was just appended, with the running point count
// and, for ferm sessions, the recomputed estimate.
type SessionUpdateEvent struct {
	UID         string      `json:"uid"`
	GUID        string      `json:"guid"`
	SessionType SessionType `json:"session_type"`

	// Points is this batch only, post-normalization. Full history
	// is a store read, not an event replay.
	Points []TelemetryPoint `json:"points"`

	// Flagged counts points in this batch whose time ran backwards
	// relative to the previously appended point.
	Flagged int `json:"flagged,omitempty"`

	// PointCount is the session total after this append.
	PointCount int `json:"point_count"`

	// Estimate is attached for ferm sessions only.
	Estimate *EstimationResult `json:"estimate,omitempty"`
}

// StatusUpdateEvent is the payload on a ferm_status_update channel:
// a standalone estimation snapshot for dashboards that track
// fermentation progress without consuming raw telemetry.
type StatusUpdateEvent struct {
	UID      string           `json:"uid"`
	GUID     string           `json:"guid"`
	Estimate EstimationResult `json:"estimate"`
}

// AutoCompleteReason is the human-readable reason carried on every
// estimator-triggered completion.
const AutoCompleteReason = "Estimated fermentation time reached"

// AutoCompleteEvent is the one-shot payload on a ferm_auto_complete
// channel. Published exactly once per session, after the completion
// transition is committed to the store.
type AutoCompleteEvent struct {
	UID    string `json:"uid"`
	GUID   string `json:"guid"`
	Reason string `json:"reason"`

	// Status is the final session state, always "complete".
	Status string `json:"status"`
}

// HeartbeatEvent is pushed to every stream subscriber on the
// heartbeat interval. Dropped carries the subscriber's own count of
// events discarded by the drop-oldest buffer policy, so a consumer
// knows its view has gaps.
type HeartbeatEvent struct {
	Time    time.Time `json:"time"`
	Dropped uint64    `json:"dropped"`
}
