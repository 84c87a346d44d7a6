// Copyright 2026 The Brewshed Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import "time"

// CompletionReason records how a session ended.
type CompletionReason string

const (
	// CompletionNone means the session is still active.
	CompletionNone CompletionReason = ""

	// CompletionManual means an explicit stop request ended the
	// session.
	CompletionManual CompletionReason = "manual"

	// CompletionAuto means the fermentation estimator ended the
	// session when predicted completion was reached.
	CompletionAuto CompletionReason = "auto"
)

// SessionParams are the caller-supplied parameters of a start
// request. All fields are optional; the zero value starts a plain
// monitoring session with no estimation targets.
type SessionParams struct {
	// TargetABV is the recipe's expected alcohol by volume, the
	// primary estimator input. Estimation is disabled without it.
	TargetABV *float64 `json:"target_abv,omitempty"`

	// TargetPressurePsi is the spunding pressure target. Affects
	// the estimated fermentation window (higher pressure slows the
	// estimate).
	TargetPressurePsi *float64 `json:"target_pressure_psi,omitempty"`

	// AutoComplete lets the estimator stop the session once
	// progress reaches 100%.
	AutoComplete bool `json:"auto_complete"`

	// UseConservative selects the slow bound of the estimated
	// window for the displayed completion time. Display-only; it
	// never changes the completion condition.
	UseConservative bool `json:"use_conservative"`
}

// Session is one monitored run of a device from start to completion.
// Exactly one Session may be active per (UID, Type) pair at any time.
// Completed sessions are immutable history records and are never
// deleted.
type Session struct {
	// ID is the store row identifier. Zero until persisted.
	ID int64 `json:"-"`

	// GUID is the stable external identifier, generated at start.
	// Chart consumers and the points endpoint address sessions by
	// GUID, never by row ID.
	GUID string `json:"guid"`

	// UID is the owning device identifier.
	UID string `json:"uid"`

	// Alias is the device alias at read time, denormalized into
	// list responses for display. Not stored on the session row.
	Alias string `json:"alias,omitempty"`

	// Type is the session type.
	Type SessionType `json:"session_type"`

	// Active is true from start until stop or auto-complete.
	Active bool `json:"active"`

	// StartDate is when the session started.
	StartDate time.Time `json:"start_date"`

	// EndDate is when the session completed. Nil while active.
	EndDate *time.Time `json:"end_date,omitempty"`

	// TargetABV, TargetPressurePsi, AutoComplete, UseConservative
	// echo the start parameters.
	TargetABV         *float64 `json:"target_abv,omitempty"`
	TargetPressurePsi *float64 `json:"target_pressure_psi,omitempty"`
	AutoComplete      bool     `json:"auto_complete"`
	UseConservative   bool     `json:"use_conservative"`

	// CompletionReason is empty while active, then manual or auto.
	CompletionReason CompletionReason `json:"completion_reason,omitempty"`

	// PointCount is the total number of telemetry points appended
	// over the session's lifetime (durable batches plus pending).
	PointCount int `json:"point_count"`
}

// Params returns the session's start parameters.
func (s *Session) Params() SessionParams {
	return SessionParams{
		TargetABV:         s.TargetABV,
		TargetPressurePsi: s.TargetPressurePsi,
		AutoComplete:      s.AutoComplete,
		UseConservative:   s.UseConservative,
	}
}

// Completed reports whether the session is in a terminal state.
func (s *Session) Completed() bool {
	return !s.Active && s.CompletionReason != CompletionNone
}
