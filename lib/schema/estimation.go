// Copyright 2026 The Brewshed Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import "time"

// EstimationResult is the fermentation estimator's output: the
// predicted completion window, current progress, and a short
// human-readable recommendation. Derived state: recomputed on each
// ingest, never stored independently of the session it came from.
type EstimationResult struct {
	// CanEstimate is false when the session has no target ABV or no
	// sensor data yet. The remaining numeric fields are zero and
	// Recommendation explains what is missing.
	CanEstimate bool `json:"can_estimate"`

	// MinDays and MaxDays bound the predicted fermentation window,
	// in days from session start.
	MinDays float64 `json:"min_days,omitempty"`
	MaxDays float64 `json:"max_days,omitempty"`

	// ProgressPercent is elapsed time against the slow bound,
	// clamped to [0, 100].
	ProgressPercent float64 `json:"progress_percent"`

	// EstimatedCompletion is the projected completion timestamp:
	// start plus MaxDays when the session is conservative, start
	// plus MinDays otherwise. Display value only; nil when
	// CanEstimate is false.
	EstimatedCompletion *time.Time `json:"estimated_completion,omitempty"`

	// ShouldComplete is true once ProgressPercent reaches 100 and
	// the session has auto-complete enabled. The session manager
	// acts on the first false-to-true transition only.
	ShouldComplete bool `json:"should_complete"`

	// Recommendation is a short status line for dashboards.
	Recommendation string `json:"recommendation"`

	// Analysis summarizes the sensor data the estimate was computed
	// from. Nil when CanEstimate is false.
	Analysis *ConditionAnalysis `json:"analysis,omitempty"`
}

// ConditionAnalysis summarizes a session's sensor window: plain and
// time-decay-weighted averages plus extremes. The weighted values
// favor recent samples and are the estimator's actual inputs.
type ConditionAnalysis struct {
	AvgTempF      float64 `json:"avg_temp_f"`
	WeightedTempF float64 `json:"weighted_temp_f"`
	MinTempF      float64 `json:"min_temp_f"`
	MaxTempF      float64 `json:"max_temp_f"`

	AvgPressurePsi      float64 `json:"avg_pressure_psi"`
	WeightedPressurePsi float64 `json:"weighted_pressure_psi"`
	MinPressurePsi      float64 `json:"min_pressure_psi"`
	MaxPressurePsi      float64 `json:"max_pressure_psi"`

	// SampleCount is the number of points with at least one sensor
	// value that contributed to the analysis.
	SampleCount int `json:"sample_count"`
}
