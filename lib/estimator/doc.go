// Copyright 2026 The Brewshed Authors
// SPDX-License-Identifier: Apache-2.0

// Package estimator predicts fermentation completion from a
// session's targets and its accumulated sensor readings.
//
// The core is [Estimate], a pure function: classify the target ABV
// into a strength band and the current temperature into a class,
// look up the base day window from a fixed table, scale it by the
// spunding pressure factor, and derive progress from elapsed time
// against the slow bound. It never returns an error: missing inputs
// fall back to documented defaults (70°F, 5 psi), and sessions that
// cannot be estimated at all get a result with CanEstimate=false.
//
// [EstimateSession] is the session-facing wrapper: it summarizes the
// in-memory point window into decay-weighted current conditions
// ([Analyze]) and feeds those to Estimate. The session manager calls
// it inline on every ferm ingest; the first result with
// ShouldComplete=true triggers the auto-complete transition.
//
// All lookup data lives in tables, not branches, so recalibrating
// the model is a data change.
package estimator
