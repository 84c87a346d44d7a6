// Copyright 2026 The Brewshed Authors
// SPDX-License-Identifier: Apache-2.0

package estimator

import (
	"fmt"
	"time"

	"github.com/brewshed/brewshed/lib/schema"
)

// Defaults used when a session carries no reading for an estimator
// input. 70°F is typical ale fermentation; 5 psi is the neutral
// spunding pressure (factor 1.0).
const (
	DefaultTempF       = 70.0
	DefaultPressurePsi = 5.0
)

// Pressure scaling: each psi above neutral slows fermentation by 4%,
// each psi below speeds it up, clamped to [0.7, 2.0].
const (
	pressureSlope = 0.04
	pressureFloor = 0.7
	pressureCeil  = 2.0
)

// abvBand classifies the target strength of the beer.
type abvBand int

const (
	bandLow abvBand = iota
	bandMedium
	bandHigh
)

// tempClass classifies the fermentation temperature.
type tempClass int

const (
	classHot tempClass = iota
	classWarm
	classCool
	classCold
)

// window is a fermentation day range.
type window struct {
	minDays float64
	maxDays float64
}

// baseWindows maps (strength band, temperature class) to the base
// fermentation window in days, before pressure scaling. The model:
// stronger beers ferment longer, colder fermentations ferment
// slower and less predictably.
var baseWindows = map[abvBand]map[tempClass]window{
	bandLow: {
		classHot:  {4, 5},
		classWarm: {5, 6},
		classCool: {6, 7},
		classCold: {7, 9},
	},
	bandMedium: {
		classHot:  {6, 8},
		classWarm: {7, 9},
		classCool: {9, 12},
		classCold: {12, 14},
	},
	bandHigh: {
		classHot:  {9, 10},
		classWarm: {10, 12},
		classCool: {12, 14},
		classCold: {14, 18},
	},
}

// classifyABV buckets a target ABV percentage into a strength band.
func classifyABV(abv float64) abvBand {
	switch {
	case abv <= 6.5:
		return bandLow
	case abv <= 8.5:
		return bandMedium
	default:
		return bandHigh
	}
}

// classifyTemp buckets a fermentation temperature into a class.
func classifyTemp(tempF float64) tempClass {
	switch {
	case tempF >= 75:
		return classHot
	case tempF >= 70:
		return classWarm
	case tempF >= 65:
		return classCool
	default:
		return classCold
	}
}

// pressureFactor scales the fermentation window for spunding
// pressure. Neutral at 5 psi; clamped so extreme targets cannot
// produce absurd windows.
func pressureFactor(psi float64) float64 {
	return clamp(1.0+(psi-DefaultPressurePsi)*pressureSlope, pressureFloor, pressureCeil)
}

func clamp(v, low, high float64) float64 {
	if v < low {
		return low
	}
	if v > high {
		return high
	}
	return v
}

// Input bundles the estimator's inputs. Optional fields fall back to
// the package defaults; Estimate never fails.
type Input struct {
	// TargetABV is the expected alcohol by volume. Required; a nil
	// value yields CanEstimate=false.
	TargetABV *float64

	// CurrentTempF is the current fermentation temperature,
	// typically the decay-weighted average from Analyze. Defaults
	// to 70°F when nil.
	CurrentTempF *float64

	// TargetPressurePsi is the spunding pressure target. Defaults
	// to 5 psi when nil.
	TargetPressurePsi *float64

	// AutoComplete gates ShouldComplete: without it, progress can
	// reach 100% but the estimator never requests completion.
	AutoComplete bool

	// UseConservative selects the slow bound (MaxDays) for the
	// displayed EstimatedCompletion. Display-only.
	UseConservative bool

	// StartDate anchors EstimatedCompletion.
	StartDate time.Time

	// Elapsed is the time since StartDate.
	Elapsed time.Duration
}

// Estimate computes the fermentation completion window and progress.
// Pure: same inputs, same result, no I/O, no error path.
func Estimate(input Input) schema.EstimationResult {
	if input.TargetABV == nil {
		return schema.EstimationResult{
			CanEstimate:    false,
			Recommendation: "Set a target ABV to enable completion estimates.",
		}
	}

	tempF := DefaultTempF
	if input.CurrentTempF != nil {
		tempF = *input.CurrentTempF
	}
	psi := DefaultPressurePsi
	if input.TargetPressurePsi != nil {
		psi = *input.TargetPressurePsi
	}

	base := baseWindows[classifyABV(*input.TargetABV)][classifyTemp(tempF)]
	factor := pressureFactor(psi)
	minDays := base.minDays * factor
	maxDays := base.maxDays * factor

	// Progress runs against the slow bound: 100% means even a slow
	// fermentation should be done.
	elapsedHours := input.Elapsed.Hours()
	progress := clamp(elapsedHours/(maxDays*24)*100, 0, 100)

	completionDays := minDays
	if input.UseConservative {
		completionDays = maxDays
	}
	completion := input.StartDate.Add(daysToDuration(completionDays))

	return schema.EstimationResult{
		CanEstimate:         true,
		MinDays:             minDays,
		MaxDays:             maxDays,
		ProgressPercent:     progress,
		EstimatedCompletion: &completion,
		ShouldComplete:      progress >= 100 && input.AutoComplete,
		Recommendation:      recommendation(progress, maxDays-elapsedHours/24),
	}
}

// EstimateSession runs the estimator for a ferm session: summarize
// the point window into weighted current conditions, then Estimate
// with the session's targets. The returned result carries the
// condition analysis for status events.
func EstimateSession(session *schema.Session, points []schema.TelemetryPoint, now time.Time) schema.EstimationResult {
	if session.TargetABV == nil {
		return schema.EstimationResult{
			CanEstimate:    false,
			Recommendation: "Set a target ABV to enable completion estimates.",
		}
	}

	conditions, ok := analyze(points)
	if !ok {
		return schema.EstimationResult{
			CanEstimate:    false,
			Recommendation: "Waiting for sensor data before estimating completion.",
		}
	}

	var currentTemp *float64
	if conditions.hasTemp {
		currentTemp = &conditions.analysis.WeightedTempF
	}

	result := Estimate(Input{
		TargetABV:         session.TargetABV,
		CurrentTempF:      currentTemp,
		TargetPressurePsi: session.TargetPressurePsi,
		AutoComplete:      session.AutoComplete,
		UseConservative:   session.UseConservative,
		StartDate:         session.StartDate,
		Elapsed:           now.Sub(session.StartDate),
	})
	result.Analysis = &conditions.analysis
	return result
}

// recommendation renders the progress into a dashboard status line.
func recommendation(progress, daysRemaining float64) string {
	switch {
	case progress < 5:
		return "Fermentation is just getting started."
	case progress < 75:
		if daysRemaining < 0 {
			daysRemaining = 0
		}
		return fmt.Sprintf("Fermentation in progress, roughly %.1f days remaining.", daysRemaining)
	case progress < 100:
		return "Fermentation is nearing completion."
	default:
		return "Fermentation time reached. Take a gravity reading to confirm."
	}
}

// daysToDuration converts fractional days to a time.Duration.
func daysToDuration(days float64) time.Duration {
	return time.Duration(days * 24 * float64(time.Hour))
}
