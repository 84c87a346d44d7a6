// Copyright 2026 The Brewshed Authors
// SPDX-License-Identifier: Apache-2.0

package estimator

import (
	"math"

	"github.com/brewshed/brewshed/lib/schema"
)

// decayPerHour is the exponential decay rate for sample weighting:
// a sample one hour older than the newest carries weight e^-0.1
// (about 0.90), ten hours older e^-1 (about 0.37). Recent readings
// dominate so a fermentation that warmed up overnight is estimated
// at its current temperature, not its history.
const decayPerHour = 0.1

// conditions is the analyzed sensor window plus presence flags the
// public ConditionAnalysis does not carry.
type conditions struct {
	analysis    schema.ConditionAnalysis
	hasTemp     bool
	hasPressure bool
}

// Analyze summarizes a session's point window: plain averages,
// decay-weighted averages, and extremes for temperature and
// pressure. Returns nil when no point carries a temperature or
// pressure value; gravity-only windows cannot drive the estimator.
func Analyze(points []schema.TelemetryPoint) *schema.ConditionAnalysis {
	c, ok := analyze(points)
	if !ok {
		return nil
	}
	return &c.analysis
}

func analyze(points []schema.TelemetryPoint) (conditions, bool) {
	var c conditions
	if len(points) == 0 {
		return c, false
	}

	// Ages are measured from the newest sample time in the window,
	// not the wall clock, so a paused feed does not skew weights.
	newest := points[0].Time
	for _, p := range points[1:] {
		if p.Time.After(newest) {
			newest = p.Time
		}
	}

	var (
		tempSum, tempWeighted, tempWeights float64
		tempCount                          int
		psiSum, psiWeighted, psiWeights    float64
		psiCount                           int
	)

	for _, p := range points {
		if p.TempF == nil && p.PressurePsi == nil {
			continue
		}
		c.analysis.SampleCount++

		ageHours := newest.Sub(p.Time).Hours()
		if ageHours < 0 {
			ageHours = 0
		}
		weight := math.Exp(-decayPerHour * ageHours)

		if p.TempF != nil {
			v := *p.TempF
			tempSum += v
			tempWeighted += v * weight
			tempWeights += weight
			if tempCount == 0 || v < c.analysis.MinTempF {
				c.analysis.MinTempF = v
			}
			if tempCount == 0 || v > c.analysis.MaxTempF {
				c.analysis.MaxTempF = v
			}
			tempCount++
		}

		if p.PressurePsi != nil {
			v := *p.PressurePsi
			psiSum += v
			psiWeighted += v * weight
			psiWeights += weight
			if psiCount == 0 || v < c.analysis.MinPressurePsi {
				c.analysis.MinPressurePsi = v
			}
			if psiCount == 0 || v > c.analysis.MaxPressurePsi {
				c.analysis.MaxPressurePsi = v
			}
			psiCount++
		}
	}

	if c.analysis.SampleCount == 0 {
		return conditions{}, false
	}

	if tempCount > 0 {
		c.hasTemp = true
		c.analysis.AvgTempF = tempSum / float64(tempCount)
		c.analysis.WeightedTempF = tempWeighted / tempWeights
	}
	if psiCount > 0 {
		c.hasPressure = true
		c.analysis.AvgPressurePsi = psiSum / float64(psiCount)
		c.analysis.WeightedPressurePsi = psiWeighted / psiWeights
	}

	return c, true
}
