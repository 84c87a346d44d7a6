// Copyright 2026 The Brewshed Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"time"

	"github.com/brewshed/brewshed/lib/schema"
)

// DefaultWindowCap bounds the in-memory point window per session. A
// two-week fermentation sampling every five minutes crosses it.
const DefaultWindowCap = 4000

// trimWindow enforces the window cap: past it, the older points
// collapse into hourly averages while the newest half keep sample
// resolution. The durable batch history is unaffected; the cap
// bounds live reads and estimation only.
func trimWindow(points []schema.TelemetryPoint, limit int) []schema.TelemetryPoint {
	if len(points) <= limit {
		return points
	}

	keep := limit / 2
	cut := len(points) - keep
	summarized := downsampleHourly(points[:cut])

	trimmed := make([]schema.TelemetryPoint, 0, len(summarized)+keep)
	trimmed = append(trimmed, summarized...)
	return append(trimmed, points[cut:]...)
}

// downsampleHourly averages points into hour buckets. Each sensor
// field averages its present readings; a bucket's time is the mean
// of its sample times, so downsampled points keep their order.
func downsampleHourly(points []schema.TelemetryPoint) []schema.TelemetryPoint {
	if len(points) == 0 {
		return nil
	}

	type bucket struct {
		start     time.Time
		offsetSum time.Duration
		count     int

		tempSum float64
		tempN   int
		presSum float64
		presN   int
		gravSum float64
		gravN   int
		voltSum float64
		voltN   int
	}

	// Buckets keep first-appearance order, which matches time order
	// for anything but flagged stragglers.
	index := make(map[int64]int)
	var buckets []*bucket
	for _, point := range points {
		hour := point.Time.Truncate(time.Hour)
		i, ok := index[hour.UnixNano()]
		if !ok {
			i = len(buckets)
			index[hour.UnixNano()] = i
			buckets = append(buckets, &bucket{start: hour})
		}
		b := buckets[i]
		b.offsetSum += point.Time.Sub(hour)
		b.count++
		if point.TempF != nil {
			b.tempSum += *point.TempF
			b.tempN++
		}
		if point.PressurePsi != nil {
			b.presSum += *point.PressurePsi
			b.presN++
		}
		if point.Gravity != nil {
			b.gravSum += *point.Gravity
			b.gravN++
		}
		if point.Voltage != nil {
			b.voltSum += *point.Voltage
			b.voltN++
		}
	}

	result := make([]schema.TelemetryPoint, 0, len(buckets))
	for _, b := range buckets {
		point := schema.TelemetryPoint{
			Time: b.start.Add(b.offsetSum / time.Duration(b.count)),
		}
		if b.tempN > 0 {
			point.TempF = schema.Float64(b.tempSum / float64(b.tempN))
		}
		if b.presN > 0 {
			point.PressurePsi = schema.Float64(b.presSum / float64(b.presN))
		}
		if b.gravN > 0 {
			point.Gravity = schema.Float64(b.gravSum / float64(b.gravN))
		}
		if b.voltN > 0 {
			point.Voltage = schema.Float64(b.voltSum / float64(b.voltN))
		}
		result = append(result, point)
	}
	return result
}
