// Copyright 2026 The Brewshed Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"testing"
	"time"

	"github.com/brewshed/brewshed/lib/schema"
)

func TestTrimWindowUnderCapIsIdentity(t *testing.T) {
	base := time.Date(2026, 4, 2, 8, 0, 0, 0, time.UTC)
	points := make([]schema.TelemetryPoint, 100)
	for i := range points {
		points[i] = schema.TelemetryPoint{Time: base.Add(time.Duration(i) * time.Minute)}
	}

	got := trimWindow(points, DefaultWindowCap)
	if len(got) != 100 {
		t.Fatalf("trimmed an under-cap window: %d points", len(got))
	}
}

func TestTrimWindowKeepsRecentAndSummarizesOld(t *testing.T) {
	const limit = 1000
	keep := limit / 2

	base := time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC)
	points := make([]schema.TelemetryPoint, limit+1)
	for i := range points {
		points[i] = schema.TelemetryPoint{
			Time:  base.Add(time.Duration(i) * time.Minute),
			TempF: schema.Float64(65 + float64(i%5)),
		}
	}

	got := trimWindow(points, limit)
	if len(got) >= len(points) {
		t.Fatalf("over-cap window not trimmed: %d points", len(got))
	}

	// The newest half survives untouched.
	recent := got[len(got)-keep:]
	wantFirstRecent := points[len(points)-keep].Time
	if !recent[0].Time.Equal(wantFirstRecent) {
		t.Errorf("recent tail starts at %v, want %v", recent[0].Time, wantFirstRecent)
	}
	if !recent[len(recent)-1].Time.Equal(points[len(points)-1].Time) {
		t.Errorf("newest point missing from trimmed window")
	}

	// The older 501 minutes collapsed to hourly buckets: minutes 0
	// through 500 span 9 distinct hours.
	summarized := got[:len(got)-keep]
	if len(summarized) != 9 {
		t.Errorf("summarized head has %d buckets, want 9", len(summarized))
	}
	for i := 1; i < len(summarized); i++ {
		if summarized[i].Time.Before(summarized[i-1].Time) {
			t.Fatalf("summarized bucket %d out of order", i)
		}
	}
}

func TestDownsampleHourlyAveragesFields(t *testing.T) {
	hour := time.Date(2026, 4, 2, 14, 0, 0, 0, time.UTC)
	points := []schema.TelemetryPoint{
		{Time: hour.Add(10 * time.Minute), TempF: schema.Float64(60), Gravity: schema.Float64(1.050)},
		{Time: hour.Add(20 * time.Minute), TempF: schema.Float64(70)},
		{Time: hour.Add(30 * time.Minute), TempF: schema.Float64(80), Voltage: schema.Float64(3.8)},
	}

	got := downsampleHourly(points)
	if len(got) != 1 {
		t.Fatalf("got %d buckets, want 1", len(got))
	}
	bucket := got[0]

	if want := hour.Add(20 * time.Minute); !bucket.Time.Equal(want) {
		t.Errorf("bucket time = %v, want mean offset %v", bucket.Time, want)
	}
	if bucket.TempF == nil || *bucket.TempF != 70 {
		t.Errorf("bucket temp = %v, want 70", bucket.TempF)
	}
	// Fields present on a subset of points average over that subset.
	if bucket.Gravity == nil || *bucket.Gravity != 1.050 {
		t.Errorf("bucket gravity = %v, want 1.050", bucket.Gravity)
	}
	if bucket.Voltage == nil || *bucket.Voltage != 3.8 {
		t.Errorf("bucket voltage = %v, want 3.8", bucket.Voltage)
	}
	if bucket.PressurePsi != nil {
		t.Errorf("bucket grew a pressure reading: %v", *bucket.PressurePsi)
	}
}

func TestDownsampleHourlySplitsBuckets(t *testing.T) {
	base := time.Date(2026, 4, 2, 14, 0, 0, 0, time.UTC)
	points := []schema.TelemetryPoint{
		{Time: base.Add(5 * time.Minute), TempF: schema.Float64(64)},
		{Time: base.Add(55 * time.Minute), TempF: schema.Float64(66)},
		{Time: base.Add(65 * time.Minute), TempF: schema.Float64(68)},
	}

	got := downsampleHourly(points)
	if len(got) != 2 {
		t.Fatalf("got %d buckets, want 2", len(got))
	}
	if *got[0].TempF != 65 {
		t.Errorf("first bucket temp = %v, want 65", *got[0].TempF)
	}
	if *got[1].TempF != 68 {
		t.Errorf("second bucket temp = %v, want 68", *got[1].TempF)
	}
}
