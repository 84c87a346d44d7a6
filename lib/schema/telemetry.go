// Copyright 2026 The Brewshed Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"math"
	"time"
)

// Accepted sensor ranges. Values outside these bounds (or NaN/Inf)
// are physically implausible readings from a failing sensor and are
// nulled by [TelemetryPoint.Normalize] rather than rejecting the
// whole point.
const (
	MinTempF       = -40.0
	MaxTempF       = 212.0
	MinPressurePsi = 0.0
	MaxPressurePsi = 60.0
	MinGravity     = 0.900
	MaxGravity     = 1.200
	MinVoltage     = 0.0
	MaxVoltage     = 15.0
)

// TelemetryPoint is one timestamped sensor reading within a session.
// All sensor fields are optional: which ones a device reports depends
// on its family (brew machines report temperature only, ferm vessels
// add pressure and voltage, hydrometers add gravity).
type TelemetryPoint struct {
	// Time is the device-reported sample time. Points are stored in
	// arrival order; a Time earlier than the previous point is
	// flagged by the ingest path, never reordered.
	Time time.Time `json:"time"`

	// TempF is the temperature in degrees Fahrenheit.
	TempF *float64 `json:"temp_f,omitempty"`

	// PressurePsi is the vessel pressure in PSI.
	PressurePsi *float64 `json:"pressure_psi,omitempty"`

	// Gravity is the specific gravity reading.
	Gravity *float64 `json:"gravity,omitempty"`

	// Voltage is the sensor battery voltage.
	Voltage *float64 `json:"voltage,omitempty"`
}

// Normalize nulls malformed sensor fields in place: NaN, infinity,
// or out-of-range values are dropped individually while the rest of
// the point survives. Returns the number of fields nulled.
func (p *TelemetryPoint) Normalize() int {
	nulled := 0
	if !inRange(p.TempF, MinTempF, MaxTempF) {
		p.TempF = nil
		nulled++
	}
	if !inRange(p.PressurePsi, MinPressurePsi, MaxPressurePsi) {
		p.PressurePsi = nil
		nulled++
	}
	if !inRange(p.Gravity, MinGravity, MaxGravity) {
		p.Gravity = nil
		nulled++
	}
	if !inRange(p.Voltage, MinVoltage, MaxVoltage) {
		p.Voltage = nil
		nulled++
	}
	return nulled
}

// Empty reports whether the point carries no sensor values at all
// (every field absent or nulled by Normalize).
func (p *TelemetryPoint) Empty() bool {
	return p.TempF == nil && p.PressurePsi == nil && p.Gravity == nil && p.Voltage == nil
}

// inRange reports whether an optional field is either absent or a
// finite value within [min, max].
func inRange(v *float64, min, max float64) bool {
	if v == nil {
		return true
	}
	if math.IsNaN(*v) || math.IsInf(*v, 0) {
		return false
	}
	return *v >= min && *v <= max
}

// Float64 returns a pointer to v. Telemetry construction helper for
// the optional sensor fields.
func Float64(v float64) *float64 { return &v }
