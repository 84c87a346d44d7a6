// Copyright 2026 The Brewshed Authors
// SPDX-License-Identifier: Apache-2.0

package recipe

import (
	"fmt"
	"strings"
)

// DeviceType identifies a brewing machine protocol. Distinct from the
// telemetry device kinds in lib/schema: every machine here is a brew
// device, but each speaks its own recipe format.
type DeviceType string

const (
	// DevicePico is the Pico C/S/Pro family. Fixed early steps
	// (prime, heat, dough-in), no pause support, RFID-style ids.
	DevicePico DeviceType = "pico"

	// DeviceZymatic is the original countertop machine. Supports a
	// Pause location for connecting the chiller.
	DeviceZymatic DeviceType = "zymatic"

	// DeviceZSeries is the Z line. Same locations as the zymatic;
	// ids are sequential integers assigned by the file store.
	DeviceZSeries DeviceType = "zseries"
)

// ParseDeviceType normalizes a device-type string. "z" is accepted as
// shorthand for zseries.
func ParseDeviceType(raw string) (DeviceType, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "pico":
		return DevicePico, nil
	case "zymatic":
		return DeviceZymatic, nil
	case "zseries", "z":
		return DeviceZSeries, nil
	}
	return "", fmt.Errorf("unknown device type %q", raw)
}

// Location is the physical compartment or phase a step targets.
type Location string

const (
	LocationPrime    Location = "Prime"
	LocationMash     Location = "Mash"
	LocationPassThru Location = "PassThru"
	LocationAdjunct1 Location = "Adjunct1"
	LocationAdjunct2 Location = "Adjunct2"
	LocationAdjunct3 Location = "Adjunct3"
	LocationAdjunct4 Location = "Adjunct4"
	LocationPause    Location = "Pause"
)

// adjuncts maps hop-addition index to its basket location.
var adjuncts = [maxHopAdditions]Location{
	LocationAdjunct1, LocationAdjunct2, LocationAdjunct3, LocationAdjunct4,
}

// Step is one entry in a device's step program. The JSON field names
// are the ones the machines expect.
type Step struct {
	Name         string   `json:"name"`
	Location     Location `json:"location"`
	TemperatureF int      `json:"temperature"`
	StepTimeMin  int      `json:"step_time"`
	DrainTimeMin int      `json:"drain_time"`
}

// Recipe is a normalized, device-ready recipe. ID format depends on
// the device type; for zseries it is a decimal integer rendered as a
// string. StartWaterL is populated only for zseries machines.
type Recipe struct {
	ID          string     `json:"id,omitempty"`
	Name        string     `json:"name"`
	DeviceType  DeviceType `json:"device_type"`
	Notes       string     `json:"notes,omitempty"`
	ABV         float64    `json:"abv,omitempty"`
	IBU         float64    `json:"ibu,omitempty"`
	StartWaterL float64    `json:"start_water,omitempty"`
	Steps       []Step     `json:"steps"`
}

// MashStep is one rest in the mash schedule, as supplied by callers
// of Build.
type MashStep struct {
	Name    string `json:"name"`
	TempF   int    `json:"temp_f"`
	TimeMin int    `json:"time_min"`
}

// HopAddition is one boil hop charge. TimeMin is boil minutes
// remaining when the charge drops (60 = bittering at the start of a
// 60-minute boil, 0 = flameout).
type HopAddition struct {
	Name    string `json:"name"`
	TimeMin int    `json:"time_min"`
}

// Params is the device-independent input to Build: a mash schedule,
// a hop schedule, and the recipe's vital numbers. Zero values take
// documented defaults (60-minute boil, OG 1.050, 5.0% ABV, 30 IBU,
// 23 L pre-boil volume).
type Params struct {
	Name      string        `json:"name"`
	Notes     string        `json:"notes,omitempty"`
	MashSteps []MashStep    `json:"mash_steps"`
	Hops      []HopAddition `json:"hop_additions"`

	BoilTimeMin int     `json:"boil_time"`
	BoilSizeL   float64 `json:"boil_size_l,omitempty"`
	OG          float64 `json:"og"`
	IBU         float64 `json:"ibu"`
	ABV         float64 `json:"abv"`
}
