// Copyright 2026 The Brewshed Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"fmt"
	"strings"
	"time"
)

// DeviceType identifies the hardware family a device belongs to.
// The family determines which sensors the device reports and which
// session types it runs.
type DeviceType string

const (
	// DeviceBrew is a batch brewing machine (Pico, Zymatic, Z Series).
	DeviceBrew DeviceType = "brew"

	// DeviceFerm is a fermentation vessel sensor reporting
	// temperature, pressure, and voltage.
	DeviceFerm DeviceType = "ferm"

	// DeviceStill is a distillation attachment reporting temperature
	// and pressure.
	DeviceStill DeviceType = "still"

	// DeviceTilt is a floating Bluetooth hydrometer reporting
	// temperature and specific gravity.
	DeviceTilt DeviceType = "tilt"

	// DeviceISpindel is a floating WiFi hydrometer reporting
	// temperature, gravity, and battery voltage.
	DeviceISpindel DeviceType = "ispindel"
)

// deviceTypes is the set of valid device types.
var deviceTypes = map[DeviceType]bool{
	DeviceBrew:     true,
	DeviceFerm:     true,
	DeviceStill:    true,
	DeviceTilt:     true,
	DeviceISpindel: true,
}

// Valid reports whether this is a known device type.
func (d DeviceType) Valid() bool { return deviceTypes[d] }

// ParseDeviceType normalizes and validates a device type string.
// Matching is case-insensitive ("iSpindel" parses to ispindel).
func ParseDeviceType(s string) (DeviceType, error) {
	d := DeviceType(strings.ToLower(strings.TrimSpace(s)))
	if !d.Valid() {
		return "", fmt.Errorf("unknown device type %q", s)
	}
	return d, nil
}

// SessionType identifies the kind of run a session records. The value
// set mirrors DeviceType: a device of family X runs sessions of type
// X, but sessions are keyed independently so the pairing is not
// assumed anywhere below the HTTP layer.
type SessionType string

const (
	SessionBrew     SessionType = "brew"
	SessionFerm     SessionType = "ferm"
	SessionStill    SessionType = "still"
	SessionTilt     SessionType = "tilt"
	SessionISpindel SessionType = "ispindel"
)

var sessionTypes = map[SessionType]bool{
	SessionBrew:     true,
	SessionFerm:     true,
	SessionStill:    true,
	SessionTilt:     true,
	SessionISpindel: true,
}

// Valid reports whether this is a known session type.
func (s SessionType) Valid() bool { return sessionTypes[s] }

// ParseSessionType normalizes and validates a session type string.
func ParseSessionType(s string) (SessionType, error) {
	t := SessionType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown session type %q", s)
	}
	return t, nil
}

// Device is one registered piece of hardware. Created on first
// registration or telemetry; the alias is mutable; devices are never
// deleted while sessions reference them.
type Device struct {
	// UID is the stable hardware identifier the device reports
	// (product ID for brewing machines, configured name for
	// hydrometers). Unique across the registry.
	UID string `json:"uid"`

	// Alias is the human-chosen display name. Empty until set.
	Alias string `json:"alias,omitempty"`

	// Type is the hardware family.
	Type DeviceType `json:"device_type"`

	// FirstSeen is when the device first registered or reported.
	FirstSeen time.Time `json:"first_seen"`

	// LastSeen is updated on every registration and telemetry
	// ingest from the device.
	LastSeen time.Time `json:"last_seen"`
}

// maxUIDLength bounds device identifiers. Brewing machine product IDs
// are 32 characters; hydrometer names are shorter.
const maxUIDLength = 64

// ValidateUID checks a device identifier: non-empty, at most 64
// characters, ASCII letters, digits, hyphen, and underscore only.
func ValidateUID(uid string) error {
	if uid == "" {
		return fmt.Errorf("device uid is empty")
	}
	if len(uid) > maxUIDLength {
		return fmt.Errorf("device uid %q exceeds %d characters", uid, maxUIDLength)
	}
	for _, r := range uid {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '_':
		default:
			return fmt.Errorf("device uid %q contains invalid character %q", uid, r)
		}
	}
	return nil
}
