// Copyright 2026 The Brewshed Authors
// SPDX-License-Identifier: Apache-2.0

package recipe

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const (
	// maxHopAdditions is the number of adjunct baskets on every
	// supported machine. Longer hop schedules are merged down.
	maxHopAdditions = 4

	// maxNameLength is the step and recipe name limit the machine
	// displays can render.
	maxNameLength = 19
)

// rules describes everything that varies between device protocols.
// Validate and Build read from this table; supporting a new machine
// means adding a row, not a branch.
type rules struct {
	// locations is the set of step locations the protocol accepts.
	locations map[Location]bool

	// idPattern matches a well-formed recipe id for the protocol.
	idPattern *regexp.Regexp

	// idHint describes the expected id format in violation messages.
	idHint string

	// newID generates a fresh id, or is nil when the file store
	// assigns sequential ids from the existing partition contents.
	newID func() string

	// boilTempF is the protocol's boil setpoint. The pico runs
	// cooler than the others by firmware convention.
	boilTempF int

	// finalHopDrainMin is forced onto the last hop step, 0 to leave
	// the step's own drain time alone.
	finalHopDrainMin int

	// supportsPause reports whether Build appends the
	// connect-chiller pause and chill steps.
	supportsPause bool

	// buildSteps expands normalized parameters into the protocol's
	// full step program.
	buildSteps func(params Params, r rules) []Step
}

var deviceRules = map[DeviceType]rules{
	DevicePico: {
		locations: locationSet(
			LocationPrime, LocationMash, LocationPassThru,
			LocationAdjunct1, LocationAdjunct2, LocationAdjunct3, LocationAdjunct4,
		),
		idPattern:        regexp.MustCompile(`^[0-9A-F]{14}$`),
		idHint:           "a 14-character uppercase hex id",
		newID:            newPicoID,
		boilTempF:        202,
		finalHopDrainMin: 5,
		buildSteps:       buildPicoSteps,
	},
	DeviceZymatic: {
		locations: locationSet(
			LocationPassThru, LocationMash,
			LocationAdjunct1, LocationAdjunct2, LocationAdjunct3, LocationAdjunct4,
			LocationPause,
		),
		idPattern:     regexp.MustCompile(`^[0-9a-f]{32}$`),
		idHint:        "a 32-character lowercase hex id",
		newID:         newZymaticID,
		boilTempF:     207,
		supportsPause: true,
		buildSteps:    buildZymaticSteps,
	},
	DeviceZSeries: {
		locations: locationSet(
			LocationPassThru, LocationMash,
			LocationAdjunct1, LocationAdjunct2, LocationAdjunct3, LocationAdjunct4,
			LocationPause,
		),
		idPattern:     regexp.MustCompile(`^[0-9]+$`),
		idHint:        "a positive integer id",
		boilTempF:     207,
		supportsPause: true,
		buildSteps:    buildZSeriesSteps,
	},
}

func locationSet(locations ...Location) map[Location]bool {
	set := make(map[Location]bool, len(locations))
	for _, location := range locations {
		set[location] = true
	}
	return set
}

// newPicoID returns an RFID-style id: the first 14 hex characters of
// a random UUID, uppercased to match the tag format.
func newPicoID() string {
	return strings.ToUpper(hexUUID()[:14])
}

func newZymaticID() string {
	return hexUUID()
}

// hexUUID renders a random UUID as 32 bare hex characters.
func hexUUID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
