// Copyright 2026 The Brewshed Authors
// SPDX-License-Identifier: Apache-2.0

// Package recipe normalizes brewing recipes for the three supported
// brewing machine protocols: pico, zymatic, and zseries.
//
// Everything that varies between protocols (allowed step locations,
// id formats, boil temperatures, drain conventions) lives in one
// rules table. Validate checks a recipe against its device's row and
// reports every violation at once. Build expands mash and hop
// parameters (from the template catalogue, manual input, or a parsed
// BeerXML document) into the full step program a device executes.
// Build is pure; FileStore owns the on-disk recipe partition, one
// directory per device type with JSONC-tolerant reads and atomic
// writes.
package recipe
