// Copyright 2026 The Brewshed Authors
// SPDX-License-Identifier: Apache-2.0

// Brewshed-server is the hub process for a brewing setup. It serves
// the HTTP API for device registration, session control, recipe
// building, and history queries, and a TCP stream listener where
// devices push telemetry and dashboards subscribe to live session
// events. Session state is durable in SQLite; everything a device
// needs survives a restart.
package main
