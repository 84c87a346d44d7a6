// Copyright 2026 The Brewshed Authors
// SPDX-License-Identifier: Apache-2.0

// Package service provides listener infrastructure for the brewshed
// server.
//
// The server fronts two listeners: an HTTP API for device
// registration, session control, telemetry posts, and the recipe
// library; and a TCP stream for the CBOR event feed that dashboards
// subscribe to and devices push frames over. This package extracts
// the lifecycle scaffolding both need:
//
//   - HTTP server: bind, Ready() signal, graceful shutdown that
//     drains in-flight requests.
//   - Stream server: bind, per-connection handler goroutines, and a
//     shutdown that closes open connections so handlers stuck in
//     Read unblock.
//
// The main() function composes these with its own handlers rather
// than subclassing a framework. The package provides building
// blocks, not a runtime.
//
// Both servers follow the same shape: construct with a Config,
// Serve(ctx) blocks until the context is cancelled, Ready() closes
// once the listener is bound (tests use OS-assigned ports and read
// the resolved address from Addr()).
package service
