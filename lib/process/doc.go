// Copyright 2026 The Brewshed Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides binary entrypoint helpers for Brewshed
// binaries. It centralizes the two legitimate raw I/O patterns that
// exist before or after the structured logger:
//
//   - Fatal error reporting to stderr when the logger may not be
//     initialized (pre-logger).
//   - Process exit after an unrecoverable error in main().
//
// All other raw output in server binaries goes through the structured
// logger.
package process
