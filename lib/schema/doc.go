// Copyright 2026 The Brewshed Authors
// SPDX-License-Identifier: Apache-2.0

// Package schema defines the domain types shared across the brewshed
// server: devices, sessions, telemetry points, estimation results,
// event payloads, and the stream wire frames.
//
// The package is a leaf: it depends only on lib/codec (for raw CBOR
// payloads in stream events) and the standard library. Store, session
// manager, estimator, and the HTTP/stream handlers all speak these
// types; none of them redefine their own.
//
// Serialization: structs carry json tags. The CBOR codec (lib/codec)
// reuses json tags, so one tag set covers both the HTTP boundary and
// the stream protocol. cbor tags appear only where the two encodings
// must differ.
package schema
