// Copyright 2026 The Brewshed Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides Brewshed's standard CBOR encoding configuration.
//
// Brewshed uses two serialization formats with a clear boundary:
//
//   - JSON for external interfaces: the HTTP API and the recipe file
//     partition on disk.
//   - CBOR for internal protocols: the telemetry stream socket
//     (subscribe and ingest frames) and durable point-batch payloads
//     in the session store.
//
// This package provides the shared CBOR encoding and decoding modes so
// that every package encodes identically without duplicating
// configuration. The encoder uses Core Deterministic Encoding (RFC 8949
// §4.2): sorted map keys, smallest integer encoding, no
// indefinite-length items. Same logical data always produces identical
// bytes, which makes stored batch checksums meaningful.
//
// For buffer-oriented operations (batch payloads):
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// For stream-oriented operations (the TCP event stream):
//
//	encoder := codec.NewEncoder(conn)
//	decoder := codec.NewDecoder(conn)
//
// # Struct Tag Rules
//
// The struct tag on a type documents its serialization format:
//
//   - `cbor` tag: the type is only ever serialized as CBOR (stream
//     handshake frames, stored batch payloads).
//   - `json` tag: the type may be serialized as BOTH JSON and CBOR.
//     fxamacker/cbor v2 reads `json` tags as fallback when `cbor` tags
//     are absent, so a single `json` tag controls field naming and
//     omitempty for both formats. Event payloads that ride the HTTP
//     API and the stream use `json` tags.
//
// Never use both `cbor` and `json` tags on the same field; the tag
// choice documents which contract the type participates in.
package codec
