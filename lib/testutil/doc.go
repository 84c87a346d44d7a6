// Copyright 2026 The Brewshed Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for Brewshed packages.
//
// [RequireReceive], [RequireSend], and [RequireClosed] encapsulate the
// timeout safety valve pattern (select with time.After fallback) so
// that individual tests do not need direct time.After calls. These are
// the only place in the test suite where real wall-clock timeouts are
// used.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
//
// This package has no Brewshed-internal dependencies.
package testutil
