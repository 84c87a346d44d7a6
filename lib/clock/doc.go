// Copyright 2026 The Brewshed Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction for testability.
//
// Production code accepts a Clock interface instead of calling time.Now,
// time.After, time.NewTicker, or time.Sleep directly. Real() provides
// standard library behavior; Fake() provides a deterministic clock that
// advances only when Advance is called.
//
// Structs that use time carry a Clock field:
//
//	type Manager struct {
//	    clock clock.Clock
//	    // ...
//	}
//
// In tests:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	m := &Manager{clock: c}
//	// ... start goroutines ...
//	c.WaitForTimers(1)
//	c.Advance(30 * time.Second)
//
// WaitForTimers blocks until the expected number of timers are
// registered, eliminating the race between timer registration and time
// advancement that plagues tests synchronizing with time.Sleep.
package clock
