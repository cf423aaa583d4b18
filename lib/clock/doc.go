// Copyright 2026 The Keyfold Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts time so that components can be tested
// deterministically.
//
// Code that reads the current time or schedules periodic work accepts a
// Clock instead of calling the time package directly. Production wiring
// passes Real(); tests pass Fake(start), register their goroutines'
// timers, and move time explicitly:
//
//	c := clock.Fake(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
//	svc := newService(c)
//	c.WaitForTimers(1)              // heartbeat ticker is registered
//	c.Advance(10 * time.Second)     // fire it, no real sleeping
//
// WaitForTimers is the synchronization point that removes the race
// between a goroutine creating its ticker and the test advancing time.
package clock
