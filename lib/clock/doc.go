// Copyright 2026 The Seed Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts wall-clock time so session timeouts are
// testable.
//
// The session core leans on timers for everything that can go wrong
// silently: authentication windows, idle disconnects, drain grace
// periods, heartbeat cadence, queue push waits, and persistence retry
// backoff. All of that code accepts a Clock instead of calling the time
// package, so tests drive the exact moment a deadline fires.
//
// Production wiring uses Real(); tests use Fake():
//
//	clk := clock.Fake(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
//	hub := session.NewHub(session.HubConfig{Clock: clk, ...})
//	// ... establish a connection, which arms the auth timer ...
//	clk.WaitForTimers(1)
//	clk.Advance(cfg.AuthWindow) // auth deadline fires deterministically
//
// WaitForTimers closes the race between a goroutine arming a timer and
// the test advancing time past it; a test that calls Advance before the
// timer exists advances nothing.
package clock
