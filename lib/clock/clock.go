// Copyright 2026 The Seed Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Clock is the time surface used by the session core. Production code
// injects Real(); tests inject Fake() and advance it explicitly.
//
// The method set is deliberately the subset the core actually uses:
// deadline timers that participate in select loops (NewTimer), periodic
// ticks (NewTicker), one-shot waits (After), and the current instant
// (Now). Code that needs time should take a Clock parameter or carry
// one in its config struct.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the fire time once d has
	// elapsed. A non-positive d fires immediately.
	After(d time.Duration) <-chan time.Time

	// NewTimer returns a Timer whose C fires once after d. The timer
	// can be stopped and re-armed; the session actor uses this for its
	// auth and idle deadlines.
	NewTimer(d time.Duration) *Timer

	// NewTicker returns a Ticker delivering ticks on C every d. Panics
	// if d <= 0, matching time.NewTicker.
	NewTicker(d time.Duration) *Ticker

	// Sleep blocks the calling goroutine for at least d.
	Sleep(d time.Duration)
}

// Timer is a one-shot deadline. C has capacity 1; a fired timer whose
// channel was never drained holds exactly one stale value, so callers
// that Reset must drain C first, same as time.Timer.
type Timer struct {
	C <-chan time.Time

	stop  func() bool
	reset func(time.Duration) bool
}

// Stop disarms the timer. It reports whether the call disarmed a
// pending fire; false means the timer already fired or was stopped.
// Stop does not drain C.
func (t *Timer) Stop() bool { return t.stop() }

// Reset re-arms the timer to fire after d. It reports whether the
// timer was still pending when reset.
func (t *Timer) Reset(d time.Duration) bool { return t.reset(d) }

// Ticker delivers periodic ticks on C. C has capacity 1; ticks the
// consumer misses are dropped, not queued.
type Ticker struct {
	C <-chan time.Time

	stop  func()
	reset func(time.Duration)
}

// Stop turns the ticker off. C is not closed and never receives again.
func (t *Ticker) Stop() { t.stop() }

// Reset changes the tick interval and restarts the cycle; the next
// tick arrives a full new interval from now.
func (t *Ticker) Reset(d time.Duration) { t.reset(d) }
