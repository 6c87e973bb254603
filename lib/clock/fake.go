// Copyright 2026 The Seed Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake returns a FakeClock frozen at initial. Time moves only through
// Advance; every timer, ticker, and sleep registers a waiter that fires
// when the clock passes its deadline.
//
// FakeClock is safe for concurrent use.
func Fake(initial time.Time) *FakeClock {
	c := &FakeClock{current: initial}
	c.armed = sync.NewCond(&c.mu)
	return c
}

// FakeClock is a deterministic Clock for tests. The typical pattern is
// to start the code under test, WaitForTimers until it has armed the
// deadline of interest, then Advance past it.
type FakeClock struct {
	mu      sync.Mutex
	current time.Time
	waiters []*waiter
	armed   *sync.Cond
}

// waiter is one pending timer, ticker, or sleep.
type waiter struct {
	deadline time.Time
	ch       chan time.Time

	// interval is non-zero for tickers; the waiter re-arms at
	// deadline + interval after each fire.
	interval time.Duration

	stopped bool
	fired   bool
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// After returns a channel receiving once the clock advances d past the
// current instant. Non-positive d fires immediately.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- c.current
		return ch
	}
	c.waiters = append(c.waiters, &waiter{deadline: c.current.Add(d), ch: ch})
	c.armed.Broadcast()
	return ch
}

// NewTimer returns a one-shot Timer firing when the clock advances past
// now + d. Stop and Reset behave like time.Timer: Stop reports whether
// a fire was pending, Reset re-arms even after a fire.
func (c *FakeClock) NewTimer(d time.Duration) *Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	w := &waiter{ch: make(chan time.Time, 1)}
	if d <= 0 {
		w.fired = true
		w.ch <- c.current
	} else {
		w.deadline = c.current.Add(d)
		c.waiters = append(c.waiters, w)
		c.armed.Broadcast()
	}

	return &Timer{
		C: w.ch,
		stop: func() bool {
			c.mu.Lock()
			defer c.mu.Unlock()
			if w.stopped || w.fired {
				return false
			}
			w.stopped = true
			return true
		},
		reset: func(d time.Duration) bool {
			c.mu.Lock()
			defer c.mu.Unlock()
			pending := !w.stopped && !w.fired
			w.deadline = c.current.Add(d)
			w.stopped = false
			w.fired = false
			if !pending {
				// The fire removed it from the pending list.
				c.waiters = append(c.waiters, w)
				c.armed.Broadcast()
			}
			return pending
		},
	}
}

// NewTicker returns a Ticker firing every d of advanced time. Panics if
// d <= 0.
func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive ticker interval")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	w := &waiter{
		deadline: c.current.Add(d),
		ch:       make(chan time.Time, 1),
		interval: d,
	}
	c.waiters = append(c.waiters, w)
	c.armed.Broadcast()

	return &Ticker{
		C: w.ch,
		stop: func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			w.stopped = true
		},
		reset: func(d time.Duration) {
			c.mu.Lock()
			defer c.mu.Unlock()
			w.interval = d
			w.deadline = c.current.Add(d)
			w.stopped = false
		},
	}
}

// Sleep blocks until the clock advances past now + d.
func (c *FakeClock) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	<-c.After(d)
}

// Advance moves the clock forward by d and fires every waiter whose
// deadline falls within the new time, in deadline order. Channel sends
// are non-blocking: a waiter whose capacity-1 channel is already full
// drops the tick, matching time.Ticker.
//
// Tickers fire once per elapsed interval; an Advance spanning three
// intervals produces up to three ticks (bounded by the channel buffer).
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.current = c.current.Add(d)
	target := c.current
	c.mu.Unlock()

	// Loop because a rescheduled ticker deadline may still fall
	// within target.
	for {
		expired := c.takeExpired(target)
		if len(expired) == 0 {
			return
		}
		sort.Slice(expired, func(i, j int) bool {
			return expired[i].deadline.Before(expired[j].deadline)
		})
		for _, w := range expired {
			select {
			case w.ch <- target:
			default:
			}
		}
	}
}

// takeExpired removes waiters due at or before target from the pending
// list, re-arming tickers and marking one-shots fired.
func (c *FakeClock) takeExpired(target time.Time) []*waiter {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expired, pending []*waiter
	for _, w := range c.waiters {
		switch {
		case w.stopped:
		case !w.deadline.After(target):
			expired = append(expired, w)
		default:
			pending = append(pending, w)
		}
	}
	for _, w := range expired {
		if w.interval > 0 {
			w.deadline = w.deadline.Add(w.interval)
			pending = append(pending, w)
		} else {
			w.fired = true
		}
	}
	c.waiters = pending
	return expired
}

// WaitForTimers blocks until at least n waiters are armed. Call this
// before Advance when the code under test arms its timers from another
// goroutine.
func (c *FakeClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.pendingLocked() < n {
		c.armed.Wait()
	}
}

// PendingCount returns the number of armed waiters.
func (c *FakeClock) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pendingLocked()
}

func (c *FakeClock) pendingLocked() int {
	n := 0
	for _, w := range c.waiters {
		if !w.stopped {
			n++
		}
	}
	return n
}
