// Copyright 2026 The Seed Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"fmt"
	"time"
)

// OverflowPolicy decides what a full outbound queue does with a push
// that outlasted the push timeout.
type OverflowPolicy uint8

const (
	// OverflowDropOldest evicts the oldest queued envelope to make
	// room. The eviction is recorded as a Dropped outcome; slow
	// consumers lose history but keep their connection.
	OverflowDropOldest OverflowPolicy = iota + 1

	// OverflowDisconnect rejects the push and force-closes the
	// session. Slow consumers lose the connection but never a
	// message silently.
	OverflowDisconnect
)

func (p OverflowPolicy) String() string {
	switch p {
	case OverflowDropOldest:
		return "drop_oldest"
	case OverflowDisconnect:
		return "disconnect"
	}
	return "unknown"
}

// ParseOverflowPolicy maps the configuration spelling to a policy.
func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch s {
	case "drop_oldest", "":
		return OverflowDropOldest, nil
	case "disconnect":
		return OverflowDisconnect, nil
	}
	return 0, fmt.Errorf("unknown overflow policy %q (want drop_oldest or disconnect)", s)
}

// Config carries the session core's tunables. The zero value is
// usable: NewHub fills every zero field from DefaultConfig.
type Config struct {
	// AuthWindow bounds the time from acceptance to a positive
	// validator decision.
	AuthWindow time.Duration

	// IdleWindow closes sessions with no inbound traffic. Client
	// heartbeats count as traffic.
	IdleWindow time.Duration

	// DrainGrace bounds the outbound flush during Draining.
	// Non-positive skips the flush entirely.
	DrainGrace time.Duration

	// HeartbeatInterval is the cadence of server-initiated
	// heartbeats on Active sessions.
	HeartbeatInterval time.Duration

	// QueueCapacity bounds each session's outbound queue.
	QueueCapacity int

	// QueuePushTimeout is how long a push waits for the drain side
	// before the overflow policy applies. Non-positive applies the
	// policy immediately.
	QueuePushTimeout time.Duration

	// OverflowPolicy is the full-queue behavior.
	OverflowPolicy OverflowPolicy

	// MaxFrameBytes bounds one wire frame in either direction.
	MaxFrameBytes int

	// PersistAttempts bounds retries of the persistence write,
	// including the first attempt.
	PersistAttempts int

	// PersistBackoffBase is the first retry delay; each retry
	// doubles it up to PersistBackoffMax.
	PersistBackoffBase time.Duration
	PersistBackoffMax  time.Duration

	// PersistCallTimeout bounds each individual gateway call.
	PersistCallTimeout time.Duration

	// ReplayBatch is the page size for history replay on subscribe.
	ReplayBatch int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		AuthWindow:         10 * time.Second,
		IdleWindow:         5 * time.Minute,
		DrainGrace:         5 * time.Second,
		HeartbeatInterval:  30 * time.Second,
		QueueCapacity:      256,
		QueuePushTimeout:   50 * time.Millisecond,
		OverflowPolicy:     OverflowDropOldest,
		MaxFrameBytes:      1 << 20,
		PersistAttempts:    3,
		PersistBackoffBase: 100 * time.Millisecond,
		PersistBackoffMax:  5 * time.Second,
		PersistCallTimeout: 5 * time.Second,
		ReplayBatch:        100,
	}
}

// withDefaults fills zero fields from DefaultConfig. Explicit
// non-positive durations that mean "disabled" (DrainGrace,
// QueuePushTimeout) survive only as zero from an explicit negative;
// zero means unset here because the zero Config must behave sanely.
func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.AuthWindow == 0 {
		c.AuthWindow = defaults.AuthWindow
	}
	if c.IdleWindow == 0 {
		c.IdleWindow = defaults.IdleWindow
	}
	if c.DrainGrace == 0 {
		c.DrainGrace = defaults.DrainGrace
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = defaults.HeartbeatInterval
	}
	if c.QueueCapacity == 0 {
		c.QueueCapacity = defaults.QueueCapacity
	}
	if c.QueuePushTimeout == 0 {
		c.QueuePushTimeout = defaults.QueuePushTimeout
	}
	if c.OverflowPolicy == 0 {
		c.OverflowPolicy = defaults.OverflowPolicy
	}
	if c.MaxFrameBytes == 0 {
		c.MaxFrameBytes = defaults.MaxFrameBytes
	}
	if c.PersistAttempts == 0 {
		c.PersistAttempts = defaults.PersistAttempts
	}
	if c.PersistBackoffBase == 0 {
		c.PersistBackoffBase = defaults.PersistBackoffBase
	}
	if c.PersistBackoffMax == 0 {
		c.PersistBackoffMax = defaults.PersistBackoffMax
	}
	if c.PersistCallTimeout == 0 {
		c.PersistCallTimeout = defaults.PersistCallTimeout
	}
	if c.ReplayBatch == 0 {
		c.ReplayBatch = defaults.ReplayBatch
	}
	return c
}
