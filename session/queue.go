// Copyright 2026 The Seed Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"sync"
	"time"

	"github.com/seed-foundation/seed/lib/clock"
	"github.com/seed-foundation/seed/wire"
)

// Queue is one session's bounded outbound buffer: many producers (the
// router, the owning actor's replies and replays), one consumer (the
// owning actor's drain). FIFO order of everything successfully pushed
// is preserved.
//
// A push against a full queue waits up to the push timeout for the
// drain side, then applies the overflow policy: drop-oldest evicts the
// head and reports it to the caller, disconnect rejects the push with
// ErrQueueOverflow.
type Queue struct {
	mu     sync.Mutex
	buf    []wire.Envelope
	head   int
	count  int
	closed bool

	policy      OverflowPolicy
	pushTimeout time.Duration
	clk         clock.Clock

	// notEmpty and notFull are capacity-1 edge signals; closedCh
	// unblocks waiting pushers on Close.
	notEmpty chan struct{}
	notFull  chan struct{}
	closedCh chan struct{}
}

// PushResult reports the side effect of a successful push.
type PushResult struct {
	// Evicted is the envelope displaced by the drop-oldest policy,
	// nil when nothing was displaced. The caller owns recording the
	// eviction as a Dropped outcome.
	Evicted *wire.Envelope
}

// NewQueue builds a queue with the given capacity and overflow
// behavior. Capacity must be positive.
func NewQueue(capacity int, policy OverflowPolicy, pushTimeout time.Duration, clk clock.Clock) *Queue {
	if capacity <= 0 {
		panic("session: queue capacity must be positive")
	}
	return &Queue{
		buf:         make([]wire.Envelope, capacity),
		policy:      policy,
		pushTimeout: pushTimeout,
		clk:         clk,
		notEmpty:    make(chan struct{}, 1),
		notFull:     make(chan struct{}, 1),
		closedCh:    make(chan struct{}),
	}
}

// Push enqueues env, waiting briefly for space when full, then
// applying the overflow policy. Returns ErrQueueClosed after Close,
// ErrQueueOverflow under the disconnect policy.
func (q *Queue) Push(env wire.Envelope) (PushResult, error) {
	var timeoutCh <-chan time.Time
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return PushResult{}, ErrQueueClosed
		}
		if q.count < len(q.buf) {
			q.appendLocked(env)
			q.mu.Unlock()
			signal(q.notEmpty)
			return PushResult{}, nil
		}
		q.mu.Unlock()

		if q.pushTimeout > 0 && timeoutCh == nil {
			timeoutCh = q.clk.After(q.pushTimeout)
		}
		if timeoutCh != nil {
			select {
			case <-q.notFull:
				continue
			case <-q.closedCh:
				return PushResult{}, ErrQueueClosed
			case <-timeoutCh:
			}
		}

		// The wait is over (or disabled): apply the policy.
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return PushResult{}, ErrQueueClosed
		}
		if q.count < len(q.buf) {
			// The drain side made room between timeout and relock.
			q.appendLocked(env)
			q.mu.Unlock()
			signal(q.notEmpty)
			return PushResult{}, nil
		}
		if q.policy == OverflowDisconnect {
			q.mu.Unlock()
			return PushResult{}, ErrQueueOverflow
		}
		evicted := q.popLocked()
		q.appendLocked(env)
		q.mu.Unlock()
		signal(q.notEmpty)
		return PushResult{Evicted: &evicted}, nil
	}
}

// Pop removes the oldest envelope. The second return is false on an
// empty queue. Pop keeps working on buffered items after Close so the
// drain can flush.
func (q *Queue) Pop() (wire.Envelope, bool) {
	q.mu.Lock()
	if q.count == 0 {
		q.mu.Unlock()
		return wire.Envelope{}, false
	}
	env := q.popLocked()
	remaining := q.count
	q.mu.Unlock()

	signal(q.notFull)
	if remaining > 0 {
		signal(q.notEmpty)
	}
	return env, true
}

// Ready signals (capacity 1, coalescing) whenever the queue may have
// become non-empty. The owning actor selects on it and then drains
// with Pop until false.
func (q *Queue) Ready() <-chan struct{} {
	return q.notEmpty
}

// Close rejects all further pushes and wakes any waiting pusher.
// Buffered envelopes stay poppable for the drain. Idempotent.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()
	close(q.closedCh)
	signal(q.notEmpty)
}

// Len returns the number of buffered envelopes.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Cap returns the configured capacity.
func (q *Queue) Cap() int {
	return len(q.buf)
}

func (q *Queue) appendLocked(env wire.Envelope) {
	q.buf[(q.head+q.count)%len(q.buf)] = env
	q.count++
}

func (q *Queue) popLocked() wire.Envelope {
	env := q.buf[q.head]
	q.buf[q.head] = wire.Envelope{}
	q.head = (q.head + 1) % len(q.buf)
	q.count--
	return env
}

// signal performs a non-blocking edge send on a capacity-1 channel.
func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
