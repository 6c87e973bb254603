// Copyright 2026 The Seed Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/seed-foundation/seed/lib/clock"
	"github.com/seed-foundation/seed/lib/testutil"
	"github.com/seed-foundation/seed/wire"
)

func testEnvelope(id string) wire.Envelope {
	return wire.Envelope{Kind: wire.KindMessage, Message: &wire.Message{
		ID:      id,
		Session: "target",
		Payload: []byte(id),
	}}
}

func envID(t *testing.T, env wire.Envelope) string {
	t.Helper()
	if env.Message == nil {
		t.Fatalf("envelope has no message payload: %+v", env)
	}
	return env.Message.ID
}

func TestQueueFIFO(t *testing.T) {
	q := NewQueue(8, OverflowDropOldest, -1, clock.Real())

	for i := 0; i < 5; i++ {
		res, err := q.Push(testEnvelope(fmt.Sprintf("m%d", i)))
		if err != nil {
			t.Fatalf("Push %d: %v", i, err)
		}
		if res.Evicted != nil {
			t.Fatalf("Push %d evicted %s from a non-full queue", i, envID(t, *res.Evicted))
		}
	}
	if got := q.Len(); got != 5 {
		t.Fatalf("Len = %d, want 5", got)
	}

	for i := 0; i < 5; i++ {
		env, ok := q.Pop()
		if !ok {
			t.Fatalf("Pop %d: queue empty early", i)
		}
		if got, want := envID(t, env), fmt.Sprintf("m%d", i); got != want {
			t.Fatalf("Pop %d = %s, want %s", i, got, want)
		}
	}
	if _, ok := q.Pop(); ok {
		t.Fatal("Pop on drained queue returned a value")
	}
}

func TestQueueDropOldest(t *testing.T) {
	q := NewQueue(3, OverflowDropOldest, -1, clock.Real())

	for i := 0; i < 3; i++ {
		if _, err := q.Push(testEnvelope(fmt.Sprintf("m%d", i))); err != nil {
			t.Fatalf("Push %d: %v", i, err)
		}
	}

	res, err := q.Push(testEnvelope("m3"))
	if err != nil {
		t.Fatalf("overflow Push: %v", err)
	}
	if res.Evicted == nil {
		t.Fatal("overflow Push evicted nothing")
	}
	if got := envID(t, *res.Evicted); got != "m0" {
		t.Fatalf("evicted %s, want the oldest m0", got)
	}

	want := []string{"m1", "m2", "m3"}
	for i, w := range want {
		env, ok := q.Pop()
		if !ok {
			t.Fatalf("Pop %d: queue empty early", i)
		}
		if got := envID(t, env); got != w {
			t.Fatalf("Pop %d = %s, want %s", i, got, w)
		}
	}
}

func TestQueueDisconnectPolicy(t *testing.T) {
	q := NewQueue(2, OverflowDisconnect, -1, clock.Real())

	for i := 0; i < 2; i++ {
		if _, err := q.Push(testEnvelope(fmt.Sprintf("m%d", i))); err != nil {
			t.Fatalf("Push %d: %v", i, err)
		}
	}
	if _, err := q.Push(testEnvelope("m2")); !errors.Is(err, ErrQueueOverflow) {
		t.Fatalf("overflow Push error = %v, want ErrQueueOverflow", err)
	}

	// The buffered envelopes are untouched.
	env, ok := q.Pop()
	if !ok || envID(t, env) != "m0" {
		t.Fatalf("Pop after rejected push = %v %v, want m0", env, ok)
	}
}

func TestQueuePushWaitsForDrain(t *testing.T) {
	q := NewQueue(1, OverflowDisconnect, 5*time.Second, clock.Real())
	if _, err := q.Push(testEnvelope("m0")); err != nil {
		t.Fatalf("Push: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := q.Push(testEnvelope("m1"))
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	if env, ok := q.Pop(); !ok || envID(t, env) != "m0" {
		t.Fatalf("Pop = %v %v, want m0", env, ok)
	}

	if err := testutil.RequireReceive(t, done, 5*time.Second, "blocked push"); err != nil {
		t.Fatalf("waiting Push: %v", err)
	}
	if env, ok := q.Pop(); !ok || envID(t, env) != "m1" {
		t.Fatalf("Pop = %v %v, want m1", env, ok)
	}
}

func TestQueuePushTimeoutAppliesPolicy(t *testing.T) {
	clk := clock.Fake(time.Unix(1700000000, 0))
	q := NewQueue(1, OverflowDropOldest, 50*time.Millisecond, clk)
	if _, err := q.Push(testEnvelope("m0")); err != nil {
		t.Fatalf("Push: %v", err)
	}

	type result struct {
		res PushResult
		err error
	}
	done := make(chan result, 1)
	go func() {
		res, err := q.Push(testEnvelope("m1"))
		done <- result{res, err}
	}()

	// Nobody drains: the push waits on its timer, then evicts.
	clk.WaitForTimers(1)
	clk.Advance(50 * time.Millisecond)

	got := testutil.RequireReceive(t, done, 5*time.Second, "timed-out push")
	if got.err != nil {
		t.Fatalf("Push after timeout: %v", got.err)
	}
	if got.res.Evicted == nil || envID(t, *got.res.Evicted) != "m0" {
		t.Fatalf("evicted = %+v, want m0", got.res.Evicted)
	}
	if env, ok := q.Pop(); !ok || envID(t, env) != "m1" {
		t.Fatalf("Pop = %v %v, want m1", env, ok)
	}
}

func TestQueueCloseRejectsPushAndUnblocksWaiters(t *testing.T) {
	q := NewQueue(1, OverflowDisconnect, time.Minute, clock.Real())
	if _, err := q.Push(testEnvelope("m0")); err != nil {
		t.Fatalf("Push: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := q.Push(testEnvelope("m1"))
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)

	q.Close()
	if err := testutil.RequireReceive(t, done, 5*time.Second, "waiting push"); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("waiting Push error = %v, want ErrQueueClosed", err)
	}
	if _, err := q.Push(testEnvelope("m2")); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("Push after Close error = %v, want ErrQueueClosed", err)
	}

	// Buffered envelopes stay poppable for the drain.
	if env, ok := q.Pop(); !ok || envID(t, env) != "m0" {
		t.Fatalf("Pop after Close = %v %v, want m0", env, ok)
	}
	if _, ok := q.Pop(); ok {
		t.Fatal("Pop returned a value after drain")
	}

	q.Close()
}

func TestQueueReadySignal(t *testing.T) {
	q := NewQueue(4, OverflowDropOldest, -1, clock.Real())

	select {
	case <-q.Ready():
		t.Fatal("Ready fired on an empty queue")
	default:
	}

	if _, err := q.Push(testEnvelope("m0")); err != nil {
		t.Fatalf("Push: %v", err)
	}
	testutil.RequireReceive(t, q.Ready(), 5*time.Second, "ready signal")
}
