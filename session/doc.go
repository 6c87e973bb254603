// Copyright 2026 The Seed Authors
// SPDX-License-Identifier: Apache-2.0

// Package session implements the connection core: supervised per-
// connection actors, the shared registry that indexes them, and the
// router that moves messages between sessions and durable storage.
//
// The package is organized around the life of a connection:
//
//   - hub.go: the transport-facing entry points (connection
//     established, frame received, transport closed) and shutdown
//   - actor.go: one goroutine per connection owning its state machine
//     (Connecting → Authenticating → Active → Draining → Closed)
//   - registry.go: sharded concurrent index from session and principal
//     identifiers to live actors
//   - queue.go: the bounded outbound buffer between routers and each
//     session's transport writer
//   - router.go: destination resolution, group fan-out, and the
//     persistence write-through with bounded retry
//   - gateway.go: the narrow interfaces the core needs from the
//     outside world (durable store, credential validator, stream)
//
// Ownership is strict: an actor is the only writer of its own session
// state, the registry holds non-owning references, and every actor
// deregisters itself on its single exit path. Anything that needs to
// end a session from outside — transport teardown, operator action,
// hub shutdown — only signals the actor and lets it run its own
// drain-and-deregister sequence.
//
// All blocking points (inbound hand-off, queue push, gateway calls,
// retry backoff, timers) are bounded and driven by an injected
// clock.Clock, so the full state machine is testable without real
// time.
package session
