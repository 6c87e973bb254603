// Copyright 2026 The Seed Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport adapts WebSocket connections onto the session
// core. The adapter owns the HTTP upgrade, the per-connection read
// pump, and transport-level keepalive (ping/pong with read
// deadlines); the core never sees any of that, only whole frames and
// stream closure.
//
// Backpressure is the read pump: hub.Frame blocks while a session's
// inbox is full, which stops reads from that connection and lets TCP
// flow control push back on the client. One slow session never stalls
// another; each connection has its own pump goroutine.
package transport
