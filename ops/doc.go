// Copyright 2026 The Seed Authors
// SPDX-License-Identifier: Apache-2.0

// Package ops is the local operational surface: a CBOR
// request-response protocol on a Unix socket, one request per
// connection. It is for operators and tooling on the same host, not
// for chat clients; nothing here requires the wire protocol or a
// WebSocket.
//
// Actions: "status" (uptime, session states, store row counts),
// "sessions" (a snapshot of every live session), and "close-session"
// (force-close one session by id).
package ops
