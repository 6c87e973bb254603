// Copyright 2026 The Seed Authors
// SPDX-License-Identifier: Apache-2.0

// Package store is the SQLite persistence gateway. It implements
// session.Gateway: durable per-group message history with monotonic
// positions, user rows, and group membership.
//
// Append is idempotent by message ID. The router retries failed
// persists, so a retry that races a success must land on the existing
// row and report its original position rather than storing twice. The
// store runs the dedup lookup and the position assignment inside one
// immediate transaction to make that hold under concurrent writers.
//
// Payloads are encoded at rest: a one-byte compression tag (small
// payloads take lz4, larger ones zstd, incompressible ones neither),
// then, when the server holds a sealing key, an XChaCha20-Poly1305
// blob bound to the message ID. A keyed BLAKE3 digest of the plaintext
// rides alongside sealed rows and is verified on every fetch.
package store
