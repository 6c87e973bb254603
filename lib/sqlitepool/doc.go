// Copyright 2026 The Seed Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool opens SQLite connection pools with the seed
// standard pragmas. The message store is the only durable state in the
// process, so the settings favor a single busy writer with concurrent
// readers:
//
//   - journal_mode=WAL: readers never block the writer and vice versa.
//   - synchronous=NORMAL: commits survive a process crash; an OS crash
//     may lose the tail of the WAL, which clients recover from via
//     their history cursors.
//   - busy_timeout=5000: wait for the write lock instead of surfacing
//     SQLITE_BUSY to the router's retry loop.
//   - foreign_keys=ON: membership rows reference their group row and
//     the store relies on the engine to enforce it.
//   - temp_store=MEMORY, cache_size=-8192: keep transient work off
//     disk.
//
// The package is deliberately thin: pragmas, a fixed-size pool, and
// the raw zombiezen types. Callers write SQL with sqlitex.Execute and
// own their transactions. Connections are not safe for concurrent
// use; Take one per goroutine and Put it back.
package sqlitepool
