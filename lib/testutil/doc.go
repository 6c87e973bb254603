// Copyright 2026 The Seed Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for seed packages.
//
// The session core is concurrent end to end, so its tests spend most of
// their time waiting on channels: frames reaching an outbound queue,
// actors announcing state changes, registries emptying. [RequireReceive],
// [RequireSend], and [RequireClosed] wrap the select-with-deadline
// pattern so individual tests never hand-roll time.After safety valves.
// These helpers are the only sanctioned use of real wall-clock time in
// tests; everything else runs on clock.Fake.
//
// [SocketDir] returns a short-pathed temporary directory for Unix
// domain sockets, which cap sun_path at 108 bytes; deeply nested test
// tmpdirs overflow that limit. [UniqueID] hands out process-unique
// identifiers for groups, principals, and payloads so concurrent tests
// never collide on names.
//
// All helpers fail the test via t.Fatalf rather than returning errors.
package testutil
