// Copyright 2026 The Seed Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"sync/atomic"
)

var uniqueCounter atomic.Uint64

// UniqueID returns "prefix-N" with a process-wide monotonic N. Use it
// for group names, principals, and payload bodies that concurrent
// tests must be able to tell apart.
//
//	group := testutil.UniqueID("group")   // "group-1", "group-2", ...
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, uniqueCounter.Add(1))
}
