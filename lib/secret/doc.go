// Copyright 2026 The Seed Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret holds key material in memory the Go runtime cannot
// leak: an anonymous mmap region locked into RAM (mlock, no swap) and
// excluded from core dumps (MADV_DONTDUMP). The garbage collector
// never sees the region, so it cannot copy the secret around the heap.
//
// The seed server keeps its payload sealing key in a [Buffer] for the
// life of the process; [ReadFromPath] loads it from a key file or
// stdin. Close zeroes the region before releasing it; any access after
// Close panics. Close is idempotent.
package secret
