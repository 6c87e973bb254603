// Copyright 2026 The Seed Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"os"
	"testing"
)

// SocketDir creates a short-pathed temporary directory for Unix domain
// sockets and removes it when the test completes. Unix sockets cap the
// path at 108 bytes (sun_path in sockaddr_un); t.TempDir() under nested
// build tmpdirs can exceed that, so this creates directly in /tmp.
func SocketDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("/tmp", "seed-test-*")
	if err != nil {
		t.Fatalf("creating socket directory: %v", err)
	}
	t.Cleanup(func() {
		_ = os.RemoveAll(dir)
	})
	return dir
}
