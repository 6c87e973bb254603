// Copyright 2026 The Seed Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"bytes"
	"errors"
	"testing"

	"github.com/seed-foundation/seed/lib/secret"
)

func testSealer(t *testing.T, fill byte) *Sealer {
	t.Helper()
	key := bytes.Repeat([]byte{fill}, SealKeySize)
	buf, err := secret.NewFromBytes(key)
	if err != nil {
		t.Fatalf("NewFromBytes: %v", err)
	}
	sealer, err := NewSealer(buf)
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}
	t.Cleanup(func() { sealer.Close() })
	return sealer
}

func TestSealRoundTrip(t *testing.T) {
	sealer := testSealer(t, 0x42)
	plaintext := []byte("a message payload")
	identity := []byte("session-1:7")

	blob, err := sealer.Seal(plaintext, identity)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if len(blob) != len(plaintext)+sealedOverhead {
		t.Errorf("blob is %d bytes, want %d", len(blob), len(plaintext)+sealedOverhead)
	}

	opened, err := sealer.Open(blob, identity)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !bytes.Equal(opened, plaintext) {
		t.Errorf("opened = %q, want %q", opened, plaintext)
	}
}

func TestSealRejectsTampering(t *testing.T) {
	sealer := testSealer(t, 0x42)
	identity := []byte("session-1:7")
	blob, err := sealer.Seal([]byte("payload"), identity)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	t.Run("flipped ciphertext bit", func(t *testing.T) {
		tampered := bytes.Clone(blob)
		tampered[len(tampered)-1] ^= 0x01
		if _, err := sealer.Open(tampered, identity); err == nil {
			t.Error("Open succeeded on tampered blob")
		}
	})

	t.Run("wrong identity", func(t *testing.T) {
		if _, err := sealer.Open(blob, []byte("session-2:7")); err == nil {
			t.Error("Open succeeded under a different identity")
		}
	})

	t.Run("wrong key", func(t *testing.T) {
		other := testSealer(t, 0x99)
		if _, err := other.Open(blob, identity); err == nil {
			t.Error("Open succeeded under a different key")
		}
	})

	t.Run("bad version byte", func(t *testing.T) {
		tampered := bytes.Clone(blob)
		tampered[0] = 0x7f
		if _, err := sealer.Open(tampered, identity); err == nil {
			t.Error("Open succeeded on unknown version")
		}
	})

	t.Run("truncated", func(t *testing.T) {
		if _, err := sealer.Open(blob[:sealedOverhead-1], identity); err == nil {
			t.Error("Open succeeded on truncated blob")
		}
	})
}

func TestSealNoncesAreUnique(t *testing.T) {
	sealer := testSealer(t, 0x42)
	identity := []byte("id")
	a, err := sealer.Seal([]byte("same plaintext"), identity)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	b, err := sealer.Seal([]byte("same plaintext"), identity)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if bytes.Equal(a, b) {
		t.Error("two seals of the same plaintext produced identical blobs")
	}
}

func TestDigestIsKeyedAndDeterministic(t *testing.T) {
	sealer := testSealer(t, 0x42)
	other := testSealer(t, 0x99)
	plaintext := []byte("digest me")

	a := sealer.Digest(plaintext)
	b := sealer.Digest(plaintext)
	if !bytes.Equal(a, b) {
		t.Error("same sealer produced different digests for the same input")
	}
	if len(a) != DigestSize {
		t.Errorf("digest is %d bytes, want %d", len(a), DigestSize)
	}
	if bytes.Equal(a, other.Digest(plaintext)) {
		t.Error("different keys produced the same digest")
	}
}

func TestNewSealerRejectsBadKeyLength(t *testing.T) {
	buf, err := secret.NewFromBytes([]byte("short"))
	if err != nil {
		t.Fatalf("NewFromBytes: %v", err)
	}
	_, err = NewSealer(buf)
	if !errors.Is(err, ErrSealKey) {
		t.Fatalf("NewSealer error = %v, want ErrSealKey", err)
	}
}
