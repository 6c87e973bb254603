// Copyright 2026 The Seed Authors
// SPDX-License-Identifier: Apache-2.0

package authtoken

import (
	"crypto/ed25519"
	"errors"
	"testing"
	"time"
)

func testKeypair(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	public, private, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	return public, private
}

var verifyInstant = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func mintedToken(t *testing.T, private ed25519.PrivateKey, mutate func(*Token)) []byte {
	t.Helper()
	token := &Token{
		Principal: "alice",
		Audience:  "seed-main",
		ID:        "a1b2c3d4e5f6a7b8",
		IssuedAt:  verifyInstant.Unix(),
		ExpiresAt: verifyInstant.Add(time.Hour).Unix(),
	}
	if mutate != nil {
		mutate(token)
	}
	raw, err := Mint(private, token)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	return raw
}

func TestMintAndVerify(t *testing.T) {
	public, private := testKeypair(t)

	raw := mintedToken(t, private, nil)
	if len(raw) <= signatureSize {
		t.Fatalf("token too short: %d bytes", len(raw))
	}

	verified, err := VerifyAt(public, raw, verifyInstant)
	if err != nil {
		t.Fatalf("VerifyAt: %v", err)
	}
	if verified.Principal != "alice" {
		t.Errorf("Principal = %q, want alice", verified.Principal)
	}
	if verified.Audience != "seed-main" {
		t.Errorf("Audience = %q, want seed-main", verified.Audience)
	}
	if verified.ID != "a1b2c3d4e5f6a7b8" {
		t.Errorf("ID = %q, want a1b2c3d4e5f6a7b8", verified.ID)
	}
}

func TestVerifyTamperedPayload(t *testing.T) {
	public, private := testKeypair(t)
	raw := mintedToken(t, private, nil)

	raw[0] ^= 0xFF

	if _, err := VerifyAt(public, raw, verifyInstant); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("tampered token: got %v, want ErrInvalidSignature", err)
	}
}

func TestVerifyWrongKey(t *testing.T) {
	_, private := testKeypair(t)
	otherPublic, _ := testKeypair(t)
	raw := mintedToken(t, private, nil)

	if _, err := VerifyAt(otherPublic, raw, verifyInstant); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("wrong key: got %v, want ErrInvalidSignature", err)
	}
}

func TestVerifyExpiredToken(t *testing.T) {
	public, private := testKeypair(t)
	raw := mintedToken(t, private, func(token *Token) {
		token.IssuedAt = verifyInstant.Add(-2 * time.Hour).Unix()
		token.ExpiresAt = verifyInstant.Add(-time.Hour).Unix()
	})

	if _, err := VerifyAt(public, raw, verifyInstant); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("expired token: got %v, want ErrTokenExpired", err)
	}
}

func TestVerifyExpiryBoundary(t *testing.T) {
	public, private := testKeypair(t)
	raw := mintedToken(t, private, nil)

	// Valid one second before expiry, rejected at the expiry instant.
	expiry := verifyInstant.Add(time.Hour)
	if _, err := VerifyAt(public, raw, expiry.Add(-time.Second)); err != nil {
		t.Fatalf("VerifyAt just before expiry: %v", err)
	}
	if _, err := VerifyAt(public, raw, expiry); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("at expiry instant: got %v, want ErrTokenExpired", err)
	}
}

func TestVerifyFutureIssuedAt(t *testing.T) {
	public, private := testKeypair(t)
	raw := mintedToken(t, private, func(token *Token) {
		token.IssuedAt = verifyInstant.Add(time.Hour).Unix()
		token.ExpiresAt = verifyInstant.Add(2 * time.Hour).Unix()
	})

	if _, err := VerifyAt(public, raw, verifyInstant); !errors.Is(err, ErrNotYetValid) {
		t.Errorf("future token: got %v, want ErrNotYetValid", err)
	}
}

func TestVerifyTooShort(t *testing.T) {
	public, _ := testKeypair(t)
	if _, err := VerifyAt(public, make([]byte, signatureSize), verifyInstant); !errors.Is(err, ErrTokenTooShort) {
		t.Errorf("short token: got %v, want ErrTokenTooShort", err)
	}
}

func TestVerifyForAudience(t *testing.T) {
	public, private := testKeypair(t)
	raw := mintedToken(t, private, nil)

	if _, err := VerifyForAudienceAt(public, raw, "seed-main", verifyInstant); err != nil {
		t.Fatalf("matching audience: %v", err)
	}
	if _, err := VerifyForAudienceAt(public, raw, "seed-staging", verifyInstant); !errors.Is(err, ErrAudienceMismatch) {
		t.Errorf("foreign audience: got %v, want ErrAudienceMismatch", err)
	}
}

func TestNewIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 64; i++ {
		id, err := NewID()
		if err != nil {
			t.Fatalf("NewID: %v", err)
		}
		if len(id) != 32 {
			t.Fatalf("ID length = %d, want 32 hex chars", len(id))
		}
		if seen[id] {
			t.Fatalf("duplicate ID %q", id)
		}
		seen[id] = true
	}
}

func TestKeypairSaveLoadRoundtrip(t *testing.T) {
	public, private := testKeypair(t)
	dir := t.TempDir()

	if err := SaveKeypair(dir, public, private); err != nil {
		t.Fatalf("SaveKeypair: %v", err)
	}
	loadedPublic, loadedPrivate, err := LoadKeypair(dir)
	if err != nil {
		t.Fatalf("LoadKeypair: %v", err)
	}
	if !public.Equal(loadedPublic) {
		t.Error("loaded public key differs")
	}
	if !private.Equal(loadedPrivate) {
		t.Error("loaded private key differs")
	}

	// A token minted before the round trip verifies after it.
	raw := mintedToken(t, loadedPrivate, nil)
	if _, err := VerifyAt(loadedPublic, raw, verifyInstant); err != nil {
		t.Fatalf("VerifyAt with loaded keys: %v", err)
	}
}
