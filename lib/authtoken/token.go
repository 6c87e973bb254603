// Copyright 2026 The Seed Authors
// SPDX-License-Identifier: Apache-2.0

package authtoken

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/seed-foundation/seed/lib/codec"
)

// signatureSize is the fixed size of an Ed25519 signature.
const signatureSize = ed25519.SignatureSize // 64 bytes

// Token is the CBOR-encoded payload of a client credential.
type Token struct {
	// Principal is the identity this token authenticates
	// (e.g., "alice"). The server binds it to every session the
	// token opens.
	Principal string `cbor:"1,keyasint"`

	// Audience is the server name this token is scoped to. A token
	// minted for one deployment cannot be replayed against another.
	Audience string `cbor:"2,keyasint"`

	// ID is a unique token identifier (hex string), distinguishing
	// tokens minted for the same principal.
	ID string `cbor:"3,keyasint"`

	// IssuedAt is a Unix timestamp (seconds) of when the token was
	// minted.
	IssuedAt int64 `cbor:"4,keyasint"`

	// ExpiresAt is a Unix timestamp (seconds) after which the token
	// is rejected.
	ExpiresAt int64 `cbor:"5,keyasint"`
}

// Errors returned by Verify and related functions.
var (
	ErrTokenTooShort    = errors.New("authtoken: token too short for signature")
	ErrInvalidSignature = errors.New("authtoken: invalid Ed25519 signature")
	ErrTokenExpired     = errors.New("authtoken: token has expired")
	ErrNotYetValid      = errors.New("authtoken: token issued in the future")
	ErrAudienceMismatch = errors.New("authtoken: audience does not match")
)

// skewAllowance tolerates modest clock drift between the minting host
// and the verifying server when checking IssuedAt.
const skewAllowance = 2 * time.Minute

// NewID returns a fresh random token identifier (16 bytes, hex).
func NewID() (string, error) {
	var raw [16]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", fmt.Errorf("authtoken: generating token ID: %w", err)
	}
	return hex.EncodeToString(raw[:]), nil
}

// Mint signs token with the private key and returns the raw wire
// bytes: CBOR payload followed by the 64-byte signature.
func Mint(privateKey ed25519.PrivateKey, token *Token) ([]byte, error) {
	payload, err := codec.Marshal(token)
	if err != nil {
		return nil, fmt.Errorf("authtoken: encoding payload: %w", err)
	}

	signature := ed25519.Sign(privateKey, payload)

	result := make([]byte, len(payload)+signatureSize)
	copy(result, payload)
	copy(result[len(payload):], signature)
	return result, nil
}

// Verify splits the raw token bytes, checks the signature, decodes the
// payload, and checks validity at the current time.
func Verify(publicKey ed25519.PublicKey, tokenBytes []byte) (*Token, error) {
	return VerifyAt(publicKey, tokenBytes, time.Now())
}

// VerifyAt is Verify with an explicit time, for deterministic tests.
func VerifyAt(publicKey ed25519.PublicKey, tokenBytes []byte, now time.Time) (*Token, error) {
	if len(tokenBytes) <= signatureSize {
		return nil, ErrTokenTooShort
	}

	splitPoint := len(tokenBytes) - signatureSize
	payload := tokenBytes[:splitPoint]
	signature := tokenBytes[splitPoint:]

	if !ed25519.Verify(publicKey, payload, signature) {
		return nil, ErrInvalidSignature
	}

	var token Token
	if err := codec.Unmarshal(payload, &token); err != nil {
		return nil, fmt.Errorf("authtoken: decoding payload: %w", err)
	}

	if now.Unix() >= token.ExpiresAt {
		return nil, ErrTokenExpired
	}
	if token.IssuedAt > now.Add(skewAllowance).Unix() {
		return nil, ErrNotYetValid
	}

	return &token, nil
}

// VerifyForAudience combines Verify with an audience check. This is
// the standard server-side path: signature, expiry, then scope.
func VerifyForAudience(publicKey ed25519.PublicKey, tokenBytes []byte, audience string) (*Token, error) {
	return VerifyForAudienceAt(publicKey, tokenBytes, audience, time.Now())
}

// VerifyForAudienceAt is VerifyForAudience with an explicit time.
func VerifyForAudienceAt(publicKey ed25519.PublicKey, tokenBytes []byte, audience string, now time.Time) (*Token, error) {
	token, err := VerifyAt(publicKey, tokenBytes, now)
	if err != nil {
		return nil, err
	}
	if token.Audience != audience {
		return nil, fmt.Errorf("%w: got %q, want %q", ErrAudienceMismatch, token.Audience, audience)
	}
	return token, nil
}
