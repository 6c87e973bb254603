// Copyright 2026 The Seed Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/seed-foundation/seed/lib/secret"
)

// SealKeySize is the required length of the sealing master key.
const SealKeySize = 32

// sealedBlobVersion is prepended to every sealed payload and included
// in the AAD, so tampering with it fails authentication. Bump only
// with a format change.
const sealedBlobVersion byte = 0x01

// sealedOverhead is the fixed per-payload cost of sealing:
// 1 (version) + 24 (XChaCha20 nonce) + 16 (Poly1305 tag).
const sealedOverhead = 1 + chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead

// DigestSize is the length of the keyed plaintext digest stored with
// sealed rows.
const DigestSize = 32

// HKDF info strings separating the two subkeys derived from the
// master key. Changing either invalidates every sealed row.
var (
	hkdfInfoPayload = []byte("seed.store.payload.v1")
	hkdfInfoDigest  = []byte("seed.store.digest.v1")
)

// ErrSealKey reports unusable sealing key material.
var ErrSealKey = errors.New("store: bad sealing key")

// ErrDigestMismatch reports a stored digest that does not match the
// recovered plaintext. Either the row was corrupted outside the AEAD
// envelope or the digest subkey changed.
var ErrDigestMismatch = errors.New("store: payload digest mismatch")

// Sealer holds the payload and digest subkeys derived from a master
// sealing key and seals payloads at rest. Safe for concurrent use.
type Sealer struct {
	payloadKey *secret.Buffer
	digestKey  *secret.Buffer
}

// NewSealer derives the payload and digest subkeys from masterKey and
// takes ownership of it: the buffer is closed before NewSealer
// returns, successfully or not. The master key must be exactly
// SealKeySize bytes.
func NewSealer(masterKey *secret.Buffer) (*Sealer, error) {
	defer masterKey.Close()

	if masterKey.Len() != SealKeySize {
		return nil, fmt.Errorf("%w: key is %d bytes, need %d", ErrSealKey, masterKey.Len(), SealKeySize)
	}

	payloadKey, err := deriveSubkey(masterKey.Bytes(), hkdfInfoPayload)
	if err != nil {
		return nil, err
	}
	digestKey, err := deriveSubkey(masterKey.Bytes(), hkdfInfoDigest)
	if err != nil {
		payloadKey.Close()
		return nil, err
	}
	return &Sealer{payloadKey: payloadKey, digestKey: digestKey}, nil
}

// Close zeroes and releases both subkeys. Seal and Open panic after
// Close. Idempotent.
func (s *Sealer) Close() error {
	err := s.payloadKey.Close()
	if cerr := s.digestKey.Close(); err == nil {
		err = cerr
	}
	return err
}

// Seal encrypts plaintext with XChaCha20-Poly1305 and returns
//
//	[version: 1][nonce: 24][ciphertext+tag]
//
// The version byte and identity are the AAD: a sealed blob copied
// onto another message row fails to open.
func (s *Sealer) Seal(plaintext []byte, identity []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(s.payloadKey.Bytes())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSealKey, err)
	}

	var nonce [chacha20poly1305.NonceSizeX]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	blob := make([]byte, 1+chacha20poly1305.NonceSizeX, sealedOverhead+len(plaintext))
	blob[0] = sealedBlobVersion
	copy(blob[1:], nonce[:])
	return aead.Seal(blob, nonce[:], plaintext, sealAAD(sealedBlobVersion, identity)), nil
}

// Open reverses Seal. Authentication failure means a wrong key, a
// tampered blob, or a blob bound to a different message.
func (s *Sealer) Open(blob []byte, identity []byte) ([]byte, error) {
	if len(blob) < sealedOverhead {
		return nil, fmt.Errorf("sealed payload is %d bytes, minimum is %d", len(blob), sealedOverhead)
	}
	if blob[0] != sealedBlobVersion {
		return nil, fmt.Errorf("sealed payload version %d is not supported", blob[0])
	}

	aead, err := chacha20poly1305.NewX(s.payloadKey.Bytes())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSealKey, err)
	}

	nonce := blob[1 : 1+chacha20poly1305.NonceSizeX]
	ciphertext := blob[1+chacha20poly1305.NonceSizeX:]
	plaintext, err := aead.Open(nil, nonce, ciphertext, sealAAD(blob[0], identity))
	if err != nil {
		return nil, fmt.Errorf("opening sealed payload: %w", err)
	}
	return plaintext, nil
}

// Digest computes the keyed BLAKE3 digest of a plaintext payload.
func (s *Sealer) Digest(plaintext []byte) []byte {
	hasher, err := blake3.NewKeyed(s.digestKey.Bytes())
	if err != nil {
		// NewKeyed fails only on a wrong key length, which NewSealer
		// rules out.
		panic("store: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(plaintext)
	return hasher.Sum(nil)[:DigestSize]
}

// deriveSubkey is HKDF-SHA256 with nil salt: the master key is random
// key material, so the extract phase with a zero key suffices per
// RFC 5869.
func deriveSubkey(masterKey []byte, info []byte) (*secret.Buffer, error) {
	reader := hkdf.New(sha256.New, masterKey, nil, info)
	derived := make([]byte, SealKeySize)
	if _, err := io.ReadFull(reader, derived); err != nil {
		secret.Zero(derived)
		return nil, fmt.Errorf("%w: deriving subkey: %v", ErrSealKey, err)
	}
	return secret.NewFromBytes(derived)
}

func sealAAD(version byte, identity []byte) []byte {
	aad := make([]byte, 1+len(identity))
	aad[0] = version
	copy(aad[1:], identity)
	return aad
}
