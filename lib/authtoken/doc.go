// Copyright 2026 The Seed Authors
// SPDX-License-Identifier: Apache-2.0

// Package authtoken implements Ed25519-signed bearer tokens for
// authenticating clients to a seed server.
//
// Clients present a token in their first envelope after connecting.
// The server verifies it cryptographically — no callout, no shared
// session store — which keeps the authentication window short and the
// validator deterministic under test.
//
// # Wire format
//
// A token is raw bytes: CBOR-encoded payload followed by a 64-byte
// Ed25519 signature over the payload bytes.
//
//	[CBOR payload bytes] [64-byte Ed25519 signature]
//
// The split point is always len(token) - 64. No header, no length
// prefix — the algorithm is fixed and the signature size is constant.
// Transports that need text (JSON fields, CLI flags) base64 the whole
// thing.
//
// # Lifecycle
//
//   - An operator mints tokens with seed-token, scoped to a principal
//     and an audience (the server name) with a bounded TTL
//   - Clients present the token on connect; the server checks the
//     signature, expiry, and audience
//   - Expired tokens are rejected unconditionally; there is no refresh
//     channel — clients reconnect with a fresh token
//
// The package depends on crypto/ed25519 and lib/codec only.
package authtoken
