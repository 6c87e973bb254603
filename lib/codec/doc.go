// Copyright 2026 The Seed Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec centralizes seed's CBOR configuration.
//
// Two subsystems speak CBOR: credential tokens (lib/authtoken), where
// the signed payload must encode identically on every node, and the
// operational socket (ops), which streams one request and one response
// per connection. Both go through this package so the deterministic
// encoding options live in exactly one place.
//
// Encoding uses Core Deterministic Encoding (RFC 8949 §4.2): sorted map
// keys, smallest integer widths, no indefinite-length items. The same
// logical value always produces the same bytes, which is what makes
// sign-then-verify over encoded payloads sound. Decoding accepts
// standard CBOR and ignores unknown fields for forward compatibility.
package codec
