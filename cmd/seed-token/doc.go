// Copyright 2026 The Seed Authors
// SPDX-License-Identifier: Apache-2.0

// seed-token manages client credentials: it generates the server's
// Ed25519 signing keypair, mints signed tokens for principals, and
// verifies existing tokens.
//
// Tokens print as base64url, the spelling clients pass in the
// WebSocket token query parameter.
package main
