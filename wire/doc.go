// Copyright 2026 The Seed Authors
// SPDX-License-Identifier: Apache-2.0

// Package wire defines the client-facing protocol: JSON envelopes
// carried one per transport frame, and the stateless codec that turns
// frames into typed envelopes and back.
//
// The package is organized around the two directions of the transform:
//
//   - envelope.go: the closed set of envelope kinds, their payload
//     structs, and constructors for everything the server emits
//   - codec.go: Decode with classified errors (malformed, too large,
//     unsupported version) and the Encode inverse
//
// Every envelope is a JSON object with a "type" tag and an optional
// "v" protocol version. Unknown types at the current version are
// malformed; envelopes declaring a different version are rejected as
// unsupported before their type is interpreted. The codec holds no
// state and makes no policy decisions: classifying an error as fatal
// or recoverable is the session actor's job.
package wire
