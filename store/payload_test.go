// Copyright 2026 The Seed Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"bytes"
	"strings"
	"testing"
)

func TestPayloadRoundTrip(t *testing.T) {
	cases := []struct {
		name      string
		plaintext []byte
	}{
		{"empty", nil},
		{"short text", []byte("hello, room")},
		{"repetitive small", bytes.Repeat([]byte("seed "), 200)},
		{"repetitive large", bytes.Repeat([]byte("the quick brown fox "), 1000)},
		{"json-ish large", []byte(strings.Repeat(`{"user":"alice","body":"hi"},`, 500))},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			encoded := encodePayload(tc.plaintext)
			decoded, err := decodePayload(encoded)
			if err != nil {
				t.Fatalf("decodePayload: %v", err)
			}
			if !bytes.Equal(decoded, tc.plaintext) {
				t.Errorf("round trip mismatch: got %d bytes, want %d", len(decoded), len(tc.plaintext))
			}
		})
	}
}

func TestPayloadCodecSelection(t *testing.T) {
	small := bytes.Repeat([]byte("ab"), 100)
	if got := compressionTag(encodePayload(small)[0]); got != compressionLZ4 {
		t.Errorf("small payload tag = %v, want lz4", got)
	}

	large := bytes.Repeat([]byte("ab"), zstdThreshold)
	if got := compressionTag(encodePayload(large)[0]); got != compressionZstd {
		t.Errorf("large payload tag = %v, want zstd", got)
	}
}

func TestPayloadIncompressibleFallsBackToNone(t *testing.T) {
	// Pseudo-random bytes do not shrink under either codec.
	plaintext := make([]byte, 512)
	state := uint32(0x9e3779b9)
	for i := range plaintext {
		state = state*1664525 + 1013904223
		plaintext[i] = byte(state >> 24)
	}

	encoded := encodePayload(plaintext)
	if got := compressionTag(encoded[0]); got != compressionNone {
		t.Fatalf("tag = %v, want none", got)
	}
	decoded, err := decodePayload(encoded)
	if err != nil {
		t.Fatalf("decodePayload: %v", err)
	}
	if !bytes.Equal(decoded, plaintext) {
		t.Error("round trip mismatch")
	}
}

func TestPayloadLargeShrinks(t *testing.T) {
	plaintext := bytes.Repeat([]byte("all work and no play makes a dull payload. "), 500)
	encoded := encodePayload(plaintext)
	if len(encoded) >= len(plaintext) {
		t.Errorf("encoded %d bytes, plaintext %d: expected compression", len(encoded), len(plaintext))
	}
}

func TestDecodePayloadRejectsCorruptInput(t *testing.T) {
	cases := []struct {
		name    string
		encoded []byte
	}{
		{"empty", nil},
		{"single byte", []byte{0}},
		{"unknown tag", []byte{9, 2, 'h', 'i'}},
		{"length mismatch none", []byte{0, 5, 'h', 'i'}},
		{"huge declared length", append([]byte{2}, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x01)},
		{"garbage zstd body", []byte{2, 10, 1, 2, 3, 4}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := decodePayload(tc.encoded); err == nil {
				t.Error("decodePayload succeeded, want error")
			}
		})
	}
}
