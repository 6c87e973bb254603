// Copyright 2026 The Seed Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"testing"
)

// sampleRequest mirrors the shape of an ops-socket request: an action
// tag plus optional arguments.
type sampleRequest struct {
	Action  string `cbor:"action"`
	Session string `cbor:"session,omitempty"`
	Limit   int    `cbor:"limit"`
}

func TestMarshalUnmarshalRoundtrip(t *testing.T) {
	original := sampleRequest{
		Action:  "close-session",
		Session: "2f6b7a1c",
		Limit:   25,
	}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("Marshal produced empty output")
	}

	var decoded sampleRequest
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded != original {
		t.Errorf("roundtrip mismatch: got %+v, want %+v", decoded, original)
	}
}

func TestMarshalDeterministic(t *testing.T) {
	// Token signing depends on equal values encoding to equal bytes.
	claims := map[string]any{
		"principal": "alice",
		"audience":  "seed-server",
		"expires":   int64(1774000000),
	}

	first, err := Marshal(claims)
	if err != nil {
		t.Fatalf("first Marshal: %v", err)
	}
	second, err := Marshal(claims)
	if err != nil {
		t.Fatalf("second Marshal: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Errorf("deterministic encoding violated: %x != %x", first, second)
	}
}

func TestEncoderDecoderStreamRoundtrip(t *testing.T) {
	requests := []sampleRequest{
		{Action: "status", Limit: 0},
		{Action: "sessions", Limit: 50},
		{Action: "close-session", Session: "ab12", Limit: 1},
	}

	var buffer bytes.Buffer
	encoder := NewEncoder(&buffer)
	for _, request := range requests {
		if err := encoder.Encode(request); err != nil {
			t.Fatalf("Encode: %v", err)
		}
	}

	decoder := NewDecoder(&buffer)
	for i, want := range requests {
		var got sampleRequest
		if err := decoder.Decode(&got); err != nil {
			t.Fatalf("Decode request %d: %v", i, err)
		}
		if got != want {
			t.Errorf("request %d: got %+v, want %+v", i, got, want)
		}
	}
}

func TestUnknownFieldsIgnored(t *testing.T) {
	// A newer peer may send fields this build does not know about.
	data, err := Marshal(map[string]any{
		"action": "status",
		"limit":  int64(3),
		"shiny":  "future",
	})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded sampleRequest
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal with unknown field: %v", err)
	}
	if decoded.Action != "status" || decoded.Limit != 3 {
		t.Errorf("decoded = %+v, want action=status limit=3", decoded)
	}
}

func TestAnyTargetDecodesStringKeyedMap(t *testing.T) {
	data, err := Marshal(map[string]any{"action": "status"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded any
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	m, ok := decoded.(map[string]any)
	if !ok {
		t.Fatalf("decoded type = %T, want map[string]any", decoded)
	}
	if m["action"] != "status" {
		t.Errorf("m[action] = %v, want status", m["action"])
	}
}

func TestUnmarshalInvalidCBOR(t *testing.T) {
	var request sampleRequest
	if err := Unmarshal([]byte{0xFF, 0xFE, 0xFD}, &request); err == nil {
		t.Error("Unmarshal should reject invalid CBOR")
	}
}

func TestByteStringRoundtrip(t *testing.T) {
	// Token payloads ride as CBOR byte strings (major type 2).
	type envelope struct {
		Token []byte `cbor:"token"`
	}

	original := envelope{Token: []byte{0x01, 0x02, 0xfe, 0xff}}
	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded envelope
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !bytes.Equal(decoded.Token, original.Token) {
		t.Errorf("byte string roundtrip: got %x, want %x", decoded.Token, original.Token)
	}
}
