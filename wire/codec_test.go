// Copyright 2026 The Seed Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestDecodeEncodeRoundtrip(t *testing.T) {
	envelopes := []Envelope{
		NewAuth([]byte("credential-bytes")),
		NewGroupMessage("ops-room", []byte("hello")),
		NewSessionMessage("9d3f", []byte("direct")),
		NewHeartbeat(),
		NewError(CodeMalformed, "bad frame", false),
		NewClose("shutting down"),
		NewSubscribe("ops-room", 42),
		NewUnsubscribe("ops-room"),
		NewHistoryRequest("ops-room", 10, 100),
		NewHistoryDone("ops-room", 110),
	}

	for _, original := range envelopes {
		t.Run(original.Kind.String(), func(t *testing.T) {
			frame, err := Encode(original)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			decoded, err := Decode(frame, 0)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if decoded.Kind != original.Kind {
				t.Fatalf("Kind = %v, want %v", decoded.Kind, original.Kind)
			}
		})
	}
}

func TestDecodeMessagePreservesPayload(t *testing.T) {
	payload := []byte{0x00, 0x01, 0xfe, 0xff}
	frame, err := Encode(NewGroupMessage("room", payload))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded, err := Decode(frame, 0)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.Message == nil {
		t.Fatal("decoded message payload is nil")
	}
	if !bytes.Equal(decoded.Message.Payload, payload) {
		t.Fatalf("payload = %x, want %x", decoded.Message.Payload, payload)
	}
	if decoded.Message.Group != "room" {
		t.Fatalf("group = %q, want %q", decoded.Message.Group, "room")
	}
}

func TestDecodeClassification(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		limit int
		want  error
	}{
		{
			name:  "not json",
			frame: "not a json object",
			want:  ErrMalformed,
		},
		{
			name:  "missing type",
			frame: `{"v":1}`,
			want:  ErrMalformed,
		},
		{
			name:  "unknown type at current version",
			frame: `{"v":1,"type":"teleport"}`,
			want:  ErrMalformed,
		},
		{
			name:  "unknown type at future version",
			frame: `{"v":2,"type":"teleport"}`,
			want:  ErrUnsupportedVersion,
		},
		{
			name:  "known type at future version",
			frame: `{"v":3,"type":"heartbeat"}`,
			want:  ErrUnsupportedVersion,
		},
		{
			name:  "over limit",
			frame: `{"v":1,"type":"message","message":{"group":"g","payload":"` + strings.Repeat("A", 128) + `"}}`,
			limit: 64,
			want:  ErrTooLarge,
		},
		{
			name:  "auth without token",
			frame: `{"v":1,"type":"auth","auth":{}}`,
			want:  ErrMalformed,
		},
		{
			name:  "message without destination",
			frame: `{"v":1,"type":"message","message":{"payload":"aGk="}}`,
			want:  ErrMalformed,
		},
		{
			name:  "message with both destinations",
			frame: `{"v":1,"type":"message","message":{"group":"g","session":"s","payload":"aGk="}}`,
			want:  ErrMalformed,
		},
		{
			name:  "subscribe without group",
			frame: `{"v":1,"type":"subscribe","subscribe":{"cursor":4}}`,
			want:  ErrMalformed,
		},
		{
			name:  "error without code",
			frame: `{"v":1,"type":"error","error":{"detail":"x"}}`,
			want:  ErrMalformed,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := Decode([]byte(test.frame), test.limit)
			if !errors.Is(err, test.want) {
				t.Fatalf("Decode error = %v, want %v", err, test.want)
			}
		})
	}
}

func TestDecodeVersionOmittedIsCurrent(t *testing.T) {
	// The first clients never sent "v"; absence means current.
	decoded, err := Decode([]byte(`{"type":"heartbeat"}`), 0)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.Kind != KindHeartbeat {
		t.Fatalf("Kind = %v, want %v", decoded.Kind, KindHeartbeat)
	}
}

func TestDecodeSizeCheckBeforeParse(t *testing.T) {
	// An oversized frame of garbage must classify as too large, not
	// malformed: the limit guards the parser.
	frame := []byte(strings.Repeat("x", 100))
	_, err := Decode(frame, 10)
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("Decode error = %v, want %v", err, ErrTooLarge)
	}
}

func TestDecodeCloseWithoutBody(t *testing.T) {
	decoded, err := Decode([]byte(`{"v":1,"type":"close"}`), 0)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.Close == nil {
		t.Fatal("Close payload should be non-nil for close envelopes")
	}
}

func TestEncodeEmitsVersionAndType(t *testing.T) {
	frame, err := Encode(NewHeartbeat())
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	var shape struct {
		V    int    `json:"v"`
		Type string `json:"type"`
	}
	if err := json.Unmarshal(frame, &shape); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	if shape.V != ProtocolVersion {
		t.Fatalf("v = %d, want %d", shape.V, ProtocolVersion)
	}
	if shape.Type != "heartbeat" {
		t.Fatalf("type = %q, want %q", shape.Type, "heartbeat")
	}
}

func TestEncodeRejectsInvalidKind(t *testing.T) {
	if _, err := Encode(Envelope{Kind: Kind(99)}); err == nil {
		t.Fatal("Encode should reject an invalid kind")
	}
}

func TestAckCarriesOutcomeFields(t *testing.T) {
	env := Envelope{Kind: KindAck, Ack: &Ack{
		Op:      "message",
		ID:      "abc:7",
		OK:      true,
		Outcome: "delivered",
	}}
	frame, err := Encode(env)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := Decode(frame, 0)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.Ack == nil || decoded.Ack.ID != "abc:7" || decoded.Ack.Outcome != "delivered" {
		t.Fatalf("ack = %+v, want id=abc:7 outcome=delivered", decoded.Ack)
	}
}
