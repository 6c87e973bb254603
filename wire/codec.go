// Copyright 2026 The Seed Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"encoding/json"
	"errors"
	"fmt"
)

// DefaultMaxFrameBytes bounds a single frame when the caller does not
// configure a limit. 1 MiB is generous for chat payloads.
const DefaultMaxFrameBytes = 1 << 20

// Classified decode failures. The session actor maps these to its
// fatal/recoverable split: an oversized or version-mismatched frame
// ends the conversation, a merely malformed one earns an error
// envelope and the session continues.
var (
	// ErrMalformed covers bad JSON, unknown envelope types at the
	// current version, and missing required fields.
	ErrMalformed = errors.New("malformed envelope")

	// ErrTooLarge marks a frame exceeding the configured limit. The
	// check runs before any parsing.
	ErrTooLarge = errors.New("frame exceeds size limit")

	// ErrUnsupportedVersion marks an envelope declaring a protocol
	// version this build does not speak.
	ErrUnsupportedVersion = errors.New("unsupported protocol version")
)

// rawEnvelope is the JSON shape of every frame: version, type tag, and
// one payload object keyed by the type name.
type rawEnvelope struct {
	V    int    `json:"v,omitempty"`
	Type string `json:"type"`

	Auth        *Auth        `json:"auth,omitempty"`
	Message     *Message     `json:"message,omitempty"`
	Ack         *Ack         `json:"ack,omitempty"`
	Error       *ErrorInfo   `json:"error,omitempty"`
	Close       *Close       `json:"close,omitempty"`
	Subscribe   *Subscribe   `json:"subscribe,omitempty"`
	Unsubscribe *Unsubscribe `json:"unsubscribe,omitempty"`
	History     *History     `json:"history,omitempty"`
}

// Decode parses one frame into an Envelope. limit bounds the raw frame
// size; non-positive limits fall back to DefaultMaxFrameBytes.
//
// Classification order: size, JSON shape, declared version, type tag,
// per-type required fields. An envelope declaring a foreign version is
// rejected before its type is interpreted, so new types introduced by
// future versions surface as ErrUnsupportedVersion rather than
// ErrMalformed.
func Decode(frame []byte, limit int) (Envelope, error) {
	if limit <= 0 {
		limit = DefaultMaxFrameBytes
	}
	if len(frame) > limit {
		return Envelope{}, fmt.Errorf("%w: %d bytes, limit %d", ErrTooLarge, len(frame), limit)
	}

	var raw rawEnvelope
	if err := json.Unmarshal(frame, &raw); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if raw.V != 0 && raw.V != ProtocolVersion {
		return Envelope{}, fmt.Errorf("%w: declared %d, supported %d", ErrUnsupportedVersion, raw.V, ProtocolVersion)
	}

	switch raw.Type {
	case "auth":
		if raw.Auth == nil || len(raw.Auth.Token) == 0 {
			return Envelope{}, fmt.Errorf("%w: auth envelope without token", ErrMalformed)
		}
		return Envelope{Kind: KindAuth, Auth: raw.Auth}, nil

	case "message":
		if raw.Message == nil {
			return Envelope{}, fmt.Errorf("%w: message envelope without body", ErrMalformed)
		}
		hasGroup := raw.Message.Group != ""
		hasSession := raw.Message.Session != ""
		if hasGroup == hasSession {
			return Envelope{}, fmt.Errorf("%w: message must name exactly one of group or session", ErrMalformed)
		}
		return Envelope{Kind: KindMessage, Message: raw.Message}, nil

	case "ack":
		if raw.Ack == nil || raw.Ack.Op == "" {
			return Envelope{}, fmt.Errorf("%w: ack envelope without op", ErrMalformed)
		}
		return Envelope{Kind: KindAck, Ack: raw.Ack}, nil

	case "heartbeat":
		return Envelope{Kind: KindHeartbeat}, nil

	case "error":
		if raw.Error == nil || raw.Error.Code == "" {
			return Envelope{}, fmt.Errorf("%w: error envelope without code", ErrMalformed)
		}
		return Envelope{Kind: KindError, Error: raw.Error}, nil

	case "close":
		if raw.Close == nil {
			raw.Close = &Close{}
		}
		return Envelope{Kind: KindClose, Close: raw.Close}, nil

	case "subscribe":
		if raw.Subscribe == nil || raw.Subscribe.Group == "" {
			return Envelope{}, fmt.Errorf("%w: subscribe envelope without group", ErrMalformed)
		}
		return Envelope{Kind: KindSubscribe, Subscribe: raw.Subscribe}, nil

	case "unsubscribe":
		if raw.Unsubscribe == nil || raw.Unsubscribe.Group == "" {
			return Envelope{}, fmt.Errorf("%w: unsubscribe envelope without group", ErrMalformed)
		}
		return Envelope{Kind: KindUnsubscribe, Unsubscribe: raw.Unsubscribe}, nil

	case "history":
		if raw.History == nil || raw.History.Group == "" {
			return Envelope{}, fmt.Errorf("%w: history envelope without group", ErrMalformed)
		}
		return Envelope{Kind: KindHistory, History: raw.History}, nil

	case "":
		return Envelope{}, fmt.Errorf("%w: missing type", ErrMalformed)

	default:
		return Envelope{}, fmt.Errorf("%w: unknown type %q", ErrMalformed, raw.Type)
	}
}

// Encode serializes env to its frame bytes. Encoding is total over
// envelopes built by this package's constructors; the error return
// exists for the json.Marshal contract and is nil in practice.
func Encode(env Envelope) ([]byte, error) {
	raw := rawEnvelope{
		V:           ProtocolVersion,
		Type:        env.Kind.String(),
		Auth:        env.Auth,
		Message:     env.Message,
		Ack:         env.Ack,
		Error:       env.Error,
		Close:       env.Close,
		Subscribe:   env.Subscribe,
		Unsubscribe: env.Unsubscribe,
		History:     env.History,
	}
	if _, ok := kindNames[env.Kind]; !ok {
		return nil, fmt.Errorf("encode: invalid envelope kind %d", env.Kind)
	}
	frame, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("encode %s envelope: %w", env.Kind, err)
	}
	return frame, nil
}
