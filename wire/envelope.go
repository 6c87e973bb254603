// Copyright 2026 The Seed Authors
// SPDX-License-Identifier: Apache-2.0

package wire

// ProtocolVersion is the envelope version this build speaks. Envelopes
// declaring a different version are rejected with ErrUnsupportedVersion;
// envelopes omitting "v" are treated as current.
const ProtocolVersion = 1

// Kind identifies an envelope variant. The set is closed: the codec
// never produces a Kind outside the constants below.
type Kind uint8

const (
	// KindAuth carries the client's credential token. Client→server,
	// must be the first envelope on a connection.
	KindAuth Kind = iota + 1

	// KindMessage carries an application message addressed to a group
	// or a single session. Both directions: inbound from the origin
	// client, outbound to each recipient.
	KindMessage

	// KindAck reports the outcome of a client request (auth, message
	// routing, subscribe, unsubscribe). Server→client only.
	KindAck

	// KindHeartbeat is a liveness probe with no payload. Either
	// direction; the server echoes client heartbeats.
	KindHeartbeat

	// KindError reports a protocol-level failure. Server→client only.
	KindError

	// KindClose announces an orderly shutdown of the connection.
	// Either direction.
	KindClose

	// KindSubscribe joins a group and requests history replay from a
	// cursor. Client→server only.
	KindSubscribe

	// KindUnsubscribe leaves a group. Client→server only.
	KindUnsubscribe

	// KindHistory requests one page of persisted messages
	// (client→server) or marks the end of a replay (server→client).
	KindHistory
)

var kindNames = map[Kind]string{
	KindAuth:        "auth",
	KindMessage:     "message",
	KindAck:         "ack",
	KindHeartbeat:   "heartbeat",
	KindError:       "error",
	KindClose:       "close",
	KindSubscribe:   "subscribe",
	KindUnsubscribe: "unsubscribe",
	KindHistory:     "history",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Envelope is one decoded frame. Kind selects which payload pointer is
// non-nil; KindHeartbeat has no payload at all.
type Envelope struct {
	Kind Kind

	Auth        *Auth
	Message     *Message
	Ack         *Ack
	Error       *ErrorInfo
	Close       *Close
	Subscribe   *Subscribe
	Unsubscribe *Unsubscribe
	History     *History
}

// Auth carries the opaque credential token presented by the client.
type Auth struct {
	// Token is the raw credential, base64 on the wire.
	Token []byte `json:"token"`
}

// Message is an application message. Exactly one of Group or Session
// names the destination.
type Message struct {
	// ID is the server-assigned message identifier
	// ("<session-uuid>:<seq>"). Empty on inbound envelopes.
	ID string `json:"id,omitempty"`

	// Origin is the sending principal. Server-assigned; ignored on
	// inbound envelopes.
	Origin string `json:"origin,omitempty"`

	// Group addresses every live member of a named group.
	Group string `json:"group,omitempty"`

	// Session addresses one session directly.
	Session string `json:"session,omitempty"`

	// Payload is the opaque application content, base64 on the wire.
	Payload []byte `json:"payload"`

	// Timestamp is the server receive time in Unix milliseconds.
	// Server-assigned.
	Timestamp int64 `json:"ts,omitempty"`

	// GroupSeq is the message's position in its group's history,
	// assigned at persistence. Set on outbound group messages and
	// history replay so clients can resume from a cursor.
	GroupSeq uint64 `json:"seq,omitempty"`
}

// Ack reports the outcome of one client request.
type Ack struct {
	// Op names the acknowledged request: "auth", "message",
	// "subscribe", or "unsubscribe".
	Op string `json:"op"`

	// ID is the acknowledged message's assigned ID when Op is
	// "message".
	ID string `json:"id,omitempty"`

	// OK is false when the request failed; Reason carries the cause.
	OK bool `json:"ok"`

	// Outcome is the delivery outcome for message acks: "delivered",
	// "queued", "dropped", or "persist_failed".
	Outcome string `json:"outcome,omitempty"`

	// Reason qualifies a negative outcome.
	Reason string `json:"reason,omitempty"`

	// Principal is the authenticated identity, set on auth acks.
	Principal string `json:"principal,omitempty"`

	// Group is the affected group, set on subscribe/unsubscribe acks.
	Group string `json:"group,omitempty"`
}

// ErrorCode classifies protocol errors reported to the peer.
type ErrorCode string

const (
	CodeMalformed          ErrorCode = "malformed"
	CodeTooLarge           ErrorCode = "too_large"
	CodeUnsupportedVersion ErrorCode = "unsupported_version"
	CodeAuthRequired       ErrorCode = "auth_required"
	CodeAuthRejected       ErrorCode = "auth_rejected"
	CodeUnknownDestination ErrorCode = "unknown_destination"
	CodePersistFailed      ErrorCode = "persist_failed"
	CodeOverflow           ErrorCode = "overflow"
	CodeInternal           ErrorCode = "internal"
)

// ErrorInfo is the payload of an error envelope.
type ErrorInfo struct {
	Code   ErrorCode `json:"code"`
	Detail string    `json:"detail,omitempty"`

	// Fatal tells the peer the server will close the connection after
	// this envelope.
	Fatal bool `json:"fatal,omitempty"`
}

// Close announces an orderly connection shutdown.
type Close struct {
	Reason string `json:"reason,omitempty"`
}

// Subscribe joins a group. Cursor is the group sequence number after
// which history replay should start; zero replays everything.
type Subscribe struct {
	Group  string `json:"group"`
	Cursor uint64 `json:"cursor,omitempty"`
}

// Unsubscribe leaves a group.
type Unsubscribe struct {
	Group string `json:"group"`
}

// History is a page request (client→server, Done false) or a replay
// completion marker (server→client, Done true, Cursor at the last
// delivered sequence).
type History struct {
	Group  string `json:"group"`
	Cursor uint64 `json:"cursor"`
	Limit  int    `json:"limit,omitempty"`
	Done   bool   `json:"done,omitempty"`
}

// NewAuth creates an auth envelope carrying token.
func NewAuth(token []byte) Envelope {
	return Envelope{Kind: KindAuth, Auth: &Auth{Token: token}}
}

// NewGroupMessage creates an inbound-style message addressed to group.
func NewGroupMessage(group string, payload []byte) Envelope {
	return Envelope{Kind: KindMessage, Message: &Message{Group: group, Payload: payload}}
}

// NewSessionMessage creates an inbound-style message addressed to one
// session.
func NewSessionMessage(session string, payload []byte) Envelope {
	return Envelope{Kind: KindMessage, Message: &Message{Session: session, Payload: payload}}
}

// NewHeartbeat creates a heartbeat envelope.
func NewHeartbeat() Envelope {
	return Envelope{Kind: KindHeartbeat}
}

// NewError creates an error envelope.
func NewError(code ErrorCode, detail string, fatal bool) Envelope {
	return Envelope{Kind: KindError, Error: &ErrorInfo{Code: code, Detail: detail, Fatal: fatal}}
}

// NewClose creates a close envelope.
func NewClose(reason string) Envelope {
	return Envelope{Kind: KindClose, Close: &Close{Reason: reason}}
}

// NewSubscribe creates a subscribe envelope replaying history after
// cursor.
func NewSubscribe(group string, cursor uint64) Envelope {
	return Envelope{Kind: KindSubscribe, Subscribe: &Subscribe{Group: group, Cursor: cursor}}
}

// NewUnsubscribe creates an unsubscribe envelope.
func NewUnsubscribe(group string) Envelope {
	return Envelope{Kind: KindUnsubscribe, Unsubscribe: &Unsubscribe{Group: group}}
}

// NewHistoryRequest creates a history page request.
func NewHistoryRequest(group string, cursor uint64, limit int) Envelope {
	return Envelope{Kind: KindHistory, History: &History{Group: group, Cursor: cursor, Limit: limit}}
}

// NewHistoryDone creates the replay completion marker with the cursor
// of the last delivered message.
func NewHistoryDone(group string, cursor uint64) Envelope {
	return Envelope{Kind: KindHistory, History: &History{Group: group, Cursor: cursor, Done: true}}
}
