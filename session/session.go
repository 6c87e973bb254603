// Copyright 2026 The Seed Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SessionID identifies one live connection. Generated at acceptance,
// immutable for the connection's lifetime.
type SessionID string

// NewSessionID returns a fresh process-unique session identifier.
func NewSessionID() SessionID {
	return SessionID(uuid.NewString())
}

// PrincipalID is an authenticated user identity. Empty until the
// session completes authentication.
type PrincipalID string

// GroupID names a channel/room. Groups come into existence on first
// reference and are never implicitly deleted.
type GroupID string

// MessageID orders messages globally: the origin session plus that
// session's monotonic sequence counter.
type MessageID struct {
	Origin SessionID
	Seq    uint64
}

// String renders the wire form "<origin>:<seq>", which is also the
// persistence dedup key.
func (id MessageID) String() string {
	return string(id.Origin) + ":" + strconv.FormatUint(id.Seq, 10)
}

// ParseMessageID parses the "<origin>:<seq>" form.
func ParseMessageID(s string) (MessageID, bool) {
	i := strings.LastIndexByte(s, ':')
	if i <= 0 || i == len(s)-1 {
		return MessageID{}, false
	}
	seq, err := strconv.ParseUint(s[i+1:], 10, 64)
	if err != nil {
		return MessageID{}, false
	}
	return MessageID{Origin: SessionID(s[:i]), Seq: seq}, true
}

// DestinationKind selects the variant of a Destination.
type DestinationKind uint8

const (
	// ToSession addresses exactly one live session.
	ToSession DestinationKind = iota + 1

	// ToGroup addresses every live member session of a group, with
	// durable history for the rest.
	ToGroup
)

// Destination is the closed routing target variant.
type Destination struct {
	Kind    DestinationKind
	Session SessionID
	Group   GroupID
}

// SessionDestination addresses a single session.
func SessionDestination(id SessionID) Destination {
	return Destination{Kind: ToSession, Session: id}
}

// GroupDestination addresses a group.
func GroupDestination(group GroupID) Destination {
	return Destination{Kind: ToGroup, Group: group}
}

// Message is one routed application message, immutable once the actor
// constructs it from a decoded frame.
type Message struct {
	ID        MessageID
	Origin    PrincipalID
	Dest      Destination
	Payload   []byte
	CreatedAt time.Time
}

// State is a session's lifecycle position. Transitions are owned by
// the actor; everything else reads.
type State uint8

const (
	// StateConnecting: accepted, no frame seen yet.
	StateConnecting State = iota + 1

	// StateAuthenticating: first frame arrived, credential not yet
	// accepted.
	StateAuthenticating

	// StateActive: principal bound, full protocol available.
	StateActive

	// StateDraining: closing, flushing queued outbound envelopes
	// within the drain grace period.
	StateDraining

	// StateClosed: terminal. The actor has deregistered and released
	// its resources.
	StateClosed
)

var stateNames = map[State]string{
	StateConnecting:     "connecting",
	StateAuthenticating: "authenticating",
	StateActive:         "active",
	StateDraining:       "draining",
	StateClosed:         "closed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// SessionInfo is a point-in-time view of one session, as reported by
// the registry snapshot for the operational surface.
type SessionInfo struct {
	ID           SessionID
	Principal    PrincipalID
	State        State
	Groups       []GroupID
	CreatedAt    time.Time
	LastActivity time.Time
}
