// Copyright 2026 The Seed Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"time"
)

// Gateway is the narrow interface between the routing core and the
// durable store. All calls are bounded by the caller's context and
// are idempotent or safely retryable; AppendMessage in particular
// must deduplicate by MessageID so the router's retry loop cannot
// double-store.
type Gateway interface {
	// AppendMessage stores a group message, assigning it the next
	// position in the group's history. Appending an already-stored
	// MessageID returns the original position with Duplicate set.
	AppendMessage(ctx context.Context, msg Message) (AppendResult, error)

	// FetchHistory returns up to limit stored messages of group with
	// positions strictly greater than cursor, in ascending order.
	FetchHistory(ctx context.Context, group GroupID, cursor uint64, limit int) ([]StoredMessage, error)

	// UpsertUser records a principal, updating the display name if
	// the row exists.
	UpsertUser(ctx context.Context, principal PrincipalID, displayName string) error

	// ListGroupMembers returns the member principals of group. A
	// group nobody ever joined has no members and no error.
	ListGroupMembers(ctx context.Context, group GroupID) ([]PrincipalID, error)

	// JoinGroup adds principal to group, creating the group on first
	// reference. Idempotent.
	JoinGroup(ctx context.Context, group GroupID, principal PrincipalID) error

	// LeaveGroup removes principal from group. Idempotent; the group
	// itself persists at zero members.
	LeaveGroup(ctx context.Context, group GroupID, principal PrincipalID) error
}

// AppendResult reports where a message landed in its group's history.
type AppendResult struct {
	// GroupSeq is the per-group monotonic position, the cursor value
	// for history fetches.
	GroupSeq uint64

	// Duplicate is set when the MessageID was already stored; the
	// returned GroupSeq is the original position.
	Duplicate bool
}

// StoredMessage is one persisted message as returned by history
// fetches.
type StoredMessage struct {
	Group     GroupID
	GroupSeq  uint64
	ID        string
	Origin    PrincipalID
	Payload   []byte
	CreatedAt time.Time
}

// Validator is the identity collaborator: it turns a credential token
// into a principal or rejects it. Implementations must respect ctx;
// the actor bounds the call by the remaining authentication window.
// Rejections wrap ErrRejected.
type Validator interface {
	Validate(ctx context.Context, credential []byte) (PrincipalID, error)
}

// ValidatorFunc adapts a function to the Validator interface.
type ValidatorFunc func(ctx context.Context, credential []byte) (PrincipalID, error)

func (f ValidatorFunc) Validate(ctx context.Context, credential []byte) (PrincipalID, error) {
	return f(ctx, credential)
}

// FrameStream is the already-established framed duplex stream the
// transport adapter hands the core. The core never sees the upgrade
// handshake; it writes whole frames and closes.
//
// WriteFrame must be safe for use from the owning actor goroutine
// only; Close must be safe to call concurrently with WriteFrame and
// more than once.
type FrameStream interface {
	WriteFrame(ctx context.Context, frame []byte) error
	Close() error
}
