// Copyright 2026 The Seed Authors
// SPDX-License-Identifier: Apache-2.0

package session

import "errors"

var (
	// ErrDuplicateSession reports a Register call for an id already
	// present. The generation scheme makes this an invariant
	// violation; the caller terminates the offending session.
	ErrDuplicateSession = errors.New("session: duplicate session id")

	// ErrAlreadyBound reports a second BindPrincipal for the same
	// session. Invariant violation, fatal to that session only.
	ErrAlreadyBound = errors.New("session: principal already bound")

	// ErrUnknownSession reports an operation against a session id
	// the registry does not hold.
	ErrUnknownSession = errors.New("session: unknown session")

	// ErrQueueOverflow reports a push rejected by a full queue under
	// the disconnect overflow policy.
	ErrQueueOverflow = errors.New("session: outbound queue overflow")

	// ErrQueueClosed reports a push to a queue whose session is past
	// Draining.
	ErrQueueClosed = errors.New("session: outbound queue closed")

	// ErrRejected is returned by validators for credentials that
	// verify as invalid (bad signature, expiry, wrong audience).
	// Always fatal to the session.
	ErrRejected = errors.New("session: credential rejected")

	// ErrAuthTimeout reports an authentication window that elapsed
	// without a positive validator decision.
	ErrAuthTimeout = errors.New("session: authentication window elapsed")

	// ErrHubClosed reports a connection attempt during shutdown.
	ErrHubClosed = errors.New("session: hub shutting down")
)
