// Copyright 2026 The Seed Authors
// SPDX-License-Identifier: Apache-2.0

package session

// Status is the headline of a delivery outcome.
type Status uint8

const (
	// StatusDelivered: at least one live session accepted the
	// message, and persistence (when applicable) landed.
	StatusDelivered Status = iota + 1

	// StatusQueued: persisted with zero live recipients. Offline
	// members catch up through history replay.
	StatusQueued

	// StatusDropped: no effect at all; Reason says why.
	StatusDropped

	// StatusPersistFailed: the persistence write exhausted its retry
	// budget. Overrides every other status.
	StatusPersistFailed
)

var statusNames = map[Status]string{
	StatusDelivered:     "delivered",
	StatusQueued:        "queued",
	StatusDropped:       "dropped",
	StatusPersistFailed: "persist_failed",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "unknown"
}

// DropReason qualifies StatusDropped.
type DropReason uint8

const (
	ReasonNone DropReason = iota

	// ReasonUnknownDestination: the addressed session does not exist.
	ReasonUnknownDestination

	// ReasonNoRecipients: nothing live to deliver to and nothing
	// durable to fall back on.
	ReasonNoRecipients

	// ReasonOverflow: evicted from a full outbound queue under the
	// drop-oldest policy.
	ReasonOverflow
)

var dropReasonNames = map[DropReason]string{
	ReasonNone:               "",
	ReasonUnknownDestination: "unknown_destination",
	ReasonNoRecipients:       "no_recipients",
	ReasonOverflow:           "overflow",
}

func (r DropReason) String() string {
	if name, ok := dropReasonNames[r]; ok {
		return name
	}
	return "unknown"
}

// Outcome is the combined result of routing one message: fan-out and
// persistence both accounted for. The router returns it to the
// originating actor for the acknowledgment path.
type Outcome struct {
	Status Status

	// Reason qualifies StatusDropped; ReasonNone otherwise.
	Reason DropReason

	// Live counts the sessions whose queues accepted the message.
	Live int

	// Stored reports whether the persistence write landed.
	Stored bool

	// GroupSeq is the store-assigned position in the group's
	// history, valid when Stored.
	GroupSeq uint64

	// Err carries the final persistence error when Status is
	// StatusPersistFailed.
	Err error
}
