// Copyright 2026 The Seed Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"log/slog"

	"github.com/seed-foundation/seed/lib/clock"
	"github.com/seed-foundation/seed/wire"
)

// Router turns one inbound message into its effects: pushes onto the
// outbound queues of live recipients and, for group traffic, a durable
// append through the gateway. Fan-out and persistence run concurrently;
// Route returns the combined outcome once both have finished.
//
// Routers are stateless and safe for concurrent use by every actor.
type Router struct {
	registry *Registry
	gateway  Gateway
	cfg      Config
	clk      clock.Clock
	logger   *slog.Logger
}

// NewRouter builds a router over the given registry and gateway.
func NewRouter(registry *Registry, gateway Gateway, cfg Config, clk clock.Clock, logger *slog.Logger) *Router {
	return &Router{
		registry: registry,
		gateway:  gateway,
		cfg:      cfg.withDefaults(),
		clk:      clk,
		logger:   logger,
	}
}

// Route resolves msg's destination and applies its effects. The
// returned outcome is for the originating actor's acknowledgment path;
// routing failures are outcomes, not errors, and never fault the
// session.
func (r *Router) Route(ctx context.Context, msg Message) Outcome {
	switch msg.Dest.Kind {
	case ToSession:
		return r.routeSession(msg)
	case ToGroup:
		return r.routeGroup(ctx, msg)
	}
	return Outcome{Status: StatusDropped, Reason: ReasonUnknownDestination}
}

// routeSession delivers to exactly one live session. Session-addressed
// traffic is transient: no persistence, gone if the target is gone.
func (r *Router) routeSession(msg Message) Outcome {
	target, ok := r.registry.Lookup(msg.Dest.Session)
	if !ok {
		return Outcome{Status: StatusDropped, Reason: ReasonUnknownDestination}
	}
	if err := target.Enqueue(r.outbound(msg)); err != nil {
		if errors.Is(err, ErrQueueOverflow) {
			return Outcome{Status: StatusDropped, Reason: ReasonOverflow}
		}
		// Closed queue: the target is on its way out, same as absent.
		return Outcome{Status: StatusDropped, Reason: ReasonUnknownDestination}
	}
	return Outcome{Status: StatusDelivered, Live: 1}
}

// routeGroup persists msg while fanning it out to every live member
// session, then combines the two results. A failed persistence write
// dominates the outcome regardless of fan-out.
func (r *Router) routeGroup(ctx context.Context, msg Message) Outcome {
	type persistResult struct {
		res AppendResult
		err error
	}
	persistCh := make(chan persistResult, 1)
	go func() {
		res, err := r.persist(ctx, msg)
		persistCh <- persistResult{res: res, err: err}
	}()

	live := r.fanOut(ctx, msg)

	pr := <-persistCh
	if pr.err != nil {
		return Outcome{Status: StatusPersistFailed, Live: live, Err: pr.err}
	}
	out := Outcome{Live: live, Stored: true, GroupSeq: pr.res.GroupSeq}
	if live > 0 {
		out.Status = StatusDelivered
	} else {
		out.Status = StatusQueued
	}
	return out
}

// fanOut pushes msg to every live session of every group member except
// the origin session itself, and returns the number of queues that
// accepted it. Fan-out is best effort: a full or closed queue costs
// that one recipient, never the message.
func (r *Router) fanOut(ctx context.Context, msg Message) int {
	mctx, cancel := context.WithTimeout(ctx, r.cfg.PersistCallTimeout)
	members, err := r.gateway.ListGroupMembers(mctx, msg.Dest.Group)
	cancel()
	if err != nil {
		r.logger.Error("group member lookup failed",
			"group", msg.Dest.Group,
			"message_id", msg.ID,
			"error", err)
		return 0
	}

	env := r.outbound(msg)
	live := 0
	for _, member := range members {
		for _, target := range r.registry.SessionsFor(member) {
			if target.ID() == msg.ID.Origin {
				// No echo to the origin session. Other sessions of
				// the same principal still receive the message.
				continue
			}
			if err := target.Enqueue(env); err != nil {
				r.logger.Warn("fan-out push failed",
					"session", target.ID(),
					"message_id", msg.ID,
					"error", err)
				continue
			}
			live++
		}
	}
	return live
}

// persist appends msg through the gateway, retrying within the
// configured budget with doubling backoff. Each attempt gets its own
// call timeout; ctx cancellation aborts between attempts.
func (r *Router) persist(ctx context.Context, msg Message) (AppendResult, error) {
	delay := r.cfg.PersistBackoffBase
	var lastErr error
	for attempt := 1; attempt <= r.cfg.PersistAttempts; attempt++ {
		cctx, cancel := context.WithTimeout(ctx, r.cfg.PersistCallTimeout)
		res, err := r.gateway.AppendMessage(cctx, msg)
		cancel()
		if err == nil {
			if attempt > 1 {
				r.logger.Info("message persisted after retry",
					"message_id", msg.ID,
					"attempt", attempt)
			}
			return res, nil
		}
		lastErr = err
		if attempt == r.cfg.PersistAttempts {
			break
		}
		r.logger.Warn("message persist attempt failed",
			"message_id", msg.ID,
			"attempt", attempt,
			"retry_in", delay,
			"error", err)
		select {
		case <-ctx.Done():
			return AppendResult{}, ctx.Err()
		case <-r.clk.After(delay):
		}
		delay *= 2
		if delay > r.cfg.PersistBackoffMax {
			delay = r.cfg.PersistBackoffMax
		}
	}
	return AppendResult{}, lastErr
}

// outbound builds the recipient-facing envelope for msg. GroupSeq is
// absent on live fan-out; clients advance their cursors from history
// replay, where the store-assigned position is known.
func (r *Router) outbound(msg Message) wire.Envelope {
	wm := &wire.Message{
		ID:        msg.ID.String(),
		Origin:    string(msg.Origin),
		Payload:   msg.Payload,
		Timestamp: msg.CreatedAt.UnixMilli(),
	}
	switch msg.Dest.Kind {
	case ToSession:
		wm.Session = string(msg.Dest.Session)
	case ToGroup:
		wm.Group = string(msg.Dest.Group)
	}
	return wire.Envelope{Kind: wire.KindMessage, Message: wm}
}
