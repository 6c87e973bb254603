// Copyright 2026 The Seed Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/seed-foundation/seed/lib/clock"
	"github.com/seed-foundation/seed/wire"
)

// inboxCapacity bounds frames in flight between the transport adapter
// and the actor loop. A full inbox blocks the adapter's read pump,
// which is the backpressure path to the peer.
const inboxCapacity = 16

// core bundles the dependencies shared by every session actor. The hub
// owns one and hands it to each actor at spawn.
type core struct {
	cfg       Config
	registry  *Registry
	router    *Router
	gateway   Gateway
	validator Validator
	clk       clock.Clock
	logger    *slog.Logger
}

// Actor owns one connection: its lifecycle state, its protocol
// conversation, and all writes to its transport stream. Everything the
// actor owns is mutated only from its run goroutine; the exported
// methods other goroutines call (Enqueue, Info, requestClose via the
// hub) touch only the queue, the close latch, and mutex- or
// atomic-guarded views.
type Actor struct {
	id   SessionID
	core *core

	stream FrameStream
	queue  *Queue
	inbox  chan []byte

	ctx    context.Context
	cancel context.CancelFunc

	// closeOnce latches the first close request and its reason; the
	// run loop reads closeReason only after observing ctx.Done().
	closeOnce   sync.Once
	closeReason string

	// done closes when the run loop has fully exited: deregistered,
	// stream closed, queue released.
	done chan struct{}

	state        atomic.Int32
	lastActivity atomic.Int64

	mu        sync.Mutex
	principal PrincipalID
	groups    map[GroupID]struct{}

	// seq is the per-session message counter. Run goroutine only.
	seq uint64

	createdAt time.Time
	logger    *slog.Logger
}

// frameResult tells the run loop what a handled frame did to the
// session.
type frameResult uint8

const (
	// frameOK: session continues as it was.
	frameOK frameResult = iota

	// frameActivated: authentication completed, heartbeats start.
	frameActivated

	// frameFatal: the session drains and closes.
	frameFatal
)

func newActor(parent context.Context, c *core, id SessionID, stream FrameStream) *Actor {
	ctx, cancel := context.WithCancel(parent)
	a := &Actor{
		id:        id,
		core:      c,
		stream:    stream,
		queue:     NewQueue(c.cfg.QueueCapacity, c.cfg.OverflowPolicy, c.cfg.QueuePushTimeout, c.clk),
		inbox:     make(chan []byte, inboxCapacity),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		groups:    make(map[GroupID]struct{}),
		createdAt: c.clk.Now(),
		logger:    c.logger.With("session", string(id)),
	}
	a.state.Store(int32(StateConnecting))
	a.lastActivity.Store(a.createdAt.UnixMilli())
	return a
}

// ID returns the session identifier.
func (a *Actor) ID() SessionID {
	return a.id
}

// State returns the session's current lifecycle state.
func (a *Actor) State() State {
	return State(a.state.Load())
}

func (a *Actor) setState(s State) {
	a.state.Store(int32(s))
}

// Principal returns the bound principal, empty before authentication.
func (a *Actor) Principal() PrincipalID {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.principal
}

// bindPrincipal attaches the principal exactly once. The registry
// calls this under its bind operation; false means already bound.
func (a *Actor) bindPrincipal(p PrincipalID) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.principal != "" {
		return false
	}
	a.principal = p
	return true
}

// Info returns a point-in-time view for the operational surface.
func (a *Actor) Info() SessionInfo {
	a.mu.Lock()
	principal := a.principal
	groups := make([]GroupID, 0, len(a.groups))
	for g := range a.groups {
		groups = append(groups, g)
	}
	a.mu.Unlock()
	slices.Sort(groups)
	return SessionInfo{
		ID:           a.id,
		Principal:    principal,
		State:        a.State(),
		Groups:       groups,
		CreatedAt:    a.createdAt,
		LastActivity: time.UnixMilli(a.lastActivity.Load()),
	}
}

// Done closes when the actor has fully exited.
func (a *Actor) Done() <-chan struct{} {
	return a.done
}

// Enqueue pushes env onto this session's outbound queue, applying the
// overflow policy on a sustained full queue. Safe from any goroutine;
// the router and peer actors produce, the owning actor drains.
func (a *Actor) Enqueue(env wire.Envelope) error {
	res, err := a.queue.Push(env)
	if err != nil {
		if errors.Is(err, ErrQueueOverflow) {
			a.logger.Warn("outbound queue overflow, disconnecting")
			a.requestClose("outbound queue overflow")
		}
		return err
	}
	if res.Evicted != nil {
		msgID := ""
		if res.Evicted.Message != nil {
			msgID = res.Evicted.Message.ID
		}
		a.logger.Warn("outbound queue full, dropped oldest",
			"message_id", msgID,
			"reason", ReasonOverflow)
	}
	return nil
}

// requestClose asks the run loop to drain and close. The first caller
// supplies the reason; later calls are no-ops. Safe from any
// goroutine.
func (a *Actor) requestClose(reason string) {
	a.closeOnce.Do(func() {
		a.closeReason = reason
		a.cancel()
	})
}

// run is the session's single goroutine: inbound frames, outbound
// drain, heartbeats, and every timeout multiplex through one select.
func (a *Actor) run() {
	defer a.finalize()

	authTimer := a.core.clk.NewTimer(a.core.cfg.AuthWindow)
	defer authTimer.Stop()
	idleTimer := a.core.clk.NewTimer(a.core.cfg.IdleWindow)
	defer idleTimer.Stop()

	var heartbeats *clock.Ticker
	var heartbeatC <-chan time.Time
	defer func() {
		if heartbeats != nil {
			heartbeats.Stop()
		}
	}()

	for {
		select {
		case <-a.ctx.Done():
			a.drain(a.closeReason)
			return

		case frame := <-a.inbox:
			a.lastActivity.Store(a.core.clk.Now().UnixMilli())
			resetTimer(idleTimer, a.core.cfg.IdleWindow)
			res, reason := a.handleFrame(frame)
			switch res {
			case frameActivated:
				authTimer.Stop()
				heartbeats = a.core.clk.NewTicker(a.core.cfg.HeartbeatInterval)
				heartbeatC = heartbeats.C
			case frameFatal:
				a.drain(reason)
				return
			}

		case <-a.queue.Ready():
			if !a.flushQueue() {
				a.drain("transport write failed")
				return
			}

		case <-authTimer.C:
			if a.State() >= StateActive {
				continue
			}
			a.send(a.ctx, wire.NewError(wire.CodeAuthRequired, "authentication window elapsed", true))
			a.drain("authentication timeout")
			return

		case <-idleTimer.C:
			a.drain("idle timeout")
			return

		case <-heartbeatC:
			if err := a.send(a.ctx, wire.NewHeartbeat()); err != nil {
				a.drain("transport write failed")
				return
			}
		}
	}
}

// finalize is the single exit path: terminal state, queue closed,
// registry entry gone, stream closed, done released. Runs exactly
// once, on every way out of run.
func (a *Actor) finalize() {
	a.setState(StateClosed)
	a.cancel()
	a.queue.Close()
	a.core.registry.Deregister(a.id)
	if err := a.stream.Close(); err != nil {
		a.logger.Debug("stream close failed", "error", err)
	}
	a.logger.Info("session closed", "principal", a.Principal())
	close(a.done)
}

// drain flushes already-queued outbound envelopes within the drain
// grace period, then announces the close to the peer. A non-positive
// grace skips the flush.
func (a *Actor) drain(reason string) {
	a.setState(StateDraining)
	a.queue.Close()

	dctx := context.Background()
	cancel := context.CancelFunc(func() {})
	if a.core.cfg.DrainGrace > 0 {
		dctx, cancel = context.WithTimeout(dctx, a.core.cfg.DrainGrace)
		for {
			env, ok := a.queue.Pop()
			if !ok {
				break
			}
			if err := a.send(dctx, env); err != nil {
				break
			}
			if dctx.Err() != nil {
				break
			}
		}
	}
	a.send(dctx, wire.NewClose(reason))
	cancel()
}

// flushQueue writes queued envelopes until the queue is momentarily
// empty. False means the transport is gone.
func (a *Actor) flushQueue() bool {
	for {
		env, ok := a.queue.Pop()
		if !ok {
			return true
		}
		if err := a.send(a.ctx, env); err != nil {
			return false
		}
	}
}

// handleFrame decodes and dispatches one inbound frame. The returned
// reason is non-empty only for frameFatal.
func (a *Actor) handleFrame(frame []byte) (frameResult, string) {
	if a.State() == StateConnecting {
		a.setState(StateAuthenticating)
	}

	env, err := wire.Decode(frame, a.core.cfg.MaxFrameBytes)
	if err != nil {
		return a.handleDecodeError(err)
	}

	if a.State() == StateAuthenticating {
		if env.Kind != wire.KindAuth {
			a.send(a.ctx, wire.NewError(wire.CodeAuthRequired, "first envelope must be auth", true))
			return frameFatal, "authentication required"
		}
		return a.handleAuth(env.Auth)
	}

	switch env.Kind {
	case wire.KindAuth:
		a.send(a.ctx, wire.NewError(wire.CodeMalformed, "already authenticated", false))
		return frameOK, ""
	case wire.KindMessage:
		a.handleMessage(env.Message)
		return frameOK, ""
	case wire.KindHeartbeat:
		if err := a.send(a.ctx, wire.NewHeartbeat()); err != nil {
			return frameFatal, "transport write failed"
		}
		return frameOK, ""
	case wire.KindSubscribe:
		a.handleSubscribe(env.Subscribe)
		return frameOK, ""
	case wire.KindUnsubscribe:
		a.handleUnsubscribe(env.Unsubscribe)
		return frameOK, ""
	case wire.KindHistory:
		a.handleHistory(env.History)
		return frameOK, ""
	case wire.KindClose:
		reason := "peer close"
		if env.Close != nil && env.Close.Reason != "" {
			reason = "peer close: " + env.Close.Reason
		}
		return frameFatal, reason
	default:
		// Ack and error envelopes flow server to client only.
		a.send(a.ctx, wire.NewError(wire.CodeMalformed, fmt.Sprintf("unexpected %s envelope", env.Kind), false))
		return frameOK, ""
	}
}

// handleDecodeError maps a codec error to the peer-facing error frame
// and its fatality. Oversized frames and version mismatches end the
// session; a single malformed frame does not.
func (a *Actor) handleDecodeError(err error) (frameResult, string) {
	switch {
	case errors.Is(err, wire.ErrTooLarge):
		a.send(a.ctx, wire.NewError(wire.CodeTooLarge, "frame exceeds size limit", true))
		return frameFatal, "oversized frame"
	case errors.Is(err, wire.ErrUnsupportedVersion):
		a.send(a.ctx, wire.NewError(wire.CodeUnsupportedVersion, "unsupported protocol version", true))
		return frameFatal, "unsupported protocol version"
	default:
		a.send(a.ctx, wire.NewError(wire.CodeMalformed, err.Error(), false))
		return frameOK, ""
	}
}

// handleAuth runs the credential through the validator and, on
// success, binds the principal and activates the session.
func (a *Actor) handleAuth(auth *wire.Auth) (frameResult, string) {
	vctx, cancel := context.WithTimeout(a.ctx, a.core.cfg.AuthWindow)
	principal, err := a.core.validator.Validate(vctx, auth.Token)
	cancel()
	if err != nil {
		if errors.Is(err, ErrRejected) {
			a.logger.Info("authentication rejected")
			a.send(a.ctx, wire.NewError(wire.CodeAuthRejected, "credential rejected", true))
			return frameFatal, "authentication rejected"
		}
		a.logger.Error("validator failed", "error", err)
		a.send(a.ctx, wire.NewError(wire.CodeInternal, "identity validation unavailable", true))
		return frameFatal, "validator failure"
	}

	if err := a.core.registry.BindPrincipal(a.id, principal); err != nil {
		a.logger.Error("principal bind failed", "principal", principal, "error", err)
		a.send(a.ctx, wire.NewError(wire.CodeInternal, "session state invalid", true))
		return frameFatal, "principal bind failed"
	}

	// Durable user record. A store hiccup here never blocks login.
	uctx, ucancel := context.WithTimeout(a.ctx, a.core.cfg.PersistCallTimeout)
	if err := a.core.gateway.UpsertUser(uctx, principal, ""); err != nil {
		a.logger.Warn("user upsert failed", "principal", principal, "error", err)
	}
	ucancel()

	a.setState(StateActive)
	a.send(a.ctx, wire.Envelope{Kind: wire.KindAck, Ack: &wire.Ack{
		Op:        "auth",
		OK:        true,
		Principal: string(principal),
	}})
	a.logger.Info("session authenticated", "principal", principal)
	return frameActivated, ""
}

// handleMessage routes one application message and acknowledges the
// outcome to the sender. A routing miss or exhausted persistence is an
// outcome, not a session fault.
func (a *Actor) handleMessage(wm *wire.Message) {
	msg := Message{
		ID:        a.nextMessageID(),
		Origin:    a.Principal(),
		Payload:   wm.Payload,
		CreatedAt: a.core.clk.Now(),
	}
	if wm.Group != "" {
		msg.Dest = GroupDestination(GroupID(wm.Group))
	} else {
		msg.Dest = SessionDestination(SessionID(wm.Session))
	}

	outcome := a.core.router.Route(a.ctx, msg)

	ack := wire.Ack{
		Op:      "message",
		ID:      msg.ID.String(),
		Outcome: outcome.Status.String(),
	}
	switch outcome.Status {
	case StatusDelivered, StatusQueued:
		ack.OK = true
	case StatusDropped:
		ack.Reason = outcome.Reason.String()
	case StatusPersistFailed:
		ack.Reason = "persistence exhausted retries"
	}
	a.send(a.ctx, wire.Envelope{Kind: wire.KindAck, Ack: &ack})

	if outcome.Status == StatusPersistFailed {
		a.send(a.ctx, wire.NewError(wire.CodePersistFailed,
			fmt.Sprintf("message %s was not persisted", msg.ID), false))
	}
}

// handleSubscribe joins the group, acknowledges, and replays history
// from the client's cursor.
func (a *Actor) handleSubscribe(sub *wire.Subscribe) {
	group := GroupID(sub.Group)
	jctx, cancel := context.WithTimeout(a.ctx, a.core.cfg.PersistCallTimeout)
	err := a.core.gateway.JoinGroup(jctx, group, a.Principal())
	cancel()
	if err != nil {
		a.logger.Warn("group join failed", "group", group, "error", err)
		a.send(a.ctx, wire.Envelope{Kind: wire.KindAck, Ack: &wire.Ack{
			Op:     "subscribe",
			Group:  sub.Group,
			Reason: "store unavailable",
		}})
		return
	}

	a.mu.Lock()
	a.groups[group] = struct{}{}
	a.mu.Unlock()

	a.send(a.ctx, wire.Envelope{Kind: wire.KindAck, Ack: &wire.Ack{
		Op:    "subscribe",
		OK:    true,
		Group: sub.Group,
	}})
	a.replayHistory(group, sub.Cursor)
}

// handleUnsubscribe leaves the group and acknowledges.
func (a *Actor) handleUnsubscribe(unsub *wire.Unsubscribe) {
	group := GroupID(unsub.Group)
	lctx, cancel := context.WithTimeout(a.ctx, a.core.cfg.PersistCallTimeout)
	err := a.core.gateway.LeaveGroup(lctx, group, a.Principal())
	cancel()
	if err != nil {
		a.logger.Warn("group leave failed", "group", group, "error", err)
		a.send(a.ctx, wire.Envelope{Kind: wire.KindAck, Ack: &wire.Ack{
			Op:     "unsubscribe",
			Group:  unsub.Group,
			Reason: "store unavailable",
		}})
		return
	}

	a.mu.Lock()
	delete(a.groups, group)
	a.mu.Unlock()

	a.send(a.ctx, wire.Envelope{Kind: wire.KindAck, Ack: &wire.Ack{
		Op:    "unsubscribe",
		OK:    true,
		Group: unsub.Group,
	}})
}

// handleHistory serves one explicitly requested page.
func (a *Actor) handleHistory(req *wire.History) {
	limit := req.Limit
	if limit <= 0 || limit > a.core.cfg.ReplayBatch {
		limit = a.core.cfg.ReplayBatch
	}
	group := GroupID(req.Group)

	fctx, cancel := context.WithTimeout(a.ctx, a.core.cfg.PersistCallTimeout)
	page, err := a.core.gateway.FetchHistory(fctx, group, req.Cursor, limit)
	cancel()
	if err != nil {
		a.logger.Warn("history fetch failed", "group", group, "cursor", req.Cursor, "error", err)
		a.send(a.ctx, wire.NewError(wire.CodeInternal, "history unavailable", false))
		return
	}

	cursor := req.Cursor
	for _, sm := range page {
		if err := a.send(a.ctx, historyEnvelope(sm)); err != nil {
			return
		}
		cursor = sm.GroupSeq
	}
	a.send(a.ctx, wire.NewHistoryDone(req.Group, cursor))
}

// replayHistory streams every stored message after cursor to the peer
// in pages, ending with the done marker. Replay writes directly to the
// stream; concurrent live fan-out keeps landing in the queue and
// flushes afterwards.
func (a *Actor) replayHistory(group GroupID, cursor uint64) {
	for {
		fctx, cancel := context.WithTimeout(a.ctx, a.core.cfg.PersistCallTimeout)
		page, err := a.core.gateway.FetchHistory(fctx, group, cursor, a.core.cfg.ReplayBatch)
		cancel()
		if err != nil {
			a.logger.Warn("history replay failed", "group", group, "cursor", cursor, "error", err)
			a.send(a.ctx, wire.NewError(wire.CodeInternal, "history replay interrupted", false))
			return
		}
		for _, sm := range page {
			if err := a.send(a.ctx, historyEnvelope(sm)); err != nil {
				return
			}
			cursor = sm.GroupSeq
		}
		if len(page) < a.core.cfg.ReplayBatch {
			a.send(a.ctx, wire.NewHistoryDone(string(group), cursor))
			return
		}
	}
}

// send encodes env and writes the frame to the transport. A transport
// failure latches a close request; the run loop notices on its next
// pass.
func (a *Actor) send(ctx context.Context, env wire.Envelope) error {
	frame, err := wire.Encode(env)
	if err != nil {
		a.logger.Error("envelope encode failed", "kind", env.Kind, "error", err)
		return err
	}
	if err := a.stream.WriteFrame(ctx, frame); err != nil {
		a.requestClose("transport write failed")
		return err
	}
	return nil
}

// nextMessageID advances the per-session sequence. Run goroutine only.
func (a *Actor) nextMessageID() MessageID {
	a.seq++
	return MessageID{Origin: a.id, Seq: a.seq}
}

// historyEnvelope converts one stored message to its replay envelope,
// GroupSeq included so the client can advance its cursor.
func historyEnvelope(sm StoredMessage) wire.Envelope {
	return wire.Envelope{Kind: wire.KindMessage, Message: &wire.Message{
		ID:        sm.ID,
		Origin:    string(sm.Origin),
		Group:     string(sm.Group),
		Payload:   sm.Payload,
		Timestamp: sm.CreatedAt.UnixMilli(),
		GroupSeq:  sm.GroupSeq,
	}}
}

// resetTimer rearms t for d, draining a stale fire first.
func resetTimer(t *clock.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
