// Copyright 2026 The Seed Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/seed-foundation/seed/lib/clock"
	"github.com/seed-foundation/seed/wire"
)

// Hub is the session core's front door. The transport adapter hands it
// established streams and raw frames; the hub owns the registry, the
// router, and the lifecycle of every actor. One hub per process.
type Hub struct {
	core *core

	// ctx parents every actor context; cancel is the hard stop after
	// Shutdown's graceful wait.
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewHub builds a hub over the given gateway and validator. A nil
// clock means the real one; a nil logger means slog.Default.
func NewHub(cfg Config, gateway Gateway, validator Validator, clk clock.Clock, logger *slog.Logger) (*Hub, error) {
	if gateway == nil {
		return nil, errors.New("session: gateway must not be nil")
	}
	if validator == nil {
		return nil, errors.New("session: validator must not be nil")
	}
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()

	registry := NewRegistry(0)
	c := &core{
		cfg:       cfg,
		registry:  registry,
		gateway:   gateway,
		validator: validator,
		clk:       clk,
		logger:    logger,
	}
	c.router = NewRouter(registry, gateway, cfg, clk, logger)

	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{core: c, ctx: ctx, cancel: cancel}, nil
}

// ConnectionEstablished accepts one framed duplex stream, spawns its
// actor, and returns the assigned session id. A non-empty credential
// (supplied by the transport handshake, for example a query parameter)
// is injected as the session's first auth frame, so such clients skip
// the explicit auth envelope.
func (h *Hub) ConnectionEstablished(stream FrameStream, credential []byte) (SessionID, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return "", ErrHubClosed
	}

	id := NewSessionID()
	a := newActor(h.ctx, h.core, id, stream)
	if err := h.core.registry.Register(id, a); err != nil {
		h.mu.Unlock()
		return "", err
	}
	h.wg.Add(1)
	h.mu.Unlock()

	if len(credential) > 0 {
		frame, err := wire.Encode(wire.NewAuth(credential))
		if err != nil {
			h.core.registry.Deregister(id)
			h.wg.Done()
			return "", err
		}
		a.inbox <- frame
	}

	go func() {
		defer h.wg.Done()
		a.run()
	}()
	a.logger.Info("session accepted")
	return id, nil
}

// Frame hands one raw inbound frame to its session, preserving arrival
// order. Blocks while the session's inbox is full, which is the
// backpressure path to the transport read pump. ErrUnknownSession
// means the session is gone; the adapter should drop the connection.
func (h *Hub) Frame(id SessionID, frame []byte) error {
	a, ok := h.core.registry.Lookup(id)
	if !ok {
		return ErrUnknownSession
	}
	select {
	case a.inbox <- frame:
		return nil
	case <-a.done:
		return ErrUnknownSession
	}
}

// TransportClosed reports that the underlying connection is gone.
// Transport failure is always fatal: the session drains and closes.
func (h *Hub) TransportClosed(id SessionID) {
	if a, ok := h.core.registry.Lookup(id); ok {
		a.requestClose("transport closed")
	}
}

// Len returns the number of live sessions.
func (h *Hub) Len() int {
	return h.core.registry.Len()
}

// Sessions returns a point-in-time view of every live session.
func (h *Hub) Sessions() []SessionInfo {
	return h.core.registry.Snapshot()
}

// CloseSession force-closes one session and reports whether it was
// live. The reason reaches the peer in the close envelope.
func (h *Hub) CloseSession(id SessionID, reason string) bool {
	a, ok := h.core.registry.Lookup(id)
	if !ok {
		return false
	}
	if reason == "" {
		reason = "closed by operator"
	}
	a.requestClose(reason)
	return true
}

// Shutdown asks every session to drain and waits for all actors to
// exit, bounded by ctx. On ctx expiry the remaining actors are
// hard-canceled. Idempotent.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.mu.Unlock()

	h.core.logger.Info("session hub shutting down", "sessions", h.core.registry.Len())
	h.core.registry.Range(func(a *Actor) {
		a.requestClose("server shutdown")
	})

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		h.cancel()
		return nil
	case <-ctx.Done():
		h.cancel()
		return ctx.Err()
	}
}
