// Copyright 2026 The Seed Authors
// SPDX-License-Identifier: Apache-2.0

package ops

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/seed-foundation/seed/lib/clock"
	"github.com/seed-foundation/seed/lib/codec"
	"github.com/seed-foundation/seed/session"
	"github.com/seed-foundation/seed/store"
)

// Hub is the slice of the session hub the operational surface needs.
type Hub interface {
	Len() int
	Sessions() []session.SessionInfo
	CloseSession(id session.SessionID, reason string) bool
}

// StatsSource reports store row counts. Optional: a nil source drops
// the store section from status replies.
type StatsSource interface {
	Stats(ctx context.Context) (store.Stats, error)
}

// readTimeout bounds the wait for the client's request; a well-behaved
// client sends it immediately after connecting.
const readTimeout = 30 * time.Second

// writeTimeout bounds the response write.
const writeTimeout = 10 * time.Second

// maxRequestSize bounds a single CBOR request. The largest legitimate
// request is a close-session with a reason string.
const maxRequestSize = 64 * 1024

// Response is the wire envelope of every reply.
type Response struct {
	OK    bool             `cbor:"ok"`
	Error string           `cbor:"error,omitempty"`
	Data  codec.RawMessage `cbor:"data,omitempty"`
}

// StatusReply answers the "status" action.
type StatusReply struct {
	// UptimeSeconds is whole seconds since the server started.
	UptimeSeconds int64 `cbor:"uptime_seconds"`

	// Sessions is the live session count.
	Sessions int `cbor:"sessions"`

	// States maps lifecycle state names to session counts.
	States map[string]int `cbor:"states"`

	// Store is present when the server exposes its message store.
	Store *store.Stats `cbor:"store,omitempty"`
}

// SessionReply is one session in a "sessions" reply.
type SessionReply struct {
	ID           string   `cbor:"id"`
	Principal    string   `cbor:"principal,omitempty"`
	State        string   `cbor:"state"`
	Groups       []string `cbor:"groups,omitempty"`
	CreatedAt    int64    `cbor:"created_at"`
	LastActivity int64    `cbor:"last_activity"`
}

// CloseSessionRequest asks the server to force-close one session.
type CloseSessionRequest struct {
	Action  string `cbor:"action"`
	Session string `cbor:"session"`
	Reason  string `cbor:"reason,omitempty"`
}

// CloseSessionReply reports whether the session was live.
type CloseSessionReply struct {
	Closed bool `cbor:"closed"`
}

type actionFunc func(ctx context.Context, raw []byte) (any, error)

// Server serves the operational protocol on a Unix socket.
type Server struct {
	socketPath string
	hub        Hub
	stats      StatsSource
	clk        clock.Clock
	logger     *slog.Logger
	startedAt  time.Time

	handlers map[string]actionFunc

	// active tracks in-flight handlers; Serve waits for them before
	// returning.
	active sync.WaitGroup
}

// NewServer builds a server over hub. stats may be nil; a nil clock
// means the real one.
func NewServer(socketPath string, hub Hub, stats StatsSource, clk clock.Clock, logger *slog.Logger) (*Server, error) {
	if socketPath == "" {
		return nil, errors.New("ops: socket path is required")
	}
	if hub == nil {
		return nil, errors.New("ops: hub must not be nil")
	}
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Server{
		socketPath: socketPath,
		hub:        hub,
		stats:      stats,
		clk:        clk,
		logger:     logger,
		startedAt:  clk.Now(),
	}
	s.handlers = map[string]actionFunc{
		"status":        s.handleStatus,
		"sessions":      s.handleSessions,
		"close-session": s.handleCloseSession,
	}
	return s, nil
}

// Serve accepts connections until ctx is done, then stops listening
// and waits for in-flight handlers. Any stale socket file at the path
// is removed before listening, and the socket file is removed on
// return.
func (s *Server) Serve(ctx context.Context) error {
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale socket %s: %w", s.socketPath, err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.socketPath, err)
	}
	defer func() {
		listener.Close()
		os.Remove(s.socketPath)
	}()

	// Unblock Accept when the context is cancelled.
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	s.logger.Info("ops socket listening", "path", s.socketPath)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error("ops accept failed", "error", err)
			continue
		}

		s.active.Add(1)
		go func() {
			defer s.active.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	s.active.Wait()
	return nil
}

// handleConnection processes one request-response cycle. CBOR is
// self-delimiting, so there is no framing; LimitReader keeps a
// malicious client from exhausting memory.
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(readTimeout))

	var raw codec.RawMessage
	if err := codec.NewDecoder(io.LimitReader(conn, maxRequestSize)).Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			// Client connected but sent nothing.
			return
		}
		s.writeError(conn, fmt.Sprintf("invalid request: %v", err))
		return
	}

	var header struct {
		Action string `cbor:"action"`
	}
	if err := codec.Unmarshal(raw, &header); err != nil {
		s.writeError(conn, fmt.Sprintf("invalid request: %v", err))
		return
	}
	if header.Action == "" {
		s.writeError(conn, "missing required field: action")
		return
	}

	handler, exists := s.handlers[header.Action]
	if !exists {
		s.writeError(conn, fmt.Sprintf("unknown action %q", header.Action))
		return
	}

	result, err := handler(ctx, []byte(raw))
	if err != nil {
		s.logger.Debug("ops action failed", "action", header.Action, "error", err)
		s.writeError(conn, err.Error())
		return
	}
	s.writeSuccess(conn, result)
}

func (s *Server) handleStatus(ctx context.Context, _ []byte) (any, error) {
	infos := s.hub.Sessions()
	states := make(map[string]int)
	for _, info := range infos {
		states[info.State.String()]++
	}
	reply := StatusReply{
		UptimeSeconds: int64(s.clk.Now().Sub(s.startedAt) / time.Second),
		Sessions:      len(infos),
		States:        states,
	}
	if s.stats != nil {
		stats, err := s.stats.Stats(ctx)
		if err != nil {
			return nil, fmt.Errorf("reading store stats: %w", err)
		}
		reply.Store = &stats
	}
	return reply, nil
}

func (s *Server) handleSessions(_ context.Context, _ []byte) (any, error) {
	infos := s.hub.Sessions()
	replies := make([]SessionReply, 0, len(infos))
	for _, info := range infos {
		r := SessionReply{
			ID:           string(info.ID),
			Principal:    string(info.Principal),
			State:        info.State.String(),
			CreatedAt:    info.CreatedAt.UnixMilli(),
			LastActivity: info.LastActivity.UnixMilli(),
		}
		for _, g := range info.Groups {
			r.Groups = append(r.Groups, string(g))
		}
		replies = append(replies, r)
	}
	return replies, nil
}

func (s *Server) handleCloseSession(_ context.Context, raw []byte) (any, error) {
	var req CloseSessionRequest
	if err := codec.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("invalid close-session request: %w", err)
	}
	if req.Session == "" {
		return nil, errors.New("missing required field: session")
	}
	closed := s.hub.CloseSession(session.SessionID(req.Session), req.Reason)
	return CloseSessionReply{Closed: closed}, nil
}

func (s *Server) writeError(conn net.Conn, message string) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := codec.NewEncoder(conn).Encode(Response{OK: false, Error: message}); err != nil {
		s.logger.Debug("failed to write ops error response", "error", err)
	}
}

func (s *Server) writeSuccess(conn net.Conn, result any) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))

	response := Response{OK: true}
	if result != nil {
		data, err := codec.Marshal(result)
		if err != nil {
			s.writeError(conn, fmt.Sprintf("internal: marshaling response: %v", err))
			return
		}
		response.Data = data
	}
	if err := codec.NewEncoder(conn).Encode(response); err != nil {
		s.logger.Debug("failed to write ops response", "error", err)
	}
}
